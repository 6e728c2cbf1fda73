package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// NodeType identifies the kind of step a node performs.
type NodeType string

const (
	NodeTypeTrigger     NodeType = "trigger"
	NodeTypeAction      NodeType = "action"
	NodeTypeTransformer NodeType = "transformer"
	NodeTypeCondition   NodeType = "condition"
)

var ErrUnknownNodeType = errors.New("unknown node type")

// Node is a single step of a scenario. Config holds the payload specific to Type.
type Node struct {
	ID             string            `json:"id"                        validate:"required"`
	ScenarioID     string            `json:"scenario_id"               validate:"required"`
	Type           NodeType          `json:"type"                      validate:"required,oneof=trigger action transformer condition"`
	Name           string            `json:"name"`
	Position       int               `json:"position"`
	DependsOn      []string          `json:"depends_on,omitempty"`
	Operation      string            `json:"operation,omitempty"`
	InputMappings  []InputMapping    `json:"input_mappings,omitempty"  validate:"dive"`
	OutputMappings map[string]string `json:"output_mappings,omitempty"`
	Config         NodeConfig        `json:"config"`
}

// InputMapping copies a value from a prior node's output into this node's input.
// Source has the form "<nodeId>.<path>"; a bare "<nodeId>" copies the whole output.
type InputMapping struct {
	Target string `json:"target" validate:"required"`
	Source string `json:"source" validate:"required"`
}

// NodeConfig is the typed payload carried by a node.
type NodeConfig interface {
	NodeType() NodeType
	IsEssential() bool
	Fallback() (any, bool)
	Statics() map[string]any
}

// TriggerKind enumerates the sources able to start an execution from a trigger node.
type TriggerKind string

const (
	TriggerKindManual    TriggerKind = "manual"
	TriggerKindWebhook   TriggerKind = "webhook"
	TriggerKindPolling   TriggerKind = "polling"
	TriggerKindScheduled TriggerKind = "scheduled"
)

type TriggerConfig struct {
	Kind TriggerKind `json:"kind" validate:"required,oneof=manual webhook polling scheduled"`

	WebhookToken   string `json:"webhook_token,omitempty"`
	WebhookEnabled bool   `json:"webhook_enabled,omitempty"`

	// PollingInterval is expressed in minutes.
	PollingInterval int    `json:"polling_interval,omitempty" validate:"omitempty,gte=1"`
	PollingEnabled  bool   `json:"polling_enabled,omitempty"`
	ConnectionID    string `json:"connection_id,omitempty"`
	AppID           string `json:"app_id,omitempty"`
	ActionID        string `json:"action_id,omitempty"`
	ItemsPath       string `json:"items_path,omitempty"`

	Schedule string `json:"schedule,omitempty"`
}

func (TriggerConfig) NodeType() NodeType { return NodeTypeTrigger }
func (TriggerConfig) IsEssential() bool { return true }
func (TriggerConfig) Fallback() (any, bool) { return nil, false }
func (TriggerConfig) Statics() map[string]any { return nil }

type ActionConfig struct {
	AppID         string         `json:"app_id"                   validate:"required"`
	ActionID      string         `json:"action_id"                validate:"required"`
	ConnectionID  string         `json:"connection_id"            validate:"required"`
	Essential     bool           `json:"essential,omitempty"`
	StaticInputs  map[string]any `json:"static_inputs,omitempty"`
	Timeout       time.Duration  `json:"timeout,omitempty"`
	FallbackValue any            `json:"fallback_value,omitempty"`
}

func (ActionConfig) NodeType() NodeType { return NodeTypeAction }
func (c ActionConfig) IsEssential() bool { return c.Essential }
func (c ActionConfig) Fallback() (any, bool) { return c.FallbackValue, c.FallbackValue != nil }
func (c ActionConfig) Statics() map[string]any { return c.StaticInputs }

// Transformer operations.
const (
	OperationFilter   = "filter"
	OperationMap      = "map"
	OperationMerge    = "merge"
	OperationConvert  = "convert"
	OperationFunction = "function"
)

type TransformerConfig struct {
	Essential     bool           `json:"essential,omitempty"`
	StaticInputs  map[string]any `json:"static_inputs,omitempty"`
	FallbackValue any            `json:"fallback_value,omitempty"`

	Include     []string          `json:"include,omitempty"`
	Exclude     []string          `json:"exclude,omitempty"`
	Mappings    map[string]string `json:"mappings,omitempty"`
	Sources     []MergeSource     `json:"sources,omitempty"     validate:"dive"`
	Conversions []Conversion      `json:"conversions,omitempty" validate:"dive"`
	Functions   []FunctionCall    `json:"functions,omitempty"   validate:"dive"`
}

func (TransformerConfig) NodeType() NodeType { return NodeTypeTransformer }
func (c TransformerConfig) IsEssential() bool { return c.Essential }
func (c TransformerConfig) Fallback() (any, bool) { return c.FallbackValue, c.FallbackValue != nil }
func (c TransformerConfig) Statics() map[string]any { return c.StaticInputs }

// MergeSource names a prior node whose output is merged into the transformer output.
type MergeSource struct {
	NodeID string `json:"node_id" validate:"required"`
	Path   string `json:"path,omitempty"`
}

// Conversion coerces a single field to one of string, number, boolean, date or json.
type Conversion struct {
	Field string `json:"field" validate:"required"`
	Type  string `json:"type"  validate:"required,oneof=string number boolean date json"`
}

// FunctionCall applies a library function to Field and stores the result in Target
// (defaults to Field).
type FunctionCall struct {
	Field      string         `json:"field"`
	FunctionID string         `json:"function_id" validate:"required"`
	Params     map[string]any `json:"params,omitempty"`
	Target     string         `json:"target,omitempty"`
}

// Combinators join a clause with the clause that follows it.
const (
	CombinatorAnd = "and"
	CombinatorOr  = "or"
)

type ConditionConfig struct {
	Essential bool              `json:"essential,omitempty"`
	Clauses   []ConditionClause `json:"clauses" validate:"dive"`
}

type ConditionClause struct {
	Field      string `json:"field"                validate:"required"`
	Operator   string `json:"operator"             validate:"required"`
	Value      any    `json:"value,omitempty"`
	Combinator string `json:"combinator,omitempty" validate:"omitempty,oneof=and or"`
}

func (ConditionConfig) NodeType() NodeType { return NodeTypeCondition }
func (c ConditionConfig) IsEssential() bool { return c.Essential }
func (ConditionConfig) Fallback() (any, bool) { return nil, false }
func (ConditionConfig) Statics() map[string]any { return nil }

// IsEssential reports whether a failure of this node must fail the execution.
func (n *Node) IsEssential() bool {
	return n.Config != nil && n.Config.IsEssential()
}

// DependsOnNode reports whether id is a direct dependency of n.
func (n *Node) DependsOnNode(id string) bool {
	for _, dep := range n.DependsOn {
		if dep == id {
			return true
		}
	}

	return false
}

type nodeAlias Node

type nodeEnvelope struct {
	*nodeAlias

	Config json.RawMessage `json:"config"`
}

// UnmarshalJSON decodes Config into the payload type matching Type.
func (n *Node) UnmarshalJSON(data []byte) error {
	env := nodeEnvelope{nodeAlias: (*nodeAlias)(n)}

	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}

	cfg, err := DecodeNodeConfig(n.Type, env.Config)
	if err != nil {
		return fmt.Errorf("node %s: %w", n.ID, err)
	}

	n.Config = cfg

	return nil
}

// DecodeNodeConfig decodes raw JSON into the config payload for nodeType.
// An empty payload yields the zero config for the type.
func DecodeNodeConfig(nodeType NodeType, raw []byte) (NodeConfig, error) {
	empty := len(raw) == 0 || string(raw) == "null"

	switch nodeType {
	case NodeTypeTrigger:
		cfg := TriggerConfig{Kind: TriggerKindManual}
		if !empty {
			if err := json.Unmarshal(raw, &cfg); err != nil {
				return nil, fmt.Errorf("invalid trigger config: %w", err)
			}
		}

		return cfg, nil
	case NodeTypeAction:
		var cfg ActionConfig
		if !empty {
			if err := json.Unmarshal(raw, &cfg); err != nil {
				return nil, fmt.Errorf("invalid action config: %w", err)
			}
		}

		return cfg, nil
	case NodeTypeTransformer:
		var cfg TransformerConfig
		if !empty {
			if err := json.Unmarshal(raw, &cfg); err != nil {
				return nil, fmt.Errorf("invalid transformer config: %w", err)
			}
		}

		return cfg, nil
	case NodeTypeCondition:
		var cfg ConditionConfig
		if !empty {
			if err := json.Unmarshal(raw, &cfg); err != nil {
				return nil, fmt.Errorf("invalid condition config: %w", err)
			}
		}

		return cfg, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownNodeType, nodeType)
	}
}
