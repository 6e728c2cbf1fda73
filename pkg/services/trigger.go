package services

import (
	"context"
	"crypto/subtle"
	"fmt"

	"github.com/dukex/relay/pkg/models"
)

// WebhookRequest is an inbound webhook call addressed to a trigger node.
type WebhookRequest struct {
	ScenarioID string
	NodeID     string
	Token      string
	Payload    map[string]any
	Headers    map[string]string
}

// TriggerWebhook checks the trigger node's webhook settings and token, then
// records an execution with the payload as trigger data.
func (s *Execution) TriggerWebhook(ctx context.Context, req WebhookRequest) (*models.Execution, error) {
	node, err := s.persistence.NodeRepository().GetByID(ctx, req.ScenarioID, req.NodeID)
	if err != nil {
		return nil, err
	}

	cfg, ok := node.Config.(models.TriggerConfig)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotTriggerNode, node.ID)
	}

	if cfg.Kind != models.TriggerKindWebhook || !cfg.WebhookEnabled {
		return nil, ErrWebhookDisabled
	}

	if cfg.WebhookToken == "" || subtle.ConstantTimeCompare([]byte(cfg.WebhookToken), []byte(req.Token)) != 1 {
		return nil, ErrInvalidWebhookToken
	}

	metadata := map[string]any{}
	if len(req.Headers) > 0 {
		metadata["headers"] = req.Headers
	}

	return s.Trigger(ctx, TriggerRequest{
		ScenarioID: req.ScenarioID,
		Type:       models.TriggerTypeWebhook,
		NodeID:     node.ID,
		Data:       req.Payload,
		Metadata:   metadata,
	})
}
