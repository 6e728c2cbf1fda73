package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dukex/relay/pkg/credentials"
	"github.com/dukex/relay/pkg/models"
	"github.com/dukex/relay/pkg/persistence"
	"github.com/dukex/relay/pkg/protocol"
	"github.com/dukex/relay/pkg/services"
	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// Bundle is a scenario file: the scenario, its nodes and the apps and
// connections its action nodes use.
type Bundle struct {
	Scenario    *models.Scenario `json:"scenario"`
	Nodes       []*models.Node   `json:"nodes"`
	Apps        []*models.App    `json:"apps,omitempty"`
	Connections []ConnectionSpec `json:"connections,omitempty"`
}

// ConnectionSpec is a connection with plaintext credentials, sealed on import.
type ConnectionSpec struct {
	models.Connection

	Credentials map[string]any `json:"credentials,omitempty"`
}

// LoadBundle reads a YAML or JSON scenario file. YAML is converted to JSON
// first so nodes decode through their typed config.
func LoadBundle(path string) (*Bundle, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return ParseBundle(raw)
}

func ParseBundle(raw []byte) (*Bundle, error) {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("invalid scenario file: %w", err)
	}

	encoded, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("invalid scenario file: %w", err)
	}

	var bundle Bundle
	if err := json.Unmarshal(encoded, &bundle); err != nil {
		return nil, fmt.Errorf("invalid scenario file: %w", err)
	}

	if bundle.Scenario == nil {
		return nil, fmt.Errorf("invalid scenario file: missing scenario")
	}

	for _, node := range bundle.Nodes {
		if node.ScenarioID == "" {
			node.ScenarioID = bundle.Scenario.ID
		}
	}

	return &bundle, nil
}

func (b *Bundle) Definition() *services.Definition {
	return &services.Definition{Scenario: b.Scenario, Nodes: b.Nodes}
}

// Import stores the apps, connections and scenario of the bundle. The scenario
// is saved as a draft.
func (b *Bundle) Import(ctx context.Context, store persistence.Persistence, creds protocol.CredentialService, scenarios *services.Scenario) (*services.Definition, error) {
	for _, app := range b.Apps {
		if err := store.AppRepository().Save(ctx, app); err != nil {
			return nil, fmt.Errorf("failed to save app %s: %w", app.ID, err)
		}
	}

	now := time.Now().UTC()

	for _, spec := range b.Connections {
		conn := spec.Connection
		if conn.Status == "" {
			conn.Status = models.ConnectionStatusActive
		}

		if conn.CreatedAt.IsZero() {
			conn.CreatedAt = now
		}

		conn.UpdatedAt = now

		if len(spec.Credentials) > 0 {
			sealed, err := credentials.Seal(creds, spec.Credentials)
			if err != nil {
				return nil, fmt.Errorf("failed to seal credentials of %s: %w", conn.ID, err)
			}

			conn.EncryptedCredentials = sealed
		}

		if err := store.ConnectionRepository().Save(ctx, &conn); err != nil {
			return nil, fmt.Errorf("failed to save connection %s: %w", conn.ID, err)
		}
	}

	if existing, err := scenarios.Get(ctx, b.Scenario.ID); err == nil && existing.Status == models.ScenarioStatusActive {
		if _, err := scenarios.Pause(ctx, existing.ID); err != nil {
			return nil, err
		}
	}

	b.Scenario.Status = ""

	return scenarios.Save(ctx, b.Definition())
}
