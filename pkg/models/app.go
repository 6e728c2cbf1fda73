package models

import "time"

// App is a third-party service integration exposing callable actions.
type App struct {
	ID      string             `json:"id"      validate:"required"`
	Name    string             `json:"name"    validate:"required"`
	BaseURL string             `json:"base_url,omitempty"`
	Actions []ActionDefinition `json:"actions" validate:"dive"`
}

// Action returns the action definition with the given id.
func (a *App) Action(id string) (*ActionDefinition, bool) {
	for i := range a.Actions {
		if a.Actions[i].ID == id {
			return &a.Actions[i], true
		}
	}

	return nil, false
}

// ActionDefinition describes one outbound call of an App.
// URL and header values are rendered as templates against the node input.
type ActionDefinition struct {
	ID          string            `json:"id"                     validate:"required"`
	AppID       string            `json:"app_id"`
	Name        string            `json:"name"`
	Method      string            `json:"method"                 validate:"omitempty,oneof=GET POST PUT PATCH DELETE"`
	URL         string            `json:"url"                    validate:"required"`
	Headers     map[string]string `json:"headers,omitempty"`
	InputSchema map[string]any    `json:"input_schema,omitempty"`
}

type ConnectionStatus string

const (
	ConnectionStatusActive   ConnectionStatus = "active"
	ConnectionStatusInactive ConnectionStatus = "inactive"
	ConnectionStatusError    ConnectionStatus = "error"
)

// Connection binds an App to a user's encrypted credentials.
type Connection struct {
	ID                   string           `json:"id"                    validate:"required"`
	AppID                string           `json:"app_id"                validate:"required"`
	Owner                string           `json:"owner"`
	Name                 string           `json:"name"`
	Status               ConnectionStatus `json:"status"                validate:"required,oneof=active inactive error"`
	EncryptedCredentials string           `json:"encrypted_credentials,omitempty"`
	CreatedAt            time.Time        `json:"created_at"`
	UpdatedAt            time.Time        `json:"updated_at"`
}
