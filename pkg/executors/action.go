package executors

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dukex/relay/pkg/actions/httprequest"
	"github.com/dukex/relay/pkg/credentials"
	"github.com/dukex/relay/pkg/models"
	"github.com/dukex/relay/pkg/persistence"
	"github.com/dukex/relay/pkg/protocol"
	"github.com/dukex/relay/pkg/recovery"
)

// Action calls an app action through the node's connection.
type Action struct {
	apps        persistence.AppRepository
	connections persistence.ConnectionRepository
	credentials protocol.CredentialService
	invoker     protocol.ActionInvoker
	breakers    *recovery.Breakers
	logger      *slog.Logger
}

var _ protocol.NodeExecutor = (*Action)(nil)

func NewAction(
	logger *slog.Logger,
	apps persistence.AppRepository,
	connections persistence.ConnectionRepository,
	credentialService protocol.CredentialService,
	invoker protocol.ActionInvoker,
	breakers *recovery.Breakers,
) *Action {
	if breakers == nil {
		breakers = recovery.NewBreakers()
	}

	return &Action{
		apps:        apps,
		connections: connections,
		credentials: credentialService,
		invoker:     invoker,
		breakers:    breakers,
		logger:      logger.With("module", "action_executor"),
	}
}

func (a *Action) Type() models.NodeType {
	return models.NodeTypeAction
}

func (a *Action) Execute(ctx context.Context, node *models.Node, input map[string]any, env protocol.Env) (map[string]any, error) {
	cfg, ok := node.Config.(models.ActionConfig)
	if !ok {
		return nil, recovery.NewConfigurationError(node.ID, "action node without action config", nil)
	}

	conn, err := a.connections.GetByID(ctx, cfg.ConnectionID)
	if err != nil {
		if persistence.IsConnectionNotFound(err) {
			return nil, recovery.NewConfigurationError(node.ID, "connection "+cfg.ConnectionID+" not found", err)
		}

		return nil, err
	}

	if conn.Status != models.ConnectionStatusActive {
		return nil, recovery.NewConfigurationError(node.ID, "connection "+conn.ID+" is "+string(conn.Status), nil)
	}

	action, err := a.resolveAction(ctx, node.ID, cfg)
	if err != nil {
		return nil, err
	}

	if err := httprequest.ValidateInput(action.InputSchema, input); err != nil {
		return nil, err
	}

	creds, err := a.openCredentials(conn)
	if err != nil {
		return nil, err
	}

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	var breakerPolicy *models.CircuitBreakerPolicy
	if env.Scenario != nil {
		breakerPolicy = env.Scenario.ErrorHandling.CircuitBreaker
	}

	var output map[string]any

	err = a.breakers.Run(conn.ID, breakerPolicy, func() error {
		var callErr error

		output, callErr = a.invoker.Call(ctx, action, creds, input)

		return callErr
	})
	if err != nil {
		return nil, err
	}

	if output == nil {
		output = map[string]any{}
	}

	return output, nil
}

func (a *Action) resolveAction(ctx context.Context, nodeID string, cfg models.ActionConfig) (*models.ActionDefinition, error) {
	app, err := a.apps.GetByID(ctx, cfg.AppID)
	if err != nil {
		if persistence.IsAppNotFound(err) {
			return nil, recovery.NewConfigurationError(nodeID, "app "+cfg.AppID+" not found", err)
		}

		return nil, err
	}

	action, ok := app.Action(cfg.ActionID)
	if !ok {
		return nil, recovery.NewConfigurationError(nodeID, "action "+cfg.ActionID+" not defined by app "+app.ID, nil)
	}

	if action.AppID == "" {
		action.AppID = app.ID
	}

	return action, nil
}

// openCredentials decrypts the connection's credentials. A connection without
// stored credentials yields an empty set.
func (a *Action) openCredentials(conn *models.Connection) (map[string]any, error) {
	creds, err := credentials.Open(a.credentials, conn)
	if err == nil {
		return creds, nil
	}

	if errors.Is(err, credentials.ErrNoCredentialsSet) {
		return map[string]any{}, nil
	}

	a.logger.Warn("Failed to decrypt connection credentials", "connection_id", conn.ID)

	return nil, &recovery.ClassifiedError{
		Classification: recovery.Classification{
			Category:    recovery.CategoryAuthorization,
			Severity:    recovery.SeverityHigh,
			Persistence: recovery.PersistencePermanent,
			Message:     "credentials for connection " + conn.ID + " could not be decrypted",
			Details:     map[string]any{"connection_id": conn.ID},
		},
		Err: err,
	}
}
