// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dukex/relay/pkg/actions/httprequest"
	"github.com/dukex/relay/pkg/executors"
	"github.com/dukex/relay/pkg/functions"
	"github.com/dukex/relay/pkg/persistence"
	"github.com/dukex/relay/pkg/protocol"
	"github.com/dukex/relay/pkg/recovery"
	"github.com/dukex/relay/pkg/registry"
)

const defaultHTTPTimeout = 30 * time.Second

// NewRegistry registers the built-in executor of every node type.
func NewRegistry(logger *slog.Logger, p persistence.Persistence, credentials protocol.CredentialService) *registry.Registry {
	reg := registry.NewRegistry(logger)

	reg.Register(executors.NewTrigger())
	reg.Register(executors.NewCondition())
	reg.Register(executors.NewTransformer(functions.NewLibrary()))
	reg.Register(executors.NewAction(
		logger,
		p.AppRepository(),
		p.ConnectionRepository(),
		credentials,
		httprequest.NewInvoker(logger, &http.Client{Timeout: defaultHTTPTimeout}),
		recovery.NewBreakers(),
	))

	return reg
}
