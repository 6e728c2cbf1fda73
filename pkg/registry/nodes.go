package registry

import (
	"github.com/dukex/relay/pkg/executors"
	"github.com/dukex/relay/pkg/persistence"
	"github.com/dukex/relay/pkg/protocol"
	"github.com/dukex/relay/pkg/recovery"
)

// Dependencies are the collaborators needed by the built-in executors.
type Dependencies struct {
	Apps        persistence.AppRepository
	Connections persistence.ConnectionRepository
	Credentials protocol.CredentialService
	Invoker     protocol.ActionInvoker
	Functions   protocol.FunctionLibrary
	Breakers    *recovery.Breakers
}

// RegisterDefaultExecutors registers the trigger, action, transformer and
// condition executors.
func (r *Registry) RegisterDefaultExecutors(deps Dependencies) {
	r.Register(executors.NewTrigger())
	r.Register(executors.NewAction(r.logger, deps.Apps, deps.Connections, deps.Credentials, deps.Invoker, deps.Breakers))
	r.Register(executors.NewTransformer(deps.Functions))
	r.Register(executors.NewCondition())
}
