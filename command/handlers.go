package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-authbroker/core"
)

// MutatingService is the broker surface the command handlers dispatch into.
// *core.Service satisfies it.
type MutatingService interface {
	GetSession(ctx context.Context, providerID string, request core.ScopeRequest, requesterID, requesterName string, opts core.SessionOptions) (core.Session, bool, error)
	CreateSession(ctx context.Context, providerID string, request core.ScopeRequest, opts core.SessionOptions) (core.Session, error)
	RemoveSession(ctx context.Context, providerID, sessionID string) error
	SignOutAccount(ctx context.Context, providerID, accountLabel string) error
	ClearPreference(ctx context.Context, requesterID, providerID string) error
	CreateDynamicProvider(ctx context.Context, authorizationServer string, serverMetadata core.AuthorizationServerMetadata, resourceServer string) (string, error)
	RegisterDynamicProvider(ctx context.Context, details core.DynamicProviderDetails) error
	RemoveDynamicProvider(ctx context.Context, providerID string) error
}

// GetSessionOutcome is what a GetSessionCommand stores for the caller: the
// session when one was produced, and whether one was.
type GetSessionOutcome struct {
	Session core.Session
	Found   bool
}

type GetSessionCommand struct {
	service MutatingService
}

func NewGetSessionCommand(service MutatingService) *GetSessionCommand {
	return &GetSessionCommand{service: service}
}

func (c *GetSessionCommand) Execute(ctx context.Context, msg GetSessionMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: session service is required")
	}
	session, found, err := c.service.GetSession(ctx, msg.ProviderID, msg.Request, msg.RequesterID, msg.RequesterName, msg.Options)
	if err != nil {
		return err
	}
	storeResult(ctx, GetSessionOutcome{Session: session, Found: found})
	return nil
}

type CreateSessionCommand struct {
	service MutatingService
}

func NewCreateSessionCommand(service MutatingService) *CreateSessionCommand {
	return &CreateSessionCommand{service: service}
}

func (c *CreateSessionCommand) Execute(ctx context.Context, msg CreateSessionMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: session service is required")
	}
	session, err := c.service.CreateSession(ctx, msg.ProviderID, msg.Request, msg.Options)
	if err != nil {
		return err
	}
	storeResult(ctx, session)
	return nil
}

type RemoveSessionCommand struct {
	service MutatingService
}

func NewRemoveSessionCommand(service MutatingService) *RemoveSessionCommand {
	return &RemoveSessionCommand{service: service}
}

func (c *RemoveSessionCommand) Execute(ctx context.Context, msg RemoveSessionMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: session service is required")
	}
	return c.service.RemoveSession(ctx, msg.ProviderID, msg.SessionID)
}

type SignOutAccountCommand struct {
	service MutatingService
}

func NewSignOutAccountCommand(service MutatingService) *SignOutAccountCommand {
	return &SignOutAccountCommand{service: service}
}

func (c *SignOutAccountCommand) Execute(ctx context.Context, msg SignOutAccountMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: account service is required")
	}
	return c.service.SignOutAccount(ctx, msg.ProviderID, msg.AccountLabel)
}

type ClearPreferenceCommand struct {
	service MutatingService
}

func NewClearPreferenceCommand(service MutatingService) *ClearPreferenceCommand {
	return &ClearPreferenceCommand{service: service}
}

func (c *ClearPreferenceCommand) Execute(ctx context.Context, msg ClearPreferenceMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: preference service is required")
	}
	return c.service.ClearPreference(ctx, msg.RequesterID, msg.ProviderID)
}

type CreateDynamicProviderCommand struct {
	service MutatingService
}

func NewCreateDynamicProviderCommand(service MutatingService) *CreateDynamicProviderCommand {
	return &CreateDynamicProviderCommand{service: service}
}

func (c *CreateDynamicProviderCommand) Execute(ctx context.Context, msg CreateDynamicProviderMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: dynamic provider service is required")
	}
	providerID, err := c.service.CreateDynamicProvider(ctx, msg.AuthorizationServer, msg.ServerMetadata, msg.ResourceServer)
	if err != nil {
		return err
	}
	storeResult(ctx, providerID)
	return nil
}

type RegisterDynamicProviderCommand struct {
	service MutatingService
}

func NewRegisterDynamicProviderCommand(service MutatingService) *RegisterDynamicProviderCommand {
	return &RegisterDynamicProviderCommand{service: service}
}

func (c *RegisterDynamicProviderCommand) Execute(ctx context.Context, msg RegisterDynamicProviderMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: dynamic provider service is required")
	}
	return c.service.RegisterDynamicProvider(ctx, msg.Details)
}

type RemoveDynamicProviderCommand struct {
	service MutatingService
}

func NewRemoveDynamicProviderCommand(service MutatingService) *RemoveDynamicProviderCommand {
	return &RemoveDynamicProviderCommand{service: service}
}

func (c *RemoveDynamicProviderCommand) Execute(ctx context.Context, msg RemoveDynamicProviderMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: dynamic provider service is required")
	}
	return c.service.RemoveDynamicProvider(ctx, msg.ProviderID)
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
