package command

import (
	"strings"

	"github.com/goliatone/go-authbroker/core"
)

const (
	TypeGetSession              = "authbroker.command.session.get"
	TypeCreateSession           = "authbroker.command.session.create"
	TypeRemoveSession           = "authbroker.command.session.remove"
	TypeSignOutAccount          = "authbroker.command.account.sign_out"
	TypeClearPreference         = "authbroker.command.preference.clear"
	TypeCreateDynamicProvider   = "authbroker.command.dynamic_provider.create"
	TypeRegisterDynamicProvider = "authbroker.command.dynamic_provider.register"
	TypeRemoveDynamicProvider   = "authbroker.command.dynamic_provider.remove"
)

type GetSessionMessage struct {
	ProviderID    string
	Request       core.ScopeRequest
	RequesterID   string
	RequesterName string
	Options       core.SessionOptions
}

func (GetSessionMessage) Type() string { return TypeGetSession }

func (m GetSessionMessage) Validate() error {
	if strings.TrimSpace(m.ProviderID) == "" {
		return commandValidationError("provider_id", "provider id is required")
	}
	if strings.TrimSpace(m.RequesterID) == "" {
		return commandValidationError("requester_id", "requester id is required")
	}
	if err := m.Request.Validate(); err != nil {
		return commandWrapValidation(err, "command: invalid scope request")
	}
	return nil
}

type CreateSessionMessage struct {
	ProviderID string
	Request    core.ScopeRequest
	Options    core.SessionOptions
}

func (CreateSessionMessage) Type() string { return TypeCreateSession }

func (m CreateSessionMessage) Validate() error {
	if strings.TrimSpace(m.ProviderID) == "" {
		return commandValidationError("provider_id", "provider id is required")
	}
	if err := m.Request.Validate(); err != nil {
		return commandWrapValidation(err, "command: invalid scope request")
	}
	return nil
}

type RemoveSessionMessage struct {
	ProviderID string
	SessionID  string
}

func (RemoveSessionMessage) Type() string { return TypeRemoveSession }

func (m RemoveSessionMessage) Validate() error {
	if strings.TrimSpace(m.ProviderID) == "" {
		return commandValidationError("provider_id", "provider id is required")
	}
	if strings.TrimSpace(m.SessionID) == "" {
		return commandValidationError("session_id", "session id is required")
	}
	return nil
}

type SignOutAccountMessage struct {
	ProviderID   string
	AccountLabel string
}

func (SignOutAccountMessage) Type() string { return TypeSignOutAccount }

func (m SignOutAccountMessage) Validate() error {
	if strings.TrimSpace(m.ProviderID) == "" {
		return commandValidationError("provider_id", "provider id is required")
	}
	if strings.TrimSpace(m.AccountLabel) == "" {
		return commandValidationError("account_label", "account label is required")
	}
	return nil
}

type ClearPreferenceMessage struct {
	RequesterID string
	ProviderID  string
}

func (ClearPreferenceMessage) Type() string { return TypeClearPreference }

func (m ClearPreferenceMessage) Validate() error {
	if strings.TrimSpace(m.RequesterID) == "" {
		return commandValidationError("requester_id", "requester id is required")
	}
	if strings.TrimSpace(m.ProviderID) == "" {
		return commandValidationError("provider_id", "provider id is required")
	}
	return nil
}

type CreateDynamicProviderMessage struct {
	AuthorizationServer string
	ServerMetadata      core.AuthorizationServerMetadata
	ResourceServer      string
}

func (CreateDynamicProviderMessage) Type() string { return TypeCreateDynamicProvider }

func (m CreateDynamicProviderMessage) Validate() error {
	if strings.TrimSpace(m.AuthorizationServer) == "" {
		return commandValidationError("authorization_server", "authorization server is required")
	}
	return nil
}

type RegisterDynamicProviderMessage struct {
	Details core.DynamicProviderDetails
}

func (RegisterDynamicProviderMessage) Type() string { return TypeRegisterDynamicProvider }

func (m RegisterDynamicProviderMessage) Validate() error {
	if m.Details.Provider == nil {
		return commandValidationError("provider", "provider is required")
	}
	if strings.TrimSpace(m.Details.ClientID) == "" {
		return commandValidationError("client_id", "client id is required")
	}
	return nil
}

type RemoveDynamicProviderMessage struct {
	ProviderID string
}

func (RemoveDynamicProviderMessage) Type() string { return TypeRemoveDynamicProvider }

func (m RemoveDynamicProviderMessage) Validate() error {
	if strings.TrimSpace(m.ProviderID) == "" {
		return commandValidationError("provider_id", "provider id is required")
	}
	return nil
}
