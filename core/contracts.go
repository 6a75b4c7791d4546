package core

import (
	"context"

	glog "github.com/goliatone/go-logger/glog"
)

// Provider is a pluggable credential backend. At most one live instance per
// id is registered at any time.
type Provider interface {
	ID() string
	Label() string
	SupportsMultipleAccounts() bool
	// AuthorizationServers lists the authorization-server identifiers this
	// provider claims; empty for providers that are not server-addressable.
	AuthorizationServers() []string
	// ResourceServer identifies the resource this provider issues tokens
	// for; empty when the provider is not bound to a resource server.
	ResourceServer() string

	Sessions(ctx context.Context, scopes []string, opts ProviderSessionOptions) ([]Session, error)
	NewSession(ctx context.Context, scopes []string, opts ProviderSessionOptions) (Session, error)
	RemoveSession(ctx context.Context, sessionID string) error
}

// ChallengeProvider is the capability upgrade for providers that accept
// WWW-Authenticate challenges instead of plain scope lists.
type ChallengeProvider interface {
	Provider
	SessionsFromChallenges(ctx context.Context, challenge Challenge, opts ProviderSessionOptions) ([]Session, error)
	NewSessionFromChallenges(ctx context.Context, challenge Challenge, opts ProviderSessionOptions) (Session, error)
}

// SessionEventSource is implemented by providers that push their own
// session-change notifications. The registry subscribes on registration and
// tears the subscription down on unregistration.
type SessionEventSource interface {
	OnSessionsChanged(fn func(SessionsChange)) Unsubscribe
}

type ProviderSessionOptions struct {
	Account             *Account
	AuthorizationServer string
}

// PromptOptions carries UI wording for the consent dialog. The original
// surface allowed passing these in place of the boolean flags; in Go the
// flags and the wording are independent fields.
type PromptOptions struct {
	Detail    string
	LearnMore string
}

type SessionOptions struct {
	CreateIfNone           bool
	ForceNewSession        bool
	Silent                 bool
	ClearSessionPreference bool
	Account                *Account
	AuthorizationServer    string
	Prompt                 *PromptOptions
}

type LoginConfirmation struct {
	ProviderID    string
	ProviderLabel string
	RequesterName string
	// Recreating switches the consent wording to "sign in again"; it never
	// changes the decision logic.
	Recreating bool
	Options    *PromptOptions
}

type SessionPickRequest struct {
	ProviderID    string
	ProviderLabel string
	RequesterID   string
	RequesterName string
	Request       ScopeRequest
	Sessions      []Session
	Accounts      []Account
}

// SessionPick is the outcome of an account-picker prompt: an existing
// session, a known account without a session for the requested scopes, or
// "sign in to another account".
type SessionPick struct {
	Session *Session
	Account *Account
	Other   bool
}

type MismatchDecision int

const (
	MismatchKeepChosen MismatchDecision = iota
	MismatchUseRequested
)

type ManualClientRegistration struct {
	ClientID     string
	ClientSecret string
}

// Prompter renders the consent dialogs, account picker, and device-code
// modal. Rendering is a host concern; the broker only consumes decisions.
type Prompter interface {
	ConfirmLogin(ctx context.Context, req LoginConfirmation) (bool, error)
	PickSession(ctx context.Context, req SessionPickRequest) (SessionPick, error)
	ConfirmMismatchedAccount(ctx context.Context, chosenLabel, requestedLabel string) (MismatchDecision, error)
	ShowDeviceCodeModal(ctx context.Context, userCode, verificationURI string) (bool, error)
	// PromptClientRegistration collects a user-entered client id (and
	// optional secret) when an authorization server supports no automatic
	// registration mechanism. A nil result means the user declined.
	PromptClientRegistration(ctx context.Context, authorizationServerURL string) (*ManualClientRegistration, error)
}

// Activator brings a declared-but-inactive provider implementation to life.
// Activate returns once the provider has self-registered with the registry.
type Activator interface {
	Activate(ctx context.Context, providerID string) error
}

type SecretChange struct {
	Key string
}

// SecretStore is the durable encrypted storage collaborator. OnDidChange
// fires for mutations performed outside the broker process as well, which is
// how externally refreshed token sets are observed.
type SecretStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	OnDidChange(fn func(SecretChange)) Unsubscribe
}

type SettingsScope int

const (
	ScopeWorkspace SettingsScope = iota
	ScopeApplication
)

// SettingsStore is the plain scoped key/value backing used by the access,
// preference, usage, and dynamic-provider tracking stores.
type SettingsStore interface {
	Get(ctx context.Context, key string, scope SettingsScope) (string, bool, error)
	Set(ctx context.Context, key, value string, scope SettingsScope) error
	Remove(ctx context.Context, key string, scope SettingsScope) error
}

// HostDelegate materializes a provider implementation for an unrecognized
// authorization server. Delegates are consulted in descending priority
// order; the first to return a provider id wins.
type HostDelegate interface {
	Priority() int
	CreateProvider(ctx context.Context, req DelegateCreateRequest) (string, error)
}

type DelegateCreateRequest struct {
	AuthorizationServer string
	ServerMetadata      AuthorizationServerMetadata
	ResourceServer      string
	ClientID            string
	ClientSecret        string
	InitialTokens       []AuthorizationToken
}

// DynamicProviderDetails is the pre-seeded registration entry point payload:
// a live provider handle plus the client identity to persist for it.
type DynamicProviderDetails struct {
	Provider            Provider
	AuthorizationServer string
	ClientID            string
	ClientSecret        string
	Label               string
}

type Registry interface {
	Register(provider Provider) error
	Unregister(providerID string)
	UnregisterQuietly(providerID string)
	RegisterDeclared(meta DeclaredProvider) error
	Get(providerID string) (Provider, error)
	ProviderIDs() []string
	DeclaredProviders() []DeclaredProvider
	ResolveForAuthorizationServer(ctx context.Context, serverURI, resourceURI string) (string, bool, error)
	HandleSessionsChange(providerID string, change SessionsChange)
	OnDidRegister(fn func(ProviderInfo)) Unsubscribe
	OnDidUnregister(fn func(ProviderInfo)) Unsubscribe
	OnSessionsChanged(fn func(SessionsChangeEvent)) Unsubscribe
}

// StoreProvider hands out the durable storage collaborators a persistence
// factory built for the broker.
type StoreProvider interface {
	SettingsStore() SettingsStore
	SecretStore() SecretStore
}

// RepositoryStoreFactory builds the durable stores from a persistence
// client, typically a bun.IDB.
type RepositoryStoreFactory interface {
	BuildStores(client any) (StoreProvider, error)
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// SessionBroker is the full brokered-session surface the Service exposes to
// hosts and transports.
type SessionBroker interface {
	GetSession(ctx context.Context, providerID string, request ScopeRequest, requesterID, requesterName string, opts SessionOptions) (Session, bool, error)
	CreateSession(ctx context.Context, providerID string, request ScopeRequest, opts SessionOptions) (Session, error)
	RemoveSession(ctx context.Context, providerID, sessionID string) error
	GetAccounts(ctx context.Context, providerID string) ([]Account, error)
	SignOutAccount(ctx context.Context, providerID, accountLabel string) error
	ClearPreference(ctx context.Context, requesterID, providerID string) error
	GetOrActivateProviderIDForServer(ctx context.Context, serverURI, resourceURI string) (string, bool, error)
	CreateDynamicProvider(ctx context.Context, authorizationServer string, serverMetadata AuthorizationServerMetadata, resourceServer string) (string, error)
	RegisterDynamicProvider(ctx context.Context, details DynamicProviderDetails) error
	RemoveDynamicProvider(ctx context.Context, providerID string) error
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger
