package authbroker

import "github.com/goliatone/go-authbroker/core"

type Config = core.Config

type TrustedRequestersConfig = core.TrustedRequestersConfig

type DynamicProvidersConfig = core.DynamicProvidersConfig

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies
type SessionBroker = core.SessionBroker
type Registry = core.Registry
type Provider = core.Provider
type Prompter = core.Prompter
type Activator = core.Activator
type HostDelegate = core.HostDelegate
type SecretStore = core.SecretStore
type SettingsStore = core.SettingsStore
type StoreProvider = core.StoreProvider
type RepositoryStoreFactory = core.RepositoryStoreFactory

type Session = core.Session
type Account = core.Account
type ScopeRequest = core.ScopeRequest
type SessionOptions = core.SessionOptions

type AuthorizationServerMetadata = core.AuthorizationServerMetadata
type DynamicProviderDetails = core.DynamicProviderDetails

var (
	WithLogger               = core.WithLogger
	WithLoggerProvider       = core.WithLoggerProvider
	WithMetricsRecorder      = core.WithMetricsRecorder
	WithErrorFactory         = core.WithErrorFactory
	WithErrorMapper          = core.WithErrorMapper
	WithPersistenceClient    = core.WithPersistenceClient
	WithRepositoryFactory    = core.WithRepositoryFactory
	WithConfigProvider       = core.WithConfigProvider
	WithOptionsResolver      = core.WithOptionsResolver
	WithRegistry             = core.WithRegistry
	WithOperationQueue       = core.WithOperationQueue
	WithPrompter             = core.WithPrompter
	WithActivator            = core.WithActivator
	WithHostDelegate         = core.WithHostDelegate
	WithSecretStore          = core.WithSecretStore
	WithSettingsStore        = core.WithSettingsStore
	WithAccessControlStore   = core.WithAccessControlStore
	WithPreferenceStore      = core.WithPreferenceStore
	WithUsageTracker         = core.WithUsageTracker
	WithRequestTracker       = core.WithRequestTracker
	WithDynamicProviderStore = core.WithDynamicProviderStore
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return core.Setup(cfg, opts...)
}
