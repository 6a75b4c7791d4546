package core

import (
	"context"
	"fmt"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type serviceBuilder struct {
	runtimeConfig     Config
	persistenceClient any
	repositoryFactory any
	delegates         []HostDelegate

	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorFactory    ErrorFactory
	errorMapper     ErrorMapper
	configProvider  ConfigProvider
	optionsResolver OptionsResolver
	registry        Registry
	queue           *OperationQueue
	prompter        Prompter
	activator       Activator
	secretStore     SecretStore
	settingsStore   SettingsStore
	accessStore     *AccessControlStore
	preferenceStore *PreferenceStore
	usageTracker    *UsageTracker
	requestTracker  *RequestTracker
	dynamicStore    *DynamicProviderStore
}

type Option func(*serviceBuilder)

func WithPersistenceClient(client any) Option {
	return func(b *serviceBuilder) {
		b.persistenceClient = client
	}
}

func WithRepositoryFactory(factory any) Option {
	return func(b *serviceBuilder) {
		b.repositoryFactory = factory
	}
}

func WithHostDelegate(delegate HostDelegate) Option {
	return func(b *serviceBuilder) {
		if delegate != nil {
			b.delegates = append(b.delegates, delegate)
		}
	}
}

func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorFactory(factory ErrorFactory) Option {
	return func(b *serviceBuilder) {
		b.errorFactory = factory
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *serviceBuilder) {
		b.errorMapper = mapper
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

func WithRegistry(registry Registry) Option {
	return func(b *serviceBuilder) {
		b.registry = registry
	}
}

func WithOperationQueue(queue *OperationQueue) Option {
	return func(b *serviceBuilder) {
		b.queue = queue
	}
}

func WithPrompter(prompter Prompter) Option {
	return func(b *serviceBuilder) {
		b.prompter = prompter
	}
}

func WithActivator(activator Activator) Option {
	return func(b *serviceBuilder) {
		b.activator = activator
	}
}

func WithSecretStore(store SecretStore) Option {
	return func(b *serviceBuilder) {
		b.secretStore = store
	}
}

func WithSettingsStore(store SettingsStore) Option {
	return func(b *serviceBuilder) {
		b.settingsStore = store
	}
}

func WithAccessControlStore(store *AccessControlStore) Option {
	return func(b *serviceBuilder) {
		b.accessStore = store
	}
}

func WithPreferenceStore(store *PreferenceStore) Option {
	return func(b *serviceBuilder) {
		b.preferenceStore = store
	}
}

func WithUsageTracker(tracker *UsageTracker) Option {
	return func(b *serviceBuilder) {
		b.usageTracker = tracker
	}
}

func WithRequestTracker(tracker *RequestTracker) Option {
	return func(b *serviceBuilder) {
		b.requestTracker = tracker
	}
}

func WithDynamicProviderStore(store *DynamicProviderStore) Option {
	return func(b *serviceBuilder) {
		b.dynamicStore = store
	}
}

func defaultServiceBuilder(runtime Config) serviceBuilder {
	loggerProvider, logger := glog.Resolve("authbroker", nil, nil)
	return serviceBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorFactory:    goerrors.New,
		errorMapper:     defaultErrorMapper,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
	}
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || cfg.ServiceName != "" {
		layer["service_name"] = cfg.ServiceName
	}
	if includeZero || len(cfg.TrustedRequesters.All) > 0 || len(cfg.TrustedRequesters.ByProvider) > 0 {
		byProvider := map[string][]string{}
		for providerID, requesters := range cfg.TrustedRequesters.ByProvider {
			byProvider[providerID] = append([]string(nil), requesters...)
		}
		layer["trusted_requesters"] = map[string]any{
			"all":         append([]string(nil), cfg.TrustedRequesters.All...),
			"by_provider": byProvider,
		}
	}
	if includeZero || len(cfg.PreferenceInheritance) > 0 {
		inheritance := map[string][]string{}
		for parent, children := range cfg.PreferenceInheritance {
			inheritance[parent] = append([]string(nil), children...)
		}
		layer["preference_inheritance"] = inheritance
	}
	if includeZero || cfg.ActivationTimeoutMS > 0 {
		layer["activation_timeout_ms"] = cfg.ActivationTimeoutMS
	}
	if includeZero || cfg.DynamicProviders.ClientIDMetadataURL != "" {
		layer["dynamic_providers"] = map[string]any{
			"client_id_metadata_url": cfg.DynamicProviders.ClientIDMetadataURL,
		}
	}
	return layer
}
