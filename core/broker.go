package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

// mismatchRetryLimit bounds the create-retry loop when a provider signs into
// a different account than the one requested.
const mismatchRetryLimit = 3

// Service is the session broker. It owns the decision policy between
// requesters and providers: when to reuse a session, when to prompt, what to
// persist, and what to defer as a pending request. All provider calls flow
// through the per-provider operation queue.
type Service struct {
	config            Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorFactory      ErrorFactory
	errorMapper       ErrorMapper
	persistenceClient any
	repositoryFactory any
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver

	registry Registry
	queue    *OperationQueue
	prompter Prompter

	secretStore   SecretStore
	settingsStore SettingsStore

	accessStore     *AccessControlStore
	preferenceStore *PreferenceStore
	usageTracker    *UsageTracker
	requestTracker  *RequestTracker
	dynamicStore    *DynamicProviderStore

	delegatesMu sync.Mutex
	delegates   []HostDelegate

	// usageReported keys provider "/" requester pairs whose first successful
	// session grant has already been counted.
	usageMu       sync.Mutex
	usageReported map[string]bool

	subscriptions []Unsubscribe
}

type ServiceDependencies struct {
	Logger            Logger
	LoggerProvider    LoggerProvider
	MetricsRecorder   MetricsRecorder
	ErrorFactory      ErrorFactory
	ErrorMapper       ErrorMapper
	PersistenceClient any
	RepositoryFactory any
	ConfigProvider    ConfigProvider
	OptionsResolver   OptionsResolver
	Registry          Registry
	Queue             *OperationQueue
	Prompter          Prompter
	SecretStore       SecretStore
	SettingsStore     SettingsStore
	AccessStore       *AccessControlStore
	PreferenceStore   *PreferenceStore
	UsageTracker      *UsageTracker
	RequestTracker    *RequestTracker
	DynamicStore      *DynamicProviderStore
}

func NewService(cfg Config, options ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, option := range options {
		if option == nil {
			continue
		}
		option(&builder)
	}

	provider, logger := glog.Resolve("authbroker", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("authbroker"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if (builder.settingsStore == nil || builder.secretStore == nil) && builder.repositoryFactory != nil {
		if storeFactory, ok := builder.repositoryFactory.(RepositoryStoreFactory); ok {
			storeProvider, buildErr := storeFactory.BuildStores(builder.persistenceClient)
			if buildErr != nil {
				return nil, mapBuildError(builder.errorMapper, buildErr)
			}
			if storeProvider != nil {
				if builder.settingsStore == nil {
					builder.settingsStore = storeProvider.SettingsStore()
				}
				if builder.secretStore == nil {
					builder.secretStore = storeProvider.SecretStore()
				}
			}
		} else if storeProvider, ok := builder.repositoryFactory.(StoreProvider); ok {
			if builder.settingsStore == nil {
				builder.settingsStore = storeProvider.SettingsStore()
			}
			if builder.secretStore == nil {
				builder.secretStore = storeProvider.SecretStore()
			}
		}
	}
	if builder.settingsStore == nil {
		builder.settingsStore = NewMemorySettingsStore()
	}
	if builder.secretStore == nil {
		builder.secretStore = NewMemorySecretStore()
	}

	if builder.registry == nil {
		builder.registry = NewProviderRegistry(
			RegistryWithLogger(logger),
			RegistryWithActivator(builder.activator),
			RegistryWithActivationTimeout(finalConfig.activationTimeout()),
		)
	}
	if builder.queue == nil {
		builder.queue = NewOperationQueue()
	}
	if builder.accessStore == nil {
		builder.accessStore = NewAccessControlStore(builder.settingsStore, finalConfig.TrustedRequesters, logger)
	}
	if builder.preferenceStore == nil {
		builder.preferenceStore = NewPreferenceStore(builder.settingsStore, finalConfig.PreferenceInheritance, logger)
	}
	if builder.usageTracker == nil {
		builder.usageTracker = NewUsageTracker(builder.settingsStore, logger)
	}
	if builder.requestTracker == nil {
		builder.requestTracker = NewRequestTracker()
	}
	if builder.dynamicStore == nil {
		builder.dynamicStore = NewDynamicProviderStore(builder.secretStore, builder.settingsStore, logger)
	}

	service := &Service{
		config:            finalConfig,
		logger:            logger,
		loggerProvider:    provider,
		metricsRecorder:   builder.metricsRecorder,
		errorFactory:      builder.errorFactory,
		errorMapper:       builder.errorMapper,
		persistenceClient: builder.persistenceClient,
		repositoryFactory: builder.repositoryFactory,
		configProvider:    builder.configProvider,
		optionsResolver:   builder.optionsResolver,
		registry:          builder.registry,
		queue:             builder.queue,
		prompter:          builder.prompter,
		secretStore:       builder.secretStore,
		settingsStore:     builder.settingsStore,
		accessStore:       builder.accessStore,
		preferenceStore:   builder.preferenceStore,
		usageTracker:      builder.usageTracker,
		requestTracker:    builder.requestTracker,
		dynamicStore:      builder.dynamicStore,
		delegates:         append([]HostDelegate(nil), builder.delegates...),
		usageReported:     map[string]bool{},
	}

	service.subscriptions = append(service.subscriptions,
		service.requestTracker.BindRegistry(service.registry),
		service.registry.OnSessionsChanged(func(event SessionsChangeEvent) {
			service.requestTracker.HandleSessionsChange(event.ProviderID, event.Change)
		}),
		service.registry.OnDidUnregister(func(info ProviderInfo) {
			service.requestTracker.ClearProvider(info.ID)
		}),
	)

	return service, nil
}

func Setup(cfg Config, options ...Option) (*Service, error) {
	return NewService(cfg, options...)
}

// Close tears down event subscriptions. Pending queue operations run to
// completion.
func (s *Service) Close() {
	if s == nil {
		return
	}
	for _, unsubscribe := range s.subscriptions {
		unsubscribe()
	}
	s.subscriptions = nil
	if s.dynamicStore != nil {
		s.dynamicStore.Close()
	}
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:            s.logger,
		LoggerProvider:    s.loggerProvider,
		MetricsRecorder:   s.metricsRecorder,
		ErrorFactory:      s.errorFactory,
		ErrorMapper:       s.errorMapper,
		PersistenceClient: s.persistenceClient,
		RepositoryFactory: s.repositoryFactory,
		ConfigProvider:    s.configProvider,
		OptionsResolver:   s.optionsResolver,
		Registry:          s.registry,
		Queue:             s.queue,
		Prompter:          s.prompter,
		SecretStore:       s.secretStore,
		SettingsStore:     s.settingsStore,
		AccessStore:       s.accessStore,
		PreferenceStore:   s.preferenceStore,
		UsageTracker:      s.usageTracker,
		RequestTracker:    s.requestTracker,
		DynamicStore:      s.dynamicStore,
	}
}

func (s *Service) Registry() Registry {
	if s == nil {
		return nil
	}
	return s.registry
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) resolveProvider(providerID string) (Provider, error) {
	if s == nil || s.registry == nil {
		return nil, s.mapError(fmt.Errorf("core: registry unavailable"))
	}
	provider, err := s.registry.Get(strings.TrimSpace(providerID))
	if err != nil {
		return nil, s.mapError(err)
	}
	return provider, nil
}

// GetSession resolves a requester's session request against a provider.
// found=false with a nil error means no session and nothing more to do right
// now; pending requests may have been recorded.
func (s *Service) GetSession(
	ctx context.Context,
	providerID string,
	request ScopeRequest,
	requesterID string,
	requesterName string,
	opts SessionOptions,
) (session Session, found bool, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"provider_id":  providerID,
		"requester_id": requesterID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "get_session", err, fields)
	}()

	if err = validateSessionOptions(opts); err != nil {
		err = s.mapError(err)
		return Session{}, false, err
	}
	if err = request.Validate(); err != nil {
		err = s.mapError(err)
		return Session{}, false, err
	}

	if opts.ClearSessionPreference {
		if err = s.preferenceStore.RemoveAccountPreference(ctx, requesterID, providerID); err != nil {
			err = s.mapError(err)
			return Session{}, false, err
		}
	}

	provider, err := s.resolveProvider(providerID)
	if err != nil {
		return Session{}, false, err
	}
	challengeProvider, err := s.checkCapabilities(provider, request, opts)
	if err != nil {
		return Session{}, false, err
	}

	candidates, err := s.fetchSessions(ctx, provider, challengeProvider, request, opts)
	if err != nil {
		err = s.mapError(err)
		return Session{}, false, err
	}

	matching, err := s.matchingSession(ctx, providerID, requesterID, candidates, opts)
	if err != nil {
		err = s.mapError(err)
		return Session{}, false, err
	}

	// Reuse fast path.
	if !opts.ForceNewSession && len(candidates) > 0 {
		if matching != nil {
			access, accessErr := s.accessStore.IsAllowed(ctx, providerID, matching.Account.Label, requesterID)
			if accessErr != nil {
				err = s.mapError(accessErr)
				return Session{}, false, err
			}
			if access == AccessAllowed {
				if err = s.noteSessionUsed(ctx, providerID, *matching, request, requesterID, requesterName); err != nil {
					err = s.mapError(err)
					return Session{}, false, err
				}
				return *matching, true, nil
			}
		} else if !provider.SupportsMultipleAccounts() {
			sole := candidates[0]
			access, accessErr := s.accessStore.IsAllowed(ctx, providerID, sole.Account.Label, requesterID)
			if accessErr != nil {
				err = s.mapError(accessErr)
				return Session{}, false, err
			}
			if access == AccessAllowed {
				if err = s.noteSessionUsed(ctx, providerID, sole, request, requesterID, requesterName); err != nil {
					err = s.mapError(err)
					return Session{}, false, err
				}
				return sole, true, nil
			}
		}
	}

	if opts.CreateIfNone || opts.ForceNewSession {
		session, err = s.interactiveSession(ctx, provider, challengeProvider, request, requesterID, requesterName, opts, candidates, matching)
		if err != nil {
			return Session{}, false, err
		}
		return session, true, nil
	}

	// No preference recorded at all: any allowed candidate serves.
	if matching == nil && opts.Account == nil && len(candidates) > 0 {
		preferred, prefErr := s.preferenceStore.AccountPreference(ctx, requesterID, providerID)
		if prefErr != nil {
			err = s.mapError(prefErr)
			return Session{}, false, err
		}
		if preferred == "" {
			for _, candidate := range candidates {
				access, accessErr := s.accessStore.IsAllowed(ctx, providerID, candidate.Account.Label, requesterID)
				if accessErr != nil {
					err = s.mapError(accessErr)
					return Session{}, false, err
				}
				if access == AccessAllowed {
					if err = s.noteSessionUsed(ctx, providerID, candidate, request, requesterID, requesterName); err != nil {
						err = s.mapError(err)
						return Session{}, false, err
					}
					return candidate, true, nil
				}
			}
		}
	}

	if !opts.Silent {
		if len(candidates) > 0 {
			s.requestTracker.RequestSessionAccess(providerID, requesterID, requesterName, candidates)
		} else {
			s.requestTracker.RequestNewSession(providerID, request, requesterID, requesterName)
		}
	}

	return Session{}, false, nil
}

func validateSessionOptions(opts SessionOptions) error {
	switch {
	case opts.ForceNewSession && opts.CreateIfNone:
		return errInvalidOptionCombination("forceNewSession", "createIfNone")
	case opts.ForceNewSession && opts.Silent:
		return errInvalidOptionCombination("forceNewSession", "silent")
	case opts.CreateIfNone && opts.Silent:
		return errInvalidOptionCombination("createIfNone", "silent")
	}
	return nil
}

// checkCapabilities enforces the provider-shape preconditions before any
// work is enqueued.
func (s *Service) checkCapabilities(provider Provider, request ScopeRequest, opts SessionOptions) (ChallengeProvider, error) {
	var challengeProvider ChallengeProvider
	if request.IsChallenge() {
		capable, ok := provider.(ChallengeProvider)
		if !ok {
			return nil, s.mapError(errChallengesUnsupported(provider.ID()))
		}
		challengeProvider = capable
	}
	if opts.AuthorizationServer != "" && !providerMatchesServer(provider, opts.AuthorizationServer, "") {
		return nil, s.mapError(errServerUnsupported(provider.ID(), opts.AuthorizationServer))
	}
	return challengeProvider, nil
}

func (s *Service) fetchSessions(
	ctx context.Context,
	provider Provider,
	challengeProvider ChallengeProvider,
	request ScopeRequest,
	opts SessionOptions,
) ([]Session, error) {
	providerOpts := ProviderSessionOptions{
		Account:             opts.Account,
		AuthorizationServer: opts.AuthorizationServer,
	}
	return EnqueueOperation(ctx, s.queue, provider.ID(), func(ctx context.Context) ([]Session, error) {
		if challengeProvider != nil {
			return challengeProvider.SessionsFromChallenges(ctx, *request.Challenge, providerOpts)
		}
		return provider.Sessions(ctx, request.Scopes, providerOpts)
	})
}

// matchingSession picks the candidate the requester should see: the first
// one when an explicit account was requested (the provider already filtered
// by account), otherwise the one matching the stored account preference.
func (s *Service) matchingSession(ctx context.Context, providerID, requesterID string, candidates []Session, opts SessionOptions) (*Session, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	if opts.Account != nil {
		session := candidates[0]
		return &session, nil
	}
	preferred, err := s.preferenceStore.AccountPreference(ctx, requesterID, providerID)
	if err != nil {
		return nil, err
	}
	if preferred == "" {
		return nil, nil
	}
	for _, candidate := range candidates {
		if candidate.Account.Label == preferred {
			session := candidate
			return &session, nil
		}
	}
	return nil, nil
}

func (s *Service) interactiveSession(
	ctx context.Context,
	provider Provider,
	challengeProvider ChallengeProvider,
	request ScopeRequest,
	requesterID string,
	requesterName string,
	opts SessionOptions,
	candidates []Session,
	matching *Session,
) (Session, error) {
	if s.prompter == nil {
		return Session{}, s.mapError(fmt.Errorf("core: prompter is required for interactive sessions"))
	}
	providerID := provider.ID()
	recreating := opts.ForceNewSession && len(candidates) > 0

	access := AccessUnknown
	if matching != nil {
		var err error
		access, err = s.accessStore.IsAllowed(ctx, providerID, matching.Account.Label, requesterID)
		if err != nil {
			return Session{}, s.mapError(err)
		}
	}

	if access != AccessAllowed || recreating {
		confirmed, err := s.prompter.ConfirmLogin(ctx, LoginConfirmation{
			ProviderID:    providerID,
			ProviderLabel: provider.Label(),
			RequesterName: requesterName,
			Recreating:    recreating,
			Options:       opts.Prompt,
		})
		if err != nil {
			return Session{}, s.mapError(err)
		}
		if !confirmed {
			return Session{}, s.mapError(errConsentDeclined("user did not consent to login"))
		}
	}

	account := opts.Account
	if recreating && account == nil && matching != nil {
		account = &matching.Account
	}

	// Multi-account disambiguation, only when nothing pinned the account.
	if !opts.ForceNewSession && account == nil && provider.SupportsMultipleAccounts() && len(candidates) > 0 {
		accounts := dedupeAccounts(candidates)
		pick, err := s.prompter.PickSession(ctx, SessionPickRequest{
			ProviderID:    providerID,
			ProviderLabel: provider.Label(),
			RequesterID:   requesterID,
			RequesterName: requesterName,
			Request:       request,
			Sessions:      candidates,
			Accounts:      accounts,
		})
		if err != nil {
			return Session{}, s.mapError(err)
		}
		switch {
		case pick.Session != nil:
			if err := s.grantAndRemember(ctx, providerID, *pick.Session, request, requesterID, requesterName); err != nil {
				return Session{}, s.mapError(err)
			}
			return *pick.Session, nil
		case pick.Account != nil:
			account = pick.Account
		case pick.Other:
			account = nil
		default:
			return Session{}, s.mapError(errConsentDeclined("user did not pick an account"))
		}
	}

	created, err := s.createWithMismatchRetry(ctx, provider, challengeProvider, request, opts, account)
	if err != nil {
		return Session{}, s.mapError(err)
	}

	if err := s.grantAndRemember(ctx, providerID, created, request, requesterID, requesterName); err != nil {
		return Session{}, s.mapError(err)
	}
	return created, nil
}

// createWithMismatchRetry drives session creation, re-prompting when the
// provider lands in a different account than requested. The user choosing to
// keep what they signed into ends the loop.
func (s *Service) createWithMismatchRetry(
	ctx context.Context,
	provider Provider,
	challengeProvider ChallengeProvider,
	request ScopeRequest,
	opts SessionOptions,
	account *Account,
) (Session, error) {
	providerOpts := ProviderSessionOptions{
		Account:             account,
		AuthorizationServer: opts.AuthorizationServer,
	}
	var created Session
	for attempt := 0; attempt < mismatchRetryLimit; attempt++ {
		var err error
		created, err = EnqueueOperation(ctx, s.queue, provider.ID(), func(ctx context.Context) (Session, error) {
			if challengeProvider != nil {
				return challengeProvider.NewSessionFromChallenges(ctx, *request.Challenge, providerOpts)
			}
			return provider.NewSession(ctx, request.Scopes, providerOpts)
		})
		if err != nil {
			return Session{}, err
		}
		if account == nil || created.Account.Label == account.Label {
			return created, nil
		}
		decision, err := s.prompter.ConfirmMismatchedAccount(ctx, created.Account.Label, account.Label)
		if err != nil {
			return Session{}, err
		}
		if decision == MismatchKeepChosen {
			return created, nil
		}
	}
	return created, nil
}

// grantAndRemember records the side effects of a session being handed to a
// requester: access grant, preference upserts, pending-request resolution,
// and usage.
func (s *Service) grantAndRemember(ctx context.Context, providerID string, session Session, request ScopeRequest, requesterID, requesterName string) error {
	if err := s.accessStore.UpdateEntries(ctx, providerID, session.Account.Label, []AccessEntry{{
		RequesterID: requesterID,
		Name:        requesterName,
		Allowed:     true,
	}}); err != nil {
		return err
	}
	s.requestTracker.ResolveAccessRequest(providerID, requesterID)
	s.requestTracker.ResolveSignInRequests(providerID, session.Scopes)
	if err := s.preferenceStore.UpdateAccountPreference(ctx, requesterID, providerID, session.Account.Label); err != nil {
		return err
	}
	if err := s.preferenceStore.UpdateSessionPreference(ctx, providerID, requesterID, request, session.ID); err != nil {
		return err
	}
	return s.noteSessionUsed(ctx, providerID, session, request, requesterID, requesterName)
}

// noteSessionUsed tracks usage and counts the first grant per
// (provider, requester) pair once per process.
func (s *Service) noteSessionUsed(ctx context.Context, providerID string, session Session, request ScopeRequest, requesterID, requesterName string) error {
	if err := s.usageTracker.AddAccountUsage(ctx, providerID, session.Account.Label, request.EffectiveScopes(), requesterID, requesterName); err != nil {
		return err
	}
	key := providerID + "/" + requesterID
	s.usageMu.Lock()
	first := !s.usageReported[key]
	if first {
		s.usageReported[key] = true
	}
	s.usageMu.Unlock()
	if first {
		s.recordCounter(ctx, "authbroker.requester_signed_in.total", 1, map[string]string{
			"provider_id": providerID,
		})
	}
	return nil
}

func dedupeAccounts(sessions []Session) []Account {
	seen := map[string]bool{}
	var accounts []Account
	for _, session := range sessions {
		if seen[session.Account.Label] {
			continue
		}
		seen[session.Account.Label] = true
		accounts = append(accounts, session.Account)
	}
	return accounts
}

// CreateSession drives provider session creation directly, without the
// consent and preference machinery. Hosts use it for provider-initiated
// flows where the user is already in the loop.
func (s *Service) CreateSession(ctx context.Context, providerID string, request ScopeRequest, opts SessionOptions) (session Session, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"provider_id": providerID}
	defer func() {
		s.observeOperation(ctx, startedAt, "create_session", err, fields)
	}()

	if err = request.Validate(); err != nil {
		err = s.mapError(err)
		return Session{}, err
	}
	provider, err := s.resolveProvider(providerID)
	if err != nil {
		return Session{}, err
	}
	challengeProvider, err := s.checkCapabilities(provider, request, opts)
	if err != nil {
		return Session{}, err
	}
	session, err = s.createWithMismatchRetry(ctx, provider, challengeProvider, request, opts, opts.Account)
	if err != nil {
		err = s.mapError(err)
		return Session{}, err
	}
	return session, nil
}

func (s *Service) RemoveSession(ctx context.Context, providerID, sessionID string) (err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"provider_id": providerID, "session_id": sessionID}
	defer func() {
		s.observeOperation(ctx, startedAt, "remove_session", err, fields)
	}()

	provider, err := s.resolveProvider(providerID)
	if err != nil {
		return err
	}
	err = s.queue.Do(ctx, providerID, func(ctx context.Context) error {
		return provider.RemoveSession(ctx, sessionID)
	})
	if err != nil {
		err = s.mapError(err)
	}
	return err
}

// GetAccounts lists the distinct accounts currently signed in on a
// provider, deduped by label across sessions.
func (s *Service) GetAccounts(ctx context.Context, providerID string) (accounts []Account, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"provider_id": providerID}
	defer func() {
		s.observeOperation(ctx, startedAt, "get_accounts", err, fields)
	}()

	provider, err := s.resolveProvider(providerID)
	if err != nil {
		return nil, err
	}
	sessions, err := EnqueueOperation(ctx, s.queue, providerID, func(ctx context.Context) ([]Session, error) {
		return provider.Sessions(ctx, nil, ProviderSessionOptions{})
	})
	if err != nil {
		err = s.mapError(err)
		return nil, err
	}
	return dedupeAccounts(sessions), nil
}

// SignOutAccount removes every session for an account and forgets the
// account's persisted state: access entries, usage history, and any account
// preferences pointing at it.
func (s *Service) SignOutAccount(ctx context.Context, providerID, accountLabel string) (err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"provider_id": providerID, "account": accountLabel}
	defer func() {
		s.observeOperation(ctx, startedAt, "sign_out_account", err, fields)
	}()

	provider, err := s.resolveProvider(providerID)
	if err != nil {
		return err
	}
	err = s.queue.Do(ctx, providerID, func(ctx context.Context) error {
		sessions, err := provider.Sessions(ctx, nil, ProviderSessionOptions{})
		if err != nil {
			return err
		}
		removed := 0
		for _, session := range sessions {
			if session.Account.Label != accountLabel {
				continue
			}
			if err := provider.RemoveSession(ctx, session.ID); err != nil {
				return err
			}
			removed++
		}
		if removed == 0 {
			return errNoAccounts(providerID)
		}
		return nil
	})
	if err != nil {
		err = s.mapError(err)
		return err
	}

	if err = s.accessStore.RemoveEntries(ctx, providerID, accountLabel); err != nil {
		err = s.mapError(err)
		return err
	}
	if err = s.usageTracker.RemoveAccountUsages(ctx, providerID, accountLabel); err != nil {
		err = s.mapError(err)
		return err
	}
	requesters, err := s.preferenceStore.RequestersPreferringAccount(ctx, providerID, accountLabel)
	if err != nil {
		err = s.mapError(err)
		return err
	}
	for _, requesterID := range requesters {
		if err = s.preferenceStore.RemoveAccountPreference(ctx, requesterID, providerID); err != nil {
			err = s.mapError(err)
			return err
		}
	}
	return nil
}

// ClearPreference drops a requester's remembered account choice for a
// provider, so the next session request prompts again instead of silently
// reusing the previous account.
func (s *Service) ClearPreference(ctx context.Context, requesterID, providerID string) (err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"provider_id": providerID, "requester_id": requesterID}
	defer func() {
		s.observeOperation(ctx, startedAt, "clear_preference", err, fields)
	}()

	if strings.TrimSpace(requesterID) == "" {
		err = s.mapError(fmt.Errorf("core: requester id is required"))
		return err
	}
	if strings.TrimSpace(providerID) == "" {
		err = s.mapError(fmt.Errorf("core: provider id is required"))
		return err
	}
	if err = s.preferenceStore.RemoveAccountPreference(ctx, requesterID, providerID); err != nil {
		err = s.mapError(err)
		return err
	}
	return nil
}

// GetOrActivateProviderIDForServer resolves which provider serves an
// authorization server, activating a declared provider when needed.
func (s *Service) GetOrActivateProviderIDForServer(ctx context.Context, serverURI, resourceURI string) (providerID string, found bool, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"authorization_server": serverURI}
	defer func() {
		s.observeOperation(ctx, startedAt, "resolve_provider_for_server", err, fields)
	}()

	providerID, found, err = s.registry.ResolveForAuthorizationServer(ctx, serverURI, resourceURI)
	if err != nil {
		err = s.mapError(err)
		return "", found, err
	}
	return providerID, found, nil
}
