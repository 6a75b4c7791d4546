package core

import (
	"context"
	"sort"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// ProviderRegistry tracks live provider implementations and the declared
// catalog of providers that exist in configuration but have not activated
// yet. It is the single fan-out point for registration and session-change
// events.
type ProviderRegistry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	declared  map[string]DeclaredProvider
	// providerSubs holds the per-provider session-change subscriptions taken
	// out for providers that implement SessionEventSource.
	providerSubs map[string]Unsubscribe
	waiters      map[string][]chan struct{}

	registered   *emitter[ProviderInfo]
	unregistered *emitter[ProviderInfo]
	sessions     *emitter[SessionsChangeEvent]

	logger            Logger
	activator         Activator
	activationTimeout time.Duration
}

type RegistryOption func(*ProviderRegistry)

func RegistryWithLogger(logger Logger) RegistryOption {
	return func(r *ProviderRegistry) {
		r.logger = logger
	}
}

func RegistryWithActivator(activator Activator) RegistryOption {
	return func(r *ProviderRegistry) {
		r.activator = activator
	}
}

func RegistryWithActivationTimeout(timeout time.Duration) RegistryOption {
	return func(r *ProviderRegistry) {
		if timeout > 0 {
			r.activationTimeout = timeout
		}
	}
}

func NewProviderRegistry(options ...RegistryOption) *ProviderRegistry {
	registry := &ProviderRegistry{
		providers:         map[string]Provider{},
		declared:          map[string]DeclaredProvider{},
		providerSubs:      map[string]Unsubscribe{},
		waiters:           map[string][]chan struct{}{},
		registered:        newEmitter[ProviderInfo](),
		unregistered:      newEmitter[ProviderInfo](),
		sessions:          newEmitter[SessionsChangeEvent](),
		activationTimeout: defaultActivationTimeout,
	}
	for _, option := range options {
		if option != nil {
			option(registry)
		}
	}
	return registry
}

func (r *ProviderRegistry) Register(provider Provider) error {
	if provider == nil {
		return newBrokerError("provider is required", goerrors.CategoryBadInput, BrokerErrorBadInput)
	}
	providerID := provider.ID()
	if providerID == "" {
		return newBrokerError("provider id is required", goerrors.CategoryBadInput, BrokerErrorBadInput)
	}

	r.mu.Lock()
	if _, exists := r.providers[providerID]; exists {
		r.mu.Unlock()
		return errProviderDuplicate(providerID)
	}
	r.providers[providerID] = provider
	if source, ok := provider.(SessionEventSource); ok {
		r.providerSubs[providerID] = source.OnSessionsChanged(func(change SessionsChange) {
			r.HandleSessionsChange(providerID, change)
		})
	}
	pending := r.waiters[providerID]
	delete(r.waiters, providerID)
	info := ProviderInfo{ID: providerID, Label: provider.Label()}
	r.mu.Unlock()

	for _, waiter := range pending {
		close(waiter)
	}
	r.registered.Emit(info)
	return nil
}

func (r *ProviderRegistry) Unregister(providerID string) {
	r.unregister(providerID, true)
}

// UnregisterQuietly removes a provider without emitting the unregistration
// event. Used when a provider is being torn down to be replaced in place, so
// observers do not react to a transient gap.
func (r *ProviderRegistry) UnregisterQuietly(providerID string) {
	r.unregister(providerID, false)
}

func (r *ProviderRegistry) unregister(providerID string, emit bool) {
	r.mu.Lock()
	provider, exists := r.providers[providerID]
	if !exists {
		r.mu.Unlock()
		return
	}
	delete(r.providers, providerID)
	unsubscribe := r.providerSubs[providerID]
	delete(r.providerSubs, providerID)
	info := ProviderInfo{ID: providerID, Label: provider.Label()}
	r.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if emit {
		r.unregistered.Emit(info)
	}
}

// RegisterDeclared records a provider that configuration promises will
// activate on demand. Declaring an id twice is a conflict; declaring an id
// that already has a live provider is fine.
func (r *ProviderRegistry) RegisterDeclared(meta DeclaredProvider) error {
	if err := meta.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.declared[meta.ID]; exists {
		return errDeclaredDuplicate(meta.ID)
	}
	r.declared[meta.ID] = meta
	return nil
}

func (r *ProviderRegistry) Get(providerID string) (Provider, error) {
	r.mu.RLock()
	provider, exists := r.providers[providerID]
	r.mu.RUnlock()
	if !exists {
		return nil, errProviderNotRegistered(providerID)
	}
	return provider, nil
}

func (r *ProviderRegistry) ProviderIDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.providers))
	for id := range r.providers {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

func (r *ProviderRegistry) DeclaredProviders() []DeclaredProvider {
	r.mu.RLock()
	declared := make([]DeclaredProvider, 0, len(r.declared))
	for _, meta := range r.declared {
		declared = append(declared, meta)
	}
	r.mu.RUnlock()
	sort.Slice(declared, func(i, j int) bool { return declared[i].ID < declared[j].ID })
	return declared
}

// ResolveForAuthorizationServer finds the provider responsible for an
// authorization server. Live providers win; otherwise a declared provider
// whose globs match is activated and waited on. The boolean reports whether
// any candidate matched at all.
func (r *ProviderRegistry) ResolveForAuthorizationServer(ctx context.Context, serverURI, resourceURI string) (string, bool, error) {
	r.mu.RLock()
	for id, provider := range r.providers {
		if !providerMatchesServer(provider, serverURI, resourceURI) {
			continue
		}
		r.mu.RUnlock()
		return id, true, nil
	}
	var candidates []DeclaredProvider
	for _, meta := range r.declared {
		if _, live := r.providers[meta.ID]; live {
			continue
		}
		for _, glob := range meta.AuthorizationServerGlobs {
			if MatchServerGlob(glob, serverURI) {
				candidates = append(candidates, meta)
				break
			}
		}
	}
	r.mu.RUnlock()
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID < candidates[j].ID })

	// Declared globs are advertisements. Only the activated provider's own
	// authorization-server list decides whether it claims the server, so each
	// candidate is re-checked once live and a mismatch moves on to the next.
	for _, candidate := range candidates {
		if err := r.activateAndWait(ctx, candidate.ID); err != nil {
			return "", true, err
		}
		r.mu.RLock()
		provider, live := r.providers[candidate.ID]
		r.mu.RUnlock()
		if live && providerMatchesServer(provider, serverURI, resourceURI) {
			return candidate.ID, true, nil
		}
	}
	return "", false, nil
}

func (r *ProviderRegistry) activateAndWait(ctx context.Context, providerID string) error {
	ready := r.registrationWaiter(providerID)
	if ready == nil {
		return nil
	}

	if r.activator != nil {
		if err := r.activator.Activate(ctx, providerID); err != nil {
			r.dropWaiter(providerID, ready)
			return err
		}
	}

	// Activation may have completed synchronously.
	select {
	case <-ready:
		return nil
	default:
	}

	timeout := r.activationTimeout
	if timeout <= 0 {
		timeout = defaultActivationTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ready:
		return nil
	case <-timer.C:
		r.dropWaiter(providerID, ready)
		return errActivationTimeout(providerID)
	case <-ctx.Done():
		r.dropWaiter(providerID, ready)
		return ctx.Err()
	}
}

// registrationWaiter returns a channel closed when providerID registers, or
// nil when the provider is already live.
func (r *ProviderRegistry) registrationWaiter(providerID string) chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, live := r.providers[providerID]; live {
		return nil
	}
	ready := make(chan struct{})
	r.waiters[providerID] = append(r.waiters[providerID], ready)
	return ready
}

func (r *ProviderRegistry) dropWaiter(providerID string, ready chan struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pending := r.waiters[providerID]
	for i, waiter := range pending {
		if waiter == ready {
			r.waiters[providerID] = append(pending[:i], pending[i+1:]...)
			break
		}
	}
	if len(r.waiters[providerID]) == 0 {
		delete(r.waiters, providerID)
	}
}

// HandleSessionsChange fans a provider's session change out to registry
// subscribers. Changes for unknown provider ids are dropped.
func (r *ProviderRegistry) HandleSessionsChange(providerID string, change SessionsChange) {
	r.mu.RLock()
	provider, exists := r.providers[providerID]
	r.mu.RUnlock()
	if !exists {
		if r.logger != nil {
			r.logger.Warn("sessions change for unregistered provider", "provider_id", providerID)
		}
		return
	}
	r.sessions.Emit(SessionsChangeEvent{
		ProviderID:    providerID,
		ProviderLabel: provider.Label(),
		Change:        change,
	})
}

func (r *ProviderRegistry) OnDidRegister(fn func(ProviderInfo)) Unsubscribe {
	return r.registered.Subscribe(fn)
}

func (r *ProviderRegistry) OnDidUnregister(fn func(ProviderInfo)) Unsubscribe {
	return r.unregistered.Subscribe(fn)
}

func (r *ProviderRegistry) OnSessionsChanged(fn func(SessionsChangeEvent)) Unsubscribe {
	return r.sessions.Subscribe(fn)
}

func providerMatchesServer(provider Provider, serverURI, resourceURI string) bool {
	if resourceURI != "" && provider.ResourceServer() != "" &&
		!ServerURIsMatch(provider.ResourceServer(), resourceURI) {
		return false
	}
	for _, candidate := range provider.AuthorizationServers() {
		if MatchServerGlob(candidate, serverURI) {
			return true
		}
	}
	return false
}
