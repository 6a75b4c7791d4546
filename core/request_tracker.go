package core

import (
	"sync"
	"time"
)

// SignInRequest is a deferred "this requester wants a session" marker,
// recorded when a silent lookup finds nothing and the requester declined to
// drive an interactive flow.
type SignInRequest struct {
	ProviderID    string
	Request       ScopeRequest
	RequesterID   string
	RequesterName string
	RequestedAt   time.Time
}

// AccessRequest is a deferred "this requester wants access to an existing
// account" marker, recorded when sessions exist but the requester has no
// grant yet.
type AccessRequest struct {
	ProviderID    string
	RequesterID   string
	RequesterName string
	// PossibleSessionIDs are the sessions the request could be satisfied
	// with, captured at record time and pruned as sessions disappear.
	PossibleSessionIDs []string
	RequestedAt        time.Time
}

type RequestsChangeEvent struct {
	ProviderID string
}

// RequestTracker keeps the pending sign-in and access requests that back
// badge counts and account-menu entries. State is process local; requests
// are re-recorded on the next silent lookup after a restart.
type RequestTracker struct {
	mu       sync.Mutex
	registry Registry
	// signIns is keyed providerID -> request key -> requesterID.
	signIns map[string]map[string]map[string]SignInRequest
	// deferredSignIns holds sign-ins against declared-but-inactive
	// providers until the provider registers; same keying as signIns.
	deferredSignIns map[string]map[string]map[string]SignInRequest
	// accesses is keyed providerID -> requesterID.
	accesses map[string]map[string]AccessRequest
	changes  *emitter[RequestsChangeEvent]
	now      func() time.Time
}

func NewRequestTracker() *RequestTracker {
	return &RequestTracker{
		signIns:         map[string]map[string]map[string]SignInRequest{},
		deferredSignIns: map[string]map[string]map[string]SignInRequest{},
		accesses:        map[string]map[string]AccessRequest{},
		changes:         newEmitter[RequestsChangeEvent](),
		now:             time.Now,
	}
}

// BindRegistry teaches the tracker which providers are live. With a bound
// registry, a sign-in request against a declared-but-inactive provider is
// held back and recorded once the provider registers.
func (t *RequestTracker) BindRegistry(registry Registry) Unsubscribe {
	t.mu.Lock()
	t.registry = registry
	t.mu.Unlock()
	return registry.OnDidRegister(func(info ProviderInfo) {
		t.HandleProviderRegistered(info.ID)
	})
}

// RequestNewSession registers a pending sign-in. Repeats from the same
// requester for the same provider and scope shape collapse into one entry.
// Requests against a declared-but-inactive provider wait for registration.
func (t *RequestTracker) RequestNewSession(providerID string, request ScopeRequest, requesterID, requesterName string) {
	if t.awaitingRegistration(providerID) {
		t.deferNewSession(providerID, request, requesterID, requesterName)
		return
	}
	key := request.Key()
	t.mu.Lock()
	perProvider := t.signIns[providerID]
	if perProvider == nil {
		perProvider = map[string]map[string]SignInRequest{}
		t.signIns[providerID] = perProvider
	}
	perKey := perProvider[key]
	if perKey == nil {
		perKey = map[string]SignInRequest{}
		perProvider[key] = perKey
	}
	if _, exists := perKey[requesterID]; exists {
		t.mu.Unlock()
		return
	}
	perKey[requesterID] = SignInRequest{
		ProviderID:    providerID,
		Request:       request,
		RequesterID:   requesterID,
		RequesterName: requesterName,
		RequestedAt:   t.now(),
	}
	t.mu.Unlock()
	t.changes.Emit(RequestsChangeEvent{ProviderID: providerID})
}

func (t *RequestTracker) awaitingRegistration(providerID string) bool {
	t.mu.Lock()
	registry := t.registry
	t.mu.Unlock()
	if registry == nil {
		return false
	}
	if _, err := registry.Get(providerID); err == nil {
		return false
	}
	for _, meta := range registry.DeclaredProviders() {
		if meta.ID == providerID {
			return true
		}
	}
	return false
}

func (t *RequestTracker) deferNewSession(providerID string, request ScopeRequest, requesterID, requesterName string) {
	key := request.Key()
	t.mu.Lock()
	defer t.mu.Unlock()
	perProvider := t.deferredSignIns[providerID]
	if perProvider == nil {
		perProvider = map[string]map[string]SignInRequest{}
		t.deferredSignIns[providerID] = perProvider
	}
	perKey := perProvider[key]
	if perKey == nil {
		perKey = map[string]SignInRequest{}
		perProvider[key] = perKey
	}
	if _, exists := perKey[requesterID]; exists {
		return
	}
	perKey[requesterID] = SignInRequest{
		ProviderID:    providerID,
		Request:       request,
		RequesterID:   requesterID,
		RequesterName: requesterName,
		RequestedAt:   t.now(),
	}
}

// HandleProviderRegistered records the sign-ins that were waiting on the
// provider's registration.
func (t *RequestTracker) HandleProviderRegistered(providerID string) {
	t.mu.Lock()
	deferred := t.deferredSignIns[providerID]
	delete(t.deferredSignIns, providerID)
	if len(deferred) == 0 {
		t.mu.Unlock()
		return
	}
	perProvider := t.signIns[providerID]
	if perProvider == nil {
		perProvider = map[string]map[string]SignInRequest{}
		t.signIns[providerID] = perProvider
	}
	recorded := false
	for key, perKey := range deferred {
		target := perProvider[key]
		if target == nil {
			target = map[string]SignInRequest{}
			perProvider[key] = target
		}
		for requesterID, request := range perKey {
			if _, exists := target[requesterID]; exists {
				continue
			}
			target[requesterID] = request
			recorded = true
		}
	}
	t.mu.Unlock()
	if recorded {
		t.changes.Emit(RequestsChangeEvent{ProviderID: providerID})
	}
}

// RequestSessionAccess registers a pending access request. One live entry
// per requester per provider; repeats refresh the candidate session list.
func (t *RequestTracker) RequestSessionAccess(providerID, requesterID, requesterName string, sessions []Session) {
	ids := make([]string, 0, len(sessions))
	for _, session := range sessions {
		ids = append(ids, session.ID)
	}
	t.mu.Lock()
	perProvider := t.accesses[providerID]
	if perProvider == nil {
		perProvider = map[string]AccessRequest{}
		t.accesses[providerID] = perProvider
	}
	if existing, exists := perProvider[requesterID]; exists {
		existing.PossibleSessionIDs = ids
		perProvider[requesterID] = existing
		t.mu.Unlock()
		return
	}
	perProvider[requesterID] = AccessRequest{
		ProviderID:         providerID,
		RequesterID:        requesterID,
		RequesterName:      requesterName,
		PossibleSessionIDs: ids,
		RequestedAt:        t.now(),
	}
	t.mu.Unlock()
	t.changes.Emit(RequestsChangeEvent{ProviderID: providerID})
}

func (t *RequestTracker) SignInRequests(providerID string) []SignInRequest {
	t.mu.Lock()
	defer t.mu.Unlock()
	var requests []SignInRequest
	for _, perKey := range t.signIns[providerID] {
		for _, request := range perKey {
			requests = append(requests, request)
		}
	}
	return requests
}

func (t *RequestTracker) AccessRequests(providerID string) []AccessRequest {
	t.mu.Lock()
	defer t.mu.Unlock()
	var requests []AccessRequest
	for _, request := range t.accesses[providerID] {
		requests = append(requests, request)
	}
	return requests
}

// PendingCount totals pending requests across all providers; it feeds the
// host's badge UI.
func (t *RequestTracker) PendingCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	count := 0
	for _, perProvider := range t.accesses {
		count += len(perProvider)
	}
	for _, perProvider := range t.signIns {
		for _, perKey := range perProvider {
			count += len(perKey)
		}
	}
	return count
}

// HandleSessionsChange reconciles pending requests against a provider's
// session change: added sessions cancel scope-matching sign-ins, removed
// sessions are pruned from access-request candidate lists.
func (t *RequestTracker) HandleSessionsChange(providerID string, change SessionsChange) {
	changed := false
	t.mu.Lock()
	perProvider := t.signIns[providerID]
	for key, perKey := range perProvider {
		var sample ScopeRequest
		for _, request := range perKey {
			sample = request.Request
			break
		}
		for _, session := range change.Added {
			if ScopesMatch(sample.EffectiveScopes(), session.Scopes) {
				delete(perProvider, key)
				changed = true
				break
			}
		}
	}
	if len(perProvider) == 0 {
		delete(t.signIns, providerID)
	}

	if len(change.Removed) > 0 {
		removed := map[string]bool{}
		for _, session := range change.Removed {
			removed[session.ID] = true
		}
		perRequester := t.accesses[providerID]
		for requesterID, request := range perRequester {
			kept := request.PossibleSessionIDs[:0]
			for _, id := range request.PossibleSessionIDs {
				if !removed[id] {
					kept = append(kept, id)
				}
			}
			if len(kept) == len(request.PossibleSessionIDs) {
				continue
			}
			changed = true
			if len(kept) == 0 {
				delete(perRequester, requesterID)
				continue
			}
			request.PossibleSessionIDs = kept
			perRequester[requesterID] = request
		}
		if len(perRequester) == 0 {
			delete(t.accesses, providerID)
		}
	}
	t.mu.Unlock()
	if changed {
		t.changes.Emit(RequestsChangeEvent{ProviderID: providerID})
	}
}

// ResolveAccessRequest clears a requester's pending access request, after a
// grant decision either way.
func (t *RequestTracker) ResolveAccessRequest(providerID, requesterID string) {
	t.mu.Lock()
	perProvider := t.accesses[providerID]
	_, exists := perProvider[requesterID]
	if exists {
		delete(perProvider, requesterID)
		if len(perProvider) == 0 {
			delete(t.accesses, providerID)
		}
	}
	t.mu.Unlock()
	if exists {
		t.changes.Emit(RequestsChangeEvent{ProviderID: providerID})
	}
}

// ResolveSignInRequests clears pending sign-ins satisfied by a newly created
// session's scopes.
func (t *RequestTracker) ResolveSignInRequests(providerID string, sessionScopes []string) {
	t.HandleSessionsChange(providerID, SessionsChange{
		Added: []Session{{Scopes: append([]string(nil), sessionScopes...)}},
	})
}

// ClearProvider drops every pending request for a provider, used when the
// provider unregisters.
func (t *RequestTracker) ClearProvider(providerID string) {
	t.mu.Lock()
	_, hadSignIns := t.signIns[providerID]
	_, hadAccesses := t.accesses[providerID]
	delete(t.signIns, providerID)
	delete(t.deferredSignIns, providerID)
	delete(t.accesses, providerID)
	t.mu.Unlock()
	if hadSignIns || hadAccesses {
		t.changes.Emit(RequestsChangeEvent{ProviderID: providerID})
	}
}

func (t *RequestTracker) OnDidChange(fn func(RequestsChangeEvent)) Unsubscribe {
	return t.changes.Subscribe(fn)
}
