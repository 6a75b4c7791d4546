package core

import (
	"context"
	"fmt"
	"sync"
	"testing"
)

type fakeProvider struct {
	id       string
	label    string
	multi    bool
	servers  []string
	resource string

	mu       sync.Mutex
	sessions []Session
	nextID   int
	// accountQueue is consumed by NewSession when no account was requested;
	// empty falls back to defaultAccount.
	accountQueue   []Account
	defaultAccount Account
	// honorRequestedAccount controls whether NewSession signs into the
	// requested account or whatever the queue says, which is how mismatch
	// behavior is simulated.
	honorRequestedAccount bool

	sessionsErr error
	createErr   error
	removeErr   error

	sessionsCalls int
	createCalls   int

	sessionEvents *emitter[SessionsChange]
}

func newFakeProvider(id string, multi bool) *fakeProvider {
	return &fakeProvider{
		id:                    id,
		label:                 id + " provider",
		multi:                 multi,
		defaultAccount:        Account{ID: "acct-1", Label: "user@example.com"},
		honorRequestedAccount: true,
		sessionEvents:         newEmitter[SessionsChange](),
	}
}

func (p *fakeProvider) ID() string                     { return p.id }
func (p *fakeProvider) Label() string                  { return p.label }
func (p *fakeProvider) SupportsMultipleAccounts() bool { return p.multi }
func (p *fakeProvider) AuthorizationServers() []string { return p.servers }
func (p *fakeProvider) ResourceServer() string         { return p.resource }

func (p *fakeProvider) OnSessionsChanged(fn func(SessionsChange)) Unsubscribe {
	return p.sessionEvents.Subscribe(fn)
}

func (p *fakeProvider) seedSession(account Account, scopes ...string) Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	session := Session{
		ID:          fmt.Sprintf("%s-session-%d", p.id, p.nextID),
		AccessToken: fmt.Sprintf("%s-token-%d", p.id, p.nextID),
		Account:     account,
		Scopes:      append([]string(nil), scopes...),
	}
	p.sessions = append(p.sessions, session)
	return session
}

func (p *fakeProvider) Sessions(_ context.Context, scopes []string, opts ProviderSessionOptions) ([]Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessionsCalls++
	if p.sessionsErr != nil {
		return nil, p.sessionsErr
	}
	var matched []Session
	for _, session := range p.sessions {
		if scopes != nil && !ScopesMatch(session.Scopes, scopes) {
			continue
		}
		if opts.Account != nil && session.Account.Label != opts.Account.Label {
			continue
		}
		matched = append(matched, session)
	}
	return matched, nil
}

func (p *fakeProvider) NewSession(_ context.Context, scopes []string, opts ProviderSessionOptions) (Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.createCalls++
	if p.createErr != nil {
		return Session{}, p.createErr
	}
	var account Account
	switch {
	case len(p.accountQueue) > 0:
		account = p.accountQueue[0]
		p.accountQueue = p.accountQueue[1:]
	case opts.Account != nil && p.honorRequestedAccount:
		account = *opts.Account
	default:
		account = p.defaultAccount
	}
	p.nextID++
	session := Session{
		ID:          fmt.Sprintf("%s-session-%d", p.id, p.nextID),
		AccessToken: fmt.Sprintf("%s-token-%d", p.id, p.nextID),
		Account:     account,
		Scopes:      append([]string(nil), scopes...),
	}
	p.sessions = append(p.sessions, session)
	return session, nil
}

func (p *fakeProvider) RemoveSession(_ context.Context, sessionID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.removeErr != nil {
		return p.removeErr
	}
	for i, session := range p.sessions {
		if session.ID == sessionID {
			p.sessions = append(p.sessions[:i], p.sessions[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("session %q not found", sessionID)
}

// fakeChallengeProvider upgrades fakeProvider with the challenge surface,
// resolving challenges through their fallback scopes.
type fakeChallengeProvider struct {
	*fakeProvider
	challengeCalls int
}

func newFakeChallengeProvider(id string, multi bool) *fakeChallengeProvider {
	return &fakeChallengeProvider{fakeProvider: newFakeProvider(id, multi)}
}

func (p *fakeChallengeProvider) SessionsFromChallenges(ctx context.Context, challenge Challenge, opts ProviderSessionOptions) ([]Session, error) {
	p.challengeCalls++
	return p.Sessions(ctx, challenge.FallbackScopes, opts)
}

func (p *fakeChallengeProvider) NewSessionFromChallenges(ctx context.Context, challenge Challenge, opts ProviderSessionOptions) (Session, error) {
	p.challengeCalls++
	return p.NewSession(ctx, challenge.FallbackScopes, opts)
}

// scriptedPrompter answers every prompt from pre-set fields and records what
// it was asked.
type scriptedPrompter struct {
	mu sync.Mutex

	confirmAnswer bool
	confirmErr    error
	confirmCalls  int
	lastConfirm   LoginConfirmation

	pickAnswer SessionPick
	pickErr    error
	pickCalls  int
	lastPick   SessionPickRequest

	mismatchAnswer MismatchDecision
	mismatchCalls  int

	deviceAnswer bool

	registrationAnswer *ManualClientRegistration
	registrationCalls  int
}

func (p *scriptedPrompter) ConfirmLogin(_ context.Context, req LoginConfirmation) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.confirmCalls++
	p.lastConfirm = req
	return p.confirmAnswer, p.confirmErr
}

func (p *scriptedPrompter) PickSession(_ context.Context, req SessionPickRequest) (SessionPick, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pickCalls++
	p.lastPick = req
	return p.pickAnswer, p.pickErr
}

func (p *scriptedPrompter) ConfirmMismatchedAccount(_ context.Context, _, _ string) (MismatchDecision, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mismatchCalls++
	return p.mismatchAnswer, nil
}

func (p *scriptedPrompter) ShowDeviceCodeModal(_ context.Context, _, _ string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.deviceAnswer, nil
}

func (p *scriptedPrompter) PromptClientRegistration(_ context.Context, _ string) (*ManualClientRegistration, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.registrationCalls++
	return p.registrationAnswer, nil
}

// fakeActivator registers providers on demand, simulating a host bringing a
// declared provider implementation to life.
type fakeActivator struct {
	registry  Registry
	providers map[string]Provider
	err       error
	calls     int
}

func (a *fakeActivator) Activate(_ context.Context, providerID string) error {
	a.calls++
	if a.err != nil {
		return a.err
	}
	provider, ok := a.providers[providerID]
	if !ok {
		return nil
	}
	return a.registry.Register(provider)
}

func newTestService(t *testing.T, options ...Option) *Service {
	t.Helper()
	svc, err := NewService(Config{}, options...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	t.Cleanup(svc.Close)
	return svc
}

func mustRegister(t *testing.T, registry Registry, provider Provider) {
	t.Helper()
	if err := registry.Register(provider); err != nil {
		t.Fatalf("register provider: %v", err)
	}
}
