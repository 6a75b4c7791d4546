package core

import (
	"context"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func brokerFixture(t *testing.T, provider Provider) (*Service, *scriptedPrompter) {
	t.Helper()
	prompter := &scriptedPrompter{confirmAnswer: true}
	svc := newTestService(t, WithPrompter(prompter))
	mustRegister(t, svc.Registry(), provider)
	return svc, prompter
}

func TestGetSession_InvalidOptionCombinations(t *testing.T) {
	provider := newFakeProvider("github", false)
	svc, _ := brokerFixture(t, provider)
	ctx := context.Background()

	combos := []SessionOptions{
		{ForceNewSession: true, CreateIfNone: true},
		{ForceNewSession: true, Silent: true},
		{CreateIfNone: true, Silent: true},
	}
	for _, opts := range combos {
		_, _, err := svc.GetSession(ctx, "github", ScopesRequest("repo"), "ext.a", "Ext A", opts)
		if !IsInvalidOptionCombination(err) {
			t.Fatalf("expected invalid option combination for %+v, got %v", opts, err)
		}
	}
	// Validation fires before the provider is ever consulted.
	if provider.sessionsCalls != 0 || provider.createCalls != 0 {
		t.Fatalf("provider called during option validation: sessions=%d creates=%d",
			provider.sessionsCalls, provider.createCalls)
	}
}

func TestGetSession_UnregisteredProvider(t *testing.T) {
	prompter := &scriptedPrompter{confirmAnswer: true}
	svc := newTestService(t, WithPrompter(prompter))

	_, _, err := svc.GetSession(context.Background(), "ghost", ScopesRequest("repo"), "ext.a", "Ext A", SessionOptions{})
	if !IsNotRegistered(err) {
		t.Fatalf("expected not registered error, got %v", err)
	}
}

func TestGetSession_CreateIfNoneCreatesAndRemembers(t *testing.T) {
	provider := newFakeProvider("github", false)
	svc, prompter := brokerFixture(t, provider)
	ctx := context.Background()

	session, found, err := svc.GetSession(ctx, "github", ScopesRequest("repo"), "ext.a", "Ext A", SessionOptions{CreateIfNone: true})
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if !found {
		t.Fatalf("expected a session")
	}
	if prompter.confirmCalls != 1 {
		t.Fatalf("expected one consent prompt, got %d", prompter.confirmCalls)
	}

	deps := svc.Dependencies()
	access, err := deps.AccessStore.IsAllowed(ctx, "github", session.Account.Label, "ext.a")
	if err != nil {
		t.Fatalf("access: %v", err)
	}
	if access != AccessAllowed {
		t.Fatalf("expected access granted after creation, got %v", access)
	}
	preferred, err := deps.PreferenceStore.AccountPreference(ctx, "ext.a", "github")
	if err != nil {
		t.Fatalf("preference: %v", err)
	}
	if preferred != session.Account.Label {
		t.Fatalf("expected account preference %q, got %q", session.Account.Label, preferred)
	}
	usages, err := deps.UsageTracker.ReadAccountUsages(ctx, "github", session.Account.Label)
	if err != nil {
		t.Fatalf("usages: %v", err)
	}
	if len(usages) != 1 || usages[0].RequesterID != "ext.a" {
		t.Fatalf("expected usage record for ext.a, got %+v", usages)
	}
}

func TestGetSession_CreateIfNoneIsIdempotentForSameRequester(t *testing.T) {
	provider := newFakeProvider("github", false)
	svc, prompter := brokerFixture(t, provider)
	ctx := context.Background()

	first, _, err := svc.GetSession(ctx, "github", ScopesRequest("repo"), "ext.a", "Ext A", SessionOptions{CreateIfNone: true})
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, found, err := svc.GetSession(ctx, "github", ScopesRequest("repo"), "ext.a", "Ext A", SessionOptions{CreateIfNone: true})
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if !found || second.ID != first.ID {
		t.Fatalf("expected session reuse, got %q then %q", first.ID, second.ID)
	}
	if provider.createCalls != 1 {
		t.Fatalf("expected one creation, got %d", provider.createCalls)
	}
	if prompter.confirmCalls != 1 {
		t.Fatalf("expected consent only on creation, got %d prompts", prompter.confirmCalls)
	}
}

func TestGetSession_ConsentDeclined(t *testing.T) {
	provider := newFakeProvider("github", false)
	svc, prompter := brokerFixture(t, provider)
	prompter.confirmAnswer = false

	_, _, err := svc.GetSession(context.Background(), "github", ScopesRequest("repo"), "ext.a", "Ext A", SessionOptions{CreateIfNone: true})
	if !IsConsentDeclined(err) {
		t.Fatalf("expected consent declined, got %v", err)
	}
	if provider.createCalls != 0 {
		t.Fatalf("declined consent must not create a session")
	}
}

func TestGetSession_ForceNewSessionMintsFreshToken(t *testing.T) {
	provider := newFakeProvider("github", false)
	svc, prompter := brokerFixture(t, provider)
	ctx := context.Background()

	first, _, err := svc.GetSession(ctx, "github", ScopesRequest("repo"), "ext.a", "Ext A", SessionOptions{CreateIfNone: true})
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	forced, found, err := svc.GetSession(ctx, "github", ScopesRequest("repo"), "ext.a", "Ext A", SessionOptions{ForceNewSession: true})
	if err != nil {
		t.Fatalf("forced: %v", err)
	}
	if !found {
		t.Fatalf("expected forced session")
	}
	if forced.AccessToken == first.AccessToken {
		t.Fatalf("forced session reused the old token")
	}
	if !prompter.lastConfirm.Recreating {
		t.Fatalf("expected recreating wording on forced prompt")
	}
	preferred, err := svc.Dependencies().PreferenceStore.AccountPreference(ctx, "ext.a", "github")
	if err != nil {
		t.Fatalf("preference: %v", err)
	}
	if preferred != forced.Account.Label {
		t.Fatalf("expected preference updated to %q, got %q", forced.Account.Label, preferred)
	}
}

func TestGetSession_SilentReturnsNothingAndRecordsNothing(t *testing.T) {
	provider := newFakeProvider("github", false)
	svc, _ := brokerFixture(t, provider)

	_, found, err := svc.GetSession(context.Background(), "github", ScopesRequest("repo"), "ext.a", "Ext A", SessionOptions{Silent: true})
	if err != nil {
		t.Fatalf("silent: %v", err)
	}
	if found {
		t.Fatalf("expected no session")
	}
	if count := svc.Dependencies().RequestTracker.PendingCount(); count != 0 {
		t.Fatalf("silent lookups must not record requests, got %d", count)
	}
}

func TestGetSession_PassiveLookupRecordsSignInRequestOnce(t *testing.T) {
	provider := newFakeProvider("github", false)
	svc, _ := brokerFixture(t, provider)
	ctx := context.Background()
	tracker := svc.Dependencies().RequestTracker

	for i := 0; i < 3; i++ {
		_, found, err := svc.GetSession(ctx, "github", ScopesRequest("repo"), "ext.a", "Ext A", SessionOptions{})
		if err != nil {
			t.Fatalf("lookup %d: %v", i, err)
		}
		if found {
			t.Fatalf("expected no session")
		}
	}
	if count := tracker.PendingCount(); count != 1 {
		t.Fatalf("expected one pending sign-in request, got %d", count)
	}

	// A scope-different request is a separate pending entry.
	if _, _, err := svc.GetSession(ctx, "github", ScopesRequest("gist"), "ext.a", "Ext A", SessionOptions{}); err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if count := tracker.PendingCount(); count != 2 {
		t.Fatalf("expected two pending requests, got %d", count)
	}
}

func TestGetSession_PassiveLookupRecordsAccessRequest(t *testing.T) {
	provider := newFakeProvider("github", false)
	provider.seedSession(Account{ID: "a1", Label: "owner@example.com"}, "repo")
	svc, _ := brokerFixture(t, provider)
	ctx := context.Background()

	// The session belongs to another requester; ext.b has no grant and no
	// preference, but sessions exist so an access request is recorded.
	deps := svc.Dependencies()
	if err := deps.AccessStore.UpdateEntries(ctx, "github", "owner@example.com", []AccessEntry{{
		RequesterID: "ext.a", Name: "Ext A", Allowed: true,
	}}); err != nil {
		t.Fatalf("seed access: %v", err)
	}
	if err := deps.AccessStore.UpdateEntries(ctx, "github", "owner@example.com", []AccessEntry{{
		RequesterID: "ext.b", Name: "Ext B", Allowed: false,
	}}); err != nil {
		t.Fatalf("seed denial: %v", err)
	}

	_, found, err := svc.GetSession(ctx, "github", ScopesRequest("repo"), "ext.b", "Ext B", SessionOptions{})
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if found {
		t.Fatalf("denied requester must not get the session")
	}
	requests := deps.RequestTracker.AccessRequests("github")
	if len(requests) != 1 || requests[0].RequesterID != "ext.b" {
		t.Fatalf("expected access request for ext.b, got %+v", requests)
	}
}

func TestGetSession_ReusesAllowedSessionWithoutPreference(t *testing.T) {
	provider := newFakeProvider("github", false)
	seeded := provider.seedSession(Account{ID: "a1", Label: "owner@example.com"}, "repo")
	svc, prompter := brokerFixture(t, provider)
	ctx := context.Background()

	if err := svc.Dependencies().AccessStore.UpdateEntries(ctx, "github", "owner@example.com", []AccessEntry{{
		RequesterID: "ext.a", Name: "Ext A", Allowed: true,
	}}); err != nil {
		t.Fatalf("seed access: %v", err)
	}

	session, found, err := svc.GetSession(ctx, "github", ScopesRequest("repo"), "ext.a", "Ext A", SessionOptions{})
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !found || session.ID != seeded.ID {
		t.Fatalf("expected seeded session, got found=%v id=%q", found, session.ID)
	}
	if prompter.confirmCalls != 0 {
		t.Fatalf("reuse must not prompt, got %d prompts", prompter.confirmCalls)
	}
}

func TestGetSession_TwoRequestersGetDistinctPreferredSessions(t *testing.T) {
	provider := newFakeProvider("github", true)
	alice := provider.seedSession(Account{ID: "a1", Label: "alice@example.com"}, "repo")
	bob := provider.seedSession(Account{ID: "a2", Label: "bob@example.com"}, "repo")
	svc, _ := brokerFixture(t, provider)
	ctx := context.Background()
	deps := svc.Dependencies()

	for requester, account := range map[string]string{
		"ext.a": "alice@example.com",
		"ext.b": "bob@example.com",
	} {
		if err := deps.AccessStore.UpdateEntries(ctx, "github", account, []AccessEntry{{
			RequesterID: requester, Allowed: true,
		}}); err != nil {
			t.Fatalf("seed access: %v", err)
		}
		if err := deps.PreferenceStore.UpdateAccountPreference(ctx, requester, "github", account); err != nil {
			t.Fatalf("seed preference: %v", err)
		}
	}

	gotA, foundA, err := svc.GetSession(ctx, "github", ScopesRequest("repo"), "ext.a", "Ext A", SessionOptions{})
	if err != nil || !foundA {
		t.Fatalf("ext.a lookup: found=%v err=%v", foundA, err)
	}
	gotB, foundB, err := svc.GetSession(ctx, "github", ScopesRequest("repo"), "ext.b", "Ext B", SessionOptions{})
	if err != nil || !foundB {
		t.Fatalf("ext.b lookup: found=%v err=%v", foundB, err)
	}
	if gotA.ID != alice.ID || gotB.ID != bob.ID {
		t.Fatalf("preference routing failed: ext.a=%q ext.b=%q", gotA.ID, gotB.ID)
	}
}

func TestGetSession_ExplicitAccountHintWins(t *testing.T) {
	provider := newFakeProvider("github", true)
	provider.seedSession(Account{ID: "a1", Label: "alice@example.com"}, "repo")
	bob := provider.seedSession(Account{ID: "a2", Label: "bob@example.com"}, "repo")
	svc, _ := brokerFixture(t, provider)
	ctx := context.Background()
	deps := svc.Dependencies()

	if err := deps.AccessStore.UpdateEntries(ctx, "github", "bob@example.com", []AccessEntry{{
		RequesterID: "ext.a", Allowed: true,
	}}); err != nil {
		t.Fatalf("seed access: %v", err)
	}
	// The stored preference points at alice; the explicit hint overrides it.
	if err := deps.PreferenceStore.UpdateAccountPreference(ctx, "ext.a", "github", "alice@example.com"); err != nil {
		t.Fatalf("seed preference: %v", err)
	}

	session, found, err := svc.GetSession(ctx, "github", ScopesRequest("repo"), "ext.a", "Ext A", SessionOptions{
		Account: &Account{ID: "a2", Label: "bob@example.com"},
	})
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !found || session.ID != bob.ID {
		t.Fatalf("expected bob's session, got found=%v id=%q", found, session.ID)
	}
}

func TestGetSession_ChallengeRequiresChallengeProvider(t *testing.T) {
	provider := newFakeProvider("github", false)
	svc, _ := brokerFixture(t, provider)

	_, _, err := svc.GetSession(context.Background(), "github", ChallengeRequest(`Bearer realm="api"`, "repo"), "ext.a", "Ext A", SessionOptions{})
	if !IsChallengesUnsupported(err) {
		t.Fatalf("expected challenges unsupported, got %v", err)
	}
	if provider.sessionsCalls != 0 {
		t.Fatalf("capability check must precede provider calls")
	}
}

func TestGetSession_ChallengeProviderServesChallenges(t *testing.T) {
	provider := newFakeChallengeProvider("mcp", false)
	svc, _ := brokerFixture(t, provider)
	ctx := context.Background()

	session, found, err := svc.GetSession(ctx, "mcp", ChallengeRequest(`Bearer realm="api"`, "read"), "ext.a", "Ext A", SessionOptions{CreateIfNone: true})
	if err != nil {
		t.Fatalf("challenge session: %v", err)
	}
	if !found {
		t.Fatalf("expected session from challenge")
	}
	if provider.challengeCalls == 0 {
		t.Fatalf("expected challenge surface to be used")
	}
	if !ScopesMatch(session.Scopes, []string{"read"}) {
		t.Fatalf("expected fallback scopes, got %v", session.Scopes)
	}
}

func TestGetSession_AuthorizationServerMustBeClaimed(t *testing.T) {
	provider := newFakeProvider("corp", false)
	provider.servers = []string{"https://login.corp.example.com"}
	svc, _ := brokerFixture(t, provider)
	ctx := context.Background()

	_, _, err := svc.GetSession(ctx, "corp", ScopesRequest("repo"), "ext.a", "Ext A", SessionOptions{
		AuthorizationServer: "https://rogue.example.com",
	})
	if !IsServerUnsupported(err) {
		t.Fatalf("expected server unsupported, got %v", err)
	}

	_, _, err = svc.GetSession(ctx, "corp", ScopesRequest("repo"), "ext.a", "Ext A", SessionOptions{
		AuthorizationServer: "https://login.corp.example.com/",
	})
	if err != nil {
		t.Fatalf("claimed server rejected: %v", err)
	}
}

func TestGetSession_MismatchedAccountRetries(t *testing.T) {
	provider := newFakeProvider("github", true)
	// First creation lands in the wrong account, second in the right one.
	provider.accountQueue = []Account{
		{ID: "a9", Label: "wrong@example.com"},
		{ID: "a1", Label: "alice@example.com"},
	}
	svc, prompter := brokerFixture(t, provider)
	prompter.mismatchAnswer = MismatchUseRequested
	ctx := context.Background()

	session, found, err := svc.GetSession(ctx, "github", ScopesRequest("repo"), "ext.a", "Ext A", SessionOptions{
		CreateIfNone: true,
		Account:      &Account{ID: "a1", Label: "alice@example.com"},
	})
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if !found || session.Account.Label != "alice@example.com" {
		t.Fatalf("expected retry into requested account, got %+v", session.Account)
	}
	if prompter.mismatchCalls != 1 {
		t.Fatalf("expected one mismatch prompt, got %d", prompter.mismatchCalls)
	}
	if provider.createCalls != 2 {
		t.Fatalf("expected two creations, got %d", provider.createCalls)
	}
}

func TestGetSession_MismatchedAccountKeepChosenStopsLoop(t *testing.T) {
	provider := newFakeProvider("github", true)
	provider.accountQueue = []Account{{ID: "a9", Label: "wrong@example.com"}}
	svc, prompter := brokerFixture(t, provider)
	prompter.mismatchAnswer = MismatchKeepChosen
	ctx := context.Background()

	session, found, err := svc.GetSession(ctx, "github", ScopesRequest("repo"), "ext.a", "Ext A", SessionOptions{
		CreateIfNone: true,
		Account:      &Account{ID: "a1", Label: "alice@example.com"},
	})
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if !found || session.Account.Label != "wrong@example.com" {
		t.Fatalf("expected the chosen account to be kept, got %+v", session.Account)
	}
	if provider.createCalls != 1 {
		t.Fatalf("give-up must terminate the loop, got %d creations", provider.createCalls)
	}
}

func TestGetSession_MultiAccountPickerRoutesCreation(t *testing.T) {
	provider := newFakeProvider("github", true)
	provider.seedSession(Account{ID: "a1", Label: "alice@example.com"}, "repo")
	provider.seedSession(Account{ID: "a2", Label: "bob@example.com"}, "repo")
	svc, prompter := brokerFixture(t, provider)
	prompter.pickAnswer = SessionPick{Account: &Account{ID: "a2", Label: "bob@example.com"}}
	ctx := context.Background()

	session, found, err := svc.GetSession(ctx, "github", ScopesRequest("repo"), "ext.a", "Ext A", SessionOptions{CreateIfNone: true})
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if !found || session.Account.Label != "bob@example.com" {
		t.Fatalf("expected creation in picked account, got %+v", session.Account)
	}
	if prompter.pickCalls != 1 {
		t.Fatalf("expected one picker prompt, got %d", prompter.pickCalls)
	}
	if len(prompter.lastPick.Accounts) != 2 {
		t.Fatalf("expected both accounts offered, got %+v", prompter.lastPick.Accounts)
	}
}

func TestGetSession_SuccessfulCreationResolvesPendingSignIn(t *testing.T) {
	provider := newFakeProvider("github", false)
	svc, _ := brokerFixture(t, provider)
	ctx := context.Background()
	tracker := svc.Dependencies().RequestTracker

	if _, _, err := svc.GetSession(ctx, "github", ScopesRequest("repo"), "ext.a", "Ext A", SessionOptions{}); err != nil {
		t.Fatalf("passive lookup: %v", err)
	}
	if tracker.PendingCount() != 1 {
		t.Fatalf("expected pending request before creation")
	}

	if _, _, err := svc.GetSession(ctx, "github", ScopesRequest("repo"), "ext.a", "Ext A", SessionOptions{CreateIfNone: true}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if count := tracker.PendingCount(); count != 0 {
		t.Fatalf("expected pending request resolved, got %d", count)
	}
}

func TestGetSession_ClearSessionPreference(t *testing.T) {
	provider := newFakeProvider("github", true)
	provider.seedSession(Account{ID: "a1", Label: "alice@example.com"}, "repo")
	svc, _ := brokerFixture(t, provider)
	ctx := context.Background()
	deps := svc.Dependencies()

	if err := deps.PreferenceStore.UpdateAccountPreference(ctx, "ext.a", "github", "alice@example.com"); err != nil {
		t.Fatalf("seed preference: %v", err)
	}

	if _, _, err := svc.GetSession(ctx, "github", ScopesRequest("repo"), "ext.a", "Ext A", SessionOptions{
		Silent:                 true,
		ClearSessionPreference: true,
	}); err != nil {
		t.Fatalf("lookup: %v", err)
	}
	preferred, err := deps.PreferenceStore.AccountPreference(ctx, "ext.a", "github")
	if err != nil {
		t.Fatalf("preference: %v", err)
	}
	if preferred != "" {
		t.Fatalf("expected preference cleared, got %q", preferred)
	}
}

func TestClearPreference_DropsRememberedAccount(t *testing.T) {
	provider := newFakeProvider("github", true)
	svc, _ := brokerFixture(t, provider)
	ctx := context.Background()
	deps := svc.Dependencies()

	if err := deps.PreferenceStore.UpdateAccountPreference(ctx, "ext.a", "github", "alice@example.com"); err != nil {
		t.Fatalf("seed preference: %v", err)
	}

	if err := svc.ClearPreference(ctx, "ext.a", "github"); err != nil {
		t.Fatalf("clear preference: %v", err)
	}
	preferred, err := deps.PreferenceStore.AccountPreference(ctx, "ext.a", "github")
	if err != nil {
		t.Fatalf("preference: %v", err)
	}
	if preferred != "" {
		t.Fatalf("expected preference cleared, got %q", preferred)
	}

	if err := svc.ClearPreference(ctx, "", "github"); err == nil {
		t.Fatalf("expected missing requester rejection")
	}
	if err := svc.ClearPreference(ctx, "ext.a", ""); err == nil {
		t.Fatalf("expected missing provider rejection")
	}
}

func TestGetSession_TrustedRequesterSkipsStoredDecisions(t *testing.T) {
	provider := newFakeProvider("github", false)
	seeded := provider.seedSession(Account{ID: "a1", Label: "owner@example.com"}, "repo")
	prompter := &scriptedPrompter{confirmAnswer: true}
	// Trust is runtime configuration.
	svcTrusted, err := NewService(Config{
		TrustedRequesters: TrustedRequestersConfig{All: []string{"core.ui"}},
	}, WithPrompter(prompter))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	t.Cleanup(svcTrusted.Close)
	mustRegister(t, svcTrusted.Registry(), provider)
	ctx := context.Background()

	session, found, err := svcTrusted.GetSession(ctx, "github", ScopesRequest("repo"), "core.ui", "Core UI", SessionOptions{})
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !found || session.ID != seeded.ID {
		t.Fatalf("trusted requester should reuse the session, found=%v", found)
	}
	if prompter.confirmCalls != 0 {
		t.Fatalf("trusted requester must not be prompted")
	}
}

func TestCreateSession_BypassesConsentMachinery(t *testing.T) {
	provider := newFakeProvider("github", false)
	svc, prompter := brokerFixture(t, provider)

	session, err := svc.CreateSession(context.Background(), "github", ScopesRequest("repo"), SessionOptions{})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if session.ID == "" {
		t.Fatalf("expected created session")
	}
	if prompter.confirmCalls != 0 {
		t.Fatalf("direct creation must not prompt")
	}
}

func TestRemoveSession(t *testing.T) {
	provider := newFakeProvider("github", false)
	seeded := provider.seedSession(provider.defaultAccount, "repo")
	svc, _ := brokerFixture(t, provider)
	ctx := context.Background()

	if err := svc.RemoveSession(ctx, "github", seeded.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	sessions, err := provider.Sessions(ctx, nil, ProviderSessionOptions{})
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("expected session removed, got %d", len(sessions))
	}
}

func TestGetAccounts_DedupesByLabel(t *testing.T) {
	provider := newFakeProvider("github", true)
	provider.seedSession(Account{ID: "a1", Label: "alice@example.com"}, "repo")
	provider.seedSession(Account{ID: "a1", Label: "alice@example.com"}, "gist")
	provider.seedSession(Account{ID: "a2", Label: "bob@example.com"}, "repo")
	svc, _ := brokerFixture(t, provider)

	accounts, err := svc.GetAccounts(context.Background(), "github")
	if err != nil {
		t.Fatalf("accounts: %v", err)
	}
	if len(accounts) != 2 {
		t.Fatalf("expected two distinct accounts, got %+v", accounts)
	}
}

func TestSignOutAccount_RemovesSessionsAndState(t *testing.T) {
	provider := newFakeProvider("github", true)
	provider.seedSession(Account{ID: "a1", Label: "alice@example.com"}, "repo")
	provider.seedSession(Account{ID: "a1", Label: "alice@example.com"}, "gist")
	provider.seedSession(Account{ID: "a2", Label: "bob@example.com"}, "repo")
	svc, _ := brokerFixture(t, provider)
	ctx := context.Background()
	deps := svc.Dependencies()

	if err := deps.AccessStore.UpdateEntries(ctx, "github", "alice@example.com", []AccessEntry{{
		RequesterID: "ext.a", Allowed: true,
	}}); err != nil {
		t.Fatalf("seed access: %v", err)
	}
	if err := deps.PreferenceStore.UpdateAccountPreference(ctx, "ext.a", "github", "alice@example.com"); err != nil {
		t.Fatalf("seed preference: %v", err)
	}

	if err := svc.SignOutAccount(ctx, "github", "alice@example.com"); err != nil {
		t.Fatalf("sign out: %v", err)
	}

	sessions, err := provider.Sessions(ctx, nil, ProviderSessionOptions{})
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].Account.Label != "bob@example.com" {
		t.Fatalf("expected only bob's session to survive, got %+v", sessions)
	}
	access, err := deps.AccessStore.IsAllowed(ctx, "github", "alice@example.com", "ext.a")
	if err != nil {
		t.Fatalf("access: %v", err)
	}
	if access != AccessUnknown {
		t.Fatalf("expected access forgotten, got %v", access)
	}
	preferred, err := deps.PreferenceStore.AccountPreference(ctx, "ext.a", "github")
	if err != nil {
		t.Fatalf("preference: %v", err)
	}
	if preferred != "" {
		t.Fatalf("expected preference cleared, got %q", preferred)
	}
}

func TestSignOutAccount_UnknownAccount(t *testing.T) {
	provider := newFakeProvider("github", false)
	svc, _ := brokerFixture(t, provider)

	err := svc.SignOutAccount(context.Background(), "github", "ghost@example.com")
	if !HasTextCode(err, BrokerErrorNoAccounts) {
		t.Fatalf("expected no accounts error, got %v", err)
	}
}

func TestServiceErrors_CarryStableEnvelope(t *testing.T) {
	svc := newTestService(t, WithPrompter(&scriptedPrompter{}))

	_, _, err := svc.GetSession(context.Background(), "ghost", ScopesRequest("repo"), "ext.a", "Ext A", SessionOptions{})
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		t.Fatalf("expected go-errors type, got %T", err)
	}
	if richErr.Code == 0 {
		t.Fatalf("expected http status on mapped error")
	}
	if richErr.TextCode != BrokerErrorProviderNotRegistered {
		t.Fatalf("unexpected text code %q", richErr.TextCode)
	}
}
