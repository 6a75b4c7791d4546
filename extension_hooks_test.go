package authbroker_test

import (
	"context"
	"testing"

	authbroker "github.com/goliatone/go-authbroker"
	"github.com/goliatone/go-authbroker/core"
)

type hookDelegate struct {
	priority int
	calls    int
}

func (d *hookDelegate) Priority() int { return d.priority }

func (d *hookDelegate) CreateProvider(context.Context, core.DelegateCreateRequest) (string, error) {
	d.calls++
	return "", nil
}

func TestExtensionHooks_ProviderPackRegistrationAndApply(t *testing.T) {
	hooks := authbroker.NewExtensionHooks()

	if err := hooks.RegisterProviderPack(authbroker.ProviderPack{}); err == nil {
		t.Fatalf("expected nameless pack rejection")
	}
	if err := hooks.RegisterProviderPack(authbroker.ProviderPack{Name: "empty"}); err == nil {
		t.Fatalf("expected empty pack rejection")
	}

	pack := authbroker.ProviderPack{
		Name:      "github-pack",
		Providers: []core.Provider{&facadeProvider{id: "github"}},
	}
	if err := hooks.RegisterProviderPack(pack); err != nil {
		t.Fatalf("register provider pack: %v", err)
	}
	if err := hooks.RegisterProviderPack(pack); err == nil {
		t.Fatalf("expected duplicate pack rejection")
	}

	registry := core.NewProviderRegistry()
	if err := hooks.ApplyProviderPacks(registry); err != nil {
		t.Fatalf("apply provider packs: %v", err)
	}
	if _, err := registry.Get("github"); err != nil {
		t.Fatalf("expected provider to land in registry: %v", err)
	}

	if err := hooks.ApplyProviderPacks(nil); err == nil {
		t.Fatalf("expected nil registry rejection")
	}
}

func TestExtensionHooks_DelegatePacksApplyToService(t *testing.T) {
	hooks := authbroker.NewExtensionHooks()
	delegate := &hookDelegate{priority: 10}

	if err := hooks.RegisterDelegatePack(authbroker.DelegatePack{Name: "host"}); err == nil {
		t.Fatalf("expected empty delegate pack rejection")
	}
	if err := hooks.RegisterDelegatePack(authbroker.DelegatePack{
		Name:      "host",
		Delegates: []core.HostDelegate{delegate},
	}); err != nil {
		t.Fatalf("register delegate pack: %v", err)
	}

	svc := newFacadeService(t)
	teardown, err := hooks.ApplyDelegatePacks(svc)
	if err != nil {
		t.Fatalf("apply delegate packs: %v", err)
	}

	// The delegate is live: dynamic provider creation consults it.
	if _, err := svc.CreateDynamicProvider(
		context.Background(),
		"https://auth.example.com",
		core.AuthorizationServerMetadata{RegistrationEndpoint: "https://auth.example.com/register"},
		"https://resource.example.com",
	); err == nil {
		t.Fatalf("expected abstaining delegate to fail creation")
	}
	if delegate.calls != 1 {
		t.Fatalf("expected delegate consultation, got %d calls", delegate.calls)
	}

	teardown()
	if _, err := svc.CreateDynamicProvider(
		context.Background(),
		"https://auth.example.com",
		core.AuthorizationServerMetadata{RegistrationEndpoint: "https://auth.example.com/register"},
		"https://resource.example.com",
	); err == nil {
		t.Fatalf("expected creation to fail with no delegates")
	}
	if delegate.calls != 1 {
		t.Fatalf("torn-down delegate must not be consulted again, got %d calls", delegate.calls)
	}
}

func TestExtensionHooks_CommandQueryBundles(t *testing.T) {
	hooks := authbroker.NewExtensionHooks()

	if err := hooks.RegisterCommandQueryBundle("", nil); err == nil {
		t.Fatalf("expected nameless bundle rejection")
	}
	if err := hooks.RegisterCommandQueryBundle("reporting", nil); err == nil {
		t.Fatalf("expected nil factory rejection")
	}

	type reportingBundle struct {
		service authbroker.CommandQueryService
	}
	if err := hooks.RegisterCommandQueryBundle("reporting", func(service authbroker.CommandQueryService) (any, error) {
		return reportingBundle{service: service}, nil
	}); err != nil {
		t.Fatalf("register bundle: %v", err)
	}
	if err := hooks.RegisterCommandQueryBundle("reporting", func(authbroker.CommandQueryService) (any, error) {
		return nil, nil
	}); err == nil {
		t.Fatalf("expected duplicate bundle rejection")
	}

	names := hooks.BundleNames()
	if len(names) != 1 || names[0] != "reporting" {
		t.Fatalf("unexpected bundle names %#v", names)
	}

	svc := newFacadeService(t)
	bundles, err := hooks.BuildCommandQueryBundles(svc)
	if err != nil {
		t.Fatalf("build bundles: %v", err)
	}
	bundle, ok := bundles["reporting"].(reportingBundle)
	if !ok {
		t.Fatalf("expected reporting bundle instance, got %#v", bundles["reporting"])
	}
	if bundle.service == nil {
		t.Fatalf("expected bundle to capture service")
	}

	if _, err := hooks.BuildCommandQueryBundles(nil); err == nil {
		t.Fatalf("expected nil service rejection")
	}
}
