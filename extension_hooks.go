package authbroker

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-authbroker/core"
)

type ProviderPack struct {
	Name      string
	Providers []core.Provider
}

type DelegatePack struct {
	Name      string
	Delegates []core.HostDelegate
}

type CommandQueryBundleFactory func(service CommandQueryService) (any, error)

// ExtensionHooks collects host-supplied provider packs, delegate packs, and
// command/query bundles so embedding applications can assemble a broker
// without touching the core wiring.
type ExtensionHooks struct {
	mu sync.RWMutex

	providerPacks map[string]ProviderPack
	delegatePacks map[string]DelegatePack
	bundles       map[string]CommandQueryBundleFactory
}

func NewExtensionHooks() *ExtensionHooks {
	return &ExtensionHooks{
		providerPacks: map[string]ProviderPack{},
		delegatePacks: map[string]DelegatePack{},
		bundles:       map[string]CommandQueryBundleFactory{},
	}
}

func (h *ExtensionHooks) RegisterProviderPack(pack ProviderPack) error {
	if h == nil {
		return fmt.Errorf("authbroker: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	if name == "" {
		return fmt.Errorf("authbroker: provider pack name is required")
	}
	if len(pack.Providers) == 0 {
		return fmt.Errorf("authbroker: provider pack %q has no providers", name)
	}

	normalized := ProviderPack{
		Name:      name,
		Providers: append([]core.Provider(nil), pack.Providers...),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.providerPacks[name]; exists {
		return fmt.Errorf("authbroker: provider pack %q already registered", name)
	}
	h.providerPacks[name] = normalized
	return nil
}

func (h *ExtensionHooks) RegisterDelegatePack(pack DelegatePack) error {
	if h == nil {
		return fmt.Errorf("authbroker: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	if name == "" {
		return fmt.Errorf("authbroker: delegate pack name is required")
	}
	if len(pack.Delegates) == 0 {
		return fmt.Errorf("authbroker: delegate pack %q has no delegates", name)
	}

	normalized := DelegatePack{
		Name:      name,
		Delegates: append([]core.HostDelegate(nil), pack.Delegates...),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.delegatePacks[name]; exists {
		return fmt.Errorf("authbroker: delegate pack %q already registered", name)
	}
	h.delegatePacks[name] = normalized
	return nil
}

func (h *ExtensionHooks) RegisterCommandQueryBundle(
	name string,
	factory CommandQueryBundleFactory,
) error {
	if h == nil {
		return fmt.Errorf("authbroker: extension hooks are nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("authbroker: command/query bundle name is required")
	}
	if factory == nil {
		return fmt.Errorf("authbroker: command/query bundle %q factory is required", name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.bundles[name]; exists {
		return fmt.Errorf("authbroker: command/query bundle %q already registered", name)
	}
	h.bundles[name] = factory
	return nil
}

func (h *ExtensionHooks) ApplyProviderPacks(registry core.Registry) error {
	if h == nil {
		return nil
	}
	if registry == nil {
		return fmt.Errorf("authbroker: registry is required")
	}

	packs := h.ProviderPacks()
	for _, pack := range packs {
		for _, provider := range pack.Providers {
			if provider == nil {
				return fmt.Errorf("authbroker: provider pack %q contains nil provider", pack.Name)
			}
			if err := registry.Register(provider); err != nil {
				return err
			}
		}
	}
	return nil
}

// ApplyDelegatePacks registers every collected host delegate on the service
// and returns a single teardown for all of them.
func (h *ExtensionHooks) ApplyDelegatePacks(service *core.Service) (core.Unsubscribe, error) {
	if h == nil {
		return func() {}, nil
	}
	if service == nil {
		return nil, fmt.Errorf("authbroker: service is required")
	}

	packs := h.DelegatePacks()
	teardowns := make([]core.Unsubscribe, 0, len(packs))
	for _, pack := range packs {
		for _, delegate := range pack.Delegates {
			if delegate == nil {
				for _, undo := range teardowns {
					undo()
				}
				return nil, fmt.Errorf("authbroker: delegate pack %q contains nil delegate", pack.Name)
			}
			teardowns = append(teardowns, service.RegisterHostDelegate(delegate))
		}
	}
	return func() {
		for _, undo := range teardowns {
			undo()
		}
	}, nil
}

func (h *ExtensionHooks) BuildCommandQueryBundles(
	service CommandQueryService,
) (map[string]any, error) {
	if h == nil {
		return map[string]any{}, nil
	}
	if service == nil {
		return nil, fmt.Errorf("authbroker: command/query service is required")
	}

	h.mu.RLock()
	names := make([]string, 0, len(h.bundles))
	for name := range h.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	factories := make(map[string]CommandQueryBundleFactory, len(h.bundles))
	for name, factory := range h.bundles {
		factories[name] = factory
	}
	h.mu.RUnlock()

	result := make(map[string]any, len(names))
	for _, name := range names {
		bundle, err := factories[name](service)
		if err != nil {
			return nil, err
		}
		result[name] = bundle
	}
	return result, nil
}

func (h *ExtensionHooks) ProviderPacks() []ProviderPack {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.providerPacks))
	for name := range h.providerPacks {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]ProviderPack, 0, len(names))
	for _, name := range names {
		pack := h.providerPacks[name]
		out = append(out, ProviderPack{
			Name:      pack.Name,
			Providers: append([]core.Provider(nil), pack.Providers...),
		})
	}
	return out
}

func (h *ExtensionHooks) DelegatePacks() []DelegatePack {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.delegatePacks))
	for name := range h.delegatePacks {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]DelegatePack, 0, len(names))
	for _, name := range names {
		pack := h.delegatePacks[name]
		out = append(out, DelegatePack{
			Name:      pack.Name,
			Delegates: append([]core.HostDelegate(nil), pack.Delegates...),
		})
	}
	return out
}

func (h *ExtensionHooks) BundleNames() []string {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.bundles))
	for name := range h.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
