package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// RegisterHostDelegate adds a delegate to the creation chain. Delegates are
// consulted in descending priority; registration order breaks ties.
func (s *Service) RegisterHostDelegate(delegate HostDelegate) Unsubscribe {
	if s == nil || delegate == nil {
		return func() {}
	}
	s.delegatesMu.Lock()
	s.delegates = append(s.delegates, delegate)
	s.delegatesMu.Unlock()
	return func() {
		s.delegatesMu.Lock()
		defer s.delegatesMu.Unlock()
		for i, existing := range s.delegates {
			if existing == delegate {
				s.delegates = append(s.delegates[:i], s.delegates[i+1:]...)
				return
			}
		}
	}
}

func (s *Service) orderedDelegates() []HostDelegate {
	s.delegatesMu.Lock()
	ordered := append([]HostDelegate(nil), s.delegates...)
	s.delegatesMu.Unlock()
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority() > ordered[j].Priority()
	})
	return ordered
}

// CreateDynamicProvider materializes a provider for an authorization server
// nothing is registered for. The client identity is resolved in order:
// a persisted registration, the product's client-id metadata document when
// the server advertises support, and finally manual entry through the
// prompter. Delegates are then asked, highest priority first, to build and
// register the provider; the first non-empty provider id wins.
func (s *Service) CreateDynamicProvider(
	ctx context.Context,
	authorizationServer string,
	serverMetadata AuthorizationServerMetadata,
	resourceServer string,
) (providerID string, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"authorization_server": authorizationServer}
	defer func() {
		s.observeOperation(ctx, startedAt, "create_dynamic_provider", err, fields)
	}()

	if strings.TrimSpace(authorizationServer) == "" {
		err = s.mapError(fmt.Errorf("core: authorization server is required"))
		return "", err
	}
	delegates := s.orderedDelegates()
	if len(delegates) == 0 {
		err = s.mapError(fmt.Errorf("core: no host delegates registered"))
		return "", err
	}

	dynamicID := DynamicProviderID(authorizationServer, resourceServer)

	var clientID, clientSecret string
	var initialTokens []AuthorizationToken

	registration, err := s.dynamicStore.ClientRegistration(ctx, dynamicID)
	if err != nil {
		err = s.mapError(err)
		return "", err
	}
	switch {
	case registration != nil:
		clientID = registration.ClientID
		clientSecret = registration.ClientSecret
		initialTokens, err = s.dynamicStore.SessionsForProvider(ctx, dynamicID, clientID)
		if err != nil {
			err = s.mapError(err)
			return "", err
		}
	case serverMetadata.ClientIDMetadataDocumentSupported && s.config.DynamicProviders.ClientIDMetadataURL != "":
		clientID = s.config.DynamicProviders.ClientIDMetadataURL
	case serverMetadata.RegistrationEndpoint != "":
		// The delegate performs dynamic client registration itself; it
		// receives an empty client id.
	default:
		manual, promptErr := s.promptManualRegistration(ctx, authorizationServer)
		if promptErr != nil {
			err = promptErr
			return "", err
		}
		clientID = manual.ClientID
		clientSecret = manual.ClientSecret
	}

	request := DelegateCreateRequest{
		AuthorizationServer: authorizationServer,
		ServerMetadata:      serverMetadata,
		ResourceServer:      resourceServer,
		ClientID:            clientID,
		ClientSecret:        clientSecret,
		InitialTokens:       initialTokens,
	}

	var lastErr error
	for _, delegate := range delegates {
		createdID, createErr := delegate.CreateProvider(ctx, request)
		if createErr != nil {
			lastErr = createErr
			continue
		}
		if createdID == "" {
			continue
		}
		if registration == nil && clientID != "" {
			if storeErr := s.dynamicStore.StoreClientRegistration(ctx, ClientRegistration{
				ProviderID:          createdID,
				AuthorizationServer: authorizationServer,
				ClientID:            clientID,
				ClientSecret:        clientSecret,
			}); storeErr != nil {
				err = s.mapError(storeErr)
				return "", err
			}
		}
		return createdID, nil
	}

	if lastErr != nil {
		err = s.mapError(lastErr)
		return "", err
	}
	err = s.mapError(newBrokerErrorRegistrationFailed(authorizationServer))
	return "", err
}

func (s *Service) promptManualRegistration(ctx context.Context, authorizationServer string) (ManualClientRegistration, error) {
	if s.prompter == nil {
		return ManualClientRegistration{}, s.mapError(newBrokerErrorRegistrationFailed(authorizationServer))
	}
	manual, err := s.prompter.PromptClientRegistration(ctx, authorizationServer)
	if err != nil {
		return ManualClientRegistration{}, s.mapError(err)
	}
	if manual == nil || strings.TrimSpace(manual.ClientID) == "" {
		return ManualClientRegistration{}, s.mapError(newBrokerErrorRegistrationFailed(authorizationServer))
	}
	return *manual, nil
}

// RemoveDynamicProvider forgets a dynamic provider: the live registration is
// dropped quietly and the persisted registration, token sets, and tracking
// entry are removed.
func (s *Service) RemoveDynamicProvider(ctx context.Context, providerID string) (err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"provider_id": providerID}
	defer func() {
		s.observeOperation(ctx, startedAt, "remove_dynamic_provider", err, fields)
	}()

	if strings.TrimSpace(providerID) == "" {
		err = s.mapError(fmt.Errorf("core: provider id is required"))
		return err
	}
	s.registry.UnregisterQuietly(providerID)
	if err = s.dynamicStore.RemoveDynamicProvider(ctx, providerID); err != nil {
		err = s.mapError(err)
		return err
	}
	return nil
}

// RegisterDynamicProvider is the pre-seeded entry point: the host already
// holds a live provider handle and its client identity, typically after
// completing an out-of-band flow.
func (s *Service) RegisterDynamicProvider(ctx context.Context, details DynamicProviderDetails) (err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"authorization_server": details.AuthorizationServer}
	defer func() {
		s.observeOperation(ctx, startedAt, "register_dynamic_provider", err, fields)
	}()

	if details.Provider == nil {
		err = s.mapError(fmt.Errorf("core: provider is required"))
		return err
	}
	if strings.TrimSpace(details.ClientID) == "" {
		err = s.mapError(fmt.Errorf("core: client id is required"))
		return err
	}
	if err = s.registry.Register(details.Provider); err != nil {
		err = s.mapError(err)
		return err
	}
	label := details.Label
	if label == "" {
		label = details.Provider.Label()
	}
	if err = s.dynamicStore.StoreClientRegistration(ctx, ClientRegistration{
		ProviderID:          details.Provider.ID(),
		AuthorizationServer: details.AuthorizationServer,
		ClientID:            details.ClientID,
		ClientSecret:        details.ClientSecret,
		Label:               label,
	}); err != nil {
		err = s.mapError(err)
		return err
	}
	return nil
}
