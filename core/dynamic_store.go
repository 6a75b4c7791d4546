package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

const (
	dynamicRegistrationKeyPrefix = "authbroker.dynamicProvider/"
	dynamicTrackingKey           = "authbroker.dynamicProviders"
	// legacyClientIDKeyPrefix is where early builds kept the bare client id
	// before registrations moved into secret storage.
	legacyClientIDKeyPrefix = "authbroker.dynamicProvider.clientId/"
)

// dynamicTokensKeyPayload is the structured secret key a provider's token
// set is stored under. Using JSON keeps the key parseable from the
// secret-change feed without a delimiter convention.
type dynamicTokensKeyPayload struct {
	IsDynamicAuthProvider bool   `json:"isDynamicAuthProvider"`
	ProviderID            string `json:"providerId"`
	ClientID              string `json:"clientId"`
}

func tokensKey(providerID, clientID string) string {
	encoded, _ := json.Marshal(dynamicTokensKeyPayload{
		IsDynamicAuthProvider: true,
		ProviderID:            providerID,
		ClientID:              clientID,
	})
	return string(encoded)
}

func parseTokensKey(key string) (providerID, clientID string, ok bool) {
	if !strings.HasPrefix(strings.TrimSpace(key), "{") {
		return "", "", false
	}
	var payload dynamicTokensKeyPayload
	if err := json.Unmarshal([]byte(key), &payload); err != nil {
		return "", "", false
	}
	if !payload.IsDynamicAuthProvider || payload.ProviderID == "" {
		return "", "", false
	}
	return payload.ProviderID, payload.ClientID, true
}

// DynamicProviderStore persists the durable state of dynamically created
// providers: the OAuth client registration and token sets in secret storage,
// plus a lightweight tracking list in plain settings so management UI can
// enumerate providers without touching secrets.
//
// Token sets may be refreshed by another process sharing the secret store;
// external writes are observed through the secret-change feed and
// rebroadcast as token-change events.
type DynamicProviderStore struct {
	secrets  SecretStore
	settings SettingsStore
	logger   Logger

	mu sync.Mutex
	// selfWrites suppresses the change-feed echo of this store's own writes.
	selfWrites map[string]int

	tokensChanges       *emitter[TokensChangeEvent]
	registrationChanges *emitter[ClientRegistration]
	unsubscribe         Unsubscribe
}

func NewDynamicProviderStore(secrets SecretStore, settings SettingsStore, logger Logger) *DynamicProviderStore {
	store := &DynamicProviderStore{
		secrets:             secrets,
		settings:            settings,
		logger:              logger,
		selfWrites:          map[string]int{},
		tokensChanges:       newEmitter[TokensChangeEvent](),
		registrationChanges: newEmitter[ClientRegistration](),
	}
	if secrets != nil {
		store.unsubscribe = secrets.OnDidChange(store.handleSecretChange)
	}
	return store
}

// Close tears down the secret-change subscription.
func (s *DynamicProviderStore) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
}

func registrationKey(providerID string) string {
	return dynamicRegistrationKeyPrefix + providerID
}

// ClientRegistration loads the persisted registration for a provider.
// Registrations written by early builds, a bare client id in plain settings,
// are migrated into secret storage on first read.
func (s *DynamicProviderStore) ClientRegistration(ctx context.Context, providerID string) (*ClientRegistration, error) {
	raw, found, err := s.secrets.Get(ctx, registrationKey(providerID))
	if err != nil {
		return nil, fmt.Errorf("core: reading client registration: %w", err)
	}
	if found && raw != "" {
		var registration ClientRegistration
		if err := json.Unmarshal([]byte(raw), &registration); err != nil {
			if s.logger != nil {
				s.logger.Warn("discarding unreadable client registration",
					"provider_id", providerID, "error", err)
			}
			return nil, nil
		}
		return &registration, nil
	}

	legacyID, found, err := s.settings.Get(ctx, legacyClientIDKeyPrefix+providerID, ScopeApplication)
	if err != nil || !found || legacyID == "" {
		return nil, err
	}
	registration := ClientRegistration{
		ProviderID: providerID,
		ClientID:   legacyID,
	}
	if err := s.StoreClientRegistration(ctx, registration); err != nil {
		return nil, err
	}
	if err := s.settings.Remove(ctx, legacyClientIDKeyPrefix+providerID, ScopeApplication); err != nil {
		return nil, err
	}
	return &registration, nil
}

// StoreClientRegistration persists the registration, upserts the provider's
// tracking entry, and notifies subscribers.
func (s *DynamicProviderStore) StoreClientRegistration(ctx context.Context, registration ClientRegistration) error {
	if strings.TrimSpace(registration.ProviderID) == "" {
		return fmt.Errorf("core: client registration is missing a provider id")
	}
	if strings.TrimSpace(registration.ClientID) == "" {
		return fmt.Errorf("core: client registration is missing a client id")
	}
	encoded, err := json.Marshal(registration)
	if err != nil {
		return fmt.Errorf("core: encoding client registration: %w", err)
	}
	key := registrationKey(registration.ProviderID)
	s.markSelfWrite(key)
	if err := s.secrets.Set(ctx, key, string(encoded)); err != nil {
		return err
	}
	if err := s.trackProvider(ctx, DynamicProviderInfo{
		ProviderID:          registration.ProviderID,
		Label:               registration.Label,
		AuthorizationServer: registration.AuthorizationServer,
		ClientID:            registration.ClientID,
	}); err != nil {
		return err
	}
	s.registrationChanges.Emit(registration)
	return nil
}

// InteractedProviders lists every dynamic provider the user has interacted
// with, whether or not it is currently registered.
func (s *DynamicProviderStore) InteractedProviders(ctx context.Context) ([]DynamicProviderInfo, error) {
	raw, found, err := s.settings.Get(ctx, dynamicTrackingKey, ScopeApplication)
	if err != nil {
		return nil, fmt.Errorf("core: reading dynamic provider list: %w", err)
	}
	if !found || raw == "" {
		return nil, nil
	}
	var tracked []DynamicProviderInfo
	if err := json.Unmarshal([]byte(raw), &tracked); err != nil {
		if s.logger != nil {
			s.logger.Warn("discarding unreadable dynamic provider list", "error", err)
		}
		return nil, nil
	}
	return tracked, nil
}

func (s *DynamicProviderStore) trackProvider(ctx context.Context, info DynamicProviderInfo) error {
	tracked, err := s.InteractedProviders(ctx)
	if err != nil {
		return err
	}
	replaced := false
	for i := range tracked {
		if tracked[i].ProviderID == info.ProviderID {
			tracked[i] = info
			replaced = true
			break
		}
	}
	if !replaced {
		tracked = append(tracked, info)
	}
	return s.writeTracked(ctx, tracked)
}

func (s *DynamicProviderStore) writeTracked(ctx context.Context, tracked []DynamicProviderInfo) error {
	if len(tracked) == 0 {
		return s.settings.Remove(ctx, dynamicTrackingKey, ScopeApplication)
	}
	encoded, err := json.Marshal(tracked)
	if err != nil {
		return fmt.Errorf("core: encoding dynamic provider list: %w", err)
	}
	return s.settings.Set(ctx, dynamicTrackingKey, string(encoded), ScopeApplication)
}

// SessionsForProvider loads the persisted token set for a provider's
// client. A record that does not look like a list of authorization token
// responses is deleted and treated as absent.
func (s *DynamicProviderStore) SessionsForProvider(ctx context.Context, providerID, clientID string) ([]AuthorizationToken, error) {
	key := tokensKey(providerID, clientID)
	raw, found, err := s.secrets.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("core: reading tokens: %w", err)
	}
	if !found || raw == "" {
		return nil, nil
	}
	tokens, err := decodeTokens(raw)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("deleting unreadable token set",
				"provider_id", providerID, "error", err)
		}
		s.markSelfWrite(key)
		if deleteErr := s.secrets.Delete(ctx, key); deleteErr != nil {
			return nil, deleteErr
		}
		return nil, nil
	}
	return tokens, nil
}

// SetSessionsForProvider replaces the persisted token set and notifies
// subscribers. Every token must carry an access token and creation
// timestamp.
func (s *DynamicProviderStore) SetSessionsForProvider(ctx context.Context, providerID, clientID string, tokens []AuthorizationToken) error {
	for _, token := range tokens {
		if err := token.Validate(); err != nil {
			return err
		}
	}
	key := tokensKey(providerID, clientID)
	s.markSelfWrite(key)
	if len(tokens) == 0 {
		if err := s.secrets.Delete(ctx, key); err != nil {
			return err
		}
	} else {
		encoded, err := json.Marshal(tokens)
		if err != nil {
			return fmt.Errorf("core: encoding token set: %w", err)
		}
		if err := s.secrets.Set(ctx, key, string(encoded)); err != nil {
			return err
		}
	}
	s.tokensChanges.Emit(TokensChangeEvent{
		ProviderID: providerID,
		ClientID:   clientID,
		Tokens:     append([]AuthorizationToken(nil), tokens...),
	})
	return nil
}

// RemoveDynamicProvider forgets a dynamic provider entirely: registration,
// token set, and the tracking entry. Deletion is best effort; the first
// failure is returned after attempting the rest.
func (s *DynamicProviderStore) RemoveDynamicProvider(ctx context.Context, providerID string) error {
	var firstErr error

	registration, err := s.ClientRegistration(ctx, providerID)
	if err != nil {
		firstErr = err
	}
	if registration != nil {
		key := tokensKey(providerID, registration.ClientID)
		s.markSelfWrite(key)
		if err := s.secrets.Delete(ctx, key); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	regKey := registrationKey(providerID)
	s.markSelfWrite(regKey)
	if err := s.secrets.Delete(ctx, regKey); err != nil && firstErr == nil {
		firstErr = err
	}

	tracked, err := s.InteractedProviders(ctx)
	if err != nil {
		if firstErr == nil {
			firstErr = err
		}
		return firstErr
	}
	kept := tracked[:0]
	for _, info := range tracked {
		if info.ProviderID != providerID {
			kept = append(kept, info)
		}
	}
	if err := s.writeTracked(ctx, kept); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (s *DynamicProviderStore) OnDidChangeTokens(fn func(TokensChangeEvent)) Unsubscribe {
	return s.tokensChanges.Subscribe(fn)
}

func (s *DynamicProviderStore) OnDidChangeRegistrations(fn func(ClientRegistration)) Unsubscribe {
	return s.registrationChanges.Subscribe(fn)
}

func (s *DynamicProviderStore) markSelfWrite(key string) {
	s.mu.Lock()
	s.selfWrites[key]++
	s.mu.Unlock()
}

func (s *DynamicProviderStore) consumeSelfWrite(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selfWrites[key] > 0 {
		s.selfWrites[key]--
		if s.selfWrites[key] == 0 {
			delete(s.selfWrites, key)
		}
		return true
	}
	return false
}

// handleSecretChange rebroadcasts token sets refreshed by another process
// sharing the secret store.
func (s *DynamicProviderStore) handleSecretChange(change SecretChange) {
	providerID, clientID, ok := parseTokensKey(change.Key)
	if !ok {
		return
	}
	if s.consumeSelfWrite(change.Key) {
		return
	}

	ctx := context.Background()
	raw, found, err := s.secrets.Get(ctx, change.Key)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("reading externally changed token set failed",
				"provider_id", providerID, "error", err)
		}
		return
	}
	var tokens []AuthorizationToken
	if found && raw != "" {
		tokens, err = decodeTokens(raw)
		if err != nil {
			if s.logger != nil {
				s.logger.Warn("ignoring unreadable external token set",
					"provider_id", providerID, "error", err)
			}
			return
		}
	}
	s.tokensChanges.Emit(TokensChangeEvent{
		ProviderID: providerID,
		ClientID:   clientID,
		Tokens:     tokens,
	})
}

func decodeTokens(raw string) ([]AuthorizationToken, error) {
	var tokens []AuthorizationToken
	if err := json.Unmarshal([]byte(raw), &tokens); err != nil {
		return nil, err
	}
	for _, token := range tokens {
		if err := token.Validate(); err != nil {
			return nil, err
		}
	}
	return tokens, nil
}
