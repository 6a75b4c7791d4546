package core

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"
)

var (
	ErrInvalidScopeRequest = errors.New("core: invalid scope request")
	ErrInvalidProviderMeta = errors.New("core: invalid provider metadata")
)

// OAuth2 prohibits a space inside a scope, so it is a safe join separator.
const scopeListSeparator = " "

type Account struct {
	ID    string
	Label string
}

type Session struct {
	ID          string
	AccessToken string
	Account     Account
	Scopes      []string
	IDToken     string
	ExpiresAt   *time.Time
}

// ScopeRequest is the tagged request shape accepted by the broker: either a
// plain scope list or a structured WWW-Authenticate challenge with optional
// fallback scopes for providers that cannot interpret the challenge.
type ScopeRequest struct {
	Scopes    []string
	Challenge *Challenge
}

type Challenge struct {
	WWWAuthenticate string
	FallbackScopes  []string
}

func ScopesRequest(scopes ...string) ScopeRequest {
	return ScopeRequest{Scopes: append([]string(nil), scopes...)}
}

func ChallengeRequest(wwwAuthenticate string, fallbackScopes ...string) ScopeRequest {
	return ScopeRequest{Challenge: &Challenge{
		WWWAuthenticate: wwwAuthenticate,
		FallbackScopes:  append([]string(nil), fallbackScopes...),
	}}
}

func (r ScopeRequest) IsChallenge() bool {
	return r.Challenge != nil
}

// EffectiveScopes returns the scope list candidate sessions are matched
// against: the plain scopes, or the challenge's fallback scopes.
func (r ScopeRequest) EffectiveScopes() []string {
	if r.Challenge != nil {
		return append([]string(nil), r.Challenge.FallbackScopes...)
	}
	return append([]string(nil), r.Scopes...)
}

// Key returns the deterministic dedupe key for this request. Scope order is
// insignificant, so scopes are sorted before joining.
func (r ScopeRequest) Key() string {
	if r.Challenge != nil {
		return r.Challenge.WWWAuthenticate + ":" + NormalizeScopes(r.Challenge.FallbackScopes)
	}
	return NormalizeScopes(r.Scopes)
}

func (r ScopeRequest) Validate() error {
	if r.Challenge != nil && strings.TrimSpace(r.Challenge.WWWAuthenticate) == "" {
		return fmt.Errorf("%w: empty challenge", ErrInvalidScopeRequest)
	}
	return nil
}

func NormalizeScopes(scopes []string) string {
	sorted := append([]string(nil), scopes...)
	sort.Strings(sorted)
	return strings.Join(sorted, scopeListSeparator)
}

// ScopesMatch reports whether two scope sets are equal ignoring order.
func ScopesMatch(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	return NormalizeScopes(a) == NormalizeScopes(b)
}

type ProviderInfo struct {
	ID    string
	Label string
}

// DeclaredProvider is a provider advertised by static metadata before its
// implementation has been activated.
type DeclaredProvider struct {
	ID                       string
	Label                    string
	AuthorizationServerGlobs []string
}

func (d DeclaredProvider) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return fmt.Errorf("%w: declared provider id is required", ErrInvalidProviderMeta)
	}
	if strings.TrimSpace(d.Label) == "" {
		return fmt.Errorf("%w: declared provider label is required", ErrInvalidProviderMeta)
	}
	return nil
}

type SessionsChange struct {
	Added   []Session
	Removed []Session
	Changed []Session
}

type SessionsChangeEvent struct {
	ProviderID    string
	ProviderLabel string
	Change        SessionsChange
}

// Access is the tri-state answer of the access-control store. Unknown means
// no decision has been recorded yet and is distinct from an explicit deny.
type Access int

const (
	AccessUnknown Access = iota
	AccessAllowed
	AccessDenied
)

func (a Access) Granted() bool { return a == AccessAllowed }

type AccessEntry struct {
	RequesterID string `json:"requesterId"`
	Name        string `json:"name"`
	Allowed     bool   `json:"allowed"`
	// Trusted entries come from static product configuration and are never
	// written to durable storage.
	Trusted bool `json:"-"`
}

type AccessChangeEvent struct {
	ProviderID   string
	AccountLabel string
}

type AccountUsage struct {
	RequesterID   string   `json:"requesterId"`
	RequesterName string   `json:"requesterName"`
	Scopes        []string `json:"scopes,omitempty"`
	LastUsedAt    int64    `json:"lastUsedAt"`
}

type PreferenceChangeEvent struct {
	ProviderID   string
	RequesterIDs []string
}

// ClientRegistration is the dynamic OAuth client identity persisted for a
// provider discovered at runtime.
type ClientRegistration struct {
	ProviderID          string `json:"providerId"`
	AuthorizationServer string `json:"authorizationServer"`
	ClientID            string `json:"clientId"`
	ClientSecret        string `json:"clientSecret,omitempty"`
	Label               string `json:"label,omitempty"`
}

// DynamicProviderInfo is the lightweight tracking record kept in plain
// settings storage for every dynamic provider the user interacted with.
type DynamicProviderInfo struct {
	ProviderID          string `json:"providerId"`
	Label               string `json:"label"`
	AuthorizationServer string `json:"authorizationServer"`
	ClientID            string `json:"clientId"`
}

// AuthorizationToken mirrors an OAuth token endpoint response plus the
// broker-added creation timestamp (unix milliseconds) used to compute expiry.
type AuthorizationToken struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
	Scope        string `json:"scope,omitempty"`
	CreatedAt    int64  `json:"created_at"`
}

func (t AuthorizationToken) Validate() error {
	if strings.TrimSpace(t.AccessToken) == "" {
		return fmt.Errorf("core: authorization token is missing an access token")
	}
	if t.CreatedAt <= 0 {
		return fmt.Errorf("core: authorization token is missing a creation timestamp")
	}
	return nil
}

type TokensChangeEvent struct {
	ProviderID string
	ClientID   string
	Tokens     []AuthorizationToken
}

type AuthorizationServerMetadata struct {
	Issuer                            string `json:"issuer"`
	RegistrationEndpoint              string `json:"registration_endpoint,omitempty"`
	ClientIDMetadataDocumentSupported bool   `json:"client_id_metadata_document_supported,omitempty"`
}

// DynamicProviderID derives the deterministic provider id for an
// authorization server, combined with the resource server when one governs a
// distinct logical provider instance.
func DynamicProviderID(authorizationServer, resourceServer string) string {
	server := NormalizeServerURI(authorizationServer)
	resource := strings.TrimSpace(resourceServer)
	if resource == "" {
		return server
	}
	return server + " " + resource
}

// NormalizeServerURI produces the canonical comparison form of an
// authorization/resource server identifier: lowercased, default ports and
// trailing slashes removed. Unparseable values fall back to a trimmed,
// lowercased string so exact matching still works.
func NormalizeServerURI(raw string) string {
	trimmed := strings.TrimSpace(raw)
	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Scheme == "" {
		return strings.TrimRight(strings.ToLower(trimmed), "/")
	}
	scheme := strings.ToLower(parsed.Scheme)
	host := strings.ToLower(parsed.Host)
	if scheme == "https" {
		host = strings.TrimSuffix(host, ":443")
	}
	if scheme == "http" {
		host = strings.TrimSuffix(host, ":80")
	}
	path := strings.TrimRight(parsed.Path, "/")
	out := scheme + "://" + host + path
	if parsed.RawQuery != "" {
		out += "?" + strings.ToLower(parsed.RawQuery)
	}
	return out
}

// ServerURIsMatch compares two server identifiers case-insensitively on
// their normalized URI strings.
func ServerURIsMatch(a, b string) bool {
	return NormalizeServerURI(a) == NormalizeServerURI(b)
}

// MatchServerGlob reports whether a declared provider's authorization-server
// pattern matches the candidate URI. Patterns may be exact strings or use
// `*` wildcards; matching is case-insensitive on normalized URIs.
func MatchServerGlob(pattern, candidate string) bool {
	normalizedPattern := NormalizeServerURI(pattern)
	normalizedCandidate := NormalizeServerURI(candidate)
	if normalizedPattern == normalizedCandidate {
		return true
	}
	if !strings.Contains(normalizedPattern, "*") {
		return false
	}
	segments := strings.Split(normalizedPattern, "*")
	for i, segment := range segments {
		segments[i] = regexp.QuoteMeta(segment)
	}
	matcher, err := regexp.Compile("^" + strings.Join(segments, ".*") + "$")
	if err != nil {
		return false
	}
	return matcher.MatchString(normalizedCandidate)
}
