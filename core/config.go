package core

import (
	"fmt"
	"strings"
	"time"
)

const defaultActivationTimeout = 5 * time.Minute

// TrustedRequestersConfig accepts both shapes the product configuration has
// used: a flat list of requester ids trusted for every provider, and a map
// keyed by provider id.
type TrustedRequestersConfig struct {
	All        []string            `koanf:"all" mapstructure:"all"`
	ByProvider map[string][]string `koanf:"by_provider" mapstructure:"by_provider"`
}

type DynamicProvidersConfig struct {
	// ClientIDMetadataURL is the product-level well-known client id served
	// as a client-id metadata document; supplied to authorization servers
	// that advertise support for the discovery mechanism.
	ClientIDMetadataURL string `koanf:"client_id_metadata_url" mapstructure:"client_id_metadata_url"`
}

type Config struct {
	ServiceName string `koanf:"service_name" mapstructure:"service_name"`

	TrustedRequesters TrustedRequestersConfig `koanf:"trusted_requesters" mapstructure:"trusted_requesters"`

	// PreferenceInheritance maps a parent requester group to the child
	// requester ids that share its account-preference slot.
	PreferenceInheritance map[string][]string `koanf:"preference_inheritance" mapstructure:"preference_inheritance"`

	// ActivationTimeoutMS bounds the wait for a declared provider to
	// activate and self-register. Zero means the default of five minutes.
	ActivationTimeoutMS int64 `koanf:"activation_timeout_ms" mapstructure:"activation_timeout_ms"`

	DynamicProviders DynamicProvidersConfig `koanf:"dynamic_providers" mapstructure:"dynamic_providers"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "authbroker",
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.ActivationTimeoutMS < 0 {
		return fmt.Errorf("core: activation_timeout_ms must not be negative")
	}
	for parent, children := range c.PreferenceInheritance {
		if strings.TrimSpace(parent) == "" {
			return fmt.Errorf("core: preference_inheritance parent id is required")
		}
		for _, child := range children {
			if strings.TrimSpace(child) == "" {
				return fmt.Errorf("core: preference_inheritance child id is required (parent %q)", parent)
			}
		}
	}
	return nil
}

func (c Config) activationTimeout() time.Duration {
	if c.ActivationTimeoutMS > 0 {
		return time.Duration(c.ActivationTimeoutMS) * time.Millisecond
	}
	return defaultActivationTimeout
}
