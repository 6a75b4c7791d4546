package core

import (
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
	if err := (Config{}).Validate(); err == nil {
		t.Fatalf("empty service name must fail validation")
	}
	if err := (Config{ServiceName: "authbroker", ActivationTimeoutMS: -1}).Validate(); err == nil {
		t.Fatalf("negative timeout must fail validation")
	}
	if err := (Config{
		ServiceName:           "authbroker",
		PreferenceInheritance: map[string][]string{"": {"child"}},
	}).Validate(); err == nil {
		t.Fatalf("blank inheritance parent must fail validation")
	}
	if err := (Config{
		ServiceName:           "authbroker",
		PreferenceInheritance: map[string][]string{"suite": {" "}},
	}).Validate(); err == nil {
		t.Fatalf("blank inheritance child must fail validation")
	}
}

func TestConfigActivationTimeout(t *testing.T) {
	if got := (Config{}).activationTimeout(); got != defaultActivationTimeout {
		t.Fatalf("expected default timeout, got %v", got)
	}
	if got := (Config{ActivationTimeoutMS: 250}).activationTimeout(); got != 250*time.Millisecond {
		t.Fatalf("expected 250ms, got %v", got)
	}
}
