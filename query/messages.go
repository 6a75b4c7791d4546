package query

import "strings"

const (
	TypeListAccounts         = "authbroker.query.accounts.list"
	TypeReadAccountUsages    = "authbroker.query.usages.read"
	TypeReadAccessEntries    = "authbroker.query.access.read"
	TypeListSignInRequests   = "authbroker.query.requests.sign_ins"
	TypeListAccessRequests   = "authbroker.query.requests.accesses"
	TypeListDynamicProviders = "authbroker.query.dynamic_providers.list"
)

type ListAccountsMessage struct {
	ProviderID string
}

func (ListAccountsMessage) Type() string { return TypeListAccounts }

func (m ListAccountsMessage) Validate() error {
	if strings.TrimSpace(m.ProviderID) == "" {
		return queryValidationError("provider_id", "provider id is required")
	}
	return nil
}

type ReadAccountUsagesMessage struct {
	ProviderID   string
	AccountLabel string
}

func (ReadAccountUsagesMessage) Type() string { return TypeReadAccountUsages }

func (m ReadAccountUsagesMessage) Validate() error {
	if strings.TrimSpace(m.ProviderID) == "" {
		return queryValidationError("provider_id", "provider id is required")
	}
	if strings.TrimSpace(m.AccountLabel) == "" {
		return queryValidationError("account_label", "account label is required")
	}
	return nil
}

type ReadAccessEntriesMessage struct {
	ProviderID   string
	AccountLabel string
}

func (ReadAccessEntriesMessage) Type() string { return TypeReadAccessEntries }

func (m ReadAccessEntriesMessage) Validate() error {
	if strings.TrimSpace(m.ProviderID) == "" {
		return queryValidationError("provider_id", "provider id is required")
	}
	if strings.TrimSpace(m.AccountLabel) == "" {
		return queryValidationError("account_label", "account label is required")
	}
	return nil
}

type ListSignInRequestsMessage struct {
	ProviderID string
}

func (ListSignInRequestsMessage) Type() string { return TypeListSignInRequests }

func (m ListSignInRequestsMessage) Validate() error {
	if strings.TrimSpace(m.ProviderID) == "" {
		return queryValidationError("provider_id", "provider id is required")
	}
	return nil
}

type ListAccessRequestsMessage struct {
	ProviderID string
}

func (ListAccessRequestsMessage) Type() string { return TypeListAccessRequests }

func (m ListAccessRequestsMessage) Validate() error {
	if strings.TrimSpace(m.ProviderID) == "" {
		return queryValidationError("provider_id", "provider id is required")
	}
	return nil
}

type ListDynamicProvidersMessage struct{}

func (ListDynamicProvidersMessage) Type() string { return TypeListDynamicProviders }

func (ListDynamicProvidersMessage) Validate() error { return nil }
