package query

import (
	"context"

	"github.com/goliatone/go-authbroker/core"
)

// AccountsReader is the slice of the broker the accounts query needs.
// *core.Service satisfies it.
type AccountsReader interface {
	GetAccounts(ctx context.Context, providerID string) ([]core.Account, error)
}

// UsageReader is satisfied by *core.UsageTracker.
type UsageReader interface {
	ReadAccountUsages(ctx context.Context, providerID, accountLabel string) ([]core.AccountUsage, error)
}

// AccessReader is satisfied by *core.AccessControlStore.
type AccessReader interface {
	ReadEntries(ctx context.Context, providerID, accountLabel string) ([]core.AccessEntry, error)
}

// RequestReader is satisfied by *core.RequestTracker.
type RequestReader interface {
	SignInRequests(providerID string) []core.SignInRequest
	AccessRequests(providerID string) []core.AccessRequest
}

// DynamicProviderReader is satisfied by *core.DynamicProviderStore.
type DynamicProviderReader interface {
	InteractedProviders(ctx context.Context) ([]core.DynamicProviderInfo, error)
}

type ListAccountsQuery struct {
	reader AccountsReader
}

func NewListAccountsQuery(reader AccountsReader) *ListAccountsQuery {
	return &ListAccountsQuery{reader: reader}
}

func (q *ListAccountsQuery) Query(ctx context.Context, msg ListAccountsMessage) ([]core.Account, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: accounts reader is required")
	}
	return q.reader.GetAccounts(ctx, msg.ProviderID)
}

type ReadAccountUsagesQuery struct {
	reader UsageReader
}

func NewReadAccountUsagesQuery(reader UsageReader) *ReadAccountUsagesQuery {
	return &ReadAccountUsagesQuery{reader: reader}
}

func (q *ReadAccountUsagesQuery) Query(ctx context.Context, msg ReadAccountUsagesMessage) ([]core.AccountUsage, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: usage reader is required")
	}
	return q.reader.ReadAccountUsages(ctx, msg.ProviderID, msg.AccountLabel)
}

type ReadAccessEntriesQuery struct {
	reader AccessReader
}

func NewReadAccessEntriesQuery(reader AccessReader) *ReadAccessEntriesQuery {
	return &ReadAccessEntriesQuery{reader: reader}
}

func (q *ReadAccessEntriesQuery) Query(ctx context.Context, msg ReadAccessEntriesMessage) ([]core.AccessEntry, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: access reader is required")
	}
	return q.reader.ReadEntries(ctx, msg.ProviderID, msg.AccountLabel)
}

type ListSignInRequestsQuery struct {
	reader RequestReader
}

func NewListSignInRequestsQuery(reader RequestReader) *ListSignInRequestsQuery {
	return &ListSignInRequestsQuery{reader: reader}
}

func (q *ListSignInRequestsQuery) Query(_ context.Context, msg ListSignInRequestsMessage) ([]core.SignInRequest, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: request reader is required")
	}
	return q.reader.SignInRequests(msg.ProviderID), nil
}

type ListAccessRequestsQuery struct {
	reader RequestReader
}

func NewListAccessRequestsQuery(reader RequestReader) *ListAccessRequestsQuery {
	return &ListAccessRequestsQuery{reader: reader}
}

func (q *ListAccessRequestsQuery) Query(_ context.Context, msg ListAccessRequestsMessage) ([]core.AccessRequest, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: request reader is required")
	}
	return q.reader.AccessRequests(msg.ProviderID), nil
}

type ListDynamicProvidersQuery struct {
	reader DynamicProviderReader
}

func NewListDynamicProvidersQuery(reader DynamicProviderReader) *ListDynamicProvidersQuery {
	return &ListDynamicProvidersQuery{reader: reader}
}

func (q *ListDynamicProvidersQuery) Query(ctx context.Context, _ ListDynamicProvidersMessage) ([]core.DynamicProviderInfo, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: dynamic provider reader is required")
	}
	return q.reader.InteractedProviders(ctx)
}
