package query

import (
	"github.com/goliatone/go-authbroker/core"
	gocmd "github.com/goliatone/go-command"
)

var (
	_ gocmd.Querier[ListAccountsMessage, []core.Account]                     = (*ListAccountsQuery)(nil)
	_ gocmd.Querier[ReadAccountUsagesMessage, []core.AccountUsage]           = (*ReadAccountUsagesQuery)(nil)
	_ gocmd.Querier[ReadAccessEntriesMessage, []core.AccessEntry]            = (*ReadAccessEntriesQuery)(nil)
	_ gocmd.Querier[ListSignInRequestsMessage, []core.SignInRequest]         = (*ListSignInRequestsQuery)(nil)
	_ gocmd.Querier[ListAccessRequestsMessage, []core.AccessRequest]         = (*ListAccessRequestsQuery)(nil)
	_ gocmd.Querier[ListDynamicProvidersMessage, []core.DynamicProviderInfo] = (*ListDynamicProvidersQuery)(nil)
)
