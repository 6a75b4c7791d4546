package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[GetSessionMessage]              = (*GetSessionCommand)(nil)
	_ gocmd.Commander[CreateSessionMessage]           = (*CreateSessionCommand)(nil)
	_ gocmd.Commander[RemoveSessionMessage]           = (*RemoveSessionCommand)(nil)
	_ gocmd.Commander[SignOutAccountMessage]          = (*SignOutAccountCommand)(nil)
	_ gocmd.Commander[ClearPreferenceMessage]         = (*ClearPreferenceCommand)(nil)
	_ gocmd.Commander[CreateDynamicProviderMessage]   = (*CreateDynamicProviderCommand)(nil)
	_ gocmd.Commander[RegisterDynamicProviderMessage] = (*RegisterDynamicProviderCommand)(nil)
	_ gocmd.Commander[RemoveDynamicProviderMessage]   = (*RemoveDynamicProviderCommand)(nil)
)
