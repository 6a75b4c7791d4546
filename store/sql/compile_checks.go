package sqlstore

import "github.com/goliatone/go-authbroker/core"

var (
	_ core.SettingsStore          = (*SettingsStore)(nil)
	_ core.SecretStore            = (*SecretStore)(nil)
	_ core.StoreProvider          = (*RepositoryFactory)(nil)
	_ core.RepositoryStoreFactory = (*RepositoryFactory)(nil)
)
