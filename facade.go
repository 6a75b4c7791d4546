package authbroker

import (
	"fmt"

	brokercommand "github.com/goliatone/go-authbroker/command"
	"github.com/goliatone/go-authbroker/core"
	brokerquery "github.com/goliatone/go-authbroker/query"
)

type CommandQueryService interface {
	brokercommand.MutatingService
	brokerquery.AccountsReader
}

type Commands struct {
	GetSession              *brokercommand.GetSessionCommand
	CreateSession           *brokercommand.CreateSessionCommand
	RemoveSession           *brokercommand.RemoveSessionCommand
	SignOutAccount          *brokercommand.SignOutAccountCommand
	ClearPreference         *brokercommand.ClearPreferenceCommand
	CreateDynamicProvider   *brokercommand.CreateDynamicProviderCommand
	RegisterDynamicProvider *brokercommand.RegisterDynamicProviderCommand
	RemoveDynamicProvider   *brokercommand.RemoveDynamicProviderCommand
}

type Queries struct {
	ListAccounts         *brokerquery.ListAccountsQuery
	ReadAccountUsages    *brokerquery.ReadAccountUsagesQuery
	ReadAccessEntries    *brokerquery.ReadAccessEntriesQuery
	ListSignInRequests   *brokerquery.ListSignInRequestsQuery
	ListAccessRequests   *brokerquery.ListAccessRequestsQuery
	ListDynamicProviders *brokerquery.ListDynamicProvidersQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	usageReader   brokerquery.UsageReader
	accessReader  brokerquery.AccessReader
	requestReader brokerquery.RequestReader
	dynamicReader brokerquery.DynamicProviderReader
}

func WithUsageReader(reader brokerquery.UsageReader) FacadeOption {
	return func(options *facadeOptions) {
		options.usageReader = reader
	}
}

func WithAccessReader(reader brokerquery.AccessReader) FacadeOption {
	return func(options *facadeOptions) {
		options.accessReader = reader
	}
}

func WithRequestReader(reader brokerquery.RequestReader) FacadeOption {
	return func(options *facadeOptions) {
		options.requestReader = reader
	}
}

func WithDynamicProviderReader(reader brokerquery.DynamicProviderReader) FacadeOption {
	return func(options *facadeOptions) {
		options.dynamicReader = reader
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("authbroker: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}
	resolveReaders(service, &cfg)

	facade := &Facade{service: service}
	facade.commands = Commands{
		GetSession:              brokercommand.NewGetSessionCommand(service),
		CreateSession:           brokercommand.NewCreateSessionCommand(service),
		RemoveSession:           brokercommand.NewRemoveSessionCommand(service),
		SignOutAccount:          brokercommand.NewSignOutAccountCommand(service),
		ClearPreference:         brokercommand.NewClearPreferenceCommand(service),
		CreateDynamicProvider:   brokercommand.NewCreateDynamicProviderCommand(service),
		RegisterDynamicProvider: brokercommand.NewRegisterDynamicProviderCommand(service),
		RemoveDynamicProvider:   brokercommand.NewRemoveDynamicProviderCommand(service),
	}
	facade.queries = Queries{
		ListAccounts:         brokerquery.NewListAccountsQuery(service),
		ReadAccountUsages:    brokerquery.NewReadAccountUsagesQuery(cfg.usageReader),
		ReadAccessEntries:    brokerquery.NewReadAccessEntriesQuery(cfg.accessReader),
		ListSignInRequests:   brokerquery.NewListSignInRequestsQuery(cfg.requestReader),
		ListAccessRequests:   brokerquery.NewListAccessRequestsQuery(cfg.requestReader),
		ListDynamicProviders: brokerquery.NewListDynamicProvidersQuery(cfg.dynamicReader),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

// resolveReaders fills unset read-side collaborators from the service's own
// dependency graph when it exposes one.
func resolveReaders(service CommandQueryService, cfg *facadeOptions) {
	provider, ok := service.(interface {
		Dependencies() core.ServiceDependencies
	})
	if !ok {
		return
	}
	deps := provider.Dependencies()
	if cfg.usageReader == nil && deps.UsageTracker != nil {
		cfg.usageReader = deps.UsageTracker
	}
	if cfg.accessReader == nil && deps.AccessStore != nil {
		cfg.accessReader = deps.AccessStore
	}
	if cfg.requestReader == nil && deps.RequestTracker != nil {
		cfg.requestReader = deps.RequestTracker
	}
	if cfg.dynamicReader == nil && deps.DynamicStore != nil {
		cfg.dynamicReader = deps.DynamicStore
	}
}
