// Package mockedprovider builds mock GraphQL providers for component tests.
//
// New compiles a schema once. Every Render then builds a client whose
// operations run through the configured links against an executor that mocks
// any field the custom resolvers leave out, and hands that client to the
// rendered components through their context.
//
// Basic usage:
//
//	provider, err := mockedprovider.New(typeDefs, mockedprovider.Config{})
//	if err != nil {
//		return err
//	}
//	provider.Render(ctx, mockedprovider.Props{
//		CustomResolvers: graphql.MockResolvers{
//			"Query": func() any {
//				return map[string]any{"todos": []any{map[string]any{"text": "First"}}}
//			},
//		},
//	}, func(ctx context.Context) {
//		c, _ := client.FromContext(ctx)
//		res := c.Query(ctx, `{ todos { text } }`, nil)
//		...
//	})
package mockedprovider

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/getmockd/mockedprovider/pkg/cache"
	"github.com/getmockd/mockedprovider/pkg/client"
	"github.com/getmockd/mockedprovider/pkg/graphql"
	"github.com/getmockd/mockedprovider/pkg/link"
	"github.com/getmockd/mockedprovider/pkg/logging"
)

// Component is a unit of code under test. It finds its client with
// client.FromContext.
type Component func(ctx context.Context)

// Provider makes a client available to children and runs them.
type Provider func(ctx context.Context, c *client.Client, children ...Component)

// LinkContext is passed to a LinksBuilder.
type LinkContext struct {
	Cache  *cache.InMemoryCache
	Schema *graphql.Schema
}

// LinksBuilder returns the links placed before the schema link, in order.
type LinksBuilder func(LinkContext) []link.Link

// Config holds the factory options shared by every render.
type Config struct {
	// CustomResolvers override mocks per type name.
	CustomResolvers graphql.MockResolvers
	// ClientResolvers resolve @client fields.
	ClientResolvers client.Resolvers
	// Cache is shared by every render that does not supply its own.
	Cache *cache.InMemoryCache
	// Links builds the request middleware for each render.
	Links LinksBuilder
	// Provider replaces DefaultProvider.
	Provider Provider
	// Logger receives execution and link diagnostics.
	Logger *slog.Logger
	// Seed makes generated mock values deterministic when set.
	Seed *uint64
	// ExecutorOptions are applied to every executor after the options above.
	ExecutorOptions []graphql.Option
}

// Props are per-render overrides of Config.
type Props struct {
	CustomResolvers graphql.MockResolvers
	ClientResolvers client.Resolvers
	Cache           *cache.InMemoryCache
}

// MockedProvider renders components against a mocked schema.
type MockedProvider struct {
	schema *graphql.Schema
	cfg    Config
	logger *slog.Logger
}

// New compiles typeDefs and returns a provider. Schema errors are returned here.
func New(typeDefs string, cfg Config) (*MockedProvider, error) {
	schema, err := graphql.ParseSchema(typeDefs)
	if err != nil {
		return nil, fmt.Errorf("mockedprovider: %w", err)
	}
	return NewWithSchema(schema, cfg), nil
}

// NewFromFile reads the schema from path and returns a provider.
func NewFromFile(path string, cfg Config) (*MockedProvider, error) {
	schema, err := graphql.ParseSchemaFile(path)
	if err != nil {
		return nil, fmt.Errorf("mockedprovider: %w", err)
	}
	return NewWithSchema(schema, cfg), nil
}

// NewWithSchema returns a provider for an already compiled schema.
func NewWithSchema(schema *graphql.Schema, cfg Config) *MockedProvider {
	return &MockedProvider{
		schema: schema,
		cfg:    cfg,
		logger: logging.OrNop(cfg.Logger),
	}
}

// Schema returns the compiled schema.
func (p *MockedProvider) Schema() *graphql.Schema {
	return p.schema
}

// Executor returns an executor using the configured custom resolvers
// overlaid by overrides.
func (p *MockedProvider) Executor(overrides graphql.MockResolvers) *graphql.Executor {
	opts := []graphql.Option{
		graphql.WithMocks(p.cfg.CustomResolvers.Merge(overrides)),
		graphql.WithLogger(p.logger),
	}
	if p.cfg.Seed != nil {
		opts = append(opts, graphql.WithSeed(*p.cfg.Seed))
	}
	opts = append(opts, p.cfg.ExecutorOptions...)
	return graphql.NewExecutor(p.schema, opts...)
}

// Client builds the client a render would hand to its children.
func (p *MockedProvider) Client(props Props) *client.Client {
	store := props.Cache
	if store == nil {
		store = p.cfg.Cache
	}
	if store == nil {
		store = cache.New(cache.WithPossibleTypes(p.schema.PossibleTypesMap()))
	}

	var links []link.Link
	if p.cfg.Links != nil {
		links = p.cfg.Links(LinkContext{Cache: store, Schema: p.schema})
	}
	chain := link.Chain(link.NewSchemaLink(p.Executor(props.CustomResolvers)), links...)

	return client.New(p.schema, store, chain,
		client.WithResolvers(p.cfg.ClientResolvers.Merge(props.ClientResolvers)),
		client.WithLogger(p.logger),
	)
}

// Render builds a client for props and passes it with children to the
// provider. It returns the client so callers can inspect its cache.
func (p *MockedProvider) Render(ctx context.Context, props Props, children ...Component) *client.Client {
	c := p.Client(props)
	provider := p.cfg.Provider
	if provider == nil {
		provider = DefaultProvider
	}
	provider(ctx, c, children...)
	return c
}

// DefaultProvider stores c in the context and runs each child in order.
func DefaultProvider(ctx context.Context, c *client.Client, children ...Component) {
	ctx = client.NewContext(ctx, c)
	for _, child := range children {
		if child != nil {
			child(ctx)
		}
	}
}
