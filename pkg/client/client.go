// Package client provides the GraphQL client handed to components under test.
//
// A Client reads from a normalized cache, sends misses through a link chain
// and resolves @client fields locally with Resolvers.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
	"github.com/vektah/gqlparser/v2/validator"

	"github.com/getmockd/mockedprovider/pkg/cache"
	"github.com/getmockd/mockedprovider/pkg/graphql"
	"github.com/getmockd/mockedprovider/pkg/link"
	"github.com/getmockd/mockedprovider/pkg/logging"
)

// FetchPolicy controls how a query uses the cache.
type FetchPolicy int

const (
	// CacheFirst serves a query from the cache when every field is cached,
	// and otherwise fetches and writes the result.
	CacheFirst FetchPolicy = iota
	// NetworkOnly always fetches and writes the result to the cache.
	NetworkOnly
	// CacheOnly never fetches. A cache miss is an error.
	CacheOnly
)

// String returns the policy name.
func (p FetchPolicy) String() string {
	switch p {
	case CacheFirst:
		return "cache-first"
	case NetworkOnly:
		return "network-only"
	case CacheOnly:
		return "cache-only"
	default:
		return fmt.Sprintf("FetchPolicy(%d)", int(p))
	}
}

// ParseFetchPolicy parses a policy name as printed by String.
func ParseFetchPolicy(s string) (FetchPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "cache-first":
		return CacheFirst, nil
	case "network-only":
		return NetworkOnly, nil
	case "cache-only":
		return CacheOnly, nil
	default:
		return CacheFirst, fmt.Errorf("unknown fetch policy %q", s)
	}
}

// Client executes operations for components.
type Client struct {
	schema *graphql.Schema
	cache  *cache.InMemoryCache
	chain  link.NextLink
	logger *slog.Logger

	mu        sync.RWMutex
	resolvers Resolvers
}

// Option configures a Client.
type Option func(*Client)

// WithResolvers sets the resolvers for @client fields.
func WithResolvers(r Resolvers) Option {
	return func(c *Client) {
		c.resolvers = r
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logging.OrNop(logger)
	}
}

// New creates a client. A nil store gets a fresh cache; a supplied store
// learns the schema's abstract types so fragments on them read back.
func New(schema *graphql.Schema, store *cache.InMemoryCache, chain link.NextLink, opts ...Option) *Client {
	if store == nil {
		store = cache.New(cache.WithPossibleTypes(schema.PossibleTypesMap()))
	} else {
		store.AddPossibleTypes(schema.PossibleTypesMap())
	}
	c := &Client{
		schema: schema,
		cache:  store,
		chain:  chain,
		logger: logging.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.resolvers == nil {
		c.resolvers = Resolvers{}
	}
	return c
}

// Cache returns the client's cache.
func (c *Client) Cache() *cache.InMemoryCache {
	return c.cache
}

// Schema returns the schema operations are validated against.
func (c *Client) Schema() *graphql.Schema {
	return c.schema
}

// AddResolvers merges r into the client's @client resolvers.
func (c *Client) AddResolvers(r Resolvers) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resolvers = c.resolvers.Merge(r)
}

// QueryOption configures a single operation.
type QueryOption func(*queryOptions)

type queryOptions struct {
	operationName string
	fetchPolicy   FetchPolicy
}

// OperationName selects the operation to run from a multi-operation document.
func OperationName(name string) QueryOption {
	return func(o *queryOptions) {
		o.operationName = name
	}
}

// Policy sets the fetch policy for a query. Mutations ignore it.
func Policy(p FetchPolicy) QueryOption {
	return func(o *queryOptions) {
		o.fetchPolicy = p
	}
}

// Query runs a query operation.
func (c *Client) Query(ctx context.Context, query string, variables map[string]any, opts ...QueryOption) *Result {
	return c.run(ctx, ast.Query, query, variables, opts)
}

// Mutate runs a mutation. Results are always written to the cache.
func (c *Client) Mutate(ctx context.Context, mutation string, variables map[string]any, opts ...QueryOption) *Result {
	return c.run(ctx, ast.Mutation, mutation, variables, opts)
}

// Do runs the operation a request names, whatever its kind.
func (c *Client) Do(ctx context.Context, req *graphql.Request, opts ...QueryOption) *Result {
	if req == nil {
		return errorResult(errors.New("request is required"))
	}
	opts = append([]QueryOption{OperationName(req.OperationName)}, opts...)
	return c.run(ctx, "", req.Query, req.Variables, opts)
}

// QueryAsync starts a query on its own goroutine.
func (c *Client) QueryAsync(ctx context.Context, query string, variables map[string]any, opts ...QueryOption) *Pending {
	p := &Pending{done: make(chan struct{})}
	go func() {
		defer close(p.done)
		p.result = c.Query(ctx, query, variables, opts...)
	}()
	return p
}

// operation is a parsed client operation.
type operation struct {
	doc       *ast.QueryDocument
	def       *ast.OperationDefinition
	serverDoc *ast.QueryDocument
	serverDef *ast.OperationDefinition
	variables map[string]any
}

// local reports whether every field of the operation is an @client field.
func (o *operation) local() bool {
	return len(o.serverDef.SelectionSet) == 0
}

func (c *Client) run(ctx context.Context, kind ast.Operation, query string, variables map[string]any, opts []QueryOption) *Result {
	o := queryOptions{fetchPolicy: CacheFirst}
	for _, opt := range opts {
		opt(&o)
	}

	op, err := c.prepare(query, o.operationName)
	if err != nil {
		return errorResult(err)
	}
	if kind != "" && op.def.Operation != kind {
		return errorResult(fmt.Errorf("expected a %s operation, got %s", kind, op.def.Operation))
	}
	op.variables = graphql.VariablesWithDefaults(op.def, variables)

	if op.local() {
		res := &Result{Data: map[string]any{}}
		c.resolveClientFields(ctx, op, res)
		return res
	}

	if op.def.Operation == ast.Query && o.fetchPolicy != NetworkOnly {
		data, err := c.cache.Read(op.doc, op.def, op.variables)
		switch {
		case err == nil:
			c.logger.Debug("cache hit", "operation", op.def.Name)
			res := &Result{Data: data, FromCache: true}
			c.resolveClientFields(ctx, op, res)
			return res
		case o.fetchPolicy == CacheOnly:
			return errorResult(err)
		case !errors.Is(err, cache.ErrMissingField):
			c.logger.Warn("cache read failed", "operation", op.def.Name, "error", err)
		}
	}

	res := c.fetch(ctx, op, query)

	if res.Data != nil && (op.def.Operation == ast.Mutation || len(res.Errors) == 0) {
		if err := c.cache.Write(op.serverDoc, op.serverDef, op.variables, res.Data); err != nil {
			c.logger.Warn("cache write failed", "operation", op.def.Name, "error", err)
		}
	}

	c.resolveClientFields(ctx, op, res)
	return res
}

// prepare parses the query, adds __typename selections and derives the
// document sent through the link chain.
func (c *Client) prepare(query, operationName string) (*operation, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("query is required")
	}

	doc, parseErr := parser.ParseQuery(&ast.Source{Name: "query", Input: query})
	if parseErr != nil {
		return nil, fmt.Errorf("%w: %s", graphql.ErrInvalidQuery, parseErr.Error())
	}
	cache.AddTypename(doc)

	def, err := graphql.SelectOperation(doc, operationName)
	if err != nil {
		return nil, err
	}

	serverDoc := stripClientFields(doc)
	serverDef, err := graphql.SelectOperation(serverDoc, def.Name)
	if err != nil {
		return nil, err
	}
	op := &operation{doc: doc, def: def, serverDoc: serverDoc, serverDef: serverDef}
	if op.local() {
		return op, nil
	}

	if errs := validator.Validate(c.schema.AST(), serverDoc); len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s", graphql.ErrInvalidQuery, errs[0].Message)
	}
	return op, nil
}

func (c *Client) fetch(ctx context.Context, op *operation, query string) *Result {
	if c.chain == nil {
		return errorResult(errors.New("client has no link chain"))
	}
	resp := c.chain(ctx, &link.Operation{
		Name:      op.def.Name,
		Kind:      op.def.Operation,
		Query:     query,
		Document:  op.serverDoc,
		Variables: op.variables,
	})
	if resp == nil {
		return errorResult(errors.New("link chain returned no response"))
	}
	return &Result{Data: resp.Data, Errors: resp.Errors}
}

func (c *Client) currentResolvers() Resolvers {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.resolvers
}

func errorResult(err error) *Result {
	return &Result{Errors: []*graphql.Error{{Message: err.Error()}}}
}

type contextKey struct{}

// NewContext returns a context carrying c.
func NewContext(ctx context.Context, c *Client) context.Context {
	return context.WithValue(ctx, contextKey{}, c)
}

// FromContext returns the client stored by NewContext.
func FromContext(ctx context.Context) (*Client, bool) {
	c, ok := ctx.Value(contextKey{}).(*Client)
	return c, ok
}
