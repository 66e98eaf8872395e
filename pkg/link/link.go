// Package link implements the request middleware chain a mock client sends
// operations through.
//
// Each Link receives the operation and a forward function that hands it to
// the next link. The chain always ends in a terminating link, normally a
// SchemaLink executing the operation against the mock schema.
package link

import (
	"context"
	"sync"

	"github.com/vektah/gqlparser/v2/ast"

	"github.com/getmockd/mockedprovider/pkg/graphql"
)

// Operation is a GraphQL operation travelling through the link chain.
type Operation struct {
	// Name is the operation name, empty for anonymous operations.
	Name string
	// Kind is query, mutation or subscription.
	Kind ast.Operation
	// Query is the printed query text as the caller supplied it.
	Query string
	// Document is the parsed query document, already stripped of @client fields.
	Document *ast.QueryDocument
	// Variables are the operation's variable values.
	Variables map[string]any

	mu      sync.Mutex
	context map[string]any
}

// SetContext stores a value on the operation for links further down the chain.
func (o *Operation) SetContext(key string, value any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.context == nil {
		o.context = make(map[string]any)
	}
	o.context[key] = value
}

// Context returns a value stored with SetContext.
func (o *Operation) Context(key string) (any, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	v, ok := o.context[key]
	return v, ok
}

// NextLink forwards an operation to the rest of the chain.
type NextLink func(ctx context.Context, op *Operation) *graphql.Response

// Link is a request middleware.
type Link interface {
	Request(ctx context.Context, op *Operation, forward NextLink) *graphql.Response
}

// Func adapts a function to the Link interface.
type Func func(ctx context.Context, op *Operation, forward NextLink) *graphql.Response

// Request implements Link.
func (f Func) Request(ctx context.Context, op *Operation, forward NextLink) *graphql.Response {
	return f(ctx, op, forward)
}

// Terminating is the last link of a chain. It never forwards.
type Terminating interface {
	Execute(ctx context.Context, op *Operation) *graphql.Response
}

// Chain composes links in order, ending with terminal. Nil links are skipped.
func Chain(terminal Terminating, links ...Link) NextLink {
	next := NextLink(terminal.Execute)
	for i := len(links) - 1; i >= 0; i-- {
		l := links[i]
		if l == nil {
			continue
		}
		forward := next
		next = func(ctx context.Context, op *Operation) *graphql.Response {
			return l.Request(ctx, op, forward)
		}
	}
	return next
}

// SchemaLink executes operations against a mock executor instead of a network.
type SchemaLink struct {
	executor *graphql.Executor
}

// NewSchemaLink creates the terminating link for the executor.
func NewSchemaLink(executor *graphql.Executor) *SchemaLink {
	return &SchemaLink{executor: executor}
}

// Schema returns the schema the link executes against.
func (l *SchemaLink) Schema() *graphql.Schema {
	return l.executor.Schema()
}

// Execute implements Terminating.
func (l *SchemaLink) Execute(ctx context.Context, op *Operation) *graphql.Response {
	if err := ctx.Err(); err != nil {
		return graphql.ErrorResponse(err.Error())
	}
	if op.Document == nil {
		return l.executor.Execute(ctx, &graphql.Request{
			Query:         op.Query,
			OperationName: op.Name,
			Variables:     op.Variables,
		})
	}
	return l.executor.ExecuteDocument(ctx, op.Document, op.Name, op.Variables)
}
