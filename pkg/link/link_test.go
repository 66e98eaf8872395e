package link

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vektah/gqlparser/v2/ast"
	"golang.org/x/time/rate"

	"github.com/getmockd/mockedprovider/pkg/graphql"
)

const testSchema = `
type Query {
	hello(name: String): String!
	fail: String
}
`

func newSchemaLink(t *testing.T) *SchemaLink {
	t.Helper()
	schema, err := graphql.ParseSchema(testSchema)
	require.NoError(t, err)

	exec := graphql.NewExecutor(schema, graphql.WithMocks(graphql.MockResolvers{
		"Query": func() any {
			return map[string]any{
				"hello": graphql.FieldFunc(func(_ context.Context, args map[string]any) (any, error) {
					name, _ := args["name"].(string)
					return "hello " + name, nil
				}),
				"fail": graphql.FieldFunc(func(context.Context, map[string]any) (any, error) {
					return nil, assert.AnError
				}),
			}
		},
	}))
	return NewSchemaLink(exec)
}

type recorder struct {
	name  string
	calls *[]string
}

func (r recorder) Request(ctx context.Context, op *Operation, forward NextLink) *graphql.Response {
	*r.calls = append(*r.calls, r.name+":before")
	op.SetContext(r.name, true)
	resp := forward(ctx, op)
	*r.calls = append(*r.calls, r.name+":after")
	return resp
}

func TestChain_Order(t *testing.T) {
	var calls []string
	terminal := newSchemaLink(t)

	chain := Chain(terminal,
		recorder{name: "first", calls: &calls},
		nil,
		recorder{name: "second", calls: &calls},
	)

	op := &Operation{Kind: ast.Query, Query: `{ hello(name: "go") }`}
	resp := chain(context.Background(), op)

	require.False(t, resp.HasErrors())
	assert.Equal(t, "hello go", resp.Data["hello"])
	assert.Equal(t, []string{"first:before", "second:before", "second:after", "first:after"}, calls)

	v, ok := op.Context("second")
	assert.True(t, ok)
	assert.Equal(t, true, v)
	_, ok = op.Context("third")
	assert.False(t, ok)
}

func TestChain_ShortCircuit(t *testing.T) {
	stop := Func(func(context.Context, *Operation, NextLink) *graphql.Response {
		return &graphql.Response{Data: map[string]any{"hello": "stubbed"}}
	})

	resp := Chain(newSchemaLink(t), stop)(context.Background(), &Operation{Query: `{ hello }`})
	assert.Equal(t, "stubbed", resp.Data["hello"])
}

func TestSchemaLink(t *testing.T) {
	l := newSchemaLink(t)
	assert.NotNil(t, l.Schema().GetQueryField("hello"))

	doc, err := l.executor.Parse(`query Greet($n: String) { hello(name: $n) }`)
	require.NoError(t, err)

	resp := l.Execute(context.Background(), &Operation{
		Name:      "Greet",
		Kind:      ast.Query,
		Document:  doc,
		Variables: map[string]any{"n": "doc"},
	})
	require.False(t, resp.HasErrors())
	assert.Equal(t, "hello doc", resp.Data["hello"])

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	resp = l.Execute(ctx, &Operation{Query: `{ hello }`})
	assert.True(t, resp.HasErrors())
}

func TestLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	chain := Chain(newSchemaLink(t), Logging(logger))
	chain(context.Background(), &Operation{Name: "Ok", Kind: ast.Query, Query: `query Ok { hello }`})
	chain(context.Background(), &Operation{Name: "Bad", Kind: ast.Query, Query: `query Bad { fail }`})

	out := buf.String()
	assert.Contains(t, out, "operation=Ok")
	assert.Contains(t, out, "graphql operation failed")
	assert.Contains(t, out, "operation=Bad")
}

func TestRateLimit(t *testing.T) {
	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	chain := Chain(newSchemaLink(t), RateLimit(limiter))

	resp := chain(context.Background(), &Operation{Query: `{ hello }`})
	require.False(t, resp.HasErrors())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	resp = chain(ctx, &Operation{Query: `{ hello }`})
	require.True(t, resp.HasErrors())
	assert.Contains(t, resp.Errors[0].Message, "rate limit")
}

func TestDelay(t *testing.T) {
	chain := Chain(newSchemaLink(t), Delay(20*time.Millisecond))

	start := time.Now()
	resp := chain(context.Background(), &Operation{Query: `{ hello }`})
	require.False(t, resp.HasErrors())
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	resp = Chain(newSchemaLink(t), Delay(time.Hour))(ctx, &Operation{Query: `{ hello }`})
	require.True(t, resp.HasErrors())
	assert.Contains(t, resp.Errors[0].Message, "cancelled")
}

func TestOnError(t *testing.T) {
	var seen []string
	chain := Chain(newSchemaLink(t), OnError(func(op *Operation, errs []*graphql.Error) {
		for _, e := range errs {
			seen = append(seen, op.Name+": "+e.Message)
		}
	}))

	chain(context.Background(), &Operation{Name: "Ok", Query: `query Ok { hello }`})
	assert.Empty(t, seen)

	resp := chain(context.Background(), &Operation{Name: "Bad", Query: `query Bad { fail }`})
	assert.Nil(t, resp.Data["fail"])
	assert.Equal(t, []string{"Bad: " + assert.AnError.Error()}, seen)
}
