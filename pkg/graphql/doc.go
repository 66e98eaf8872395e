// Package graphql compiles GraphQL SDL schemas and executes operations against
// a schema-driven mock resolver.
//
// Every field that is requested but not explicitly resolved receives a
// synthetic value derived from its type: scalars get default mocks, enums a
// random member, lists two items and object types a recursively mocked
// object. Per-type MockResolvers override those defaults.
//
// Basic usage:
//
//	schema, err := graphql.ParseSchema(`
//	    type Query { todos: [Todo!]! }
//	    type Todo { id: ID! text: String! }
//	`)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	executor := graphql.NewExecutor(schema, graphql.WithMocks(graphql.MockResolvers{
//	    "Query": func() any {
//	        return map[string]any{
//	            "todos": graphql.FieldFunc(func(ctx context.Context, args map[string]any) (any, error) {
//	                return []any{map[string]any{"text": "First Todo"}}, nil
//	            }),
//	        }
//	    },
//	}))
//
//	resp := executor.Execute(ctx, &graphql.Request{Query: `{ todos { id text } }`})
//
// Errors returned (or panics raised) by a FieldFunc become entries in
// Response.Errors with the field path; the affected field resolves to null and
// non-null violations bubble to the nearest nullable parent.
//
// Fields carrying the @client directive are resolved on the client side and
// are skipped by the executor. The directive is always declared on parsed
// schemas so operations using it validate.
package graphql
