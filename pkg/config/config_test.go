package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/mockedprovider/pkg/cache"
	"github.com/getmockd/mockedprovider/pkg/graphql"
)

const testSchema = `
type Todo {
  id: ID!
  text: String!
}

type Query {
  todo(id: ID!): Todo
  todos: [Todo!]!
}
`

const testConfig = `
schemaFile: schema.graphql
seed: 7
mocks:
  String: mocked
  Todo:
    text: from mocks
resolvers:
  Query.todo:
    - match:
        args: {id: "1"}
      response: {id: "1", text: First}
    - when: 'args.id == "boom"'
      error:
        message: Boom
        extensions: {code: INTERNAL}
    - match:
        args: {id: "slow"}
      delay: 10ms
  Query.todos:
    - response:
        - {id: "a", text: A}
cache:
  - query: "{ todos { id text } }"
    data:
      todos:
        - {__typename: Todo, id: "c", text: cached}
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func loadTestConfig(t *testing.T) *Config {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "schema.graphql", testSchema)
	cfg, err := LoadFromFile(writeFile(t, dir, "mocks.yaml", testConfig))
	require.NoError(t, err)
	return cfg
}

func newExecutor(t *testing.T, cfg *Config) *graphql.Executor {
	t.Helper()
	schema, err := cfg.LoadSchema()
	require.NoError(t, err)
	mocks, err := cfg.MockResolvers()
	require.NoError(t, err)
	return graphql.NewExecutor(schema, graphql.WithMocks(mocks), graphql.WithSeed(*cfg.Seed))
}

func TestLoadFromFile(t *testing.T) {
	cfg := loadTestConfig(t)

	require.NotNil(t, cfg.Seed)
	assert.Equal(t, uint64(7), *cfg.Seed)
	assert.True(t, cfg.IntrospectionEnabled())
	assert.Len(t, cfg.Resolvers["Query.todo"], 3)

	sdl, err := cfg.SchemaSource()
	require.NoError(t, err)
	assert.Equal(t, testSchema, sdl)
}

func TestLoadFromFile_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadFromFile(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, ErrFileNotFound)

	_, err = LoadFromFile(writeFile(t, dir, "empty.yaml", "  \n"))
	assert.ErrorIs(t, err, ErrEmptyFile)

	_, err = LoadFromFile(writeFile(t, dir, "bad.yaml", "schema: [unclosed"))
	assert.ErrorIs(t, err, ErrInvalidYAML)

	_, err = LoadFromFile(dir)
	assert.Error(t, err)

	cfg, err := LoadFromFile(writeFile(t, dir, "noschema.yaml", "schemaFile: nowhere.graphql"))
	require.NoError(t, err)
	_, err = cfg.SchemaSource()
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"no schema", "seed: 1", "one of schemaFile or schema"},
		{"both schemas", "schema: 'type Query { a: Int }'\nschemaFile: s.graphql", "mutually exclusive"},
		{"bad key", "schema: x\nresolvers:\n  todos:\n    - response: 1", "Type.field"},
		{"bad delay", "schema: x\nresolvers:\n  Query.a:\n    - delay: soon", "invalid delay"},
		{"bad when", "schema: x\nresolvers:\n  Query.a:\n    - when: 'args.id =='", "invalid when"},
		{"non-bool when", "schema: x\nresolvers:\n  Query.a:\n    - when: '1 + 1'", "invalid when"},
		{"empty error", "schema: x\nresolvers:\n  Query.a:\n    - error: {message: ''}", "error message"},
		{"cache without query", "schema: x\ncache:\n  - data: {}", "query is required"},
		{"cache without data", "schema: x\ncache:\n  - query: '{ a }'", "data is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseYAML([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestMockResolvers(t *testing.T) {
	exec := newExecutor(t, loadTestConfig(t))
	ctx := context.Background()

	resp := exec.Execute(ctx, &graphql.Request{Query: `{ todo(id: "1") { id text } }`})
	require.Empty(t, resp.Errors)
	assert.Equal(t, map[string]any{"id": "1", "text": "First"}, resp.Data["todo"])

	resp = exec.Execute(ctx, &graphql.Request{Query: `{ todos { id text } }`})
	require.Empty(t, resp.Errors)
	assert.Equal(t, []any{map[string]any{"id": "a", "text": "A"}}, resp.Data["todos"])

	// No rule applies: the type mock fills the object.
	resp = exec.Execute(ctx, &graphql.Request{Query: `{ todo(id: "2") { text } }`})
	require.Empty(t, resp.Errors)
	assert.Equal(t, "from mocks", resp.Data["todo"].(map[string]any)["text"])
}

func TestMockResolvers_Errors(t *testing.T) {
	exec := newExecutor(t, loadTestConfig(t))

	resp := exec.Execute(context.Background(), &graphql.Request{
		Query:     `query Q($id: ID!) { todo(id: $id) { id } }`,
		Variables: map[string]any{"id": "boom"},
	})
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "Boom", resp.Errors[0].Message)
	assert.Equal(t, map[string]any{"code": "INTERNAL"}, resp.Errors[0].Extensions)
	assert.Equal(t, []any{"todo"}, resp.Errors[0].Path)
	assert.Nil(t, resp.Data["todo"])
}

func TestMockResolvers_Delay(t *testing.T) {
	exec := newExecutor(t, loadTestConfig(t))

	start := time.Now()
	resp := exec.Execute(context.Background(), &graphql.Request{Query: `{ todo(id: "slow") { text } }`})
	require.Empty(t, resp.Errors)
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
	assert.Equal(t, "from mocks", resp.Data["todo"].(map[string]any)["text"])

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	resp = exec.Execute(ctx, &graphql.Request{Query: `{ todo(id: "slow") { text } }`})
	assert.NotEmpty(t, resp.Errors)
}

func TestPopulate(t *testing.T) {
	cfg := loadTestConfig(t)
	store := cache.New()
	require.NoError(t, cfg.Populate(store))

	data, err := store.ReadQuery(`{ todos { id text } }`, nil)
	require.NoError(t, err)
	assert.Equal(t, "cached", data["todos"].([]any)[0].(map[string]any)["text"])

	cfg.Cache = append(cfg.Cache, cache.Query{Query: "{ broken", Data: map[string]any{}})
	assert.Error(t, cfg.Populate(cache.New()))
}

func TestSaveToFile(t *testing.T) {
	cfg := loadTestConfig(t)
	path := filepath.Join(t.TempDir(), "nested", "out.yaml")
	require.NoError(t, SaveToFile(path, cfg))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Resolvers, loaded.Resolvers)
	assert.Equal(t, cfg.SchemaFile, loaded.SchemaFile)

	_, err = ToYAML(nil)
	assert.Error(t, err)
}
