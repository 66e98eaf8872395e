package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/mockedprovider/pkg/logging"
	"github.com/getmockd/mockedprovider/pkg/mockedprovider"
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

type Mutation {
  addTodo(text: String!): Todo!
}
`

const testConfig = `
schemaFile: schema.graphql
seed: 3
resolvers:
  Query.todo:
    - match:
        args: {id: "1"}
      response: {id: "1", text: First}
    - when: 'args.id == "boom"'
      error: {message: Boom}
cache:
  - query: "{ todos { id text } }"
    data:
      todos:
        - {__typename: Todo, id: "c", text: cached}
`

func writeFixtures(t *testing.T) (schemaPath, configPath string) {
	t.Helper()
	dir := t.TempDir()
	schemaPath = filepath.Join(dir, "schema.graphql")
	configPath = filepath.Join(dir, "mocks.yaml")
	require.NoError(t, os.WriteFile(schemaPath, []byte(testSchema), 0644))
	require.NoError(t, os.WriteFile(configPath, []byte(testConfig), 0644))
	return schemaPath, configPath
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetArgs(append(args, "--log-level", "error"))
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	err := cmd.Execute()
	return out.String(), err
}

func TestValidateCmd(t *testing.T) {
	schemaPath, configPath := writeFixtures(t)

	out, err := run(t, "validate", schemaPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Schema is valid")
	assert.Contains(t, out, "Queries:   todo, todos")
	assert.Contains(t, out, "Mutations: addTodo")

	out, err = run(t, "validate", "--config", configPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Schema is valid")

	_, err = run(t, "validate")
	assert.Error(t, err)

	_, err = run(t, "validate", filepath.Join(t.TempDir(), "missing.graphql"))
	assert.Error(t, err)
}

func TestValidateCmd_UnknownField(t *testing.T) {
	schemaPath, _ := writeFixtures(t)
	configPath := filepath.Join(filepath.Dir(schemaPath), "bad.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("schemaFile: schema.graphql\nresolvers:\n  Query.nope:\n    - response: 1\n"), 0644))

	_, err := run(t, "validate", "--config", configPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Query.nope")
}

func TestQueryCmd(t *testing.T) {
	schemaPath, configPath := writeFixtures(t)

	out, err := run(t, "query", "--config", configPath, "--variables", `{"id":"1"}`,
		`query GetTodo($id: ID!) { todo(id: $id) { id text } }`)
	require.NoError(t, err)

	var resp struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, map[string]any{"__typename": "Todo", "id": "1", "text": "First"}, resp.Data["todo"])

	out, err = run(t, "query", "-c", configPath, "--get", "todos[0].text", `{ todos { id text } }`)
	require.NoError(t, err)
	assert.Equal(t, `"cached"`, strings.TrimSpace(out))

	first, err := run(t, "query", "-s", schemaPath, "--seed", "9", `{ todos { id } }`)
	require.NoError(t, err)
	second, err := run(t, "query", "-s", schemaPath, "--seed", "9", `{ todos { id } }`)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	out, err = run(t, "query", "-s", schemaPath, "--get", "todos[1].text", `{ todos { text } }`)
	require.NoError(t, err)
	assert.Equal(t, `"Hello World"`, strings.TrimSpace(out))
}

func TestQueryCmd_Errors(t *testing.T) {
	schemaPath, configPath := writeFixtures(t)

	out, err := run(t, "query", "-c", configPath, `{ todo(id: "boom") { id } }`)
	require.Error(t, err)
	assert.Equal(t, "GraphQL error: Boom", err.Error())
	assert.Contains(t, out, `"message": "Boom"`)

	_, err = run(t, "query", "-s", schemaPath)
	assert.ErrorContains(t, err, "query is required")

	_, err = run(t, "query", "-s", schemaPath, "-c", configPath, `{ todos { id } }`)
	assert.ErrorContains(t, err, "exactly one of")

	_, err = run(t, "query", "-s", schemaPath, "-v", "{", `{ todos { id } }`)
	assert.ErrorContains(t, err, "invalid --variables")

	_, err = run(t, "query", "-s", schemaPath, "--fetch-policy", "sometimes", `{ todos { id } }`)
	assert.ErrorContains(t, err, "unknown fetch policy")
}

func TestQueryCmd_File(t *testing.T) {
	schemaPath, _ := writeFixtures(t)
	queryPath := filepath.Join(t.TempDir(), "add.graphql")
	require.NoError(t, os.WriteFile(queryPath, []byte(`mutation { addTodo(text: "x") { text } }`), 0644))

	out, err := run(t, "query", "-s", schemaPath, "--file", queryPath, "--get", "addTodo.text")
	require.NoError(t, err)
	assert.Equal(t, `"Hello World"`, strings.TrimSpace(out))

	_, err = run(t, "query", "-s", schemaPath, "--file", queryPath, `{ todos { id } }`)
	assert.Error(t, err)
}

func TestServeMux(t *testing.T) {
	_, configPath := writeFixtures(t)

	cmd := newServeCmd(&globalFlags{})
	f := &serveFlags{}
	f.configFile = configPath
	p, err := f.buildProvider(cmd, logging.Nop())
	require.NoError(t, err)

	srv := httptest.NewServer(newServeMux(p.Client(mockedprovider.Props{}), "/gql", logging.Nop()))
	defer srv.Close()

	body := `{"query":"{ todos { id text } }"}`
	resp, err := http.Post(srv.URL+"/gql", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var gqlResp struct {
		Data struct {
			Todos []map[string]any `json:"todos"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&gqlResp))
	require.Len(t, gqlResp.Data.Todos, 1)
	assert.Equal(t, "cached", gqlResp.Data.Todos[0]["text"])

	health, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)
}
