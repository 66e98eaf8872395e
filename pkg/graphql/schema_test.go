package graphql

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/vektah/gqlparser/v2/ast"
)

func TestParseSchema(t *testing.T) {
	schema, err := ParseSchema(executorTestSchema)
	if err != nil {
		t.Fatalf("ParseSchema() error = %v", err)
	}

	if got := schema.ListQueries(); !reflect.DeepEqual(got, []string{"hello", "node", "search", "strict", "user", "users"}) {
		t.Errorf("ListQueries() = %v", got)
	}
	if got := schema.ListMutations(); !reflect.DeepEqual(got, []string{"createUser"}) {
		t.Errorf("ListMutations() = %v", got)
	}
	if !schema.HasQuery() || !schema.HasMutation() || schema.HasSubscription() {
		t.Error("unexpected root type flags")
	}
	if schema.GetQueryField("user") == nil || schema.GetMutationField("createUser") == nil {
		t.Error("root field lookup failed")
	}
	if schema.GetQueryField("__schema") != nil {
		t.Error("introspection fields must not be listed as queries")
	}
	if schema.GetField("User", "name") == nil || schema.GetField("Nope", "name") != nil {
		t.Error("GetField() mismatch")
	}
	if schema.Source() != executorTestSchema {
		t.Error("Source() should return the SDL")
	}
	if err := schema.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestParseSchema_Errors(t *testing.T) {
	tests := []struct {
		name string
		sdl  string
	}{
		{"syntax error", "type Query {"},
		{"unknown type", "type Query { user: User }"},
		{"bad interface", "type Query { a: String } type A implements Missing { id: ID }"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseSchema(tt.sdl); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestSchema_ValidateRequiresQuery(t *testing.T) {
	schema, err := ParseSchema("type Mutation { ping: Boolean }")
	if err == nil {
		err = schema.Validate()
	}
	if err == nil {
		t.Error("expected error for schema without Query fields")
	}
}

func TestParseSchema_ClientDirective(t *testing.T) {
	schema, err := ParseSchema("type Query { a: String }")
	if err != nil {
		t.Fatalf("ParseSchema() error = %v", err)
	}
	dir := schema.AST().Directives[ClientDirective]
	if dir == nil {
		t.Fatal("@client directive not declared")
	}
	if !reflect.DeepEqual(dir.Locations, []ast.DirectiveLocation{ast.LocationField}) {
		t.Errorf("locations = %v", dir.Locations)
	}

	// A schema that declares @client itself keeps its own definition.
	own, err := ParseSchema("directive @client(always: Boolean) on FIELD\ntype Query { a: String }")
	if err != nil {
		t.Fatalf("ParseSchema() error = %v", err)
	}
	if own.AST().Directives[ClientDirective].Arguments.ForName("always") == nil {
		t.Error("declared @client directive was replaced")
	}
}

func TestParseSchemaFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.graphql")
	if err := os.WriteFile(path, []byte(executorTestSchema), 0644); err != nil {
		t.Fatal(err)
	}

	schema, err := ParseSchemaFile(path)
	if err != nil {
		t.Fatalf("ParseSchemaFile() error = %v", err)
	}
	if schema.GetType("User") == nil {
		t.Error("User type missing")
	}

	_, err = ParseSchemaFile(filepath.Join(t.TempDir(), "missing.graphql"))
	if err == nil || !strings.Contains(err.Error(), "failed to read schema file") {
		t.Errorf("error = %v", err)
	}
}

func TestSchema_TypeQueries(t *testing.T) {
	schema, err := ParseSchema(executorTestSchema)
	if err != nil {
		t.Fatalf("ParseSchema() error = %v", err)
	}

	if got := schema.ListTypes(ast.Interface, ast.Union); !containsAll(got, "Node", "SearchResult") {
		t.Errorf("ListTypes(Interface, Union) = %v", got)
	}
	if got := schema.ListTypes(ast.Enum); !containsAll(got, "Status") {
		t.Errorf("ListTypes(Enum) = %v", got)
	}
	if !schema.IsAbstract("Node") || !schema.IsAbstract("SearchResult") || schema.IsAbstract("User") {
		t.Error("IsAbstract() mismatch")
	}
	if got := schema.PossibleTypes("Node"); !reflect.DeepEqual(got, []string{"Post", "User"}) {
		t.Errorf("PossibleTypes(Node) = %v", got)
	}
	if got := schema.PossibleTypes("User"); !reflect.DeepEqual(got, []string{"User"}) {
		t.Errorf("PossibleTypes(User) = %v", got)
	}
	if got := schema.PossibleTypes("Missing"); got != nil {
		t.Errorf("PossibleTypes(Missing) = %v", got)
	}
	if got := schema.EnumValues("Status"); !reflect.DeepEqual(got, []string{"ACTIVE", "ARCHIVED"}) {
		t.Errorf("EnumValues() = %v", got)
	}
	if schema.EnumValues("User") != nil {
		t.Error("EnumValues() of an object should be nil")
	}

	want := map[string][]string{
		"Node":         {"Post", "User"},
		"SearchResult": {"Post", "User"},
	}
	if got := schema.PossibleTypesMap(); !reflect.DeepEqual(got, want) {
		t.Errorf("PossibleTypesMap() = %v, want %v", got, want)
	}
}

func containsAll(list []string, names ...string) bool {
	set := make(map[string]bool, len(list))
	for _, n := range list {
		set[n] = true
	}
	for _, n := range names {
		if !set[n] {
			return false
		}
	}
	return true
}
