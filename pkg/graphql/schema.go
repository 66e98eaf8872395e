package graphql

import (
	"fmt"
	"os"
	"regexp"
	"sort"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
)

// ClientDirective marks fields resolved by the client without a network round-trip.
const ClientDirective = "client"

const clientDirectiveSDL = `directive @client on FIELD`

var clientDirectivePattern = regexp.MustCompile(`directive\s+@client\b`)

// Schema represents a parsed GraphQL schema with convenient accessors
// for types, queries and mutations.
type Schema struct {
	ast       *ast.Schema
	source    string
	queries   map[string]*ast.FieldDefinition
	mutations map[string]*ast.FieldDefinition
}

// ParseSchema parses a GraphQL SDL string and returns a Schema.
func ParseSchema(sdl string) (*Schema, error) {
	return parseSchema("schema", sdl)
}

// ParseSchemaFile parses a GraphQL schema from a file and returns a Schema.
func ParseSchemaFile(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file %s: %w", path, err)
	}
	return parseSchema(path, string(data))
}

func parseSchema(name, sdl string) (*Schema, error) {
	sources := []*ast.Source{{Name: name, Input: sdl}}
	if !clientDirectivePattern.MatchString(sdl) {
		sources = append(sources, &ast.Source{Name: "client.graphql", Input: clientDirectiveSDL, BuiltIn: true})
	}

	schema, err := gqlparser.LoadSchema(sources...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse GraphQL schema from %s: %w", name, err)
	}

	return newSchema(schema, sdl), nil
}

// newSchema creates a new Schema from a parsed ast.Schema.
func newSchema(schema *ast.Schema, source string) *Schema {
	s := &Schema{
		ast:       schema,
		source:    source,
		queries:   make(map[string]*ast.FieldDefinition),
		mutations: make(map[string]*ast.FieldDefinition),
	}

	if schema.Query != nil {
		for _, field := range schema.Query.Fields {
			if !isIntrospectionField(field.Name) {
				s.queries[field.Name] = field
			}
		}
	}
	if schema.Mutation != nil {
		for _, field := range schema.Mutation.Fields {
			s.mutations[field.Name] = field
		}
	}

	return s
}

// isIntrospectionField returns true if the field name is a built-in introspection field.
func isIntrospectionField(name string) bool {
	return len(name) >= 2 && name[0] == '_' && name[1] == '_'
}

// AST returns the underlying gqlparser AST schema.
func (s *Schema) AST() *ast.Schema {
	return s.ast
}

// Source returns the original SDL source string.
func (s *Schema) Source() string {
	return s.source
}

// GetType returns a type definition by name, or nil if not found.
func (s *Schema) GetType(name string) *ast.Definition {
	return s.ast.Types[name]
}

// GetField returns a field definition by type and field name.
func (s *Schema) GetField(typeName, fieldName string) *ast.FieldDefinition {
	def := s.GetType(typeName)
	if def == nil {
		return nil
	}
	return def.Fields.ForName(fieldName)
}

// GetQueryField returns a query field definition by name, or nil if not found.
func (s *Schema) GetQueryField(name string) *ast.FieldDefinition {
	return s.queries[name]
}

// GetMutationField returns a mutation field definition by name, or nil if not found.
func (s *Schema) GetMutationField(name string) *ast.FieldDefinition {
	return s.mutations[name]
}

// ListQueries returns all query field names in sorted order.
func (s *Schema) ListQueries() []string {
	return sortedKeys(s.queries)
}

// ListMutations returns all mutation field names in sorted order.
func (s *Schema) ListMutations() []string {
	return sortedKeys(s.mutations)
}

// ListTypes returns all type names in sorted order, optionally filtering by kind.
// If kinds is empty, all types are returned.
func (s *Schema) ListTypes(kinds ...ast.DefinitionKind) []string {
	kindSet := make(map[ast.DefinitionKind]bool, len(kinds))
	for _, k := range kinds {
		kindSet[k] = true
	}

	names := make([]string, 0, len(s.ast.Types))
	for name, def := range s.ast.Types {
		if len(kindSet) == 0 || kindSet[def.Kind] {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// HasQuery returns true if the schema has a query type with fields.
func (s *Schema) HasQuery() bool {
	return len(s.queries) > 0
}

// HasMutation returns true if the schema has a mutation type with fields.
func (s *Schema) HasMutation() bool {
	return len(s.mutations) > 0
}

// HasSubscription returns true if the schema has a subscription type with fields.
func (s *Schema) HasSubscription() bool {
	return s.ast.Subscription != nil && len(s.ast.Subscription.Fields) > 0
}

// Validate performs semantic checks on top of what gqlparser enforces while parsing.
func (s *Schema) Validate() error {
	if !s.HasQuery() {
		return fmt.Errorf("schema must define a Query type with at least one field")
	}
	return nil
}

// IsAbstract reports whether the named type is an interface or a union.
func (s *Schema) IsAbstract(name string) bool {
	def := s.GetType(name)
	return def != nil && (def.Kind == ast.Interface || def.Kind == ast.Union)
}

// PossibleTypes returns the sorted concrete object types an abstract type can
// resolve to. For an object type it returns the type itself.
func (s *Schema) PossibleTypes(name string) []string {
	def := s.GetType(name)
	if def == nil {
		return nil
	}
	if def.Kind == ast.Object {
		return []string{def.Name}
	}

	defs := s.ast.GetPossibleTypes(def)
	names := make([]string, 0, len(defs))
	for _, d := range defs {
		names = append(names, d.Name)
	}
	sort.Strings(names)
	return names
}

// PossibleTypesMap returns the possible concrete types of every abstract type
// declared in the schema, keyed by the abstract type name.
func (s *Schema) PossibleTypesMap() map[string][]string {
	out := make(map[string][]string)
	for _, name := range s.ListTypes(ast.Interface, ast.Union) {
		if def := s.GetType(name); def.BuiltIn {
			continue
		}
		out[name] = s.PossibleTypes(name)
	}
	return out
}

// EnumValues returns the enum values for an enum type, or nil if not an enum.
func (s *Schema) EnumValues(name string) []string {
	def := s.GetType(name)
	if def == nil || def.Kind != ast.Enum {
		return nil
	}

	values := make([]string, 0, len(def.EnumValues))
	for _, v := range def.EnumValues {
		values = append(values, v.Name)
	}
	return values
}

func sortedKeys(m map[string]*ast.FieldDefinition) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
