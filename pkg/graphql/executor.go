package graphql

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"reflect"
	"strings"

	"github.com/getmockd/mockedprovider/pkg/logging"
	lru "github.com/hashicorp/golang-lru"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
)

// ErrInvalidQuery is returned when a query fails to parse or validate against the schema.
var ErrInvalidQuery = errors.New("invalid query")

// DefaultDocumentCacheSize is the number of parsed queries an executor keeps.
const DefaultDocumentCacheSize = 1024

// ErrDefaultMock can be returned by a FieldFunc to fall back to the value the
// field would get without a resolver.
var ErrDefaultMock = errors.New("use default mock")

// Executor executes GraphQL operations against the schema, generating mock
// values for every field that no MockFunc resolves.
type Executor struct {
	schema        *Schema
	mocks         MockResolvers
	rand          *randomSource
	introspection bool
	logger        *slog.Logger
	cacheSize     int
	documents     *lru.Cache
}

// Option configures an Executor.
type Option func(*Executor)

// WithMocks sets the per-type mock resolvers.
func WithMocks(mocks MockResolvers) Option {
	return func(e *Executor) {
		e.mocks = mocks
	}
}

// WithSeed makes generated values deterministic.
func WithSeed(seed uint64) Option {
	return func(e *Executor) {
		e.rand = newRandomSource(&seed)
	}
}

// WithIntrospection enables or disables __schema and __type. Enabled by default.
func WithIntrospection(enabled bool) Option {
	return func(e *Executor) {
		e.introspection = enabled
	}
}

// WithLogger sets the logger used for execution diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithDocumentCacheSize sets how many parsed queries are kept. Zero disables
// the cache.
func WithDocumentCacheSize(size int) Option {
	return func(e *Executor) {
		e.cacheSize = size
	}
}

// NewExecutor creates a new mock executor for the given schema.
func NewExecutor(schema *Schema, opts ...Option) *Executor {
	e := &Executor{
		schema:        schema,
		rand:          newRandomSource(nil),
		introspection: true,
		logger:        logging.Nop(),
		cacheSize:     DefaultDocumentCacheSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.mocks == nil {
		e.mocks = MockResolvers{}
	}
	if e.cacheSize > 0 {
		e.documents, _ = lru.New(e.cacheSize)
	}
	return e
}

// Schema returns the schema the executor runs against.
func (e *Executor) Schema() *Schema {
	return e.schema
}

// Parse parses and validates a query document against the schema. Valid
// documents are cached by query text and must not be modified.
func (e *Executor) Parse(query string) (*ast.QueryDocument, error) {
	if e.documents != nil {
		if doc, ok := e.documents.Get(query); ok {
			return doc.(*ast.QueryDocument), nil
		}
	}

	doc, errs := gqlparser.LoadQuery(e.schema.AST(), query)
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidQuery, errs[0].Message)
	}

	if e.documents != nil {
		e.documents.Add(query, doc)
	}
	return doc, nil
}

// Execute parses a GraphQL request and executes it.
func (e *Executor) Execute(ctx context.Context, req *Request) *Response {
	if req == nil || strings.TrimSpace(req.Query) == "" {
		return ErrorResponse("query is required")
	}

	doc, err := e.Parse(req.Query)
	if err != nil {
		return ErrorResponse(err.Error())
	}

	return e.ExecuteDocument(ctx, doc, req.OperationName, req.Variables)
}

// ExecuteDocument executes an already parsed and validated document.
func (e *Executor) ExecuteDocument(ctx context.Context, doc *ast.QueryDocument, operationName string, variables map[string]any) *Response {
	op, err := SelectOperation(doc, operationName)
	if err != nil {
		return ErrorResponse(err.Error())
	}

	root := e.rootType(op.Operation)
	if root == nil {
		return ErrorResponse(fmt.Sprintf("schema does not support %s operations", op.Operation))
	}

	x := &execution{
		ctx:  ctx,
		e:    e,
		doc:  doc,
		vars: VariablesWithDefaults(op, variables),
	}

	source := x.objectMock(root.Name, nil, nil)
	data, _ := x.selectionSet(root, op.SelectionSet, source, nil)

	e.logger.Debug("executed operation",
		"operation", op.Name,
		"type", string(op.Operation),
		"errors", len(x.errs),
	)

	return &Response{Data: data, Errors: x.errs}
}

func (e *Executor) rootType(op ast.Operation) *ast.Definition {
	switch op {
	case ast.Query:
		return e.schema.AST().Query
	case ast.Mutation:
		return e.schema.AST().Mutation
	case ast.Subscription:
		return e.schema.AST().Subscription
	default:
		return nil
	}
}

// SelectOperation picks the operation to run from a document. An empty name
// is only accepted when the document holds a single operation.
func SelectOperation(doc *ast.QueryDocument, name string) (*ast.OperationDefinition, error) {
	if doc == nil || len(doc.Operations) == 0 {
		return nil, errors.New("no operation found in query")
	}
	if name == "" {
		if len(doc.Operations) > 1 {
			return nil, errors.New("operation name is required for documents with multiple operations")
		}
		return doc.Operations[0], nil
	}
	op := doc.Operations.ForName(name)
	if op == nil {
		return nil, fmt.Errorf("operation %q not found", name)
	}
	return op, nil
}

// VariablesWithDefaults returns a copy of vars with the operation's declared
// default values filled in.
func VariablesWithDefaults(op *ast.OperationDefinition, vars map[string]any) map[string]any {
	out := make(map[string]any, len(vars))
	maps.Copy(out, vars)
	for _, def := range op.VariableDefinitions {
		if _, ok := out[def.Variable]; ok || def.DefaultValue == nil {
			continue
		}
		if v, err := def.DefaultValue.Value(nil); err == nil {
			out[def.Variable] = v
		}
	}
	return out
}

// execution holds the state of a single operation run.
type execution struct {
	ctx  context.Context
	e    *Executor
	doc  *ast.QueryDocument
	vars map[string]any
	errs []*Error
}

type fieldGroup struct {
	key    string
	fields []*ast.Field
}

// selectionSet resolves the selections of a concrete object type. It returns
// false when a non-null field could not be resolved, making the whole object null.
func (x *execution) selectionSet(def *ast.Definition, sels ast.SelectionSet, source map[string]any, path []any) (map[string]any, bool) {
	groups := x.collectFields(def, sels, nil, map[string]bool{}, map[string]int{})

	result := make(map[string]any, len(groups))
	for _, g := range groups {
		if err := x.ctx.Err(); err != nil {
			x.addError(err, appendPath(path, g.key), g.fields[0])
			return nil, false
		}
		v, ok := x.executeField(def, g, source, appendPath(path, g.key))
		if !ok {
			return nil, false
		}
		result[g.key] = v
	}
	return result, true
}

func (x *execution) collectFields(def *ast.Definition, sels ast.SelectionSet, groups []fieldGroup, visited map[string]bool, index map[string]int) []fieldGroup {
	for _, sel := range sels {
		switch s := sel.(type) {
		case *ast.Field:
			if !ShouldInclude(s.Directives, x.vars) || IsClientField(s) {
				continue
			}
			key := ResponseKey(s)
			if i, ok := index[key]; ok {
				groups[i].fields = append(groups[i].fields, s)
				continue
			}
			index[key] = len(groups)
			groups = append(groups, fieldGroup{key: key, fields: []*ast.Field{s}})

		case *ast.InlineFragment:
			if !ShouldInclude(s.Directives, x.vars) || !x.fragmentApplies(def, s.TypeCondition) {
				continue
			}
			groups = x.collectFields(def, s.SelectionSet, groups, visited, index)

		case *ast.FragmentSpread:
			if !ShouldInclude(s.Directives, x.vars) || visited[s.Name] {
				continue
			}
			visited[s.Name] = true
			frag := s.Definition
			if frag == nil {
				frag = x.doc.Fragments.ForName(s.Name)
			}
			if frag == nil || !x.fragmentApplies(def, frag.TypeCondition) {
				continue
			}
			groups = x.collectFields(def, frag.SelectionSet, groups, visited, index)
		}
	}
	return groups
}

func (x *execution) fragmentApplies(def *ast.Definition, condition string) bool {
	if condition == "" || condition == def.Name {
		return true
	}
	if !x.e.schema.IsAbstract(condition) {
		return false
	}
	for _, name := range x.e.schema.PossibleTypes(condition) {
		if name == def.Name {
			return true
		}
	}
	return false
}

func (x *execution) executeField(def *ast.Definition, g fieldGroup, source map[string]any, path []any) (any, bool) {
	field := g.fields[0]

	switch field.Name {
	case "__typename":
		return def.Name, true
	case "__schema", "__type":
		if !x.e.introspection {
			x.addError(errors.New("introspection is disabled"), path, field)
			return nil, true
		}
		return x.introspect(field), true
	}

	fieldDef := def.Fields.ForName(field.Name)
	if fieldDef == nil {
		return nil, true
	}

	raw, provided, err := x.resolve(source, field.Name, ArgumentValues(field, x.vars))
	if err != nil {
		x.addError(err, path, field)
		return nil, !fieldDef.Type.NonNull
	}

	return x.completeValue(fieldDef.Type, mergeSelectionSets(g.fields), raw, provided, path)
}

// resolve looks the field up in the mock source. provided is false when the
// source does not mention the field, in which case the schema default applies.
func (x *execution) resolve(source map[string]any, name string, args map[string]any) (value any, provided bool, err error) {
	v, ok := source[name]
	if !ok {
		return nil, false, nil
	}
	out, err := callMock(x.ctx, v, args)
	if errors.Is(err, ErrDefaultMock) {
		return nil, false, nil
	}
	return out, true, err
}

func (x *execution) completeValue(t *ast.Type, sels ast.SelectionSet, raw any, provided bool, path []any) (any, bool) {
	var (
		v  any
		ok bool
	)
	switch {
	case provided && isNil(raw):
		v, ok = nil, true
	case t.Elem != nil:
		v, ok = x.completeList(t.Elem, sels, raw, provided, path)
	default:
		v, ok = x.completeNamed(t.NamedType, sels, raw, provided, path)
	}

	if !ok {
		return nil, !t.NonNull
	}
	if v == nil && t.NonNull {
		x.errs = append(x.errs, &Error{
			Message: fmt.Sprintf("cannot return null for non-nullable field %s", formatPath(path)),
			Path:    path,
		})
		return nil, false
	}
	return v, true
}

func (x *execution) completeList(elem *ast.Type, sels ast.SelectionSet, raw any, provided bool, path []any) (any, bool) {
	var (
		n    int
		item func(i int) (any, bool, error)
	)

	switch {
	case !provided:
		n = DefaultListLength
		item = func(int) (any, bool, error) { return nil, false, nil }
	default:
		if l, ok := raw.(*List); ok {
			n = l.Len
			item = func(int) (any, bool, error) {
				if l.Item == nil {
					return nil, false, nil
				}
				v, err := callMock(x.ctx, l.Item, nil)
				return v, true, err
			}
			break
		}
		items, ok := toSlice(raw)
		if !ok {
			x.errs = append(x.errs, &Error{
				Message: fmt.Sprintf("expected a list for %s, got %T", formatPath(path), raw),
				Path:    path,
			})
			return nil, true
		}
		n = len(items)
		item = func(i int) (any, bool, error) {
			v, err := callMock(x.ctx, items[i], nil)
			return v, true, err
		}
	}

	out := make([]any, n)
	for i := range n {
		itemPath := appendPath(path, i)
		it, itemProvided, err := item(i)
		if err != nil {
			x.addError(err, itemPath, nil)
			if elem.NonNull {
				return nil, false
			}
			continue
		}
		v, ok := x.completeValue(elem, sels, it, itemProvided, itemPath)
		if !ok {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

func (x *execution) completeNamed(name string, sels ast.SelectionSet, raw any, provided bool, path []any) (any, bool) {
	def := x.e.schema.GetType(name)
	if def == nil {
		return nil, true
	}

	switch def.Kind {
	case ast.Scalar:
		if provided {
			return raw, true
		}
		if v, ok := x.leafMock(name, path); ok {
			return v, true
		}
		return x.e.rand.defaultScalar(name), true

	case ast.Enum:
		if provided {
			return raw, true
		}
		if v, ok := x.leafMock(name, path); ok {
			return v, true
		}
		if len(def.EnumValues) == 0 {
			return nil, true
		}
		return def.EnumValues[x.e.rand.intN(len(def.EnumValues))].Name, true

	case ast.Object, ast.Interface, ast.Union:
		var obj map[string]any
		if provided {
			m, ok := raw.(map[string]any)
			if !ok {
				x.errs = append(x.errs, &Error{
					Message: fmt.Sprintf("expected an object for %s, got %T", formatPath(path), raw),
					Path:    path,
				})
				return nil, true
			}
			obj = m
		}

		var abstractMock map[string]any
		if def.Kind != ast.Object {
			abstractMock = x.objectMock(def.Name, path, nil)
		}

		concrete, err := x.resolveType(def, obj, abstractMock)
		if err != nil {
			x.addError(err, path, nil)
			return nil, true
		}

		source := mergeSources(abstractMock, x.objectMock(concrete.Name, path, nil), obj)
		m, ok := x.selectionSet(concrete, sels, source, path)
		if !ok {
			return nil, false
		}
		return m, true
	}

	return nil, true
}

// resolveType picks the concrete object type for a value of type def.
func (x *execution) resolveType(def *ast.Definition, layers ...map[string]any) (*ast.Definition, error) {
	if def.Kind == ast.Object {
		return def, nil
	}

	possible := x.e.schema.PossibleTypes(def.Name)
	for _, layer := range layers {
		name, ok := layer["__typename"].(string)
		if !ok {
			continue
		}
		for _, p := range possible {
			if p == name {
				return x.e.schema.GetType(name), nil
			}
		}
		return nil, fmt.Errorf("type %q is not a possible type of %s", name, def.Name)
	}

	if len(possible) == 0 {
		return nil, fmt.Errorf("abstract type %s has no possible types", def.Name)
	}
	return x.e.schema.GetType(possible[x.e.rand.intN(len(possible))]), nil
}

// objectMock calls the type's MockFunc and returns its map result.
func (x *execution) objectMock(name string, path []any, field *ast.Field) map[string]any {
	fn, ok := x.e.mocks[name]
	if !ok || fn == nil {
		return nil
	}
	v, err := callMock(x.ctx, fn, nil)
	if err != nil {
		x.addError(err, path, field)
		return nil
	}
	m, _ := v.(map[string]any)
	return m
}

// leafMock calls the MockFunc of a scalar or enum type.
func (x *execution) leafMock(name string, path []any) (any, bool) {
	fn, ok := x.e.mocks[name]
	if !ok || fn == nil {
		return nil, false
	}
	v, err := callMock(x.ctx, fn, nil)
	if err != nil {
		x.addError(err, path, nil)
		return nil, false
	}
	return v, true
}

func (x *execution) addError(err error, path []any, field *ast.Field) {
	x.errs = append(x.errs, NewError(err, path, field))
}

// NewError converts a resolver error into a GraphQL error on path. Messages
// and extensions of wrapped *Error and ExtendedError values are kept.
func NewError(err error, path []any, field *ast.Field) *Error {
	gqlErr := &Error{Message: err.Error(), Path: path, cause: err}

	var resolverErr *Error
	if errors.As(err, &resolverErr) {
		gqlErr.Message = resolverErr.Message
		gqlErr.Extensions = resolverErr.Extensions
	}
	var extended ExtendedError
	if errors.As(err, &extended) {
		gqlErr.Extensions = extended.Extensions()
	}
	if field != nil && field.Position != nil {
		gqlErr.Locations = []Location{{Line: field.Position.Line, Column: field.Position.Column}}
	}
	return gqlErr
}

// ResponseKey returns the key a field is written under in the response.
func ResponseKey(f *ast.Field) string {
	if f.Alias != "" {
		return f.Alias
	}
	return f.Name
}

// IsClientField reports whether the field carries the @client directive.
func IsClientField(f *ast.Field) bool {
	return f.Directives.ForName(ClientDirective) != nil
}

// ShouldInclude evaluates @skip and @include.
func ShouldInclude(dirs ast.DirectiveList, vars map[string]any) bool {
	if d := dirs.ForName("skip"); d != nil && directiveIf(d, vars) {
		return false
	}
	if d := dirs.ForName("include"); d != nil && !directiveIf(d, vars) {
		return false
	}
	return true
}

func directiveIf(d *ast.Directive, vars map[string]any) bool {
	arg := d.Arguments.ForName("if")
	if arg == nil || arg.Value == nil {
		return false
	}
	v, err := arg.Value.Value(vars)
	b, _ := v.(bool)
	return err == nil && b
}

// ArgumentValues resolves the field's arguments, applying schema defaults
// when the field definition is known.
func ArgumentValues(f *ast.Field, vars map[string]any) map[string]any {
	if f.Definition != nil {
		return f.ArgumentMap(vars)
	}
	args := make(map[string]any, len(f.Arguments))
	for _, arg := range f.Arguments {
		if v, err := arg.Value.Value(vars); err == nil {
			args[arg.Name] = v
		}
	}
	return args
}

func mergeSelectionSets(fields []*ast.Field) ast.SelectionSet {
	if len(fields) == 1 {
		return fields[0].SelectionSet
	}
	var out ast.SelectionSet
	for _, f := range fields {
		out = append(out, f.SelectionSet...)
	}
	return out
}

// mergeSources overlays mock layers; later layers win.
func mergeSources(layers ...map[string]any) map[string]any {
	out := make(map[string]any)
	for _, layer := range layers {
		maps.Copy(out, layer)
	}
	return out
}

func appendPath(path []any, segment any) []any {
	out := make([]any, len(path)+1)
	copy(out, path)
	out[len(path)] = segment
	return out
}

func formatPath(path []any) string {
	parts := make([]string, len(path))
	for i, p := range path {
		parts[i] = fmt.Sprint(p)
	}
	return strings.Join(parts, ".")
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Pointer, reflect.Interface, reflect.Func:
		return rv.IsNil()
	}
	return false
}

func toSlice(v any) ([]any, bool) {
	if s, ok := v.([]any); ok {
		return s, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
