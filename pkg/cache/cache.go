// Package cache implements a normalized in-memory store of GraphQL query results.
//
// Objects carrying a __typename and an identifying key field are stored once
// under their entity ID ("Todo:1") and referenced from every query result that
// contains them, so writing one query updates what other queries read.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"

	"github.com/getmockd/mockedprovider/pkg/graphql"
)

// Root entity IDs.
const (
	RootQuery    = "ROOT_QUERY"
	RootMutation = "ROOT_MUTATION"
)

const refKey = "__ref"

// ErrMissingField is returned by reads that the cache cannot fully satisfy.
var ErrMissingField = errors.New("missing field in cache")

// Query is a query document plus the data to write for it.
type Query struct {
	Query         string         `json:"query" yaml:"query"`
	OperationName string         `json:"operationName,omitempty" yaml:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty" yaml:"variables,omitempty"`
	Data          map[string]any `json:"data" yaml:"data"`
}

// InMemoryCache is a normalized GraphQL result cache. It is safe for concurrent use.
type InMemoryCache struct {
	mu            sync.RWMutex
	entities      map[string]map[string]any
	possibleTypes map[string]map[string]bool
	keyFields     map[string][]string
}

// Option configures an InMemoryCache.
type Option func(*InMemoryCache)

// WithPossibleTypes declares the concrete types of interfaces and unions so
// fragments on abstract types match cached objects.
func WithPossibleTypes(possible map[string][]string) Option {
	return func(c *InMemoryCache) {
		c.addPossibleTypes(possible)
	}
}

// WithKeyFields sets the fields identifying objects of a type. Types without
// key fields are identified by "id", then "_id".
func WithKeyFields(typename string, fields ...string) Option {
	return func(c *InMemoryCache) {
		c.keyFields[typename] = fields
	}
}

// New creates an empty cache.
func New(opts ...Option) *InMemoryCache {
	c := &InMemoryCache{
		entities:      make(map[string]map[string]any),
		possibleTypes: make(map[string]map[string]bool),
		keyFields:     make(map[string][]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AddPossibleTypes merges concrete types of interfaces and unions into the
// cache's type map. Existing entries are kept.
func (c *InMemoryCache) AddPossibleTypes(possible map[string][]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.addPossibleTypes(possible)
}

func (c *InMemoryCache) addPossibleTypes(possible map[string][]string) {
	for abstract, types := range possible {
		set := c.possibleTypes[abstract]
		if set == nil {
			set = make(map[string]bool, len(types))
			c.possibleTypes[abstract] = set
		}
		for _, t := range types {
			set[t] = true
		}
	}
}

// WriteQuery writes data for a query string.
func (c *InMemoryCache) WriteQuery(q Query) error {
	doc, err := parseDocument(q.Query)
	if err != nil {
		return err
	}
	op, err := graphql.SelectOperation(doc, q.OperationName)
	if err != nil {
		return err
	}
	return c.Write(doc, op, q.Variables, q.Data)
}

// ReadQuery reads the result of a query string from the cache. It returns an
// error wrapping ErrMissingField when any selected field is absent.
func (c *InMemoryCache) ReadQuery(query string, variables map[string]any) (map[string]any, error) {
	doc, err := parseDocument(query)
	if err != nil {
		return nil, err
	}
	op, err := graphql.SelectOperation(doc, "")
	if err != nil {
		return nil, err
	}
	return c.Read(doc, op, variables)
}

// Write normalizes data for the operation into the store.
func (c *InMemoryCache) Write(doc *ast.QueryDocument, op *ast.OperationDefinition, variables, data map[string]any) error {
	if data == nil {
		return errors.New("cannot write nil data to cache")
	}

	rootID, rootType := RootQuery, "Query"
	if op.Operation == ast.Mutation {
		rootID, rootType = RootMutation, "Mutation"
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	root := c.entity(rootID)
	if _, ok := root["__typename"]; !ok {
		root["__typename"] = rootType
	}

	w := &walker{c: c, doc: doc, vars: graphql.VariablesWithDefaults(op, variables)}
	w.write(root, op.SelectionSet, data)
	return nil
}

// Read denormalizes the operation's result from the store.
func (c *InMemoryCache) Read(doc *ast.QueryDocument, op *ast.OperationDefinition, variables map[string]any) (map[string]any, error) {
	rootID := RootQuery
	if op.Operation == ast.Mutation {
		rootID = RootMutation
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	root, ok := c.entities[rootID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingField, rootID)
	}

	w := &walker{c: c, doc: doc, vars: graphql.VariablesWithDefaults(op, variables)}
	return w.read(root, op.SelectionSet, nil)
}

// Identify returns the entity ID of an object, or false if it cannot be normalized.
func (c *InMemoryCache) Identify(obj map[string]any) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.identify(obj)
}

func (c *InMemoryCache) identify(obj map[string]any) (string, bool) {
	typename, ok := obj["__typename"].(string)
	if !ok || typename == "" {
		return "", false
	}

	if fields, ok := c.keyFields[typename]; ok && len(fields) > 0 {
		key := make(map[string]any, len(fields))
		for _, f := range fields {
			v, ok := obj[f]
			if !ok || v == nil {
				return "", false
			}
			key[f] = v
		}
		b, err := json.Marshal(key)
		if err != nil {
			return "", false
		}
		return typename + ":" + string(b), true
	}

	for _, f := range []string{"id", "_id"} {
		if v, ok := obj[f]; ok && v != nil {
			return fmt.Sprintf("%s:%v", typename, v), true
		}
	}
	return "", false
}

// Entity returns a copy of the stored fields of an entity.
func (c *InMemoryCache) Entity(id string) (map[string]any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entities[id]
	if !ok {
		return nil, false
	}
	return deepCopy(e).(map[string]any), true
}

// Evict removes an entity. References to it become cache misses.
func (c *InMemoryCache) Evict(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entities[id]
	delete(c.entities, id)
	return ok
}

// Extract returns a deep copy of the normalized store.
func (c *InMemoryCache) Extract() map[string]map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]map[string]any, len(c.entities))
	for id, e := range c.entities {
		out[id] = deepCopy(e).(map[string]any)
	}
	return out
}

// Restore replaces the store with a snapshot produced by Extract.
func (c *InMemoryCache) Restore(snapshot map[string]map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entities = make(map[string]map[string]any, len(snapshot))
	for id, e := range snapshot {
		c.entities[id] = deepCopy(e).(map[string]any)
	}
}

// Reset empties the store.
func (c *InMemoryCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entities = make(map[string]map[string]any)
}

// Len returns the number of stored entities, roots included.
func (c *InMemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entities)
}

// IDs returns the sorted entity IDs.
func (c *InMemoryCache) IDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.entities))
	for id := range c.entities {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (c *InMemoryCache) entity(id string) map[string]any {
	e, ok := c.entities[id]
	if !ok {
		e = make(map[string]any)
		c.entities[id] = e
	}
	return e
}

// typeMatches reports whether a fragment on condition applies to an object of typename.
// Objects without a known typename match any fragment.
func (c *InMemoryCache) typeMatches(condition, typename string) bool {
	if condition == "" || typename == "" || condition == typename {
		return true
	}
	return c.possibleTypes[condition][typename]
}

// StoreKey returns the key a field is stored under: its name, followed by its
// arguments as JSON when it has any.
func StoreKey(f *ast.Field, variables map[string]any) string {
	if len(f.Arguments) == 0 {
		return f.Name
	}
	args := make(map[string]any, len(f.Arguments))
	for _, arg := range f.Arguments {
		v, err := arg.Value.Value(variables)
		if err != nil {
			continue
		}
		args[arg.Name] = v
	}
	b, err := json.Marshal(args)
	if err != nil {
		return f.Name
	}
	return f.Name + "(" + string(b) + ")"
}

// AddTypename adds __typename to every non-root selection set of the document,
// so results carry the type information the cache needs for normalization.
func AddTypename(doc *ast.QueryDocument) {
	for _, op := range doc.Operations {
		addTypename(op.SelectionSet)
	}
	for _, frag := range doc.Fragments {
		addTypename(frag.SelectionSet)
	}
}

func addTypename(sels ast.SelectionSet) {
	for _, sel := range sels {
		switch s := sel.(type) {
		case *ast.Field:
			if len(s.SelectionSet) == 0 {
				continue
			}
			addTypename(s.SelectionSet)
			if !hasTypename(s.SelectionSet) {
				s.SelectionSet = append(ast.SelectionSet{&ast.Field{Name: "__typename"}}, s.SelectionSet...)
			}
		case *ast.InlineFragment:
			addTypename(s.SelectionSet)
		}
	}
}

func hasTypename(sels ast.SelectionSet) bool {
	for _, sel := range sels {
		if f, ok := sel.(*ast.Field); ok && f.Name == "__typename" && f.Alias == "" {
			return true
		}
	}
	return false
}

func parseDocument(query string) (*ast.QueryDocument, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("query is required")
	}
	doc, err := parser.ParseQuery(&ast.Source{Name: "query", Input: query})
	if err != nil {
		return nil, fmt.Errorf("failed to parse query: %w", err)
	}
	return doc, nil
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = deepCopy(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = deepCopy(val)
		}
		return out
	default:
		return v
	}
}

func isRef(v map[string]any) (string, bool) {
	if len(v) != 1 {
		return "", false
	}
	id, ok := v[refKey].(string)
	return id, ok
}
