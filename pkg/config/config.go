package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/getmockd/mockedprovider/pkg/cache"
	"github.com/getmockd/mockedprovider/pkg/graphql"
)

// Config is a mock definition file.
type Config struct {
	// SchemaFile is the path of the SDL file, relative to the config file.
	SchemaFile string `yaml:"schemaFile,omitempty"`
	// Schema is inline SDL, used when SchemaFile is empty.
	Schema string `yaml:"schema,omitempty"`
	// Seed makes generated values deterministic.
	Seed *uint64 `yaml:"seed,omitempty"`
	// Introspection enables __schema and __type. Defaults to true.
	Introspection *bool `yaml:"introspection,omitempty"`
	// Mocks are static mocks per type name. Object types take a mapping of
	// field values, scalars and enums a single value.
	Mocks map[string]any `yaml:"mocks,omitempty"`
	// Resolvers are rules per field, keyed "Type.field".
	Resolvers map[string][]ResolverConfig `yaml:"resolvers,omitempty"`
	// Cache holds query results written to the cache before serving.
	Cache []cache.Query `yaml:"cache,omitempty"`

	dir string
}

// ResolverConfig is a single resolver rule for a field.
type ResolverConfig struct {
	// Response is the value returned for the field.
	Response any `yaml:"response,omitempty"`
	// Delay is the simulated latency before answering (e.g. "100ms", "2s").
	Delay string `yaml:"delay,omitempty"`
	// Match restricts the rule to calls with the given argument values.
	Match *ResolverMatch `yaml:"match,omitempty"`
	// When is an expr-lang boolean expression over "args".
	When string `yaml:"when,omitempty"`
	// Error makes the field fail instead of returning Response.
	Error *ErrorConfig `yaml:"error,omitempty"`
}

// ResolverMatch specifies matching conditions for a rule.
type ResolverMatch struct {
	// Args specifies argument values that must match for the rule to apply.
	Args map[string]any `yaml:"args,omitempty"`
}

// ErrorConfig configures a field error.
type ErrorConfig struct {
	Message    string         `yaml:"message"`
	Extensions map[string]any `yaml:"extensions,omitempty"`
}

// Validate checks the configuration for structural errors, compiling every
// when expression.
func (c *Config) Validate() error {
	if c.SchemaFile == "" && strings.TrimSpace(c.Schema) == "" {
		return errors.New("one of schemaFile or schema is required")
	}
	if c.SchemaFile != "" && strings.TrimSpace(c.Schema) != "" {
		return errors.New("schemaFile and schema are mutually exclusive")
	}

	for key, rules := range c.Resolvers {
		if _, err := compileRules(key, rules); err != nil {
			return err
		}
	}
	for i, q := range c.Cache {
		if strings.TrimSpace(q.Query) == "" {
			return fmt.Errorf("cache[%d]: query is required", i)
		}
		if q.Data == nil {
			return fmt.Errorf("cache[%d]: data is required", i)
		}
	}
	return nil
}

// SchemaSource returns the schema SDL.
func (c *Config) SchemaSource() (string, error) {
	if c.SchemaFile == "" {
		return c.Schema, nil
	}
	path := c.SchemaFile
	if !filepath.IsAbs(path) && c.dir != "" {
		path = filepath.Join(c.dir, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return "", fmt.Errorf("failed to read schema file: %w", err)
	}
	return string(data), nil
}

// LoadSchema compiles the configured schema.
func (c *Config) LoadSchema() (*graphql.Schema, error) {
	sdl, err := c.SchemaSource()
	if err != nil {
		return nil, err
	}
	return graphql.ParseSchema(sdl)
}

// IntrospectionEnabled reports whether introspection is on.
func (c *Config) IntrospectionEnabled() bool {
	return c.Introspection == nil || *c.Introspection
}

// MockResolvers converts the static mocks and resolver rules into executor
// mocks.
func (c *Config) MockResolvers() (graphql.MockResolvers, error) {
	byType := make(map[string]map[string]graphql.FieldFunc)
	for _, key := range sortedKeys(c.Resolvers) {
		compiled, err := compileRules(key, c.Resolvers[key])
		if err != nil {
			return nil, err
		}
		fp := graphql.ParseFieldPath(key)
		if byType[fp.TypeName] == nil {
			byType[fp.TypeName] = make(map[string]graphql.FieldFunc)
		}
		byType[fp.TypeName][fp.FieldName] = compiled.resolve
	}

	out := make(graphql.MockResolvers, len(c.Mocks)+len(byType))
	for typeName, value := range c.Mocks {
		if _, ok := byType[typeName]; ok {
			continue
		}
		out[typeName] = func() any { return deepCopy(value) }
	}
	for typeName, fields := range byType {
		static, _ := c.Mocks[typeName].(map[string]any)
		out[typeName] = func() any {
			m := make(map[string]any, len(static)+len(fields))
			for k, v := range static {
				m[k] = deepCopy(v)
			}
			for k, fn := range fields {
				m[k] = fn
			}
			return m
		}
	}
	return out, nil
}

// Populate writes the configured cache entries to store.
func (c *Config) Populate(store *cache.InMemoryCache) error {
	for i, q := range c.Cache {
		if err := store.WriteQuery(q); err != nil {
			return fmt.Errorf("cache[%d]: %w", i, err)
		}
	}
	return nil
}

// ResolverError is the error returned by a rule with an error configured.
type ResolverError struct {
	Message string
	Ext     map[string]any
}

func (e *ResolverError) Error() string { return e.Message }

// Extensions implements graphql.ExtendedError.
func (e *ResolverError) Extensions() map[string]any { return e.Ext }

type rule struct {
	ResolverConfig
	delay time.Duration
	when  *vm.Program
}

type fieldRules struct {
	key   string
	rules []rule
}

func compileRules(key string, configs []ResolverConfig) (*fieldRules, error) {
	fp := graphql.ParseFieldPath(key)
	if fp.TypeName == "" || fp.FieldName == "" {
		return nil, fmt.Errorf("resolver key %q must have the form Type.field", key)
	}

	out := &fieldRules{key: key, rules: make([]rule, len(configs))}
	for i, cfg := range configs {
		r := rule{ResolverConfig: cfg}
		if cfg.Delay != "" {
			d, err := time.ParseDuration(cfg.Delay)
			if err != nil {
				return nil, fmt.Errorf("%s[%d]: invalid delay %q: %w", key, i, cfg.Delay, err)
			}
			r.delay = d
		}
		if cfg.When != "" {
			program, err := expr.Compile(cfg.When, expr.Env(map[string]any{"args": map[string]any{}}), expr.AsBool())
			if err != nil {
				return nil, fmt.Errorf("%s[%d]: invalid when expression: %w", key, i, err)
			}
			r.when = program
		}
		if cfg.Error != nil && cfg.Error.Message == "" {
			return nil, fmt.Errorf("%s[%d]: error message is required", key, i)
		}
		out.rules[i] = r
	}
	return out, nil
}

func (f *fieldRules) resolve(ctx context.Context, args map[string]any) (any, error) {
	r, err := f.find(args)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, graphql.ErrDefaultMock
	}

	if r.delay > 0 {
		timer := time.NewTimer(r.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	switch {
	case r.Error != nil:
		return nil, &ResolverError{Message: r.Error.Message, Ext: r.Error.Extensions}
	case r.Response == nil:
		return nil, graphql.ErrDefaultMock
	default:
		return deepCopy(r.Response), nil
	}
}

// find returns the first rule whose conditions hold.
func (f *fieldRules) find(args map[string]any) (*rule, error) {
	for i := range f.rules {
		r := &f.rules[i]
		if r.Match != nil && !matchArgs(r.Match.Args, args) {
			continue
		}
		if r.when != nil {
			if args == nil {
				args = map[string]any{}
			}
			ok, err := expr.Run(r.when, map[string]any{"args": args})
			if err != nil {
				return nil, fmt.Errorf("eval when for %s: %w", f.key, err)
			}
			if b, _ := ok.(bool); !b {
				continue
			}
		}
		return r, nil
	}
	return nil, nil
}

// matchArgs checks if the rule's argument values are satisfied by the arguments.
func matchArgs(want, got map[string]any) bool {
	for key, expected := range want {
		actual, ok := got[key]
		if !ok || !valuesEqual(expected, actual) {
			return false
		}
	}
	return true
}

// valuesEqual compares values by their printed form, so YAML ints match
// JSON-decoded float64 arguments.
func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
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

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
