package graphql

import (
	"context"
	"fmt"
	"maps"
	mathrand "math/rand/v2"
	"sync"

	"github.com/google/uuid"
)

// MockFunc produces the mock for a schema type. For object types it returns a
// map[string]any whose entries are static values, FieldFunc or *List. For
// scalar and enum types it returns the value itself.
type MockFunc func() any

// FieldFunc resolves a single field. A returned error becomes a GraphQL error
// on the field's path.
type FieldFunc func(ctx context.Context, args map[string]any) (any, error)

// MockResolvers maps type names ("Query", "Mutation", "Todo", "String", ...)
// to their mock functions.
type MockResolvers map[string]MockFunc

// Merge returns a new MockResolvers holding r overlaid by other. Entries of
// other win on conflicting type names.
func (r MockResolvers) Merge(other MockResolvers) MockResolvers {
	out := make(MockResolvers, len(r)+len(other))
	maps.Copy(out, r)
	maps.Copy(out, other)
	return out
}

// List mocks a list field with a fixed length. Item is used for every entry:
// a static value, a MockFunc, a FieldFunc or nil for the schema default.
type List struct {
	Len  int
	Item any
}

// MockList returns a List of n items built from item.
func MockList(n int, item any) *List {
	return &List{Len: n, Item: item}
}

// DefaultListLength is the number of entries generated for unresolved lists.
const DefaultListLength = 2

// DefaultString is the mock for String and custom scalars.
const DefaultString = "Hello World"

// randomSource is a goroutine-safe wrapper around a math/rand/v2 generator.
type randomSource struct {
	mu  sync.Mutex
	rng *mathrand.Rand
}

func newRandomSource(seed *uint64) *randomSource {
	if seed == nil {
		return &randomSource{}
	}
	return &randomSource{rng: mathrand.New(mathrand.NewPCG(*seed, *seed^0x9e3779b97f4a7c15))}
}

func (r *randomSource) intN(n int) int {
	if n <= 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rng != nil {
		return r.rng.IntN(n)
	}
	return mathrand.IntN(n)
}

func (r *randomSource) float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rng != nil {
		return r.rng.Float64()
	}
	return mathrand.Float64()
}

// uuid returns a UUID v4 string, deterministic when the source is seeded.
func (r *randomSource) uuid() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rng == nil {
		return uuid.NewString()
	}
	var b [16]byte
	for i := range b {
		b[i] = byte(r.rng.IntN(256))
	}
	b[6] = (b[6] & 0x0f) | 0x40
	b[8] = (b[8] & 0x3f) | 0x80
	id, err := uuid.FromBytes(b[:])
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// defaultScalar returns the built-in mock for a scalar type.
func (r *randomSource) defaultScalar(name string) any {
	switch name {
	case "Int":
		return r.intN(201) - 100
	case "Float":
		return r.float64()*200 - 100
	case "Boolean":
		return r.intN(2) == 1
	case "ID":
		return r.uuid()
	default:
		return DefaultString
	}
}

// callMock invokes v when it is one of the resolver function shapes and
// returns static values unchanged. Panics raised by user code are returned as
// errors.
func callMock(ctx context.Context, v any, args map[string]any) (out any, err error) {
	defer func() {
		if p := recover(); p != nil {
			if e, ok := p.(error); ok {
				err = e
				return
			}
			err = fmt.Errorf("%v", p)
		}
	}()

	switch fn := v.(type) {
	case FieldFunc:
		return fn(ctx, args)
	case func(context.Context, map[string]any) (any, error):
		return fn(ctx, args)
	case MockFunc:
		return fn(), nil
	case func() any:
		return fn(), nil
	default:
		return v, nil
	}
}
