package cache

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/vektah/gqlparser/v2/ast"

	"github.com/getmockd/mockedprovider/pkg/graphql"
)

// walker walks a selection set alongside result data. Callers hold the cache lock.
type walker struct {
	c    *InMemoryCache
	doc  *ast.QueryDocument
	vars map[string]any
}

// fields flattens the selection set for an object of the given typename,
// expanding fragments that apply to it.
func (w *walker) fields(sels ast.SelectionSet, typename string, visited map[string]bool) []*ast.Field {
	var out []*ast.Field
	for _, sel := range sels {
		switch s := sel.(type) {
		case *ast.Field:
			if graphql.ShouldInclude(s.Directives, w.vars) && !graphql.IsClientField(s) {
				out = append(out, s)
			}
		case *ast.InlineFragment:
			if graphql.ShouldInclude(s.Directives, w.vars) && w.c.typeMatches(s.TypeCondition, typename) {
				out = append(out, w.fields(s.SelectionSet, typename, visited)...)
			}
		case *ast.FragmentSpread:
			if !graphql.ShouldInclude(s.Directives, w.vars) || visited[s.Name] {
				continue
			}
			frag := w.doc.Fragments.ForName(s.Name)
			if frag == nil || !w.c.typeMatches(frag.TypeCondition, typename) {
				continue
			}
			if visited == nil {
				visited = make(map[string]bool)
			}
			visited[s.Name] = true
			out = append(out, w.fields(frag.SelectionSet, typename, visited)...)
		}
	}
	return out
}

// write stores the selected fields of data into record.
func (w *walker) write(record map[string]any, sels ast.SelectionSet, data map[string]any) {
	typename, _ := data["__typename"].(string)
	if typename != "" {
		record["__typename"] = typename
	} else {
		typename, _ = record["__typename"].(string)
	}

	for _, f := range w.fields(sels, typename, nil) {
		if f.Name == "__typename" {
			continue
		}
		v, ok := data[graphql.ResponseKey(f)]
		if !ok {
			continue
		}
		key := StoreKey(f, w.vars)
		record[key] = w.normalize(v, f.SelectionSet, record[key])
	}
}

func (w *walker) normalize(v any, sels ast.SelectionSet, existing any) any {
	if v == nil {
		return nil
	}

	if obj, ok := v.(map[string]any); ok && len(sels) > 0 {
		if id, ok := w.c.identify(obj); ok {
			w.write(w.c.entity(id), sels, obj)
			return map[string]any{refKey: id}
		}
		embedded, ok := existing.(map[string]any)
		if !ok {
			embedded = make(map[string]any)
		} else if _, isRef := isRef(embedded); isRef {
			embedded = make(map[string]any)
		}
		w.write(embedded, sels, obj)
		return embedded
	}

	if items, ok := asSlice(v); ok {
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = w.normalize(item, sels, nil)
		}
		return out
	}

	return deepCopy(v)
}

// read denormalizes the selected fields of record.
func (w *walker) read(record map[string]any, sels ast.SelectionSet, path []string) (map[string]any, error) {
	typename, _ := record["__typename"].(string)

	out := make(map[string]any)
	for _, f := range w.fields(sels, typename, nil) {
		key := graphql.ResponseKey(f)
		fieldPath := append(path[:len(path):len(path)], key)

		if f.Name == "__typename" {
			if typename == "" {
				return nil, missing(fieldPath)
			}
			out[key] = typename
			continue
		}

		v, ok := record[StoreKey(f, w.vars)]
		if !ok {
			return nil, missing(fieldPath)
		}

		value, err := w.denormalize(v, f.SelectionSet, fieldPath)
		if err != nil {
			return nil, err
		}
		out[key] = value
	}
	return out, nil
}

func (w *walker) denormalize(v any, sels ast.SelectionSet, path []string) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			value, err := w.denormalize(item, sels, append(path[:len(path):len(path)], fmt.Sprint(i)))
			if err != nil {
				return nil, err
			}
			out[i] = value
		}
		return out, nil
	case map[string]any:
		if len(sels) == 0 {
			return deepCopy(t), nil
		}
		if id, ok := isRef(t); ok {
			entity, ok := w.c.entities[id]
			if !ok {
				return nil, fmt.Errorf("%w: dangling reference %s at %s", ErrMissingField, id, strings.Join(path, "."))
			}
			return w.read(entity, sels, path)
		}
		return w.read(t, sels, path)
	default:
		return v, nil
	}
}

func missing(path []string) error {
	return fmt.Errorf("%w: %s", ErrMissingField, strings.Join(path, "."))
}

func asSlice(v any) ([]any, bool) {
	if s, ok := v.([]any); ok {
		return s, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
