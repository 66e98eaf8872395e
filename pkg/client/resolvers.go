package client

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/vektah/gqlparser/v2/ast"

	"github.com/getmockd/mockedprovider/pkg/graphql"
)

// Resolver resolves an @client field. parent is the object holding the field.
type Resolver func(ctx context.Context, parent map[string]any, args map[string]any) (any, error)

// Resolvers maps type name and field name to the resolver of an @client field.
type Resolvers map[string]map[string]Resolver

// Merge returns r overlaid by other. A type present in other replaces the
// type's resolvers of r as a whole.
func (r Resolvers) Merge(other Resolvers) Resolvers {
	out := make(Resolvers, len(r)+len(other))
	maps.Copy(out, r)
	maps.Copy(out, other)
	return out
}

func (r Resolvers) lookup(typename, field string) (Resolver, bool) {
	fields, ok := r[typename]
	if !ok {
		return nil, false
	}
	fn, ok := fields[field]
	return fn, ok && fn != nil
}

// stripClientFields returns a copy of doc without @client fields. Selection
// sets left empty are dropped with their field.
func stripClientFields(doc *ast.QueryDocument) *ast.QueryDocument {
	out := &ast.QueryDocument{Position: doc.Position}
	for _, op := range doc.Operations {
		cp := *op
		cp.SelectionSet = stripSelections(op.SelectionSet)
		out.Operations = append(out.Operations, &cp)
	}
	for _, frag := range doc.Fragments {
		cp := *frag
		cp.SelectionSet = stripSelections(frag.SelectionSet)
		out.Fragments = append(out.Fragments, &cp)
	}
	return out
}

func stripSelections(sels ast.SelectionSet) ast.SelectionSet {
	var out ast.SelectionSet
	for _, sel := range sels {
		switch s := sel.(type) {
		case *ast.Field:
			if graphql.IsClientField(s) {
				continue
			}
			if len(s.SelectionSet) == 0 {
				out = append(out, s)
				continue
			}
			children := stripSelections(s.SelectionSet)
			if len(children) == 0 {
				continue
			}
			cp := *s
			cp.SelectionSet = children
			out = append(out, &cp)
		case *ast.InlineFragment:
			children := stripSelections(s.SelectionSet)
			if len(children) == 0 {
				continue
			}
			cp := *s
			cp.SelectionSet = children
			out = append(out, &cp)
		default:
			out = append(out, sel)
		}
	}
	return out
}

func hasClientFields(sels ast.SelectionSet, doc *ast.QueryDocument, visited map[string]bool) bool {
	for _, sel := range sels {
		switch s := sel.(type) {
		case *ast.Field:
			if graphql.IsClientField(s) || hasClientFields(s.SelectionSet, doc, visited) {
				return true
			}
		case *ast.InlineFragment:
			if hasClientFields(s.SelectionSet, doc, visited) {
				return true
			}
		case *ast.FragmentSpread:
			if visited[s.Name] {
				continue
			}
			visited[s.Name] = true
			if frag := doc.Fragments.ForName(s.Name); frag != nil && hasClientFields(frag.SelectionSet, doc, visited) {
				return true
			}
		}
	}
	return false
}

// resolveClientFields fills @client fields of res.Data using the client's
// resolvers. Resolver errors are appended to res.Errors.
func (c *Client) resolveClientFields(ctx context.Context, op *operation, res *Result) {
	if res.Data == nil || !hasClientFields(op.def.SelectionSet, op.doc, map[string]bool{}) {
		return
	}

	root, rootDef := "Query", c.schema.AST().Query
	if op.def.Operation == ast.Mutation {
		root, rootDef = "Mutation", c.schema.AST().Mutation
	}
	if rootDef != nil {
		root = rootDef.Name
	}

	r := &clientResolution{
		ctx:       ctx,
		c:         c,
		doc:       op.doc,
		vars:      op.variables,
		resolvers: c.currentResolvers(),
	}
	r.object(op.def.SelectionSet, root, res.Data, nil)
	res.Errors = append(res.Errors, r.errs...)
}

type clientResolution struct {
	ctx       context.Context
	c         *Client
	doc       *ast.QueryDocument
	vars      map[string]any
	resolvers Resolvers
	errs      []*graphql.Error
}

func (r *clientResolution) object(sels ast.SelectionSet, typename string, obj map[string]any, path []any) {
	for _, f := range r.fields(sels, typename, map[string]bool{}) {
		key := graphql.ResponseKey(f)
		fieldPath := append(path[:len(path):len(path)], key)

		if !graphql.IsClientField(f) {
			if len(f.SelectionSet) > 0 {
				r.value(f.SelectionSet, obj[key], fieldPath)
			}
			continue
		}

		fn, ok := r.resolvers.lookup(typename, f.Name)
		if !ok {
			r.c.logger.Debug("no resolver for @client field", "type", typename, "field", f.Name)
			if _, exists := obj[key]; !exists {
				obj[key] = nil
			}
			continue
		}

		v, err := callResolver(r.ctx, fn, obj, graphql.ArgumentValues(f, r.vars))
		if err != nil {
			r.errs = append(r.errs, graphql.NewError(err, fieldPath, f))
			obj[key] = nil
			continue
		}
		obj[key] = v
	}
}

func (r *clientResolution) value(sels ast.SelectionSet, v any, path []any) {
	switch t := v.(type) {
	case map[string]any:
		typename, _ := t["__typename"].(string)
		r.object(sels, typename, t, path)
	case []any:
		for i, item := range t {
			r.value(sels, item, append(path[:len(path):len(path)], i))
		}
	}
}

func (r *clientResolution) fields(sels ast.SelectionSet, typename string, visited map[string]bool) []*ast.Field {
	var out []*ast.Field
	for _, sel := range sels {
		switch s := sel.(type) {
		case *ast.Field:
			if graphql.ShouldInclude(s.Directives, r.vars) {
				out = append(out, s)
			}
		case *ast.InlineFragment:
			if graphql.ShouldInclude(s.Directives, r.vars) && r.applies(s.TypeCondition, typename) {
				out = append(out, r.fields(s.SelectionSet, typename, visited)...)
			}
		case *ast.FragmentSpread:
			if visited[s.Name] || !graphql.ShouldInclude(s.Directives, r.vars) {
				continue
			}
			visited[s.Name] = true
			if frag := r.doc.Fragments.ForName(s.Name); frag != nil && r.applies(frag.TypeCondition, typename) {
				out = append(out, r.fields(frag.SelectionSet, typename, visited)...)
			}
		}
	}
	return out
}

func (r *clientResolution) applies(condition, typename string) bool {
	if condition == "" || typename == "" || condition == typename {
		return true
	}
	return slices.Contains(r.c.schema.PossibleTypes(condition), typename)
}

func callResolver(ctx context.Context, fn Resolver, parent, args map[string]any) (v any, err error) {
	defer func() {
		if p := recover(); p != nil {
			if e, ok := p.(error); ok {
				err = e
				return
			}
			err = fmt.Errorf("%v", p)
		}
	}()
	return fn(ctx, parent, args)
}
