package graphql

import (
	"github.com/vektah/gqlparser/v2/ast"
)

// introspect answers the __schema and __type root fields from the schema AST.
func (x *execution) introspect(field *ast.Field) any {
	switch field.Name {
	case "__schema":
		return x.schemaInfo(field.SelectionSet)
	case "__type":
		name, _ := ArgumentValues(field, x.vars)["name"].(string)
		return x.typeInfo(name, field.SelectionSet)
	}
	return nil
}

// eachField calls fn for every field of the selection set, expanding fragments.
func (x *execution) eachField(sels ast.SelectionSet, fn func(key string, f *ast.Field)) {
	for _, sel := range sels {
		switch s := sel.(type) {
		case *ast.Field:
			fn(ResponseKey(s), s)
		case *ast.InlineFragment:
			x.eachField(s.SelectionSet, fn)
		case *ast.FragmentSpread:
			if frag := x.doc.Fragments.ForName(s.Name); frag != nil {
				x.eachField(frag.SelectionSet, fn)
			}
		}
	}
}

func (x *execution) schemaInfo(sels ast.SelectionSet) map[string]any {
	schema := x.e.schema
	rootRef := func(def *ast.Definition, sels ast.SelectionSet) any {
		if def == nil {
			return nil
		}
		return x.typeInfo(def.Name, sels)
	}

	out := make(map[string]any)
	x.eachField(sels, func(key string, f *ast.Field) {
		switch f.Name {
		case "__typename":
			out[key] = "__Schema"
		case "description":
			out[key] = nil
		case "queryType":
			out[key] = rootRef(schema.AST().Query, f.SelectionSet)
		case "mutationType":
			out[key] = rootRef(schema.AST().Mutation, f.SelectionSet)
		case "subscriptionType":
			out[key] = rootRef(schema.AST().Subscription, f.SelectionSet)
		case "types":
			types := make([]any, 0)
			for _, name := range schema.ListTypes() {
				types = append(types, x.typeInfo(name, f.SelectionSet))
			}
			out[key] = types
		case "directives":
			dirs := make([]any, 0, len(schema.AST().Directives))
			for _, dir := range schema.AST().Directives {
				dirs = append(dirs, x.directiveInfo(dir, f.SelectionSet))
			}
			out[key] = dirs
		}
	})
	return out
}

func (x *execution) typeInfo(name string, sels ast.SelectionSet) any {
	def := x.e.schema.GetType(name)
	if def == nil {
		return nil
	}

	out := make(map[string]any)
	x.eachField(sels, func(key string, f *ast.Field) {
		switch f.Name {
		case "__typename":
			out[key] = "__Type"
		case "name":
			out[key] = def.Name
		case "kind":
			out[key] = typeKind(def)
		case "description":
			out[key] = def.Description
		case "specifiedByURL", "ofType":
			out[key] = nil
		case "isOneOf":
			out[key] = def.Directives.ForName("oneOf") != nil
		case "fields":
			if def.Kind != ast.Object && def.Kind != ast.Interface {
				out[key] = nil
				return
			}
			fields := make([]any, 0, len(def.Fields))
			for _, fd := range def.Fields {
				if isIntrospectionField(fd.Name) {
					continue
				}
				fields = append(fields, x.fieldInfo(fd, f.SelectionSet))
			}
			out[key] = fields
		case "inputFields":
			if def.Kind != ast.InputObject {
				out[key] = nil
				return
			}
			fields := make([]any, 0, len(def.Fields))
			for _, fd := range def.Fields {
				fields = append(fields, x.inputValueInfo(fd.Name, fd.Description, fd.Type, fd.DefaultValue, f.SelectionSet))
			}
			out[key] = fields
		case "enumValues":
			if def.Kind != ast.Enum {
				out[key] = nil
				return
			}
			values := make([]any, 0, len(def.EnumValues))
			for _, ev := range def.EnumValues {
				values = append(values, x.enumValueInfo(ev, f.SelectionSet))
			}
			out[key] = values
		case "interfaces":
			if def.Kind != ast.Object {
				out[key] = nil
				return
			}
			ifaces := make([]any, 0, len(def.Interfaces))
			for _, iface := range def.Interfaces {
				ifaces = append(ifaces, x.typeInfo(iface, f.SelectionSet))
			}
			out[key] = ifaces
		case "possibleTypes":
			if def.Kind != ast.Interface && def.Kind != ast.Union {
				out[key] = nil
				return
			}
			types := make([]any, 0)
			for _, p := range x.e.schema.PossibleTypes(def.Name) {
				types = append(types, x.typeInfo(p, f.SelectionSet))
			}
			out[key] = types
		}
	})
	return out
}

func (x *execution) typeRefInfo(t *ast.Type, sels ast.SelectionSet) any {
	switch {
	case t.NonNull:
		inner := *t
		inner.NonNull = false
		return x.wrapperInfo("NON_NULL", &inner, sels)
	case t.Elem != nil:
		return x.wrapperInfo("LIST", t.Elem, sels)
	default:
		return x.typeInfo(t.NamedType, sels)
	}
}

func (x *execution) wrapperInfo(kind string, ofType *ast.Type, sels ast.SelectionSet) map[string]any {
	out := make(map[string]any)
	x.eachField(sels, func(key string, f *ast.Field) {
		switch f.Name {
		case "__typename":
			out[key] = "__Type"
		case "kind":
			out[key] = kind
		case "ofType":
			out[key] = x.typeRefInfo(ofType, f.SelectionSet)
		default:
			out[key] = nil
		}
	})
	return out
}

func (x *execution) fieldInfo(fd *ast.FieldDefinition, sels ast.SelectionSet) map[string]any {
	deprecated, reason := deprecation(fd.Directives)

	out := make(map[string]any)
	x.eachField(sels, func(key string, f *ast.Field) {
		switch f.Name {
		case "__typename":
			out[key] = "__Field"
		case "name":
			out[key] = fd.Name
		case "description":
			out[key] = fd.Description
		case "args":
			args := make([]any, 0, len(fd.Arguments))
			for _, arg := range fd.Arguments {
				args = append(args, x.inputValueInfo(arg.Name, arg.Description, arg.Type, arg.DefaultValue, f.SelectionSet))
			}
			out[key] = args
		case "type":
			out[key] = x.typeRefInfo(fd.Type, f.SelectionSet)
		case "isDeprecated":
			out[key] = deprecated
		case "deprecationReason":
			out[key] = reason
		}
	})
	return out
}

func (x *execution) inputValueInfo(name, description string, t *ast.Type, defaultValue *ast.Value, sels ast.SelectionSet) map[string]any {
	out := make(map[string]any)
	x.eachField(sels, func(key string, f *ast.Field) {
		switch f.Name {
		case "__typename":
			out[key] = "__InputValue"
		case "name":
			out[key] = name
		case "description":
			out[key] = description
		case "type":
			out[key] = x.typeRefInfo(t, f.SelectionSet)
		case "defaultValue":
			if defaultValue != nil {
				out[key] = defaultValue.String()
			} else {
				out[key] = nil
			}
		case "isDeprecated":
			out[key] = false
		case "deprecationReason":
			out[key] = nil
		}
	})
	return out
}

func (x *execution) enumValueInfo(ev *ast.EnumValueDefinition, sels ast.SelectionSet) map[string]any {
	deprecated, reason := deprecation(ev.Directives)

	out := make(map[string]any)
	x.eachField(sels, func(key string, f *ast.Field) {
		switch f.Name {
		case "__typename":
			out[key] = "__EnumValue"
		case "name":
			out[key] = ev.Name
		case "description":
			out[key] = ev.Description
		case "isDeprecated":
			out[key] = deprecated
		case "deprecationReason":
			out[key] = reason
		}
	})
	return out
}

func (x *execution) directiveInfo(dir *ast.DirectiveDefinition, sels ast.SelectionSet) map[string]any {
	out := make(map[string]any)
	x.eachField(sels, func(key string, f *ast.Field) {
		switch f.Name {
		case "__typename":
			out[key] = "__Directive"
		case "name":
			out[key] = dir.Name
		case "description":
			out[key] = dir.Description
		case "locations":
			locations := make([]any, len(dir.Locations))
			for i, loc := range dir.Locations {
				locations[i] = string(loc)
			}
			out[key] = locations
		case "args":
			args := make([]any, 0, len(dir.Arguments))
			for _, arg := range dir.Arguments {
				args = append(args, x.inputValueInfo(arg.Name, arg.Description, arg.Type, arg.DefaultValue, f.SelectionSet))
			}
			out[key] = args
		case "isRepeatable":
			out[key] = dir.IsRepeatable
		}
	})
	return out
}

func deprecation(dirs ast.DirectiveList) (bool, any) {
	d := dirs.ForName("deprecated")
	if d == nil {
		return false, nil
	}
	if arg := d.Arguments.ForName("reason"); arg != nil && arg.Value != nil {
		return true, arg.Value.Raw
	}
	return true, "No longer supported"
}

// typeKind returns the GraphQL __TypeKind for a definition.
func typeKind(def *ast.Definition) string {
	switch def.Kind {
	case ast.Scalar:
		return "SCALAR"
	case ast.Interface:
		return "INTERFACE"
	case ast.Union:
		return "UNION"
	case ast.Enum:
		return "ENUM"
	case ast.InputObject:
		return "INPUT_OBJECT"
	default:
		return "OBJECT"
	}
}
