// Package config loads mock definitions for a mocked GraphQL provider from YAML.
//
// A configuration names the schema, optional static mocks per type and
// resolver rules per field, and cache entries to pre-populate:
//
//	schemaFile: schema.graphql
//	seed: 42
//	mocks:
//	  String: "mocked"
//	resolvers:
//	  Query.todo:
//	    - match:
//	        args: {id: "1"}
//	      response: {id: "1", text: "First"}
//	    - when: 'args.id == "boom"'
//	      error:
//	        message: Boom
//	    - delay: 100ms
//	cache:
//	  - query: "{ todos { id text } }"
//	    data: {todos: []}
//
// Rules of a field are tried in order. The first rule whose match arguments
// and when expression both hold is used. A rule without response or error
// keeps the generated mock, and so does a field with no applicable rule.
//
// JSON documents are valid YAML and load the same way.
package config
