package graphql

import "strings"

// Request represents a GraphQL request.
type Request struct {
	// Query is the GraphQL query string.
	Query string `json:"query"`
	// OperationName is the name of the operation to execute (for multi-operation documents).
	OperationName string `json:"operationName,omitempty"`
	// Variables are the variable values for the query.
	Variables map[string]any `json:"variables,omitempty"`
}

// Response represents a GraphQL response.
type Response struct {
	// Data contains the result of the operation. It encodes as null when a
	// non-null field error nulled the whole result.
	Data map[string]any `json:"data"`
	// Errors contains any errors raised while executing the operation.
	Errors []*Error `json:"errors,omitempty"`
	// Extensions contains additional response metadata.
	Extensions map[string]any `json:"extensions,omitempty"`
}

// HasErrors reports whether the response carries at least one error.
func (r *Response) HasErrors() bool {
	return r != nil && len(r.Errors) > 0
}

// ErrorResponse builds a response carrying a single error and no data.
func ErrorResponse(message string) *Response {
	return &Response{Errors: []*Error{{Message: message}}}
}

// Error represents a GraphQL error in the response format.
type Error struct {
	// Message is the error message.
	Message string `json:"message"`
	// Locations indicates where in the query the error occurred.
	Locations []Location `json:"locations,omitempty"`
	// Path is the response field path where the error occurred.
	Path []any `json:"path,omitempty"`
	// Extensions contains additional error metadata.
	Extensions map[string]any `json:"extensions,omitempty"`

	cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the resolver error this GraphQL error was built from, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

// Location represents a location in the GraphQL query where an error occurred.
type Location struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// ExtendedError can be returned by a FieldFunc to attach extensions to the
// resulting GraphQL error.
type ExtendedError interface {
	error
	Extensions() map[string]any
}

// FieldPath represents a path to a field in the schema (e.g., "Query.todos").
type FieldPath struct {
	// TypeName is the parent type name (e.g., "Query", "Mutation", "Todo").
	TypeName string
	// FieldName is the field name.
	FieldName string
}

// String returns the string representation of the field path.
func (fp FieldPath) String() string {
	return fp.TypeName + "." + fp.FieldName
}

// ParseFieldPath parses a field path string (e.g., "Query.todos") into a FieldPath.
// A string without a dot is treated as a field name.
func ParseFieldPath(path string) FieldPath {
	typeName, fieldName, ok := strings.Cut(path, ".")
	if !ok {
		return FieldPath{FieldName: path}
	}
	return FieldPath{TypeName: typeName, FieldName: fieldName}
}
