package client

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/ohler55/ojg/jp"

	"github.com/getmockd/mockedprovider/pkg/graphql"
)

// Result is the outcome of a query or mutation.
type Result struct {
	Data   map[string]any
	Errors []*graphql.Error
	// FromCache is set when the result was read from the cache without
	// reaching the link chain.
	FromCache bool
}

// Err returns the result's errors as a single error, or nil.
func (r *Result) Err() error {
	if r == nil || len(r.Errors) == 0 {
		return nil
	}
	return &Error{GraphQLErrors: r.Errors}
}

// Response converts the result to its wire form.
func (r *Result) Response() *graphql.Response {
	return &graphql.Response{Data: r.Data, Errors: r.Errors}
}

// Decode copies the result data into out, typically a pointer to a struct
// whose fields are tagged with `mapstructure:"name"`.
func (r *Result) Decode(out any) error {
	if r == nil || r.Data == nil {
		return errors.New("result has no data")
	}
	if err := mapstructure.Decode(r.Data, out); err != nil {
		return fmt.Errorf("failed to decode result: %w", err)
	}
	return nil
}

// Get evaluates a JSONPath expression against the result data and returns the
// first match. The leading "$." may be omitted.
func (r *Result) Get(path string) (any, error) {
	values, err := r.GetAll(path)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("no value at %s", path)
	}
	return values[0], nil
}

// GetAll evaluates a JSONPath expression against the result data and returns
// every match.
func (r *Result) GetAll(path string) ([]any, error) {
	expr, err := jp.ParseString(normalizePath(path))
	if err != nil {
		return nil, fmt.Errorf("invalid path %q: %w", path, err)
	}
	if r == nil || r.Data == nil {
		return nil, nil
	}
	return expr.Get(r.Data), nil
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "$"):
		return path
	case strings.HasPrefix(path, "["):
		return "$" + path
	default:
		return "$." + path
	}
}

// Error reports the GraphQL errors of a result.
type Error struct {
	GraphQLErrors []*graphql.Error
}

// Error formats each message as "GraphQL error: <message>", one per line.
func (e *Error) Error() string {
	lines := make([]string, len(e.GraphQLErrors))
	for i, gqlErr := range e.GraphQLErrors {
		lines[i] = "GraphQL error: " + gqlErr.Message
	}
	return strings.Join(lines, "\n")
}

// Unwrap exposes the individual GraphQL errors to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	out := make([]error, len(e.GraphQLErrors))
	for i, gqlErr := range e.GraphQLErrors {
		out[i] = gqlErr
	}
	return out
}

// IsGraphQLError reports whether err carries GraphQL errors from a result.
func IsGraphQLError(err error) bool {
	var e *Error
	return errors.As(err, &e)
}

// Pending is a query running in the background.
type Pending struct {
	done   chan struct{}
	result *Result
}

// Loading reports whether the query is still running.
func (p *Pending) Loading() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// Done is closed when the result is available.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Result returns the result, or nil while loading.
func (p *Pending) Result() *Result {
	select {
	case <-p.done:
		return p.result
	default:
		return nil
	}
}

// Wait blocks until the query completes.
func (p *Pending) Wait() *Result {
	<-p.done
	return p.result
}
