package graphql

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/getmockd/mockedprovider/pkg/logging"
)

// MaxRequestBodySize is the maximum allowed request body size (1MB).
const MaxRequestBodySize = 1 << 20

// DefaultPath is the URL path the mock endpoint is usually mounted on.
const DefaultPath = "/graphql"

// Handler serves GraphQL requests over HTTP.
type Handler struct {
	exec   func(r *http.Request, req *Request) *Response
	logger *slog.Logger
}

// NewHandler creates a new GraphQL HTTP handler backed by the executor.
func NewHandler(executor *Executor, logger *slog.Logger) *Handler {
	return NewHandlerFunc(func(r *http.Request, req *Request) *Response {
		return executor.Execute(r.Context(), req)
	}, logger)
}

// NewHandlerFunc creates a GraphQL HTTP handler around an arbitrary execution function.
func NewHandlerFunc(exec func(r *http.Request, req *Request) *Response, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Handler{exec: exec, logger: logger}
}

// ServeHTTP handles GET and POST GraphQL requests.
// POST accepts application/json and application/graphql bodies.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var (
		req *Request
		err error
	)
	if r.Method == http.MethodGet {
		req, err = parseGetRequest(r)
	} else {
		req, err = parsePostRequest(r)
	}
	if err != nil {
		h.logger.Warn("rejected graphql request", "method", r.Method, "error", err)
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := h.exec(r, req)
	if resp == nil {
		resp = ErrorResponse("no response")
	}
	h.writeResponse(w, resp)

	h.logger.Info("graphql request",
		"method", r.Method,
		"operation", req.OperationName,
		"type", detectOperationType(req.Query),
		"errors", len(resp.Errors),
		"duration", time.Since(start),
	)
}

func parseGetRequest(r *http.Request) (*Request, error) {
	query := r.URL.Query()

	req := &Request{
		Query:         query.Get("query"),
		OperationName: query.Get("operationName"),
	}

	if vars := query.Get("variables"); vars != "" {
		if err := json.Unmarshal([]byte(vars), &req.Variables); err != nil {
			return nil, errors.New("invalid variables JSON")
		}
	}

	return req, nil
}

func parsePostRequest(r *http.Request) (*Request, error) {
	defer func() { _ = r.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestBodySize+1))
	if err != nil {
		return nil, errors.New("failed to read request body")
	}
	if len(body) > MaxRequestBodySize {
		return nil, errors.New("request body too large")
	}
	if len(body) == 0 {
		return nil, errors.New("empty request body")
	}

	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/graphql") {
		return &Request{Query: string(body)}, nil
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, errors.New("invalid JSON request body")
	}
	return &req, nil
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse(message))
}

func (h *Handler) writeResponse(w http.ResponseWriter, resp *Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("failed to encode graphql response", "error", err)
	}
}

// detectOperationType detects the GraphQL operation type from a query string.
func detectOperationType(query string) string {
	query = strings.ToLower(strings.TrimSpace(query))
	switch {
	case strings.HasPrefix(query, "mutation"):
		return "mutation"
	case strings.HasPrefix(query, "subscription"):
		return "subscription"
	default:
		return "query"
	}
}
