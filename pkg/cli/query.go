package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/getmockd/mockedprovider/pkg/client"
	"github.com/getmockd/mockedprovider/pkg/graphql"
	"github.com/getmockd/mockedprovider/pkg/mockedprovider"
)

type queryFlags struct {
	sourceFlags
	file        string
	variables   string
	operation   string
	fetchPolicy string
	get         string
}

func newQueryCmd(g *globalFlags) *cobra.Command {
	f := &queryFlags{}

	cmd := &cobra.Command{
		Use:   "query [query]",
		Short: "Run one operation against a mocked schema",
		Long: `Run a query or mutation against a mocked schema and print the JSON result.
The process exits non-zero when the result carries GraphQL errors.`,
		Example: `  # Query generated data
  gqlmock query --schema schema.graphql '{ todos { id text } }'

  # Use variables and print a single value
  gqlmock query -c mocks.yaml -v '{"id":"1"}' --get 'todo.text' \
    'query GetTodo($id: ID!) { todo(id: $id) { text } }'

  # Read the query from a file
  gqlmock query -c mocks.yaml --file getTodos.graphql`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := f.request(args)
			if err != nil {
				return err
			}
			policy, err := client.ParseFetchPolicy(f.fetchPolicy)
			if err != nil {
				return err
			}

			p, err := f.buildProvider(cmd, g.logger(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			res := p.Client(mockedprovider.Props{}).Do(cmd.Context(), req, client.Policy(policy))

			out := cmd.OutOrStdout()
			if f.get != "" && res.Err() == nil {
				v, err := res.Get(f.get)
				if err != nil {
					return err
				}
				return writeJSON(out, v)
			}
			if err := writeJSON(out, res.Response()); err != nil {
				return err
			}
			return res.Err()
		},
	}

	f.register(cmd)
	cmd.Flags().StringVarP(&f.file, "file", "f", "", "Read the query from a file")
	cmd.Flags().StringVarP(&f.variables, "variables", "v", "", "Variables as a JSON object")
	cmd.Flags().StringVarP(&f.operation, "operation", "o", "", "Operation name for multi-operation documents")
	cmd.Flags().StringVar(&f.fetchPolicy, "fetch-policy", "cache-first", "Fetch policy (cache-first, network-only, cache-only)")
	cmd.Flags().StringVar(&f.get, "get", "", "Print only the value at this JSONPath")
	return cmd
}

func (f *queryFlags) request(args []string) (*graphql.Request, error) {
	req := &graphql.Request{OperationName: f.operation}

	switch {
	case len(args) == 1 && f.file != "":
		return nil, errors.New("pass the query as an argument or with --file, not both")
	case len(args) == 1:
		req.Query = args[0]
	case f.file != "":
		data, err := os.ReadFile(f.file)
		if err != nil {
			return nil, fmt.Errorf("failed to read query file: %w", err)
		}
		req.Query = string(data)
	}
	if strings.TrimSpace(req.Query) == "" {
		return nil, errors.New("a query is required")
	}

	if f.variables != "" {
		if err := json.Unmarshal([]byte(f.variables), &req.Variables); err != nil {
			return nil, fmt.Errorf("invalid --variables JSON: %w", err)
		}
	}
	return req, nil
}
