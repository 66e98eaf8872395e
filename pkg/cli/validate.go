package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/getmockd/mockedprovider/pkg/config"
	"github.com/getmockd/mockedprovider/pkg/graphql"
)

func newValidateCmd() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "validate [schema-file]",
		Short: "Validate a schema file or a mock configuration",
		Example: `  # Validate a schema file
  gqlmock validate schema.graphql

  # Validate a mock configuration and the schema it names
  gqlmock validate --config mocks.yaml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				schema *graphql.Schema
				err    error
			)
			switch {
			case configFile != "" && len(args) == 1:
				return errors.New("pass a schema file or --config, not both")
			case configFile != "":
				schema, err = validateConfig(configFile)
			case len(args) == 1:
				schema, err = graphql.ParseSchemaFile(args[0])
			default:
				return errors.New("a schema file or --config is required")
			}
			if err != nil {
				return err
			}
			if err := schema.Validate(); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Schema is valid")
			fmt.Fprintf(out, "  Types:     %d\n", len(schema.ListTypes(ast.Object, ast.Interface, ast.Union, ast.Enum, ast.InputObject)))
			fmt.Fprintf(out, "  Queries:   %s\n", listOrNone(schema.ListQueries()))
			fmt.Fprintf(out, "  Mutations: %s\n", listOrNone(schema.ListMutations()))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to a YAML mock configuration")
	return cmd
}

// validateConfig loads the configuration, its schema and its cache entries.
func validateConfig(path string) (*graphql.Schema, error) {
	cfg, err := config.LoadFromFile(path)
	if err != nil {
		return nil, err
	}
	schema, err := cfg.LoadSchema()
	if err != nil {
		return nil, err
	}
	for key := range cfg.Resolvers {
		fp := graphql.ParseFieldPath(key)
		if schema.GetField(fp.TypeName, fp.FieldName) == nil {
			return nil, fmt.Errorf("resolver %s: no such field in schema", key)
		}
	}
	for name := range cfg.Mocks {
		if schema.GetType(name) == nil {
			return nil, fmt.Errorf("mock %s: no such type in schema", name)
		}
	}
	return schema, nil
}

func listOrNone(names []string) string {
	if len(names) == 0 {
		return "(none)"
	}
	return strings.Join(names, ", ")
}
