package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/getmockd/mockedprovider/pkg/cache"
	"github.com/getmockd/mockedprovider/pkg/config"
	"github.com/getmockd/mockedprovider/pkg/graphql"
	"github.com/getmockd/mockedprovider/pkg/link"
	"github.com/getmockd/mockedprovider/pkg/mockedprovider"
)

// sourceFlags select the schema and mocks a command runs against.
type sourceFlags struct {
	configFile string
	schemaFile string
	seed       uint64
	delay      time.Duration
	rate       float64
	burst      int
}

func (s *sourceFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&s.configFile, "config", "c", "", "Path to a YAML mock configuration")
	cmd.Flags().StringVarP(&s.schemaFile, "schema", "s", "", "Path to a GraphQL schema file (instead of --config)")
	cmd.Flags().Uint64Var(&s.seed, "seed", 0, "Seed for deterministic mock values")
	cmd.Flags().DurationVar(&s.delay, "delay", 0, "Simulated latency per operation (e.g. 200ms)")
	cmd.Flags().Float64Var(&s.rate, "rate", 0, "Maximum operations per second (0 = unlimited)")
	cmd.Flags().IntVar(&s.burst, "burst", 1, "Burst size for --rate")
}

// buildProvider loads the schema and mocks and returns a provider whose
// renders share one cache.
func (s *sourceFlags) buildProvider(cmd *cobra.Command, logger *slog.Logger) (*mockedprovider.MockedProvider, error) {
	if (s.configFile == "") == (s.schemaFile == "") {
		return nil, errors.New("exactly one of --config or --schema is required")
	}

	var (
		schema *graphql.Schema
		cfg    *config.Config
		err    error
	)
	if s.configFile != "" {
		cfg, err = config.LoadFromFile(s.configFile)
		if err != nil {
			return nil, err
		}
		schema, err = cfg.LoadSchema()
	} else {
		schema, err = graphql.ParseSchemaFile(s.schemaFile)
	}
	if err != nil {
		return nil, err
	}

	store := cache.New(cache.WithPossibleTypes(schema.PossibleTypesMap()))
	pc := mockedprovider.Config{
		Cache:  store,
		Logger: logger,
		Links:  s.links(logger),
	}

	if cfg != nil {
		pc.CustomResolvers, err = cfg.MockResolvers()
		if err != nil {
			return nil, err
		}
		if err := cfg.Populate(store); err != nil {
			return nil, fmt.Errorf("failed to populate cache: %w", err)
		}
		pc.Seed = cfg.Seed
		pc.ExecutorOptions = append(pc.ExecutorOptions, graphql.WithIntrospection(cfg.IntrospectionEnabled()))
	}
	if cmd.Flags().Changed("seed") {
		seed := s.seed
		pc.Seed = &seed
	}

	return mockedprovider.NewWithSchema(schema, pc), nil
}

func (s *sourceFlags) links(logger *slog.Logger) mockedprovider.LinksBuilder {
	return func(mockedprovider.LinkContext) []link.Link {
		links := []link.Link{link.Logging(logger)}
		if s.rate > 0 {
			links = append(links, link.RateLimit(rate.NewLimiter(rate.Limit(s.rate), max(s.burst, 1))))
		}
		if s.delay > 0 {
			links = append(links, link.Delay(s.delay))
		}
		return links
	}
}
