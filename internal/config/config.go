// Package config loads pipeline settings: ignore lists, fetch behaviour,
// metadata endpoint and renderer. Precedence (highest to lowest):
// flags > SCHEMAGRAPH_* env vars > YAML config file > defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/OFFIS-RIT/schemagraph/pkg/graph"
	"github.com/OFFIS-RIT/schemagraph/pkg/metadata/msgraph"
	"github.com/OFFIS-RIT/schemagraph/pkg/render"
	"github.com/OFFIS-RIT/schemagraph/pkg/render/graphviz"
	"github.com/OFFIS-RIT/schemagraph/pkg/schema"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes every environment override. Nested keys use a double
// underscore: SCHEMAGRAPH_FILTER__IGNORE_FIELDS=Title,Author.
const EnvPrefix = "SCHEMAGRAPH_"

// ConfigFileEnv names the env var pointing at the YAML config file.
const ConfigFileEnv = "SCHEMAGRAPH_CONFIG"

type FilterConfig struct {
	IgnoreCollections  []string `koanf:"ignore_collections"`
	IgnoreFields       []string `koanf:"ignore_fields"`
	IgnoreFieldPattern string   `koanf:"ignore_field_pattern"`
}

type FetchConfig struct {
	Parallel       int           `koanf:"parallel"`
	MaxRetries     int           `koanf:"max_retries"`
	Timeout        time.Duration `koanf:"timeout"`
	DuplicateNames string        `koanf:"duplicate_names"`
}

type SourceConfig struct {
	BaseURL string        `koanf:"base_url"`
	Timeout time.Duration `koanf:"timeout"`
}

type RenderConfig struct {
	Binary string `koanf:"binary"`
	Format string `koanf:"format"`
}

// Config is the full pipeline configuration.
type Config struct {
	Filter FilterConfig `koanf:"filter"`
	Fetch  FetchConfig  `koanf:"fetch"`
	Source SourceConfig `koanf:"source"`
	Render RenderConfig `koanf:"render"`
}

var listKeys = map[string]bool{
	"filter.ignore_collections": true,
	"filter.ignore_fields":      true,
}

// flagKeys maps CLI flag names onto config keys.
var flagKeys = map[string]string{
	"ignore-collections":   "filter.ignore_collections",
	"ignore-fields":        "filter.ignore_fields",
	"ignore-field-pattern": "filter.ignore_field_pattern",
	"parallel":             "fetch.parallel",
	"max-retries":          "fetch.max_retries",
	"fetch-timeout":        "fetch.timeout",
	"duplicate-names":      "fetch.duplicate_names",
	"base-url":             "source.base_url",
	"dot-binary":           "render.binary",
	"format":               "render.format",
}

func defaults() map[string]any {
	return map[string]any{
		"filter.ignore_collections":   schema.DefaultIgnoredCollections(),
		"filter.ignore_fields":        schema.DefaultIgnoredFields(),
		"filter.ignore_field_pattern": schema.DefaultIgnoredFieldPattern,
		"fetch.parallel":              4,
		"fetch.max_retries":           3,
		"fetch.timeout":               "2m",
		"fetch.duplicate_names":       string(schema.DuplicateError),
		"source.base_url":             msgraph.DefaultBaseURL,
		"source.timeout":              "30s",
		"render.binary":               "dot",
		"render.format":               string(graphviz.FormatPNG),
	}
}

// Load reads the configuration. cfgFile may be empty, in which case the
// SCHEMAGRAPH_CONFIG env var is consulted. flags may be nil.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if cfgFile == "" {
		cfgFile = os.Getenv(ConfigFileEnv)
	}
	if cfgFile != "" {
		if err := k.Load(file.Provider(cfgFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", cfgFile, err)
		}
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", func(key string, value string) (string, any) {
		if key == ConfigFileEnv {
			return "", nil
		}
		name := strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
		name = strings.ReplaceAll(name, "__", ".")
		if listKeys[name] {
			return name, splitList(value)
		}
		return name, value
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func splitList(value string) []string {
	out := []string{}
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks values that would otherwise only fail at run time.
func (c *Config) Validate() error {
	if _, err := schema.NewFilter(c.FilterRules()); err != nil {
		return err
	}
	if _, err := schema.ParseDuplicatePolicy(c.Fetch.DuplicateNames); err != nil {
		return err
	}
	if _, err := graphviz.ParseFormat(c.Render.Format); err != nil {
		return err
	}
	if c.Fetch.Parallel < 1 {
		return fmt.Errorf("fetch.parallel must be at least 1, got %d", c.Fetch.Parallel)
	}
	if c.Fetch.MaxRetries < 1 {
		return fmt.Errorf("fetch.max_retries must be at least 1, got %d", c.Fetch.MaxRetries)
	}
	return nil
}

// FilterRules returns the configured ignore lists.
func (c *Config) FilterRules() schema.FilterRules {
	return schema.FilterRules{
		IgnoreCollections:  c.Filter.IgnoreCollections,
		IgnoreFields:       c.Filter.IgnoreFields,
		IgnoreFieldPattern: c.Filter.IgnoreFieldPattern,
	}
}

// NewGraphClient wires a pipeline client from the configuration.
func (c *Config) NewGraphClient() (*graph.GraphClient, error) {
	filter, err := schema.NewFilter(c.FilterRules())
	if err != nil {
		return nil, err
	}
	fetcher, err := schema.NewFetcher(schema.NewFetcherParams{
		Filter:         filter,
		Parallel:       c.Fetch.Parallel,
		DuplicateNames: schema.DuplicatePolicy(c.Fetch.DuplicateNames),
	})
	if err != nil {
		return nil, err
	}
	return graph.NewGraphClient(graph.NewGraphClientParams{
		Fetcher:      fetcher,
		FetchTimeout: c.Fetch.Timeout,
	})
}

// NewSource creates the Microsoft Graph metadata client.
func (c *Config) NewSource() *msgraph.GraphMetadataClient {
	return msgraph.NewGraphMetadataClient(msgraph.NewGraphMetadataClientParams{
		BaseURL:    c.Source.BaseURL,
		Timeout:    c.Source.Timeout,
		MaxRetries: c.Fetch.MaxRetries,
	})
}

// NewRenderer creates the Graphviz renderer. format overrides the configured
// format when non-empty.
func (c *Config) NewRenderer(format string) (*graphviz.Renderer, error) {
	if format == "" {
		format = c.Render.Format
	}
	f, err := graphviz.ParseFormat(format)
	if err != nil {
		return nil, err
	}
	return graphviz.NewRenderer(graphviz.NewRendererParams{
		Binary: c.Render.Binary,
		Format: f,
	}), nil
}

// RendererFactory adapts NewRenderer to the render.GraphRenderer interface.
func (c *Config) RendererFactory() func(format string) (render.GraphRenderer, error) {
	return func(format string) (render.GraphRenderer, error) {
		r, err := c.NewRenderer(format)
		if err != nil {
			return nil, err
		}
		return r, nil
	}
}
