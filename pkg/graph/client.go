package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/schemagraph/pkg/common"
	"github.com/OFFIS-RIT/schemagraph/pkg/logger"
	"github.com/OFFIS-RIT/schemagraph/pkg/metadata"
	"github.com/OFFIS-RIT/schemagraph/pkg/render"
	"github.com/OFFIS-RIT/schemagraph/pkg/schema"
)

// GraphClient runs the schema-to-graph pipeline: fetch, resolve, assemble
// and optionally render. It holds no per-run state and is safe for
// concurrent use.
type GraphClient struct {
	fetcher      *schema.Fetcher
	resolver     Resolver
	fetchTimeout time.Duration
}

// NewGraphClientParams defines the configuration parameters for creating
// a new GraphClient.
//
// Fetcher is required. FetchTimeout bounds the whole schema fetch; zero
// leaves the deadline to the caller's context.
type NewGraphClientParams struct {
	Fetcher      *schema.Fetcher
	Resolver     *Resolver
	FetchTimeout time.Duration
}

// NewGraphClient creates and returns a new GraphClient configured with
// the provided parameters.
//
// Example:
//
//	fetcher, _ := schema.NewFetcher(schema.NewFetcherParams{Parallel: 4})
//	client, err := graph.NewGraphClient(graph.NewGraphClientParams{
//		Fetcher:      fetcher,
//		FetchTimeout: 2 * time.Minute,
//	})
func NewGraphClient(params NewGraphClientParams) (*GraphClient, error) {
	if params.Fetcher == nil {
		return nil, fmt.Errorf("graph client requires a schema fetcher")
	}
	resolver := NewResolver()
	if params.Resolver != nil {
		resolver = *params.Resolver
	}

	return &GraphClient{
		fetcher:      params.Fetcher,
		resolver:     resolver,
		fetchTimeout: params.FetchTimeout,
	}, nil
}

// BuildResult is the outcome of one pipeline run.
type BuildResult struct {
	Model       common.GraphModel
	Schema      *schema.Schema
	Diagnostics []common.Diagnostic
}

// BuildGraph fetches the schema of creds.SiteID and assembles its graph.
// Errors wrapping schema.ErrSourceUnavailable mean there is nothing to draw.
func (g *GraphClient) BuildGraph(
	ctx context.Context,
	source metadata.SchemaSource,
	creds metadata.Credentials,
) (*BuildResult, error) {
	fetchCtx, cancel := g.withFetchTimeout(ctx)
	defer cancel()

	s, err := g.fetcher.FetchSchema(fetchCtx, source, creds)
	if err != nil {
		return &BuildResult{Schema: s, Diagnostics: s.Diagnostics}, err
	}

	rels := g.resolver.ResolveAll(s.Collections)
	model, diags := Assemble(s.Collections, rels)

	result := &BuildResult{
		Model:       model,
		Schema:      s,
		Diagnostics: append(append([]common.Diagnostic{}, s.Diagnostics...), diags...),
	}

	logger.Info(
		"[Graph] Graph assembled",
		"nodes", len(model.Nodes),
		"edges", len(model.Edges),
		"diagnostics", len(result.Diagnostics),
	)
	return result, nil
}

// ListCollections returns the names of the collections BuildGraph would
// draw, without fetching their fields.
func (g *GraphClient) ListCollections(
	ctx context.Context,
	source metadata.SchemaSource,
	creds metadata.Credentials,
) ([]string, error) {
	fetchCtx, cancel := g.withFetchTimeout(ctx)
	defer cancel()

	names, _, err := g.fetcher.ListCollections(fetchCtx, source, creds)
	return names, err
}

func (g *GraphClient) withFetchTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.fetchTimeout > 0 {
		return context.WithTimeout(ctx, g.fetchTimeout)
	}
	return ctx, func() {}
}

// RenderGraph builds the graph and hands it to renderer.
func (g *GraphClient) RenderGraph(
	ctx context.Context,
	source metadata.SchemaSource,
	renderer render.GraphRenderer,
	creds metadata.Credentials,
) ([]byte, *BuildResult, error) {
	result, err := g.BuildGraph(ctx, source, creds)
	if err != nil {
		return nil, result, err
	}

	data, err := renderer.Render(ctx, result.Model)
	if err != nil {
		return nil, result, fmt.Errorf("failed to render graph: %w", err)
	}
	return data, result, nil
}
