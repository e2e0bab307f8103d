package schema

import (
	"context"
	"errors"
	"fmt"

	"github.com/OFFIS-RIT/schemagraph/pkg/common"
	"github.com/OFFIS-RIT/schemagraph/pkg/logger"
	"github.com/OFFIS-RIT/schemagraph/pkg/metadata"

	"golang.org/x/sync/errgroup"
)

var (
	// ErrSourceUnavailable is returned when the collection listing fails,
	// returns nothing usable, or nothing survives filtering.
	ErrSourceUnavailable = errors.New("no collections found or authentication failed")
	// ErrDuplicateCollectionName is returned when two retained collections share
	// a display name and the duplicate policy is DuplicateError.
	ErrDuplicateCollectionName = errors.New("duplicate collection name")
)

// DuplicatePolicy decides what happens when two collections share a display name.
type DuplicatePolicy string

const (
	// DuplicateError aborts the fetch with ErrDuplicateCollectionName.
	DuplicateError DuplicatePolicy = "error"
	// DuplicateLast keeps the later collection in the position of the first one.
	DuplicateLast DuplicatePolicy = "last"
)

// ParseDuplicatePolicy validates a policy name; empty means DuplicateError.
func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch DuplicatePolicy(s) {
	case "", DuplicateError:
		return DuplicateError, nil
	case DuplicateLast:
		return DuplicateLast, nil
	default:
		return "", fmt.Errorf("unknown duplicate name policy %q (want %q or %q)", s, DuplicateError, DuplicateLast)
	}
}

// Schema is the filtered, classified result of one fetch. Collections keep
// the order returned by the source.
type Schema struct {
	Collections []common.Collection
	Diagnostics []common.Diagnostic
}

// ByName indexes the collections by display name.
func (s *Schema) ByName() map[string]common.Collection {
	out := make(map[string]common.Collection, len(s.Collections))
	for _, c := range s.Collections {
		out[c.Name] = c
	}
	return out
}

// Fetcher reads a site's schema through a metadata.SchemaSource.
type Fetcher struct {
	filter     *Filter
	classifier *Classifier
	parallel   int
	duplicates DuplicatePolicy
}

// NewFetcherParams configures a Fetcher.
//
// Parallel bounds the number of concurrent field listings (1 = sequential).
// Nil Filter or Classifier fall back to the defaults.
type NewFetcherParams struct {
	Filter         *Filter
	Classifier     *Classifier
	Parallel       int
	DuplicateNames DuplicatePolicy
}

// NewFetcher creates a Fetcher from params.
func NewFetcher(params NewFetcherParams) (*Fetcher, error) {
	filter := params.Filter
	if filter == nil {
		f, err := NewFilter(DefaultFilterRules())
		if err != nil {
			return nil, err
		}
		filter = f
	}
	classifier := params.Classifier
	if classifier == nil {
		classifier = NewClassifier()
	}
	parallel := params.Parallel
	if parallel <= 0 {
		parallel = 1
	}
	duplicates, err := ParseDuplicatePolicy(string(params.DuplicateNames))
	if err != nil {
		return nil, err
	}

	return &Fetcher{
		filter:     filter,
		classifier: classifier,
		parallel:   parallel,
		duplicates: duplicates,
	}, nil
}

type collectionRef struct {
	id   string
	name string
}

// FetchSchema lists the retained collections of creds.SiteID and their
// retained, classified fields.
//
// A failed field listing leaves that collection with no fields and a
// diagnostic. An expired deadline is treated the same way for every listing
// still outstanding, so collections fetched before it are kept. Only a failed
// or empty collection listing, a duplicate name (under DuplicateError) or a
// cancelled context abort the fetch.
func (f *Fetcher) FetchSchema(
	ctx context.Context,
	source metadata.SchemaSource,
	creds metadata.Credentials,
) (*Schema, error) {
	result := &Schema{}

	refs, diags, err := f.listCollections(ctx, source, creds)
	result.Diagnostics = append(result.Diagnostics, diags...)
	if err != nil {
		return result, err
	}

	collections := make([]common.Collection, len(refs))
	fieldDiags := make([][]common.Diagnostic, len(refs))

	eg, gCtx := errgroup.WithContext(ctx)
	eg.SetLimit(f.parallel)
	for i, ref := range refs {
		eg.Go(func() error {
			fields, diags, err := f.fetchFields(gCtx, source, creds, ref)
			if err != nil {
				return err
			}
			collections[i] = common.Collection{ID: ref.id, Name: ref.name, Fields: fields}
			fieldDiags[i] = diags
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return &Schema{Diagnostics: result.Diagnostics}, fmt.Errorf("failed to fetch fields: %w", err)
	}

	result.Collections = collections
	for _, d := range fieldDiags {
		result.Diagnostics = append(result.Diagnostics, d...)
	}

	logger.Info("[Schema] Fetched schema", "site", creds.SiteID, "collections", len(collections))
	return result, nil
}

// ListCollections lists and filters the collections of creds.SiteID without
// fetching their fields. It fails like FetchSchema when the listing fails,
// nothing survives filtering or a duplicate name is rejected.
func (f *Fetcher) ListCollections(
	ctx context.Context,
	source metadata.SchemaSource,
	creds metadata.Credentials,
) ([]string, []common.Diagnostic, error) {
	refs, diags, err := f.listCollections(ctx, source, creds)
	if err != nil {
		return nil, diags, err
	}
	names := make([]string, len(refs))
	for i, ref := range refs {
		names[i] = ref.name
	}
	return names, diags, nil
}

func (f *Fetcher) listCollections(
	ctx context.Context,
	source metadata.SchemaSource,
	creds metadata.Credentials,
) ([]collectionRef, []common.Diagnostic, error) {
	items, err := source.ListCollections(ctx, creds)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		logger.Error("[Schema] Failed to fetch collections", "site", creds.SiteID, "err", err)
		return nil, []common.Diagnostic{{
			Kind:    common.DiagSourceUnavailable,
			Message: err.Error(),
		}}, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}

	refs, diags, err := f.selectCollections(items)
	if err != nil {
		return nil, diags, err
	}
	if len(refs) == 0 {
		logger.Error("[Schema] No collections found", "site", creds.SiteID)
		diags = append(diags, common.Diagnostic{
			Kind:    common.DiagSourceUnavailable,
			Message: "no collections left after filtering",
		})
		return nil, diags, ErrSourceUnavailable
	}
	return refs, diags, nil
}

func (f *Fetcher) selectCollections(items []metadata.Descriptor) ([]collectionRef, []common.Diagnostic, error) {
	var refs []collectionRef
	var diags []common.Diagnostic
	position := make(map[string]int)

	for idx, item := range items {
		id, okID := item.String("id")
		name, okName := item.String("displayName")
		if !okID || !okName {
			logger.Warn("[Schema] Unexpected collection format", "index", idx, "item", item)
			diags = append(diags, common.Diagnostic{
				Kind:    common.DiagMalformedDescriptor,
				Message: fmt.Sprintf("collection at index %d has no id or displayName", idx),
			})
			continue
		}
		if !f.filter.KeepCollection(name) {
			logger.Debug("[Schema] Ignoring collection", "collection", name)
			continue
		}

		if pos, seen := position[name]; seen {
			if f.duplicates == DuplicateError {
				diags = append(diags, common.Diagnostic{
					Kind:       common.DiagDuplicateCollectionName,
					Collection: name,
					Message:    fmt.Sprintf("ids %s and %s share a display name", refs[pos].id, id),
				})
				return nil, diags, fmt.Errorf("%w: %q (ids %s, %s)", ErrDuplicateCollectionName, name, refs[pos].id, id)
			}
			logger.Warn("[Schema] Duplicate collection name, keeping last", "collection", name, "dropped_id", refs[pos].id, "id", id)
			diags = append(diags, common.Diagnostic{
				Kind:       common.DiagDuplicateCollectionName,
				Collection: name,
				Message:    fmt.Sprintf("collection %s replaced by %s", refs[pos].id, id),
			})
			refs[pos].id = id
			continue
		}

		position[name] = len(refs)
		refs = append(refs, collectionRef{id: id, name: name})
	}

	return refs, diags, nil
}

func (f *Fetcher) fetchFields(
	ctx context.Context,
	source metadata.SchemaSource,
	creds metadata.Credentials,
	ref collectionRef,
) ([]common.Field, []common.Diagnostic, error) {
	fields := []common.Field{}

	items, err := source.ListFields(ctx, ref.id, creds)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, nil, ctx.Err()
		}
		logger.Error("[Schema] Failed to fetch fields", "collection", ref.name, "id", ref.id, "err", err)
		return fields, []common.Diagnostic{{
			Kind:       common.DiagPartialFieldFetchFailure,
			Collection: ref.name,
			Message:    err.Error(),
		}}, nil
	}

	var diags []common.Diagnostic
	for idx, item := range items {
		name, ok := item.String("name")
		if !ok {
			logger.Warn("[Schema] Unexpected field format", "collection", ref.name, "index", idx)
			diags = append(diags, common.Diagnostic{
				Kind:       common.DiagMalformedDescriptor,
				Collection: ref.name,
				Message:    fmt.Sprintf("field at index %d has no name", idx),
			})
			continue
		}
		if !f.filter.KeepField(name) {
			continue
		}

		id, _ := item.String("id")
		fields = append(fields, common.Field{
			ID:       id,
			Name:     name,
			Required: item.Bool("required"),
			Type:     f.classifier.Classify(item),
		})
	}

	logger.Debug("[Schema] Fetched fields", "collection", ref.name, "fields", len(fields))
	return fields, diags, nil
}
