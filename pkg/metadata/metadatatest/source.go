// Package metadatatest provides an in-memory metadata.SchemaSource for tests.
package metadatatest

import (
	"context"
	"fmt"
	"sync"

	"github.com/OFFIS-RIT/schemagraph/pkg/metadata"
)

// Source serves fixed descriptors. Fields, FieldErrs and Block are keyed by
// collection id. A blocked ListFields call returns only once its context is done.
type Source struct {
	Collections    []metadata.Descriptor
	CollectionsErr error
	Fields         map[string][]metadata.Descriptor
	FieldErrs      map[string]error
	Block          map[string]bool

	mu         sync.Mutex
	fieldCalls []string
}

func (s *Source) ListCollections(ctx context.Context, creds metadata.Credentials) ([]metadata.Descriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.CollectionsErr != nil {
		return nil, s.CollectionsErr
	}
	return s.Collections, nil
}

func (s *Source) ListFields(ctx context.Context, collectionID string, creds metadata.Credentials) ([]metadata.Descriptor, error) {
	s.mu.Lock()
	s.fieldCalls = append(s.fieldCalls, collectionID)
	s.mu.Unlock()

	if s.Block[collectionID] {
		<-ctx.Done()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err, ok := s.FieldErrs[collectionID]; ok {
		return nil, err
	}
	fields, ok := s.Fields[collectionID]
	if !ok {
		return nil, fmt.Errorf("collection %s not found", collectionID)
	}
	return fields, nil
}

// FieldCalls returns the collection ids ListFields was called with.
func (s *Source) FieldCalls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.fieldCalls...)
}

// Collection builds a list descriptor.
func Collection(id, name string) metadata.Descriptor {
	return metadata.Descriptor{"id": id, "displayName": name}
}

// Field builds a column descriptor with one type facet.
func Field(name, facet string) metadata.Descriptor {
	return metadata.Descriptor{"id": name + "-id", "name": name, facet: map[string]any{}}
}

// LookupField builds a lookup column pointing at the list targetID.
func LookupField(name, targetID string) metadata.Descriptor {
	return metadata.Descriptor{
		"id":   name + "-id",
		"name": name,
		"lookup": map[string]any{
			"listId":     targetID,
			"columnName": "Title",
		},
	}
}
