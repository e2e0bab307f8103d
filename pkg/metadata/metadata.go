package metadata

import (
	"context"
	"fmt"
)

// Credentials identify the store to inspect and authorize the calls made
// against it. Both values are passed through untouched.
type Credentials struct {
	Token  string // Bearer token for the metadata API
	SiteID string // Identity of the site/store whose collections are listed
}

// Descriptor is a raw item as returned by the metadata API: a collection
// ({"id", "displayName", ...}) or a field ({"name", "required", "text": {...}, ...}).
type Descriptor map[string]any

// String returns the value at key if it is a non-empty string.
func (d Descriptor) String(key string) (string, bool) {
	v, ok := d[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// Bool returns the value at key if it is a bool, otherwise false.
func (d Descriptor) Bool(key string) bool {
	b, _ := d[key].(bool)
	return b
}

// Has reports whether key is present, regardless of its value.
func (d Descriptor) Has(key string) bool {
	_, ok := d[key]
	return ok
}

// SchemaSource lists collections and their fields from a remote store.
//
// ListCollections returns every collection of the site in source order.
// ListFields returns the field descriptors of one collection in source order.
// Either call may fail; callers decide how to degrade.
type SchemaSource interface {
	ListCollections(ctx context.Context, creds Credentials) ([]Descriptor, error)
	ListFields(ctx context.Context, collectionID string, creds Credentials) ([]Descriptor, error)
}

// StatusError is returned by HTTP-backed sources for a non-2xx response.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("request to %s failed with status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("request to %s failed with status %d: %s", e.URL, e.StatusCode, e.Body)
}

// Temporary reports whether the request is worth retrying.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}
