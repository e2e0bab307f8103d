package schema

import (
	"fmt"
	"regexp"
)

// FilterRules lists the collections and fields that never make it into a graph.
type FilterRules struct {
	IgnoreCollections  []string
	IgnoreFields       []string
	IgnoreFieldPattern string
}

// DefaultIgnoredCollections are the system lists every SharePoint site carries
// (document library, sharing links, web template extensions, user list) in the
// English and French site languages.
func DefaultIgnoredCollections() []string {
	return []string{
		"Documents",
		"Liens de partage",
		"Extensions de modèle web",
		"User",
		"Web Template Extensions",
	}
}

// DefaultIgnoredFields are system and audit columns present on every list.
func DefaultIgnoredFields() []string {
	return []string{
		"_ColorTag", "ComplianceAssetId", "_UIVersionString", "Attachments",
		"Edit", "LinkTitleNoMenu", "LinkTitle", "DocIcon", "ItemChildCount",
		"FolderChildCount", "_ComplianceFlags", "_ComplianceTag",
		"_ComplianceTagWrittenTime", "_ComplianceTagUserId", "_IsRecord",
		"AppAuthor", "AppEditor", "ID", "ContentType",
	}
}

// DefaultIgnoredFieldPattern matches internal names embedding an encoded ':'
// (_x003a_), which SharePoint uses for projected lookup bookkeeping columns.
const DefaultIgnoredFieldPattern = ".*x003a.*"

// DefaultFilterRules returns the built-in ignore lists.
func DefaultFilterRules() FilterRules {
	return FilterRules{
		IgnoreCollections:  DefaultIgnoredCollections(),
		IgnoreFields:       DefaultIgnoredFields(),
		IgnoreFieldPattern: DefaultIgnoredFieldPattern,
	}
}

// Filter decides which collections and fields are kept.
type Filter struct {
	collections map[string]struct{}
	fields      map[string]struct{}
	pattern     *regexp.Regexp
}

// NewFilter compiles rules into a Filter. The field pattern is anchored at the
// start of the name; an empty pattern disables pattern matching.
func NewFilter(rules FilterRules) (*Filter, error) {
	f := &Filter{
		collections: toSet(rules.IgnoreCollections),
		fields:      toSet(rules.IgnoreFields),
	}
	if rules.IgnoreFieldPattern != "" {
		re, err := regexp.Compile("^(?:" + rules.IgnoreFieldPattern + ")")
		if err != nil {
			return nil, fmt.Errorf("invalid field ignore pattern %q: %w", rules.IgnoreFieldPattern, err)
		}
		f.pattern = re
	}
	return f, nil
}

// KeepCollection reports whether a collection with this display name is retained.
func (f *Filter) KeepCollection(name string) bool {
	_, ignored := f.collections[name]
	return !ignored
}

// KeepField reports whether a field with this internal name is retained.
func (f *Filter) KeepField(name string) bool {
	if _, ignored := f.fields[name]; ignored {
		return false
	}
	if f.pattern != nil && f.pattern.MatchString(name) {
		return false
	}
	return true
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
