package schema

import (
	"github.com/OFFIS-RIT/schemagraph/pkg/common"
	"github.com/OFFIS-RIT/schemagraph/pkg/metadata"
)

// ClassificationRule maps a field descriptor to a type tag. Match reports
// whether the rule applies and, if so, the detail payload to attach.
type ClassificationRule struct {
	Tag   common.TypeTag
	Match func(d metadata.Descriptor) (map[string]any, bool)
}

// KeyRule matches descriptors that carry key, using the value at key as detail.
func KeyRule(key string, tag common.TypeTag) ClassificationRule {
	return ClassificationRule{
		Tag: tag,
		Match: func(d metadata.Descriptor) (map[string]any, bool) {
			v, ok := d[key]
			if !ok {
				return nil, false
			}
			detail, ok := v.(map[string]any)
			if !ok {
				detail = map[string]any{}
			}
			return detail, true
		},
	}
}

// DefaultClassificationRules returns the column-type facets of the Microsoft
// Graph columnDefinition resource. The order is the tie-break when a
// descriptor carries more than one facet.
func DefaultClassificationRules() []ClassificationRule {
	return []ClassificationRule{
		KeyRule("text", common.TypeText),
		KeyRule("lookup", common.TypeLookup),
		KeyRule("dateTime", common.TypeDateTime),
		KeyRule("number", common.TypeNumber),
		KeyRule("choice", common.TypeChoice),
		KeyRule("boolean", common.TypeBoolean),
		KeyRule("person", common.TypePerson),
		KeyRule("calculated", common.TypeCalculated),
	}
}

// Classifier evaluates an ordered rule list, first match wins.
type Classifier struct {
	rules []ClassificationRule
}

// NewClassifier creates a Classifier. With no rules the defaults are used.
func NewClassifier(rules ...ClassificationRule) *Classifier {
	if len(rules) == 0 {
		rules = DefaultClassificationRules()
	}
	return &Classifier{rules: rules}
}

// Classify always returns a classification; descriptors matching no rule
// are tagged unknown with an empty detail.
func (c *Classifier) Classify(d metadata.Descriptor) common.TypeClassification {
	for _, rule := range c.rules {
		if detail, ok := rule.Match(d); ok {
			return common.TypeClassification{Tag: rule.Tag, Detail: detail}
		}
	}
	return common.TypeClassification{Tag: common.TypeUnknown, Detail: map[string]any{}}
}
