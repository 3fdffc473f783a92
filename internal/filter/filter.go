// Package filter implements the per-user exclusion rules layered on top of
// entry visibility.
package filter

import (
	"errors"
	"fmt"
	"strings"
)

// Attribute is the entry property a rule matches against.
type Attribute string

const (
	AttrUser Attribute = "user"
	AttrTag  Attribute = "tag"
	AttrURL  Attribute = "url"
)

// Match selects exact or substring comparison.
type Match int

const (
	Exact Match = iota
	Substring
)

// MaxValueLength bounds a rule value, in bytes, matching the column width.
const MaxValueLength = 50

var (
	ErrUnknownAttribute = errors.New("filter: unknown attribute")
	ErrEmptyValue       = errors.New("filter: value is required")
	ErrValueTooLong     = errors.New("filter: value is too long")
)

// ParseAttribute maps a stored attribute name onto an Attribute.
func ParseAttribute(name string) (Attribute, error) {
	switch Attribute(strings.ToLower(strings.TrimSpace(name))) {
	case AttrUser:
		return AttrUser, nil
	case AttrTag:
		return AttrTag, nil
	case AttrURL:
		return AttrURL, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAttribute, name)
	}
}

// Rule excludes entries whose attribute matches Value.
type Rule struct {
	ID     int64
	Attr   Attribute
	Match  Match
	Value  string
	Active bool
}

// New validates and builds an active rule.
func New(attrName, value string, exact bool) (Rule, error) {
	attr, err := ParseAttribute(attrName)
	if err != nil {
		return Rule{}, err
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return Rule{}, ErrEmptyValue
	}
	if len(value) > MaxValueLength {
		return Rule{}, ErrValueTooLong
	}
	match := Substring
	if exact {
		match = Exact
	}
	return Rule{Attr: attr, Match: match, Value: value, Active: true}, nil
}

// Exact reports whether the rule compares whole values.
func (r Rule) Exact() bool {
	return r.Match == Exact
}

// Target is the view of an entry that rules are evaluated against.
type Target struct {
	Username string
	Tags     []string
	URL      string
}

// Excludes reports whether the rule hides t. Inactive rules exclude nothing.
func (r Rule) Excludes(t Target) bool {
	if !r.Active {
		return false
	}
	switch r.Attr {
	case AttrUser:
		return r.matches(t.Username)
	case AttrTag:
		for _, tag := range t.Tags {
			if r.matches(tag) {
				return true
			}
		}
		return false
	case AttrURL:
		return r.matches(t.URL)
	default:
		return false
	}
}

func (r Rule) matches(value string) bool {
	if r.Match == Exact {
		return value == r.Value
	}
	return strings.Contains(strings.ToLower(value), strings.ToLower(r.Value))
}

// Excluded reports whether any active rule hides t.
func Excluded(rules []Rule, t Target) bool {
	for _, rule := range rules {
		if rule.Excludes(t) {
			return true
		}
	}
	return false
}

// ActiveOnly returns the active subset of rules.
func ActiveOnly(rules []Rule) []Rule {
	active := make([]Rule, 0, len(rules))
	for _, rule := range rules {
		if rule.Active {
			active = append(active, rule)
		}
	}
	return active
}
