package importer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// flag decodes the loosely typed booleans of the legacy dump: true/false,
// 0/1, "0"/"1", or null.
type flag bool

func (f *flag) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*f = false
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.ToLower(strings.TrimSpace(s))
		*f = flag(s != "" && s != "0" && s != "false")
		return nil
	case bytes.Equal(data, []byte("true")):
		*f = true
		return nil
	case bytes.Equal(data, []byte("false")):
		*f = false
		return nil
	}
	n, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("invalid flag %s", data)
	}
	*f = n != 0
	return nil
}

type legacyGroup struct {
	ID        string `json:"id"`
	Desc      string `json:"desc"`
	IsPrivate flag   `json:"is_private"`
	SToken    string `json:"stoken"`
}

type legacyFilter struct {
	Attr     string `json:"attr"`
	Value    string `json:"value"`
	IsActive flag   `json:"is_active"`
	IsExact  flag   `json:"is_exact"`
}

type legacyEntry struct {
	Title     string   `json:"title"`
	Comment   string   `json:"comment"`
	Content   string   `json:"content"`
	URL       string   `json:"url"`
	IsPrivate flag     `json:"is_private"`
	Date      string   `json:"date"`
	Groups    []string `json:"groups"`
	Tags      []string `json:"tags"`
}

type legacyUser struct {
	ID                    string         `json:"id"`
	Email                 string         `json:"email"`
	NewPassword           string         `json:"new_password"`
	IsAdmin               flag           `json:"is_admin"`
	IsActive              flag           `json:"is_active"`
	Name                  string         `json:"name"`
	URL                   string         `json:"url"`
	Token                 string         `json:"token"`
	TZ                    string         `json:"tz"`
	IsPrivate             flag           `json:"is_private"`
	DefaultToPrivateEntry flag           `json:"default_to_private_entry"`
	Groups                []string       `json:"groups"`
	GroupInvites          []string       `json:"group_invites"`
	Filters               []legacyFilter `json:"filters"`
	Entries               []legacyEntry  `json:"entries"`
}

const nameLength = 30

// splitName maps the single legacy name field onto first and last name.
func splitName(name string) (first, last string) {
	tokens := strings.Fields(name)
	if len(tokens) == 0 {
		return "", ""
	}
	first = clip(tokens[0], nameLength)
	if len(tokens) > 1 {
		last = clip(tokens[1], nameLength)
	}
	return first, last
}

// clip truncates s to at most max bytes without splitting a rune.
func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := 0
	for cut < len(s) {
		_, width := utf8.DecodeRuneInString(s[cut:])
		if cut+width > max {
			break
		}
		cut += width
	}
	return s[:cut]
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// parseDate reads an ISO 8601 timestamp. Values without a zone are UTC.
func parseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", value)
}
