package store

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dchud/unalog2/internal/filter"
)

func TestEntryPredicateAlwaysRequiresActiveOwner(t *testing.T) {
	where, args := EntryPredicate(EntryQuery{}, 1)
	assert.Equal(t, "u.is_active", where)
	assert.Empty(t, args)
}

func TestEntryPredicateScopesAndGate(t *testing.T) {
	where, args := EntryPredicate(EntryQuery{OwnerID: 7, TagName: "go", Gated: true}, 1)

	assert.Contains(t, where, "e.user_id = $1")
	assert.Contains(t, where, "t.name = $2")
	assert.Contains(t, where, "NOT e.is_private AND NOT COALESCE(up.is_private, FALSE)")
	assert.Equal(t, []any{int64(7), "go"}, args)
}

func TestEntryPredicateViewerWidensGate(t *testing.T) {
	where, args := EntryPredicate(EntryQuery{Gated: true, ViewerID: 3}, 4)

	assert.Contains(t, where, "e.user_id = $4")
	assert.Contains(t, where, "gm.user_id = $4")
	assert.Equal(t, []any{int64(3)}, args)
}

func TestEntryPredicateExclusions(t *testing.T) {
	spam, err := filter.New("tag", "spam", true)
	require.NoError(t, err)
	bob, err := filter.New("user", "bo_b", false)
	require.NoError(t, err)
	off, err := filter.New("url", "example", false)
	require.NoError(t, err)
	off.Active = false

	where, args := EntryPredicate(EntryQuery{Exclude: []filter.Rule{spam, bob, off}}, 1)

	assert.Contains(t, where, "xn.name = $1")
	assert.Contains(t, where, "NOT (u.username ILIKE $2)")
	assert.NotContains(t, where, "urls.value")
	assert.Equal(t, []any{"spam", `%bo\_b%`}, args)
}

func TestEntryPredicateTextPlaceholder(t *testing.T) {
	where, args, ref := entryPredicate(EntryQuery{GroupID: 2, Text: "golang"}, 1)

	assert.Equal(t, "$2", ref)
	assert.True(t, strings.Contains(where, "plainto_tsquery('english', $2)"))
	assert.Equal(t, []any{int64(2), "golang"}, args)
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `100\%\_off\\`, escapeLike(`100%_off\`))
}

func TestFingerprint(t *testing.T) {
	assert.Equal(t, "a6bf1757fff057f266b697df9cf176fd", Fingerprint("http://example.com/"))
}
