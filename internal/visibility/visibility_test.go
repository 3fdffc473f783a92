package visibility

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var (
	alice = Viewer{UserID: 1, Username: "alice"}
	bob   = Viewer{UserID: 2, Username: "bob"}
)

func TestGlobalListingIsGated(t *testing.T) {
	d := Decide(bob, Target{})
	assert.False(t, d.Denied)
	assert.True(t, d.Gated)
	assert.True(t, d.ApplyFilters)

	anon := Decide(Anonymous(), Target{})
	assert.True(t, anon.Gated)
	assert.False(t, anon.ApplyFilters)
}

func TestOwnerSeesEverythingTheyOwn(t *testing.T) {
	d := Decide(alice, Target{Owner: &Owner{ID: 1, Active: true, Private: true}})
	assert.False(t, d.Denied)
	assert.False(t, d.Gated)
	assert.False(t, d.ApplyFilters)
}

func TestPrivateUserDeniedToOthers(t *testing.T) {
	owner := &Owner{ID: 1, Active: true, Private: true}
	for _, viewer := range []Viewer{bob, Anonymous()} {
		d := Decide(viewer, Target{Owner: owner})
		assert.True(t, d.Denied)
		assert.Equal(t, ReasonUserPrivate, d.Reason)
	}
}

func TestPublicUserListingIsGatedForOthers(t *testing.T) {
	d := Decide(bob, Target{Owner: &Owner{ID: 1, Active: true}})
	assert.False(t, d.Denied)
	assert.True(t, d.Gated)
	assert.True(t, d.ApplyFilters)
}

func TestInactiveUserDeniedToEveryoneIncludingThemself(t *testing.T) {
	owner := &Owner{ID: 1, Active: false}
	for _, viewer := range []Viewer{alice, bob, Anonymous()} {
		d := Decide(viewer, Target{Owner: owner})
		assert.True(t, d.Denied)
		assert.Equal(t, ReasonUserInactive, d.Reason)
	}
}

func TestPrivateGroupDeniedToNonMembers(t *testing.T) {
	group := &Group{ID: 7, Private: true}

	d := Decide(bob, Target{Group: group, Member: false})
	assert.True(t, d.Denied)
	assert.Equal(t, ReasonGroupPrivate, d.Reason)

	member := Decide(bob, Target{Group: group, Member: true})
	assert.False(t, member.Denied)
	assert.False(t, member.Gated)
}

func TestPublicGroupGatedForNonMembers(t *testing.T) {
	d := Decide(Anonymous(), Target{Group: &Group{ID: 7}, Member: true})
	assert.False(t, d.Denied)
	assert.True(t, d.Gated)
}

func TestVisible(t *testing.T) {
	public := Subject{OwnerID: 1, OwnerActive: true}
	privateEntry := Subject{OwnerID: 1, OwnerActive: true, EntryPrivate: true}
	privateOwner := Subject{OwnerID: 1, OwnerActive: true, OwnerPrivate: true}
	inactive := Subject{OwnerID: 1, OwnerActive: false}
	shared := Subject{OwnerID: 1, OwnerActive: true, EntryPrivate: true, SharedWithViewer: true}

	assert.True(t, Visible(bob, public))
	assert.True(t, Visible(Anonymous(), public))
	assert.False(t, Visible(bob, privateEntry))
	assert.True(t, Visible(alice, privateEntry))
	assert.False(t, Visible(bob, privateOwner))
	assert.True(t, Visible(alice, privateOwner))
	assert.False(t, Visible(alice, inactive))
	assert.True(t, Visible(bob, shared))
	assert.False(t, Visible(Anonymous(), shared))
}
