// Package visibility decides which entries a viewer may see.
package visibility

// Viewer is the identity a listing is computed for. A zero UserID is an
// anonymous viewer.
type Viewer struct {
	UserID   int64
	Username string
	Staff    bool
}

// Anonymous returns the unauthenticated viewer.
func Anonymous() Viewer {
	return Viewer{}
}

func (v Viewer) Authenticated() bool {
	return v.UserID != 0
}

// Is reports whether the viewer is the user with the given id.
func (v Viewer) Is(userID int64) bool {
	return v.Authenticated() && v.UserID == userID
}

// Owner describes the user a listing is scoped to.
type Owner struct {
	ID      int64
	Active  bool
	Private bool
}

// Group describes the group a listing is scoped to.
type Group struct {
	ID      int64
	Private bool
}

// Target is a resolved scope. Member reports whether the viewer belongs to
// Group.
type Target struct {
	Owner  *Owner
	Group  *Group
	Member bool
}

// Reason explains a denied listing.
type Reason string

const (
	ReasonUserInactive Reason = "User is not active"
	ReasonUserPrivate  Reason = "This user's entries are private."
	ReasonGroupPrivate Reason = "This group's entries are private."
)

// Decision is the privacy gate for one listing request.
//
// Gated listings hide private entries and every entry of a private user.
// ApplyFilters is set when the viewer's own filter rules must be applied.
type Decision struct {
	Denied       bool
	Reason       Reason
	Gated        bool
	ApplyFilters bool
}

func deny(reason Reason) Decision {
	return Decision{Denied: true, Reason: reason, Gated: true}
}

// Decide computes the gate for viewer over target.
func Decide(viewer Viewer, target Target) Decision {
	decision := Decision{Gated: true, ApplyFilters: viewer.Authenticated()}

	if owner := target.Owner; owner != nil {
		if !owner.Active {
			return deny(ReasonUserInactive)
		}
		if viewer.Is(owner.ID) {
			decision.Gated = false
			decision.ApplyFilters = false
			return decision
		}
		if owner.Private {
			return deny(ReasonUserPrivate)
		}
	}

	if group := target.Group; group != nil {
		if target.Member && viewer.Authenticated() {
			decision.Gated = false
		} else if group.Private {
			return deny(ReasonGroupPrivate)
		}
	}

	return decision
}

// Subject is a single entry as seen by the gate.
type Subject struct {
	OwnerID      int64
	OwnerActive  bool
	OwnerPrivate bool
	EntryPrivate bool
	// SharedWithViewer is set when the entry is shared to a group the
	// viewer belongs to.
	SharedWithViewer bool
}

// Visible reports whether viewer may see s.
func Visible(viewer Viewer, s Subject) bool {
	if !s.OwnerActive {
		return false
	}
	if viewer.Is(s.OwnerID) {
		return true
	}
	if s.SharedWithViewer && viewer.Authenticated() {
		return true
	}
	return !s.EntryPrivate && !s.OwnerPrivate
}
