// Package importer loads a legacy JSON dump: a group.json map of groups
// and one users/<name>.json file per account holding its groups, invites,
// filters and entries.
package importer

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/dchud/unalog2/internal/filter"
	"github.com/dchud/unalog2/internal/store"
	"github.com/dchud/unalog2/internal/tagging"
	"github.com/dchud/unalog2/internal/util"
)

const maxURLLength = 500

type Store interface {
	ResetAll(ctx context.Context) error
	GetGroupByName(ctx context.Context, name string) (store.Group, error)
	CreateGroup(ctx context.Context, name string, profile store.GroupProfile) (store.Group, error)
	CreateUser(ctx context.Context, user store.User, profile store.UserProfile) (store.User, error)
	AddGroupMember(ctx context.Context, groupID, userID int64) error
	AddGroupInvite(ctx context.Context, groupID, userID int64) error
	CreateFilter(ctx context.Context, f store.Filter) (store.Filter, error)
	CreateEntry(ctx context.Context, w store.EntryWrite) (int64, error)
	FixGroupDates(ctx context.Context) (int64, error)
	FixUserDateJoined(ctx context.Context) (int64, error)
}

type Options struct {
	// Reset empties every table first.
	Reset bool
}

type Report struct {
	RunID           string
	Groups          int
	DuplicateGroups int
	Users           int
	SkippedUsers    int
	Filters         int
	Entries         int
	SkippedEntries  int
	GroupsDated     int64
	UsersDated      int64
}

type Importer struct {
	store  Store
	log    logrus.FieldLogger
	groups map[string]int64
}

func New(st Store, log logrus.FieldLogger) *Importer {
	return &Importer{store: st, log: log.WithField("component", "importer")}
}

// Run imports everything in src. Imported entries bypass the index
// queue; callers reindex once the load is complete.
func (im *Importer) Run(ctx context.Context, src Source, opts Options) (Report, error) {
	report := Report{RunID: util.NewID("import")}
	log := im.log.WithField("run_id", report.RunID)
	im.groups = map[string]int64{}

	if opts.Reset {
		log.Warn("resetting all tables")
		if err := im.store.ResetAll(ctx); err != nil {
			return report, err
		}
	}

	groups := map[string]legacyGroup{}
	if err := readJSON(ctx, src, "group.json", &groups); err != nil {
		return report, err
	}
	keys := make([]string, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		created, err := im.addGroup(ctx, log, groups[key])
		if err != nil {
			return report, err
		}
		if created {
			report.Groups++
		} else {
			report.DuplicateGroups++
		}
	}
	log.WithField("groups", report.Groups).Info("groups loaded")

	files, err := src.List(ctx, "users")
	if err != nil {
		return report, err
	}
	for _, name := range files {
		if !strings.HasSuffix(name, ".json") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}
		var old legacyUser
		if err := readJSON(ctx, src, name, &old); err != nil {
			return report, err
		}
		if strings.TrimSpace(old.ID) == "" {
			old.ID = strings.TrimSuffix(path.Base(name), ".json")
		}
		if err := im.addUser(ctx, log, old, &report); err != nil {
			if errors.Is(err, store.ErrConflict) {
				log.WithField("user", old.ID).Warn("user already exists, skipping")
				report.SkippedUsers++
				continue
			}
			return report, err
		}
		report.Users++
	}

	if report.GroupsDated, err = im.store.FixGroupDates(ctx); err != nil {
		return report, err
	}
	if report.UsersDated, err = im.store.FixUserDateJoined(ctx); err != nil {
		return report, err
	}
	log.WithFields(logrus.Fields{
		"users":           report.Users,
		"entries":         report.Entries,
		"skipped_entries": report.SkippedEntries,
	}).Info("import finished")
	return report, nil
}

func readJSON(ctx context.Context, src Source, name string, target any) error {
	r, err := src.Open(ctx, name)
	if err != nil {
		return err
	}
	defer r.Close()
	if err := json.NewDecoder(r).Decode(target); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

// addGroup creates a group. A name that already exists is reused.
func (im *Importer) addGroup(ctx context.Context, log logrus.FieldLogger, old legacyGroup) (bool, error) {
	name := strings.TrimSpace(old.ID)
	group, err := im.store.CreateGroup(ctx, name, store.GroupProfile{
		Description: old.Desc,
		IsPrivate:   bool(old.IsPrivate),
		SToken:      old.SToken,
	})
	if errors.Is(err, store.ErrConflict) {
		log.WithField("group", name).Warn("duplicate group")
		existing, err := im.store.GetGroupByName(ctx, name)
		if err != nil {
			return false, fmt.Errorf("load group %s: %w", name, err)
		}
		im.groups[name] = existing.ID
		return false, nil
	}
	if err != nil {
		return false, err
	}
	im.groups[name] = group.ID
	return true, nil
}

func (im *Importer) groupID(ctx context.Context, name string) (int64, error) {
	if id, ok := im.groups[name]; ok {
		return id, nil
	}
	group, err := im.store.GetGroupByName(ctx, name)
	if err != nil {
		return 0, err
	}
	im.groups[name] = group.ID
	return group.ID, nil
}

func (im *Importer) addUser(ctx context.Context, log logrus.FieldLogger, old legacyUser, report *Report) error {
	first, last := splitName(old.Name)
	user, err := im.store.CreateUser(ctx, store.User{
		Username:     old.ID,
		Email:        old.Email,
		PasswordHash: old.NewPassword,
		FirstName:    first,
		LastName:     last,
		IsActive:     bool(old.IsActive),
		IsStaff:      bool(old.IsAdmin),
	}, store.UserProfile{
		IsPrivate:             bool(old.IsPrivate),
		DefaultToPrivateEntry: bool(old.DefaultToPrivateEntry),
		URL:                   old.URL,
		Token:                 old.Token,
		TZ:                    old.TZ,
	})
	if err != nil {
		return err
	}
	log = log.WithField("user", user.Username)

	for _, name := range old.Groups {
		id, err := im.groupID(ctx, name)
		if err != nil {
			log.WithError(err).WithField("group", name).Warn("unknown group membership")
			continue
		}
		if err := im.store.AddGroupMember(ctx, id, user.ID); err != nil {
			return err
		}
	}
	for _, name := range old.GroupInvites {
		id, err := im.groupID(ctx, name)
		if err != nil {
			log.WithError(err).WithField("group", name).Warn("unknown group invite")
			continue
		}
		if err := im.store.AddGroupInvite(ctx, id, user.ID); err != nil {
			return err
		}
	}

	for _, f := range old.Filters {
		rule, err := filter.New(f.Attr, f.Value, bool(f.IsExact))
		if err != nil {
			log.WithError(err).WithField("attr", f.Attr).Warn("skipping filter")
			continue
		}
		_, err = im.store.CreateFilter(ctx, store.Filter{
			UserID:   user.ID,
			AttrName: string(rule.Attr),
			Value:    rule.Value,
			IsExact:  rule.Exact(),
			IsActive: bool(f.IsActive),
		})
		if err != nil {
			return err
		}
		report.Filters++
	}

	for i, e := range old.Entries {
		write, ok := im.entryWrite(ctx, log.WithField("entry", i), user.ID, e)
		if !ok {
			report.SkippedEntries++
			continue
		}
		if _, err := im.store.CreateEntry(ctx, write); err != nil {
			return fmt.Errorf("import entry %d of %s: %w", i, user.Username, err)
		}
		report.Entries++
	}
	log.WithField("entries", len(old.Entries)).Info("user imported")
	return nil
}

func (im *Importer) entryWrite(ctx context.Context, log logrus.FieldLogger, userID int64, e legacyEntry) (store.EntryWrite, bool) {
	url := clip(strings.TrimSpace(e.URL), maxURLLength)
	if url == "" {
		log.Warn("entry has no url, skipping")
		return store.EntryWrite{}, false
	}
	created, err := parseDate(e.Date)
	if err != nil {
		log.WithError(err).Warn("entry has no usable date, skipping")
		return store.EntryWrite{}, false
	}
	var groupIDs []int64
	for _, name := range e.Groups {
		id, err := im.groupID(ctx, name)
		if errors.Is(err, sql.ErrNoRows) {
			log.WithField("group", name).Warn("entry shared to unknown group")
			continue
		}
		if err != nil {
			log.WithError(err).WithField("group", name).Warn("group lookup failed")
			continue
		}
		groupIDs = append(groupIDs, id)
	}
	return store.EntryWrite{
		UserID:     userID,
		Title:      e.Title,
		URL:        url,
		Comment:    e.Comment,
		Content:    e.Content,
		IsPrivate:  bool(e.IsPrivate),
		Tags:       tagging.Normalize(e.Tags),
		GroupIDs:   groupIDs,
		CreatedAt:  created,
		SkipOutbox: true,
	}, true
}
