package search

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/dchud/unalog2/internal/store"
)

// ErrUnavailable is returned by bulk operations when no healthy index is
// configured.
var ErrUnavailable = errors.New("search index unavailable")

// EntrySource reads the relational state documents are built from.
type EntrySource interface {
	GetEntries(ctx context.Context, ids []int64) ([]store.Entry, error)
	EntryIDsAfter(ctx context.Context, userID, afterID int64, limit int) ([]int64, error)
}

// Mirror keeps the index in step with the relational store. The store is
// the source of truth: index failures are logged and never surface to
// relational writers.
type Mirror struct {
	index       Indexer
	entries     EntrySource
	log         logrus.FieldLogger
	batchSize   int
	commitEvery int
}

// NewMirror returns a mirror over index, which may be nil when no search
// backend is configured.
func NewMirror(index Indexer, entries EntrySource, log logrus.FieldLogger, batchSize, commitEvery int) *Mirror {
	if batchSize <= 0 {
		batchSize = 5
	}
	if commitEvery <= 0 {
		commitEvery = 50
	}
	return &Mirror{
		index:       index,
		entries:     entries,
		log:         log.WithField("component", "mirror"),
		batchSize:   batchSize,
		commitEvery: commitEvery,
	}
}

func (m *Mirror) Healthy() bool {
	return m.index != nil && m.index.Healthy()
}

// Configured reports whether the mirror has an index to write to.
func (m *Mirror) Configured() bool {
	return m.index != nil
}

// DeleteEntry removes one document ahead of the relational delete. It is
// best effort; the outbox backstop retries it after the row is gone.
func (m *Mirror) DeleteEntry(entryID int64) {
	if !m.Healthy() {
		m.log.WithField("entry_id", entryID).Warn("index unavailable, deferring delete to outbox")
		return
	}
	if err := m.index.Delete([]int64{entryID}); err != nil {
		m.log.WithError(err).WithField("entry_id", entryID).Warn("index delete failed")
	}
}

// SyncEntry submits the current state of one entry, or deletes its
// document if the entry no longer exists.
func (m *Mirror) SyncEntry(ctx context.Context, entryID int64) error {
	if !m.Healthy() {
		return ErrUnavailable
	}
	entries, err := m.entries.GetEntries(ctx, []int64{entryID})
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return m.index.Delete([]int64{entryID})
	}
	return m.index.Upsert([]Document{NewDocument(entries[0])})
}

// ReindexReport summarizes a bulk reindex.
type ReindexReport struct {
	Submitted   int
	Submissions int
	Commits     int
	Failed      []int64
}

// Reindex resubmits every entry, or only userID's when it is non-zero.
// Ids are walked in key order. Each submission carries batchSize
// documents and the index is committed every commitEvery submissions. A
// failed submission is logged, its ids recorded, and the walk continues.
func (m *Mirror) Reindex(ctx context.Context, userID int64) (ReindexReport, error) {
	var report ReindexReport
	if !m.Healthy() {
		return report, ErrUnavailable
	}
	log := m.log.WithField("user_id", userID)

	var afterID int64
	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		ids, err := m.entries.EntryIDsAfter(ctx, userID, afterID, m.batchSize*m.commitEvery)
		if err != nil {
			return report, fmt.Errorf("list entry ids: %w", err)
		}
		if len(ids) == 0 {
			break
		}
		afterID = ids[len(ids)-1]

		entries, err := m.entries.GetEntries(ctx, ids)
		if err != nil {
			return report, fmt.Errorf("load entries: %w", err)
		}
		for start := 0; start < len(entries); start += m.batchSize {
			end := min(start+m.batchSize, len(entries))
			docs := make([]Document, 0, end-start)
			for _, e := range entries[start:end] {
				docs = append(docs, NewDocument(e))
			}
			report.Submissions++
			if err := m.index.Upsert(docs); err != nil {
				failed := documentIDs(docs)
				report.Failed = append(report.Failed, failed...)
				log.WithError(err).WithField("ids", failed).Error("index submission failed")
			} else {
				report.Submitted += len(docs)
			}
			if report.Submissions%m.commitEvery == 0 {
				m.commit(log, &report)
			}
		}
	}
	m.commit(log, &report)
	log.WithFields(logrus.Fields{
		"submitted": report.Submitted,
		"failed":    len(report.Failed),
	}).Info("reindex finished")
	return report, nil
}

func (m *Mirror) commit(log logrus.FieldLogger, report *ReindexReport) {
	report.Commits++
	if err := m.index.Commit(); err != nil {
		log.WithError(err).Error("index commit failed")
	}
}

// ReindexUser replaces every document of userID. The user's documents are
// deleted first since flag changes touch all of them.
func (m *Mirror) ReindexUser(ctx context.Context, userID int64) (ReindexReport, error) {
	if !m.Healthy() {
		return ReindexReport{}, ErrUnavailable
	}
	if err := m.index.DeleteByUser(userID); err != nil {
		return ReindexReport{}, fmt.Errorf("delete user documents: %w", err)
	}
	if err := m.index.Commit(); err != nil {
		return ReindexReport{}, fmt.Errorf("commit user delete: %w", err)
	}
	return m.Reindex(ctx, userID)
}

// Zap deletes every document, or only userID's when it is non-zero.
func (m *Mirror) Zap(userID int64) error {
	if !m.Healthy() {
		return ErrUnavailable
	}
	var err error
	if userID == 0 {
		err = m.index.DeleteAll()
	} else {
		err = m.index.DeleteByUser(userID)
	}
	if err != nil {
		return fmt.Errorf("zap index: %w", err)
	}
	return m.index.Commit()
}

// Apply performs one queued index operation.
func (m *Mirror) Apply(ctx context.Context, item store.OutboxItem) error {
	switch item.Op {
	case store.OutboxUpsert:
		return m.SyncEntry(ctx, item.EntryID)
	case store.OutboxDelete:
		if !m.Healthy() {
			return ErrUnavailable
		}
		return m.index.Delete([]int64{item.EntryID})
	case store.OutboxReindexUser:
		report, err := m.ReindexUser(ctx, item.UserID)
		if err != nil {
			return err
		}
		if len(report.Failed) > 0 {
			return fmt.Errorf("reindex user %d: %d documents failed", item.UserID, len(report.Failed))
		}
		return nil
	default:
		return fmt.Errorf("unknown outbox op %q", item.Op)
	}
}

func documentIDs(docs []Document) []int64 {
	ids := make([]int64, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	return ids
}
