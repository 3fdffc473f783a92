package search

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
	"github.com/sirupsen/logrus"
)

var (
	filterableAttributes = []string{"user", "user_id", "tag", "group", "is_private_entry", "is_private_user", "is_active_user", "date_created"}
	searchableAttributes = []string{"title", "comment", "content", "tag", "url", "user"}
)

// Meili implements Indexer and Searcher over one Meilisearch index.
type Meili struct {
	client  meili.ServiceManager
	index   string
	log     logrus.FieldLogger
	healthy atomic.Bool
	done    chan struct{}

	mu       sync.Mutex
	lastTask *int64
}

// NewMeili connects to Meilisearch and configures the index. A failed
// initial health check leaves the indexer unhealthy; a background loop
// keeps probing and reconfigures on recovery.
func NewMeili(url, apiKey, index string, log logrus.FieldLogger) *Meili {
	m := &Meili{
		client: meili.New(url, meili.WithAPIKey(apiKey)),
		index:  index,
		log:    log.WithField("component", "meili"),
		done:   make(chan struct{}),
	}

	if _, err := m.client.Health(); err != nil {
		m.log.WithError(err).WithField("url", url).Warn("meilisearch unavailable")
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        m.index,
		PrimaryKey: "id",
	}); err != nil {
		m.log.WithError(err).WithField("index", m.index).Debug("create index (may already exist)")
	}

	index := m.client.Index(m.index)
	filterable := make([]interface{}, len(filterableAttributes))
	for i, v := range filterableAttributes {
		filterable[i] = v
	}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		m.log.WithError(err).Warn("update filterable attributes")
	}
	searchable := append([]string(nil), searchableAttributes...)
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		m.log.WithError(err).Warn("update searchable attributes")
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				m.log.Info("meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

func (m *Meili) track(task *meili.TaskInfo, err error) error {
	if err != nil {
		return err
	}
	if task != nil {
		uid := task.TaskUID
		m.mu.Lock()
		m.lastTask = &uid
		m.mu.Unlock()
	}
	return nil
}

func (m *Meili) Upsert(docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	return m.track(m.client.Index(m.index).AddDocuments(docs, nil))
}

func (m *Meili) Delete(ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = strconv.FormatInt(id, 10)
	}
	return m.track(m.client.Index(m.index).DeleteDocuments(keys, nil))
}

func (m *Meili) DeleteByUser(userID int64) error {
	return m.track(m.client.Index(m.index).DeleteDocumentsByFilter(fmt.Sprintf("user_id = %d", userID), nil))
}

// DeleteAll drops the index and recreates it with its settings.
func (m *Meili) DeleteAll() error {
	if err := m.track(m.client.DeleteIndex(m.index)); err != nil {
		return err
	}
	if err := m.Commit(); err != nil {
		return err
	}
	m.configureIndex()
	return nil
}

// Commit waits for the most recently enqueued task to finish.
func (m *Meili) Commit() error {
	m.mu.Lock()
	last := m.lastTask
	m.mu.Unlock()
	if last == nil {
		return nil
	}
	uid := *last
	task, err := m.client.WaitForTask(uid, 100*time.Millisecond)
	if err != nil {
		return fmt.Errorf("wait for task %d: %w", uid, err)
	}
	if task.Status == meili.TaskStatusFailed {
		return fmt.Errorf("task %d failed", uid)
	}
	return nil
}

func (m *Meili) Search(q Query) ([]int64, int, error) {
	if !m.healthy.Load() {
		return nil, 0, errors.New("meilisearch unhealthy")
	}
	limit := int64(q.Limit)
	if limit <= 0 {
		limit = 50
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: []*meili.SearchRequest{{
			IndexUID: m.index,
			Query:    q.Text,
			Limit:    limit,
			Offset:   int64(q.Offset),
			Filter:   FilterExpression(q),
		}},
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch search: %w", err)
	}

	ids := make([]int64, 0)
	total := 0
	for _, sr := range resp.Results {
		total += int(sr.EstimatedTotalHits)
		for _, hit := range sr.Hits {
			if id, ok := decodeID(hit); ok {
				ids = append(ids, id)
			}
		}
	}
	return ids, total, nil
}

func decodeID(hit meili.Hit) (int64, bool) {
	raw, ok := hit["id"]
	if !ok {
		return 0, false
	}
	var id int64
	if err := json.Unmarshal(raw, &id); err != nil {
		return 0, false
	}
	return id, true
}

// FilterExpression renders the privacy gate as a Meilisearch filter.
// Meilisearch compares strings case-insensitively, so the viewer's rules are
// left to Admit where exact matches stay case-sensitive.
func FilterExpression(q Query) string {
	public := "(is_private_entry = false AND is_private_user = false)"
	gate := public
	if q.Viewer.Authenticated() {
		alternatives := []string{fmt.Sprintf("user_id = %d", q.Viewer.UserID)}
		if len(q.ViewerGroups) > 0 {
			quoted := make([]string, len(q.ViewerGroups))
			for i, g := range q.ViewerGroups {
				quoted[i] = strconv.Quote(g)
			}
			alternatives = append(alternatives, "group IN ["+strings.Join(quoted, ", ")+"]")
		}
		alternatives = append(alternatives, public)
		gate = "(" + strings.Join(alternatives, " OR ") + ")"
	}

	return "is_active_user = true AND " + gate
}
