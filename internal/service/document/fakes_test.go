package document

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/feichai0017/document-tables/internal/models"
	"github.com/feichai0017/document-tables/internal/repository"
	"github.com/feichai0017/document-tables/pkg/queue"
)

// memDB mimics the Postgres repositories, including the conditional
// transitions and the table cascade.
type memDB struct {
	mu        sync.Mutex
	nextDoc   int64
	nextTable int64
	docs      map[int64]*models.Document
	tables    []models.ExtractedTable
	depts     map[int64]models.Department

	failCreate   error
	failComplete error
	failDelete   error
	// beforeComplete runs inside CompleteProcessing before anything is written
	beforeComplete func(id int64)
}

func newMemDB() *memDB {
	return &memDB{
		docs: map[int64]*models.Document{},
		depts: map[int64]models.Department{
			1: {ID: 1, Name: "Finance"},
			2: {ID: 2, Name: "Legal"},
		},
	}
}

func (m *memDB) Create(_ context.Context, d *models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreate != nil {
		return m.failCreate
	}
	m.nextDoc++
	d.ID = m.nextDoc
	d.Status = models.StatusPending
	d.UploadedAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(d.ID) * time.Minute)
	cp := *d
	m.docs[d.ID] = &cp
	return nil
}

func (m *memDB) GetByID(_ context.Context, id int64) (*models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *memDB) List(_ context.Context, f models.DocumentFilter) ([]models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Document, 0)
	for _, d := range m.docs {
		if f.DepartmentID != nil && d.DepartmentID != *f.DepartmentID {
			continue
		}
		if f.Status != nil && d.Status != *f.Status {
			continue
		}
		if f.DocumentType != nil && (d.DocumentType == nil || *d.DocumentType != *f.DocumentType) {
			continue
		}
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UploadedAt.Equal(out[j].UploadedAt) {
			return out[i].UploadedAt.After(out[j].UploadedAt)
		}
		return out[i].ID > out[j].ID
	})
	if f.Offset >= len(out) {
		return []models.Document{}, nil
	}
	out = out[f.Offset:]
	if len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *memDB) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failDelete != nil {
		return m.failDelete
	}
	if _, ok := m.docs[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.docs, id)
	m.dropTables(id)
	return nil
}

func (m *memDB) dropTables(id int64) {
	kept := m.tables[:0]
	for _, t := range m.tables {
		if t.DocumentID != id {
			kept = append(kept, t)
		}
	}
	m.tables = kept
}

func (m *memDB) BeginProcessing(_ context.Context, id int64, startedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok || !d.Status.Processable() {
		return false, nil
	}
	d.Status = models.StatusProcessing
	d.ErrorMessage = nil
	d.ProcessingStartedAt = &startedAt
	return true, nil
}

func (m *memDB) CompleteProcessing(_ context.Context, id int64, contents []json.RawMessage, at time.Time) error {
	if m.beforeComplete != nil {
		m.beforeComplete(id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failComplete != nil {
		return m.failComplete
	}
	d, ok := m.docs[id]
	if !ok || d.Status != models.StatusProcessing {
		return repository.ErrNotFound
	}
	for i, c := range contents {
		m.nextTable++
		m.tables = append(m.tables, models.ExtractedTable{
			ID: m.nextTable, DocumentID: id, TableIndex: i, Content: c, CreatedAt: at,
		})
	}
	d.Status = models.StatusProcessed
	d.ProcessedAt = &at
	d.ErrorMessage = nil
	return nil
}

func (m *memDB) MarkError(_ context.Context, id int64, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok || d.Status != models.StatusProcessing {
		return repository.ErrNotFound
	}
	d.Status = models.StatusError
	d.ErrorMessage = &message
	d.ProcessedAt = nil
	return nil
}

func (m *memDB) ResetToPending(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok || !d.Status.Reprocessable() {
		return false, nil
	}
	m.dropTables(id)
	d.Status = models.StatusPending
	d.ErrorMessage = nil
	d.ProcessedAt = nil
	d.ProcessingStartedAt = nil
	return true, nil
}

func (m *memDB) Stats(_ context.Context, dept *int64) (*models.DocumentStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &models.DocumentStats{ByStatus: map[models.DocumentStatus]int64{}}
	inScope := map[int64]bool{}
	for _, d := range m.docs {
		if dept != nil && d.DepartmentID != *dept {
			continue
		}
		inScope[d.ID] = true
		stats.ByStatus[d.Status]++
		stats.Total++
	}
	for _, t := range m.tables {
		if inScope[t.DocumentID] {
			stats.TableCount++
		}
	}
	return stats, nil
}

// memTables exposes the table half of memDB.
type memTables struct{ db *memDB }

func (t memTables) ListByDocument(_ context.Context, id int64) ([]models.ExtractedTable, error) {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	out := make([]models.ExtractedTable, 0)
	for _, tb := range t.db.tables {
		if tb.DocumentID == id {
			out = append(out, tb)
		}
	}
	return out, nil
}

func (t memTables) Search(_ context.Context, q models.SearchQuery) ([]models.SearchHit, error) {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	hits := make([]models.SearchHit, 0)
	for i := len(t.db.tables) - 1; i >= 0; i-- {
		tb := t.db.tables[i]
		d := t.db.docs[tb.DocumentID]
		if q.DepartmentID != nil && d.DepartmentID != *q.DepartmentID {
			continue
		}
		if stringLeafContains(tb.Content, q.Q) {
			hits = append(hits, models.SearchHit{Document: d.Summary(), Table: tb})
		}
	}
	if q.Offset >= len(hits) {
		return []models.SearchHit{}, nil
	}
	hits = hits[q.Offset:]
	if len(hits) > q.Limit {
		hits = hits[:q.Limit]
	}
	return hits, nil
}

// stringLeafContains mirrors the repository search: only string values count.
func stringLeafContains(content json.RawMessage, q string) bool {
	var v interface{}
	if err := json.Unmarshal(content, &v); err != nil {
		return false
	}
	var walk func(interface{}) bool
	walk = func(v interface{}) bool {
		switch x := v.(type) {
		case string:
			return strings.Contains(x, q)
		case []interface{}:
			for _, e := range x {
				if walk(e) {
					return true
				}
			}
		case map[string]interface{}:
			for _, e := range x {
				if walk(e) {
					return true
				}
			}
		}
		return false
	}
	return walk(v)
}

// memDepts exposes the department half of memDB.
type memDepts struct{ db *memDB }

func (d memDepts) Exists(_ context.Context, id int64) (bool, error) {
	d.db.mu.Lock()
	defer d.db.mu.Unlock()
	_, ok := d.db.depts[id]
	return ok, nil
}

func (d memDepts) GetByID(_ context.Context, id int64) (*models.Department, error) {
	d.db.mu.Lock()
	defer d.db.mu.Unlock()
	dept, ok := d.db.depts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &dept, nil
}

func (d memDepts) List(_ context.Context) ([]models.Department, error) {
	d.db.mu.Lock()
	defer d.db.mu.Unlock()
	out := make([]models.Department, 0, len(d.db.depts))
	for _, dept := range d.db.depts {
		out = append(out, dept)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (d memDepts) Create(_ context.Context, name string) (*models.Department, error) {
	d.db.mu.Lock()
	defer d.db.mu.Unlock()
	for _, dept := range d.db.depts {
		if dept.Name == name {
			return nil, repository.ErrDuplicate
		}
	}
	var maxID int64
	for id := range d.db.depts {
		if id > maxID {
			maxID = id
		}
	}
	dept := models.Department{ID: maxID + 1, Name: name}
	d.db.depts[dept.ID] = dept
	return &dept, nil
}

func (d memDepts) Update(_ context.Context, id int64, name string) (*models.Department, error) {
	d.db.mu.Lock()
	defer d.db.mu.Unlock()
	dept, ok := d.db.depts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	for other, existing := range d.db.depts {
		if other != id && existing.Name == name {
			return nil, repository.ErrDuplicate
		}
	}
	dept.Name = name
	d.db.depts[id] = dept
	return &dept, nil
}

func (d memDepts) Delete(_ context.Context, id int64) ([]models.DocumentRef, error) {
	d.db.mu.Lock()
	defer d.db.mu.Unlock()
	if _, ok := d.db.depts[id]; !ok {
		return nil, repository.ErrNotFound
	}
	removed := make([]models.DocumentRef, 0)
	for docID, doc := range d.db.docs {
		if doc.DepartmentID == id {
			removed = append(removed, models.DocumentRef{ID: docID, Filepath: doc.Filepath})
			delete(d.db.docs, docID)
			d.db.dropTables(docID)
		}
	}
	sort.Slice(removed, func(i, j int) bool { return removed[i].ID < removed[j].ID })
	delete(d.db.depts, id)
	return removed, nil
}

type memCache struct {
	mu    sync.Mutex
	views map[int64]models.DocumentStatusView
	fail  error
}

func newMemCache() *memCache {
	return &memCache{views: map[int64]models.DocumentStatusView{}}
}

func (c *memCache) Get(_ context.Context, id int64) (*models.DocumentStatusView, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return nil, c.fail
	}
	v, ok := c.views[id]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (c *memCache) Set(_ context.Context, v *models.DocumentStatusView) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return c.fail
	}
	c.views[v.ID] = *v
	return nil
}

func (c *memCache) Delete(_ context.Context, id int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.views, id)
	return nil
}

type memQueue struct {
	payloads []queue.ProcessPayload
	fail     error
}

func (q *memQueue) EnqueueProcess(_ context.Context, p queue.ProcessPayload) (string, error) {
	if q.fail != nil {
		return "", q.fail
	}
	q.payloads = append(q.payloads, p)
	return "task-1", nil
}

func (q *memQueue) Close() error { return nil }

var errBoom = errors.New("boom")
