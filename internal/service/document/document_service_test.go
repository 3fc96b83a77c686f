package document

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/document-tables/internal/apperr"
	"github.com/feichai0017/document-tables/internal/extraction"
	"github.com/feichai0017/document-tables/internal/models"
	"github.com/feichai0017/document-tables/internal/testutil"
	"github.com/feichai0017/document-tables/internal/upload"
	"github.com/feichai0017/document-tables/internal/utils/validator"
	"github.com/feichai0017/document-tables/pkg/logger"
)

func ptr[T any](v T) *T { return &v }

var (
	admin      = models.Identity{SubjectID: 1, Role: models.RoleAdmin}
	opFinance  = models.Identity{SubjectID: 2, Role: models.RoleOperador, DepartmentID: ptr(int64(1))}
	opLegal    = models.Identity{SubjectID: 3, Role: models.RoleOperador, DepartmentID: ptr(int64(2))}
	corruptPDF = []byte("%PDF-1.4\nthis is not a pdf body\n%%EOF\n")
)

type harness struct {
	svc   *DocumentService
	db    *memDB
	blobs *testutil.MemStorage
	cache *memCache
	queue *memQueue
	log   *logger.TestLogger
}

type harnessOption func(*Dependencies, *harness)

func withCache() harnessOption {
	return func(d *Dependencies, h *harness) {
		h.cache = newMemCache()
		d.Cache = h.cache
	}
}

func withQueue() harnessOption {
	return func(d *Dependencies, h *harness) {
		h.queue = &memQueue{}
		d.Queue = h.queue
	}
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	h := &harness{
		db:    newMemDB(),
		blobs: testutil.NewMemStorage(),
		log:   logger.NewTestLogger(),
	}
	deps := Dependencies{
		Documents:   h.db,
		Tables:      memTables{h.db},
		Departments: memDepts{h.db},
		Uploads:     upload.NewResolver(memDepts{h.db}, h.blobs, "uploads", h.log),
		Blobs:       h.blobs,
		Extractor:   extraction.NewEngine(h.blobs, nil, h.log, nil),
		Validator:   validator.NewDocumentValidator(h.log, nil),
	}
	for _, opt := range opts {
		opt(&deps, h)
	}
	h.svc = NewService(deps, h.log)
	return h
}

func (h *harness) upload(t *testing.T, id models.Identity, dept *int64, data []byte) *models.Document {
	t.Helper()
	doc, err := h.svc.Upload(context.Background(), id, UploadRequest{
		Filename:     "quarterly report.pdf",
		ContentType:  "application/pdf",
		Size:         int64(len(data)),
		Body:         bytes.NewReader(data),
		DepartmentID: dept,
	})
	require.NoError(t, err)
	return doc
}

func kind(err error) apperr.Kind { return apperr.KindOf(err) }

func TestUploadProcessExportEndToEnd(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	doc := h.upload(t, opFinance, ptr(int64(2)), testutil.TablePDF())
	assert.Equal(t, models.StatusPending, doc.Status)
	assert.Equal(t, int64(1), doc.DepartmentID, "operador uploads land in their own department")
	assert.Equal(t, int64(2), doc.UploadedBy)
	assert.True(t, strings.HasPrefix(doc.Filepath, "uploads/dept_1/"), doc.Filepath)
	assert.True(t, strings.HasSuffix(doc.Filepath, "_quarterly_report.pdf"), doc.Filepath)
	assert.Equal(t, []string{doc.Filepath}, h.blobs.Keys())

	processed, err := h.svc.Process(ctx, opFinance, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessed, processed.Status)
	assert.NotNil(t, processed.ProcessedAt)
	assert.NotNil(t, processed.ProcessingStartedAt)
	assert.Nil(t, processed.ErrorMessage)

	tables, err := h.svc.Tables(ctx, opFinance, doc.ID)
	require.NoError(t, err)
	require.Len(t, tables, 1)
	assert.Equal(t, 0, tables[0].TableIndex)

	var content models.TableContent
	require.NoError(t, json.Unmarshal(tables[0].Content, &content))
	assert.Equal(t, []string{"colA", "colB"}, content.Header)
	assert.Equal(t, [][]string{{"a1", "b1"}}, content.Rows)
	assert.Equal(t, 1, content.Page)

	var buf bytes.Buffer
	require.NoError(t, h.svc.ExportCSV(ctx, opFinance, doc.ID, &buf))
	assert.Equal(t, strings.Join([]string{
		"table_index,row_index,col_index,value",
		"0,0,0,colA",
		"0,0,1,colB",
		"0,1,0,a1",
		"0,1,1,b1",
	}, "\n")+"\n", buf.String())
}

func TestProcessFailureRecordsError(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	doc := h.upload(t, admin, ptr(int64(1)), corruptPDF)

	_, err := h.svc.Process(ctx, admin, doc.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.KindExtractionFailure, kind(err))

	status, err := h.svc.Status(ctx, admin, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, status.Status)
	assert.NotEmpty(t, status.ErrorMessage)
	assert.LessOrEqual(t, len([]rune(status.ErrorMessage)), MaxErrorMessageLength)
	assert.Nil(t, status.ProcessedAt)

	tables, err := h.svc.Tables(ctx, admin, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, tables)

	// error -> processing is allowed again
	_, err = h.svc.Process(ctx, admin, doc.ID)
	assert.Equal(t, apperr.KindExtractionFailure, kind(err))
}

func TestProcessIsNotRepeatableWithoutReprocess(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	doc := h.upload(t, opFinance, nil, testutil.TablePDF())

	_, err := h.svc.Process(ctx, opFinance, doc.ID)
	require.NoError(t, err)

	_, err = h.svc.Process(ctx, opFinance, doc.ID)
	assert.Equal(t, apperr.KindConflict, kind(err))

	tables, _ := h.svc.Tables(ctx, opFinance, doc.ID)
	assert.Len(t, tables, 1, "a refused process must not duplicate rows")

	reset, err := h.svc.Reprocess(ctx, opFinance, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, reset.Status)
	assert.Nil(t, reset.ProcessedAt)
	tables, _ = h.svc.Tables(ctx, opFinance, doc.ID)
	assert.Empty(t, tables)

	_, err = h.svc.Reprocess(ctx, opFinance, doc.ID)
	assert.Equal(t, apperr.KindConflict, kind(err), "pending cannot be reprocessed")

	_, err = h.svc.Process(ctx, opFinance, doc.ID)
	require.NoError(t, err)
	tables, _ = h.svc.Tables(ctx, opFinance, doc.ID)
	assert.Len(t, tables, 1)
}

func TestReprocessFromError(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	doc := h.upload(t, admin, ptr(int64(2)), corruptPDF)

	_, err := h.svc.Process(ctx, admin, doc.ID)
	require.Error(t, err)

	reset, err := h.svc.Reprocess(ctx, admin, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, reset.Status)
	assert.Nil(t, reset.ErrorMessage)
}

func TestConcurrentProcessHasOneWinner(t *testing.T) {
	h := newHarness(t)
	doc := h.upload(t, opFinance, nil, testutil.TablePDF())

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.svc.Process(context.Background(), opFinance, doc.ID)
		}(i)
	}
	wg.Wait()

	var ok, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case kind(err) == apperr.KindConflict:
			conflicts++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, conflicts)

	tables, _ := h.svc.Tables(context.Background(), opFinance, doc.ID)
	assert.Len(t, tables, 1)
}

func TestDeleteDuringProcessingDropsResults(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	doc := h.upload(t, opFinance, nil, testutil.TablePDF())
	h.db.beforeComplete = func(id int64) {
		require.NoError(t, h.svc.Delete(ctx, admin, id))
	}

	_, err := h.svc.Process(ctx, opFinance, doc.ID)
	assert.Equal(t, apperr.KindNotFound, kind(err))

	_, err = h.svc.Get(ctx, admin, doc.ID)
	assert.Equal(t, apperr.KindNotFound, kind(err))
	assert.Empty(t, h.db.tables)
	assert.Empty(t, h.blobs.Keys())
}

func TestStoreFailureAfterExtraction(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	doc := h.upload(t, opFinance, nil, testutil.TablePDF())
	h.db.failComplete = errBoom

	_, err := h.svc.Process(ctx, opFinance, doc.ID)
	assert.Equal(t, apperr.KindStorageFailure, kind(err))

	got, err := h.svc.Get(ctx, opFinance, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, got.Status)
	assert.Empty(t, h.db.tables)
}

func TestAccessGateOnDocumentOperations(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	doc := h.upload(t, opFinance, nil, testutil.TablePDF())

	_, err := h.svc.Get(ctx, opLegal, doc.ID)
	assert.Equal(t, apperr.KindForbidden, kind(err))
	_, err = h.svc.Process(ctx, opLegal, doc.ID)
	assert.Equal(t, apperr.KindForbidden, kind(err))
	_, err = h.svc.Reprocess(ctx, opLegal, doc.ID)
	assert.Equal(t, apperr.KindForbidden, kind(err))
	_, err = h.svc.Status(ctx, opLegal, doc.ID)
	assert.Equal(t, apperr.KindForbidden, kind(err))
	assert.Equal(t, apperr.KindForbidden, kind(h.svc.Delete(ctx, opLegal, doc.ID)))
	assert.Equal(t, apperr.KindForbidden, kind(h.svc.ExportCSV(ctx, opLegal, doc.ID, &bytes.Buffer{})))

	got, err := h.svc.Get(ctx, opFinance, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status, "denied calls change nothing")

	_, err = h.svc.Get(ctx, admin, doc.ID)
	assert.NoError(t, err)

	_, err = h.svc.Get(ctx, models.Identity{Role: "auditor"}, doc.ID)
	assert.Equal(t, apperr.KindForbidden, kind(err))

	_, err = h.svc.Get(ctx, admin, 999)
	assert.Equal(t, apperr.KindNotFound, kind(err))
}

func TestListIsScopedAndOrdered(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.upload(t, admin, ptr(int64(1)), testutil.TablePDF())
	b := h.upload(t, admin, ptr(int64(2)), testutil.TablePDF())
	c := h.upload(t, admin, ptr(int64(1)), testutil.TablePDF())

	all, err := h.svc.List(ctx, admin, models.DocumentFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []int64{c.ID, b.ID, a.ID}, []int64{all[0].ID, all[1].ID, all[2].ID})

	scoped, err := h.svc.List(ctx, opFinance, models.DocumentFilter{DepartmentID: ptr(int64(2))})
	require.NoError(t, err)
	require.Len(t, scoped, 2)
	for _, d := range scoped {
		assert.Equal(t, int64(1), d.DepartmentID)
	}

	paged, err := h.svc.List(ctx, admin, models.DocumentFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, b.ID, paged[0].ID)

	for _, f := range []models.DocumentFilter{
		{Limit: 101},
		{Limit: -1},
		{Offset: -1},
		{Status: ptr(models.DocumentStatus("archived"))},
	} {
		_, err := h.svc.List(ctx, admin, f)
		assert.Equal(t, apperr.KindInvalidInput, kind(err), "%+v", f)
	}

	noDept := models.Identity{SubjectID: 9, Role: models.RoleOperador}
	none, err := h.svc.List(ctx, noDept, models.DocumentFilter{})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSearchIsScoped(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	doc := h.upload(t, opFinance, nil, testutil.TablePDF())
	_, err := h.svc.Process(ctx, opFinance, doc.ID)
	require.NoError(t, err)

	hits, err := h.svc.Search(ctx, opFinance, models.SearchQuery{Q: "colA"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, doc.ID, hits[0].Document.ID)
	assert.Equal(t, models.StatusProcessed, hits[0].Document.Status)

	hits, err = h.svc.Search(ctx, opLegal, models.SearchQuery{Q: "colA", DepartmentID: ptr(int64(1))})
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = h.svc.Search(ctx, admin, models.SearchQuery{Q: "cola"})
	require.NoError(t, err)
	assert.Empty(t, hits, "search is case-sensitive")

	_, err = h.svc.Search(ctx, admin, models.SearchQuery{Q: "  "})
	assert.Equal(t, apperr.KindInvalidInput, kind(err))
	_, err = h.svc.Search(ctx, admin, models.SearchQuery{Q: "x", Limit: 500})
	assert.Equal(t, apperr.KindInvalidInput, kind(err))
}

func TestUploadRejections(t *testing.T) {
	ctx := context.Background()

	t.Run("not a pdf", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.svc.Upload(ctx, opFinance, UploadRequest{
			Filename: "notes.txt", ContentType: "text/plain", Body: strings.NewReader("hello"),
		})
		assert.Equal(t, apperr.KindInvalidInput, kind(err))
		assert.Empty(t, h.blobs.Keys())
	})

	t.Run("missing body", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.svc.Upload(ctx, opFinance, UploadRequest{Filename: "a.pdf"})
		assert.Equal(t, apperr.KindInvalidInput, kind(err))
	})

	t.Run("admin without department", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.svc.Upload(ctx, admin, UploadRequest{
			Filename: "a.pdf", ContentType: "application/pdf", Body: bytes.NewReader(testutil.TablePDF()),
		})
		assert.Equal(t, apperr.KindInvalidInput, kind(err))
		assert.Empty(t, h.blobs.Keys())
	})

	t.Run("admin unknown department", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.svc.Upload(ctx, admin, UploadRequest{
			Filename: "a.pdf", ContentType: "application/pdf", Body: bytes.NewReader(testutil.TablePDF()),
			DepartmentID: ptr(int64(77)),
		})
		assert.Equal(t, apperr.KindInvalidInput, kind(err))
	})

	t.Run("blob write fails", func(t *testing.T) {
		h := newHarness(t)
		h.blobs.FailPut = errBoom
		_, err := h.svc.Upload(ctx, opFinance, UploadRequest{
			Filename: "a.pdf", ContentType: "application/pdf", Body: bytes.NewReader(testutil.TablePDF()),
		})
		assert.Equal(t, apperr.KindStorageFailure, kind(err))
		assert.Empty(t, h.db.docs)
	})

	t.Run("metadata write fails", func(t *testing.T) {
		h := newHarness(t)
		h.db.failCreate = errBoom
		_, err := h.svc.Upload(ctx, opFinance, UploadRequest{
			Filename: "a.pdf", ContentType: "application/pdf", Body: bytes.NewReader(testutil.TablePDF()),
		})
		assert.Equal(t, apperr.KindStorageFailure, kind(err))
		assert.Empty(t, h.blobs.Keys(), "orphaned blob is discarded")
	})
}

func TestUploadKeepsDocumentType(t *testing.T) {
	h := newHarness(t)
	doc, err := h.svc.Upload(context.Background(), opFinance, UploadRequest{
		Filename: "a.pdf", ContentType: "application/pdf", Body: bytes.NewReader(testutil.TablePDF()),
		DocumentType: ptr(" invoice "),
	})
	require.NoError(t, err)
	require.NotNil(t, doc.DocumentType)
	assert.Equal(t, "invoice", *doc.DocumentType)

	docs, err := h.svc.List(context.Background(), opFinance, models.DocumentFilter{DocumentType: ptr("invoice")})
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestDelete(t *testing.T) {
	h := newHarness(t, withCache())
	ctx := context.Background()
	doc := h.upload(t, opFinance, nil, testutil.TablePDF())
	_, err := h.svc.Process(ctx, opFinance, doc.ID)
	require.NoError(t, err)

	require.NoError(t, h.svc.Delete(ctx, opFinance, doc.ID))
	assert.Empty(t, h.blobs.Keys())
	assert.Empty(t, h.db.tables)
	assert.NotContains(t, h.cache.views, doc.ID)

	_, err = h.svc.Status(ctx, opFinance, doc.ID)
	assert.Equal(t, apperr.KindNotFound, kind(err))
}

func TestDeleteSurvivesBlobFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	doc := h.upload(t, opFinance, nil, testutil.TablePDF())
	h.blobs.FailDel = errBoom

	require.NoError(t, h.svc.Delete(ctx, opFinance, doc.ID))
	_, err := h.svc.Get(ctx, admin, doc.ID)
	assert.Equal(t, apperr.KindNotFound, kind(err))
	assert.Contains(t, h.log.Messages("WARN"), "Failed to delete document blob")
}

func TestStatusCache(t *testing.T) {
	h := newHarness(t, withCache())
	ctx := context.Background()
	doc := h.upload(t, opFinance, nil, testutil.TablePDF())
	assert.Equal(t, models.StatusPending, h.cache.views[doc.ID].Status)

	_, err := h.svc.Process(ctx, opFinance, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessed, h.cache.views[doc.ID].Status)

	view, err := h.svc.Status(ctx, opFinance, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessed, view.Status)
	assert.NotNil(t, view.ProcessedAt)

	_, err = h.svc.Status(ctx, opLegal, doc.ID)
	assert.Equal(t, apperr.KindForbidden, kind(err), "cached views are still access checked")

	h.cache.fail = errBoom
	view, err = h.svc.Status(ctx, opFinance, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessed, view.Status)
}

func TestProcessAsync(t *testing.T) {
	ctx := logger.WithRequestID(context.Background(), "req-9")

	h := newHarness(t)
	doc := h.upload(t, opFinance, nil, testutil.TablePDF())
	_, err := h.svc.ProcessAsync(ctx, opFinance, doc.ID)
	assert.Equal(t, apperr.KindInvalidInput, kind(err), "disabled without a queue")

	h = newHarness(t, withQueue())
	doc = h.upload(t, opFinance, nil, testutil.TablePDF())

	_, err = h.svc.ProcessAsync(ctx, opLegal, doc.ID)
	assert.Equal(t, apperr.KindForbidden, kind(err))

	taskID, err := h.svc.ProcessAsync(ctx, opFinance, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "task-1", taskID)
	require.Len(t, h.queue.payloads, 1)
	assert.Equal(t, doc.ID, h.queue.payloads[0].DocumentID)
	assert.Equal(t, opFinance, h.queue.payloads[0].Identity)
	assert.Equal(t, "req-9", h.queue.payloads[0].RequestID)

	got, _ := h.svc.Get(ctx, opFinance, doc.ID)
	assert.Equal(t, models.StatusPending, got.Status, "enqueueing does not transition")

	_, err = h.svc.Process(ctx, opFinance, doc.ID)
	require.NoError(t, err)
	_, err = h.svc.ProcessAsync(ctx, opFinance, doc.ID)
	assert.Equal(t, apperr.KindConflict, kind(err))

	other := h.upload(t, opFinance, nil, testutil.TablePDF())
	h.queue.fail = errBoom
	_, err = h.svc.ProcessAsync(ctx, opFinance, other.ID)
	assert.Equal(t, apperr.KindStorageFailure, kind(err))
}

func TestExportFormats(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	doc := h.upload(t, opFinance, nil, testutil.TablePDF())
	_, err := h.svc.Process(ctx, opFinance, doc.ID)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, h.svc.Export(ctx, opFinance, doc.ID, "JSON", &buf))
	var groups []models.DocumentTables
	require.NoError(t, json.Unmarshal(buf.Bytes(), &groups))
	require.Len(t, groups, 1)
	assert.Equal(t, doc.ID, groups[0].Document.ID)
	assert.Len(t, groups[0].Tables, 1)

	err = h.svc.Export(ctx, opFinance, doc.ID, "xml", &bytes.Buffer{})
	assert.Equal(t, apperr.KindInvalidInput, kind(err))

	assert.Equal(t, "application/json", ContentType("json"))
	assert.Equal(t, "text/csv", ContentType("csv"))
	assert.Equal(t, "document_4_tables.json", ExportFilename(4, "json"))
}

func TestExportJSONListsScopedDocuments(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.upload(t, admin, ptr(int64(1)), testutil.TablePDF())
	h.upload(t, admin, ptr(int64(2)), testutil.TablePDF())

	groups, err := h.svc.ExportJSON(ctx, opLegal, ExportFilter{})
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, int64(2), groups[0].Document.DepartmentID)
	assert.NotNil(t, groups[0].Tables)
}

func TestTextOnlyDocumentStoresFallbackRecord(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	doc := h.upload(t, opFinance, nil, testutil.TextOnlyPDF())

	_, err := h.svc.Process(ctx, opFinance, doc.ID)
	require.NoError(t, err)

	tables, err := h.svc.Tables(ctx, opFinance, doc.ID)
	require.NoError(t, err)
	require.Len(t, tables, 1)

	var fallback extraction.Result
	require.NoError(t, json.Unmarshal(tables[0].Content, &fallback))
	assert.Equal(t, "processed", fallback.Summary)
	assert.Equal(t, 1, fallback.PageCount)
	assert.Empty(t, fallback.Tables)

	var buf bytes.Buffer
	require.NoError(t, h.svc.ExportCSV(ctx, opFinance, doc.ID, &buf))
	assert.Equal(t, "table_index,row_index,col_index,value\n", buf.String())
}

func TestExportCSVFlattensFallbackTables(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	doc := h.upload(t, opFinance, nil, testutil.TablePDF())
	h.db.docs[doc.ID].Status = models.StatusProcessing
	fallback := `{"summary":"processed","tables":[{"page":1,"header":null,"rows":[["x"]]},{"page":2,"header":["h"],"rows":[]}]}`
	require.NoError(t, h.db.CompleteProcessing(ctx, doc.ID, []json.RawMessage{json.RawMessage(fallback)}, h.svc.now()))

	var buf bytes.Buffer
	require.NoError(t, h.svc.ExportCSV(ctx, opFinance, doc.ID, &buf))
	assert.Equal(t, "table_index,row_index,col_index,value\n0,0,0,x\n1,0,0,h\n", buf.String())
}

func TestStatsAreScoped(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.upload(t, admin, ptr(int64(1)), testutil.TablePDF())
	h.upload(t, admin, ptr(int64(2)), testutil.TablePDF())
	_, err := h.svc.Process(ctx, admin, a.ID)
	require.NoError(t, err)

	all, err := h.svc.Stats(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, int64(2), all.Total)
	assert.Equal(t, int64(1), all.TableCount)

	legal, err := h.svc.Stats(ctx, opLegal)
	require.NoError(t, err)
	assert.Equal(t, int64(1), legal.Total)
	assert.Equal(t, int64(1), legal.ByStatus[models.StatusPending])
	assert.Zero(t, legal.TableCount)
}

func TestDepartments(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.ListDepartments(ctx, opFinance)
	assert.Equal(t, apperr.KindForbidden, kind(err))
	_, err = h.svc.CreateDepartment(ctx, opFinance, "Ops")
	assert.Equal(t, apperr.KindForbidden, kind(err))

	dept, err := h.svc.CreateDepartment(ctx, admin, "  Ops ")
	require.NoError(t, err)
	assert.Equal(t, "Ops", dept.Name)

	_, err = h.svc.CreateDepartment(ctx, admin, "Ops")
	assert.Equal(t, apperr.KindConflict, kind(err))
	_, err = h.svc.CreateDepartment(ctx, admin, " ")
	assert.Equal(t, apperr.KindInvalidInput, kind(err))

	list, err := h.svc.ListDepartments(ctx, admin)
	require.NoError(t, err)
	assert.Len(t, list, 3)

	got, err := h.svc.GetDepartment(ctx, admin, dept.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ops", got.Name)
	_, err = h.svc.GetDepartment(ctx, admin, 99)
	assert.Equal(t, apperr.KindNotFound, kind(err))
}

func TestTruncateMessage(t *testing.T) {
	assert.Equal(t, "short", truncateMessage("short"))
	long := strings.Repeat("é", MaxErrorMessageLength+100)
	got := truncateMessage(long)
	assert.Equal(t, MaxErrorMessageLength, len([]rune(got)))
}

func TestSearchMatchesOnlyStringValues(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	// The table sits on page 2, so its content carries "page":2 and "header".
	pdf := testutil.BuildPDF(
		[]testutil.TextItem{{X: 72, Y: 720, S: "Cover"}},
		append(testutil.Row(72, 720, 200, "colA", "colB"), testutil.Row(72, 700, 200, "a1", "b1")...),
	)
	doc := h.upload(t, opFinance, nil, pdf)
	_, err := h.svc.Process(ctx, opFinance, doc.ID)
	require.NoError(t, err)

	tables, err := h.svc.Tables(ctx, opFinance, doc.ID)
	require.NoError(t, err)
	require.Len(t, tables, 1)
	require.Contains(t, string(tables[0].Content), `"page":2`)

	tests := []struct {
		q    string
		hits int
	}{
		{q: "b1", hits: 1},
		{q: "colB", hits: 1},
		{q: "rows", hits: 0},
		{q: "header", hits: 0},
		{q: "page", hits: 0},
		{q: "2", hits: 0},
		{q: "null", hits: 0},
		{q: `":`, hits: 0},
	}
	for _, tt := range tests {
		t.Run(tt.q, func(t *testing.T) {
			hits, err := h.svc.Search(ctx, opFinance, models.SearchQuery{Q: tt.q})
			require.NoError(t, err)
			assert.Len(t, hits, tt.hits)
		})
	}
}

func TestDeleteKeepsBlobWhenRowDeleteFails(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	doc := h.upload(t, opFinance, nil, testutil.TablePDF())
	h.db.failDelete = errBoom

	err := h.svc.Delete(ctx, opFinance, doc.ID)
	assert.Equal(t, apperr.KindStorageFailure, kind(err))
	assert.Equal(t, []string{doc.Filepath}, h.blobs.Keys(), "the surviving row must still point at its blob")

	h.db.failDelete = nil
	got, err := h.svc.Get(ctx, opFinance, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.Filepath, got.Filepath)
}

func TestReprocessReplacesEveryTable(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	doc := h.upload(t, opFinance, nil, testutil.MultiTablePDF(3))

	_, err := h.svc.Process(ctx, opFinance, doc.ID)
	require.NoError(t, err)
	tables, err := h.svc.Tables(ctx, opFinance, doc.ID)
	require.NoError(t, err)
	require.Len(t, tables, 3)
	firstIDs := []int64{tables[0].ID, tables[1].ID, tables[2].ID}

	_, err = h.svc.Reprocess(ctx, opFinance, doc.ID)
	require.NoError(t, err)
	_, err = h.svc.Process(ctx, opFinance, doc.ID)
	require.NoError(t, err)

	tables, err = h.svc.Tables(ctx, opFinance, doc.ID)
	require.NoError(t, err)
	require.Len(t, tables, 3, "reprocessing replaces the old tables instead of adding to them")
	for i, tb := range tables {
		assert.Equal(t, i, tb.TableIndex)
		assert.NotContains(t, firstIDs, tb.ID)
		var content models.TableContent
		require.NoError(t, json.Unmarshal(tb.Content, &content))
		assert.Equal(t, []string{"colA", "colB"}, content.Header)
	}

	stats, err := h.svc.Stats(ctx, opFinance)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TableCount)
}

func TestDepartmentAdministration(t *testing.T) {
	h := newHarness(t, withCache())
	ctx := context.Background()

	_, err := h.svc.UpdateDepartment(ctx, opFinance, 1, "Treasury")
	assert.Equal(t, apperr.KindForbidden, kind(err))
	_, err = h.svc.DeleteDepartment(ctx, opFinance, 1)
	assert.Equal(t, apperr.KindForbidden, kind(err))
	_, err = h.svc.DepartmentStats(ctx, opFinance, 1)
	assert.Equal(t, apperr.KindForbidden, kind(err))
	_, err = h.svc.DepartmentSummary(ctx, opFinance)
	assert.Equal(t, apperr.KindForbidden, kind(err))

	renamed, err := h.svc.UpdateDepartment(ctx, admin, 1, " Treasury ")
	require.NoError(t, err)
	assert.Equal(t, "Treasury", renamed.Name)
	_, err = h.svc.UpdateDepartment(ctx, admin, 1, "Legal")
	assert.Equal(t, apperr.KindConflict, kind(err))
	_, err = h.svc.UpdateDepartment(ctx, admin, 99, "Ops")
	assert.Equal(t, apperr.KindNotFound, kind(err))
	_, err = h.svc.UpdateDepartment(ctx, admin, 1, "")
	assert.Equal(t, apperr.KindInvalidInput, kind(err))

	a := h.upload(t, admin, ptr(int64(1)), testutil.TablePDF())
	b := h.upload(t, admin, ptr(int64(1)), testutil.TablePDF())
	legal := h.upload(t, admin, ptr(int64(2)), testutil.TablePDF())
	_, err = h.svc.Process(ctx, admin, a.ID)
	require.NoError(t, err)

	st, err := h.svc.DepartmentStats(ctx, admin, 1)
	require.NoError(t, err)
	assert.Equal(t, "Treasury", st.Department.Name)
	assert.Equal(t, int64(2), st.Total)
	assert.Equal(t, int64(1), st.ByStatus[models.StatusProcessed])
	assert.Equal(t, int64(1), st.TableCount)
	_, err = h.svc.DepartmentStats(ctx, admin, 99)
	assert.Equal(t, apperr.KindNotFound, kind(err))

	summary, err := h.svc.DepartmentSummary(ctx, admin)
	require.NoError(t, err)
	require.Len(t, summary, 2)
	assert.Equal(t, "Legal", summary[0].Department.Name)
	assert.Equal(t, int64(1), summary[0].Total)
	assert.Equal(t, "Treasury", summary[1].Department.Name)
	assert.Equal(t, int64(2), summary[1].Total)

	result, err := h.svc.DeleteDepartment(ctx, admin, 1)
	require.NoError(t, err)
	assert.Equal(t, &models.DepartmentDeletion{DepartmentID: 1, DocumentsDeleted: 2}, result)
	assert.Equal(t, []string{legal.Filepath}, h.blobs.Keys(), "only the other department's file remains")
	assert.Empty(t, h.db.tables)
	assert.NotContains(t, h.cache.views, a.ID)
	assert.NotContains(t, h.cache.views, b.ID)

	_, err = h.svc.Get(ctx, admin, a.ID)
	assert.Equal(t, apperr.KindNotFound, kind(err))
	_, err = h.svc.GetDepartment(ctx, admin, 1)
	assert.Equal(t, apperr.KindNotFound, kind(err))
	_, err = h.svc.DeleteDepartment(ctx, admin, 1)
	assert.Equal(t, apperr.KindNotFound, kind(err))
}

func TestDeleteDepartmentCountsOrphanedBlobs(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.upload(t, admin, ptr(int64(2)), testutil.TablePDF())
	h.blobs.FailDel = errBoom

	result, err := h.svc.DeleteDepartment(ctx, admin, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, result.DocumentsDeleted)
	assert.Equal(t, 1, result.BlobsOrphaned)
	assert.Contains(t, h.log.Messages("WARN"), "Failed to delete document blob")

	docs, err := h.svc.List(ctx, admin, models.DocumentFilter{})
	require.NoError(t, err)
	assert.Empty(t, docs)
}
