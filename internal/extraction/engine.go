// Package extraction turns PDF bytes into per-page text blocks and normalized tables.
package extraction

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
	"golang.org/x/sync/errgroup"

	"github.com/feichai0017/document-tables/internal/models"
	"github.com/feichai0017/document-tables/pkg/logger"
)

// ErrNoPages is returned for documents whose page tree is empty.
var ErrNoPages = errors.New("pdf has no pages")

// ExtractionError reports that the source could not be opened or parsed.
type ExtractionError struct {
	Path string
	Err  error
}

func (e *ExtractionError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("extraction failed: %v", e.Err)
	}
	return fmt.Sprintf("extraction of %s failed: %v", e.Path, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// PageInput is what a table finder sees of one page
type PageInput struct {
	Number   int
	Glyphs   []Glyph
	Document []byte
}

// TableFinder locates raw tables on a single page
type TableFinder interface {
	Name() string
	FindTables(ctx context.Context, page PageInput) ([]RawTable, error)
}

// BlobReader reads stored documents
type BlobReader interface {
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// Page is the extraction output for one page
type Page struct {
	PageNumber int                   `json:"page_number"`
	TextBlocks []string              `json:"text_blocks"`
	Tables     []models.TableContent `json:"tables"`
}

// Result is the extraction output for a whole document
type Result struct {
	Summary     string                `json:"summary"`
	PageCount   int                   `json:"page_count"`
	Pages       []Page                `json:"pages"`
	TextBlocks  []string              `json:"text_blocks"`
	Tables      []models.TableContent `json:"tables"`
	GeneratedAt time.Time             `json:"generated_at"`
}

type Config struct {
	// MaxWorkers bounds concurrent table finding across pages
	MaxWorkers int
}

type Engine struct {
	blobs  BlobReader
	finder TableFinder
	logger logger.Logger
	config *Config
	now    func() time.Time
}

func NewEngine(blobs BlobReader, finder TableFinder, log logger.Logger, cfg *Config) *Engine {
	if cfg == nil {
		cfg = &Config{MaxWorkers: 4}
	}
	if cfg.MaxWorkers < 1 {
		cfg.MaxWorkers = 1
	}
	if finder == nil {
		finder = NewLayoutFinder()
	}
	return &Engine{
		blobs:  blobs,
		finder: finder,
		logger: log.Named("extraction"),
		config: cfg,
		now:    time.Now,
	}
}

// Extract reads the stored document at path and extracts it.
func (e *Engine) Extract(ctx context.Context, path string) (*Result, error) {
	rc, err := e.blobs.Get(ctx, path)
	if err != nil {
		return nil, &ExtractionError{Path: path, Err: err}
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, &ExtractionError{Path: path, Err: fmt.Errorf("failed to read document: %w", err)}
	}

	result, err := e.ExtractBytes(ctx, data)
	if err != nil {
		var xerr *ExtractionError
		if errors.As(err, &xerr) {
			xerr.Path = path
		}
		return nil, err
	}
	return result, nil
}

// scannedPage holds what was read from the PDF sequentially, before table finding.
type scannedPage struct {
	number int
	text   string
	glyphs []Glyph
	// set when the positioned text could not be read
	layoutErr error
}

// ExtractBytes extracts a PDF held in memory.
func (e *Engine) ExtractBytes(ctx context.Context, data []byte) (*Result, error) {
	scanned, err := e.scan(data)
	if err != nil {
		return nil, &ExtractionError{Err: err}
	}

	tables := make([][]RawTable, len(scanned))
	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, e.config.MaxWorkers)

	for i := range scanned {
		i := i
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-gctx.Done():
				return gctx.Err()
			}
			tables[i] = e.findTables(gctx, scanned[i], data)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &Result{
		Summary:     "processed",
		PageCount:   len(scanned),
		Pages:       make([]Page, 0, len(scanned)),
		TextBlocks:  []string{},
		Tables:      []models.TableContent{},
		GeneratedAt: e.now().UTC(),
	}

	for i, sp := range scanned {
		page := Page{
			PageNumber: sp.number,
			TextBlocks: []string{},
			Tables:     []models.TableContent{},
		}
		if strings.TrimSpace(sp.text) != "" {
			page.TextBlocks = append(page.TextBlocks, sp.text)
			result.TextBlocks = append(result.TextBlocks, sp.text)
		}
		for _, raw := range tables[i] {
			table := BuildTable(sp.number, raw)
			page.Tables = append(page.Tables, table)
			result.Tables = append(result.Tables, table)
		}
		result.Pages = append(result.Pages, page)
	}

	e.logger.Info("Extraction completed",
		logger.Int("pages", result.PageCount),
		logger.Int("tables", len(result.Tables)),
		logger.String("finder", e.finder.Name()),
	)
	return result, nil
}

// scan opens the document and reads every page's text and glyphs in page order.
// The pdf reader is not shared across goroutines.
func (e *Engine) scan(data []byte) (pages []scannedPage, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("pdf parser panic: %v", r)
		}
	}()

	reader := bytes.NewReader(data)
	pdfReader, err := pdf.NewReader(reader, reader.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}

	numPages := pdfReader.NumPage()
	if numPages == 0 {
		return nil, ErrNoPages
	}

	pages = make([]scannedPage, 0, numPages)
	for i := 1; i <= numPages; i++ {
		sp := scannedPage{number: i}
		page := pdfReader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, sp)
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to get text from page %d: %w", i, err)
		}
		sp.text = text
		sp.glyphs, sp.layoutErr = pageGlyphs(page)
		pages = append(pages, sp)
	}
	return pages, nil
}

// pageGlyphs reads positioned text, converting parser panics into an error.
func pageGlyphs(page pdf.Page) (glyphs []Glyph, err error) {
	defer func() {
		if r := recover(); r != nil {
			glyphs = nil
			err = fmt.Errorf("content stream panic: %v", r)
		}
	}()
	return GlyphsFromPDF(page.Content().Text), nil
}

// findTables runs the finder for one page. Failures only cost that page its tables.
func (e *Engine) findTables(ctx context.Context, sp scannedPage, data []byte) (tables []RawTable) {
	if sp.layoutErr != nil {
		e.logger.Warn("Skipping table detection for page",
			logger.Int("page", sp.number),
			logger.Error(sp.layoutErr),
		)
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("Table finder panicked",
				logger.Int("page", sp.number),
				logger.Any("panic", r),
			)
			tables = nil
		}
	}()

	found, err := e.finder.FindTables(ctx, PageInput{Number: sp.number, Glyphs: sp.glyphs, Document: data})
	if err != nil {
		e.logger.Warn("Table detection failed for page",
			logger.Int("page", sp.number),
			logger.String("finder", e.finder.Name()),
			logger.Error(err),
		)
		return nil
	}
	return found
}
