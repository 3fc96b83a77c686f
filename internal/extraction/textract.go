package extraction

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/feichai0017/document-tables/pkg/logger"
)

// TextractAPI is the part of the Textract client the finder uses
type TextractAPI interface {
	AnalyzeDocument(ctx context.Context, params *textract.AnalyzeDocumentInput, optFns ...func(*textract.Options)) (*textract.AnalyzeDocumentOutput, error)
}

type TextractConfig struct {
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// TextractFinder sends each page, cut out of the document with pdfcpu, to
// AWS Textract and rebuilds the TABLE blocks it returns.
type TextractFinder struct {
	client TextractAPI
	logger logger.Logger
}

func NewTextractFinder(ctx context.Context, cfg *TextractConfig, log logger.Logger) (*TextractFinder, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config: %w", err)
	}

	client := textract.NewFromConfig(awsCfg, func(o *textract.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewTextractFinderWithClient(client, log), nil
}

func NewTextractFinderWithClient(client TextractAPI, log logger.Logger) *TextractFinder {
	return &TextractFinder{client: client, logger: log}
}

func (f *TextractFinder) Name() string { return "textract" }

// FindTables implements TableFinder.
func (f *TextractFinder) FindTables(ctx context.Context, page PageInput) ([]RawTable, error) {
	single, err := singlePage(page.Document, page.Number)
	if err != nil {
		return nil, err
	}

	out, err := f.client.AnalyzeDocument(ctx, &textract.AnalyzeDocumentInput{
		Document:     &types.Document{Bytes: single},
		FeatureTypes: []types.FeatureType{types.FeatureTypeTables},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to analyze page %d: %w", page.Number, err)
	}

	tables := tablesFromBlocks(out.Blocks)
	f.logger.Debug("Textract tables found",
		logger.Int("page", page.Number),
		logger.Int("tables", len(tables)),
	)
	return tables, nil
}

// singlePage cuts page n out of doc; synchronous AnalyzeDocument only takes one-page PDFs.
func singlePage(doc []byte, n int) ([]byte, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	var buf bytes.Buffer
	if err := api.Trim(bytes.NewReader(doc), &buf, []string{strconv.Itoa(n)}, conf); err != nil {
		return nil, fmt.Errorf("failed to isolate page %d: %w", n, err)
	}
	return buf.Bytes(), nil
}

// tablesFromBlocks rebuilds each TABLE block as a grid; cells without words are nil.
func tablesFromBlocks(blocks []types.Block) []RawTable {
	byID := make(map[string]types.Block, len(blocks))
	for _, b := range blocks {
		if b.Id != nil {
			byID[*b.Id] = b
		}
	}

	var tables []RawTable
	for _, b := range blocks {
		if b.BlockType != types.BlockTypeTable {
			continue
		}

		var cells []types.Block
		rows, cols := 0, 0
		for _, id := range childIDs(b) {
			c, ok := byID[id]
			if !ok || c.BlockType != types.BlockTypeCell || c.RowIndex == nil || c.ColumnIndex == nil {
				continue
			}
			cells = append(cells, c)
			if r := int(*c.RowIndex); r > rows {
				rows = r
			}
			if col := int(*c.ColumnIndex); col > cols {
				cols = col
			}
		}
		if rows == 0 || cols == 0 {
			continue
		}

		grid := make(RawTable, rows)
		for i := range grid {
			grid[i] = make([]interface{}, cols)
		}
		for _, c := range cells {
			if text := cellText(c, byID); text != "" {
				grid[*c.RowIndex-1][*c.ColumnIndex-1] = text
			}
		}
		tables = append(tables, grid)
	}
	return tables
}

func childIDs(b types.Block) []string {
	var ids []string
	for _, rel := range b.Relationships {
		if rel.Type == types.RelationshipTypeChild {
			ids = append(ids, rel.Ids...)
		}
	}
	return ids
}

func cellText(cell types.Block, byID map[string]types.Block) string {
	var words []string
	for _, id := range childIDs(cell) {
		w, ok := byID[id]
		if ok && w.BlockType == types.BlockTypeWord && w.Text != nil {
			words = append(words, *w.Text)
		}
	}
	return strings.Join(words, " ")
}
