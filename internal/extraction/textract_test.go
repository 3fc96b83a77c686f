package extraction

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/document-tables/pkg/logger"
)

type fakeTextract struct {
	calls int
	out   *textract.AnalyzeDocumentOutput
}

func (f *fakeTextract) AnalyzeDocument(_ context.Context, _ *textract.AnalyzeDocumentInput, _ ...func(*textract.Options)) (*textract.AnalyzeDocumentOutput, error) {
	f.calls++
	return f.out, nil
}

func child(ids ...string) []types.Relationship {
	return []types.Relationship{{Type: types.RelationshipTypeChild, Ids: ids}}
}

func cellBlock(id string, row, col int32, words ...string) types.Block {
	return types.Block{
		Id:            aws.String(id),
		BlockType:     types.BlockTypeCell,
		RowIndex:      aws.Int32(row),
		ColumnIndex:   aws.Int32(col),
		Relationships: child(words...),
	}
}

func wordBlock(id, text string) types.Block {
	return types.Block{Id: aws.String(id), BlockType: types.BlockTypeWord, Text: aws.String(text)}
}

func TestTablesFromBlocks(t *testing.T) {
	blocks := []types.Block{
		{Id: aws.String("t1"), BlockType: types.BlockTypeTable, Relationships: child("c11", "c12", "c21", "c22")},
		cellBlock("c11", 1, 1, "w1"),
		cellBlock("c12", 1, 2, "w2", "w3"),
		cellBlock("c21", 2, 1, "w4"),
		cellBlock("c22", 2, 2),
		wordBlock("w1", "Item"),
		wordBlock("w2", "Unit"),
		wordBlock("w3", "price"),
		wordBlock("w4", "Bolt"),
		// A table with no resolvable cells is dropped.
		{Id: aws.String("t2"), BlockType: types.BlockTypeTable, Relationships: child("missing")},
	}

	tables := tablesFromBlocks(blocks)
	require.Len(t, tables, 1)
	assert.Equal(t, RawTable{
		{"Item", "Unit price"},
		{"Bolt", nil},
	}, tables[0])
}

func TestTextractFinderRejectsUnreadableDocument(t *testing.T) {
	client := &fakeTextract{out: &textract.AnalyzeDocumentOutput{}}
	finder := NewTextractFinderWithClient(client, logger.NewTestLogger())
	assert.Equal(t, "textract", finder.Name())

	_, err := finder.FindTables(context.Background(), PageInput{Number: 1, Document: []byte("not a pdf")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to isolate page 1")
	assert.Zero(t, client.calls)
}
