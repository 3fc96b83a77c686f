package extraction

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/feichai0017/document-tables/internal/models"
)

// RawTable is a grid of cells as a table finder reports it. Cells may be nil,
// numeric or textual; rows may have different lengths.
type RawTable [][]interface{}

// NormalizeCell turns a raw cell into its stored string form.
func NormalizeCell(v interface{}) string {
	switch c := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(c)
	case *string:
		if c == nil {
			return ""
		}
		return strings.TrimSpace(*c)
	case int:
		return strconv.Itoa(c)
	case int32:
		return strconv.FormatInt(int64(c), 10)
	case int64:
		return strconv.FormatInt(c, 10)
	case uint:
		return strconv.FormatUint(uint64(c), 10)
	case uint64:
		return strconv.FormatUint(c, 10)
	case float32:
		return strconv.FormatFloat(float64(c), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(c, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(c))
	}
}

// NormalizeGrid normalizes every cell. Jagged rows stay jagged.
func NormalizeGrid(raw RawTable) [][]string {
	grid := make([][]string, len(raw))
	for i, row := range raw {
		out := make([]string, len(row))
		for j, cell := range row {
			out[j] = NormalizeCell(cell)
		}
		grid[i] = out
	}
	return grid
}

// columnCount is the length of the longest row.
func columnCount(grid [][]string) int {
	n := 0
	for _, row := range grid {
		if len(row) > n {
			n = len(row)
		}
	}
	return n
}

// headerThreshold is the number of filled cells a first row needs to count as a header.
func headerThreshold(columns int) int {
	t := int(math.Ceil(0.6 * float64(columns)))
	if t < 2 {
		return 2
	}
	return t
}

// DetectHeader splits grid into an optional header and the body.
func DetectHeader(grid [][]string) (header []string, body [][]string) {
	if len(grid) == 0 {
		return nil, [][]string{}
	}

	first := grid[0]
	filled := 0
	for _, cell := range first {
		if cell != "" {
			filled++
		}
	}
	if filled < headerThreshold(columnCount(grid)) {
		return nil, grid
	}

	header = make([]string, len(first))
	for i, cell := range first {
		name := strings.TrimSpace(cell)
		if name == "" {
			name = fmt.Sprintf("col_%d", i)
		}
		header[i] = name
	}
	return header, grid[1:]
}

// BuildTable normalizes a raw table found on page and applies header detection.
func BuildTable(page int, raw RawTable) models.TableContent {
	header, body := DetectHeader(NormalizeGrid(raw))
	if body == nil {
		body = [][]string{}
	}
	return models.TableContent{
		Page:   page,
		Header: header,
		Rows:   body,
	}
}
