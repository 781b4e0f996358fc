package sheets

import (
	"context"
	"fmt"
	"strconv"

	"playcount_snapshot/internal/batch"
	"playcount_snapshot/internal/header"
	"playcount_snapshot/internal/retry"

	"github.com/rs/zerolog/log"
	"google.golang.org/api/sheets/v4"
)

// Tab binds a client to one sheet. It serves both the header resolver and
// the batch writer.
type Tab struct {
	client *Client
	sheet  Sheet
}

func NewTab(client *Client, sheet Sheet) *Tab {
	return &Tab{client: client, sheet: sheet}
}

func (t *Tab) Sheet() Sheet {
	return t.sheet
}

var (
	_ header.Store = (*Tab)(nil)
	_ batch.Store  = (*Tab)(nil)
)

// LoadHeader returns row 1 indexed by absolute column. Cells left of column
// E are returned unset.
func (t *Tab) LoadHeader(ctx context.Context) ([]header.Cell, error) {
	row := make([]header.Cell, t.sheet.ColumnCount)
	if t.sheet.ColumnCount <= header.FirstDateColumn {
		return row, nil
	}

	rng := rowRange(t.sheet.Title, 0, header.FirstDateColumn, t.sheet.ColumnCount)
	log.Debug().Str("range", rng).Msg("Loading header row")

	c := t.client
	resp, err := retryGet(ctx, c, "load header", func(ctx context.Context) (*sheets.Spreadsheet, error) {
		return c.service.Spreadsheets.Get(c.spreadsheetID).
			Ranges(rng).
			IncludeGridData(true).
			Fields("sheets(data(startColumn,rowData(values(userEnteredValue,effectiveValue,formattedValue))))").
			Context(ctx).
			Do()
	})
	if err != nil {
		return nil, err
	}

	for _, s := range resp.Sheets {
		for _, data := range s.Data {
			if len(data.RowData) == 0 || data.RowData[0] == nil {
				continue
			}
			for i, cd := range data.RowData[0].Values {
				col := int(data.StartColumn) + i
				if col >= len(row) || cd == nil {
					continue
				}
				row[col] = headerCell(cd)
			}
		}
	}
	return row, nil
}

func headerCell(cd *sheets.CellData) header.Cell {
	raw := extendedValueString(cd.EffectiveValue)
	if raw == "" {
		raw = extendedValueString(cd.UserEnteredValue)
	}
	return header.Cell{Raw: raw, Display: cd.FormattedValue, Set: raw != ""}
}

func extendedValueString(v *sheets.ExtendedValue) string {
	switch {
	case v == nil:
		return ""
	case v.StringValue != nil:
		return *v.StringValue
	case v.NumberValue != nil:
		return strconv.FormatFloat(*v.NumberValue, 'f', -1, 64)
	case v.BoolValue != nil:
		return strconv.FormatBool(*v.BoolValue)
	case v.FormulaValue != nil:
		return *v.FormulaValue
	default:
		return ""
	}
}

func (t *Tab) WriteHeader(ctx context.Context, column int, value string) error {
	if column < header.FirstDateColumn || column >= t.sheet.ColumnCount {
		return fmt.Errorf("header column %d outside sheet range", column)
	}
	cell := &sheets.CellData{UserEnteredValue: &sheets.ExtendedValue{StringValue: &value}}
	req := &sheets.Request{UpdateCells: &sheets.UpdateCellsRequest{
		Range:  t.gridRange(0, 1, column),
		Rows:   []*sheets.RowData{{Values: []*sheets.CellData{cell}}},
		Fields: "userEnteredValue",
	}}
	if err := t.client.batchUpdate(ctx, "write header", req); err != nil {
		return fmt.Errorf("failed to write header %s%d: %w", ColumnLetter(column), 1, err)
	}
	return nil
}

// LoadChunk reads the source and output columns for span in one request.
func (t *Tab) LoadChunk(ctx context.Context, span batch.Span, sourceColumn, outputColumn int) (batch.ChunkData, error) {
	srcRange := columnRange(t.sheet.Title, sourceColumn, span.Start, span.End)
	outRange := columnRange(t.sheet.Title, outputColumn, span.Start, span.End)

	c := t.client
	resp, err := retryGet(ctx, c, "load chunk", func(ctx context.Context) (*sheets.BatchGetValuesResponse, error) {
		return c.service.Spreadsheets.Values.BatchGet(c.spreadsheetID).
			Ranges(srcRange, outRange).
			MajorDimension("COLUMNS").
			ValueRenderOption("FORMATTED_VALUE").
			Context(ctx).
			Do()
	})
	if err != nil {
		return batch.ChunkData{}, err
	}

	data := batch.ChunkData{}
	if len(resp.ValueRanges) > 0 {
		data.Sources = firstColumn(resp.ValueRanges[0])
	}
	if len(resp.ValueRanges) > 1 {
		data.Previous = firstColumn(resp.ValueRanges[1])
	}
	return data, nil
}

func firstColumn(vr *sheets.ValueRange) []string {
	if vr == nil || len(vr.Values) == 0 {
		return nil
	}
	out := make([]string, len(vr.Values[0]))
	for i, v := range vr.Values[0] {
		if v != nil {
			out[i] = fmt.Sprintf("%v", v)
		}
	}
	return out
}

var plainInteger = &sheets.CellFormat{
	NumberFormat: &sheets.NumberFormat{Type: "NUMBER", Pattern: "0"},
}

// SaveChunk writes values into the output column as plain integers.
func (t *Tab) SaveChunk(ctx context.Context, span batch.Span, outputColumn int, values []int64) error {
	rows := make([]*sheets.RowData, len(values))
	for i, v := range values {
		n := float64(v)
		rows[i] = &sheets.RowData{Values: []*sheets.CellData{{
			UserEnteredValue:  &sheets.ExtendedValue{NumberValue: &n},
			UserEnteredFormat: plainInteger,
		}}}
	}

	req := &sheets.Request{UpdateCells: &sheets.UpdateCellsRequest{
		Range:  t.gridRange(span.Start, span.Start+len(values), outputColumn),
		Rows:   rows,
		Fields: "userEnteredValue,userEnteredFormat.numberFormat",
	}}
	return t.client.batchUpdate(ctx, "save chunk", req)
}

func (t *Tab) gridRange(startRow, endRow, column int) *sheets.GridRange {
	return &sheets.GridRange{
		SheetId:          t.sheet.ID,
		StartRowIndex:    int64(startRow),
		EndRowIndex:      int64(endRow),
		StartColumnIndex: int64(column),
		EndColumnIndex:   int64(column + 1),
		ForceSendFields:  []string{"SheetId", "StartRowIndex", "StartColumnIndex"},
	}
}

func retryGet[T any](ctx context.Context, c *Client, name string, op func(context.Context) (T, error)) (T, error) {
	result, err := retry.Do(ctx, c.policy, name, op)
	if err != nil {
		return result, fmt.Errorf("%s: %w", name, err)
	}
	return result, nil
}
