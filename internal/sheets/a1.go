package sheets

import (
	"fmt"
	"strings"
)

// ColumnLetter converts a zero-based column index to its A1 letters.
func ColumnLetter(index int) string {
	if index < 0 {
		return ""
	}
	var b []byte
	for n := index + 1; n > 0; n = (n - 1) / 26 {
		b = append([]byte{byte('A' + (n-1)%26)}, b...)
	}
	return string(b)
}

// ColumnIndex converts A1 column letters (case-insensitive) to a zero-based
// index.
func ColumnIndex(letters string) (int, error) {
	s := strings.ToUpper(strings.TrimSpace(letters))
	if s == "" {
		return 0, fmt.Errorf("empty column")
	}
	n := 0
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return 0, fmt.Errorf("invalid column %q", letters)
		}
		n = n*26 + int(r-'A'+1)
	}
	return n - 1, nil
}

func quoteTitle(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}

// columnRange renders rows [startRow, endRow) of one column, e.g. 'Tab'!C5:C104.
func columnRange(title string, column, startRow, endRow int) string {
	col := ColumnLetter(column)
	return fmt.Sprintf("%s!%s%d:%s%d", quoteTitle(title), col, startRow+1, col, endRow)
}

// rowRange renders columns [startCol, endCol) of one row, e.g. 'Tab'!E1:Z1.
func rowRange(title string, row, startCol, endCol int) string {
	return fmt.Sprintf("%s!%s%d:%s%d", quoteTitle(title), ColumnLetter(startCol), row+1, ColumnLetter(endCol-1), row+1)
}
