package sheets

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"playcount_snapshot/internal/batch"
	"playcount_snapshot/internal/header"
	"playcount_snapshot/internal/retry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const testSpreadsheetID = "sheet-123"

type fakeAPI struct {
	mu       sync.Mutex
	handlers map[string]http.HandlerFunc // keyed by "METHOD suffix"
	bodies   []string
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.bodies = append(f.bodies, string(body))
	f.mu.Unlock()

	for key, h := range f.handlers {
		method, suffix, _ := strings.Cut(key, " ")
		if r.Method == method && strings.HasSuffix(r.URL.Path, suffix) {
			h(w, r)
			return
		}
	}
	http.Error(w, `{"error":{"code":404,"message":"not found"}}`, http.StatusNotFound)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, api *fakeAPI, policy retry.Policy) *Client {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	client, err := NewClient(context.Background(), testSpreadsheetID, policy,
		option.WithEndpoint(srv.URL+"/"),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)
	return client
}

func sheetsListing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"sheets": []any{
			map[string]any{"properties": map[string]any{
				"sheetId": 0, "title": "Summary", "index": 0,
				"gridProperties": map[string]any{"rowCount": 10, "columnCount": 5},
			}},
			map[string]any{"properties": map[string]any{
				"sheetId": 777, "title": "Daily", "index": 1,
				"gridProperties": map[string]any{"rowCount": 254, "columnCount": 30},
			}},
		},
	})
}

func TestColumnLetterRoundTrip(t *testing.T) {
	cases := map[int]string{0: "A", 2: "C", 3: "D", 4: "E", 25: "Z", 26: "AA", 51: "AZ", 52: "BA", 701: "ZZ", 702: "AAA"}
	for idx, letters := range cases {
		require.Equal(t, letters, ColumnLetter(idx))
		got, err := ColumnIndex(strings.ToLower(letters))
		require.NoError(t, err)
		require.Equal(t, idx, got)
	}

	_, err := ColumnIndex("")
	require.Error(t, err)
	_, err = ColumnIndex("C1")
	require.Error(t, err)
}

func TestRanges(t *testing.T) {
	require.Equal(t, "'Daily'!C5:C104", columnRange("Daily", 2, 4, 104))
	require.Equal(t, "'Bob''s tab'!E1:AD1", rowRange("Bob's tab", 0, 4, 30))
}

func TestCredentialsOption(t *testing.T) {
	_, err := CredentialsOption("", "")
	require.Error(t, err)

	_, err = CredentialsOption("%%%not-base64", "")
	require.Error(t, err)

	opt, err := CredentialsOption(base64.StdEncoding.EncodeToString([]byte(`{"type":"service_account"}`)), "")
	require.NoError(t, err)
	require.NotNil(t, opt)

	opt, err = CredentialsOption("", "credentials.json")
	require.NoError(t, err)
	require.NotNil(t, opt)
}

func TestIsTransient(t *testing.T) {
	require.True(t, IsTransient(&googleapi.Error{Code: 429}))
	require.True(t, IsTransient(&googleapi.Error{Code: 503}))
	require.False(t, IsTransient(&googleapi.Error{Code: 403}))
	require.False(t, IsTransient(io.EOF))
}

func TestOpenSheet(t *testing.T) {
	api := &fakeAPI{handlers: map[string]http.HandlerFunc{"GET /v4/spreadsheets/" + testSpreadsheetID: sheetsListing}}
	client := newTestClient(t, api, retry.Policy{Timeout: 5 * time.Second})

	sheet, err := client.OpenSheet(context.Background(), "Daily")
	require.NoError(t, err)
	require.Equal(t, Sheet{ID: 777, Title: "Daily", RowCount: 254, ColumnCount: 30}, sheet)

	first, err := client.OpenSheet(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, "Summary", first.Title)

	_, err = client.OpenSheet(context.Background(), "Missing")
	require.ErrorIs(t, err, ErrSheetNotFound)
}

func TestLoadHeader(t *testing.T) {
	api := &fakeAPI{handlers: map[string]http.HandlerFunc{
		"GET /v4/spreadsheets/" + testSpreadsheetID: func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "'Daily'!E1:H1", r.URL.Query().Get("ranges"))
			assert.Equal(t, "true", r.URL.Query().Get("includeGridData"))
			writeJSON(w, map[string]any{"sheets": []any{map[string]any{"data": []any{map[string]any{
				"startColumn": 4,
				"rowData": []any{map[string]any{"values": []any{
					map[string]any{"userEnteredValue": map[string]any{"stringValue": "10/17"}, "effectiveValue": map[string]any{"stringValue": "10/17"}, "formattedValue": "10/17"},
					map[string]any{"userEnteredValue": map[string]any{"numberValue": 45583}, "effectiveValue": map[string]any{"numberValue": 45583}, "formattedValue": "2024/10/18"},
					map[string]any{},
				}}},
			}}}}})
		},
	}}
	client := newTestClient(t, api, retry.Policy{Timeout: 5 * time.Second})
	tab := NewTab(client, Sheet{ID: 777, Title: "Daily", RowCount: 20, ColumnCount: 8})

	row, err := tab.LoadHeader(context.Background())
	require.NoError(t, err)
	require.Len(t, row, 8)
	require.False(t, row[0].Set)
	require.Equal(t, header.Cell{Raw: "10/17", Display: "10/17", Set: true}, row[4])
	require.Equal(t, header.Cell{Raw: "45583", Display: "2024/10/18", Set: true}, row[5])
	require.False(t, row[6].Set)
	require.False(t, row[7].Set)
}

func decodeBatchUpdate(t *testing.T, body string) *sheets.BatchUpdateSpreadsheetRequest {
	t.Helper()
	var req sheets.BatchUpdateSpreadsheetRequest
	require.NoError(t, json.Unmarshal([]byte(body), &req))
	return &req
}

func TestWriteHeader(t *testing.T) {
	api := &fakeAPI{handlers: map[string]http.HandlerFunc{
		"POST :batchUpdate": func(w http.ResponseWriter, r *http.Request) { writeJSON(w, map[string]any{}) },
	}}
	client := newTestClient(t, api, retry.Policy{Timeout: 5 * time.Second})
	tab := NewTab(client, Sheet{ID: 777, Title: "Daily", RowCount: 20, ColumnCount: 8})

	require.NoError(t, tab.WriteHeader(context.Background(), 6, "10/18"))
	require.Len(t, api.bodies, 1)

	req := decodeBatchUpdate(t, api.bodies[0])
	require.Len(t, req.Requests, 1)
	uc := req.Requests[0].UpdateCells
	require.Equal(t, int64(777), uc.Range.SheetId)
	require.Equal(t, int64(0), uc.Range.StartRowIndex)
	require.Equal(t, int64(1), uc.Range.EndRowIndex)
	require.Equal(t, int64(6), uc.Range.StartColumnIndex)
	require.Equal(t, int64(7), uc.Range.EndColumnIndex)
	require.Equal(t, "10/18", *uc.Rows[0].Values[0].UserEnteredValue.StringValue)

	require.Error(t, tab.WriteHeader(context.Background(), 2, "10/18"))
	require.Error(t, tab.WriteHeader(context.Background(), 8, "10/18"))
	require.Len(t, api.bodies, 1)
}

func TestLoadChunk(t *testing.T) {
	api := &fakeAPI{handlers: map[string]http.HandlerFunc{
		"GET /values:batchGet": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, []string{"'Daily'!C5:C7", "'Daily'!G5:G7"}, r.URL.Query()["ranges"])
			assert.Equal(t, "COLUMNS", r.URL.Query().Get("majorDimension"))
			writeJSON(w, map[string]any{"valueRanges": []any{
				map[string]any{"range": "Daily!C5:C7", "values": []any{[]any{"https://www.tiktok.com/@a/video/1", "", "https://www.tiktok.com/@a/video/3"}}},
				map[string]any{"range": "Daily!G5:G7", "values": []any{[]any{"120"}}},
			}})
		},
	}}
	client := newTestClient(t, api, retry.Policy{Timeout: 5 * time.Second})
	tab := NewTab(client, Sheet{ID: 777, Title: "Daily", RowCount: 7, ColumnCount: 8})

	data, err := tab.LoadChunk(context.Background(), batch.Span{Start: 4, End: 7}, 2, 6)
	require.NoError(t, err)
	require.Equal(t, []string{"https://www.tiktok.com/@a/video/1", "", "https://www.tiktok.com/@a/video/3"}, data.Sources)
	require.Equal(t, []string{"120"}, data.Previous)
}

func TestSaveChunkSendsSingleBatch(t *testing.T) {
	api := &fakeAPI{handlers: map[string]http.HandlerFunc{
		"POST :batchUpdate": func(w http.ResponseWriter, r *http.Request) { writeJSON(w, map[string]any{}) },
	}}
	client := newTestClient(t, api, retry.Policy{Timeout: 5 * time.Second})
	tab := NewTab(client, Sheet{ID: 777, Title: "Daily", RowCount: 254, ColumnCount: 8})

	require.NoError(t, tab.SaveChunk(context.Background(), batch.Span{Start: 104, End: 107}, 6, []int64{5, 0, 12345}))
	require.Len(t, api.bodies, 1)

	req := decodeBatchUpdate(t, api.bodies[0])
	require.Len(t, req.Requests, 1)
	uc := req.Requests[0].UpdateCells
	require.Equal(t, "userEnteredValue,userEnteredFormat.numberFormat", uc.Fields)
	require.Equal(t, int64(104), uc.Range.StartRowIndex)
	require.Equal(t, int64(107), uc.Range.EndRowIndex)
	require.Equal(t, int64(6), uc.Range.StartColumnIndex)
	require.Len(t, uc.Rows, 3)

	want := []float64{5, 0, 12345}
	for i, row := range uc.Rows {
		cell := row.Values[0]
		require.NotNil(t, cell.UserEnteredValue.NumberValue)
		require.Equal(t, want[i], *cell.UserEnteredValue.NumberValue)
		require.Equal(t, "NUMBER", cell.UserEnteredFormat.NumberFormat.Type)
		require.Equal(t, "0", cell.UserEnteredFormat.NumberFormat.Pattern)
	}
}

func TestStoreErrorsPropagate(t *testing.T) {
	api := &fakeAPI{handlers: map[string]http.HandlerFunc{
		"POST :batchUpdate": func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":{"code":503,"message":"backend unavailable"}}`))
		},
	}}
	client := newTestClient(t, api, retry.Policy{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Timeout: 5 * time.Second})
	tab := NewTab(client, Sheet{ID: 777, Title: "Daily", RowCount: 254, ColumnCount: 8})

	err := tab.SaveChunk(context.Background(), batch.Span{Start: 4, End: 5}, 6, []int64{1})
	require.Error(t, err)
	require.True(t, IsTransient(err))
	require.Len(t, api.bodies, 2)
}
