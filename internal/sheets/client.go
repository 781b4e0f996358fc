package sheets

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"playcount_snapshot/internal/retry"

	"github.com/rs/zerolog/log"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

var ErrSheetNotFound = errors.New("sheet not found")

type Client struct {
	service       *sheets.Service
	spreadsheetID string
	policy        retry.Policy
}

// Sheet is the subset of tab properties the job needs.
type Sheet struct {
	ID          int64
	Title       string
	RowCount    int
	ColumnCount int
}

func NewClient(ctx context.Context, spreadsheetID string, policy retry.Policy, opts ...option.ClientOption) (*Client, error) {
	opts = append([]option.ClientOption{option.WithScopes(sheets.SpreadsheetsScope)}, opts...)
	service, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}
	if policy.Retryable == nil {
		policy.Retryable = IsTransient
	}

	return &Client{
		service:       service,
		spreadsheetID: spreadsheetID,
		policy:        policy,
	}, nil
}

// CredentialsOption prefers a base64 encoded service-account blob and falls
// back to a credentials file on disk.
func CredentialsOption(encoded, file string) (option.ClientOption, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		if file == "" {
			return nil, fmt.Errorf("no service account credentials configured")
		}
		log.Debug().Str("file", file).Msg("Using credentials file")
		return option.WithCredentialsFile(file), nil
	}

	blob, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode service account credentials: %w", err)
	}
	log.Debug().Int("bytes", len(blob)).Msg("Using service account credentials from environment")
	return option.WithCredentialsJSON(blob), nil
}

// IsTransient reports whether a Sheets API error is worth retrying.
func IsTransient(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500
	}
	return false
}

// OpenSheet looks a tab up by title. An empty title selects the first tab.
func (c *Client) OpenSheet(ctx context.Context, title string) (Sheet, error) {
	resp, err := retry.Do(ctx, c.policy, "get spreadsheet", func(ctx context.Context) (*sheets.Spreadsheet, error) {
		return c.service.Spreadsheets.Get(c.spreadsheetID).
			Fields("sheets.properties(sheetId,title,index,gridProperties(rowCount,columnCount))").
			Context(ctx).
			Do()
	})
	if err != nil {
		return Sheet{}, fmt.Errorf("failed to read spreadsheet: %w", err)
	}

	for _, s := range resp.Sheets {
		if s.Properties == nil {
			continue
		}
		if title != "" && s.Properties.Title != title {
			continue
		}
		sheet := Sheet{ID: s.Properties.SheetId, Title: s.Properties.Title}
		if gp := s.Properties.GridProperties; gp != nil {
			sheet.RowCount = int(gp.RowCount)
			sheet.ColumnCount = int(gp.ColumnCount)
		}
		log.Debug().
			Str("title", sheet.Title).
			Int64("sheet_id", sheet.ID).
			Int("rows", sheet.RowCount).
			Int("columns", sheet.ColumnCount).
			Msg("Opened sheet")
		return sheet, nil
	}

	if title == "" {
		return Sheet{}, fmt.Errorf("%w: spreadsheet has no tabs", ErrSheetNotFound)
	}
	return Sheet{}, fmt.Errorf("%w: %q", ErrSheetNotFound, title)
}

func (c *Client) batchUpdate(ctx context.Context, name string, requests ...*sheets.Request) error {
	return retry.Run(ctx, c.policy, name, func(ctx context.Context) error {
		_, err := c.service.Spreadsheets.BatchUpdate(c.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
			Requests: requests,
		}).Context(ctx).Do()
		return err
	})
}
