package app

import (
	"context"
	"fmt"

	"playcount_snapshot/internal/config"
	"playcount_snapshot/internal/metric"
	"playcount_snapshot/internal/notifications"
	"playcount_snapshot/internal/sheets"

	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
)

// InitializeClients builds the Sheets client, the metric fetcher and the
// notification client from cfg.
func InitializeClients(ctx context.Context, cfg config.Config, opts ...option.ClientOption) (*sheets.Client, *metric.Fetcher, *notifications.Client, error) {
	log.Debug().Msg("Initializing clients")

	if len(opts) == 0 {
		creds, err := sheets.CredentialsOption(cfg.CredentialsB64, cfg.CredentialsFile)
		if err != nil {
			return nil, nil, nil, err
		}
		opts = append(opts, creds)
	}

	sheetsClient, err := sheets.NewClient(ctx, cfg.SpreadsheetID, cfg.SheetsPolicy(), opts...)
	if err != nil {
		return nil, nil, nil, err
	}

	extractor, ok := metric.NewExtractor(cfg.MetricExtractor)
	if !ok {
		return nil, nil, nil, fmt.Errorf("%w: unknown extractor %q", config.ErrInvalid, cfg.MetricExtractor)
	}
	fetcher := metric.NewFetcher(metric.Options{
		UserAgent: cfg.UserAgent,
		Timeout:   cfg.FetchTimeout,
		MaxBytes:  cfg.FetchMaxBytes,
		Extractor: extractor,
	})

	notifier := notifications.NewClient(cfg.NtfyURL, cfg.NtfyTopic, cfg.NtfyEnabled, config.NotificationPolicy)
	if cfg.NtfyEnabled {
		log.Info().Str("topic", cfg.NtfyTopic).Msg("Notifications enabled")
	}

	log.Debug().Msg("Clients initialized successfully")
	return sheetsClient, fetcher, notifier, nil
}

// Execute opens the configured tab and runs the snapshot. The returned
// Result is partial when err is non-nil.
func Execute(ctx context.Context, cfg config.Config, sheetsClient *sheets.Client, fetcher *metric.Fetcher) (sheets.Sheet, Result, error) {
	sheet, err := sheetsClient.OpenSheet(ctx, cfg.SheetName)
	if err != nil {
		return sheets.Sheet{}, Result{}, err
	}

	tab := sheets.NewTab(sheetsClient, sheet)
	res, err := Snapshot{
		Headers:      tab,
		Rows:         tab,
		Fetcher:      fetcher,
		RowCount:     sheet.RowCount,
		SourceColumn: cfg.SourceColumnIndex(),
		ChunkSize:    cfg.ChunkSize,
	}.Run(ctx)
	return sheet, res, err
}
