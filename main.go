package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"playcount_snapshot/internal/app"
	"playcount_snapshot/internal/config"
	"playcount_snapshot/internal/sheets"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type flagValues struct {
	spreadsheetID string
	sheetName     string
	sourceColumn  string
	chunkSize     int
	extractor     string
	sheetsRetries int
	notify        bool
}

func newRootCmd() *cobra.Command {
	var flags flagValues

	cmd := &cobra.Command{
		Use:   "playcount-snapshot",
		Short: "Record today's TikTok play counts into a new dated sheet column.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to read configuration")
			}
			applyFlags(cmd, &cfg, flags)
			if err := cfg.Validate(); err != nil {
				log.Fatal().Err(err).Msg("Invalid configuration")
			}
			run(cmd.Context(), cfg)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.spreadsheetID, "spreadsheet-id", "", "spreadsheet id (SPREADSHEET_ID)")
	f.StringVar(&flags.sheetName, "sheet", "", "tab title, first tab when empty (SHEET_NAME)")
	f.StringVar(&flags.sourceColumn, "source-column", "", "column letter holding video URLs (SOURCE_COLUMN)")
	f.IntVar(&flags.chunkSize, "chunk-size", 0, "rows per chunk (CHUNK_SIZE)")
	f.StringVar(&flags.extractor, "extractor", "", "play count extractor: regex or script (METRIC_EXTRACTOR)")
	f.IntVar(&flags.sheetsRetries, "sheets-retries", 0, "extra attempts for spreadsheet calls (SHEETS_MAX_RETRIES)")
	f.BoolVar(&flags.notify, "notify", false, "send a run summary to ntfy (NTFY_ENABLED)")
	return cmd
}

// applyFlags copies explicitly set flags over the environment values.
func applyFlags(cmd *cobra.Command, cfg *config.Config, flags flagValues) {
	changed := cmd.Flags().Changed
	if changed("spreadsheet-id") {
		cfg.SpreadsheetID = flags.spreadsheetID
	}
	if changed("sheet") {
		cfg.SheetName = flags.sheetName
	}
	if changed("source-column") {
		cfg.SourceColumn = flags.sourceColumn
	}
	if changed("chunk-size") {
		cfg.ChunkSize = flags.chunkSize
	}
	if changed("extractor") {
		cfg.MetricExtractor = flags.extractor
	}
	if changed("sheets-retries") {
		cfg.SheetsMaxRetries = flags.sheetsRetries
	}
	if changed("notify") {
		cfg.NtfyEnabled = flags.notify
	}
}

func run(ctx context.Context, cfg config.Config) {
	sheetsClient, fetcher, notifier, err := app.InitializeClients(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize clients")
	}

	sheet, res, err := app.Execute(ctx, cfg, sheetsClient, fetcher)
	column := ""
	if res.Decision.Column > 0 {
		column = sheets.ColumnLetter(res.Decision.Column)
	}
	notifier.NotifyRun(ctx, sheet.Title, column, res.Summary, err)
	if err != nil {
		log.Fatal().Err(err).
			Str("sheet", sheet.Title).
			Str("column", column).
			Int("chunks_saved", res.Summary.Chunks).
			Msg("Snapshot failed")
	}
}

func main() {
	app.SetupEnvironment()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("Command failed")
		stop()
		os.Exit(1)
	}
}
