package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"playcount_snapshot/internal/batch"
	"playcount_snapshot/internal/metric"
	"playcount_snapshot/internal/sheets"
)

var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	SpreadsheetID string
	SheetName     string
	SourceColumn  string

	CredentialsB64  string
	CredentialsFile string

	ChunkSize       int
	FetchTimeout    time.Duration
	FetchMaxBytes   int64
	UserAgent       string
	MetricExtractor string

	SheetsMaxRetries int
	SheetsTimeout    time.Duration

	NtfyEnabled bool
	NtfyURL     string
	NtfyTopic   string
}

// Load reads the configuration through getenv. Missing optional values get
// their defaults; malformed values are reported together.
func Load(getenv func(string) string) (Config, error) {
	p := parser{getenv: getenv}

	cfg := Config{
		SpreadsheetID:    p.str("SPREADSHEET_ID", ""),
		SheetName:        p.str("SHEET_NAME", ""),
		SourceColumn:     strings.ToUpper(p.str("SOURCE_COLUMN", "C")),
		CredentialsB64:   p.str("GOOGLE_SERVICE_ACCOUNT_B64", ""),
		CredentialsFile:  p.str("CREDENTIALS_FILE", "credentials.json"),
		ChunkSize:        p.int("CHUNK_SIZE", batch.DefaultChunkSize),
		FetchTimeout:     p.duration("FETCH_TIMEOUT", metric.DefaultTimeout),
		FetchMaxBytes:    int64(p.int("FETCH_MAX_BYTES", metric.DefaultMaxBytes)),
		UserAgent:        p.str("USER_AGENT", metric.DefaultUserAgent),
		MetricExtractor:  p.str("METRIC_EXTRACTOR", "regex"),
		SheetsMaxRetries: p.int("SHEETS_MAX_RETRIES", DefaultSheetsPolicy.MaxRetries),
		SheetsTimeout:    p.duration("SHEETS_TIMEOUT", DefaultSheetsPolicy.Timeout),
		NtfyEnabled:      p.str("NTFY_ENABLED", "false") == "true",
		NtfyURL:          p.str("NTFY_URL", "https://ntfy.sh"),
		NtfyTopic:        p.str("NTFY_TOPIC", "playcount-snapshot"),
	}

	if len(p.problems) > 0 {
		return cfg, fmt.Errorf("%w: %s", ErrInvalid, strings.Join(p.problems, "; "))
	}
	return cfg, nil
}

// FromEnv is Load over the process environment.
func FromEnv() (Config, error) {
	return Load(os.Getenv)
}

// Validate checks the fields that flags may have overridden after Load.
func (c Config) Validate() error {
	var problems []string
	if c.SpreadsheetID == "" {
		problems = append(problems, "SPREADSHEET_ID is required")
	}
	if _, err := sheets.ColumnIndex(c.SourceColumn); err != nil {
		problems = append(problems, fmt.Sprintf("SOURCE_COLUMN: %v", err))
	}
	if c.ChunkSize <= 0 {
		problems = append(problems, "CHUNK_SIZE must be positive")
	}
	if c.FetchTimeout <= 0 {
		problems = append(problems, "FETCH_TIMEOUT must be positive")
	}
	if c.FetchMaxBytes <= 0 {
		problems = append(problems, "FETCH_MAX_BYTES must be positive")
	}
	if c.SheetsMaxRetries < 0 {
		problems = append(problems, "SHEETS_MAX_RETRIES must not be negative")
	}
	if _, ok := metric.NewExtractor(c.MetricExtractor); !ok {
		problems = append(problems, fmt.Sprintf("METRIC_EXTRACTOR %q is not one of regex, script", c.MetricExtractor))
	}
	if c.CredentialsB64 == "" && c.CredentialsFile == "" {
		problems = append(problems, "GOOGLE_SERVICE_ACCOUNT_B64 or CREDENTIALS_FILE is required")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// SourceColumnIndex is the zero-based index of SourceColumn. Call Validate
// first.
func (c Config) SourceColumnIndex() int {
	idx, _ := sheets.ColumnIndex(c.SourceColumn)
	return idx
}

type parser struct {
	getenv   func(string) string
	problems []string
}

func (p *parser) str(key, def string) string {
	if v := strings.TrimSpace(p.getenv(key)); v != "" {
		return v
	}
	return def
}

func (p *parser) int(key string, def int) int {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.problems = append(p.problems, fmt.Sprintf("%s: %q is not an integer", key, v))
		return def
	}
	return n
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.problems = append(p.problems, fmt.Sprintf("%s: %q is not a duration", key, v))
		return def
	}
	return d
}
