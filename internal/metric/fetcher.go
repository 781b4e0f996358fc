package metric

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

const (
	DefaultTimeout  = 15 * time.Second
	DefaultMaxBytes = 20 * 1024 * 1024
)

const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Eligible reports whether a source cell holds a URL worth fetching. Rows
// that fail this check are recorded as zero without any request.
func Eligible(url string) bool {
	u := strings.TrimSpace(url)
	return u != "" && strings.HasPrefix(u, "http") && strings.Contains(u, "tiktok.com")
}

type Options struct {
	UserAgent string
	Timeout   time.Duration
	MaxBytes  int64
	Extractor Extractor
}

type Fetcher struct {
	http      *resty.Client
	maxBytes  int64
	extractor Extractor
}

func NewFetcher(opts Options) *Fetcher {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	if opts.Extractor == nil {
		opts.Extractor = RegexExtractor{}
	}

	client := resty.New().
		SetTimeout(opts.Timeout).
		SetHeader("User-Agent", opts.UserAgent).
		SetLogger(restyLogger{})

	return &Fetcher{
		http:      client,
		maxBytes:  opts.MaxBytes,
		extractor: opts.Extractor,
	}
}

// Fetch returns the play count for url, or 0 on any failure. Failures are
// logged and never returned.
func (f *Fetcher) Fetch(ctx context.Context, url string) int64 {
	body, err := f.get(ctx, url)
	if err != nil {
		log.Warn().Err(err).Str("url", url).Msg("Failed to fetch post page")
		return 0
	}

	count, ok := f.extractor.Extract(body)
	if !ok {
		log.Warn().Str("url", url).Int("body_bytes", len(body)).Msg("playCount not found in page")
		return 0
	}

	log.Debug().Str("url", url).Int64("play_count", count).Msg("Extracted play count")
	return count
}

func (f *Fetcher) get(ctx context.Context, url string) (string, error) {
	resp, err := f.http.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(url)
	if err != nil {
		return "", fmt.Errorf("failed to make request: %w", err)
	}
	raw := resp.RawBody()
	if raw == nil {
		return "", fmt.Errorf("empty response body")
	}
	defer raw.Close()

	if !resp.IsSuccess() {
		return "", fmt.Errorf("request failed with status %d", resp.StatusCode())
	}

	data, err := io.ReadAll(io.LimitReader(raw, f.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("failed to read body: %w", err)
	}
	if int64(len(data)) > f.maxBytes {
		return "", fmt.Errorf("response body exceeds %d bytes", f.maxBytes)
	}
	return string(data), nil
}

// restyLogger routes resty's internal messages into zerolog.
type restyLogger struct{}

func (restyLogger) Errorf(format string, v ...interface{}) {
	log.Error().Str("component", "resty").Msgf(format, v...)
}

func (restyLogger) Warnf(format string, v ...interface{}) {
	log.Warn().Str("component", "resty").Msgf(format, v...)
}

func (restyLogger) Debugf(format string, v ...interface{}) {
	log.Debug().Str("component", "resty").Msgf(format, v...)
}
