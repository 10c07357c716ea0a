// Package huggingface downloads dataset shards published by the Hugging Face
// datasets-server as parquet files.
package huggingface

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Client defaults.
const (
	DefaultServerURL     = "https://datasets-server.huggingface.co"
	DefaultMaxRetries    = 5
	DefaultRetryInterval = time.Second

	defaultConfigName = "default"
	progressInterval  = 5 * time.Second
	maxErrorBody      = 1024
)

// ParquetFile describes one parquet shard of a dataset split.
type ParquetFile struct {
	Dataset  string `json:"dataset"`
	Config   string `json:"config"`
	Split    string `json:"split"`
	URL      string `json:"url"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

// Config holds client parameters.
type Config struct {
	ServerURL string
	Token     string // optional, for gated datasets

	HTTPClient    *http.Client
	MaxRetries    int
	RetryInterval time.Duration

	Logger        *zap.Logger
	DownloadBytes prometheus.Counter // optional
}

// Client talks to the datasets-server API and downloads shards with resume support.
type Client struct {
	serverURL     string
	token         string
	http          *http.Client
	maxRetries    int
	retryInterval time.Duration
	logger        *zap.Logger
	downloadBytes prometheus.Counter
}

// NewClient creates a datasets-server client.
func NewClient(cfg Config) *Client {
	if cfg.ServerURL == "" {
		cfg.ServerURL = DefaultServerURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Minute}
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = DefaultRetryInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Client{
		serverURL:     strings.TrimRight(cfg.ServerURL, "/"),
		token:         cfg.Token,
		http:          cfg.HTTPClient,
		maxRetries:    cfg.MaxRetries,
		retryInterval: cfg.RetryInterval,
		logger:        cfg.Logger,
		downloadBytes: cfg.DownloadBytes,
	}
}

// StatusError is a non-2xx answer from the datasets-server or the file host.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

type parquetResponse struct {
	ParquetFiles []ParquetFile `json:"parquet_files"`
}

// ListParquetFiles returns the shards of one split, sorted by filename.
// An empty config selects "default" when the dataset has it, otherwise the first config listed.
func (c *Client) ListParquetFiles(ctx context.Context, dataset, config, split string) ([]ParquetFile, error) {
	endpoint := c.serverURL + "/parquet?" + url.Values{"dataset": {dataset}}.Encode()

	var parsed parquetResponse
	err := c.retry(ctx, "list parquet files", func() error {
		resp, err := c.get(ctx, endpoint, 0)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		if err := checkStatus(resp); err != nil {
			return err
		}
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return backoff.Permanent(fmt.Errorf("parse response: %w", err))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list parquet files of %s: %w", dataset, err)
	}

	if config == "" {
		config = pickConfig(parsed.ParquetFiles)
	}

	var files []ParquetFile
	for _, f := range parsed.ParquetFiles {
		if f.Config == config && f.Split == split {
			files = append(files, f)
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no parquet files for %s (config %q, split %q)", dataset, config, split)
	}

	sort.SliceStable(files, func(i, j int) bool { return files[i].Filename < files[j].Filename })
	return files, nil
}

func pickConfig(files []ParquetFile) string {
	for _, f := range files {
		if f.Config == defaultConfigName {
			return defaultConfigName
		}
	}
	if len(files) > 0 {
		return files[0].Config
	}
	return ""
}

// LocalPath returns where Download stores file under dir.
func LocalPath(dir string, file ParquetFile) string {
	name := file.Filename
	if name == "" {
		name = filepath.Base(file.URL)
	}
	return filepath.Join(dir, file.Config, file.Split, name)
}

// Download stores file under dir and returns its local path.
// A file already present with the expected size is reused; a partial .tmp download is resumed.
func (c *Client) Download(ctx context.Context, file ParquetFile, dir string) (string, error) {
	outPath := filepath.Clean(LocalPath(dir, file))
	name := filepath.Base(outPath)

	if st, err := os.Stat(outPath); err == nil && file.Size > 0 && st.Size() == file.Size {
		c.logger.Info("Already downloaded",
			zap.String("file", name),
			zap.String("size", humanize.Bytes(uint64(st.Size()))))
		return outPath, nil
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o750); err != nil {
		return "", fmt.Errorf("mkdir: %w", err)
	}

	err := c.retry(ctx, "download "+name, func() error {
		return c.downloadOnce(ctx, file, outPath)
	})
	if err != nil {
		return "", fmt.Errorf("download %s: %w", name, err)
	}
	return outPath, nil
}

func (c *Client) downloadOnce(ctx context.Context, file ParquetFile, outPath string) error {
	tmpPath := outPath + ".tmp"

	var offset int64
	if st, err := os.Stat(tmpPath); err == nil {
		offset = st.Size()
	}

	resp, err := c.get(ctx, file.URL, offset)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusRequestedRangeNotSatisfiable {
		// Stale partial file; start over.
		_ = os.Remove(tmpPath)
		return &StatusError{StatusCode: resp.StatusCode}
	}
	if err := checkStatus(resp); err != nil {
		return err
	}

	flags := os.O_WRONLY | os.O_CREATE
	if resp.StatusCode == http.StatusPartialContent {
		flags |= os.O_APPEND
		c.logger.Info("Resuming download",
			zap.String("file", filepath.Base(outPath)),
			zap.String("from", humanize.Bytes(uint64(offset))))
	} else {
		flags |= os.O_TRUNC
		offset = 0
	}

	f, err := os.OpenFile(tmpPath, flags, 0o600)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("open tmp: %w", err))
	}

	total := int64(-1)
	if resp.ContentLength >= 0 {
		total = resp.ContentLength + offset
	}
	written, err := io.Copy(f, &progressReader{
		reader:  resp.Body,
		total:   total,
		current: offset,
		name:    filepath.Base(outPath),
		logger:  c.logger,
		counter: c.downloadBytes,
		lastLog: time.Now(),
	})
	if closeErr := f.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("write: %w", err)
	}

	size := offset + written
	if file.Size > 0 && size != file.Size {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("size mismatch: got %d bytes, expected %d", size, file.Size)
	}

	if err := os.Rename(tmpPath, outPath); err != nil {
		return backoff.Permanent(fmt.Errorf("rename: %w", err))
	}

	c.logger.Info("Downloaded",
		zap.String("file", filepath.Base(outPath)),
		zap.String("size", humanize.Bytes(uint64(size))))
	return nil
}

func (c *Client) get(ctx context.Context, rawURL string, offset int64) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("new request: %w", err))
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		return nil, fmt.Errorf("request: %w", err)
	}
	return resp, nil
}

// checkStatus converts non-2xx responses to errors. 4xx answers, except 408 and 429, are not retried.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	err := &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	if resp.StatusCode >= 400 && resp.StatusCode < 500 &&
		resp.StatusCode != http.StatusRequestTimeout &&
		resp.StatusCode != http.StatusTooManyRequests {
		return backoff.Permanent(err)
	}
	return err
}

// retry runs op with exponential backoff until it succeeds, fails permanently,
// runs out of attempts or ctx is done.
func (c *Client) retry(ctx context.Context, what string, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retryInterval
	bo.MaxInterval = 30 * c.retryInterval
	bo.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(c.maxRetries)), ctx)
	notify := func(err error, wait time.Duration) {
		c.logger.Warn("Retrying",
			zap.String("op", what),
			zap.Duration("wait", wait),
			zap.Error(err))
	}

	err := backoff.RetryNotify(op, policy, notify)
	if err != nil && ctx.Err() != nil && !errors.Is(err, ctx.Err()) {
		return fmt.Errorf("%w: %w", ctx.Err(), err)
	}
	return err
}

// progressReader logs download progress and counts bytes.
type progressReader struct {
	reader  io.Reader
	total   int64 // -1 when unknown
	current int64
	name    string
	logger  *zap.Logger
	counter prometheus.Counter
	lastLog time.Time
}

// Read passes errors through unchanged; io.Copy relies on a bare io.EOF.
func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	pr.current += int64(n)

	if pr.counter != nil && n > 0 {
		pr.counter.Add(float64(n))
	}

	if time.Since(pr.lastLog) > progressInterval {
		pr.lastLog = time.Now()
		fields := []zap.Field{
			zap.String("file", pr.name),
			zap.String("done", humanize.Bytes(uint64(pr.current))),
		}
		if pr.total > 0 {
			fields = append(fields,
				zap.String("total", humanize.Bytes(uint64(pr.total))),
				zap.String("progress", fmt.Sprintf("%.1f%%", float64(pr.current)/float64(pr.total)*100)))
		}
		pr.logger.Info("Downloading", fields...)
	}

	return n, err //nolint:wrapcheck // io.Copy expects io.EOF unwrapped
}
