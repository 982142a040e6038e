package sword

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

// Messages surfaced to the user when the media phase cannot complete.
const (
	MsgNoFilesChosen  = "No files were chosen for media deposit. At least one file has to be chosen."
	MsgMediaErrors    = "There has been at least one error with the files chosen for media deposit."
	MsgTransportError = "The remote server could not be reached."
)

var httpClient = &http.Client{
	Timeout: 20 * time.Second,
}

// DocumentStore persists what the client learns from the remote side: the
// parsed service document and polled submission statuses.
type DocumentStore interface {
	SaveServiceDocument(ctx context.Context, serverID uint, doc []byte, updated time.Time) error
	SaveSubmissionStatus(ctx context.Context, serverID uint, statusURL, status string, checked time.Time) error
}

// MediaSource loads file content for media deposits by storage key.
type MediaSource interface {
	Fetch(ctx context.Context, key string) ([]byte, error)
}

// Client talks to one remote SWORD server. Protocol variations are delegated
// to the engine, persistence to the document store. Transport and HTTP
// errors during submission and status polling are captured into the returned
// response values, never propagated as errors.
type Client struct {
	settings *Settings
	engine   Engine
	store    DocumentStore
	media    MediaSource
	logger   *zap.Logger

	httpClient  *http.Client
	userAgent   string
	retryBase   time.Duration
	maxRetries  uint64
	retryJitter time.Duration
}

// Option adjusts client defaults.
type Option func(*Client)

// WithHTTPClient replaces the default outbound HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithUserAgent sets the User-Agent sent on outbound requests.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithRetryBase sets the initial backoff for transient-error retries.
// Tests use a small base to stay fast.
func WithRetryBase(d time.Duration) Option {
	return func(c *Client) { c.retryBase = d }
}

// NewClient builds a client for the given validated server settings.
func NewClient(settings *Settings, store DocumentStore, media MediaSource, logger *zap.Logger, opts ...Option) (*Client, error) {
	factory, ok := lookup(settings.Engine)
	if !ok {
		return nil, fmt.Errorf("unknown server engine %q", settings.Engine)
	}
	c := &Client{
		settings:    settings,
		engine:      factory(settings),
		store:       store,
		media:       media,
		logger:      logger,
		httpClient:  httpClient,
		userAgent:   "sword-client/1.0",
		retryBase:   500 * time.Millisecond,
		maxRetries:  3,
		retryJitter: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// EnsureFresh refreshes the service document when it is missing or stale.
// It reports whether a refresh happened.
func (c *Client) EnsureFresh(ctx context.Context) (bool, error) {
	if c.settings.ServiceDocument != nil && !c.settings.NeedsUpdate(time.Now()) {
		return false, nil
	}
	if err := c.Update(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Update fetches and parses the service document, then persists it together
// with a fresh timestamp. On transport failure nothing is mutated.
func (c *Client) Update(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, c.engine.ServiceDocumentURL(), nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetching service document: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading service document: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetching service document: unexpected status %d", resp.StatusCode)
	}

	doc, err := c.engine.ParseServiceDocument(body)
	if err != nil {
		return fmt.Errorf("parsing service document: %w", err)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding service document: %w", err)
	}
	now := time.Now()
	if err := c.store.SaveServiceDocument(ctx, c.settings.ServerID, raw, now); err != nil {
		return fmt.Errorf("persisting service document: %w", err)
	}
	c.settings.ServiceDocument = doc
	c.settings.LastUpdated = now
	return nil
}

// Collections returns the server's deposit collections keyed by URL.
func (c *Client) Collections() map[string]Collection {
	if c.settings.ServiceDocument == nil {
		return nil
	}
	return c.settings.ServiceDocument.Collections
}

// Collection looks up one collection by URL.
func (c *Client) Collection(url string) (Collection, bool) {
	col, ok := c.Collections()[url]
	return col, ok
}

// Categories returns a collection's categories grouped by obligation.
func (c *Client) Categories(collectionURL string) (Categories, error) {
	col, ok := c.Collection(collectionURL)
	if !ok {
		return Categories{}, fmt.Errorf("unknown collection %q", collectionURL)
	}
	return Categories{
		Mandatory: col.PrimaryCategories,
		Optional:  col.Categories,
	}, nil
}

// AcceptedFileTypes returns the sorted file extensions (with leading dot) a
// collection accepts, derived from its accepted MIME types.
func (c *Client) AcceptedFileTypes(collectionURL string) []string {
	col, ok := c.Collection(collectionURL)
	if !ok {
		return nil
	}
	seen := map[string]bool{}
	var exts []string
	for _, accept := range col.Accepts {
		for _, ext := range ExtensionsForMIME(accept) {
			if !seen[ext] {
				seen[ext] = true
				exts = append(exts, ext)
			}
		}
	}
	sort.Strings(exts)
	return exts
}

// MaxFileSize returns the server's upload size ceiling in bytes, zero
// meaning unlimited.
func (c *Client) MaxFileSize() int64 {
	if c.settings.ServiceDocument == nil {
		return 0
	}
	return c.settings.ServiceDocument.MaxUploadSize
}

// Submit runs the two-phase deposit against a collection: every selected
// file is deposited independently, collecting one result per file, then the
// metadata entry is ingested only if all of them succeeded.
func (c *Client) Submit(ctx context.Context, meta *Metadata, files []FileInfo, collectionURL string) Response {
	if len(files) == 0 {
		return Response{Error: true, Msg: MsgNoFilesChosen}
	}

	media := make([]MediaResult, 0, len(files))
	failed := false
	for i := range files {
		result := c.depositMedia(ctx, &files[i], meta, collectionURL)
		if result.Error {
			failed = true
		}
		media = append(media, result)
	}
	if failed {
		return Response{Error: true, Msg: MsgMediaErrors, Media: media}
	}

	return c.ingestMetadata(ctx, meta, media, collectionURL)
}

func (c *Client) depositMedia(ctx context.Context, file *FileInfo, meta *Metadata, collectionURL string) MediaResult {
	result := MediaResult{Index: file.Index, Name: file.Name, MIME: file.MIME}

	content, err := c.media.Fetch(ctx, file.Key)
	if err != nil {
		c.logger.Error("fetching media content failed",
			zap.String("key", file.Key), zap.Error(err))
		result.Error = true
		result.Msg = fmt.Sprintf("could not load file %s", file.Name)
		return result
	}

	status, body, err := c.post(ctx, collectionURL, content, func(h http.Header) {
		h.Set("Content-Type", file.MIME)
		c.engine.MediaHeaders(h, file, meta)
	})
	if err != nil {
		c.logger.Warn("media deposit failed",
			zap.String("file", file.Name), zap.Error(err))
		result.Error = true
		result.Msg = MsgTransportError
		return result
	}
	if status < 200 || status > 299 {
		result.Error = true
		result.Msg = c.engine.MediaError(status, body)
		return result
	}
	result.Msg = c.engine.MediaLink(body)
	return result
}

func (c *Client) ingestMetadata(ctx context.Context, meta *Metadata, media []MediaResult, collectionURL string) Response {
	entry, err := c.engine.MetadataEntry(meta, media)
	if err != nil {
		c.logger.Error("building metadata entry failed", zap.Error(err))
		return Response{Error: true, Msg: err.Error(), Media: media}
	}

	status, body, err := c.post(ctx, collectionURL, entry, func(h http.Header) {
		c.engine.MetadataHeaders(h, meta)
	})
	if err != nil {
		c.logger.Warn("metadata ingest failed", zap.Error(err))
		return Response{Error: true, Msg: MsgTransportError, Media: media}
	}
	if status < 200 || status > 299 {
		return Response{Error: true, Msg: c.engine.MetadataError(status, body), Media: media}
	}
	return Response{Links: c.engine.MetadataLinks(body), Media: media}
}

// Status polls a submission's status URL, persists the humanized status and
// returns the parsed provider payload.
func (c *Client) Status(ctx context.Context, statusURL string) StatusResponse {
	req, err := c.newRequest(ctx, http.MethodGet, statusURL, nil)
	if err != nil {
		return StatusResponse{Error: true, Msg: err.Error()}
	}
	c.engine.StatusHeaders(req.Header)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("status poll failed", zap.String("url", statusURL), zap.Error(err))
		return StatusResponse{Error: true, Msg: MsgTransportError}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return StatusResponse{Error: true, Msg: MsgTransportError}
	}
	if resp.StatusCode != http.StatusOK {
		return StatusResponse{Error: true, Msg: fmt.Sprintf("unexpected status %d", resp.StatusCode)}
	}

	info := c.engine.ParseStatus(body)
	if err := c.store.SaveSubmissionStatus(ctx, c.settings.ServerID, statusURL, info.Humanize(), time.Now()); err != nil {
		c.logger.Error("persisting submission status failed",
			zap.String("url", statusURL), zap.Error(err))
	}
	return StatusResponse{Status: info}
}

// post sends an authenticated POST, retrying on network errors and on
// 429/5xx responses with exponential backoff and jitter.
func (c *Client) post(ctx context.Context, url string, payload []byte, headers func(http.Header)) (int, []byte, error) {
	var (
		statusCode int
		body       []byte
	)
	backoff := retry.WithMaxRetries(c.maxRetries,
		retry.WithJitter(c.retryJitter, retry.NewExponential(c.retryBase)))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		statusCode, body = 0, nil
		req, err := c.newRequest(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.ContentLength = int64(len(payload))
		headers(req.Header)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()
		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return retry.RetryableError(err)
		}
		statusCode = resp.StatusCode
		if statusCode == http.StatusTooManyRequests || statusCode >= 500 {
			return retry.RetryableError(fmt.Errorf("remote returned status %d", statusCode))
		}
		return nil
	})
	if err != nil && statusCode != 0 {
		// Retries exhausted on an HTTP error: report the last response.
		return statusCode, body, nil
	}
	return statusCode, body, err
}

func (c *Client) newRequest(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.SetBasicAuth(c.settings.Username, c.settings.Password)
	req.Header.Set("User-Agent", c.userAgent)
	return req, nil
}
