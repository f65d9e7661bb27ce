// Package metadata fetches the descriptive record of an archive from the
// archive API and persists it for the notebook renderer.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/davidahmann/archiveprep/core/archiveurl"
	coreerrors "github.com/davidahmann/archiveprep/core/errors"
	"github.com/davidahmann/archiveprep/core/logging"
	schemaarchive "github.com/davidahmann/archiveprep/core/schema/v1/archive"
)

const (
	DefaultProfile = "aiida-renku"
	DefaultTimeout = 30 * time.Second

	metadataSchemaID      = "archiveprep.archive.metadata"
	metadataSchemaVersion = "1.0.0"

	fileTypeArchive = "aiida_archive"
	fileTypeOther   = "other"

	maxResponseBytes = 5 * 1024 * 1024
)

type FetchOptions struct {
	Reference        archiveurl.Reference
	Normalizer       *archiveurl.Normalizer
	HTTPClient       *http.Client
	Timeout          time.Duration
	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
	// Profile overrides the AiiDA profile name derived from the filename.
	Profile         string
	Now             func() time.Time
	ProducerVersion string
	Logger          *slog.Logger
}

type fetchStatusError struct {
	statusCode int
}

func (e fetchStatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.statusCode)
}

func (e fetchStatusError) StatusCode() int {
	return e.statusCode
}

// FromReference builds the metadata that is known without asking the archive
// API. Fetch starts from it, and callers fall back to it when the API is down.
func FromReference(reference archiveurl.Reference, opts FetchOptions) schemaarchive.Metadata {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	producerVersion := strings.TrimSpace(opts.ProducerVersion)
	if producerVersion == "" {
		producerVersion = "0.0.0-dev"
	}
	return schemaarchive.Metadata{
		SchemaID:        metadataSchemaID,
		SchemaVersion:   metadataSchemaVersion,
		CreatedAt:       now().UTC(),
		ProducerVersion: producerVersion,
		RecordID:        reference.RecordID,
		MCAEntry:        reference.RecordID,
		ArchiveFilename: reference.Filename,
		ArchiveURL:      reference.CanonicalURL,
		AiidaProfile:    profileName(opts.Profile, reference.Filename, normalizerOrDefault(opts.Normalizer).Extension()),
	}
}

// Fetch reads the record behind reference from the archive API. Transient
// failures (429, 502, 503, 504, timeouts, reset connections) are retried.
func Fetch(ctx context.Context, opts FetchOptions) (schemaarchive.Metadata, error) {
	reference := opts.Reference
	if strings.TrimSpace(reference.RecordID) == "" {
		return schemaarchive.Metadata{}, coreerrors.Newf(coreerrors.CategoryInvalidInput, "archive_record_id_required", "metadata can only be fetched for links on the configured archive host", "archive link %q does not name a record", reference.CanonicalURL)
	}
	normalizer := normalizerOrDefault(opts.Normalizer)
	logger := logging.OrDiscard(opts.Logger)
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	endpoint := normalizer.APIRecordURL(reference.RecordID)
	logger.Debug("fetching archive metadata", "endpoint", endpoint)
	raw, err := fetchWithRetry(ctx, endpoint, client, opts.RetryMaxAttempts, opts.RetryBaseDelay, logger)
	if err != nil {
		return schemaarchive.Metadata{}, classifyFetchError(err, endpoint)
	}
	if !gjson.ValidBytes(raw) {
		return schemaarchive.Metadata{}, coreerrors.Newf(coreerrors.CategoryNetworkPermanent, "archive_response_invalid", "", "archive API returned invalid JSON for record %s", reference.RecordID)
	}

	metadata := FromReference(reference, opts)
	applyRecord(&metadata, raw, normalizer.Extension())
	metadata.Fetched = true
	logger.Info("archive metadata fetched", "record_id", metadata.RecordID, "title", metadata.Title, "files", len(metadata.Files))
	return metadata, nil
}

func applyRecord(metadata *schemaarchive.Metadata, raw []byte, extension string) {
	metadata.Title = gjson.GetBytes(raw, "metadata.title").String()
	metadata.RecordCreated = gjson.GetBytes(raw, "created").String()

	doi := gjson.GetBytes(raw, `metadata.identifiers.#(scheme=="doi").identifier`).String()
	if doi == "" {
		doi = gjson.GetBytes(raw, "pids.doi.identifier").String()
	}
	metadata.DOI = doi
	if doi != "" {
		metadata.DOIURL = "https://doi.org/" + doi
	}

	files := []schemaarchive.File{}
	gjson.GetBytes(raw, "files.entries").ForEach(func(key, value gjson.Result) bool {
		filename := key.String()
		if filename == "" {
			return true
		}
		entry := schemaarchive.File{
			Filename: filename,
			Checksum: value.Get("checksum").String(),
			Type:     fileTypeOther,
		}
		if size := value.Get("size").Int(); size > 0 {
			entry.Size = size
		}
		if strings.HasSuffix(strings.ToLower(filename), extension) {
			entry.Type = fileTypeArchive
		}
		files = append(files, entry)
		return true
	})
	if len(files) > 0 {
		metadata.Files = files
	}
}

// ArchiveFiles lists the entries of the record that are loadable archives.
func ArchiveFiles(metadata schemaarchive.Metadata) []schemaarchive.File {
	out := make([]schemaarchive.File, 0, len(metadata.Files))
	for _, file := range metadata.Files {
		if file.Type == fileTypeArchive {
			out = append(out, file)
		}
	}
	return out
}

func profileName(override, filename, extension string) string {
	if trimmed := strings.TrimSpace(override); trimmed != "" {
		return trimmed
	}
	base := filename
	if strings.HasSuffix(strings.ToLower(base), extension) {
		base = base[:len(base)-len(extension)]
	}
	if strings.TrimSpace(base) == "" {
		return DefaultProfile
	}
	return base
}

func normalizerOrDefault(normalizer *archiveurl.Normalizer) *archiveurl.Normalizer {
	if normalizer == nil {
		return archiveurl.New(archiveurl.Options{})
	}
	return normalizer
}

func fetchWithRetry(ctx context.Context, endpoint string, client *http.Client, maxAttempts int, baseDelay time.Duration, logger *slog.Logger) ([]byte, error) {
	attempts := maxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	delay := baseDelay
	if delay <= 0 {
		delay = 200 * time.Millisecond
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		payload, err := fetchOnce(ctx, endpoint, client)
		if err == nil {
			return payload, nil
		}
		lastErr = err
		if !isTransientFetchError(err) || attempt == attempts {
			break
		}
		sleepFor := retryDelay(delay, attempt)
		logger.Debug("retrying archive metadata fetch", "attempt", attempt, "delay", sleepFor, "error", err)
		timer := time.NewTimer(sleepFor)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("fetch archive metadata: %w", ctx.Err())
		case <-timer.C:
		}
	}
	return nil, fmt.Errorf("fetch archive metadata: %w", lastErr)
}

func fetchOnce(ctx context.Context, endpoint string, client *http.Client) ([]byte, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build metadata request: %w", err)
	}
	request.Header.Set("Accept", "application/json")
	// #nosec G107 -- endpoint is built from the configured archive host.
	response, err := client.Do(request)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = response.Body.Close()
	}()
	if response.StatusCode != http.StatusOK {
		return nil, fetchStatusError{statusCode: response.StatusCode}
	}
	raw, err := ioReadAllLimit(response.Body, maxResponseBytes)
	if err != nil {
		return nil, fmt.Errorf("read metadata response: %w", err)
	}
	return raw, nil
}

func isTransientFetchError(err error) bool {
	var statusErr fetchStatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode() {
		case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		default:
			return false
		}
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	errText := strings.ToLower(err.Error())
	return strings.Contains(errText, "connection reset") ||
		strings.Contains(errText, "connection refused") ||
		strings.Contains(errText, "unexpected eof")
}

func classifyFetchError(err error, endpoint string) error {
	hint := "check network access to " + endpoint
	var statusErr fetchStatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode() == http.StatusNotFound:
			return coreerrors.Wrap(err, coreerrors.CategoryNetworkPermanent, "archive_record_not_found", "the record does not exist or is not public", false)
		case isTransientFetchError(err):
			return coreerrors.Wrap(err, coreerrors.CategoryNetworkTransient, "archive_api_unavailable", "retry later; "+hint, true)
		default:
			return coreerrors.Wrap(err, coreerrors.CategoryNetworkPermanent, "archive_api_rejected", hint, false)
		}
	}
	if isTransientFetchError(err) || errors.Is(err, context.DeadlineExceeded) {
		return coreerrors.Wrap(err, coreerrors.CategoryNetworkTransient, "archive_api_unreachable", hint, true)
	}
	return coreerrors.Wrap(err, coreerrors.CategoryNetworkPermanent, "archive_api_failed", hint, false)
}

func retryDelay(baseDelay time.Duration, attempt int) time.Duration {
	if attempt <= 0 {
		return baseDelay
	}
	backoff := baseDelay << (attempt - 1)
	jitter := time.Duration(attempt) * 25 * time.Millisecond
	if jitter > 100*time.Millisecond {
		jitter = 100 * time.Millisecond
	}
	return backoff + jitter
}

func ioReadAllLimit(reader io.Reader, maxBytes int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(reader, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("payload too large")
	}
	return data, nil
}
