package fetch

// Package fetch talks to the uniprot.org REST endpoints: batch metadata
// retrieval in the flat-text format and identifier mapping between accession
// schemes. Responses are cached per batch as opaque raw-text snapshots with
// a JSON id-list sidecar used only to decide cache reuse.

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// httpClient performs requests; tests may replace it with a mock transport.
var httpClient = &http.Client{Timeout: 60 * time.Second}

var (
	baseURL   = "https://www.uniprot.org"
	userAgent = "uniprot-go/0.1 (+https://github.com/boscoh/uniprot)"
)

// ErrErrorPage is returned when the service answers with an HTML error page
// instead of the requested text format. Such a body must never reach the
// flat-file parser.
var ErrErrorPage = errors.New("service returned an HTML error page")

// SetBaseURL overrides the service root, e.g. for a mirror or a test server.
func SetBaseURL(u string) { baseURL = strings.TrimRight(u, "/") }

// SetUserAgent overrides the User-Agent sent with every request.
func SetUserAgent(ua string) { userAgent = ua }

func isHTML(text string) bool { return strings.Contains(text, "<html") }

const (
	postAttempts  = 3
	maxRetryWaits = 10
)

// post uploads the id list as a multipart file plus the given form fields,
// then follows the service's Retry-After protocol: while the response
// carries a Retry-After header the result is still being prepared, so wait
// the advertised duration and poll the same URL with a GET. The wait loop is
// bounded; a server that never stops asking is an error, not a hang.
func post(ctx context.Context, url string, fields map[string]string, seqids []string) (string, error) {
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	for k, v := range fields {
		_ = mw.WriteField(k, v)
	}
	fw, err := mw.CreateFormFile("file", "seqids.txt")
	if err != nil {
		return "", err
	}
	if _, err := fw.Write([]byte(strings.Join(seqids, " "))); err != nil {
		return "", err
	}
	_ = mw.Close()
	body := buf.Bytes()

	var resp *http.Response
	var lastErr error
	for attempt := 1; attempt <= postAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
		if err != nil {
			return "", err
		}
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("User-Agent", userAgent)
		resp, lastErr = httpClient.Do(req)
		if lastErr == nil && resp.StatusCode != http.StatusTooManyRequests {
			break
		}
		if resp != nil {
			resp.Body.Close()
			resp = nil
			lastErr = fmt.Errorf("%s returned 429", url)
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(time.Duration(attempt*500) * time.Millisecond):
		}
	}
	if resp == nil {
		return "", lastErr
	}

	for waits := 0; resp.Header.Get("Retry-After") != "" && waits < maxRetryWaits; waits++ {
		secs, err := strconv.Atoi(strings.TrimSpace(resp.Header.Get("Retry-After")))
		if err != nil || secs < 1 {
			secs = 1
		}
		resp.Body.Close()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(time.Duration(secs) * time.Second):
		}
		req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
		if err != nil {
			return "", err
		}
		req.Header.Set("User-Agent", userAgent)
		if resp, err = httpClient.Do(req); err != nil {
			return "", err
		}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s returned status %d: %s", url, resp.StatusCode, string(data))
	}
	return string(data), nil
}

// Metadata fetches the concatenated flat-text records for the given UniProt
// accessions in one request.
func Metadata(ctx context.Context, seqids []string) (string, error) {
	text, err := post(ctx, baseURL+"/batch/", map[string]string{"format": "txt"}, seqids)
	if err != nil {
		return "", err
	}
	if isHTML(text) {
		return "", fmt.Errorf("metadata fetch for %d seqids: %w", len(seqids), ErrErrorPage)
	}
	return text, nil
}

// MapIDs converts identifiers between accession schemes using the mapping
// service. fromType and toType name mapping types, e.g. P_REFSEQ_AC -> ACC.
func MapIDs(ctx context.Context, fromType, toType string, seqids []string) ([][2]string, error) {
	fields := map[string]string{
		"from":   fromType,
		"to":     toType,
		"format": "tab",
	}
	text, err := post(ctx, baseURL+"/mapping/", fields, seqids)
	if err != nil {
		return nil, err
	}
	if isHTML(text) {
		return nil, fmt.Errorf("id mapping %s->%s: %w", fromType, toType, ErrErrorPage)
	}
	return parsePairs(text), nil
}

// parsePairs reads the tab-separated mapping response, skipping the header.
func parsePairs(text string) [][2]string {
	var pairs [][2]string
	for _, l := range strings.Split(text, "\n") {
		if strings.TrimSpace(l) == "" || strings.Contains(strings.ToLower(l), "from") {
			continue
		}
		cols := strings.Split(l, "\t")
		if len(cols) >= 2 {
			pairs = append(pairs, [2]string{cols[0], cols[1]})
		}
	}
	return pairs
}

// BatchMetadata fetches metadata in batches of batchSize ids, reusing cached
// snapshots where the sidecar id list matches. A failed batch is skipped so
// the remaining batches still contribute records; the failures come back as
// a joined error next to the combined text.
func BatchMetadata(ctx context.Context, seqids []string, batchSize int, cacheBase string) (string, error) {
	if batchSize <= 0 {
		batchSize = len(seqids)
	}
	var combined strings.Builder
	var errs []error
	for i := 0; i < len(seqids); i += batchSize {
		end := i + batchSize
		if end > len(seqids) {
			end = len(seqids)
		}
		batch := seqids[i:end]
		if text, ok := cachedBatch(cacheBase, i, batch); ok {
			combined.WriteString(text)
			continue
		}
		text, err := Metadata(ctx, batch)
		if err != nil {
			errs = append(errs, fmt.Errorf("batch at offset %d: %w", i, err))
			continue
		}
		storeBatch(cacheBase, i, batch, text)
		combined.WriteString(text)
	}
	return combined.String(), errors.Join(errs...)
}

// BatchMapIDs converts identifiers in batches, with the same caching scheme
// as BatchMetadata.
func BatchMapIDs(ctx context.Context, fromType, toType string, seqids []string, batchSize int, cacheBase string) ([][2]string, error) {
	if batchSize <= 0 {
		batchSize = len(seqids)
	}
	var pairs [][2]string
	var errs []error
	for i := 0; i < len(seqids); i += batchSize {
		end := i + batchSize
		if end > len(seqids) {
			end = len(seqids)
		}
		batch := seqids[i:end]
		key := fromType + "-" + toType
		if text, ok := cachedBatch(cacheBase+"."+key, i, batch); ok {
			pairs = append(pairs, parsePairs(text)...)
			continue
		}
		batchPairs, err := MapIDs(ctx, fromType, toType, batch)
		if err != nil {
			errs = append(errs, fmt.Errorf("mapping batch at offset %d: %w", i, err))
			continue
		}
		var text strings.Builder
		for _, p := range batchPairs {
			fmt.Fprintf(&text, "%s\t%s\n", p[0], p[1])
		}
		storeBatch(cacheBase+"."+key, i, batch, text.String())
		pairs = append(pairs, batchPairs...)
	}
	return pairs, errors.Join(errs...)
}

// cachedBatch returns the snapshot for a batch when both the snapshot and a
// sidecar listing exactly these ids exist. cacheBase == "" disables caching.
func cachedBatch(cacheBase string, offset int, seqids []string) (string, bool) {
	if cacheBase == "" {
		return "", false
	}
	sidecar, err := os.ReadFile(fmt.Sprintf("%s.%d.json", cacheBase, offset))
	if err != nil {
		return "", false
	}
	var cachedIDs []string
	if err := json.Unmarshal(sidecar, &cachedIDs); err != nil {
		return "", false
	}
	if len(cachedIDs) != len(seqids) {
		return "", false
	}
	for i := range seqids {
		if cachedIDs[i] != seqids[i] {
			return "", false
		}
	}
	data, err := os.ReadFile(fmt.Sprintf("%s.%d.txt", cacheBase, offset))
	if err != nil {
		return "", false
	}
	return string(data), true
}

func storeBatch(cacheBase string, offset int, seqids []string, text string) {
	if cacheBase == "" {
		return
	}
	if b, err := json.Marshal(seqids); err == nil {
		_ = os.WriteFile(fmt.Sprintf("%s.%d.json", cacheBase, offset), b, 0o644)
	}
	_ = os.WriteFile(fmt.Sprintf("%s.%d.txt", cacheBase, offset), []byte(text), 0o644)
}
