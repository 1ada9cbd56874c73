package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func textResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

func TestMetadata(t *testing.T) {
	var gotBody string
	httpClient = &http.Client{Transport: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("expected multipart form: %v", err)
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("missing file field: %v", err)
		}
		b, _ := io.ReadAll(f)
		gotBody = string(b)
		if r.FormValue("format") != "txt" {
			t.Fatalf("expected format=txt, got %q", r.FormValue("format"))
		}
		return textResponse(200, "ID   FAKE_HUMAN\n//\n"), nil
	})}

	text, err := Metadata(context.Background(), []string{"P12345", "Q99999"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(text, "ID   FAKE_HUMAN") {
		t.Fatalf("unexpected response text %q", text)
	}
	if gotBody != "P12345 Q99999" {
		t.Fatalf("expected space-joined id upload, got %q", gotBody)
	}
}

func TestMetadataErrorPage(t *testing.T) {
	httpClient = &http.Client{Transport: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		return textResponse(200, "<html><body>something broke</body></html>"), nil
	})}
	if _, err := Metadata(context.Background(), []string{"P12345"}); !errors.Is(err, ErrErrorPage) {
		t.Fatalf("expected ErrErrorPage, got %v", err)
	}
}

func TestMetadataRetryAfter(t *testing.T) {
	calls := 0
	httpClient = &http.Client{Transport: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		calls++
		if calls == 1 {
			if r.Method != "POST" {
				t.Fatalf("first call should POST, got %s", r.Method)
			}
			resp := textResponse(200, "")
			resp.Header.Set("Retry-After", "1")
			return resp, nil
		}
		if r.Method != "GET" {
			t.Fatalf("poll should GET, got %s", r.Method)
		}
		return textResponse(200, "ID   WAITED_HUMAN\n//\n"), nil
	})}

	start := time.Now()
	text, err := Metadata(context.Background(), []string{"P12345"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(text, "WAITED_HUMAN") {
		t.Fatalf("unexpected text %q", text)
	}
	if time.Since(start) < time.Second {
		t.Fatalf("expected at least 1s wait from Retry-After, elapsed %v", time.Since(start))
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestMapIDs(t *testing.T) {
	httpClient = &http.Client{Transport: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("expected multipart form: %v", err)
		}
		if r.FormValue("from") != "P_REFSEQ_AC" || r.FormValue("to") != "ACC" || r.FormValue("format") != "tab" {
			t.Fatalf("unexpected form fields: %v", r.MultipartForm.Value)
		}
		if _, ok := r.MultipartForm.Value["query"]; ok {
			t.Fatalf("ids travel in the file upload, not a query field")
		}
		return textResponse(200, "From\tTo\nNP_000508.1\tP69905\nNP_001018081.3\tP35557\n"), nil
	})}
	pairs, err := MapIDs(context.Background(), "P_REFSEQ_AC", "ACC", []string{"NP_000508.1", "NP_001018081.3"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pairs) != 2 {
		t.Fatalf("expected 2 pairs, got %v", pairs)
	}
	if pairs[0] != [2]string{"NP_000508.1", "P69905"} {
		t.Fatalf("unexpected first pair %v", pairs[0])
	}
}

func TestBatchMetadataCache(t *testing.T) {
	calls := 0
	httpClient = &http.Client{Transport: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		calls++
		return textResponse(200, "ID   CACHED_HUMAN\n//\n"), nil
	})}
	cacheBase := filepath.Join(t.TempDir(), "metadata")
	ids := []string{"A", "B", "C"}

	text, err := BatchMetadata(context.Background(), ids, 2, cacheBase)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 batch fetches for 3 ids at size 2, got %d", calls)
	}
	if strings.Count(text, "CACHED_HUMAN") != 2 {
		t.Fatalf("unexpected combined text %q", text)
	}

	// Same ids hit the snapshot; no HTTP calls.
	if _, err := BatchMetadata(context.Background(), ids, 2, cacheBase); err != nil {
		t.Fatalf("unexpected error on cached fetch: %v", err)
	}
	if calls != 2 {
		t.Fatalf("cache should have prevented refetching, got %d calls", calls)
	}

	// A different id list invalidates the sidecar.
	if _, err := BatchMetadata(context.Background(), []string{"A", "X", "C"}, 2, cacheBase); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("changed ids should refetch the changed batch only, got %d calls", calls)
	}
}
