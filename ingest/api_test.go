package ingest

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type capturedLog struct {
	level   slog.Level
	message string
	attrs   map[string]string
}

type captureHandler struct {
	mu      sync.Mutex
	records []capturedLog
}

func (h *captureHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	entry := capturedLog{level: r.Level, message: r.Message, attrs: map[string]string{}}
	r.Attrs(func(a slog.Attr) bool {
		entry.attrs[a.Key] = a.Value.String()
		return true
	})
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, entry)
	return nil
}

func (h *captureHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *captureHandler) WithGroup(string) slog.Handler      { return h }

func (h *captureHandler) find(message string) (capturedLog, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, r := range h.records {
		if r.message == message {
			return r, true
		}
	}
	return capturedLog{}, false
}

func captureLogs(t *testing.T) *captureHandler {
	t.Helper()
	handler := &captureHandler{}
	previous := slog.Default()
	slog.SetDefault(slog.New(handler))
	t.Cleanup(func() { slog.SetDefault(previous) })
	return handler
}

func TestBuildURLReturnsValidURL(t *testing.T) {
	require := require.New(t)

	result, err := buildURL("https://example.com/advisories", "", []RequestOptionsFunc{})
	require.NoError(err, "unexpected error")
	require.NotEmpty(result)

	parsedURL, err := url.Parse(result)
	require.NoError(err)
	require.Equal("example.com", parsedURL.Host)
	require.Equal("/advisories", parsedURL.Path)
	require.Equal("https", parsedURL.Scheme)
}

func TestBuildURLJoinsDetailPath(t *testing.T) {
	require := require.New(t)

	result, err := buildURL("https://example.com/advisories", "GHSA-aaaa-bbbb-cccc", nil)
	require.NoError(err)

	parsedURL, err := url.Parse(result)
	require.NoError(err)
	require.Equal("/advisories/GHSA-aaaa-bbbb-cccc", parsedURL.Path)
}

func TestBuildURLPageAndPerPage(t *testing.T) {
	require := require.New(t)

	result, err := buildURL("https://example.com/advisories", "", []RequestOptionsFunc{Page(7), PerPage(100)})
	require.NoError(err)

	parsedURL, err := url.Parse(result)
	require.NoError(err)
	query := parsedURL.Query()
	require.Equal("7", query.Get("page"))
	require.Equal("100", query.Get("per_page"))
}

func TestBuildURLSkipsEmptyFilters(t *testing.T) {
	require := require.New(t)

	result, err := buildURL("https://example.com/advisories", "", []RequestOptionsFunc{Ecosystem(""), Severity("")})
	require.NoError(err)

	parsedURL, err := url.Parse(result)
	require.NoError(err)
	query := parsedURL.Query()
	require.NotContains(query, "ecosystem")
	require.NotContains(query, "severity")
}

func TestBuildURLFilters(t *testing.T) {
	require := require.New(t)

	result, err := buildURL("https://example.com/advisories", "", []RequestOptionsFunc{Ecosystem("npm"), Severity("critical"), CveID("CVE-2024-1")})
	require.NoError(err)

	parsedURL, err := url.Parse(result)
	require.NoError(err)
	query := parsedURL.Query()
	require.Equal("npm", query.Get("ecosystem"))
	require.Equal("critical", query.Get("severity"))
	require.Equal("CVE-2024-1", query.Get("cve_id"))
}

func TestListAdvisoriesParsesPage(t *testing.T) {
	require := require.New(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal("application/vnd.github+json", r.Header.Get("Accept"))
		require.Equal("Bearer secret", r.Header.Get("Authorization"))
		require.Equal(APIVersion, r.Header.Get("X-GitHub-Api-Version"))
		require.Equal("2", r.URL.Query().Get("page"))

		w.Header().Set("x-ratelimit-remaining", "4999")
		w.Write([]byte(`[
			{"id": "GHSA-aaaa-bbbb-cccc", "cve_id": "CVE-2024-1", "summary": "sql injection", "severity": "high"},
			{"id": "GHSA-dddd-eeee-ffff", "severity": "low"}
		]`))
	}))
	defer server.Close()

	api := &APIClient{Endpoint: server.URL, Token: "secret"}
	advisories, err := api.ListAdvisories(context.Background(), Page(2), PerPage(2))
	require.NoError(err)

	require.Len(advisories, 2)
	require.Equal("GHSA-aaaa-bbbb-cccc", advisories[0].ID)
	require.Equal("CVE-2024-1", advisories[0].CveID.TakeOr(""))
	require.True(advisories[1].CveID.IsNone())
}

func TestListAdvisoriesWarnsWhenRateLimitIsLow(t *testing.T) {
	require := require.New(t)
	logs := captureLogs(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("x-ratelimit-remaining", "5")
		w.Header().Set("x-ratelimit-reset", "1735689600")
		w.Write([]byte(`[{"id": "GHSA-aaaa-bbbb-cccc"}]`))
	}))
	defer server.Close()

	api := &APIClient{Endpoint: server.URL}
	advisories, err := api.ListAdvisories(context.Background(), Page(1))
	require.NoError(err, "a low rate limit warns but does not interrupt the run")
	require.Len(advisories, 1)

	warning, found := logs.find("advisory API rate limit is low")
	require.True(found)
	require.Equal(slog.LevelWarn, warning.level)
	require.Equal("5", warning.attrs["remaining"])
	require.Equal("2025-01-01T00:00:00Z", warning.attrs["reset"])
}

func TestListAdvisoriesAmpleRateLimitDoesNotWarn(t *testing.T) {
	require := require.New(t)
	logs := captureLogs(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("x-ratelimit-remaining", "4999")
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	api := &APIClient{Endpoint: server.URL}
	_, err := api.ListAdvisories(context.Background(), Page(1))
	require.NoError(err)

	_, found := logs.find("advisory API rate limit is low")
	require.False(found)
}

func TestListAdvisoriesNonSuccessIsAnError(t *testing.T) {
	require := require.New(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	api := &APIClient{Endpoint: server.URL}
	api.init()
	api.Client.RetryMax = 0

	_, err := api.ListAdvisories(context.Background(), Page(1))
	require.Error(err)
	require.Contains(err.Error(), "503")
}

func TestGetAdvisoryReturnsDetail(t *testing.T) {
	require := require.New(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal("/GHSA-aaaa-bbbb-cccc", r.URL.Path)
		w.Write([]byte(`{"id": "GHSA-aaaa-bbbb-cccc", "description": "# Impact\n\ndetails"}`))
	}))
	defer server.Close()

	api := &APIClient{Endpoint: server.URL}
	advisory, err := api.GetAdvisory(context.Background(), "GHSA-aaaa-bbbb-cccc")
	require.NoError(err)
	require.Equal("# Impact\n\ndetails", advisory.Description)
}
