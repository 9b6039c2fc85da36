package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

const (
	DefaultAdvisoryEndpoint = "https://api.github.com/advisories"
	APIVersion              = "2022-11-28"

	// Below this many remaining requests a warning with the reset time is
	// logged. The run is not interrupted.
	RateLimitWarnThreshold = 10
)

type RequestOptionsFunc func(url.Values) error

func Page(page int) RequestOptionsFunc {
	return func(q url.Values) error {
		q.Set("page", strconv.Itoa(page))
		return nil
	}
}

func PerPage(nr int) RequestOptionsFunc {
	return func(q url.Values) error {
		q.Set("per_page", strconv.Itoa(nr))
		return nil
	}
}

func Ecosystem(ecosystem string) RequestOptionsFunc {
	return func(q url.Values) error {
		if ecosystem != "" {
			q.Set("ecosystem", ecosystem)
		}
		return nil
	}
}

func Severity(severity string) RequestOptionsFunc {
	return func(q url.Values) error {
		if severity != "" {
			q.Set("severity", severity)
		}
		return nil
	}
}

func CveID(id string) RequestOptionsFunc {
	return func(q url.Values) error {
		q.Set("cve_id", id)
		return nil
	}
}

func buildURL(endpoint, path string, options []RequestOptionsFunc) (string, error) {
	apiURL, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("failed to parse endpoint: %w", err)
	}
	if path != "" {
		apiURL = apiURL.JoinPath(path)
	}

	query := url.Values{}
	for _, option := range options {
		err = option(query)
		if err != nil {
			return "", fmt.Errorf("failed to apply option: %w", err)
		}
	}

	apiURL.RawQuery = query.Encode()
	return apiURL.String(), nil
}

// AdvisoryFetcher is what the remote orchestrator needs from the advisory API.
type AdvisoryFetcher interface {
	ListAdvisories(ctx context.Context, options ...RequestOptionsFunc) ([]AdvisoryRecord, error)
	GetAdvisory(ctx context.Context, id string) (AdvisoryRecord, error)
}

// APIClient talks to the remote advisory API. The zero value with an Endpoint
// left empty uses the default endpoint and a shared retrying HTTP client.
type APIClient struct {
	Endpoint string
	Token    string
	Client   *retryablehttp.Client

	once sync.Once
}

var _ AdvisoryFetcher = (*APIClient)(nil)

func (a *APIClient) init() {
	a.once.Do(func() {
		if a.Endpoint == "" {
			a.Endpoint = DefaultAdvisoryEndpoint
		}
		if a.Client == nil {
			a.Client = retryablehttp.NewClient()
			a.Client.RetryMax = 3
			a.Client.Logger = nil
		}
	})
}

func (a *APIClient) do(ctx context.Context, requestURL string) ([]byte, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", APIVersion)
	if a.Token != "" {
		req.Header.Set("Authorization", "Bearer "+a.Token)
	}

	resp, err := a.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failure in HTTP request: %w", err)
	}
	defer resp.Body.Close()

	checkRateLimit(resp)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("could not read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("advisory API returned status %d for %s", resp.StatusCode, requestURL)
	}
	return body, nil
}

func checkRateLimit(resp *http.Response) {
	remainingHeader := resp.Header.Get("x-ratelimit-remaining")
	if remainingHeader == "" {
		return
	}
	remaining, err := strconv.Atoi(remainingHeader)
	if err != nil || remaining >= RateLimitWarnThreshold {
		return
	}

	reset := "unknown"
	if resetHeader := resp.Header.Get("x-ratelimit-reset"); resetHeader != "" {
		if epoch, err := strconv.ParseInt(resetHeader, 10, 64); err == nil {
			reset = time.Unix(epoch, 0).UTC().Format(time.RFC3339)
		}
	}
	slog.Warn("advisory API rate limit is low", "remaining", remaining, "reset", reset)
}

// ListAdvisories fetches one page of advisories. Use Page, PerPage, Ecosystem
// and Severity options to select it.
func (a *APIClient) ListAdvisories(ctx context.Context, options ...RequestOptionsFunc) ([]AdvisoryRecord, error) {
	a.init()

	requestURL, err := buildURL(a.Endpoint, "", options)
	if err != nil {
		return nil, fmt.Errorf("failed to build url: %w", err)
	}

	body, err := a.do(ctx, requestURL)
	if err != nil {
		return nil, err
	}

	advisories := []AdvisoryRecord{}
	if err := json.Unmarshal(body, &advisories); err != nil {
		return nil, fmt.Errorf("malformed advisory page: %w", err)
	}
	return advisories, nil
}

// GetAdvisory fetches the detail record for one advisory, including the
// markdown description.
func (a *APIClient) GetAdvisory(ctx context.Context, id string) (AdvisoryRecord, error) {
	a.init()

	requestURL, err := buildURL(a.Endpoint, id, nil)
	if err != nil {
		return AdvisoryRecord{}, fmt.Errorf("failed to build url: %w", err)
	}

	body, err := a.do(ctx, requestURL)
	if err != nil {
		return AdvisoryRecord{}, err
	}

	advisory := AdvisoryRecord{}
	if err := json.Unmarshal(body, &advisory); err != nil {
		return AdvisoryRecord{}, fmt.Errorf("malformed advisory %s: %w", id, err)
	}
	return advisory, nil
}
