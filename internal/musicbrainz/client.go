package musicbrainz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/franz/crate/internal/util"
)

// ErrClientClosed is returned for lookups made after Close
var ErrClientClosed = errors.New("upstream client closed")

// DefaultBaseURL is the public release-group service
const DefaultBaseURL = "https://musicbrainz.org/ws/2"

const (
	// requestTimeout bounds a single HTTP attempt
	requestTimeout = 10 * time.Second
	// minRequestGap is measured from the end of the previous attempt to
	// the start of the next, across all callers
	minRequestGap = time.Second
	// maxRetries after the initial attempt
	maxRetries  = 2
	baseBackoff = 500 * time.Millisecond
	// bodySnippetLimit caps upstream bodies attached to error details
	bodySnippetLimit = 500

	pageSize        = 100
	exactMatchBonus = 20
)

// ArtistMatch is the ranked result of an artist name lookup
type ArtistMatch struct {
	MBID  string
	Name  string
	Score int
}

// ReleaseGroup is one expected release fetched from the upstream service
type ReleaseGroup struct {
	MBReleaseGroupID string
	Title            string
	Year             *int
	PrimaryType      string
	SecondaryTypes   []string
}

type fetchResult struct {
	body []byte
	err  error
}

type fetchRequest struct {
	ctx    context.Context
	url    string
	result chan fetchResult
}

// Client talks to the upstream discography service. All requests funnel
// through a single FIFO queue drained by one worker, so upstream traffic
// is strictly serialized no matter how many handlers call in.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	queue      chan fetchRequest
	done       chan struct{}
	closeOnce  sync.Once
}

// New creates a Client and starts its queue worker. version feeds the
// User-Agent the upstream requires for identification.
func New(baseURL, version string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	// Prefer IPv4; the upstream has a history of stalling v6 connections
	dialer := &net.Dialer{Timeout: 5 * time.Second}
	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			if network == "tcp" {
				network = "tcp4"
			}
			return dialer.DialContext(ctx, network, addr)
		},
		MaxIdleConns:    4,
		IdleConnTimeout: 90 * time.Second,
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		userAgent:  fmt.Sprintf("crate/%s (selfhosted)", version),
		httpClient: &http.Client{Transport: transport},
		queue:      make(chan fetchRequest),
		done:       make(chan struct{}),
	}
	go c.worker()
	return c
}

// Close stops the queue worker. The queue channel itself is never
// closed, so a caller racing Close cannot hit a send on a closed
// channel; its enqueue fails with ErrClientClosed instead.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// worker drains the queue one request at a time, enforcing the gap
// between the end of one attempt and the start of the next.
func (c *Client) worker() {
	var lastAttemptEnd time.Time

	for {
		select {
		case <-c.done:
			return
		case req := <-c.queue:
			if req.ctx.Err() != nil {
				req.result <- fetchResult{err: req.ctx.Err()}
				continue
			}
			body, err := c.doWithRetry(req.ctx, req.url, &lastAttemptEnd)
			req.result <- fetchResult{body: body, err: err}
		}
	}
}

// get enqueues one URL and waits for the worker to deliver the body
func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	req := fetchRequest{ctx: ctx, url: rawURL, result: make(chan fetchResult, 1)}

	select {
	case c.queue <- req:
	case <-c.done:
		return nil, ErrClientClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-req.result:
		return res.body, res.err
	case <-c.done:
		return nil, ErrClientClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) doWithRetry(ctx context.Context, rawURL string, lastAttemptEnd *time.Time) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := waitForGap(ctx, *lastAttemptEnd); err != nil {
			return nil, err
		}

		body, retryAfter, err := c.doAttempt(ctx, rawURL)
		*lastAttemptEnd = time.Now()
		if err == nil {
			return body, nil
		}
		lastErr = err

		// Rate limiting may use the full retry budget; network failures
		// and timeouts are retried once at most.
		budget := maxRetries
		if !isRateLimited(err) {
			budget = 1
		}
		if !isRetryable(err) || attempt >= budget {
			return nil, err
		}

		delay := baseBackoff * (1 << attempt)
		if retryAfter > 0 {
			delay = retryAfter
		}
		util.DebugLog("Upstream attempt %d failed (%v), retrying in %s", attempt+1, err, delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, lastErr
}

// doAttempt performs one HTTP round trip. A positive retryAfter is the
// upstream's requested delay from a 429/503.
func (c *Client) doAttempt(ctx context.Context, rawURL string) (body []byte, retryAfter time.Duration, err error) {
	attemptCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build upstream request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if attemptCtx.Err() == context.DeadlineExceeded {
			return nil, 0, util.NewUpstreamTimeoutError("upstream request timed out", err)
		}
		return nil, 0, fmt.Errorf("upstream request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read upstream response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return data, 0, nil

	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable:
		if secs, parseErr := strconv.Atoi(strings.TrimSpace(resp.Header.Get("Retry-After"))); parseErr == nil && secs > 0 {
			retryAfter = time.Duration(secs) * time.Second
		}
		return nil, retryAfter, util.NewUpstreamError(resp.StatusCode,
			fmt.Sprintf("upstream rate limited (%d)", resp.StatusCode), string(data))

	default:
		return nil, 0, util.NewUpstreamError(resp.StatusCode,
			fmt.Sprintf("upstream returned %d", resp.StatusCode), string(data))
	}
}

// isRetryable decides whether another attempt can help. Rate limiting and
// server-side unavailability retry; other upstream statuses do not.
func isRetryable(err error) bool {
	if appErr := util.AsAppError(err); appErr != nil {
		if appErr.Kind == util.KindUpstreamTimeout {
			return true
		}
		return appErr.StatusCode == http.StatusTooManyRequests ||
			appErr.StatusCode == http.StatusServiceUnavailable
	}
	return util.IsRetryableError(err)
}

// isRateLimited reports whether the upstream explicitly asked for backoff
func isRateLimited(err error) bool {
	appErr := util.AsAppError(err)
	if appErr == nil || appErr.Kind != util.KindUpstream {
		return false
	}
	return appErr.StatusCode == http.StatusTooManyRequests ||
		appErr.StatusCode == http.StatusServiceUnavailable
}

func waitForGap(ctx context.Context, lastAttemptEnd time.Time) error {
	if lastAttemptEnd.IsZero() {
		return nil
	}
	remaining := minRequestGap - time.Since(lastAttemptEnd)
	if remaining <= 0 {
		return nil
	}
	select {
	case <-time.After(remaining):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// FindArtistByName resolves a library artist name to its best upstream
// candidate, or nil when nothing plausible comes back. Candidates are
// ranked by upstream score with a bonus for exact case-insensitive name
// matches and a penalty for their position in the result list.
func (c *Client) FindArtistByName(ctx context.Context, name string) (*ArtistMatch, error) {
	params := url.Values{}
	params.Set("query", fmt.Sprintf(`artist:"%s"`, name))
	params.Set("limit", "5")
	params.Set("fmt", "json")

	body, err := c.get(ctx, c.baseURL+"/artist?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var payload struct {
		Artists []struct {
			ID    string `json:"id"`
			Name  string `json:"name"`
			Score int    `json:"score"`
		} `json:"artists"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode artist search response: %w", err)
	}
	if len(payload.Artists) == 0 {
		return nil, nil
	}

	best := -1
	bestRank := 0
	for i, a := range payload.Artists {
		rank := a.Score - i
		if strings.EqualFold(a.Name, name) {
			rank += exactMatchBonus
		}
		if best == -1 || rank > bestRank {
			best, bestRank = i, rank
		}
	}

	top := payload.Artists[best]
	return &ArtistMatch{MBID: top.ID, Name: top.Name, Score: top.Score}, nil
}

// FetchArtistAlbums pages through the artist's release-groups and keeps
// those whose primary type is Album or Compilation.
func (c *Client) FetchArtistAlbums(ctx context.Context, mbid string) ([]ReleaseGroup, error) {
	var groups []ReleaseGroup

	for offset := 0; ; {
		params := url.Values{}
		params.Set("artist", mbid)
		params.Set("limit", strconv.Itoa(pageSize))
		params.Set("offset", strconv.Itoa(offset))
		params.Set("fmt", "json")

		body, err := c.get(ctx, c.baseURL+"/release-group?"+params.Encode())
		if err != nil {
			return nil, err
		}

		var payload struct {
			Total         int `json:"release-group-count"`
			ReleaseGroups []struct {
				ID               string   `json:"id"`
				Title            string   `json:"title"`
				PrimaryType      string   `json:"primary-type"`
				SecondaryTypes   []string `json:"secondary-types"`
				FirstReleaseDate string   `json:"first-release-date"`
			} `json:"release-groups"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, fmt.Errorf("failed to decode release-group response: %w", err)
		}
		if len(payload.ReleaseGroups) == 0 {
			break
		}

		for _, rg := range payload.ReleaseGroups {
			primary := strings.ToLower(rg.PrimaryType)
			if primary != "album" && primary != "compilation" {
				continue
			}
			groups = append(groups, ReleaseGroup{
				MBReleaseGroupID: rg.ID,
				Title:            rg.Title,
				Year:             yearFromDate(rg.FirstReleaseDate),
				PrimaryType:      rg.PrimaryType,
				SecondaryTypes:   rg.SecondaryTypes,
			})
		}

		offset += len(payload.ReleaseGroups)
		if offset >= payload.Total {
			break
		}
	}

	return groups, nil
}

// yearFromDate extracts a leading 4-digit year, or nil
func yearFromDate(date string) *int {
	if len(date) < 4 {
		return nil
	}
	year, err := strconv.Atoi(date[:4])
	if err != nil || year < 1000 || year > 9999 {
		return nil
	}
	return &year
}
