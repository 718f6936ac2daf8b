package musicbrainz

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/franz/crate/internal/util"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	c := New(srv.URL, "test")
	t.Cleanup(func() {
		c.Close()
		srv.Close()
	})
	return c, srv
}

func TestFindArtistByNameRanking(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); got != "crate/test (selfhosted)" {
			t.Errorf("Unexpected User-Agent: %q", got)
		}
		// The exact-name candidate sits second with a slightly lower
		// score; the bonus must still lift it to the top.
		w.Write([]byte(`{"artists":[
			{"id":"mbid-1","name":"New Found Glory Tribute","score":100},
			{"id":"mbid-2","name":"new found glory","score":95}
		]}`))
	}))

	match, err := c.FindArtistByName(context.Background(), "New Found Glory")
	if err != nil {
		t.Fatalf("FindArtistByName failed: %v", err)
	}
	if match == nil || match.MBID != "mbid-2" {
		t.Errorf("Expected exact-match candidate to win, got %+v", match)
	}
}

func TestFindArtistByNameNoResults(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"artists":[]}`))
	}))

	match, err := c.FindArtistByName(context.Background(), "Nobody")
	if err != nil {
		t.Fatalf("FindArtistByName failed: %v", err)
	}
	if match != nil {
		t.Errorf("Expected nil for empty result set, got %+v", match)
	}
}

func TestFetchArtistAlbumsPaginatesAndFilters(t *testing.T) {
	var mu sync.Mutex
	offsets := []int{}

	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		mu.Lock()
		offsets = append(offsets, offset)
		mu.Unlock()

		if offset == 0 {
			// A reported total beyond the page forces a second fetch;
			// the EP must be filtered out
			w.Write([]byte(`{"release-group-count":4,"release-groups":[
				{"id":"rg-1","title":"Sticks and Stones","primary-type":"Album","first-release-date":"2002-06-11"},
				{"id":"rg-2","title":"Some EP","primary-type":"EP","first-release-date":"2003"},
				{"id":"rg-3","title":"Hits","primary-type":"Compilation","secondary-types":["Live"],"first-release-date":""}
			]}`))
			return
		}
		w.Write([]byte(`{"release-group-count":4,"release-groups":[
			{"id":"rg-4","title":"Catalyst","primary-type":"Album","first-release-date":"2004-05-18"}
		]}`))
	}))

	groups, err := c.FetchArtistAlbums(context.Background(), "mbid-x")
	if err != nil {
		t.Fatalf("FetchArtistAlbums failed: %v", err)
	}
	if len(groups) != 3 {
		t.Fatalf("Expected 3 kept release-groups, got %d", len(groups))
	}
	if groups[0].Year == nil || *groups[0].Year != 2002 {
		t.Errorf("Expected year 2002 from first-release-date, got %v", groups[0].Year)
	}
	if groups[1].Year != nil {
		t.Errorf("Expected nil year for empty date, got %v", groups[1].Year)
	}
	if len(groups[1].SecondaryTypes) != 1 || groups[1].SecondaryTypes[0] != "Live" {
		t.Errorf("Expected secondary types to survive, got %v", groups[1].SecondaryTypes)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(offsets) != 2 || offsets[1] != 3 {
		t.Errorf("Expected pagination offsets [0 3], got %v", offsets)
	}
}

func TestRateLimitRetryHonorsRetryAfter(t *testing.T) {
	var mu sync.Mutex
	var times []time.Time

	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		times = append(times, time.Now())
		first := len(times) == 1
		mu.Unlock()

		if first {
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"artists":[{"id":"mbid-1","name":"X","score":100}]}`))
	}))

	start := time.Now()
	match, err := c.FindArtistByName(context.Background(), "X")
	if err != nil {
		t.Fatalf("Expected retry to succeed, got %v", err)
	}
	if match == nil || match.MBID != "mbid-1" {
		t.Errorf("Unexpected match: %+v", match)
	}

	if elapsed := time.Since(start); elapsed < 2*time.Second {
		t.Errorf("Expected at least 2s before the retried attempt, elapsed %s", elapsed)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(times) != 2 {
		t.Fatalf("Expected exactly 2 attempts, got %d", len(times))
	}
	if gap := times[1].Sub(times[0]); gap < 2*time.Second {
		t.Errorf("Retry started %s after the 429, want >= 2s", gap)
	}
}

func TestNonRetryableStatusCarriesDetails(t *testing.T) {
	attempts := 0
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("malformed query"))
	}))

	_, err := c.FindArtistByName(context.Background(), "X")
	if err == nil {
		t.Fatal("Expected an error for 400 response")
	}
	appErr := util.AsAppError(err)
	if appErr == nil || appErr.Kind != util.KindUpstream {
		t.Fatalf("Expected upstream AppError, got %v", err)
	}
	if appErr.StatusCode != http.StatusBadRequest || appErr.Details != "malformed query" {
		t.Errorf("Expected status and body to be attached, got %+v", appErr)
	}
	if attempts != 1 {
		t.Errorf("Expected no retries on 400, got %d attempts", attempts)
	}
}

func TestLookupAfterCloseDoesNotPanic(t *testing.T) {
	c := New("http://127.0.0.1:0", "test")
	c.Close()
	c.Close() // idempotent

	if _, err := c.FindArtistByName(context.Background(), "X"); !errors.Is(err, ErrClientClosed) {
		t.Errorf("Expected ErrClientClosed after Close, got %v", err)
	}
}

func TestConnectionFailureRetriesOnce(t *testing.T) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	defer ln.Close()

	// Reset every connection before a response is written; the client
	// sees a transport-level failure on each attempt.
	var mu sync.Mutex
	attempts := 0
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			attempts++
			mu.Unlock()
			if tcp, ok := conn.(*net.TCPConn); ok {
				tcp.SetLinger(0)
			}
			conn.Close()
		}
	}()

	c := New("http://"+ln.Addr().String(), "test")
	defer c.Close()

	if _, err := c.FindArtistByName(context.Background(), "X"); err == nil {
		t.Fatal("Expected lookup against resetting server to fail")
	}

	mu.Lock()
	defer mu.Unlock()
	if attempts != 2 {
		t.Errorf("Expected initial attempt plus one retry, got %d attempts", attempts)
	}
}

func TestRetryBudgetPerErrorClass(t *testing.T) {
	rateLimited := util.NewUpstreamError(http.StatusTooManyRequests, "upstream rate limited (429)", "")
	unavailable := util.NewUpstreamError(http.StatusServiceUnavailable, "upstream rate limited (503)", "")
	timeout := util.NewUpstreamTimeoutError("upstream request timed out", nil)

	if !isRateLimited(rateLimited) || !isRateLimited(unavailable) {
		t.Error("Expected 429 and 503 to use the full retry budget")
	}
	if isRateLimited(timeout) {
		t.Error("Expected timeouts to be capped at a single retry")
	}
	if isRateLimited(errors.New("connection reset")) {
		t.Error("Expected transport errors to be capped at a single retry")
	}
}

func TestRequestsAreSpacedApart(t *testing.T) {
	var mu sync.Mutex
	var times []time.Time

	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		times = append(times, time.Now())
		mu.Unlock()
		w.Write([]byte(`{"artists":[{"id":"mbid-1","name":"X","score":100}]}`))
	}))

	// Two concurrent callers funnel through the same queue
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.FindArtistByName(context.Background(), "X"); err != nil {
				t.Errorf("Lookup failed: %v", err)
			}
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(times) != 2 {
		t.Fatalf("Expected 2 upstream requests, got %d", len(times))
	}
	if gap := times[1].Sub(times[0]); gap < minRequestGap {
		t.Errorf("Adjacent requests only %s apart, want >= %s", gap, minRequestGap)
	}
}
