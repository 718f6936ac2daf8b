package discography

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/franz/crate/internal/meta"
	"github.com/franz/crate/internal/musicbrainz"
	"github.com/franz/crate/internal/store"
	"github.com/franz/crate/internal/util"
)

// syncTimeout is the outer deadline wrapped around each logical metadata
// operation. The client underneath is already rate limited, so a caller
// queued behind slow traffic gives up here instead of hanging a handler.
const syncTimeout = 15 * time.Second

// minAliasOverlap is the token-overlap threshold for strong alias matches
const minAliasOverlap = 0.75

// MetadataClient is the slice of the upstream client the service needs
type MetadataClient interface {
	FindArtistByName(ctx context.Context, name string) (*musicbrainz.ArtistMatch, error)
	FetchArtistAlbums(ctx context.Context, mbid string) ([]musicbrainz.ReleaseGroup, error)
}

// Service reconciles the owned inventory against expected discographies
type Service struct {
	store  *store.Store
	client MetadataClient

	// now is injectable so sync timestamps are deterministic in tests
	now func() int64
}

// New creates a discography Service
func New(st *store.Store, client MetadataClient) *Service {
	return &Service{
		store:  st,
		client: client,
		now:    func() int64 { return time.Now().Unix() },
	}
}

// MissingAlbum is one expected release the library does not own
type MissingAlbum struct {
	ID               int64    `json:"id"`
	MBReleaseGroupID string   `json:"mbReleaseGroupId"`
	Title            string   `json:"title"`
	Year             *int     `json:"year"`
	PrimaryType      string   `json:"primaryType"`
	SecondaryTypes   []string `json:"secondaryTypes"`
}

// Summary is the owned/expected/missing reconciliation for one artist
type Summary struct {
	Artist               *store.Artist         `json:"artist"`
	Settings             *store.ArtistSettings `json:"settings"`
	OwnedCount           int                   `json:"ownedCount"`
	ExpectedCount        int                   `json:"expectedCount"`
	MissingCount         int                   `json:"missingCount"`
	IgnoredCount         int                   `json:"ignoredCount"`
	CompletionPct        *int                  `json:"completionPct"`
	MissingAlbums        []MissingAlbum        `json:"missingAlbums"`
	MatchedOwnedCount    int                   `json:"matchedOwnedCount"`
	MatchedOwnedAlbums   []*store.Album        `json:"matchedOwnedAlbums"`
	UnmatchedOwnedAlbums []*store.Album        `json:"unmatchedOwnedAlbums"`
}

func (s *Service) resolveArtist(artistID int64) (*store.Artist, error) {
	artist, err := s.store.GetArtistByID(artistID)
	if err != nil {
		return nil, err
	}
	if artist == nil || artist.Deleted {
		return nil, util.NewNotFoundError("artist %d not found", artistID)
	}
	return artist, nil
}

// SyncExpectedForArtist refreshes the expected discography from the
// metadata service and returns a fresh summary. The upsert-then-prune
// runs in one transaction so readers never see a half-synced list.
func (s *Service) SyncExpectedForArtist(ctx context.Context, artistID int64) (*Summary, error) {
	artist, err := s.resolveArtist(artistID)
	if err != nil {
		return nil, err
	}

	expectedArtist, err := s.store.GetExpectedArtist(artistID)
	if err != nil {
		return nil, err
	}

	mbid := ""
	name := artist.Name
	if expectedArtist != nil {
		mbid = expectedArtist.MBID
		name = expectedArtist.Name
	}

	if mbid == "" {
		lookupCtx, cancel := context.WithTimeout(ctx, syncTimeout)
		match, err := s.client.FindArtistByName(lookupCtx, artist.Name)
		cancel()
		if err != nil {
			return nil, wrapUpstream(err, "metadata artist lookup failed")
		}
		if match == nil {
			return nil, util.NewNotFoundError("no metadata match for artist %q", artist.Name)
		}
		mbid = match.MBID
		name = match.Name
	}

	syncAt := s.now()
	expectedArtist, err = s.store.UpsertExpectedArtist(artistID, mbid, name, syncAt)
	if err != nil {
		return nil, err
	}

	fetchCtx, cancel := context.WithTimeout(ctx, syncTimeout)
	groups, err := s.client.FetchArtistAlbums(fetchCtx, mbid)
	cancel()
	if err != nil {
		return nil, wrapUpstream(err, "metadata release-group fetch failed")
	}

	err = s.store.Transaction(func(tx *sql.Tx) error {
		for _, rg := range groups {
			if err := s.store.UpsertExpectedAlbumTx(tx, &store.ExpectedAlbum{
				ExpectedArtistID: expectedArtist.ID,
				MBReleaseGroupID: rg.MBReleaseGroupID,
				Title:            rg.Title,
				NormalizedTitle:  meta.NormalizeTitle(rg.Title),
				PrimaryType:      rg.PrimaryType,
				SecondaryTypes:   rg.SecondaryTypes,
				Year:             rg.Year,
				UpdatedAt:        syncAt,
			}); err != nil {
				return err
			}
		}
		_, err := s.store.PruneExpectedAlbumsTx(tx, expectedArtist.ID, syncAt)
		return err
	})
	if err != nil {
		return nil, err
	}

	util.InfoLog("Synced %d expected releases for %s", len(groups), artist.Name)
	return s.ComputeSummary(artistID)
}

// wrapUpstream makes sure metadata failures reach the HTTP layer with
// the upstream status and body attached. Client errors that already
// carry a kind pass through untouched.
func wrapUpstream(err error, message string) error {
	if appErr := util.AsAppError(err); appErr != nil {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return util.NewUpstreamTimeoutError(message, err)
	}
	return util.NewUpstreamError(0, message, err.Error())
}

// ComputeSummary reconciles owned albums against the synced expected
// list. An expected release counts as matched through an explicit
// override, normalized-title equality, or a strong alias match.
func (s *Service) ComputeSummary(artistID int64) (*Summary, error) {
	artist, err := s.resolveArtist(artistID)
	if err != nil {
		return nil, err
	}

	settings, err := s.store.GetArtistSettings(artistID)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		Artist:        artist,
		Settings:      settings,
		MissingAlbums: []MissingAlbum{},
	}

	owned, err := s.store.GetOwnedAlbumsForArtist(artistID)
	if err != nil {
		return nil, err
	}
	summary.OwnedCount = len(owned)
	summary.UnmatchedOwnedAlbums = []*store.Album{}
	summary.MatchedOwnedAlbums = []*store.Album{}

	expectedArtist, err := s.store.GetExpectedArtist(artistID)
	if err != nil {
		return nil, err
	}
	if expectedArtist == nil {
		// Never synced: everything owned is unmatched, nothing expected
		summary.UnmatchedOwnedAlbums = owned
		return summary, nil
	}

	expected, err := s.store.GetExpectedAlbums(expectedArtist.ID)
	if err != nil {
		return nil, err
	}
	overrides, err := s.store.GetMatchOverrides(expectedArtist.ID)
	if err != nil {
		return nil, err
	}
	ignored, err := s.store.GetIgnoredExpectedAlbumIDs(artistID)
	if err != nil {
		return nil, err
	}

	ownedByNormalized := make(map[string][]*store.Album)
	ownedByID := make(map[int64]*store.Album)
	for _, album := range owned {
		key := meta.NormalizeTitle(album.Title)
		ownedByNormalized[key] = append(ownedByNormalized[key], album)
		ownedByID[album.ID] = album
	}

	matchedOwnedIDs := make(map[int64]bool)
	summary.ExpectedCount = len(expected)

	for _, exp := range expected {
		var matches []*store.Album

		if ownedID, ok := overrides[exp.ID]; ok {
			if album, exists := ownedByID[ownedID]; exists {
				matches = append(matches, album)
			}
		}
		if len(matches) == 0 {
			matches = ownedByNormalized[exp.NormalizedTitle]
		}
		if len(matches) == 0 {
			for _, album := range owned {
				if meta.IsStrongTitleAliasMatch(meta.NormalizeTitle(album.Title), exp.NormalizedTitle, minAliasOverlap) {
					matches = append(matches, album)
				}
			}
		}

		if len(matches) > 0 {
			for _, album := range matches {
				matchedOwnedIDs[album.ID] = true
			}
			continue
		}

		if ignored[exp.ID] {
			summary.IgnoredCount++
			continue
		}
		if !includeExpected(exp, settings) {
			continue
		}

		summary.MissingCount++
		summary.MissingAlbums = append(summary.MissingAlbums, MissingAlbum{
			ID:               exp.ID,
			MBReleaseGroupID: exp.MBReleaseGroupID,
			Title:            exp.Title,
			Year:             exp.Year,
			PrimaryType:      exp.PrimaryType,
			SecondaryTypes:   exp.SecondaryTypes,
		})
	}

	for _, album := range owned {
		if matchedOwnedIDs[album.ID] {
			summary.MatchedOwnedAlbums = append(summary.MatchedOwnedAlbums, album)
		} else {
			summary.UnmatchedOwnedAlbums = append(summary.UnmatchedOwnedAlbums, album)
		}
	}
	summary.MatchedOwnedCount = len(summary.MatchedOwnedAlbums)

	if summary.ExpectedCount > 0 {
		// Ignored and filtered releases count toward completion; only
		// actionable missing albums hold the percentage down
		pct := int(math.Round(float64(summary.ExpectedCount-summary.MissingCount) /
			float64(summary.ExpectedCount) * 100))
		summary.CompletionPct = &pct
	}

	return summary, nil
}

// includeExpected applies the per-artist inclusion rules to an
// unmatched release
func includeExpected(exp *store.ExpectedAlbum, settings *store.ArtistSettings) bool {
	if !settings.IncludeCompilations && strings.EqualFold(exp.PrimaryType, "compilation") {
		return false
	}
	if !settings.IncludeLive {
		for _, st := range exp.SecondaryTypes {
			if strings.EqualFold(st, "live") {
				return false
			}
		}
	}
	return true
}

// resolveExpectedAlbum checks that the expected album belongs to the
// artist before any ignore/wishlist mutation touches it.
func (s *Service) resolveExpectedAlbum(artistID, expectedAlbumID int64) (*store.ExpectedAlbum, error) {
	if _, err := s.resolveArtist(artistID); err != nil {
		return nil, err
	}
	expectedArtist, err := s.store.GetExpectedArtist(artistID)
	if err != nil {
		return nil, err
	}
	if expectedArtist == nil {
		return nil, util.NewNotFoundError("artist %d has no synced discography", artistID)
	}
	album, err := s.store.GetExpectedAlbumByID(expectedAlbumID)
	if err != nil {
		return nil, err
	}
	if album == nil || album.ExpectedArtistID != expectedArtist.ID {
		return nil, util.NewNotFoundError("expected album %d not found for artist %d", expectedAlbumID, artistID)
	}
	return album, nil
}

// IgnoreExpectedAlbum marks a release as deliberately unwanted. Idempotent.
func (s *Service) IgnoreExpectedAlbum(artistID, expectedAlbumID int64) error {
	if _, err := s.resolveExpectedAlbum(artistID, expectedAlbumID); err != nil {
		return err
	}
	return s.store.IgnoreExpectedAlbum(artistID, expectedAlbumID)
}

// UnignoreExpectedAlbum clears an ignore mark. Idempotent.
func (s *Service) UnignoreExpectedAlbum(artistID, expectedAlbumID int64) error {
	if _, err := s.resolveExpectedAlbum(artistID, expectedAlbumID); err != nil {
		return err
	}
	return s.store.UnignoreExpectedAlbum(artistID, expectedAlbumID)
}

// UpdateArtistSettings replaces the inclusion rules. Missing booleans
// coerce to false.
func (s *Service) UpdateArtistSettings(artistID int64, includeLive, includeCompilations *bool) (*store.ArtistSettings, error) {
	if _, err := s.resolveArtist(artistID); err != nil {
		return nil, err
	}
	settings := &store.ArtistSettings{ArtistID: artistID}
	if includeLive != nil {
		settings.IncludeLive = *includeLive
	}
	if includeCompilations != nil {
		settings.IncludeCompilations = *includeCompilations
	}
	if err := s.store.UpsertArtistSettings(settings); err != nil {
		return nil, err
	}
	return settings, nil
}

// GetArtistSettings returns the inclusion rules, defaulting both to false
func (s *Service) GetArtistSettings(artistID int64) (*store.ArtistSettings, error) {
	if _, err := s.resolveArtist(artistID); err != nil {
		return nil, err
	}
	return s.store.GetArtistSettings(artistID)
}

// AddExpectedToWishlist puts a synced release on the wishlist. Idempotent.
func (s *Service) AddExpectedToWishlist(expectedAlbumID int64) error {
	album, err := s.store.GetExpectedAlbumByID(expectedAlbumID)
	if err != nil {
		return err
	}
	if album == nil {
		return util.NewNotFoundError("expected album %d not found", expectedAlbumID)
	}
	return s.store.AddToWishlist(expectedAlbumID, s.now())
}

// AddManualWanted records a hand-entered expectation on the legacy
// wanted list. Idempotent per (artist, title).
func (s *Service) AddManualWanted(artistID int64, title string, year *int, source string) error {
	if _, err := s.resolveArtist(artistID); err != nil {
		return err
	}
	if strings.TrimSpace(title) == "" {
		return util.NewValidationError("title is required")
	}
	if source == "" {
		source = "manual"
	}
	return s.store.AddWantedAlbum(artistID, title, year, source, s.now())
}

// MissingTotal sums actionable missing albums across every synced artist
func (s *Service) MissingTotal() (int, error) {
	ids, err := s.store.ListExpectedArtistIDs()
	if err != nil {
		return 0, err
	}
	total := 0
	for _, id := range ids {
		summary, err := s.ComputeSummary(id)
		if err != nil {
			if util.KindOf(err) == util.KindNotFound {
				continue // artist swept since the sync
			}
			return 0, err
		}
		total += summary.MissingCount
	}
	return total, nil
}
