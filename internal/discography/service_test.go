package discography

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/franz/crate/internal/musicbrainz"
	"github.com/franz/crate/internal/store"
	"github.com/franz/crate/internal/util"
)

type fakeClient struct {
	match  *musicbrainz.ArtistMatch
	albums []musicbrainz.ReleaseGroup
	err    error
}

func (f *fakeClient) FindArtistByName(ctx context.Context, name string) (*musicbrainz.ArtistMatch, error) {
	return f.match, f.err
}

func (f *fakeClient) FetchArtistAlbums(ctx context.Context, mbid string) ([]musicbrainz.ReleaseGroup, error) {
	return f.albums, f.err
}

func newTestService(t *testing.T, client *fakeClient) (*Service, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	svc := New(st, client)
	clock := int64(1000)
	svc.now = func() int64 { clock++; return clock }
	return svc, st
}

func seedArtist(t *testing.T, st *store.Store, name string, ownedTitles []string) int64 {
	t.Helper()
	artistID, err := st.UpsertArtist(name, util.Slugify(name), "/music/"+name, 100, "run-1")
	if err != nil {
		t.Fatalf("Failed to seed artist: %v", err)
	}
	for _, title := range ownedTitles {
		if _, err := st.UpsertAlbum(&store.Album{
			Path:     "/music/" + name + "/.crate/" + util.Slugify(title) + "-" + util.ShortHash(title),
			ArtistID: artistID, Title: title, Formats: []string{"flac"}, LastSeenAt: 100,
		}); err != nil {
			t.Fatalf("Failed to seed album %q: %v", title, err)
		}
	}
	return artistID
}

func intPtr(i int) *int    { return &i }
func boolPtr(b bool) *bool { return &b }

func TestSummaryWithNormalizationAndLiveFilter(t *testing.T) {
	client := &fakeClient{
		match: &musicbrainz.ArtistMatch{MBID: "mbid-nfg", Name: "New Found Glory", Score: 100},
		albums: []musicbrainz.ReleaseGroup{
			{MBReleaseGroupID: "rg-1", Title: "Sticks and Stones", PrimaryType: "Album", Year: intPtr(2002)},
			{MBReleaseGroupID: "rg-2", Title: "Sticks & Stones", PrimaryType: "Album", Year: intPtr(2002)},
			{MBReleaseGroupID: "rg-3", Title: "Catalyst", PrimaryType: "Album", Year: intPtr(2004)},
			{MBReleaseGroupID: "rg-4", Title: "Live EP", PrimaryType: "Album", SecondaryTypes: []string{"Live"}},
		},
	}
	svc, st := newTestService(t, client)
	artistID := seedArtist(t, st, "New Found Glory", []string{"Sticks and Stones", "Coming Home"})

	summary, err := svc.SyncExpectedForArtist(context.Background(), artistID)
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	if summary.OwnedCount != 2 {
		t.Errorf("ownedCount: want 2, got %d", summary.OwnedCount)
	}
	if summary.ExpectedCount != 4 {
		t.Errorf("expectedCount: want 4, got %d", summary.ExpectedCount)
	}
	if summary.MissingCount != 1 {
		t.Errorf("missingCount: want 1, got %d", summary.MissingCount)
	}
	if len(summary.MissingAlbums) != 1 || summary.MissingAlbums[0].Title != "Catalyst" {
		t.Errorf("Expected only Catalyst missing, got %+v", summary.MissingAlbums)
	}
	if summary.CompletionPct == nil || *summary.CompletionPct != 75 {
		t.Errorf("completionPct: want 75, got %v", summary.CompletionPct)
	}
	if summary.MatchedOwnedCount != 1 {
		t.Errorf("matchedOwnedCount: want 1, got %d", summary.MatchedOwnedCount)
	}
	if len(summary.UnmatchedOwnedAlbums) != 1 || summary.UnmatchedOwnedAlbums[0].Title != "Coming Home" {
		t.Errorf("Expected Coming Home unmatched, got %+v", summary.UnmatchedOwnedAlbums)
	}
}

func TestSummaryIncludeLiveSetting(t *testing.T) {
	client := &fakeClient{
		match: &musicbrainz.ArtistMatch{MBID: "mbid-x", Name: "X", Score: 100},
		albums: []musicbrainz.ReleaseGroup{
			{MBReleaseGroupID: "rg-1", Title: "Live at Leeds", PrimaryType: "Album", SecondaryTypes: []string{"Live"}},
		},
	}
	svc, st := newTestService(t, client)
	artistID := seedArtist(t, st, "X", nil)

	if _, err := svc.UpdateArtistSettings(artistID, boolPtr(true), nil); err != nil {
		t.Fatalf("Failed to update settings: %v", err)
	}

	summary, err := svc.SyncExpectedForArtist(context.Background(), artistID)
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if summary.MissingCount != 1 {
		t.Errorf("Expected live album to count as missing with includeLive=true, got %d", summary.MissingCount)
	}
	if summary.Settings.IncludeCompilations {
		t.Error("Expected missing boolean to coerce to false")
	}
}

func TestSyncTransactionalPrune(t *testing.T) {
	five := []musicbrainz.ReleaseGroup{
		{MBReleaseGroupID: "rg-1", Title: "One", PrimaryType: "Album"},
		{MBReleaseGroupID: "rg-2", Title: "Two", PrimaryType: "Album"},
		{MBReleaseGroupID: "rg-3", Title: "Three", PrimaryType: "Album"},
		{MBReleaseGroupID: "rg-4", Title: "Four", PrimaryType: "Album"},
		{MBReleaseGroupID: "rg-5", Title: "Five", PrimaryType: "Album"},
	}
	client := &fakeClient{
		match:  &musicbrainz.ArtistMatch{MBID: "mbid-x", Name: "X", Score: 100},
		albums: five,
	}
	svc, st := newTestService(t, client)
	artistID := seedArtist(t, st, "X", nil)

	if _, err := svc.SyncExpectedForArtist(context.Background(), artistID); err != nil {
		t.Fatalf("First sync failed: %v", err)
	}

	client.albums = five[:4]
	if _, err := svc.SyncExpectedForArtist(context.Background(), artistID); err != nil {
		t.Fatalf("Second sync failed: %v", err)
	}

	expectedArtist, err := st.GetExpectedArtist(artistID)
	if err != nil || expectedArtist == nil {
		t.Fatalf("Failed to load expected artist: %v", err)
	}
	albums, err := st.GetExpectedAlbums(expectedArtist.ID)
	if err != nil {
		t.Fatalf("Failed to list expected albums: %v", err)
	}
	if len(albums) != 4 {
		t.Fatalf("Expected 4 rows after prune, got %d", len(albums))
	}
	secondSyncAt := albums[0].UpdatedAt
	for _, a := range albums {
		if a.UpdatedAt != secondSyncAt {
			t.Errorf("Expected all rows stamped with the second sync time, got %d and %d",
				secondSyncAt, a.UpdatedAt)
		}
		if a.MBReleaseGroupID == "rg-5" {
			t.Error("Expected rg-5 to be pruned")
		}
	}
}

func TestSyncUpstreamFailureSurfacesDetails(t *testing.T) {
	client := &fakeClient{
		err: util.NewUpstreamError(503, "upstream rate limited (503)", "try later"),
	}
	svc, st := newTestService(t, client)
	artistID := seedArtist(t, st, "X", nil)

	_, err := svc.SyncExpectedForArtist(context.Background(), artistID)
	appErr := util.AsAppError(err)
	if appErr == nil || appErr.Kind != util.KindUpstream {
		t.Fatalf("Expected upstream AppError, got %v", err)
	}
	if appErr.StatusCode != 503 || appErr.Details != "try later" {
		t.Errorf("Expected upstream status and details preserved, got %+v", appErr)
	}
}

func TestSyncUnknownArtist(t *testing.T) {
	svc, _ := newTestService(t, &fakeClient{})
	_, err := svc.SyncExpectedForArtist(context.Background(), 12345)
	if util.KindOf(err) != util.KindNotFound {
		t.Errorf("Expected not-found for unknown artist, got %v", err)
	}
}

func TestIgnoreAffectsSummaryCounts(t *testing.T) {
	client := &fakeClient{
		match: &musicbrainz.ArtistMatch{MBID: "mbid-x", Name: "X", Score: 100},
		albums: []musicbrainz.ReleaseGroup{
			{MBReleaseGroupID: "rg-1", Title: "Kept", PrimaryType: "Album"},
			{MBReleaseGroupID: "rg-2", Title: "Skipped", PrimaryType: "Album"},
		},
	}
	svc, st := newTestService(t, client)
	artistID := seedArtist(t, st, "X", nil)

	summary, err := svc.SyncExpectedForArtist(context.Background(), artistID)
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if summary.MissingCount != 2 {
		t.Fatalf("Expected both releases missing before ignore, got %d", summary.MissingCount)
	}

	target := summary.MissingAlbums[0].ID
	if err := svc.IgnoreExpectedAlbum(artistID, target); err != nil {
		t.Fatalf("Ignore failed: %v", err)
	}

	summary, err = svc.ComputeSummary(artistID)
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}
	if summary.MissingCount != 1 || summary.IgnoredCount != 1 {
		t.Errorf("Expected missing=1 ignored=1, got missing=%d ignored=%d",
			summary.MissingCount, summary.IgnoredCount)
	}

	if err := svc.UnignoreExpectedAlbum(artistID, target); err != nil {
		t.Fatalf("Unignore failed: %v", err)
	}
	summary, err = svc.ComputeSummary(artistID)
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}
	if summary.MissingCount != 2 || summary.IgnoredCount != 0 {
		t.Errorf("Expected missing=2 after unignore, got missing=%d ignored=%d",
			summary.MissingCount, summary.IgnoredCount)
	}
}

func TestIgnoreRejectsForeignAlbum(t *testing.T) {
	client := &fakeClient{
		match: &musicbrainz.ArtistMatch{MBID: "mbid-x", Name: "X", Score: 100},
		albums: []musicbrainz.ReleaseGroup{
			{MBReleaseGroupID: "rg-1", Title: "One", PrimaryType: "Album"},
		},
	}
	svc, st := newTestService(t, client)
	artistID := seedArtist(t, st, "X", nil)
	otherID := seedArtist(t, st, "Y", nil)

	summary, err := svc.SyncExpectedForArtist(context.Background(), artistID)
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	albumID := summary.MissingAlbums[0].ID

	err = svc.IgnoreExpectedAlbum(otherID, albumID)
	if util.KindOf(err) != util.KindNotFound {
		t.Errorf("Expected not-found when artist and album do not belong together, got %v", err)
	}
}

func TestMatchOverrideWinsOverTitleMismatch(t *testing.T) {
	client := &fakeClient{
		match: &musicbrainz.ArtistMatch{MBID: "mbid-x", Name: "X", Score: 100},
		albums: []musicbrainz.ReleaseGroup{
			{MBReleaseGroupID: "rg-1", Title: "Completely Different Name", PrimaryType: "Album"},
		},
	}
	svc, st := newTestService(t, client)
	artistID := seedArtist(t, st, "X", []string{"Self Titled"})

	summary, err := svc.SyncExpectedForArtist(context.Background(), artistID)
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if summary.MissingCount != 1 {
		t.Fatalf("Expected a miss before the override, got %d", summary.MissingCount)
	}

	owned, err := st.GetOwnedAlbumsForArtist(artistID)
	if err != nil || len(owned) != 1 {
		t.Fatalf("Failed to load owned albums: %v", err)
	}
	if err := st.SetMatchOverride(summary.MissingAlbums[0].ID, owned[0].ID); err != nil {
		t.Fatalf("Failed to set override: %v", err)
	}

	summary, err = svc.ComputeSummary(artistID)
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}
	if summary.MissingCount != 0 || summary.MatchedOwnedCount != 1 {
		t.Errorf("Expected override to resolve the miss, got missing=%d matched=%d",
			summary.MissingCount, summary.MatchedOwnedCount)
	}
}

func TestLegacyOverviewUsesAliases(t *testing.T) {
	svc, st := newTestService(t, &fakeClient{})
	artistID := seedArtist(t, st, "X", []string{"Self Titled"})

	if err := svc.AddManualWanted(artistID, "The Early Demos", nil, "manual"); err != nil {
		t.Fatalf("Failed to add wanted album: %v", err)
	}
	if err := svc.AddManualWanted(artistID, "S/T", nil, "manual"); err != nil {
		t.Fatalf("Failed to add second wanted album: %v", err)
	}
	albums, err := st.GetAlbumsForArtist(artistID)
	if err != nil || len(albums) != 1 {
		t.Fatalf("Failed to load albums: %v", err)
	}
	if err := st.AddAlbumAlias(albums[0].ID, "S/T"); err != nil {
		t.Fatalf("Failed to add alias: %v", err)
	}

	overview, err := svc.ArtistOverview(artistID)
	if err != nil {
		t.Fatalf("Overview failed: %v", err)
	}
	if len(overview.WantedAlbums) != 2 {
		t.Errorf("Expected 2 wanted albums, got %d", len(overview.WantedAlbums))
	}
	if len(overview.MissingWanted) != 1 || overview.MissingWanted[0].Title != "The Early Demos" {
		t.Errorf("Expected only the demos missing, got %+v", overview.MissingWanted)
	}
}

func TestWishlistRequiresExistingExpectedAlbum(t *testing.T) {
	svc, st := newTestService(t, &fakeClient{
		match: &musicbrainz.ArtistMatch{MBID: "mbid-x", Name: "X", Score: 100},
		albums: []musicbrainz.ReleaseGroup{
			{MBReleaseGroupID: "rg-1", Title: "One", PrimaryType: "Album"},
		},
	})
	artistID := seedArtist(t, st, "X", nil)

	if err := svc.AddExpectedToWishlist(999); util.KindOf(err) != util.KindNotFound {
		t.Errorf("Expected not-found for unknown expected album, got %v", err)
	}

	summary, err := svc.SyncExpectedForArtist(context.Background(), artistID)
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	albumID := summary.MissingAlbums[0].ID

	// Idempotent add
	for i := 0; i < 2; i++ {
		if err := svc.AddExpectedToWishlist(albumID); err != nil {
			t.Fatalf("Wishlist add %d failed: %v", i, err)
		}
	}
	count, err := st.CountWishlist()
	if err != nil || count != 1 {
		t.Errorf("Expected 1 wishlist row, got %d (err %v)", count, err)
	}
}
