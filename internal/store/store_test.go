package store

import (
	"database/sql"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMigrationsReachCurrentVersion(t *testing.T) {
	s := openTestStore(t)

	version, err := s.getSchemaVersion()
	if err != nil {
		t.Fatalf("Failed to read schema version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("Expected schema version %d, got %d", currentSchemaVersion, version)
	}

	// The additive columns must exist after migration
	tx, err := s.db.Begin()
	if err != nil {
		t.Fatalf("Failed to begin transaction: %v", err)
	}
	defer tx.Rollback()
	for _, col := range []struct{ table, column string }{
		{"albums", "owned"},
		{"scan_state", "run_id"},
		{"artists", "last_seen_run_id"},
		{"albums", "last_seen_run_id"},
		{"tracks", "last_seen_run_id"},
		{"file_index", "last_scan_run_id"},
	} {
		exists, err := columnExists(tx, col.table, col.column)
		if err != nil {
			t.Fatalf("Failed to check column %s.%s: %v", col.table, col.column, err)
		}
		if !exists {
			t.Errorf("Expected column %s.%s to exist after migration", col.table, col.column)
		}
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	s.Close()

	// Reopening runs migrate again against an up-to-date database
	s, err = Open(dbPath)
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}
	defer s.Close()

	if err := s.CheckIntegrity(); err != nil {
		t.Errorf("Integrity check failed after reopen: %v", err)
	}
}

func TestUpsertArtistRefreshesAndUndeletes(t *testing.T) {
	s := openTestStore(t)

	id1, err := s.UpsertArtist("Boards of Canada", "boards-of-canada", "/music/Boards of Canada", 100, "run-1")
	if err != nil {
		t.Fatalf("Failed to upsert artist: %v", err)
	}

	if _, err := s.db.Exec("UPDATE artists SET deleted = 1 WHERE id = ?", id1); err != nil {
		t.Fatalf("Failed to mark artist deleted: %v", err)
	}

	id2, err := s.UpsertArtist("Boards of Canada", "boards-of-canada", "/music/Boards of Canada", 200, "run-2")
	if err != nil {
		t.Fatalf("Failed to re-upsert artist: %v", err)
	}
	if id2 != id1 {
		t.Errorf("Expected same artist id on re-upsert, got %d and %d", id1, id2)
	}

	artist, err := s.GetArtistByID(id2)
	if err != nil {
		t.Fatalf("Failed to reload artist: %v", err)
	}
	if artist.Deleted {
		t.Error("Expected re-upserted artist to be undeleted")
	}
	if artist.LastSeenAt != 200 {
		t.Errorf("Expected last_seen_at 200, got %d", artist.LastSeenAt)
	}
}

func TestUpsertAlbumPreservesOwnedFlag(t *testing.T) {
	s := openTestStore(t)

	artistID, err := s.UpsertArtist("Autechre", "autechre", "/music/Autechre", 100, "run-1")
	if err != nil {
		t.Fatalf("Failed to upsert artist: %v", err)
	}

	album := &Album{
		Path:       "/music/Autechre/.crate/tri-repetae-0a1b2c3d",
		ArtistID:   artistID,
		Title:      "Tri Repetae",
		Formats:    []string{"flac"},
		TrackCount: 10,
		LastSeenAt: 100,
	}
	albumID, err := s.UpsertAlbum(album)
	if err != nil {
		t.Fatalf("Failed to upsert album: %v", err)
	}

	a1, err := s.GetAlbumByID(albumID)
	if err != nil {
		t.Fatalf("Failed to reload album: %v", err)
	}
	if !a1.Owned {
		t.Error("Expected freshly inserted album to be owned")
	}

	found, err := s.SetAlbumOwned(albumID, false)
	if err != nil || !found {
		t.Fatalf("Failed to clear owned flag: found=%v err=%v", found, err)
	}

	// A rescan upsert must not flip the flag back
	album.LastSeenAt = 200
	if _, err := s.UpsertAlbum(album); err != nil {
		t.Fatalf("Failed to re-upsert album: %v", err)
	}
	a2, err := s.GetAlbumByID(albumID)
	if err != nil {
		t.Fatalf("Failed to reload album: %v", err)
	}
	if a2.Owned {
		t.Error("Expected owned flag to survive rescan upsert")
	}
	if a2.LastSeenAt != 200 {
		t.Errorf("Expected last_seen_at 200 after re-upsert, got %d", a2.LastSeenAt)
	}
}

func TestSoftDeleteSweep(t *testing.T) {
	s := openTestStore(t)

	artistID, err := s.UpsertArtist("Plaid", "plaid", "/music/Plaid", 100, "run-1")
	if err != nil {
		t.Fatalf("Failed to upsert artist: %v", err)
	}
	albumID, err := s.UpsertAlbum(&Album{
		Path: "/music/Plaid/.crate/rest-proof-clockwork-11223344", ArtistID: artistID,
		Title: "Rest Proof Clockwork", Formats: []string{"flac"},
		LastSeenAt: 100, LastSeenRunID: "run-1",
	})
	if err != nil {
		t.Fatalf("Failed to upsert album: %v", err)
	}
	if err := s.UpsertTrack(&Track{
		Path: "/music/Plaid/Rest Proof Clockwork/01.flac", AlbumID: albumID,
		Ext: "flac", Mtime: 100, LastSeenAt: 100, LastSeenRunID: "run-1",
	}); err != nil {
		t.Fatalf("Failed to upsert track: %v", err)
	}

	// A later run that saw none of it marks everything deleted. Both runs
	// share the same last_seen_at on purpose: back-to-back scans land in
	// the same unix second, so the sweep must key on the run id alone.
	err = s.Transaction(func(tx *sql.Tx) error {
		if _, err := s.SoftDeleteTracksNotSeen(tx, "run-2"); err != nil {
			return err
		}
		if _, err := s.SoftDeleteAlbumsNotSeen(tx, "run-2"); err != nil {
			return err
		}
		_, err := s.SoftDeleteArtistsNotSeen(tx, "run-2")
		return err
	})
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}

	if got, err := s.GetArtistBySlug("plaid"); err != nil || got != nil {
		t.Errorf("Expected swept artist to be hidden, got %v err %v", got, err)
	}
	swept, err := s.GetAlbumByID(albumID)
	if err != nil {
		t.Fatalf("Failed to reload album: %v", err)
	}
	if !swept.Deleted {
		t.Error("Expected album to be soft-deleted by sweep")
	}
	tracks, err := s.GetTracksForAlbum(albumID)
	if err != nil {
		t.Fatalf("Failed to list tracks: %v", err)
	}
	if len(tracks) != 0 {
		t.Errorf("Expected swept tracks to be hidden, got %d", len(tracks))
	}
}

func TestSweepSparesRowsStampedByCurrentRun(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.UpsertArtist("Plaid", "plaid", "/music/Plaid", 100, "run-2"); err != nil {
		t.Fatalf("Failed to upsert artist: %v", err)
	}

	err := s.Transaction(func(tx *sql.Tx) error {
		n, err := s.SoftDeleteArtistsNotSeen(tx, "run-2")
		if err != nil {
			return err
		}
		if n != 0 {
			t.Errorf("Expected sweep to spare the current run's rows, swept %d", n)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}

	artist, err := s.GetArtistBySlug("plaid")
	if err != nil || artist == nil {
		t.Fatalf("Expected artist to survive its own run's sweep: %v", err)
	}
}

func TestFileIndexRoundTripAndPrune(t *testing.T) {
	s := openTestStore(t)

	entry := &FileIndexEntry{
		Path: "/music/A/B/01.flac", Mtime: 1000, Size: 4096,
		InodeKey: "2049:12345", FileHash: "deadbeefdeadbeef",
		TagAlbum: "B", TagAlbumArtist: "A", TagArtist: "A",
		TagYear: "1998", TagTitle: "Song", HasTags: true,
		LastScanAt: 100, LastScanRunID: "run-1",
	}
	if err := s.UpsertFileIndexEntry(entry); err != nil {
		t.Fatalf("Failed to upsert file index entry: %v", err)
	}

	got, err := s.GetFileIndexEntry("/music/A/B/01.flac")
	if err != nil {
		t.Fatalf("Failed to get file index entry: %v", err)
	}
	if got == nil || got.TagAlbum != "B" || got.Mtime != 1000 || !got.HasTags {
		t.Errorf("File index entry mismatch: %+v", got)
	}

	if err := s.TouchFileIndexEntry("/music/A/B/01.flac", 200, "run-2"); err != nil {
		t.Fatalf("Failed to touch entry: %v", err)
	}

	// A third run that never touched the path prunes it
	err = s.Transaction(func(tx *sql.Tx) error {
		_, err := s.PruneFileIndex(tx, "run-3")
		return err
	})
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	got, err = s.GetFileIndexEntry("/music/A/B/01.flac")
	if err != nil {
		t.Fatalf("Failed to re-get entry: %v", err)
	}
	if got != nil {
		t.Error("Expected pruned entry to be gone")
	}
}

func TestScanStateRoundTrip(t *testing.T) {
	s := openTestStore(t)

	state, err := s.GetScanState()
	if err != nil {
		t.Fatalf("Failed to get initial scan state: %v", err)
	}
	if state.Status != ScanStatusIdle {
		t.Errorf("Expected fresh database to report idle, got %q", state.Status)
	}

	state.Status = ScanStatusRunning
	state.RunID = "run-1"
	state.StartedAt = 100
	state.ScannedFiles = 42
	state.SkippedFiles = 3
	state.SkippedReasons = map[string]int{"missing album tag": 3}
	if err := s.SaveScanState(state); err != nil {
		t.Fatalf("Failed to save scan state: %v", err)
	}

	got, err := s.GetScanState()
	if err != nil {
		t.Fatalf("Failed to reload scan state: %v", err)
	}
	if got.Status != ScanStatusRunning || got.RunID != "run-1" || got.ScannedFiles != 42 {
		t.Errorf("Scan state mismatch: %+v", got)
	}
	if got.SkippedReasons["missing album tag"] != 3 {
		t.Errorf("Expected skip reason counts to round-trip, got %v", got.SkippedReasons)
	}
}

func TestExpectedAlbumSyncPrune(t *testing.T) {
	s := openTestStore(t)

	artistID, err := s.UpsertArtist("Orbital", "orbital", "/music/Orbital", 100, "run-1")
	if err != nil {
		t.Fatalf("Failed to upsert artist: %v", err)
	}
	ea, err := s.UpsertExpectedArtist(artistID, "mbid-orbital", "Orbital", 100)
	if err != nil {
		t.Fatalf("Failed to upsert expected artist: %v", err)
	}

	firstSync := int64(100)
	err = s.Transaction(func(tx *sql.Tx) error {
		for _, rg := range []struct{ id, title string }{
			{"rg-1", "Orbital"},
			{"rg-2", "Snivilisation"},
		} {
			if err := s.UpsertExpectedAlbumTx(tx, &ExpectedAlbum{
				ExpectedArtistID: ea.ID, MBReleaseGroupID: rg.id,
				Title: rg.title, NormalizedTitle: rg.title,
				PrimaryType: "Album", UpdatedAt: firstSync,
			}); err != nil {
				return err
			}
		}
		_, err := s.PruneExpectedAlbumsTx(tx, ea.ID, firstSync)
		return err
	})
	if err != nil {
		t.Fatalf("First sync failed: %v", err)
	}

	// Second sync only refreshes rg-1; rg-2 must be pruned
	secondSync := int64(200)
	err = s.Transaction(func(tx *sql.Tx) error {
		if err := s.UpsertExpectedAlbumTx(tx, &ExpectedAlbum{
			ExpectedArtistID: ea.ID, MBReleaseGroupID: "rg-1",
			Title: "Orbital", NormalizedTitle: "orbital",
			PrimaryType: "Album", UpdatedAt: secondSync,
		}); err != nil {
			return err
		}
		pruned, err := s.PruneExpectedAlbumsTx(tx, ea.ID, secondSync)
		if err != nil {
			return err
		}
		if pruned != 1 {
			t.Errorf("Expected 1 pruned row, got %d", pruned)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Second sync failed: %v", err)
	}

	albums, err := s.GetExpectedAlbums(ea.ID)
	if err != nil {
		t.Fatalf("Failed to list expected albums: %v", err)
	}
	if len(albums) != 1 || albums[0].MBReleaseGroupID != "rg-1" {
		t.Errorf("Expected only rg-1 to survive, got %d albums", len(albums))
	}
	if albums[0].NormalizedTitle != "orbital" {
		t.Errorf("Expected refreshed normalized title, got %q", albums[0].NormalizedTitle)
	}
}

func TestIgnoreIsIdempotent(t *testing.T) {
	s := openTestStore(t)

	artistID, err := s.UpsertArtist("Aphex Twin", "aphex-twin", "/music/Aphex Twin", 100, "run-1")
	if err != nil {
		t.Fatalf("Failed to upsert artist: %v", err)
	}
	ea, err := s.UpsertExpectedArtist(artistID, "mbid-aphex", "Aphex Twin", 100)
	if err != nil {
		t.Fatalf("Failed to upsert expected artist: %v", err)
	}
	err = s.Transaction(func(tx *sql.Tx) error {
		return s.UpsertExpectedAlbumTx(tx, &ExpectedAlbum{
			ExpectedArtistID: ea.ID, MBReleaseGroupID: "rg-drukqs",
			Title: "Drukqs", NormalizedTitle: "drukqs", PrimaryType: "Album", UpdatedAt: 100,
		})
	})
	if err != nil {
		t.Fatalf("Failed to insert expected album: %v", err)
	}
	albums, err := s.GetExpectedAlbums(ea.ID)
	if err != nil || len(albums) != 1 {
		t.Fatalf("Failed to list expected albums: %v", err)
	}
	albumID := albums[0].ID

	for i := 0; i < 2; i++ {
		if err := s.IgnoreExpectedAlbum(artistID, albumID); err != nil {
			t.Fatalf("Ignore attempt %d failed: %v", i, err)
		}
	}
	ignored, err := s.GetIgnoredExpectedAlbumIDs(artistID)
	if err != nil {
		t.Fatalf("Failed to list ignored: %v", err)
	}
	if len(ignored) != 1 || !ignored[albumID] {
		t.Errorf("Expected exactly one ignored id, got %v", ignored)
	}

	if err := s.UnignoreExpectedAlbum(artistID, albumID); err != nil {
		t.Fatalf("Unignore failed: %v", err)
	}
	if err := s.UnignoreExpectedAlbum(artistID, albumID); err != nil {
		t.Fatalf("Second unignore failed: %v", err)
	}
}

func TestListAlbumsFiltersAndPaginates(t *testing.T) {
	s := openTestStore(t)

	artistID, err := s.UpsertArtist("Squarepusher", "squarepusher", "/music/Squarepusher", 100, "run-1")
	if err != nil {
		t.Fatalf("Failed to upsert artist: %v", err)
	}
	titles := []string{"Feed Me Weird Things", "Hard Normal Daddy", "Go Plastic"}
	for _, title := range titles {
		if _, err := s.UpsertAlbum(&Album{
			Path: "/music/Squarepusher/.crate/" + title, ArtistID: artistID,
			Title: title, Formats: []string{"flac"}, LastSeenAt: 100,
		}); err != nil {
			t.Fatalf("Failed to upsert album %q: %v", title, err)
		}
	}

	albums, total, err := s.ListAlbums(AlbumFilter{Search: "plastic"})
	if err != nil {
		t.Fatalf("Failed to list albums: %v", err)
	}
	if total != 1 || len(albums) != 1 || albums[0].Title != "Go Plastic" {
		t.Errorf("Search filter mismatch: total=%d albums=%d", total, len(albums))
	}

	albums, total, err = s.ListAlbums(AlbumFilter{Page: 2, PageSize: 2})
	if err != nil {
		t.Fatalf("Failed to paginate albums: %v", err)
	}
	if total != 3 || len(albums) != 1 {
		t.Errorf("Pagination mismatch: total=%d page2=%d", total, len(albums))
	}
}

func TestSettingsDefaultAndSave(t *testing.T) {
	s := openTestStore(t)

	set, err := s.GetSettings()
	if err != nil {
		t.Fatalf("Failed to get default settings: %v", err)
	}
	if set.MusicDir != "/music" || !set.ScanRecursive || set.ScanMaxDepth != 3 {
		t.Errorf("Unexpected defaults: %+v", set)
	}

	set.MusicDir = "/srv/audio"
	set.ScanMaxDepth = 5
	set.UpdatedAt = 100
	if err := s.SaveSettings(set); err != nil {
		t.Fatalf("Failed to save settings: %v", err)
	}

	got, err := s.GetSettings()
	if err != nil {
		t.Fatalf("Failed to reload settings: %v", err)
	}
	if got.MusicDir != "/srv/audio" || got.ScanMaxDepth != 5 {
		t.Errorf("Settings did not round-trip: %+v", got)
	}
}

func TestMatchOverrideReplacesBothSides(t *testing.T) {
	s := openTestStore(t)

	artistID, err := s.UpsertArtist("Underworld", "underworld", "/music/Underworld", 100, "run-1")
	if err != nil {
		t.Fatalf("Failed to upsert artist: %v", err)
	}
	ea, err := s.UpsertExpectedArtist(artistID, "mbid-uw", "Underworld", 100)
	if err != nil {
		t.Fatalf("Failed to upsert expected artist: %v", err)
	}
	err = s.Transaction(func(tx *sql.Tx) error {
		for _, rg := range []string{"rg-a", "rg-b"} {
			if err := s.UpsertExpectedAlbumTx(tx, &ExpectedAlbum{
				ExpectedArtistID: ea.ID, MBReleaseGroupID: rg,
				Title: rg, NormalizedTitle: rg, PrimaryType: "Album", UpdatedAt: 100,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Failed to insert expected albums: %v", err)
	}
	expected, err := s.GetExpectedAlbums(ea.ID)
	if err != nil || len(expected) != 2 {
		t.Fatalf("Failed to list expected albums: %v", err)
	}

	ownedID, err := s.UpsertAlbum(&Album{
		Path: "/music/Underworld/.crate/dubnobass-55667788", ArtistID: artistID,
		Title: "dubnobasswithmyheadman", Formats: []string{"flac"}, LastSeenAt: 100,
	})
	if err != nil {
		t.Fatalf("Failed to upsert album: %v", err)
	}

	if err := s.SetMatchOverride(expected[0].ID, ownedID); err != nil {
		t.Fatalf("Failed to set first override: %v", err)
	}
	// Rebinding the owned album to a different expected release must
	// drop the first binding
	if err := s.SetMatchOverride(expected[1].ID, ownedID); err != nil {
		t.Fatalf("Failed to set second override: %v", err)
	}

	overrides, err := s.GetMatchOverrides(ea.ID)
	if err != nil {
		t.Fatalf("Failed to list overrides: %v", err)
	}
	if len(overrides) != 1 || overrides[expected[1].ID] != ownedID {
		t.Errorf("Expected single override to rg-b, got %v", overrides)
	}
}
