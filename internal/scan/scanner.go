package scan

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/franz/crate/internal/meta"
	"github.com/franz/crate/internal/store"
	"github.com/franz/crate/internal/util"
)

// stateFlushInterval is how many files pass between progress writes
const stateFlushInterval = 50

// Scanner materializes the owned inventory from the library tree.
// At most one scan runs per process; a second start request is refused.
type Scanner struct {
	store *store.Store

	mu      sync.Mutex
	running bool
	done    chan struct{}

	cancelRequested atomic.Bool
}

// Options controls one scan run. ArtistID zero means a full-library run,
// which is the only kind that performs the soft-delete sweep.
type Options struct {
	Recursive bool
	MaxDepth  int
	ArtistID  int64
}

// StartResult reports whether the scan was admitted
type StartResult struct {
	Started bool   `json:"started"`
	Status  string `json:"status"`
}

// New creates a Scanner backed by the given store
func New(st *store.Store) *Scanner {
	return &Scanner{store: st}
}

// Start launches a scan in the background. Only one scan may be in
// flight; concurrent starts return Started=false with the live status.
func (s *Scanner) Start(opts Options) StartResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return StartResult{Started: false, Status: store.ScanStatusRunning}
	}

	if opts.MaxDepth < 1 || opts.MaxDepth > 20 {
		opts.MaxDepth = 3
	}

	s.running = true
	s.done = make(chan struct{})
	s.cancelRequested.Store(false)

	go func() {
		defer func() {
			s.mu.Lock()
			s.running = false
			close(s.done)
			s.mu.Unlock()
		}()
		s.run(opts)
	}()

	return StartResult{Started: true, Status: store.ScanStatusRunning}
}

// Cancel requests cancellation of the in-flight scan. Returns whether a
// scan was actually running. The scan stops at its next checkpoint.
func (s *Scanner) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return false
	}
	s.cancelRequested.Store(true)
	return true
}

// Wait blocks until the current scan finishes. No-op when idle.
func (s *Scanner) Wait() {
	s.mu.Lock()
	done := s.done
	running := s.running
	s.mu.Unlock()
	if running {
		<-done
	}
}

// Status returns the persisted progress snapshot
func (s *Scanner) Status() (*store.ScanState, error) {
	return s.store.GetScanState()
}

// runState carries the mutable progress of one run
type runState struct {
	startedAt int64
	state     *store.ScanState
	dedupe    map[string]bool
	sinceSave int
}

func (s *Scanner) run(opts Options) {
	startedAt := time.Now().Unix()
	rs := &runState{
		startedAt: startedAt,
		dedupe:    make(map[string]bool),
		state: &store.ScanState{
			Status:         store.ScanStatusRunning,
			RunID:          uuid.NewString(),
			StartedAt:      startedAt,
			SkippedReasons: map[string]int{},
		},
	}

	if err := s.store.SaveScanState(rs.state); err != nil {
		util.ErrorLog("Failed to persist scan state: %v", err)
		return
	}
	if err := s.store.ClearSkippedBefore(startedAt); err != nil {
		s.finishWithError(rs, fmt.Errorf("failed to clear skip ledger: %w", err))
		return
	}

	settings, err := s.store.GetSettings()
	if err != nil {
		s.finishWithError(rs, err)
		return
	}

	artistDirs, err := s.resolveArtistDirs(settings.MusicDir, opts.ArtistID)
	if err != nil {
		s.finishWithError(rs, err)
		return
	}

	util.InfoLog("Scan %s started: %d artist directories under %s",
		rs.state.RunID, len(artistDirs), settings.MusicDir)

	cancelled := false
	for _, dir := range artistDirs {
		if s.cancelRequested.Load() {
			cancelled = true
			break
		}
		if err := s.scanArtistDir(rs, dir, opts); err != nil {
			// A failing artist unit is a skip, not a fatal error
			s.recordSkip(rs, dir, fmt.Sprintf("unreadable-artist: %v", err))
		}
		s.flushState(rs, true)
		if s.cancelRequested.Load() {
			cancelled = true
			break
		}
	}

	s.finalize(rs, opts, cancelled)
}

// resolveArtistDirs lists the directories the run will cover, in
// case-sensitive ascending name order.
func (s *Scanner) resolveArtistDirs(musicDir string, artistID int64) ([]string, error) {
	if artistID != 0 {
		artist, err := s.store.GetArtistByID(artistID)
		if err != nil {
			return nil, err
		}
		if artist == nil || artist.Deleted {
			return nil, fmt.Errorf("artist %d not found", artistID)
		}
		return []string{artist.Path}, nil
	}

	entries, err := os.ReadDir(musicDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read library root %s: %w", musicDir, err)
	}

	var dirs []string
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		dirs = append(dirs, filepath.Join(musicDir, entry.Name()))
	}
	sort.Strings(dirs)
	return dirs, nil
}

// albumGroup accumulates admitted tracks that share a normalized
// album-artist + album-title identity.
type albumGroup struct {
	title     string
	formats   []string
	lastMtime int64
	tracks    []Candidate
}

func (s *Scanner) scanArtistDir(rs *runState, artistPath string, opts Options) error {
	now := time.Now().Unix()
	artistName := filepath.Base(artistPath)

	artistID, err := s.store.UpsertArtist(artistName, util.Slugify(artistName), artistPath, now, rs.state.RunID)
	if err != nil {
		return err
	}

	candidates := CollectArtistTracks(artistPath, WalkOptions{
		Recursive: opts.Recursive,
		MaxDepth:  opts.MaxDepth,
	}, func(path, reason string) {
		s.recordSkip(rs, path, reason)
	})

	groups := make(map[string]*albumGroup)
	normalizedFolderArtist := meta.NormalizeArtist(artistName)

	for _, cand := range candidates {
		if s.cancelRequested.Load() {
			return nil
		}
		rs.state.CurrentPath = cand.Path

		entry, err := s.indexCandidate(rs, cand)
		if err != nil {
			s.recordSkip(rs, cand.Path, fmt.Sprintf("unreadable-path: %v", err))
			continue
		}

		if entry.TagAlbum == "" {
			s.recordSkip(rs, cand.Path, "missing-album-tag")
			continue
		}
		albumArtist := entry.TagAlbumArtist
		if albumArtist == "" {
			albumArtist = entry.TagArtist
		}
		if albumArtist == "" {
			s.recordSkip(rs, cand.Path, "missing-artist-tag")
			continue
		}
		if entry.TagAlbumArtist != "" &&
			meta.NormalizeArtist(entry.TagAlbumArtist) != normalizedFolderArtist {
			s.recordSkip(rs, cand.Path, "missing-artist-tag:mismatch")
			continue
		}

		key := dedupeKey(cand)
		if rs.dedupe[key] {
			s.recordSkip(rs, cand.Path, "deduped:"+key)
			continue
		}
		rs.dedupe[key] = true

		groupKey := meta.NormalizeArtist(albumArtist) + "::" + meta.NormalizeTitle(entry.TagAlbum)
		group, ok := groups[groupKey]
		if !ok {
			group = &albumGroup{title: entry.TagAlbum}
			groups[groupKey] = group
		}
		group.formats = append(group.formats, cand.Ext)
		if mt := cand.Mtime.Unix(); mt > group.lastMtime {
			group.lastMtime = mt
		}
		group.tracks = append(group.tracks, cand)

		rs.state.ScannedFiles++
		s.flushState(rs, false)
	}

	for _, group := range groups {
		albumPath := virtualAlbumPath(artistPath, group.title)
		albumID, err := s.store.UpsertAlbum(&store.Album{
			Path:          albumPath,
			ArtistID:      artistID,
			Title:         group.title,
			Formats:       group.formats,
			TrackCount:    len(group.tracks),
			LastFileMtime: group.lastMtime,
			LastSeenAt:    now,
			LastSeenRunID: rs.state.RunID,
		})
		if err != nil {
			return err
		}
		for _, track := range group.tracks {
			if err := s.store.UpsertTrack(&store.Track{
				Path:          track.Path,
				AlbumID:       albumID,
				Ext:           track.Ext,
				Mtime:         track.Mtime.Unix(),
				LastSeenAt:    now,
				LastSeenRunID: rs.state.RunID,
			}); err != nil {
				return err
			}
		}
	}

	util.DebugLog("Scanned %s: %s candidates, %d albums",
		artistName, humanize.Comma(int64(len(candidates))), len(groups))
	return nil
}

// indexCandidate resolves tags and filesystem identity for one file,
// reusing the cache row when (mtime, size) are unchanged.
func (s *Scanner) indexCandidate(rs *runState, cand Candidate) (*store.FileIndexEntry, error) {
	mtime := cand.Mtime.Unix()

	cached, err := s.store.GetFileIndexEntry(cand.Path)
	if err != nil {
		return nil, err
	}
	if cached != nil && cached.Mtime == mtime && cached.Size == cand.Size {
		if err := s.store.TouchFileIndexEntry(cand.Path, rs.startedAt, rs.state.RunID); err != nil {
			return nil, err
		}
		cached.LastScanAt = rs.startedAt
		return cached, nil
	}

	entry := &store.FileIndexEntry{
		Path:          cand.Path,
		Mtime:         mtime,
		Size:          cand.Size,
		InodeKey:      cand.InodeKey,
		LastScanAt:    rs.startedAt,
		LastScanRunID: rs.state.RunID,
	}

	if tags := meta.ReadTags(cand.Path, cand.Ext); tags != nil {
		entry.TagAlbum = tags.Album
		entry.TagAlbumArtist = tags.AlbumArtist
		entry.TagArtist = tags.Artist
		entry.TagYear = tags.Year
		entry.TagTitle = tags.Title
		entry.HasTags = true
	}

	// The content hash is only needed where inodes carry no identity
	if entry.InodeKey == "" {
		hash, err := util.FirstMBHash(cand.Path)
		if err != nil {
			return nil, err
		}
		entry.FileHash = hash
	}

	if err := s.store.UpsertFileIndexEntry(entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// dedupeKey is the per-scan identity that collapses hardlinks and copies.
// Inode identity wins; the fallback combines size, rounded mtime and a
// short hash of the lowercased path.
func dedupeKey(cand Candidate) string {
	if cand.InodeKey != "" {
		return "inode:" + cand.InodeKey
	}
	normalizedPath := strings.ToLower(filepath.Clean(cand.Path))
	return fmt.Sprintf("fallback:%d:%d:%s",
		cand.Size, cand.Mtime.Round(time.Second).Unix(), util.ShortHash(normalizedPath))
}

// virtualAlbumPath derives the stable identity key an album row is
// upserted under. It is never created on disk.
func virtualAlbumPath(artistPath, albumTitle string) string {
	return filepath.Join(artistPath, ".crate",
		util.Slugify(albumTitle)+"-"+util.ShortHash(albumTitle))
}

func (s *Scanner) recordSkip(rs *runState, path, reason string) {
	canonical := CanonicalSkipReason(reason)
	rs.state.SkippedFiles++
	rs.state.SkippedReasons[canonical]++
	if err := s.store.InsertSkipped(rs.startedAt, path, reason); err != nil {
		util.WarnLog("Failed to record skip for %s: %v", path, err)
	}
	s.flushState(rs, false)
}

// flushState persists progress, throttled unless forced
func (s *Scanner) flushState(rs *runState, force bool) {
	rs.sinceSave++
	if !force && rs.sinceSave < stateFlushInterval {
		return
	}
	rs.sinceSave = 0
	if err := s.store.SaveScanState(rs.state); err != nil {
		util.WarnLog("Failed to persist scan progress: %v", err)
	}
}

func (s *Scanner) finalize(rs *runState, opts Options, cancelled bool) {
	if cancelled {
		rs.state.Status = store.ScanStatusCancelled
		util.WarnLog("Scan %s cancelled after %s files",
			rs.state.RunID, humanize.Comma(int64(rs.state.ScannedFiles)))
	} else {
		// Only a completed full-library run may sweep what it did not see.
		// The sweep keys on the run id: timestamps at unix-second
		// granularity cannot separate two scans in the same second.
		if opts.ArtistID == 0 {
			err := s.store.Transaction(func(tx *sql.Tx) error {
				if _, err := s.store.SoftDeleteTracksNotSeen(tx, rs.state.RunID); err != nil {
					return err
				}
				if _, err := s.store.SoftDeleteAlbumsNotSeen(tx, rs.state.RunID); err != nil {
					return err
				}
				if _, err := s.store.SoftDeleteArtistsNotSeen(tx, rs.state.RunID); err != nil {
					return err
				}
				_, err := s.store.PruneFileIndex(tx, rs.state.RunID)
				return err
			})
			if err != nil {
				s.finishWithError(rs, fmt.Errorf("sweep failed: %w", err))
				return
			}
		}
		rs.state.Status = store.ScanStatusIdle
		util.SuccessLog("Scan %s finished: %s files scanned, %s skipped",
			rs.state.RunID,
			humanize.Comma(int64(rs.state.ScannedFiles)),
			humanize.Comma(int64(rs.state.SkippedFiles)))
	}

	rs.state.FinishedAt = time.Now().Unix()
	rs.state.CurrentPath = ""
	if err := s.store.SaveScanState(rs.state); err != nil {
		util.ErrorLog("Failed to persist final scan state: %v", err)
	}
}

func (s *Scanner) finishWithError(rs *runState, err error) {
	util.ErrorLog("Scan %s failed: %v", rs.state.RunID, err)
	rs.state.Status = store.ScanStatusError
	rs.state.Error = err.Error()
	rs.state.FinishedAt = time.Now().Unix()
	rs.state.CurrentPath = ""
	if saveErr := s.store.SaveScanState(rs.state); saveErr != nil {
		util.ErrorLog("Failed to persist scan error state: %v", saveErr)
	}
}
