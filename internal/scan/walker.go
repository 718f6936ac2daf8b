package scan

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/franz/crate/internal/util"
)

// audioExtensions is the set of file extensions admitted as track candidates
var audioExtensions = map[string]bool{
	"flac": true,
	"mp3":  true,
	"m4a":  true,
	"aac":  true,
	"ogg":  true,
	"opus": true,
	"wav":  true,
	"aiff": true,
	"alac": true,
}

// Candidate is one audio file found under an artist directory, with the
// stat identity the scanner needs for caching and deduplication.
type Candidate struct {
	Path     string
	Ext      string
	Mtime    time.Time
	Size     int64
	InodeKey string
}

// WalkOptions bounds the traversal of one artist directory
type WalkOptions struct {
	Recursive bool
	MaxDepth  int
}

// SkipFunc receives every path the walker rejects, with a raw reason
type SkipFunc func(path, reason string)

// CollectArtistTracks walks one artist directory and returns its audio
// file candidates. Depth 0 is the artist directory itself; non-recursive
// walks visit depth 0 only. Nothing here returns an error: every problem
// becomes a skip.
func CollectArtistTracks(artistPath string, opts WalkOptions, onSkip SkipFunc) []Candidate {
	maxDepth := opts.MaxDepth
	if !opts.Recursive {
		maxDepth = 0
	}

	var candidates []Candidate
	var walk func(dir string, depth int)
	walk = func(dir string, depth int) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			onSkip(dir, "unreadable-directory")
			return
		}

		for _, entry := range entries {
			name := entry.Name()
			path := filepath.Join(dir, name)

			if strings.HasPrefix(name, ".") {
				onSkip(path, "hidden-path")
				continue
			}

			info, err := os.Lstat(path)
			if err != nil {
				onSkip(path, fmt.Sprintf("unreadable-path: %v", err))
				continue
			}

			// Follow symlinks to their target; a dangling link is a skip
			if info.Mode()&os.ModeSymlink != 0 {
				info, err = os.Stat(path)
				if err != nil {
					onSkip(path, "broken-symlink")
					continue
				}
			}

			switch {
			case info.IsDir():
				if depth+1 > maxDepth {
					onSkip(path, fmt.Sprintf("depth-exceeded:%d", maxDepth))
					continue
				}
				walk(path, depth+1)

			case info.Mode().IsRegular():
				ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
				if !audioExtensions[ext] {
					onSkip(path, "unsupported-extension:"+ext)
					continue
				}
				candidates = append(candidates, Candidate{
					Path:     path,
					Ext:      ext,
					Mtime:    info.ModTime(),
					Size:     info.Size(),
					InodeKey: util.InodeKey(info),
				})

			default:
				onSkip(path, "unsupported-file-type")
			}
		}
	}

	walk(artistPath, 0)
	return candidates
}
