package meta

import (
	"os"
	"strconv"
	"strings"

	"github.com/dhowden/tag"
)

// TagInfo holds the embedded tag fields the scanner cares about.
// Any field may be empty; a nil *TagInfo means the file had no
// recognizable tags at all.
type TagInfo struct {
	Album       string
	AlbumArtist string
	Artist      string
	Year        string
	Title       string
}

// ReadTags extracts tags for the given path. ext is the lowercase
// extension without the dot. FLAC Vorbis comments and MP3 ID3v1 trailers
// are parsed natively; the remaining audio formats go through the tag
// library as a best effort. Failures of any kind yield nil, never an
// error - the scanner turns missing tags into skip reasons.
func ReadTags(path, ext string) *TagInfo {
	switch ext {
	case "flac":
		return readFLACTags(path)
	case "mp3":
		return readID3v1Tags(path)
	case "m4a", "aac", "ogg", "opus", "wav", "aiff", "alac":
		return readWithTagLibrary(path)
	default:
		return nil
	}
}

// readWithTagLibrary reads tags via dhowden/tag for formats we do not
// parse natively.
func readWithTagLibrary(path string) *TagInfo {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return nil
	}

	info := &TagInfo{
		Album:       strings.TrimSpace(m.Album()),
		AlbumArtist: strings.TrimSpace(m.AlbumArtist()),
		Artist:      strings.TrimSpace(m.Artist()),
		Title:       strings.TrimSpace(m.Title()),
	}
	if y := m.Year(); y > 0 {
		info.Year = strconv.Itoa(y)
	}

	if info.Album == "" && info.AlbumArtist == "" && info.Artist == "" && info.Title == "" && info.Year == "" {
		return nil
	}
	return info
}
