package meta

import (
	"io"
	"os"
	"strings"
)

// ID3v1 is a fixed 128-byte trailer: "TAG", then Latin-1 fields
// title[3:33], artist[33:63], album[63:93], year[93:97].

const id3v1Size = 128

// readID3v1Tags extracts tag fields from an MP3's ID3v1 trailer.
// Returns nil when the file is too small, carries no trailer, or the
// album field is empty; errors never propagate.
func readID3v1Tags(path string) *TagInfo {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil || stat.Size() < id3v1Size {
		return nil
	}

	buf := make([]byte, id3v1Size)
	if _, err := f.Seek(-id3v1Size, io.SeekEnd); err != nil {
		return nil
	}
	if _, err := io.ReadFull(f, buf); err != nil {
		return nil
	}

	if string(buf[0:3]) != "TAG" {
		return nil
	}

	info := &TagInfo{
		Title:  decodeID3v1Field(buf[3:33]),
		Artist: decodeID3v1Field(buf[33:63]),
		Album:  decodeID3v1Field(buf[63:93]),
		Year:   decodeID3v1Field(buf[93:97]),
	}

	if info.Album == "" {
		return nil
	}
	return info
}

// decodeID3v1Field decodes a fixed-width Latin-1 field, trimming trailing
// NULs and whitespace.
func decodeID3v1Field(raw []byte) string {
	runes := make([]rune, 0, len(raw))
	for _, b := range raw {
		runes = append(runes, rune(b))
	}
	return strings.TrimRight(string(runes), "\x00 \t")
}
