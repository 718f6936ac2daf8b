package meta

import (
	"encoding/binary"
	"io"
	"os"
	"strings"
)

// FLAC metadata layout: 4-byte "fLaC" magic, then metadata blocks. Each
// block has a 1-byte header (bit 7 = last-block flag, bits 0-6 = type)
// followed by a 24-bit big-endian length. VORBIS_COMMENT is block type 4.
const flacVorbisCommentBlock = 4

// readFLACTags extracts the tag fields from a FLAC file's Vorbis comment
// block. Returns nil on any structural problem or when no comment block
// exists; tag reading never propagates errors.
func readFLACTags(path string) *TagInfo {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	magic := make([]byte, 4)
	if _, err := io.ReadFull(f, magic); err != nil || string(magic) != "fLaC" {
		return nil
	}

	header := make([]byte, 4)
	for {
		if _, err := io.ReadFull(f, header); err != nil {
			return nil
		}

		last := header[0]&0x80 != 0
		blockType := header[0] & 0x7f
		blockLen := int64(header[1])<<16 | int64(header[2])<<8 | int64(header[3])

		if blockType == flacVorbisCommentBlock {
			block := make([]byte, blockLen)
			if _, err := io.ReadFull(f, block); err != nil {
				return nil
			}
			return parseVorbisComment(block)
		}

		if last {
			return nil
		}
		if _, err := f.Seek(blockLen, io.SeekCurrent); err != nil {
			return nil
		}
	}
}

// parseVorbisComment decodes the comment block body: LE u32 vendor length,
// vendor string, LE u32 comment count, then per comment a LE u32 length
// and UTF-8 "KEY=VALUE" bytes. First value per key wins.
func parseVorbisComment(block []byte) *TagInfo {
	pos := 0

	readU32 := func() (uint32, bool) {
		if pos+4 > len(block) {
			return 0, false
		}
		v := binary.LittleEndian.Uint32(block[pos : pos+4])
		pos += 4
		return v, true
	}

	vendorLen, ok := readU32()
	if !ok || pos+int(vendorLen) > len(block) {
		return nil
	}
	pos += int(vendorLen)

	count, ok := readU32()
	if !ok {
		return nil
	}

	info := &TagInfo{}
	seen := make(map[string]bool)

	for i := uint32(0); i < count; i++ {
		commentLen, ok := readU32()
		if !ok || pos+int(commentLen) > len(block) {
			break
		}
		comment := string(block[pos : pos+int(commentLen)])
		pos += int(commentLen)

		key, value, found := strings.Cut(comment, "=")
		if !found || value == "" {
			continue
		}
		key = strings.ToUpper(key)
		if seen[key] {
			continue
		}
		seen[key] = true

		switch key {
		case "ALBUM":
			info.Album = value
		case "ALBUMARTIST":
			info.AlbumArtist = value
		case "ARTIST":
			info.Artist = value
		case "TITLE":
			info.Title = value
		case "DATE":
			info.Year = value
		case "YEAR":
			if info.Year == "" {
				info.Year = value
			}
		}
	}

	return info
}
