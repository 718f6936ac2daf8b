package util

import (
	"crypto/sha1"
	"fmt"
	"io"
	"os"
	"syscall"
)

// firstMBLimit bounds content hashing to the first mebibyte.
// Enough to distinguish files without reading whole FLACs off a NAS.
const firstMBLimit = 1 << 20

// InodeKey returns the "{dev}:{ino}" identity for a stat result, or ""
// when the filesystem does not expose meaningful inode numbers.
func InodeKey(info os.FileInfo) string {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return ""
	}
	if stat.Ino == 0 {
		return ""
	}
	return fmt.Sprintf("%d:%d", stat.Dev, stat.Ino)
}

// FirstMBHash returns the first 16 hex characters of the SHA1 over the
// first 1 MiB of the file. Used as a content identity fallback when the
// filesystem lacks inodes.
func FirstMBHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file for hashing: %w", err)
	}
	defer f.Close()

	h := sha1.New()
	if _, err := io.CopyN(h, f, firstMBLimit); err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to hash file: %w", err)
	}

	return fmt.Sprintf("%x", h.Sum(nil))[:16], nil
}

// ShortHash returns the first 8 hex characters of the SHA1 of s.
// Used for stable short identifiers derived from strings.
func ShortHash(s string) string {
	sum := sha1.Sum([]byte(s))
	return fmt.Sprintf("%x", sum)[:8]
}
