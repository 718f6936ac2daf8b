package discography

import (
	"github.com/franz/crate/internal/meta"
	"github.com/franz/crate/internal/store"
)

// Overview is the legacy per-artist view built from the hand-curated
// wanted list and alias table. The synced expected path supersedes it;
// this stays only because the artist overview endpoint still serves it.
type Overview struct {
	Artist        *store.Artist        `json:"artist"`
	OwnedAlbums   []*store.Album       `json:"ownedAlbums"`
	WantedAlbums  []*store.WantedAlbum `json:"wantedAlbums"`
	MissingWanted []*store.WantedAlbum `json:"missingWanted"`
}

// ArtistOverview reconciles the legacy wanted list against owned albums.
// A wanted title counts as owned when it normalizes to an owned title or
// to a recorded alias of one.
func (s *Service) ArtistOverview(artistID int64) (*Overview, error) {
	artist, err := s.resolveArtist(artistID)
	if err != nil {
		return nil, err
	}

	owned, err := s.store.GetAlbumsForArtist(artistID)
	if err != nil {
		return nil, err
	}
	wanted, err := s.store.GetWantedAlbums(artistID)
	if err != nil {
		return nil, err
	}
	aliases, err := s.store.GetAlbumAliases(artistID)
	if err != nil {
		return nil, err
	}

	ownedTitles := make(map[string]bool)
	for _, album := range owned {
		ownedTitles[meta.NormalizeTitle(album.Title)] = true
	}
	for alias := range aliases {
		ownedTitles[meta.NormalizeTitle(alias)] = true
	}

	overview := &Overview{
		Artist:        artist,
		OwnedAlbums:   owned,
		WantedAlbums:  wanted,
		MissingWanted: []*store.WantedAlbum{},
	}
	for _, w := range wanted {
		if !ownedTitles[meta.NormalizeTitle(w.Title)] {
			overview.MissingWanted = append(overview.MissingWanted, w)
		}
	}
	return overview, nil
}
