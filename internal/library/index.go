// Package library holds the in-memory index of the music collection: every
// track, album and artist, frozen into sorted arrays at startup.
//
// The index is deliberately not a database. Records are fixed-width structs
// in structure-of-arrays form, strings live in one shared buffer, and
// relations are 64-bit ids resolved by binary search. Memory use is
// predictable, sort-order listings are free, and after Build returns nothing
// is ever mutated, so readers need no locks.
package library

import "sort"

// Index is the frozen library. Safe for concurrent readers; never mutated
// after Build.
type Index struct {
	strings *stringPool

	// tracks sort by id, equivalent to (album, disc, track); each album is
	// one contiguous run.
	tracks []Track
	// albums sort by (artist sort key, release date, title sort key).
	albums []Album
	// artists sort by sort name.
	artists []Artist

	// Permutations for id lookup into the canonically sorted slices.
	albumByID  []uint32
	artistByID []uint32

	// words is the search array, sorted by (word, kind, id).
	words []wordEntry
}

func (ix *Index) NumTracks() int  { return len(ix.tracks) }
func (ix *Index) NumAlbums() int  { return len(ix.albums) }
func (ix *Index) NumArtists() int { return len(ix.artists) }

// String resolves a ref produced by this index.
func (ix *Index) String(ref StringRef) string {
	return ix.strings.get(ref)
}

// Track looks up a track by id.
func (ix *Index) Track(id TrackId) (*Track, bool) {
	// The track array is id-sorted, so this is a plain binary search; the
	// album clustering of ids is what makes AlbumTracks cheap.
	i := sort.Search(len(ix.tracks), func(i int) bool { return ix.tracks[i].ID >= id })
	if i < len(ix.tracks) && ix.tracks[i].ID == id {
		return &ix.tracks[i], true
	}
	return nil, false
}

// Album looks up an album by id.
func (ix *Index) Album(id AlbumId) (*Album, bool) {
	i := sort.Search(len(ix.albumByID), func(i int) bool {
		return ix.albums[ix.albumByID[i]].ID >= id
	})
	if i < len(ix.albumByID) {
		if a := &ix.albums[ix.albumByID[i]]; a.ID == id {
			return a, true
		}
	}
	return nil, false
}

// Artist looks up an artist by id.
func (ix *Index) Artist(id ArtistId) (*Artist, bool) {
	i := sort.Search(len(ix.artistByID), func(i int) bool {
		return ix.artists[ix.artistByID[i]].ID >= id
	})
	if i < len(ix.artistByID) {
		if a := &ix.artists[ix.artistByID[i]]; a.ID == id {
			return a, true
		}
	}
	return nil, false
}

// Albums returns all albums in canonical order. The caller must not modify
// the returned slice.
func (ix *Index) Albums() []Album {
	return ix.albums
}

// Artists returns all artists in canonical order. The caller must not
// modify the returned slice.
func (ix *Index) Artists() []Artist {
	return ix.artists
}

// AlbumTracks returns the album's tracks ordered by disc then track number,
// or nil for an unknown album. The slice aliases the index; do not modify.
func (ix *Index) AlbumTracks(id AlbumId) []Track {
	album, ok := ix.Album(id)
	if !ok {
		return nil
	}
	end := int(album.FirstTrack)
	for end < len(ix.tracks) && ix.tracks[end].AlbumID == id {
		end++
	}
	return ix.tracks[album.FirstTrack:end]
}

// ArtistAlbums returns the artist's albums in ascending order of original
// release date, ties broken by title, or nil for an unknown artist. The
// canonical album order sorts each artist's run exactly that way.
func (ix *Index) ArtistAlbums(id ArtistId) []Album {
	artist, ok := ix.Artist(id)
	if !ok {
		return nil
	}
	end := int(artist.FirstAlbum)
	for end < len(ix.albums) && ix.albums[end].ArtistID == id {
		end++
	}
	return ix.albums[artist.FirstAlbum:end]
}

// canonicalAlbumRank returns the album's position in canonical order, for
// search ranking.
func (ix *Index) canonicalAlbumRank(id AlbumId) int {
	i := sort.Search(len(ix.albumByID), func(i int) bool {
		return ix.albums[ix.albumByID[i]].ID >= id
	})
	if i < len(ix.albumByID) && ix.albums[ix.albumByID[i]].ID == id {
		return int(ix.albumByID[i])
	}
	return len(ix.albums)
}

func (ix *Index) canonicalArtistRank(id ArtistId) int {
	i := sort.Search(len(ix.artistByID), func(i int) bool {
		return ix.artists[ix.artistByID[i]].ID >= id
	})
	if i < len(ix.artistByID) && ix.artists[ix.artistByID[i]].ID == id {
		return int(ix.artistByID[i])
	}
	return len(ix.artists)
}

func (ix *Index) canonicalTrackRank(id TrackId) int {
	i := sort.Search(len(ix.tracks), func(i int) bool { return ix.tracks[i].ID >= id })
	if i < len(ix.tracks) && ix.tracks[i].ID == id {
		return i
	}
	return len(ix.tracks)
}
