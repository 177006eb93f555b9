package library

import (
	"fmt"
	"math"
	"sort"
)

// IdCollisionError reports two distinct files hashing to the same track id.
// This is fatal: serving either file under the shared id would be wrong.
type IdCollisionError struct {
	ID    TrackId
	PathA string
	PathB string
}

func (e *IdCollisionError) Error() string {
	return fmt.Sprintf("track id %s collides: %s and %s", e.ID, e.PathA, e.PathB)
}

// AlbumMismatchError reports two files that share an album id but disagree
// on the album's identity. Musium is not a tagger; inconsistent albums are
// rejected rather than repaired.
type AlbumMismatchError struct {
	ID    AlbumId
	Field string
	PathA string
	PathB string
}

func (e *AlbumMismatchError) Error() string {
	return fmt.Sprintf("album %s: %s differs between %s and %s", e.ID, e.Field, e.PathA, e.PathB)
}

// ArtistCollisionError reports two distinct artist names hashing to the
// same artist id. Fatal for the same reason track collisions are.
type ArtistCollisionError struct {
	ID    ArtistId
	NameA string
	NameB string
}

func (e *ArtistCollisionError) Error() string {
	return fmt.Sprintf("artist id %s collides: %q and %q", e.ID, e.NameA, e.NameB)
}

// FieldError reports a tag value the index cannot represent, e.g. a track
// number above 255. The file is skipped; the build continues.
type FieldError struct {
	Path   string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Reason)
}

type pendingTrack struct {
	track Track
	path  string
}

type pendingAlbum struct {
	album pendingAlbumTags
	path  string
	// loudness in tenths of a dB, LoudnessUnknown when untagged.
	loudness int16
}

type pendingAlbumTags struct {
	title  string
	artist string
	date   Date
}

type pendingArtist struct {
	name     string
	sortName string
	sortKey  string
}

// Builder accumulates scanned tracks and freezes them into an Index. It is
// not safe for concurrent use; feed it from one goroutine.
type Builder struct {
	strings *stringPool
	tracks  map[TrackId]pendingTrack
	albums  map[AlbumId]pendingAlbum
	artists map[ArtistId]pendingArtist

	albumArtist map[AlbumId]ArtistId
	// albumPrefix guards the track id scheme: two albums sharing the upper
	// id bits would interleave their track runs.
	albumPrefix map[uint64]AlbumId
}

func NewBuilder() *Builder {
	return &Builder{
		strings:     newStringPool(),
		tracks:      make(map[TrackId]pendingTrack),
		albums:      make(map[AlbumId]pendingAlbum),
		artists:     make(map[ArtistId]pendingArtist),
		albumArtist: make(map[AlbumId]ArtistId),
		albumPrefix: make(map[uint64]AlbumId),
	}
}

// Insert adds one scanned file. A returned *FieldError means the file was
// skipped and the build may continue; any other error (id collisions,
// album mismatches) poisons the whole build and the caller must abort.
func (b *Builder) Insert(res ScanResult) error {
	meta := res.Meta

	if meta.TrackNumber < 1 || meta.TrackNumber > math.MaxUint8 {
		return &FieldError{Path: res.Path, Reason: fmt.Sprintf("track number %d out of range", meta.TrackNumber)}
	}
	if meta.DiscNumber < 1 || meta.DiscNumber > math.MaxUint8 {
		return &FieldError{Path: res.Path, Reason: fmt.Sprintf("disc number %d out of range", meta.DiscNumber)}
	}
	date, ok := ParseDate(meta.Date)
	if !ok {
		return &FieldError{Path: res.Path, Reason: fmt.Sprintf("unparseable date %q", meta.Date)}
	}

	sortName := meta.AlbumArtistSort
	if sortName == "" {
		sortName = meta.AlbumArtist
	}
	artistSortKey := SortKey(sortName)

	artistID := NewArtistId(artistSortKey)
	albumID := NewAlbumId(artistSortKey, SortKey(meta.Album), date)
	trackID := NewTrackId(albumID, uint8(meta.DiscNumber), uint8(meta.TrackNumber))

	if prev, ok := b.tracks[trackID]; ok {
		return &IdCollisionError{ID: trackID, PathA: prev.path, PathB: res.Path}
	}

	albumTags := pendingAlbumTags{title: meta.Album, artist: meta.AlbumArtist, date: date}
	if prev, ok := b.albums[albumID]; ok {
		if field := albumTags.diff(prev.album); field != "" {
			return &AlbumMismatchError{ID: albumID, Field: field, PathA: prev.path, PathB: res.Path}
		}
	} else {
		prefix := uint64(albumID) &^ (1<<trackIdBits - 1)
		if other, ok := b.albumPrefix[prefix]; ok && other != albumID {
			prev := b.albums[other]
			return &AlbumMismatchError{ID: albumID, Field: "id prefix", PathA: prev.path, PathB: res.Path}
		}
		b.albumPrefix[prefix] = albumID
		loudness := LoudnessUnknown
		if meta.AlbumLoudness != nil {
			loudness = clampLoudness(*meta.AlbumLoudness)
		}
		b.albums[albumID] = pendingAlbum{album: albumTags, path: res.Path, loudness: loudness}
		b.albumArtist[albumID] = artistID
	}

	if prev, ok := b.artists[artistID]; ok {
		if prev.sortKey != artistSortKey {
			return &ArtistCollisionError{ID: artistID, NameA: prev.sortName, NameB: sortName}
		}
	} else {
		b.artists[artistID] = pendingArtist{
			name:     meta.AlbumArtist,
			sortName: sortName,
			sortKey:  artistSortKey,
		}
	}

	duration := meta.Info.TotalSamples
	if meta.Info.SampleRate > 0 {
		duration = (duration + uint64(meta.Info.SampleRate)/2) / uint64(meta.Info.SampleRate)
	}
	if duration > math.MaxUint16 {
		duration = math.MaxUint16
	}

	b.tracks[trackID] = pendingTrack{
		track: Track{
			ID:              trackID,
			AlbumID:         albumID,
			DiscNumber:      uint8(meta.DiscNumber),
			TrackNumber:     uint8(meta.TrackNumber),
			DurationSeconds: uint16(duration),
			Title:           b.strings.intern(meta.Title),
			Artist:          b.strings.intern(meta.Artist),
			Filename:        b.strings.intern(res.Path),
		},
		path: res.Path,
	}
	return nil
}

func (t pendingAlbumTags) diff(o pendingAlbumTags) string {
	switch {
	case t.title != o.title:
		return "album title"
	case t.artist != o.artist:
		return "album artist"
	case t.date != o.date:
		return "release date"
	default:
		return ""
	}
}

func clampLoudness(lufs float64) int16 {
	tenths := math.Round(lufs * 10)
	if tenths < math.MinInt16+1 || tenths > math.MaxInt16 {
		return LoudnessUnknown
	}
	return int16(tenths)
}

// MergeLoudness fills in loudness for albums that did not carry the tag,
// from values persisted by an earlier cache run. Call before Build.
func (b *Builder) MergeLoudness(loudness map[AlbumId]int16) {
	for id, v := range loudness {
		if a, ok := b.albums[id]; ok && a.loudness == LoudnessUnknown {
			a.loudness = v
			b.albums[id] = a
		}
	}
}

// Build sorts and freezes the accumulated records. The Builder must not be
// used afterwards.
func (b *Builder) Build() (*Index, error) {
	ix := &Index{strings: b.strings}

	// Tracks sort by id, which by construction is (album, disc, track)
	// order with every album in one contiguous run.
	ix.tracks = make([]Track, 0, len(b.tracks))
	for _, t := range b.tracks {
		ix.tracks = append(ix.tracks, t.track)
	}
	sort.Slice(ix.tracks, func(i, j int) bool { return ix.tracks[i].ID < ix.tracks[j].ID })

	type albumKey struct {
		artistKey string
		date      Date
		titleKey  string
	}
	keys := make(map[AlbumId]albumKey, len(b.albums))
	ix.albums = make([]Album, 0, len(b.albums))
	for id, a := range b.albums {
		artistID := b.albumArtist[id]
		keys[id] = albumKey{
			artistKey: b.artists[artistID].sortKey,
			date:      a.album.date,
			titleKey:  SortKey(a.album.title),
		}
		ix.albums = append(ix.albums, Album{
			ID:       id,
			ArtistID: artistID,
			Title:    b.strings.intern(a.album.title),
			Artist:   b.strings.intern(a.album.artist),
			Date:     a.album.date,
			Loudness: a.loudness,
		})
	}
	sort.Slice(ix.albums, func(i, j int) bool {
		ka, kb := keys[ix.albums[i].ID], keys[ix.albums[j].ID]
		if ka.artistKey != kb.artistKey {
			return ka.artistKey < kb.artistKey
		}
		if ka.date != kb.date {
			return ka.date.Less(kb.date)
		}
		if ka.titleKey != kb.titleKey {
			return ka.titleKey < kb.titleKey
		}
		return ix.albums[i].ID < ix.albums[j].ID
	})

	ix.artists = make([]Artist, 0, len(b.artists))
	for id, a := range b.artists {
		ix.artists = append(ix.artists, Artist{
			ID:       id,
			Name:     b.strings.intern(a.name),
			SortName: b.strings.intern(a.sortName),
		})
	}
	sort.Slice(ix.artists, func(i, j int) bool {
		ka := b.artists[ix.artists[i].ID].sortKey
		kb := b.artists[ix.artists[j].ID].sortKey
		if ka != kb {
			return ka < kb
		}
		return ix.artists[i].ID < ix.artists[j].ID
	})

	// Resolve the run starts now that everything is in final order.
	firstTrack := make(map[AlbumId]uint32, len(ix.albums))
	for i := len(ix.tracks) - 1; i >= 0; i-- {
		firstTrack[ix.tracks[i].AlbumID] = uint32(i)
	}
	for i := range ix.albums {
		first, ok := firstTrack[ix.albums[i].ID]
		if !ok {
			return nil, fmt.Errorf("album %s has no tracks", ix.albums[i].ID)
		}
		ix.albums[i].FirstTrack = first
	}
	firstAlbum := make(map[ArtistId]uint32, len(ix.artists))
	for i := len(ix.albums) - 1; i >= 0; i-- {
		firstAlbum[ix.albums[i].ArtistID] = uint32(i)
	}
	for i := range ix.artists {
		ix.artists[i].FirstAlbum = firstAlbum[ix.artists[i].ID]
	}

	ix.albumByID = sortedPermutation(len(ix.albums), func(i, j int) bool {
		return ix.albums[i].ID < ix.albums[j].ID
	})
	ix.artistByID = sortedPermutation(len(ix.artists), func(i, j int) bool {
		return ix.artists[i].ID < ix.artists[j].ID
	})

	ix.words = buildWords(ix)
	return ix, nil
}

func sortedPermutation(n int, less func(i, j int) bool) []uint32 {
	perm := make([]uint32, n)
	for i := range perm {
		perm[i] = uint32(i)
	}
	sort.Slice(perm, func(i, j int) bool { return less(int(perm[i]), int(perm[j])) })
	return perm
}
