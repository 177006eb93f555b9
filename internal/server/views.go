package server

// JSON views of index and player entities. Ids are rendered as decimal
// strings: JavaScript clients lose precision above 2^53 when ids travel as
// numbers.

import (
	"github.com/ruuda/musium/internal/library"
	"github.com/ruuda/musium/internal/player"
)

// briefAlbum describes an album without its tracks, for the album list and
// for the albums of an artist.
type briefAlbum struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	ArtistID   string `json:"artist_id"`
	Artist     string `json:"artist"`
	SortArtist string `json:"sort_artist"`
	Date       string `json:"date"`
}

type fullAlbum struct {
	briefAlbum
	// LoudnessDb is the integrated album loudness, omitted when unknown.
	LoudnessDb *float64     `json:"loudness_db,omitempty"`
	Tracks     []albumTrack `json:"tracks"`
}

type albumTrack struct {
	ID              string `json:"id"`
	DiscNumber      int    `json:"disc_number"`
	TrackNumber     int    `json:"track_number"`
	Title           string `json:"title"`
	Artist          string `json:"artist"`
	DurationSeconds int    `json:"duration_seconds"`
}

type artistView struct {
	Name   string       `json:"name"`
	Albums []briefAlbum `json:"albums"`
}

type searchArtist struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Albums []string `json:"albums"`
}

type searchAlbum struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Artist string `json:"artist"`
	Date   string `json:"date"`
}

type searchTrack struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	AlbumID string `json:"album_id"`
	Album   string `json:"album"`
	Artist  string `json:"artist"`
}

type searchResults struct {
	Artists []searchArtist `json:"artists"`
	Albums  []searchAlbum  `json:"albums"`
	Tracks  []searchTrack  `json:"tracks"`
}

type queueItem struct {
	QueueID         string  `json:"queue_id"`
	TrackID         string  `json:"track_id"`
	Title           string  `json:"title"`
	AlbumID         string  `json:"album_id"`
	Album           string  `json:"album"`
	Artist          string  `json:"artist"`
	DurationSeconds int     `json:"duration_seconds"`
	PositionSeconds float64 `json:"position_seconds"`
	BufferedSeconds float64 `json:"buffered_seconds"`
	IsBuffering     bool    `json:"is_buffering"`
}

type volumeView struct {
	VolumeDb int `json:"volume_db"`
}

type enqueueView struct {
	QueueID  string `json:"queue_id"`
	Position int    `json:"position"`
}

func (s *Server) briefAlbumView(album *library.Album) briefAlbum {
	// The artist is present whenever the index is well formed; the id comes
	// from the index itself, not from user input.
	artist, _ := s.index.Artist(album.ArtistID)
	return briefAlbum{
		ID:         album.ID.String(),
		Title:      s.index.String(album.Title),
		ArtistID:   album.ArtistID.String(),
		Artist:     s.index.String(artist.Name),
		SortArtist: s.index.String(artist.SortName),
		Date:       album.Date.String(),
	}
}

func (s *Server) fullAlbumView(album *library.Album) fullAlbum {
	view := fullAlbum{briefAlbum: s.briefAlbumView(album), Tracks: []albumTrack{}}
	if album.Loudness != library.LoudnessUnknown {
		db := float64(album.Loudness) / 10
		view.LoudnessDb = &db
	}
	for _, t := range s.index.AlbumTracks(album.ID) {
		view.Tracks = append(view.Tracks, albumTrack{
			ID:              t.ID.String(),
			DiscNumber:      int(t.DiscNumber),
			TrackNumber:     int(t.TrackNumber),
			Title:           s.index.String(t.Title),
			Artist:          s.index.String(t.Artist),
			DurationSeconds: int(t.DurationSeconds),
		})
	}
	return view
}

func (s *Server) searchResultsView(res library.SearchResults) searchResults {
	view := searchResults{
		Artists: []searchArtist{},
		Albums:  []searchAlbum{},
		Tracks:  []searchTrack{},
	}
	for _, id := range res.Artists {
		artist, ok := s.index.Artist(id)
		if !ok {
			continue
		}
		albums := []string{}
		for _, album := range s.index.ArtistAlbums(id) {
			albums = append(albums, album.ID.String())
		}
		view.Artists = append(view.Artists, searchArtist{
			ID:     id.String(),
			Name:   s.index.String(artist.Name),
			Albums: albums,
		})
	}
	for _, id := range res.Albums {
		album, ok := s.index.Album(id)
		if !ok {
			continue
		}
		artist, _ := s.index.Artist(album.ArtistID)
		view.Albums = append(view.Albums, searchAlbum{
			ID:     id.String(),
			Title:  s.index.String(album.Title),
			Artist: s.index.String(artist.Name),
			Date:   album.Date.String(),
		})
	}
	for _, id := range res.Tracks {
		track, ok := s.index.Track(id)
		if !ok {
			continue
		}
		album, _ := s.index.Album(track.AlbumID)
		view.Tracks = append(view.Tracks, searchTrack{
			ID:      id.String(),
			Title:   s.index.String(track.Title),
			AlbumID: track.AlbumID.String(),
			Album:   s.index.String(album.Title),
			Artist:  s.index.String(track.Artist),
		})
	}
	return view
}

func (s *Server) queueView(snapshots []player.TrackSnapshot) []queueItem {
	items := []queueItem{}
	for _, snap := range snapshots {
		track, ok := s.index.Track(snap.TrackID)
		if !ok {
			continue
		}
		album, _ := s.index.Album(track.AlbumID)
		items = append(items, queueItem{
			QueueID:         formatQueueID(snap.QueueID),
			TrackID:         snap.TrackID.String(),
			Title:           s.index.String(track.Title),
			AlbumID:         track.AlbumID.String(),
			Album:           s.index.String(album.Title),
			Artist:          s.index.String(track.Artist),
			DurationSeconds: int(track.DurationSeconds),
			PositionSeconds: float64(snap.PositionMs) / 1000,
			BufferedSeconds: float64(snap.BufferedMs) / 1000,
			IsBuffering:     snap.IsBuffering,
		})
	}
	return items
}
