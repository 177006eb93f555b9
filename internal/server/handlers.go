package server

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ruuda/musium/internal/covers"
	"github.com/ruuda/musium/internal/library"
	"github.com/ruuda/musium/internal/player"
)

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// The client went away mid-response; nothing sensible to do.
		log.Debug().Err(err).Msg("writing response")
	}
}

func formatQueueID(id player.QueueID) string {
	return strconv.FormatUint(uint64(id), 10)
}

func (s *Server) handleAlbums(w http.ResponseWriter, r *http.Request) {
	albums := s.index.Albums()
	views := make([]briefAlbum, 0, len(albums))
	for i := range albums {
		views = append(views, s.briefAlbumView(&albums[i]))
	}
	writeJSON(w, views)
}

func (s *Server) handleAlbum(w http.ResponseWriter, r *http.Request) {
	id, ok := library.ParseAlbumId(r.PathValue("id"))
	if !ok {
		http.Error(w, "invalid album id", http.StatusBadRequest)
		return
	}
	album, ok := s.index.Album(id)
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, s.fullAlbumView(album))
}

func (s *Server) handleArtist(w http.ResponseWriter, r *http.Request) {
	id, ok := library.ParseArtistId(r.PathValue("id"))
	if !ok {
		http.Error(w, "invalid artist id", http.StatusBadRequest)
		return
	}
	artist, ok := s.index.Artist(id)
	if !ok {
		http.NotFound(w, r)
		return
	}
	albums := []briefAlbum{}
	for _, album := range s.index.ArtistAlbums(id) {
		albums = append(albums, s.briefAlbumView(&album))
	}
	writeJSON(w, artistView{Name: s.index.String(artist.Name), Albums: albums})
}

// handleTrack streams the raw FLAC bytes of a track. Urls look like
// /track/1234.flac so that clients get a sensible name when saving.
func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	name, ok := strings.CutSuffix(r.PathValue("file"), ".flac")
	if !ok {
		http.Error(w, "expected a path ending in .flac", http.StatusBadRequest)
		return
	}
	id, ok := library.ParseTrackId(name)
	if !ok {
		http.Error(w, "invalid track id", http.StatusBadRequest)
		return
	}
	track, ok := s.index.Track(id)
	if !ok {
		http.NotFound(w, r)
		return
	}

	path := filepath.Join(s.root, s.index.String(track.Filename))
	f, err := os.Open(path)
	if err != nil {
		log.Warn().Err(err).Str("file", path).Msg("cannot open indexed track")
		http.NotFound(w, r)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		http.Error(w, "stat failed", http.StatusInternalServerError)
		return
	}

	// ServeContent fills in Content-Length and handles Range requests.
	w.Header().Set("Content-Type", "audio/flac")
	http.ServeContent(w, r, "", info.ModTime(), f)
}

func (s *Server) handleCover(w http.ResponseWriter, r *http.Request) {
	id, ok := library.ParseAlbumId(r.PathValue("id"))
	if !ok {
		http.Error(w, "invalid album id", http.StatusBadRequest)
		return
	}
	if s.serveImage(w, r, s.covers.CoverPath(id)) {
		return
	}
	// No cached file; fall back to the picture embedded in the album's
	// first track.
	tracks := s.index.AlbumTracks(id)
	if len(tracks) == 0 {
		http.NotFound(w, r)
		return
	}
	path := filepath.Join(s.root, s.index.String(tracks[0].Filename))
	data, err := covers.ExtractFrontCover(path)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	setImageHeaders(w, sniffImageType(data))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Write(data)
}

// handleThumb serves only pre-generated thumbnails; nothing is generated on
// the serve path.
func (s *Server) handleThumb(w http.ResponseWriter, r *http.Request) {
	id, ok := library.ParseAlbumId(r.PathValue("id"))
	if !ok {
		http.Error(w, "invalid album id", http.StatusBadRequest)
		return
	}
	if !s.serveImage(w, r, s.covers.ThumbPath(id)) {
		http.NotFound(w, r)
	}
}

// serveImage serves a cached JPEG if it exists.
func (s *Server) serveImage(w http.ResponseWriter, r *http.Request, path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return false
	}
	setImageHeaders(w, "image/jpeg")
	http.ServeContent(w, r, "", info.ModTime(), f)
	return true
}

func setImageHeaders(w http.ResponseWriter, contentType string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Expires", time.Now().Add(imageMaxAge).UTC().Format(http.TimeFormat))
}

func sniffImageType(data []byte) string {
	if len(data) >= 4 && data[0] == 0x89 && data[1] == 'P' && data[2] == 'N' && data[3] == 'G' {
		return "image/png"
	}
	return "image/jpeg"
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	res := s.index.Search(r.URL.Query().Get("q"))
	writeJSON(w, s.searchResultsView(res))
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.queueView(s.player.Queue()))
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	id, ok := library.ParseTrackId(r.PathValue("id"))
	if !ok {
		http.Error(w, "invalid track id", http.StatusBadRequest)
		return
	}
	if _, ok := s.index.Track(id); !ok {
		http.NotFound(w, r)
		return
	}
	res := s.player.Enqueue(id)
	writeJSON(w, enqueueView{QueueID: formatQueueID(res.QueueID), Position: res.Position})
}

func (s *Server) handleVolume(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, volumeView{VolumeDb: s.player.VolumeDb()})
}

func (s *Server) handleVolumeUp(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, volumeView{VolumeDb: s.player.VolumeUp()})
}

func (s *Server) handleVolumeDown(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, volumeView{VolumeDb: s.player.VolumeDown()})
}
