// Package server exposes the index, the cover cache, and the player over a
// JSON HTTP API for clients on the local network.
//
// Handlers only read the frozen index, so they never contend with each
// other or with playback; all player interaction goes through the player's
// command mailbox.
package server

import (
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ruuda/musium/internal/covers"
	"github.com/ruuda/musium/internal/library"
	"github.com/ruuda/musium/internal/player"
)

// imageMaxAge is how long clients may cache covers and thumbnails. Album
// ids change when the art-relevant tags change, so long is safe.
const imageMaxAge = 30 * 24 * time.Hour

// PlayerControl is what the handlers need from the playback engine. The
// concrete player satisfies it; tests substitute a mock.
type PlayerControl interface {
	Enqueue(id library.TrackId) player.EnqueueResult
	Queue() []player.TrackSnapshot
	VolumeDb() int
	VolumeUp() int
	VolumeDown() int
}

var _ PlayerControl = (*player.Player)(nil)

type Server struct {
	index  *library.Index
	covers *covers.Cache
	player PlayerControl
	// root is the library path track files resolve against.
	root string
}

func New(index *library.Index, coverCache *covers.Cache, p PlayerControl, root string) *Server {
	return &Server{index: index, covers: coverCache, player: p, root: root}
}

// Handler returns the daemon's HTTP surface.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /albums", s.handleAlbums)
	mux.HandleFunc("GET /album/{id}", s.handleAlbum)
	mux.HandleFunc("GET /artist/{id}", s.handleArtist)
	mux.HandleFunc("GET /track/{file}", s.handleTrack)
	mux.HandleFunc("GET /cover/{id}", s.handleCover)
	mux.HandleFunc("GET /thumb/{id}", s.handleThumb)
	mux.HandleFunc("GET /search", s.handleSearch)
	mux.HandleFunc("GET /queue", s.handleQueue)
	mux.HandleFunc("PUT /queue/{id}", s.handleEnqueue)
	mux.HandleFunc("GET /volume", s.handleVolume)
	mux.HandleFunc("POST /volume/up", s.handleVolumeUp)
	mux.HandleFunc("POST /volume/down", s.handleVolumeDown)
	return logRequests(allowAllOrigins(mux))
}

// allowAllOrigins sets CORS headers on every response, so the web interface
// can be served from anywhere on the LAN. Musium has no authentication to
// protect.
func allowAllOrigins(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, PUT, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response code for the request log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}
