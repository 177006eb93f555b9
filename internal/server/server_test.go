package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruuda/musium/internal/covers"
	"github.com/ruuda/musium/internal/flacmeta"
	"github.com/ruuda/musium/internal/library"
	"github.com/ruuda/musium/internal/player"
)

// mockPlayer implements PlayerControl with the queue and volume semantics
// the handlers rely on, without decoding or audio output.
type mockPlayer struct {
	mu     sync.Mutex
	items  []player.TrackSnapshot
	nextID player.QueueID
	volume int
}

func newMockPlayer() *mockPlayer {
	return &mockPlayer{nextID: 1}
}

func (m *mockPlayer) Enqueue(id library.TrackId) player.EnqueueResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := player.EnqueueResult{QueueID: m.nextID, Position: len(m.items)}
	m.items = append(m.items, player.TrackSnapshot{QueueID: m.nextID, TrackID: id})
	m.nextID++
	return res
}

func (m *mockPlayer) Queue() []player.TrackSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]player.TrackSnapshot(nil), m.items...)
}

func (m *mockPlayer) VolumeDb() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.volume
}

func (m *mockPlayer) VolumeUp() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.volume = min(m.volume+1, player.MaxVolumeDb)
	return m.volume
}

func (m *mockPlayer) VolumeDown() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.volume = max(m.volume-1, player.MinVolumeDb)
	return m.volume
}

type fixture struct {
	srv    *httptest.Server
	index  *library.Index
	player *mockPlayer
	root   string
	covers string
}

func scanResult(path, albumArtist, album, date, title string, track int) library.ScanResult {
	return library.ScanResult{
		Path:  path,
		Mtime: time.Unix(1700000000, 0),
		Meta: &flacmeta.File{
			Info: flacmeta.StreamInfo{
				SampleRate: 44100, BitsPerSample: 16, Channels: 2, TotalSamples: 44100 * 60,
			},
			Title: title, Artist: albumArtist, Album: album, AlbumArtist: albumArtist,
			TrackNumber: track, DiscNumber: 1, Date: date,
		},
	}
}

func newFixture(t *testing.T, results ...library.ScanResult) *fixture {
	t.Helper()
	b := library.NewBuilder()
	for _, res := range results {
		require.NoError(t, b.Insert(res))
	}
	ix, err := b.Build()
	require.NoError(t, err)

	root := t.TempDir()
	coversDir := t.TempDir()
	mock := newMockPlayer()
	srv := httptest.NewServer(New(ix, covers.New(coversDir), mock, root).Handler())
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, index: ix, player: mock, root: root, covers: coversDir}
}

func (f *fixture) get(t *testing.T, path string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(f.srv.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	if out != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func (f *fixture) put(t *testing.T, path string, out any) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPut, f.srv.URL+path, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	if out != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func (f *fixture) post(t *testing.T, path string, out any) *http.Response {
	t.Helper()
	resp, err := http.Post(f.srv.URL+path, "", nil)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	if out != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestEmptyLibrary(t *testing.T) {
	f := newFixture(t)

	var albums []briefAlbum
	resp := f.get(t, "/albums", &albums)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, albums)

	var search searchResults
	resp = f.get(t, "/search?q=foo", &search)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, search.Artists)
	assert.Empty(t, search.Albums)
	assert.Empty(t, search.Tracks)
}

func TestAlbumListingAndDetail(t *testing.T) {
	f := newFixture(t,
		scanResult("aria/01.flac", "Artemis", "Aria", "2020", "First", 1),
		scanResult("aria/02.flac", "Artemis", "Aria", "2020", "Second", 2),
	)

	var albums []briefAlbum
	f.get(t, "/albums", &albums)
	require.Len(t, albums, 1)
	assert.Equal(t, "Aria", albums[0].Title)
	assert.Equal(t, "Artemis", albums[0].Artist)
	assert.Equal(t, "2020", albums[0].Date)

	var album fullAlbum
	resp := f.get(t, "/album/"+albums[0].ID, &album)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, album.Tracks, 2)
	assert.Equal(t, "First", album.Tracks[0].Title)
	assert.Equal(t, "Second", album.Tracks[1].Title)
	assert.Equal(t, 60, album.Tracks[0].DurationSeconds)
}

func TestAlbumNotFound(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusNotFound, f.get(t, "/album/12345", nil).StatusCode)
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/album/xyz", nil).StatusCode)
}

func TestArtistView(t *testing.T) {
	f := newFixture(t,
		scanResult("a/01.flac", "Artemis", "Aria", "2020", "t", 1),
		scanResult("b/01.flac", "Artemis", "Bright", "2021", "u", 1),
	)

	var albums []briefAlbum
	f.get(t, "/albums", &albums)
	require.NotEmpty(t, albums)

	var artist artistView
	resp := f.get(t, "/artist/"+albums[0].ArtistID, &artist)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Artemis", artist.Name)
	require.Len(t, artist.Albums, 2)
	assert.Equal(t, "Aria", artist.Albums[0].Title, "albums sort chronologically")

	assert.Equal(t, http.StatusNotFound, f.get(t, "/artist/999", nil).StatusCode)
}

func TestSearchEndpoint(t *testing.T) {
	f := newFixture(t, scanResult("a/01.flac", "Artemis", "Aria", "2020", "Café", 1))

	var res searchResults
	f.get(t, "/search?q=cafe", &res)
	require.Len(t, res.Tracks, 1)
	assert.Equal(t, "Café", res.Tracks[0].Title)

	// Ids must be decimal strings.
	_, err := strconv.ParseUint(res.Tracks[0].ID, 10, 64)
	assert.NoError(t, err)
}

func TestTrackServing(t *testing.T) {
	f := newFixture(t, scanResult("a/01.flac", "X", "A", "2001", "t", 1))
	track := f.index.AlbumTracks(f.index.Albums()[0].ID)[0]

	content := []byte("fLaC pretend audio bytes")
	require.NoError(t, os.MkdirAll(filepath.Join(f.root, "a"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(f.root, "a", "01.flac"), content, 0o644))

	resp := f.get(t, "/track/"+track.ID.String()+".flac", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "audio/flac", resp.Header.Get("Content-Type"))
	assert.Equal(t, strconv.Itoa(len(content)), resp.Header.Get("Content-Length"))

	assert.Equal(t, http.StatusBadRequest, f.get(t, "/track/"+track.ID.String(), nil).StatusCode)
	assert.Equal(t, http.StatusNotFound, f.get(t, "/track/99999.flac", nil).StatusCode)
}

func TestThumbServing(t *testing.T) {
	f := newFixture(t, scanResult("a/01.flac", "X", "A", "2001", "t", 1))
	id := f.index.Albums()[0].ID

	// Missing thumbnails are 404; the serve path never generates them.
	assert.Equal(t, http.StatusNotFound, f.get(t, "/thumb/"+id.String(), nil).StatusCode)

	cache := covers.New(f.covers)
	require.NoError(t, os.WriteFile(cache.ThumbPath(id), []byte("jpeg bytes"), 0o644))
	resp := f.get(t, "/thumb/"+id.String(), nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/jpeg", resp.Header.Get("Content-Type"))
	assert.NotEmpty(t, resp.Header.Get("Expires"))
}

func TestQueueEndpoints(t *testing.T) {
	f := newFixture(t,
		scanResult("a/01.flac", "X", "A", "2001", "One", 1),
		scanResult("a/02.flac", "X", "A", "2001", "Two", 2),
	)
	tracks := f.index.AlbumTracks(f.index.Albums()[0].ID)

	var first enqueueView
	resp := f.put(t, "/queue/"+tracks[0].ID.String(), &first)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 0, first.Position)

	var second enqueueView
	f.put(t, "/queue/"+tracks[1].ID.String(), &second)
	assert.Equal(t, 1, second.Position)

	var queue []queueItem
	f.get(t, "/queue", &queue)
	require.Len(t, queue, 2)
	assert.Equal(t, "One", queue[0].Title)
	assert.Equal(t, "Two", queue[1].Title)
	assert.Equal(t, tracks[0].ID.String(), queue[0].TrackID)
}

func TestEnqueueUnknownTrack(t *testing.T) {
	f := newFixture(t, scanResult("a/01.flac", "X", "A", "2001", "t", 1))
	assert.Equal(t, http.StatusNotFound, f.put(t, "/queue/424242", nil).StatusCode)
	assert.Equal(t, http.StatusBadRequest, f.put(t, "/queue/zzz", nil).StatusCode)
	assert.Empty(t, f.player.Queue(), "nothing reaches the player on a bad id")
}

func TestVolumeEndpoints(t *testing.T) {
	f := newFixture(t)

	var v volumeView
	f.get(t, "/volume", &v)
	assert.Equal(t, 0, v.VolumeDb)

	// Volume clamps at 0 dB no matter how often up is requested.
	for range 3 {
		f.post(t, "/volume/up", &v)
		assert.Equal(t, 0, v.VolumeDb)
	}

	for range 61 {
		f.post(t, "/volume/down", &v)
	}
	assert.Equal(t, -60, v.VolumeDb)
}

func TestCORSHeaders(t *testing.T) {
	f := newFixture(t)
	resp := f.get(t, "/albums", nil)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
