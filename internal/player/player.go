// Package player is the playback engine: a FIFO queue feeding a decode
// pipeline that writes to the audio device.
//
// All mutable state (queue, volume, decoder, device) is owned by a single
// goroutine running Run. Mutations arrive as commands on a bounded mailbox,
// which serializes them: if one client's enqueue returns before another's
// starts, its track plays first. HTTP handlers never touch the state
// directly.
package player

import (
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ruuda/musium/internal/library"
)

const commandQueueDepth = 16

// decodeStallTimeout declares a track dead when its decoder produced no
// frames for this long.
const decodeStallTimeout = 5 * time.Second

// prefetchThreshold is the remaining playtime below which the next track's
// decoder is started, so the transition needs no disk wait.
const prefetchThreshold = 5 * time.Second

// deviceBackoff is the reopen schedule after a device error; the last entry
// repeats.
var deviceBackoff = []time.Duration{
	100 * time.Millisecond,
	500 * time.Millisecond,
	2 * time.Second,
	5 * time.Second,
	30 * time.Second,
}

// TrackSnapshot is one queue entry as reported to clients. Playback
// progress is filled in for the head entry only.
type TrackSnapshot struct {
	QueueID     QueueID
	TrackID     library.TrackId
	PositionMs  int64
	BufferedMs  int64
	IsBuffering bool
}

// EnqueueResult reports where an enqueued track landed.
type EnqueueResult struct {
	QueueID  QueueID
	Position int
}

type command interface{ isCommand() }

type enqueueCmd struct {
	trackID library.TrackId
	reply   chan EnqueueResult
}

type queueCmd struct {
	reply chan []TrackSnapshot
}

// volumeCmd adjusts the volume by delta steps (0 reads it) and reports the
// resulting value.
type volumeCmd struct {
	delta int
	reply chan int
}

type shutdownCmd struct {
	done chan struct{}
}

func (enqueueCmd) isCommand()  {}
func (queueCmd) isCommand()    {}
func (volumeCmd) isCommand()   {}
func (shutdownCmd) isCommand() {}

// Player is the handle shared with HTTP handlers. Its methods are safe for
// concurrent use; each one is a synchronous round trip to the player
// goroutine.
type Player struct {
	index    *library.Index
	root     string
	device   Device
	decode   func(path string) (*decodeSession, error)
	volumeDb int
	commands chan command
}

// New creates a player over the frozen index. Run must be started on its
// own goroutine before any other method is called.
func New(index *library.Index, root string, device Device, volumeDb int) *Player {
	return &Player{
		index:    index,
		root:     root,
		device:   device,
		decode:   startDecode,
		volumeDb: volumeDb,
		commands: make(chan command, commandQueueDepth),
	}
}

// Enqueue appends a track to the play queue, starting playback when idle.
// The caller must have validated the id against the index.
func (p *Player) Enqueue(id library.TrackId) EnqueueResult {
	reply := make(chan EnqueueResult, 1)
	p.commands <- enqueueCmd{trackID: id, reply: reply}
	return <-reply
}

// Queue reports the queue, currently playing track first.
func (p *Player) Queue() []TrackSnapshot {
	reply := make(chan []TrackSnapshot, 1)
	p.commands <- queueCmd{reply: reply}
	return <-reply
}

func (p *Player) VolumeDb() int   { return p.volumeOp(0) }
func (p *Player) VolumeUp() int   { return p.volumeOp(1) }
func (p *Player) VolumeDown() int { return p.volumeOp(-1) }

func (p *Player) volumeOp(delta int) int {
	reply := make(chan int, 1)
	p.commands <- volumeCmd{delta: delta, reply: reply}
	return <-reply
}

// Shutdown stops playback, closes the device, and waits for the player
// goroutine to exit.
func (p *Player) Shutdown() {
	done := make(chan struct{})
	p.commands <- shutdownCmd{done: done}
	<-done
}

// playback is the currently playing queue head.
type playback struct {
	item         QueuedTrack
	session      *decodeSession
	playedFrames uint64
}

// loop is the state owned by the player goroutine.
type loop struct {
	p      *Player
	queue  *queue
	volume Volume

	cur *playback
	// prefetched decoder for the entry after the head.
	next   *decodeSession
	nextID QueueID

	// deviceFormat is nil while the device is closed.
	deviceFormat *Format
	// deviceDown is set after a device error; retryAt schedules the reopen.
	deviceDown bool
	attempt    int
	retryAt    time.Time
}

// Run executes the player until a Shutdown command arrives. It is the only
// goroutine that touches the queue, the volume, and the device.
func (p *Player) Run() {
	l := &loop{p: p, queue: newQueue(), volume: NewVolume(p.volumeDb)}
	// The stall timer counts from the last chunk written (or the start of
	// the track); commands handled in between do not restart it.
	var stallFor *playback
	var lastChunk time.Time
	for {
		switch {
		case l.deviceDown && l.queue.len() > 0:
			select {
			case cmd := <-p.commands:
				if l.handle(cmd) {
					return
				}
			case <-time.After(time.Until(l.retryAt)):
				l.startHead()
			}

		case l.cur == nil:
			// Idle: nothing plays, the device is closed; only commands can
			// wake us.
			if l.handle(<-p.commands) {
				return
			}

		default:
			if l.cur != stallFor {
				stallFor = l.cur
				lastChunk = time.Now()
			}
			select {
			case cmd := <-p.commands:
				if l.handle(cmd) {
					return
				}
			case c, ok := <-l.cur.session.chunks:
				if !ok {
					if err := l.cur.session.Err(); err != nil {
						log.Warn().Err(err).
							Stringer("track", l.cur.item.TrackID).
							Msg("decode error, skipping rest of track")
					}
					l.advance()
					continue
				}
				l.volume.Apply(c.samples)
				if err := l.p.device.Write(c.samples); err != nil {
					l.onDeviceError(err)
					continue
				}
				lastChunk = time.Now()
				l.cur.playedFrames += uint64(c.frames)
				l.maybePrefetch()
			case <-time.After(time.Until(lastChunk.Add(decodeStallTimeout))):
				log.Warn().
					Stringer("track", l.cur.item.TrackID).
					Msg("decoder stalled, skipping rest of track")
				l.cur.session.stop()
				l.advance()
			}
		}
	}
}

// handle applies one command; a true result means shut down.
func (l *loop) handle(cmd command) bool {
	switch c := cmd.(type) {
	case enqueueCmd:
		item, pos := l.queue.push(c.trackID)
		c.reply <- EnqueueResult{QueueID: item.QueueID, Position: pos}
		if l.cur == nil && !l.deviceDown {
			l.startHead()
		}

	case queueCmd:
		c.reply <- l.snapshot()

	case volumeCmd:
		switch {
		case c.delta > 0:
			l.volume.Up()
		case c.delta < 0:
			l.volume.Down()
		}
		c.reply <- l.volume.Db()

	case shutdownCmd:
		if l.cur != nil {
			l.cur.session.stop()
			l.cur = nil
		}
		l.dropPrefetch()
		l.closeDevice()
		close(c.done)
		return true
	}
	return false
}

// startHead begins playback of the queue head, skipping over tracks whose
// decoder cannot start.
func (l *loop) startHead() {
	for {
		item, ok := l.queue.front()
		if !ok {
			l.toIdle()
			return
		}
		track, ok := l.p.index.Track(item.TrackID)
		if !ok {
			// Enqueue validates ids against the frozen index, so this is an
			// index corruption, not user input.
			panic("player: queued track id not in index")
		}

		session := l.takePrefetch(item.QueueID)
		if session == nil {
			path := filepath.Join(l.p.root, l.p.index.String(track.Filename))
			var err error
			session, err = l.p.decode(path)
			if err != nil {
				log.Warn().Err(err).Str("file", path).Msg("cannot start decoder, skipping track")
				l.queue.popFront()
				continue
			}
		}

		if l.deviceFormat == nil || *l.deviceFormat != session.format {
			l.closeDevice()
			if err := l.p.device.Open(session.format); err != nil {
				// The track stays at the head; retry on the backoff schedule.
				session.stop()
				l.scheduleRetry(err)
				return
			}
			f := session.format
			l.deviceFormat = &f
		}

		l.cur = &playback{item: item, session: session}
		l.deviceDown = false
		l.attempt = 0
		return
	}
}

// advance drops the finished (or failed) head and moves on.
func (l *loop) advance() {
	l.cur.session.stop()
	l.cur = nil
	l.queue.popFront()
	if l.queue.len() == 0 {
		l.toIdle()
		return
	}
	l.startHead()
}

// onDeviceError implements the write-error path: close the device, keep the
// current track at the queue head, and reopen with backoff.
func (l *loop) onDeviceError(err error) {
	l.cur.session.stop()
	l.cur = nil
	l.dropPrefetch()
	l.closeDevice()
	l.scheduleRetry(err)
}

func (l *loop) scheduleRetry(err error) {
	delay := deviceBackoff[min(l.attempt, len(deviceBackoff)-1)]
	log.Warn().Err(err).Dur("retry_in", delay).Msg("audio device error")
	l.attempt++
	l.deviceDown = true
	l.retryAt = time.Now().Add(delay)
}

func (l *loop) toIdle() {
	l.dropPrefetch()
	l.closeDevice()
	l.deviceDown = false
	l.attempt = 0
}

func (l *loop) closeDevice() {
	if l.deviceFormat != nil {
		if err := l.p.device.Close(); err != nil {
			log.Warn().Err(err).Msg("closing audio device")
		}
		l.deviceFormat = nil
	}
}

// maybePrefetch starts decoding the next queue entry when the current track
// approaches its end.
func (l *loop) maybePrefetch() {
	if l.next != nil || l.cur.session.totalFrames == 0 {
		return
	}
	second, ok := l.queue.second()
	if !ok {
		return
	}
	rate := uint64(l.cur.session.format.SampleRate)
	remaining := l.cur.session.totalFrames - min(l.cur.session.totalFrames, l.cur.playedFrames)
	if remaining > uint64(prefetchThreshold.Seconds())*rate {
		return
	}

	track, ok := l.p.index.Track(second.TrackID)
	if !ok {
		return
	}
	path := filepath.Join(l.p.root, l.p.index.String(track.Filename))
	session, err := l.p.decode(path)
	if err != nil {
		// startHead will retry and then skip the track with a log line.
		return
	}
	l.next = session
	l.nextID = second.QueueID
}

// takePrefetch hands over the prefetched session if it is for this entry,
// dropping a stale one otherwise.
func (l *loop) takePrefetch(id QueueID) *decodeSession {
	if l.next == nil {
		return nil
	}
	if l.nextID != id {
		l.dropPrefetch()
		return nil
	}
	s := l.next
	l.next = nil
	return s
}

func (l *loop) dropPrefetch() {
	if l.next != nil {
		l.next.stop()
		l.next = nil
	}
}

func (l *loop) snapshot() []TrackSnapshot {
	items := l.queue.snapshot()
	out := make([]TrackSnapshot, len(items))
	for i, item := range items {
		s := TrackSnapshot{QueueID: item.QueueID, TrackID: item.TrackID}
		if l.cur != nil && item.QueueID == l.cur.item.QueueID {
			rate := int64(l.cur.session.format.SampleRate)
			if rate > 0 {
				s.PositionMs = int64(l.cur.playedFrames) * 1000 / rate
				s.BufferedMs = int64(l.cur.session.decodedFrames.Load()) * 1000 / rate
			}
			s.IsBuffering = len(l.cur.session.chunks) == 0
		}
		out[i] = s
	}
	return out
}
