package player

import "github.com/ruuda/musium/internal/library"

// QueueID is a monotonically increasing token issued per enqueue. Two
// enqueues of the same track yield distinct queue ids.
type QueueID uint64

// QueuedTrack is one entry of the play queue.
type QueuedTrack struct {
	QueueID QueueID
	TrackID library.TrackId
}

// queue is the playback FIFO. The head is the currently playing track; it
// is popped only when the track finishes. The queue is owned by the player
// goroutine exclusively, so it needs no locking.
type queue struct {
	items  []QueuedTrack
	nextID QueueID
}

func newQueue() *queue {
	return &queue{nextID: 1}
}

// push appends a track and returns the new entry and its position.
func (q *queue) push(id library.TrackId) (QueuedTrack, int) {
	item := QueuedTrack{QueueID: q.nextID, TrackID: id}
	q.nextID++
	q.items = append(q.items, item)
	return item, len(q.items) - 1
}

func (q *queue) front() (QueuedTrack, bool) {
	if len(q.items) == 0 {
		return QueuedTrack{}, false
	}
	return q.items[0], true
}

// second returns the entry after the head, the prefetch candidate.
func (q *queue) second() (QueuedTrack, bool) {
	if len(q.items) < 2 {
		return QueuedTrack{}, false
	}
	return q.items[1], true
}

func (q *queue) popFront() {
	if len(q.items) > 0 {
		q.items = q.items[1:]
	}
}

func (q *queue) len() int { return len(q.items) }

// snapshot copies the queue for reporting outside the player goroutine.
func (q *queue) snapshot() []QueuedTrack {
	out := make([]QueuedTrack, len(q.items))
	copy(out, q.items)
	return out
}
