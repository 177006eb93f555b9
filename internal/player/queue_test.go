package player

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruuda/musium/internal/library"
)

func TestQueueFIFO(t *testing.T) {
	q := newQueue()
	_, pos := q.push(library.TrackId(1))
	assert.Equal(t, 0, pos)
	_, pos = q.push(library.TrackId(2))
	assert.Equal(t, 1, pos)

	head, ok := q.front()
	require.True(t, ok)
	assert.EqualValues(t, 1, head.TrackID)

	q.popFront()
	head, ok = q.front()
	require.True(t, ok)
	assert.EqualValues(t, 2, head.TrackID)

	q.popFront()
	_, ok = q.front()
	assert.False(t, ok)
}

func TestQueueIDsAreMonotonic(t *testing.T) {
	q := newQueue()
	var last QueueID
	for i := range 10 {
		item, _ := q.push(library.TrackId(uint64(i)))
		assert.Greater(t, item.QueueID, last)
		last = item.QueueID
	}
}

func TestQueueDuplicateTracksGetDistinctIDs(t *testing.T) {
	q := newQueue()
	a, _ := q.push(library.TrackId(7))
	b, _ := q.push(library.TrackId(7))
	assert.NotEqual(t, a.QueueID, b.QueueID)
	assert.Equal(t, 2, q.len())
}

func TestQueueSecond(t *testing.T) {
	q := newQueue()
	_, ok := q.second()
	assert.False(t, ok)

	q.push(library.TrackId(1))
	_, ok = q.second()
	assert.False(t, ok)

	q.push(library.TrackId(2))
	second, ok := q.second()
	require.True(t, ok)
	assert.EqualValues(t, 2, second.TrackID)
}

func TestQueueSnapshotIsACopy(t *testing.T) {
	q := newQueue()
	q.push(library.TrackId(1))
	snap := q.snapshot()
	q.popFront()
	require.Len(t, snap, 1)
	assert.EqualValues(t, 1, snap[0].TrackID)
}
