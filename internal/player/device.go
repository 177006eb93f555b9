package player

// Device is the audio output sink, owned by the player goroutine. Open
// configures it for a stream format, Write blocks until the device has
// accepted the whole chunk, Close releases the output so a different format
// can be opened. The player closes the device whenever playback goes idle.
type Device interface {
	Open(format Format) error
	Write(samples []int32) error
	Close() error
}
