package player

import (
	"fmt"
	"io"

	"github.com/ebitengine/oto/v3"
)

// otoDevice plays PCM through the platform audio layer (ALSA on Linux).
// Samples are rescaled to 16-bit little-endian, the one format the backend
// accepts on every platform. Device selection is delegated to the system's
// ALSA configuration; the configured name is kept for diagnostics.
type otoDevice struct {
	name   string
	format Format
	ctx    *oto.Context
	player *oto.Player
	pw     *io.PipeWriter
	// shift converts from the stream's bit depth to 16 bits.
	shift int
	buf   []byte
}

// NewOtoDevice returns the production audio device.
func NewOtoDevice(name string) Device {
	return &otoDevice{name: name}
}

func (d *otoDevice) Open(format Format) error {
	if d.player != nil {
		d.Close()
	}
	if d.ctx == nil || d.format.SampleRate != format.SampleRate || d.format.Channels != format.Channels {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   format.SampleRate,
			ChannelCount: format.Channels,
			Format:       oto.FormatSignedInt16LE,
		})
		if err != nil {
			return fmt.Errorf("audio device %s: %w", d.name, err)
		}
		<-ready
		d.ctx = ctx
	}
	d.format = format
	d.shift = format.BitsPerSample - 16

	// The player pulls from a pipe, so our Write blocks exactly when the
	// backend's buffer is full.
	pr, pw := io.Pipe()
	d.pw = pw
	d.player = d.ctx.NewPlayer(pr)
	d.player.Play()
	return nil
}

func (d *otoDevice) Write(samples []int32) error {
	if d.pw == nil {
		return fmt.Errorf("audio device %s: not open", d.name)
	}
	need := len(samples) * 2
	if cap(d.buf) < need {
		d.buf = make([]byte, need)
	}
	buf := d.buf[:need]
	for i, s := range samples {
		v := s
		switch {
		case d.shift > 0:
			v >>= d.shift
		case d.shift < 0:
			v <<= -d.shift
		}
		buf[2*i] = byte(v)
		buf[2*i+1] = byte(v >> 8)
	}
	_, err := d.pw.Write(buf)
	return err
}

func (d *otoDevice) Close() error {
	if d.player != nil {
		d.player.Close()
		d.player = nil
	}
	if d.pw != nil {
		d.pw.Close()
		d.pw = nil
	}
	return nil
}
