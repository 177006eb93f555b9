// Package flacmeta reads stream properties and Vorbis comments from FLAC
// files. It is deliberately strict: a File is only produced when every tag
// the index needs is present and well-formed, so the index never holds
// half-tagged tracks.
package flacmeta

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-flac/flacvorbis"
	goflac "github.com/go-flac/go-flac"
)

// StreamInfo describes the audio stream of a FLAC file.
type StreamInfo struct {
	SampleRate    int
	BitsPerSample int
	Channels      int
	TotalSamples  uint64
}

// File is the parsed metadata of one FLAC file.
type File struct {
	Info StreamInfo

	Title       string
	Artist      string
	Album       string
	AlbumArtist string
	// AlbumArtistSort is the artist name in sort order ("Beatles, The"),
	// when tagged. Empty otherwise.
	AlbumArtistSort string
	TrackNumber     int
	// DiscNumber defaults to 1 when untagged.
	DiscNumber int
	// Date is the original release date when tagged, the release date
	// otherwise. Validated to be YYYY, YYYY-MM, or YYYY-MM-DD.
	Date string
	// AlbumLoudness is the EBU R128 integrated album loudness in LUFS,
	// when tagged.
	AlbumLoudness *float64

	// Tags holds every Vorbis comment with keys lower-cased. For repeated
	// keys the first value wins.
	Tags map[string]string
}

// ErrUnsupportedFormat reports a file that is not a FLAC container.
var ErrUnsupportedFormat = errors.New("flacmeta: unsupported format")

// MissingTagError reports a required tag absent from a file.
type MissingTagError struct {
	Key string
}

func (e *MissingTagError) Error() string {
	return fmt.Sprintf("flacmeta: missing tag %q", e.Key)
}

// MalformedTagError reports a tag whose value could not be parsed.
type MalformedTagError struct {
	Key   string
	Value string
}

func (e *MalformedTagError) Error() string {
	return fmt.Sprintf("flacmeta: malformed tag %s=%q", e.Key, e.Value)
}

var dateRe = regexp.MustCompile(`^\d{4}(-\d{2}(-\d{2})?)?$`)

// Read parses the FLAC file at path. It never returns a partial result: on
// any missing or malformed required tag the whole file is rejected.
func Read(path string) (*File, error) {
	f, err := goflac.ParseFile(path)
	if err != nil {
		// I/O failures (missing file, permissions) pass through as-is;
		// anything else means the bytes are not a FLAC container.
		var pathErr *os.PathError
		if errors.As(err, &pathErr) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}

	si, err := f.GetStreamInfo()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	info := StreamInfo{
		SampleRate:    si.SampleRate,
		BitsPerSample: si.BitDepth,
		Channels:      si.ChannelCount,
		TotalSamples:  uint64(si.SampleCount),
	}

	tags := make(map[string]string)
	for _, meta := range f.Meta {
		if meta.Type != goflac.VorbisComment {
			continue
		}
		cmt, err := flacvorbis.ParseFromMetaDataBlock(*meta)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
		}
		for _, c := range cmt.Comments {
			if k, v, ok := strings.Cut(c, "="); ok {
				k = strings.ToLower(k)
				if _, dup := tags[k]; !dup {
					tags[k] = v
				}
			}
		}
		break
	}

	return fileFromTags(info, tags)
}

// fileFromTags validates the tag dictionary and assembles the File.
func fileFromTags(info StreamInfo, tags map[string]string) (*File, error) {
	file := &File{Info: info, Tags: tags}

	for _, req := range []struct {
		key  string
		dest *string
	}{
		{"title", &file.Title},
		{"artist", &file.Artist},
		{"album", &file.Album},
		{"albumartist", &file.AlbumArtist},
	} {
		v, ok := tags[req.key]
		if !ok || v == "" {
			return nil, &MissingTagError{Key: req.key}
		}
		*req.dest = v
	}
	file.AlbumArtistSort = tags["albumartistsort"]

	track, err := parseTagNumber(tags, "tracknumber")
	if err != nil {
		return nil, err
	}
	file.TrackNumber = track

	file.DiscNumber = 1
	if _, ok := tags["discnumber"]; ok {
		disc, err := parseTagNumber(tags, "discnumber")
		if err != nil {
			return nil, err
		}
		file.DiscNumber = disc
	}

	// The original release date identifies the album; the release date of
	// the particular edition is only a fallback.
	date, ok := tags["originaldate"]
	if !ok {
		date, ok = tags["date"]
	}
	if !ok || date == "" {
		return nil, &MissingTagError{Key: "date"}
	}
	if !dateRe.MatchString(date) {
		return nil, &MalformedTagError{Key: "date", Value: date}
	}
	file.Date = date

	if v, ok := tags["bs17704_album_loudness"]; ok {
		lufs, err := parseLoudness(v)
		if err != nil {
			return nil, &MalformedTagError{Key: "bs17704_album_loudness", Value: v}
		}
		file.AlbumLoudness = &lufs
	}

	return file, nil
}

// parseTagNumber reads a track or disc number that may be "7" or "7/12".
func parseTagNumber(tags map[string]string, key string) (int, error) {
	v, ok := tags[key]
	if !ok || v == "" {
		return 0, &MissingTagError{Key: key}
	}
	head := v
	if n, _, ok := strings.Cut(v, "/"); ok {
		head = n
	}
	num, err := strconv.Atoi(strings.TrimSpace(head))
	if err != nil || num < 0 {
		return 0, &MalformedTagError{Key: key, Value: v}
	}
	return num, nil
}

// parseLoudness reads a loudness value like "-9.25 LUFS".
func parseLoudness(v string) (float64, error) {
	s := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(v), "LUFS"))
	return strconv.ParseFloat(s, 64)
}
