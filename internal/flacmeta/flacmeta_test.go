package flacmeta

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validTags() map[string]string {
	return map[string]string{
		"title":       "Aria",
		"artist":      "Artemis",
		"album":       "Overture",
		"albumartist": "Artemis",
		"tracknumber": "3",
		"discnumber":  "1",
		"date":        "2020-07-18",
	}
}

var testInfo = StreamInfo{SampleRate: 44100, BitsPerSample: 16, Channels: 2, TotalSamples: 44100}

func TestFileFromTagsComplete(t *testing.T) {
	f, err := fileFromTags(testInfo, validTags())
	require.NoError(t, err)
	assert.Equal(t, "Aria", f.Title)
	assert.Equal(t, "Artemis", f.AlbumArtist)
	assert.Equal(t, 3, f.TrackNumber)
	assert.Equal(t, 1, f.DiscNumber)
	assert.Equal(t, "2020-07-18", f.Date)
	assert.Nil(t, f.AlbumLoudness)
}

func TestFileFromTagsMissingRequired(t *testing.T) {
	for _, key := range []string{"title", "artist", "album", "albumartist", "tracknumber"} {
		tags := validTags()
		delete(tags, key)
		_, err := fileFromTags(testInfo, tags)
		var missing *MissingTagError
		require.ErrorAs(t, err, &missing, "key %s", key)
		assert.Equal(t, key, missing.Key)
	}
}

func TestFileFromTagsEmptyValueIsMissing(t *testing.T) {
	tags := validTags()
	tags["title"] = ""
	var missing *MissingTagError
	_, err := fileFromTags(testInfo, tags)
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "title", missing.Key)
}

func TestFileFromTagsDiscDefaultsToOne(t *testing.T) {
	tags := validTags()
	delete(tags, "discnumber")
	f, err := fileFromTags(testInfo, tags)
	require.NoError(t, err)
	assert.Equal(t, 1, f.DiscNumber)
}

func TestFileFromTagsOriginalDateWins(t *testing.T) {
	tags := validTags()
	tags["date"] = "2023-01-01" // a reissue
	tags["originaldate"] = "1977-10-14"
	f, err := fileFromTags(testInfo, tags)
	require.NoError(t, err)
	assert.Equal(t, "1977-10-14", f.Date)
}

func TestFileFromTagsDateFormats(t *testing.T) {
	for _, date := range []string{"2020", "2020-07", "2020-07-18"} {
		tags := validTags()
		tags["date"] = date
		f, err := fileFromTags(testInfo, tags)
		require.NoError(t, err, "date %q", date)
		assert.Equal(t, date, f.Date)
	}
	for _, date := range []string{"20", "2020-7", "yesterday", "2020-07-18T00:00:00Z"} {
		tags := validTags()
		tags["date"] = date
		_, err := fileFromTags(testInfo, tags)
		var malformed *MalformedTagError
		assert.ErrorAs(t, err, &malformed, "date %q", date)
	}
}

func TestFileFromTagsNumberPair(t *testing.T) {
	tags := validTags()
	tags["tracknumber"] = "3/12"
	f, err := fileFromTags(testInfo, tags)
	require.NoError(t, err)
	assert.Equal(t, 3, f.TrackNumber)

	tags["tracknumber"] = "three"
	_, err = fileFromTags(testInfo, tags)
	var malformed *MalformedTagError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, "tracknumber", malformed.Key)
}

func TestFileFromTagsLoudness(t *testing.T) {
	tags := validTags()
	tags["bs17704_album_loudness"] = "-9.5 LUFS"
	f, err := fileFromTags(testInfo, tags)
	require.NoError(t, err)
	require.NotNil(t, f.AlbumLoudness)
	assert.InDelta(t, -9.5, *f.AlbumLoudness, 1e-9)

	tags["bs17704_album_loudness"] = "loud"
	_, err = fileFromTags(testInfo, tags)
	var malformed *MalformedTagError
	assert.ErrorAs(t, err, &malformed)
}

func TestReadRejectsNonFlac(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not.flac")
	require.NoError(t, os.WriteFile(path, []byte("RIFF not a flac file"), 0o644))
	_, err := Read(path)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestReadMissingFile(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "gone.flac"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnsupportedFormat)
}
