// Package covers maintains the on-disk cover art cache: one full-resolution
// JPEG and one small thumbnail per album, extracted from the embedded
// pictures of the album's first track.
//
// The cache is written by the offline cache subcommand only. While serving,
// the directory is read-only; a missing file is a 404, never a trigger to
// generate anything.
package covers

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"time"

	"github.com/go-flac/flacpicture"
	goflac "github.com/go-flac/go-flac"
	"github.com/nfnt/resize"
	"github.com/rs/zerolog/log"

	"github.com/ruuda/musium/internal/library"
	"github.com/ruuda/musium/internal/store"
)

// Thumbnails are square, sized for pixel-perfect display on high-DPI
// screens at half this size.
const thumbSize = 140

const thumbQuality = 95

// ErrNoPicture reports a file without any embedded picture.
var ErrNoPicture = errors.New("covers: no embedded picture")

// Cache is a cover art directory. Files are named by album id:
// <album_id_hex>.jpg full size, <album_id_hex>.thumb.jpg downscaled.
type Cache struct {
	dir string
}

func New(dir string) *Cache {
	return &Cache{dir: dir}
}

// CoverPath returns where the full-resolution cover of an album lives.
func (c *Cache) CoverPath(id library.AlbumId) string {
	return filepath.Join(c.dir, id.Hex()+".jpg")
}

// ThumbPath returns where the thumbnail of an album lives.
func (c *Cache) ThumbPath(id library.AlbumId) string {
	return filepath.Join(c.dir, id.Hex()+".thumb.jpg")
}

// ExtractFrontCover returns the largest embedded picture of the FLAC file
// at path, or ErrNoPicture.
func ExtractFrontCover(path string) ([]byte, error) {
	f, err := goflac.ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("covers: parse %s: %w", path, err)
	}

	var best []byte
	for _, meta := range f.Meta {
		if meta.Type != goflac.Picture {
			continue
		}
		pic, err := flacpicture.ParseFromMetaDataBlock(*meta)
		if err != nil {
			continue
		}
		if len(pic.ImageData) > len(best) {
			best = pic.ImageData
		}
	}
	if best == nil {
		return nil, ErrNoPicture
	}
	return best, nil
}

// Generate builds or refreshes the cache for every album in the index.
// Albums whose recorded source file is unchanged are skipped. Albums
// without embedded art are skipped silently; extraction or encoding
// failures are logged and counted, and make Generate return an error at
// the end without stopping the iteration.
func (c *Cache) Generate(ix *library.Index, root string, st *store.Store) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return err
	}

	var generated, fresh, bare, failed int
	for _, album := range ix.Albums() {
		tracks := ix.AlbumTracks(album.ID)
		if len(tracks) == 0 {
			continue
		}
		src := filepath.Join(root, ix.String(tracks[0].Filename))
		info, err := os.Stat(src)
		if err != nil {
			log.Warn().Err(err).Str("file", src).Msg("cannot stat album source")
			failed++
			continue
		}

		row, err := st.Thumbnail(album.ID)
		if err != nil {
			return err
		}
		if row != nil && row.SourcePath == src && row.SourceMtime == info.ModTime().Unix() {
			fresh++
			continue
		}

		size, err := c.generateOne(album.ID, src)
		switch {
		case errors.Is(err, ErrNoPicture):
			bare++
			continue
		case err != nil:
			log.Warn().Err(err).Str("file", src).Msg("thumbnail generation failed")
			failed++
			continue
		}

		err = st.UpsertThumbnail(store.Thumbnail{
			AlbumID:     album.ID,
			SourcePath:  src,
			SourceMtime: info.ModTime().Unix(),
			SizeBytes:   size,
			CreatedAt:   time.Now().Unix(),
		})
		if err != nil {
			return err
		}
		generated++
	}

	log.Info().
		Int("generated", generated).
		Int("fresh", fresh).
		Int("no_picture", bare).
		Int("failed", failed).
		Msg("thumbnail cache refreshed")

	if failed > 0 {
		return fmt.Errorf("covers: %d albums failed", failed)
	}
	return nil
}

// generateOne writes the full cover and its thumbnail for one album and
// returns the thumbnail size in bytes.
func (c *Cache) generateOne(id library.AlbumId, src string) (int64, error) {
	data, err := ExtractFrontCover(src)
	if err != nil {
		return 0, err
	}
	if err := os.WriteFile(c.CoverPath(id), data, 0o644); err != nil {
		return 0, err
	}

	thumb, err := EncodeThumbnail(data)
	if err != nil {
		return 0, err
	}
	if err := os.WriteFile(c.ThumbPath(id), thumb, 0o644); err != nil {
		return 0, err
	}
	return int64(len(thumb)), nil
}

// EncodeThumbnail decodes an embedded picture (JPEG or PNG) and re-encodes
// it as a square JPEG thumbnail.
func EncodeThumbnail(data []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("covers: decode picture: %w", err)
	}
	small := resize.Resize(thumbSize, thumbSize, img, resize.Lanczos3)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, small, &jpeg.Options{Quality: thumbQuality}); err != nil {
		return nil, fmt.Errorf("covers: encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}
