// Command musium is a music playback daemon: it indexes a read-only FLAC
// collection and serves a JSON HTTP API plus audio playback to the local
// network.
//
//	musium serve musium.conf   run the daemon
//	musium cache musium.conf   build or refresh the thumbnail cache
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ruuda/musium/internal/config"
	"github.com/ruuda/musium/internal/covers"
	"github.com/ruuda/musium/internal/library"
	"github.com/ruuda/musium/internal/player"
	"github.com/ruuda/musium/internal/server"
	"github.com/ruuda/musium/internal/store"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	if os.Getenv("MUSIUM_DEBUG") != "" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	if len(os.Args) != 3 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load(os.Args[2])
	if err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		err = runServe(cfg)
	case "cache":
		err = runCache(cfg)
	default:
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		log.Error().Err(err).Msg("exiting")
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage:")
	fmt.Fprintln(os.Stderr, "  musium serve <config>")
	fmt.Fprintln(os.Stderr, "  musium cache <config>")
}

// buildIndex scans the library and freezes the index. Files with bad tags
// are logged and skipped; id collisions and inconsistent albums abort.
func buildIndex(cfg *config.Config, loudness map[library.AlbumId]int16) (*library.Index, error) {
	start := time.Now()
	results, scanErrs, err := library.Scan(cfg.LibraryPath)
	if err != nil {
		return nil, err
	}
	for _, scanErr := range scanErrs {
		log.Warn().Str("file", scanErr.Path).Err(scanErr.Err).Msg("skipping file")
	}

	builder := library.NewBuilder()
	for _, res := range results {
		if err := builder.Insert(res); err != nil {
			var fieldErr *library.FieldError
			if errors.As(err, &fieldErr) {
				log.Warn().Str("file", res.Path).Err(err).Msg("skipping file")
				continue
			}
			// Id collisions and album mismatches poison the index.
			return nil, err
		}
	}
	builder.MergeLoudness(loudness)

	index, err := builder.Build()
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("tracks", humanize.Comma(int64(index.NumTracks()))).
		Str("albums", humanize.Comma(int64(index.NumAlbums()))).
		Str("artists", humanize.Comma(int64(index.NumArtists()))).
		Dur("elapsed", time.Since(start)).
		Msg("index built")
	return index, nil
}

func runServe(cfg *config.Config) error {
	st, err := store.Open(cfg.DbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	loudness, err := st.AlbumLoudness()
	if err != nil {
		return err
	}
	index, err := buildIndex(cfg, loudness)
	if err != nil {
		return err
	}

	device := player.NewOtoDevice(cfg.AudioDevice)
	p := player.New(index, cfg.LibraryPath, device, cfg.VolumeDb)
	go p.Run()

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           server.New(index, covers.New(cfg.CoversPath), p, cfg.LibraryPath).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("listen", cfg.Listen).Msg("serving")
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Stringer("signal", sig).Msg("shutting down")
	case err := <-errCh:
		p.Shutdown()
		return err
	}

	// Stop accepting requests and drain the in-flight ones, then stop the
	// player, which closes the audio device.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	p.Shutdown()
	return nil
}

func runCache(cfg *config.Config) error {
	st, err := store.Open(cfg.DbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	index, err := buildIndex(cfg, nil)
	if err != nil {
		return err
	}

	// Persist loudness read from tags, so later serve runs can fill in
	// albums whose files lost the tag.
	loudness := make(map[library.AlbumId]int16)
	for _, album := range index.Albums() {
		if album.Loudness != library.LoudnessUnknown {
			loudness[album.ID] = album.Loudness
		}
	}
	if len(loudness) > 0 {
		if err := st.SetAlbumLoudness(loudness); err != nil {
			return err
		}
	}

	return covers.New(cfg.CoversPath).Generate(index, cfg.LibraryPath, st)
}
