package library

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"

	"github.com/ruuda/musium/internal/flacmeta"
)

const scanWorkers = 8

// ScanResult couples a discovered file with its parsed metadata.
type ScanResult struct {
	// Path is relative to the library root.
	Path  string
	Mtime time.Time
	Meta  *flacmeta.File
}

// ScanError records a file that could not be read or parsed. The scan
// continues past it; one bad file never aborts a scan.
type ScanError struct {
	Path string
	Err  error
}

func (e ScanError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

// Scan walks the library root breadth-first and reads the metadata of every
// .flac file found. Audio samples are never decoded during a scan.
func Scan(root string) ([]ScanResult, []ScanError, error) {
	files, errs, err := walkFlacFiles(root)
	if err != nil {
		return nil, nil, err
	}
	log.Info().
		Str("library", root).
		Msgf("%s flac files discovered", humanize.Comma(int64(len(files))))

	results, readErrs := readAll(root, files)
	errs = append(errs, readErrs...)
	return results, errs, nil
}

type foundFile struct {
	relPath string
	mtime   time.Time
}

// walkFlacFiles enumerates regular files ending in .flac under root in
// breadth-first order. Directory symlinks are followed; resolved paths are
// tracked so link cycles terminate.
func walkFlacFiles(root string) ([]foundFile, []ScanError, error) {
	rootReal, err := filepath.EvalSymlinks(root)
	if err != nil {
		return nil, nil, fmt.Errorf("scan %s: %w", root, err)
	}

	type dir struct {
		abs string
		rel string
	}
	visited := map[string]bool{rootReal: true}
	queue := []dir{{abs: root}}

	var files []foundFile
	var errs []ScanError

	for len(queue) > 0 {
		d := queue[0]
		queue = queue[1:]

		entries, err := os.ReadDir(d.abs)
		if err != nil {
			errs = append(errs, ScanError{Path: d.rel, Err: err})
			continue
		}
		for _, e := range entries {
			abs := filepath.Join(d.abs, e.Name())
			rel := filepath.Join(d.rel, e.Name())

			// Stat resolves symlinks, so linked files and directories are
			// included like the real thing.
			info, err := os.Stat(abs)
			if err != nil {
				errs = append(errs, ScanError{Path: rel, Err: err})
				continue
			}
			switch {
			case info.IsDir():
				real, err := filepath.EvalSymlinks(abs)
				if err != nil {
					errs = append(errs, ScanError{Path: rel, Err: err})
					continue
				}
				if visited[real] {
					continue
				}
				visited[real] = true
				queue = append(queue, dir{abs: abs, rel: rel})
			case info.Mode().IsRegular() && strings.EqualFold(filepath.Ext(e.Name()), ".flac"):
				files = append(files, foundFile{relPath: rel, mtime: info.ModTime()})
			}
		}
	}
	return files, errs, nil
}

// readAll parses metadata for every discovered file on a small worker pool.
func readAll(root string, files []foundFile) ([]ScanResult, []ScanError) {
	workCh := make(chan foundFile)
	resultCh := make(chan ScanResult, len(files))
	errCh := make(chan ScanError, len(files))

	var wg sync.WaitGroup
	for range scanWorkers {
		wg.Go(func() {
			for f := range workCh {
				meta, err := flacmeta.Read(filepath.Join(root, f.relPath))
				if err != nil {
					errCh <- ScanError{Path: f.relPath, Err: err}
					continue
				}
				resultCh <- ScanResult{Path: f.relPath, Mtime: f.mtime, Meta: meta}
			}
		})
	}

	for _, f := range files {
		workCh <- f
	}
	close(workCh)
	wg.Wait()
	close(resultCh)
	close(errCh)

	results := make([]ScanResult, 0, len(files))
	for r := range resultCh {
		results = append(results, r)
	}
	var errs []ScanError
	for e := range errCh {
		errs = append(errs, e)
	}
	return results, errs
}
