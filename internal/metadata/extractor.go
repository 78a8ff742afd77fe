// Package metadata extracts tag and file information from audio files.
// It is a task-queue handler collaborator: the queue treats it as an
// opaque handler for the metadata_extract task type.
package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dhowden/tag"
	"github.com/nuevabiblioteca/biblioteca/internal/taskqueue"
)

// TaskType is the registry identifier for single-file extraction tasks.
const TaskType = "metadata_extract"

// ErrUnsupportedFormat is returned for files whose extension is not a
// recognized audio format.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// supportedExtensions are the audio formats the extractor understands.
var supportedExtensions = map[string]bool{
	".mp3":  true,
	".flac": true,
	".m4a":  true,
	".ogg":  true,
}

// IsSupported reports whether the file's extension is a supported format.
func IsSupported(path string) bool {
	return supportedExtensions[strings.ToLower(filepath.Ext(path))]
}

// TrackMetadata holds the extracted tag and file information for one track.
type TrackMetadata struct {
	Title       string    `json:"title"`
	Artist      string    `json:"artist"`
	Album       string    `json:"album"`
	AlbumArtist string    `json:"album_artist,omitempty"`
	Year        int       `json:"year,omitempty"`
	Genre       string    `json:"genre,omitempty"`
	TrackNumber int       `json:"track_number,omitempty"`
	DiscNumber  int       `json:"disc_number,omitempty"`
	Format      string    `json:"format"`
	FilePath    string    `json:"file_path"`
	FileSize    int64     `json:"file_size"`
	ModTime     time.Time `json:"mod_time"`
}

// Params is the task payload for a metadata_extract task.
type Params struct {
	Path string `json:"path"`
}

// Extractor reads audio metadata from files on disk.
type Extractor struct {
	logger *slog.Logger
}

// NewExtractor creates an Extractor.
func NewExtractor(logger *slog.Logger) *Extractor {
	return &Extractor{logger: logger}
}

// Extract reads the tags and file information of a single audio file.
func (e *Extractor) Extract(ctx context.Context, path string) (*TrackMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !IsSupported(path) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat audio file: %w", err)
	}

	md := &TrackMetadata{
		// Fallback title when the file carries no tags at all.
		Title:    strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Format:   strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."),
		FilePath: path,
		FileSize: info.Size(),
		ModTime:  info.ModTime().UTC(),
	}

	tags, err := tag.ReadFrom(f)
	if err != nil {
		// A readable file with unparseable tags still yields the file
		// information; the tag error is only logged.
		e.logger.Warn("failed to read tags, keeping file info only",
			"path", path,
			"error", err)
		return md, nil
	}

	if t := tags.Title(); t != "" {
		md.Title = t
	}
	md.Artist = tags.Artist()
	md.Album = tags.Album()
	md.AlbumArtist = tags.AlbumArtist()
	md.Year = tags.Year()
	md.Genre = tags.Genre()
	md.TrackNumber, _ = tags.Track()
	md.DiscNumber, _ = tags.Disc()

	return md, nil
}

// Handler adapts the extractor to the task queue contract. Malformed
// parameters and unsupported formats are permanent conditions and are
// reported as non-retryable.
func (e *Extractor) Handler() taskqueue.Handler {
	return func(ctx context.Context, params json.RawMessage) (any, error) {
		var p Params
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, taskqueue.NonRetryable(fmt.Errorf("invalid metadata params: %w", err))
		}
		if p.Path == "" {
			return nil, taskqueue.NonRetryable(errors.New("metadata params missing path"))
		}

		md, err := e.Extract(ctx, p.Path)
		if err != nil {
			if errors.Is(err, ErrUnsupportedFormat) || errors.Is(err, os.ErrNotExist) {
				return nil, taskqueue.NonRetryable(err)
			}
			return nil, err
		}
		return md, nil
	}
}
