package metadata

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nuevabiblioteca/biblioteca/internal/taskqueue"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeAudioFile creates a file with a supported extension but no parseable
// tags, which is how most untagged rips look to the extractor.
func writeAudioFile(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("not really audio data"), 0o644))
	return path
}

func TestIsSupported(t *testing.T) {
	t.Parallel()

	assert.True(t, IsSupported("/music/track.mp3"))
	assert.True(t, IsSupported("/music/track.FLAC"))
	assert.True(t, IsSupported("track.m4a"))
	assert.True(t, IsSupported("track.ogg"))
	assert.False(t, IsSupported("/music/cover.jpg"))
	assert.False(t, IsSupported("/music/track"))
	assert.False(t, IsSupported("notes.txt"))
}

func TestExtractUnsupportedFormat(t *testing.T) {
	t.Parallel()

	e := NewExtractor(testLogger())
	_, err := e.Extract(context.Background(), "/music/cover.jpg")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestExtractMissingFile(t *testing.T) {
	t.Parallel()

	e := NewExtractor(testLogger())
	_, err := e.Extract(context.Background(), filepath.Join(t.TempDir(), "gone.mp3"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestExtractUntaggedFileKeepsFileInfo(t *testing.T) {
	t.Parallel()

	path := writeAudioFile(t, "Lonely Track.mp3")

	e := NewExtractor(testLogger())
	md, err := e.Extract(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "Lonely Track", md.Title, "title falls back to the file name")
	assert.Equal(t, "mp3", md.Format)
	assert.Equal(t, path, md.FilePath)
	assert.Equal(t, int64(len("not really audio data")), md.FileSize)
	assert.False(t, md.ModTime.IsZero())
	assert.Empty(t, md.Artist)
}

func TestExtractCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := NewExtractor(testLogger())
	_, err := e.Extract(ctx, "/music/track.mp3")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHandlerRejectsBadParams(t *testing.T) {
	t.Parallel()

	h := NewExtractor(testLogger()).Handler()

	_, err := h(context.Background(), json.RawMessage(`{not json`))
	require.Error(t, err)
	assert.True(t, taskqueue.IsNonRetryable(err))

	_, err = h(context.Background(), json.RawMessage(`{}`))
	require.Error(t, err)
	assert.True(t, taskqueue.IsNonRetryable(err))
}

func TestHandlerPermanentConditionsAreNonRetryable(t *testing.T) {
	t.Parallel()

	h := NewExtractor(testLogger()).Handler()

	params, err := json.Marshal(Params{Path: "/music/cover.jpg"})
	require.NoError(t, err)
	_, err = h(context.Background(), params)
	require.Error(t, err)
	assert.True(t, taskqueue.IsNonRetryable(err))

	params, err = json.Marshal(Params{Path: filepath.Join(t.TempDir(), "gone.mp3")})
	require.NoError(t, err)
	_, err = h(context.Background(), params)
	require.Error(t, err)
	assert.True(t, taskqueue.IsNonRetryable(err))
}

func TestHandlerReturnsMetadata(t *testing.T) {
	t.Parallel()

	path := writeAudioFile(t, "track.flac")
	h := NewExtractor(testLogger()).Handler()

	params, err := json.Marshal(Params{Path: path})
	require.NoError(t, err)

	result, err := h(context.Background(), params)
	require.NoError(t, err)

	md, ok := result.(*TrackMetadata)
	require.True(t, ok)
	assert.Equal(t, "flac", md.Format)
	assert.Equal(t, "track", md.Title)
}
