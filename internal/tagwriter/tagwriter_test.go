package tagwriter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bogem/id3v2/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestID3Language(t *testing.T) {
	assert.Equal(t, "eng", id3Language("en"))
	assert.Equal(t, "jpn", id3Language(" JA "))
	assert.Equal(t, "fin", id3Language("fin"))
	assert.Equal(t, "XXX", id3Language("xx"))
	assert.Equal(t, "XXX", id3Language(""))
}

func newMP3(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "song.mp3")
	require.NoError(t, os.WriteFile(path, []byte{}, 0o644))

	tg, err := id3v2.Open(path, id3v2.Options{Parse: true})
	require.NoError(t, err)
	tg.SetTitle("Song")
	tg.SetArtist("Band")
	require.NoError(t, tg.Save())
	require.NoError(t, tg.Close())
	return path
}

func TestWriteLyricsMP3(t *testing.T) {
	path := newMP3(t)
	w := New(nil)

	require.NoError(t, w.WriteLyrics(path, "first", "en"))
	require.NoError(t, w.WriteLyrics(path, "[00:01.00]second", "en"))

	tg, err := id3v2.Open(path, id3v2.Options{Parse: true})
	require.NoError(t, err)
	defer tg.Close()

	frames := tg.GetFrames(tg.CommonID("Unsynchronised lyrics/text transcription"))
	require.Len(t, frames, 1, "rewriting must replace the existing frame")
	uslt, ok := frames[0].(id3v2.UnsynchronisedLyricsFrame)
	require.True(t, ok)
	assert.Equal(t, "[00:01.00]second", uslt.Lyrics)
	assert.Equal(t, "eng", uslt.Language)
	assert.Equal(t, "Song", tg.Title())

	got, err := ReadLyrics(path)
	require.NoError(t, err)
	assert.Equal(t, "[00:01.00]second", got)
}

func TestWriteLyricsMissingFile(t *testing.T) {
	w := New(nil)
	err := w.WriteLyrics(filepath.Join(t.TempDir(), "gone.ogg"), "x", "en")
	assert.Error(t, err)
}

func TestReadLyricsWithoutTags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raw.mp3")
	require.NoError(t, os.WriteFile(path, []byte("not really audio"), 0o644))

	text, err := ReadLyrics(path)
	if err == nil {
		assert.Empty(t, text)
	}
	assert.False(t, HasLyrics(path))
}
