package lyricsfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPath(t *testing.T) {
	assert.Equal(t, "/music/a/song.lrc", Path("/music/a/song.flac"))
	assert.Equal(t, "/music/a/my.song.lrc", Path("/music/a/my.song.mp3"))
	assert.Equal(t, "/music/noext.lrc", Path("/music/noext"))
}

func TestWriteBacksUpOnlyWhenFileExists(t *testing.T) {
	dir := t.TempDir()
	lrc := filepath.Join(dir, "song.lrc")

	backup, err := Write(lrc, "[00:01.00]hello", true)
	require.NoError(t, err)
	assert.Empty(t, backup, "first write must not create a backup")
	_, err = os.Stat(lrc + ".backup")
	assert.ErrorIs(t, err, os.ErrNotExist)

	backup, err = Write(lrc, "[00:01.00]hello", true)
	require.NoError(t, err)
	assert.Equal(t, lrc+".backup", backup)

	data, err := os.ReadFile(backup)
	require.NoError(t, err)
	assert.Equal(t, "[00:01.00]hello", string(data))

	backup, err = Write(lrc, "v3", true)
	require.NoError(t, err)
	assert.Equal(t, lrc+".backup.1", backup)

	backup, err = Write(lrc, "v4", true)
	require.NoError(t, err)
	assert.Equal(t, lrc+".backup.2", backup)

	data, err = os.ReadFile(lrc)
	require.NoError(t, err)
	assert.Equal(t, "v4", string(data))
}

func TestWriteWithoutBackup(t *testing.T) {
	dir := t.TempDir()
	lrc := filepath.Join(dir, "song.lrc")
	require.NoError(t, os.WriteFile(lrc, []byte("old"), 0o644))

	backup, err := Write(lrc, "new", false)
	require.NoError(t, err)
	assert.Empty(t, backup)
	assert.NoFileExists(t, lrc+".backup")
}

func TestWriteCreatesDirectory(t *testing.T) {
	lrc := filepath.Join(t.TempDir(), "nested", "dir", "song.lrc")
	_, err := Write(lrc, "ünïcødé 歌詞", true)
	require.NoError(t, err)

	data, err := os.ReadFile(lrc)
	require.NoError(t, err)
	assert.Equal(t, "ünïcødé 歌詞", string(data))
}

func TestReadExistsDelete(t *testing.T) {
	dir := t.TempDir()
	audio := filepath.Join(dir, "song.mp3")

	assert.False(t, Exists(audio))
	_, err := Read(audio)
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = Write(Path(audio), "words", true)
	require.NoError(t, err)
	assert.True(t, Exists(audio))

	got, err := Read(audio)
	require.NoError(t, err)
	assert.Equal(t, "words", got)

	deleted, err := Delete(audio)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = Delete(audio)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestCheckWritePermission(t *testing.T) {
	assert.True(t, CheckWritePermission(t.TempDir()))
	assert.False(t, CheckWritePermission(filepath.Join(t.TempDir(), "missing")))
}

func TestSafeFilename(t *testing.T) {
	tests := map[string]string{
		`AC/DC: Back <in> Black?`: "AC_DC_ Back _in_ Black",
		`a||b`:                    "a_b",
		` _*_ `:                   "lyrics",
		"":                        "lyrics",
		"plain":                   "plain",
	}
	for in, want := range tests {
		assert.Equal(t, want, SafeFilename(in), "input %q", in)
	}
}
