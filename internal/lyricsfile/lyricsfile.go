// Package lyricsfile stores lyrics in .lrc files next to audio files.
package lyricsfile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

const Ext = ".lrc"

// Path returns the sidecar path for an audio file: same name, .lrc extension.
func Path(audioPath string) string {
	return strings.TrimSuffix(audioPath, filepath.Ext(audioPath)) + Ext
}

// Exists reports whether the audio file has a sidecar.
func Exists(audioPath string) bool {
	info, err := os.Stat(Path(audioPath))
	return err == nil && info.Mode().IsRegular()
}

// Read returns the sidecar content. A missing sidecar returns os.ErrNotExist.
func Read(audioPath string) (string, error) {
	data, err := os.ReadFile(Path(audioPath))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Delete removes the sidecar and reports whether one was there.
func Delete(audioPath string) (bool, error) {
	err := os.Remove(Path(audioPath))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("delete lrc: %w", err)
	}
	return true, nil
}

// Write stores content at lrcPath as UTF-8, creating the directory if needed.
// When a file already exists and backup is set, it is copied to the first free
// of path.backup, path.backup.1, path.backup.2, ... first. The returned
// backup path is empty when nothing was backed up.
func Write(lrcPath, content string, backup bool) (string, error) {
	var backupPath string
	if backup {
		var err error
		backupPath, err = Backup(lrcPath)
		if err != nil {
			return "", err
		}
	}
	if err := os.MkdirAll(filepath.Dir(lrcPath), 0o755); err != nil {
		return backupPath, fmt.Errorf("create lyrics dir: %w", err)
	}
	if err := os.WriteFile(lrcPath, []byte(content), 0o644); err != nil {
		return backupPath, fmt.Errorf("write lrc: %w", err)
	}
	return backupPath, nil
}

// Backup copies an existing file to its next free backup path. It returns
// "" without error when path does not exist.
func Backup(path string) (string, error) {
	src, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("open for backup: %w", err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return "", fmt.Errorf("stat for backup: %w", err)
	}

	backupPath := NextBackupPath(path)
	dst, err := os.OpenFile(backupPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return "", fmt.Errorf("create backup: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return "", fmt.Errorf("copy backup: %w", err)
	}
	if err := dst.Close(); err != nil {
		return "", fmt.Errorf("close backup: %w", err)
	}
	_ = os.Chtimes(backupPath, info.ModTime(), info.ModTime())
	return backupPath, nil
}

// NextBackupPath returns the first backup name for path that is not taken.
func NextBackupPath(path string) string {
	candidate := path + ".backup"
	for n := 1; fileExists(candidate); n++ {
		candidate = path + ".backup." + strconv.Itoa(n)
	}
	return candidate
}

// CheckWritePermission reports whether new files can be created in dir.
func CheckWritePermission(dir string) bool {
	f, err := os.CreateTemp(dir, ".composer_write_test*")
	if err != nil {
		return false
	}
	name := f.Name()
	f.Close()
	return os.Remove(name) == nil
}

var (
	unsafeChars = regexp.MustCompile(`[<>:"/\\|?*]`)
	underscores = regexp.MustCompile(`_+`)
)

// SafeFilename replaces characters that are invalid in file names.
func SafeFilename(name string) string {
	safe := unsafeChars.ReplaceAllString(name, "_")
	safe = underscores.ReplaceAllString(safe, "_")
	safe = strings.Trim(safe, "_ ")
	if safe == "" {
		return "lyrics"
	}
	return safe
}

func fileExists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
