// Package library walks music folders and produces track records.
package library

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dhowden/tag"
	jsoniter "github.com/json-iterator/go"

	"github.com/Gasiyu/Composer/internal/lyricsfile"
	"github.com/Gasiyu/Composer/internal/provider"
	"github.com/Gasiyu/Composer/internal/tagwriter"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultExtensions are the audio containers picked up by a scan.
var DefaultExtensions = []string{".mp3", ".flac", ".ogg", ".m4a", ".mp4", ".wav", ".wma", ".opus"}

// Events receives scan notifications. Nil fields are skipped.
type Events struct {
	Started   func(root string)
	FileFound func(path string)
	Progress  func(processed, total int)
	Completed func(tracks []provider.Track)
	Error     func(err error)
}

type Options struct {
	Extensions []string
	Events     Events
	Logger     *slog.Logger
}

type Scanner struct {
	exts   map[string]bool
	events Events
	logger *slog.Logger
}

func New(opts Options) *Scanner {
	exts := opts.Extensions
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	allowed := make(map[string]bool, len(exts))
	for _, e := range exts {
		allowed[strings.ToLower(e)] = true
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{
		exts:   allowed,
		events: opts.Events,
		logger: logger.With(slog.String("component", "library")),
	}
}

// Supported reports whether path has a scanned extension.
func (s *Scanner) Supported(path string) bool {
	return s.exts[strings.ToLower(filepath.Ext(path))]
}

// Scan reads every supported file below roots. The first pass only counts
// files so that progress can be reported as (processed, total).
func (s *Scanner) Scan(ctx context.Context, roots ...string) ([]provider.Track, error) {
	tracks, err := s.scan(ctx, roots)
	if err != nil {
		s.logger.Warn("scan failed", slog.Any("err", err))
		if s.events.Error != nil {
			s.events.Error(err)
		}
		return nil, err
	}
	if s.events.Completed != nil {
		s.events.Completed(tracks)
	}
	return tracks, nil
}

func (s *Scanner) scan(ctx context.Context, roots []string) ([]provider.Track, error) {
	var paths []string
	for _, root := range roots {
		info, err := os.Stat(root)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", root, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("scan %s: not a directory", root)
		}
		if s.events.Started != nil {
			s.events.Started(root)
		}
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if err != nil {
				s.logger.Debug("skip unreadable entry", slog.String("path", path), slog.Any("err", err))
				return nil
			}
			if d.IsDir() || !s.Supported(path) {
				return nil
			}
			paths = append(paths, path)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	total := len(paths)
	tracks := make([]provider.Track, 0, total)
	for i, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if s.events.FileFound != nil {
			s.events.FileFound(path)
		}
		tracks = append(tracks, s.ReadTrack(ctx, path))
		if s.events.Progress != nil {
			s.events.Progress(i+1, total)
		}
	}
	s.logger.Info("scan complete", slog.Int("tracks", total))
	return tracks, nil
}

// ReadTrack extracts metadata for one file. Missing tags fall back to the
// file stem and the unknown placeholders.
func (s *Scanner) ReadTrack(ctx context.Context, path string) provider.Track {
	t := provider.Track{Path: path}
	if f, err := os.Open(path); err == nil {
		meta, err := tag.ReadFrom(f)
		if err == nil {
			t.Title = strings.TrimSpace(meta.Title())
			t.Artist = strings.TrimSpace(meta.Artist())
			t.Album = strings.TrimSpace(meta.Album())
		} else if !errors.Is(err, tag.ErrNoTagsFound) {
			s.logger.Debug("read tags", slog.String("path", path), slog.Any("err", err))
		}
		f.Close()
	}
	if t.Title == "" {
		t.Title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if t.Artist == "" {
		t.Artist = provider.UnknownArtist
	}
	if t.Album == "" {
		t.Album = provider.UnknownAlbum
	}
	t.HasEmbeddedLyrics = tagwriter.HasLyrics(path)
	t.Duration = probeDuration(ctx, path)
	t.HasLRC = lyricsfile.Exists(path)
	return t
}

// probeDuration returns the file duration in whole seconds, 0 when unknown.
var probeDuration = ffprobeDuration

func ffprobeDuration(ctx context.Context, path string) int {
	if _, err := exec.LookPath("ffprobe"); err != nil {
		return 0
	}
	cmd := exec.CommandContext(ctx, "ffprobe", "-v", "quiet", "-print_format", "json", "-show_format", path)
	out, err := cmd.Output()
	if err != nil {
		return 0
	}
	var result struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if json.Unmarshal(out, &result) != nil || result.Format.Duration == "" {
		return 0
	}
	secs, err := strconv.ParseFloat(result.Format.Duration, 64)
	if err != nil || secs < 0 {
		return 0
	}
	return int(secs)
}
