// Package tagwriter embeds lyrics into audio file metadata.
package tagwriter

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bogem/id3v2/v2"
	"github.com/dhowden/tag"
	"github.com/go-flac/flacvorbis"
	"github.com/go-flac/go-flac"
	"go.senan.xyz/wrtag/tags"
)

var ErrUnsupportedFormat = errors.New("tagwriter: unsupported format")

// VorbisLyricsField is the comment name used for FLAC lyrics.
const VorbisLyricsField = "LYRICS"

// Writer stores lyrics in the container-specific lyrics field: an ID3v2
// USLT frame for MP3, a LYRICS vorbis comment for FLAC and the generic
// lyrics tag for everything else.
type Writer struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{logger: logger.With(slog.String("component", "tagwriter"))}
}

// WriteLyrics replaces any embedded lyrics in path with text. language is
// an ISO 639 code used where the container records one.
func (w *Writer) WriteLyrics(path, text, language string) error {
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		err = writeID3(path, text, id3Language(language))
	case ".flac":
		err = writeFLAC(path, text)
	default:
		err = writeGeneric(path, text)
	}
	if err != nil {
		w.logger.Error("write embedded lyrics", slog.String("path", path), slog.Any("err", err))
		return err
	}
	w.logger.Info("wrote embedded lyrics", slog.String("path", path))
	return nil
}

func writeID3(path, text, lang string) error {
	t, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return fmt.Errorf("open id3: %w", err)
	}
	defer t.Close()

	t.SetDefaultEncoding(id3v2.EncodingUTF8)
	t.DeleteFrames(t.CommonID("Unsynchronised lyrics/text transcription"))
	t.AddUnsynchronisedLyricsFrame(id3v2.UnsynchronisedLyricsFrame{
		Encoding:          id3v2.EncodingUTF8,
		Language:          lang,
		ContentDescriptor: "",
		Lyrics:            text,
	})
	if err := t.Save(); err != nil {
		return fmt.Errorf("save id3: %w", err)
	}
	return nil
}

func writeFLAC(path, text string) error {
	f, err := flac.ParseFile(path)
	if err != nil {
		return fmt.Errorf("parse flac: %w", err)
	}

	idx := -1
	var comment *flacvorbis.MetaDataBlockVorbisComment
	for i, block := range f.Meta {
		if block.Type != flac.VorbisComment {
			continue
		}
		comment, err = flacvorbis.ParseFromMetaDataBlock(*block)
		if err != nil {
			return fmt.Errorf("parse vorbis comment: %w", err)
		}
		idx = i
		break
	}
	if comment == nil {
		comment = flacvorbis.New()
	}

	kept := comment.Comments[:0]
	for _, c := range comment.Comments {
		key, _, _ := strings.Cut(c, "=")
		if strings.EqualFold(key, VorbisLyricsField) || strings.EqualFold(key, "UNSYNCEDLYRICS") {
			continue
		}
		kept = append(kept, c)
	}
	comment.Comments = kept
	if err := comment.Add(VorbisLyricsField, text); err != nil {
		return fmt.Errorf("add lyrics comment: %w", err)
	}

	block := comment.Marshal()
	if idx < 0 {
		f.Meta = append(f.Meta, &block)
	} else {
		f.Meta[idx] = &block
	}
	if err := f.Save(path); err != nil {
		return fmt.Errorf("save flac: %w", err)
	}
	return nil
}

func writeGeneric(path, text string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}
	err := tags.Write(path, func(f *tags.File) error {
		f.Write(tags.Lyrics, text)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnsupportedFormat, filepath.Ext(path), err)
	}
	return nil
}

// ReadLyrics returns the embedded lyrics of path, or "" when there are none.
func ReadLyrics(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	m, err := tag.ReadFrom(f)
	if err != nil {
		if errors.Is(err, tag.ErrNoTagsFound) {
			return "", nil
		}
		return "", fmt.Errorf("read tags: %w", err)
	}
	return m.Lyrics(), nil
}

// HasLyrics reports whether path carries non-blank embedded lyrics.
func HasLyrics(path string) bool {
	text, err := ReadLyrics(path)
	return err == nil && strings.TrimSpace(text) != ""
}

var iso639 = map[string]string{
	"en": "eng",
	"ja": "jpn",
	"zh": "zho",
	"ko": "kor",
	"es": "spa",
	"fr": "fra",
	"de": "deu",
	"it": "ita",
	"pt": "por",
	"ru": "rus",
	"id": "ind",
	"nl": "nld",
	"sv": "swe",
}

// id3Language maps a two-letter code to the three-letter form ID3 expects.
func id3Language(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if len(code) == 3 {
		return code
	}
	if long, ok := iso639[code]; ok {
		return long
	}
	return "XXX"
}
