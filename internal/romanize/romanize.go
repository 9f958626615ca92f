// Package romanize transliterates Chinese, Japanese and Korean text in
// lyrics into Latin script.
package romanize

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/gosimple/unidecode"
)

type Script int

const (
	Chinese Script = iota
	Japanese
	Korean
)

func (s Script) String() string {
	switch s {
	case Chinese:
		return "chinese"
	case Japanese:
		return "japanese"
	case Korean:
		return "korean"
	default:
		return "unknown"
	}
}

var scriptRuns = map[Script]*regexp.Regexp{
	Chinese:  regexp.MustCompile(`[\x{4e00}-\x{9fff}]+`),
	Japanese: regexp.MustCompile(`[\x{3040}-\x{309f}\x{30a0}-\x{30ff}]+`),
	Korean:   regexp.MustCompile(`[\x{ac00}-\x{d7af}]+`),
}

// Contains reports whether text has at least one character of script s.
func Contains(text string, s Script) bool {
	re, ok := scriptRuns[s]
	return ok && re.MatchString(text)
}

// Detect returns the scripts enabled in opts that occur in text.
func Detect(text string, opts Options) []Script {
	var found []Script
	for _, s := range opts.enabled() {
		if Contains(text, s) {
			found = append(found, s)
		}
	}
	return found
}

type Mode string

const (
	ModeReplace   Mode = "replace"
	ModeMultiline Mode = "multiline"
)

func ParseMode(s string) (Mode, bool) {
	switch Mode(s) {
	case ModeReplace, ModeMultiline:
		return Mode(s), true
	}
	return ModeReplace, false
}

// Options selects the scripts to convert and how converted lines are laid out.
type Options struct {
	Chinese  bool
	Japanese bool
	Korean   bool
	Mode     Mode
}

func (o Options) enabled() []Script {
	var out []Script
	if o.Chinese {
		out = append(out, Chinese)
	}
	if o.Japanese {
		out = append(out, Japanese)
	}
	if o.Korean {
		out = append(out, Korean)
	}
	return out
}

// Transliterator converts one run of a single script to Latin text.
type Transliterator func(run string) string

func unidecodeRun(run string) string {
	return strings.Join(strings.Fields(unidecode.Unidecode(run)), " ")
}

type Romanizer struct {
	translit Transliterator
	logger   *slog.Logger
}

// New returns a Romanizer backed by unidecode tables.
func New(logger *slog.Logger) *Romanizer {
	return NewWith(unidecodeRun, logger)
}

// NewWith returns a Romanizer using t for every script.
func NewWith(t Transliterator, logger *slog.Logger) *Romanizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Romanizer{translit: t, logger: logger.With(slog.String("component", "romanize"))}
}

// Text replaces every run of an enabled script in text with its romanization.
func (r *Romanizer) Text(text string, opts Options) string {
	out := text
	for _, s := range Detect(out, opts) {
		out = scriptRuns[s].ReplaceAllStringFunc(out, func(run string) string {
			if roman := r.translit(run); roman != "" {
				return roman
			}
			return run
		})
	}
	return out
}

var timingPrefix = regexp.MustCompile(`^(\[[\d:.]+\])`)

const instrumentalMarker = " 🎶🎶🎶"

// Lyrics romanizes LRC or plain lyrics line by line, keeping timing tags.
// Lines holding only a timing tag are filled with a music marker.
func (r *Romanizer) Lyrics(lyrics string, opts Options) string {
	mode, ok := ParseMode(string(opts.Mode))
	if !ok {
		r.logger.Warn("invalid romanization mode, using replace", slog.String("mode", string(opts.Mode)))
	}

	lines := strings.Split(lyrics, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		prefix := timingPrefix.FindString(line)
		text := line[len(prefix):]

		if strings.TrimSpace(text) == "" {
			if prefix != "" {
				out = append(out, prefix+instrumentalMarker)
			} else {
				out = append(out, line)
			}
			continue
		}

		roman := r.Text(text, opts)
		switch mode {
		case ModeMultiline:
			out = append(out, line)
			if roman != text {
				out = append(out, prefix+roman)
			}
		default:
			if roman != text {
				out = append(out, prefix+roman)
			} else {
				out = append(out, line)
			}
		}
	}
	return strings.Join(out, "\n")
}
