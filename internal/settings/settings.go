// Package settings holds the user preferences that drive searching and
// downloading. Values live in a Backend; every read falls back to the
// built-in default when the backend is absent, closed, or holds garbage.
package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/Gasiyu/Composer/internal/provider"
	"github.com/Gasiyu/Composer/internal/romanize"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	KeyAutoDownload     = "auto-download-lyrics"
	KeyOverwrite        = "overwrite-existing-lyrics"
	KeyLanguage         = "lyrics-language"
	KeyStorageMethod    = "lyrics-storage-method"
	KeyRomanization     = "enable-romanization"
	KeyRomanizeChinese  = "romanize-chinese"
	KeyRomanizeJapanese = "romanize-japanese"
	KeyRomanizeKorean   = "romanize-korean"
	KeyRomanizationMode = "romanization-mode"
	KeySourcesPriority  = "lyrics-sources-priority"
)

// StorageMethod selects where downloaded lyrics are saved.
type StorageMethod string

const (
	StorageLRC      StorageMethod = "lrc"
	StorageMetadata StorageMethod = "metadata"
	StorageBoth     StorageMethod = "both"
)

func ParseStorageMethod(s string) (StorageMethod, bool) {
	switch m := StorageMethod(strings.ToLower(strings.TrimSpace(s))); m {
	case StorageLRC, StorageMetadata, StorageBoth:
		return m, true
	}
	return StorageLRC, false
}

func (m StorageMethod) WritesLRC() bool      { return m == StorageLRC || m == StorageBoth }
func (m StorageMethod) WritesMetadata() bool { return m == StorageMetadata || m == StorageBoth }

// ErrUnknownKey is returned by SetString for keys outside the schema.
var ErrUnknownKey = errors.New("unknown setting")

// ErrInvalidValue is returned by SetString when a value does not parse.
var ErrInvalidValue = errors.New("invalid setting value")

// Definition describes one setting for listings.
type Definition struct {
	Key         string
	Default     string
	Description string
}

var definitions = []Definition{
	{KeyAutoDownload, "false", "Automatically download lyrics for tracks without any"},
	{KeyOverwrite, "false", "Include tracks that already have lyrics in auto-download"},
	{KeyLanguage, "en", "Preferred lyrics language (ISO 639-1)"},
	{KeyStorageMethod, string(StorageLRC), "Where to save lyrics: lrc, metadata or both"},
	{KeyRomanization, "false", "Romanize CJK lyrics before saving"},
	{KeyRomanizeChinese, "true", "Romanize Chinese text"},
	{KeyRomanizeJapanese, "true", "Romanize Japanese text"},
	{KeyRomanizeKorean, "true", "Romanize Korean text"},
	{KeyRomanizationMode, string(romanize.ModeReplace), "replace or multiline"},
	{KeySourcesPriority, `["lrclib"]`, "Ordered list of lyrics sources"},
}

// Definitions returns the schema in display order.
func Definitions() []Definition {
	out := make([]Definition, len(definitions))
	copy(out, definitions)
	return out
}

func definition(key string) (Definition, bool) {
	for _, d := range definitions {
		if d.Key == key {
			return d, true
		}
	}
	return Definition{}, false
}

const opTimeout = 2 * time.Second

// Settings is safe to use with a nil backend: getters return defaults and
// setters do nothing.
type Settings struct {
	backend Backend
	logger  *slog.Logger
}

func New(backend Backend, logger *slog.Logger) *Settings {
	if logger == nil {
		logger = slog.Default()
	}
	return &Settings{backend: backend, logger: logger.With(slog.String("component", "settings"))}
}

func (s *Settings) HasBackend() bool { return s != nil && s.backend != nil }

func (s *Settings) raw(key string) (string, bool) {
	if !s.HasBackend() {
		return "", false
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	v, ok, err := s.backend.Get(ctx, key)
	if err != nil {
		s.logger.Warn("read setting failed", slog.String("key", key), slog.Any("err", err))
		return "", false
	}
	return v, ok
}

func (s *Settings) put(key, value string) error {
	if !s.HasBackend() {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := s.backend.Set(ctx, key, value); err != nil {
		s.logger.Warn("write setting failed", slog.String("key", key), slog.Any("err", err))
		return err
	}
	return nil
}

func (s *Settings) boolValue(key string) bool {
	def, _ := definition(key)
	fallback, _ := strconv.ParseBool(def.Default)
	v, ok := s.raw(key)
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func (s *Settings) AutoDownload() bool        { return s.boolValue(KeyAutoDownload) }
func (s *Settings) OverwriteExisting() bool   { return s.boolValue(KeyOverwrite) }
func (s *Settings) RomanizationEnabled() bool { return s.boolValue(KeyRomanization) }
func (s *Settings) RomanizeChinese() bool     { return s.boolValue(KeyRomanizeChinese) }
func (s *Settings) RomanizeJapanese() bool    { return s.boolValue(KeyRomanizeJapanese) }
func (s *Settings) RomanizeKorean() bool      { return s.boolValue(KeyRomanizeKorean) }

func (s *Settings) SetAutoDownload(v bool) error {
	return s.put(KeyAutoDownload, strconv.FormatBool(v))
}
func (s *Settings) SetOverwriteExisting(v bool) error {
	return s.put(KeyOverwrite, strconv.FormatBool(v))
}
func (s *Settings) SetRomanizationEnabled(v bool) error {
	return s.put(KeyRomanization, strconv.FormatBool(v))
}
func (s *Settings) SetRomanizeChinese(v bool) error {
	return s.put(KeyRomanizeChinese, strconv.FormatBool(v))
}
func (s *Settings) SetRomanizeJapanese(v bool) error {
	return s.put(KeyRomanizeJapanese, strconv.FormatBool(v))
}
func (s *Settings) SetRomanizeKorean(v bool) error {
	return s.put(KeyRomanizeKorean, strconv.FormatBool(v))
}

// Language returns the preferred lyrics language, lowercased.
func (s *Settings) Language() string {
	v, ok := s.raw(KeyLanguage)
	v = strings.ToLower(strings.TrimSpace(v))
	if !ok || v == "" {
		return "en"
	}
	return v
}

func (s *Settings) SetLanguage(lang string) error {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if lang == "" {
		return fmt.Errorf("%w: empty language", ErrInvalidValue)
	}
	return s.put(KeyLanguage, lang)
}

func (s *Settings) StorageMethod() StorageMethod {
	v, _ := s.raw(KeyStorageMethod)
	m, _ := ParseStorageMethod(v)
	return m
}

func (s *Settings) SetStorageMethod(m StorageMethod) error {
	if _, ok := ParseStorageMethod(string(m)); !ok {
		return fmt.Errorf("%w: storage method %q", ErrInvalidValue, m)
	}
	return s.put(KeyStorageMethod, string(m))
}

func (s *Settings) RomanizationMode() romanize.Mode {
	v, _ := s.raw(KeyRomanizationMode)
	m, _ := romanize.ParseMode(v)
	return m
}

func (s *Settings) SetRomanizationMode(m romanize.Mode) error {
	if _, ok := romanize.ParseMode(string(m)); !ok {
		return fmt.Errorf("%w: romanization mode %q", ErrInvalidValue, m)
	}
	return s.put(KeyRomanizationMode, string(m))
}

// RomanizeOptions returns the romanizer options in effect, and false when
// romanization is switched off.
func (s *Settings) RomanizeOptions() (romanize.Options, bool) {
	if !s.RomanizationEnabled() {
		return romanize.Options{}, false
	}
	return romanize.Options{
		Chinese:  s.RomanizeChinese(),
		Japanese: s.RomanizeJapanese(),
		Korean:   s.RomanizeKorean(),
		Mode:     s.RomanizationMode(),
	}, true
}

// SourcePriority returns the configured source order. Unknown names are
// skipped and an empty result falls back to LRCLib alone.
func (s *Settings) SourcePriority() []provider.Source {
	v, _ := s.raw(KeySourcesPriority)
	return parseSources(v)
}

func parseSources(v string) []provider.Source {
	var names []string
	v = strings.TrimSpace(v)
	if strings.HasPrefix(v, "[") {
		if err := json.Unmarshal([]byte(v), &names); err != nil {
			names = nil
		}
	} else if v != "" {
		names = strings.Split(v, ",")
	}
	seen := make(map[provider.Source]bool)
	var out []provider.Source
	for _, n := range names {
		src, ok := provider.ParseSource(n)
		if !ok || seen[src] {
			continue
		}
		seen[src] = true
		out = append(out, src)
	}
	if len(out) == 0 {
		return []provider.Source{provider.SourceLRCLib}
	}
	return out
}

func (s *Settings) SetSourcePriority(sources []provider.Source) error {
	names := make([]string, 0, len(sources))
	for _, src := range sources {
		names = append(names, string(src))
	}
	b, err := json.Marshal(names)
	if err != nil {
		return err
	}
	return s.put(KeySourcesPriority, string(b))
}

// Get returns the effective value of key in its stored string form.
func (s *Settings) Get(key string) (string, error) {
	switch key {
	case KeyAutoDownload, KeyOverwrite, KeyRomanization,
		KeyRomanizeChinese, KeyRomanizeJapanese, KeyRomanizeKorean:
		return strconv.FormatBool(s.boolValue(key)), nil
	case KeyLanguage:
		return s.Language(), nil
	case KeyStorageMethod:
		return string(s.StorageMethod()), nil
	case KeyRomanizationMode:
		return string(s.RomanizationMode()), nil
	case KeySourcesPriority:
		srcs := s.SourcePriority()
		names := make([]string, len(srcs))
		for i, src := range srcs {
			names[i] = string(src)
		}
		b, _ := json.Marshal(names)
		return string(b), nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownKey, key)
}

// SetString parses value for key and stores it.
func (s *Settings) SetString(key, value string) error {
	switch key {
	case KeyAutoDownload, KeyOverwrite, KeyRomanization,
		KeyRomanizeChinese, KeyRomanizeJapanese, KeyRomanizeKorean:
		b, err := strconv.ParseBool(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("%w: %s expects true or false", ErrInvalidValue, key)
		}
		return s.put(key, strconv.FormatBool(b))
	case KeyLanguage:
		return s.SetLanguage(value)
	case KeyStorageMethod:
		m, ok := ParseStorageMethod(value)
		if !ok {
			return fmt.Errorf("%w: storage method %q", ErrInvalidValue, value)
		}
		return s.SetStorageMethod(m)
	case KeyRomanizationMode:
		return s.SetRomanizationMode(romanize.Mode(strings.ToLower(strings.TrimSpace(value))))
	case KeySourcesPriority:
		return s.SetSourcePriority(parseSources(value))
	}
	return fmt.Errorf("%w: %s", ErrUnknownKey, key)
}

// All returns every key with its effective value, sorted by key.
func (s *Settings) All() map[string]string {
	out := make(map[string]string, len(definitions))
	for _, d := range definitions {
		v, _ := s.Get(d.Key)
		out[d.Key] = v
	}
	return out
}

// Keys returns the schema keys sorted alphabetically.
func Keys() []string {
	keys := make([]string, 0, len(definitions))
	for _, d := range definitions {
		keys = append(keys, d.Key)
	}
	sort.Strings(keys)
	return keys
}

// ResetToDefaults restores every key to its default value.
func (s *Settings) ResetToDefaults() error {
	if !s.HasBackend() {
		return nil
	}
	var errs []error
	for _, d := range definitions {
		if err := s.put(d.Key, d.Default); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Reset removes the stored value for key so its default applies again.
func (s *Settings) Reset(key string) error {
	if _, ok := definition(key); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	if !s.HasBackend() {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	return s.backend.Delete(ctx, key)
}
