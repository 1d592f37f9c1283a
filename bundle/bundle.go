// Package bundle turns an export snapshot into go-i18n message files
// (active.<locale>.json or active.<locale>.toml) and loads them back into an
// i18n.Bundle.
package bundle

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"github.com/pelletier/go-toml/v2"
	"golang.org/x/text/language"

	"github.com/unkn0wn-root/transcache"
)

const (
	FormatJSON = "json"
	FormatTOML = "toml"
)

// FileName is the go-i18n file name for locale in format.
func FileName(locale, format string) string {
	return "active." + locale + "." + format
}

// Marshal encodes one locale's messages as a flat key → value document.
func Marshal(format string, msgs map[string]string) ([]byte, error) {
	switch format {
	case FormatJSON:
		b, err := json.MarshalIndent(msgs, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(b, '\n'), nil
	case FormatTOML:
		return toml.Marshal(msgs)
	default:
		return nil, fmt.Errorf("bundle: unknown format %q", format)
	}
}

// Write creates dir if needed and writes one message file per locale.
// Returns the written paths sorted by locale.
func Write(dir, format string, exp transcache.Export) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("bundle: %w", err)
	}
	locales := make([]string, 0, len(exp))
	for l := range exp {
		locales = append(locales, l)
	}
	sort.Strings(locales)

	paths := make([]string, 0, len(locales))
	for _, l := range locales {
		b, err := Marshal(format, exp[l])
		if err != nil {
			return paths, err
		}
		p := filepath.Join(dir, FileName(l, format))
		if err := os.WriteFile(p, b, 0o644); err != nil {
			return paths, fmt.Errorf("bundle: write %s: %w", p, err)
		}
		paths = append(paths, p)
	}
	return paths, nil
}

// NewBundle builds a bundle straight from an export. Locales that are not
// valid BCP 47 tags are skipped and reported in the returned error, the
// bundle is still usable.
func NewBundle(defaultLocale string, exp transcache.Export) (*i18n.Bundle, error) {
	def, err := language.Parse(defaultLocale)
	if err != nil {
		def = language.English
	}
	b := newBundle(def)

	var bad []string
	for locale, msgs := range exp {
		tag, err := language.Parse(locale)
		if err != nil {
			bad = append(bad, locale)
			continue
		}
		list := make([]*i18n.Message, 0, len(msgs))
		for k, v := range msgs {
			list = append(list, &i18n.Message{ID: k, Other: v})
		}
		if err := b.AddMessages(tag, list...); err != nil {
			return nil, fmt.Errorf("bundle: add %s: %w", locale, err)
		}
	}
	if len(bad) > 0 {
		sort.Strings(bad)
		return b, fmt.Errorf("bundle: invalid locales skipped: %s", strings.Join(bad, ", "))
	}
	return b, nil
}

// LoadDir parses every active.*.json and active.*.toml file in dir.
func LoadDir(defaultLocale, dir string) (*i18n.Bundle, error) {
	def, err := language.Parse(defaultLocale)
	if err != nil {
		def = language.English
	}
	b := newBundle(def)

	for _, pattern := range []string{"active.*.json", "active.*.toml"} {
		files, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			if _, err := b.LoadMessageFile(f); err != nil {
				return nil, fmt.Errorf("bundle: load %s: %w", f, err)
			}
		}
	}
	return b, nil
}

// CheckLocale reports whether s parses as a BCP 47 language tag.
func CheckLocale(s string) error {
	if _, err := language.Parse(s); err != nil {
		return fmt.Errorf("bundle: invalid locale %q: %w", s, err)
	}
	return nil
}

func newBundle(def language.Tag) *i18n.Bundle {
	b := i18n.NewBundle(def)
	b.RegisterUnmarshalFunc("toml", toml.Unmarshal)
	b.RegisterUnmarshalFunc("json", json.Unmarshal)
	return b
}

// Translator renders messages with fallback to the default locale and then
// to the message ID itself.
type Translator struct {
	bundle *i18n.Bundle
	def    language.Tag
}

func NewTranslator(b *i18n.Bundle, defaultLocale string) *Translator {
	tag, err := language.Parse(defaultLocale)
	if err != nil {
		tag = language.English
	}
	return &Translator{bundle: b, def: tag}
}

func (t *Translator) T(locale, key string) string {
	if key == "" {
		return ""
	}
	langs := []string{}
	if locale != "" {
		langs = append(langs, locale)
	}
	langs = append(langs, t.def.String())

	msg, err := i18n.NewLocalizer(t.bundle, langs...).Localize(&i18n.LocalizeConfig{MessageID: key})
	if err != nil {
		return key
	}
	return msg
}
