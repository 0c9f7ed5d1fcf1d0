package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"path"

	"gopkg.in/yaml.v3"
)

//go:embed locales
var LocalesFS embed.FS

// DefaultLocale is used when a configured locale has no file.
const DefaultLocale = "en"

// Translator holds the bot texts of one locale. Missing keys fall back to
// the default locale, then to the key itself.
type Translator struct {
	translations map[string]string
	fallback     *Translator
}

// NewTranslator loads locales/<langCode>.yaml from fsys.
func NewTranslator(fsys fs.FS, langCode string) (*Translator, error) {
	data, err := fs.ReadFile(fsys, path.Join("locales", langCode+".yaml"))
	if err != nil {
		return nil, fmt.Errorf("failed to read translation file for %q: %w", langCode, err)
	}
	t, err := newTranslatorFromBytes(data)
	if err != nil {
		return nil, err
	}
	if langCode != DefaultLocale {
		if def, err := NewTranslator(fsys, DefaultLocale); err == nil {
			t.fallback = def
		}
	}
	return t, nil
}

func newTranslatorFromBytes(data []byte) (*Translator, error) {
	var translations map[string]string
	if err := yaml.Unmarshal(data, &translations); err != nil {
		return nil, fmt.Errorf("failed to parse translation file: %w", err)
	}
	return &Translator{translations: translations}, nil
}

// Load returns the embedded translator for langCode, or the default locale
// when langCode is empty.
func Load(langCode string) (*Translator, error) {
	if langCode == "" {
		langCode = DefaultLocale
	}
	return NewTranslator(LocalesFS, langCode)
}

// MustDefault returns the embedded default locale; it panics only if the
// binary was built without it.
func MustDefault() *Translator {
	t, err := Load(DefaultLocale)
	if err != nil {
		panic(err)
	}
	return t
}

// T (Translate) formats the text for key with args.
func (t *Translator) T(key string, args ...interface{}) string {
	format, ok := t.translations[key]
	if !ok {
		if t.fallback != nil {
			return t.fallback.T(key, args...)
		}
		return key
	}
	if len(args) > 0 {
		return fmt.Sprintf(format, args...)
	}
	return format
}
