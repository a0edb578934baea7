// Package i18n renders the user facing texts from per-language YAML
// catalogs embedded in the binary.
package i18n

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"text/template"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yaml
var localesFS embed.FS

// Message keys.
const (
	UsageTitle             = "usage_title"
	Usage                  = "usage"
	PlaceholderTitle       = "placeholder_title"
	PlaceholderDescription = "placeholder_description"
	Placeholder            = "placeholder"
	ShowButton             = "show_button"
	SecretSent             = "secret_sent"
	NotForYou              = "not_for_you"
	NotFound               = "not_found"
	OpenDM                 = "open_dm"
	Failure                = "failure"
	SecretMessage          = "secret_message"
	ObserverCopy           = "observer_copy"
)

// Params are the values a template may reference.
type Params struct {
	Bot    string
	Target string
	Sender string
	Time   string
	Secret string
}

type catalogFile struct {
	Lang     string            `yaml:"lang"`
	Messages map[string]string `yaml:"messages"`
}

// Catalog holds one Bundle per supported language.
type Catalog struct {
	tags     []language.Tag // default language first
	bundles  []*Bundle
	matcher  language.Matcher
	fallback *Bundle
}

// Bundle is the template set of a single language.
type Bundle struct {
	Tag      language.Tag
	tmpl     *template.Template
	fallback *Bundle
}

// Load builds the catalog from the embedded locales. defaultLang selects the
// bundle used for unknown language codes and for keys a bundle lacks.
func Load(defaultLang string) (*Catalog, error) {
	return LoadFS(localesFS, "locales", defaultLang)
}

func LoadFS(fsys fs.FS, dir, defaultLang string) (*Catalog, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("reading locales: %w", err)
	}

	def, err := language.Parse(defaultLang)
	if err != nil {
		return nil, fmt.Errorf("parsing default language %q: %w", defaultLang, err)
	}

	c := &Catalog{}
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != ".yaml" {
			continue
		}
		b, err := loadBundle(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		if b.Tag == def {
			c.fallback = b
		}
		c.tags = append(c.tags, b.Tag)
		c.bundles = append(c.bundles, b)
	}

	if c.fallback == nil {
		return nil, fmt.Errorf("no catalog for default language %q", defaultLang)
	}

	// The matcher falls back to its first tag, so put the default there.
	for i, b := range c.bundles {
		if b == c.fallback {
			c.tags[0], c.tags[i] = c.tags[i], c.tags[0]
			c.bundles[0], c.bundles[i] = c.bundles[i], c.bundles[0]
			break
		}
	}
	for _, b := range c.bundles[1:] {
		b.fallback = c.fallback
	}
	c.matcher = language.NewMatcher(c.tags)

	return c, nil
}

func loadBundle(fsys fs.FS, name string) (*Bundle, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}

	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", name, err)
	}

	tag, err := language.Parse(f.Lang)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid lang %q: %w", name, f.Lang, err)
	}

	tmpl := template.New(f.Lang).Option("missingkey=error")
	for key, text := range f.Messages {
		if _, err := tmpl.New(key).Parse(text); err != nil {
			return nil, fmt.Errorf("%s: parsing %q: %w", name, key, err)
		}
	}

	return &Bundle{Tag: tag, tmpl: tmpl}, nil
}

// For returns the bundle best matching a platform language code such as
// "en", "hi" or "en-GB". Empty or unknown codes get the default bundle.
func (c *Catalog) For(code string) *Bundle {
	if code == "" {
		return c.fallback
	}
	tag, err := language.Parse(code)
	if err != nil {
		return c.fallback
	}
	_, idx, conf := c.matcher.Match(tag)
	if conf == language.No {
		return c.fallback
	}
	return c.bundles[idx]
}

// Default returns the bundle of the default language.
func (c *Catalog) Default() *Bundle {
	return c.fallback
}

// Text renders key with p. A key missing from this bundle is rendered from
// the default bundle; a key missing everywhere renders as the key itself.
func (b *Bundle) Text(key string, p Params) string {
	t := b.tmpl.Lookup(key)
	if t == nil {
		if b.fallback != nil {
			return b.fallback.Text(key, p)
		}
		return key
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, p); err != nil {
		return key
	}
	return buf.String()
}
