// Package catalog implements the translation catalog: the union of every
// per-language JSON file in a translations directory, presented as a dense
// key × language table.
//
// The catalog is rebuilt from disk on every Load; nothing is cached between
// reads. All writes go through WriteCell, which rewrites one language file.
package catalog

import (
	"github.com/minios-linux/lokat/langmeta"
)

// StatusCode classifies the outcome of a Load.
type StatusCode string

const (
	// StatusOK: at least one language file was loaded.
	StatusOK StatusCode = "ok"
	// StatusNoProjectRoot: no project root is configured.
	StatusNoProjectRoot StatusCode = "no-project-root"
	// StatusDirectoryMissing: the translations directory could not be found.
	StatusDirectoryMissing StatusCode = "directory-missing"
	// StatusNoLanguageFiles: the directory exists but holds no *.json file.
	StatusNoLanguageFiles StatusCode = "no-language-files"
)

// Status is the outcome of a Load, with a message suitable for display.
type Status struct {
	Code    StatusCode
	Message string
}

// OK reports whether the catalog was loaded from at least one file.
func (s Status) OK() bool {
	return s.Code == StatusOK
}

// TagUntranslated marks keys that are blank in at least one language.
const TagUntranslated = "untranslated"

// Key is a translation key. ID is the dot path into the JSON documents.
type Key struct {
	ID         string
	DisplayKey string
	Tags       map[string]struct{}
}

// HasTag reports whether the key carries tag.
func (k Key) HasTag(tag string) bool {
	_, ok := k.Tags[tag]
	return ok
}

// Values maps key ID -> language code -> value.
type Values map[string]map[string]string

// Catalog is the in-memory view of all language files.
type Catalog struct {
	// Dir is the resolved translations directory ("" when not found).
	Dir string
	// Languages in registry order.
	Languages []langmeta.Language
	// Keys sorted lexicographically by ID.
	Keys []Key
	// Values is dense: every key has an entry for every language.
	Values Values
	// SourceLanguage is always one of Languages (or "" if there are none).
	SourceLanguage string
	// Status describes how the load went.
	Status Status
}

// emptyCatalog returns a valid catalog shape with no content.
func emptyCatalog(dir string, status Status) *Catalog {
	return &Catalog{
		Dir:       dir,
		Languages: []langmeta.Language{},
		Keys:      []Key{},
		Values:    make(Values),
		Status:    status,
	}
}

// Value returns the value for key in lang ("" when absent).
func (c *Catalog) Value(key, lang string) string {
	return c.Values[key][lang]
}

// LanguageCodes returns the language codes in registry order.
func (c *Catalog) LanguageCodes() []string {
	codes := make([]string, len(c.Languages))
	for i, l := range c.Languages {
		codes[i] = l.Code
	}
	return codes
}

// HasLanguage reports whether code is a known language.
func (c *Catalog) HasLanguage(code string) bool {
	for _, l := range c.Languages {
		if l.Code == code {
			return true
		}
	}
	return false
}

// Language returns the language with the given code.
func (c *Catalog) Language(code string) (langmeta.Language, bool) {
	for _, l := range c.Languages {
		if l.Code == code {
			return l, true
		}
	}
	return langmeta.Language{}, false
}

// HasKey reports whether id is a known key.
func (c *Catalog) HasKey(id string) bool {
	_, ok := c.Values[id]
	return ok
}

// Stats returns (total, translated, untranslated) counts for a language.
func (c *Catalog) Stats(lang string) (total, translated, untranslated int) {
	total = len(c.Keys)
	for _, k := range c.Keys {
		if isBlank(c.Values[k.ID][lang]) {
			untranslated++
		} else {
			translated++
		}
	}
	return
}

// SetSourceLanguage selects the source language, falling back to the first
// language when preferred is not known.
func (c *Catalog) SetSourceLanguage(preferred string) {
	c.SourceLanguage = pickSource(c.Languages, preferred)
}

func pickSource(langs []langmeta.Language, preferred string) string {
	for _, l := range langs {
		if l.Code == preferred {
			return preferred
		}
	}
	if len(langs) > 0 {
		return langs[0].Code
	}
	return ""
}

// WithValue returns a copy of c with one cell changed. c is not modified;
// rows other than key's are shared with c.
func (c *Catalog) WithValue(key, lang, value string) *Catalog {
	next := *c
	next.Values = make(Values, len(c.Values))
	for id, row := range c.Values {
		next.Values[id] = row
	}
	row := make(map[string]string, len(c.Languages))
	for code, v := range c.Values[key] {
		row[code] = v
	}
	row[lang] = value
	next.Values[key] = row

	next.Keys = make([]Key, len(c.Keys))
	copy(next.Keys, c.Keys)
	for i, k := range next.Keys {
		if k.ID != key {
			continue
		}
		tags := make(map[string]struct{}, len(k.Tags))
		for t := range k.Tags {
			tags[t] = struct{}{}
		}
		delete(tags, TagUntranslated)
		for _, l := range c.Languages {
			if isBlank(row[l.Code]) {
				tags[TagUntranslated] = struct{}{}
				break
			}
		}
		next.Keys[i].Tags = tags
	}
	return &next
}
