// Package catalog lists the source languages runsheet accepts and the kind
// of engine that runs each one.
package catalog

import (
	"path/filepath"
	"strings"
)

// ID identifies a source language.
type ID string

const (
	Python     ID = "python"
	Java       ID = "java"
	Cpp        ID = "cpp"
	C          ID = "c"
	JavaScript ID = "javascript"
)

// Kind names one of the four execution strategies.
type Kind int

const (
	KindUnknown Kind = iota
	// KindDirect evaluates source in-process with an injected console.
	KindDirect
	// KindNative hands source to a bundled interpreter with its own stdio.
	KindNative
	// KindVM runs source through a script interpreter hosted on a separately booted VM.
	KindVM
	// KindEmbedded runs source on a long-lived interpreter handle owned by the caller.
	KindEmbedded
)

func (k Kind) String() string {
	switch k {
	case KindDirect:
		return "direct"
	case KindNative:
		return "native"
	case KindVM:
		return "vm"
	case KindEmbedded:
		return "embedded"
	}
	return "unknown"
}

// Language describes one entry in the catalog.
type Language struct {
	ID          ID       `json:"id"`
	Name        string   `json:"name"`
	Extensions  []string `json:"extensions"`
	MIME        string   `json:"mime"`
	Executable  bool     `json:"executable"`
	Description string   `json:"description"`
	Kind        Kind     `json:"-"`
	Engine      string   `json:"engine"`
}

// Catalog is an ordered, read-only set of languages.
type Catalog struct {
	langs []Language
	byID  map[ID]int
}

// New builds a catalog. The first language is the fallback for Get.
func New(langs ...Language) *Catalog {
	c := &Catalog{byID: make(map[ID]int, len(langs))}
	for _, l := range langs {
		if _, dup := c.byID[l.ID]; dup {
			continue
		}
		l.Engine = l.Kind.String()
		c.byID[l.ID] = len(c.langs)
		c.langs = append(c.langs, l)
	}
	return c
}

var builtin = New(
	Language{
		ID:          Python,
		Name:        "Python",
		Extensions:  []string{".py"},
		MIME:        "text/x-python",
		Executable:  true,
		Description: "Execution supported.",
		Kind:        KindEmbedded,
	},
	Language{
		ID:          Java,
		Name:        "Java",
		Extensions:  []string{".java"},
		MIME:        "text/x-java-source",
		Executable:  true,
		Description: "Execution via BeanShell on a JVM.",
		Kind:        KindVM,
	},
	Language{
		ID:          Cpp,
		Name:        "C++",
		Extensions:  []string{".cpp", ".h", ".hpp", ".c"},
		MIME:        "text/x-c",
		Executable:  true,
		Description: "Execution (Beta).",
		Kind:        KindNative,
	},
	Language{
		ID:          C,
		Name:        "C",
		Extensions:  []string{".c", ".h"},
		MIME:        "text/x-c",
		Executable:  true,
		Description: "Execution (Beta).",
		Kind:        KindNative,
	},
	Language{
		ID:          JavaScript,
		Name:        "JavaScript",
		Extensions:  []string{".js", ".jsx", ".ts", ".tsx", ".mjs"},
		MIME:        "text/javascript",
		Executable:  true,
		Description: "Execution supported.",
		Kind:        KindDirect,
	},
)

// Default returns the built-in catalog.
func Default() *Catalog {
	return builtin
}

// Lookup returns the language with the given id.
func (c *Catalog) Lookup(id ID) (Language, bool) {
	i, ok := c.byID[ID(strings.ToLower(string(id)))]
	if !ok {
		return Language{}, false
	}
	return c.langs[i], true
}

// Get returns the language with the given id, falling back to the first
// catalog entry for unknown ids.
func (c *Catalog) Get(id ID) Language {
	if l, ok := c.Lookup(id); ok {
		return l
	}
	if len(c.langs) == 0 {
		return Language{}
	}
	return c.langs[0]
}

// ByExtension returns the first language that claims the file's extension.
func (c *Catalog) ByExtension(path string) (Language, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return Language{}, false
	}
	for _, l := range c.langs {
		for _, e := range l.Extensions {
			if e == ext {
				return l, true
			}
		}
	}
	return Language{}, false
}

// All returns the languages in catalog order.
func (c *Catalog) All() []Language {
	out := make([]Language, len(c.langs))
	copy(out, c.langs)
	return out
}

// Resolve maps common aliases ("py", "js", "c++") onto catalog ids.
func Resolve(name string) ID {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "py", "python3":
		return Python
	case "js", "node", "mjs":
		return JavaScript
	case "c++", "cc", "cxx":
		return Cpp
	}
	return ID(strings.ToLower(strings.TrimSpace(name)))
}
