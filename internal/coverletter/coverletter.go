// Package coverletter renders cover letters from named templates with
// [placeholder] substitution.
package coverletter

import (
	"sort"
	"strings"
)

// Generator holds the built-in templates plus any custom ones.
type Generator struct {
	templates map[string]string
}

// New returns a Generator. Custom templates override built-ins with the
// same key; empty bodies are ignored.
func New(custom map[string]string) *Generator {
	t := make(map[string]string, len(builtin)+len(custom))
	for k, v := range builtin {
		t[k] = v
	}
	for k, v := range custom {
		if strings.TrimSpace(v) != "" {
			t[k] = v
		}
	}
	return &Generator{templates: t}
}

// Has reports whether key names a known template.
func (g *Generator) Has(key string) bool {
	_, ok := g.templates[key]
	return ok
}

// Keys lists the known template keys, sorted.
func (g *Generator) Keys() []string {
	keys := make([]string, 0, len(g.templates))
	for k := range g.templates {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Generate renders the template named key, replacing every [name] with
// subs[name]. Unknown keys fall back to the full-stack template.
// Placeholders without a substitution are left as they are.
func (g *Generator) Generate(key string, subs map[string]string) string {
	body, ok := g.templates[key]
	if !ok {
		body = g.templates[FullStack]
	}
	if len(subs) == 0 {
		return body
	}

	names := make([]string, 0, len(subs))
	for name := range subs {
		names = append(names, name)
	}
	sort.Strings(names)

	pairs := make([]string, 0, 2*len(names))
	for _, name := range names {
		pairs = append(pairs, "["+name+"]", subs[name])
	}
	return strings.NewReplacer(pairs...).Replace(body)
}
