// Package catalog exposes the static business-template catalog used to
// pre-fill a business profile from a category key.
package catalog

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wolfman30/funcionariopro/internal/profile"
)

//go:embed templates.yaml
var templatesYAML []byte

// Defaults holds the default configuration a template applies to a new profile.
type Defaults struct {
	Hours      string `yaml:"hours" json:"hours"`
	Services   string `yaml:"services" json:"services"`
	Payments   string `yaml:"payments" json:"payments"`
	Scheduling bool   `yaml:"scheduling" json:"scheduling"`
	Delivery   bool   `yaml:"delivery" json:"delivery"`
}

// Template describes one business category.
type Template struct {
	Key         string   `yaml:"-" json:"key"`
	Title       string   `yaml:"title" json:"title"`
	Icon        string   `yaml:"icon" json:"icon"`
	Subtitle    string   `yaml:"subtitle" json:"subtitle"`
	Professions []string `yaml:"professions" json:"professions"`
	Defaults    Defaults `yaml:"defaults" json:"defaults"`
	Phrases     []string `yaml:"phrases" json:"phrases"`
}

// InfoSummary renders the defaults block shown next to a template.
func (t Template) InfoSummary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Horários: %s\n", t.Defaults.Hours)
	fmt.Fprintf(&b, "Serviços: %s\n", t.Defaults.Services)
	fmt.Fprintf(&b, "Pagamentos: %s\n", t.Defaults.Payments)
	fmt.Fprintf(&b, "%s Aceita Agendamentos\n", checkmark(t.Defaults.Scheduling))
	fmt.Fprintf(&b, "%s Faz Delivery", checkmark(t.Defaults.Delivery))
	return b.String()
}

func checkmark(v bool) string {
	if v {
		return "✓"
	}
	return "✗"
}

// Catalog is a read-only set of templates keyed by category.
type Catalog struct {
	templates map[string]Template
	keys      []string
}

// Parse builds a catalog from YAML keyed by category.
func Parse(data []byte) (*Catalog, error) {
	raw := make(map[string]Template)
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("catalog: parse templates: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("catalog: no templates defined")
	}
	c := &Catalog{templates: make(map[string]Template, len(raw))}
	for key, tmpl := range raw {
		key = strings.ToLower(strings.TrimSpace(key))
		tmpl.Key = key
		c.templates[key] = tmpl
		c.keys = append(c.keys, key)
	}
	sort.Strings(c.keys)
	return c, nil
}

var defaultCatalog = mustParse(templatesYAML)

func mustParse(data []byte) *Catalog {
	c, err := Parse(data)
	if err != nil {
		panic(err)
	}
	return c
}

// Default returns the embedded catalog.
func Default() *Catalog {
	return defaultCatalog
}

// Keys returns the category keys in sorted order.
func (c *Catalog) Keys() []string {
	out := make([]string, len(c.keys))
	copy(out, c.keys)
	return out
}

// List returns every template in key order.
func (c *Catalog) List() []Template {
	out := make([]Template, 0, len(c.keys))
	for _, k := range c.keys {
		out = append(out, c.templates[k])
	}
	return out
}

// Lookup returns the template for key.
func (c *Catalog) Lookup(key string) (Template, bool) {
	tmpl, ok := c.templates[strings.ToLower(strings.TrimSpace(key))]
	return tmpl, ok
}

// Has reports whether key names a known category.
func (c *Catalog) Has(key string) bool {
	_, ok := c.Lookup(key)
	return ok
}

// Prefill returns a profile populated with the template defaults. Unknown
// keys yield an empty profile carrying only the category.
func (c *Catalog) Prefill(key string) profile.BusinessProfile {
	tmpl, ok := c.Lookup(key)
	if !ok {
		return profile.BusinessProfile{Category: key}
	}
	scheduling := tmpl.Defaults.Scheduling
	delivery := tmpl.Defaults.Delivery
	return profile.BusinessProfile{
		Category:            tmpl.Key,
		Hours:               tmpl.Defaults.Hours,
		Services:            tmpl.Defaults.Services,
		PaymentMethods:      tmpl.Defaults.Payments,
		HasDelivery:         &delivery,
		AcceptsReservations: &scheduling,
	}
}
