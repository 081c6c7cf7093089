package course

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Catalog maps course ids to display metadata. It is loaded once from a
// YAML file at startup.
type Catalog struct {
	Courses []Metadata `yaml:"courses"`
}

// LoadCatalog reads a course catalog from a YAML file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading course catalog: %w", err)
	}

	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("parsing course catalog: %w", err)
	}

	for _, m := range cat.Courses {
		if m.ID == "" {
			return nil, fmt.Errorf("course catalog entry without id")
		}
	}

	return &cat, nil
}

// Lookup returns the metadata for a course id. Unknown ids get a display
// name derived from the id so a missing catalog entry never blocks a load.
func (c *Catalog) Lookup(id string) Metadata {
	if c != nil {
		for _, m := range c.Courses {
			if m.ID == id {
				return m
			}
		}
	}
	return Metadata{ID: id, Name: displayName(id)}
}

func displayName(id string) string {
	words := strings.Split(id, "-")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
