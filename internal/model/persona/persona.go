package persona

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Persona captures a named assistant character. It is loaded once at start and never mutated.
type Persona struct {
	ID           string `json:"id" yaml:"id"`
	Name         string `json:"name" yaml:"name"`
	Role         string `json:"role" yaml:"role"`
	Icon         string `json:"icon" yaml:"icon"`
	Description  string `json:"description" yaml:"description"`
	Color        string `json:"color" yaml:"color"`
	Greeting     string `json:"greeting" yaml:"greeting"`
	SystemPrompt string `json:"-" yaml:"systemPrompt"`
}

// Summary is the public projection served to the front end.
type Summary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Role        string `json:"role"`
	Icon        string `json:"icon"`
	Description string `json:"description"`
	Color       string `json:"color"`
	Greeting    string `json:"greeting"`
}

// Public drops the system prompt.
func (p Persona) Public() Summary {
	return Summary{
		ID:          p.ID,
		Name:        p.Name,
		Role:        p.Role,
		Icon:        p.Icon,
		Description: p.Description,
		Color:       p.Color,
		Greeting:    p.Greeting,
	}
}

//go:embed personas.yaml
var seedCatalog []byte

type catalog struct {
	Personas []Persona `yaml:"personas"`
}

// Seed returns the built-in personas.
func Seed() []Persona {
	items, err := Parse(seedCatalog)
	if err != nil {
		panic(fmt.Sprintf("persona: embedded catalog is invalid: %v", err))
	}
	return items
}

// Parse decodes a YAML persona catalog and validates it.
func Parse(data []byte) ([]Persona, error) {
	var c catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode persona catalog: %w", err)
	}

	seen := make(map[string]struct{}, len(c.Personas))
	for i, p := range c.Personas {
		if p.ID == "" {
			return nil, fmt.Errorf("persona #%d has no id", i)
		}
		if p.SystemPrompt == "" {
			return nil, fmt.Errorf("persona %q has no system prompt", p.ID)
		}
		if _, dup := seen[p.ID]; dup {
			return nil, fmt.Errorf("duplicate persona id %q", p.ID)
		}
		seen[p.ID] = struct{}{}
	}
	return c.Personas, nil
}

// LoadFile reads a catalog from disk, falling back to Seed when path is empty.
func LoadFile(path string) ([]Persona, error) {
	if path == "" {
		return Seed(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read persona catalog: %w", err)
	}
	return Parse(data)
}
