package platform

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"omnistock/internal"
)

//go:embed platforms.yaml
var defaultMappings []byte

type mappingFile struct {
	Platforms []Definition `yaml:"platforms"`
}

type Registry struct {
	defs    map[internal.Platform]Definition
	aliases map[string]internal.Platform
	order   []internal.Platform
}

// Load reads the built-in mappings and applies overridePath on top when it is set.
// Definitions in the override replace built-ins with the same name.
func Load(overridePath string) (*Registry, error) {
	r := &Registry{
		defs:    map[internal.Platform]Definition{},
		aliases: map[string]internal.Platform{},
	}
	if err := r.merge(defaultMappings); err != nil {
		return nil, fmt.Errorf("built-in platform mappings: %w", err)
	}
	if strings.TrimSpace(overridePath) == "" {
		return r, nil
	}
	blob, err := os.ReadFile(overridePath)
	if err != nil {
		return nil, err
	}
	if err := r.merge(blob); err != nil {
		return nil, fmt.Errorf("platform mappings %s: %w", overridePath, err)
	}
	return r, nil
}

func MustDefault() *Registry {
	r, err := Load("")
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Registry) merge(blob []byte) error {
	var file mappingFile
	if err := yaml.Unmarshal(blob, &file); err != nil {
		return err
	}
	for _, def := range file.Platforms {
		def.Name = internal.Platform(normalizeTag(string(def.Name)))
		def.Fields = normalizeFields(def.Fields)
		if err := def.validate(); err != nil {
			return err
		}
		if _, exists := r.defs[def.Name]; !exists {
			r.order = append(r.order, def.Name)
		}
		r.defs[def.Name] = def
		r.aliases[string(def.Name)] = def.Name
		for _, alias := range def.Aliases {
			r.aliases[normalizeTag(alias)] = def.Name
		}
	}
	return nil
}

// Lookup resolves a platform name or alias.
func (r *Registry) Lookup(tag string) (Definition, bool) {
	name, ok := r.aliases[normalizeTag(tag)]
	if !ok {
		return Definition{}, false
	}
	def, ok := r.defs[name]
	return def, ok
}

// Detect guesses the platform from an export's file name.
func (r *Registry) Detect(fileName string) (internal.Platform, bool) {
	base := strings.ToLower(filepath.Base(fileName))
	for _, name := range r.order {
		if strings.Contains(base, string(name)) {
			return name, true
		}
	}
	return "", false
}

func (r *Registry) Names() []internal.Platform {
	out := make([]internal.Platform, len(r.order))
	copy(out, r.order)
	return out
}

func normalizeTag(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}

func normalizeFields(in FieldMapping) FieldMapping {
	out := FieldMapping{}
	for field, headers := range in {
		for _, h := range headers {
			if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
				out[field] = append(out[field], h)
			}
		}
	}
	return out
}
