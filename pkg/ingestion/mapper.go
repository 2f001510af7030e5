package ingestion

import (
	"fmt"
	"maps"
	"os"
	"slices"
	"sync"

	"github.com/jmespath/go-jmespath"
	"gopkg.in/yaml.v3"

	ferrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
)

// SourceMapping extracts canonical fields from one source system's raw payloads
type SourceMapping struct {
	// Fields maps a canonical field (or vendor_natural_key) to a JMESPath expression
	Fields map[string]string `yaml:"fields"`
	// Passthrough also copies top-level payload keys already named after canonical fields
	Passthrough bool `yaml:"passthrough"`
}

type mappingDocument struct {
	Sources map[string]SourceMapping `yaml:"sources"`
}

// Mapper applies per-source JMESPath mappings. Sources without a mapping pass through unchanged.
type Mapper struct {
	sources map[string]SourceMapping
	cache   map[string]*jmespath.JMESPath
	mu      sync.RWMutex
}

// NewMapper compiles every expression up front so a bad mapping fails at startup
func NewMapper(sources map[string]SourceMapping) (*Mapper, error) {
	m := &Mapper{
		sources: map[string]SourceMapping{},
		cache:   map[string]*jmespath.JMESPath{},
	}
	for source, mapping := range sources {
		for field, expression := range mapping.Fields {
			if field != models.NaturalKeyField && !models.IsKnownField(models.FieldName(field)) {
				return nil, fmt.Errorf("mapping for %s targets unknown field %q", source, field)
			}
			if _, err := m.compile(expression); err != nil {
				return nil, fmt.Errorf("mapping for %s.%s: %w", source, field, err)
			}
		}
		m.sources[source] = mapping
	}
	return m, nil
}

// LoadMapper reads a mapping document. An empty path yields a pass-through mapper.
func LoadMapper(path string) (*Mapper, error) {
	if path == "" {
		return NewMapper(nil)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read source mappings: %w", err)
	}
	var doc mappingDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse source mappings: %w", err)
	}
	return NewMapper(doc.Sources)
}

// Map converts a raw source payload into the flat canonical shape
func (m *Mapper) Map(sourceSystem string, raw map[string]any) (map[string]any, error) {
	mapping, ok := m.sources[sourceSystem]
	if !ok {
		return raw, nil
	}

	out := map[string]any{}
	if mapping.Passthrough {
		for k, v := range raw {
			if k == models.NaturalKeyField || models.IsKnownField(models.FieldName(k)) {
				out[k] = v
			}
		}
	}

	var details []ferrors.ValidationError
	for _, field := range slices.Sorted(maps.Keys(mapping.Fields)) {
		compiled, err := m.compile(mapping.Fields[field])
		if err != nil {
			return nil, err
		}
		value, err := compiled.Search(raw)
		if err != nil {
			details = append(details, ferrors.ValidationError{
				Kind:    ferrors.KindMalformedSourceRecord,
				Key:     "field:" + field,
				Field:   field,
				Message: err.Error(),
			})
			continue
		}
		if value == nil {
			delete(out, field)
			continue
		}
		out[field] = value
	}
	if len(details) > 0 {
		return nil, ferrors.Newf(ferrors.KindMalformedSourceRecord, "%s payload does not match its mapping", sourceSystem).WithDetails(details...)
	}
	return out, nil
}

func (m *Mapper) compile(expression string) (*jmespath.JMESPath, error) {
	m.mu.RLock()
	compiled, ok := m.cache[expression]
	m.mu.RUnlock()
	if ok {
		return compiled, nil
	}

	compiled, err := jmespath.Compile(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid expression %q: %w", expression, err)
	}

	m.mu.Lock()
	m.cache[expression] = compiled
	m.mu.Unlock()
	return compiled, nil
}
