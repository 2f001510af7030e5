package ownership

import (
	_ "embed"
	"fmt"
	"os"
	"slices"
	"sort"

	"gopkg.in/yaml.v3"

	ferrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
)

//go:embed default_matrix.yaml
var defaultMatrix []byte

// Owner says who may write a field
type Owner string

const (
	OwnerIngestion Owner = "ingestion"
	OwnerApp       Owner = "app"
)

// FieldOwnership is the static metadata of one field
type FieldOwnership struct {
	Field    models.FieldName `json:"field"`
	Owner    Owner            `json:"owner"`
	Priority []string         `json:"priority,omitempty"`
}

type matrixDocument struct {
	Sources    []string `yaml:"sources"`
	NaturalKey struct {
		Field               string `yaml:"field"`
		AuthoritativeSource string `yaml:"authoritative_source"`
	} `yaml:"natural_key"`
	DefaultPriority []string `yaml:"default_priority"`
	Fields          map[string]struct {
		Owner    string   `yaml:"owner"`
		Priority []string `yaml:"priority"`
	} `yaml:"fields"`
}

// Matrix is the immutable field ownership table. It is loaded once and shared read-only.
type Matrix struct {
	sources             []string
	fields              map[models.FieldName]FieldOwnership
	naturalKeyField     models.FieldName
	authoritativeSource string
}

// DefaultMatrix parses the embedded matrix
func DefaultMatrix() (*Matrix, error) {
	return ParseMatrix(defaultMatrix)
}

// LoadMatrix reads a matrix document from path, or the embedded default when path is empty
func LoadMatrix(path string) (*Matrix, error) {
	if path == "" {
		return DefaultMatrix()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read ownership matrix %s: %w", path, err)
	}
	return ParseMatrix(data)
}

// ParseMatrix parses and validates a YAML matrix document
func ParseMatrix(data []byte) (*Matrix, error) {
	var doc matrixDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse ownership matrix: %w", err)
	}

	if len(doc.Sources) == 0 {
		return nil, fmt.Errorf("ownership matrix declares no sources")
	}
	known := map[string]bool{}
	for _, source := range doc.Sources {
		if known[source] {
			return nil, fmt.Errorf("source %q declared twice", source)
		}
		known[source] = true
	}

	m := &Matrix{
		sources:             slices.Clone(doc.Sources),
		fields:              make(map[models.FieldName]FieldOwnership, len(doc.Fields)),
		naturalKeyField:     models.FieldName(doc.NaturalKey.Field),
		authoritativeSource: doc.NaturalKey.AuthoritativeSource,
	}

	for name, entry := range doc.Fields {
		field := models.FieldName(name)
		if !models.IsKnownField(field) {
			return nil, fmt.Errorf("ownership matrix references unknown field %q", name)
		}

		fo := FieldOwnership{Field: field, Owner: Owner(entry.Owner)}
		switch fo.Owner {
		case OwnerApp:
			if len(entry.Priority) > 0 {
				return nil, fmt.Errorf("app-owned field %q cannot declare a priority list", name)
			}
		case OwnerIngestion:
			fo.Priority = entry.Priority
			if len(fo.Priority) == 0 {
				fo.Priority = doc.DefaultPriority
			}
			if len(fo.Priority) == 0 {
				return nil, fmt.Errorf("ingestion field %q has no priority list", name)
			}
			fo.Priority = slices.Clone(fo.Priority)
			seen := map[string]bool{}
			for _, source := range fo.Priority {
				if !known[source] {
					return nil, fmt.Errorf("field %q ranks undeclared source %q", name, source)
				}
				if seen[source] {
					return nil, fmt.Errorf("field %q ranks source %q twice", name, source)
				}
				seen[source] = true
			}
		default:
			return nil, fmt.Errorf("field %q has invalid owner %q", name, entry.Owner)
		}
		m.fields[field] = fo
	}

	var missing []string
	for _, field := range models.AllFieldNames() {
		if _, ok := m.fields[field]; !ok {
			missing = append(missing, string(field))
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("ownership matrix does not cover fields %v", missing)
	}

	if m.naturalKeyField != "" {
		fo, ok := m.fields[m.naturalKeyField]
		if !ok || fo.Owner != OwnerIngestion {
			return nil, fmt.Errorf("natural key field %q must be ingestion owned", m.naturalKeyField)
		}
		if !known[m.authoritativeSource] {
			return nil, fmt.Errorf("natural key authoritative source %q is not declared", m.authoritativeSource)
		}
	}

	return m, nil
}

// Sources returns every declared source system
func (m *Matrix) Sources() []string {
	return slices.Clone(m.sources)
}

// IsKnownSource reports whether a source system is declared
func (m *Matrix) IsKnownSource(source string) bool {
	return slices.Contains(m.sources, source)
}

// ValidateIngestionSource rejects undeclared sources and the reserved human edit source
func (m *Matrix) ValidateIngestionSource(source string) error {
	if source == models.SourceAppUserEdit {
		return ferrors.Newf(ferrors.KindMalformedSourceRecord, "source %q is reserved for human edits", source)
	}
	if !m.IsKnownSource(source) {
		return ferrors.Newf(ferrors.KindMalformedSourceRecord, "unknown source system %q", source)
	}
	return nil
}

// Ownership returns the metadata of a field
func (m *Matrix) Ownership(field models.FieldName) (FieldOwnership, bool) {
	fo, ok := m.fields[field]
	if !ok {
		return FieldOwnership{}, false
	}
	fo.Priority = slices.Clone(fo.Priority)
	return fo, true
}

// IsAppOwned reports whether ingestion must never touch the field
func (m *Matrix) IsAppOwned(field models.FieldName) bool {
	return m.fields[field].Owner == OwnerApp
}

// NaturalKeyField is the business identifier that only the authoritative source may overwrite
func (m *Matrix) NaturalKeyField() models.FieldName {
	return m.naturalKeyField
}

// AuthoritativeSource is the ERP whose natural key values always win
func (m *Matrix) AuthoritativeSource() string {
	return m.authoritativeSource
}

// Rank scores a source for a field. Earlier entries in the priority list score higher;
// a source missing from the list (unknown or since removed) scores 0.
func (m *Matrix) Rank(field models.FieldName, source string) int {
	priority := m.fields[field].Priority
	idx := slices.Index(priority, source)
	if idx < 0 {
		return 0
	}
	return len(priority) - idx
}

// Fields returns every field's ownership, ordered by field name
func (m *Matrix) Fields() []FieldOwnership {
	out := make([]FieldOwnership, 0, len(m.fields))
	for _, field := range models.SortedFieldNames(m.fields) {
		fo, _ := m.Ownership(field)
		out = append(out, fo)
	}
	return out
}
