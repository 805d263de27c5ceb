package retrieval

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// FieldsMapping names the index fields the search service reads documents from.
type FieldsMapping struct {
	ContentFields          []string `yaml:"content_fields" json:"content_fields"`
	ContentFieldsSeparator string   `yaml:"content_fields_separator" json:"content_fields_separator"`
	FilepathField          string   `yaml:"filepath_field" json:"filepath_field"`
	TitleField             string   `yaml:"title_field" json:"title_field"`
	URLField               string   `yaml:"url_field" json:"url_field"`
	VectorFields           []string `yaml:"vector_fields" json:"vector_fields"`
}

// Family is a group of search libraries sharing one index schema.
type Family struct {
	Name          string        `yaml:"name"`
	Default       bool          `yaml:"default"`
	TopNDocuments int           `yaml:"top_n_documents"`
	Fields        FieldsMapping `yaml:"fields"`
	Libraries     []string      `yaml:"libraries"`
}

// Catalog maps search library ids to their family.
type Catalog struct {
	Families []Family `yaml:"families"`

	byLibrary map[string]int
	fallback  int
}

// DefaultCatalog parses the catalog compiled into the binary.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalogYAML)
}

// LoadCatalogFile reads and validates a catalog from path.
func LoadCatalogFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	c, err := ParseCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return c, nil
}

// ParseCatalog decodes YAML and indexes libraries by id.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if err := c.index(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Family returns the family for library, or the default family when unlisted.
func (c *Catalog) Family(library string) Family {
	if i, ok := c.byLibrary[library]; ok {
		return c.Families[i]
	}
	return c.Families[c.fallback]
}

func (c *Catalog) index() error {
	if len(c.Families) == 0 {
		return errors.New("catalog has no families")
	}
	c.byLibrary = make(map[string]int)
	c.fallback = -1

	for i, f := range c.Families {
		if err := f.validate(); err != nil {
			return err
		}
		if f.Default {
			if c.fallback >= 0 {
				return fmt.Errorf("families %q and %q are both marked default", c.Families[c.fallback].Name, f.Name)
			}
			c.fallback = i
		}
		for _, lib := range f.Libraries {
			if prev, dup := c.byLibrary[lib]; dup {
				return fmt.Errorf("library %q listed in both %q and %q", lib, c.Families[prev].Name, f.Name)
			}
			c.byLibrary[lib] = i
		}
	}
	if c.fallback < 0 {
		return errors.New("catalog has no default family")
	}
	return nil
}

func (f Family) validate() error {
	switch {
	case f.Name == "":
		return errors.New("family without a name")
	case f.TopNDocuments <= 0:
		return fmt.Errorf("family %q: top_n_documents must be positive", f.Name)
	case len(f.Fields.ContentFields) == 0:
		return fmt.Errorf("family %q: content_fields is required", f.Name)
	case f.Fields.FilepathField == "" || f.Fields.TitleField == "" || f.Fields.URLField == "":
		return fmt.Errorf("family %q: filepath, title and url fields are required", f.Name)
	}
	return nil
}
