package catalog

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/theory-cloud/indextheory/pkg/attr"
	"github.com/theory-cloud/indextheory/pkg/core"
)

// Declaration is the YAML shape of a table catalog. It mirrors the
// programmatic options one to one so declarations can live next to
// infrastructure templates.
type Declaration struct {
	Aliases    map[string]string      `yaml:"aliases"`
	Table      string                 `yaml:"table"`
	Key        KeyDeclaration         `yaml:"key"`
	Attributes []AttributeDeclaration `yaml:"attributes"`
	Indexes    []IndexDeclaration     `yaml:"indexes"`
	Policy     PolicyDeclaration      `yaml:"policy"`
}

// KeyDeclaration declares the primary key.
type KeyDeclaration struct {
	Partition string `yaml:"partition"`
	Sort      string `yaml:"sort"`
}

// AttributeDeclaration declares one attribute.
type AttributeDeclaration struct {
	Name string `yaml:"name"`
	// Type is one of: string, number, bool, stringlist, unique, prefix.
	Type string `yaml:"type"`
	// Unique attribute options.
	TenantScoped    bool `yaml:"tenantScoped"`
	CaseInsensitive bool `yaml:"caseInsensitive"`
	// Prefix attribute options.
	Source string `yaml:"source"`
	Length int    `yaml:"length"`
}

// IndexDeclaration declares one secondary index.
type IndexDeclaration struct {
	Name      string `yaml:"name"`
	Type      string `yaml:"type"` // GSI (default) or LSI
	Partition string `yaml:"partition"`
	Sort      string `yaml:"sort"`
}

// PolicyDeclaration declares planner policy knobs.
type PolicyDeclaration struct {
	MaxQueries *int  `yaml:"maxQueries"`
	AllowScan  *bool `yaml:"allowScan"`
}

// Load reads a YAML declaration and builds the catalog.
func Load(r io.Reader) (*Table, error) {
	var decl Declaration
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&decl); err != nil {
		return nil, fmt.Errorf("catalog: decode declaration: %w", err)
	}
	return FromDeclaration(decl)
}

// LoadFile reads a YAML declaration from a file path.
func LoadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: open %s: %w", path, err)
	}
	defer f.Close()
	return Load(f)
}

// FromDeclaration builds a catalog from a parsed declaration.
func FromDeclaration(decl Declaration) (*Table, error) {
	opts := []Option{WithKey(decl.Key.Partition, decl.Key.Sort)}

	uniques := make(map[string]attr.Unique)
	var prefixDecls []AttributeDeclaration

	for _, a := range decl.Attributes {
		switch a.Type {
		case "string":
			opts = append(opts, WithAttributes(attr.String(a.Name)))
		case "number":
			opts = append(opts, WithAttributes(attr.Number(a.Name)))
		case "bool":
			opts = append(opts, WithAttributes(attr.Bool(a.Name)))
		case "stringlist":
			opts = append(opts, WithAttributes(attr.StringList(a.Name)))
		case "unique":
			var uopts []attr.UniqueOption
			if a.TenantScoped {
				uopts = append(uopts, attr.TenantScoped())
			}
			if a.CaseInsensitive {
				uopts = append(uopts, attr.CaseInsensitive())
			}
			u := attr.NewUnique(a.Name, uopts...)
			uniques[a.Name] = u
			opts = append(opts, WithUnique(u))
		case "prefix":
			// Resolved after all unique attributes are known.
			prefixDecls = append(prefixDecls, a)
		default:
			return nil, fmt.Errorf("catalog: attribute %s: unknown type %q", a.Name, a.Type)
		}
	}

	for _, p := range prefixDecls {
		source, ok := uniques[p.Source]
		if !ok {
			return nil, fmt.Errorf("catalog: prefix attribute %s: source %q is not a unique attribute", p.Name, p.Source)
		}
		if p.Length <= 0 {
			return nil, fmt.Errorf("catalog: prefix attribute %s: length must be positive", p.Name)
		}
		opts = append(opts, WithPrefix(attr.NewPrefix(p.Name, source, p.Length)))
	}

	for _, idx := range decl.Indexes {
		indexType := idx.Type
		if indexType == "" {
			indexType = core.IndexTypeGSI
		}
		opts = append(opts, WithIndex(core.IndexSchema{
			Name:         idx.Name,
			Type:         indexType,
			PartitionKey: idx.Partition,
			SortKey:      idx.Sort,
		}))
	}

	for logical, physical := range decl.Aliases {
		opts = append(opts, WithAlias(logical, physical))
	}
	if decl.Policy.MaxQueries != nil {
		opts = append(opts, WithMaxQueries(*decl.Policy.MaxQueries))
	}
	if decl.Policy.AllowScan != nil {
		opts = append(opts, WithScanPolicy(*decl.Policy.AllowScan))
	}

	return New(decl.Table, opts...)
}
