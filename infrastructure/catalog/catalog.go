// Package catalog serves the fixed, per-lab paper lists the Retriever
// ranks. The built-in lists are embedded; a directory holding
// <lab>.yaml files can replace them.
package catalog

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"slices"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-autolab/internal/domain"
	"github.com/ahrav/go-autolab/internal/ports"
)

//go:embed papers/*.yaml
var embedded embed.FS

var validate = validator.New()

// Static is an immutable in-memory catalog. It is safe for concurrent use.
type Static struct {
	papers map[string][]domain.Paper
}

var _ ports.Catalog = (*Static)(nil)

// Default returns the built-in catalog.
func Default() (*Static, error) {
	sub, err := fs.Sub(embedded, "papers")
	if err != nil {
		return nil, err
	}
	return Load(sub)
}

// LoadDir reads <lab>.yaml files from dir.
func LoadDir(dir string) (*Static, error) {
	return Load(os.DirFS(dir))
}

// Load reads one YAML list per lab from the root of fsys. A lab without a
// file gets an empty list, which the Retriever reports as
// ports.ErrEmptyCatalog.
func Load(fsys fs.FS) (*Static, error) {
	c := &Static{papers: make(map[string][]domain.Paper, len(domain.LabNames))}
	for _, lab := range domain.LabNames {
		raw, err := fs.ReadFile(fsys, lab+".yaml")
		if errors.Is(err, fs.ErrNotExist) {
			c.papers[lab] = nil
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read catalog for %s: %w", lab, err)
		}
		papers, err := decode(raw)
		if err != nil {
			return nil, fmt.Errorf("catalog for %s: %w", lab, err)
		}
		c.papers[lab] = papers
	}
	return c, nil
}

// New builds a catalog from papers keyed by lab name.
func New(papers map[string][]domain.Paper) (*Static, error) {
	c := &Static{papers: make(map[string][]domain.Paper, len(papers))}
	for lab, list := range papers {
		if !domain.IsKnownLab(lab) {
			return nil, fmt.Errorf("%w: %q", domain.ErrUnknownLab, lab)
		}
		for i, p := range list {
			if err := validate.Struct(p); err != nil {
				return nil, fmt.Errorf("catalog for %s: paper %d: %w", lab, i, err)
			}
		}
		c.papers[lab] = clonePapers(list)
	}
	return c, nil
}

func decode(raw []byte) ([]domain.Paper, error) {
	var papers []domain.Paper
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&papers); err != nil {
		return nil, fmt.Errorf("failed to decode papers: %w", err)
	}
	for i, p := range papers {
		if err := validate.Struct(p); err != nil {
			return nil, fmt.Errorf("paper %d: %w", i, err)
		}
	}
	return papers, nil
}

// Papers returns a copy of the list for lab in catalog order.
func (c *Static) Papers(lab string) ([]domain.Paper, error) {
	if !domain.IsKnownLab(lab) {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownLab, lab)
	}
	return clonePapers(c.papers[lab]), nil
}

// Len reports the total number of papers across labs.
func (c *Static) Len() int {
	n := 0
	for _, list := range c.papers {
		n += len(list)
	}
	return n
}

func clonePapers(in []domain.Paper) []domain.Paper {
	if in == nil {
		return nil
	}
	out := make([]domain.Paper, len(in))
	for i, p := range in {
		p.Authors = slices.Clone(p.Authors)
		p.KeyResults = maps.Clone(p.KeyResults)
		out[i] = p
	}
	return out
}
