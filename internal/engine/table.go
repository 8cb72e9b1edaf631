package engine

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed engines.yaml
var defaultTable []byte

// Table holds the ordered descriptor list for every category.
// It is immutable after construction and safe to share.
type Table struct {
	lists    map[Category][]Descriptor
	timeouts map[Category]time.Duration
}

type tableFile struct {
	Categories map[string]categoryFile `yaml:"categories"`
}

type categoryFile struct {
	Timeout string           `yaml:"timeout"`
	Engines []descriptorFile `yaml:"engines"`
}

type descriptorFile struct {
	Name        string  `yaml:"name"`
	Mode        string  `yaml:"mode"`
	SuccessRate float64 `yaml:"success_rate"`
	Speed       string  `yaml:"speed"`
}

// NewTable validates lists and freezes them into a Table.
func NewTable(lists map[Category][]Descriptor) (*Table, error) {
	t := &Table{
		lists:    make(map[Category][]Descriptor, len(lists)),
		timeouts: make(map[Category]time.Duration),
	}
	for c, ds := range lists {
		if len(ds) == 0 {
			return nil, configErr("NewTable", ErrInvalidDescriptor, fmt.Sprintf("category %s has no engines", c))
		}
		seen := make(map[string]bool, len(ds))
		for _, d := range ds {
			if err := d.validate(); err != nil {
				return nil, configErr("NewTable", err, string(c))
			}
			if seen[d.Name] {
				return nil, configErr("NewTable", ErrInvalidDescriptor, fmt.Sprintf("duplicate engine %s in %s", d.Name, c))
			}
			seen[d.Name] = true
		}
		t.lists[c] = append([]Descriptor(nil), ds...)
	}
	return t, nil
}

// LoadTable parses a YAML descriptor table and binds each entry to reg.
func LoadTable(r io.Reader, reg *Registry) (*Table, error) {
	const op = "LoadTable"

	var f tableFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, configErr(op, ErrInvalidDescriptor, fmt.Sprintf("decode yaml: %v", err))
	}

	lists := make(map[Category][]Descriptor, len(f.Categories))
	timeouts := make(map[Category]time.Duration)
	for name, cf := range f.Categories {
		c, err := ParseCategory(name)
		if err != nil {
			return nil, configErr(op, ErrUnknownCategory, fmt.Sprintf("%q", name))
		}
		if cf.Timeout != "" {
			d, err := time.ParseDuration(cf.Timeout)
			if err != nil || d <= 0 {
				return nil, configErr(op, ErrInvalidDescriptor, fmt.Sprintf("%s: timeout %q", c, cf.Timeout))
			}
			timeouts[c] = d
		}
		for _, df := range cf.Engines {
			fn, err := reg.Lookup(c, df.Name)
			if err != nil {
				return nil, configErr(op, err, "")
			}
			speed := Speed(df.Speed)
			if speed == "" {
				speed = Medium
			}
			lists[c] = append(lists[c], Descriptor{
				Name:            df.Name,
				Mode:            Mode(df.Mode),
				SuccessRateHint: df.SuccessRate,
				Speed:           speed,
				Invoke:          fn,
			})
		}
	}

	t, err := NewTable(lists)
	if err != nil {
		return nil, err
	}
	t.timeouts = timeouts
	return t, nil
}

// LoadTableFile reads the table at path.
func LoadTableFile(path string, reg *Registry) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, configErr("LoadTableFile", err, path)
	}
	defer f.Close()
	return LoadTable(f, reg)
}

// DefaultTable loads the embedded priority tables.
func DefaultTable(reg *Registry) (*Table, error) {
	return LoadTable(bytes.NewReader(defaultTable), reg)
}

// Descriptors returns a copy of the ordered list for c.
func (t *Table) Descriptors(c Category) ([]Descriptor, error) {
	ds, ok := t.lists[c]
	if !ok {
		return nil, configErr("Descriptors", ErrUnknownCategory, fmt.Sprintf("%q", c))
	}
	return append([]Descriptor(nil), ds...), nil
}

// Timeout returns the table-level timeout override for c, if any.
func (t *Table) Timeout(c Category) (time.Duration, bool) {
	d, ok := t.timeouts[c]
	return d, ok
}

// Categories lists the categories the table covers, in display order.
func (t *Table) Categories() []Category {
	out := make([]Category, 0, len(t.lists))
	for _, c := range Categories {
		if _, ok := t.lists[c]; ok {
			out = append(out, c)
		}
	}
	return out
}
