// Package category maps raw detector class labels to a disposal category and
// a display name.
//
// The table is embedded in the binary and parsed once; after that it is only
// read, so it can be shared between goroutines without locking.
package category

import (
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed categories.yaml
var embeddedTable []byte

// ErrUnknownLabel is returned when a label is missing from the table. It means
// the model and the table are out of sync.
var ErrUnknownLabel = errors.New("unknown label")

// UnknownLabelError carries the label that failed the lookup.
type UnknownLabelError struct {
	Label string
}

func (e *UnknownLabelError) Error() string {
	return fmt.Sprintf("%v: %q", ErrUnknownLabel, e.Label)
}

func (e *UnknownLabelError) Unwrap() error {
	return ErrUnknownLabel
}

// Category is a disposal category.
type Category int

const (
	Recyclable Category = iota + 1
	Other
	Hazardous
)

func (c Category) String() string {
	switch c {
	case Recyclable:
		return "Recyclable"
	case Other:
		return "Other"
	case Hazardous:
		return "Hazardous"
	default:
		return fmt.Sprintf("Category(%d)", int(c))
	}
}

// LocalName returns the category name printed on Chinese sorting bins.
func (c Category) LocalName() string {
	switch c {
	case Recyclable:
		return "可回收物"
	case Other:
		return "其他垃圾"
	case Hazardous:
		return "有害垃圾"
	default:
		return c.String()
	}
}

// ParseCategory accepts the lowercase names used in the table file.
func ParseCategory(s string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "recyclable":
		return Recyclable, nil
	case "other":
		return Other, nil
	case "hazardous":
		return Hazardous, nil
	default:
		return 0, fmt.Errorf("unknown category %q", s)
	}
}

// Entry is one row of the table.
type Entry struct {
	Label       string
	Category    Category
	DisplayName string
	LocalName   string
}

// Table is an immutable label -> Entry lookup.
type Table struct {
	entries map[string]Entry
}

type tableFile struct {
	Entries []struct {
		Label    string `yaml:"label"`
		Category string `yaml:"category"`
		Name     string `yaml:"name"`
		Display  string `yaml:"display,omitempty"`
	} `yaml:"entries"`
}

// Parse builds a Table from YAML. Duplicate labels and unknown categories are
// rejected.
func Parse(data []byte) (*Table, error) {
	var file tableFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse category table: %w", err)
	}
	if len(file.Entries) == 0 {
		return nil, errors.New("category table is empty")
	}

	entries := make(map[string]Entry, len(file.Entries))
	for i, row := range file.Entries {
		if row.Label == "" {
			return nil, fmt.Errorf("entry %d: empty label", i)
		}
		if _, exists := entries[row.Label]; exists {
			return nil, fmt.Errorf("entry %d: duplicate label %q", i, row.Label)
		}
		cat, err := ParseCategory(row.Category)
		if err != nil {
			return nil, fmt.Errorf("entry %d (%s): %w", i, row.Label, err)
		}
		display := row.Display
		if display == "" {
			display = row.Label
		}
		entries[row.Label] = Entry{
			Label:       row.Label,
			Category:    cat,
			DisplayName: display,
			LocalName:   row.Name,
		}
	}

	return &Table{entries: entries}, nil
}

var (
	defaultTable *Table
	defaultOnce  sync.Once
)

// Default returns the embedded table. It is parsed on first use.
func Default() *Table {
	defaultOnce.Do(func() {
		table, err := Parse(embeddedTable)
		if err != nil {
			panic(fmt.Sprintf("embedded category table: %v", err))
		}
		defaultTable = table
	})
	return defaultTable
}

// Lookup returns the entry for rawLabel or an *UnknownLabelError.
func (t *Table) Lookup(rawLabel string) (Entry, error) {
	entry, ok := t.entries[rawLabel]
	if !ok {
		return Entry{}, &UnknownLabelError{Label: rawLabel}
	}
	return entry, nil
}

// Len returns the number of entries.
func (t *Table) Len() int {
	return len(t.entries)
}

// Missing returns the labels that have no entry, sorted and without
// duplicates.
func (t *Table) Missing(labels []string) []string {
	var missing []string
	seen := make(map[string]bool)
	for _, label := range labels {
		if _, ok := t.entries[label]; ok || seen[label] {
			continue
		}
		seen[label] = true
		missing = append(missing, label)
	}
	sort.Strings(missing)
	return missing
}
