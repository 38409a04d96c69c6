// Package advisory turns the labels detected in one frame into the text shown
// to the user.
package advisory

import (
	"fmt"
	"strings"

	"wastesort/internal/category"
	"wastesort/internal/logger"
	"wastesort/internal/vision"
)

// Locale selects the wording of advisory lines.
type Locale int

const (
	English Locale = iota
	Chinese
)

// ParseLocale maps "en"/"zh" to a Locale. Anything else is English.
func ParseLocale(s string) Locale {
	if strings.HasPrefix(strings.ToLower(s), "zh") {
		return Chinese
	}
	return English
}

// Aggregator builds advisory strings from label sets.
type Aggregator struct {
	table       *category.Table
	locale      Locale
	skipUnknown bool
	logger      *logger.Logger
}

// NewAggregator creates an Aggregator. With skipUnknown set, labels missing
// from the table are logged and left out instead of failing the call.
func NewAggregator(table *category.Table, locale Locale, skipUnknown bool, logger *logger.Logger) *Aggregator {
	return &Aggregator{
		table:       table,
		locale:      locale,
		skipUnknown: skipUnknown,
		logger:      logger,
	}
}

// Aggregate returns one line per distinct label, ordered by raw label.
// An empty set yields an empty string.
func (a *Aggregator) Aggregate(labels vision.LabelSet) (string, error) {
	if len(labels) == 0 {
		return "", nil
	}

	lines := make([]string, 0, len(labels))
	for _, label := range labels.Sorted() {
		entry, err := a.table.Lookup(label)
		if err != nil {
			if a.skipUnknown {
				a.logger.Warning("Skipping label missing from category table: %q", label)
				continue
			}
			return "", fmt.Errorf("failed to build advisory: %w", err)
		}
		lines = append(lines, a.line(entry))
	}

	return strings.Join(lines, "\n"), nil
}

func (a *Aggregator) line(entry category.Entry) string {
	if a.locale == Chinese {
		return entry.LocalName + "，该垃圾应当是：" + entry.Category.LocalName()
	}
	return entry.DisplayName + " — dispose as: " + entry.Category.String()
}
