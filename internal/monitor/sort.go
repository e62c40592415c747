package monitor

import (
	"sort"

	"devicemonitor/internal/config"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Sorter orders device lists. Names compare with the collation rules of the
// sorter's language.
type Sorter struct {
	lang language.Tag
}

// NewSorter creates a sorter for the given language
func NewSorter(lang language.Tag) *Sorter {
	return &Sorter{lang: lang}
}

// Sort orders the devices of a list. A list without headers is sorted as a
// whole; otherwise every run of devices between two headers is sorted on its
// own and headers keep their positions. The input is not modified.
func (s *Sorter) Sort(items []Item, sortBy config.SortBy, useEntityName bool) []Item {
	out := make([]Item, len(items))
	copy(out, items)

	// collate.Collator keeps internal buffers, one per call
	less := s.comparator(collate.New(s.lang), sortBy, useEntityName)

	start := 0
	for i := 0; i <= len(out); i++ {
		if i < len(out) {
			if _, isDevice := out[i].(*Device); isDevice {
				continue
			}
		}
		run := out[start:i]
		sort.SliceStable(run, func(a, b int) bool {
			return less(run[a].(*Device), run[b].(*Device))
		})
		start = i + 1
	}
	return out
}

func (s *Sorter) comparator(c *collate.Collator, sortBy config.SortBy, useEntityName bool) func(a, b *Device) bool {
	byName := func(a, b *Device) bool {
		return c.CompareString(displayName(a, useEntityName), displayName(b, useEntityName)) < 0
	}

	switch sortBy {
	case config.SortByName:
		return byName
	case config.SortByLastChanged:
		return func(a, b *Device) bool {
			return a.LastChanged.After(b.LastChanged)
		}
	default:
		return func(a, b *Device) bool {
			na, nb := a.StateInfo.NumericValue, b.StateInfo.NumericValue
			if na != nil && nb != nil {
				return *na < *nb
			}
			return byName(a, b)
		}
	}
}

func displayName(d *Device, useEntityName bool) string {
	if useEntityName {
		return d.EntityName
	}
	return d.DeviceName
}
