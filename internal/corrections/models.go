package corrections

import (
	"fmt"
	"strings"
	"time"
)

// Correction is one user-supplied (image, true label) pair.
type Correction struct {
	ID             int64
	ImageRef       string
	TrueLabel      int
	PredictedLabel int
	Processed      bool
	CreatedAt      time.Time
}

// Filter selects which corrections List returns.
type Filter int

const (
	FilterAll Filter = iota
	FilterUnprocessed
)

func (f Filter) String() string {
	switch f {
	case FilterUnprocessed:
		return "unprocessed"
	default:
		return "all"
	}
}

// ParseFilter converts user input into a Filter. Empty input selects
// FilterUnprocessed.
func ParseFilter(value string) (Filter, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "unprocessed":
		return FilterUnprocessed, nil
	case "all":
		return FilterAll, nil
	default:
		return FilterAll, fmt.Errorf("unknown correction filter %q (want all or unprocessed)", value)
	}
}

// IDs returns the identifiers of the given corrections in input order.
func IDs(items []Correction) []int64 {
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	return ids
}

// Stats summarizes the corrections table.
type Stats struct {
	Total       int
	Unprocessed int
	Processed   int
}

// DatabaseHealth captures diagnostic information about the corrections database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	TableExists      bool
	ColumnsPresent   []string
	MissingColumns   []string
	IntegrityCheck   bool
	TotalRows        int
	Error            string
}
