// Package cities resolves neighboring cities for geography filters.
// Resolution failures are non-fatal: callers proceed with the original
// city set.
package cities

import "context"

// Lookup resolves a city name to its neighboring city names.
type Lookup interface {
	Neighbors(ctx context.Context, city string) ([]string, error)
}

// Static is a fixed in-memory lookup table, used in tests and as the
// default when no external resolver is configured.
type Static map[string][]string

// Neighbors returns the configured neighbor list for city.
func (s Static) Neighbors(_ context.Context, city string) ([]string, error) {
	return s[city], nil
}
