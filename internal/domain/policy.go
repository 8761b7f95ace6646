package domain

// ErrorPolicy selects how search and ingest operations report failures.
type ErrorPolicy string

const (
	// PolicyStrict reports every failure as an error. Malformed requests are
	// validation errors and engine failures are never turned into empty results.
	PolicyStrict ErrorPolicy = "strict"

	// PolicyLegacy keeps the historical per-operation behavior: match-all,
	// single-index and field searches fail hard, the boolean search degrades
	// to an empty result, and the seed loader logs and swallows failures.
	PolicyLegacy ErrorPolicy = "legacy"
)

// Valid reports whether p is a known policy.
func (p ErrorPolicy) Valid() bool {
	return p == PolicyStrict || p == PolicyLegacy
}
