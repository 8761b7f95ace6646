// Package seed provides the sample item dataset loaded by init-index.
package seed

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"github.com/utafrali/itemsearch/internal/domain"
)

//go:embed data/items.json
var bundled []byte

// Loader reads the seed dataset: a JSON array of items. It reads the file at
// Path when set and the bundled dataset otherwise. The dataset is read on
// every call to Load.
type Loader struct {
	Path string
}

// NewLoader creates a loader. An empty path selects the bundled dataset.
func NewLoader(path string) *Loader {
	return &Loader{Path: path}
}

// Load reads and decodes the dataset.
func (l *Loader) Load() ([]domain.Item, error) {
	raw := bundled
	source := "bundled dataset"
	if l.Path != "" {
		b, err := os.ReadFile(l.Path)
		if err != nil {
			return nil, fmt.Errorf("read seed data: %w", err)
		}
		raw = b
		source = l.Path
	}

	var items []domain.Item
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode seed data from %s: %w", source, err)
	}
	return items, nil
}
