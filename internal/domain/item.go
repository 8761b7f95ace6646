package domain

// Item is one document stored in an items index.
type Item struct {
	ID          string   `json:"id,omitempty"`
	Name        string   `json:"name" validate:"required,max=256"`
	Brand       string   `json:"brand,omitempty"`
	Category    string   `json:"category,omitempty"`
	Description string   `json:"description,omitempty"`
	Price       float64  `json:"price,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// Hit is one matched document together with the metadata the engine
// attached to it. Source is nil when the engine returned no document body.
type Hit struct {
	Index  string  `json:"index"`
	ID     string  `json:"id"`
	Score  float64 `json:"score"`
	Source *Item   `json:"source,omitempty"`
}

// Items returns the source documents of hits in engine order. Hits that carry
// no source are not included in items; they are returned in skipped so the
// caller can report them.
func Items(hits []Hit) (items []Item, skipped []Hit) {
	items = make([]Item, 0, len(hits))
	for _, h := range hits {
		if h.Source == nil {
			skipped = append(skipped, h)
			continue
		}
		items = append(items, *h.Source)
	}
	return items, skipped
}
