package resolver

import "unicode/utf8"

const maxNote = 200

// Attempt records one executed strategy.
type Attempt struct {
	Strategy   string  `json:"strategy"`
	URL        string  `json:"url,omitempty"`
	Status     int     `json:"status"`
	OK         bool    `json:"ok"`
	Price      float64 `json:"price,omitempty"`
	Note       string  `json:"note,omitempty"`
	DurationMS int64   `json:"ms"`
}

// Trace is the append-only log of one resolution. It also carries the
// permalink learned from earlier responses, which seeds the scrape strategy.
type Trace struct {
	Input     string    `json:"input"`
	Kind      string    `json:"kind"`
	TokenOK   bool      `json:"tokenOk"`
	TokenErr  string    `json:"tokenErr,omitempty"`
	Scrape    bool      `json:"scrape"`
	Permalink string    `json:"permalink,omitempty"`
	Attempts  []Attempt `json:"attempts"`
	Fallback  string    `json:"fallback,omitempty"`
}

func (t *Trace) add(a Attempt) {
	a.Note = truncate(a.Note, maxNote)
	t.Attempts = append(t.Attempts, a)
}

func (t *Trace) seedPermalink(link string) {
	if t.Permalink == "" && link != "" {
		t.Permalink = link
	}
}

// Names lists the attempted strategies in order.
func (t *Trace) Names() []string {
	names := make([]string, 0, len(t.Attempts))
	for _, a := range t.Attempts {
		names = append(names, a.Strategy)
	}
	return names
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[:n]
	for !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
