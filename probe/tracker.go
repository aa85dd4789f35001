package probe

import (
	"maps"
	"sync"
)

// Tracker keeps page errors. It is meant to be embedded into Probe
// implementations. Only the first error for a url is kept.
type Tracker struct {
	mu   sync.Mutex
	errs map[string]error
}

// TrackURLError records err for url.
func (t *Tracker) TrackURLError(url string, err error) {
	if err == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.errs == nil {
		t.errs = make(map[string]error)
	}
	if _, ok := t.errs[url]; !ok {
		t.errs[url] = err
	}
}

// FilterValidURLs returns urls without recorded errors in original order.
func (t *Tracker) FilterValidURLs(urls []string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	valid := make([]string, 0, len(urls))
	for _, u := range urls {
		if _, bad := t.errs[u]; !bad {
			valid = append(valid, u)
		}
	}
	return valid
}

// URLErrors returns copy of all recorded errors.
func (t *Tracker) URLErrors() map[string]error {
	t.mu.Lock()
	defer t.mu.Unlock()

	return maps.Clone(t.errs)
}

// URLError returns error recorded for url if any.
func (t *Tracker) URLError(url string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.errs[url]
}
