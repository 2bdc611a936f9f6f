package references

import (
	"sort"
	"sync"

	"github.com/ternarybob/reclaim/internal/models"
	"github.com/ternarybob/reclaim/internal/services/extractor"
)

// refSet is a set of SourceRefs keyed by SourceRef.Key
type refSet map[string]models.SourceRef

func (s refSet) add(ref models.SourceRef) {
	s[ref.Key()] = ref
}

func (s refSet) merge(other refSet) {
	for k, v := range other {
		s[k] = v
	}
}

// sorted returns the refs in a stable order
func (s refSet) sorted() []models.SourceRef {
	out := make([]models.SourceRef, 0, len(s))
	for _, ref := range s {
		out = append(out, ref)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// urlIndex maps every URL extracted in a pass to the sources that used it.
// Relative paths are also registered under their absolute form so both
// matching strategies see them; literal tracks the sources each absolute URL
// was actually extracted with, and origin maps derived absolute URLs back to
// their relative path.
type urlIndex struct {
	mu       sync.Mutex
	baseURL  string
	absolute map[string]refSet
	relative map[string]refSet
	literal  map[string]refSet
	origin   map[string]string

	consumedAbs map[string]bool
	consumedRel map[string]bool
}

func newURLIndex(baseURL string) *urlIndex {
	return &urlIndex{
		baseURL:  baseURL,
		absolute: make(map[string]refSet),
		relative: make(map[string]refSet),
		literal:  make(map[string]refSet),
		origin:   make(map[string]string),

		consumedAbs: make(map[string]bool),
		consumedRel: make(map[string]bool),
	}
}

func addRef(m map[string]refSet, key string, ref models.SourceRef) {
	set, ok := m[key]
	if !ok {
		set = make(refSet)
		m[key] = set
	}
	set.add(ref)
}

// addResult registers every URL of one fragment under ref
func (x *urlIndex) addResult(result *extractor.Result, ref models.SourceRef) {
	x.mu.Lock()
	defer x.mu.Unlock()

	for u := range result.Absolute {
		addRef(x.absolute, u, ref)
		addRef(x.literal, u, ref)
	}
	for p := range result.Relative {
		addRef(x.relative, p, ref)
		derived := extractor.JoinBase(x.baseURL, p)
		if derived == p {
			continue
		}
		addRef(x.absolute, derived, ref)
		x.origin[derived] = p
	}
}

// match collects the sources of one asset access URL: exact absolute match,
// base-joined absolute match for relative URLs, then path match against the
// relative map. Every matched key is marked consumed.
func (x *urlIndex) match(permalink string) refSet {
	found := make(refSet)
	if permalink == "" {
		return found
	}
	decoded := extractor.DecodeURL(permalink)

	x.mu.Lock()
	defer x.mu.Unlock()

	if set, ok := x.absolute[decoded]; ok {
		found.merge(set)
		x.consumedAbs[decoded] = true
	}
	if !extractor.IsFullURL(decoded) {
		joined := extractor.JoinBase(x.baseURL, decoded)
		if set, ok := x.absolute[joined]; ok {
			found.merge(set)
			x.consumedAbs[joined] = true
		}
	}
	path := extractor.ExtractPath(decoded)
	if set, ok := x.relative[path]; ok {
		found.merge(set)
		x.consumedRel[path] = true
	}
	return found
}

// checkedCount is the number of keys in both maps
func (x *urlIndex) checkedCount() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.absolute) + len(x.relative)
}

// candidate is an extracted URL no asset consumed
type candidate struct {
	url     string
	sources refSet
}

// unresolved returns the broken link candidates in URL order. A relative path
// and its derived absolute form count as one URL: either being consumed resolves
// both, and derived-only absolute keys are never candidates themselves.
func (x *urlIndex) unresolved() []candidate {
	x.mu.Lock()
	defer x.mu.Unlock()

	var out []candidate
	for p, set := range x.relative {
		if x.consumedRel[p] || x.consumedAbs[extractor.JoinBase(x.baseURL, p)] {
			continue
		}
		out = append(out, candidate{url: p, sources: set})
	}
	for u, set := range x.literal {
		if x.consumedAbs[u] {
			continue
		}
		if p, ok := x.origin[u]; ok && x.consumedRel[p] {
			continue
		}
		out = append(out, candidate{url: u, sources: set})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].url < out[j].url })
	return out
}
