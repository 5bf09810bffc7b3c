package labelmap

import (
	"sort"
	"sync"

	"github.com/vocprep/vocprep/errors"
)

var (
	// ErrEmptyVocabulary is returned when no labels were observed across the
	// entire input set. A label map with zero entries is useless for training.
	ErrEmptyVocabulary = errors.New("no labels found in any annotation")

	// ErrUnknownLabel is returned when a label is resolved against a
	// vocabulary it was never added to.
	ErrUnknownLabel = errors.New("label not present in vocabulary")
)

// Order selects the id assignment policy for a vocabulary.
type Order int

const (
	// OrderSorted assigns ids in lexicographic label order. This is the
	// default: it makes ids independent of file system enumeration order.
	OrderSorted Order = iota
	// OrderFirstSeen assigns ids in the order labels were first added,
	// matching legacy deployments that numbered labels during the scan.
	OrderFirstSeen
)

// Options configure vocabulary construction.
type Options struct {
	Order Order
	// StartID is the id assigned to the first label. Defaults to 1 when
	// zero; ids are dense from there.
	StartID int64
}

// Builder accumulates distinct labels across annotations. Safe for
// concurrent use.
type Builder struct {
	opts Options

	m     sync.Mutex
	seen  map[string]bool
	order []string
}

// NewBuilder ...
func NewBuilder(opts Options) *Builder {
	if opts.StartID == 0 {
		opts.StartID = 1
	}
	return &Builder{
		opts: opts,
		seen: make(map[string]bool),
	}
}

// Add records labels. It's safe to call this repeatedly with the same label.
func (b *Builder) Add(labels ...string) {
	b.m.Lock()
	defer b.m.Unlock()
	for _, l := range labels {
		if !b.seen[l] {
			b.seen[l] = true
			b.order = append(b.order, l)
		}
	}
}

// Vocabulary freezes the accumulated labels into an immutable vocabulary.
// Fails with ErrEmptyVocabulary if no labels were added.
func (b *Builder) Vocabulary() (*Vocabulary, error) {
	b.m.Lock()
	defer b.m.Unlock()

	if len(b.order) == 0 {
		return nil, errors.WithStack(ErrEmptyVocabulary)
	}

	labels := append([]string(nil), b.order...)
	if b.opts.Order == OrderSorted {
		sort.Strings(labels)
	}

	ids := make(map[string]int64, len(labels))
	for i, l := range labels {
		ids[l] = b.opts.StartID + int64(i)
	}

	return &Vocabulary{
		startID: b.opts.StartID,
		labels:  labels,
		ids:     ids,
	}, nil
}

// Vocabulary is a bijective mapping from label string to a dense positive
// integer id. Immutable once built, safe for concurrent readers.
type Vocabulary struct {
	startID int64
	labels  []string
	ids     map[string]int64
}

// ID resolves a label to its id, failing with ErrUnknownLabel for labels
// that are not part of the vocabulary.
func (v *Vocabulary) ID(label string) (int64, error) {
	id, ok := v.ids[label]
	if !ok {
		return 0, errors.Wrapf(ErrUnknownLabel, "%q", label)
	}
	return id, nil
}

// Len returns the number of labels.
func (v *Vocabulary) Len() int {
	return len(v.labels)
}

// Labels returns the labels ordered by ascending id.
func (v *Vocabulary) Labels() []string {
	return append([]string(nil), v.labels...)
}
