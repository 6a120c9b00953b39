package topology

import (
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// weights of the signature key for tuples of length 2 to 4
var keyWeights = [4]uint64{3, 5, 7, 11}

// HashStats counts table activity for diagnostics
type HashStats struct {
	Inserts    int
	Collisions int // inserts landing in a non-empty bucket
	Lookups    int
	Probes     int // chain entries visited by lookups
}

type incidence struct {
	sig  Signature
	occ  Occurrence
	next int32
}

// IncidenceTable is a short lived chained hash of sub-entity occurrences. It
// is filled in one pass, queried in a second and then dropped.
type IncidenceTable struct {
	sigLen  int
	heads   []int32
	entries []incidence
	stats   HashStats
}

// NewIncidenceTable allocates a table with capacity buckets for signatures of
// at most sigLen vertices
func NewIncidenceTable(capacity, sigLen int) (*IncidenceTable, error) {
	if capacity <= 0 {
		return nil, errors.Errorf("incidence table capacity must be positive, got %d", capacity)
	}
	if sigLen < 1 || sigLen > 4 {
		return nil, errors.Errorf("signature length must be in [1,4], got %d", sigLen)
	}
	t := &IncidenceTable{
		sigLen:  sigLen,
		heads:   make([]int32, capacity),
		entries: make([]incidence, 0, capacity),
	}
	for i := range t.heads {
		t.heads[i] = -1
	}
	return t, nil
}

func (t *IncidenceTable) key(sig Signature) int {
	if sig.N == 1 {
		return int(sig.V[0])
	}
	var sum uint64
	for i := 0; i < int(sig.N); i++ {
		sum += keyWeights[i] * uint64(uint32(sig.V[i]))
	}
	return int(sum % uint64(len(t.heads)))
}

// grow extends the bucket array so that direct keys up to k are addressable
func (t *IncidenceTable) grow(k int) {
	n := 2 * len(t.heads)
	for n <= k {
		n *= 2
	}
	heads := make([]int32, n)
	copy(heads, t.heads)
	for i := len(t.heads); i < n; i++ {
		heads[i] = -1
	}
	t.heads = heads
}

// Insert prepends an occurrence to the chain of its signature
func (t *IncidenceTable) Insert(sig Signature, occ Occurrence) error {
	if int(sig.N) > t.sigLen {
		return errors.Wrapf(ErrInvalidEntity, "signature %s longer than table length %d", sig, t.sigLen)
	}
	k := t.key(sig)
	if k < 0 {
		return errors.Wrapf(ErrInvalidEntity, "negative vertex index in signature %s", sig)
	}
	if k >= len(t.heads) {
		t.grow(k)
	}
	t.stats.Inserts++
	if t.heads[k] >= 0 {
		t.stats.Collisions++
	}
	t.entries = append(t.entries, incidence{sig: sig, occ: occ, next: t.heads[k]})
	t.heads[k] = int32(len(t.entries) - 1)
	return nil
}

// Lookup returns how many stored occurrences carry exactly this signature
func (t *IncidenceTable) Lookup(sig Signature) int {
	count := 0
	t.scan(sig, func(Occurrence) { count++ })
	return count
}

// Collect appends every occurrence matching sig to dst, most recent first
func (t *IncidenceTable) Collect(sig Signature, dst []Occurrence) []Occurrence {
	t.scan(sig, func(o Occurrence) { dst = append(dst, o) })
	return dst
}

// Codes returns the multiplicity of sig and appends the occurrence codes and
// owning kinds to the given slices
func (t *IncidenceTable) Codes(sig Signature, codes []int32, kinds []uint8) (int, []int32, []uint8) {
	count := 0
	t.scan(sig, func(o Occurrence) {
		count++
		codes = append(codes, o.Code())
		kinds = append(kinds, uint8(o.Kind))
	})
	return count, codes, kinds
}

func (t *IncidenceTable) scan(sig Signature, visit func(Occurrence)) {
	t.stats.Lookups++
	k := t.key(sig)
	if k < 0 || k >= len(t.heads) {
		return
	}
	for e := t.heads[k]; e >= 0; e = t.entries[e].next {
		t.stats.Probes++
		if t.entries[e].sig == sig {
			visit(t.entries[e].occ)
		}
	}
}

// Len returns the number of stored occurrences
func (t *IncidenceTable) Len() int { return len(t.entries) }

// Stats returns the activity counters
func (t *IncidenceTable) Stats() HashStats { return t.stats }

func (t *IncidenceTable) logStats(what string) {
	if klog.V(2).Enabled() {
		s := t.stats
		klog.Infof("%s hash: %d buckets, %d inserts, %d collisions, %d lookups, %d probes",
			what, len(t.heads), s.Inserts, s.Collisions, s.Lookups, s.Probes)
	}
}
