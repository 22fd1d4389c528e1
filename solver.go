// solver.go - the random-graph / linear-system solver: per-bucket
// construction of an r-regular hypergraph, peeling, and a lazy Gaussian
// elimination fallback over the residual 2-core. See spec.md §4.3.
//
// (c) Sudhi Herle 2018
//
// License GPLv2
//
// If you need a commercial license for this work, please contact
// the author.
//
// This software does not come with any express or implied
// warranty; it is provided "as is". No claim  is made to its
// suitability for any purpose.

package mph

import (
	"sort"
)

// Degree selects the arity of the hypergraph used by the solver: 3
// (faster, more space) or 4 (denser, less space). See spec.md §2/§4.3.
type Degree int

const (
	Degree3 Degree = 3
	Degree4 Degree = 4
)

// cFactor returns the variable-count expansion factor C for a degree.
func (d Degree) cFactor() float64 {
	if d == Degree4 {
		return 1.03
	}
	return 1.10
}

// maxSolverAttempts bounds the seed-step retry loop. Capped at 256 so
// the attempt count fits the 8-bit "local seed" field of
// offset_and_seed (spec.md §3); per spec.md §4.3 expected attempts -> 1
// as bucket size grows, so this is generous in practice.
const maxSolverAttempts = 256

// seedStep is the fixed large increment applied to the local seed
// between solver retries (keeps bucket-local seeds distinct).
const seedStep = 0x9E3779B97F4A7C15

// SolvedBucket is the output of solveBucket: a per-bucket linear-system
// solution ready for bit-packing into the global data array.
type SolvedBucket struct {
	NumVars uint64
	Width   uint
	Cells   []uint64 // length NumVars, each < 1<<Width

	// Attempt is the 0-255 retry count that found a solution; the
	// global offset_and_seed table stores this single byte (spec.md §3
	// "top 8 bits hold the bucket-local seed chosen during solve") and
	// the actual local seed is re-derived at query time as
	// bucketBaseSeed(globalSeed, bucketIndex) + Attempt*seedStep.
	Attempt byte
}

// bucketBaseSeed derives a bucket's starting local seed from the
// build-wide global seed and the bucket's ordinal index, so that only a
// single retry-attempt byte needs to be persisted per bucket.
func bucketBaseSeed(globalSeed, bucketIndex uint64) uint64 {
	return mix(globalSeed ^ mix(bucketIndex+1))
}

// solveBucket runs peeling followed by lazy Gaussian elimination for one
// bucket, retrying with a stepped local seed on failure. 'width' is the
// bit-width of each stored value (spec.md §3 "Solution").
func solveBucket(b *Bucket, degree Degree, width uint, globalSeed uint64) (*SolvedBucket, error) {
	m := b.Size
	base := bucketBaseSeed(globalSeed, b.Index)

	if m == 0 {
		// Edge case (spec.md §4.3): a single padding row keeps the
		// global data layout uniform.
		return &SolvedBucket{NumVars: 1, Width: width, Cells: []uint64{0}, Attempt: 0}, nil
	}

	nvars := numVars(degree, m)
	// Same arity rule as Function.Find: a bucket with fewer variables
	// than the degree uses one variable per partition.
	r := min(int(degree), int(nvars))

	mask := widthMask(width)
	for _, v := range b.Values[:m] {
		if v > mask {
			return nil, ErrInvalidValueWidth
		}
	}

	for attempt := 0; attempt < maxSolverAttempts; attempt++ {
		seed := base + uint64(attempt)*seedStep
		cells, ok := trySolve(b, r, nvars, width, seed)
		if ok {
			return &SolvedBucket{NumVars: nvars, Width: width, Cells: cells, Attempt: byte(attempt)}, nil
		}
	}

	return nil, &UnsolvableError{Bucket: b.Index, Seed: base}
}

// numVars computes ceil(C*size), never less than size+1.
func numVars(degree Degree, size int) uint64 {
	n := uint64(float64(size)*degree.cFactor() + 0.999999)
	if n < uint64(size+1) {
		n = uint64(size + 1)
	}
	return n
}

type hyperedge struct {
	vars  [4]uint64
	value uint64
}

// trySolve builds the hypergraph for one (bucket, local seed) pair and
// attempts peeling + lazy Gaussian elimination.
func trySolve(b *Bucket, r int, nvars uint64, width uint, seed uint64) ([]uint64, bool) {
	m := b.Size
	edges := make([]hyperedge, m)
	for i := 0; i < m; i++ {
		var h uint64
		if b.SigWords == 3 {
			h = rehash3(b.AsSig3(i), seed)
		} else {
			h = rehash(b.AsSig2(i), seed)
		}
		vars := edgeVars(h, r, nvars)
		var e hyperedge
		for j, v := range vars {
			e.vars[j] = v
		}
		e.value = b.Values[i] & widthMask(width)
		edges[i] = e
	}

	cells := make([]uint64, nvars)
	peeledOrder, peeledMask, ok := peel(edges, r, nvars)
	if !ok {
		// residual 2-core: collect the un-peeled edges
		var residual []int
		for i := 0; i < m; i++ {
			if !peeledMask[i] {
				residual = append(residual, i)
			}
		}
		solved, ok := lazyGaussianEliminate(edges, residual, r)
		if !ok {
			return nil, false
		}
		for v, val := range solved {
			cells[v] = val
		}
	}

	backSubstitute(edges, peeledOrder, r, cells)
	return cells, true
}

type peelStep struct {
	edge  int
	hinge uint64
}

// peel performs the classic hypergraph peeling: repeatedly remove
// degree-1 vertices, recording (edge, hinge) on a stack. Returns the
// peel order, a mask of which edges were peeled, and whether peeling was
// complete (true) or left a non-empty 2-core (false).
func peel(edges []hyperedge, r int, nvars uint64) ([]peelStep, []bool, bool) {
	m := len(edges)

	deg := make([]int32, nvars)
	// incidence lists via counting sort (CSR): offsets + flat edge ids
	for _, e := range edges {
		for j := 0; j < r; j++ {
			deg[e.vars[j]]++
		}
	}

	offsets := make([]int32, nvars+1)
	for v := uint64(0); v < nvars; v++ {
		offsets[v+1] = offsets[v] + deg[v]
	}
	flat := make([]int32, offsets[nvars])
	cursor := make([]int32, nvars)
	copy(cursor, offsets[:nvars])
	for i, e := range edges {
		for j := 0; j < r; j++ {
			v := e.vars[j]
			flat[cursor[v]] = int32(i)
			cursor[v]++
		}
	}

	peeledEdge := make([]bool, m)
	queue := make([]uint64, 0, nvars)
	for v := uint64(0); v < nvars; v++ {
		if deg[v] == 1 {
			queue = append(queue, v)
		}
	}

	order := make([]peelStep, 0, m)

	for len(queue) > 0 {
		v := queue[len(queue)-1]
		queue = queue[:len(queue)-1]

		if deg[v] != 1 {
			continue
		}

		var found int32 = -1
		for k := offsets[v]; k < offsets[v+1]; k++ {
			eIdx := flat[k]
			if !peeledEdge[eIdx] {
				found = eIdx
				break
			}
		}
		if found == -1 {
			continue
		}

		peeledEdge[found] = true
		order = append(order, peelStep{edge: int(found), hinge: v})
		deg[v] = 0

		e := edges[found]
		for j := 0; j < r; j++ {
			u := e.vars[j]
			if u == v {
				continue
			}
			if deg[u] > 0 {
				deg[u]--
				if deg[u] == 1 {
					queue = append(queue, u)
				}
			}
		}
	}

	return order, peeledEdge, len(order) == m
}

// backSubstitute walks the peel stack in reverse, assigning
// cells[hinge] = value[edge] XOR cells[other vars in edge].
func backSubstitute(edges []hyperedge, order []peelStep, r int, cells []uint64) {
	for i := len(order) - 1; i >= 0; i-- {
		step := order[i]
		e := edges[step.edge]
		v := e.value
		for j := 0; j < r; j++ {
			if e.vars[j] != step.hinge {
				v ^= cells[e.vars[j]]
			}
		}
		cells[step.hinge] = v
	}
}

// gaussRow is one equation of the residual 2-core: a set of variable
// indices (all coefficients are implicitly 1 over GF(2)) and a known
// term.
type gaussRow struct {
	vars  map[uint64]struct{}
	value uint64
}

func newGaussRow(e hyperedge, r int) *gaussRow {
	row := &gaussRow{vars: make(map[uint64]struct{}, r), value: e.value}
	for j := 0; j < r; j++ {
		row.vars[e.vars[j]] = struct{}{}
	}
	return row
}

// xorInto merges 'b' into 'a' via symmetric difference of variable sets
// and XOR of values -- the GF(2) row-addition operation.
func xorInto(a, b *gaussRow) {
	for v := range b.vars {
		if _, ok := a.vars[v]; ok {
			delete(a.vars, v)
		} else {
			a.vars[v] = struct{}{}
		}
	}
	a.value ^= b.value
}

func (row *gaussRow) anyVar() (uint64, bool) {
	for v := range row.vars {
		return v, true
	}
	return 0, false
}

// lazyGaussianEliminate solves the residual 2-core left after peeling.
// Rows are processed once in ascending-weight order (a practical
// approximation of the adaptive minimum-fill-in heuristic in spec.md
// §4.3: exact re-sorting after every elimination step isn't worth the
// extra bookkeeping at the bucket sizes this solver targets) and
// resolved via reverse-order back-substitution over the pivots created.
func lazyGaussianEliminate(edges []hyperedge, residual []int, r int) (map[uint64]uint64, bool) {
	rows := make([]*gaussRow, len(residual))
	for i, idx := range residual {
		rows[i] = newGaussRow(edges[idx], r)
	}
	sort.Slice(rows, func(i, j int) bool { return len(rows[i].vars) < len(rows[j].vars) })

	pivotRow := make(map[uint64]*gaussRow)
	var pivotOrder []uint64

	for _, row := range rows {
		for {
			changed := false
			for v := range row.vars {
				if pr, ok := pivotRow[v]; ok {
					xorInto(row, pr)
					changed = true
					break
				}
			}
			if !changed {
				break
			}
		}

		if len(row.vars) == 0 {
			if row.value != 0 {
				return nil, false
			}
			continue
		}

		p, _ := row.anyVar()
		pivotRow[p] = row
		pivotOrder = append(pivotOrder, p)
	}

	solution := make(map[uint64]uint64, len(pivotOrder))
	for i := len(pivotOrder) - 1; i >= 0; i-- {
		p := pivotOrder[i]
		row := pivotRow[p]
		v := row.value
		for other := range row.vars {
			if other == p {
				continue
			}
			v ^= solution[other] // defaults to 0 for free variables
		}
		solution[p] = v
	}

	return solution, true
}

func widthMask(width uint) uint64 {
	if width >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << width) - 1
}
