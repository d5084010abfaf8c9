package raffle

import (
	"maps"
	"slices"
)

// UniqueNumberAllocator hands out distinct ticket numbers from [1, max].
//
// It runs a partial Fisher-Yates shuffle over a virtual array of [1, size]:
// positions [0, used) are held, the rest are free, and a draw swaps a random
// free position to the boundary. Only positions that differ from the identity
// layout are stored, so memory follows the number of draws rather than the pool
// size, each draw costs O(1), and exhaustion is a length check.
//
// Numbers held above the current size (reserved beyond it, or left behind by a
// shrinking pool) live in a side set until released or back in range.
//
// The allocator is owned by a single editing session and is not safe for
// concurrent use on its own.
type UniqueNumberAllocator struct {
	rng  RandomSource
	size int
	used int

	at    map[int]int // position -> value, where value != position+1
	pos   map[int]int // value -> position, where position != value-1
	extra map[int]struct{}
}

// NewUniqueNumberAllocator creates an empty allocator drawing from rng.
// A nil rng falls back to crypto/rand.
func NewUniqueNumberAllocator(rng RandomSource) *UniqueNumberAllocator {
	if rng == nil {
		rng = NewSecureRandomGenerator()
	}
	a := &UniqueNumberAllocator{rng: rng}
	a.Clear()
	return a
}

// Allocate returns a uniformly random unused number in [1, max].
// It returns ErrPoolExhausted when every number in range is already held.
func (a *UniqueNumberAllocator) Allocate(max int) (int, error) {
	if err := ValidatePoolSize(max); err != nil {
		return 0, err
	}

	a.resize(max)
	if a.used >= a.size {
		return 0, ErrPoolExhausted
	}

	j, err := a.rng.GenerateInRange(a.used, a.size-1)
	if err != nil {
		return 0, err
	}

	a.swap(a.used, j)
	a.used++
	return a.valueAt(a.used - 1), nil
}

// Release returns n to the free set. Numbers not currently held are ignored.
func (a *UniqueNumberAllocator) Release(n int) bool {
	if _, ok := a.extra[n]; ok {
		delete(a.extra, n)
		return true
	}
	if n < 1 || n > a.size {
		return false
	}

	p := a.indexOf(n)
	if p >= a.used {
		return false
	}

	a.used--
	a.swap(p, a.used)
	return true
}

// Reserve marks n as held without drawing it. It reports false if n is
// invalid or already held.
func (a *UniqueNumberAllocator) Reserve(n int) bool {
	if n < 1 || a.Held(n) {
		return false
	}
	if n > a.size {
		a.extra[n] = struct{}{}
		return true
	}

	a.swap(a.indexOf(n), a.used)
	a.used++
	return true
}

// Clear empties the used set entirely
func (a *UniqueNumberAllocator) Clear() {
	a.size = 0
	a.used = 0
	a.at = make(map[int]int)
	a.pos = make(map[int]int)
	a.extra = make(map[int]struct{})
}

// Held reports whether n is currently held
func (a *UniqueNumberAllocator) Held(n int) bool {
	if _, ok := a.extra[n]; ok {
		return true
	}
	return n >= 1 && n <= a.size && a.indexOf(n) < a.used
}

// Used returns how many numbers are held
func (a *UniqueNumberAllocator) Used() int { return a.used + len(a.extra) }

// Available returns how many numbers in [1, max] could still be allocated
func (a *UniqueNumberAllocator) Available(max int) int {
	if max <= 0 {
		return 0
	}

	held := 0
	for _, v := range a.HeldNumbers() {
		if v <= max {
			held++
		}
	}
	return max - held
}

// HeldNumbers returns the held numbers in ascending order
func (a *UniqueNumberAllocator) HeldNumbers() []int {
	held := make([]int, 0, a.Used())
	for i := range a.used {
		held = append(held, a.valueAt(i))
	}
	held = append(held, slices.Collect(maps.Keys(a.extra))...)
	slices.Sort(held)
	return held
}

// resize makes positions [0, max) hold exactly the numbers [1, max]
func (a *UniqueNumberAllocator) resize(max int) {
	switch {
	case max > a.size:
		a.size = max
		for v := range a.extra {
			if v > max {
				continue
			}
			delete(a.extra, v)
			a.swap(a.indexOf(v), a.used)
			a.used++
		}
	case max < a.size:
		a.shrink(max)
	}
}

func (a *UniqueNumberAllocator) shrink(max int) {
	// held numbers above max leave the virtual array
	for i := 0; i < a.used; {
		if v := a.valueAt(i); v > max {
			a.extra[v] = struct{}{}
			a.used--
			a.swap(i, a.used)
			continue
		}
		i++
	}

	// numbers <= max stranded at positions >= max trade places with
	// numbers > max sitting at positions < max
	var stranded, intruders []int
	for v, p := range a.pos {
		if v <= max && p >= max {
			stranded = append(stranded, p)
		}
	}
	for p, v := range a.at {
		if p < max && v > max {
			intruders = append(intruders, p)
		}
	}
	for k := range stranded {
		a.swap(stranded[k], intruders[k])
	}

	for p, v := range a.at {
		if p >= max {
			delete(a.at, p)
			delete(a.pos, v)
		}
	}
	a.size = max
}

func (a *UniqueNumberAllocator) valueAt(p int) int {
	if v, ok := a.at[p]; ok {
		return v
	}
	return p + 1
}

func (a *UniqueNumberAllocator) indexOf(v int) int {
	if p, ok := a.pos[v]; ok {
		return p
	}
	return v - 1
}

func (a *UniqueNumberAllocator) swap(i, j int) {
	if i == j {
		return
	}
	vi, vj := a.valueAt(i), a.valueAt(j)
	a.place(i, vj)
	a.place(j, vi)
}

func (a *UniqueNumberAllocator) place(p, v int) {
	if v == p+1 {
		delete(a.at, p)
		delete(a.pos, v)
		return
	}
	a.at[p] = v
	a.pos[v] = p
}
