// Package regions models the source machine's data regions (heap,
// calldata, returndata, immutables, storage) and fixes the layout
// strategy each gets on the target machine. Layout descriptors are
// initialized once per compilation unit and shared read-only after that.
package regions

import (
	"fmt"
)

type Region int

const (
	Heap Region = iota
	CallData
	ReturnData
	Immutables
	Storage
)

func (r Region) String() string {
	switch r {
	case Heap:
		return "heap"
	case CallData:
		return "calldata"
	case ReturnData:
		return "returndata"
	case Immutables:
		return "immutables"
	case Storage:
		return "storage"
	default:
		return fmt.Sprintf("region(%d)", int(r))
	}
}

// Policy fixes how one region is addressed on the target machine.
type Policy struct {
	Region Region
	// Writable is false for calldata and the code region; immutables are
	// write-once and only writable in deploy code.
	Writable bool
	// WriteOnce marks the deploy-time-populated immutable region.
	WriteOnce bool
	// ZeroOnOOB: out-of-bounds reads yield zero bytes, never a fault.
	ZeroOnOOB bool
}

// HeapInitialOffset is where the bump allocator starts. The first 128
// bytes mirror the source machine's scratch space and free-pointer slots.
const HeapInitialOffset = 0x80

// Layout is the per-unit set of region descriptors plus the immutable
// table. It must not be mutated after the code generator starts walking
// the unit; the allocator methods are only legal before emission
// finishes for deploy code.
type Layout struct {
	policies   map[Region]Policy
	heapOffset uint64

	immutableIndex map[string]int
	immutableNames []string
	immutableSet   map[string]bool
}

func NewLayout() *Layout {
	return &Layout{
		policies: map[Region]Policy{
			Heap:       {Region: Heap, Writable: true},
			CallData:   {Region: CallData, ZeroOnOOB: true},
			ReturnData: {Region: ReturnData, ZeroOnOOB: true},
			Immutables: {Region: Immutables, Writable: true, WriteOnce: true},
			Storage:    {Region: Storage, Writable: true},
		},
		heapOffset:     HeapInitialOffset,
		immutableIndex: make(map[string]int),
		immutableSet:   make(map[string]bool),
	}
}

// PolicyOf returns the read-only policy of a region.
func (l *Layout) PolicyOf(r Region) Policy {
	return l.policies[r]
}

// HeapOffset returns the top of the statically reserved heap prefix.
// Emission introduces no compiler temporaries, so this is where the
// translated code's own allocations begin.
func (l *Layout) HeapOffset() uint64 {
	return l.heapOffset
}

// ImmutableIndex returns the table slot of the named immutable,
// allocating one on first use. Slots are assigned in first-reference
// order, so repeated compilation of the same unit yields the same table.
func (l *Layout) ImmutableIndex(name string) int {
	if idx, ok := l.immutableIndex[name]; ok {
		return idx
	}
	idx := len(l.immutableNames)
	l.immutableIndex[name] = idx
	l.immutableNames = append(l.immutableNames, name)
	return idx
}

// RecordImmutableWrite marks the named immutable as populated by deploy
// code.
func (l *Layout) RecordImmutableWrite(name string) {
	l.ImmutableIndex(name)
	l.immutableSet[name] = true
}

// ImmutableCount is the exact number of declared immutables. The table
// is never padded with spurious zero entries beyond this count.
func (l *Layout) ImmutableCount() int {
	return len(l.immutableNames)
}

// ImmutableNames returns the declaration-ordered immutable names.
func (l *Layout) ImmutableNames() []string {
	return l.immutableNames
}

// CheckImmutables verifies that deploy code populated every referenced
// immutable. A mismatch between the declared and populated counts is an
// internal invariant failure, never silently corrected.
func (l *Layout) CheckImmutables() error {
	for _, name := range l.immutableNames {
		if !l.immutableSet[name] {
			return fmt.Errorf("immutable %q referenced but never populated: table would hold %d entries for %d declarations",
				name, len(l.immutableSet), len(l.immutableNames))
		}
	}
	return nil
}

// Manifest is handed to the serializer alongside the generated module.
type Manifest struct {
	TableVersion        string   `json:"tableVersion"`
	ImmutableCount      int      `json:"immutableCount"`
	HeapOffset          uint64   `json:"heapOffset"`
	FactoryDependencies []string `json:"factoryDependencies,omitempty"`
}
