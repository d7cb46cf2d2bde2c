package evmla

import (
	"github.com/ethereum/go-ethereum/core/vm"

	"github.com/w2k-star-forks/zksync-compiler-solidity/diag"
)

// BasicBlock is an ordered run of instructions with a single entry.
// Blocks are arena-allocated by the Graph that owns them and referenced by
// index everywhere else.
type BasicBlock struct {
	Index int
	// Tag is the label this block starts at, or "" for the entry block
	// and for fall-through continuation blocks.
	Tag    string
	Instrs []Instruction
	// Successors are block indices. Populated by BuildGraph.
	Successors []int
	// Predecessors are block indices. Populated by BuildGraph.
	Predecessors []int
}

// Terminator returns the final instruction of the block, or false for a
// block that falls through without one.
func (b *BasicBlock) Terminator() (Instruction, bool) {
	if len(b.Instrs) == 0 {
		return Instruction{}, false
	}
	last := b.Instrs[len(b.Instrs)-1]
	if !last.IsTerminator() {
		return Instruction{}, false
	}
	return last, true
}

// Graph is the control-flow graph of one code section of one compilation
// unit. The unit that created it exclusively owns it.
type Graph struct {
	Blocks []*BasicBlock
	// Entry is always block 0.
	Entry int

	tagIndex map[string]int
}

// BlockByTag returns the index of the block labelled tag, or -1.
func (g *Graph) BlockByTag(tag string) int {
	if i, ok := g.tagIndex[tag]; ok {
		return i
	}
	return -1
}

// BuildGraph splits an instruction listing into basic blocks and links
// jump and fall-through edges. Jump targets are resolved from the nearest
// preceding label push in the same block, the pattern the legacy
// assembler emits; a jump whose target cannot be resolved statically is
// conservatively linked to every labelled block.
func BuildGraph(instrs []Instruction, sink *diag.Sink) *Graph {
	g := &Graph{tagIndex: make(map[string]int)}

	label := func(b *BasicBlock, tag string) {
		b.Tag = tag
		if _, dup := g.tagIndex[tag]; dup {
			sink.Errorf(diag.CodeMalformedInput, diag.SourceLocation{},
				"duplicate tag %q in assembly listing", tag)
		}
		g.tagIndex[tag] = b.Index
	}

	split := func(tag string) *BasicBlock {
		b := &BasicBlock{Index: len(g.Blocks)}
		g.Blocks = append(g.Blocks, b)
		if tag != "" {
			label(b, tag)
		}
		return b
	}

	cur := split("")
	for _, in := range instrs {
		if in.Kind == KindTag {
			// A label begins a new block; the empty unlabelled block a
			// preceding terminator left behind is reused, not kept.
			if len(cur.Instrs) == 0 && cur.Tag == "" {
				label(cur, in.Value)
			} else {
				cur = split(in.Value)
			}
			continue
		}
		cur.Instrs = append(cur.Instrs, in)
		if in.IsTerminator() {
			cur = split("")
		}
	}

	// Drop a trailing empty unlabelled block left by a terminator at the
	// very end of the listing.
	if last := g.Blocks[len(g.Blocks)-1]; last.Tag == "" && len(last.Instrs) == 0 && last.Index != 0 {
		g.Blocks = g.Blocks[:len(g.Blocks)-1]
	}

	g.link(sink)
	return g
}

func (g *Graph) link(sink *diag.Sink) {
	for _, b := range g.Blocks {
		term, ok := b.Terminator()
		if !ok {
			// Fall through into the next block, if any.
			if b.Index+1 < len(g.Blocks) {
				g.addEdge(b.Index, b.Index+1)
			}
			continue
		}
		switch {
		case term.Op == vm.JUMP:
			g.linkJump(b, sink)
		case term.Op == vm.JUMPI:
			g.linkJump(b, sink)
			if b.Index+1 < len(g.Blocks) {
				g.addEdge(b.Index, b.Index+1)
			}
		default:
			// Exit instruction: no successors.
		}
	}
}

// linkJump resolves the jump target of b from its last label push.
func (g *Graph) linkJump(b *BasicBlock, sink *diag.Sink) {
	for i := len(b.Instrs) - 2; i >= 0; i-- {
		if b.Instrs[i].Kind == KindPushTag {
			target := g.BlockByTag(b.Instrs[i].Value)
			if target < 0 {
				sink.Errorf(diag.CodeMalformedInput, b.Instrs[i].Location,
					"jump to undefined tag %q", b.Instrs[i].Value)
				return
			}
			g.addEdge(b.Index, target)
			return
		}
	}
	// Dynamic jump: every labelled block is a potential target.
	for _, t := range g.Blocks {
		if t.Tag != "" {
			g.addEdge(b.Index, t.Index)
		}
	}
}

func (g *Graph) addEdge(from, to int) {
	for _, s := range g.Blocks[from].Successors {
		if s == to {
			return
		}
	}
	g.Blocks[from].Successors = append(g.Blocks[from].Successors, to)
	g.Blocks[to].Predecessors = append(g.Blocks[to].Predecessors, from)
}
