// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extract

import (
	"fmt"
	"sort"
	"strings"
)

// Range is a half-open byte range [Start, End).
type Range struct {
	Start int
	End   int
}

// Len returns the range length in bytes.
func (r Range) Len() int { return r.End - r.Start }

// Contains reports whether r fully contains other.
func (r Range) Contains(other Range) bool {
	return r.Start <= other.Start && other.End <= r.End
}

func (r Range) String() string {
	return fmt.Sprintf("[%d,%d)", r.Start, r.End)
}

// piece maps one derived (dst) interval onto one source (src) interval.
//
// A piece with equal lengths is a verbatim copy and maps offsets
// linearly. A piece with differing lengths came from a lossy rewrite
// (marker strip, unescape, inserted separator); offsets inside it can
// only be resolved to the whole source interval.
type piece struct {
	srcStart int
	srcEnd   int
	dstStart int
	dstEnd   int
}

func (p piece) srcLen() int  { return p.srcEnd - p.srcStart }
func (p piece) dstLen() int  { return p.dstEnd - p.dstStart }
func (p piece) isCopy() bool { return p.srcLen() == p.dstLen() }

// OffsetMap is a piecewise, monotonic, total mapping from a derived
// text back to the text it was produced from.
//
// Every derived offset resolves to exactly one source range: copy
// pieces resolve to a single position, rewritten pieces widen to the
// source interval that produced them. Maps compose, so a
// segment-relative offset can be translated through segment → block →
// original source in one call chain.
//
// OffsetMap is immutable after construction and safe for concurrent
// reads.
type OffsetMap struct {
	pieces []piece
	srcLen int
	dstLen int
}

// Identity returns a map translating a text of length n onto itself.
func Identity(n int) *OffsetMap {
	m := &OffsetMap{srcLen: n, dstLen: n}
	if n > 0 {
		m.pieces = []piece{{srcStart: 0, srcEnd: n, dstStart: 0, dstEnd: n}}
	}
	return m
}

// SrcLen returns the length of the source text the map covers.
func (m *OffsetMap) SrcLen() int { return m.srcLen }

// DstLen returns the length of the derived text the map covers.
func (m *OffsetMap) DstLen() int { return m.dstLen }

// ToSource translates a derived-relative range to a source range.
//
// Offsets inside copy pieces translate exactly. Offsets inside
// rewritten pieces, and ranges straddling a piece boundary where the
// lengths changed, widen to the smallest enclosing source range
// rather than failing. Out-of-bounds input clamps to the covered
// extent, keeping the map total.
func (m *OffsetMap) ToSource(r Range) Range {
	if len(m.pieces) == 0 {
		return Range{}
	}
	if r.End < r.Start {
		r.End = r.Start
	}
	start := m.sourceFloor(r.Start)
	end := m.sourceCeil(r.End)
	if end < start {
		end = start
	}
	return Range{Start: start, End: end}
}

// sourceFloor maps a derived offset to a source offset, rounding
// toward the start of the enclosing piece when exactness is lost.
func (m *OffsetMap) sourceFloor(off int) int {
	p, ok := m.pieceAt(off)
	if !ok {
		if off <= 0 {
			return m.pieces[0].srcStart
		}
		return m.pieces[len(m.pieces)-1].srcEnd
	}
	if p.isCopy() {
		return p.srcStart + (off - p.dstStart)
	}
	return p.srcStart
}

// sourceCeil maps a derived end offset (exclusive) to a source end
// offset, rounding toward the end of the enclosing piece when
// exactness is lost.
func (m *OffsetMap) sourceCeil(off int) int {
	if off <= 0 {
		return m.pieces[0].srcStart
	}
	// The exclusive end belongs to the piece containing off-1.
	p, ok := m.pieceAt(off - 1)
	if !ok {
		return m.pieces[len(m.pieces)-1].srcEnd
	}
	if p.isCopy() {
		return p.srcStart + (off - p.dstStart)
	}
	return p.srcEnd
}

// pieceAt returns the piece whose dst interval contains off. Pieces
// with an empty dst interval (pure deletions) are never returned.
func (m *OffsetMap) pieceAt(off int) (piece, bool) {
	i := sort.Search(len(m.pieces), func(i int) bool {
		return m.pieces[i].dstEnd > off
	})
	for i < len(m.pieces) {
		p := m.pieces[i]
		if p.dstLen() == 0 {
			i++
			continue
		}
		if off >= p.dstStart && off < p.dstEnd {
			return p, true
		}
		return piece{}, false
	}
	return piece{}, false
}

// Compose chains a second map onto this one. If m translates B → A
// and inner translates C → B, the result translates C → A.
//
// Composition preserves monotonicity and totality: copy pieces of the
// inner map are split against the outer map's piece boundaries so no
// exactness is lost where both maps are exact.
func (m *OffsetMap) Compose(inner *OffsetMap) *OffsetMap {
	out := &OffsetMap{srcLen: m.srcLen, dstLen: inner.dstLen}
	for _, ip := range inner.pieces {
		if ip.dstLen() == 0 {
			continue
		}
		if !ip.isCopy() {
			src := m.ToSource(Range{Start: ip.srcStart, End: ip.srcEnd})
			out.pieces = append(out.pieces, piece{
				srcStart: src.Start,
				srcEnd:   src.End,
				dstStart: ip.dstStart,
				dstEnd:   ip.dstEnd,
			})
			continue
		}
		// Copy piece: walk the outer pieces it overlaps, emitting one
		// result piece per overlap so exact spans stay exact.
		remaining := Range{Start: ip.srcStart, End: ip.srcEnd}
		dst := ip.dstStart
		for _, op := range m.pieces {
			if op.dstEnd <= remaining.Start || op.dstStart >= remaining.End {
				continue
			}
			lo := max(remaining.Start, op.dstStart)
			hi := min(remaining.End, op.dstEnd)
			n := hi - lo
			dstStart := dst + (lo - remaining.Start)
			if op.isCopy() {
				srcLo := op.srcStart + (lo - op.dstStart)
				out.pieces = append(out.pieces, piece{
					srcStart: srcLo,
					srcEnd:   srcLo + n,
					dstStart: dstStart,
					dstEnd:   dstStart + n,
				})
			} else {
				out.pieces = append(out.pieces, piece{
					srcStart: op.srcStart,
					srcEnd:   op.srcEnd,
					dstStart: dstStart,
					dstEnd:   dstStart + n,
				})
			}
		}
	}
	return out
}

func (m *OffsetMap) String() string {
	var b strings.Builder
	for i, p := range m.pieces {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%d:%d->%d:%d", p.dstStart, p.dstEnd, p.srcStart, p.srcEnd)
	}
	return b.String()
}

// MapBuilder assembles an OffsetMap piece by piece while the derived
// text is being produced. The builder keeps a cursor in both texts;
// Keep/Replace/Insert advance them in step.
type MapBuilder struct {
	pieces []piece
	srcPos int
	dstPos int
}

// NewMapBuilder returns a builder with both cursors at the given
// starting offsets.
func NewMapBuilder(srcBase, dstBase int) *MapBuilder {
	return &MapBuilder{srcPos: srcBase, dstPos: dstBase}
}

// Keep records n bytes copied verbatim.
func (b *MapBuilder) Keep(n int) {
	if n <= 0 {
		return
	}
	b.pieces = append(b.pieces, piece{
		srcStart: b.srcPos, srcEnd: b.srcPos + n,
		dstStart: b.dstPos, dstEnd: b.dstPos + n,
	})
	b.srcPos += n
	b.dstPos += n
}

// Replace records srcLen source bytes rewritten into dstLen derived
// bytes. Either length may be zero.
func (b *MapBuilder) Replace(srcLen, dstLen int) {
	if srcLen <= 0 && dstLen <= 0 {
		return
	}
	b.pieces = append(b.pieces, piece{
		srcStart: b.srcPos, srcEnd: b.srcPos + srcLen,
		dstStart: b.dstPos, dstEnd: b.dstPos + dstLen,
	})
	b.srcPos += srcLen
	b.dstPos += dstLen
}

// Insert records dstLen derived bytes with no source counterpart,
// anchored at the current source position (e.g. a synthesized line
// separator between merged captures).
func (b *MapBuilder) Insert(dstLen int) {
	b.Replace(0, dstLen)
}

// Append lifts another map into this one, offsetting its source side
// by srcBase and aligning its derived side at the current cursor.
// Used to concatenate per-capture maps into a block map.
func (b *MapBuilder) Append(m *OffsetMap, srcBase int) {
	for _, p := range m.pieces {
		b.pieces = append(b.pieces, piece{
			srcStart: srcBase + p.srcStart,
			srcEnd:   srcBase + p.srcEnd,
			dstStart: b.dstPos + p.dstStart,
			dstEnd:   b.dstPos + p.dstEnd,
		})
	}
	b.srcPos = srcBase + m.srcLen
	b.dstPos += m.dstLen
}

// Build finalizes the map. The builder must not be reused afterwards.
func (b *MapBuilder) Build() *OffsetMap {
	m := &OffsetMap{pieces: b.pieces}
	if len(b.pieces) > 0 {
		first := b.pieces[0]
		last := b.pieces[len(b.pieces)-1]
		m.srcLen = last.srcEnd - first.srcStart
		m.dstLen = last.dstEnd - first.dstStart
	}
	return m
}
