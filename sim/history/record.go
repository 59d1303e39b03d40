// Package history implements the per-message "who has already seen this"
// records used to suppress redundant forwarding.
//
// There are exactly three strategies: None (no record, plain flooding), Bitset
// (exact) and Bloom (probabilistic, may report false positives, never false
// negatives). A Bloom false positive makes a node skip a neighbor that has not
// actually seen the message; this under-forwarding is part of the measured
// behavior and is left as is.
package history

import (
	"encoding/binary"
	"fmt"

	"github.com/bits-and-blooms/bitset"
	"github.com/bits-and-blooms/bloom/v3"
)

// Key identifies a message.
type Key struct {
	Originator int
	Sequence   int
}

func (k Key) String() string { return fmt.Sprintf("%d/%d", k.Originator, k.Sequence) }

// Record is the set of nodes known to hold a message. Implementations are
// BitsetRecord and BloomRecord; the None strategy uses a nil Record.
type Record interface {
	Add(node int)
	Contains(node int) bool
	// Merge unions other into the receiver. Both must be the same kind.
	Merge(other Record)
	Clone() Record
	record()
}

// BitsetRecord is an exact record.
type BitsetRecord struct {
	bits *bitset.BitSet
}

func newBitsetRecord(size int) *BitsetRecord {
	return &BitsetRecord{bits: bitset.New(uint(size))}
}

func (r *BitsetRecord) Add(node int)           { r.bits.Set(uint(node)) }
func (r *BitsetRecord) Contains(node int) bool { return r.bits.Test(uint(node)) }

func (r *BitsetRecord) Merge(other Record) {
	o, ok := other.(*BitsetRecord)
	if !ok {
		panic(fmt.Sprintf("BitsetRecord.Merge: cannot merge %T", other))
	}
	r.bits.InPlaceUnion(o.bits)
}

func (r *BitsetRecord) Clone() Record { return &BitsetRecord{bits: r.bits.Clone()} }

// Count returns the number of nodes in the record.
func (r *BitsetRecord) Count() int { return int(r.bits.Count()) }

func (*BitsetRecord) record() {}

// BloomRecord is a probabilistic record.
type BloomRecord struct {
	filter *bloom.BloomFilter
}

func newBloomRecord(expected int, fp float64) *BloomRecord {
	return &BloomRecord{filter: bloom.NewWithEstimates(uint(expected), fp)}
}

func nodeKey(node int) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(node))
	return b[:]
}

func (r *BloomRecord) Add(node int)           { r.filter.Add(nodeKey(node)) }
func (r *BloomRecord) Contains(node int) bool { return r.filter.Test(nodeKey(node)) }

// Merge panics if the filters were sized differently.
func (r *BloomRecord) Merge(other Record) {
	o, ok := other.(*BloomRecord)
	if !ok {
		panic(fmt.Sprintf("BloomRecord.Merge: cannot merge %T", other))
	}
	if err := r.filter.Merge(o.filter); err != nil {
		panic(fmt.Sprintf("BloomRecord.Merge: %v", err))
	}
}

func (r *BloomRecord) Clone() Record { return &BloomRecord{filter: r.filter.Copy()} }

// Bits returns the filter size in bits.
func (r *BloomRecord) Bits() uint { return r.filter.Cap() }

func (*BloomRecord) record() {}
