// Package blueprint computes content-addressed digests for tests and test-sets.
//
// A TestBlueprint is identified by the digest of its title; a
// TestRunBlueprint is identified by the digest of its sorted member ids.
// Both derivations (TitleID and SetID) go through the same internal 64-bit
// SHAKE256 digest and produce the same ID type; SortIDs exposes the
// canonical member ordering SetID hashes over.
package blueprint

import (
	"bytes"
	"encoding/binary"
	"sort"

	"golang.org/x/crypto/sha3"
)

// digestSize is the truncated SHAKE256 output length in bytes: 64 bits.
const digestSize = 8

// ID is a 64-bit content-addressed blueprint identifier: the big-endian
// bytes of a truncated SHAKE256 digest, interpreted as a signed integer for
// storage (spec invariant: digest integrity).
type ID int64

// TitleID returns the TestBlueprint id for a test title: H(UTF-8 bytes of title).
func TitleID(title string) ID {
	return hashToID([]byte(title))
}

// SetID returns the TestRunBlueprint id for a set of member ids: the digest
// of the member ids concatenated in canonical sort order.
//
// A copy of members is sorted (ascending, unsigned lexicographic byte order
// of each id's big-endian encoding — see Bytes) before hashing; members
// itself is left unmodified. The caller receives the sorted copy back so it
// can be persisted as
// TestRunBlueprint.members without re-deriving the order. Duplicate ids are
// preserved: duplicate titles within a run are permitted (spec.md §9) and
// their multiplicity is part of the digest input.
func SetID(members []ID) (ID, []ID) {
	sorted := make([]ID, len(members))
	copy(sorted, members)
	SortIDs(sorted)

	buf := make([]byte, 0, len(sorted)*digestSize)
	for _, m := range sorted {
		buf = append(buf, m.Bytes()...)
	}

	return hashToID(buf), sorted
}

// SortIDs sorts ids ascending by unsigned lexicographic order of their
// big-endian byte encoding — not by their signed numeric value. The two
// orderings diverge once the high bit (sign bit) is set, so this must not be
// replaced with a plain numeric sort.Slice on the int64 values.
func SortIDs(ids []ID) {
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i].Bytes(), ids[j].Bytes()) < 0
	})
}

// Bytes returns the big-endian byte encoding of the id, matching the
// convention used to derive it from the SHAKE256 digest.
func (id ID) Bytes() []byte {
	var buf [digestSize]byte
	binary.BigEndian.PutUint64(buf[:], uint64(id))

	return buf[:]
}

// hashToID runs SHAKE256 over input and truncates the XOF output to 8 bytes,
// reading it as a big-endian signed integer.
func hashToID(input []byte) ID {
	h := sha3.NewShake256()
	h.Write(input)

	var out [digestSize]byte

	h.Read(out[:])

	return ID(binary.BigEndian.Uint64(out[:]))
}
