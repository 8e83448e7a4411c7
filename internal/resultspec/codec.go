// Package resultspec implements the compact, variant-tagged binary encoding
// of a test run's pass/fail outcomes (spec.md §4.2).
//
// The encoding exploits the near-universal pass rate of CI runs: it
// enumerates whichever outcome (pass or fail) is in the minority, and
// represents an all-pass run as the SQL NULL sentinel rather than any bytes
// at all.
package resultspec

import (
	"errors"
	"fmt"

	"github.com/ventifact/ventifact/internal/blueprint"
)

const (
	variantFailuresEnumerated byte = 0x00
	variantPassesEnumerated   byte = 0x01

	idSize     = 8 // bytes per encoded blueprint.ID
	headerSize = 1 // variant tag byte
)

// ErrCorrupt is returned by Decode when payload's length is not of the form
// 1 + 8k. Per spec.md §7 this is the CorruptPayload error kind; callers
// should treat it as fatal, not attempt silent repair.
var ErrCorrupt = errors.New("resultspec: corrupt payload: length-1 is not a multiple of 8")

// Result pairs a blueprint id (the test's content digest) with its outcome
// in one run, in the order the test appeared in the run.
type Result struct {
	ID     blueprint.ID
	Passed bool
}

// Encode produces the compact payload for results, or nil if every result
// passed (spec.md §4.2 step 1 — the "absent" sentinel, persisted as SQL
// NULL by the caller).
func Encode(results []Result) []byte {
	var failed int

	for _, r := range results {
		if !r.Passed {
			failed++
		}
	}

	if failed == 0 {
		return nil
	}

	passed := len(results) - failed

	var (
		variant byte
		want    bool
	)

	if passed < len(results)-passed {
		// Fewer passes than failures: enumerate the passes.
		variant = variantPassesEnumerated
		want = true
	} else {
		variant = variantFailuresEnumerated
		want = false
	}

	k := passed
	if variant == variantFailuresEnumerated {
		k = failed
	}

	out := make([]byte, headerSize+idSize*k)
	out[0] = variant

	offset := headerSize

	for _, r := range results {
		if r.Passed != want {
			continue
		}

		copy(out[offset:offset+idSize], r.ID.Bytes())
		offset += idSize
	}

	return out
}

// Decode expands a (possibly absent) result_spec payload against the
// ordered member list of the owning TestRunBlueprint, returning one Result
// per member in member order. A nil/empty payload means every member
// passed.
func Decode(payload []byte, members []blueprint.ID) ([]Result, error) {
	if len(payload) == 0 {
		results := make([]Result, len(members))
		for i, m := range members {
			results[i] = Result{ID: m, Passed: true}
		}

		return results, nil
	}

	if (len(payload)-headerSize)%idSize != 0 {
		return nil, fmt.Errorf("%w: payload length %d", ErrCorrupt, len(payload))
	}

	variant := payload[0]
	if variant != variantPassesEnumerated && variant != variantFailuresEnumerated {
		return nil, fmt.Errorf("%w: unknown variant tag %#x", ErrCorrupt, variant)
	}

	enumerated := make(map[blueprint.ID]struct{}, (len(payload)-headerSize)/idSize)

	for offset := headerSize; offset < len(payload); offset += idSize {
		var id uint64
		for _, b := range payload[offset : offset+idSize] {
			id = id<<8 | uint64(b)
		}

		enumerated[blueprint.ID(id)] = struct{}{}
	}

	results := make([]Result, len(members))

	for i, m := range members {
		_, inSet := enumerated[m]

		var passed bool
		if variant == variantPassesEnumerated {
			passed = inSet
		} else {
			passed = !inSet
		}

		results[i] = Result{ID: m, Passed: passed}
	}

	return results, nil
}
