package blueprint

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTitleID_Deterministic(t *testing.T) {
	a := TitleID("boot")
	b := TitleID("boot")

	assert.Equal(t, a, b)
}

func TestTitleID_DifferentInputsDiffer(t *testing.T) {
	assert.NotEqual(t, TitleID("boot"), TitleID("ipc"))
}

func TestSetID_OrderIndependent(t *testing.T) {
	members := []ID{TitleID("boot"), TitleID("ipc"), TitleID("ui")}

	shuffled := make([]ID, len(members))
	copy(shuffled, members)

	rng := rand.New(rand.NewSource(1))
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	idA, sortedA := SetID(members)
	idB, sortedB := SetID(shuffled)

	assert.Equal(t, idA, idB, "set id must be invariant under input permutation")
	assert.Equal(t, sortedA, sortedB)
}

func TestSetID_DuplicateMembersAffectDigest(t *testing.T) {
	one := []ID{TitleID("a"), TitleID("b")}
	dup := []ID{TitleID("a"), TitleID("a"), TitleID("b")}

	idOne, _ := SetID(one)
	idDup, _ := SetID(dup)

	assert.NotEqual(t, idOne, idDup, "duplicate member ids must change the digest (multiplicity is not deduped)")
}

func TestSortIDs_UnsignedByteOrder(t *testing.T) {
	// -1 has all bits set (0xFF...FF), which is the maximum unsigned byte
	// pattern but the minimum signed value. Unsigned sort must place it last.
	ids := []ID{ID(-1), ID(0), ID(1)}

	SortIDs(ids)

	require.Len(t, ids, 3)
	assert.Equal(t, ID(0), ids[0])
	assert.Equal(t, ID(1), ids[1])
	assert.Equal(t, ID(-1), ids[2])
}

func TestBytes_RoundTripsBigEndian(t *testing.T) {
	id := TitleID("boot")
	restored := ID(0)

	buf := id.Bytes()
	require.Len(t, buf, digestSize)

	for _, b := range buf {
		restored = restored<<8 | ID(b)
	}

	assert.Equal(t, id, restored)
}
