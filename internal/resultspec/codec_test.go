package resultspec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ventifact/ventifact/internal/blueprint"
)

func ids(titles ...string) []blueprint.ID {
	out := make([]blueprint.ID, len(titles))
	for i, t := range titles {
		out[i] = blueprint.TitleID(t)
	}

	return out
}

func TestEncode_AllPassIsAbsent(t *testing.T) {
	members := ids("boot", "ipc", "ui")
	results := []Result{
		{ID: members[0], Passed: true},
		{ID: members[1], Passed: true},
		{ID: members[2], Passed: true},
	}

	assert.Nil(t, Encode(results))
}

func TestEncode_SingleFailureEncodesFailures(t *testing.T) {
	members := ids("a1", "a2", "a3", "b")
	results := []Result{
		{ID: members[0], Passed: true},
		{ID: members[1], Passed: true},
		{ID: members[2], Passed: true},
		{ID: members[3], Passed: false},
	}

	payload := Encode(results)
	require.Len(t, payload, 1+8)
	assert.Equal(t, variantFailuresEnumerated, payload[0])
	assert.Equal(t, members[3].Bytes(), payload[1:])
}

func TestEncode_MajorityFailEncodesPasses(t *testing.T) {
	members := ids("a1", "a2", "a3", "b")
	results := []Result{
		{ID: members[0], Passed: false},
		{ID: members[1], Passed: false},
		{ID: members[2], Passed: false},
		{ID: members[3], Passed: true},
	}

	payload := Encode(results)
	require.Len(t, payload, 1+8)
	assert.Equal(t, variantPassesEnumerated, payload[0])
	assert.Equal(t, members[3].Bytes(), payload[1:])
}

func TestEncode_TieBreaksTowardFailuresEnumerated(t *testing.T) {
	members := ids("a", "b")
	results := []Result{
		{ID: members[0], Passed: true},
		{ID: members[1], Passed: false},
	}

	payload := Encode(results)
	require.NotNil(t, payload)
	assert.Equal(t, variantFailuresEnumerated, payload[0])
}

func TestDecode_RoundTrip(t *testing.T) {
	members := ids("a", "b", "c", "d", "e")
	results := []Result{
		{ID: members[0], Passed: true},
		{ID: members[1], Passed: false},
		{ID: members[2], Passed: true},
		{ID: members[3], Passed: false},
		{ID: members[4], Passed: true},
	}

	payload := Encode(results)

	decoded, err := Decode(payload, members)
	require.NoError(t, err)
	assert.Equal(t, results, decoded)
}

func TestDecode_AbsentMeansAllPassed(t *testing.T) {
	members := ids("a", "b")

	decoded, err := Decode(nil, members)
	require.NoError(t, err)

	for _, r := range decoded {
		assert.True(t, r.Passed)
	}
}

func TestDecode_CorruptLength(t *testing.T) {
	_, err := Decode([]byte{0x00, 0x01, 0x02}, ids("a"))
	require.ErrorIs(t, err, ErrCorrupt)
}

func TestDecode_UnknownVariant(t *testing.T) {
	bad := make([]byte, 9)
	bad[0] = 0x7F

	_, err := Decode(bad, ids("a"))
	require.ErrorIs(t, err, ErrCorrupt)
}
