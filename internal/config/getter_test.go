package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetEnvISODuration_UsesEnvWhenSet(t *testing.T) {
	t.Setenv("TEST_RUN_LIFETIME", "P30D")

	d, err := GetEnvISODuration("TEST_RUN_LIFETIME", "P90D")
	require.NoError(t, err)
	assert.Equal(t, 30*24*time.Hour, d)
}

func TestGetEnvISODuration_FallsBackToDefault(t *testing.T) {
	d, err := GetEnvISODuration("MERGED_PR_LIFETIME", "P180D")
	require.NoError(t, err)
	assert.Equal(t, 180*24*time.Hour, d)
}

func TestGetEnvISODuration_RejectsInvalidValue(t *testing.T) {
	t.Setenv("TEST_RUN_LIFETIME", "not-a-duration")

	_, err := GetEnvISODuration("TEST_RUN_LIFETIME", "P90D")
	require.ErrorIs(t, err, ErrInvalidISODuration)
}
