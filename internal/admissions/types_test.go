package admissions

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundPrecedenceOrder(t *testing.T) {
	t.Parallel()

	rounds := []RoundType{RoundRolling, RoundRD, RoundEA, RoundREA, RoundED2, RoundED}
	sort.Slice(rounds, func(i, j int) bool {
		return rounds[i].Precedence() < rounds[j].Precedence()
	})
	require.Equal(t, []RoundType{RoundED, RoundED2, RoundREA, RoundEA, RoundRD, RoundRolling}, rounds)
}

func TestRoundValid(t *testing.T) {
	t.Parallel()

	for _, r := range RoundsByPrecedence {
		require.True(t, r.Valid(), "round %s", r)
	}
	require.False(t, RoundType("EDX").Valid())
	require.Equal(t, len(RoundsByPrecedence), RoundType("EDX").Precedence())
}
