package sides

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAssign_TwoDistinctSides(t *testing.T) {
	edges := []KillmailEdge{
		{VictimKey: 1, AttackerKeys: []int64{2}},
		{VictimKey: 3, AttackerKeys: []int64{4}},
	}

	result := Assign(edges)
	assert.Equal(t, result[1], result[2])
	assert.Equal(t, result[3], result[4])
	assert.NotEqual(t, result[1], result[3])
}

func TestAssign_TransitiveChainMergesIntoOneSide(t *testing.T) {
	// 1 fights 2, 2 fights 3 (as a later victim/attacker pairing) -> one
	// connected component across all three.
	edges := []KillmailEdge{
		{VictimKey: 1, AttackerKeys: []int64{2}},
		{VictimKey: 2, AttackerKeys: []int64{3}},
	}

	result := Assign(edges)
	assert.Equal(t, result[1], result[2])
	assert.Equal(t, result[2], result[3])
}

func TestAssign_LargestComponentGetsSideZero(t *testing.T) {
	edges := []KillmailEdge{
		{VictimKey: 1, AttackerKeys: []int64{2, 3, 4}},
		{VictimKey: 5, AttackerKeys: []int64{6}},
	}

	result := Assign(edges)
	assert.Equal(t, 0, result[1])
	assert.Equal(t, 0, result[2])
	assert.Equal(t, 1, result[5])
}

func TestAssign_EmptyInput(t *testing.T) {
	assert.Empty(t, Assign(nil))
}
