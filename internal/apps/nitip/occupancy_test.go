package nitip

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOccupiedSlots_IgnoresPickedUp(t *testing.T) {
	records := []Deposit{
		{Slot: 3, Status: StatusActive},
		{Slot: 7, Status: StatusPickedUp},
		{Slot: 12, Status: StatusActive},
	}

	set := OccupiedSlots(records)
	assert.Len(t, set, 2)
	assert.Contains(t, set, 3)
	assert.Contains(t, set, 12)
	assert.NotContains(t, set, 7)
}

func TestSummarize(t *testing.T) {
	occ := Summarize([]Deposit{
		{Slot: 12, Status: StatusActive},
		{Slot: 3, Status: StatusActive},
		{Slot: 50, Status: StatusPickedUp},
	})

	assert.Equal(t, Occupancy{Total: 50, Occupied: 2, Available: 48, OccupiedSlots: []int{3, 12}}, occ)
	assert.False(t, occ.IsFree(3))
	assert.True(t, occ.IsFree(50))
	assert.False(t, occ.IsFree(0))
	assert.False(t, occ.IsFree(51))
	assert.Len(t, occ.FreeSlots(), 48)
	assert.NotContains(t, occ.FreeSlots(), 12)
}

func TestSummarize_Empty(t *testing.T) {
	occ := Summarize(nil)
	assert.Equal(t, 0, occ.Occupied)
	assert.Equal(t, TotalSlots, occ.Available)
	assert.NotNil(t, occ.OccupiedSlots)
}
