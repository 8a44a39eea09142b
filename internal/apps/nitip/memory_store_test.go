package nitip

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedActive(t *testing.T, s Store, appID string, n int) {
	t.Helper()
	for i := 1; i <= n; i++ {
		require.NoError(t, s.Create(context.Background(), &Deposit{
			ID:          uuid.New(),
			AppID:       appID,
			Slot:        i,
			PickupCode:  fmt.Sprintf("C%05d", i),
			Status:      StatusActive,
			DepositedAt: time.Now(),
		}))
	}
}

func TestMemoryStore_SlotConflictWinsOverCode(t *testing.T) {
	s := NewMemoryStore()
	seedActive(t, s, "mall-a", 30)

	// Slot 3 is taken and the code belongs to slot 27; map order must not matter.
	for i := 0; i < 50; i++ {
		err := s.Create(context.Background(), &Deposit{
			AppID: "mall-a", Slot: 3, PickupCode: "C00027", Status: StatusActive,
		})
		require.ErrorIs(t, err, ErrSlotOccupied)
	}
}

func TestMemoryStore_CodeTaken(t *testing.T) {
	s := NewMemoryStore()
	seedActive(t, s, "mall-a", 5)

	err := s.Create(context.Background(), &Deposit{
		AppID: "mall-a", Slot: 40, PickupCode: "C00002", Status: StatusActive,
	})
	assert.ErrorIs(t, err, ErrCodeTaken)

	err = s.Create(context.Background(), &Deposit{
		AppID: "mall-b", Slot: 2, PickupCode: "C00002", Status: StatusActive,
	})
	assert.NoError(t, err)
}

func TestMemoryStore_CountsAndPickup(t *testing.T) {
	s := NewMemoryStore()
	seedActive(t, s, "mall-a", 3)

	list, err := s.List(context.Background(), Query{AppID: "mall-a", Status: StatusActive})
	require.NoError(t, err)
	require.Len(t, list, 3)

	_, err = s.MarkPickedUp(context.Background(), "mall-a", list[0].ID, time.Now())
	require.NoError(t, err)
	_, err = s.MarkPickedUp(context.Background(), "mall-a", list[0].ID, time.Now())
	assert.ErrorIs(t, err, ErrAlreadyPickedUp)
	_, err = s.MarkPickedUp(context.Background(), "mall-a", uuid.New(), time.Now())
	assert.ErrorIs(t, err, ErrDepositNotFound)

	counts, err := s.Counts(context.Background(), "mall-a")
	require.NoError(t, err)
	assert.Equal(t, StatusCounts{Active: 2, PickedUp: 1}, counts)
}
