package nitip

import "sort"

// Occupancy is the slot availability of one counter.
type Occupancy struct {
	Total         int   `json:"total"`
	Occupied      int   `json:"occupied"`
	Available     int   `json:"available"`
	OccupiedSlots []int `json:"occupied_slots"`
}

// OccupiedSlots projects the slots held by active deposits. Picked-up records
// never contribute.
func OccupiedSlots(records []Deposit) map[int]struct{} {
	set := make(map[int]struct{}, len(records))
	for i := range records {
		if records[i].Status == StatusActive {
			set[records[i].Slot] = struct{}{}
		}
	}
	return set
}

func Summarize(records []Deposit) Occupancy {
	set := OccupiedSlots(records)
	slots := make([]int, 0, len(set))
	for s := range set {
		slots = append(slots, s)
	}
	sort.Ints(slots)
	return Occupancy{
		Total:         TotalSlots,
		Occupied:      len(slots),
		Available:     TotalSlots - len(slots),
		OccupiedSlots: slots,
	}
}

// IsFree reports whether slot is in range and not held.
func (o Occupancy) IsFree(slot int) bool {
	if slot < 1 || slot > o.Total {
		return false
	}
	i := sort.SearchInts(o.OccupiedSlots, slot)
	return i >= len(o.OccupiedSlots) || o.OccupiedSlots[i] != slot
}

// FreeSlots lists the available slot numbers in ascending order.
func (o Occupancy) FreeSlots() []int {
	free := make([]int, 0, o.Available)
	for s := 1; s <= o.Total; s++ {
		if o.IsFree(s) {
			free = append(free, s)
		}
	}
	return free
}
