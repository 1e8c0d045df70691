// Package idm manages the reservation and release of numerical ids from a
// contiguous set.
package idm

import "github.com/pkg/errors"

// ErrNoAvailableIDs is returned when the set has no unallocated ids left.
var ErrNoAvailableIDs = errors.New("no available ids")

// IDM hands out ids from the closed range [start, end]. Methods are not
// synchronized; callers serialize access.
type IDM struct {
	start int
	end   int
	next  int // scan position for serial allocation
	set   []uint64
}

// New returns an IDM managing ids in the closed range [start, end].
func New(start, end int) (*IDM, error) {
	if end <= start {
		return nil, errors.Errorf("invalid set range: [%d, %d]", start, end)
	}

	size := end - start + 1
	return &IDM{
		start: start,
		end:   end,
		next:  start,
		set:   make([]uint64, (size+63)/64),
	}, nil
}

// GetID returns the first available id. With serial set, the scan resumes
// from the most recently allocated id instead of the start of the range,
// wrapping around once before giving up.
func (i *IDM) GetID(serial bool) (int, error) {
	if i.set == nil {
		return 0, errors.New("id set is not initialized")
	}

	from := i.start
	if serial {
		from = i.next
	}

	size := i.end - i.start + 1
	for n := 0; n < size; n++ {
		id := i.start + (from-i.start+n)%size
		if !i.test(id) {
			i.mark(id)
			return id, nil
		}
	}

	return 0, ErrNoAvailableIDs
}

// GetSpecificID reserves the specified id if it is inside the range and not
// already allocated.
func (i *IDM) GetSpecificID(id int) error {
	if i.set == nil {
		return errors.New("id set is not initialized")
	}
	if id < i.start || id > i.end {
		return errors.Errorf("requested id %d out of range [%d, %d]", id, i.start, i.end)
	}
	if i.test(id) {
		return errors.Errorf("requested id %d is already allocated", id)
	}

	i.mark(id)
	return nil
}

// Release puts the specified id back into the set. Releasing an id that was
// never allocated is a no-op.
func (i *IDM) Release(id int) {
	if i.set == nil || id < i.start || id > i.end {
		return
	}
	off := id - i.start
	i.set[off/64] &^= 1 << (uint(off) % 64)
}

func (i *IDM) test(id int) bool {
	off := id - i.start
	return i.set[off/64]&(1<<(uint(off)%64)) != 0
}

func (i *IDM) mark(id int) {
	off := id - i.start
	i.set[off/64] |= 1 << (uint(off) % 64)
	i.next = id + 1
	if i.next > i.end {
		i.next = i.start
	}
}
