package orders

import (
	"fmt"
	"sort"
)

// Set is an immutable active order set for one account.
// It is rebuilt from scratch on every refresh; nothing patches it in place.
type Set struct {
	list []Order
	byID map[ID]Order
}

// NewSet validates every order and rejects duplicate identities.
// Orders are kept sorted by kind then index so renders are stable.
func NewSet(list []Order) (*Set, error) {
	s := &Set{
		list: make([]Order, 0, len(list)),
		byID: make(map[ID]Order, len(list)),
	}
	for _, o := range list {
		if o == nil {
			return nil, fmt.Errorf("%w: nil order", ErrInvalidOrder)
		}
		if err := o.Validate(); err != nil {
			return nil, err
		}
		id := o.OrderID()
		if _, exists := s.byID[id]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateOrder, id)
		}
		s.byID[id] = o
		s.list = append(s.list, o)
	}
	sort.SliceStable(s.list, func(i, j int) bool {
		a, b := s.list[i].OrderID(), s.list[j].OrderID()
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.Index < b.Index
	})
	return s, nil
}

// EmptySet returns a set with no orders
func EmptySet() *Set {
	return &Set{byID: map[ID]Order{}}
}

// Orders returns the orders in render order. The slice is a copy.
func (s *Set) Orders() []Order {
	out := make([]Order, len(s.list))
	copy(out, s.list)
	return out
}

// Get looks up an order by identity
func (s *Set) Get(id ID) (Order, bool) {
	o, ok := s.byID[id]
	return o, ok
}

func (s *Set) Len() int { return len(s.list) }

// CountByKind returns how many orders of each kind are in the set
func (s *Set) CountByKind() map[Kind]int {
	counts := make(map[Kind]int, 3)
	for _, o := range s.list {
		counts[o.OrderID().Kind]++
	}
	return counts
}
