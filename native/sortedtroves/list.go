package sortedtroves

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"cdpledger/crypto"
)

var (
	ErrListFull      = errors.New("sortedtroves: list is full")
	ErrAlreadyExists = errors.New("sortedtroves: list already contains the node")
	ErrInvalidID     = errors.New("sortedtroves: id cannot be zero")
	ErrInvalidNICR   = errors.New("sortedtroves: NICR must be positive")
	ErrNotFound      = errors.New("sortedtroves: list does not contain the id")
	ErrInvalidHint   = errors.New("sortedtroves: no valid insert position within search limit")
)

const (
	headSlot = 0
	tailSlot = 1
	noSlot   = -1
)

// NICRSource reports the current nominal collateral ratio of a trove,
// including pending redistribution rewards.
type NICRSource interface {
	NominalICR(id crypto.Address) *uint256.Int
}

type node struct {
	id   crypto.Address
	prev int
	next int
}

// List is a doubly linked list of trove ids sorted by descending NICR. Nodes
// live in an arena addressed by slot; the head and tail sentinels occupy the
// first two slots and are never removed. The NICR of a node is not stored, it
// is read from the source whenever a position is validated.
type List struct {
	nodes       []node
	slots       map[crypto.Address]int
	free        []int
	size        uint64
	maxSize     uint64
	searchLimit uint64
	source      NICRSource
}

// New builds an empty list. searchLimit bounds hint traversal; zero leaves it
// bounded only by the list size.
func New(maxSize, searchLimit uint64, source NICRSource) (*List, error) {
	if maxSize == 0 {
		return nil, fmt.Errorf("sortedtroves: size cannot be zero")
	}
	if source == nil {
		return nil, fmt.Errorf("sortedtroves: NICR source required")
	}
	l := &List{
		nodes:       make([]node, 2, 16),
		slots:       make(map[crypto.Address]int),
		maxSize:     maxSize,
		searchLimit: searchLimit,
		source:      source,
	}
	l.nodes[headSlot] = node{prev: noSlot, next: tailSlot}
	l.nodes[tailSlot] = node{prev: headSlot, next: noSlot}
	return l, nil
}

// Size returns the number of linked ids.
func (l *List) Size() uint64 { return l.size }

// MaxSize returns the configured capacity.
func (l *List) MaxSize() uint64 { return l.maxSize }

// IsFull reports whether the list has reached capacity.
func (l *List) IsFull() bool { return l.size >= l.maxSize }

// IsEmpty reports whether the list holds no ids.
func (l *List) IsEmpty() bool { return l.size == 0 }

// Contains reports whether id is linked.
func (l *List) Contains(id crypto.Address) bool {
	_, ok := l.slots[id]
	return ok
}

// First returns the id with the highest NICR or the zero address.
func (l *List) First() crypto.Address { return l.nodes[l.nodes[headSlot].next].id }

// Last returns the id with the lowest NICR or the zero address.
func (l *List) Last() crypto.Address { return l.nodes[l.nodes[tailSlot].prev].id }

// Next returns the id after id (lower NICR) or the zero address.
func (l *List) Next(id crypto.Address) crypto.Address {
	slot, ok := l.slots[id]
	if !ok {
		return crypto.ZeroAddress
	}
	return l.nodes[l.nodes[slot].next].id
}

// Prev returns the id before id (higher NICR) or the zero address.
func (l *List) Prev(id crypto.Address) crypto.Address {
	slot, ok := l.slots[id]
	if !ok {
		return crypto.ZeroAddress
	}
	return l.nodes[l.nodes[slot].prev].id
}

// IDs returns every linked id from first to last.
func (l *List) IDs() []crypto.Address {
	out := make([]crypto.Address, 0, l.size)
	for slot := l.nodes[headSlot].next; slot != tailSlot; slot = l.nodes[slot].next {
		out = append(out, l.nodes[slot].id)
	}
	return out
}

// Insert links id at its sorted position, starting the search from the hints.
func (l *List) Insert(id crypto.Address, nicr *uint256.Int, prevHint, nextHint crypto.Address) error {
	if l.IsFull() {
		return ErrListFull
	}
	if l.Contains(id) {
		return ErrAlreadyExists
	}
	if id.IsZero() {
		return ErrInvalidID
	}
	if nicr == nil || nicr.IsZero() {
		return ErrInvalidNICR
	}
	prev, next, err := l.findPosition(nicr, prevHint, nextHint, nil)
	if err != nil {
		return err
	}
	l.link(id, prev, next)
	return nil
}

// Remove unlinks id.
func (l *List) Remove(id crypto.Address) error {
	slot, ok := l.slots[id]
	if !ok {
		return ErrNotFound
	}
	n := l.nodes[slot]
	l.nodes[n.prev].next = n.next
	l.nodes[n.next].prev = n.prev
	l.nodes[slot] = node{prev: noSlot, next: noSlot}
	delete(l.slots, id)
	l.free = append(l.free, slot)
	l.size--
	return nil
}

// ReInsert moves id to the position matching its new NICR. The list is left
// untouched when no position is found.
func (l *List) ReInsert(id crypto.Address, nicr *uint256.Int, prevHint, nextHint crypto.Address) error {
	if !l.Contains(id) {
		return ErrNotFound
	}
	if nicr == nil || nicr.IsZero() {
		return ErrInvalidNICR
	}
	prev, next, err := l.findPosition(nicr, prevHint, nextHint, map[crypto.Address]bool{id: true})
	if err != nil {
		return err
	}
	if err := l.Remove(id); err != nil {
		return err
	}
	l.link(id, prev, next)
	return nil
}

// ValidInsertPosition reports whether (prev, next) is a valid position for a
// node with the supplied NICR. The zero address stands for a list boundary.
func (l *List) ValidInsertPosition(nicr *uint256.Int, prev, next crypto.Address) bool {
	prevSlot, nextSlot, ok := l.resolve(prev, next, nil)
	if !ok {
		return false
	}
	return l.validSlots(nicr, prevSlot, nextSlot, nil)
}

// FindInsertPosition returns the neighbors a node with the supplied NICR
// would have once inserted.
func (l *List) FindInsertPosition(nicr *uint256.Int, prevHint, nextHint crypto.Address) (crypto.Address, crypto.Address, error) {
	return l.FindInsertPositionExcluding(nicr, prevHint, nextHint, nil)
}

// FindInsertPositionExcluding searches as if every id in skip were already
// removed from the list.
func (l *List) FindInsertPositionExcluding(nicr *uint256.Int, prevHint, nextHint crypto.Address, skip map[crypto.Address]bool) (crypto.Address, crypto.Address, error) {
	if nicr == nil || nicr.IsZero() {
		return crypto.ZeroAddress, crypto.ZeroAddress, ErrInvalidNICR
	}
	prev, next, err := l.findPosition(nicr, prevHint, nextHint, skip)
	if err != nil {
		return crypto.ZeroAddress, crypto.ZeroAddress, err
	}
	return l.nodes[prev].id, l.nodes[next].id, nil
}

func (l *List) link(id crypto.Address, prev, next int) {
	var slot int
	if n := len(l.free); n > 0 {
		slot = l.free[n-1]
		l.free = l.free[:n-1]
		l.nodes[slot] = node{id: id, prev: prev, next: next}
	} else {
		slot = len(l.nodes)
		l.nodes = append(l.nodes, node{id: id, prev: prev, next: next})
	}
	l.nodes[prev].next = slot
	l.nodes[next].prev = slot
	l.slots[id] = slot
	l.size++
}

func (l *List) nicrOf(slot int) *uint256.Int {
	return l.source.NominalICR(l.nodes[slot].id)
}

func (l *List) nextSlot(slot int, skip map[crypto.Address]bool) int {
	next := l.nodes[slot].next
	for next != tailSlot && skip[l.nodes[next].id] {
		next = l.nodes[next].next
	}
	return next
}

func (l *List) prevSlot(slot int, skip map[crypto.Address]bool) int {
	prev := l.nodes[slot].prev
	for prev != headSlot && skip[l.nodes[prev].id] {
		prev = l.nodes[prev].prev
	}
	return prev
}

// slotOf resolves a hint to a live slot; the zero address maps to the given
// sentinel.
func (l *List) slotOf(id crypto.Address, sentinel int, skip map[crypto.Address]bool) (int, bool) {
	if id.IsZero() {
		return sentinel, true
	}
	if skip[id] {
		return noSlot, false
	}
	slot, ok := l.slots[id]
	return slot, ok
}

func (l *List) resolve(prev, next crypto.Address, skip map[crypto.Address]bool) (int, int, bool) {
	prevSlot, ok := l.slotOf(prev, headSlot, skip)
	if !ok {
		return noSlot, noSlot, false
	}
	nextSlot, ok := l.slotOf(next, tailSlot, skip)
	if !ok {
		return noSlot, noSlot, false
	}
	return prevSlot, nextSlot, true
}

// validSlots holds when prev and next are adjacent and
// NICR(prev) >= nicr > NICR(next), so equal ratios keep insertion order.
func (l *List) validSlots(nicr *uint256.Int, prev, next int, skip map[crypto.Address]bool) bool {
	if l.nextSlot(prev, skip) != next {
		return false
	}
	if prev != headSlot && nicr.Gt(l.nicrOf(prev)) {
		return false
	}
	if next != tailSlot && !nicr.Gt(l.nicrOf(next)) {
		return false
	}
	return true
}

func (l *List) findPosition(nicr *uint256.Int, prevHint, nextHint crypto.Address, skip map[crypto.Address]bool) (int, int, error) {
	prev, okPrev := l.slotOf(prevHint, headSlot, skip)
	next, okNext := l.slotOf(nextHint, tailSlot, skip)
	if okPrev && okNext && l.validSlots(nicr, prev, next, skip) {
		return prev, next, nil
	}
	if !okPrev || (prev != headSlot && nicr.Gt(l.nicrOf(prev))) {
		prev = headSlot
	}
	if !okNext || (next != tailSlot && !nicr.Gt(l.nicrOf(next))) {
		next = tailSlot
	}
	switch {
	case prev == headSlot && next == tailSlot:
		return l.descend(nicr, headSlot, skip)
	case prev == headSlot:
		return l.ascend(nicr, next, skip)
	default:
		return l.descend(nicr, prev, skip)
	}
}

func (l *List) limit() uint64 {
	if l.searchLimit == 0 {
		return l.size + 1
	}
	return l.searchLimit
}

func (l *List) descend(nicr *uint256.Int, start int, skip map[crypto.Address]bool) (int, int, error) {
	prev := start
	next := l.nextSlot(prev, skip)
	limit := l.limit()
	for steps := uint64(0); ; steps++ {
		if l.validSlots(nicr, prev, next, skip) {
			return prev, next, nil
		}
		if next == tailSlot || steps >= limit {
			return noSlot, noSlot, ErrInvalidHint
		}
		prev = next
		next = l.nextSlot(prev, skip)
	}
}

func (l *List) ascend(nicr *uint256.Int, start int, skip map[crypto.Address]bool) (int, int, error) {
	next := start
	prev := l.prevSlot(next, skip)
	limit := l.limit()
	for steps := uint64(0); ; steps++ {
		if l.validSlots(nicr, prev, next, skip) {
			return prev, next, nil
		}
		if prev == headSlot || steps >= limit {
			return noSlot, noSlot, ErrInvalidHint
		}
		next = prev
		prev = l.prevSlot(next, skip)
	}
}
