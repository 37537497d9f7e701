// Package client is the storefront's cart state machine and its sync to the
// backend.
package client

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"storefront-backend/dtos"
	"storefront-backend/utils"
)

// LineItem shares its wire shape with the server cart.
type LineItem = dtos.CartItem

type ActionType int

const (
	ActionAdd ActionType = iota + 1
	ActionRemove
	ActionQuantity
	ActionSubmit
	ActionReplace
)

func (t ActionType) String() string {
	switch t {
	case ActionAdd:
		return "ADD"
	case ActionRemove:
		return "REMOVE"
	case ActionQuantity:
		return "QUANTITY"
	case ActionSubmit:
		return "SUBMIT"
	case ActionReplace:
		return "REPLACE"
	default:
		return "ActionType(" + strconv.Itoa(int(t)) + ")"
	}
}

// Action is one cart transition. Item is the payload of add, remove and
// quantity; Items is the payload of replace.
type Action struct {
	Type  ActionType
	Item  *LineItem
	Items []LineItem
}

var (
	ErrMissingPayload = errors.New("action payload missing")
	ErrItemMustExist  = errors.New("item must exist in order to update quantity")
	ErrUnknownAction  = errors.New("unknown cart action")
)

// State is the local cart in insertion order.
type State struct {
	Cart []LineItem
}

func cloneItems(items []LineItem) []LineItem {
	out := make([]LineItem, len(items))
	copy(out, items)
	return out
}

func indexOf(items []LineItem, sku string) int {
	for i, it := range items {
		if it.SKU == sku {
			return i
		}
	}
	return -1
}

// Reduce returns the state that follows action. state is never modified.
func Reduce(state State, action Action) (State, error) {
	switch action.Type {
	case ActionAdd:
		if action.Item == nil {
			return state, fmt.Errorf("%s: %w", action.Type, ErrMissingPayload)
		}
		cart := cloneItems(state.Cart)
		if i := indexOf(cart, action.Item.SKU); i >= 0 {
			cart[i].Qty++
			return State{Cart: cart}, nil
		}
		item := *action.Item
		item.Qty = 1
		return State{Cart: append(cart, item)}, nil

	case ActionRemove:
		if action.Item == nil {
			return state, fmt.Errorf("%s: %w", action.Type, ErrMissingPayload)
		}
		cart := make([]LineItem, 0, len(state.Cart))
		for _, it := range state.Cart {
			if it.SKU != action.Item.SKU {
				cart = append(cart, it)
			}
		}
		return State{Cart: cart}, nil

	case ActionQuantity:
		if action.Item == nil {
			return state, fmt.Errorf("%s: %w", action.Type, ErrMissingPayload)
		}
		i := indexOf(state.Cart, action.Item.SKU)
		if i < 0 {
			return state, fmt.Errorf("%s %q: %w", action.Type, action.Item.SKU, ErrItemMustExist)
		}
		cart := cloneItems(state.Cart)
		cart[i].Qty = action.Item.Qty
		return State{Cart: cart}, nil

	case ActionSubmit:
		return State{Cart: []LineItem{}}, nil

	case ActionReplace:
		return State{Cart: cloneItems(action.Items)}, nil

	default:
		return state, fmt.Errorf("%w: %s", ErrUnknownAction, action.Type)
	}
}

// TotalItems sums quantities.
func (s State) TotalItems() int {
	n := 0
	for _, it := range s.Cart {
		n += it.Qty
	}
	return n
}

// TotalCents sums price × quantity.
func (s State) TotalCents() int64 {
	var total int64
	for _, it := range s.Cart {
		total += it.Price * int64(it.Qty)
	}
	return total
}

// TotalPrice is TotalCents formatted as US currency, e.g. "$20.00".
func (s State) TotalPrice() string {
	return utils.FormatCents(s.TotalCents())
}

// DisplayItems orders the cart by the SKU's numeric suffix, ties by SKU.
func (s State) DisplayItems() []LineItem {
	items := cloneItems(s.Cart)
	sort.SliceStable(items, func(i, j int) bool {
		a, b := skuNumber(items[i].SKU), skuNumber(items[j].SKU)
		if a != b {
			return a < b
		}
		return items[i].SKU < items[j].SKU
	})
	return items
}

// skuNumber parses the trailing digits of sku; 0 when there are none.
func skuNumber(sku string) int64 {
	i := len(sku)
	for i > 0 && sku[i-1] >= '0' && sku[i-1] <= '9' {
		i--
	}
	n, err := strconv.ParseInt(sku[i:], 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// Listener observes every successful transition.
type Listener func(action Action, next State)

type subscription struct {
	id int
	fn Listener
}

// CartStore owns one session's cart. It is safe for concurrent use.
type CartStore struct {
	mu     sync.RWMutex
	state  State
	subs   []subscription
	nextID int
}

func NewCartStore(initial []LineItem) *CartStore {
	return &CartStore{state: State{Cart: cloneItems(initial)}}
}

// Dispatch applies action and notifies listeners. Precondition failures are
// returned; an unknown action type panics.
func (s *CartStore) Dispatch(action Action) error {
	s.mu.Lock()
	next, err := Reduce(s.state, action)
	if err != nil {
		s.mu.Unlock()
		if errors.Is(err, ErrUnknownAction) {
			panic(err)
		}
		return err
	}
	s.state = next
	subs := make([]subscription, len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.fn(action, next)
	}
	return nil
}

// Subscribe registers fn and returns a function that removes it.
func (s *CartStore) Subscribe(fn Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscription{id: id, fn: fn})

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

func (s *CartStore) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return State{Cart: cloneItems(s.state.Cart)}
}

// Items returns the cart in display order.
func (s *CartStore) Items() []LineItem {
	return s.State().DisplayItems()
}

func (s *CartStore) TotalItems() int {
	return s.State().TotalItems()
}

func (s *CartStore) TotalPrice() string {
	return s.State().TotalPrice()
}

// Contains reports whether sku is in the cart.
func (s *CartStore) Contains(sku string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return indexOf(s.state.Cart, sku) >= 0
}
