package model

import (
	"fmt"

	"github.com/google/uuid"
)

// OrderRef identifies the order a lease is correlated to. The kind is a
// first-class field rather than a string prefix on the id, so notification
// skipping is a type-level branch.
type OrderRef struct {
	Kind OrderRefKind `json:"kind"`
	ID   string       `json:"id"`
}

func ExternalOrder(id string) OrderRef {
	return OrderRef{Kind: OrderRefExternal, ID: id}
}

func SyntheticOrder(id string) OrderRef {
	return OrderRef{Kind: OrderRefSynthetic, ID: id}
}

// NewSyntheticOrder mints a fresh synthetic order reference for leases issued
// outside the marketplace (operator grants, test rentals).
func NewSyntheticOrder() OrderRef {
	return SyntheticOrder(uuid.NewString())
}

// Child derives the per-unit order reference for a friend-mode fan-out:
// unit i of order X is "X-i". The kind is inherited from the parent.
func (r OrderRef) Child(i int) OrderRef {
	return OrderRef{Kind: r.Kind, ID: fmt.Sprintf("%s-%d", r.ID, i)}
}

// Notifiable reports whether end-of-rental / order-completed messages should
// reference this order. Synthetic refs have no marketplace page to link to.
func (r OrderRef) Notifiable() bool {
	return r.Kind == OrderRefExternal && r.ID != ""
}
