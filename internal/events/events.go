package events

import (
	"time"

	"github.com/google/uuid"
)

// ListingInvalidatedType names the event on the wire.
const ListingInvalidatedType = "product.listing.invalidated"

// ListingInvalidated announces that the product listing changed. It carries
// no product data; consumers recompute their view on next read.
type ListingInvalidated struct {
	EventID   string    `json:"event_id"`
	Type      string    `json:"type"`
	Source    string    `json:"source"` // instance that performed the mutation
	Timestamp time.Time `json:"timestamp"`
}

// NewListingInvalidated creates an event stamped with a fresh id and time.
func NewListingInvalidated(source string) ListingInvalidated {
	return ListingInvalidated{
		EventID:   uuid.New().String(),
		Type:      ListingInvalidatedType,
		Source:    source,
		Timestamp: time.Now().UTC(),
	}
}
