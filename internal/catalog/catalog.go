// Package catalog holds the items a customer can purchase.
//
// The payment initiator prices purchases from here; an item with a
// missing or non-positive price can never enter the payment flow.
package catalog

import (
	"context"
	"errors"
	"time"
)

var (
	ErrItemNotFound = errors.New("item not found")
	ErrItemExists   = errors.New("item already exists")
)

// Item is a purchasable product.
type Item struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Price     int64     `json:"price"` // in XOF, no subunit
	CreatedAt time.Time `json:"createdAt"`
}

// CreateItemRequest is the request body for registering an item.
type CreateItemRequest struct {
	ID    string `json:"id" binding:"required"`
	Name  string `json:"name" binding:"required"`
	Price int64  `json:"price" binding:"required"`
}

// Store persists catalog items.
type Store interface {
	Create(ctx context.Context, item *Item) error
	Get(ctx context.Context, id string) (*Item, error)
	List(ctx context.Context, limit int) ([]*Item, error)
}
