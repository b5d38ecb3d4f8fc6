package domain

import "fmt"

// CartItem is one line of a session cart. The composite key "{type}_{id}"
// (e.g. "book_42") identifies a line; adding the same key again increments
// quantity instead of creating a new line.
type CartItem struct {
	ItemType       string
	ItemID         int64
	Title          string
	UnitPricePaise int64
	Quantity       int32
	ImageURL       string
}

// Key returns the composite cart key for the item.
func (i CartItem) Key() string {
	return fmt.Sprintf("%s_%d", i.ItemType, i.ItemID)
}

// ItemTypeAddOn marks a cart or order line holding a checkout add-on rather
// than a catalog item.
const ItemTypeAddOn = "addon"

// AddOnPricesPaise is the fixed price table for optional non-book add-ons.
var AddOnPricesPaise = map[string]int64{
	"bag":      3000,
	"bookmark": 2000,
	"packing":  2000,
}

// Cart-related domain errors.
var (
	ErrCartEmpty        = &Error{Code: EINVALID, Message: "Cart is empty"}
	ErrCartItemNotFound = &Error{Code: ENOTFOUND, Message: "Item not found in cart"}
	ErrInvalidQuantity  = &Error{Code: EINVALID, Message: "Quantity must be at least 1"}
	ErrInvalidPrice     = &Error{Code: EINVALID, Message: "Price must not be negative"}
	ErrUnknownAddOn     = &Error{Code: EINVALID, Message: "Unknown add-on"}
)
