// Package market defines the business failures of the market service.
// Callers branch on them with errors.Is.
package market

import "errors"

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrItemNotFound        = errors.New("item not found")
	ErrInsufficientBalance = errors.New("not enough balance")
	ErrAlreadyPurchased    = errors.New("item already purchased")
)
