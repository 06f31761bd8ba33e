package domain

import "errors"

var (
	// ErrOrderNotFound means the tracker has no record of the order
	ErrOrderNotFound = errors.New("order not found")
	// ErrNotOrderOwner means another user placed the order
	ErrNotOrderOwner = errors.New("order belongs to another user")
	// ErrInvalidToken means a callback token could not be parsed
	ErrInvalidToken = errors.New("invalid action token")
)
