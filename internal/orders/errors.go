package orders

import "errors"

var (
	ErrInvalidInput      = errors.New("orders: invalid input")
	ErrNotFound          = errors.New("orders: not found")
	ErrProductNotFound   = errors.New("orders: product not found")
	ErrCategoryNotFound  = errors.New("orders: category not found")
	ErrInvalidTransition = errors.New("orders: invalid status transition")
	ErrNotDeletable      = errors.New("orders: accepted orders cannot be deleted")
	ErrForbidden         = errors.New("orders: forbidden")
)
