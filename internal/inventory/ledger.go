package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
)

var (
	ErrInvalidLines      = errors.New("inventory: invalid line items")
	ErrProductNotFound   = errors.New("inventory: product not found")
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
)

// Direction selects which way a ledger call moves units between stock and sold.
type Direction int

const (
	// Decrement takes units out of stock and counts them as sold.
	Decrement Direction = iota + 1
	// Increment puts units back into stock and removes them from sold.
	Increment
)

func (d Direction) String() string {
	switch d {
	case Decrement:
		return "DECREMENT"
	case Increment:
		return "INCREMENT"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// Line is one (product, quantity) pair handed to the ledger.
type Line struct {
	ProductID string
	Quantity  int
}

// Adjuster applies a single product delta: stock += delta, sold -= delta.
// With floor set, the update must be refused (ok=false) when it would take stock
// below zero; available is then the stock seen by the store.
// Implementations return ErrProductNotFound for unknown ids.
type Adjuster interface {
	AdjustStock(ctx context.Context, productID string, delta int, floor bool) (available int, ok bool, err error)
}

// Shortage describes one product that could not cover a decrement.
type Shortage struct {
	ProductID string `json:"product_id"`
	Required  int    `json:"required"`
	Available int    `json:"available"`
}

// ShortageError is returned by Apply when at least one product ran short.
type ShortageError struct {
	Shortages []Shortage
}

func (e *ShortageError) Error() string {
	ids := make([]string, 0, len(e.Shortages))
	for _, s := range e.Shortages {
		ids = append(ids, s.ProductID)
	}
	return fmt.Sprintf("%s: %s", ErrInsufficientStock.Error(), strings.Join(ids, ","))
}

func (e *ShortageError) Unwrap() error { return ErrInsufficientStock }

// Ledger moves stock/sold counters for the line items of one order.
//
// Apply is meant to run inside the caller's transaction: when it returns an error
// some products may already have been adjusted and the caller must roll back.
type Ledger struct {
	// AllowOversell disables the stock floor on Decrement.
	AllowOversell bool
	Logger        *zap.Logger
}

// Apply adjusts every product referenced by lines in the given direction.
// Lines for the same product are merged and products are visited in id order so
// concurrent callers lock rows in the same sequence.
func (l Ledger) Apply(ctx context.Context, adj Adjuster, lines []Line, dir Direction) error {
	if dir != Decrement && dir != Increment {
		return fmt.Errorf("%w: unknown direction %d", ErrInvalidLines, int(dir))
	}
	merged, err := Merge(lines)
	if err != nil {
		return err
	}

	floor := dir == Decrement && !l.AllowOversell
	var shortages []Shortage
	for _, ln := range merged {
		delta := ln.Quantity
		if dir == Decrement {
			delta = -delta
		}
		available, ok, err := adj.AdjustStock(ctx, ln.ProductID, delta, floor)
		if err != nil {
			return fmt.Errorf("adjust %s: %w", ln.ProductID, err)
		}
		if !ok {
			shortages = append(shortages, Shortage{ProductID: ln.ProductID, Required: ln.Quantity, Available: available})
		}
	}
	if len(shortages) > 0 {
		return &ShortageError{Shortages: shortages}
	}

	if l.Logger != nil {
		l.Logger.Debug("ledger applied",
			zap.Stringer("direction", dir),
			zap.Int("products", len(merged)),
		)
	}
	return nil
}

// Merge validates lines, folds duplicates together and sorts by product id.
func Merge(lines []Line) ([]Line, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: no line items", ErrInvalidLines)
	}
	totals := make(map[string]int, len(lines))
	for _, ln := range lines {
		id := strings.TrimSpace(ln.ProductID)
		if id == "" {
			return nil, fmt.Errorf("%w: missing product id", ErrInvalidLines)
		}
		if ln.Quantity <= 0 {
			return nil, fmt.Errorf("%w: invalid quantity %d for product %s", ErrInvalidLines, ln.Quantity, id)
		}
		totals[id] += ln.Quantity
	}
	out := make([]Line, 0, len(totals))
	for id, q := range totals {
		out = append(out, Line{ProductID: id, Quantity: q})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}
