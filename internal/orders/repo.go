package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-shop-orders/internal/inventory"
)

// Repo is the Postgres Store.
type Repo struct{ DB *pgxpool.Pool }

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const orderColumns = `id, buyer_id, order_method, delivery_charge::text, product_price::text, total_price::text,
	transaction_id, status, payment_url, note, order_name, division, district, sub_district, post_code,
	phone_number, house_no, created_at, updated_at`

// InTx runs fn in a single transaction; any error rolls everything back.
func (r *Repo) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &pgTx{q: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repo) GetOrder(ctx context.Context, id string) (Order, error) {
	return loadOrder(ctx, r.DB, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id)
}

func (r *Repo) ListOrders(ctx context.Context, buyerID string) ([]Order, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+orderColumns+` FROM orders
		WHERE ($1 = '' OR buyer_id = $1) ORDER BY created_at DESC, id`, buyerID)
	if err != nil {
		return nil, err
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Order, error) { return scanOrder(row) })
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}

	ids := make([]string, 0, len(out))
	idx := make(map[string]int, len(out))
	for i, o := range out {
		ids = append(ids, o.ID)
		idx[o.ID] = i
	}
	items, err := r.DB.Query(ctx, `SELECT order_id, product_id, qty, unit_price::text FROM order_items
		WHERE order_id = ANY($1) ORDER BY order_id, position`, ids)
	if err != nil {
		return nil, err
	}
	defer items.Close()
	for items.Next() {
		var (
			orderID string
			it      LineItem
			price   string
		)
		if err := items.Scan(&orderID, &it.ProductID, &it.Quantity, &price); err != nil {
			return nil, err
		}
		if it.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("order %s unit price: %w", orderID, err)
		}
		i := idx[orderID]
		out[i].LineItems = append(out[i].LineItems, it)
	}
	return out, items.Err()
}

func (r *Repo) SetPaymentURL(ctx context.Context, id string, url *string) error {
	ct, err := r.DB.Exec(ctx, `UPDATE orders SET payment_url=$2, updated_at=now() WHERE id=$1`, id, url)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return ErrNotFound
	}
	return nil
}

type pgTx struct{ q querier }

// AdjustStock: stock += delta, sold -= delta, refused when floor is set and the
// row would go negative.
func (t *pgTx) AdjustStock(ctx context.Context, productID string, delta int, floor bool) (int, bool, error) {
	var stock int
	err := t.q.QueryRow(ctx, `
		UPDATE products SET stock = stock + $2, sold = sold - $2, updated_at = now()
		WHERE id = $1 AND (NOT $3::boolean OR stock + $2 >= 0)
		RETURNING stock`, productID, delta, floor).Scan(&stock)
	if err == nil {
		return stock, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, false, err
	}

	err = t.q.QueryRow(ctx, `SELECT stock FROM products WHERE id=$1`, productID).Scan(&stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, inventory.ErrProductNotFound
	}
	if err != nil {
		return 0, false, err
	}
	return stock, false, nil
}

// LockProducts locks product rows in id order.
func (t *pgTx) LockProducts(ctx context.Context, ids []string) (map[string]Product, error) {
	rows, err := t.q.Query(ctx, `
		SELECT p.id, p.name, p.price::text, p.discount::text, p.stock, p.sold, p.category_id,
		       c.id, c.name, p.added_by, p.added_by_kind, p.created_at, p.updated_at
		FROM products p LEFT JOIN categories c ON c.id = p.category_id
		WHERE p.id = ANY($1)
		ORDER BY p.id
		FOR UPDATE OF p`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]Product, len(ids))
	for rows.Next() {
		var (
			p               Product
			price, discount string
			catID, catName  *string
			kind            string
		)
		if err := rows.Scan(&p.ID, &p.Name, &price, &discount, &p.Stock, &p.Sold, &p.CategoryID,
			&catID, &catName, &p.AddedBy, &kind, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		if p.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("product %s price: %w", p.ID, err)
		}
		if p.Discount, err = decimal.NewFromString(discount); err != nil {
			return nil, fmt.Errorf("product %s discount: %w", p.ID, err)
		}
		p.AddedByKind = OwnerKind(kind)
		if catID != nil {
			p.Category = &Category{ID: *catID}
			if catName != nil {
				p.Category.Name = *catName
			}
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

func (t *pgTx) InsertOrder(ctx context.Context, o Order) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO orders(id, buyer_id, order_method, delivery_charge, product_price, total_price,
			transaction_id, status, payment_url, note, order_name, division, district, sub_district,
			post_code, phone_number, house_no, created_at, updated_at)
		VALUES ($1,$2,$3,$4::numeric,$5::numeric,$6::numeric,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		o.ID, o.BuyerID, string(o.Method), o.DeliveryCharge.String(), o.ProductPrice.String(), o.TotalPrice.String(),
		o.TransactionID, string(o.Status), o.PaymentURL, o.Note, o.OrderName, o.Division, o.District, o.SubDistrict,
		o.PostCode, o.PhoneNumber, o.HouseNo, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return err
	}

	for i, it := range o.LineItems {
		if _, err := t.q.Exec(ctx, `
			INSERT INTO order_items(order_id, position, product_id, qty, unit_price)
			VALUES ($1, $2, $3, $4, $5::numeric)`,
			o.ID, i, it.ProductID, it.Quantity, it.UnitPrice.String(),
		); err != nil {
			return err
		}
	}
	return nil
}

func (t *pgTx) LockOrder(ctx context.Context, id string) (Order, error) {
	return loadOrder(ctx, t.q, `SELECT `+orderColumns+` FROM orders WHERE id=$1 FOR UPDATE`, id)
}

func (t *pgTx) LockOrderByTransaction(ctx context.Context, transactionID string) (Order, error) {
	return loadOrder(ctx, t.q, `SELECT `+orderColumns+` FROM orders WHERE transaction_id=$1 FOR UPDATE`, transactionID)
}

func (t *pgTx) UpdateStatus(ctx context.Context, id string, s Status, note string, at time.Time) error {
	ct, err := t.q.Exec(ctx, `
		UPDATE orders SET status=$2, note = CASE WHEN $3 = '' THEN note ELSE $3 END, updated_at=$4
		WHERE id=$1`, id, string(s), note, at)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) DeleteOrder(ctx context.Context, id string) error {
	ct, err := t.q.Exec(ctx, `DELETE FROM orders WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return ErrNotFound
	}
	return nil
}

func loadOrder(ctx context.Context, q querier, sql string, arg any) (Order, error) {
	o, err := scanOrder(q.QueryRow(ctx, sql, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, err
	}

	rows, err := q.Query(ctx, `SELECT product_id, qty, unit_price::text FROM order_items
		WHERE order_id=$1 ORDER BY position`, o.ID)
	if err != nil {
		return Order{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			it    LineItem
			price string
		)
		if err := rows.Scan(&it.ProductID, &it.Quantity, &price); err != nil {
			return Order{}, err
		}
		if it.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return Order{}, fmt.Errorf("order %s unit price: %w", o.ID, err)
		}
		o.LineItems = append(o.LineItems, it)
	}
	return o, rows.Err()
}

func scanOrder(row pgx.Row) (Order, error) {
	var (
		o                      Order
		method, status         string
		charge, product, total string
	)
	if err := row.Scan(&o.ID, &o.BuyerID, &method, &charge, &product, &total,
		&o.TransactionID, &status, &o.PaymentURL, &o.Note, &o.OrderName, &o.Division, &o.District,
		&o.SubDistrict, &o.PostCode, &o.PhoneNumber, &o.HouseNo, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return Order{}, err
	}
	o.Method = Method(method)
	o.Status = Status(status)
	if !o.Status.Valid() {
		return Order{}, fmt.Errorf("order %s has unknown status %q", o.ID, status)
	}
	var err error
	if o.DeliveryCharge, err = decimal.NewFromString(charge); err != nil {
		return Order{}, err
	}
	if o.ProductPrice, err = decimal.NewFromString(product); err != nil {
		return Order{}, err
	}
	if o.TotalPrice, err = decimal.NewFromString(total); err != nil {
		return Order{}, err
	}
	return o, nil
}
