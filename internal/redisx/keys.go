package redisx

import "time"

const (
	// Cached order status: order_status:{order_id} -> StatusEntry JSON
	KeyOrderStatus = "order_status:%s"

	// Gateway callback dedup: dedup:payment:{transaction_id}
	KeyPaymentDedup = "dedup:payment:%s"
)

var (
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
