package logkey

// Field names used on every structured log line.
const (
	TraceID   = "trace_id"
	ERROR     = "error"
	UserID    = "user_id"
	OrderID   = "order_id"
	OrderNum  = "order_number"
	ProductID = "product_id"
	ReviewID  = "review_id"
	Size      = "size"
	Quantity  = "quantity"
	Status    = "status"
	Method    = "method"
	Path      = "path"
	Latency   = "latency"
	ClientIP  = "client_ip"
	Component = "component"

	IntentID    = "payment_intent"
	Amount      = "amount"
	Expected    = "expected"
	OrderStatus = "order_status"
)
