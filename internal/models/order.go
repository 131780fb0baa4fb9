package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type OrderStatus string

const (
	OrderProcessing OrderStatus = "processing"
	OrderShipped    OrderStatus = "shipped"
	OrderDelivered  OrderStatus = "delivered"
	OrderCancelled  OrderStatus = "cancelled"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderProcessing, OrderShipped, OrderDelivered, OrderCancelled:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentPaid, PaymentFailed, PaymentRefunded:
		return true
	}
	return false
}

// OrderItem is a snapshot of the product taken when the order was placed.
// It is never updated afterwards.
type OrderItem struct {
	Product  primitive.ObjectID `bson:"product" json:"product"`
	Name     string             `bson:"name" json:"name"`
	Price    float64            `bson:"price" json:"price"`
	Size     float64            `bson:"size" json:"size"`
	Quantity int                `bson:"quantity" json:"quantity"`
	Image    string             `bson:"image" json:"image"`
}

type Pricing struct {
	Subtotal float64 `bson:"subtotal" json:"subtotal" validate:"gte=0"`
	Shipping float64 `bson:"shipping" json:"shipping" validate:"gte=0"`
	Tax      float64 `bson:"tax" json:"tax" validate:"gte=0"`
	Total    float64 `bson:"total" json:"total" validate:"gte=0"`
}

type ShippingInfo struct {
	FullName string `bson:"fullName" json:"fullName" validate:"required"`
	Email    string `bson:"email" json:"email" validate:"omitempty,email"`
	Phone    string `bson:"phone" json:"phone"`
	Address  string `bson:"address" json:"address" validate:"required"`
	City     string `bson:"city" json:"city" validate:"required"`
	State    string `bson:"state" json:"state"`
	ZipCode  string `bson:"zipCode" json:"zipCode"`
	Country  string `bson:"country" json:"country"`
}

type PaymentInfo struct {
	PaymentIntentID string        `bson:"paymentIntentId,omitempty" json:"paymentIntentId,omitempty"`
	PaymentMethod   string        `bson:"paymentMethod" json:"paymentMethod"`
	PaymentStatus   PaymentStatus `bson:"paymentStatus" json:"paymentStatus"`
	PaidAt          *time.Time    `bson:"paidAt,omitempty" json:"paidAt,omitempty"`
}

type Order struct {
	ID           primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	User         *primitive.ObjectID `bson:"user,omitempty" json:"user"`
	OrderNumber  string              `bson:"orderNumber" json:"orderNumber"`
	Items        []OrderItem         `bson:"items" json:"items"`
	ShippingInfo ShippingInfo        `bson:"shippingInfo" json:"shippingInfo"`
	Pricing      Pricing             `bson:"pricing" json:"pricing"`
	PaymentInfo  PaymentInfo         `bson:"paymentInfo" json:"paymentInfo"`
	OrderStatus  OrderStatus         `bson:"orderStatus" json:"orderStatus"`
	CreatedAt    time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time           `bson:"updatedAt" json:"updatedAt"`
}

// IsGuest reports whether the order was placed without an account.
func (o Order) IsGuest() bool { return o.User == nil }

func (o Order) OwnedBy(userID primitive.ObjectID) bool {
	return o.User != nil && *o.User == userID
}
