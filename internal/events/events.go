// Package events publishes order lifecycle events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"solestore-backend/internal/models"
	"solestore-backend/pkg/logkey"

	"github.com/sirupsen/logrus"
	"github.com/twmb/franz-go/pkg/kgo"
)

const (
	TypeOrderCreated       = "order.created"
	TypeOrderCancelled     = "order.cancelled"
	TypeOrderStatusUpdated = "order.status_updated"
	TypeOrderPaymentUpdate = "order.payment_updated"
)

type OrderItem struct {
	ProductID string  `json:"product_id"`
	Size      float64 `json:"size"`
	Quantity  int     `json:"quantity"`
}

// OrderEvent is the record value written to the order topic, keyed by order id.
type OrderEvent struct {
	Type          string               `json:"type"`
	OrderID       string               `json:"order_id"`
	OrderNumber   string               `json:"order_number"`
	UserID        string               `json:"user_id,omitempty"`
	Status        models.OrderStatus   `json:"status"`
	PaymentStatus models.PaymentStatus `json:"payment_status"`
	Actor         string               `json:"actor,omitempty"`
	Total         float64              `json:"total"`
	Items         []OrderItem          `json:"items"`
	CreatedAt     time.Time            `json:"created_at"`
}

func NewOrderEvent(eventType string, o models.Order, actor string) OrderEvent {
	ev := OrderEvent{
		Type:          eventType,
		OrderID:       o.ID.Hex(),
		OrderNumber:   o.OrderNumber,
		Status:        o.OrderStatus,
		PaymentStatus: o.PaymentInfo.PaymentStatus,
		Actor:         actor,
		Total:         o.Pricing.Total,
		CreatedAt:     time.Now().UTC(),
	}
	if o.User != nil {
		ev.UserID = o.User.Hex()
	}
	for _, it := range o.Items {
		ev.Items = append(ev.Items, OrderItem{ProductID: it.Product.Hex(), Size: it.Size, Quantity: it.Quantity})
	}
	return ev
}

// Publisher is fire-and-forget: failures are logged, never returned.
type Publisher interface {
	Publish(ctx context.Context, ev OrderEvent)
}

type Kafka struct {
	client *kgo.Client
	log    *logrus.Logger
}

func NewKafka(brokers []string, topic string, log *logrus.Logger) (*Kafka, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("no kafka brokers configured")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.AllowAutoTopicCreation(),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &Kafka{client: client, log: log}, nil
}

func (k *Kafka) Publish(ctx context.Context, ev OrderEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		k.log.WithField(logkey.ERROR, err).Error("failed to marshal order event")
		return
	}
	record := &kgo.Record{Key: []byte(ev.OrderID), Value: data}
	k.client.Produce(context.WithoutCancel(ctx), record, func(r *kgo.Record, err error) {
		if err != nil {
			k.log.WithFields(logrus.Fields{
				logkey.ERROR:   err,
				logkey.OrderID: ev.OrderID,
				"event_type":   ev.Type,
			}).Error("failed to produce order event")
			return
		}
		k.log.WithFields(logrus.Fields{
			logkey.OrderID: ev.OrderID,
			"event_type":   ev.Type,
			"partition":    r.Partition,
			"offset":       r.Offset,
		}).Debug("order event produced")
	})
}

// Close flushes buffered records and closes the client.
func (k *Kafka) Close(ctx context.Context) {
	if err := k.client.Flush(ctx); err != nil {
		k.log.WithField(logkey.ERROR, err).Warn("kafka flush failed")
	}
	k.client.Close()
}

// Nop drops every event. Used when no brokers are configured.
type Nop struct{}

func (Nop) Publish(context.Context, OrderEvent) {}
