package kafkahandlers

import (
	"context"
	"encoding/json"
	"log"

	"moodlink/internal/events"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// NotificationSink 是消费端的投递目标，由 WebSocket Hub 实现。
type NotificationSink interface {
	Deliver(n *events.Notification)
}

// NotificationConsumerLogic turns notification events from Kafka into pushes
// to connected WebSocket clients.
type NotificationConsumerLogic struct {
	sink NotificationSink
}

// NewNotificationConsumerLogic creates a new instance of NotificationConsumerLogic.
func NewNotificationConsumerLogic(sink NotificationSink) *NotificationConsumerLogic {
	if sink == nil {
		log.Panic("NotificationSink cannot be nil")
	}
	return &NotificationConsumerLogic{sink: sink}
}

// HandleNotification is the MessageHandler passed to the Kafka consumer.
// 坏消息（无法反序列化）直接跳过并提交 offset，不做重试。
func (h *NotificationConsumerLogic) HandleNotification(ctx context.Context, msg *kafka.Message) error {
	var n events.Notification
	if err := json.Unmarshal(msg.Value, &n); err != nil {
		log.Printf("Error unmarshalling notification event (Value: '%s'): %v. This message will be skipped.", string(msg.Value), err)
		return nil
	}

	if n.RecipientID == 0 {
		log.Printf("Notification %s has no recipient, skipping.", n.ID)
		return nil
	}

	h.sink.Deliver(&n)
	return nil
}
