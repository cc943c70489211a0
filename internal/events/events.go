// Package events holds the notification payloads shared between the services
// layer (producer side), the Kafka pipeline and the WebSocket push path.
// 独立成包以避免 services 与 websocket 之间的循环导入。
package events

import "time"

// NotificationKind 定义通知事件的种类。
type NotificationKind string

const (
	ConnectionRequested NotificationKind = "connection.requested"
	ConnectionAccepted  NotificationKind = "connection.accepted"
	MessageCreated      NotificationKind = "message.created"
	PendingCountUpdated NotificationKind = "pending.count" // 徽标轮询推送，不经过 Kafka
)

// Notification is the event envelope published to the notifications topic and
// pushed to WebSocket clients. RecipientID decides which client gets it.
type Notification struct {
	ID           string           `json:"id"` // uuid，便于消费端去重
	Kind         NotificationKind `json:"kind"`
	ActorID      uint             `json:"actorId,omitempty"` // 触发事件的用户
	RecipientID  uint             `json:"recipientId"`
	ConnectionID uint             `json:"connectionId,omitempty"`
	MessageID    uint             `json:"messageId,omitempty"`
	MatchedOn    *string          `json:"matchedOn,omitempty"`
	PendingCount int64            `json:"pendingCount,omitempty"` // 仅 PendingCountUpdated
	Timestamp    time.Time        `json:"timestamp"`
}

// ClientCommand 是客户端通过 WebSocket 上行的控制消息。
// 目前只有 "refresh"：导航/路由变化时立刻刷新一次徽标计数。
type ClientCommand struct {
	Type string `json:"type"`
}
