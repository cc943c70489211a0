package websocket

import (
	"encoding/json"
	"log"

	"moodlink/internal/events"
)

// Hub maintains the set of active notification clients and routes events
// to the user they belong to.
type Hub struct {
	// Registered clients, mapping UserID to Client. 每个用户只保留一条连接，
	// 新连接会顶掉旧连接。
	clients map[uint]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Notifications aimed at a specific user.
	direct chan *events.Notification
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[uint]*Client),
		direct:     make(chan *events.Notification, 256),
	}
}

// Deliver hands a notification to the hub for push delivery. 非阻塞：
// 调用方是 Kafka 消费循环，不能被慢客户端卡住。
func (h *Hub) Deliver(n *events.Notification) {
	select {
	case h.direct <- n:
	default:
		log.Printf("警告: Hub direct 通道已满，丢弃发给用户 %d 的通知 %s", n.RecipientID, n.ID)
	}
}

// Run starts the hub and listens for events on its channels.
func (h *Hub) Run() {
	log.Println("WebSocket Hub Run loop started.")
	for {
		select {
		case client := <-h.register:
			if existingClient, ok := h.clients[client.UserID]; ok {
				log.Printf("警告: 用户 %d 已有连接，关闭旧连接并注册新连接。", client.UserID)
				close(existingClient.send)
			}
			h.clients[client.UserID] = client
			log.Printf("客户端已注册: UserID %d", client.UserID)

		case client := <-h.unregister:
			// 只注销仍然在册的那条连接；已被新连接顶掉的旧连接直接忽略，
			// 避免误关新连接的发送通道。
			if storedClient, ok := h.clients[client.UserID]; ok && storedClient == client {
				delete(h.clients, client.UserID)
				close(client.send)
				log.Printf("客户端已注销: UserID %d", client.UserID)
			} else {
				log.Printf("尝试注销一个不匹配或已过期的客户端连接: UserID %d", client.UserID)
			}

		case n := <-h.direct:
			client, ok := h.clients[n.RecipientID]
			if !ok {
				// 用户不在线，徽标轮询会在下次连接时补上状态
				continue
			}

			payload, err := json.Marshal(n)
			if err != nil {
				log.Printf("错误: 无法序列化通知 %s 给 UserID %d: %v", n.ID, n.RecipientID, err)
				continue
			}

			select {
			case client.send <- payload:
			default:
				// 发送缓冲满视为客户端失活，移除之
				log.Printf("警告: UserID %d 的发送通道已满或关闭，移除客户端。", n.RecipientID)
				close(client.send)
				delete(h.clients, n.RecipientID)
			}
		}
	}
}
