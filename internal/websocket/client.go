package websocket

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"moodlink/internal/config"
	"moodlink/internal/events"
	"moodlink/internal/poller"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// BadgeCounter provides the pending-request count pushed to each client.
// 由 services.ConnectionService 实现。
type BadgeCounter interface {
	CountPending(ctx context.Context, userID uint) (int64, error)
}

// PresenceStore records whether a user currently holds a notification
// connection. 由 storage.UserRepository 实现。
type PresenceStore interface {
	SetPresence(ctx context.Context, userID uint, online bool) error
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan []byte

	// Authenticated User ID for this client.
	UserID uint `json:"userId"`

	// Per-connection badge poller; readPump 通过它响应 refresh 命令。
	badgePoller *poller.Poller

	// cancel 终结与连接同生命周期的后台工作（轮询）。
	cancel context.CancelFunc

	presence PresenceStore
}

// readPump pumps control messages from the websocket connection.
// 上行只有 ClientCommand 一种消息；"refresh" 触发一次立即的徽标刷新。
func (c *Client) readPump(wsCfg config.WebSocketConfig) {
	defer func() {
		c.hub.unregister <- c
		c.badgePoller.Stop()
		c.cancel()
		c.markOffline()
		c.conn.Close()
	}()
	c.conn.SetReadLimit(int64(wsCfg.MaxMessageSizeBytes))
	c.conn.SetReadDeadline(time.Now().Add(time.Duration(wsCfg.PongWaitSeconds) * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(time.Duration(wsCfg.PongWaitSeconds) * time.Second))
		return nil
	})

	for {
		messageType, rawMessage, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket 错误 (客户端: %d): %v", c.UserID, err)
			} else {
				log.Printf("WebSocket 读取消息错误 (客户端: %d): %v", c.UserID, err)
			}
			break
		}

		if messageType != websocket.TextMessage {
			log.Printf("警告: 客户端 %d 发送了非文本消息类型: %d", c.UserID, messageType)
			continue
		}

		var cmd events.ClientCommand
		if err := json.Unmarshal(rawMessage, &cmd); err != nil {
			log.Printf("错误: 无法反序列化来自客户端 %d 的JSON: %v, 原始消息: %s", c.UserID, err, string(rawMessage))
			continue
		}

		switch cmd.Type {
		case "refresh":
			c.badgePoller.Poke()
		default:
			log.Printf("收到未知类型的客户端命令: %s (客户端: %d)", cmd.Type, c.UserID)
		}
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump(wsCfg config.WebSocketConfig) {
	ticker := time.NewTicker(time.Duration(wsCfg.PingPeriodSeconds) * time.Second)
	newlineBytes := []byte("\n")
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(time.Duration(wsCfg.WriteWaitSeconds) * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// 聚合发送队列中积压的其他通知
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write(newlineBytes)
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(time.Duration(wsCfg.WriteWaitSeconds) * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// deliverBadgeCount 把轮询结果包装成 PendingCountUpdated 事件排入发送队列。
func (c *Client) deliverBadgeCount(count int64) {
	n := events.Notification{
		ID:           uuid.NewString(),
		Kind:         events.PendingCountUpdated,
		RecipientID:  c.UserID,
		PendingCount: count,
		Timestamp:    time.Now(),
	}
	payload, err := json.Marshal(n)
	if err != nil {
		log.Printf("错误: 无法序列化徽标计数事件 (客户端: %d): %v", c.UserID, err)
		return
	}
	select {
	case c.send <- payload:
	default:
		// 发送缓冲满时丢弃，下一个周期会带来新值
	}
}

func (c *Client) markOffline() {
	if c.presence == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.presence.SetPresence(ctx, c.UserID, false); err != nil {
		log.Printf("标记用户 %d 离线失败: %v", c.UserID, err)
	}
}

// ServeWS 处理来自对等方的通知 websocket 请求。
func ServeWS(hub *Hub, counter BadgeCounter, presence PresenceStore, userID uint, w http.ResponseWriter, r *http.Request, wsCfg config.WebSocketConfig, pollerCfg config.PollerConfig) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("ServeWS - Upgrade失败:", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, 256),
		UserID:   userID,
		cancel:   cancel,
		presence: presence,
	}
	client.badgePoller = poller.New(
		time.Duration(pollerCfg.IntervalSeconds)*time.Second,
		func(ctx context.Context) (int64, error) {
			return counter.CountPending(ctx, userID)
		},
		client.deliverBadgeCount,
	)

	client.hub.register <- client

	if presence != nil {
		if err := presence.SetPresence(ctx, userID, true); err != nil {
			log.Printf("标记用户 %d 在线失败: %v", userID, err)
		}
	}

	go client.writePump(wsCfg)
	go client.readPump(wsCfg)
	client.badgePoller.Start(ctx)

	log.Printf("客户端已连接: UserID %d", userID)
}
