package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"moodlink/internal/config"
	"moodlink/internal/events"
	appKafka "moodlink/internal/kafka"
	"moodlink/internal/models"
	"moodlink/internal/storage"

	"github.com/google/uuid"
)

var (
	ErrNotConnected       = errors.New("双方尚未建立已接受的连接，无法进行私信操作")
	ErrEmptyTextContent   = errors.New("文本消息内容不能为空")
	ErrInvalidMessageType = errors.New("不支持的消息类型")
	ErrSelfMessage        = errors.New("不能给自己发送私信")
)

// DefaultHistoryLimit 是 History 未指定 limit 时的默认条数。
const DefaultHistoryLimit = 50

// DirectMessageService defines the interface for direct message operations.
// 所有操作都以已接受的连接为前提（Clear 除外，见各方法说明）。
type DirectMessageService interface {
	// Send 追加一条私信并返回存储后的记录（含生成的 id 和时间戳）。
	// 没有已接受连接时返回 ErrNotConnected。
	Send(ctx context.Context, senderID, receiverID uint, content string, msgType models.MessageType) (*models.DirectMessage, error)
	// History 返回 pair 的消息线程，从最旧到最新排序（固定约定）。
	// limit <= 0 时取 DefaultHistoryLimit。只读，可以安全地重复调用。
	History(ctx context.Context, userA, userB uint, limit, offset int) ([]*models.DirectMessage, error)
	// Clear 删除 pair 的全部消息。幂等：清空一个已空的线程也会静默成功。
	// 不改变连接的状态。
	Clear(ctx context.Context, userA, userB uint) error
}

type directMessageService struct {
	msgRepo  storage.DirectMessageRepository
	connRepo storage.ConnectionRepository
	producer appKafka.EventProducer
	kafkaCfg config.KafkaConfig
}

// NewDirectMessageService creates a new DirectMessageService instance.
func NewDirectMessageService(
	msgRepo storage.DirectMessageRepository,
	connRepo storage.ConnectionRepository,
	producer appKafka.EventProducer,
	kafkaCfg config.KafkaConfig,
) DirectMessageService {
	return &directMessageService{
		msgRepo:  msgRepo,
		connRepo: connRepo,
		producer: producer,
		kafkaCfg: kafkaCfg,
	}
}

// Send validates the pair's connection state and appends the message.
func (s *directMessageService) Send(ctx context.Context, senderID, receiverID uint, content string, msgType models.MessageType) (*models.DirectMessage, error) {
	if senderID == receiverID {
		return nil, ErrSelfMessage
	}
	if !models.ValidMessageType(msgType) {
		return nil, ErrInvalidMessageType
	}
	// 文本必须非空；image/voice/file 的 content 是调用方负责的引用串
	// （URL 或标签），这里不抓取也不校验其有效性。
	if msgType == models.TextMessageType && strings.TrimSpace(content) == "" {
		return nil, ErrEmptyTextContent
	}

	if err := s.requireAcceptedConnection(ctx, senderID, receiverID); err != nil {
		return nil, err
	}

	msg := &models.DirectMessage{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Type:       msgType,
		Content:    content,
	}
	msg.EnsureCanonicalOrder()

	if err := s.msgRepo.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("存储私信失败: %w", err)
	}

	s.publishMessageCreated(msg)
	return msg, nil
}

// History retrieves the pair's thread, oldest first.
func (s *directMessageService) History(ctx context.Context, userA, userB uint, limit, offset int) ([]*models.DirectMessage, error) {
	if err := s.requireAcceptedConnection(ctx, userA, userB); err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}

	low, high := models.CanonicalPair(userA, userB)
	messages, err := s.msgRepo.ListByPair(ctx, low, high, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("获取私信历史失败: %w", err)
	}
	if messages == nil {
		messages = []*models.DirectMessage{}
	}
	return messages, nil
}

// Clear bulk-deletes the pair's thread. The connection record is untouched,
// so a subsequent Send succeeds immediately.
func (s *directMessageService) Clear(ctx context.Context, userA, userB uint) error {
	low, high := models.CanonicalPair(userA, userB)
	deleted, err := s.msgRepo.DeleteByPair(ctx, low, high)
	if err != nil {
		return fmt.Errorf("清空私信历史失败: %w", err)
	}
	if deleted > 0 {
		log.Printf("已清空 pair (%d, %d) 的 %d 条私信。", low, high, deleted)
	}
	return nil
}

// requireAcceptedConnection 检查 pair 是否存在已接受的连接。
func (s *directMessageService) requireAcceptedConnection(ctx context.Context, userA, userB uint) error {
	low, high := models.CanonicalPair(userA, userB)
	conn, err := s.connRepo.FindByPair(ctx, low, high)
	if err != nil {
		return fmt.Errorf("检查连接状态失败: %w", err)
	}
	if conn == nil || conn.Status != models.ConnectionStatusAccepted {
		return ErrNotConnected
	}
	return nil
}

// publishMessageCreated 尽力推送新私信事件给接收方的通知通道。
func (s *directMessageService) publishMessageCreated(msg *models.DirectMessage) {
	if s.producer == nil {
		return
	}
	n := &events.Notification{
		ID:          uuid.NewString(),
		Kind:        events.MessageCreated,
		ActorID:     msg.SenderID,
		RecipientID: msg.ReceiverID,
		MessageID:   msg.ID,
		Timestamp:   time.Now(),
	}
	payload, err := json.Marshal(n)
	if err != nil {
		log.Printf("序列化私信通知事件失败: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	key := []byte(fmt.Sprintf("%d", n.RecipientID))
	if err := s.producer.Publish(ctx, s.kafkaCfg.NotificationsTopic, key, payload); err != nil {
		log.Printf("发布私信通知事件失败 (message %d): %v", msg.ID, err)
	}
}
