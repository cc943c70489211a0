package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"moodlink/internal/config"
	"moodlink/internal/events"
	appKafka "moodlink/internal/kafka"
	"moodlink/internal/models"
	"moodlink/internal/storage"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrSelfConnection     = errors.New("不能与自己建立连接")
	ErrTargetNotFound     = errors.New("目标用户不存在")
	ErrConnectionNotFound = errors.New("连接请求不存在")
	ErrAlreadyAccepted    = errors.New("该连接已经是已接受状态")
	ErrOwnRequestAccept   = errors.New("不能接受自己发起的连接请求")
)

// ConnectionService defines the interface for connection state machine operations.
type ConnectionService interface {
	// Request 发起连接请求。重复点击是幂等的；如果对方已先发起请求，
	// 双方意愿视为一致，连接直接进入 accepted（详见 DESIGN.md 的策略说明）。
	Request(ctx context.Context, requesterID, targetID uint) (*models.Connection, error)
	// Accept 接受一个待处理的连接请求。只有 pair 中非发起方可以接受。
	Accept(ctx context.Context, actorID, connectionID uint) (*models.Connection, error)
	ListPending(ctx context.Context, userID uint) ([]*models.ConnectionWithUser, error)
	ListAccepted(ctx context.Context, userID uint) ([]*models.UserBasicInfo, error)
	CountPending(ctx context.Context, userID uint) (int64, error)
}

type connectionService struct {
	userRepo storage.UserRepository
	connRepo storage.ConnectionRepository
	cache    PendingCountCache
	producer appKafka.EventProducer
	kafkaCfg config.KafkaConfig
}

// NewConnectionService creates a new ConnectionService instance.
// cache 和 producer 都可以为 nil（测试或降级场景），服务会跳过对应步骤。
func NewConnectionService(
	userRepo storage.UserRepository,
	connRepo storage.ConnectionRepository,
	cache PendingCountCache,
	producer appKafka.EventProducer,
	kafkaCfg config.KafkaConfig,
) ConnectionService {
	return &connectionService{
		userRepo: userRepo,
		connRepo: connRepo,
		cache:    cache,
		producer: producer,
		kafkaCfg: kafkaCfg,
	}
}

// Request implements the per-pair state machine for new requests.
//
// check-then-insert 与并发的另一个 Request 之间存在竞争：两边都可能看不到对方
// 的记录。pair 上的唯一索引保证只有一边的 INSERT 成功，失败的一边拿到
// gorm.ErrDuplicatedKey 后重读赢家的记录，再按幂等规则处理，所以最多循环两轮。
func (s *connectionService) Request(ctx context.Context, requesterID, targetID uint) (*models.Connection, error) {
	if requesterID == targetID {
		return nil, ErrSelfConnection
	}

	requester, err := s.userRepo.GetByID(ctx, requesterID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTargetNotFound
		}
		return nil, fmt.Errorf("检查请求用户时出错: %w", err)
	}
	target, err := s.userRepo.GetByID(ctx, targetID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTargetNotFound
		}
		return nil, fmt.Errorf("检查目标用户时出错: %w", err)
	}

	low, high := models.CanonicalPair(requesterID, targetID)

	for attempt := 0; attempt < 2; attempt++ {
		existing, err := s.connRepo.FindByPair(ctx, low, high)
		if err != nil {
			return nil, fmt.Errorf("查找现有连接时出错: %w", err)
		}

		if existing == nil {
			conn := &models.Connection{
				UserLowID:   requesterID,
				UserHighID:  targetID,
				RequestedBy: requesterID,
				Status:      models.ConnectionStatusPending,
				MatchedOn:   sharedMood(requester, target),
			}
			conn.EnsureCanonicalOrder()
			if err := s.connRepo.Create(ctx, conn); err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					// 输掉了并发竞争，重读赢家的记录再走幂等分支
					continue
				}
				return nil, fmt.Errorf("创建连接请求失败: %w", err)
			}
			s.invalidatePendingCount(ctx, targetID)
			s.publishNotification(&events.Notification{
				Kind:         events.ConnectionRequested,
				ActorID:      requesterID,
				RecipientID:  targetID,
				ConnectionID: conn.ID,
				MatchedOn:    conn.MatchedOn,
			})
			return conn, nil
		}

		if existing.Status == models.ConnectionStatusAccepted {
			// 已经连接，重复请求按 no-op 处理
			return existing, nil
		}

		if existing.RequestedBy == requesterID {
			// 重复点击，不新建也不报错
			return existing, nil
		}

		// 对方已先发起请求：双方意愿一致，等价于接受
		updated, err := s.acceptExisting(ctx, existing, requesterID)
		if err != nil {
			return nil, err
		}
		return updated, nil
	}

	return nil, fmt.Errorf("连接请求在并发竞争后仍未收敛 (pair %d-%d)", low, high)
}

// Accept processes the acceptance of a pending connection request.
func (s *connectionService) Accept(ctx context.Context, actorID, connectionID uint) (*models.Connection, error) {
	conn, err := s.connRepo.GetByID(ctx, connectionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConnectionNotFound
		}
		return nil, fmt.Errorf("检索连接请求失败: %w", err)
	}

	// 非当事人按不存在处理，避免泄露他人的连接关系
	if !conn.HasMember(actorID) {
		return nil, ErrConnectionNotFound
	}
	if conn.Status != models.ConnectionStatusPending {
		return nil, ErrAlreadyAccepted
	}
	if conn.RequestedBy == actorID {
		return nil, ErrOwnRequestAccept
	}

	return s.acceptExisting(ctx, conn, actorID)
}

// acceptExisting flips a pending connection to accepted and emits the
// follow-up side effects. The status guard in MarkAccepted resolves
// concurrent accepts: the loser rereads and returns the winner's row.
func (s *connectionService) acceptExisting(ctx context.Context, conn *models.Connection, actorID uint) (*models.Connection, error) {
	now := time.Now()
	rows, err := s.connRepo.MarkAccepted(ctx, conn.ID, now)
	if err != nil {
		return nil, fmt.Errorf("更新连接状态失败: %w", err)
	}
	if rows == 0 {
		// 并发方先接受了，直接返回当前状态
		updated, err := s.connRepo.GetByID(ctx, conn.ID)
		if err != nil {
			return nil, fmt.Errorf("重读连接状态失败: %w", err)
		}
		return updated, nil
	}

	conn.Status = models.ConnectionStatusAccepted
	conn.AcceptedAt = &now

	// 接受方的待处理计数减一
	s.invalidatePendingCount(ctx, actorID)

	if counterpart, ok := conn.CounterpartOf(actorID); ok {
		s.publishNotification(&events.Notification{
			Kind:         events.ConnectionAccepted,
			ActorID:      actorID,
			RecipientID:  counterpart,
			ConnectionID: conn.ID,
		})
	}

	log.Printf("连接 %d 已被用户 %d 接受。", conn.ID, actorID)
	return conn, nil
}

// ListPending retrieves incoming pending requests joined with requester profiles.
func (s *connectionService) ListPending(ctx context.Context, userID uint) ([]*models.ConnectionWithUser, error) {
	pending, err := s.connRepo.ListPendingFor(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("获取待处理连接请求失败: %w", err)
	}

	result := []*models.ConnectionWithUser{}
	for _, conn := range pending {
		counterpart, ok := conn.CounterpartOf(userID)
		if !ok {
			continue
		}
		profile, err := s.userRepo.GetBasicInfoByID(ctx, counterpart)
		if err != nil {
			log.Printf("获取用户 %d 的资料失败 (连接 %d): %v", counterpart, conn.ID, err)
			continue
		}
		result = append(result, &models.ConnectionWithUser{
			ConnectionID: conn.ID,
			User:         profile,
			MatchedOn:    conn.MatchedOn,
			CreatedAt:    conn.CreatedAt,
		})
	}
	return result, nil
}

// ListAccepted retrieves counterpart profiles (with presence) for all accepted connections.
func (s *connectionService) ListAccepted(ctx context.Context, userID uint) ([]*models.UserBasicInfo, error) {
	conns, err := s.connRepo.ListAcceptedFor(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("获取已连接列表失败: %w", err)
	}

	counterpartIDs := make([]uint, 0, len(conns))
	for _, conn := range conns {
		if counterpart, ok := conn.CounterpartOf(userID); ok {
			counterpartIDs = append(counterpartIDs, counterpart)
		}
	}
	if len(counterpartIDs) == 0 {
		return []*models.UserBasicInfo{}, nil
	}

	profiles, err := s.userRepo.GetMultipleBasicInfoByIDs(ctx, counterpartIDs)
	if err != nil {
		return nil, fmt.Errorf("获取联系人资料失败: %w", err)
	}
	return profiles, nil
}

// CountPending returns the badge count, served from cache when possible.
func (s *connectionService) CountPending(ctx context.Context, userID uint) (int64, error) {
	if s.cache != nil {
		count, hit, err := s.cache.Get(ctx, userID)
		if err != nil {
			log.Printf("待处理计数缓存读取失败 (user %d)，回源数据库: %v", userID, err)
		} else if hit {
			return count, nil
		}
	}

	count, err := s.connRepo.CountPendingFor(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("统计待处理请求失败: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, userID, count); err != nil {
			log.Printf("待处理计数缓存写入失败 (user %d): %v", userID, err)
		}
	}
	return count, nil
}

// sharedMood 返回请求时双方共同的情绪；不一致或缺失时为 nil。
func sharedMood(a, b *models.User) *string {
	if a.CurrentMood == nil || b.CurrentMood == nil {
		return nil
	}
	if *a.CurrentMood == "" || *a.CurrentMood != *b.CurrentMood {
		return nil
	}
	mood := *a.CurrentMood
	return &mood
}

func (s *connectionService) invalidatePendingCount(ctx context.Context, userID uint) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, userID); err != nil {
		log.Printf("失效用户 %d 的待处理计数缓存失败: %v", userID, err)
	}
}

// publishNotification 在提交后尽力发布事件；失败只记录日志，
// 不影响用户操作本身（徽标轮询兜底）。
func (s *connectionService) publishNotification(n *events.Notification) {
	if s.producer == nil {
		return
	}
	n.ID = uuid.NewString()
	n.Timestamp = time.Now()

	payload, err := json.Marshal(n)
	if err != nil {
		log.Printf("序列化通知事件失败 (%s): %v", n.Kind, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	key := []byte(fmt.Sprintf("%d", n.RecipientID))
	if err := s.producer.Publish(ctx, s.kafkaCfg.NotificationsTopic, key, payload); err != nil {
		log.Printf("发布通知事件到 topic %s 失败 (%s): %v", s.kafkaCfg.NotificationsTopic, n.Kind, err)
	}
}
