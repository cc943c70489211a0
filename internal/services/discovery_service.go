package services

import (
	"context"
	"fmt"

	"moodlink/internal/models"
	"moodlink/internal/storage"
)

// DiscoveryLimit 是一次 discover 返回的候选人数上限。
const DiscoveryLimit = 20

// DiscoveredUser is a directory candidate annotated with whether the
// requester already reached out to them (pending or accepted).
type DiscoveredUser struct {
	models.UserBasicInfo
	Requested bool `json:"requested"`
}

// DiscoveryService defines the interface for mood-filtered peer discovery.
type DiscoveryService interface {
	// Discover 返回目录中可连接的候选人，排除请求者本人；mood 非空时只返回
	// 当前情绪与之相等的用户。结果顺序即目录顺序，快照语义：同样的输入在
	// 没有写入发生时给出一致的结果。
	Discover(ctx context.Context, requesterID uint, mood string) ([]*DiscoveredUser, error)
}

type discoveryService struct {
	userRepo storage.UserRepository
	connRepo storage.ConnectionRepository
}

// NewDiscoveryService creates a new DiscoveryService instance.
func NewDiscoveryService(userRepo storage.UserRepository, connRepo storage.ConnectionRepository) DiscoveryService {
	return &discoveryService{userRepo: userRepo, connRepo: connRepo}
}

// Discover queries the directory and annotates each candidate.
func (s *discoveryService) Discover(ctx context.Context, requesterID uint, mood string) ([]*DiscoveredUser, error) {
	candidates, err := s.userRepo.ListCandidates(ctx, requesterID, mood, DiscoveryLimit)
	if err != nil {
		return nil, fmt.Errorf("查询候选用户失败: %w", err)
	}

	// 一次取出请求者发起过的全部连接，避免逐个候选人查询
	initiated, err := s.connRepo.ListRequestedBy(ctx, requesterID)
	if err != nil {
		return nil, fmt.Errorf("查询已发起的连接失败: %w", err)
	}
	requestedSet := make(map[uint]struct{}, len(initiated))
	for _, conn := range initiated {
		if counterpart, ok := conn.CounterpartOf(requesterID); ok {
			requestedSet[counterpart] = struct{}{}
		}
	}

	result := make([]*DiscoveredUser, 0, len(candidates))
	for _, candidate := range candidates {
		_, requested := requestedSet[candidate.ID]
		result = append(result, &DiscoveredUser{
			UserBasicInfo: *candidate,
			Requested:     requested,
		})
	}
	return result, nil
}
