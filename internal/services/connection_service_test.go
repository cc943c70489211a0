package services

import (
	"context"
	"encoding/json"
	"testing"

	"moodlink/internal/config"
	"moodlink/internal/events"
	"moodlink/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newConnectionFixture() (*fakeUserRepo, *fakeConnRepo, *fakeCountCache, *fakeProducer, ConnectionService) {
	userRepo := newFakeUserRepo()
	connRepo := newFakeConnRepo()
	cache := newFakeCountCache()
	producer := &fakeProducer{}
	svc := NewConnectionService(userRepo, connRepo, cache, producer, config.KafkaConfig{NotificationsTopic: "test-notifications"})
	return userRepo, connRepo, cache, producer, svc
}

func decodeNotification(t *testing.T, payload []byte) events.Notification {
	t.Helper()
	var n events.Notification
	require.NoError(t, json.Unmarshal(payload, &n))
	return n
}

func TestRequestCreatesPendingConnection(t *testing.T) {
	userRepo, _, cache, producer, svc := newConnectionFixture()
	userRepo.addUser(1, "luna", "calm")
	userRepo.addUser(2, "maya", "calm")

	conn, err := svc.Request(context.Background(), 1, 2)
	require.NoError(t, err)

	assert.Equal(t, models.ConnectionStatusPending, conn.Status)
	assert.Equal(t, uint(1), conn.UserLowID)
	assert.Equal(t, uint(2), conn.UserHighID)
	assert.Equal(t, uint(1), conn.RequestedBy)
	require.NotNil(t, conn.MatchedOn)
	assert.Equal(t, "calm", *conn.MatchedOn)
	assert.Nil(t, conn.AcceptedAt)

	// 目标用户的徽标缓存被失效
	assert.Contains(t, cache.invalidated, uint(2))

	evts := producer.published()
	require.Len(t, evts, 1)
	n := decodeNotification(t, evts[0].payload)
	assert.Equal(t, events.ConnectionRequested, n.Kind)
	assert.Equal(t, uint(1), n.ActorID)
	assert.Equal(t, uint(2), n.RecipientID)
	assert.Equal(t, "2", evts[0].key)
}

func TestRequestNormalizesPairOrder(t *testing.T) {
	userRepo, _, _, _, svc := newConnectionFixture()
	userRepo.addUser(1, "luna", "")
	userRepo.addUser(9, "finn", "")

	// 大 ID 发起，pair 依然规范化为 (low, high)
	conn, err := svc.Request(context.Background(), 9, 1)
	require.NoError(t, err)
	assert.Equal(t, uint(1), conn.UserLowID)
	assert.Equal(t, uint(9), conn.UserHighID)
	assert.Equal(t, uint(9), conn.RequestedBy)
}

func TestRequestWithoutSharedMood(t *testing.T) {
	userRepo, _, _, _, svc := newConnectionFixture()
	userRepo.addUser(1, "luna", "calm")
	userRepo.addUser(2, "theo", "stressed")

	conn, err := svc.Request(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Nil(t, conn.MatchedOn)
}

func TestRequestSelfRejected(t *testing.T) {
	userRepo, _, _, _, svc := newConnectionFixture()
	userRepo.addUser(1, "luna", "")

	_, err := svc.Request(context.Background(), 1, 1)
	assert.ErrorIs(t, err, ErrSelfConnection)
}

func TestRequestTargetMissing(t *testing.T) {
	userRepo, _, _, _, svc := newConnectionFixture()
	userRepo.addUser(1, "luna", "")

	_, err := svc.Request(context.Background(), 1, 42)
	assert.ErrorIs(t, err, ErrTargetNotFound)
}

func TestRequestIsIdempotent(t *testing.T) {
	userRepo, connRepo, _, producer, svc := newConnectionFixture()
	userRepo.addUser(1, "luna", "")
	userRepo.addUser(2, "maya", "")

	first, err := svc.Request(context.Background(), 1, 2)
	require.NoError(t, err)
	second, err := svc.Request(context.Background(), 1, 2)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, models.ConnectionStatusPending, second.Status)
	assert.Len(t, connRepo.conns, 1)
	// 重复请求不再发事件
	assert.Len(t, producer.published(), 1)
}

func TestRequestOnAcceptedConnectionIsNoop(t *testing.T) {
	userRepo, _, _, _, svc := newConnectionFixture()
	userRepo.addUser(1, "luna", "")
	userRepo.addUser(2, "maya", "")

	conn, err := svc.Request(context.Background(), 1, 2)
	require.NoError(t, err)
	_, err = svc.Accept(context.Background(), 2, conn.ID)
	require.NoError(t, err)

	again, err := svc.Request(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, conn.ID, again.ID)
	assert.Equal(t, models.ConnectionStatusAccepted, again.Status)
}

func TestMutualRequestAutoAccepts(t *testing.T) {
	userRepo, connRepo, _, producer, svc := newConnectionFixture()
	userRepo.addUser(1, "luna", "")
	userRepo.addUser(2, "maya", "")

	_, err := svc.Request(context.Background(), 1, 2)
	require.NoError(t, err)

	// 对方反向发起，视为双方意愿一致
	conn, err := svc.Request(context.Background(), 2, 1)
	require.NoError(t, err)

	assert.Equal(t, models.ConnectionStatusAccepted, conn.Status)
	require.NotNil(t, conn.AcceptedAt)
	assert.Len(t, connRepo.conns, 1)

	evts := producer.published()
	require.Len(t, evts, 2)
	accepted := decodeNotification(t, evts[1].payload)
	assert.Equal(t, events.ConnectionAccepted, accepted.Kind)
	assert.Equal(t, uint(2), accepted.ActorID)
	assert.Equal(t, uint(1), accepted.RecipientID)
}

func TestRequestRetriesAfterDuplicateKeyRace(t *testing.T) {
	userRepo, connRepo, _, _, svc := newConnectionFixture()
	userRepo.addUser(1, "luna", "")
	userRepo.addUser(2, "maya", "")

	// 第一次 Create 前注入对方赢得竞争的记录并返回重复键错误
	raced := false
	connRepo.beforeCreate = func(conn *models.Connection) error {
		if raced {
			return nil
		}
		raced = true
		winner := &models.Connection{
			UserLowID:   1,
			UserHighID:  2,
			RequestedBy: 2,
			Status:      models.ConnectionStatusPending,
		}
		connRepo.insert(winner)
		return gorm.ErrDuplicatedKey
	}

	conn, err := svc.Request(context.Background(), 1, 2)
	require.NoError(t, err)

	// 重读到对方的 pending 记录后按互相请求处理，直接 accepted
	assert.Equal(t, models.ConnectionStatusAccepted, conn.Status)
	assert.Equal(t, uint(2), conn.RequestedBy)
	assert.Len(t, connRepo.conns, 1)
}

func TestAcceptPendingConnection(t *testing.T) {
	userRepo, _, cache, producer, svc := newConnectionFixture()
	userRepo.addUser(1, "luna", "")
	userRepo.addUser(2, "maya", "")

	conn, err := svc.Request(context.Background(), 1, 2)
	require.NoError(t, err)

	accepted, err := svc.Accept(context.Background(), 2, conn.ID)
	require.NoError(t, err)

	assert.Equal(t, models.ConnectionStatusAccepted, accepted.Status)
	require.NotNil(t, accepted.AcceptedAt)
	assert.Contains(t, cache.invalidated, uint(2))

	evts := producer.published()
	require.Len(t, evts, 2)
	n := decodeNotification(t, evts[1].payload)
	assert.Equal(t, events.ConnectionAccepted, n.Kind)
	assert.Equal(t, uint(1), n.RecipientID)
}

func TestAcceptUnknownConnection(t *testing.T) {
	userRepo, _, _, _, svc := newConnectionFixture()
	userRepo.addUser(1, "luna", "")

	_, err := svc.Accept(context.Background(), 1, 999)
	assert.ErrorIs(t, err, ErrConnectionNotFound)
}

func TestAcceptByNonMemberLooksLikeNotFound(t *testing.T) {
	userRepo, _, _, _, svc := newConnectionFixture()
	userRepo.addUser(1, "luna", "")
	userRepo.addUser(2, "maya", "")
	userRepo.addUser(3, "theo", "")

	conn, err := svc.Request(context.Background(), 1, 2)
	require.NoError(t, err)

	_, err = svc.Accept(context.Background(), 3, conn.ID)
	assert.ErrorIs(t, err, ErrConnectionNotFound)
}

func TestAcceptOwnRequestRejected(t *testing.T) {
	userRepo, _, _, _, svc := newConnectionFixture()
	userRepo.addUser(1, "luna", "")
	userRepo.addUser(2, "maya", "")

	conn, err := svc.Request(context.Background(), 1, 2)
	require.NoError(t, err)

	_, err = svc.Accept(context.Background(), 1, conn.ID)
	assert.ErrorIs(t, err, ErrOwnRequestAccept)
}

func TestAcceptTwiceRejected(t *testing.T) {
	userRepo, _, _, _, svc := newConnectionFixture()
	userRepo.addUser(1, "luna", "")
	userRepo.addUser(2, "maya", "")

	conn, err := svc.Request(context.Background(), 1, 2)
	require.NoError(t, err)
	_, err = svc.Accept(context.Background(), 2, conn.ID)
	require.NoError(t, err)

	_, err = svc.Accept(context.Background(), 2, conn.ID)
	assert.ErrorIs(t, err, ErrAlreadyAccepted)
}

func TestListPendingReturnsIncomingOnly(t *testing.T) {
	userRepo, _, _, _, svc := newConnectionFixture()
	userRepo.addUser(1, "luna", "")
	userRepo.addUser(2, "maya", "")
	userRepo.addUser(3, "theo", "")

	// 2 收到来自 1 的请求；2 自己发给 3 的请求不应出现在列表里
	_, err := svc.Request(context.Background(), 1, 2)
	require.NoError(t, err)
	_, err = svc.Request(context.Background(), 2, 3)
	require.NoError(t, err)

	pending, err := svc.ListPending(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, uint(1), pending[0].User.ID)
	assert.Equal(t, "luna", pending[0].User.Username)
}

func TestListAcceptedReturnsCounterpartProfiles(t *testing.T) {
	userRepo, _, _, _, svc := newConnectionFixture()
	userRepo.addUser(1, "luna", "")
	userRepo.addUser(2, "maya", "")
	userRepo.addUser(3, "theo", "")

	conn, err := svc.Request(context.Background(), 1, 2)
	require.NoError(t, err)
	_, err = svc.Accept(context.Background(), 2, conn.ID)
	require.NoError(t, err)
	// 1 和 3 之间还是 pending，不计入
	_, err = svc.Request(context.Background(), 3, 1)
	require.NoError(t, err)

	contacts, err := svc.ListAccepted(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, uint(2), contacts[0].ID)

	empty, err := svc.ListAccepted(context.Background(), 3)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestCountPendingFallsBackToRepoAndCaches(t *testing.T) {
	userRepo, _, cache, _, svc := newConnectionFixture()
	userRepo.addUser(1, "luna", "")
	userRepo.addUser(2, "maya", "")

	_, err := svc.Request(context.Background(), 1, 2)
	require.NoError(t, err)

	count, err := svc.CountPending(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	// 回填了缓存
	cached, hit, err := cache.Get(context.Background(), 2)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, int64(1), cached)
}

func TestCountPendingServesFromCache(t *testing.T) {
	_, _, cache, _, svc := newConnectionFixture()

	// 缓存里的值直接返回，不碰数据库
	require.NoError(t, cache.Set(context.Background(), 7, 5))
	count, err := svc.CountPending(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(5), count)
}
