package services

import (
	"context"
	"testing"

	"moodlink/internal/config"
	"moodlink/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 端到端走一遍连接+私信的典型流程，两个服务共享同一套存储。
func TestConnectionAndMessagingLifecycle(t *testing.T) {
	ctx := context.Background()

	userRepo := newFakeUserRepo()
	connRepo := newFakeConnRepo()
	msgRepo := newFakeMsgRepo()
	cache := newFakeCountCache()
	producer := &fakeProducer{}
	kafkaCfg := config.KafkaConfig{NotificationsTopic: "test-notifications"}

	connSvc := NewConnectionService(userRepo, connRepo, cache, producer, kafkaCfg)
	msgSvc := NewDirectMessageService(msgRepo, connRepo, producer, kafkaCfg)

	userRepo.addUser(1, "luna", "anxious")
	userRepo.addUser(2, "maya", "anxious")

	// 连接前发私信被拒
	_, err := msgSvc.Send(ctx, 1, 2, "hello", models.TextMessageType)
	require.ErrorIs(t, err, ErrNotConnected)

	// 1 向 2 发起请求，共同情绪被记录
	conn, err := connSvc.Request(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionStatusPending, conn.Status)
	assert.Equal(t, uint(1), conn.RequestedBy)
	require.NotNil(t, conn.MatchedOn)
	assert.Equal(t, "anxious", *conn.MatchedOn)

	// 2 的徽标 +1
	count, err := connSvc.CountPending(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	// 2 接受，徽标回到 0
	_, err = connSvc.Accept(ctx, 2, conn.ID)
	require.NoError(t, err)
	count, err = connSvc.CountPending(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	// 1 再接受一次是状态机错误
	_, err = connSvc.Accept(ctx, 1, conn.ID)
	assert.ErrorIs(t, err, ErrAlreadyAccepted)

	// 现在可以发消息了
	_, err = msgSvc.Send(ctx, 1, 2, "hello", models.TextMessageType)
	require.NoError(t, err)

	history, err := msgSvc.History(ctx, 1, 2, 0, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "hello", history[0].Content)

	// 清空后线程为空，连接保持 accepted
	require.NoError(t, msgSvc.Clear(ctx, 2, 1))
	history, err = msgSvc.History(ctx, 1, 2, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, history)

	stored, err := connRepo.GetByID(ctx, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionStatusAccepted, stored.Status)

	// 清空之后继续发，历史只包含新消息
	_, err = msgSvc.Send(ctx, 2, 1, "fresh start", models.TextMessageType)
	require.NoError(t, err)
	history, err = msgSvc.History(ctx, 1, 2, 0, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "fresh start", history[0].Content)
}
