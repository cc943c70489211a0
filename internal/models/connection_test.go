package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalPair(t *testing.T) {
	low, high := CanonicalPair(7, 3)
	assert.Equal(t, uint(3), low)
	assert.Equal(t, uint(7), high)

	low, high = CanonicalPair(3, 7)
	assert.Equal(t, uint(3), low)
	assert.Equal(t, uint(7), high)
}

func TestConnectionEnsureCanonicalOrder(t *testing.T) {
	conn := Connection{UserLowID: 9, UserHighID: 2, RequestedBy: 9}
	conn.EnsureCanonicalOrder()

	assert.Equal(t, uint(2), conn.UserLowID)
	assert.Equal(t, uint(9), conn.UserHighID)
	// 发起方不随规范化改变
	assert.Equal(t, uint(9), conn.RequestedBy)

	// 已经有序时是 no-op
	conn.EnsureCanonicalOrder()
	assert.Equal(t, uint(2), conn.UserLowID)
	assert.Equal(t, uint(9), conn.UserHighID)
}

func TestConnectionCounterpartOf(t *testing.T) {
	conn := Connection{UserLowID: 2, UserHighID: 9}

	counterpart, ok := conn.CounterpartOf(2)
	assert.True(t, ok)
	assert.Equal(t, uint(9), counterpart)

	counterpart, ok = conn.CounterpartOf(9)
	assert.True(t, ok)
	assert.Equal(t, uint(2), counterpart)

	_, ok = conn.CounterpartOf(5)
	assert.False(t, ok)
}

func TestConnectionHasMember(t *testing.T) {
	conn := Connection{UserLowID: 2, UserHighID: 9}
	assert.True(t, conn.HasMember(2))
	assert.True(t, conn.HasMember(9))
	assert.False(t, conn.HasMember(5))
}

func TestDirectMessageEnsureCanonicalOrder(t *testing.T) {
	msg := DirectMessage{SenderID: 9, ReceiverID: 2}
	msg.EnsureCanonicalOrder()
	assert.Equal(t, uint(2), msg.UserLowID)
	assert.Equal(t, uint(9), msg.UserHighID)

	reply := DirectMessage{SenderID: 2, ReceiverID: 9}
	reply.EnsureCanonicalOrder()
	// 两个方向落在同一个线程键上
	assert.Equal(t, msg.UserLowID, reply.UserLowID)
	assert.Equal(t, msg.UserHighID, reply.UserHighID)
}

func TestValidMessageType(t *testing.T) {
	assert.True(t, ValidMessageType(TextMessageType))
	assert.True(t, ValidMessageType(ImageMessageType))
	assert.True(t, ValidMessageType(VoiceMessageType))
	assert.True(t, ValidMessageType(FileMessageType))
	assert.False(t, ValidMessageType(MessageType("sticker")))
	assert.False(t, ValidMessageType(MessageType("")))
}
