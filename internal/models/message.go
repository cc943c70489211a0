package models

// MessageType 定义私信的内容类型。
type MessageType string

const (
	TextMessageType  MessageType = "text"
	ImageMessageType MessageType = "image"
	VoiceMessageType MessageType = "voice"
	FileMessageType  MessageType = "file"
)

// ValidMessageType reports whether t is one of the supported content types.
func ValidMessageType(t MessageType) bool {
	switch t {
	case TextMessageType, ImageMessageType, VoiceMessageType, FileMessageType:
		return true
	}
	return false
}

// DirectMessage 代表一条已接受连接双方之间的私信。
// 消息用规范化的 pair (UserLowID < UserHighID) 作为线程键，这样同一对用户的
// 全部消息可以按 pair 做范围扫描；线程内按 (created_at, id) 升序排列。
type DirectMessage struct {
	BaseModel
	UserLowID  uint        `gorm:"not null;index:idx_dm_pair_created,priority:1" json:"-"`
	UserHighID uint        `gorm:"not null;index:idx_dm_pair_created,priority:2" json:"-"`
	SenderID   uint        `gorm:"not null" json:"senderId"`
	ReceiverID uint        `gorm:"not null" json:"receiverId"`
	Type       MessageType `gorm:"type:varchar(20);not null" json:"type"`
	Content    string      `gorm:"type:text" json:"content"` // 文本内容，或 image/voice/file 的引用（URL/标签）
}

// TableName 指定 DirectMessage 模型的表名。
func (DirectMessage) TableName() string {
	return "direct_messages"
}

// EnsureCanonicalOrder derives the pair key from sender and receiver.
// This must be called before creating a DirectMessage record.
func (m *DirectMessage) EnsureCanonicalOrder() {
	m.UserLowID, m.UserHighID = CanonicalPair(m.SenderID, m.ReceiverID)
}
