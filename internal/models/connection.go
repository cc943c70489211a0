package models

import "time"

// ConnectionStatus 定义连接关系的状态。
type ConnectionStatus string

const (
	ConnectionStatusPending  ConnectionStatus = "pending"
	ConnectionStatusAccepted ConnectionStatus = "accepted"
)

// Connection represents the relationship between two users. The pair is
// unordered, so UserLowID must always be less than UserHighID; the composite
// unique index then guarantees at most one record per pair.
type Connection struct {
	BaseModel
	UserLowID   uint             `gorm:"not null;uniqueIndex:idx_connection_pair" json:"userLowId"`
	UserHighID  uint             `gorm:"not null;uniqueIndex:idx_connection_pair" json:"userHighId"`
	RequestedBy uint             `gorm:"not null" json:"requestedBy"` // 发起请求的一方，必须是 pair 的成员
	Status      ConnectionStatus `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	MatchedOn   *string          `gorm:"type:varchar(30)" json:"matchedOn,omitempty"` // 请求时双方共同的情绪，仅用于展示
	AcceptedAt  *time.Time       `json:"acceptedAt,omitempty"`                        // 非空 当且仅当 Status == accepted
}

// TableName 指定 Connection 模型的表名。
func (Connection) TableName() string {
	return "connections"
}

// EnsureCanonicalOrder sets UserLowID to the smaller ID and UserHighID to the
// larger ID. This must be called before creating a Connection record.
func (c *Connection) EnsureCanonicalOrder() {
	if c.UserLowID > c.UserHighID {
		c.UserLowID, c.UserHighID = c.UserHighID, c.UserLowID
	}
}

// CounterpartOf returns the other member of the pair. The second return value
// is false when userID is not a member.
func (c *Connection) CounterpartOf(userID uint) (uint, bool) {
	switch userID {
	case c.UserLowID:
		return c.UserHighID, true
	case c.UserHighID:
		return c.UserLowID, true
	default:
		return 0, false
	}
}

// HasMember reports whether userID belongs to this connection's pair.
func (c *Connection) HasMember(userID uint) bool {
	return userID == c.UserLowID || userID == c.UserHighID
}

// CanonicalPair 将任意顺序的两个用户ID规范化为 (low, high)。
func CanonicalPair(a, b uint) (uint, uint) {
	if a > b {
		return b, a
	}
	return a, b
}

// ConnectionWithUser is a DTO pairing a connection with the counterpart's
// directory profile. Used for API responses when listing pending requests.
type ConnectionWithUser struct {
	ConnectionID uint           `json:"connectionId"`
	User         *UserBasicInfo `json:"user"`
	MatchedOn    *string        `json:"matchedOn,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
}
