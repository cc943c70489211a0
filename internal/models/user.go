package models

import "time"

// User 代表身份目录中的用户记录。
// 本服务只读取目录数据（在线状态除外，由通知服务器维护）。
type User struct {
	BaseModel
	Username     string     `gorm:"type:varchar(100);uniqueIndex;not null" json:"username"`
	PasswordHash string     `gorm:"type:varchar(255);not null" json:"-"` // 不暴露密码哈希
	DisplayName  string     `gorm:"type:varchar(100)" json:"displayName,omitempty"`
	AvatarURL    string     `gorm:"type:varchar(255)" json:"avatarUrl,omitempty"`
	Bio          string     `gorm:"type:text" json:"bio,omitempty"`
	CurrentMood  *string    `gorm:"type:varchar(30);index" json:"currentMood,omitempty"` // 用户自报的情绪，可以为空
	IsOnline     bool       `gorm:"not null;default:false" json:"isOnline"`
	LastSeenAt   *time.Time `json:"lastSeenAt,omitempty"`
}

// UserBasicInfo holds minimal public information about a user.
// Used when listing discovery candidates, pending requests and contacts.
type UserBasicInfo struct {
	ID          uint    `json:"id"`
	Username    string  `json:"username"`
	DisplayName string  `json:"displayName,omitempty"`
	AvatarURL   string  `json:"avatarUrl,omitempty"`
	CurrentMood *string `json:"currentMood,omitempty"`
	IsOnline    bool    `json:"isOnline"`
}

// TableName 指定 User 模型的表名。
func (User) TableName() string {
	return "users"
}
