package models

import "time"

// Conversation groups chat messages
type Conversation struct {
	ID        string    `gorm:"primaryKey;size:255" json:"id"`
	UserID    string    `gorm:"size:255;index;default:''" json:"user_id,omitzero"`
	Title     string    `gorm:"size:255;default:''" json:"title,omitzero"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime;index" json:"updated_at"`
}

// ConversationMessage is a persisted chat turn
type ConversationMessage struct {
	ID             uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	ConversationID string     `gorm:"size:255;not null;index:idx_conv_message_time" json:"conversation_id"`
	Role           Role       `gorm:"size:20;not null" json:"role"`
	Content        string     `gorm:"type:text;not null" json:"content"`
	Provider       ProviderID `gorm:"size:50;default:''" json:"provider,omitzero"`
	Model          string     `gorm:"size:100;default:''" json:"model,omitzero"`
	TokensIn       int        `gorm:"default:0" json:"tokens_in,omitzero"`
	TokensOut      int        `gorm:"default:0" json:"tokens_out,omitzero"`
	CreatedAt      time.Time  `gorm:"autoCreateTime;index:idx_conv_message_time" json:"created_at"`
}
