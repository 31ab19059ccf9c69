package conversation

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/Egham-7/adaptive-gateway/internal/models"

	"gorm.io/gorm"
)

const DefaultHistoryLimit = 20

// Store persists conversations and their messages. The gateway only reads
// history from it and appends turns after a successful generation.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(&models.Conversation{}, &models.ConversationMessage{})
}

// GetRecentMessages returns up to limit of the latest messages, oldest first.
// A non-empty userID restricts the read to conversations owned by that user.
func (s *Store) GetRecentMessages(ctx context.Context, conversationID, userID string, limit int) ([]models.ChatMessage, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	query := s.db.WithContext(ctx).Where("conversation_id = ?", conversationID)
	if userID != "" {
		owned := s.db.Model(&models.Conversation{}).
			Select("id").
			Where("id = ? AND user_id = ?", conversationID, userID)
		query = query.Where("conversation_id IN (?)", owned)
	}

	var rows []models.ConversationMessage
	if err := query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load conversation messages: %w", err)
	}

	slices.Reverse(rows)
	history := make([]models.ChatMessage, len(rows))
	for i, row := range rows {
		history[i] = models.ChatMessage{Role: row.Role, Content: row.Content}
	}
	return history, nil
}

func (s *Store) CreateMessage(ctx context.Context, msg *models.ConversationMessage) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}
	if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("failed to create conversation message: %w", err)
	}
	return nil
}

// Touch bumps the conversation's updated_at
func (s *Store) Touch(ctx context.Context, conversationID string) error {
	result := s.db.WithContext(ctx).
		Model(&models.Conversation{}).
		Where("id = ?", conversationID).
		Update("updated_at", s.now())
	if result.Error != nil {
		return fmt.Errorf("failed to touch conversation: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return models.NewNotFoundError("conversation " + conversationID)
	}
	return nil
}

// AppendTurn stores the user prompt and assistant reply in one transaction,
// creating the conversation on first use. A conversation owned by another
// user is reported as not found and left untouched.
func (s *Store) AppendTurn(ctx context.Context, conversationID, userID, prompt string, result *models.GenerationResult) error {
	now := s.now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		conv := models.Conversation{ID: conversationID, UserID: userID, CreatedAt: now}
		if err := tx.Where("id = ?", conversationID).FirstOrCreate(&conv).Error; err != nil {
			return fmt.Errorf("failed to ensure conversation: %w", err)
		}
		if userID != "" && conv.UserID != userID {
			return models.NewNotFoundError("conversation " + conversationID)
		}

		messages := []models.ConversationMessage{
			{ConversationID: conversationID, Role: models.RoleUser, Content: prompt, CreatedAt: now},
			{
				ConversationID: conversationID,
				Role:           models.RoleAssistant,
				Content:        result.Content,
				Provider:       result.Provider,
				Model:          result.Model,
				TokensIn:       result.Usage.PromptTokens,
				TokensOut:      result.Usage.CompletionTokens,
				CreatedAt:      now,
			},
		}
		if err := tx.Create(&messages).Error; err != nil {
			return fmt.Errorf("failed to append conversation turn: %w", err)
		}

		return tx.Model(&models.Conversation{}).
			Where("id = ?", conversationID).
			Update("updated_at", now).Error
	})
}
