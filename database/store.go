package database

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/chxlky/trello-webhook-panel/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrNotFound = errors.New("record not found")

// Store holds every query the backend and the worker run.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// Users

func (s *Store) GetUser(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "email = ?", email).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// EnsureUser returns the user, creating one without Trello credentials on first login.
func (s *Store) EnsureUser(ctx context.Context, email string) (*models.User, error) {
	user := models.User{Email: email}
	if err := s.db.WithContext(ctx).Where(models.User{Email: email}).FirstOrCreate(&user).Error; err != nil {
		return nil, fmt.Errorf("ensuring user %s: %w", email, err)
	}
	return &user, nil
}

func (s *Store) LinkTrello(ctx context.Context, email, apiKey, token string) error {
	res := s.db.WithContext(ctx).Model(&models.User{}).
		Where("email = ?", email).
		Updates(map[string]any{"api_key": apiKey, "token": token})
	if res.Error != nil {
		return fmt.Errorf("linking trello for %s: %w", email, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// User boards

func (s *Store) GetUserBoard(ctx context.Context, email string) (*models.UserBoard, error) {
	var board models.UserBoard
	if err := s.db.WithContext(ctx).First(&board, "user_email = ?", email).Error; err != nil {
		return nil, notFound(err)
	}
	return &board, nil
}

// SaveUserBoard stores the integration board and records it as the user's linked board.
func (s *Store) SaveUserBoard(ctx context.Context, board *models.UserBoard) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(board).Error; err != nil {
			return fmt.Errorf("creating user board: %w", err)
		}
		return tx.Model(&models.User{}).
			Where("email = ?", board.UserEmail).
			Updates(map[string]any{"linked_board_id": board.BoardID, "linked_board_name": board.BoardName}).Error
	})
}

// Webhook settings

func (s *Store) CreateSetting(ctx context.Context, setting *models.WebhookSetting) error {
	if err := s.db.WithContext(ctx).Create(setting).Error; err != nil {
		return fmt.Errorf("creating webhook setting: %w", err)
	}
	return nil
}

// ListSettings returns the user's settings in insertion order.
func (s *Store) ListSettings(ctx context.Context, email string) ([]models.WebhookSetting, error) {
	var settings []models.WebhookSetting
	if err := s.db.WithContext(ctx).Where("user_email = ?", email).Order("id").Find(&settings).Error; err != nil {
		return nil, fmt.Errorf("listing webhook settings: %w", err)
	}
	return settings, nil
}

func (s *Store) SettingsForBoardEvent(ctx context.Context, boardID string, eventType models.EventType) ([]models.WebhookSetting, error) {
	var settings []models.WebhookSetting
	err := s.db.WithContext(ctx).
		Where("board_id = ? AND event_type = ?", boardID, string(eventType)).
		Order("id").
		Find(&settings).Error
	if err != nil {
		return nil, fmt.Errorf("finding settings for board %s: %w", boardID, err)
	}
	return settings, nil
}

type DeleteResult struct {
	WebhookID string
	Deleted   int64
	// Remaining is the number of settings of any user still referencing WebhookID.
	Remaining int64
}

// DeleteSetting removes the user's setting whose numeric id is key. When no such row exists, key is
// treated as an external webhook id and every setting of that group owned by the user is removed.
func (s *Store) DeleteSetting(ctx context.Context, email, key string) (DeleteResult, error) {
	var result DeleteResult

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var setting models.WebhookSetting
		found := false
		if id, err := strconv.ParseUint(key, 10, 64); err == nil {
			err := tx.Where("id = ? AND user_email = ?", id, email).First(&setting).Error
			switch {
			case err == nil:
				found = true
			case !errors.Is(err, gorm.ErrRecordNotFound):
				return err
			}
		}

		var res *gorm.DB
		if found {
			result.WebhookID = setting.WebhookID
			res = tx.Delete(&setting)
		} else {
			result.WebhookID = key
			res = tx.Where("webhook_id = ? AND user_email = ?", key, email).Delete(&models.WebhookSetting{})
		}
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		result.Deleted = res.RowsAffected

		return tx.Model(&models.WebhookSetting{}).Where("webhook_id = ?", result.WebhookID).Count(&result.Remaining).Error
	})
	if err != nil {
		return DeleteResult{}, err
	}
	return result, nil
}

// External webhooks

func (s *Store) FindTrelloWebhook(ctx context.Context, boardID, callbackURL string) (*models.TrelloWebhook, error) {
	var hook models.TrelloWebhook
	err := s.db.WithContext(ctx).First(&hook, "board_id = ? AND callback_url = ?", boardID, callbackURL).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &hook, nil
}

func (s *Store) SaveTrelloWebhook(ctx context.Context, hook *models.TrelloWebhook) error {
	if err := s.db.WithContext(ctx).Create(hook).Error; err != nil {
		return fmt.Errorf("saving trello webhook %s: %w", hook.WebhookID, err)
	}
	return nil
}

// UpsertWebhookEvent stores the event configuration for (webhookID, eventType), replacing any earlier one.
func (s *Store) UpsertWebhookEvent(ctx context.Context, event *models.TrelloWebhookEvent) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "webhook_id"}, {Name: "event_type"}},
		DoUpdates: clause.AssignmentColumns([]string{"enabled", "extra_config", "updated_at"}),
	}).Create(event).Error
	if err != nil {
		return fmt.Errorf("upserting webhook event %s/%s: %w", event.WebhookID, event.EventType, err)
	}
	return nil
}

func (s *Store) WebhookEvents(ctx context.Context, webhookID string) ([]models.TrelloWebhookEvent, error) {
	var events []models.TrelloWebhookEvent
	if err := s.db.WithContext(ctx).Where("webhook_id = ?", webhookID).Order("id").Find(&events).Error; err != nil {
		return nil, fmt.Errorf("listing webhook events: %w", err)
	}
	return events, nil
}

// ForgetTrelloWebhook drops the local records of an external webhook.
func (s *Store) ForgetTrelloWebhook(ctx context.Context, webhookID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("webhook_id = ?", webhookID).Delete(&models.TrelloWebhookEvent{}).Error; err != nil {
			return err
		}
		return tx.Where("webhook_id = ?", webhookID).Delete(&models.TrelloWebhook{}).Error
	})
}

// Copied cards

func (s *Store) HasCopied(ctx context.Context, email, sourceCardID string, eventType models.EventType) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.CopiedCard{}).
		Where("user_email = ? AND source_card_id = ? AND event_type = ?", email, sourceCardID, string(eventType)).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("checking copied card: %w", err)
	}
	return count > 0, nil
}

func (s *Store) RecordCopy(ctx context.Context, card *models.CopiedCard) error {
	if err := s.db.WithContext(ctx).Save(card).Error; err != nil {
		return fmt.Errorf("recording copied card %s: %w", card.ID, err)
	}
	return nil
}
