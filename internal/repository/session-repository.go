package repository

import (
	"errors"
	"log"
	"time"

	"github.com/Jakkraphat/identity_service/internal/domain"
	"github.com/Jakkraphat/identity_service/internal/dto"
	"github.com/Jakkraphat/identity_service/internal/helper"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SessionRepository interface {
	Create(user dto.UserResponse) (*domain.Session, error)
	Find(id string) (*domain.Session, error)
	// Refresh rewrites the stored projection, e.g. after verification flips
	// the verified flag.
	Refresh(id string, user dto.UserResponse) error
	Delete(id string) error
}

type sessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) SessionRepository {
	return &sessionRepository{db: db}
}

func (r *sessionRepository) Create(user dto.UserResponse) (*domain.Session, error) {
	now := time.Now()
	sess := &domain.Session{
		ID:         uuid.NewString(),
		UserID:     user.ID,
		Username:   user.Username,
		Email:      user.Email,
		Verified:   user.Verified,
		CreatedAt:  now,
		LastSeenAt: now,
		ExpiresAt:  now.Add(helper.SessionTTL),
	}

	if err := r.db.Create(sess).Error; err != nil {
		log.Printf("create session error: %v", err)
		return nil, errors.New("failed to create session")
	}
	return sess, nil
}

func (r *sessionRepository) Find(id string) (*domain.Session, error) {
	sess := &domain.Session{}

	if err := r.db.First(sess, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrSessionNotFound
		}
		log.Printf("find session error: %v", err)
		return nil, errors.New("failed to find session")
	}

	if sess.Expired(time.Now()) {
		_ = r.db.Delete(&domain.Session{}, "id = ?", id).Error
		return nil, domain.ErrSessionNotFound
	}

	// Best effort; a stale last_seen_at is harmless.
	_ = r.db.Model(sess).Update("last_seen_at", time.Now()).Error

	return sess, nil
}

func (r *sessionRepository) Refresh(id string, user dto.UserResponse) error {
	res := r.db.Model(&domain.Session{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"user_id":  user.ID,
			"username": user.Username,
			"email":    user.Email,
			"verified": user.Verified,
		})
	if res.Error != nil {
		log.Printf("refresh session error: %v", res.Error)
		return errors.New("failed to refresh session")
	}
	if res.RowsAffected == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func (r *sessionRepository) Delete(id string) error {
	if err := r.db.Delete(&domain.Session{}, "id = ?", id).Error; err != nil {
		log.Printf("delete session error: %v", err)
		return errors.New("failed to delete session")
	}
	return nil
}
