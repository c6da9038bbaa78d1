package db

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TokenRepository defines decoupled operations for token persistence.
type TokenRepository interface {
	Get(ctx context.Context) (*Token, error)
	Upsert(ctx context.Context, token *Token) error
	Clear(ctx context.Context) error
}

// ServerRepository caches the server inventory for offline listing.
type ServerRepository interface {
	ReplaceAll(ctx context.Context, servers []Server) error
	GetByID(ctx context.Context, id int64) (*Server, error)
	List(ctx context.Context) ([]Server, error)
	SearchByName(ctx context.Context, nameSubstr string) ([]Server, error)
	Clear(ctx context.Context) error
}

// gormTokenRepo is a GORM-backed implementation of TokenRepository.
// Use constructor NewTokenRepository to obtain an instance.
type gormTokenRepo struct{ db *gorm.DB }

// gormServerRepo is a GORM-backed implementation of ServerRepository.
// Use constructor NewServerRepository to obtain an instance.
type gormServerRepo struct{ db *gorm.DB }

// NewTokenRepository creates a TokenRepository. Accepts *gorm.DB to avoid global access.
func NewTokenRepository(db *gorm.DB) TokenRepository { return &gormTokenRepo{db: db} }

// NewServerRepository creates a ServerRepository. Accepts *gorm.DB to avoid global access.
func NewServerRepository(db *gorm.DB) ServerRepository { return &gormServerRepo{db: db} }

const tokenRowID = 1

func (r *gormTokenRepo) Get(ctx context.Context) (*Token, error) {
	if r.db == nil {
		return nil, fmt.Errorf("repository not initialized")
	}
	var token Token
	err := r.db.WithContext(ctx).First(&token, "id = ?", tokenRowID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &token, nil
}

func (r *gormTokenRepo) Upsert(ctx context.Context, token *Token) error {
	if r.db == nil {
		return fmt.Errorf("repository not initialized")
	}
	token.ID = tokenRowID
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"access_token", "refresh_token", "updated_at"}),
	}).Create(token).Error
}

func (r *gormTokenRepo) Clear(ctx context.Context) error {
	if r.db == nil {
		return fmt.Errorf("repository not initialized")
	}
	return r.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&Token{}).Error
}

func (r *gormServerRepo) ReplaceAll(ctx context.Context, servers []Server) error {
	if r.db == nil {
		return fmt.Errorf("repository not initialized")
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&Server{}).Error; err != nil {
			return err
		}
		if len(servers) == 0 {
			return nil
		}
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&servers).Error
	})
}

func (r *gormServerRepo) GetByID(ctx context.Context, id int64) (*Server, error) {
	if r.db == nil {
		return nil, fmt.Errorf("repository not initialized")
	}
	var server Server
	err := r.db.WithContext(ctx).First(&server, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &server, nil
}

func (r *gormServerRepo) List(ctx context.Context) ([]Server, error) {
	if r.db == nil {
		return nil, fmt.Errorf("repository not initialized")
	}
	var servers []Server
	if err := r.db.WithContext(ctx).Order("id").Find(&servers).Error; err != nil {
		return nil, err
	}
	return servers, nil
}

func (r *gormServerRepo) SearchByName(ctx context.Context, nameSubstr string) ([]Server, error) {
	if r.db == nil {
		return nil, fmt.Errorf("repository not initialized")
	}
	var servers []Server
	if err := r.db.WithContext(ctx).Where("name LIKE ?", "%"+nameSubstr+"%").Order("id").Find(&servers).Error; err != nil {
		return nil, err
	}
	return servers, nil
}

func (r *gormServerRepo) Clear(ctx context.Context) error {
	if r.db == nil {
		return fmt.Errorf("repository not initialized")
	}
	return r.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&Server{}).Error
}
