package stores

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/cppla/gqlbbs/models"
)

// PostStore reads and writes posts, newest first.
type PostStore struct {
	db *gorm.DB
}

func NewPostStore(db *gorm.DB) *PostStore {
	return &PostStore{db: db}
}

// Create inserts p and fills its ID and timestamps.
func (s *PostStore) Create(ctx context.Context, p *models.Post) error {
	if err := s.db.WithContext(ctx).Omit("Creator").Create(p).Error; err != nil {
		return fmt.Errorf("create post: %w", err)
	}
	return nil
}

// List returns up to limit posts ordered by creation time descending, with
// their creators loaded. A non-nil before restricts the page to strictly older posts.
func (s *PostStore) List(ctx context.Context, limit int, before *time.Time) ([]models.Post, error) {
	q := s.db.WithContext(ctx).Preload("Creator").Order("created_at DESC").Order("id DESC").Limit(limit)
	if before != nil {
		q = q.Where("created_at < ?", before.UTC())
	}
	var posts []models.Post
	if err := q.Find(&posts).Error; err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	return posts, nil
}

func (s *PostStore) FindByID(ctx context.Context, id uint) (*models.Post, error) {
	var p models.Post
	if err := s.db.WithContext(ctx).Preload("Creator").First(&p, id).Error; err != nil {
		if err = translate(err); err == ErrNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("find post: %w", err)
	}
	return &p, nil
}
