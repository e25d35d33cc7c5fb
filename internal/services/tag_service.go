package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/isdelr/todo-api/internal/apperr"
	"github.com/isdelr/todo-api/internal/models"
	"github.com/jmoiron/sqlx"
)

// TagServiceProvider defines the interface for tag services.
type TagServiceProvider interface {
	CreateTag(ctx context.Context, name string) (models.Tag, error)
	GetAllTags(ctx context.Context) ([]models.Tag, error)
}

// TagService manages the global tag list. Tags are not owned by any user.
type TagService struct {
	db *sqlx.DB
}

// NewTagService creates a new TagService.
func NewTagService(db *sqlx.DB) *TagService {
	return &TagService{db: db}
}

// CreateTag inserts a new tag.
func (s *TagService) CreateTag(ctx context.Context, name string) (models.Tag, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Tag{}, apperr.Validation("name", "Tag name is required")
	}

	tag := models.Tag{Name: name, CreatedAt: time.Now().UTC().Truncate(time.Second)}
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO tags (name, created_at) VALUES (?, ?)", tag.Name, tag.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return models.Tag{}, apperr.Conflict("Error creating tag", "tag name already exists", err)
		}
		return models.Tag{}, fmt.Errorf("creating tag: %w", err)
	}

	if tag.ID, err = res.LastInsertId(); err != nil {
		return models.Tag{}, fmt.Errorf("reading tag id: %w", err)
	}
	return tag, nil
}

// GetAllTags retrieves all tags ordered by name.
func (s *TagService) GetAllTags(ctx context.Context) ([]models.Tag, error) {
	tags := []models.Tag{}
	if err := s.db.SelectContext(ctx, &tags, "SELECT id, name, created_at FROM tags ORDER BY name"); err != nil {
		return nil, fmt.Errorf("querying tags: %w", err)
	}
	return tags, nil
}

// ensureTagsExist fails with a validation error unless every id in tagIDs names an
// existing tag. tagIDs must already be de-duplicated.
func ensureTagsExist(ctx context.Context, q sqlx.QueryerContext, tagIDs []int64) error {
	if len(tagIDs) == 0 {
		return nil
	}

	query, args, err := sqlx.In("SELECT COUNT(*) FROM tags WHERE id IN (?)", tagIDs)
	if err != nil {
		return fmt.Errorf("building tag lookup: %w", err)
	}

	var found int
	if err := sqlx.GetContext(ctx, q, &found, query, args...); err != nil {
		return fmt.Errorf("looking up tags: %w", err)
	}
	if found != len(tagIDs) {
		return apperr.Validation("tags", "One or more tags do not exist")
	}
	return nil
}

// uniqueIDs returns ids without duplicates, preserving first-seen order.
func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
