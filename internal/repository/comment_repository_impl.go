package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agencydesk/contentflow/internal/model"
)

// CommentRepositoryImpl implements CommentRepository using PostgreSQL.
type CommentRepositoryImpl struct {
	pool *pgxpool.Pool
}

// NewCommentRepositoryImpl creates a new CommentRepository implementation.
func NewCommentRepositoryImpl(pool *pgxpool.Pool) CommentRepository {
	return &CommentRepositoryImpl{pool: pool}
}

// Create inserts a new comment on a content item.
func (r *CommentRepositoryImpl) Create(ctx context.Context, contentID, authorID, body string) (*model.Comment, error) {
	q := querierFrom(ctx, r.pool)

	var c model.Comment

	row := q.QueryRow(ctx, `
		INSERT INTO comments (id, content_id, author_id, body)
		VALUES ($1, $2, $3, $4)
		RETURNING id, content_id, author_id, body, created_at`,
		uuid.New().String(), contentID, authorID, body,
	)
	if err := row.Scan(&c.ID, &c.ContentID, &c.AuthorID, &c.Body, &c.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to insert comment: %w", err)
	}

	return &c, nil
}

// ListByContent retrieves all comments for a content item, oldest first.
func (r *CommentRepositoryImpl) ListByContent(ctx context.Context, contentID string) ([]*model.Comment, error) {
	q := querierFrom(ctx, r.pool)

	rows, err := q.Query(ctx, `
		SELECT id, content_id, author_id, body, created_at
		FROM comments WHERE content_id = $1 ORDER BY created_at`,
		contentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	defer rows.Close()

	var comments []*model.Comment

	for rows.Next() {
		var c model.Comment
		if err := rows.Scan(&c.ID, &c.ContentID, &c.AuthorID, &c.Body, &c.CreatedAt); err != nil {
			return nil, err
		}

		comments = append(comments, &c)
	}

	return comments, rows.Err()
}
