// Package model defines domain models and data structures.
package model

import "time"

// ContentItem represents a unit of social-media content moving through the
// approval workflow. Its status is mutated only by the workflow service.
// PublishRequestedAt marks that the scheduler already dispatched publish jobs
// for this item; the status itself stays scheduled until a publish succeeds.
type ContentItem struct {
	ID                 string     `json:"id"`
	TenantID           string     `json:"tenant_id"`
	Title              string     `json:"title"`
	Body               string     `json:"body"`
	Status             Status     `json:"status"`
	ScheduledAt        *time.Time `json:"scheduled_at"`
	PublishRequestedAt *time.Time `json:"publish_requested_at"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// CreateContentParams represents parameters for creating a new content item.
type CreateContentParams struct {
	TenantID string `json:"tenant_id"`
	Title    string `json:"title"`
	Body     string `json:"body"`
}

// Validate validates the create content parameters.
func (p *CreateContentParams) Validate() error {
	if p.TenantID == "" {
		return ErrInvalidTenant
	}

	if p.Title == "" {
		return ErrInvalidTitle
	}

	return nil
}

// Comment is a client remark attached to a content item, written when the
// client requests changes.
type Comment struct {
	ID        string    `json:"id"`
	ContentID string    `json:"content_id"`
	AuthorID  string    `json:"author_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}
