package model

import "time"

// ChannelBinding associates a content item with one external publishing
// destination. Remote fields are filled in by the publish worker and cleared
// again by the delete worker; the binding row itself persists.
type ChannelBinding struct {
	ID             string    `json:"id"`
	ContentID      string    `json:"content_id"`
	Network        string    `json:"network"`
	ChannelID      string    `json:"channel_id"`
	IdempotencyKey string    `json:"idempotency_key"`
	RemoteID       string    `json:"remote_id"`
	RemoteURL      string    `json:"remote_url"`
	LastError      string    `json:"last_error"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// AttachChannelParams represents parameters for binding a content item to a
// publishing destination.
type AttachChannelParams struct {
	Network   string `json:"network"`
	ChannelID string `json:"channel_id"`
}

// Validate validates the attach channel parameters.
func (p *AttachChannelParams) Validate() error {
	if p.Network == "" || p.ChannelID == "" {
		return ErrInvalidChannel
	}

	return nil
}

// PublishResult is what the external network returns for a successful publish.
type PublishResult struct {
	RemoteID  string `json:"remote_id"`
	RemoteURL string `json:"remote_url"`
}
