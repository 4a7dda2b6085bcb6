package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// GroupReceiverID is the sentinel receiver stored for group messages, which
// have no single receiver identity.
const GroupReceiverID = 0

// MessageRepository is the persistence collaborator for routed messages.
// A failed save is logged by the caller and never aborts delivery.
type MessageRepository interface {
	SaveMessage(ctx context.Context, senderID, receiverID int, content string) error
}

// MessageRepo is a sqlx implementation of MessageRepository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs a MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// SaveMessage stores one routed message.
func (r *MessageRepo) SaveMessage(ctx context.Context, senderID, receiverID int, content string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO messages (sender_id, receiver_id, content) VALUES ($1, $2, $3)`,
		senderID, receiverID, content)
	return err
}
