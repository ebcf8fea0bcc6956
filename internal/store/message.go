//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_store.go -package=mocks
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("message not found")

// Message is the durable record of one relayed message. Text and File are
// nil when absent; at least one of them is set.
type Message struct {
	ID        string    `json:"_id"`
	Sender    string    `json:"sender"`
	Recipient string    `json:"recipient"`
	Text      *string   `json:"text"`
	File      *string   `json:"file"`
	CreatedAt time.Time `json:"createdAt"`
}

// MessageStore persists messages. Save assigns the ID and returns the stored
// record.
type MessageStore interface {
	Save(ctx context.Context, message Message) (Message, error)
	Get(ctx context.Context, id string) (Message, error)
}

// newID returns a time-ordered identifier so that keys sort chronologically.
func newID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func prepare(message Message) (Message, error) {
	if message.ID == "" {
		id, err := newID()
		if err != nil {
			return Message{}, err
		}
		message.ID = id
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now()
	}
	message.CreatedAt = message.CreatedAt.UTC()
	return message, nil
}
