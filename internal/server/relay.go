// Package server validates inbound chat frames, stores their attachments and
// records, and prepares them for delivery through the Relay type.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Tyrowin/directchat/internal/auth"
	"github.com/Tyrowin/directchat/internal/blob"
	"github.com/Tyrowin/directchat/internal/store"
	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

var (
	ErrInvalidPayload  = errors.New("invalid payload")
	ErrUnauthenticated = errors.New("sender is not authenticated")
	ErrFileStore       = errors.New("file could not be stored")
	ErrPersistence     = errors.New("message could not be persisted")
	ErrRateLimited     = errors.New("rate limit exceeded")
)

// Relay turns an inbound frame into a persisted message. Delivery is left to
// the hub. A blob and its message record are written all-or-nothing: if the
// record cannot be saved the blob is deleted again.
type Relay struct {
	messages store.MessageStore
	blobs    blob.Store
	validate *validator.Validate
	timeout  time.Duration
	now      func() time.Time
	log      *slog.Logger
}

func NewRelay(messages store.MessageStore, blobs blob.Store, timeout time.Duration, log *slog.Logger) *Relay {
	return &Relay{
		messages: messages,
		blobs:    blobs,
		validate: validator.New(),
		timeout:  timeout,
		now:      time.Now,
		log:      log,
	}
}

// Handle processes one raw frame sent by sender. On success it returns the
// envelope to deliver to the recipient.
func (r *Relay) Handle(ctx context.Context, sender *auth.Identity, raw []byte) (OutboundMessage, error) {
	if sender == nil {
		return OutboundMessage{}, ErrUnauthenticated
	}

	var inbound InboundMessage
	if err := json.Unmarshal(raw, &inbound); err != nil {
		return OutboundMessage{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := r.validate.Struct(inbound); err != nil {
		return OutboundMessage{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	createdAt := r.now()
	var filename *string
	if inbound.File != nil {
		name, err := r.storeFile(ctx, inbound.File, createdAt)
		if err != nil {
			return OutboundMessage{}, err
		}
		filename = &name
	}

	saved, err := r.messages.Save(ctx, store.Message{
		Sender:    sender.UserID,
		Recipient: inbound.Recipient,
		Text:      lo.EmptyableToPtr(inbound.Text),
		File:      filename,
		CreatedAt: createdAt,
	})
	if err != nil {
		r.discardFile(filename)
		return OutboundMessage{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	r.log.Debug("Message persisted", "id", saved.ID, "sender", saved.Sender, "recipient", saved.Recipient)

	return OutboundMessage{
		Text:      saved.Text,
		Sender:    saved.Sender,
		Recipient: saved.Recipient,
		File:      saved.File,
		ID:        saved.ID,
	}, nil
}

func (r *Relay) storeFile(ctx context.Context, file *FilePayload, at time.Time) (string, error) {
	data, err := blob.DecodeDataURL(file.Data)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	name := blob.DeriveName(file.Name, data, at)
	r.log.Debug("Storing attachment", "original", file.Name, "name", name, "size", len(data))
	if err := r.blobs.Put(ctx, name, data); err != nil {
		return "", fmt.Errorf("%w: %v", ErrFileStore, err)
	}
	return name, nil
}

// discardFile removes a blob whose message record was never written.
func (r *Relay) discardFile(filename *string) {
	if filename == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.blobs.Delete(ctx, *filename); err != nil {
		r.log.Error("Failed to remove orphaned attachment", "name", *filename, "error", err)
	}
}

// errorCode maps a relay error to the code reported in the error frame.
func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, ErrInvalidPayload):
		return "invalid_payload"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrFileStore):
		return "file_store_failed"
	default:
		return "delivery_failed"
	}
}

// errorBody builds the error frame body for err. Validation details are
// returned to the sender; storage failures only report their category.
func errorBody(err error) ErrorBody {
	code := errorCode(err)
	switch code {
	case "invalid_payload", "unauthenticated", "rate_limited":
		return ErrorBody{Code: code, Message: err.Error()}
	case "file_store_failed":
		return ErrorBody{Code: code, Message: ErrFileStore.Error()}
	default:
		return ErrorBody{Code: code, Message: ErrPersistence.Error()}
	}
}
