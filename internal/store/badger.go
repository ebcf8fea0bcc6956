// Package store persists relayed messages. BadgerDB is the default backend,
// SQLite is available for deployments that prefer a single relational file.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
)

const messagePrefix = "msg:"

type BadgerMessageStore struct {
	db  *badger.DB
	log *slog.Logger
}

func NewBadgerMessageStore(db *badger.DB, log *slog.Logger) *BadgerMessageStore {
	return &BadgerMessageStore{db: db, log: log}
}

// Save writes the message under "msg:{id}". IDs are UUIDv7, so a prefix scan
// returns messages in creation order.
func (s *BadgerMessageStore) Save(ctx context.Context, message Message) (Message, error) {
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}
	message, err := prepare(message)
	if err != nil {
		return Message{}, err
	}
	bytes, err := json.Marshal(message)
	if err != nil {
		return Message{}, err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(messageKey(message.ID), bytes)
	})
	if err != nil {
		return Message{}, fmt.Errorf("store message %s: %w", message.ID, err)
	}
	s.log.Debug("Message stored", "id", message.ID, "sender", message.Sender, "recipient", message.Recipient)
	return message, nil
}

func (s *BadgerMessageStore) Get(ctx context.Context, id string) (Message, error) {
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}
	var message Message
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(messageKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			return json.Unmarshal(value, &message)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Message{}, ErrNotFound
	}
	if err != nil {
		return Message{}, err
	}
	return message, nil
}

// Scan calls fn for every stored message in creation order until fn returns
// false or limit messages have been visited. A limit <= 0 means no limit.
func (s *BadgerMessageStore) Scan(limit int, fn func(Message) bool) error {
	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(messagePrefix)
		visited := 0
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && visited == limit {
				return nil
			}
			var message Message
			err := it.Item().Value(func(value []byte) error {
				return json.Unmarshal(value, &message)
			})
			if err != nil {
				return err
			}
			visited++
			if !fn(message) {
				return nil
			}
		}
		return nil
	})
}

func messageKey(id string) []byte {
	return []byte(messagePrefix + id)
}
