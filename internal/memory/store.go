// Package memory stores the append-only conversation log of every person.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/your-org/recall/internal/keylock"
	"github.com/your-org/recall/internal/models"
)

const keyPrefix = "conv/"

// KV is the byte store under the logs. Get and Move report
// models.ErrNotFound; Move reports models.ErrConflict when the target exists.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, val []byte) error
	Move(ctx context.Context, from, to string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// IdentityIndex is the face registry as seen by rename.
type IdentityIndex interface {
	Exists(ctx context.Context, name string) (bool, error)
	Rename(ctx context.Context, oldName, newName string) error
}

type Store struct {
	kv    KV
	index IdentityIndex
	locks *keylock.Locks
}

// NewStore builds a Store over kv. index may be nil when no face registry
// shares the name space.
func NewStore(kv KV, index IdentityIndex) *Store {
	return &Store{
		kv:    kv,
		index: index,
		locks: keylock.New(),
	}
}

func storageKey(personKey string) string {
	return keyPrefix + personKey
}

// Append adds entry to the log of name and returns the entry as stored.
// Missing linkedin and bio fields are carried forward, each independently,
// from the most recent earlier entry that has them.
func (s *Store) Append(ctx context.Context, name string, entry models.ConversationEntry) (models.ConversationEntry, error) {
	key := models.NormalizeName(name)
	if key == "" {
		return entry, models.Invalid("append: person name is empty")
	}
	if err := entry.Validate(); err != nil {
		return entry, fmt.Errorf("append: %w", err)
	}

	unlock := s.locks.Lock(key)
	defer unlock()

	entries, err := s.load(ctx, key)
	switch {
	case errors.Is(err, models.ErrNotFound):
		entries = nil
	case errors.Is(err, models.ErrCorruptState):
		slog.Warn("corrupt conversation log replaced", "person", key, "error", err)
		entries = nil
	case err != nil:
		return entry, fmt.Errorf("append: %w", err)
	}

	carryForward(&entry, entries)
	entries = append(entries, entry)

	if err := s.save(ctx, key, entries); err != nil {
		return entry, fmt.Errorf("append: %w", err)
	}
	return entry, nil
}

func carryForward(entry *models.ConversationEntry, prior []models.ConversationEntry) {
	for i := len(prior) - 1; i >= 0 && (entry.LinkedIn == "" || entry.Bio == ""); i-- {
		if entry.LinkedIn == "" && prior[i].LinkedIn != "" {
			entry.LinkedIn = prior[i].LinkedIn
		}
		if entry.Bio == "" && prior[i].Bio != "" {
			entry.Bio = prior[i].Bio
		}
	}
}

// Read returns the log of name in chronological order.
func (s *Store) Read(ctx context.Context, name string) ([]models.ConversationEntry, error) {
	return s.load(ctx, models.NormalizeName(name))
}

// Keys lists the normalized names that have a log.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	keys, err := s.kv.Keys(ctx, keyPrefix)
	if err != nil {
		return nil, fmt.Errorf("list conversation keys: %w", err)
	}
	for i, k := range keys {
		keys[i] = strings.TrimPrefix(k, keyPrefix)
	}
	return keys, nil
}

// SetLatestProfile replaces the profile fields of the most recent entry.
func (s *Store) SetLatestProfile(ctx context.Context, name string, profile models.Profile) (models.ConversationEntry, error) {
	key := models.NormalizeName(name)

	unlock := s.locks.Lock(key)
	defer unlock()

	entries, err := s.load(ctx, key)
	if err != nil {
		return models.ConversationEntry{}, fmt.Errorf("set profile: %w", err)
	}
	if len(entries) == 0 {
		return models.ConversationEntry{}, fmt.Errorf("set profile %q: %w", key, models.ErrNotFound)
	}

	last := &entries[len(entries)-1]
	last.LinkedIn = profile.LinkedIn
	last.Bio = profile.Bio
	if err := s.save(ctx, key, entries); err != nil {
		return models.ConversationEntry{}, fmt.Errorf("set profile: %w", err)
	}
	return *last, nil
}

// Rename moves the log of oldName to newName together with the registry
// entry, if any. Either both move or neither does.
func (s *Store) Rename(ctx context.Context, oldName, newName string) error {
	oldKey, newKey := models.NormalizeName(oldName), models.NormalizeName(newName)
	if oldKey == "" || newKey == "" {
		return models.Invalid("rename: names must not be empty")
	}
	if oldKey == newKey {
		return models.Invalid("rename: %q is already the current name", newKey)
	}

	unlock := s.locks.Lock(oldKey, newKey)
	defer unlock()

	if _, err := s.kv.Get(ctx, storageKey(oldKey)); err != nil {
		return fmt.Errorf("rename %q: %w", oldKey, err)
	}
	if _, err := s.kv.Get(ctx, storageKey(newKey)); err == nil {
		return fmt.Errorf("rename to %q: %w", newKey, models.ErrConflict)
	} else if !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("rename: %w", err)
	}

	renamedIndex := false
	if s.index != nil {
		enrolled, err := s.index.Exists(ctx, oldKey)
		if err != nil {
			return fmt.Errorf("rename: %w", err)
		}
		if enrolled {
			if err := s.index.Rename(ctx, oldKey, newName); err != nil {
				return fmt.Errorf("rename: %w", err)
			}
			renamedIndex = true
		} else if taken, err := s.index.Exists(ctx, newKey); err != nil {
			return fmt.Errorf("rename: %w", err)
		} else if taken {
			return fmt.Errorf("rename to %q: %w", newKey, models.ErrConflict)
		}
	}

	if err := s.kv.Move(ctx, storageKey(oldKey), storageKey(newKey)); err != nil {
		if renamedIndex {
			if rbErr := s.index.Rename(ctx, newKey, oldName); rbErr != nil {
				slog.Error("rename rollback failed", "from", newKey, "to", oldKey, "error", rbErr)
			}
		}
		return fmt.Errorf("rename: %w", err)
	}

	slog.Info("person renamed", "from", oldKey, "to", newKey, "registry", renamedIndex)
	return nil
}

func (s *Store) load(ctx context.Context, key string) ([]models.ConversationEntry, error) {
	data, err := s.kv.Get(ctx, storageKey(key))
	if err != nil {
		return nil, err
	}
	var entries []models.ConversationEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode log %q: %v: %w", key, err, models.ErrCorruptState)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp < entries[j].Timestamp
	})
	return entries, nil
}

func (s *Store) save(ctx context.Context, key string, entries []models.ConversationEntry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode log %q: %w", key, err)
	}
	return s.kv.Set(ctx, storageKey(key), data)
}
