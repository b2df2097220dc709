package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/your-org/recall/internal/models"
)

const (
	personPrefix    = "registry/person/"
	personKeyPrefix = "registry/key/"
	facePrefix      = "registry/face/"
)

func getJSON(txn *badger.Txn, key string, v any) error {
	item, err := txn.Get([]byte(key))
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func setJSON(txn *badger.Txn, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set([]byte(key), data)
}

func (s *BadgerStore) CreatePerson(ctx context.Context, p *models.Person) error {
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	err := s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(personKeyPrefix + p.Key))
		if err == nil {
			return fmt.Errorf("person %q: %w", p.Key, models.ErrConflict)
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set([]byte(personKeyPrefix+p.Key), []byte(p.ID)); err != nil {
			return err
		}
		return setJSON(txn, personPrefix+p.ID, p)
	})
	if err != nil {
		return fmt.Errorf("create person: %w", err)
	}
	return nil
}

func (s *BadgerStore) GetPerson(ctx context.Context, id string) (*models.Person, error) {
	p := &models.Person{}
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, personPrefix+id, p)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("person %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get person: %w", err)
	}
	return p, nil
}

func (s *BadgerStore) GetPersonByKey(ctx context.Context, key string) (*models.Person, error) {
	p := &models.Person{}
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(personKeyPrefix + key))
		if err != nil {
			return err
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return getJSON(txn, personPrefix+string(id), p)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("person %q: %w", key, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get person by key: %w", err)
	}
	return p, nil
}

func (s *BadgerStore) ListPersons(ctx context.Context) ([]models.Person, error) {
	var persons []models.Person
	err := s.scan(personPrefix, func(_ string, val []byte) error {
		var p models.Person
		if err := json.Unmarshal(val, &p); err != nil {
			return err
		}
		persons = append(persons, p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list persons: %w", err)
	}
	sort.Slice(persons, func(i, j int) bool { return persons[i].Key < persons[j].Key })
	return persons, nil
}

func (s *BadgerStore) RenamePerson(ctx context.Context, oldKey, newKey, displayName string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(personKeyPrefix + oldKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("person %q: %w", oldKey, models.ErrNotFound)
		}
		if err != nil {
			return err
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}

		if newKey != oldKey {
			_, err = txn.Get([]byte(personKeyPrefix + newKey))
			if err == nil {
				return fmt.Errorf("person %q: %w", newKey, models.ErrConflict)
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
		}

		var p models.Person
		if err := getJSON(txn, personPrefix+string(id), &p); err != nil {
			return err
		}
		p.Key = newKey
		p.DisplayName = displayName
		p.UpdatedAt = time.Now().UTC()

		if err := txn.Delete([]byte(personKeyPrefix + oldKey)); err != nil {
			return err
		}
		if err := txn.Set([]byte(personKeyPrefix+newKey), id); err != nil {
			return err
		}
		return setJSON(txn, personPrefix+p.ID, &p)
	})
	if err != nil {
		return fmt.Errorf("rename person: %w", err)
	}
	return nil
}

func (s *BadgerStore) AddFaceEmbedding(ctx context.Context, fe *models.FaceEmbedding) error {
	if fe.CapturedAt.IsZero() {
		fe.CapturedAt = time.Now().UTC()
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		var p models.Person
		if err := getJSON(txn, personPrefix+fe.PersonID, &p); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("person %s: %w", fe.PersonID, models.ErrNotFound)
			}
			return err
		}
		if err := setJSON(txn, facePrefix+fe.PersonID+"/"+fe.ID, fe); err != nil {
			return err
		}
		p.FaceCount++
		p.UpdatedAt = fe.CapturedAt
		return setJSON(txn, personPrefix+p.ID, &p)
	})
	if err != nil {
		return fmt.Errorf("add face embedding: %w", err)
	}
	return nil
}

func (s *BadgerStore) ListFaceEmbeddings(ctx context.Context) ([]models.FaceEmbedding, error) {
	return s.faces(facePrefix)
}

func (s *BadgerStore) LatestFace(ctx context.Context, personID string) (*models.FaceEmbedding, error) {
	faces, err := s.faces(facePrefix + personID + "/")
	if err != nil {
		return nil, err
	}
	var latest *models.FaceEmbedding
	for i := range faces {
		if faces[i].CropKey == "" {
			continue
		}
		if latest == nil || faces[i].CapturedAt.After(latest.CapturedAt) {
			latest = &faces[i]
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("face for person %s: %w", personID, models.ErrNotFound)
	}
	return latest, nil
}

func (s *BadgerStore) faces(prefix string) ([]models.FaceEmbedding, error) {
	var faces []models.FaceEmbedding
	err := s.scan(prefix, func(_ string, val []byte) error {
		var fe models.FaceEmbedding
		if err := json.Unmarshal(val, &fe); err != nil {
			return err
		}
		faces = append(faces, fe)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list face embeddings: %w", err)
	}
	return faces, nil
}
