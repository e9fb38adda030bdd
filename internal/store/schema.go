package store

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/kilupskalvis/aliasmig/internal/jsonv"
	"github.com/kilupskalvis/aliasmig/internal/models"
	bolt "go.etcd.io/bbolt"
)

// HashDefinition returns a deterministic sha256 of a definition. Object keys
// are encoded in sorted order so equal definitions always hash the same.
func HashDefinition(def models.SchemaDefinition) (string, error) {
	data, err := json.Marshal(def)
	if err != nil {
		return "", fmt.Errorf("failed to marshal definition: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func revisionPrefix(name string) []byte {
	return []byte(name + "/")
}

func revisionKey(name string, id int64) []byte {
	return []byte(fmt.Sprintf("%s/%08d", name, id))
}

// SaveDefinition stores def as the current definition of name and appends a
// revision. If def hashes the same as the latest revision nothing is written
// and the latest revision is returned with created=false.
func (s *Store) SaveDefinition(name string, def models.SchemaDefinition, message string) (*models.SchemaRevision, bool, error) {
	hash, err := HashDefinition(def)
	if err != nil {
		return nil, false, err
	}

	var rev *models.SchemaRevision
	created := false

	err = s.db.Update(func(tx *bolt.Tx) error {
		countersBucket := tx.Bucket(bucketCounters)
		if countersBucket == nil {
			return fmt.Errorf("counters bucket not found")
		}
		defsBucket := tx.Bucket(bucketDefinitions)
		if defsBucket == nil {
			return fmt.Errorf("definitions bucket not found")
		}
		revsBucket := tx.Bucket(bucketRevisions)
		if revsBucket == nil {
			return fmt.Errorf("revisions bucket not found")
		}

		latest, err := latestRevision(revsBucket, name)
		if err != nil {
			return err
		}
		if latest != nil && latest.Hash == hash {
			rev = latest
			return nil
		}

		var revID int64 = 1
		if counterVal := countersBucket.Get(counterRevisionID); counterVal != nil {
			revID, err = strconv.ParseInt(string(counterVal), 10, 64)
			if err != nil {
				return fmt.Errorf("failed to parse revision counter: %w", err)
			}
		}

		rev = &models.SchemaRevision{
			ID:         revID,
			Name:       name,
			Timestamp:  time.Now().UTC(),
			Hash:       hash,
			Message:    message,
			Definition: def,
		}

		revJSON, err := json.Marshal(rev)
		if err != nil {
			return fmt.Errorf("failed to marshal revision: %w", err)
		}
		if err := revsBucket.Put(revisionKey(name, revID), revJSON); err != nil {
			return fmt.Errorf("failed to store revision: %w", err)
		}

		defJSON, err := json.Marshal(def)
		if err != nil {
			return fmt.Errorf("failed to marshal definition: %w", err)
		}
		if err := defsBucket.Put([]byte(name), defJSON); err != nil {
			return fmt.Errorf("failed to store definition: %w", err)
		}

		if err := countersBucket.Put(counterRevisionID, []byte(strconv.FormatInt(revID+1, 10))); err != nil {
			return fmt.Errorf("failed to update revision counter: %w", err)
		}

		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	return rev, created, nil
}

// latestRevision seeks to the last key under the name prefix.
func latestRevision(b *bolt.Bucket, name string) (*models.SchemaRevision, error) {
	prefix := revisionPrefix(name)
	cursor := b.Cursor()

	// ':' sorts after every digit, so this lands just past the name's range
	k, v := cursor.Seek([]byte(name + "/:"))
	if k == nil {
		k, v = cursor.Last()
	} else {
		k, v = cursor.Prev()
	}
	if k == nil || !bytes.HasPrefix(k, prefix) {
		return nil, nil
	}

	var rev models.SchemaRevision
	if err := json.Unmarshal(v, &rev); err != nil {
		return nil, fmt.Errorf("failed to unmarshal revision: %w", err)
	}
	return &rev, nil
}

// GetDefinition returns the current definition of name, or nil if none is stored.
func (s *Store) GetDefinition(name string) (*models.SchemaDefinition, error) {
	var def *models.SchemaDefinition

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDefinitions)
		if b == nil {
			return fmt.Errorf("definitions bucket not found")
		}
		data := b.Get([]byte(name))
		if data == nil {
			return nil
		}
		var d models.SchemaDefinition
		if err := json.Unmarshal(data, &d); err != nil {
			return fmt.Errorf("failed to unmarshal definition %s: %w", name, err)
		}
		def = &d
		return nil
	})
	if err != nil {
		return nil, err
	}

	return def, nil
}

// ListDefinitions returns the names of all stored definitions, sorted.
func (s *Store) ListDefinitions() ([]string, error) {
	var names []string
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDefinitions)
		if b == nil {
			return fmt.Errorf("definitions bucket not found")
		}
		return b.ForEach(func(k, _ []byte) error {
			names = append(names, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// GetRevisions returns the revision history of name, newest first.
func (s *Store) GetRevisions(name string) ([]*models.SchemaRevision, error) {
	var revisions []*models.SchemaRevision

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRevisions)
		if b == nil {
			return fmt.Errorf("revisions bucket not found")
		}

		prefix := revisionPrefix(name)
		cursor := b.Cursor()
		for k, v := cursor.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = cursor.Next() {
			var rev models.SchemaRevision
			if err := json.Unmarshal(v, &rev); err != nil {
				return fmt.Errorf("failed to unmarshal revision: %w", err)
			}
			revisions = append(revisions, &rev)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(revisions)-1; i < j; i, j = i+1, j-1 {
		revisions[i], revisions[j] = revisions[j], revisions[i]
	}
	return revisions, nil
}

// GetSettings returns the stored settings of name, or JSON null.
func (s *Store) GetSettings(name string) (jsonv.Value, error) {
	def, err := s.GetDefinition(name)
	if err != nil || def == nil {
		return jsonv.Null(), err
	}
	return def.Settings, nil
}

// GetMappings returns the stored mappings of name, or JSON null.
func (s *Store) GetMappings(name string) (jsonv.Value, error) {
	def, err := s.GetDefinition(name)
	if err != nil || def == nil {
		return jsonv.Null(), err
	}
	return def.Mappings, nil
}

// GetTransformScript returns the stored reindex script of name, or "".
func (s *Store) GetTransformScript(name string) (string, error) {
	def, err := s.GetDefinition(name)
	if err != nil || def == nil {
		return "", err
	}
	return def.TransformScript, nil
}
