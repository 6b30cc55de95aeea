// Package file provides file-backed collaborator implementations for
// development and tests. Production deployments wire the surrounding
// application's services instead.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sleng75/slimail/pkg/models"
)

// ContactStore serves contact snapshots from one JSON file per contact and
// applies tag/list mutations back to those files. It also enumerates contact
// IDs, which the date sweep relies on.
type ContactStore struct {
	dir string
	mu  sync.Mutex
}

func NewContactStore(dir string) *ContactStore {
	return &ContactStore{dir: dir}
}

func (s *ContactStore) GetContact(_ context.Context, contactID string) (*models.ContactSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.readLocked(contactID)
}

func (s *ContactStore) ListContactIDs(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}

		return nil, fmt.Errorf("failed to read contacts directory: %w", err)
	}

	ids := make([]string, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		ids = append(ids, strings.TrimSuffix(entry.Name(), ".json"))
	}

	return ids, nil
}

func (s *ContactStore) AddTag(ctx context.Context, contactID, tagID string) error {
	return s.mutate(contactID, func(contact *models.ContactSnapshot) {
		if contact.Tags == nil {
			contact.Tags = make(map[string]bool)
		}

		contact.Tags[tagID] = true
	})
}

func (s *ContactStore) RemoveTag(ctx context.Context, contactID, tagID string) error {
	return s.mutate(contactID, func(contact *models.ContactSnapshot) {
		delete(contact.Tags, tagID)
	})
}

func (s *ContactStore) AddToList(ctx context.Context, contactID, listID string) error {
	return s.mutate(contactID, func(contact *models.ContactSnapshot) {
		if contact.Lists == nil {
			contact.Lists = make(map[string]bool)
		}

		contact.Lists[listID] = true
	})
}

func (s *ContactStore) RemoveFromList(ctx context.Context, contactID, listID string) error {
	return s.mutate(contactID, func(contact *models.ContactSnapshot) {
		delete(contact.Lists, listID)
	})
}

func (s *ContactStore) mutate(contactID string, apply func(*models.ContactSnapshot)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	contact, err := s.readLocked(contactID)
	if err != nil {
		return err
	}

	apply(contact)

	data, err := json.MarshalIndent(contact, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode contact %s: %w", contactID, err)
	}

	return os.WriteFile(s.path(contactID), data, 0o600)
}

func (s *ContactStore) readLocked(contactID string) (*models.ContactSnapshot, error) {
	data, err := os.ReadFile(s.path(contactID))
	if err != nil {
		return nil, fmt.Errorf("failed to read contact %s: %w", contactID, err)
	}

	var contact models.ContactSnapshot
	if err := json.Unmarshal(data, &contact); err != nil {
		return nil, fmt.Errorf("failed to decode contact %s: %w", contactID, err)
	}

	return &contact, nil
}

func (s *ContactStore) path(contactID string) string {
	return filepath.Join(s.dir, contactID+".json")
}
