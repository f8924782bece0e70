package documents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"storygen-backend/internal/shared/storage/object"
	"storygen-backend/internal/shared/util"
)

// DefaultCacheSize is used when the configured cache size is not positive.
const DefaultCacheSize = 256

// StorageKey is the deterministic object key of a subject's document.
func StorageKey(subjectID string) string {
	return "documents/" + util.HashKey(subjectID) + "/final.json"
}

// Service stores final documents as JSON objects with a metadata row and an LRU cache of
// object bodies.
type Service struct {
	Store object.Blobs
	Repo  Repo
	cache *lru.Cache[string, Document]
}

// NewService constructs a Service.
func NewService(store object.Blobs, repo Repo, cacheSize int) (*Service, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, Document](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Service{Store: store, Repo: repo, cache: cache}, nil
}

// Put writes the document, overwriting any previous version.
func (s *Service) Put(ctx context.Context, doc Document) (Document, error) {
	payload, err := json.Marshal(doc)
	if err != nil {
		return Document{}, err
	}
	key := StorageKey(doc.SubjectID)

	s.cache.Remove(doc.SubjectID)
	if err := s.Store.Write(ctx, key, payload, "application/json"); err != nil {
		return Document{}, fmt.Errorf("store document: %w", err)
	}
	size := int64(len(payload))
	doc.StorageKey = key
	doc.SizeBytes = size
	if err := s.Repo.Put(ctx, Record{
		SubjectID:  doc.SubjectID,
		StorageKey: key,
		SizeBytes:  size,
		CreatedAt:  doc.CreatedAt,
	}); err != nil {
		return Document{}, fmt.Errorf("record document: %w", err)
	}
	s.cache.Add(doc.SubjectID, doc)
	return doc, nil
}

// Get returns the stored document or ErrNotFound. The metadata row is always read; the
// cache only saves the object fetch when it holds the body that row points at.
func (s *Service) Get(ctx context.Context, subjectID string) (Document, error) {
	rec, err := s.Repo.Get(ctx, subjectID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.cache.Remove(subjectID)
		}
		return Document{}, err
	}
	if doc, ok := s.cache.Get(subjectID); ok && matches(doc, rec) {
		return doc, nil
	}

	payload, err := s.Store.Read(ctx, rec.StorageKey)
	if err != nil {
		if errors.Is(err, object.ErrNotFound) {
			s.cache.Remove(subjectID)
			return Document{}, ErrNotFound
		}
		return Document{}, fmt.Errorf("read document: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(payload, &doc); err != nil {
		return Document{}, fmt.Errorf("decode document: %w", err)
	}
	doc.StorageKey = rec.StorageKey
	doc.SizeBytes = rec.SizeBytes
	doc.CreatedAt = rec.CreatedAt
	s.cache.Add(subjectID, doc)
	return doc, nil
}

// matches reports whether a cached body belongs to rec. Postgres keeps microseconds.
func matches(doc Document, rec Record) bool {
	return doc.StorageKey == rec.StorageKey &&
		doc.SizeBytes == rec.SizeBytes &&
		doc.CreatedAt.Truncate(time.Microsecond).Equal(rec.CreatedAt.Truncate(time.Microsecond))
}

// Exists reports whether a document has been recorded for the subject. Another process may
// have deleted it, so the answer always comes from the repo.
func (s *Service) Exists(ctx context.Context, subjectID string) (bool, error) {
	_, err := s.Repo.Get(ctx, subjectID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		s.cache.Remove(subjectID)
		return false, nil
	default:
		return false, err
	}
}

// Delete removes the document and its record. Deleting a missing document is not an error.
func (s *Service) Delete(ctx context.Context, subjectID string) error {
	s.cache.Remove(subjectID)
	if err := s.Repo.Delete(ctx, subjectID); err != nil {
		return fmt.Errorf("delete document record: %w", err)
	}
	if err := s.Store.Remove(ctx, StorageKey(subjectID)); err != nil && !errors.Is(err, object.ErrNotFound) {
		return fmt.Errorf("delete document object: %w", err)
	}
	return nil
}
