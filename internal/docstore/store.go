// Package docstore is the storage collaborator: it registers uploaded
// contract documents and hands out opaque read-only handles. The
// orchestrator never persists raw bytes itself.
package docstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/contracts-desk/constants"
	"github.com/joseph-ayodele/contracts-desk/internal/common"
	"github.com/joseph-ayodele/contracts-desk/internal/extract"
)

// RegistrationResult is the per-file registration outcome.
type RegistrationResult struct {
	DocumentID   string
	Deduplicated bool
	HashHex      string
	Format       constants.DocumentFormat
	UploadedAt   time.Time
}

// Store indexes registered documents by ID and content hash. Document bytes
// stay at their source path; handles are read-only after registration.
type Store struct {
	mu     sync.RWMutex
	docs   map[string]extract.DocumentRef
	byHash map[string]string // content hash -> document ID
	log    *slog.Logger
}

// NewStore builds an empty document store.
func NewStore(log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		docs:   make(map[string]extract.DocumentRef),
		byHash: make(map[string]string),
		log:    log,
	}
}

// Register validates and indexes the file at path. Re-registering identical
// content returns the existing document with Deduplicated set.
func (s *Store) Register(ctx context.Context, path string) (RegistrationResult, error) {
	ext := constants.NormalizeExt(filepath.Ext(path))
	if _, ok := constants.AllowedExtensions[ext]; !ok {
		return RegistrationResult{}, fmt.Errorf("%w: unsupported extension %q", common.ErrInvalidInput, ext)
	}
	format := constants.MapExtToFormat(ext)

	hashHex, err := hashFile(path)
	if err != nil {
		return RegistrationResult{}, fmt.Errorf("hash %s: %w", path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byHash[hashHex]; ok {
		s.log.Info("docstore.deduplicated", "document_id", id, "hash", hashHex)
		return RegistrationResult{
			DocumentID:   id,
			Deduplicated: true,
			HashHex:      hashHex,
			Format:       format,
			UploadedAt:   time.Now().UTC(),
		}, nil
	}

	id := uuid.New().String()
	s.docs[id] = extract.DocumentRef{
		ID:       id,
		Filename: filepath.Base(path),
		Format:   format,
		Path:     path,
	}
	s.byHash[hashHex] = id

	s.log.Info("docstore.registered", "document_id", id, "format", format, "hash", hashHex)
	return RegistrationResult{
		DocumentID: id,
		HashHex:    hashHex,
		Format:     format,
		UploadedAt: time.Now().UTC(),
	}, nil
}

// Get returns the handle for a registered document.
func (s *Store) Get(documentID string) (extract.DocumentRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[documentID]
	if !ok {
		return extract.DocumentRef{}, fmt.Errorf("%w: document %s", common.ErrNotFound, documentID)
	}
	return doc, nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
