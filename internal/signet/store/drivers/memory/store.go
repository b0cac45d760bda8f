// Package memory provides an in-process Store driver. It backs tests and
// single-node deployments that do not want a database file; all mutation
// primitives give the same atomicity guarantees as the sqlite driver.
package memory

import (
	"context"
	"sync"

	"github.com/aussiebroadwan/signet/internal/signet/domain"
	"github.com/aussiebroadwan/signet/internal/signet/store"
)

type Store struct {
	mu         sync.Mutex
	sessions   map[string]*domain.FactorSession
	totp       map[string]*domain.TOTPSecret
	signatures map[string]*domain.SignatureRecord
}

func NewStore() *Store {
	return &Store{
		sessions:   make(map[string]*domain.FactorSession),
		totp:       make(map[string]*domain.TOTPSecret),
		signatures: make(map[string]*domain.SignatureRecord),
	}
}

func (s *Store) FactorSessions() store.FactorSessions     { return &factorSessionsRepo{s: s} }
func (s *Store) TOTPSecrets() store.TOTPSecrets           { return &totpSecretsRepo{s: s} }
func (s *Store) SignatureRecords() store.SignatureRecords { return &signatureRecordsRepo{s: s} }

// ApplyMigrations is a no-op; the maps have no schema.
func (s *Store) ApplyMigrations() error { return nil }

func (s *Store) Close() error { return nil }

func (s *Store) Ping(_ context.Context) error { return nil }
