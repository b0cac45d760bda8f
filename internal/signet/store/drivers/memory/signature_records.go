package memory

import (
	"context"
	"sort"

	"github.com/aussiebroadwan/signet/internal/signet/domain"
	"github.com/aussiebroadwan/signet/internal/signet/store"
)

type signatureRecordsRepo struct {
	s *Store
}

func (r *signatureRecordsRepo) CreateSignatureRecord(_ context.Context, rec domain.SignatureRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.signatures[rec.ID]; ok {
		return store.ErrAlreadyExists
	}

	// One record per factor session, matching the sqlite UNIQUE constraint.
	for _, existing := range r.s.signatures {
		if existing.FactorSessionID == rec.FactorSessionID {
			return store.ErrAlreadyExists
		}
	}

	cp := rec
	cp.Signature = append([]byte(nil), rec.Signature...)
	r.s.signatures[rec.ID] = &cp
	return nil
}

func (r *signatureRecordsRepo) GetSignatureRecord(_ context.Context, id string) (domain.SignatureRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rec, ok := r.s.signatures[id]
	if !ok {
		return domain.SignatureRecord{}, store.ErrNotFound
	}

	cp := *rec
	cp.Signature = append([]byte(nil), rec.Signature...)
	return cp, nil
}

func (r *signatureRecordsRepo) ListSignatureRecords(_ context.Context, artifactRef string) ([]domain.SignatureRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var records []domain.SignatureRecord
	for _, rec := range r.s.signatures {
		if rec.ArtifactRef != artifactRef {
			continue
		}
		cp := *rec
		cp.Signature = append([]byte(nil), rec.Signature...)
		records = append(records, cp)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records, nil
}

func (r *signatureRecordsRepo) UpdateSignatureStatus(_ context.Context, id string, status domain.SignatureStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rec, ok := r.s.signatures[id]
	if !ok {
		return store.ErrNotFound
	}

	rec.Status = status
	return nil
}
