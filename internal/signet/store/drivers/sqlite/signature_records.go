package sqlite

import (
	"context"
	"database/sql"

	"github.com/aussiebroadwan/signet/internal/signet/domain"
	"github.com/aussiebroadwan/signet/internal/signet/store"
)

type signatureRecordsRepo struct {
	db *sql.DB
}

func (r *signatureRecordsRepo) CreateSignatureRecord(ctx context.Context, rec domain.SignatureRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO signature_records
			(id, artifact_ref, signature, digest_algorithm, key_handle,
			 signer_name, signer_reason, signer_location, declared_at,
			 status, factor_session_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.ArtifactRef, rec.Signature, rec.DigestAlgorithm, rec.KeyHandle,
		rec.Signer.Name, rec.Signer.Reason, rec.Signer.Location, rec.Signer.DeclaredAt.UTC(),
		string(rec.Status), rec.FactorSessionID, rec.CreatedAt.UTC(),
	)
	return err
}

func (r *signatureRecordsRepo) GetSignatureRecord(ctx context.Context, id string) (domain.SignatureRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, artifact_ref, signature, digest_algorithm, key_handle,
		       signer_name, signer_reason, signer_location, declared_at,
		       status, factor_session_id, created_at
		FROM signature_records
		WHERE id = ?`, id)

	rec, err := scanSignatureRecord(row)
	if err != nil {
		return domain.SignatureRecord{}, mapNotFound(err)
	}
	return rec, nil
}

func (r *signatureRecordsRepo) ListSignatureRecords(ctx context.Context, artifactRef string) ([]domain.SignatureRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, artifact_ref, signature, digest_algorithm, key_handle,
		       signer_name, signer_reason, signer_location, declared_at,
		       status, factor_session_id, created_at
		FROM signature_records
		WHERE artifact_ref = ?
		ORDER BY created_at DESC`, artifactRef)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.SignatureRecord
	for rows.Next() {
		rec, err := scanSignatureRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *signatureRecordsRepo) UpdateSignatureStatus(ctx context.Context, id string, status domain.SignatureStatus) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE signature_records
		SET status = ?
		WHERE id = ?`, string(status), id)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSignatureRecord(row rowScanner) (domain.SignatureRecord, error) {
	var (
		rec    domain.SignatureRecord
		status string
	)
	err := row.Scan(&rec.ID, &rec.ArtifactRef, &rec.Signature, &rec.DigestAlgorithm, &rec.KeyHandle,
		&rec.Signer.Name, &rec.Signer.Reason, &rec.Signer.Location, &rec.Signer.DeclaredAt,
		&status, &rec.FactorSessionID, &rec.CreatedAt)
	if err != nil {
		return domain.SignatureRecord{}, err
	}

	rec.Status = domain.SignatureStatus(status)
	rec.Signer.DeclaredAt = rec.Signer.DeclaredAt.UTC()
	rec.CreatedAt = rec.CreatedAt.UTC()
	return rec, nil
}
