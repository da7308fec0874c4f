package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"

	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/campus-attendance/internal/database"
	"github.com/kozaktomas/campus-attendance/internal/signature"
)

// scanPageSize is the number of signatures fetched per round trip during Scan.
// One signature is roughly 40 KB on the wire.
const scanPageSize = 256

// SignatureRepository provides PostgreSQL-backed face signature storage
type SignatureRepository struct {
	pool *Pool
}

// NewSignatureRepository creates a new PostgreSQL signature repository
func NewSignatureRepository(pool *Pool) *SignatureRepository {
	return &SignatureRepository{pool: pool}
}

// Get retrieves the signature of a person, returns nil if not found
func (r *SignatureRepository) Get(ctx context.Context, personID string) (*database.StoredSignature, error) {
	query := `
		SELECT person_id, signature, source_image, updated_at
		FROM face_signatures
		WHERE person_id = $1
	`

	var sig database.StoredSignature
	var vec pgvector.Vector

	err := r.pool.QueryRow(ctx, query, personID).Scan(&sig.PersonID, &vec, &sig.SourceImage, &sig.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query signature: %w", err)
	}

	sig.Vector = vec.Slice()
	return &sig, nil
}

// Scan yields all signatures ordered by person ID, paging with a keyset cursor
// so the full table is never held in memory.
func (r *SignatureRepository) Scan(ctx context.Context) iter.Seq2[database.StoredSignature, error] {
	return func(yield func(database.StoredSignature, error) bool) {
		cursor := ""
		for {
			page, err := r.scanPage(ctx, cursor)
			if err != nil {
				yield(database.StoredSignature{}, err)
				return
			}
			for _, sig := range page {
				if !yield(sig, nil) {
					return
				}
			}
			if len(page) < scanPageSize {
				return
			}
			cursor = page[len(page)-1].PersonID
		}
	}
}

func (r *SignatureRepository) scanPage(ctx context.Context, after string) ([]database.StoredSignature, error) {
	query := `
		SELECT person_id, signature, source_image, updated_at
		FROM face_signatures
		WHERE person_id > $1
		ORDER BY person_id
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, after, scanPageSize)
	if err != nil {
		return nil, fmt.Errorf("scan signatures: %w", err)
	}
	defer rows.Close()

	page := make([]database.StoredSignature, 0, scanPageSize)
	for rows.Next() {
		var sig database.StoredSignature
		var vec pgvector.Vector
		if err := rows.Scan(&sig.PersonID, &vec, &sig.SourceImage, &sig.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan signature row: %w", err)
		}
		sig.Vector = vec.Slice()
		page = append(page, sig)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate signatures: %w", err)
	}
	return page, nil
}

// Count returns the number of enrolled signatures
func (r *SignatureRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM face_signatures").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count signatures: %w", err)
	}
	return count, nil
}

// Put stores a signature, replacing any existing one for the person
func (r *SignatureRepository) Put(ctx context.Context, sig database.StoredSignature) error {
	if err := signature.Validate(sig.Vector); err != nil {
		return err
	}

	query := `
		INSERT INTO face_signatures (person_id, signature, source_image, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (person_id) DO UPDATE SET
			signature = EXCLUDED.signature,
			source_image = EXCLUDED.source_image,
			updated_at = NOW()
	`

	_, err := r.pool.Exec(ctx, query, sig.PersonID, pgvector.NewVector(sig.Vector), sig.SourceImage)
	if err != nil {
		return fmt.Errorf("save signature: %w", err)
	}
	return nil
}

// Delete removes the signature of a person
func (r *SignatureRepository) Delete(ctx context.Context, personID string) error {
	_, err := r.pool.Exec(ctx, "DELETE FROM face_signatures WHERE person_id = $1", personID)
	if err != nil {
		return fmt.Errorf("delete signature: %w", err)
	}
	return nil
}
