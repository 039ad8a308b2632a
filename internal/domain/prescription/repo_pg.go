package prescription

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medscript/medscript/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

// inTx runs fn with a transaction on the context. A transaction already
// present on ctx is joined rather than nested, so callers can compose
// repository operations into one commit.
func (r *repoPG) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if db.TxFromContext(ctx) != nil {
		return fn(ctx)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(db.WithTx(ctx, tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const presCols = `id, patient_ref, practitioner_ref, diagnosis, notes, interaction_note,
	status, content_hash, supersedes, issued_at, created_at, updated_at`

func scanPrescription(row pgx.Row) (*Prescription, error) {
	var p Prescription
	err := row.Scan(&p.ID, &p.PatientRef, &p.PractitionerRef, &p.Diagnosis, &p.Notes,
		&p.InteractionNote, &p.Status, &p.ContentHash, &p.Supersedes,
		&p.IssuedAt, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repoPG) loadItems(ctx context.Context, q queryable, p *Prescription) error {
	rows, err := q.Query(ctx, `
		SELECT drug, dosage, frequency, duration, instructions
		FROM prescription_item
		WHERE prescription_id = $1
		ORDER BY position`, p.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.Drug, &it.Dosage, &it.Frequency, &it.Duration, &it.Instructions); err != nil {
			return err
		}
		p.Items = append(p.Items, it)
	}
	return rows.Err()
}

func insertPrescription(ctx context.Context, q queryable, p *Prescription) error {
	_, err := q.Exec(ctx, `
		INSERT INTO prescription (id, patient_ref, practitioner_ref, diagnosis, notes,
			interaction_note, status, content_hash, supersedes, issued_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		p.ID, p.PatientRef, p.PractitionerRef, p.Diagnosis, p.Notes,
		p.InteractionNote, p.Status, p.ContentHash, p.Supersedes, p.IssuedAt)
	if err != nil {
		return err
	}

	for i, it := range p.Items {
		_, err := q.Exec(ctx, `
			INSERT INTO prescription_item (prescription_id, position, drug, dosage, frequency, duration, instructions)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			p.ID, i, it.Drug, it.Dosage, it.Frequency, it.Duration, it.Instructions)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *repoPG) Create(ctx context.Context, p *Prescription) error {
	return r.inTx(ctx, func(ctx context.Context) error {
		return insertPrescription(ctx, r.conn(ctx), p)
	})
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	q := r.conn(ctx)
	p, err := scanPrescription(q.QueryRow(ctx, `SELECT `+presCols+` FROM prescription WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadItems(ctx, q, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *repoPG) GetSuccessor(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	q := r.conn(ctx)
	p, err := scanPrescription(q.QueryRow(ctx, `SELECT `+presCols+` FROM prescription WHERE supersedes = $1`, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadItems(ctx, q, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *repoPG) ListByPatient(ctx context.Context, patientRef string, limit, offset int) ([]*Prescription, int, error) {
	q := r.conn(ctx)

	var total int
	if err := q.QueryRow(ctx,
		`SELECT COUNT(*) FROM prescription WHERE patient_ref = $1`, patientRef).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := q.Query(ctx, `
		SELECT `+presCols+` FROM prescription
		WHERE patient_ref = $1
		ORDER BY issued_at DESC
		LIMIT $2 OFFSET $3`, patientRef, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []*Prescription
	for rows.Next() {
		p, err := scanPrescription(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	for _, p := range result {
		if err := r.loadItems(ctx, q, p); err != nil {
			return nil, 0, err
		}
	}

	return result, total, nil
}

// transition performs the compare-and-set status update. The WHERE clause on
// status = 'ACTIVE' is the serialization point: of two concurrent amend or
// revoke calls on the same id, exactly one observes an affected row.
func transition(ctx context.Context, q queryable, id uuid.UUID, to Status) error {
	tag, err := q.Exec(ctx, `
		UPDATE prescription SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'ACTIVE'`, id, to)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var current Status
		err := q.QueryRow(ctx, `SELECT status FROM prescription WHERE id = $1`, id).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: status is %s", ErrInvalidState, current)
	}
	return nil
}

func (r *repoPG) Amend(ctx context.Context, oldID uuid.UUID, replacement *Prescription) error {
	return r.inTx(ctx, func(ctx context.Context) error {
		if err := transition(ctx, r.conn(ctx), oldID, StatusAmended); err != nil {
			return err
		}
		return insertPrescription(ctx, r.conn(ctx), replacement)
	})
}

func (r *repoPG) Revoke(ctx context.Context, id uuid.UUID) error {
	return transition(ctx, r.conn(ctx), id, StatusRevoked)
}
