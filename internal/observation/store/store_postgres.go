package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"fieldbook/internal/observation/models"
	"fieldbook/pkg/domain"
	"fieldbook/pkg/platform/sentinel"
)

// Postgres implements Store against PostgreSQL. Execute uses SELECT FOR
// UPDATE so validate-then-mutate is serialized per record by the database.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Migrate creates the observations table if it does not exist.
func (s *Postgres) Migrate(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS observations (
	id                UUID PRIMARY KEY,
	owner_id          UUID NOT NULL,
	status            TEXT NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL,
	image_storage_ref TEXT NOT NULL,
	image_access_url  TEXT NOT NULL DEFAULT '',
	suggestions       JSONB NOT NULL DEFAULT '[]',
	confirmed         JSONB,
	location_enabled  BOOLEAN NOT NULL DEFAULT FALSE,
	location_label    TEXT NOT NULL DEFAULT '',
	stats_applied     BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS idx_observations_owner_status ON observations (owner_id, status);
CREATE INDEX IF NOT EXISTS idx_observations_status_updated ON observations (status, updated_at);`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate observations: %w", err)
	}
	return nil
}

const observationColumns = `id, owner_id, status, created_at, updated_at,
	image_storage_ref, image_access_url, suggestions, confirmed,
	location_enabled, location_label, stats_applied`

func (s *Postgres) Create(ctx context.Context, obs *models.Observation) error {
	suggestions, confirmed, err := marshalRecognition(obs)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO observations (`+observationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		obs.ID.String(), obs.OwnerID.String(), string(obs.Status),
		obs.CreatedAt, obs.UpdatedAt,
		obs.Image.StorageRef, obs.Image.AccessURL,
		suggestions, confirmed,
		obs.Location.Enabled, obs.Location.Label, obs.StatsApplied,
	)
	if err != nil {
		return fmt.Errorf("insert observation: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, id domain.ObservationID) (*models.Observation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+observationColumns+` FROM observations WHERE id = $1`, id.String())
	return scanObservation(row)
}

func (s *Postgres) Execute(ctx context.Context, id domain.ObservationID,
	validate func(*models.Observation) error,
	mutate func(*models.Observation)) (*models.Observation, error) {

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		`SELECT `+observationColumns+` FROM observations WHERE id = $1 FOR UPDATE`, id.String())
	obs, err := scanObservation(row)
	if err != nil {
		return nil, err
	}

	if err := validate(obs.Clone()); err != nil {
		return nil, err
	}
	mutate(obs)

	suggestions, confirmed, err := marshalRecognition(obs)
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE observations SET
			status = $2, updated_at = $3, suggestions = $4, confirmed = $5,
			location_enabled = $6, location_label = $7, stats_applied = $8
		WHERE id = $1`,
		obs.ID.String(), string(obs.Status), obs.UpdatedAt,
		suggestions, confirmed,
		obs.Location.Enabled, obs.Location.Label, obs.StatsApplied,
	)
	if err != nil {
		return nil, fmt.Errorf("update observation: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit observation update: %w", err)
	}
	return obs, nil
}

func (s *Postgres) HasConfirmedSpecies(ctx context.Context, owner domain.AccountID, species domain.SpeciesID) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM observations
			WHERE owner_id = $1
			  AND status IN ('confirmed', 'saved')
			  AND confirmed->>'species_id' = $2
		)`, owner.String(), species.String()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query confirmed species: %w", err)
	}
	return exists, nil
}

func (s *Postgres) ListByOwner(ctx context.Context, owner domain.AccountID, q Query) ([]*models.Observation, error) {
	query := `SELECT ` + observationColumns + ` FROM observations WHERE owner_id = $1 AND status = ANY($2)`
	args := []any{owner.String(), statusArray(q.Statuses)}

	if q.Search != "" {
		query += fmt.Sprintf(` AND EXISTS (
			SELECT 1 FROM jsonb_array_elements(suggestions) AS sug
			WHERE sug->>'display_name' ILIKE $%d OR sug->>'scientific_name' ILIKE $%d
		)`, len(args)+1, len(args)+1)
		args = append(args, "%"+q.Search+"%")
	}
	if q.Category != nil {
		query += fmt.Sprintf(` AND (
			confirmed IS NOT NULL AND EXISTS (
				SELECT 1 FROM jsonb_array_elements(suggestions) AS sug
				WHERE sug->>'species_id' = confirmed->>'species_id' AND sug->>'category' = $%d
			)
			OR confirmed IS NULL AND EXISTS (
				SELECT 1 FROM jsonb_array_elements(suggestions) AS sug
				WHERE sug->>'category' = $%d
			)
		)`, len(args)+1, len(args)+1)
		args = append(args, q.Category.String())
	}

	if q.Sort == SortCreatedDesc {
		query += ` ORDER BY created_at DESC`
	} else {
		query += ` ORDER BY created_at ASC`
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list observations: %w", err)
	}
	defer rows.Close()

	var out []*models.Observation
	for rows.Next() {
		obs, err := scanObservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, obs)
	}
	return out, rows.Err()
}

func (s *Postgres) Purge(ctx context.Context, id domain.ObservationID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM observations WHERE id = $1`, id.String())
	if err != nil {
		return fmt.Errorf("purge observation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("purge observation: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Postgres) ListStuckAnalyzing(ctx context.Context, updatedBefore time.Time) ([]domain.ObservationID, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM observations WHERE status = 'analyzing' AND updated_at < $1`,
		updatedBefore)
	if err != nil {
		return nil, fmt.Errorf("list stuck analyzing: %w", err)
	}
	defer rows.Close()

	var ids []domain.ObservationID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		id, err := domain.ParseObservationID(raw)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanObservation(row rowScanner) (*models.Observation, error) {
	var (
		obs             models.Observation
		rawID, rawOwner string
		rawStatus       string
		suggestions     []byte
		confirmed       []byte
	)
	err := row.Scan(&rawID, &rawOwner, &rawStatus, &obs.CreatedAt, &obs.UpdatedAt,
		&obs.Image.StorageRef, &obs.Image.AccessURL, &suggestions, &confirmed,
		&obs.Location.Enabled, &obs.Location.Label, &obs.StatsApplied)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan observation: %w", err)
	}

	id, err := domain.ParseObservationID(rawID)
	if err != nil {
		return nil, err
	}
	owner, err := domain.ParseAccountID(rawOwner)
	if err != nil {
		return nil, err
	}
	obs.ID = id
	obs.OwnerID = owner
	obs.Status = models.Status(rawStatus)

	if err := json.Unmarshal(suggestions, &obs.Suggestions); err != nil {
		return nil, fmt.Errorf("decode suggestions: %w", err)
	}
	if len(confirmed) > 0 {
		var c models.Confirmation
		if err := json.Unmarshal(confirmed, &c); err != nil {
			return nil, fmt.Errorf("decode confirmation: %w", err)
		}
		obs.Confirmed = &c
	}
	return &obs, nil
}

func marshalRecognition(obs *models.Observation) (suggestions, confirmed []byte, err error) {
	if obs.Suggestions == nil {
		suggestions = []byte("[]")
	} else if suggestions, err = json.Marshal(obs.Suggestions); err != nil {
		return nil, nil, fmt.Errorf("encode suggestions: %w", err)
	}
	if obs.Confirmed != nil {
		if confirmed, err = json.Marshal(obs.Confirmed); err != nil {
			return nil, nil, fmt.Errorf("encode confirmation: %w", err)
		}
	}
	return suggestions, confirmed, nil
}

func statusArray(statuses []models.Status) any {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return pq.Array(out)
}
