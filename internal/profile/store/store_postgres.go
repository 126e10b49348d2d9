package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"fieldbook/internal/profile/models"
	"fieldbook/pkg/domain"
	"fieldbook/pkg/platform/sentinel"
)

// Postgres implements Store against PostgreSQL. Execute uses SELECT FOR
// UPDATE so stats mutations on one profile are serialized by the database.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Migrate creates the profiles table if it does not exist.
func (s *Postgres) Migrate(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS profiles (
	account_id          UUID PRIMARY KEY,
	display_name        TEXT NOT NULL DEFAULT '',
	observation_count   INTEGER NOT NULL DEFAULT 0,
	species_count       INTEGER NOT NULL DEFAULT 0,
	onboarding_complete BOOLEAN NOT NULL DEFAULT FALSE,
	location_enabled    BOOLEAN NOT NULL DEFAULT FALSE,
	language            TEXT NOT NULL DEFAULT 'en',
	updated_at          TIMESTAMPTZ NOT NULL
);`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate profiles: %w", err)
	}
	return nil
}

const profileColumns = `account_id, display_name, observation_count, species_count,
	onboarding_complete, location_enabled, language, updated_at`

func (s *Postgres) Save(ctx context.Context, profile *models.Profile) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (`+profileColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (account_id) DO UPDATE
		SET display_name = EXCLUDED.display_name, updated_at = EXCLUDED.updated_at`,
		profile.AccountID.String(), profile.DisplayName,
		profile.Stats.ObservationCount, profile.Stats.SpeciesCount,
		profile.OnboardingComplete,
		profile.Settings.LocationEnabled, profile.Settings.Language.String(),
		profile.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

func (s *Postgres) FindByAccount(ctx context.Context, accountID domain.AccountID) (*models.Profile, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE account_id = $1`, accountID.String())
	return scanProfile(row)
}

func (s *Postgres) Execute(ctx context.Context, accountID domain.AccountID,
	mutate func(*models.Profile) error) (*models.Profile, error) {

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE account_id = $1 FOR UPDATE`, accountID.String())
	profile, err := scanProfile(row)
	if err != nil {
		return nil, err
	}

	if err := mutate(profile); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE profiles SET
			display_name = $2, observation_count = $3, species_count = $4,
			onboarding_complete = $5, location_enabled = $6, language = $7,
			updated_at = $8
		WHERE account_id = $1`,
		profile.AccountID.String(), profile.DisplayName,
		profile.Stats.ObservationCount, profile.Stats.SpeciesCount,
		profile.OnboardingComplete,
		profile.Settings.LocationEnabled, profile.Settings.Language.String(),
		profile.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit profile update: %w", err)
	}
	return profile, nil
}

func scanProfile(row *sql.Row) (*models.Profile, error) {
	var (
		profile     models.Profile
		rawAccount  string
		rawLanguage string
	)
	err := row.Scan(&rawAccount, &profile.DisplayName,
		&profile.Stats.ObservationCount, &profile.Stats.SpeciesCount,
		&profile.OnboardingComplete,
		&profile.Settings.LocationEnabled, &rawLanguage,
		&profile.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan profile: %w", err)
	}

	accountID, err := domain.ParseAccountID(rawAccount)
	if err != nil {
		return nil, err
	}
	profile.AccountID = accountID
	profile.Settings.Language = domain.LanguageCode(rawLanguage)
	return &profile, nil
}
