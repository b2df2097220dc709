package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/your-org/recall/internal/config"
	"github.com/your-org/recall/internal/models"
)

const uniqueViolation = "23505"

var schema = []string{
	`CREATE EXTENSION IF NOT EXISTS vector`,
	`CREATE TABLE IF NOT EXISTS persons (
		id           TEXT PRIMARY KEY,
		name_key     TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS face_embeddings (
		id          TEXT PRIMARY KEY,
		person_id   TEXT NOT NULL REFERENCES persons(id),
		embedding   vector NOT NULL,
		crop_key    TEXT NOT NULL DEFAULT '',
		width       INT NOT NULL DEFAULT 0,
		height      INT NOT NULL DEFAULT 0,
		sharpness   DOUBLE PRECISION NOT NULL DEFAULT 0,
		source      TEXT NOT NULL DEFAULT '',
		captured_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS face_embeddings_person_idx ON face_embeddings (person_id, captured_at DESC)`,
}

// PostgresStore keeps the face registry in Postgres with pgvector columns.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(cfg config.DatabaseConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// EnsureSchema creates the registry tables when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// --- Persons ---

const personColumns = `p.id, p.name_key, p.display_name, p.created_at, p.updated_at,
	(SELECT COUNT(*) FROM face_embeddings fe WHERE fe.person_id = p.id)`

func scanPerson(row pgx.Row) (*models.Person, error) {
	p := &models.Person{}
	if err := row.Scan(&p.ID, &p.Key, &p.DisplayName, &p.CreatedAt, &p.UpdatedAt, &p.FaceCount); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *PostgresStore) CreatePerson(ctx context.Context, p *models.Person) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO persons (id, name_key, display_name) VALUES ($1, $2, $3) RETURNING created_at, updated_at`,
		p.ID, p.Key, p.DisplayName,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create person %q: %w", p.Key, models.ErrConflict)
		}
		return fmt.Errorf("create person: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPerson(ctx context.Context, id string) (*models.Person, error) {
	p, err := scanPerson(s.pool.QueryRow(ctx,
		`SELECT `+personColumns+` FROM persons p WHERE p.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("person %s: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("get person: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) GetPersonByKey(ctx context.Context, key string) (*models.Person, error) {
	p, err := scanPerson(s.pool.QueryRow(ctx,
		`SELECT `+personColumns+` FROM persons p WHERE p.name_key = $1`, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("person %q: %w", key, models.ErrNotFound)
		}
		return nil, fmt.Errorf("get person by key: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) ListPersons(ctx context.Context) ([]models.Person, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+personColumns+` FROM persons p ORDER BY p.name_key`)
	if err != nil {
		return nil, fmt.Errorf("list persons: %w", err)
	}
	defer rows.Close()

	var persons []models.Person
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, fmt.Errorf("scan person: %w", err)
		}
		persons = append(persons, *p)
	}
	return persons, rows.Err()
}

func (s *PostgresStore) RenamePerson(ctx context.Context, oldKey, newKey, displayName string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE persons SET name_key = $2, display_name = $3, updated_at = now() WHERE name_key = $1`,
		oldKey, newKey, displayName)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("rename person to %q: %w", newKey, models.ErrConflict)
		}
		return fmt.Errorf("rename person: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("person %q: %w", oldKey, models.ErrNotFound)
	}
	return nil
}

// --- Face Embeddings ---

func (s *PostgresStore) AddFaceEmbedding(ctx context.Context, fe *models.FaceEmbedding) error {
	vec := pgvector.NewVector(fe.Vector)
	err := s.pool.QueryRow(ctx,
		`INSERT INTO face_embeddings (id, person_id, embedding, crop_key, width, height, sharpness, source)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING captured_at`,
		fe.ID, fe.PersonID, vec, fe.CropKey, fe.Width, fe.Height, fe.Sharpness, fe.Source,
	).Scan(&fe.CapturedAt)
	if err != nil {
		return fmt.Errorf("add face embedding: %w", err)
	}
	_, err = s.pool.Exec(ctx, `UPDATE persons SET updated_at = now() WHERE id = $1`, fe.PersonID)
	if err != nil {
		return fmt.Errorf("touch person: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListFaceEmbeddings(ctx context.Context) ([]models.FaceEmbedding, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, person_id, embedding, crop_key, width, height, sharpness, source, captured_at
		 FROM face_embeddings ORDER BY captured_at`)
	if err != nil {
		return nil, fmt.Errorf("list face embeddings: %w", err)
	}
	defer rows.Close()

	var faces []models.FaceEmbedding
	for rows.Next() {
		var fe models.FaceEmbedding
		var vec pgvector.Vector
		if err := rows.Scan(&fe.ID, &fe.PersonID, &vec, &fe.CropKey, &fe.Width, &fe.Height,
			&fe.Sharpness, &fe.Source, &fe.CapturedAt); err != nil {
			return nil, fmt.Errorf("scan face embedding: %w", err)
		}
		fe.Vector = vec.Slice()
		faces = append(faces, fe)
	}
	return faces, rows.Err()
}

func (s *PostgresStore) LatestFace(ctx context.Context, personID string) (*models.FaceEmbedding, error) {
	fe := &models.FaceEmbedding{PersonID: personID}
	err := s.pool.QueryRow(ctx,
		`SELECT id, crop_key, width, height, sharpness, source, captured_at
		 FROM face_embeddings WHERE person_id = $1 AND crop_key <> ''
		 ORDER BY captured_at DESC LIMIT 1`, personID,
	).Scan(&fe.ID, &fe.CropKey, &fe.Width, &fe.Height, &fe.Sharpness, &fe.Source, &fe.CapturedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("face for person %s: %w", personID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("latest face: %w", err)
	}
	return fe, nil
}

// NearestPersons returns every person with the minimum cosine distance of
// their embeddings to query, closest first. pgvector's <=> operator is
// 1 - cosine similarity.
func (s *PostgresStore) NearestPersons(ctx context.Context, query []float32) ([]models.PersonDistance, error) {
	vec := pgvector.NewVector(query)
	rows, err := s.pool.Query(ctx, `
		SELECT p.id, p.name_key, p.display_name, MIN(fe.embedding <=> $1) AS distance
		FROM face_embeddings fe
		JOIN persons p ON p.id = fe.person_id
		GROUP BY p.id, p.name_key, p.display_name
		ORDER BY distance, p.display_name, p.id`, vec)
	if err != nil {
		return nil, fmt.Errorf("nearest persons: %w", err)
	}
	defer rows.Close()

	var out []models.PersonDistance
	for rows.Next() {
		var d models.PersonDistance
		if err := rows.Scan(&d.PersonID, &d.Key, &d.DisplayName, &d.Distance); err != nil {
			return nil, fmt.Errorf("scan person distance: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
