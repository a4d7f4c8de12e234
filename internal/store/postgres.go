package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openshelf/shelfscan/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Analysis queue ---

const jobColumns = `id, image_url, image_id, include_confidence, status, attempts, result, error_message, started_at, completed_at, created_at, updated_at`

func (s *PostgresStore) EnqueueJob(ctx context.Context, imageURL, imageID string, includeConfidence bool) (*models.AnalysisJob, error) {
	now := time.Now().UTC()
	job := &models.AnalysisJob{
		ID:                uuid.New(),
		ImageURL:          imageURL,
		ImageID:           imageID,
		IncludeConfidence: includeConfidence,
		Status:            models.JobStatusPending,
		Attempts:          0,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO analysis_jobs (id, image_url, image_id, include_confidence, status, attempts, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		job.ID, job.ImageURL, job.ImageID, job.IncludeConfidence, job.Status, job.Attempts, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("enqueue job: %w", err)
	}
	return job, nil
}

// ClaimNextJob selects the oldest pending job and flips it to processing in a
// single conditional UPDATE. SKIP LOCKED keeps concurrent claimers from
// blocking on each other, and the status condition guarantees a job is handed
// out at most once per claim.
func (s *PostgresStore) ClaimNextJob(ctx context.Context) (*models.AnalysisJob, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE analysis_jobs
		 SET status = $1, attempts = attempts + 1, started_at = NOW(), updated_at = NOW()
		 WHERE id = (
		   SELECT id FROM analysis_jobs
		   WHERE status = $2
		   ORDER BY created_at
		   LIMIT 1
		   FOR UPDATE SKIP LOCKED
		 ) AND status = $2
		 RETURNING `+jobColumns,
		models.JobStatusProcessing, models.JobStatusPending)

	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim next job: %w", err)
	}
	return job, nil
}

func (s *PostgresStore) CompleteJob(ctx context.Context, id uuid.UUID, result *models.AnalysisResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encoding job result: %w", err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE analysis_jobs
		 SET status = $2, result = $3, completed_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND status = $4`,
		id, models.JobStatusCompleted, payload, models.JobStatusProcessing)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionError(ctx, id, models.JobStatusCompleted)
	}
	return nil
}

func (s *PostgresStore) FailJob(ctx context.Context, id uuid.UUID, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE analysis_jobs
		 SET status = $2, error_message = $3, completed_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND status = $4`,
		id, models.JobStatusFailed, errMsg, models.JobStatusProcessing)
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionError(ctx, id, models.JobStatusFailed)
	}
	return nil
}

func (s *PostgresStore) JobByID(ctx context.Context, id uuid.UUID) (*models.AnalysisJob, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM analysis_jobs WHERE id = $1`, id)

	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job by id: %w", err)
	}
	return job, nil
}

func (s *PostgresStore) JobByImageID(ctx context.Context, imageID string) (*models.AnalysisJob, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM analysis_jobs
		 WHERE image_id = $1 ORDER BY created_at DESC LIMIT 1`, imageID)

	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job by image id: %w", err)
	}
	return job, nil
}

// transitionError distinguishes "job does not exist" from "job is not in a
// claimable state" after a conditional update matched no rows.
func (s *PostgresStore) transitionError(ctx context.Context, id uuid.UUID, target string) error {
	var current string
	err := s.pool.QueryRow(ctx, `SELECT status FROM analysis_jobs WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get job status: %w", err)
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, target)
}

func scanJob(row pgx.Row) (*models.AnalysisJob, error) {
	var j models.AnalysisJob
	var resultRaw []byte
	if err := row.Scan(&j.ID, &j.ImageURL, &j.ImageID, &j.IncludeConfidence, &j.Status, &j.Attempts,
		&resultRaw, &j.ErrorMessage, &j.StartedAt, &j.CompletedAt, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	if len(resultRaw) > 0 {
		var result models.AnalysisResult
		if err := json.Unmarshal(resultRaw, &result); err != nil {
			return nil, fmt.Errorf("decoding job result: %w", err)
		}
		j.Result = &result
	}
	return &j, nil
}

// --- Pictures ---

func (s *PostgresStore) ReadAnalysis(ctx context.Context, imageID string) (*models.AnalysisResult, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT analysis_data FROM pictures WHERE image_id = $1`, imageID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read analysis: %w", err)
	}
	if len(raw) == 0 {
		return nil, ErrNotFound
	}
	var result models.AnalysisResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decoding stored analysis: %w", err)
	}
	return &result, nil
}

func (s *PostgresStore) WriteAnalysis(ctx context.Context, imageID string, result *models.AnalysisResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encoding analysis: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO pictures (image_id, analysis_data, created_at, updated_at)
		 VALUES ($1, $2, NOW(), NOW())
		 ON CONFLICT (image_id) DO UPDATE SET
		   analysis_data = EXCLUDED.analysis_data,
		   updated_at = NOW()`,
		imageID, payload)
	if err != nil {
		return fmt.Errorf("write analysis: %w", err)
	}
	return nil
}

// --- API Keys ---

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		key.ID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE deleted_at IS NULL ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
