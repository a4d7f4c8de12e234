package store_test

import (
	"context"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/openshelf/shelfscan/internal/store"
	"github.com/openshelf/shelfscan/pkg/models"
)

// migrationsDir returns the absolute path to the migrations directory.
func migrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "migrations")
}

// setupTestDB spins up a Postgres container, runs migrations, and returns a pool + cleanup.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("shelfscan_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, pgContainer.Terminate(ctx))
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	// Run migrations
	err = store.RunMigrations(connStr, migrationsDir())
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	return pool
}

// --- Queue Tests ---

func TestQueue_EnqueueAndClaim(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	job, err := s.EnqueueJob(ctx, "https://example.com/shelf.jpg", "abc", true)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, job.Status)
	assert.Equal(t, 0, job.Attempts)
	assert.True(t, job.IncludeConfidence)

	claimed, err := s.ClaimNextJob(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, job.ID, claimed.ID)
	assert.Equal(t, models.JobStatusProcessing, claimed.Status)
	assert.Equal(t, 1, claimed.Attempts)
	assert.True(t, claimed.IncludeConfidence)
	assert.NotNil(t, claimed.StartedAt)

	// A second claim before complete/fail finds nothing.
	second, err := s.ClaimNextJob(ctx)
	require.NoError(t, err)
	assert.Nil(t, second)
}

func TestQueue_ClaimOrderIsFIFO(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	first, err := s.EnqueueJob(ctx, "https://example.com/1.jpg", "img-1", false)
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)
	_, err = s.EnqueueJob(ctx, "https://example.com/2.jpg", "img-2", false)
	require.NoError(t, err)

	claimed, err := s.ClaimNextJob(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, first.ID, claimed.ID)
}

func TestQueue_ConcurrentClaimExclusivity(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	job, err := s.EnqueueJob(ctx, "https://example.com/shelf.jpg", "abc", false)
	require.NoError(t, err)

	const claimers = 8
	var wg sync.WaitGroup
	results := make(chan *models.AnalysisJob, claimers)
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := s.ClaimNextJob(ctx)
			assert.NoError(t, err)
			results <- claimed
		}()
	}
	wg.Wait()
	close(results)

	var winners int
	for claimed := range results {
		if claimed != nil {
			winners++
			assert.Equal(t, job.ID, claimed.ID)
			assert.Equal(t, 1, claimed.Attempts)
		}
	}
	assert.Equal(t, 1, winners, "exactly one claimer may win the job")
}

func TestQueue_CompleteAndStatusByImageID(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	job, err := s.EnqueueJob(ctx, "https://x/1.jpg", "abc", false)
	require.NoError(t, err)

	claimed, err := s.ClaimNextJob(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)

	result := models.FlatResult([]models.SKURecord{{
		Brand: "B", Name: "P", Count: 3, Price: 5.99,
		Position: "top", Confidence: models.ConfidenceHigh,
	}})
	require.NoError(t, s.CompleteJob(ctx, job.ID, result))

	got, err := s.JobByImageID(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	assert.NotNil(t, got.CompletedAt)
	require.NotNil(t, got.Result)
	require.Len(t, got.Result.Items, 1)
	assert.Equal(t, "B", got.Result.Items[0].Brand)
	assert.Equal(t, "P", got.Result.Items[0].Name)
	assert.Equal(t, 3, got.Result.Items[0].Count)
	assert.Equal(t, 5.99, got.Result.Items[0].Price)
	assert.Equal(t, "top", got.Result.Items[0].Position)
	assert.Equal(t, models.ConfidenceHigh, got.Result.Items[0].Confidence)
}

func TestQueue_FailJob(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	job, err := s.EnqueueJob(ctx, "https://x/1.jpg", "abc", false)
	require.NoError(t, err)
	_, err = s.ClaimNextJob(ctx)
	require.NoError(t, err)

	require.NoError(t, s.FailJob(ctx, job.ID, "all 4 attempts failed: rate limited"))

	got, err := s.JobByImageID(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Contains(t, *got.ErrorMessage, "rate limited")
}

func TestQueue_InvalidTransitions(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	job, err := s.EnqueueJob(ctx, "https://x/1.jpg", "abc", false)
	require.NoError(t, err)

	// Completing a job that was never claimed is rejected.
	err = s.CompleteJob(ctx, job.ID, models.FlatResult(nil))
	assert.ErrorIs(t, err, store.ErrInvalidTransition)

	// Settling an unknown job reports not-found.
	err = s.FailJob(ctx, uuid.New(), "boom")
	assert.ErrorIs(t, err, store.ErrNotFound)

	// A settled job cannot be settled again.
	_, err = s.ClaimNextJob(ctx)
	require.NoError(t, err)
	require.NoError(t, s.FailJob(ctx, job.ID, "boom"))
	err = s.CompleteJob(ctx, job.ID, models.FlatResult(nil))
	assert.ErrorIs(t, err, store.ErrInvalidTransition)
}

func TestQueue_JobByImageIDReturnsLatest(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	_, err := s.EnqueueJob(ctx, "https://x/1.jpg", "abc", false)
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)
	second, err := s.EnqueueJob(ctx, "https://x/1.jpg", "abc", false)
	require.NoError(t, err)

	got, err := s.JobByImageID(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)

	_, err = s.JobByImageID(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestQueue_JobByID(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	first, err := s.EnqueueJob(ctx, "https://x/1.jpg", "abc", true)
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)
	_, err = s.EnqueueJob(ctx, "https://x/1.jpg", "abc", false)
	require.NoError(t, err)

	// Lookup by id resolves the exact job even when a newer one exists for
	// the same image.
	got, err := s.JobByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
	assert.True(t, got.IncludeConfidence)

	_, err = s.JobByID(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// --- Picture Tests ---

func TestPictures_RoundTripFlatShape(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	result := models.FlatResult([]models.SKURecord{
		{Brand: "Coca-Cola", Name: "Coke Zero", Count: 4, Price: 1.49, Confidence: models.ConfidenceHigh},
		{Name: "Empty Slot", Count: 0, EmptySpaceEstimate: models.IntPtr(100)},
	})
	require.NoError(t, s.WriteAnalysis(ctx, "img-flat", result))

	got, err := s.ReadAnalysis(ctx, "img-flat")
	require.NoError(t, err)
	assert.Equal(t, result, got)
}

func TestPictures_RoundTripStructuredShape(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	result := models.StructuredResult(models.ShelfReport{
		Metadata: models.ReportMetadata{
			TotalItems:           2,
			OutOfStockPositions:  1,
			EmptySpacePercentage: 25.0,
			ImageQuality:         "good",
			AnalysisStatus:       "complete",
		},
		Shelves: []models.Shelf{
			{Position: "top", Items: []models.SKURecord{{Brand: "Mars", Name: "Snickers", Count: 2, Price: 1.10}}},
			{Position: "bottom", Items: []models.SKURecord{{Name: "Gap", EmptySpaceEstimate: models.IntPtr(100)}}},
		},
	})
	require.NoError(t, s.WriteAnalysis(ctx, "img-structured", result))

	got, err := s.ReadAnalysis(ctx, "img-structured")
	require.NoError(t, err)
	assert.Equal(t, result, got)
}

func TestPictures_UpsertOverwrites(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	require.NoError(t, s.WriteAnalysis(ctx, "img-1", models.FlatResult(nil)))
	updated := models.FlatResult([]models.SKURecord{{Name: "New", Count: 1}})
	require.NoError(t, s.WriteAnalysis(ctx, "img-1", updated))

	got, err := s.ReadAnalysis(ctx, "img-1")
	require.NoError(t, err)
	assert.Equal(t, updated, got)

	_, err = s.ReadAnalysis(ctx, "never-written")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// --- API Key Tests ---

func TestAPIKey_CreateAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Microsecond)
	key := &models.APIKey{
		ID:        uuid.New(),
		Name:      "test-key",
		KeyHash:   "bcrypt-hash-here",
		KeyPrefix: "ss_abcde",
		Scopes:    []string{"analyze", "admin"},
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.CreateAPIKey(ctx, key)
	require.NoError(t, err)

	keys, err := s.GetAPIKeyByPrefix(ctx, "ss_abcde")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, key.ID, keys[0].ID)
	assert.Equal(t, "test-key", keys[0].Name)
	assert.Equal(t, []string{"analyze", "admin"}, keys[0].Scopes)
}

func TestAPIKey_RevokeHidesKey(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	now := time.Now().UTC()
	key := &models.APIKey{
		ID: uuid.New(), Name: "doomed", KeyHash: "h", KeyPrefix: "ss_doom1",
		Scopes: []string{"analyze"}, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.CreateAPIKey(ctx, key))
	require.NoError(t, s.RevokeAPIKey(ctx, key.ID))

	keys, err := s.GetAPIKeyByPrefix(ctx, "ss_doom1")
	require.NoError(t, err)
	assert.Empty(t, keys)

	err = s.RevokeAPIKey(ctx, key.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
