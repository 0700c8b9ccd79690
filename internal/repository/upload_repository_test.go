package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/casevault-api/internal/models"
)

func TestUploadRepositoryCreateAndGet(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewUploadRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO uploads")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	upload := &models.Upload{CaseID: "case-1", OriginalName: "passport.pdf", Mime: "application/pdf", SizeBytes: 10, Key: "abc/passport.pdf"}
	require.NoError(t, repo.Create(context.Background(), upload))
	require.NotEmpty(t, upload.ID)
	assert.Equal(t, models.UploadStatusPending, upload.Status)

	rows := sqlmock.NewRows(uploadRowColumns).
		AddRow(upload.ID, "case-1", "passport.pdf", "application/pdf", 10, "abc/passport.pdf", "pending", nil, nil, time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, case_id, original_name")).
		WithArgs(upload.ID).
		WillReturnRows(rows)

	found, err := repo.GetByID(context.Background(), upload.ID)
	require.NoError(t, err)
	assert.Equal(t, models.UploadStatusPending, found.Status)
	assert.Nil(t, found.StorageURL)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUploadRepositoryListPendingDefaultsLimit(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewUploadRepository(db)
	rows := sqlmock.NewRows(uploadRowColumns).
		AddRow("u-1", "case-1", "a.pdf", "application/pdf", 1, "f/a.pdf", "pending", nil, nil, time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("WHERE status = 'pending' AND NOT (id::text = ANY($1)) ORDER BY created_at ASC LIMIT $2")).
		WithArgs(sqlmock.AnyArg(), 10).
		WillReturnRows(rows)

	uploads, err := repo.ListPending(context.Background(), 0, nil)
	require.NoError(t, err)
	require.Len(t, uploads, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUploadRepositoryMarkVerdictGuarded(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewUploadRepository(db)
	now := time.Now().UTC()
	url := "clean/case-1/x/a.pdf"

	mock.ExpectExec(regexp.QuoteMeta("UPDATE uploads SET status = $2, storage_url = $3, verdict_at = $4 WHERE id = $1 AND status = 'pending'")).
		WithArgs("u-1", "clean", url, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.MarkVerdict(context.Background(), "u-1", models.UploadVerdict{Status: models.UploadStatusClean, StorageURL: &url, VerdictAt: now}))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE uploads SET status")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.MarkVerdict(context.Background(), "u-1", models.UploadVerdict{Status: models.UploadStatusRejected, VerdictAt: now})
	assert.ErrorIs(t, err, sql.ErrNoRows)

	err = repo.MarkVerdict(context.Background(), "u-1", models.UploadVerdict{Status: models.UploadStatusPending, VerdictAt: now})
	assert.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUploadRepositoryMaskAndDelete(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewUploadRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE uploads SET original_name = $2, key = $2")).
		WithArgs("u-1", models.RedactedValue).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Mask(context.Background(), "u-1"))

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM uploads WHERE id = $1")).
		WithArgs("u-2").
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.Delete(context.Background(), "u-2"), sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUploadRepositoryListCreatedBefore(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewUploadRepository(db)
	cutoff := time.Now().Add(-24 * time.Hour)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, original_name AS name FROM uploads WHERE created_at < $1")).
		WithArgs(cutoff).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow("u-1", "medical-record.pdf"))

	candidates, err := repo.ListCreatedBefore(context.Background(), cutoff)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "medical-record.pdf", candidates[0].Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUploadRepositoryListPendingKeysAndClean(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewUploadRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT key FROM uploads WHERE status = 'pending'")).
		WillReturnRows(sqlmock.NewRows([]string{"key"}).AddRow("f1/a.pdf").AddRow("f2/b.pdf"))
	keys, err := repo.ListPendingKeys(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"f1/a.pdf", "f2/b.pdf"}, keys)

	url := "clean/case-1/x/a.pdf"
	mock.ExpectQuery(regexp.QuoteMeta("WHERE status = 'clean' AND storage_url IS NOT NULL")).
		WithArgs(models.RedactedValue).
		WillReturnRows(sqlmock.NewRows(uploadRowColumns).
			AddRow("u-1", "case-1", "a.pdf", "application/pdf", 1, "f/a.pdf", "clean", url, time.Now(), time.Now()))
	clean, err := repo.ListClean(context.Background())
	require.NoError(t, err)
	require.Len(t, clean, 1)
	assert.Equal(t, url, *clean[0].StorageURL)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUploadRepositoryGetByKey(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewUploadRepository(db)
	rows := sqlmock.NewRows(uploadRowColumns).
		AddRow("u-4", "case-1", "a.pdf", "application/pdf", 1, "f/a.pdf", "rejected", nil, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM uploads WHERE key = $1")).
		WithArgs("f/a.pdf").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("FROM uploads WHERE key = $1")).
		WithArgs("f/missing.pdf").
		WillReturnError(sql.ErrNoRows)

	found, err := repo.GetByKey(context.Background(), "f/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, models.UploadStatusRejected, found.Status)

	_, err = repo.GetByKey(context.Background(), "f/missing.pdf")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}
