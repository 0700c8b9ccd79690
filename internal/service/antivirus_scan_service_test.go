package service

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/casevault-api/internal/models"
	"github.com/noah-isme/casevault-api/pkg/storage"
)

type scanRepoStub struct {
	mu        sync.Mutex
	uploads   map[string]*models.Upload
	verdicts  map[string]models.UploadVerdict
	listErr   error
	markErr   error
	steal     map[string]bool
	listCalls int
}

func newScanRepoStub(uploads ...*models.Upload) *scanRepoStub {
	stub := &scanRepoStub{uploads: make(map[string]*models.Upload), verdicts: make(map[string]models.UploadVerdict), steal: make(map[string]bool)}
	for _, u := range uploads {
		stub.uploads[u.ID] = u
	}
	return stub
}

func (r *scanRepoStub) ListPending(ctx context.Context, limit int, exclude []string) ([]models.Upload, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listCalls++
	if r.listErr != nil {
		return nil, r.listErr
	}
	skip := make(map[string]struct{}, len(exclude))
	for _, id := range exclude {
		skip[id] = struct{}{}
	}
	result := make([]models.Upload, 0, len(r.uploads))
	for _, u := range r.uploads {
		if _, excluded := skip[u.ID]; excluded {
			continue
		}
		if u.Status == models.UploadStatusPending {
			result = append(result, *u)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *scanRepoStub) MarkVerdict(ctx context.Context, id string, verdict models.UploadVerdict) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.markErr != nil {
		return r.markErr
	}
	u, ok := r.uploads[id]
	if !ok || u.Status != models.UploadStatusPending || r.steal[id] {
		return sql.ErrNoRows
	}
	u.Status = verdict.Status
	u.StorageURL = verdict.StorageURL
	at := verdict.VerdictAt
	u.VerdictAt = &at
	r.verdicts[id] = verdict
	return nil
}

type auditStub struct {
	mu      sync.Mutex
	entries []*models.AuditLog
}

func (a *auditStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, log)
	return nil
}

func (a *auditStub) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, e.Action)
	}
	return out
}

type failingScanner struct{}

func (failingScanner) Classify(ctx context.Context, content []byte) (ScanResult, error) {
	return ScanResult{}, errors.New("engine unavailable")
}

type scanFixture struct {
	base       string
	quarantine *storage.LocalStorage
	clean      *storage.LocalStorage
	audit      *auditStub
}

func newScanFixture(t *testing.T) *scanFixture {
	t.Helper()
	base := t.TempDir()
	quarantine, err := storage.NewLocalStorage(filepath.Join(base, "quarantine"))
	require.NoError(t, err)
	clean, err := storage.NewLocalStorage(filepath.Join(base, "clean"))
	require.NoError(t, err)
	return &scanFixture{base: base, quarantine: quarantine, clean: clean, audit: &auditStub{}}
}

func (f *scanFixture) service(repo scanUploadRepository, scanner Scanner) *AntivirusScanService {
	return NewAntivirusScanService(repo, f.audit, scanner, f.quarantine, f.clean, NewMetricsService(), nil,
		AntivirusScanConfig{Enabled: true, BatchSize: 2, CleanPrefix: "clean"})
}

func (f *scanFixture) awaitingService(repo scanUploadRepository, window time.Duration) *AntivirusScanService {
	return NewAntivirusScanService(repo, f.audit, nil, f.quarantine, f.clean, NewMetricsService(), nil,
		AntivirusScanConfig{Enabled: true, BatchSize: 2, CleanPrefix: "clean", AwaitContentFor: window})
}

func (f *scanFixture) put(t *testing.T, key, content string) {
	t.Helper()
	_, err := f.quarantine.SaveStream(key, strings.NewReader(content), 0)
	require.NoError(t, err)
}

func pendingUpload(id, key string) *models.Upload {
	return &models.Upload{ID: id, CaseID: "case-1", OriginalName: filepath.Base(key), Mime: "text/plain", SizeBytes: 1, Key: key, Status: models.UploadStatusPending, CreatedAt: time.Now()}
}

func TestAntivirusScanClean(t *testing.T) {
	f := newScanFixture(t)
	f.put(t, "tok1/notes.txt", "ordinary text content")
	upload := pendingUpload("u-1", "tok1/notes.txt")
	repo := newScanRepoStub(upload)

	summary, err := f.service(repo, nil).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Clean)

	assert.Equal(t, models.UploadStatusClean, upload.Status)
	require.NotNil(t, upload.VerdictAt)
	require.NotNil(t, upload.StorageURL)
	assert.NotEmpty(t, *upload.StorageURL)
	assert.True(t, strings.HasPrefix(*upload.StorageURL, "clean/case-1/"))

	_, err = os.Stat(filepath.Join(f.base, "quarantine", "tok1", "notes.txt"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(f.base, "quarantine", "tok1"))
	assert.True(t, os.IsNotExist(err))

	data, err := os.ReadFile(filepath.Join(f.base, filepath.FromSlash(*upload.StorageURL)))
	require.NoError(t, err)
	assert.Equal(t, "ordinary text content", string(data))
	assert.Equal(t, []string{models.AuditActionScanClean}, f.audit.actions())
}

func TestAntivirusScanInfected(t *testing.T) {
	f := newScanFixture(t)
	f.put(t, "tok2/virus.txt", eicarSignature)
	upload := pendingUpload("u-2", "tok2/virus.txt")
	repo := newScanRepoStub(upload)

	summary, err := f.service(repo, nil).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Infected)

	assert.Equal(t, models.UploadStatusInfected, upload.Status)
	assert.NotNil(t, upload.VerdictAt)
	assert.Nil(t, upload.StorageURL)

	_, err = os.Stat(filepath.Join(f.base, "quarantine", "tok2"))
	assert.True(t, os.IsNotExist(err))

	entries, err := os.ReadDir(filepath.Join(f.base, "clean"))
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Equal(t, []string{models.AuditActionScanInfected}, f.audit.actions())
}

func TestAntivirusScanMissingFile(t *testing.T) {
	f := newScanFixture(t)
	upload := pendingUpload("u-3", "tok3/gone.pdf")
	repo := newScanRepoStub(upload)

	summary, err := f.service(repo, nil).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Rejected)
	assert.Equal(t, models.UploadStatusRejected, upload.Status)
	assert.NotNil(t, upload.VerdictAt)
	assert.Nil(t, upload.StorageURL)
}

func TestAntivirusScanDrainsAllBatches(t *testing.T) {
	f := newScanFixture(t)
	uploads := make([]*models.Upload, 0, 5)
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		key := "tok-" + id + "/file.txt"
		f.put(t, key, "content "+id)
		uploads = append(uploads, pendingUpload(id, key))
	}
	repo := newScanRepoStub(uploads...)

	summary, err := f.service(repo, nil).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, summary.Clean)
	for _, u := range uploads {
		assert.Equal(t, models.UploadStatusClean, u.Status)
	}
}

func TestAntivirusScanScannerFailureLeavesPending(t *testing.T) {
	f := newScanFixture(t)
	f.put(t, "tok4/a.txt", "a")
	f.put(t, "tok5/b.txt", "b")
	f.put(t, "tok6/c.txt", "c")
	repo := newScanRepoStub(pendingUpload("u-4", "tok4/a.txt"), pendingUpload("u-5", "tok5/b.txt"), pendingUpload("u-6", "tok6/c.txt"))

	summary, err := f.service(repo, failingScanner{}).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Failed)
	for _, u := range repo.uploads {
		assert.Equal(t, models.UploadStatusPending, u.Status)
		assert.Nil(t, u.VerdictAt)
	}
	exists, err := f.quarantine.Exists("tok4/a.txt")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestAntivirusScanLostRaceKeepsQuarantineAndDropsCleanCopy(t *testing.T) {
	f := newScanFixture(t)
	f.put(t, "tok7/a.txt", "a")
	repo := newScanRepoStub(pendingUpload("u-7", "tok7/a.txt"))
	repo.steal["u-7"] = true

	summary, err := f.service(repo, nil).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped)

	entries, err := os.ReadDir(filepath.Join(f.base, "clean"))
	require.NoError(t, err)
	for _, e := range entries {
		sub, err := os.ReadDir(filepath.Join(f.base, "clean", e.Name()))
		require.NoError(t, err)
		assert.Empty(t, sub)
	}
	exists, err := f.quarantine.Exists("tok7/a.txt")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestAntivirusScanVerdictWriteFailureKeepsQuarantineCopy(t *testing.T) {
	f := newScanFixture(t)
	f.put(t, "tok8/a.txt", "a")
	repo := newScanRepoStub(pendingUpload("u-8", "tok8/a.txt"))
	repo.markErr = errors.New("db down")

	summary, err := f.service(repo, nil).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)

	exists, err := f.quarantine.Exists("tok8/a.txt")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestAntivirusScanInfectedVerdictWriteFailureKeepsFile(t *testing.T) {
	f := newScanFixture(t)
	f.put(t, "tok12/virus.txt", eicarSignature)
	upload := pendingUpload("u-12", "tok12/virus.txt")
	repo := newScanRepoStub(upload)
	repo.markErr = errors.New("db down")
	svc := f.service(repo, nil)

	summary, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, models.UploadStatusPending, upload.Status)
	exists, err := f.quarantine.Exists("tok12/virus.txt")
	require.NoError(t, err)
	assert.True(t, exists)

	repo.markErr = nil
	summary, err = svc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Infected)
	assert.Equal(t, models.UploadStatusInfected, upload.Status)
	_, err = os.Stat(filepath.Join(f.base, "quarantine", "tok12"))
	assert.True(t, os.IsNotExist(err))
	assert.Equal(t, []string{models.AuditActionScanInfected}, f.audit.actions())
}

func TestAntivirusScanAwaitsContentWithinWindow(t *testing.T) {
	f := newScanFixture(t)
	fresh := pendingUpload("u-13", "tok13/late.txt")
	stale := pendingUpload("u-14", "tok14/never.txt")
	stale.CreatedAt = time.Now().Add(-time.Hour)
	repo := newScanRepoStub(fresh, stale)
	svc := f.awaitingService(repo, 20*time.Minute)

	summary, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Awaiting)
	assert.Equal(t, 1, summary.Scanned)
	assert.Equal(t, 1, summary.Rejected)
	assert.Equal(t, models.UploadStatusPending, fresh.Status)
	assert.Nil(t, fresh.VerdictAt)
	assert.Equal(t, models.UploadStatusRejected, stale.Status)

	f.put(t, "tok13/late.txt", "arrived after the first pass")
	summary, err = svc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Clean)
	assert.Equal(t, 0, summary.Awaiting)
	assert.Equal(t, models.UploadStatusClean, fresh.Status)
}

func TestAntivirusScanRejectsNonRegularEntry(t *testing.T) {
	f := newScanFixture(t)
	require.NoError(t, os.MkdirAll(filepath.Join(f.base, "quarantine", "tok15", "folder.txt"), 0o750))
	upload := pendingUpload("u-15", "tok15/folder.txt")
	repo := newScanRepoStub(upload)

	summary, err := f.awaitingService(repo, 20*time.Minute).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Rejected)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, models.UploadStatusRejected, upload.Status)
	assert.Equal(t, []string{models.AuditActionScanRejected}, f.audit.actions())
}

func TestAntivirusScanHonorsCancellation(t *testing.T) {
	f := newScanFixture(t)
	f.put(t, "tok9/a.txt", "a")
	repo := newScanRepoStub(pendingUpload("u-9", "tok9/a.txt"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	summary, err := f.service(repo, nil).RunOnce(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, summary.Scanned)
	assert.Equal(t, models.UploadStatusPending, repo.uploads["u-9"].Status)
}

func TestAntivirusScanDisabled(t *testing.T) {
	f := newScanFixture(t)
	repo := newScanRepoStub(pendingUpload("u-10", "x/y.txt"))
	svc := NewAntivirusScanService(repo, nil, nil, f.quarantine, f.clean, nil, nil, AntivirusScanConfig{Enabled: false})

	summary, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Scanned)
	assert.Equal(t, 0, repo.listCalls)
}

func TestAntivirusScanIsIdempotent(t *testing.T) {
	f := newScanFixture(t)
	f.put(t, "tok11/a.txt", "a")
	upload := pendingUpload("u-11", "tok11/a.txt")
	repo := newScanRepoStub(upload)
	svc := f.service(repo, nil)

	_, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	firstVerdict := *upload.VerdictAt

	summary, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Scanned)
	assert.Equal(t, firstVerdict, *upload.VerdictAt)
}

func TestSignatureScanner(t *testing.T) {
	scanner := NewSignatureScanner(map[string]string{"Custom": "BAD-BYTES"})

	result, err := scanner.Classify(context.Background(), []byte("hello"))
	require.NoError(t, err)
	assert.False(t, result.Infected)
	assert.Equal(t, "clean", result.Verdict())

	result, err = scanner.Classify(context.Background(), []byte("prefix "+eicarSignature+" suffix"))
	require.NoError(t, err)
	assert.True(t, result.Infected)
	assert.Equal(t, "EICAR-Test-File", result.Signature)

	result, err = scanner.Classify(context.Background(), []byte("xxBAD-BYTESxx"))
	require.NoError(t, err)
	assert.True(t, result.Infected)
	assert.Equal(t, "Custom", result.Signature)
}
