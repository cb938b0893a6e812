package reliability

import (
	"bytes"
	"compress/gzip"
	"context"
	"database/sql"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	testhelpers "github.com/aristath/brokerwatch/internal/testing"
)

type memoryStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	uploadErr error
	deleteErr map[string]error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: map[string][]byte{}, deleteErr: map[string]error{}}
}

func (m *memoryStore) Upload(_ context.Context, key string, body io.Reader) error {
	if m.uploadErr != nil {
		return m.uploadErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func (m *memoryStore) List(_ context.Context, prefix string) ([]ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ObjectInfo
	for k, v := range m.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, ObjectInfo{Key: k, Size: int64(len(v))})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *memoryStore) Delete(_ context.Context, key string) error {
	if err := m.deleteErr[key]; err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memoryStore) keys() []string {
	objs, _ := m.List(context.Background(), "")
	keys := make([]string, 0, len(objs))
	for _, o := range objs {
		keys = append(keys, o.Key)
	}
	return keys
}

func newBackupService(t *testing.T, store ObjectStore, keep int) *BackupService {
	db := testhelpers.NewTestDB(t, "brokerwatch")
	a := testhelpers.NewAccountFixture("a", "KIS")
	testhelpers.InsertAccount(t, db.Conn(), a)
	return NewBackupService(db, store, t.TempDir(), "prod/", keep, zerolog.Nop())
}

func TestCreateAndUpload(t *testing.T) {
	store := newMemoryStore()
	svc := newBackupService(t, store, 3)
	svc.now = func() time.Time { return time.Date(2026, 3, 3, 18, 30, 5, 0, time.UTC) }

	key, err := svc.CreateAndUpload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "prod/brokerwatch-backup-2026-03-03-183005.db.gz", key)

	// the upload is a gzipped, openable database holding the account
	gz, err := gzip.NewReader(bytes.NewReader(store.objects[key]))
	require.NoError(t, err)
	raw, err := io.ReadAll(gz)
	require.NoError(t, err)

	restored := filepath.Join(t.TempDir(), "restored.db")
	require.NoError(t, os.WriteFile(restored, raw, 0644))
	conn, err := sql.Open("sqlite3", restored)
	require.NoError(t, err)
	defer conn.Close()
	var n int
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM accounts`).Scan(&n))
	assert.Equal(t, 1, n)

	_, err = os.Stat(filepath.Join(svc.dataDir, "backup-staging"))
	assert.True(t, os.IsNotExist(err), "staging directory is removed")
}

func TestCreateAndUpload_UploadFailure(t *testing.T) {
	store := newMemoryStore()
	store.uploadErr = errors.New("403 forbidden")
	svc := newBackupService(t, store, 3)

	_, err := svc.CreateAndUpload(context.Background())
	assert.ErrorContains(t, err, "403")
}

func TestListBackupsAndPrune(t *testing.T) {
	store := newMemoryStore()
	svc := newBackupService(t, store, 2)
	svc.now = func() time.Time { return time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC) }

	for _, day := range []int{1, 2, 3, 4} {
		store.objects[svc.KeyFor(time.Date(2026, 3, day, 3, 0, 0, 0, time.UTC))] = []byte("x")
	}
	store.objects["prod/brokerwatch-backup-garbage.db.gz"] = []byte("x")
	store.objects["prod/notes.txt"] = []byte("x")

	backups, err := svc.ListBackups(context.Background())
	require.NoError(t, err)
	require.Len(t, backups, 4)
	assert.Equal(t, 4, backups[0].Timestamp.Day(), "newest first")
	assert.Equal(t, int64(6*24-3), backups[0].AgeHours)

	deleted, err := svc.Prune(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)
	assert.ElementsMatch(t, []string{
		"prod/brokerwatch-backup-2026-03-03-030000.db.gz",
		"prod/brokerwatch-backup-2026-03-04-030000.db.gz",
		"prod/brokerwatch-backup-garbage.db.gz",
		"prod/notes.txt",
	}, store.keys())

	deleted, err = svc.Prune(context.Background())
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestPrune_SkipsFailedDeletes(t *testing.T) {
	store := newMemoryStore()
	svc := newBackupService(t, store, 1)
	oldest := svc.KeyFor(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	store.objects[oldest] = []byte("x")
	store.objects[svc.KeyFor(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC))] = []byte("x")
	store.objects[svc.KeyFor(time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC))] = []byte("x")
	store.deleteErr[oldest] = errors.New("timeout")

	deleted, err := svc.Prune(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
	assert.Len(t, store.keys(), 2)
}

func TestBackupJob(t *testing.T) {
	store := newMemoryStore()
	svc := newBackupService(t, store, 5)
	job := NewBackupJob(svc)

	assert.Equal(t, "backup", job.Name())
	require.NoError(t, job.Run())
	assert.Len(t, store.keys(), 1)
}

func TestNewS3Store_RequiresBucket(t *testing.T) {
	_, err := NewS3Store(context.Background(), S3Config{}, zerolog.Nop())
	assert.Error(t, err)

	store, err := NewS3Store(context.Background(), S3Config{
		Bucket:          "backups",
		Endpoint:        "http://127.0.0.1:9000",
		AccessKeyID:     "id",
		SecretAccessKey: "secret",
	}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "backups", store.bucket)
}

func TestMaintenanceJob(t *testing.T) {
	db := testhelpers.NewTestDB(t, "brokerwatch")
	job := NewMaintenanceJob(db, t.TempDir(), zerolog.Nop())
	assert.Equal(t, "maintenance", job.Name())

	job.diskUsage = func(string) (*disk.UsageStat, error) {
		return &disk.UsageStat{Free: 10 * 1024 * 1024 * 1024, UsedPercent: 40}, nil
	}
	assert.NoError(t, job.Run())

	job.diskUsage = func(string) (*disk.UsageStat, error) {
		return &disk.UsageStat{Free: 100 * 1024 * 1024}, nil
	}
	assert.ErrorContains(t, job.Run(), "100 MB free")

	job.diskUsage = func(string) (*disk.UsageStat, error) { return nil, errors.New("no statfs") }
	assert.NoError(t, job.Run(), "unknown disk usage is not fatal")
}
