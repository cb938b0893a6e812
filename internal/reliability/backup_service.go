// Package reliability keeps the database healthy and backed up offsite.
package reliability

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/brokerwatch/internal/database"
)

const (
	backupPrefix     = "brokerwatch-backup-"
	backupSuffix     = ".db.gz"
	backupTimeLayout = "2006-01-02-150405"
)

// BackupInfo represents a backup in the object store
type BackupInfo struct {
	Key       string    `json:"key"`
	Timestamp time.Time `json:"timestamp"`
	SizeBytes int64     `json:"size_bytes"`
	AgeHours  int64     `json:"age_hours"`
}

// BackupService snapshots the database and ships it to an object store
type BackupService struct {
	db      *database.DB
	store   ObjectStore
	dataDir string
	prefix  string
	keep    int
	now     func() time.Time
	log     zerolog.Logger
}

// NewBackupService creates a backup service. keep is how many backups
// Prune retains; prefix is an optional key folder such as "prod/".
func NewBackupService(db *database.DB, store ObjectStore, dataDir, prefix string, keep int, log zerolog.Logger) *BackupService {
	if keep < 1 {
		keep = 1
	}
	return &BackupService{
		db:      db,
		store:   store,
		dataDir: dataDir,
		prefix:  prefix,
		keep:    keep,
		now:     time.Now,
		log:     log.With().Str("service", "backup").Logger(),
	}
}

// KeyFor returns the object key for a backup taken at t
func (s *BackupService) KeyFor(t time.Time) string {
	return s.prefix + backupPrefix + t.UTC().Format(backupTimeLayout) + backupSuffix
}

// CreateAndUpload checkpoints the WAL, copies the database with VACUUM INTO,
// gzips the copy and uploads it. It returns the uploaded key.
func (s *BackupService) CreateAndUpload(ctx context.Context) (string, error) {
	start := s.now()
	s.log.Info().Msg("Starting backup")

	if err := s.db.WALCheckpoint("TRUNCATE"); err != nil {
		// a busy WAL still backs up consistently through VACUUM INTO
		s.log.Warn().Err(err).Msg("WAL checkpoint before backup failed")
	}

	stagingDir := filepath.Join(s.dataDir, "backup-staging")
	if err := os.MkdirAll(stagingDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	dbCopy := filepath.Join(stagingDir, "brokerwatch.db")
	if err := s.db.BackupTo(ctx, dbCopy); err != nil {
		return "", err
	}

	archive := dbCopy + ".gz"
	if err := gzipFile(dbCopy, archive); err != nil {
		return "", fmt.Errorf("failed to compress backup: %w", err)
	}

	f, err := os.Open(archive)
	if err != nil {
		return "", fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	key := s.KeyFor(start)
	if err := s.store.Upload(ctx, key, f); err != nil {
		return "", err
	}

	var size int64
	if info, err := f.Stat(); err == nil {
		size = info.Size()
	}
	s.log.Info().
		Str("key", key).
		Int64("size_bytes", size).
		Dur("duration", s.now().Sub(start)).
		Msg("Backup uploaded")
	return key, nil
}

// ListBackups lists stored backups, newest first. Objects that do not look
// like backups are ignored.
func (s *BackupService) ListBackups(ctx context.Context) ([]BackupInfo, error) {
	objects, err := s.store.List(ctx, s.prefix+backupPrefix)
	if err != nil {
		return nil, err
	}

	now := s.now()
	backups := make([]BackupInfo, 0, len(objects))
	for _, obj := range objects {
		name := strings.TrimPrefix(obj.Key, s.prefix)
		if !strings.HasPrefix(name, backupPrefix) || !strings.HasSuffix(name, backupSuffix) {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(name, backupPrefix), backupSuffix)
		ts, err := time.Parse(backupTimeLayout, stamp)
		if err != nil {
			s.log.Warn().Str("key", obj.Key).Msg("Failed to parse timestamp from backup key")
			continue
		}
		backups = append(backups, BackupInfo{
			Key:       obj.Key,
			Timestamp: ts,
			SizeBytes: obj.Size,
			AgeHours:  int64(now.Sub(ts).Hours()),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})
	return backups, nil
}

// Prune deletes all but the newest keep backups and returns how many were
// deleted. A failed delete is logged and skipped.
func (s *BackupService) Prune(ctx context.Context) (int, error) {
	backups, err := s.ListBackups(ctx)
	if err != nil {
		return 0, err
	}
	if len(backups) <= s.keep {
		return 0, nil
	}

	deleted := 0
	for _, b := range backups[s.keep:] {
		if err := s.store.Delete(ctx, b.Key); err != nil {
			s.log.Error().Err(err).Str("key", b.Key).Msg("Failed to delete old backup")
			continue
		}
		deleted++
	}
	s.log.Info().Int("deleted", deleted).Int("kept", s.keep).Msg("Backup rotation completed")
	return deleted, nil
}

// BackupJob runs a backup followed by rotation on a schedule
type BackupJob struct {
	service *BackupService
	timeout time.Duration
}

// NewBackupJob wraps service as a scheduled job
func NewBackupJob(service *BackupService) *BackupJob {
	return &BackupJob{service: service, timeout: 10 * time.Minute}
}

// Name returns the job name for scheduler
func (j *BackupJob) Name() string { return "backup" }

// Run executes the backup job
func (j *BackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	if _, err := j.service.CreateAndUpload(ctx); err != nil {
		return err
	}
	_, err := j.service.Prune(ctx)
	return err
}

func gzipFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	if _, err := io.Copy(gz, in); err != nil {
		return err
	}
	if err := gz.Close(); err != nil {
		return err
	}
	return out.Sync()
}
