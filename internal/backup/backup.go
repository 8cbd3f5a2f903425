// Package backup produces verified SQLite snapshots for atlasctl, optionally
// compressed, encrypted and copied to S3-compatible storage.
package backup

import (
	"bytes"
	"compress/gzip"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/atlasbahamas/atlas/internal/database"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sethvargo/go-retry"
)

const (
	filePrefix = "atlas_"
	stampFmt   = "20060102_150405"
	rawExt     = ".sqlite"
	gzipExt    = ".gz"
	encExt     = ".enc"
)

var (
	// ErrNoBackups is returned when the backup directory holds no archives.
	ErrNoBackups = errors.New("no backups found")
	// ErrPassphraseRequired is returned when an encrypted archive is opened
	// without BACKUP_PASSPHRASE.
	ErrPassphraseRequired = errors.New("backup is encrypted: passphrase required")
)

// s3Client is an interface for testability.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Config holds S3-compatible storage configuration.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
	Prefix    string
}

func (c S3Config) enabled() bool {
	return c.Bucket != "" && c.AccessKey != "" && c.SecretKey != ""
}

// Options controls where archives go and how long they are kept.
type Options struct {
	Dir        string
	Passphrase string
	Gzip       bool
	KeepCount  int
	KeepDays   int
	S3         S3Config
}

// Archive describes one backup file on disk.
type Archive struct {
	Name      string
	Path      string
	Size      int64
	ModTime   time.Time
	Gzip      bool
	Encrypted bool
	Uploaded  bool
}

// Manager creates, lists, prunes and verifies backups.
type Manager struct {
	db     *sql.DB
	opts   Options
	client s3Client
	logger *slog.Logger
	now    func() time.Time
	// base delay between upload attempts
	retryBase time.Duration
}

// NewManager returns a Manager snapshotting db. db may be nil for commands
// that only read existing archives.
func NewManager(db *sql.DB, opts Options, logger *slog.Logger) *Manager {
	if opts.KeepCount < 1 {
		opts.KeepCount = 14
	}
	if opts.KeepDays < 1 {
		opts.KeepDays = 30
	}
	m := &Manager{db: db, opts: opts, logger: logger, now: time.Now, retryBase: 500 * time.Millisecond}
	if opts.S3.enabled() {
		m.client = newS3Client(opts.S3)
	}
	return m
}

func newS3Client(cfg S3Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

// Create snapshots the live database with VACUUM INTO, verifies the copy,
// then writes the (compressed, encrypted) archive and applies retention.
func (m *Manager) Create(ctx context.Context) (*Archive, error) {
	if m.db == nil {
		return nil, errors.New("create backup: no database")
	}
	if err := os.MkdirAll(m.opts.Dir, 0o700); err != nil {
		return nil, fmt.Errorf("create backup dir: %w", err)
	}

	stamp := m.now().UTC().Format(stampFmt)
	raw := filepath.Join(m.opts.Dir, filePrefix+stamp+"_tmp"+rawExt)
	os.Remove(raw)
	defer os.Remove(raw)

	if _, err := m.db.ExecContext(ctx, "VACUUM INTO ?", raw); err != nil {
		return nil, fmt.Errorf("snapshot database: %w", err)
	}
	if err := verifySnapshot(raw, false); err != nil {
		return nil, fmt.Errorf("verify snapshot: %w", err)
	}

	data, err := os.ReadFile(raw)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	name := filePrefix + stamp + rawExt
	if m.opts.Gzip {
		if data, err = compress(data); err != nil {
			return nil, err
		}
		name += gzipExt
	}
	if m.opts.Passphrase != "" {
		if data, err = Encrypt(data, m.opts.Passphrase); err != nil {
			return nil, err
		}
		name += encExt
	}

	out := filepath.Join(m.opts.Dir, name)
	if err := writeAtomic(out, data); err != nil {
		return nil, err
	}

	archive := &Archive{
		Name:      name,
		Path:      out,
		Size:      int64(len(data)),
		ModTime:   m.now(),
		Gzip:      m.opts.Gzip,
		Encrypted: m.opts.Passphrase != "",
	}

	if m.client != nil {
		if err := m.upload(ctx, name, data); err != nil {
			// The local copy is still good; report the upload failure.
			m.logger.Error("backup upload failed", "name", name, "error", err)
		} else {
			archive.Uploaded = true
		}
	}

	if _, err := m.Prune(ctx); err != nil {
		m.logger.Warn("backup prune failed", "error", err)
	}

	m.logger.Info("backup created", "name", name, "bytes", archive.Size, "uploaded", archive.Uploaded)
	return archive, nil
}

func (m *Manager) objectKey(name string) string {
	if p := strings.Trim(m.opts.S3.Prefix, "/"); p != "" {
		return p + "/" + name
	}
	return name
}

func (m *Manager) upload(ctx context.Context, name string, data []byte) error {
	backoff := retry.WithMaxRetries(3, retry.NewExponential(m.retryBase))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		_, err := m.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(m.opts.S3.Bucket),
			Key:           aws.String(m.objectKey(name)),
			Body:          bytes.NewReader(data),
			ContentLength: aws.Int64(int64(len(data))),
		})
		if err != nil {
			return retry.RetryableError(fmt.Errorf("upload to s3: %w", err))
		}
		return nil
	})
}

// List returns archives in the backup directory, newest first.
func (m *Manager) List() ([]Archive, error) {
	entries, err := os.ReadDir(m.opts.Dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read backup dir: %w", err)
	}

	var out []Archive
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !isArchiveName(name) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, Archive{
			Name:      name,
			Path:      filepath.Join(m.opts.Dir, name),
			Size:      info.Size(),
			ModTime:   info.ModTime(),
			Gzip:      strings.Contains(name, rawExt+gzipExt),
			Encrypted: strings.HasSuffix(name, encExt),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ModTime.Equal(out[j].ModTime) {
			return out[i].ModTime.After(out[j].ModTime)
		}
		return out[i].Name > out[j].Name
	})
	return out, nil
}

// Latest returns the newest archive or ErrNoBackups.
func (m *Manager) Latest() (*Archive, error) {
	list, err := m.List()
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrNoBackups
	}
	return &list[0], nil
}

// Prune deletes archives beyond KeepCount or older than KeepDays, locally and
// in the bucket. It returns the removed names.
func (m *Manager) Prune(ctx context.Context) ([]string, error) {
	list, err := m.List()
	if err != nil {
		return nil, err
	}

	maxAge := time.Duration(m.opts.KeepDays) * 24 * time.Hour
	now := m.now()
	var removed []string
	for i, a := range list {
		if i < m.opts.KeepCount && now.Sub(a.ModTime) <= maxAge {
			continue
		}
		if err := os.Remove(a.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return removed, fmt.Errorf("remove %s: %w", a.Name, err)
		}
		removed = append(removed, a.Name)

		if m.client != nil {
			if _, err := m.client.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(m.opts.S3.Bucket),
				Key:    aws.String(m.objectKey(a.Name)),
			}); err != nil {
				m.logger.Warn("failed to delete remote backup", "name", a.Name, "error", err)
			}
		}
	}
	return removed, nil
}

// RestoreTest unpacks path into a scratch directory and checks that it is a
// sound Atlas database.
func (m *Manager) RestoreTest(path string) error {
	dir, err := os.MkdirTemp("", "atlas_restore_test_")
	if err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	dst := filepath.Join(dir, "restore_test"+rawExt)
	if err := m.Extract(path, dst); err != nil {
		return err
	}
	return verifySnapshot(dst, true)
}

// Restore unpacks and verifies path, then replaces target with it. The server
// must be stopped first.
func (m *Manager) Restore(path, target string) error {
	dir, err := os.MkdirTemp("", "atlas_restore_")
	if err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	dst := filepath.Join(dir, "restore"+rawExt)
	if err := m.Extract(path, dst); err != nil {
		return err
	}
	if err := verifySnapshot(dst, true); err != nil {
		return err
	}

	data, err := os.ReadFile(dst)
	if err != nil {
		return fmt.Errorf("read restored db: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o700); err != nil {
		return fmt.Errorf("create target dir: %w", err)
	}
	if err := writeAtomic(target, data); err != nil {
		return err
	}
	os.Remove(target + "-wal")
	os.Remove(target + "-shm")
	return nil
}

// Extract writes the plain SQLite file held in archive path to dst.
func (m *Manager) Extract(path, dst string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read backup: %w", err)
	}

	if IsEncrypted(data) {
		if m.opts.Passphrase == "" {
			return ErrPassphraseRequired
		}
		if data, err = Decrypt(data, m.opts.Passphrase); err != nil {
			return err
		}
	}
	if isGzip(data) {
		if data, err = decompress(data); err != nil {
			return err
		}
	}

	if err := os.WriteFile(dst, data, 0o600); err != nil {
		return fmt.Errorf("write extracted db: %w", err)
	}
	return nil
}

func verifySnapshot(path string, requireTables bool) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open snapshot: %w", err)
	}
	defer db.Close()

	if err := database.IntegrityCheck(db); err != nil {
		return err
	}
	if !requireTables {
		return nil
	}
	missing, err := database.MissingTables(db)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required tables: %s", strings.Join(missing, ", "))
	}
	return nil
}

func isArchiveName(name string) bool {
	if !strings.HasPrefix(name, filePrefix) || strings.Contains(name, "_tmp") {
		return false
	}
	for _, suffix := range []string{rawExt, rawExt + gzipExt, rawExt + encExt, rawExt + gzipExt + encExt} {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

func isGzip(data []byte) bool {
	return len(data) > 2 && data[0] == 0x1f && data[1] == 0x8b
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gunzip: %w", err)
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("gunzip: %w", err)
	}
	return out, nil
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".part"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	return nil
}
