package store

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/wonny/gridflow/internal/ingest"
	"github.com/wonny/gridflow/internal/validate"
	"github.com/wonny/gridflow/pkg/logger"
)

// ErrNoVersions is returned when a partition has no committed version.
var ErrNoVersions = errors.New("partition has no versions")

// ErrChecksumMismatch is returned when a chunk fails manifest verification.
var ErrChecksumMismatch = errors.New("chunk checksum mismatch")

var versionDirPattern = regexp.MustCompile(`^v(\d+)$`)

// Store is the partitioned batch store. Concurrent writers to different
// partition keys proceed independently; writers to the same key serialize
// on a per-key mutex. Synchronization is internal; callers never lock.
type Store struct {
	root   string
	logger *logger.Logger

	mu       sync.Mutex
	keyLocks map[string]*sync.Mutex
	versions map[string]int // highest committed version per key
}

// Open opens (creating if needed) a store rooted at dir.
func Open(root string, log *logger.Logger) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create store root: %w", err)
	}

	return &Store{
		root:     root,
		logger:   log.WithField("module", "store"),
		keyLocks: make(map[string]*sync.Mutex),
		versions: make(map[string]int),
	}, nil
}

// keyLock returns the mutex serializing writes to one partition key.
func (s *Store) keyLock(key Key) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.keyLocks[key.String()]
	if !ok {
		lock = &sync.Mutex{}
		s.keyLocks[key.String()] = lock
	}
	return lock
}

// latestVersion returns the highest committed version for a key, scanning
// the partition directory on first use. Returns 0 when none exist.
func (s *Store) latestVersion(key Key) (int, error) {
	s.mu.Lock()
	if v, ok := s.versions[key.String()]; ok {
		s.mu.Unlock()
		return v, nil
	}
	s.mu.Unlock()

	highest := 0
	entries, err := os.ReadDir(filepath.Join(s.root, key.Path()))
	if err != nil {
		if !os.IsNotExist(err) {
			return 0, fmt.Errorf("scan partition %s: %w", key, err)
		}
	} else {
		for _, entry := range entries {
			m := versionDirPattern.FindStringSubmatch(entry.Name())
			if m == nil || !entry.IsDir() {
				continue
			}
			if v, err := strconv.Atoi(m[1]); err == nil && v > highest {
				highest = v
			}
		}
	}

	s.mu.Lock()
	s.versions[key.String()] = highest
	s.mu.Unlock()
	return highest, nil
}

// Write commits a validated batch and its report as a new partition
// version. The chunk, manifest, and report are staged in a temporary
// directory and renamed into place; the rename is the commit point, so a
// crash mid-write never leaves a half-written version visible.
func (s *Store) Write(ctx context.Context, key Key, batch *ingest.Batch, report *validate.QualityReport) (*Manifest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lock := s.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	latest, err := s.latestVersion(key)
	if err != nil {
		return nil, err
	}
	version := latest + 1

	compressed, err := encodeChunk(batch)
	if err != nil {
		return nil, fmt.Errorf("encode chunk for %s: %w", key, err)
	}

	manifest := &Manifest{
		Version:      version,
		Rows:         batch.Len(),
		Bytes:        int64(len(compressed)),
		Checksum:     checksum(compressed),
		WrittenAt:    time.Now().UTC(),
		QualityScore: report.Aggregate,
		Pass:         report.Pass,
	}

	keyDir := filepath.Join(s.root, key.Path())
	if err := os.MkdirAll(keyDir, 0o755); err != nil {
		return nil, fmt.Errorf("create partition dir for %s: %w", key, err)
	}

	stage := filepath.Join(keyDir, fmt.Sprintf(".tmp-v%d-%s", version, nonce()))
	if err := s.writeStaged(stage, compressed, manifest, report); err != nil {
		_ = os.RemoveAll(stage)
		return nil, fmt.Errorf("stage version %d of %s: %w", version, key, err)
	}

	final := filepath.Join(keyDir, fmt.Sprintf("v%d", version))
	if err := os.Rename(stage, final); err != nil {
		_ = os.RemoveAll(stage)
		return nil, fmt.Errorf("commit version %d of %s: %w", version, key, err)
	}

	s.mu.Lock()
	s.versions[key.String()] = version
	s.mu.Unlock()

	s.logger.WithFields(map[string]interface{}{
		"partition": key.String(),
		"version":   version,
		"rows":      manifest.Rows,
		"bytes":     manifest.Bytes,
	}).Info("Partition version committed")

	return manifest, nil
}

// writeStaged writes chunk, manifest, and report into the staging dir.
func (s *Store) writeStaged(stage string, compressed []byte, manifest *Manifest, report *validate.QualityReport) error {
	if err := os.MkdirAll(stage, 0o755); err != nil {
		return err
	}

	if err := os.WriteFile(filepath.Join(stage, chunkFile), compressed, 0o644); err != nil {
		return fmt.Errorf("write chunk: %w", err)
	}

	manifestJSON, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(stage, manifestFile), manifestJSON, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	reportJSON, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(filepath.Join(stage, reportFile), reportJSON, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	return nil
}

// ReadLatest reads the highest committed version of a partition.
func (s *Store) ReadLatest(ctx context.Context, key Key) (*ingest.Batch, *Manifest, error) {
	latest, err := s.latestVersion(key)
	if err != nil {
		return nil, nil, err
	}
	if latest == 0 {
		return nil, nil, fmt.Errorf("%w: %s", ErrNoVersions, key)
	}
	return s.ReadVersion(ctx, key, latest)
}

// ReadVersion reads a pinned partition version, verifying the chunk
// checksum against the manifest.
func (s *Store) ReadVersion(ctx context.Context, key Key, version int) (*ingest.Batch, *Manifest, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	dir := filepath.Join(s.root, key.Path(), fmt.Sprintf("v%d", version))

	manifestJSON, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("%w: %s v%d", ErrNoVersions, key, version)
		}
		return nil, nil, fmt.Errorf("read manifest of %s v%d: %w", key, version, err)
	}
	var manifest Manifest
	if err := json.Unmarshal(manifestJSON, &manifest); err != nil {
		return nil, nil, fmt.Errorf("parse manifest of %s v%d: %w", key, version, err)
	}

	compressed, err := os.ReadFile(filepath.Join(dir, chunkFile))
	if err != nil {
		return nil, nil, fmt.Errorf("read chunk of %s v%d: %w", key, version, err)
	}
	if got := checksum(compressed); got != manifest.Checksum {
		return nil, nil, fmt.Errorf("%w: %s v%d: manifest %s, chunk %s",
			ErrChecksumMismatch, key, version, manifest.Checksum, got)
	}

	batch, err := decodeChunk(compressed)
	if err != nil {
		return nil, nil, fmt.Errorf("decode chunk of %s v%d: %w", key, version, err)
	}

	return batch, &manifest, nil
}

// ReadRange reads the latest version of every existing partition for a
// dataset across a date range, concatenated in day order. Days without a
// partition are skipped.
func (s *Store) ReadRange(ctx context.Context, sourceID, dataType string, r ingest.DateRange) ([]ingest.Record, error) {
	var records []ingest.Record

	for _, day := range r.Days() {
		batch, _, err := s.ReadLatest(ctx, NewKey(sourceID, dataType, day))
		if err != nil {
			if errors.Is(err, ErrNoVersions) {
				continue
			}
			return nil, err
		}
		records = append(records, batch.Records...)
	}

	return records, nil
}

// Versions lists the committed versions of a partition, ascending.
func (s *Store) Versions(key Key) ([]int, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, key.Path()))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan partition %s: %w", key, err)
	}

	var versions []int
	for _, entry := range entries {
		m := versionDirPattern.FindStringSubmatch(entry.Name())
		if m == nil || !entry.IsDir() {
			continue
		}
		if v, err := strconv.Atoi(m[1]); err == nil {
			versions = append(versions, v)
		}
	}
	sort.Ints(versions)
	return versions, nil
}

// PartitionInfo summarizes one partition for listings.
type PartitionInfo struct {
	Key       Key       `json:"-"`
	Partition string    `json:"partition"`
	Versions  []int     `json:"versions"`
	Latest    *Manifest `json:"latest"`
}

// List walks the store and summarizes every partition. For operational
// inspection; not on the hot path.
func (s *Store) List(ctx context.Context) ([]PartitionInfo, error) {
	var infos []PartitionInfo

	err := filepath.WalkDir(s.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if !d.IsDir() || !versionDirPattern.MatchString(d.Name()) {
			return nil
		}

		rel, err := filepath.Rel(s.root, filepath.Dir(path))
		if err != nil {
			return err
		}
		key, ok := parseKeyPath(rel)
		if !ok {
			return filepath.SkipDir
		}

		for i := range infos {
			if infos[i].Key == key {
				return filepath.SkipDir
			}
		}

		versions, err := s.Versions(key)
		if err != nil {
			return err
		}
		info := PartitionInfo{Key: key, Partition: key.String(), Versions: versions}
		if len(versions) > 0 {
			if _, manifest, err := s.ReadVersion(ctx, key, versions[len(versions)-1]); err == nil {
				info.Latest = manifest
			}
		}
		infos = append(infos, info)
		return filepath.SkipDir
	})
	if err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Partition < infos[j].Partition })
	return infos, nil
}

// parseKeyPath turns "source/data_type/YYYY/MM/DD" back into a Key.
func parseKeyPath(rel string) (Key, bool) {
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) != 5 {
		return Key{}, false
	}

	year, err1 := strconv.Atoi(parts[2])
	month, err2 := strconv.Atoi(parts[3])
	day, err3 := strconv.Atoi(parts[4])
	if err1 != nil || err2 != nil || err3 != nil {
		return Key{}, false
	}

	return NewKey(parts[0], parts[1],
		time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)), true
}

func nonce() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
