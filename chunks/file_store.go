package chunks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-git/go-billy/v6"
	"github.com/go-git/go-billy/v6/util"
	"github.com/google/uuid"

	"github.com/nickyhof/TreeDB/hash"
)

const tempPrefix = ".tmp-"

// FileStore keeps one file per chunk under a two character fan-out directory:
//
//	<root>/ab/cdefghijklmnopqrstuvwxyz012345
//
// A chunk is written to a temp file in its target directory, synced, then
// renamed into place, so readers only ever see complete files. The directory
// is synced after the rename so the new entry survives a crash.
type FileStore struct {
	fs          billy.Filesystem
	compression Compression
	counters
}

func NewFileStore(fs billy.Filesystem, compression Compression) *FileStore {
	return &FileStore{fs: fs, compression: compression}
}

func (s *FileStore) path(h hash.Hash) string {
	name := h.String()
	return s.fs.Join(name[:2], name[2:])
}

func (s *FileStore) Get(_ context.Context, h hash.Hash) ([]byte, error) {
	payload, err := util.ReadFile(s.fs, s.path(h))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, notFound(h)
		}
		return nil, fmt.Errorf("failed to read chunk %s: %w", h, err)
	}
	s.reads.Add(1)

	data, err := decodePayload(payload)
	if err != nil {
		return nil, fmt.Errorf("chunk %s: %w", h, err)
	}
	if err := verify(h, data); err != nil {
		return nil, err
	}
	return data, nil
}

func (s *FileStore) Has(_ context.Context, h hash.Hash) (bool, error) {
	_, err := s.fs.Stat(s.path(h))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (s *FileStore) Put(ctx context.Context, data []byte) (hash.Hash, error) {
	h := hash.Of(data)

	ok, err := s.Has(ctx, h)
	if err != nil {
		return hash.Hash{}, err
	}
	if ok {
		s.dedups.Add(1)
		return h, nil
	}

	name := h.String()
	dir := name[:2]
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return hash.Hash{}, fmt.Errorf("failed to create chunk dir: %w", err)
	}

	tmp := s.fs.Join(dir, tempPrefix+name[2:]+"-"+uuid.NewString())
	if err := s.writeSynced(tmp, encodePayload(data, s.compression)); err != nil {
		_ = s.fs.Remove(tmp)
		return hash.Hash{}, err
	}

	if err := s.fs.Rename(tmp, s.path(h)); err != nil {
		_ = s.fs.Remove(tmp)
		// Another writer may have published the same content first.
		if exists, _ := s.Has(ctx, h); exists {
			s.dedups.Add(1)
			return h, nil
		}
		return hash.Hash{}, fmt.Errorf("failed to publish chunk %s: %w", h, err)
	}
	if err := s.syncDir(dir); err != nil {
		return hash.Hash{}, fmt.Errorf("failed to sync chunk dir %s: %w", dir, err)
	}

	s.writes.Add(1)
	return h, nil
}

func (s *FileStore) writeSynced(name string, payload []byte) error {
	f, err := s.fs.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create chunk file: %w", err)
	}
	if _, err := f.Write(payload); err != nil {
		f.Close()
		return fmt.Errorf("failed to write chunk file: %w", err)
	}
	if syncer, ok := f.(interface{ Sync() error }); ok {
		if err := syncer.Sync(); err != nil {
			f.Close()
			return fmt.Errorf("failed to sync chunk file: %w", err)
		}
	}
	return f.Close()
}

// syncDir flushes the entries of dir. Filesystems that cannot open
// directories, like memfs, have nothing to flush.
func (s *FileStore) syncDir(dir string) error {
	d, err := s.fs.Open(dir)
	if err != nil {
		return nil
	}
	defer d.Close()
	if syncer, ok := d.(interface{ Sync() error }); ok {
		return syncer.Sync()
	}
	return nil
}

func (s *FileStore) Hashes(ctx context.Context, fn func(hash.Hash) error) error {
	dirs, err := s.fs.ReadDir("/")
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}

	for _, dir := range dirs {
		if !dir.IsDir() || len(dir.Name()) != 2 {
			continue
		}
		files, err := s.fs.ReadDir(dir.Name())
		if err != nil {
			return err
		}
		for _, file := range files {
			if err := ctx.Err(); err != nil {
				return err
			}
			if strings.HasPrefix(file.Name(), tempPrefix) {
				continue
			}
			h, ok := hash.MaybeParse(dir.Name() + file.Name())
			if !ok {
				continue
			}
			if err := fn(h); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *FileStore) Delete(_ context.Context, h hash.Hash) error {
	err := s.fs.Remove(s.path(h))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete chunk %s: %w", h, err)
	}
	if err == nil {
		s.deletes.Add(1)
	}
	return nil
}

func (s *FileStore) Close() error {
	return nil
}
