package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// chunkSize bounds how much is written or read between context checks.
const chunkSize = 64 << 10

// Entry is a stored object as reported by a Medium.
type Entry struct {
	Name string
	Size int64
}

// Medium is the byte-level storage a Manager writes snapshots to.
//
// WriteAtomic must never leave a partially written object visible under name:
// either the previous content (if any) or the full new content is readable
// after it returns, whatever the outcome.
type Medium interface {
	WriteAtomic(ctx context.Context, name string, data []byte) error
	Read(ctx context.Context, name string) ([]byte, error)
	List(ctx context.Context) ([]Entry, error)
	Remove(ctx context.Context, name string) error
}

// DirMedium stores snapshots as files in a local directory.
type DirMedium struct {
	Dir string
}

// NewDirMedium returns a DirMedium rooted at dir.
func NewDirMedium(dir string) *DirMedium {
	return &DirMedium{Dir: dir}
}

// DefaultDir returns the default snapshot directory: ~/.mnemo/snapshots
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".mnemo", "snapshots"), nil
}

const tempPrefix = ".tmp-"

// WriteAtomic writes data to a temp file in the same directory, fsyncs it and
// renames it over name.
func (d *DirMedium) WriteAtomic(ctx context.Context, name string, data []byte) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validName(name); err != nil {
		return err
	}
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	tmp, err := os.CreateTemp(d.Dir, tempPrefix+name+"-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	for off := 0; off < len(data); off += chunkSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(off+chunkSize, len(data))
		if _, err := tmp.Write(data[off:end]); err != nil {
			return fmt.Errorf("write temp file: %w", err)
		}
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, filepath.Join(d.Dir, name)); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	syncDir(d.Dir)
	return nil
}

// syncDir flushes the directory entry for a rename. Not every platform allows
// opening a directory for sync, so failures are ignored.
func syncDir(dir string) {
	f, err := os.Open(dir)
	if err != nil {
		return
	}
	f.Sync()
	f.Close()
}

// Read returns the full content of name.
func (d *DirMedium) Read(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validName(name); err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(d.Dir, name))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []byte
	buf := make([]byte, chunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := f.Read(buf)
		out = append(out, buf[:n]...)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// List returns every non-temporary file in the directory. A missing
// directory is reported as empty.
func (d *DirMedium) List(ctx context.Context) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	des, err := os.ReadDir(d.Dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []Entry
	for _, de := range des {
		if de.IsDir() || strings.HasPrefix(de.Name(), tempPrefix) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue // removed underneath us
		}
		out = append(out, Entry{Name: de.Name(), Size: info.Size()})
	}
	return out, nil
}

// Remove deletes name. Removing a missing file is not an error.
func (d *DirMedium) Remove(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validName(name); err != nil {
		return err
	}
	err := os.Remove(filepath.Join(d.Dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func validName(name string) error {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("invalid snapshot name %q", name)
	}
	return nil
}
