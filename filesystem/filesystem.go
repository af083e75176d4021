package filesystem

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// Error constants for better error handling
var (
	ErrFileNotFound      = errors.New("filesystem: file not found")
	ErrDirectoryNotFound = errors.New("filesystem: directory not found")
	ErrInvalidPath       = errors.New("filesystem: invalid path")
)

// Filesystem gives read-only access to the files below one root directory.
// Paths are slash separated and relative to the root; a leading slash is
// ignored. A path with a ".." element is rejected with ErrInvalidPath, and
// symlinks cannot point outside the root.
type Filesystem interface {
	Root() string

	Open(path string) (*os.File, error)
	ReadFile(path string) ([]byte, error)

	FileExists(path string) (bool, error)
	FileSize(path string) (int64, error)
	FileMetaData(path string) (os.FileInfo, error)

	ListDirectory(path string) ([]os.FileInfo, error)

	IsFile(path string) (bool, error)
	IsDirectory(path string) (bool, error)

	Close() error
}

type localFileSystem struct {
	dir  string
	root *os.Root
}

// Local opens dir as the root of a Filesystem. The returned Filesystem
// holds the directory open until Close.
func Local(dir string) (Filesystem, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}

	root, err := os.OpenRoot(abs)
	if err != nil {
		return nil, fmt.Errorf("filesystem: open root %s: %w", dir, err)
	}

	return &localFileSystem{dir: abs, root: root}, nil
}

// Clean turns a request path into a name relative to the root. The root
// itself is ".".
func Clean(name string) (string, error) {
	if strings.ContainsAny(name, "\x00\\") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, name)
	}
	for _, segment := range strings.Split(name, "/") {
		if segment == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidPath, name)
		}
	}

	cleaned := strings.Trim(path.Clean("/"+name), "/")
	if cleaned == "" {
		return ".", nil
	}
	return cleaned, nil
}

func (filesystem *localFileSystem) Root() string {
	return filesystem.dir
}

func (filesystem *localFileSystem) Open(name string) (*os.File, error) {
	cleaned, err := Clean(name)
	if err != nil {
		return nil, err
	}

	file, err := filesystem.root.Open(cleaned)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, name)
		}
		return nil, err
	}
	return file, nil
}

func (filesystem *localFileSystem) ReadFile(name string) ([]byte, error) {
	file, err := filesystem.Open(name)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			slog.Error("closing file error", "error", closeErr)
		}
	}()

	return io.ReadAll(file)
}

func (filesystem *localFileSystem) FileMetaData(name string) (os.FileInfo, error) {
	cleaned, err := Clean(name)
	if err != nil {
		return nil, err
	}

	info, err := filesystem.root.Stat(cleaned)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, name)
		}
		return nil, err
	}
	return info, nil
}

func (filesystem *localFileSystem) FileExists(name string) (bool, error) {
	_, err := filesystem.FileMetaData(name)
	if err != nil {
		if errors.Is(err, ErrFileNotFound) {
			return false, nil
		}
		return false, err
	}

	return true, nil
}

func (filesystem *localFileSystem) FileSize(name string) (int64, error) {
	info, err := filesystem.FileMetaData(name)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// ListDirectory returns the entries of a directory sorted by name.
func (filesystem *localFileSystem) ListDirectory(name string) ([]os.FileInfo, error) {
	isDir, err := filesystem.IsDirectory(name)
	if err != nil {
		return nil, err
	}
	if !isDir {
		return nil, fmt.Errorf("%w: %s", ErrDirectoryNotFound, name)
	}

	dir, err := filesystem.Open(name)
	if err != nil {
		return nil, err
	}
	defer dir.Close()

	entries, err := dir.ReadDir(-1)
	if err != nil {
		return nil, err
	}

	infos := make([]os.FileInfo, 0, len(entries))
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name() < infos[j].Name()
	})

	return infos, nil
}

func (filesystem *localFileSystem) IsFile(name string) (bool, error) {
	info, err := filesystem.FileMetaData(name)
	if err != nil {
		if errors.Is(err, ErrFileNotFound) {
			return false, nil
		}
		return false, err
	}
	return !info.IsDir(), nil
}

func (filesystem *localFileSystem) IsDirectory(name string) (bool, error) {
	info, err := filesystem.FileMetaData(name)
	if err != nil {
		if errors.Is(err, ErrFileNotFound) {
			return false, nil
		}
		return false, err
	}
	return info.IsDir(), nil
}

func (filesystem *localFileSystem) Close() error {
	return filesystem.root.Close()
}
