package sessionlog

import (
	"io"
	"io/fs"
	"os"
)

// fileSystem is the subset of file access the reader performs.
type fileSystem interface {
	Stat(name string) (fs.FileInfo, error)
	ReadDir(name string) ([]fs.DirEntry, error)
	Open(name string) (io.ReadCloser, error)
}

type osFS struct{}

func (osFS) Stat(name string) (fs.FileInfo, error) { return os.Stat(name) }

func (osFS) ReadDir(name string) ([]fs.DirEntry, error) { return os.ReadDir(name) }

func (osFS) Open(name string) (io.ReadCloser, error) { return os.Open(name) }
