package ports

import "io"

// FileSystem abstracts file system operations.
type FileSystem interface {
	ReadFile(path string) ([]byte, error)

	// WriteFile writes data to a file, creating parent directories.
	WriteFile(path string, data []byte) error

	// Create opens a file for streaming writes, creating parent directories.
	Create(path string) (io.WriteCloser, error)

	MkdirAll(path string) error
	Exists(path string) (bool, error)
	Remove(path string) error
}
