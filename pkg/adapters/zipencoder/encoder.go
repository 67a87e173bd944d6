// Package zipencoder writes zip archives with archive/zip.
package zipencoder

import (
	"archive/zip"
	"fmt"
	"io"
	"time"

	"github.com/user/framegrab/pkg/ports"
)

// Encoder creates zip writers. Encoded images barely compress, so entries
// are stored by default.
type Encoder struct {
	Method uint16
}

// New creates an encoder that stores entries uncompressed.
func New() *Encoder {
	return &Encoder{Method: zip.Store}
}

// NewDeflate creates an encoder that deflates entries.
func NewDeflate() *Encoder {
	return &Encoder{Method: zip.Deflate}
}

// NewWriter implements ports.ArchiveEncoder.
func (e *Encoder) NewWriter(w io.Writer) ports.ArchiveWriter {
	return &Writer{zw: zip.NewWriter(w), method: e.Method, names: make(map[string]struct{})}
}

// Writer appends entries and refuses duplicate names.
type Writer struct {
	zw     *zip.Writer
	method uint16
	names  map[string]struct{}
}

// Add implements ports.ArchiveWriter.
func (w *Writer) Add(name string, modified time.Time, data []byte) error {
	if _, ok := w.names[name]; ok {
		return fmt.Errorf("%s: %w", name, ports.ErrDuplicateEntry)
	}

	fw, err := w.zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   w.method,
		Modified: modified,
	})
	if err != nil {
		return fmt.Errorf("create entry %s: %w", name, err)
	}
	if _, err := fw.Write(data); err != nil {
		return fmt.Errorf("write entry %s: %w", name, err)
	}
	w.names[name] = struct{}{}
	return nil
}

// Close implements ports.ArchiveWriter.
func (w *Writer) Close() error {
	return w.zw.Close()
}

var _ ports.ArchiveEncoder = (*Encoder)(nil)
