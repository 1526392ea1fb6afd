package archive

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"

	"github.com/substantialcattle5/stillsuit/internal/backuperr"
	"github.com/substantialcattle5/stillsuit/internal/constants"
)

// ErrDuplicateEntry is returned when an entry name was already written.
var ErrDuplicateEntry = errors.New("duplicate archive entry")

// NewZipWriter returns a zip writer whose Deflate method uses the best compression level.
func NewZipWriter(w io.Writer) *zip.Writer {
	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestCompression)
	})
	return zw
}

// Method returns the zip method for the compression setting.
func Method(compress bool) uint16 {
	if compress {
		return zip.Deflate
	}
	return zip.Store
}

// SharedWriter serialises whole entries from concurrent producers into one archive.
type SharedWriter struct {
	mu    sync.Mutex
	path  string
	file  *os.File
	zw    *zip.Writer
	names map[string]struct{}
}

// CreateShared creates (or truncates) the archive at path.
func CreateShared(path string) (*SharedWriter, error) {
	// #nosec G304 - path is built from the configured backup directory
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, constants.StandardFilePerms)
	if err != nil {
		return nil, backuperr.FromOS("create archive", path, err)
	}
	return &SharedWriter{
		path:  path,
		file:  f,
		zw:    NewZipWriter(f),
		names: make(map[string]struct{}),
	}, nil
}

// WriteEntry writes one complete entry while holding the lock.
func (w *SharedWriter) WriteEntry(hdr *zip.FileHeader, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.zw == nil {
		return backuperr.IO("write entry", hdr.Name, os.ErrClosed)
	}
	if _, dup := w.names[hdr.Name]; dup {
		return fmt.Errorf("%s: %w", hdr.Name, ErrDuplicateEntry)
	}

	out, err := w.zw.CreateHeader(hdr)
	if err != nil {
		return backuperr.IO("write entry", hdr.Name, err)
	}
	if _, err := out.Write(data); err != nil {
		return backuperr.IO("write entry", hdr.Name, err)
	}
	w.names[hdr.Name] = struct{}{}
	return nil
}

// Entries returns the number of entries written so far.
func (w *SharedWriter) Entries() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.names)
}

// Close finishes the central directory and closes the file.
func (w *SharedWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.zw == nil {
		return nil
	}
	zerr := w.zw.Close()
	ferr := w.file.Close()
	w.zw = nil
	if zerr != nil {
		return backuperr.IO("finish archive", w.path, zerr)
	}
	if ferr != nil {
		return backuperr.IO("finish archive", w.path, ferr)
	}
	return nil
}

// Abort closes the archive and removes it.
func (w *SharedWriter) Abort() {
	_ = w.Close()
	_ = os.Remove(w.path)
}
