package archive

import (
	"io"
	"sort"

	"github.com/klauspost/compress/zip"

	"github.com/substantialcattle5/stillsuit/internal/backuperr"
)

// Entry is one file stored in an archive.
type Entry struct {
	Name    string
	Size    int64 // stored (possibly encrypted) size
	Comment string
	Method  uint16
	file    *zip.File
}

// Read returns the stored bytes of the entry. Safe for concurrent use.
func (e Entry) Read() ([]byte, error) {
	rc, err := e.file.Open()
	if err != nil {
		return nil, backuperr.IO("open entry", e.Name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, backuperr.IO("read entry", e.Name, err)
	}
	return data, nil
}

// Header returns a header for copying the entry into another archive.
func (e Entry) Header() *zip.FileHeader {
	return &zip.FileHeader{
		Name:     e.Name,
		Comment:  e.Comment,
		Method:   e.Method,
		Modified: e.file.Modified,
	}
}

// Reader lists the entries of an archive.
type Reader struct {
	rc      *zip.ReadCloser
	Entries []Entry
}

// Open opens the archive at path. Directory entries are ignored.
// Entries are sorted by name.
func Open(path string) (*Reader, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, backuperr.FromOS("open archive", path, err)
	}

	r := &Reader{rc: rc}
	for _, f := range rc.File {
		if f.FileInfo().IsDir() {
			continue
		}
		r.Entries = append(r.Entries, Entry{
			Name:    f.Name,
			Size:    int64(f.UncompressedSize64),
			Comment: f.Comment,
			Method:  f.Method,
			file:    f,
		})
	}
	sort.Slice(r.Entries, func(i, j int) bool { return r.Entries[i].Name < r.Entries[j].Name })
	return r, nil
}

// TotalSize sums the stored size of the entries.
func (r *Reader) TotalSize() int64 {
	var total int64
	for _, e := range r.Entries {
		total += e.Size
	}
	return total
}

// Close releases the underlying file.
func (r *Reader) Close() error {
	return r.rc.Close()
}
