package chunk

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/substantialcattle5/stillsuit/internal/archive"
	"github.com/substantialcattle5/stillsuit/internal/backuperr"
	"github.com/substantialcattle5/stillsuit/internal/bandwidth"
	"github.com/substantialcattle5/stillsuit/internal/constants"
	"github.com/substantialcattle5/stillsuit/internal/encryption/aeskey"
	"github.com/substantialcattle5/stillsuit/internal/fs"
	"github.com/substantialcattle5/stillsuit/internal/manifest"
	"github.com/substantialcattle5/stillsuit/internal/progress"
)

// errWriterFailed marks files skipped because an earlier entry broke the chunk's archive.
var errWriterFailed = errors.New("chunk archive writer failed")

// Processor turns one chunk of files into one temporary archive.
// A Processor is shared by all chunk workers of a run.
type Processor struct {
	SourceRoot    string
	DestDir       string
	Compress      bool
	Key           []byte // nil disables encryption
	Integrity     bool
	HashAlgorithm string
	Manifest      *manifest.Store
	Counters      *progress.Counters
	Limiter       *bandwidth.Limiter
}

// ChunkResult is the outcome of processing one chunk.
type ChunkResult struct {
	Archive  string // empty when nothing was archived
	Archived []string
	Failures []backuperr.FileFailure
}

// Process archives files in order into a fresh temporary archive in DestDir.
// Per-file failures are recorded and the remaining files are still processed,
// except after a failure of the archive itself.
func (p *Processor) Process(ctx context.Context, files []fs.FileRecord) ChunkResult {
	var result ChunkResult
	if len(files) == 0 {
		return result
	}

	path := archive.TempName(p.DestDir)
	// #nosec G304 - path is generated inside the backup directory
	out, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, constants.SecureFilePerms)
	if err != nil {
		return p.skipAll(result, files, backuperr.FromOS("create temporary archive", path, err))
	}
	zw := archive.NewZipWriter(out)

	for i, rec := range files {
		if err := ctx.Err(); err != nil {
			result = p.skipAll(result, files[i:], err)
			break
		}

		data, digest, modTime, err := p.prepare(ctx, rec)
		if err != nil {
			result.Failures = append(result.Failures, backuperr.FileFailure{Path: rec.RelPath, Err: err})
			continue
		}

		hdr := &zip.FileHeader{
			Name:     rec.RelPath,
			Method:   archive.Method(p.Compress),
			Modified: modTime,
			Comment:  digest,
		}
		if err := writeEntry(zw, hdr, data); err != nil {
			result.Failures = append(result.Failures, backuperr.FileFailure{Path: rec.RelPath, Err: err})
			result = p.skipAll(result, files[i+1:], errWriterFailed)
			break
		}

		if p.Integrity && p.Manifest != nil {
			p.Manifest.Put(rec.RelPath, digest)
		}
		if p.Counters != nil {
			p.Counters.Add(rec.Size)
		}
		result.Archived = append(result.Archived, rec.RelPath)
	}

	zerr := zw.Close()
	ferr := out.Close()
	if zerr == nil {
		zerr = ferr
	}
	if zerr != nil {
		err := backuperr.IO("finish temporary archive", path, zerr)
		for _, name := range result.Archived {
			result.Failures = append(result.Failures, backuperr.FileFailure{Path: name, Err: err})
		}
		result.Archived = nil
	}

	if len(result.Archived) == 0 {
		_ = os.Remove(path)
		return result
	}
	result.Archive = path
	return result
}

// prepare reads, hashes and encrypts one file.
func (p *Processor) prepare(ctx context.Context, rec fs.FileRecord) (data []byte, digest string, modTime time.Time, err error) {
	src := rec.Path
	if src == "" {
		src = filepath.Join(p.SourceRoot, filepath.FromSlash(rec.RelPath))
	}

	// #nosec G304 - src was produced by enumerating the source root
	f, err := os.Open(src)
	if err != nil {
		return nil, "", modTime, backuperr.FromOS("read", rec.RelPath, err)
	}
	defer f.Close()

	if info, statErr := f.Stat(); statErr == nil {
		modTime = info.ModTime()
	}

	data, err = io.ReadAll(p.Limiter.Reader(ctx, f))
	if err != nil {
		return nil, "", modTime, backuperr.FromOS("read", rec.RelPath, err)
	}

	if p.Integrity {
		digest, err = HashBytes(data, p.HashAlgorithm)
		if err != nil {
			return nil, "", modTime, backuperr.IO("hash", rec.RelPath, err)
		}
	}

	if p.Key != nil {
		data, err = aeskey.Encrypt(data, p.Key)
		if err != nil {
			return nil, "", modTime, err
		}
	}
	return data, digest, modTime, nil
}

func writeEntry(zw *zip.Writer, hdr *zip.FileHeader, data []byte) error {
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return backuperr.IO("write entry", hdr.Name, err)
	}
	if _, err := w.Write(data); err != nil {
		return backuperr.IO("write entry", hdr.Name, err)
	}
	return nil
}

func (p *Processor) skipAll(result ChunkResult, files []fs.FileRecord, err error) ChunkResult {
	for _, rec := range files {
		result.Failures = append(result.Failures, backuperr.FileFailure{Path: rec.RelPath, Err: err})
	}
	return result
}
