package chunk

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/zeebo/blake3"

	"github.com/substantialcattle5/stillsuit/internal/archive"
	"github.com/substantialcattle5/stillsuit/internal/backuperr"
	"github.com/substantialcattle5/stillsuit/internal/encryption/aeskey"
	"github.com/substantialcattle5/stillsuit/internal/fs"
	"github.com/substantialcattle5/stillsuit/internal/manifest"
	"github.com/substantialcattle5/stillsuit/internal/pattern"
	"github.com/substantialcattle5/stillsuit/internal/progress"
	"github.com/substantialcattle5/stillsuit/testutil"
)

func TestCreateHasher(t *testing.T) {
	tests := []struct {
		algorithm string
		want      string // digest of "abc"
		wantErr   bool
	}{
		{"sha256", "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", false},
		{"", "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", false},
		{"SHA-256", "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", false},
		{"sha1", "a9993e364706816aba3e25717850c26c9cd0d89d", false},
		{"MD5", "900150983cd24fb0d6963f7d28e17f72", false},
		{"sha512", "ddaf35a193617abacc417349ae20413112e6fa4e89a97ea20a9eeee64b55d39a2192992a274fc1a836ba3c23a3feebbd454d4423643ce80e2a9ac94fa54ca49f", false},
		{"blake3", blake3Hex("abc"), false},
		{"crc32", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.algorithm, func(t *testing.T) {
			got, err := HashBytes([]byte("abc"), tt.algorithm)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("HashBytes(%q) expected error", tt.algorithm)
				}
				return
			}
			if err != nil {
				t.Fatalf("HashBytes(%q) unexpected error: %v", tt.algorithm, err)
			}
			if got != tt.want {
				t.Errorf("HashBytes(%q) = %s, want %s", tt.algorithm, got, tt.want)
			}
		})
	}
}

func blake3Hex(s string) string {
	sum := blake3.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func TestBlake3EmptyInput(t *testing.T) {
	got, err := HashBytes(nil, "blake3")
	if err != nil {
		t.Fatal(err)
	}
	if want := "af1349b9f5f9a1a6a0404dea36dcc9499bcb25c9adc112b7cc9a93cae41f3262"; got != want {
		t.Errorf("blake3(\"\") = %s, want %s", got, want)
	}
}

func records(n int) []fs.FileRecord {
	out := make([]fs.FileRecord, n)
	for i := range out {
		out[i] = fs.FileRecord{RelPath: fmt.Sprintf("f%03d", i), Size: int64(i)}
	}
	return out
}

func TestPartition(t *testing.T) {
	tests := []struct {
		name       string
		files      int
		size       int
		wantChunks int
		wantLast   int
	}{
		{"empty", 0, 20, 0, 0},
		{"fewer than one chunk", 3, 20, 1, 3},
		{"exact multiple", 40, 20, 2, 20},
		{"remainder", 45, 20, 3, 5},
		{"size one", 4, 1, 4, 1},
		{"default size", 41, 0, 3, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			files := records(tt.files)
			chunks := Partition(files, tt.size)
			if len(chunks) != tt.wantChunks {
				t.Fatalf("Partition() produced %d chunks, want %d", len(chunks), tt.wantChunks)
			}
			if tt.wantChunks == 0 {
				return
			}
			if got := len(chunks[len(chunks)-1]); got != tt.wantLast {
				t.Errorf("last chunk has %d files, want %d", got, tt.wantLast)
			}

			// every record exactly once, in order
			i := 0
			for _, c := range chunks {
				for _, rec := range c {
					if rec.RelPath != files[i].RelPath {
						t.Fatalf("record %d = %s, want %s", i, rec.RelPath, files[i].RelPath)
					}
					i++
				}
			}
			if i != len(files) {
				t.Errorf("chunks hold %d records, want %d", i, len(files))
			}
		})
	}
}

func listSource(t *testing.T, files map[string]string) (string, []fs.FileRecord) {
	t.Helper()
	src := testutil.TempDir(t, "src")
	testutil.CreateTree(t, src, files)
	listing, err := fs.Enumerate(src, pattern.Everything())
	if err != nil {
		t.Fatalf("Enumerate() error: %v", err)
	}
	return src, listing.Files
}

func TestProcess(t *testing.T) {
	key, err := aeskey.DeriveKey("correct horse")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name      string
		compress  bool
		key       []byte
		integrity bool
	}{
		{"plain", false, nil, false},
		{"compressed", true, nil, true},
		{"encrypted", false, key, true},
		{"compressed and encrypted", true, key, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			contents := map[string]string{
				"file1.txt":        "file1",
				"subdir/file2.txt": "file2",
				"b.bin":            string(testutil.GenerateTestData(4096)),
			}
			src, files := listSource(t, contents)
			dest := testutil.TempDir(t, "dest")

			store := manifest.NewStore()
			var counters progress.Counters
			counters.Reset(int64(5 + 5 + 4096))

			p := &Processor{
				SourceRoot:    src,
				DestDir:       dest,
				Compress:      tt.compress,
				Key:           tt.key,
				Integrity:     tt.integrity,
				HashAlgorithm: "sha256",
				Manifest:      store,
				Counters:      &counters,
			}
			res := p.Process(context.Background(), files)

			if len(res.Failures) != 0 {
				t.Fatalf("unexpected failures: %v", res.Failures)
			}
			if !archive.IsTemporary(res.Archive) || filepath.Dir(res.Archive) != dest {
				t.Fatalf("unexpected archive path %s", res.Archive)
			}
			if counters.Processed() != counters.Total() {
				t.Errorf("counters at %d, want %d", counters.Processed(), counters.Total())
			}

			r, err := archive.Open(res.Archive)
			if err != nil {
				t.Fatal(err)
			}
			defer r.Close()

			if len(r.Entries) != len(contents) {
				t.Fatalf("archive has %d entries, want %d", len(r.Entries), len(contents))
			}
			for _, e := range r.Entries {
				data, err := e.Read()
				if err != nil {
					t.Fatalf("read %s: %v", e.Name, err)
				}
				if e.Method != archive.Method(tt.compress) {
					t.Errorf("%s method = %d", e.Name, e.Method)
				}
				if tt.key != nil {
					if data, err = aeskey.Decrypt(data, tt.key); err != nil {
						t.Fatalf("decrypt %s: %v", e.Name, err)
					}
				}
				testutil.CompareBytes(t, []byte(contents[e.Name]), data, e.Name)

				want, _ := HashBytes([]byte(contents[e.Name]), "sha256")
				got, ok := store.Get(e.Name)
				if tt.integrity {
					if !ok || got != want || e.Comment != want {
						t.Errorf("%s digest manifest=%q comment=%q want %q", e.Name, got, e.Comment, want)
					}
				} else if ok || e.Comment != "" {
					t.Errorf("%s should carry no digest without integrity checking", e.Name)
				}
			}
		})
	}
}

func TestProcessKeepsOrder(t *testing.T) {
	src, files := listSource(t, map[string]string{"c": "3", "a": "1", "b": "2"})
	dest := testutil.TempDir(t, "dest")

	res := (&Processor{SourceRoot: src, DestDir: dest}).Process(context.Background(), files)
	want := []string{"a", "b", "c"}
	if fmt.Sprint(res.Archived) != fmt.Sprint(want) {
		t.Errorf("Archived = %v, want %v", res.Archived, want)
	}
}

func TestProcessSkipsMissingFile(t *testing.T) {
	src, files := listSource(t, map[string]string{"keep.txt": "keep"})
	files = append(files, fs.FileRecord{Path: filepath.Join(src, "gone.txt"), RelPath: "gone.txt", Size: 4})
	dest := testutil.TempDir(t, "dest")

	var counters progress.Counters
	counters.Reset(8)
	res := (&Processor{SourceRoot: src, DestDir: dest, Counters: &counters}).Process(context.Background(), files)

	if len(res.Failures) != 1 || res.Failures[0].Path != "gone.txt" {
		t.Fatalf("Failures = %v", res.Failures)
	}
	if !errors.Is(res.Failures[0], backuperr.ErrNotFound) {
		t.Errorf("missing file should be not found, got %v", res.Failures[0].Err)
	}
	if len(res.Archived) != 1 || counters.Processed() != 4 {
		t.Errorf("Archived = %v, processed = %d", res.Archived, counters.Processed())
	}
	if got := testutil.ZipEntryNames(t, res.Archive); len(got) != 1 || got[0] != "keep.txt" {
		t.Errorf("entries = %v", got)
	}
}

func TestProcessNothingArchived(t *testing.T) {
	dest := testutil.TempDir(t, "dest")
	files := []fs.FileRecord{{Path: filepath.Join(dest, "nope"), RelPath: "nope"}}

	res := (&Processor{DestDir: dest}).Process(context.Background(), files)
	if res.Archive != "" || len(res.Failures) != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if n := testutil.GlobCount(t, dest, "temp_*.zip"); n != 0 {
		t.Errorf("%d empty temporary archives left behind", n)
	}
}

func TestProcessCancelled(t *testing.T) {
	src, files := listSource(t, map[string]string{"a": "1", "b": "2"})
	dest := testutil.TempDir(t, "dest")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := (&Processor{SourceRoot: src, DestDir: dest}).Process(ctx, files)
	if len(res.Archived) != 0 || len(res.Failures) != 2 {
		t.Fatalf("cancelled chunk should skip everything, got %+v", res)
	}
	if !errors.Is(res.Failures[0], context.Canceled) {
		t.Errorf("failure should carry the cancellation, got %v", res.Failures[0].Err)
	}
}
