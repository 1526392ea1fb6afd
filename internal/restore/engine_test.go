package restore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"testing"

	"github.com/klauspost/compress/zip"

	"github.com/substantialcattle5/stillsuit/internal/archive"
	"github.com/substantialcattle5/stillsuit/internal/backup"
	"github.com/substantialcattle5/stillsuit/internal/backuperr"
	"github.com/substantialcattle5/stillsuit/internal/encryption/aeskey"
	"github.com/substantialcattle5/stillsuit/internal/manifest"
	"github.com/substantialcattle5/stillsuit/internal/pattern"
	"github.com/substantialcattle5/stillsuit/internal/space"
	"github.com/substantialcattle5/stillsuit/internal/workerpool"
	"github.com/substantialcattle5/stillsuit/testutil"
)

var scenario = map[string]string{
	"file1.txt":        "file1",
	"subdir/file2.txt": "file2",
}

func plentyOfSpace(string) (uint64, error) { return 1 << 40, nil }

func controller() *space.Controller {
	return &space.Controller{MarginPercent: 5, FreeSpace: plentyOfSpace}
}

// makeBackup archives files and returns the backup directory.
func makeBackup(t *testing.T, files map[string]string, opts backup.Options) string {
	t.Helper()
	src := testutil.TempDir(t, "src")
	testutil.CreateTree(t, src, files)
	opts.SourceDir = src
	opts.BackupDir = filepath.Join(testutil.TempDir(t, "backups"), "b")
	if opts.Filter.Include == nil {
		opts.Filter = pattern.Everything()
	}
	if opts.HashAlgorithm == "" {
		opts.HashAlgorithm = "sha256"
	}

	res, err := (&backup.Engine{Space: controller()}).Run(context.Background(), opts)
	if err != nil {
		t.Fatalf("backup failed: %v", err)
	}
	if res.Status != backup.StatusCompleted {
		t.Fatalf("backup status %s: %v", res.Status, res.Failures)
	}
	return opts.BackupDir
}

func TestRoundTrip(t *testing.T) {
	key, err := aeskey.DeriveKey("hunter22")
	if err != nil {
		t.Fatal(err)
	}

	files := map[string]string{
		"file1.txt":             "file1",
		"subdir/file2.txt":      "file2",
		"subdir/deep/empty.txt": "",
		"blob.bin":              string(testutil.GenerateTestData(70000)),
	}

	for _, compress := range []bool{false, true} {
		for _, encrypt := range []bool{false, true} {
			for _, integrity := range []bool{false, true} {
				name := fmt.Sprintf("compress=%v/encrypt=%v/integrity=%v", compress, encrypt, integrity)
				t.Run(name, func(t *testing.T) {
					var k []byte
					if encrypt {
						k = key
					}
					backupDir := makeBackup(t, files, backup.Options{
						Compress: compress, Key: k, Integrity: integrity, ChunkSize: 2, Workers: 2,
					})

					dest := filepath.Join(testutil.TempDir(t, "restore"), "out")
					res, err := (&Engine{Space: controller()}).Run(context.Background(), Options{
						BackupDir:     backupDir,
						RestoreDir:    dest,
						Filter:        pattern.Everything(),
						Key:           k,
						Integrity:     integrity,
						HashAlgorithm: "sha256",
						Workers:       3,
					})
					if err != nil {
						t.Fatalf("restore failed: %v", err)
					}
					if res.State != StateCompleted || res.Restored != len(files) {
						t.Errorf("unexpected result %+v", res)
					}
					if got := testutil.ReadTree(t, dest); !reflect.DeepEqual(got, files) {
						t.Errorf("restored tree differs from source")
					}
				})
			}
		}
	}
}

func TestRoundTripNonUTF8Name(t *testing.T) {
	if runtime.GOOS == "windows" || runtime.GOOS == "darwin" {
		t.Skip("file system rejects names that are not valid UTF-8")
	}
	files := map[string]string{
		"caf\xe9.txt": "latin-1 name",
		"ok.txt":      "plain",
	}
	backupDir := makeBackup(t, files, backup.Options{Integrity: true, Workers: 2})

	dest := filepath.Join(testutil.TempDir(t, "restore"), "out")
	res, err := (&Engine{Space: controller()}).Run(context.Background(), Options{
		BackupDir:     backupDir,
		RestoreDir:    dest,
		Filter:        pattern.Everything(),
		Integrity:     true,
		HashAlgorithm: "sha256",
		Workers:       2,
	})
	if err != nil {
		t.Fatalf("restore failed: %v", err)
	}
	if res.State != StateCompleted || res.Restored != len(files) || len(res.Failures) != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	if got := testutil.ReadTree(t, dest); !reflect.DeepEqual(got, files) {
		t.Errorf("restored tree = %q, want %q", got, files)
	}
}

func TestStateSequence(t *testing.T) {
	backupDir := makeBackup(t, scenario, backup.Options{Integrity: true})

	var states []State
	_, err := (&Engine{Space: controller()}).Run(context.Background(), Options{
		BackupDir:  backupDir,
		RestoreDir: testutil.TempDir(t, "out"),
		Filter:     pattern.Everything(),
		Integrity:  true,
		OnState:    func(s State) { states = append(states, s) },
	})
	if err != nil {
		t.Fatal(err)
	}
	want := []State{StateEnumerating, StateAdmissionCheck, StateDispatching, StateDraining, StateCompleted}
	if !reflect.DeepEqual(states, want) {
		t.Errorf("states = %v, want %v", states, want)
	}
}

func TestIntegrityViolation(t *testing.T) {
	files := map[string]string{"a.txt": "a", "b.txt": "b", "c.txt": "c", "d.txt": "d"}

	tests := []struct {
		name         string
		corrupt      string
		wantRestored []string
		wantAborted  int // entries never dispatched
	}{
		// entries are processed in name order with one worker, so the first
		// violation stops everything after it
		{"first entry", "a.txt", nil, 3},
		{"last entry", "d.txt", []string{"a.txt", "b.txt", "c.txt"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backupDir := makeBackup(t, files, backup.Options{Integrity: true})
			manifestPath := filepath.Join(backupDir, "hashes.json")
			store, err := manifest.LoadStrict(manifestPath)
			if err != nil {
				t.Fatal(err)
			}
			store.Put(tt.corrupt, "0000")
			if err := manifest.Save(store, manifestPath); err != nil {
				t.Fatal(err)
			}

			dest := testutil.TempDir(t, "out")
			res, err := (&Engine{Space: controller()}).Run(context.Background(), Options{
				BackupDir:  backupDir,
				RestoreDir: dest,
				Filter:     pattern.Everything(),
				Integrity:  true,
				Workers:    1,
			})
			if !errors.Is(err, backuperr.ErrIntegrity) {
				t.Fatalf("Run() error = %v, want integrity violation", err)
			}
			if res.State != StateIntegrityViolation || !res.Aborted {
				t.Errorf("State = %s Aborted = %v", res.State, res.Aborted)
			}
			testutil.AssertFileNotExists(t, filepath.Join(dest, tt.corrupt))

			var restored []string
			for name := range testutil.ReadTree(t, dest) {
				restored = append(restored, name)
			}
			if len(restored) != len(tt.wantRestored) {
				t.Errorf("restored %v, want %v", restored, tt.wantRestored)
			}

			var notDispatched int
			for _, f := range res.Failures {
				if errors.Is(f, workerpool.ErrNotDispatched) {
					notDispatched++
				}
			}
			if notDispatched != tt.wantAborted {
				t.Errorf("%d entries not dispatched, want %d", notDispatched, tt.wantAborted)
			}
		})
	}
}

func TestMissingManifestEntry(t *testing.T) {
	backupDir := makeBackup(t, scenario, backup.Options{Integrity: true})
	manifestPath := filepath.Join(backupDir, "hashes.json")
	store := manifest.NewStore()
	h, _ := manifest.LoadStrict(manifestPath)
	d, _ := h.Get("file1.txt")
	store.Put("file1.txt", d)
	if err := manifest.Save(store, manifestPath); err != nil {
		t.Fatal(err)
	}

	dest := testutil.TempDir(t, "out")
	res, err := (&Engine{Space: controller()}).Run(context.Background(), Options{
		BackupDir: backupDir, RestoreDir: dest, Filter: pattern.Everything(), Integrity: true, Workers: 1,
	})
	if !errors.Is(err, backuperr.ErrIntegrity) || res.State != StateIntegrityViolation {
		t.Fatalf("Run() = %s, %v; want integrity violation", res.State, err)
	}
	testutil.AssertFileContains(t, filepath.Join(dest, "file1.txt"), "file1")
	testutil.AssertFileNotExists(t, filepath.Join(dest, "subdir", "file2.txt"))
}

func TestCorruptManifestFailsEveryEntry(t *testing.T) {
	backupDir := makeBackup(t, scenario, backup.Options{Integrity: true})
	testutil.CreateTestFile(t, backupDir, "hashes.json", `{"file1.txt":`)

	dest := testutil.TempDir(t, "out")
	res, err := (&Engine{Space: controller()}).Run(context.Background(), Options{
		BackupDir: backupDir, RestoreDir: dest, Filter: pattern.Everything(), Integrity: true,
	})
	if !errors.Is(err, backuperr.ErrIntegrity) {
		t.Fatalf("Run() error = %v, want integrity violation", err)
	}
	if res.Restored != 0 {
		t.Errorf("Restored = %d, want 0", res.Restored)
	}
}

func TestRestoreFilters(t *testing.T) {
	files := map[string]string{"keep.txt": "k", "skip.log": "s", "sub/keep2.txt": "k2", "sub/secret.txt": "x"}
	backupDir := makeBackup(t, files, backup.Options{Integrity: true})

	dest := testutil.TempDir(t, "out")
	res, err := (&Engine{Space: controller()}).Run(context.Background(), Options{
		BackupDir:  backupDir,
		RestoreDir: dest,
		Filter:     pattern.Filter{Include: []string{".txt"}, Exclude: []string{"secret."}},
		Integrity:  true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Selected != 2 {
		t.Errorf("Selected = %d, want 2", res.Selected)
	}
	want := map[string]string{"keep.txt": "k", "sub/keep2.txt": "k2"}
	if got := testutil.ReadTree(t, dest); !reflect.DeepEqual(got, want) {
		t.Errorf("restored %v, want %v", got, want)
	}
}

func TestWrongKey(t *testing.T) {
	good, _ := aeskey.DeriveKey("right password")
	bad, _ := aeskey.DeriveKey("wrong password")
	backupDir := makeBackup(t, scenario, backup.Options{Key: good, Integrity: true})

	dest := testutil.TempDir(t, "out")
	res, err := (&Engine{Space: controller()}).Run(context.Background(), Options{
		BackupDir: backupDir, RestoreDir: dest, Filter: pattern.Everything(), Key: bad, Integrity: true,
	})
	if err == nil || !res.State.Failed() {
		t.Fatalf("restore with the wrong key must fail, got state %s", res.State)
	}
	if res.Restored != 0 {
		t.Errorf("Restored = %d, want 0", res.Restored)
	}
}

func TestEntryEscapingRoot(t *testing.T) {
	backupDir := testutil.TempDir(t, "evil")
	f, err := os.Create(filepath.Join(backupDir, "backup.zip"))
	if err != nil {
		t.Fatal(err)
	}
	zw := archive.NewZipWriter(f)
	for _, name := range []string{"../escaped.txt", "fine.txt"} {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Store})
		if err != nil {
			t.Fatal(err)
		}
		_, _ = w.Write([]byte(name))
	}
	_ = zw.Close()
	_ = f.Close()

	parent := testutil.TempDir(t, "parent")
	dest := filepath.Join(parent, "out")
	_, err = (&Engine{Space: controller()}).Run(context.Background(), Options{
		BackupDir: backupDir, RestoreDir: dest, Filter: pattern.Everything(),
	})
	if err == nil {
		t.Fatal("an entry escaping the restore root must fail the run")
	}
	testutil.AssertFileNotExists(t, filepath.Join(parent, "escaped.txt"))
}

func TestPhaseErrors(t *testing.T) {
	t.Run("missing archive", func(t *testing.T) {
		res, err := (&Engine{Space: controller()}).Run(context.Background(), Options{
			BackupDir: testutil.TempDir(t, "none"), RestoreDir: testutil.TempDir(t, "out"), Filter: pattern.Everything(),
		})
		if !errors.Is(err, backuperr.ErrNotFound) || res.State != StateIOError {
			t.Fatalf("Run() = %s, %v; want not found", res.State, err)
		}
	})

	t.Run("insufficient space", func(t *testing.T) {
		backupDir := makeBackup(t, map[string]string{"big.bin": string(testutil.GenerateTestData(1000))}, backup.Options{})
		dest := filepath.Join(testutil.TempDir(t, "out"), "never")
		tight := &space.Controller{MarginPercent: 5, FreeSpace: func(string) (uint64, error) { return 1000, nil }}

		_, err := (&Engine{Space: tight}).Run(context.Background(), Options{
			BackupDir: backupDir, RestoreDir: dest, Filter: pattern.Everything(),
		})
		if !errors.Is(err, backuperr.ErrInsufficientSpace) {
			t.Fatalf("Run() error = %v, want insufficient space", err)
		}
		testutil.AssertFileNotExists(t, dest)
	})
}

func TestLargeFileRoundTrip(t *testing.T) {
	testutil.SkipIfShort(t, "archives several megabytes")

	key, err := aeskey.Derive("scrypt", "hunter22")
	if err != nil {
		t.Fatal(err)
	}
	const size = 8 << 20

	src := testutil.TempDir(t, "src")
	original := testutil.CreateTestFileWithSize(t, src, "big/random.bin", size)
	testutil.CreateTestFile(t, src, "small.txt", "small")
	backupDir := filepath.Join(testutil.TempDir(t, "backups"), "b")

	_, err = (&backup.Engine{Space: controller()}).Run(context.Background(), backup.Options{
		SourceDir:     src,
		BackupDir:     backupDir,
		Filter:        pattern.Everything(),
		Compress:      true,
		Key:           key,
		Integrity:     true,
		HashAlgorithm: "blake3",
	})
	if err != nil {
		t.Fatalf("backup failed: %v", err)
	}

	dest := testutil.TempDir(t, "restore")
	res, err := (&Engine{Space: controller()}).Run(context.Background(), Options{
		BackupDir:     backupDir,
		RestoreDir:    dest,
		Filter:        pattern.Everything(),
		Key:           key,
		Integrity:     true,
		HashAlgorithm: "blake3",
	})
	if err != nil {
		t.Fatalf("restore failed: %v", err)
	}
	if res.Restored != 2 {
		t.Errorf("Restored = %d, want 2", res.Restored)
	}

	restored := filepath.Join(dest, "big", "random.bin")
	testutil.AssertFileSize(t, restored, size)
	want, err := os.ReadFile(original)
	if err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(restored)
	if err != nil {
		t.Fatal(err)
	}
	testutil.CompareBytes(t, want, got, "large file")
}
