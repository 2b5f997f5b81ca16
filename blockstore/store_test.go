package blockstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/noctis-project/noctis/blockmodel"
)

func sampleRawBlock(n byte) *blockmodel.RawBlock {
	return &blockmodel.RawBlock{
		TemplateBytes: []byte{n, n, n},
		TxBytes:       [][]byte{{n, 1}, {n, 2, 3}},
	}
}

func requireEqualRaw(t *testing.T, got, want *blockmodel.RawBlock) {
	t.Helper()
	if string(got.TemplateBytes) != string(want.TemplateBytes) {
		t.Fatalf("template mismatch: got %v want %v", got.TemplateBytes, want.TemplateBytes)
	}
	if len(got.TxBytes) != len(want.TxBytes) {
		t.Fatalf("tx count mismatch: got %d want %d", len(got.TxBytes), len(want.TxBytes))
	}
	for i := range want.TxBytes {
		if string(got.TxBytes[i]) != string(want.TxBytes[i]) {
			t.Fatalf("tx %d mismatch", i)
		}
	}
}

func exerciseStore(t *testing.T, open func(base string) (Store, error)) {
	t.Helper()
	dir := t.TempDir()
	s, err := open(filepath.Join(dir, "store"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	if s.Count() != 0 {
		t.Fatalf("new store count = %d, want 0", s.Count())
	}

	for i := byte(0); i < 5; i++ {
		if err := s.Push(sampleRawBlock(i)); err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
	}
	if s.Count() != 5 {
		t.Fatalf("count = %d, want 5", s.Count())
	}

	for i := uint64(0); i < 5; i++ {
		got, err := s.Get(i)
		if err != nil {
			t.Fatalf("get %d: %v", i, err)
		}
		requireEqualRaw(t, got, sampleRawBlock(byte(i)))
	}

	if err := s.Pop(); err != nil {
		t.Fatalf("pop: %v", err)
	}
	if s.Count() != 4 {
		t.Fatalf("count after pop = %d, want 4", s.Count())
	}

	upper, err := s.SplitAt(2)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	defer upper.Close()

	if s.Count() != 2 {
		t.Fatalf("lower count after split = %d, want 2", s.Count())
	}
	if upper.Count() != 2 {
		t.Fatalf("upper count after split = %d, want 2", upper.Count())
	}
	for i := uint64(0); i < 2; i++ {
		got, err := upper.Get(i)
		if err != nil {
			t.Fatalf("upper get %d: %v", i, err)
		}
		requireEqualRaw(t, got, sampleRawBlock(byte(2+i)))
	}
	for i := uint64(0); i < 2; i++ {
		got, err := s.Get(i)
		if err != nil {
			t.Fatalf("lower get %d: %v", i, err)
		}
		requireEqualRaw(t, got, sampleRawBlock(byte(i)))
	}
}

func TestMappedVectorStore(t *testing.T) {
	exerciseStore(t, func(base string) (Store, error) {
		return OpenMappedVectorStore(base)
	})
}

func TestLevelIndexStore(t *testing.T) {
	exerciseStore(t, func(base string) (Store, error) {
		return OpenLevelIndexStore(base)
	})
}

func TestMappedVectorStoreGrowsAcrossCapacity(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenMappedVectorStore(filepath.Join(dir, "grow"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	// initialCapacity is 10; push past it several times to exercise
	// more than one reserve() growth.
	const n = 40
	for i := 0; i < n; i++ {
		if err := s.Push(sampleRawBlock(byte(i))); err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
	}
	if s.Count() != n {
		t.Fatalf("count = %d, want %d", s.Count(), n)
	}
	for i := 0; i < n; i++ {
		got, err := s.Get(uint64(i))
		if err != nil {
			t.Fatalf("get %d: %v", i, err)
		}
		requireEqualRaw(t, got, sampleRawBlock(byte(i)))
	}
}

func TestMappedVectorStoreReopenRecoversState(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "reopen")
	s, err := OpenMappedVectorStore(base)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for i := byte(0); i < 3; i++ {
		if err := s.Push(sampleRawBlock(i)); err != nil {
			t.Fatalf("push: %v", err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := OpenMappedVectorStore(base)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if reopened.Count() != 3 {
		t.Fatalf("reopened count = %d, want 3", reopened.Count())
	}
	got, err := reopened.Get(1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	requireEqualRaw(t, got, sampleRawBlock(1))
}

// TestRecordVectorRecoversFromStaleBackup exercises the open-time
// recovery rule of spec section 6: if both the live file and its .bak
// exist, the .bak is discarded; if only .bak exists, it is rolled
// forward to the live path. This simulates a crash between the two
// renames of the atomic update protocol.
func TestRecordVectorRecoversFromStaleBackup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index")

	v, err := openRecordVector(path, ModeCreate, 0, 0)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := v.PushBack(record{Offset: 1, Length: 2}); err != nil {
		t.Fatalf("push: %v", err)
	}
	if err := v.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Simulate a crash that completed "rename live->.bak" but not
	// "rename tmp->live": only .bak is left on disk.
	if err := os.Rename(path, path+".bak"); err != nil {
		t.Fatalf("simulating crash: %v", err)
	}

	recovered, err := openRecordVector(path, ModeOpen, 0, 0)
	if err != nil {
		t.Fatalf("recovering open: %v", err)
	}
	defer recovered.Close()
	if recovered.Size() != 1 {
		t.Fatalf("recovered size = %d, want 1", recovered.Size())
	}
	if _, err := os.Stat(path + ".bak"); !os.IsNotExist(err) {
		t.Fatalf(".bak file should have been consumed by recovery")
	}
}

// TestRecordVectorDiscardsStaleBackupWhenBothExist simulates a crash
// that completed the rename tmp->live but not the final .bak removal:
// both files exist, and the stale .bak must be discarded in favor of
// the live file.
func TestRecordVectorDiscardsStaleBackupWhenBothExist(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index")

	v, err := openRecordVector(path, ModeCreate, 0, 0)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := v.PushBack(record{Offset: 1, Length: 2}); err != nil {
		t.Fatalf("push: %v", err)
	}

	// Snapshot the live file as a stale backup that should be ignored.
	liveBytes, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading live file: %v", err)
	}
	if err := os.WriteFile(path+".bak", liveBytes, 0600); err != nil {
		t.Fatalf("writing stale backup: %v", err)
	}
	if err := v.PushBack(record{Offset: 3, Length: 4}); err != nil {
		t.Fatalf("push: %v", err)
	}
	if err := v.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	recovered, err := openRecordVector(path, ModeOpen, 0, 0)
	if err != nil {
		t.Fatalf("recovering open: %v", err)
	}
	defer recovered.Close()
	if recovered.Size() != 2 {
		t.Fatalf("recovered size = %d, want 2 (live file, not stale .bak)", recovered.Size())
	}
	if _, err := os.Stat(path + ".bak"); !os.IsNotExist(err) {
		t.Fatalf("stale .bak should have been discarded")
	}
}
