package main

import (
	"os"
	"testing"
)

func TestOpenRuntimeIndex_Backends(t *testing.T) {
	dir := t.TempDir()

	idx, err := openRuntimeIndex(dir, true)
	if err != nil || idx != nil {
		t.Fatalf("disabled: idx=%v err=%v", idx, err)
	}

	t.Setenv("LS_INDEX_BACKEND", "off")
	if idx, err := openRuntimeIndex(dir, false); err != nil || idx != nil {
		t.Fatalf("off: idx=%v err=%v", idx, err)
	}

	t.Setenv("LS_INDEX_BACKEND", "postgres")
	if _, err := openRuntimeIndex(dir, false); err == nil {
		t.Fatalf("expected unsupported backend error")
	}

	t.Setenv("LS_INDEX_BACKEND", "")
	idx, err = openRuntimeIndex(dir, false)
	if err != nil || idx == nil {
		t.Fatalf("sqlite: idx=%v err=%v", idx, err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := os.Stat(indexPath(dir)); err != nil {
		t.Fatalf("index file: %v", err)
	}
}
