package fsutil

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOSFileSystem_Exists(t *testing.T) {
	fs := OSFileSystem{}

	if !fs.Exists("filesystem.go") {
		t.Error("expected filesystem.go to exist")
	}

	if fs.Exists("nonexistent_file_xyz.go") {
		t.Error("expected nonexistent file to not exist")
	}
}

func TestOSFileSystem_WriteFileAtomic(t *testing.T) {
	fs := OSFileSystem{}
	dir := t.TempDir()
	target := filepath.Join(dir, "outputs", "output_data.csv")

	err := WriteFileAtomic(fs, target, func(w io.Writer) error {
		_, err := io.WriteString(w, "first")
		return err
	})
	require.NoError(t, err)

	err = WriteFileAtomic(fs, target, func(w io.Writer) error {
		_, err := io.WriteString(w, "second")
		return err
	})
	require.NoError(t, err)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	entries, err := os.ReadDir(filepath.Dir(target))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestOSFileSystem_WriteFileAtomicFailureKeepsPrevious(t *testing.T) {
	fs := OSFileSystem{}
	dir := t.TempDir()
	target := filepath.Join(dir, "snapshot.csv")
	require.NoError(t, os.WriteFile(target, []byte("previous"), 0644))

	boom := errors.New("encoder exploded")
	err := WriteFileAtomic(fs, target, func(w io.Writer) error {
		io.WriteString(w, "partial")
		return boom
	})
	require.ErrorIs(t, err, boom)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "previous", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestMemoryFileSystem_WriteAndRead(t *testing.T) {
	mfs := NewMemoryFileSystem()

	testData := []byte("hello, world")
	err := mfs.WriteFile("/test.txt", testData, 0644)
	if err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	data, err := mfs.ReadFile("/test.txt")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}

	if string(data) != string(testData) {
		t.Errorf("expected %q, got %q", testData, data)
	}
}

func TestMemoryFileSystem_Open(t *testing.T) {
	mfs := NewMemoryFileSystem()

	err := mfs.WriteFile("/opentest.txt", []byte("open me"), 0644)
	if err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	f, err := mfs.Open("/opentest.txt")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}

	if string(data) != "open me" {
		t.Errorf("expected 'open me', got %q", data)
	}
}

func TestMemoryFileSystem_OpenNonExistent(t *testing.T) {
	mfs := NewMemoryFileSystem()

	_, err := mfs.Open("/nonexistent.txt")
	if err == nil {
		t.Error("expected error for non-existent file")
	}
}

func TestMemoryFileSystem_StatDir(t *testing.T) {
	mfs := NewMemoryFileSystem()

	err := mfs.MkdirAll("/testdir/subdir", 0755)
	if err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}

	info, err := mfs.Stat("/testdir/subdir")
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}

	if !info.IsDir() {
		t.Error("expected directory")
	}
	if !mfs.Exists("/testdir") {
		t.Error("expected parent directory to exist")
	}
}

func TestMemoryFileSystem_ReadDir(t *testing.T) {
	mfs := NewMemoryFileSystem()
	require.NoError(t, mfs.MkdirAll("/frames/nested", 0755))
	require.NoError(t, mfs.WriteFile("/frames/0002.png", []byte("b"), 0644))
	require.NoError(t, mfs.WriteFile("/frames/0001.png", []byte("a"), 0644))
	require.NoError(t, mfs.WriteFile("/elsewhere/0003.png", []byte("c"), 0644))

	entries, err := mfs.ReadDir("/frames")
	require.NoError(t, err)

	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Equal(t, []string{"0001.png", "0002.png", "nested"}, names)
	assert.True(t, entries[2].IsDir())

	_, err = mfs.ReadDir("/missing")
	assert.Error(t, err)
}

func TestMemoryFileSystem_Rename(t *testing.T) {
	mfs := NewMemoryFileSystem()
	require.NoError(t, mfs.WriteFile("/a.txt", []byte("new"), 0644))
	require.NoError(t, mfs.WriteFile("/b.txt", []byte("old"), 0644))

	require.NoError(t, mfs.Rename("/a.txt", "/b.txt"))

	assert.False(t, mfs.Exists("/a.txt"))
	data, err := mfs.ReadFile("/b.txt")
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))

	err = mfs.Rename("/missing.txt", "/b.txt")
	assert.Error(t, err)
}

func TestMemoryFileSystem_CreateTempNames(t *testing.T) {
	mfs := NewMemoryFileSystem()

	a, err := mfs.CreateTemp("/out", ".snap.tmp-*")
	require.NoError(t, err)
	b, err := mfs.CreateTemp("/out", ".snap.tmp-*")
	require.NoError(t, err)

	assert.NotEqual(t, a.Name(), b.Name())
	assert.True(t, strings.HasPrefix(filepath.Base(a.Name()), ".snap.tmp-"))
}

func TestWriteFileAtomic_Faults(t *testing.T) {
	boom := errors.New("injected")

	for _, op := range []string{OpCreateTemp, OpWrite, OpRename} {
		t.Run(op, func(t *testing.T) {
			mfs := NewMemoryFileSystem()
			require.NoError(t, WriteFileAtomic(mfs, "/out/data.csv", func(w io.Writer) error {
				_, err := io.WriteString(w, "good")
				return err
			}))

			mfs.SetFault(op, boom)
			err := WriteFileAtomic(mfs, "/out/data.csv", func(w io.Writer) error {
				_, err := io.WriteString(w, "bad")
				return err
			})
			require.ErrorIs(t, err, boom)

			mfs.SetFault(op, nil)
			data, err := mfs.ReadFile("/out/data.csv")
			require.NoError(t, err)
			assert.Equal(t, "good", string(data))
			assert.Equal(t, []string{"/out/data.csv"}, mfs.Files())
		})
	}
}
