package runlog

import (
	"archive/tar"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/banshee-data/footfall/internal/fsutil"
	"github.com/banshee-data/footfall/internal/security"
)

// ArchiveDir writes every regular file under dir into a gzip-compressed tar
// at dest, replacing dest atomically. Entry names are relative to dir with
// the directory's sanitized base name as prefix. Hidden files (temp snapshots) and
// dest itself are skipped. It returns the number of files archived.
func ArchiveDir(fsys fsutil.FileSystem, dir, dest string) (int, error) {
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	dir = filepath.Clean(dir)
	dest = filepath.Clean(dest)

	files, err := listFiles(fsys, dir, dest)
	if err != nil {
		return 0, err
	}

	prefix := security.SanitizeFilename(filepath.Base(dir))
	err = fsutil.WriteFileAtomic(fsys, dest, func(w io.Writer) error {
		gz := gzip.NewWriter(w)
		tw := tar.NewWriter(gz)
		for _, f := range files {
			rel, err := filepath.Rel(dir, f)
			if err != nil {
				return err
			}
			if err := addFile(fsys, tw, f, path.Join(prefix, filepath.ToSlash(rel))); err != nil {
				return err
			}
		}
		if err := tw.Close(); err != nil {
			return fmt.Errorf("close tar: %w", err)
		}
		return gz.Close()
	})
	if err != nil {
		return 0, fmt.Errorf("archive %s: %w", dir, err)
	}
	return len(files), nil
}

func listFiles(fsys fsutil.FileSystem, dir, skip string) ([]string, error) {
	entries, err := fsys.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	var out []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		p := filepath.Join(dir, e.Name())
		if p == skip {
			continue
		}
		if e.IsDir() {
			sub, err := listFiles(fsys, p, skip)
			if err != nil {
				return nil, err
			}
			out = append(out, sub...)
			continue
		}
		if e.Type().IsRegular() {
			out = append(out, p)
		}
	}
	return out, nil
}

func addFile(fsys fsutil.FileSystem, tw *tar.Writer, name, entry string) error {
	data, err := fsys.ReadFile(name)
	if err != nil {
		return err
	}
	info, err := fsys.Stat(name)
	if err != nil {
		return err
	}
	hdr := &tar.Header{
		Name:    entry,
		Mode:    int64(info.Mode().Perm()),
		Size:    int64(len(data)),
		ModTime: info.ModTime(),
	}
	if hdr.Mode == 0 {
		hdr.Mode = 0644
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("tar header %s: %w", entry, err)
	}
	_, err = tw.Write(data)
	return err
}

// ReadArchive lists the entry names and contents of a tarball written by
// ArchiveDir. Entries that would escape the archive root are rejected.
func ReadArchive(r io.Reader) (map[string][]byte, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer gz.Close()

	out := make(map[string][]byte)
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		if err := security.ValidateEntryName(hdr.Name); err != nil {
			return nil, err
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, err
		}
		out[hdr.Name] = data
	}
}
