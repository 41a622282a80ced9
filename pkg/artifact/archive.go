package artifact

import (
	"archive/tar"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hed1ad/tsguard/pkg/errors"
)

// Archive packs the contents of dir into a gzipped tarball at dest,
// replacing any prior file there. The tarball is built at a temporary path
// next to dest and renamed into place only once complete, so a concurrent
// reader sees either the previous artifact or the new one, never a partial
// write. The temporary file is removed on every failure path.
func Archive(dir, dest string) error {
	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".tmp-*")
	if err != nil {
		return errors.Wrapf(err, "creating temporary archive for %s", dest)
	}
	tmpPath := tmp.Name()

	if err := pack(dir, tmp); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errors.Wrapf(err, "packing %s", dir)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.Wrapf(err, "closing temporary archive for %s", dest)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return errors.Wrapf(err, "replacing %s", dest)
	}
	return nil
}

// pack writes dir as a gzipped tarball with paths relative to dir.
func pack(dir string, w io.Writer) error {
	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)

	err := filepath.Walk(dir, func(itemPath string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return errors.Errorf("cannot pack symlink %s", itemPath)
		}

		relpath, err := filepath.Rel(dir, itemPath)
		if err != nil {
			return err
		}
		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		header.Name = relpath
		if err := tw.WriteHeader(header); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		f, err := os.Open(itemPath)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return err
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return gz.Close()
}

// Unarchive unpacks an archive written by Archive into dir.
func Unarchive(src, dir string) error {
	f, err := open(src)
	if err != nil {
		return err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "reading %s", src)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "reading %s", src)
		}

		clean := filepath.Clean(header.Name)
		if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
			return errors.Errorf("entry %s in %s escapes the extraction directory", header.Name, src)
		}
		name := filepath.Join(dir, clean)
		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(name, os.FileMode(header.Mode)); err != nil {
				return errors.Wrapf(err, "unpacking %s", src)
			}
		case tar.TypeReg:
			if err := extractFile(name, os.FileMode(header.Mode), tr); err != nil {
				return errors.Wrapf(err, "unpacking %s", src)
			}
		default:
			return errors.Errorf("unexpected entry type %c for %s in %s", header.Typeflag, header.Name, src)
		}
	}
}

func extractFile(name string, mode os.FileMode, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(name), 0755); err != nil {
		return err
	}
	w, err := os.Create(name)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return os.Chmod(name, mode)
}
