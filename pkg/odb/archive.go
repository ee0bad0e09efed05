package odb

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"

	"github.com/OpenTraceLab/OpenTraceExport/internal/fsutil"
)

// jobFile is one entry of the job tree. Dir entries carry no data.
type jobFile struct {
	Path string
	Dir  bool
	Data []byte
}

// writeTree writes the job below root
func writeTree(root string, files []jobFile) error {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", root, err)
	}
	for _, f := range files {
		p := filepath.Join(root, filepath.FromSlash(f.Path))
		if f.Dir {
			if err := os.MkdirAll(p, 0o755); err != nil {
				return fmt.Errorf("create %s: %w", p, err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return fmt.Errorf("create %s: %w", filepath.Dir(p), err)
		}
		data := f.Data
		if err := fsutil.WriteDirect(p, func(w io.Writer) error {
			_, err := w.Write(data)
			return err
		}); err != nil {
			return err
		}
	}
	return nil
}

// writeTGZ packs the job as a gzip compressed tarball rooted at name
func writeTGZ(w io.Writer, name string, files []jobFile, mtime time.Time) error {
	gz := gzip.NewWriter(w)
	gz.Name = name + ".tar"
	gz.ModTime = mtime
	tw := tar.NewWriter(gz)

	if err := tw.WriteHeader(&tar.Header{Typeflag: tar.TypeDir, Name: name + "/", Mode: 0o755, ModTime: mtime}); err != nil {
		return fmt.Errorf("tar %s: %w", name, err)
	}
	for _, f := range files {
		hdr := &tar.Header{Name: path.Join(name, f.Path), ModTime: mtime}
		if f.Dir {
			hdr.Typeflag, hdr.Name, hdr.Mode = tar.TypeDir, hdr.Name+"/", 0o755
		} else {
			hdr.Typeflag, hdr.Mode, hdr.Size = tar.TypeReg, 0o644, int64(len(f.Data))
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("tar %s: %w", hdr.Name, err)
		}
		if !f.Dir {
			if _, err := tw.Write(f.Data); err != nil {
				return fmt.Errorf("tar %s: %w", hdr.Name, err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("close tar: %w", err)
	}
	return gz.Close()
}

// writeZIP packs the job as a zip archive rooted at name
func writeZIP(w io.Writer, name string, files []jobFile, mtime time.Time) error {
	zw := zip.NewWriter(w)
	for _, f := range files {
		hdr := &zip.FileHeader{Name: path.Join(name, f.Path), Method: zip.Deflate, Modified: mtime}
		if f.Dir {
			hdr.Name += "/"
			hdr.Method = zip.Store
		}
		fw, err := zw.CreateHeader(hdr)
		if err != nil {
			return fmt.Errorf("zip %s: %w", hdr.Name, err)
		}
		if !f.Dir {
			if _, err := fw.Write(f.Data); err != nil {
				return fmt.Errorf("zip %s: %w", hdr.Name, err)
			}
		}
	}
	return zw.Close()
}
