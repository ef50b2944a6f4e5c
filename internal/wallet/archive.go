package wallet

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const archiveCopyName = "temp.zip"

// extractArchive copies the credential archive into dir and unpacks every
// entry into dir under its stored name.
//
// Entry names are not checked for "../" segments: a crafted archive can write
// outside dir. Only archives from a trusted download should be used.
func extractArchive(archivePath, dir string) error {
	tmpZip := filepath.Join(dir, archiveCopyName)
	if err := copyFile(archivePath, tmpZip); err != nil {
		return err
	}

	zr, err := zip.OpenReader(tmpZip)
	if err != nil {
		return fmt.Errorf("failed to open credential archive %s: %w", archivePath, err)
	}
	defer zr.Close()

	for _, entry := range zr.File {
		dst := filepath.Join(dir, entry.Name)
		if strings.HasSuffix(entry.Name, "/") {
			if err := os.MkdirAll(dst, 0o700); err != nil {
				return err
			}
			continue
		}
		if err := extractEntry(entry, dst); err != nil {
			return fmt.Errorf("failed to extract %s: %w", entry.Name, err)
		}
	}
	return nil
}

func extractEntry(entry *zip.File, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o700); err != nil {
		return err
	}
	rc, err := entry.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	f, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, rc); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open credential archive: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy credential archive: %w", err)
	}
	return out.Close()
}
