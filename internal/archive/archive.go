// Package archive extracts tool distribution archives (tar.gz, zip)
// into a destination directory, stripping the archive's leading path
// component the way tool releases nest everything under one top-level
// directory. Grounded on crates/util/src/archive.rs.
package archive

import (
	"archive/tar"
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/trunkrs/trunk/internal/trunkerr"
)

// Format names a supported archive container.
type Format string

const (
	TarGz Format = "tar.gz"
	Zip   Format = "zip"
)

// ExtractFiles extracts only the entries named in wanted (relative paths
// inside the archive, after stripping the leading path component) into
// destDir, skipping anything not requested. Missing wanted entries are
// reported back so the caller can warn rather than fail (auxiliary tool
// files, e.g. libbinaryen, are optional).
func ExtractFiles(format Format, archivePath, destDir string, wanted []string) (found map[string]bool, err error) {
	found = make(map[string]bool, len(wanted))
	want := make(map[string]bool, len(wanted))
	for _, w := range wanted {
		want[filepath.ToSlash(w)] = true
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, trunkerr.Wrap(trunkerr.ReasonFsWrite, destDir, err)
	}

	switch format {
	case TarGz:
		err = extractTarGz(archivePath, destDir, want, found)
	case Zip:
		err = extractZip(archivePath, destDir, want, found)
	default:
		err = trunkerr.New(trunkerr.ReasonArchiveExtract, "unknown archive format: "+string(format))
	}
	if err != nil {
		return nil, err
	}
	return found, nil
}

// stripLeadingComponent removes the first path segment (the archive's
// single top-level directory) from an archive-internal path.
func stripLeadingComponent(name string) string {
	name = filepath.ToSlash(name)
	parts := strings.SplitN(name, "/", 2)
	if len(parts) == 2 {
		return parts[1]
	}
	return ""
}

func extractTarGz(archivePath, destDir string, want map[string]bool, found map[string]bool) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return trunkerr.Wrap(trunkerr.ReasonArchiveExtract, archivePath, err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return trunkerr.Wrap(trunkerr.ReasonArchiveExtract, archivePath, err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return trunkerr.Wrap(trunkerr.ReasonArchiveExtract, archivePath, err)
		}
		rel := stripLeadingComponent(hdr.Name)
		if rel == "" || !want[rel] {
			continue
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		if err := writeFile(filepath.Join(destDir, filepath.FromSlash(rel)), tr, os.FileMode(hdr.Mode)); err != nil {
			return err
		}
		found[rel] = true
	}
	return nil
}

func extractZip(archivePath, destDir string, want map[string]bool, found map[string]bool) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return trunkerr.Wrap(trunkerr.ReasonArchiveExtract, archivePath, err)
	}
	defer zr.Close()

	for _, zf := range zr.File {
		rel := stripLeadingComponent(zf.Name)
		if rel == "" || !want[rel] {
			continue
		}
		if zf.FileInfo().IsDir() {
			continue
		}
		rc, err := zf.Open()
		if err != nil {
			return trunkerr.Wrap(trunkerr.ReasonArchiveExtract, archivePath, err)
		}
		err = writeFile(filepath.Join(destDir, filepath.FromSlash(rel)), rc, zf.Mode())
		rc.Close()
		if err != nil {
			return err
		}
		found[rel] = true
	}
	return nil
}

func writeFile(dest string, r io.Reader, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return trunkerr.Wrap(trunkerr.ReasonFsWrite, dest, err)
	}
	if mode == 0 {
		mode = 0o644
	}
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return trunkerr.Wrap(trunkerr.ReasonFsWrite, dest, err)
	}
	defer out.Close()
	if _, err := io.Copy(out, r); err != nil {
		return trunkerr.Wrap(trunkerr.ReasonFsWrite, dest, err)
	}
	return nil
}

// SetExecutable sets the executable bit (0755) on path, on Unix.
func SetExecutable(path string) error {
	return os.Chmod(path, 0o755)
}
