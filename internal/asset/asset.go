// Package asset implements AssetFile, the canonicalized file handle
// shared by every copy/hash pipeline, and AssetInput, the immutable
// record the dispatcher hands to each pipeline's try_accept.
package asset

import (
	"hash/fnv"
	"io"
	"os"
	"path/filepath"

	"github.com/trunkrs/trunk/internal/trunkerr"
)

// Input is an immutable record describing one `data-trunk` element
// discovered by the dispatcher. Attrs preserves original attribute order
// so pipelines can rewrite idempotently.
type Input struct {
	ID          int
	Kind        string
	Attrs       *Attrs
	ManifestDir string
	IsScript    bool
}

// File is a canonicalized, existing-on-disk asset handle. It is
// immutable once constructed and owned exclusively by the pipeline that
// created it.
type File struct {
	Path     string
	FileName string
	FileStem string
	Ext      string
}

// Open canonicalizes path (joined against relDir if not already
// absolute) and validates it names an existing file with both a name and
// a stem.
func Open(relDir, rawPath string) (*File, error) {
	path := rawPath
	if !filepath.IsAbs(path) {
		path = filepath.Join(relDir, path)
	}

	canon, err := filepath.Abs(path)
	if err != nil {
		return nil, trunkerr.Wrap(trunkerr.ReasonFsNotExist, path, err)
	}
	canon, err = filepath.EvalSymlinks(canon)
	if err != nil {
		return nil, trunkerr.Wrap(trunkerr.ReasonFsNotExist, path, err)
	}

	info, err := os.Stat(canon)
	if err != nil || info.IsDir() {
		return nil, trunkerr.New(trunkerr.ReasonFsNotExist, canon)
	}

	fileName := filepath.Base(canon)
	if fileName == "" || fileName == "." || fileName == string(filepath.Separator) {
		return nil, trunkerr.New(trunkerr.ReasonPathNoFileName, canon)
	}
	ext := filepath.Ext(fileName)
	stem := fileName[:len(fileName)-len(ext)]
	if stem == "" {
		return nil, trunkerr.New(trunkerr.ReasonPathNoFileStem, canon)
	}
	if ext != "" {
		ext = ext[1:]
	}

	return &File{Path: canon, FileName: fileName, FileStem: stem, Ext: ext}, nil
}

// Copy copies the asset into dir, optionally hashing its content into
// the output filename as "stem-<hex>.ext". It returns the resulting base
// file name (no directory component).
func (f *File) Copy(dir string, withHash bool) (string, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return "", trunkerr.Wrap(trunkerr.ReasonFsRead, f.Path, err)
	}

	name := f.FileName
	if withHash {
		name = HashedName(f.FileStem, f.Ext, data)
	}

	dest := filepath.Join(dir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", trunkerr.Wrap(trunkerr.ReasonFsWrite, dir, err)
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return "", trunkerr.Wrap(trunkerr.ReasonFsCopy, f.Path+" -> "+dest, err)
	}
	return name, nil
}

// ReadToString reads the asset's entire content as a string.
func (f *File) ReadToString() (string, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return "", trunkerr.Wrap(trunkerr.ReasonFsRead, f.Path, err)
	}
	return string(data), nil
}

// HashedName formats "stem-<hex>.ext" (or "stem-<hex>" if ext is empty)
// using a fast non-cryptographic content hash, mirroring the upstream
// seahash-based naming used for content-addressed asset files.
func HashedName(stem, ext string, data []byte) string {
	h := fnv.New64a()
	_, _ = h.Write(data)
	sum := h.Sum64()
	if ext == "" {
		return formatHash(stem, sum)
	}
	return formatHash(stem, sum) + "." + ext
}

func formatHash(stem string, sum uint64) string {
	const hexDigits = "0123456789abcdef"
	buf := make([]byte, 16)
	for i := 15; i >= 0; i-- {
		buf[i] = hexDigits[sum&0xf]
		sum >>= 4
	}
	return stem + "-" + string(buf)
}

// CopyStream copies src into dst, preserving content but allowing the
// caller to supply a destination writer instead of a path.
func CopyStream(dst io.Writer, src io.Reader) (int64, error) {
	return io.Copy(dst, src)
}
