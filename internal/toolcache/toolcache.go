// Package toolcache locates, downloads, and caches the external
// executables the build pipelines shell out to (sass, tailwindcss,
// wasm-bindgen, wasm-opt), deduplicating concurrent installs of the same
// (application, version) pair. Grounded on crates/tools/src/app.rs and
// src/download.rs.
package toolcache

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/singleflight"

	"github.com/trunkrs/trunk/internal/archive"
	"github.com/trunkrs/trunk/internal/logx"
	"github.com/trunkrs/trunk/internal/trunkerr"
)

// Handle is a resolved tool: its logical name plus the canonical path to
// its executable on disk.
type Handle struct {
	App     Application
	Path    string
	Version *semver.Version
}

// Cache is the process-wide tool cache. A single instance must be shared
// by every pipeline in a build.
type Cache struct {
	mu       sync.Mutex
	resolved map[string]*Handle
	group    singleflight.Group
	baseDir  string
	log      *logx.Logger
	client   *http.Client
}

// New creates a Cache rooted at baseDir (the platform user-cache
// directory's "trunk" subdirectory by convention).
func New(baseDir string, log *logx.Logger) *Cache {
	if log == nil {
		log = logx.Default()
	}
	return &Cache{
		resolved: make(map[string]*Handle),
		baseDir:  baseDir,
		log:      log,
		client:   http.DefaultClient,
	}
}

// DefaultBaseDir resolves the platform user-cache root's trunk
// subdirectory.
func DefaultBaseDir() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "trunk"), nil
}

// Get resolves app at the requested version (empty selects the
// application's pinned default), first checking PATH, then the on-disk
// cache, installing at most once per (app, version) even under
// concurrent callers.
func (c *Cache) Get(app Application, version string, offline bool) (*Handle, error) {
	if version == "" {
		version = app.DefaultVersion()
	}
	key := string(app) + "@" + version

	c.mu.Lock()
	if h, ok := c.resolved[key]; ok {
		c.mu.Unlock()
		return h, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do(key, func() (any, error) {
		return c.resolve(app, version, offline)
	})
	if err != nil {
		return nil, err
	}
	h := v.(*Handle)

	c.mu.Lock()
	c.resolved[key] = h
	c.mu.Unlock()
	return h, nil
}

func (c *Cache) resolve(app Application, version string, offline bool) (*Handle, error) {
	// System-first resolution: an executable already on PATH satisfying
	// the requested version wins, avoiding an unnecessary download.
	if path, err := exec.LookPath(app.Name()); err == nil {
		if sysVer, err := probeVersion(app, path); err == nil {
			if version == "" || versionSatisfies(sysVer, version) {
				return &Handle{App: app, Path: path, Version: sysVer}, nil
			}
		}
	}

	installDir := filepath.Join(c.baseDir, fmt.Sprintf("%s-%s", app.Name(), version))
	execName := app.Name()
	if runtime.GOOS == "windows" {
		execName += ".exe"
	}
	execPath := filepath.Join(installDir, execName)

	if info, err := os.Stat(execPath); err == nil && !info.IsDir() && isExecutable(info) {
		ver, _ := semver.NewVersion(strings.TrimPrefix(version, "v"))
		return &Handle{App: app, Path: execPath, Version: ver}, nil
	}

	if offline {
		return nil, trunkerr.New(trunkerr.ReasonToolchainOpen,
			fmt.Sprintf("%s %s not found and offline mode is set", app.Name(), version))
	}

	if err := c.install(app, version, installDir, execPath); err != nil {
		return nil, err
	}

	ver, _ := semver.NewVersion(strings.TrimPrefix(version, "v"))
	return &Handle{App: app, Path: execPath, Version: ver}, nil
}

func (c *Cache) install(app Application, version, installDir, execPath string) error {
	url, err := DownloadURL(app, version)
	if err != nil {
		return trunkerr.Wrap(trunkerr.ReasonToolchainUnsupportedTarget, string(app), err)
	}

	if err := os.MkdirAll(installDir, 0o755); err != nil {
		return trunkerr.Wrap(trunkerr.ReasonFsWrite, installDir, err)
	}

	execName := app.Name()
	if runtime.GOOS == "windows" {
		execName += ".exe"
	}

	if app.IsSingleBinary() {
		c.log.Start("downloading %s %s", app.Name(), version)
		if err := c.downloadTo(url, execPath); err != nil {
			return err
		}
		if runtime.GOOS != "windows" {
			if err := archive.SetExecutable(execPath); err != nil {
				return trunkerr.Wrap(trunkerr.ReasonToolchainOpen, execPath, err)
			}
		}
		c.log.Success("installed %s %s", app.Name(), version)
		return nil
	}

	tmpFile, err := os.CreateTemp(installDir, "download-*.archive")
	if err != nil {
		return trunkerr.Wrap(trunkerr.ReasonFsWrite, installDir, err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	defer os.Remove(tmpPath)

	c.log.Start("downloading %s %s", app.Name(), version)
	if err := c.downloadTo(url, tmpPath); err != nil {
		return err
	}

	wanted := append([]string{execName}, app.AuxiliaryFiles(runtime.GOOS)...)
	found, err := archive.ExtractFiles(app.ArchiveFormat(runtime.GOOS), tmpPath, installDir, wanted)
	if err != nil {
		return trunkerr.Wrap(trunkerr.ReasonArchiveExtract, tmpPath, err)
	}
	if !found[execName] {
		return trunkerr.New(trunkerr.ReasonArchiveExtract, "executable "+execName+" not found in archive")
	}
	for _, aux := range app.AuxiliaryFiles(runtime.GOOS) {
		if !found[aux] {
			c.log.Info("auxiliary file %s missing from %s archive, continuing", aux, app.Name())
		}
	}

	if runtime.GOOS != "windows" {
		if err := archive.SetExecutable(execPath); err != nil {
			return trunkerr.Wrap(trunkerr.ReasonToolchainOpen, execPath, err)
		}
	}
	c.log.Success("installed %s %s", app.Name(), version)
	return nil
}

func (c *Cache) downloadTo(url, dest string) error {
	resp, err := c.client.Get(url)
	if err != nil {
		return trunkerr.Wrap(trunkerr.ReasonToolchainDownload, url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return trunkerr.New(trunkerr.ReasonToolchainDownload,
			fmt.Sprintf("%s returned status %d", url, resp.StatusCode))
	}

	out, err := os.Create(dest)
	if err != nil {
		return trunkerr.Wrap(trunkerr.ReasonFsWrite, dest, err)
	}
	defer out.Close()

	bar := progressbar.DefaultBytes(resp.ContentLength, filepath.Base(dest))
	if _, err := io.Copy(io.MultiWriter(out, bar), resp.Body); err != nil {
		return trunkerr.Wrap(trunkerr.ReasonToolchainDownload, url, err)
	}
	return nil
}

var versionPattern = regexp.MustCompile(`\d+\.\d+(\.\d+)?`)

func probeVersion(app Application, path string) (*semver.Version, error) {
	out, err := exec.Command(path, app.VersionArg()).Output()
	if err != nil {
		return nil, err
	}
	match := versionPattern.FindString(string(out))
	if match == "" {
		return nil, trunkerr.New(trunkerr.ReasonToolchainVersionParse, string(out))
	}
	return semver.NewVersion(match)
}

func versionSatisfies(have *semver.Version, want string) bool {
	wantVer, err := semver.NewVersion(strings.TrimPrefix(want, "v"))
	if err != nil {
		return true
	}
	return have.Equal(wantVer)
}

func isExecutable(info os.FileInfo) bool {
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode()&0o111 != 0
}
