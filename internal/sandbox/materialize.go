package sandbox

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/joshua-project/joshua/internal/fileutil"
)

// testBinaryName is the executable the sandbox always invokes, regardless
// of how the package was packed.
const testBinaryName = "joshua_test"

// gzipMagic is the two-byte gzip header, used to tell a gzipped tar archive
// apart from a bare executable.
var gzipMagic = []byte{0x1f, 0x8b}

// materializePackage writes pkg into dir as a runnable joshua_test: if pkg
// looks like a gzipped tar archive, it is extracted in place; otherwise it
// is written verbatim as dir/joshua_test and made executable.
func materializePackage(dir string, pkg []byte) error {
	if len(pkg) >= 2 && bytes.Equal(pkg[:2], gzipMagic) {
		return extractTarGz(dir, pkg)
	}
	path := filepath.Join(dir, testBinaryName)
	if err := os.WriteFile(path, pkg, 0o755); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func extractTarGz(dir string, pkg []byte) error {
	gzr, err := gzip.NewReader(bytes.NewReader(pkg))
	if err != nil {
		return fmt.Errorf("open gzip package: %w", err)
	}
	defer gzr.Close()

	tr := tar.NewReader(gzr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read tar entry: %w", err)
		}

		target := filepath.Join(dir, filepath.Clean(hdr.Name))
		if !withinDir(dir, target) {
			return fmt.Errorf("package entry %q escapes extraction root", hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := fileutil.EnsureDir(target); err != nil {
				return fmt.Errorf("create directory %s: %w", target, err)
			}
		case tar.TypeReg:
			if err := fileutil.EnsureDirForFile(target); err != nil {
				return fmt.Errorf("create parent directory for %s: %w", target, err)
			}
			if err := writeTarFile(target, tr, os.FileMode(hdr.Mode)); err != nil {
				return err
			}
		default:
			// Symlinks, hardlinks, devices: a joshua_test package has no
			// legitimate use for these; skip rather than fail the whole
			// extraction on an unexpected entry type.
		}
	}

	if _, err := os.Stat(filepath.Join(dir, testBinaryName)); err != nil {
		return fmt.Errorf("package did not contain %s at its top level: %w", testBinaryName, err)
	}
	return nil
}

func writeTarFile(target string, r io.Reader, mode os.FileMode) error {
	if mode == 0 {
		mode = 0o644
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("create %s: %w", target, err)
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		return fmt.Errorf("write %s: %w", target, err)
	}
	return nil
}

func withinDir(dir, target string) bool {
	rel, err := filepath.Rel(dir, target)
	if err != nil {
		return false
	}
	return rel != ".." && !bytesHasPrefix(rel, "../")
}

func bytesHasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
