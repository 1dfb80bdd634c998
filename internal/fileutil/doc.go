// Package fileutil provides file operation utilities for directory and file management.
//
// EnsureDir creates directories recursively, and CopyFile copies files with
// support for explicit permissions, fsync, and atomic writes via temp-file-then-rename.
// Within Joshua, internal/sandbox uses EnsureDir and EnsureDirForFile while
// extracting a test package; CopyFile has no caller outside its tests.
package fileutil
