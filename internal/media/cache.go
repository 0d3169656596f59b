/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package media

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Cache lays out downloaded and synthesised assets under one directory.
//
//	<dir>/tracks/track_<id>.mp3
//	<dir>/tts/<kind>_<sha256[:16]>.mp3
//	<dir>/podcasts/<name>
type Cache struct {
	Dir string
}

// NewCache returns a cache rooted at dir.
func NewCache(dir string) Cache {
	return Cache{Dir: dir}
}

// TrackPath is the cache location of a catalog track.
func (c Cache) TrackPath(id string) string {
	return filepath.Join(c.Dir, "tracks", fmt.Sprintf("track_%s.mp3", SafeName(id)))
}

// TTSPath is the content-addressed location of a spoken segment.
func (c Cache) TTSPath(kind, text string) string {
	sum := sha256.Sum256([]byte(text))
	return filepath.Join(c.Dir, "tts", fmt.Sprintf("%s_%s.mp3", SafeName(kind), hex.EncodeToString(sum[:])[:16]))
}

// PodcastPath is where a fetched podcast episode is kept.
func (c Cache) PodcastPath(name string) string {
	return filepath.Join(c.Dir, "podcasts", SafeName(name))
}

// Exists reports whether path is a non-empty regular file.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}

// WriteFileAtomic streams r into path through a temp file in the same
// directory so readers never observe a partial asset.
func WriteFileAtomic(path string, r io.Reader) (int64, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create directories: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	n, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, fmt.Errorf("write file: %w", err)
	}
	if n == 0 {
		return 0, fmt.Errorf("write file: empty body")
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return n, fmt.Errorf("publish file: %w", err)
	}
	return n, nil
}

// SafeName strips directory components so a name can't escape its folder.
func SafeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == ".." || name == "/" {
		return "_"
	}
	return name
}
