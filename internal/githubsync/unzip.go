package githubsync

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"
)

// unzippedEntry is one file pulled out of the archive before filtering,
// with its path already stripped of the common top-level directory
// GitHub's zipball always wraps the repo contents in.
type unzippedEntry struct {
	rel     string
	content []byte
}

// unzipArchive reads a zipball into memory, strips the single common
// top-level directory GitHub always adds (e.g. "owner-repo-abc1234/"),
// and sanitizes every entry path against traversal and symlink tricks.
func unzipArchive(data []byte) ([]unzippedEntry, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open zipball: %w", err)
	}

	var names []string
	files := make(map[string]*zip.File, len(reader.File))
	for _, f := range reader.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if f.Mode()&0o170000 == 0o120000 { // symlink
			continue
		}
		clean, ok := sanitizeZipPath(f.Name)
		if !ok {
			continue
		}
		names = append(names, clean)
		files[clean] = f
	}
	sort.Strings(names)

	prefix := commonTopLevelDir(names)

	entries := make([]unzippedEntry, 0, len(names))
	for _, name := range names {
		f := files[name]
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		content, err := readAllLimited(rc, DefaultFileSizeLimit*4)
		closeErr := rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		if closeErr != nil {
			return nil, fmt.Errorf("close %s: %w", name, closeErr)
		}

		rel := strings.TrimPrefix(name, prefix)
		rel = strings.TrimPrefix(rel, "/")
		if rel == "" {
			continue
		}
		entries = append(entries, unzippedEntry{rel: rel, content: content})
	}
	return entries, nil
}

// sanitizeZipPath rejects absolute paths and parent-directory traversal,
// returning the cleaned, slash-separated path.
func sanitizeZipPath(name string) (string, bool) {
	clean := path.Clean(strings.ReplaceAll(name, "\\", "/"))
	if clean == "." || clean == "" {
		return "", false
	}
	if path.IsAbs(clean) {
		return "", false
	}
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", false
	}
	return clean, true
}

// commonTopLevelDir returns the shared first path segment across all
// entries, if every entry has one, so it can be stripped.
func commonTopLevelDir(names []string) string {
	if len(names) == 0 {
		return ""
	}
	first := names[0]
	idx := strings.Index(first, "/")
	if idx < 0 {
		return ""
	}
	top := first[:idx]
	for _, n := range names[1:] {
		if !strings.HasPrefix(n, top+"/") {
			return ""
		}
	}
	return top
}

func readAllLimited(r interface{ Read([]byte) (int, error) }, limit int64) ([]byte, error) {
	buf := &bytes.Buffer{}
	_, err := buf.ReadFrom(&limitedReader{r: r, n: limit})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type limitedReader struct {
	r interface{ Read([]byte) (int, error) }
	n int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.n <= 0 {
		return 0, fmt.Errorf("file exceeds read limit")
	}
	if int64(len(p)) > l.n {
		p = p[:l.n]
	}
	n, err := l.r.Read(p)
	l.n -= int64(n)
	return n, err
}

// shaFromDirName recovers a 40-or-7-char hex commit SHA embedded in a
// web-archive top-level directory name like "owner-repo-abc1234".
var hexTailPattern = regexp.MustCompile(`[0-9a-f]{7,40}$`)

func shaFromDirName(dir string) string {
	return hexTailPattern.FindString(dir)
}

// shaFromURL recovers a hex commit SHA from the tail of a candidate URL,
// used as a fallback when no response header carried one.
func shaFromURL(url string) string {
	trimmed := strings.TrimSuffix(url, ".zip")
	return hexTailPattern.FindString(trimmed)
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
