package githubsync

import (
	"path"
	"strings"
)

// excludedDirSegments skips any path containing one of these directory
// names, regardless of depth — the same hidden/vendor/build directories
// a local filesystem scan refuses to walk into.
var excludedDirSegments = map[string]bool{
	".git":         true,
	".github":      true,
	".cache":       true,
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
	"dist":         true,
	"build":        true,
	".aws":         true,
	".gcp":         true,
	".azure":       true,
	".ssh":         true,
}

// excludedBasenames rejects well-known lockfiles no documentation index
// needs to ingest.
var excludedBasenames = map[string]bool{
	"package-lock.json": true,
	"yarn.lock":         true,
	"pnpm-lock.yaml":    true,
	"go.sum":            true,
	"Cargo.lock":        true,
	"composer.lock":     true,
}

// excludedSuffixes rejects generated/minified/log output by filename
// suffix.
var excludedSuffixes = []string{
	".min.js", ".min.css", ".bundle.js", ".bundle.css", ".log", ".bak", "~",
}

// binaryExtensions are never treated as text, regardless of content.
var binaryExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".bmp": true, ".ico": true,
	".webp": true, // svg is excluded here too: XML but never documentation content
	".svg":  true,
	".pdf": true, ".zip": true, ".tar": true, ".gz": true, ".bz2": true, ".7z": true,
	".woff": true, ".woff2": true, ".ttf": true, ".otf": true, ".eot": true,
	".so": true, ".dylib": true, ".dll": true, ".exe": true, ".bin": true,
	".mp3": true, ".mp4": true, ".mov": true, ".avi": true, ".wasm": true,
	".class": true, ".jar": true, ".pyc": true,
}

// sensitiveBasenamePatterns are substrings that mark a file as a
// credential and never included in the index, even if it would
// otherwise pass the text/size filters.
var sensitiveBasenamePatterns = []string{
	".env", "credentials", "secrets", "password", ".netrc", ".npmrc", ".pypirc",
	"id_rsa", "id_dsa", "id_ecdsa", "id_ed25519",
}

var sensitiveExtensions = map[string]bool{
	".pem": true, ".key": true, ".p12": true, ".pfx": true,
}

// extensionLanguage maps a file extension to a language tag. Files
// without an extension match by exact basename instead (Dockerfile,
// Makefile, ...).
var extensionLanguage = map[string]string{
	".go":         "go",
	".js":         "javascript",
	".jsx":        "javascript",
	".mjs":        "javascript",
	".ts":         "typescript",
	".tsx":        "typescript",
	".py":         "python",
	".pyi":        "python",
	".rb":         "ruby",
	".rs":         "rust",
	".java":       "java",
	".kt":         "kotlin",
	".c":          "c",
	".h":          "c",
	".cpp":        "cpp",
	".hpp":        "cpp",
	".cc":         "cpp",
	".cs":         "csharp",
	".swift":      "swift",
	".php":        "php",
	".scala":      "scala",
	".sh":         "shell",
	".bash":       "shell",
	".md":         "markdown",
	".mdx":        "markdown",
	".markdown":   "markdown",
	".rst":        "markdown",
	".txt":        "text",
	".json":       "json",
	".yaml":       "yaml",
	".yml":        "yaml",
	".toml":       "toml",
	".xml":        "xml",
	".proto":      "protobuf",
	".graphql":    "graphql",
	".sql":        "sql",
	".html":       "html",
	".htm":        "html",
	".css":        "css",
	".scss":       "scss",
}

var basenameLanguage = map[string]string{
	"Dockerfile": "dockerfile",
	"Makefile":   "makefile",
	"Rakefile":   "ruby",
	"Gemfile":    "ruby",
}

// detectLanguage resolves a repo-relative path to a language tag, or ""
// if the file isn't one of the recognized source/doc types.
func detectLanguage(relPath string) string {
	base := path.Base(relPath)
	if lang, ok := basenameLanguage[base]; ok {
		return lang
	}
	ext := path.Ext(base)
	if lang, ok := extensionLanguage[ext]; ok {
		return lang
	}
	return ""
}

// isExcludedDir reports whether relPath passes through a directory this
// archive walk never descends into.
func isExcludedDir(relPath string) bool {
	for _, seg := range strings.Split(relPath, "/") {
		if excludedDirSegments[seg] {
			return true
		}
	}
	return false
}

// classify decides whether relPath should be kept, and if not, why.
// Every rejection carries a reason; a file with no recognized text
// extension is reported as SkipNotText.
func classify(relPath string, size int64, maxFileSize int64) (ok bool, reason SkipReason) {
	if isExcludedDir(relPath) {
		return false, SkipExcludedDir
	}

	base := path.Base(relPath)
	lower := strings.ToLower(base)

	if excludedBasenames[base] {
		return false, SkipExcluded
	}
	for _, suffix := range excludedSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return false, SkipExcluded
		}
	}
	for _, pattern := range sensitiveBasenamePatterns {
		if strings.Contains(lower, pattern) {
			return false, SkipSensitive
		}
	}
	ext := path.Ext(lower)
	if sensitiveExtensions[ext] {
		return false, SkipSensitive
	}
	if binaryExtensions[ext] {
		return false, SkipBinary
	}

	lang := detectLanguage(relPath)
	if lang == "" {
		return false, SkipNotText
	}

	if maxFileSize <= 0 {
		maxFileSize = DefaultFileSizeLimit
	}
	if size > maxFileSize {
		return false, SkipTooLarge
	}

	return true, ""
}
