// Package adapter contains the infrastructure adapters of the storyteller CLI:
// filesystem access, report and session persistence, and debug sessions.
package adapter

import (
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	m "github.com/mouse-blink/storyteller/internal/model"
)

// SourceFSAdapter abstracts the filesystem operations the commands rely on
// when loading user sources.
type SourceFSAdapter interface {
	// ReadDocument loads a source file and detects its language from the extension.
	ReadDocument(path m.Path) (m.Document, error)

	// Resolve expands files, directories ("dir/..." for recursion) and
	// doublestar globs into a deduplicated list of source files.
	Resolve(patterns []string) ([]m.Path, error)

	// Walk traverses the provided root path. When recursive is false the
	// implementation limits itself to the root directory.
	Walk(root m.Path, recursive bool, fn FilepathWalkFunc) error

	// ReadFile loads a file from disk and returns its contents.
	ReadFile(path m.Path) ([]byte, error)

	// HashFile returns the SHA-256 fingerprint of the file at path.
	HashFile(path m.Path) (string, error)

	// FileInfo returns metadata for a path.
	FileInfo(path m.Path) (os.FileInfo, error)
}

// FilepathWalkFunc mirrors the callback shape used by filepath.Walk.
type FilepathWalkFunc func(path string, info os.FileInfo, err error) error

var languageByExt = map[string]m.Language{
	".js":   m.LanguageJavaScript,
	".mjs":  m.LanguageJavaScript,
	".cjs":  m.LanguageJavaScript,
	".ts":   m.LanguageTypeScript,
	".mts":  m.LanguageTypeScript,
	".jsx":  m.LanguageJavaScriptReact,
	".tsx":  m.LanguageTypeScriptReact,
	".py":   m.LanguagePython,
	".java": m.LanguageJava,
	".cpp":  m.LanguageCpp,
	".cc":   m.LanguageCpp,
	".hpp":  m.LanguageCpp,
	".c":    m.LanguageC,
	".h":    m.LanguageC,
	".cs":   m.LanguageCSharp,
}

// LanguageOf returns the language for a file name, plaintext when unknown.
func LanguageOf(path string) m.Language {
	if lang, ok := languageByExt[strings.ToLower(filepath.Ext(path))]; ok {
		return lang
	}

	return m.LanguagePlainText
}

// LocalSourceFSAdapter is the os-backed SourceFSAdapter.
type LocalSourceFSAdapter struct{}

// NewLocalSourceFSAdapter constructs a LocalSourceFSAdapter instance.
func NewLocalSourceFSAdapter() *LocalSourceFSAdapter {
	return &LocalSourceFSAdapter{}
}

// ReadDocument loads the file at path into a Document.
func (a *LocalSourceFSAdapter) ReadDocument(path m.Path) (m.Document, error) {
	absPath, err := filepath.Abs(string(path))
	if err != nil {
		return m.Document{}, fmt.Errorf("resolve %s: %w", path, err)
	}

	info, err := a.FileInfo(m.Path(absPath))
	if err != nil {
		return m.Document{}, fmt.Errorf("read document: %w", err)
	}

	if info.IsDir() {
		return m.Document{}, fmt.Errorf("read document: %s is a directory", path)
	}

	src, err := a.ReadFile(m.Path(absPath))
	if err != nil {
		return m.Document{}, fmt.Errorf("read document: %w", err)
	}

	return m.Document{
		Path:     m.Path(absPath),
		Language: LanguageOf(absPath),
		Text:     strings.ReplaceAll(string(src), "\r\n", "\n"),
	}, nil
}

// Resolve expands patterns into source files.
func (a *LocalSourceFSAdapter) Resolve(patterns []string) ([]m.Path, error) {
	if len(patterns) == 0 {
		return []m.Path{}, nil
	}

	seen := make(map[string]struct{})
	files := []m.Path{}

	add := func(path string) error {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return err
		}

		if _, exists := seen[absPath]; exists {
			return nil
		}

		seen[absPath] = struct{}{}
		files = append(files, m.Path(absPath))

		return nil
	}

	for _, pattern := range patterns {
		if isGlob(pattern) {
			matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
			if err != nil {
				return nil, fmt.Errorf("glob %q: %w", pattern, err)
			}

			for _, match := range matches {
				if err := add(match); err != nil {
					return nil, err
				}
			}

			continue
		}

		rootPath, recursive, err := normalizeRootPath(pattern)
		if err != nil {
			return nil, err
		}

		info, err := a.FileInfo(m.Path(rootPath))
		if err != nil {
			return nil, fmt.Errorf("root path error: %w", err)
		}

		if !info.IsDir() {
			if err := add(rootPath); err != nil {
				return nil, err
			}

			continue
		}

		err = a.Walk(m.Path(rootPath), recursive, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}

			if info.IsDir() {
				if path != rootPath && skippedDir(info.Name()) {
					return filepath.SkipDir
				}

				return nil
			}

			if LanguageOf(path) == m.LanguagePlainText {
				return nil
			}

			return add(path)
		})
		if err != nil {
			return nil, err
		}
	}

	return files, nil
}

// Walk iterates over files under root, optionally descending into subdirectories.
func (a *LocalSourceFSAdapter) Walk(root m.Path, recursive bool, fn FilepathWalkFunc) error {
	rootStr := string(root)

	return filepath.Walk(rootStr, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return fn(path, info, err)
		}

		if info.IsDir() && !recursive && path != rootStr {
			return filepath.SkipDir
		}

		return fn(path, info, nil)
	})
}

// ReadFile loads file contents from disk.
func (a *LocalSourceFSAdapter) ReadFile(path m.Path) ([]byte, error) {
	return os.ReadFile(string(path))
}

// HashFile returns the SHA-256 hash of the file at the provided path.
func (a *LocalSourceFSAdapter) HashFile(path m.Path) (string, error) {
	f, err := os.Open(string(path))
	if err != nil {
		return "", err
	}

	defer func() {
		_ = f.Close()
	}()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}

	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// FileInfo returns os.FileInfo metadata for the given path.
func (a *LocalSourceFSAdapter) FileInfo(path m.Path) (os.FileInfo, error) {
	return os.Stat(string(path))
}

func isGlob(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[{")
}

func skippedDir(name string) bool {
	switch name {
	case ".git", "node_modules", "vendor", "__pycache__", ".storyteller":
		return true
	default:
		return false
	}
}

func normalizeRootPath(root string) (string, bool, error) {
	rootStr, recursive := parseRootPath(root)

	if strings.HasPrefix(rootStr, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", false, err
		}

		suffix := strings.TrimPrefix(rootStr, "~")
		suffix = strings.TrimPrefix(suffix, string(os.PathSeparator))
		rootStr = filepath.Join(home, suffix)
	}

	if rootStr == "" {
		rootStr = "."
	}

	abs, err := filepath.Abs(rootStr)
	if err != nil {
		return "", false, err
	}

	return abs, recursive, nil
}

func parseRootPath(rootStr string) (path string, recursive bool) {
	if strings.HasSuffix(rootStr, "/...") {
		return strings.TrimSuffix(rootStr, "/..."), true
	}

	return rootStr, false
}
