package outdir

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/unicode/norm"
)

const (
	maxNameBytes   = 200
	maxNameTries   = 10000
	fallbackName   = "attachment"
	replacementSep = '_'
)

// SanitizeName turns a name taken from a message into a single safe path
// element. Names that are not valid UTF-8 are read as ISO-8859-1, which is
// what most old Usenet posters used.
func SanitizeName(name string) string {
	if !utf8.ValidString(name) {
		if decoded, err := charmap.ISO8859_1.NewDecoder().String(name); err == nil {
			name = decoded
		}
	}
	name = norm.NFC.String(name)

	name = strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\' || r == ':' || r == '*' || r == '?' || r == '"' || r == '<' || r == '>' || r == '|':
			return replacementSep
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, name)
	name = strings.Trim(name, " .")
	name = truncate(name, maxNameBytes)

	if name == "" {
		return fallbackName
	}
	return name
}

// truncate cuts s to at most n bytes without splitting a rune. The
// extension is kept when it is short.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	ext := filepath.Ext(s)
	if len(ext) > 16 {
		ext = ""
	}
	base := s[:len(s)-len(ext)]
	limit := n - len(ext)
	for limit > 0 && !utf8.RuneStart(base[limit]) {
		limit--
	}
	return base[:limit] + ext
}

// createUnique writes data to dir/name. When the name is taken it tries
// name-1, name-2 and so on, keeping the extension. It returns the path it
// wrote.
func createUnique(dir, name string, data []byte) (string, error) {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	if base == "" {
		base, ext = name, ""
	}

	for i := 0; i < maxNameTries; i++ {
		candidate := name
		if i > 0 {
			candidate = fmt.Sprintf("%s-%d%s", base, i, ext)
		}
		path := filepath.Join(dir, candidate)

		file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create %s: %w", path, err)
		}

		if _, err := file.Write(data); err != nil {
			file.Close()
			return "", fmt.Errorf("write %s: %w", path, err)
		}
		if err := file.Close(); err != nil {
			return "", fmt.Errorf("close %s: %w", path, err)
		}
		return path, nil
	}
	return "", fmt.Errorf("no free name for %s in %s", name, dir)
}
