package util

import (
	"errors"
	"path"
	"strings"
	"unicode/utf8"
)

const maxFileNameLength = 255

var fileNameReplacer = strings.NewReplacer(
	"..", "",
	"/", "_",
	"\\", "_",
	"\x00", "",
	"<", "_",
	">", "_",
	":", "_",
	`"`, "_",
	"|", "_",
	"?", "_",
	"*", "_",
)

// SanitizeFileName strips traversal sequences and reserved characters and caps the
// length at 255 bytes, keeping the extension. Empty results become "file".
func SanitizeFileName(name string) string {
	s := strings.TrimSpace(fileNameReplacer.Replace(name))
	if len(s) > maxFileNameLength {
		ext := path.Ext(s)
		if len(ext) >= maxFileNameLength {
			ext = ""
		}
		s = truncateUTF8(s[:len(s)-len(ext)], maxFileNameLength-len(ext)) + ext
	}
	if s == "" || s == "." {
		return "file"
	}
	return s
}

// CleanKey validates an object key and returns it without leading slashes.
func CleanKey(key string) (string, error) {
	trimmed := strings.TrimLeft(strings.TrimSpace(key), "/")
	if trimmed == "" {
		return "", errors.New("invalid storage key")
	}
	clean := path.Clean(trimmed)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") || strings.Contains(trimmed, "\\") {
		return "", errors.New("invalid storage key")
	}
	return clean, nil
}

func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[:n]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
