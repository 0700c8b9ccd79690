package storage

import (
	"path/filepath"
	"strings"
	"unicode/utf8"
)

const (
	maxFilenameLength = 255
	fallbackFilename  = "upload"
)

// GetSafeFilename reduces a client-supplied name to a single safe path segment.
func GetSafeFilename(raw string) string {
	name := lastSegment(raw)
	name = stripDrive(name)
	name = strings.ReplaceAll(name, "..", "")
	name = replaceIllegal(name)
	name = strings.TrimLeft(name, ".")

	if strings.TrimSpace(name) == "" {
		return fallbackFilename
	}
	if utf8.RuneCountInString(name) > maxFilenameLength {
		name = truncatePreservingExtension(name)
	}
	return name
}

func lastSegment(raw string) string {
	if idx := strings.LastIndexAny(raw, `/\`); idx >= 0 {
		return raw[idx+1:]
	}
	return raw
}

func stripDrive(name string) string {
	if len(name) >= 2 && name[1] == ':' && isASCIILetter(name[0]) {
		return name[2:]
	}
	return name
}

func isASCIILetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func replaceIllegal(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r < 0x20, strings.ContainsRune(`<>:"|?*`, r):
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func truncatePreservingExtension(name string) string {
	ext := filepath.Ext(name)
	extLen := utf8.RuneCountInString(ext)
	if extLen >= maxFilenameLength {
		ext, extLen = "", 0
	}
	base := []rune(strings.TrimSuffix(name, ext))
	return string(base[:maxFilenameLength-extLen]) + ext
}
