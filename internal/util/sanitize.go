package util

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var invalidFilenameChars = regexp.MustCompile(`[<>:"/\\|?*]`)

// SanitizeFilename makes a file name safe to store and to print: control
// and invisible format characters are dropped, path and shell-hostile
// characters become "_", and surrounding spaces are trimmed. Hidden names
// keep their leading dot. The result may be empty.
func SanitizeFilename(name string) string {
	builder := strings.Builder{}
	builder.Grow(len(name))

	for _, char := range name {
		if char == utf8.RuneError || unicode.IsControl(char) || isInvisibleUnicode(char) {
			continue
		}
		builder.WriteRune(char)
	}

	return strings.TrimSpace(invalidFilenameChars.ReplaceAllString(builder.String(), "_"))
}

// TruncateName cuts name to at most maxBytes without splitting a UTF-8
// sequence.
func TruncateName(name string, maxBytes int) string {
	for len(name) > maxBytes {
		_, size := utf8.DecodeLastRuneInString(name)
		name = name[:len(name)-size]
	}
	return name
}

// isInvisibleUnicode returns true for zero-width, formatting, and other
// invisible Unicode characters that should be stripped from filenames.
func isInvisibleUnicode(r rune) bool {
	switch r {
	case
		'\u200B', // Zero-Width Space
		'\u200C', // Zero-Width Non-Joiner
		'\u200D', // Zero-Width Joiner
		'\u200E', // Left-to-Right Mark
		'\u200F', // Right-to-Left Mark
		'\u2060', // Word Joiner
		'\uFEFF', // Zero-Width No-Break Space / BOM
		'\uFFF9', // Interlinear Annotation Anchor
		'\uFFFA', // Interlinear Annotation Separator
		'\uFFFB': // Interlinear Annotation Terminator
		return true
	}

	return unicode.Is(unicode.Cf, r)
}
