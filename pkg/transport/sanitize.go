package transport

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// MaxFilenameLength caps sanitized names, in bytes.
	MaxFilenameLength = 255
	fallbackFilename  = "download"
)

// SanitizeFilename makes name safe to offer as a download file name.
// Control characters and the characters < > : " / \ | ? * are replaced with
// '_', leading dots are stripped and the result is cut to
// MaxFilenameLength bytes on a rune boundary. Applying it twice yields the
// same result as applying it once.
func SanitizeFilename(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case unicode.IsControl(r):
			b.WriteByte('_')
		case strings.ContainsRune(`<>:"/\|?*`, r):
			b.WriteByte('_')
		case r == utf8.RuneError:
			b.WriteByte('_')
		default:
			b.WriteRune(r)
		}
	}

	out := strings.TrimLeft(b.String(), ".")
	if len(out) > MaxFilenameLength {
		cut := MaxFilenameLength
		for cut > 0 && !utf8.RuneStart(out[cut]) {
			cut--
		}
		out = out[:cut]
	}
	if out == "" {
		return fallbackFilename
	}
	return out
}

// ContentDisposition returns an attachment header carrying the sanitized
// name as an RFC 5987 extended value.
func ContentDisposition(name string) string {
	return "attachment; filename*=UTF-8''" + encodeExtValue(SanitizeFilename(name))
}

func encodeExtValue(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isAttrChar(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

func isAttrChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	}
	return strings.IndexByte("!#$&+-.^_`|~", c) >= 0
}
