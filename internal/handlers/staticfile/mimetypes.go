package staticfile

import (
	"strings"
)

// defaultContentTypes is the fixed extension table. Lookups are
// case-insensitive; anything not listed resolves to the empty string,
// never to a generic fallback such as application/octet-stream.
var defaultContentTypes = map[string]string{
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"pdf":  "application/pdf",
	"mp3":  "audio/mpeg",
	"html": "text/html",
	"htm":  "text/html",
}

// MimeTypeResolver maps a file path to a Content-Type value.
type MimeTypeResolver struct {
	types map[string]string
}

// NewMimeTypeResolver merges custom (extension without dot -> type) over
// the default table.
func NewMimeTypeResolver(custom map[string]string) *MimeTypeResolver {
	types := make(map[string]string, len(defaultContentTypes)+len(custom))
	for ext, ct := range defaultContentTypes {
		types[ext] = ct
	}
	for ext, ct := range custom {
		types[strings.ToLower(ext)] = ct
	}
	return &MimeTypeResolver{types: types}
}

// ContentType returns the type for filePath's extension, or "".
func (r *MimeTypeResolver) ContentType(filePath string) string {
	ext, ok := extension(filePath)
	if !ok {
		return ""
	}
	return r.types[strings.ToLower(ext)]
}

// extension returns the text after the last '.' in p.
func extension(p string) (string, bool) {
	i := strings.LastIndexByte(p, '.')
	if i < 0 {
		return "", false
	}
	return p[i+1:], true
}
