package incidents

import (
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
)

const fallbackMimeType = "application/octet-stream"

// SanitizeFilename strips path separators and control characters from a
// user-supplied file name.
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r < 0x20 || r == 0x7f:
			continue
		case r == '/' || r == '\\':
			continue
		default:
			b.WriteRune(r)
		}
	}
	out := strings.TrimSpace(b.String())
	if out == "." || out == ".." {
		return ""
	}
	return out
}

// extensionOf returns the lowercased extension without the dot, or "" when
// the name has none.
func extensionOf(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	return strings.TrimPrefix(ext, ".")
}

// ExtensionAllowed reports whether the file name carries an extension from
// the allow-list. Comparison is case-insensitive; a name without an
// extension is never allowed.
func ExtensionAllowed(name string, allowed map[string]struct{}) bool {
	ext := extensionOf(name)
	if ext == "" {
		return false
	}
	_, ok := allowed[ext]
	return ok
}

// StoredName builds the collision-resistant destination name for an
// attachment: the incident id, an upload timestamp and a random token keep
// two concurrent uploads of the same file name apart.
func StoredName(incidentID int64, originalName string, now time.Time) string {
	safe := SanitizeFilename(originalName)
	ext := filepath.Ext(safe)
	base := strings.TrimSuffix(safe, ext)
	if base == "" {
		base = "fichier"
	}
	token := uuid.Must(uuid.NewV4()).String()[:8]
	return fmt.Sprintf("incident_%d_%s_%s_%s%s", incidentID, now.UTC().Format("20060102_150405"), token, base, strings.ToLower(ext))
}

// GuessMimeType maps the file extension to a MIME type, falling back to a
// generic binary type.
func GuessMimeType(name string) string {
	ext := filepath.Ext(name)
	if ext == "" {
		return fallbackMimeType
	}
	if t := mime.TypeByExtension(strings.ToLower(ext)); t != "" {
		return t
	}
	return fallbackMimeType
}
