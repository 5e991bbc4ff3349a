package staticfile

import (
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

const (
	octetStreamMimeType = "application/octet-stream"
	htmlMimeType        = "text/html; charset=utf-8"
)

// builtinMimeTypes is consulted before the platform table so that common web
// assets get the same type on every host.
var builtinMimeTypes = map[string]string{
	".aac":         "audio/aac",
	".apng":        "image/apng",
	".avif":        "image/avif",
	".bmp":         "image/bmp",
	".css":         "text/css; charset=utf-8",
	".csv":         "text/csv; charset=utf-8",
	".eot":         "application/vnd.ms-fontobject",
	".epub":        "application/epub+zip",
	".gif":         "image/gif",
	".gz":          "application/gzip",
	".htm":         htmlMimeType,
	".html":        htmlMimeType,
	".ico":         "image/vnd.microsoft.icon",
	".ics":         "text/calendar; charset=utf-8",
	".jpeg":        "image/jpeg",
	".jpg":         "image/jpeg",
	".js":          "text/javascript; charset=utf-8",
	".json":        "application/json; charset=utf-8",
	".jsonld":      "application/ld+json; charset=utf-8",
	".map":         "application/json; charset=utf-8",
	".md":          "text/markdown; charset=utf-8",
	".mjs":         "text/javascript; charset=utf-8",
	".mp3":         "audio/mpeg",
	".mp4":         "video/mp4",
	".oga":         "audio/ogg",
	".ogv":         "video/ogg",
	".opus":        "audio/opus",
	".otf":         "font/otf",
	".pdf":         "application/pdf",
	".png":         "image/png",
	".svg":         "image/svg+xml",
	".tar":         "application/x-tar",
	".tif":         "image/tiff",
	".tiff":        "image/tiff",
	".ttf":         "font/ttf",
	".txt":         "text/plain; charset=utf-8",
	".wasm":        "application/wasm",
	".wav":         "audio/wav",
	".weba":        "audio/webm",
	".webm":        "video/webm",
	".webmanifest": "application/manifest+json",
	".webp":        "image/webp",
	".woff":        "font/woff",
	".woff2":       "font/woff2",
	".xhtml":       "application/xhtml+xml; charset=utf-8",
	".xml":         "application/xml; charset=utf-8",
	".zip":         "application/zip",
	".7z":          "application/x-7z-compressed",
}

// MimeTypeResolver maps file extensions to Content-Type values.
type MimeTypeResolver struct {
	custom map[string]string
}

// NewMimeTypeResolver merges the inline custom map with the JSON file at
// mimeTypesPath (if non-empty). Entries from the file win.
func NewMimeTypeResolver(inline map[string]string, mimeTypesPath string) (*MimeTypeResolver, error) {
	r := &MimeTypeResolver{custom: make(map[string]string, len(inline))}
	for ext, mimeType := range inline {
		r.custom[strings.ToLower(ext)] = mimeType
	}
	if mimeTypesPath != "" {
		fromFile, err := LoadCustomMimeTypesFromFile(mimeTypesPath)
		if err != nil {
			return nil, err
		}
		for ext, mimeType := range fromFile {
			r.custom[ext] = mimeType
		}
	}
	return r, nil
}

// Resolve returns the Content-Type for a target. Index fallbacks are always HTML.
func (r *MimeTypeResolver) Resolve(t Target) string {
	if t.IsIndex {
		return htmlMimeType
	}
	return r.TypeByPath(t.Path)
}

// TypeByPath looks the extension up in the custom map, the built-in table and
// the platform table, in that order.
func (r *MimeTypeResolver) TypeByPath(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return octetStreamMimeType
	}
	if mimeType, ok := r.custom[ext]; ok {
		return mimeType
	}
	if mimeType, ok := builtinMimeTypes[ext]; ok {
		return mimeType
	}
	if mimeType := mime.TypeByExtension(ext); mimeType != "" {
		return mimeType
	}
	return octetStreamMimeType
}

// LoadCustomMimeTypesFromFile reads a JSON object of extension to MIME type.
// Extensions must start with '.', values must be non-empty; keys are lowercased.
func LoadCustomMimeTypesFromFile(filePath string) (map[string]string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read MIME types file %q: %w", filePath, err)
	}

	var parsed map[string]string
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse JSON from MIME types file %q: %w", filePath, err)
	}

	out := make(map[string]string, len(parsed))
	for ext, mimeType := range parsed {
		if !strings.HasPrefix(ext, ".") {
			return nil, fmt.Errorf("invalid extension %q in MIME types file %q: must start with a '.'", ext, filePath)
		}
		if mimeType == "" {
			return nil, fmt.Errorf("empty MIME type for extension %q in MIME types file %q", ext, filePath)
		}
		out[strings.ToLower(ext)] = mimeType
	}
	return out, nil
}
