package response

import (
	"mime"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/conduit-lang/hyperapi/internal/metadata"
)

// ContentType returns the first mime type of a known format, or
// application/json
func ContentType(format string) string {
	if f, ok := metadata.KnownFormats.Lookup(format); ok && len(f.MimeTypes) > 0 {
		return f.MimeTypes[0]
	}
	return "application/json"
}

// Write writes an encoded document. A nil body writes headers only.
func Write(w http.ResponseWriter, status int, contentType string, body []byte) error {
	if body != nil {
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("X-Content-Type-Options", "nosniff")
	}
	w.WriteHeader(status)
	if body == nil {
		return nil
	}
	_, err := w.Write(body)
	return err
}

type acceptRange struct {
	mediaType string
	q         float64
}

// parseAccept returns the media ranges of an Accept header by decreasing
// quality. Ranges with q=0 are dropped.
func parseAccept(accept string) []acceptRange {
	var out []acceptRange
	for _, part := range strings.Split(accept, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		mediaType, params, err := mime.ParseMediaType(part)
		if err != nil {
			continue
		}
		q := 1.0
		if raw, ok := params["q"]; ok {
			if q, err = strconv.ParseFloat(raw, 64); err != nil {
				continue
			}
		}
		if q <= 0 {
			continue
		}
		out = append(out, acceptRange{mediaType: mediaType, q: q})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].q > out[j].q })
	return out
}

// Negotiate picks the format of a response among formats from an Accept
// header. An empty header or */* selects the first format.
func Negotiate(accept string, formats metadata.Formats) (metadata.Format, bool) {
	if len(formats) == 0 {
		return metadata.Format{}, false
	}
	if strings.TrimSpace(accept) == "" {
		return formats[0], true
	}
	for _, r := range parseAccept(accept) {
		switch {
		case r.mediaType == "*/*":
			return formats[0], true
		case strings.HasSuffix(r.mediaType, "/*"):
			prefix := strings.TrimSuffix(r.mediaType, "*")
			for _, f := range formats {
				for _, m := range f.MimeTypes {
					if strings.HasPrefix(m, prefix) {
						return f, true
					}
				}
			}
		default:
			if f, ok := formats.ByMimeType(r.mediaType); ok {
				return f, true
			}
		}
	}
	return metadata.Format{}, false
}

// MimeTypes lists every mime type of formats
func MimeTypes(formats metadata.Formats) []string {
	var out []string
	for _, f := range formats {
		out = append(out, f.MimeTypes...)
	}
	return out
}

// InputFormat finds the format of a request body from its Content-Type
func InputFormat(contentType string, formats metadata.Formats) (metadata.Format, error) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return metadata.Format{}, UnsupportedMediaType(contentType, MimeTypes(formats))
	}
	if f, ok := formats.ByMimeType(mediaType); ok {
		return f, nil
	}
	return metadata.Format{}, UnsupportedMediaType(mediaType, MimeTypes(formats))
}
