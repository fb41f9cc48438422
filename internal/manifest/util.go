package manifest

import (
	"net/url"
	"regexp"
	"strings"
)

var absoluteURLRe = regexp.MustCompile(`^https?://`)

// IsAbsoluteURL reports whether s is a scheme-qualified http(s) URL.
func IsAbsoluteURL(s string) bool {
	return absoluteURLRe.MatchString(s)
}

// ResolveURL resolves ref against base. Absolute refs are returned as-is;
// an unparseable base falls back to the ref unchanged.
func ResolveURL(base, ref string) string {
	if ref == "" || IsAbsoluteURL(ref) {
		return ref
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}

// BaseURL returns the URL up to and including the last slash of the path,
// with query and fragment stripped. Used as the resolution base for
// relative locators inside a fetched manifest.
func BaseURL(rawURL string) string {
	s := rawURL
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	i := strings.Index(s, "://")
	if i < 0 {
		return ""
	}
	j := strings.LastIndex(s[i+3:], "/")
	if j < 0 {
		return s + "/"
	}
	return s[:i+3+j+1]
}

var extRe = regexp.MustCompile(`^[A-Za-z0-9]+$`)

// DetermineExt guesses a file extension from a URL, ignoring query and
// fragment. Returns "" when nothing plausible is found.
func DetermineExt(rawURL string) string {
	s := rawURL
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	i := strings.LastIndex(s, ".")
	if i < 0 {
		return ""
	}
	guess := s[i+1:]
	if len(guess) <= 5 && extRe.MatchString(guess) {
		return strings.ToLower(guess)
	}
	return ""
}

var mimeExt = map[string]string{
	"video/mp4":                     "mp4",
	"audio/mp4":                     "m4a",
	"application/mp4":               "mp4",
	"video/webm":                    "webm",
	"audio/webm":                    "webm",
	"video/mp2t":                    "ts",
	"video/x-flv":                   "flv",
	"audio/mpeg":                    "mp3",
	"audio/aac":                     "aac",
	"image/jpeg":                    "jpg",
	"image/png":                     "png",
	"text/vtt":                      "vtt",
	"text/srt":                      "srt",
	"application/ttml+xml":          "ttml",
	"application/ttaf+xml":          "dfxp",
	"application/smptett+xml":       "tt",
	"text/xml":                      "xml",
	"application/xml":               "xml",
	"application/json":              "json",
	"application/x-mpegurl":         "m3u8",
	"application/vnd.apple.mpegurl": "m3u8",
	"application/dash+xml":          "mpd",
	"application/f4m+xml":           "f4m",
}

// MimetypeExt maps a MIME type to the conventional file extension. Unknown
// types fall back to the subtype token.
func MimetypeExt(mimeType string) string {
	if mimeType == "" {
		return ""
	}
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.Index(mt, ";"); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	if ext, ok := mimeExt[mt]; ok {
		return ext
	}
	if i := strings.Index(mt, "/"); i >= 0 {
		sub := mt[i+1:]
		if j := strings.LastIndex(sub, "+"); j >= 0 {
			sub = sub[:j]
		}
		return sub
	}
	return ""
}

// textExts are the extensions that imply a text/subtitle representation
// when neither content type nor codecs decide.
var textExts = map[string]bool{"tt": true, "dfxp": true, "ttml": true, "xml": true, "json": true}

// IsTextExt reports whether ext implies a subtitle representation.
func IsTextExt(ext string) bool {
	return textExts[ext]
}

// JoinID joins the non-empty parts with "-". Every parser builds its
// format ids through this.
func JoinID(parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "-")
}
