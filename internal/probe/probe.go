// Package probe sniffs a manifest document's kind and dispatches it to
// the matching parser.
package probe

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"

	"streamnorm/internal/manifest"
	"streamnorm/internal/manifest/dash"
	"streamnorm/internal/manifest/f4m"
	"streamnorm/internal/manifest/hls"
	"streamnorm/internal/manifest/ism"
	"streamnorm/internal/manifest/smil"
)

// Kind identifies a manifest family.
type Kind string

const (
	KindHLS     Kind = "hls"
	KindDASH    Kind = "dash"
	KindISM     Kind = "ism"
	KindF4M     Kind = "f4m"
	KindSMIL    Kind = "smil"
	KindUnknown Kind = ""
)

// Result is the normalized output of one manifest.
type Result struct {
	Kind      Kind               `json:"kind"`
	URL       string             `json:"url"`
	Formats   []manifest.Format  `json:"formats"`
	Subtitles manifest.Subtitles `json:"subtitles,omitempty"`
}

var utf8BOM = []byte{0xef, 0xbb, 0xbf}

// Detect sniffs the manifest kind from the document body, falling back to
// the URL's extension when the body is inconclusive.
func Detect(doc []byte, rawURL string) Kind {
	body := bytes.TrimSpace(bytes.TrimPrefix(doc, utf8BOM))
	if bytes.HasPrefix(body, []byte("#EXTM3U")) {
		return KindHLS
	}
	if root, ok := rootElement(body); ok {
		switch root {
		case "MPD":
			return KindDASH
		case "SmoothStreamingMedia":
			return KindISM
		case "manifest":
			return KindF4M
		case "smil":
			return KindSMIL
		}
	}
	switch manifest.DetermineExt(rawURL) {
	case "m3u8":
		return KindHLS
	case "mpd":
		return KindDASH
	case "f4m":
		return KindF4M
	case "smil":
		return KindSMIL
	}
	if strings.Contains(rawURL, "/Manifest") || strings.Contains(rawURL, ".ism") {
		return KindISM
	}
	return KindUnknown
}

// rootElement returns the local name of the first XML start element.
func rootElement(body []byte) (string, bool) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", false
		}
		if start, ok := tok.(xml.StartElement); ok {
			return start.Name.Local, true
		}
	}
}

// Parse detects the manifest kind and runs the matching parser.
func Parse(doc []byte, rawURL string, opts manifest.Options) (*Result, error) {
	kind := Detect(doc, rawURL)
	res := &Result{Kind: kind, URL: rawURL, Subtitles: manifest.Subtitles{}}
	var err error
	switch kind {
	case KindHLS:
		res.Formats, res.Subtitles, err = hls.Parse(string(doc), rawURL, opts)
	case KindDASH:
		res.Formats, res.Subtitles, err = dash.Parse(doc, rawURL, opts)
	case KindISM:
		res.Formats, res.Subtitles, err = ism.Parse(doc, rawURL, opts)
	case KindF4M:
		res.Formats, err = f4m.Parse(doc, rawURL, opts)
	case KindSMIL:
		res.Formats, res.Subtitles, err = smil.Parse(doc, rawURL, opts)
	default:
		return nil, fmt.Errorf("%w: unrecognized manifest at %s", manifest.ErrMalformedManifest, rawURL)
	}
	if err != nil {
		return nil, err
	}
	if res.Subtitles == nil {
		res.Subtitles = manifest.Subtitles{}
	}
	return res, nil
}

// FromURL downloads a manifest and parses it. The URL recorded in the
// result is the one the request resolved to, so relative references inside
// the document survive redirects.
func FromURL(rawURL string, opts manifest.Options) (*Result, error) {
	if opts.Fetcher == nil {
		return nil, fmt.Errorf("%w: no fetcher configured", manifest.ErrFetch)
	}
	body, resolvedURL, err := opts.Fetcher.Fetch(rawURL, nil, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", manifest.ErrFetch, rawURL, err)
	}
	return Parse(body, resolvedURL, opts)
}
