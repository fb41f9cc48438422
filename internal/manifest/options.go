package manifest

import (
	"net/http"
	"net/url"

	"streamnorm/internal/logger"
)

// Fetcher is the network collaborator used for recursive manifest
// resolution (nested F4M, SMIL-referenced sub-manifests, discontinuity
// probing). Fetch returns the response body together with the URL the
// request finally resolved to after redirects.
type Fetcher interface {
	Fetch(rawURL string, headers http.Header, query url.Values, data []byte) (body []byte, resolvedURL string, err error)
}

// URLProber is optionally implemented by a Fetcher that can cheaply check
// whether a URL is reachable without downloading the body.
type URLProber interface {
	Probe(rawURL string) error
}

// Options carries per-parse configuration. The zero value is usable: no id
// prefix, non-fatal sub-resource failures, VOD semantics, no splitting.
type Options struct {
	// IDPrefix is joined into every produced format_id.
	IDPrefix string
	// Preference and Quality are caller-supplied selection weights copied
	// onto every produced format.
	Preference int
	Quality    int
	// Fatal aborts the whole parse when a nested fetch fails. Malformed
	// documents and missing mandatory fields are fatal regardless.
	Fatal bool
	// Live marks the manifest as a live snapshot; HLS format ids then stay
	// independent of bandwidth, which can drift between refreshes.
	Live bool
	// SplitDiscontinuity splits HLS media playlists into one format per
	// discontinuity-delimited section.
	SplitDiscontinuity bool

	// Ext is the container hint for formats whose manifest does not state
	// one (HLS renditions, SMIL media entries).
	Ext string
	// EntryProtocol is the protocol assigned to HLS media entries.
	// Defaults to m3u8_native.
	EntryProtocol Protocol
	// M3U8IDPrefix is the id prefix applied to HLS formats reached through
	// another manifest type (F4M media entries pointing at .m3u8).
	M3U8IDPrefix string
	// F4MParams are query parameters appended to F4M URLs dispatched from
	// SMIL documents; when empty the usual hdcore/plugin pair is used.
	F4MParams url.Values

	// Fetcher performs nested fetches. When nil, branches that would need
	// the network are skipped (or fail, under Fatal).
	Fetcher Fetcher
	// Logger receives non-fatal diagnostics. Nil means silent.
	Logger logger.Logger
}

// Log returns the configured logger, or a no-op one.
func (o *Options) Log() logger.Logger {
	if o.Logger == nil {
		return logger.Nop()
	}
	return o.Logger
}

// Entry returns the protocol for HLS media entries.
func (o *Options) Entry() Protocol {
	if o.EntryProtocol == "" {
		return ProtocolM3U8Native
	}
	return o.EntryProtocol
}
