// Package f4m parses Adobe HDS (F4M) manifests. Set-level manifests may
// reference nested stream-level .f4m or .m3u8 manifests, which are
// resolved recursively through the network collaborator.
package f4m

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"streamnorm/internal/manifest"
	"streamnorm/internal/manifest/hls"
)

const ns10 = "http://ns.adobe.com/f4m/1.0"

// Manifest is the root element of an F4M document. Element names are
// matched namespace-agnostically, so both the 1.0 and 2.0 namespaces
// decode into the same shape; the root namespace decides version-specific
// attribute handling.
type Manifest struct {
	XMLName       xml.Name     `xml:"manifest"`
	BaseURL       string       `xml:"baseURL"`
	MimeType      string       `xml:"mimeType"`
	PV            string       `xml:"pv-2.0"`
	BootstrapInfo *struct{}    `xml:"bootstrapInfo"`
	Media         []MediaEntry `xml:"media"`
}

// MediaEntry is one media element. href replaces url for external
// references in the 2.0 namespace (F4M spec, section 11.6).
type MediaEntry struct {
	URL                      string `xml:"url,attr"`
	Href                     string `xml:"href,attr"`
	Bitrate                  int    `xml:"bitrate,attr"`
	Width                    int    `xml:"width,attr"`
	Height                   int    `xml:"height,attr"`
	DRMAdditionalHeaderID    string `xml:"drmAdditionalHeaderId,attr"`
	DRMAdditionalHeaderSetID string `xml:"drmAdditionalHeaderSetId,attr"`
}

// stripEncryptedMedia drops media entries protected by Flash Access DRM;
// those renditions cannot be downloaded anyway.
func stripEncryptedMedia(media []MediaEntry) []MediaEntry {
	kept := media[:0:0]
	for _, m := range media {
		if m.DRMAdditionalHeaderID == "" && m.DRMAdditionalHeaderSetID == "" {
			kept = append(kept, m)
		}
	}
	return kept
}

// Parse converts an F4M manifest into formats. Akamai player-verification
// challenges (pv-2.0) are an unsupported DRM scheme; a manifest carrying
// one yields no formats, without error.
func Parse(doc []byte, manifestURL string, opts manifest.Options) ([]manifest.Format, error) {
	var mf Manifest
	if err := xml.Unmarshal(doc, &mf); err != nil {
		return nil, fmt.Errorf("%w: %v", manifest.ErrMalformedManifest, err)
	}
	return parse(&mf, manifestURL, opts)
}

func parse(mf *Manifest, manifestURL string, opts manifest.Options) ([]manifest.Format, error) {
	if challenge, _, ok := strings.Cut(mf.PV, ";"); ok && strings.TrimSpace(challenge) != "" {
		return []manifest.Format{}, nil
	}

	formats := []manifest.Format{}
	media := stripEncryptedMedia(mf.Media)
	if len(media) == 0 {
		return formats, nil
	}
	version2 := mf.XMLName.Space != ns10

	// An audio-only mime type on the manifest level applies to every
	// rendition.
	vcodec := ""
	if strings.HasPrefix(mf.MimeType, "audio/") {
		vcodec = manifest.CodecNone
	}

	for i, m := range media {
		tbr := m.Bitrate
		formatID := manifest.JoinID(opts.IDPrefix, orIndex(tbr, i))

		// A manifest with bootstrapInfo is stream-level; only set-level
		// manifests may refer to external resources (F4M spec, sections 4
		// and 11.4).
		if mf.BootstrapInfo == nil {
			mediaURL := m.URL
			if version2 && m.Href != "" {
				mediaURL = m.Href
			}
			if mediaURL == "" {
				continue
			}
			resolved := mediaURL
			if !manifest.IsAbsoluteURL(mediaURL) {
				base := mf.BaseURL
				if base == "" {
					base = manifestURL
					if i := strings.LastIndex(base, "/"); i >= 0 {
						base = base[:i]
					}
				}
				resolved = base + "/" + mediaURL
			}

			switch manifest.DetermineExt(resolved) {
			case "f4m":
				// Recurse: bitrates in the parent and the nested manifest
				// may differ, and the downloader resolves renditions by
				// the nested one's values.
				nested, childURL, err := fetchSub(resolved, &opts)
				if err != nil {
					if opts.Fatal {
						return nil, err
					}
					opts.Log().Warnf("Failed to download nested f4m manifest %s: %v", resolved, err)
					continue
				}
				childFormats, err := Parse(nested, childURL, opts)
				if err != nil {
					if opts.Fatal {
						return nil, err
					}
					opts.Log().Warnf("Failed to parse nested f4m manifest %s: %v", resolved, err)
					continue
				}
				// A stream-level manifest may carry a single entry with
				// no quality metadata of its own; backfill it from the
				// parent's entry.
				if len(childFormats) == 1 {
					child := &childFormats[0]
					if child.TBR == 0 {
						child.TBR = float64(tbr)
					}
					if child.Width == 0 {
						child.Width = m.Width
					}
					if child.Height == 0 {
						child.Height = m.Height
					}
					if tbr != 0 {
						child.FormatID = formatID
					}
					child.VCodec = vcodec
				}
				formats = append(formats, childFormats...)
				continue
			case "m3u8":
				nested, childURL, err := fetchSub(resolved, &opts)
				if err != nil {
					if opts.Fatal {
						return nil, err
					}
					opts.Log().Warnf("Failed to download m3u8 manifest %s: %v", resolved, err)
					continue
				}
				hlsOpts := opts
				hlsOpts.IDPrefix = opts.M3U8IDPrefix
				hlsOpts.Ext = "mp4"
				hlsFormats, _, err := hls.Parse(string(nested), childURL, hlsOpts)
				if err != nil {
					if opts.Fatal {
						return nil, err
					}
					opts.Log().Warnf("Failed to parse m3u8 manifest %s: %v", resolved, err)
					continue
				}
				formats = append(formats, hlsFormats...)
				continue
			default:
				formats = append(formats, manifest.Format{
					FormatID:    formatID,
					URL:         resolved,
					ManifestURL: resolved,
					Protocol:    manifest.ProtocolF4M,
					TBR:         float64(tbr),
					Width:       m.Width,
					Height:      m.Height,
					VCodec:      vcodec,
					Preference:  opts.Preference,
					Quality:     opts.Quality,
				})
				continue
			}
		}

		formats = append(formats, manifest.Format{
			FormatID:    formatID,
			URL:         manifestURL,
			ManifestURL: manifestURL,
			Ext:         "flv",
			Protocol:    manifest.ProtocolF4M,
			TBR:         float64(tbr),
			Width:       m.Width,
			Height:      m.Height,
			VCodec:      vcodec,
			Preference:  opts.Preference,
			Quality:     opts.Quality,
		})
	}
	return formats, nil
}

func orIndex(tbr, i int) string {
	if tbr != 0 {
		return strconv.Itoa(tbr)
	}
	return strconv.Itoa(i)
}

func fetchSub(rawURL string, opts *manifest.Options) ([]byte, string, error) {
	if opts.Fetcher == nil {
		return nil, "", fmt.Errorf("%w: no fetcher for %s", manifest.ErrFetch, rawURL)
	}
	body, resolvedURL, err := opts.Fetcher.Fetch(rawURL, nil, nil, nil)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %s: %v", manifest.ErrFetch, rawURL, err)
	}
	return body, resolvedURL, nil
}
