// Package hls parses HLS master and media playlists into the shared
// format model.
//
// References:
//  1. RFC 8216, HTTP Live Streaming
//  2. https://tools.ietf.org/html/draft-pantos-http-live-streaming-21
package hls

import (
	"encoding/base64"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"streamnorm/internal/manifest"
)

// attributeRe matches the KEY=VALUE pairs of an attribute list. Quoted
// values may contain commas.
var attributeRe = regexp.MustCompile(`([A-Z0-9-]+)=("[^"]+"|[^",]+)`)

// ParseAttributes parses an attribute list line such as the payload of
// #EXT-X-STREAM-INF or #EXT-X-MEDIA.
func ParseAttributes(line string) map[string]string {
	info := map[string]string{}
	for _, m := range attributeRe.FindAllStringSubmatch(line, -1) {
		val := m[2]
		if strings.HasPrefix(val, `"`) {
			val = val[1 : len(val)-1]
		}
		info[m[1]] = val
	}
	return info
}

// drmRe matches the key-system signatures that imply DRM on a playlist:
// FairPlay, PlayReady and Adobe Flash Access.
var drmRe = regexp.MustCompile(strings.Join([]string{
	`#EXT-X-(?:SESSION-)?KEY:.*?URI="skd://`,
	`#EXT-X-(?:SESSION-)?KEY:.*?KEYFORMAT="com\.apple\.streamingkeydelivery"`,
	`#EXT-X-(?:SESSION-)?KEY:.*?KEYFORMAT="com\.microsoft\.playready"`,
	`#EXT-X-FAXS-CM:`,
}, "|"))

// HasDRM reports whether the playlist carries a known DRM key system.
func HasDRM(doc string) bool {
	return drmRe.MatchString(doc)
}

func countDiscontinuities(doc string) int {
	n := 0
	for _, line := range strings.Split(doc, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "#EXT-X-DISCONTINUITY") {
			n++
		}
	}
	return n
}

// noSplit is the index list used when discontinuity splitting is off: one
// format, no format_index.
var noSplit = []*int{nil}

func splitIndices(n int) []*int {
	out := make([]*int, n)
	for i := range out {
		idx := i
		out[i] = &idx
	}
	return out
}

// playlistIndices returns the format_index values to emit for one playlist
// source. For variant playlists the document has to be fetched to count
// its discontinuities; a failed fetch falls back to a single unsplit
// format, or aborts under the Fatal option.
func playlistIndices(doc, playlistURL string, opts *manifest.Options) ([]*int, error) {
	if !opts.SplitDiscontinuity {
		return noSplit, nil
	}
	if doc == "" {
		if playlistURL == "" || opts.Fetcher == nil {
			return noSplit, nil
		}
		body, _, err := opts.Fetcher.Fetch(playlistURL, nil, nil, nil)
		if err != nil {
			if opts.Fatal {
				return nil, fmt.Errorf("%w: %s: %v", manifest.ErrFetch, playlistURL, err)
			}
			opts.Log().Warnf("Failed to download m3u8 playlist %s: %v", playlistURL, err)
			return noSplit, nil
		}
		doc = string(body)
	}
	return splitIndices(1 + countDiscontinuities(doc)), nil
}

func idPart(idx *int) string {
	if idx == nil {
		return ""
	}
	return strconv.Itoa(*idx)
}

// Parse converts an m3u8 document into formats and subtitles. baseURL is
// the URL the document was fetched from and resolves relative locators; it
// may be empty when the document came from inline text, in which case
// media playlists are returned as data: URIs.
//
// Media playlists (detected by #EXT-X-TARGETDURATION, which must not
// appear in a master playlist) are returned as a single format, or one per
// discontinuity section when splitting is enabled. Master playlists get
// the two-pass treatment: rendition groups first, stream variants second,
// so variant parsing can consult fully-built groups regardless of tag
// order in the document.
func Parse(doc, baseURL string, opts manifest.Options) ([]manifest.Format, manifest.Subtitles, error) {
	formats := []manifest.Format{}
	subtitles := manifest.Subtitles{}

	drm := manifest.DRMUnknown
	if HasDRM(doc) {
		drm = manifest.DRMYes
	}

	formatURL := func(u string) string {
		if manifest.IsAbsoluteURL(u) {
			return u
		}
		return manifest.ResolveURL(baseURL, u)
	}

	// Media playlist: return it as-is, never mine it for quality variants.
	if strings.Contains(doc, "#EXT-X-TARGETDURATION") {
		playlistURL := baseURL
		if playlistURL == "" {
			playlistURL = "data:application/x-mpegurl;base64," +
				base64.StdEncoding.EncodeToString([]byte(doc))
		}
		indices, err := playlistIndices(doc, "", &opts)
		if err != nil {
			return nil, nil, err
		}
		for _, idx := range indices {
			formats = append(formats, manifest.Format{
				FormatID:    manifest.JoinID(opts.IDPrefix, idPart(idx)),
				FormatIndex: idx,
				URL:         playlistURL,
				Ext:         opts.Ext,
				Protocol:    opts.Entry(),
				Preference:  opts.Preference,
				Quality:     opts.Quality,
				HasDRM:      drm,
			})
		}
		return formats, subtitles, nil
	}

	groups := map[string][]map[string]string{}

	extractMedia := func(line string) error {
		media := ParseAttributes(line)
		// TYPE, GROUP-ID and NAME are all required per RFC 8216 §4.3.4.1.
		mediaType, groupID, name := media["TYPE"], media["GROUP-ID"], media["NAME"]
		if mediaType == "" || groupID == "" || name == "" {
			return nil
		}
		groups[groupID] = append(groups[groupID], media)
		if mediaType == "SUBTITLES" {
			// URI is required for subtitle renditions, but manifests
			// without it exist in the wild; skip those.
			if media["URI"] == "" {
				return nil
			}
			subURL := formatURL(media["URI"])
			sub := manifest.SubtitleEntry{
				URL: subURL,
				Ext: manifest.DetermineExt(subURL),
			}
			if sub.Ext == "m3u8" {
				// The only subtitle format an m3u8 sub-manifest can carry
				// is WebVTT (RFC 8216 §3.1).
				sub.Ext = "vtt"
				sub.Protocol = manifest.ProtocolM3U8Native
			}
			lang := media["LANGUAGE"]
			if lang == "" {
				lang = "und"
			}
			subtitles.Add(lang, sub)
		}
		if mediaType != "VIDEO" && mediaType != "AUDIO" {
			return nil
		}
		if media["URI"] == "" {
			return nil
		}
		renditionURL := formatURL(media["URI"])
		indices, err := playlistIndices("", renditionURL, &opts)
		if err != nil {
			return err
		}
		for _, idx := range indices {
			f := manifest.Format{
				FormatID:    manifest.JoinID(opts.IDPrefix, groupID, name, idPart(idx)),
				FormatNote:  name,
				FormatIndex: idx,
				URL:         renditionURL,
				ManifestURL: baseURL,
				Language:    media["LANGUAGE"],
				Ext:         opts.Ext,
				Protocol:    opts.Entry(),
				Preference:  opts.Preference,
				Quality:     opts.Quality,
				HasDRM:      drm,
			}
			if mediaType == "AUDIO" {
				f.VCodec = manifest.CodecNone
			}
			formats = append(formats, f)
		}
		return nil
	}

	var lastStreamInf map[string]string

	buildStreamName := func() string {
		// NAME is not specified for EXT-X-STREAM-INF but shows up anyway;
		// failing that, the referenced video rendition group names the
		// stream.
		if name := lastStreamInf["NAME"]; name != "" {
			return name
		}
		groupID := lastStreamInf["VIDEO"]
		if groupID == "" {
			return ""
		}
		group := groups[groupID]
		if len(group) == 0 {
			return groupID
		}
		if name := group[0]["NAME"]; name != "" {
			return name
		}
		return groupID
	}

	// Pass 1: rendition groups. Doing this before the variants means
	// video-only detection works even when EXT-X-STREAM-INF precedes
	// EXT-X-MEDIA in the document.
	for _, line := range strings.Split(doc, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "#EXT-X-MEDIA:") {
			if err := extractMedia(line); err != nil {
				return nil, nil, err
			}
		}
	}

	// Pass 2: stream variants.
	for _, line := range strings.Split(doc, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "#EXT-X-STREAM-INF:") {
			lastStreamInf = ParseAttributes(line)
			continue
		}
		if strings.HasPrefix(line, "#") || line == "" {
			continue
		}

		bandwidth := lastStreamInf["AVERAGE-BANDWIDTH"]
		if bandwidth == "" {
			bandwidth = lastStreamInf["BANDWIDTH"]
		}
		tbr, _ := strconv.ParseFloat(bandwidth, 64)
		tbr /= 1000
		variantURL := formatURL(line)

		indices, err := playlistIndices("", variantURL, &opts)
		if err != nil {
			return nil, nil, err
		}
		for _, idx := range indices {
			// Bandwidth of live streams may drift over time, which would
			// make bandwidth-derived ids unstable across refreshes.
			streamID := ""
			if !opts.Live {
				streamID = buildStreamName()
				if streamID == "" {
					if tbr > 0 {
						streamID = strconv.Itoa(int(tbr))
					} else {
						streamID = strconv.Itoa(len(formats))
					}
				}
			}
			f := manifest.Format{
				FormatID:    manifest.JoinID(opts.IDPrefix, streamID, idPart(idx)),
				FormatIndex: idx,
				URL:         variantURL,
				ManifestURL: baseURL,
				TBR:         tbr,
				Ext:         opts.Ext,
				Protocol:    opts.Entry(),
				Preference:  opts.Preference,
				Quality:     opts.Quality,
				HasDRM:      drm,
			}
			if fps, err := strconv.ParseFloat(lastStreamInf["FRAME-RATE"], 64); err == nil {
				f.FPS = fps
			}
			if m := resolutionRe.FindStringSubmatch(lastStreamInf["RESOLUTION"]); m != nil {
				f.Width, _ = strconv.Atoi(m[1])
				f.Height, _ = strconv.Atoi(m[2])
			}
			// Unified Streaming Platform embeds per-track bitrates in the
			// variant URL.
			if m := uspBitrateRe.FindStringSubmatch(f.URL); m != nil {
				if abr, err := strconv.ParseFloat(m[1], 64); err == nil {
					f.ABR = abr / 1000
				}
				if m[2] != "" {
					if vbr, err := strconv.ParseFloat(m[2], 64); err == nil {
						f.VBR = vbr / 1000
					}
				}
			}
			codecs, known := manifest.ParseCodecs(lastStreamInf["CODECS"])
			if known {
				codecs.Apply(&f)
			}
			// A variant that references an audio rendition group with its
			// own URI does not carry that audio itself. Only believable
			// when CODECS says the variant has video; without CODECS the
			// variant is treated as a complete format.
			if audioGroupID := lastStreamInf["AUDIO"]; audioGroupID != "" && known && f.VCodec != manifest.CodecNone {
				group := groups[audioGroupID]
				if len(group) > 0 && group[0]["URI"] != "" {
					f.ACodec = manifest.CodecNone
				}
			}
			if f.Ext == "" {
				if f.VCodec == manifest.CodecNone {
					f.Ext = "m4a"
				} else {
					f.Ext = "mp4"
				}
			}
			formats = append(formats, f)

			// Some providers pair each variant with a progressive
			// download of the same rendition.
			if progressiveURI := lastStreamInf["PROGRESSIVE-URI"]; progressiveURI != "" {
				httpF := f
				httpF.ManifestURL = ""
				httpF.FormatID = strings.Replace(f.FormatID, "hls-", "http-", 1)
				httpF.Protocol = manifest.ProtocolHTTP
				httpF.URL = progressiveURI
				formats = append(formats, httpF)
			}
		}
		lastStreamInf = nil
	}

	return formats, subtitles, nil
}

var (
	resolutionRe = regexp.MustCompile(`(\d+)[xX](\d+)`)
	uspBitrateRe = regexp.MustCompile(`audio.*?(?:%3D|=)(\d+)(?:-video.*?(?:%3D|=)(\d+))?`)
)
