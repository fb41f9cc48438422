// Package smil parses SMIL presentation documents. SMIL itself carries no
// media, only references; every medium is dispatched by URL shape to the
// matching manifest parser or emitted as a direct format.
package smil

import (
	"encoding/xml"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"streamnorm/internal/manifest"
	"streamnorm/internal/manifest/dash"
	"streamnorm/internal/manifest/f4m"
	"streamnorm/internal/manifest/hls"
	"streamnorm/internal/manifest/ism"
)

// node is a namespace-agnostic view of a SMIL element. Real-world SMIL
// uses several namespace URIs (and frequently none at all), so elements
// are matched by local name only.
type node struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Nodes   []node     `xml:",any"`
}

func (n *node) attr(name string) string {
	for _, a := range n.Attrs {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

// findAll collects descendants whose local name is in names, in document
// order.
func (n *node) findAll(names ...string) []*node {
	var out []*node
	for i := range n.Nodes {
		child := &n.Nodes[i]
		for _, name := range names {
			if child.XMLName.Local == name {
				out = append(out, child)
				break
			}
		}
		out = append(out, child.findAll(names...)...)
	}
	return out
}

var ismManifestRe = regexp.MustCompile(`\.ism/[Mm]anifest`)

// Parse converts a SMIL document into formats and subtitles.
func Parse(doc []byte, smilURL string, opts manifest.Options) ([]manifest.Format, manifest.Subtitles, error) {
	var root node
	if err := xml.Unmarshal(doc, &root); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", manifest.ErrMalformedManifest, err)
	}
	if root.XMLName.Local != "smil" {
		return nil, nil, fmt.Errorf("%w: root element is %q, not smil", manifest.ErrMalformedManifest, root.XMLName.Local)
	}
	log := opts.Log()

	base := smilURL
	for _, meta := range root.findAll("meta") {
		name := meta.attr("name")
		content := meta.attr("content")
		if content != "" && (name == "base" || name == "httpBase") {
			base = content
			break
		}
	}

	formats := []manifest.Format{}
	subtitles := manifest.Subtitles{}
	// One seen-set across all element kinds, so a src referenced both as a
	// medium and as a storyboard is emitted once.
	srcs := map[string]bool{}

	var rtmpCount, httpCount, m3u8Count, imgsCount int

	for _, medium := range root.findAll("video", "audio", "media") {
		src := medium.attr("src")
		if src == "" || srcs[src] {
			continue
		}
		srcs[src] = true

		bitrate := intAttr(medium, "system-bitrate", "systemBitrate") / 1000
		width := intAttr(medium, "width")
		height := intAttr(medium, "height")

		streamer := medium.attr("streamer")
		if streamer == "" {
			streamer = base
		}
		if medium.attr("proto") == "rtmp" || strings.HasPrefix(streamer, "rtmp") {
			rtmpCount++
			formats = append(formats, manifest.Format{
				URL:        streamer,
				PlayPath:   src,
				Ext:        "flv",
				FormatID:   "rtmp-" + strconv.Itoa(orInt(bitrate, rtmpCount)),
				Protocol:   manifest.ProtocolRTMP,
				TBR:        float64(bitrate),
				Width:      width,
				Height:     height,
				Preference: opts.Preference,
				Quality:    opts.Quality,
			})
			continue
		}

		srcURL := manifest.ResolveURL(base, src)
		srcExt := manifest.DetermineExt(srcURL)

		switch {
		case srcExt == "m3u8" || medium.attr("proto") == "m3u8":
			body, resolvedURL, err := fetchSub(srcURL, &opts)
			if err != nil {
				if opts.Fatal {
					return nil, nil, err
				}
				log.Warnf("Failed to download m3u8 playlist %s: %v", srcURL, err)
				continue
			}
			hlsOpts := opts
			hlsOpts.IDPrefix = "hls"
			hlsFormats, hlsSubs, err := hls.Parse(string(body), resolvedURL, hlsOpts)
			if err != nil {
				if opts.Fatal {
					return nil, nil, err
				}
				log.Warnf("Failed to parse m3u8 playlist %s: %v", srcURL, err)
				continue
			}
			// A playlist with exactly one rendition carries no variant
			// metadata; take it from the SMIL medium instead.
			if len(hlsFormats) == 1 {
				m3u8Count++
				hlsFormats[0].FormatID = "hls-" + strconv.Itoa(orInt(bitrate, m3u8Count))
				hlsFormats[0].TBR = float64(bitrate)
				hlsFormats[0].Width = width
				hlsFormats[0].Height = height
			}
			formats = append(formats, hlsFormats...)
			subtitles.Merge(hlsSubs)

		case srcExt == "f4m":
			f4mURL := srcURL
			params := opts.F4MParams
			if len(params) == 0 {
				params = url.Values{"hdcore": {"3.2.0"}, "plugin": {"flowplayer-3.2.0.1"}}
			}
			sep := "?"
			if strings.Contains(f4mURL, "?") {
				sep = "&"
			}
			f4mURL += sep + params.Encode()
			body, resolvedURL, err := fetchSub(f4mURL, &opts)
			if err != nil {
				if opts.Fatal {
					return nil, nil, err
				}
				log.Warnf("Failed to download f4m manifest %s: %v", f4mURL, err)
				continue
			}
			f4mOpts := opts
			f4mOpts.IDPrefix = "hds"
			f4mFormats, err := f4m.Parse(body, resolvedURL, f4mOpts)
			if err != nil {
				if opts.Fatal {
					return nil, nil, err
				}
				log.Warnf("Failed to parse f4m manifest %s: %v", f4mURL, err)
				continue
			}
			formats = append(formats, f4mFormats...)

		case srcExt == "mpd":
			body, resolvedURL, err := fetchSub(srcURL, &opts)
			if err != nil {
				if opts.Fatal {
					return nil, nil, err
				}
				log.Warnf("Failed to download MPD manifest %s: %v", srcURL, err)
				continue
			}
			dashOpts := opts
			dashOpts.IDPrefix = "dash"
			dashFormats, dashSubs, err := dash.Parse(body, resolvedURL, dashOpts)
			if err != nil {
				if opts.Fatal {
					return nil, nil, err
				}
				log.Warnf("Failed to parse MPD manifest %s: %v", srcURL, err)
				continue
			}
			formats = append(formats, dashFormats...)
			subtitles.Merge(dashSubs)

		case ismManifestRe.MatchString(srcURL):
			body, resolvedURL, err := fetchSub(srcURL, &opts)
			if err != nil {
				if opts.Fatal {
					return nil, nil, err
				}
				log.Warnf("Failed to download ISM manifest %s: %v", srcURL, err)
				continue
			}
			ismOpts := opts
			ismOpts.IDPrefix = "mss"
			ismFormats, ismSubs, err := ism.Parse(body, resolvedURL, ismOpts)
			if err != nil {
				if opts.Fatal {
					return nil, nil, err
				}
				log.Warnf("Failed to parse ISM manifest %s: %v", srcURL, err)
				continue
			}
			formats = append(formats, ismFormats...)
			subtitles.Merge(ismSubs)

		case strings.HasPrefix(srcURL, "http") && validURL(srcURL, &opts):
			httpCount++
			ext := srcExt
			if ext == "" {
				ext = manifest.MimetypeExt(medium.attr("type"))
			}
			if ext == "" {
				ext = opts.Ext
			}
			formats = append(formats, manifest.Format{
				URL:        srcURL,
				Ext:        ext,
				FormatID:   "http-" + strconv.Itoa(orInt(bitrate, httpCount)),
				Protocol:   manifest.ProtocolHTTP,
				TBR:        float64(bitrate),
				Width:      width,
				Height:     height,
				Filesize:   int64(intAttr(medium, "size", "fileSize")),
				Preference: opts.Preference,
				Quality:    opts.Quality,
			})
		}
	}

	for _, stream := range root.findAll("imagestream") {
		src := stream.attr("src")
		if src == "" || srcs[src] {
			continue
		}
		srcs[src] = true
		imgsCount++
		formats = append(formats, manifest.Format{
			FormatID:   "imagestream-" + strconv.Itoa(imgsCount),
			URL:        src,
			Ext:        manifest.MimetypeExt(stream.attr("type")),
			ACodec:     manifest.CodecNone,
			VCodec:     manifest.CodecNone,
			Width:      intAttr(stream, "width"),
			Height:     intAttr(stream, "height"),
			FormatNote: "SMIL storyboards",
			Protocol:   manifest.ProtocolHTTP,
			Preference: opts.Preference,
			Quality:    opts.Quality,
		})
	}

	for _, textstream := range root.findAll("textstream", "text") {
		src := textstream.attr("src")
		if src == "" || srcs[src] {
			continue
		}
		srcs[src] = true
		lang := firstAttr(textstream, "systemLanguage", "systemLanguageName", "lang")
		if lang == "" {
			lang = "en"
		}
		ext := manifest.DetermineExt(src)
		if ext == "" {
			ext = manifest.MimetypeExt(textstream.attr("type"))
		}
		subtitles.Add(lang, manifest.SubtitleEntry{
			URL: manifest.ResolveURL(base, src),
			Ext: ext,
		})
	}

	return formats, subtitles, nil
}

func intAttr(n *node, names ...string) int {
	for _, name := range names {
		if v := n.attr(name); v != "" {
			if i, err := strconv.Atoi(v); err == nil {
				return i
			}
		}
	}
	return 0
}

func firstAttr(n *node, names ...string) string {
	for _, name := range names {
		if v := n.attr(name); v != "" {
			return v
		}
	}
	return ""
}

func orInt(a, b int) int {
	if a != 0 {
		return a
	}
	return b
}

// validURL reports whether a direct http format is worth emitting. SMIL
// documents routinely list renditions that no longer exist, so when the
// fetcher can probe, a dead URL is dropped instead of surfaced.
func validURL(rawURL string, opts *manifest.Options) bool {
	prober, ok := opts.Fetcher.(manifest.URLProber)
	if !ok {
		return true
	}
	if err := prober.Probe(rawURL); err != nil {
		opts.Log().Warnf("Skipping unreachable URL %s: %v", rawURL, err)
		return false
	}
	return true
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
