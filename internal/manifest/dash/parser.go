package dash

import (
	"encoding/xml"
	"fmt"
	"math"
	"strconv"
	"strings"

	"streamnorm/internal/manifest"
)

// PeriodEntry is the parse result of one Period, kept separate so callers
// can merge periods themselves or inspect them individually.
type PeriodEntry struct {
	ID        string
	Formats   []manifest.Format
	Subtitles manifest.Subtitles
}

// Parse converts an MPD document into formats and subtitles, merging all
// periods into one continuous timeline.
func Parse(doc []byte, mpdURL string, opts manifest.Options) ([]manifest.Format, manifest.Subtitles, error) {
	periods, err := ParsePeriods(doc, mpdURL, opts)
	if err != nil {
		return nil, nil, err
	}
	formats, subtitles := MergePeriods(periods, opts.Log())
	return formats, subtitles, nil
}

// ParsePeriods parses an MPD document into independent per-period results.
func ParsePeriods(doc []byte, mpdURL string, opts manifest.Options) ([]PeriodEntry, error) {
	var mpd MPD
	if err := xml.Unmarshal(doc, &mpd); err != nil {
		return nil, fmt.Errorf("%w: %v", manifest.ErrMalformedManifest, err)
	}
	return parsePeriods(&mpd, mpdURL, opts)
}

func strOr(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func intOr(a, b int) int {
	if a != 0 {
		return a
	}
	return b
}

func firstBaseURL(urls []BaseURL) *BaseURL {
	if len(urls) == 0 {
		return nil
	}
	return &urls[0]
}

// resolveBaseURL climbs Representation -> AdaptationSet -> Period -> MPD,
// prefixing each level's BaseURL until the accumulated URL is absolute,
// then anchors a still-relative result on the manifest's own base.
func resolveBaseURL(mpdBaseURL string, levels ...[]BaseURL) string {
	base := ""
	for _, level := range levels {
		e := firstBaseURL(level)
		if e == nil || e.Value == "" {
			continue
		}
		base = e.Value + base
		if manifest.IsAbsoluteURL(base) {
			break
		}
	}
	switch {
	case mpdBaseURL == "" || manifest.IsAbsoluteURL(base):
		return base
	case strings.HasPrefix(base, "/"):
		return manifest.ResolveURL(mpdBaseURL, base)
	default:
		if !strings.HasSuffix(mpdBaseURL, "/") {
			mpdBaseURL += "/"
		}
		return mpdBaseURL + base
	}
}

func locate(f *manifest.Fragment, location string) {
	if manifest.IsAbsoluteURL(location) {
		f.URL = location
	} else {
		f.Path = location
	}
}

// mutedLanguages carry no usable language statement.
var mutedLanguages = map[string]bool{"mul": true, "und": true, "zxx": true, "mis": true}

func parsePeriods(mpd *MPD, mpdURL string, opts manifest.Options) ([]PeriodEntry, error) {
	log := opts.Log()
	mpdBaseURL := manifest.BaseURL(mpdURL)

	mpdDuration := 0.0
	if mpd.MediaPresentationDuration != "" {
		if d, err := ParseISODuration(mpd.MediaPresentationDuration); err == nil {
			mpdDuration = d
		}
	}

	// Zero-based counter per resolved URL, shared across periods, so
	// sibling streams muxed from one physical file stay aligned.
	streamNumbers := map[string]int{}

	var entries []PeriodEntry
	for periodIdx := range mpd.Periods {
		period := &mpd.Periods[periodIdx]
		entry := PeriodEntry{
			ID:        period.ID,
			Subtitles: manifest.Subtitles{},
		}
		if entry.ID == "" {
			entry.ID = "period-" + strconv.Itoa(periodIdx)
		}

		periodDuration := mpdDuration
		if period.Duration != "" {
			if d, err := ParseISODuration(period.Duration); err == nil {
				periodDuration = d
			}
		}
		periodMS, err := extractMultiSegmentInfo(period.SegmentList, period.SegmentTemplate, rootMultiSegmentInfo())
		if err != nil {
			return nil, err
		}

		for asIdx := range period.AdaptationSets {
			as := &period.AdaptationSets[asIdx]
			asMS, err := extractMultiSegmentInfo(as.SegmentList, as.SegmentTemplate, periodMS)
			if err != nil {
				return nil, err
			}

			for repIdx := range as.Representations {
				rep := &as.Representations[repIdx]

				// @mimeType is mandatory (ISO/IEC 23009-1, 5.3.7.2).
				mimeType := strOr(rep.MimeType, as.MimeType)
				if mimeType == "" {
					return nil, fmt.Errorf("%w: Representation@mimeType", manifest.ErrMissingField)
				}
				contentType := strOr(rep.ContentType, as.ContentType)
				if contentType == "" {
					contentType, _, _ = strings.Cut(mimeType, "/")
				}

				codecStr := strOr(rep.Codecs, as.Codecs)
				var codecs manifest.Codecs
				codecsKnown := false
				if mimeType == "application/x-rawcc" {
					// Binary caption track seen in some live streams; the
					// codecs attribute names the caption codec directly.
					codecs = manifest.Codecs{SCodec: codecStr}
					codecsKnown = codecStr != ""
				} else {
					codecs, codecsKnown = manifest.ParseCodecs(codecStr)
				}

				switch contentType {
				case "video", "audio", "text":
				default:
					switch {
					case mimeType == "image/jpeg":
						contentType = "image/jpeg"
					case codecsKnown && codecs.VCodec != manifest.CodecNone:
						contentType = "video"
					case codecsKnown && codecs.ACodec != manifest.CodecNone:
						contentType = "audio"
					case codecs.SCodec != "":
						contentType = "text"
					case manifest.IsTextExt(manifest.MimetypeExt(mimeType)):
						contentType = "text"
					default:
						log.Warnf("Unknown MIME type %s in DASH manifest", mimeType)
						continue
					}
				}

				baseURL := resolveBaseURL(mpdBaseURL, rep.BaseURLs, as.BaseURLs, period.BaseURLs, mpd.BaseURLs)
				lang := strOr(rep.Lang, as.Lang)
				var filesize int64
				if e := firstBaseURL(rep.BaseURLs); e != nil {
					filesize = e.ContentLength
				}
				bandwidth := rep.Bandwidth

				formatID := rep.ID
				if formatID == "" {
					formatID = contentType
				}
				formatID = manifest.JoinID(opts.IDPrefix, formatID)

				f := manifest.Format{
					ManifestURL: mpdURL,
					Preference:  opts.Preference,
					Quality:     opts.Quality,
				}
				switch contentType {
				case "video", "audio":
					f.FormatID = formatID
					f.Ext = manifest.MimetypeExt(mimeType)
					f.Width = intOr(rep.Width, as.Width)
					f.Height = intOr(rep.Height, as.Height)
					f.TBR = float64(bandwidth) / 1000
					f.ASR = intOr(rep.AudioSamplingRate, as.AudioSamplingRate)
					f.FPS = parseFrameRate(strOr(rep.FrameRate, as.FrameRate))
					if !mutedLanguages[lang] {
						f.Language = lang
					}
					f.FormatNote = "DASH " + contentType
					f.Filesize = filesize
					f.Container = f.Ext + "_dash"
					if codecsKnown {
						codecs.Apply(&f)
					}
				case "text":
					f.Ext = manifest.MimetypeExt(mimeType)
					f.Filesize = filesize
					if codecs.SCodec != "" {
						f.SCodec = codecs.SCodec
					}
				case "image/jpeg":
					f.FormatID = formatID
					f.Ext = "mhtml"
					f.FormatNote = "DASH storyboards (jpeg)"
					f.VCodec = manifest.CodecNone
					f.ACodec = manifest.CodecNone
				}
				if len(as.ContentProtection) > 0 || len(rep.ContentProtection) > 0 {
					f.HasDRM = manifest.DRMYes
				}

				repMS, err := extractMultiSegmentInfo(rep.SegmentList, rep.SegmentTemplate, asMS)
				if err != nil {
					return nil, err
				}

				// @initialization is a regular template; only $Bandwidth$
				// is permitted in it (ISO/IEC 23009-1, 5.3.9.4.2).
				if repMS.Initialization != "" {
					initTmpl := PrepareTemplate(repMS.Initialization, rep.ID, "Bandwidth")
					repMS.InitializationURL = initTmpl.Expand(TemplateValues{Bandwidth: bandwidth})
				}

				fragments, err := enumerateFragments(&repMS, rep.ID, bandwidth, periodDuration)
				if err != nil {
					return nil, err
				}

				if fragments != nil {
					// mpdURL may be empty when the manifest was parsed
					// from inline text.
					f.URL = strOr(mpdURL, baseURL)
					f.FragmentBaseURL = baseURL
					f.Protocol = manifest.ProtocolDASH
					if mimeType == "image/jpeg" {
						f.Protocol = manifest.ProtocolMHTML
					}
					if repMS.InitializationURL != "" {
						if f.URL == "" {
							f.URL = repMS.InitializationURL
						}
						var init manifest.Fragment
						locate(&init, repMS.InitializationURL)
						fragments = append([]manifest.Fragment{init}, fragments...)
					}
					f.Fragments = fragments
					if periodDuration == 0 {
						for _, frag := range fragments {
							periodDuration += frag.Duration
						}
					}
				} else {
					// No recognized fragmentation scheme; assume direct
					// access to unfragmented media.
					f.URL = baseURL
				}

				switch contentType {
				case "video", "audio", "image/jpeg":
					n := streamNumbers[f.URL]
					streamNumbers[f.URL] = n + 1
					num := n
					f.ManifestStreamNumber = &num
					entry.Formats = append(entry.Formats, f)
				case "text":
					subLang := lang
					if subLang == "" {
						subLang = "und"
					}
					entry.Subtitles.Add(subLang, manifest.SubtitleEntry{
						URL:             f.URL,
						Ext:             f.Ext,
						Protocol:        f.Protocol,
						ManifestURL:     f.ManifestURL,
						Fragments:       f.Fragments,
						FragmentBaseURL: f.FragmentBaseURL,
						Filesize:        f.Filesize,
					})
				}
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// enumerateFragments expands the representation's segment addressing into
// a flat fragment list. The disjoint cases, in priority order: a media
// template with $Number$ and a finite count, a media template driven by a
// SegmentTimeline, explicit SegmentURLs paired with a timeline, and plain
// SegmentURLs. A nil, nil return means the representation is unfragmented.
func enumerateFragments(ms *MultiSegmentInfo, repID string, bandwidth int64, periodDuration float64) ([]manifest.Fragment, error) {
	timescale := float64(ms.Timescale)

	switch {
	case ms.SegmentURLs == nil && ms.Media != "":
		tmpl := PrepareTemplate(ms.Media, repID, "Number", "Bandwidth", "Time")

		if tmpl.UsesNumber() && ms.S == nil {
			var segmentDuration float64
			total := ms.TotalNumber
			if total == nil {
				if ms.SegmentDuration == nil {
					return nil, fmt.Errorf("%w: SegmentTemplate duration or timeline", manifest.ErrMissingField)
				}
				segmentDuration = *ms.SegmentDuration / timescale
				n := int64(math.Ceil(periodDuration / segmentDuration))
				total = &n
			} else if ms.SegmentDuration != nil {
				segmentDuration = *ms.SegmentDuration / timescale
			}
			fragments := make([]manifest.Fragment, 0, *total)
			for number := ms.StartNumber; number < ms.StartNumber+*total; number++ {
				frag := manifest.Fragment{Duration: segmentDuration}
				locate(&frag, tmpl.Expand(TemplateValues{Number: number, Bandwidth: bandwidth}))
				fragments = append(fragments, frag)
			}
			return fragments, nil
		}

		if ms.S == nil {
			return nil, fmt.Errorf("%w: SegmentTimeline", manifest.ErrMissingField)
		}
		var fragments []manifest.Fragment
		var segmentTime int64
		number := ms.StartNumber
		add := func(d int64) {
			frag := manifest.Fragment{Duration: float64(d) / timescale}
			locate(&frag, tmpl.Expand(TemplateValues{Time: segmentTime, Bandwidth: bandwidth, Number: number}))
			fragments = append(fragments, frag)
			number++
		}
		for _, run := range ms.S {
			if run.T != 0 {
				segmentTime = run.T
			}
			add(run.D)
			for i := int64(0); i < run.R; i++ {
				segmentTime += run.D
				add(run.D)
			}
			segmentTime += run.D
		}
		return fragments, nil

	case ms.SegmentURLs != nil && ms.S != nil:
		// Explicit URLs paired 1:1 with timeline durations.
		var fragments []manifest.Fragment
		idx := 0
		for _, run := range ms.S {
			duration := float64(run.D) / timescale
			for i := int64(0); i <= run.R; i++ {
				if idx >= len(ms.SegmentURLs) {
					return nil, fmt.Errorf("%w: SegmentTimeline enumerates more segments than SegmentURL entries", manifest.ErrMalformedManifest)
				}
				frag := manifest.Fragment{Duration: duration}
				locate(&frag, ms.SegmentURLs[idx])
				fragments = append(fragments, frag)
				idx++
			}
		}
		return fragments, nil

	case ms.SegmentURLs != nil:
		var segmentDuration float64
		if ms.SegmentDuration != nil {
			segmentDuration = *ms.SegmentDuration / timescale
		}
		fragments := make([]manifest.Fragment, 0, len(ms.SegmentURLs))
		for _, u := range ms.SegmentURLs {
			frag := manifest.Fragment{Duration: segmentDuration}
			locate(&frag, u)
			fragments = append(fragments, frag)
		}
		return fragments, nil
	}
	return nil, nil
}
