// Package ism parses Smooth Streaming (ISM) manifests into the shared
// format model.
//
// References:
//  1. [MS-SSTR]: Smooth Streaming Protocol,
//     https://msdn.microsoft.com/en-us/library/ff469518.aspx
package ism

import (
	"encoding/xml"
	"fmt"
	"regexp"
	"strconv"

	"streamnorm/internal/manifest"
)

// defaultTimescale is 100ns ticks, the Smooth Streaming default.
const defaultTimescale = 10000000

// SmoothStreamingMedia is the root element of an ISM manifest.
type SmoothStreamingMedia struct {
	XMLName    xml.Name      `xml:"SmoothStreamingMedia"`
	Duration   *int64        `xml:"Duration,attr"`
	TimeScale  int64         `xml:"TimeScale,attr"`
	IsLive     string        `xml:"IsLive,attr"`
	Protection *struct{}     `xml:"Protection"`
	Streams    []StreamIndex `xml:"StreamIndex"`
}

// StreamIndex describes one stream (video, audio or text) and its
// fragment timeline.
type StreamIndex struct {
	Type      string         `xml:"Type,attr"`
	URL       string         `xml:"Url,attr"`
	TimeScale int64          `xml:"TimeScale,attr"`
	Name      string         `xml:"Name,attr"`
	Language  string         `xml:"Language,attr"`
	Tracks    []QualityLevel `xml:"QualityLevel"`
	Fragments []C            `xml:"c"`
}

// QualityLevel is one track of a stream at a specific bitrate.
type QualityLevel struct {
	FourCC             string `xml:"FourCC,attr"`
	AudioTag           string `xml:"AudioTag,attr"`
	Bitrate            *int64 `xml:"Bitrate,attr"`
	MaxWidth           int    `xml:"MaxWidth,attr"`
	MaxHeight          int    `xml:"MaxHeight,attr"`
	Width              int    `xml:"Width,attr"`
	Height             int    `xml:"Height,attr"`
	SamplingRate       int    `xml:"SamplingRate,attr"`
	Channels           *int   `xml:"Channels,attr"`
	BitsPerSample      *int   `xml:"BitsPerSample,attr"`
	NALUnitLengthField *int   `xml:"NALUnitLengthField,attr"`
	CodecPrivateData   string `xml:"CodecPrivateData,attr"`
}

// C is one fragment timeline element: start time t (absent = continue from
// the cursor), duration d, repeat count r.
type C struct {
	T *int64 `xml:"t,attr"`
	D *int64 `xml:"d,attr"`
	R *int64 `xml:"r,attr"`
}

// knownAudioTags resolves codecs for tracks that state an AudioTag but no
// FourCC.
var knownAudioTags = map[string]string{"255": "AACL", "65534": "EC-3"}

// supportedCodecs is the set of FourCC values the downstream muxer can
// handle. TODO: add support for WVC1 and WMAP.
var supportedCodecs = map[string]bool{
	"H264": true, "AVC1": true, "AACL": true, "TTML": true, "EC-3": true,
}

var (
	bitrateRe   = regexp.MustCompile(`\{[Bb]itrate\}`)
	startTimeRe = regexp.MustCompile(`\{start[ _]time\}`)
)

func intOrDefault(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

// Parse converts an ISM manifest into formats and subtitles. Only VOD
// snapshots are supported; live manifests are rejected with
// ErrLiveManifest. Text streams come back as subtitle entries carrying the
// fragment list and codec metadata a muxer needs to write a standalone
// subtitle file.
func Parse(doc []byte, ismURL string, opts manifest.Options) ([]manifest.Format, manifest.Subtitles, error) {
	var ism SmoothStreamingMedia
	if err := xml.Unmarshal(doc, &ism); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", manifest.ErrMalformedManifest, err)
	}
	if ism.IsLive == "TRUE" {
		return nil, nil, manifest.ErrLiveManifest
	}
	if ism.Duration == nil {
		return nil, nil, fmt.Errorf("%w: SmoothStreamingMedia@Duration", manifest.ErrMissingField)
	}
	duration := *ism.Duration
	timescale := ism.TimeScale
	if timescale == 0 {
		timescale = defaultTimescale
	}
	log := opts.Log()

	formats := []manifest.Format{}
	subtitles := manifest.Subtitles{}

	for _, stream := range ism.Streams {
		streamType := stream.Type
		if streamType != "video" && streamType != "audio" && streamType != "text" {
			continue
		}
		if stream.URL == "" {
			return nil, nil, fmt.Errorf("%w: StreamIndex@Url", manifest.ErrMissingField)
		}
		streamTimescale := stream.TimeScale
		if streamTimescale == 0 {
			streamTimescale = timescale
		}
		language := normalizeLanguage(stream.Language)

		for _, track := range stream.Tracks {
			fourcc := track.FourCC
			if fourcc == "" {
				fourcc = knownAudioTags[track.AudioTag]
			}
			if !supportedCodecs[fourcc] {
				log.Warnf("%s is not a supported codec", fourcc)
				continue
			}
			if track.Bitrate == nil {
				return nil, nil, fmt.Errorf("%w: QualityLevel@Bitrate", manifest.ErrMissingField)
			}
			bitrate := *track.Bitrate
			tbr := bitrate / 1000
			// MaxWidth/MaxHeight are often missing while Width/Height are
			// present, so the latter act as fallbacks.
			width := intOr(track.MaxWidth, track.Width)
			height := intOr(track.MaxHeight, track.Height)

			// Plain concatenation: URL resolution would percent-encode the
			// still-unsubstituted {start time} placeholder.
			urlPattern := bitrateRe.ReplaceAllString(stream.URL, strconv.FormatInt(bitrate, 10))
			if !manifest.IsAbsoluteURL(urlPattern) {
				urlPattern = manifest.BaseURL(ismURL) + urlPattern
			}

			fragments, err := expandFragments(stream.Fragments, urlPattern, duration, streamTimescale)
			if err != nil {
				return nil, nil, err
			}

			switch streamType {
			case "text":
				subtitles.Add(language, manifest.SubtitleEntry{
					Ext:         "ismt",
					Protocol:    manifest.ProtocolISM,
					URL:         ismURL,
					ManifestURL: ismURL,
					Fragments:   fragments,
					DownloadParams: &manifest.DownloadParams{
						StreamType:       streamType,
						Duration:         duration,
						Timescale:        streamTimescale,
						FourCC:           fourcc,
						Language:         language,
						CodecPrivateData: track.CodecPrivateData,
					},
				})
			case "video", "audio":
				f := manifest.Format{
					FormatID:    manifest.JoinID(opts.IDPrefix, stream.Name, strconv.FormatInt(tbr, 10)),
					URL:         ismURL,
					ManifestURL: ismURL,
					Width:       width,
					Height:      height,
					TBR:         float64(tbr),
					ASR:         track.SamplingRate,
					Protocol:    manifest.ProtocolISM,
					Fragments:   fragments,
					Language:    language,
					Preference:  opts.Preference,
					Quality:     opts.Quality,
					DownloadParams: &manifest.DownloadParams{
						StreamType:         streamType,
						Duration:           duration,
						Timescale:          streamTimescale,
						Width:              width,
						Height:             height,
						FourCC:             fourcc,
						Language:           language,
						CodecPrivateData:   track.CodecPrivateData,
						SamplingRate:       track.SamplingRate,
						Channels:           intOrDefault(track.Channels, 2),
						BitsPerSample:      intOrDefault(track.BitsPerSample, 16),
						NALUnitLengthField: intOrDefault(track.NALUnitLengthField, 4),
					},
				}
				if streamType == "video" {
					f.Ext = "ismv"
					f.VCodec = fourcc
					f.ACodec = manifest.CodecNone
				} else {
					f.Ext = "isma"
					f.VCodec = manifest.CodecNone
					f.ACodec = fourcc
					f.AudioChannels = intOrDefault(track.Channels, 0)
				}
				if ism.Protection != nil {
					f.HasDRM = manifest.DRMYes
				}
				formats = append(formats, f)
			}
		}
	}
	return formats, subtitles, nil
}

func intOr(a, b int) int {
	if a != 0 {
		return a
	}
	return b
}

// expandFragments walks the <c> timeline. t moves the time cursor when
// present; a missing duration is inferred from the next fragment's start
// time, or from the stream duration for the last one, split evenly across
// the run's repetitions.
func expandFragments(cs []C, urlPattern string, duration, timescale int64) ([]manifest.Fragment, error) {
	var fragments []manifest.Fragment
	var cursor float64

	for i, c := range cs {
		if c.T != nil {
			cursor = float64(*c.T)
		}
		repeat := int64(1)
		if c.R != nil && *c.R > 0 {
			repeat = *c.R
		}
		var fragDuration float64
		if c.D != nil && *c.D > 0 {
			fragDuration = float64(*c.D)
		} else {
			next := duration
			if i+1 < len(cs) {
				if cs[i+1].T == nil {
					return nil, fmt.Errorf("%w: c@d with no following c@t to infer it from", manifest.ErrMissingField)
				}
				next = *cs[i+1].T
			}
			fragDuration = (float64(next) - cursor) / float64(repeat)
		}
		for j := int64(0); j < repeat; j++ {
			fragments = append(fragments, manifest.Fragment{
				URL:      startTimeRe.ReplaceAllString(urlPattern, strconv.FormatInt(int64(cursor), 10)),
				Duration: fragDuration / float64(timescale),
			})
			cursor += fragDuration
		}
	}
	return fragments, nil
}
