// Package dash parses DASH MPD manifests into the shared format model:
// per-period extraction plus cross-period merging.
package dash

import (
	"encoding/xml"
	"errors"
	"regexp"
	"strconv"
	"strings"
)

// MPD is the root element of a Media Presentation Description. Element
// names are matched namespace-agnostically, which covers the urn:mpeg
// namespace variants seen in the wild.
type MPD struct {
	XMLName                   xml.Name  `xml:"MPD"`
	Type                      string    `xml:"type,attr"`
	Profiles                  string    `xml:"profiles,attr"`
	MediaPresentationDuration string    `xml:"mediaPresentationDuration,attr"`
	MinBufferTime             string    `xml:"minBufferTime,attr"`
	BaseURLs                  []BaseURL `xml:"BaseURL"`
	Periods                   []Period  `xml:"Period"`
}

// BaseURL is a BaseURL element; the contentLength attribute is a YouTube
// extension carrying the total file size.
type BaseURL struct {
	Value         string `xml:",chardata"`
	ContentLength int64  `xml:"contentLength,attr"`
}

// Period represents one media content period.
type Period struct {
	ID              string           `xml:"id,attr"`
	Start           string           `xml:"start,attr"`
	Duration        string           `xml:"duration,attr"`
	BaseURLs        []BaseURL        `xml:"BaseURL"`
	SegmentTemplate *SegmentTemplate `xml:"SegmentTemplate"`
	SegmentList     *SegmentList     `xml:"SegmentList"`
	AdaptationSets  []AdaptationSet  `xml:"AdaptationSet"`
}

// AdaptationSet groups interchangeable representations. Attributes shared
// with Representation act as defaults for its representations.
type AdaptationSet struct {
	ID                string              `xml:"id,attr"`
	ContentType       string              `xml:"contentType,attr"`
	MimeType          string              `xml:"mimeType,attr"`
	Codecs            string              `xml:"codecs,attr"`
	Lang              string              `xml:"lang,attr"`
	Width             int                 `xml:"width,attr"`
	Height            int                 `xml:"height,attr"`
	FrameRate         string              `xml:"frameRate,attr"`
	AudioSamplingRate int                 `xml:"audioSamplingRate,attr"`
	BaseURLs          []BaseURL           `xml:"BaseURL"`
	ContentProtection []ContentProtection `xml:"ContentProtection"`
	SegmentTemplate   *SegmentTemplate    `xml:"SegmentTemplate"`
	SegmentList       *SegmentList        `xml:"SegmentList"`
	Representations   []Representation    `xml:"Representation"`
}

// Representation is one specific media stream.
type Representation struct {
	ID                string              `xml:"id,attr"`
	Bandwidth         int64               `xml:"bandwidth,attr"`
	ContentType       string              `xml:"contentType,attr"`
	MimeType          string              `xml:"mimeType,attr"`
	Codecs            string              `xml:"codecs,attr"`
	Lang              string              `xml:"lang,attr"`
	Width             int                 `xml:"width,attr"`
	Height            int                 `xml:"height,attr"`
	FrameRate         string              `xml:"frameRate,attr"`
	AudioSamplingRate int                 `xml:"audioSamplingRate,attr"`
	BaseURLs          []BaseURL           `xml:"BaseURL"`
	ContentProtection []ContentProtection `xml:"ContentProtection"`
	SegmentTemplate   *SegmentTemplate    `xml:"SegmentTemplate"`
	SegmentList       *SegmentList        `xml:"SegmentList"`
}

// ContentProtection signals DRM on the enclosing element. Presence is all
// the parser cares about.
type ContentProtection struct {
	SchemeIDURI string `xml:"schemeIdUri,attr"`
	Value       string `xml:"value,attr"`
}

// MultipleSegmentBase carries the attributes and children SegmentTemplate
// and SegmentList share (ISO/IEC 23009-1, 5.3.9.2.2).
type MultipleSegmentBase struct {
	Timescale      *int64           `xml:"timescale,attr"`
	Duration       *float64         `xml:"duration,attr"`
	StartNumber    *int64           `xml:"startNumber,attr"`
	Initialization *URLElement      `xml:"Initialization"`
	Timeline       *SegmentTimeline `xml:"SegmentTimeline"`
}

// SegmentTemplate defines the URL template scheme for segments.
type SegmentTemplate struct {
	MultipleSegmentBase
	Media              string `xml:"media,attr"`
	InitializationAttr string `xml:"initialization,attr"`
}

// SegmentList enumerates segment URLs explicitly.
type SegmentList struct {
	MultipleSegmentBase
	SegmentURLs []SegmentURL `xml:"SegmentURL"`
}

// SegmentURL is one explicit media segment reference.
type SegmentURL struct {
	Media string `xml:"media,attr"`
}

// URLElement is an Initialization (or similar) child pointing at a URL.
type URLElement struct {
	SourceURL string `xml:"sourceURL,attr"`
}

// SegmentTimeline is a run-length-encoded list of segment timings.
type SegmentTimeline struct {
	Segments []S `xml:"S"`
}

// S is a single timeline run: start time t (0 = continue from cursor),
// duration d in timescale units, and r additional repetitions.
type S struct {
	T int64  `xml:"t,attr"`
	D *int64 `xml:"d,attr"`
	R int64  `xml:"r,attr"`
}

var isoDurationRe = regexp.MustCompile(`(\d+(?:\.\d+)?)([DHMS])`)

// ParseISODuration parses an ISO 8601 duration such as "PT1H30M12.5S" or
// "P2DT6H" into seconds. Year/month designators are rejected since they
// have no fixed length.
func ParseISODuration(duration string) (float64, error) {
	if !strings.HasPrefix(duration, "P") {
		return 0, errors.New("invalid ISO 8601 duration: " + duration)
	}
	datePart, timePart, hasTime := strings.Cut(duration[1:], "T")
	if strings.ContainsAny(datePart, "YM") {
		return 0, errors.New("unsupported ISO 8601 duration unit in " + duration)
	}

	var total float64
	add := func(part string, inTime bool) error {
		matched := 0
		for _, m := range isoDurationRe.FindAllStringSubmatch(part, -1) {
			value, err := strconv.ParseFloat(m[1], 64)
			if err != nil {
				return err
			}
			matched += len(m[0])
			switch m[2] {
			case "D":
				total += value * 86400
			case "H":
				total += value * 3600
			case "M":
				if !inTime {
					return errors.New("unsupported ISO 8601 duration unit in " + duration)
				}
				total += value * 60
			case "S":
				total += value
			}
		}
		if matched != len(part) {
			return errors.New("invalid ISO 8601 duration: " + duration)
		}
		return nil
	}
	if err := add(datePart, false); err != nil {
		return 0, err
	}
	if hasTime {
		if err := add(timePart, true); err != nil {
			return 0, err
		}
	}
	return total, nil
}

// parseFrameRate handles both plain ("25") and fractional ("30000/1001")
// frame rate notations.
func parseFrameRate(fr string) float64 {
	if fr == "" {
		return 0
	}
	if num, den, ok := strings.Cut(fr, "/"); ok {
		n, err1 := strconv.ParseFloat(num, 64)
		d, err2 := strconv.ParseFloat(den, 64)
		if err1 == nil && err2 == nil && d != 0 {
			return n / d
		}
		return 0
	}
	f, _ := strconv.ParseFloat(fr, 64)
	return f
}
