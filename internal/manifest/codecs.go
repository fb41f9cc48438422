package manifest

import (
	"regexp"
	"strings"
)

// Codecs is the result of classifying an RFC 6381 codecs attribute.
// VCodec/ACodec are "none" when the string named no codec of that kind;
// SCodec stays empty unless a subtitle codec was named.
type Codecs struct {
	VCodec string
	ACodec string
	SCodec string
}

var videoCodecTags = map[string]bool{
	"avc1": true, "avc2": true, "avc3": true, "avc4": true,
	"h263": true, "h264": true, "mp4v": true,
	"hev1": true, "hev2": true, "hvc1": true,
	"vp8": true, "vp9": true, "vp09": true,
	"av1": true, "av01": true, "theora": true,
	"dvh1": true, "dvhe": true,
}

var audioCodecTags = map[string]bool{
	"mp4a": true, "aac": true, "flac": true, "opus": true, "vorbis": true,
	"mp3": true, "ac-3": true, "ac-4": true, "ec-3": true, "eac3": true,
	"dtsc": true, "dtse": true, "dtsh": true, "dtsl": true,
}

var subtitleCodecTags = map[string]bool{"stpp": true, "wvtt": true}

var leadingZeros = regexp.MustCompile(`0+(\d)`)

// ParseCodecs splits a comma-separated codecs string and assigns each
// entry to a video, audio, or subtitle slot by its first dotted component.
// ok is false when nothing was recognized, in which case the result
// carries no statement at all.
func ParseCodecs(codecsStr string) (Codecs, bool) {
	var vcodec, acodec, scodec string
	for _, full := range strings.Split(strings.Trim(strings.TrimSpace(codecsStr), ","), ",") {
		full = strings.TrimSpace(full)
		if full == "" {
			continue
		}
		tag := full
		if i := strings.Index(tag, "."); i >= 0 {
			tag = tag[:i]
		}
		tag = leadingZeros.ReplaceAllString(strings.ToLower(tag), "$1")
		switch {
		case videoCodecTags[tag]:
			if vcodec == "" {
				vcodec = full
			}
		case audioCodecTags[tag]:
			if acodec == "" {
				acodec = full
			}
		case subtitleCodecTags[tag]:
			if scodec == "" {
				scodec = full
			}
		}
	}
	if vcodec == "" && acodec == "" && scodec == "" {
		return Codecs{}, false
	}
	c := Codecs{VCodec: vcodec, ACodec: acodec, SCodec: scodec}
	if c.VCodec == "" {
		c.VCodec = CodecNone
	}
	if c.ACodec == "" {
		c.ACodec = CodecNone
	}
	return c, true
}

// Apply copies the classification onto a format.
func (c Codecs) Apply(f *Format) {
	f.VCodec = c.VCodec
	f.ACodec = c.ACodec
	if c.SCodec != "" {
		f.SCodec = c.SCodec
	}
}
