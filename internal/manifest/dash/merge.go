package dash

import (
	"streamnorm/internal/logger"
	"streamnorm/internal/manifest"
)

// mergeKey is the structural identity of a format across periods: every
// field except format_id, fragments and manifest_stream_number. Two
// representations agreeing on all of these are treated as one continuous
// stream. This is a best-effort heuristic, not a strict invariant;
// legitimately distinct representations that agree on every field would
// collapse into one.
type mergeKey struct {
	url             string
	manifestURL     string
	fragmentBaseURL string
	playPath        string
	ext             string
	protocol        manifest.Protocol
	width, height   int
	fps             float64
	tbr, vbr, abr   float64
	asr             int
	vcodec          string
	acodec          string
	scodec          string
	container       string
	language        string
	audioChannels   int
	filesize        int64
	hasDRM          manifest.DRMFlag
	formatNote      string
	formatIndex     int
	preference      int
	quality         int
	downloadParams  *manifest.DownloadParams
}

func keyOf(f *manifest.Format) mergeKey {
	formatIndex := -1
	if f.FormatIndex != nil {
		formatIndex = *f.FormatIndex
	}
	return mergeKey{
		url:             f.URL,
		manifestURL:     f.ManifestURL,
		fragmentBaseURL: f.FragmentBaseURL,
		playPath:        f.PlayPath,
		ext:             f.Ext,
		protocol:        f.Protocol,
		width:           f.Width,
		height:          f.Height,
		fps:             f.FPS,
		tbr:             f.TBR,
		vbr:             f.VBR,
		abr:             f.ABR,
		asr:             f.ASR,
		vcodec:          f.VCodec,
		acodec:          f.ACodec,
		scodec:          f.SCodec,
		container:       f.Container,
		language:        f.Language,
		audioChannels:   f.AudioChannels,
		filesize:        f.Filesize,
		hasDRM:          f.HasDRM,
		formatNote:      f.FormatNote,
		formatIndex:     formatIndex,
		preference:      f.Preference,
		quality:         f.Quality,
		downloadParams:  f.DownloadParams,
	}
}

// MergePeriods combines per-period results into a single format list by
// concatenating the fragment lists of structurally identical formats in
// period order. Merging an already-merged list again is a no-op, since a
// merged list carries each structural identity exactly once.
func MergePeriods(periods []PeriodEntry, log logger.Logger) ([]manifest.Format, manifest.Subtitles) {
	formats := []manifest.Format{}
	subtitles := manifest.Subtitles{}
	seen := map[mergeKey]int{}

	warned := false
	for _, period := range periods {
		for i := range period.Formats {
			f := period.Formats[i]
			key := keyOf(&f)
			if idx, ok := seen[key]; ok {
				if len(f.Fragments) > 0 {
					formats[idx].Fragments = append(formats[idx].Fragments, f.Fragments...)
				}
				continue
			}
			seen[key] = len(formats)
			formats = append(formats, f)
		}

		if len(subtitles) > 0 && len(period.Subtitles) > 0 && !warned {
			log.Warnf("Found subtitles in multiple periods in the DASH manifest; the subtitle timeline may have gaps")
			warned = true
		}
		subtitles.Merge(period.Subtitles)
	}
	return formats, subtitles
}
