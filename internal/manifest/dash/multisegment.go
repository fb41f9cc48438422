package dash

import (
	"fmt"

	"streamnorm/internal/manifest"
)

// TimelineRun is one resolved S element: start time T (0 = continue from
// the running cursor), duration D in timescale units, R extra repetitions.
type TimelineRun struct {
	T int64
	D int64
	R int64
}

// MultiSegmentInfo is the segment-addressing context inherited down the
// Period -> AdaptationSet -> Representation tree. Each level copies its
// parent and overrides only what it defines itself; sibling branches never
// share a mutable value.
type MultiSegmentInfo struct {
	StartNumber     int64
	Timescale       int64
	SegmentDuration *float64 // in timescale units
	S               []TimelineRun
	TotalNumber     *int64

	Media             string
	Initialization    string // template attribute, expanded later
	InitializationURL string // explicit sourceURL, used verbatim
	SegmentURLs       []string
}

// rootMultiSegmentInfo is the top of the inheritance chain.
func rootMultiSegmentInfo() MultiSegmentInfo {
	return MultiSegmentInfo{StartNumber: 1, Timescale: 1}
}

// extractMultiSegmentInfo overlays the SegmentList or SegmentTemplate
// found at one tree level onto the parent context. SegmentList wins when
// both are present, matching the attribute sharing rules of ISO/IEC
// 23009-1, 5.3.9.2.2.
func extractMultiSegmentInfo(list *SegmentList, tmpl *SegmentTemplate, parent MultiSegmentInfo) (MultiSegmentInfo, error) {
	ms := parent

	common := func(base *MultipleSegmentBase) error {
		if base.Timeline != nil && len(base.Timeline.Segments) > 0 {
			runs := make([]TimelineRun, 0, len(base.Timeline.Segments))
			var total int64
			for _, s := range base.Timeline.Segments {
				if s.D == nil {
					// @d is mandatory (ISO/IEC 23009-1, 5.3.9.6.2).
					return fmt.Errorf("%w: SegmentTimeline S@d", manifest.ErrMissingField)
				}
				runs = append(runs, TimelineRun{T: s.T, D: *s.D, R: s.R})
				total += 1 + s.R
			}
			ms.S = runs
			ms.TotalNumber = &total
		}
		if base.StartNumber != nil {
			ms.StartNumber = *base.StartNumber
		}
		if base.Timescale != nil {
			ms.Timescale = *base.Timescale
		}
		if base.Duration != nil {
			d := *base.Duration
			ms.SegmentDuration = &d
		}
		return nil
	}
	initialization := func(base *MultipleSegmentBase) {
		if base.Initialization != nil && base.Initialization.SourceURL != "" {
			ms.InitializationURL = base.Initialization.SourceURL
			ms.Initialization = ""
		}
	}

	switch {
	case list != nil:
		if err := common(&list.MultipleSegmentBase); err != nil {
			return ms, err
		}
		initialization(&list.MultipleSegmentBase)
		if len(list.SegmentURLs) > 0 {
			urls := make([]string, 0, len(list.SegmentURLs))
			for _, su := range list.SegmentURLs {
				if su.Media == "" {
					return ms, fmt.Errorf("%w: SegmentURL@media", manifest.ErrMissingField)
				}
				urls = append(urls, su.Media)
			}
			ms.SegmentURLs = urls
		}
	case tmpl != nil:
		if err := common(&tmpl.MultipleSegmentBase); err != nil {
			return ms, err
		}
		if tmpl.Media != "" {
			ms.Media = tmpl.Media
		}
		if tmpl.InitializationAttr != "" {
			ms.Initialization = tmpl.InitializationAttr
			ms.InitializationURL = ""
		} else {
			initialization(&tmpl.MultipleSegmentBase)
		}
	}
	return ms, nil
}
