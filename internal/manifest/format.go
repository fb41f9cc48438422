package manifest

// Protocol identifies how a format's media data is retrieved. The set is
// closed; downstream segment downloaders dispatch on it.
type Protocol string

const (
	ProtocolHTTP       Protocol = "http"
	ProtocolM3U8       Protocol = "m3u8"
	ProtocolM3U8Native Protocol = "m3u8_native"
	ProtocolDASH       Protocol = "http_dash_segments"
	ProtocolISM        Protocol = "ism"
	ProtocolF4M        Protocol = "f4m"
	ProtocolRTMP       Protocol = "rtmp"
	ProtocolRTSP       Protocol = "rtsp"
	ProtocolMHTML      Protocol = "mhtml"
)

// CodecNone marks a codec slot as known-absent. The empty string means
// unknown, which is a different statement.
const CodecNone = "none"

// DRMFlag reports whether DRM was detected on a format. Detection is purely
// informational; nothing here ever negotiates keys.
type DRMFlag string

const (
	DRMUnknown DRMFlag = ""
	DRMYes     DRMFlag = "yes"
	DRMMaybe   DRMFlag = "maybe"
)

// Fragment is one addressable chunk of a fragmented format. Exactly one of
// URL and Path is set; Path is resolved against the owning format's
// FragmentBaseURL. Slice order is playback/concatenation order.
type Fragment struct {
	URL      string  `json:"url,omitempty"`
	Path     string  `json:"path,omitempty"`
	Duration float64 `json:"duration,omitempty"` // seconds, 0 = unknown
	Filesize int64   `json:"filesize,omitempty"`
}

// DownloadParams carries the side-channel metadata a Smooth Streaming
// muxer needs to reconstruct a playable file from raw fragments.
type DownloadParams struct {
	StreamType         string `json:"stream_type"`
	Duration           int64  `json:"duration"`
	Timescale          int64  `json:"timescale"`
	Width              int    `json:"width,omitempty"`
	Height             int    `json:"height,omitempty"`
	FourCC             string `json:"fourcc"`
	Language           string `json:"language,omitempty"`
	CodecPrivateData   string `json:"codec_private_data,omitempty"`
	SamplingRate       int    `json:"sampling_rate,omitempty"`
	Channels           int    `json:"channels,omitempty"`
	BitsPerSample      int    `json:"bits_per_sample,omitempty"`
	NALUnitLengthField int    `json:"nal_unit_length_field,omitempty"`
}

// Format is one concrete, selectable rendition extracted from a manifest.
// A Format must have URL set, or Fragments non-empty together with
// FragmentBaseURL; producing a value with neither is a construction bug in
// the parser, not a runtime condition.
type Format struct {
	FormatID string `json:"format_id"`

	URL             string     `json:"url,omitempty"`
	ManifestURL     string     `json:"manifest_url,omitempty"`
	FragmentBaseURL string     `json:"fragment_base_url,omitempty"`
	Fragments       []Fragment `json:"fragments,omitempty"`
	// PlayPath is the RTMP play path; URL holds the streamer in that case.
	PlayPath string `json:"play_path,omitempty"`

	Ext      string   `json:"ext,omitempty"`
	Protocol Protocol `json:"protocol,omitempty"`

	Width  int     `json:"width,omitempty"`
	Height int     `json:"height,omitempty"`
	FPS    float64 `json:"fps,omitempty"`
	TBR    float64 `json:"tbr,omitempty"` // total bitrate, kbps
	VBR    float64 `json:"vbr,omitempty"`
	ABR    float64 `json:"abr,omitempty"`
	ASR    int     `json:"asr,omitempty"` // audio sampling rate, Hz

	VCodec string `json:"vcodec,omitempty"`
	ACodec string `json:"acodec,omitempty"`
	SCodec string `json:"scodec,omitempty"`

	Container     string  `json:"container,omitempty"`
	Language      string  `json:"language,omitempty"`
	AudioChannels int     `json:"audio_channels,omitempty"`
	Filesize      int64   `json:"filesize,omitempty"`
	HasDRM        DRMFlag `json:"has_drm,omitempty"`
	FormatNote    string  `json:"format_note,omitempty"`

	// FormatIndex distinguishes the logical streams produced when one
	// manifest source is split, e.g. per HLS discontinuity.
	FormatIndex *int `json:"format_index,omitempty"`
	// ManifestStreamNumber is the zero-based position among sibling
	// formats sharing one resolved base URL, for demux alignment.
	ManifestStreamNumber *int `json:"manifest_stream_number,omitempty"`

	Preference int `json:"preference,omitempty"`
	Quality    int `json:"quality,omitempty"`

	// DownloadParams is only set on Smooth Streaming formats.
	DownloadParams *DownloadParams `json:"_download_params,omitempty"`
}

// Valid reports whether the format satisfies the locator invariant.
func (f *Format) Valid() bool {
	if f.URL != "" {
		return true
	}
	return len(f.Fragments) > 0 && f.FragmentBaseURL != ""
}
