package manifest

// SubtitleEntry is one alternative rendering of a subtitle track. Exactly
// one of URL and Data is set.
type SubtitleEntry struct {
	URL  string `json:"url,omitempty"`
	Data string `json:"data,omitempty"`
	Ext  string `json:"ext,omitempty"`
	Name string `json:"name,omitempty"`

	Protocol        Protocol   `json:"protocol,omitempty"`
	ManifestURL     string     `json:"manifest_url,omitempty"`
	FragmentBaseURL string     `json:"fragment_base_url,omitempty"`
	Fragments       []Fragment `json:"fragments,omitempty"`
	Filesize        int64      `json:"filesize,omitempty"`

	// DownloadParams is only set on Smooth Streaming text streams.
	DownloadParams *DownloadParams `json:"_download_params,omitempty"`
}

// Subtitles maps a language code to its entries. Order within a language
// list is caller-defined preference order.
type Subtitles map[string][]SubtitleEntry

// Add appends an entry for the given language.
func (s Subtitles) Add(lang string, entry SubtitleEntry) {
	s[lang] = append(s[lang], entry)
}

// Merge appends all entries from other, keeping per-language order.
func (s Subtitles) Merge(other Subtitles) {
	for lang, entries := range other {
		s[lang] = append(s[lang], entries...)
	}
}
