package probe

import (
	"fmt"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamnorm/internal/manifest"
)

type mapFetcher map[string]string

func (m mapFetcher) Fetch(rawURL string, _ http.Header, _ url.Values, _ []byte) ([]byte, string, error) {
	doc, ok := m[rawURL]
	if !ok {
		return nil, "", fmt.Errorf("no document for %s", rawURL)
	}
	return []byte(doc), rawURL, nil
}

func TestDetect(t *testing.T) {
	t.Run("by body", func(t *testing.T) {
		assert.Equal(t, KindHLS, Detect([]byte("#EXTM3U\n#EXT-X-VERSION:3\n"), ""))
		assert.Equal(t, KindDASH, Detect([]byte(`<?xml version="1.0"?><MPD xmlns="urn:mpeg:dash:schema:mpd:2011"/>`), ""))
		assert.Equal(t, KindISM, Detect([]byte(`<SmoothStreamingMedia MajorVersion="2"/>`), ""))
		assert.Equal(t, KindF4M, Detect([]byte(`<manifest xmlns="http://ns.adobe.com/f4m/1.0"/>`), ""))
		assert.Equal(t, KindSMIL, Detect([]byte(`<smil><body/></smil>`), ""))
	})

	t.Run("BOM and whitespace tolerated", func(t *testing.T) {
		doc := append([]byte{0xef, 0xbb, 0xbf}, []byte("\n#EXTM3U\n")...)
		assert.Equal(t, KindHLS, Detect(doc, ""))
	})

	t.Run("by URL when body is inconclusive", func(t *testing.T) {
		assert.Equal(t, KindHLS, Detect(nil, "http://example.com/index.m3u8"))
		assert.Equal(t, KindDASH, Detect(nil, "http://example.com/stream.mpd"))
		assert.Equal(t, KindISM, Detect(nil, "http://example.com/stream.ism/Manifest"))
		assert.Equal(t, KindUnknown, Detect(nil, "http://example.com/page.html"))
	})
}

func TestParseDispatch(t *testing.T) {
	t.Run("hls", func(t *testing.T) {
		doc := "#EXTM3U\n#EXT-X-TARGETDURATION:10\n#EXTINF:10,\nseg0.ts\n#EXT-X-ENDLIST\n"
		res, err := Parse([]byte(doc), "http://example.com/index.m3u8", manifest.Options{})
		require.NoError(t, err)
		assert.Equal(t, KindHLS, res.Kind)
		assert.Len(t, res.Formats, 1)
	})

	t.Run("dash", func(t *testing.T) {
		doc := `<?xml version="1.0"?>
<MPD xmlns="urn:mpeg:dash:schema:mpd:2011">
  <Period>
    <AdaptationSet mimeType="video/mp4">
      <Representation id="r0" bandwidth="1000" codecs="avc1.4d401e">
        <BaseURL>http://example.com/v.mp4</BaseURL>
      </Representation>
    </AdaptationSet>
  </Period>
</MPD>`
		res, err := Parse([]byte(doc), "http://example.com/manifest.mpd", manifest.Options{})
		require.NoError(t, err)
		assert.Equal(t, KindDASH, res.Kind)
		require.Len(t, res.Formats, 1)
		assert.Equal(t, "http://example.com/v.mp4", res.Formats[0].URL)
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := Parse([]byte("<html/>"), "http://example.com/page", manifest.Options{})
		assert.ErrorIs(t, err, manifest.ErrMalformedManifest)
	})
}

func TestFromURL(t *testing.T) {
	fetcher := mapFetcher{
		"http://example.com/index.m3u8": "#EXTM3U\n#EXT-X-TARGETDURATION:10\n#EXTINF:10,\nseg0.ts\n#EXT-X-ENDLIST\n",
	}
	res, err := FromURL("http://example.com/index.m3u8", manifest.Options{Fetcher: fetcher})
	require.NoError(t, err)
	assert.Equal(t, KindHLS, res.Kind)
	assert.Equal(t, "http://example.com/index.m3u8", res.URL)

	_, err = FromURL("http://example.com/missing.m3u8", manifest.Options{Fetcher: fetcher})
	assert.ErrorIs(t, err, manifest.ErrFetch)

	_, err = FromURL("http://example.com/index.m3u8", manifest.Options{})
	assert.ErrorIs(t, err, manifest.ErrFetch)
}
