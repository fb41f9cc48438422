package smil

import (
	"fmt"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamnorm/internal/manifest"
)

// mapFetcher serves canned documents keyed by URL.
type mapFetcher map[string]string

func (m mapFetcher) Fetch(rawURL string, _ http.Header, _ url.Values, _ []byte) ([]byte, string, error) {
	doc, ok := m[rawURL]
	if !ok {
		return nil, "", fmt.Errorf("no document for %s", rawURL)
	}
	return []byte(doc), rawURL, nil
}

func TestParseRTMP(t *testing.T) {
	doc := `<smil xmlns="http://www.w3.org/2001/SMIL20/Language">
  <head>
    <meta name="base" content="rtmp://streaming.example.com/ondemand"/>
  </head>
  <body>
    <switch>
      <video src="mp4:video-1500" system-bitrate="1500000" width="1280" height="720"/>
      <video src="mp4:video-800" system-bitrate="800000" width="848" height="480"/>
    </switch>
  </body>
</smil>`
	formats, _, err := Parse([]byte(doc), "http://example.com/video.smil", manifest.Options{})
	require.NoError(t, err)
	require.Len(t, formats, 2)

	hi := formats[0]
	assert.Equal(t, "rtmp-1500", hi.FormatID)
	assert.Equal(t, "rtmp://streaming.example.com/ondemand", hi.URL)
	assert.Equal(t, "mp4:video-1500", hi.PlayPath)
	assert.Equal(t, manifest.ProtocolRTMP, hi.Protocol)
	assert.Equal(t, 1500.0, hi.TBR)
	assert.Equal(t, 1280, hi.Width)

	assert.Equal(t, "rtmp-800", formats[1].FormatID)
}

func TestParseHLSAndTextstream(t *testing.T) {
	doc := `<smil xmlns="http://www.w3.org/2001/SMIL20/Language">
  <body>
    <switch>
      <video src="a.m3u8" system-bitrate="1000000"/>
      <textstream src="b.vtt" systemLanguage="fr"/>
    </switch>
  </body>
</smil>`
	fetcher := mapFetcher{
		"http://example.com/media/a.m3u8": `#EXTM3U
#EXT-X-TARGETDURATION:10
#EXTINF:10,
seg0.ts
#EXT-X-ENDLIST
`,
	}
	formats, subtitles, err := Parse([]byte(doc), "http://example.com/media/video.smil",
		manifest.Options{Fetcher: fetcher})
	require.NoError(t, err)
	require.Len(t, formats, 1)
	assert.Equal(t, "hls-1000", formats[0].FormatID)
	assert.Equal(t, manifest.ProtocolM3U8Native, formats[0].Protocol)
	assert.Equal(t, 1000.0, formats[0].TBR, "single-rendition playlists take the SMIL bitrate")

	require.Len(t, subtitles["fr"], 1)
	sub := subtitles["fr"][0]
	assert.Equal(t, "http://example.com/media/b.vtt", sub.URL,
		"textstream src resolves against the document base")
	assert.Equal(t, "vtt", sub.Ext)
}

func TestParseTextstreamDefaultLanguage(t *testing.T) {
	doc := `<smil>
  <body>
    <textstream src="subs.srt"/>
  </body>
</smil>`
	_, subtitles, err := Parse([]byte(doc), "http://example.com/video.smil", manifest.Options{})
	require.NoError(t, err)
	require.Len(t, subtitles["en"], 1)
	assert.Equal(t, "srt", subtitles["en"][0].Ext)
}

func TestParseHTTPFormats(t *testing.T) {
	doc := `<smil>
  <body>
    <switch>
      <video src="http://example.com/video-hi.mp4" system-bitrate="2000000" width="1920" height="1080"/>
      <video src="http://example.com/video-lo.mp4" system-bitrate="700000" width="640" height="360"/>
    </switch>
  </body>
</smil>`
	formats, _, err := Parse([]byte(doc), "http://example.com/video.smil", manifest.Options{})
	require.NoError(t, err)
	require.Len(t, formats, 2)

	assert.Equal(t, "http-2000", formats[0].FormatID)
	assert.Equal(t, manifest.ProtocolHTTP, formats[0].Protocol)
	assert.Equal(t, "mp4", formats[0].Ext)
	assert.Equal(t, 1080, formats[0].Height)
	assert.Equal(t, "http-700", formats[1].FormatID)
	assert.Equal(t, 360, formats[1].Height)
}

func TestParseDeduplicatesAcrossElementKinds(t *testing.T) {
	doc := `<smil>
  <body>
    <video src="http://example.com/a.mp4" system-bitrate="1000000"/>
    <media src="http://example.com/a.mp4" system-bitrate="1000000"/>
    <imagestream src="http://example.com/a.mp4"/>
  </body>
</smil>`
	formats, _, err := Parse([]byte(doc), "http://example.com/video.smil", manifest.Options{})
	require.NoError(t, err)
	assert.Len(t, formats, 1, "one src is processed once regardless of element kind")
}

func TestParseImagestream(t *testing.T) {
	doc := `<smil>
  <body>
    <imagestream src="http://example.com/storyboard.jpg" type="image/jpeg" width="320" height="180"/>
  </body>
</smil>`
	formats, _, err := Parse([]byte(doc), "http://example.com/video.smil", manifest.Options{})
	require.NoError(t, err)
	require.Len(t, formats, 1)

	f := formats[0]
	assert.Equal(t, "imagestream-1", f.FormatID)
	assert.Equal(t, manifest.CodecNone, f.VCodec)
	assert.Equal(t, manifest.CodecNone, f.ACodec)
	assert.Equal(t, "jpg", f.Ext)
	assert.Equal(t, 320, f.Width)
	assert.Equal(t, "SMIL storyboards", f.FormatNote)
}

func TestParseISMDispatch(t *testing.T) {
	doc := `<smil>
  <body>
    <video src="http://example.com/stream.ism/Manifest"/>
  </body>
</smil>`
	fetcher := mapFetcher{
		"http://example.com/stream.ism/Manifest": `<SmoothStreamingMedia MajorVersion="2" MinorVersion="0" Duration="20000000">
  <StreamIndex Type="video" Name="video" Url="QualityLevels({bitrate})/Fragments(video={start time})">
    <QualityLevel Index="0" Bitrate="1000000" FourCC="H264"/>
    <c t="0" d="20000000"/>
  </StreamIndex>
</SmoothStreamingMedia>`,
	}
	formats, _, err := Parse([]byte(doc), "http://example.com/video.smil",
		manifest.Options{Fetcher: fetcher})
	require.NoError(t, err)
	require.Len(t, formats, 1)
	assert.Equal(t, "mss-video-1000", formats[0].FormatID)
	assert.Equal(t, manifest.ProtocolISM, formats[0].Protocol)
}

func TestParseNotSMIL(t *testing.T) {
	_, _, err := Parse([]byte("<html></html>"), "http://example.com/x", manifest.Options{})
	assert.ErrorIs(t, err, manifest.ErrMalformedManifest)
}
