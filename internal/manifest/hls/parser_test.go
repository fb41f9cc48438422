package hls

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamnorm/internal/manifest"
)

// failingFetcher refuses every request.
type failingFetcher struct{}

func (failingFetcher) Fetch(rawURL string, _ http.Header, _ url.Values, _ []byte) ([]byte, string, error) {
	return nil, "", fmt.Errorf("connection refused")
}

const masterPlaylist = `#EXTM3U
#EXT-X-MEDIA:TYPE=AUDIO,GROUP-ID="aud1",NAME="English",LANGUAGE="en",DEFAULT=YES,URI="audio/en/prog_index.m3u8"
#EXT-X-MEDIA:TYPE=SUBTITLES,GROUP-ID="sub1",NAME="English",LANGUAGE="en",URI="subs/en/prog_index.m3u8"
#EXT-X-STREAM-INF:BANDWIDTH=2227464,AVERAGE-BANDWIDTH=2218327,CODECS="avc1.640020,mp4a.40.2",RESOLUTION=960x540,FRAME-RATE=60.000,AUDIO="aud1",SUBTITLES="sub1"
v5/prog_index.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=8178040,CODECS="avc1.64002a,mp4a.40.2",RESOLUTION=1920x1080,AUDIO="aud1",SUBTITLES="sub1"
v9/prog_index.m3u8
`

func TestParseAttributes(t *testing.T) {
	attrs := ParseAttributes(`BANDWIDTH=2227464,CODECS="avc1.640020,mp4a.40.2",RESOLUTION=960x540`)
	assert.Equal(t, "2227464", attrs["BANDWIDTH"])
	assert.Equal(t, "avc1.640020,mp4a.40.2", attrs["CODECS"], "quoted commas must not split the value")
	assert.Equal(t, "960x540", attrs["RESOLUTION"])
}

func TestParseMasterPlaylist(t *testing.T) {
	formats, subtitles, err := Parse(masterPlaylist, "http://example.com/hls/master.m3u8", manifest.Options{})
	require.NoError(t, err)
	require.Len(t, formats, 3)

	audio := formats[0]
	assert.Equal(t, "aud1-English", audio.FormatID)
	assert.Equal(t, "http://example.com/hls/audio/en/prog_index.m3u8", audio.URL)
	assert.Equal(t, manifest.CodecNone, audio.VCodec)
	assert.Equal(t, "en", audio.Language)
	assert.Equal(t, manifest.ProtocolM3U8Native, audio.Protocol)

	low := formats[1]
	assert.Equal(t, "2218", low.FormatID, "id derives from AVERAGE-BANDWIDTH when present")
	assert.InDelta(t, 2218.327, low.TBR, 0.001)
	assert.Equal(t, 960, low.Width)
	assert.Equal(t, 540, low.Height)
	assert.Equal(t, 60.0, low.FPS)
	assert.Equal(t, "avc1.640020", low.VCodec)
	assert.Equal(t, manifest.CodecNone, low.ACodec,
		"variant with separate audio rendition group carries no audio itself")
	assert.Equal(t, "mp4", low.Ext)

	high := formats[2]
	assert.Equal(t, "8178", high.FormatID)
	assert.Equal(t, 1920, high.Width)

	require.Len(t, subtitles["en"], 1)
	sub := subtitles["en"][0]
	assert.Equal(t, "http://example.com/hls/subs/en/prog_index.m3u8", sub.URL)
	assert.Equal(t, "vtt", sub.Ext)
	assert.Equal(t, manifest.ProtocolM3U8Native, sub.Protocol)
}

func TestParseMasterPlaylistLive(t *testing.T) {
	formats, _, err := Parse(masterPlaylist, "http://example.com/hls/master.m3u8",
		manifest.Options{IDPrefix: "hls", Live: true})
	require.NoError(t, err)
	require.Len(t, formats, 3)
	assert.Equal(t, "hls", formats[1].FormatID,
		"live variant ids must not depend on drifting bandwidth")
	assert.Equal(t, "hls", formats[2].FormatID)
}

func TestParseMasterPlaylistCRLF(t *testing.T) {
	// Last attribute unquoted on purpose: careless line splitting would
	// leave it holding the trailing carriage return.
	doc := "#EXTM3U\r\n" +
		"#EXT-X-MEDIA:GROUP-ID=\"aud1\",NAME=\"English\",LANGUAGE=\"en\",URI=\"audio/en/prog_index.m3u8\",TYPE=AUDIO\r\n" +
		"#EXT-X-MEDIA:GROUP-ID=\"sub1\",NAME=\"English\",LANGUAGE=\"en\",URI=\"subs/en/prog_index.m3u8\",TYPE=SUBTITLES\r\n" +
		"#EXT-X-STREAM-INF:BANDWIDTH=2227464,AUDIO=\"aud1\",SUBTITLES=\"sub1\"\r\n" +
		"v5/prog_index.m3u8\r\n"

	formats, subtitles, err := Parse(doc, "http://example.com/hls/master.m3u8", manifest.Options{})
	require.NoError(t, err)
	require.Len(t, formats, 2)
	assert.Equal(t, "aud1-English", formats[0].FormatID)
	assert.Equal(t, manifest.CodecNone, formats[0].VCodec)

	require.Len(t, subtitles["en"], 1)
	assert.Equal(t, "http://example.com/hls/subs/en/prog_index.m3u8", subtitles["en"][0].URL)
}

func TestParseSplitDiscontinuityFetchFailure(t *testing.T) {
	doc := `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=1280000
v1/index.m3u8
`

	t.Run("non-fatal keeps the variant unsplit", func(t *testing.T) {
		formats, _, err := Parse(doc, "http://example.com/master.m3u8",
			manifest.Options{IDPrefix: "hls", SplitDiscontinuity: true, Fetcher: failingFetcher{}})
		require.NoError(t, err)
		require.Len(t, formats, 1)
		assert.Equal(t, "hls-1280", formats[0].FormatID)
		assert.Nil(t, formats[0].FormatIndex)
	})

	t.Run("fatal aborts", func(t *testing.T) {
		_, _, err := Parse(doc, "http://example.com/master.m3u8",
			manifest.Options{SplitDiscontinuity: true, Fatal: true, Fetcher: failingFetcher{}})
		assert.ErrorIs(t, err, manifest.ErrFetch)
	})
}

const mediaPlaylist = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:10
#EXTINF:10,
seg0.ts
#EXT-X-DISCONTINUITY
#EXTINF:10,
seg1.ts
#EXT-X-ENDLIST
`

func TestParseMediaPlaylist(t *testing.T) {
	t.Run("single format, never mined for variants", func(t *testing.T) {
		formats, subtitles, err := Parse(mediaPlaylist, "http://example.com/index.m3u8",
			manifest.Options{IDPrefix: "hls"})
		require.NoError(t, err)
		require.Len(t, formats, 1)
		assert.Empty(t, subtitles)

		f := formats[0]
		assert.Equal(t, "hls", f.FormatID)
		assert.Equal(t, "http://example.com/index.m3u8", f.URL)
		assert.Equal(t, manifest.ProtocolM3U8Native, f.Protocol)
		assert.Nil(t, f.FormatIndex)
	})

	t.Run("discontinuity splitting", func(t *testing.T) {
		formats, _, err := Parse(mediaPlaylist, "http://example.com/index.m3u8",
			manifest.Options{IDPrefix: "hls", SplitDiscontinuity: true})
		require.NoError(t, err)
		require.Len(t, formats, 2)
		assert.Equal(t, "hls-0", formats[0].FormatID)
		assert.Equal(t, "hls-1", formats[1].FormatID)
		require.NotNil(t, formats[0].FormatIndex)
		assert.Equal(t, 0, *formats[0].FormatIndex)
		assert.Equal(t, 1, *formats[1].FormatIndex)
	})

	t.Run("inline document becomes data URI", func(t *testing.T) {
		formats, _, err := Parse(mediaPlaylist, "", manifest.Options{})
		require.NoError(t, err)
		require.Len(t, formats, 1)
		assert.True(t, strings.HasPrefix(formats[0].URL, "data:application/x-mpegurl;base64,"))
	})
}

func TestHasDRM(t *testing.T) {
	assert.True(t, HasDRM(`#EXTM3U
#EXT-X-KEY:METHOD=SAMPLE-AES,URI="skd://assetid",KEYFORMAT="com.apple.streamingkeydelivery"
`))
	assert.True(t, HasDRM(`#EXT-X-SESSION-KEY:METHOD=SAMPLE-AES,URI="http://x",KEYFORMAT="com.microsoft.playready"`))
	assert.True(t, HasDRM("#EXT-X-FAXS-CM:MIME"))
	assert.False(t, HasDRM(`#EXT-X-KEY:METHOD=AES-128,URI="https://example.com/key"`))
}

func TestParseDRMPlaylist(t *testing.T) {
	doc := `#EXTM3U
#EXT-X-SESSION-KEY:METHOD=SAMPLE-AES,URI="skd://asset",KEYFORMAT="com.apple.streamingkeydelivery"
#EXT-X-STREAM-INF:BANDWIDTH=1000000
v1/index.m3u8
`
	formats, _, err := Parse(doc, "http://example.com/master.m3u8", manifest.Options{})
	require.NoError(t, err)
	require.Len(t, formats, 1)
	assert.Equal(t, manifest.DRMYes, formats[0].HasDRM)
}

func TestParseUSPBitrates(t *testing.T) {
	doc := `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=2328000,CODECS="avc1.64001F,mp4a.40.2"
stream-audio_eng=128000-video=2200000.m3u8
`
	formats, _, err := Parse(doc, "http://example.com/stream.ism/", manifest.Options{})
	require.NoError(t, err)
	require.Len(t, formats, 1)
	assert.Equal(t, 128.0, formats[0].ABR)
	assert.Equal(t, 2200.0, formats[0].VBR)
}

func TestParseProgressiveURI(t *testing.T) {
	doc := `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=1280000,PROGRESSIVE-URI="http://example.com/progressive.mp4"
v1/index.m3u8
`
	formats, _, err := Parse(doc, "http://example.com/master.m3u8",
		manifest.Options{IDPrefix: "hls"})
	require.NoError(t, err)
	require.Len(t, formats, 2)
	assert.Equal(t, "hls-1280", formats[0].FormatID)

	progressive := formats[1]
	assert.Equal(t, "http-1280", progressive.FormatID)
	assert.Equal(t, manifest.ProtocolHTTP, progressive.Protocol)
	assert.Equal(t, "http://example.com/progressive.mp4", progressive.URL)
	assert.Empty(t, progressive.ManifestURL)
}
