package pcm_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quietfield/pcmio/pkg/pcm"
)

// TestPipelinePassthroughIsByteIdentical covers the §8 invariant that a
// pipeline with matching format/channels/rate on both sides is detected
// as passthrough and reproduces upstream bytes exactly.
func TestPipelinePassthroughIsByteIdentical(t *testing.T) {
	src := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	upstream := func(frameCount int, out []byte) int {
		n := copy(out, src)
		return n / 4 // 2 channels * s16 (2 bytes) = 4 bytes/frame
	}

	p, err := pcm.NewPipeline(pcm.PipelineConfig{
		FormatIn: pcm.FormatS16, ChannelsIn: 2, RateIn: 48000,
		FormatOut: pcm.FormatS16, ChannelsOut: 2, RateOut: 48000,
		Upstream: upstream,
	})
	require.NoError(t, err)
	require.True(t, p.IsPassthrough())

	out := make([]byte, 8)
	got := p.Read(2, out)
	require.Equal(t, 2, got)
	require.Equal(t, src, out)
}

// TestPipelineFormatRoundTrip covers §8 scenario 4: a sine wave converted
// f32 -> s16 -> f32 must have peak error <= 1/32768.
func TestPipelineFormatRoundTrip(t *testing.T) {
	const n = 64
	sine := make([]float32, n)
	for i := range sine {
		sine[i] = float32(math.Sin(2 * math.Pi * float64(i) / n))
	}
	cursor := 0
	upstreamF32 := func(frameCount int, out []byte) int {
		avail := n - cursor
		if avail <= 0 {
			return 0
		}
		if frameCount > avail {
			frameCount = avail
		}
		for i := 0; i < frameCount; i++ {
			bits := math.Float32bits(sine[cursor+i])
			out[4*i] = byte(bits)
			out[4*i+1] = byte(bits >> 8)
			out[4*i+2] = byte(bits >> 16)
			out[4*i+3] = byte(bits >> 24)
		}
		cursor += frameCount
		return frameCount
	}

	toS16, err := pcm.NewPipeline(pcm.PipelineConfig{
		FormatIn: pcm.FormatF32, ChannelsIn: 1, RateIn: 48000,
		FormatOut: pcm.FormatS16, ChannelsOut: 1, RateOut: 48000,
		Upstream: upstreamF32,
	})
	require.NoError(t, err)
	require.False(t, toS16.IsPassthrough())

	s16Buf := make([]byte, n*2)
	got := toS16.Read(n, s16Buf)
	require.Equal(t, n, got)

	s16Cursor := 0
	upstreamS16 := func(frameCount int, out []byte) int {
		avail := n - s16Cursor
		if avail <= 0 {
			return 0
		}
		if frameCount > avail {
			frameCount = avail
		}
		copy(out, s16Buf[s16Cursor*2:(s16Cursor+frameCount)*2])
		s16Cursor += frameCount
		return frameCount
	}

	toF32, err := pcm.NewPipeline(pcm.PipelineConfig{
		FormatIn: pcm.FormatS16, ChannelsIn: 1, RateIn: 48000,
		FormatOut: pcm.FormatF32, ChannelsOut: 1, RateOut: 48000,
		Upstream: upstreamS16,
	})
	require.NoError(t, err)

	f32Buf := make([]byte, n*4)
	got2 := toF32.Read(n, f32Buf)
	require.Equal(t, n, got2)

	const tolerance = 1.0 / 32768
	for i := 0; i < n; i++ {
		bits := uint32(f32Buf[4*i]) | uint32(f32Buf[4*i+1])<<8 | uint32(f32Buf[4*i+2])<<16 | uint32(f32Buf[4*i+3])<<24
		got := math.Float32frombits(bits)
		require.LessOrEqualf(t, math.Abs(float64(got)-float64(sine[i])), tolerance, "sample %d", i)
	}
}

// TestPipelineChannelRemap covers §8 scenario 5 through the full
// pipeline, not just the raw channel helpers.
func TestPipelineChannelRemap(t *testing.T) {
	in := pcm.DefaultChannelMap(6)
	out := pcm.ChannelMap{
		pcm.PositionFL, pcm.PositionFR, pcm.PositionBL,
		pcm.PositionBR, pcm.PositionFC, pcm.PositionLFE,
	}

	frame := []float32{1, 2, 3, 4, 5, 6}
	upstream := func(frameCount int, out []byte) int {
		for i, v := range frame {
			bits := math.Float32bits(v)
			out[4*i] = byte(bits)
			out[4*i+1] = byte(bits >> 8)
			out[4*i+2] = byte(bits >> 16)
			out[4*i+3] = byte(bits >> 24)
		}
		return 1
	}

	p, err := pcm.NewPipeline(pcm.PipelineConfig{
		FormatIn: pcm.FormatF32, ChannelsIn: 6, RateIn: 48000, ChannelMapIn: in,
		FormatOut: pcm.FormatF32, ChannelsOut: 6, RateOut: 48000, ChannelMapOut: out,
		Upstream: upstream,
	})
	require.NoError(t, err)
	require.True(t, p.IsChannelMappingRequired())
	require.False(t, p.IsPassthrough())

	buf := make([]byte, 6*4)
	got := p.Read(1, buf)
	require.Equal(t, 1, got)

	want := []float32{1, 2, 5, 6, 3, 4}
	for i, w := range want {
		bits := uint32(buf[4*i]) | uint32(buf[4*i+1])<<8 | uint32(buf[4*i+2])<<16 | uint32(buf[4*i+3])<<24
		require.InDeltaf(t, w, math.Float32frombits(bits), 1e-6, "channel %d", i)
	}
}
