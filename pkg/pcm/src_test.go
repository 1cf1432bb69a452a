package pcm_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quietfield/pcmio/pkg/pcm"
)

func f32SliceBytes(vals []float32) []byte {
	out := make([]byte, len(vals)*4)
	for i, v := range vals {
		bits := math.Float32bits(v)
		out[4*i] = byte(bits)
		out[4*i+1] = byte(bits >> 8)
		out[4*i+2] = byte(bits >> 16)
		out[4*i+3] = byte(bits >> 24)
	}
	return out
}

func bytesF32Slice(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		bits := uint32(b[4*i]) | uint32(b[4*i+1])<<8 | uint32(b[4*i+2])<<16 | uint32(b[4*i+3])<<24
		out[i] = math.Float32frombits(bits)
	}
	return out
}

func TestNewSRCRejectsInvalidRates(t *testing.T) {
	_, err := pcm.NewSRC(pcm.SRCConfig{FormatIn: pcm.FormatF32, FormatOut: pcm.FormatF32, Channels: 1, RateIn: 0, RateOut: 48000})
	require.ErrorIs(t, err, pcm.ErrInvalidSampleRate)

	_, err = pcm.NewSRC(pcm.SRCConfig{FormatIn: pcm.FormatF32, FormatOut: pcm.FormatF32, Channels: 1, RateIn: 48000, RateOut: 0})
	require.ErrorIs(t, err, pcm.ErrInvalidSampleRate)
}

func TestSRCEqualRatesDegradesToPassthrough(t *testing.T) {
	data := []float32{0.1, -0.2, 0.3, -0.4}
	cursor := 0
	upstream := func(frameCount int, out []byte) int {
		avail := len(data) - cursor
		if avail <= 0 {
			return 0
		}
		if frameCount > avail {
			frameCount = avail
		}
		copy(out, f32SliceBytes(data[cursor:cursor+frameCount]))
		cursor += frameCount
		return frameCount
	}

	src, err := pcm.NewSRC(pcm.SRCConfig{
		FormatIn: pcm.FormatF32, FormatOut: pcm.FormatF32,
		Channels: 1, RateIn: 48000, RateOut: 48000, Upstream: upstream,
	})
	require.NoError(t, err)
	require.Equal(t, pcm.SRCNone, src.Algorithm())

	out := make([]byte, 4*4)
	got := src.Read(4, out)
	require.Equal(t, 4, got)
	require.Equal(t, data, bytesF32Slice(out))
}

// TestSRCUpsampleScenario implements §8 scenario 6 verbatim: linear
// upsampling mono f32 from rate 1 to rate 2, upstream [0,1,2,3] must
// produce [0, 0.5, 1, 1.5, 2, 2.5, 3].
func TestSRCUpsampleScenario(t *testing.T) {
	data := []float32{0, 1, 2, 3}
	cursor := 0
	upstream := func(frameCount int, out []byte) int {
		avail := len(data) - cursor
		if avail <= 0 {
			return 0
		}
		if frameCount > avail {
			frameCount = avail
		}
		copy(out, f32SliceBytes(data[cursor:cursor+frameCount]))
		cursor += frameCount
		return frameCount
	}

	src, err := pcm.NewSRC(pcm.SRCConfig{
		FormatIn: pcm.FormatF32, FormatOut: pcm.FormatF32,
		Channels: 1, RateIn: 1, RateOut: 2, Upstream: upstream,
	})
	require.NoError(t, err)
	require.Equal(t, pcm.SRCLinear, src.Algorithm())

	out := make([]byte, 7*4)
	got := src.Read(7, out)
	require.Equal(t, 7, got)

	want := []float32{0, 0.5, 1, 1.5, 2, 2.5, 3}
	gotVals := bytesF32Slice(out)
	for i := range want {
		require.InDeltaf(t, want[i], gotVals[i], 1e-6, "sample %d", i)
	}
}

// TestSRCConstantSignalInvariant covers the §8 quantified invariant: a
// constant-valued upstream reproduces the same constant regardless of
// the rate pair, checked here to within an absolute error of 1e-6.
func TestSRCConstantSignalInvariant(t *testing.T) {
	const value float32 = 0.37
	rates := [][2]int{{1, 1}, {1, 2}, {3, 2}, {48000, 44100}}

	for _, rp := range rates {
		upstream := func(frameCount int, out []byte) int {
			vals := make([]float32, frameCount)
			for i := range vals {
				vals[i] = value
			}
			copy(out, f32SliceBytes(vals))
			return frameCount
		}
		src, err := pcm.NewSRC(pcm.SRCConfig{
			FormatIn: pcm.FormatF32, FormatOut: pcm.FormatF32,
			Channels: 1, RateIn: rp[0], RateOut: rp[1], Upstream: upstream,
		})
		require.NoError(t, err)

		out := make([]byte, 16*4)
		got := src.Read(16, out)
		require.Equal(t, 16, got)
		for _, v := range bytesF32Slice(out) {
			require.InDeltaf(t, value, v, 1e-6, "rate pair %v", rp)
		}
	}
}

// TestSRCReprimesAfterTransientExhaustion covers a bounded upstream that
// reports 0 for a while (as at a live-capture period boundary) then
// resumes: the converter must re-prime and keep producing rather than
// latching a permanent end-of-stream.
func TestSRCReprimesAfterTransientExhaustion(t *testing.T) {
	period1 := []float32{1, 2}
	period2 := []float32{3, 4}
	state := 0 // 0: serve period1, 1: exhausted, 2: serve period2

	upstream := func(frameCount int, out []byte) int {
		switch state {
		case 0:
			n := len(period1)
			if frameCount < n {
				n = frameCount
			}
			copy(out, f32SliceBytes(period1[:n]))
			state = 1
			return n
		case 1:
			return 0
		default:
			n := len(period2)
			if frameCount < n {
				n = frameCount
			}
			copy(out, f32SliceBytes(period2[:n]))
			return n
		}
	}

	src, err := pcm.NewSRC(pcm.SRCConfig{
		FormatIn: pcm.FormatF32, FormatOut: pcm.FormatF32,
		Channels: 1, RateIn: 1, RateOut: 2, Upstream: upstream,
	})
	require.NoError(t, err)

	out := make([]byte, 4*4)
	got := src.Read(4, out)
	require.Less(t, got, 4, "should stall once upstream reports exhaustion mid-shift")

	state = 2
	got2 := src.Read(4, out)
	require.Greater(t, got2, 0, "must re-prime once upstream resumes")
}
