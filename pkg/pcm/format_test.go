package pcm_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quietfield/pcmio/pkg/pcm"
)

func TestFormatBytesPerSample(t *testing.T) {
	cases := map[pcm.Format]int{
		pcm.FormatU8:  1,
		pcm.FormatS16: 2,
		pcm.FormatS24: 3,
		pcm.FormatS32: 4,
		pcm.FormatF32: 4,
	}
	for f, want := range cases {
		require.Equal(t, want, f.BytesPerSample(), "format %s", f)
	}
}

func TestFormatIsValid(t *testing.T) {
	require.True(t, pcm.FormatU8.IsValid())
	require.True(t, pcm.FormatF32.IsValid())
	require.False(t, pcm.Format(99).IsValid())
	require.False(t, pcm.Format(-1).IsValid())
}

// TestConvertRoundTrip covers the quantized-format round-trip bound from
// §8: converting f32 -> F -> f32 must stay within 2/full_scale(F) of the
// original value. u8/s16/s24 full-scale values fit exactly in a f32
// mantissa (24 bits), so the bound holds as stated for them; s32's
// ~31-bit full scale exceeds f32's own precision, so it needs a looser,
// f32-relative-epsilon bound instead of the same absolute one.
func TestConvertRoundTrip(t *testing.T) {
	exact := map[pcm.Format]float64{
		pcm.FormatU8:  127,
		pcm.FormatS16: 32767,
		pcm.FormatS24: 8388607,
	}

	for f, scale := range exact {
		for _, x := range []float32{-1, -0.75, -0.5, -0.25, 0, 0.1, 0.5, 0.999, 1} {
			src := f32Bytes(x)
			mid := make([]byte, f.BytesPerSample())
			pcm.Convert(f, pcm.FormatF32, mid, src, 1)

			back := make([]byte, 4)
			pcm.Convert(pcm.FormatF32, f, back, mid, 1)
			got := bytesF32(back)

			tolerance := 2 / scale
			diff := math.Abs(float64(got) - float64(x))
			require.LessOrEqualf(t, diff, tolerance, "format %s round trip of %v -> %v exceeded tolerance %v", f, x, got, tolerance)
		}
	}
}

func TestConvertRoundTripS32(t *testing.T) {
	for _, x := range []float32{-1, -0.75, -0.5, -0.25, 0, 0.1, 0.5, 0.999, 1} {
		src := f32Bytes(x)
		mid := make([]byte, pcm.FormatS32.BytesPerSample())
		pcm.Convert(pcm.FormatS32, pcm.FormatF32, mid, src, 1)

		back := make([]byte, 4)
		pcm.Convert(pcm.FormatF32, pcm.FormatS32, back, mid, 1)
		got := bytesF32(back)

		diff := math.Abs(float64(got) - float64(x))
		require.LessOrEqualf(t, diff, 1e-6, "s32 round trip of %v -> %v", x, got)
	}
}

func TestConvertSameFormatIsMemcpy(t *testing.T) {
	src := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	dst := make([]byte, len(src))
	pcm.Convert(pcm.FormatS16, pcm.FormatS16, dst, src, 4)
	require.Equal(t, src, dst)
}

func TestConvertZeroSampleCountIsNoop(t *testing.T) {
	dst := []byte{9, 9, 9, 9}
	src := []byte{1, 2, 3, 4}
	pcm.Convert(pcm.FormatS16, pcm.FormatU8, dst, src, 0)
	require.Equal(t, []byte{9, 9, 9, 9}, dst)
}

func f32Bytes(x float32) []byte {
	bits := math.Float32bits(x)
	return []byte{byte(bits), byte(bits >> 8), byte(bits >> 16), byte(bits >> 24)}
}

func bytesF32(b []byte) float32 {
	bits := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
	return math.Float32frombits(bits)
}
