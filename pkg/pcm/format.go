// Package pcm implements the sample-format conversion, channel mixing and
// remapping, and sample-rate conversion primitives that sit between an
// application's preferred stream format and whatever a backend endpoint
// actually negotiated.
package pcm

import "math"

// Format identifies a PCM sample encoding. The numeric values are stable
// and usable as lookup-table indices.
type Format int32

const (
	FormatU8  Format = 0
	FormatS16 Format = 1
	FormatS24 Format = 2
	FormatS32 Format = 3
	FormatF32 Format = 4
)

func (f Format) String() string {
	switch f {
	case FormatU8:
		return "u8"
	case FormatS16:
		return "s16"
	case FormatS24:
		return "s24"
	case FormatS32:
		return "s32"
	case FormatF32:
		return "f32"
	default:
		return "unknown"
	}
}

// BytesPerSample returns the on-wire size of a single sample in this
// format. s24 is tightly packed, three bytes with no padding.
func (f Format) BytesPerSample() int {
	switch f {
	case FormatU8:
		return 1
	case FormatS16:
		return 2
	case FormatS24:
		return 3
	case FormatS32, FormatF32:
		return 4
	default:
		return 0
	}
}

// IsValid reports whether f is one of the five defined formats.
func (f Format) IsValid() bool {
	return f >= FormatU8 && f <= FormatF32
}

// asymmetric full-scale values used to convert f32 samples to integer
// formats. Negative samples use fullScale+1 so that -1.0 maps exactly to
// the format's most negative representable value.
var fullScale = [5]int32{
	FormatU8:  127,
	FormatS16: 32767,
	FormatS24: 8388607,
	FormatS32: 2147483647,
}

func clampUnit(x float32) float32 {
	if x < -1 {
		return -1
	}
	if x > 1 {
		return 1
	}
	return x
}

func f32ToInt(x float32, fmtID Format) int32 {
	x = clampUnit(x)
	scale := fullScale[fmtID]
	if x < 0 {
		return int32(math.Round(float64(x) * (float64(scale) + 1)))
	}
	return int32(math.Round(float64(x) * float64(scale)))
}

func readS24LE(b []byte) int32 {
	v := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
	if v&0x800000 != 0 {
		v |= ^int32(0xFFFFFF)
	}
	return v
}

func writeS24LE(b []byte, v int32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
}

// ConvertFunc converts sampleCount flat samples (channels already
// interleaved) from src into dst. Implementations MUST treat
// sampleCount == 0 as a no-op.
type ConvertFunc func(dst, src []byte, sampleCount int)

func copySamples(dst, src []byte, sampleCount int, bytesPerSample int) {
	if sampleCount == 0 {
		return
	}
	n := sampleCount * bytesPerSample
	copy(dst[:n], src[:n])
}

// --- u8 sources ---

func convertU8ToS16(dst, src []byte, n int) {
	for i := 0; i < n; i++ {
		x := int32(src[i]) - 128
		v := int16(x << 8)
		dst[2*i] = byte(v)
		dst[2*i+1] = byte(v >> 8)
	}
}

func convertU8ToS24(dst, src []byte, n int) {
	for i := 0; i < n; i++ {
		x := int32(src[i]) - 128
		writeS24LE(dst[3*i:], x<<16)
	}
}

func convertU8ToS32(dst, src []byte, n int) {
	for i := 0; i < n; i++ {
		x := int32(src[i]) - 128
		v := uint32(x << 24)
		dst[4*i] = byte(v)
		dst[4*i+1] = byte(v >> 8)
		dst[4*i+2] = byte(v >> 16)
		dst[4*i+3] = byte(v >> 24)
	}
}

func convertU8ToF32(dst, src []byte, n int) {
	for i := 0; i < n; i++ {
		x := float32(src[i])/255*2 - 1
		v := math.Float32bits(x)
		dst[4*i] = byte(v)
		dst[4*i+1] = byte(v >> 8)
		dst[4*i+2] = byte(v >> 16)
		dst[4*i+3] = byte(v >> 24)
	}
}

// --- s16 sources ---

func loadS16(src []byte, i int) int16 {
	return int16(uint16(src[2*i]) | uint16(src[2*i+1])<<8)
}

func convertS16ToU8(dst, src []byte, n int) {
	for i := 0; i < n; i++ {
		x := loadS16(src, i)
		dst[i] = byte((x >> 8) + 128)
	}
}

func convertS16ToS24(dst, src []byte, n int) {
	for i := 0; i < n; i++ {
		x := int32(loadS16(src, i))
		writeS24LE(dst[3*i:], x<<8)
	}
}

func convertS16ToS32(dst, src []byte, n int) {
	for i := 0; i < n; i++ {
		x := int32(loadS16(src, i))
		v := uint32(x << 16)
		dst[4*i] = byte(v)
		dst[4*i+1] = byte(v >> 8)
		dst[4*i+2] = byte(v >> 16)
		dst[4*i+3] = byte(v >> 24)
	}
}

func convertS16ToF32(dst, src []byte, n int) {
	for i := 0; i < n; i++ {
		x := int32(loadS16(src, i))
		f := (float32(x) + 32768) / 65536 * 2 - 1
		v := math.Float32bits(f)
		dst[4*i] = byte(v)
		dst[4*i+1] = byte(v >> 8)
		dst[4*i+2] = byte(v >> 16)
		dst[4*i+3] = byte(v >> 24)
	}
}

// --- s24 sources ---

func convertS24ToU8(dst, src []byte, n int) {
	for i := 0; i < n; i++ {
		sx := readS24LE(src[3*i:])
		dst[i] = byte((sx >> 16) + 128)
	}
}

func convertS24ToS16(dst, src []byte, n int) {
	for i := 0; i < n; i++ {
		sx := readS24LE(src[3*i:])
		v := int16(sx >> 8)
		dst[2*i] = byte(v)
		dst[2*i+1] = byte(v >> 8)
	}
}

func convertS24ToS32(dst, src []byte, n int) {
	for i := 0; i < n; i++ {
		sx := readS24LE(src[3*i:])
		v := uint32(sx << 8)
		dst[4*i] = byte(v)
		dst[4*i+1] = byte(v >> 8)
		dst[4*i+2] = byte(v >> 16)
		dst[4*i+3] = byte(v >> 24)
	}
}

func convertS24ToF32(dst, src []byte, n int) {
	for i := 0; i < n; i++ {
		sx := readS24LE(src[3*i:])
		f := (float32(sx) + 8388608) / 16777215 * 2 - 1
		v := math.Float32bits(f)
		dst[4*i] = byte(v)
		dst[4*i+1] = byte(v >> 8)
		dst[4*i+2] = byte(v >> 16)
		dst[4*i+3] = byte(v >> 24)
	}
}

// --- s32 sources ---

func loadS32(src []byte, i int) int32 {
	return int32(uint32(src[4*i]) | uint32(src[4*i+1])<<8 | uint32(src[4*i+2])<<16 | uint32(src[4*i+3])<<24)
}

func convertS32ToU8(dst, src []byte, n int) {
	for i := 0; i < n; i++ {
		x := loadS32(src, i)
		dst[i] = byte((x >> 24) + 128)
	}
}

func convertS32ToS16(dst, src []byte, n int) {
	for i := 0; i < n; i++ {
		x := loadS32(src, i)
		v := int16(x >> 16)
		dst[2*i] = byte(v)
		dst[2*i+1] = byte(v >> 8)
	}
}

func convertS32ToS24(dst, src []byte, n int) {
	for i := 0; i < n; i++ {
		x := loadS32(src, i)
		writeS24LE(dst[3*i:], x>>8)
	}
}

func convertS32ToF32(dst, src []byte, n int) {
	for i := 0; i < n; i++ {
		x := loadS32(src, i)
		var f float32
		if x < 0 {
			f = float32(x) / 2147483648
		} else {
			f = float32(x) / 2147483647
		}
		v := math.Float32bits(f)
		dst[4*i] = byte(v)
		dst[4*i+1] = byte(v >> 8)
		dst[4*i+2] = byte(v >> 16)
		dst[4*i+3] = byte(v >> 24)
	}
}

// --- f32 sources ---

func loadF32(src []byte, i int) float32 {
	bits := uint32(src[4*i]) | uint32(src[4*i+1])<<8 | uint32(src[4*i+2])<<16 | uint32(src[4*i+3])<<24
	return math.Float32frombits(bits)
}

func convertF32ToU8(dst, src []byte, n int) {
	for i := 0; i < n; i++ {
		x := loadF32(src, i)
		dst[i] = byte(f32ToInt(x, FormatU8) + 128)
	}
}

func convertF32ToS16(dst, src []byte, n int) {
	for i := 0; i < n; i++ {
		x := loadF32(src, i)
		v := int16(f32ToInt(x, FormatS16))
		dst[2*i] = byte(v)
		dst[2*i+1] = byte(v >> 8)
	}
}

func convertF32ToS24(dst, src []byte, n int) {
	for i := 0; i < n; i++ {
		x := loadF32(src, i)
		writeS24LE(dst[3*i:], f32ToInt(x, FormatS24))
	}
}

func convertF32ToS32(dst, src []byte, n int) {
	for i := 0; i < n; i++ {
		x := loadF32(src, i)
		v := uint32(f32ToInt(x, FormatS32))
		dst[4*i] = byte(v)
		dst[4*i+1] = byte(v >> 8)
		dst[4*i+2] = byte(v >> 16)
		dst[4*i+3] = byte(v >> 24)
	}
}

var converters [5][5]ConvertFunc

func init() {
	converters[FormatU8][FormatS16] = convertU8ToS16
	converters[FormatU8][FormatS24] = convertU8ToS24
	converters[FormatU8][FormatS32] = convertU8ToS32
	converters[FormatU8][FormatF32] = convertU8ToF32

	converters[FormatS16][FormatU8] = convertS16ToU8
	converters[FormatS16][FormatS24] = convertS16ToS24
	converters[FormatS16][FormatS32] = convertS16ToS32
	converters[FormatS16][FormatF32] = convertS16ToF32

	converters[FormatS24][FormatU8] = convertS24ToU8
	converters[FormatS24][FormatS16] = convertS24ToS16
	converters[FormatS24][FormatS32] = convertS24ToS32
	converters[FormatS24][FormatF32] = convertS24ToF32

	converters[FormatS32][FormatU8] = convertS32ToU8
	converters[FormatS32][FormatS16] = convertS32ToS16
	converters[FormatS32][FormatS24] = convertS32ToS24
	converters[FormatS32][FormatF32] = convertS32ToF32

	converters[FormatF32][FormatU8] = convertF32ToU8
	converters[FormatF32][FormatS16] = convertF32ToS16
	converters[FormatF32][FormatS24] = convertF32ToS24
	converters[FormatF32][FormatS32] = convertF32ToS32
}

// Convert dispatches to the converter for (src, dst) and applies it to
// sampleCount flat samples. Same-format conversion is a memcpy.
// sampleCount == 0 is always a no-op.
func Convert(dstFmt, srcFmt Format, dst, src []byte, sampleCount int) {
	if sampleCount == 0 {
		return
	}
	if srcFmt == dstFmt {
		copySamples(dst, src, sampleCount, srcFmt.BytesPerSample())
		return
	}
	fn := converters[srcFmt][dstFmt]
	fn(dst, src, sampleCount)
}
