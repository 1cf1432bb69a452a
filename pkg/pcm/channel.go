package pcm

// MaxChannels is the hard channel-count ceiling carried through every
// scratch buffer in this package, matching the ceiling the source
// implementation hard-wires everywhere including its own scratch buffers.
const MaxChannels = 18

// ChannelPosition identifies a speaker position within a channel map.
type ChannelPosition uint8

const (
	PositionNone ChannelPosition = 0
	PositionFL   ChannelPosition = 1
	PositionFR   ChannelPosition = 2
	PositionFC   ChannelPosition = 3
	PositionLFE  ChannelPosition = 4
	PositionBL   ChannelPosition = 5
	PositionBR   ChannelPosition = 6
	PositionFLC  ChannelPosition = 7
	PositionFRC  ChannelPosition = 8
	PositionBC   ChannelPosition = 9
	PositionSL   ChannelPosition = 10
	PositionSR   ChannelPosition = 11
	PositionTC   ChannelPosition = 12
	PositionTFL  ChannelPosition = 13
	PositionTFC  ChannelPosition = 14
	PositionTFR  ChannelPosition = 15
	PositionTBL  ChannelPosition = 16
	PositionTBC  ChannelPosition = 17
	PositionTBR  ChannelPosition = 18
)

// ChannelMap is an ordered list of channel positions, one per channel.
type ChannelMap []ChannelPosition

// DefaultChannelMap returns the default position layout for the given
// channel count, or an all-"none" map (meaning "same as device") for
// counts the spec does not assign a canonical layout to.
func DefaultChannelMap(channels int) ChannelMap {
	switch channels {
	case 1:
		return ChannelMap{PositionFC}
	case 2:
		return ChannelMap{PositionFL, PositionFR}
	case 3:
		return ChannelMap{PositionFL, PositionFR, PositionLFE}
	case 4:
		return ChannelMap{PositionFL, PositionFR, PositionBL, PositionBR}
	case 5:
		return ChannelMap{PositionFL, PositionFR, PositionBL, PositionBR, PositionLFE}
	case 6:
		return ChannelMap{PositionFL, PositionFR, PositionFC, PositionLFE, PositionBL, PositionBR}
	case 8:
		return ChannelMap{PositionFL, PositionFR, PositionFC, PositionLFE, PositionBL, PositionBR, PositionSL, PositionSR}
	default:
		m := make(ChannelMap, channels)
		return m
	}
}

// IsValid reports whether the map has the given channel count and no
// duplicate non-none positions.
func (m ChannelMap) IsValid(channels int) bool {
	if len(m) != channels {
		return false
	}
	seen := make(map[ChannelPosition]bool, channels)
	for _, p := range m {
		if p == PositionNone {
			continue
		}
		if seen[p] {
			return false
		}
		seen[p] = true
	}
	return true
}

// DownmixMode selects the down-mix strategy when channelsOut < channelsIn.
type DownmixMode int

const (
	DownmixBasic DownmixMode = iota
	DownmixBlend
)

// UpmixMode selects the up-mix strategy when channelsOut > channelsIn.
type UpmixMode int

const (
	UpmixBasic UpmixMode = iota
	UpmixBlend
)

// Remix converts a flat interleaved f32 buffer of frameCount frames with
// channelsIn channels into dst with channelsOut channels. dst must hold
// at least frameCount*channelsOut float32s.
func Remix(dst, src []float32, frameCount, channelsIn, channelsOut int, down DownmixMode, up UpmixMode) {
	switch {
	case channelsOut < channelsIn:
		downmix(dst, src, frameCount, channelsIn, channelsOut, down)
	case channelsOut > channelsIn:
		upmix(dst, src, frameCount, channelsIn, channelsOut, up)
	default:
		copy(dst[:frameCount*channelsIn], src[:frameCount*channelsIn])
	}
}

func downmix(dst, src []float32, frameCount, channelsIn, channelsOut int, mode DownmixMode) {
	if mode == DownmixBlend && channelsOut == 1 {
		for f := 0; f < frameCount; f++ {
			var sum float32
			base := f * channelsIn
			for c := 0; c < channelsIn; c++ {
				sum += src[base+c]
			}
			dst[f] = sum / float32(channelsIn)
		}
		return
	}
	// basic (also the fallback for widths blend doesn't specialize for)
	min := channelsOut
	if channelsIn < min {
		min = channelsIn
	}
	for f := 0; f < frameCount; f++ {
		srcBase := f * channelsIn
		dstBase := f * channelsOut
		for c := 0; c < min; c++ {
			dst[dstBase+c] = src[srcBase+c]
		}
		for c := min; c < channelsOut; c++ {
			dst[dstBase+c] = 0
		}
	}
}

func upmix(dst, src []float32, frameCount, channelsIn, channelsOut int, mode UpmixMode) {
	if mode == UpmixBlend && channelsIn == 1 {
		for f := 0; f < frameCount; f++ {
			v := src[f]
			dstBase := f * channelsOut
			for c := 0; c < channelsOut; c++ {
				dst[dstBase+c] = v
			}
		}
		return
	}
	// basic (also the fallback for widths blend doesn't specialize for)
	for f := 0; f < frameCount; f++ {
		srcBase := f * channelsIn
		dstBase := f * channelsOut
		for c := 0; c < channelsIn; c++ {
			dst[dstBase+c] = src[srcBase+c]
		}
		for c := channelsIn; c < channelsOut; c++ {
			dst[dstBase+c] = 0
		}
	}
}

// BuildPostMixMap extends the input channel map to channelsOut entries:
// the first min(len(in), channelsOut) slots copy from in, and any
// remaining slots are filled, in order, with the first position present
// in out but absent from the slots already assigned.
func BuildPostMixMap(in, out ChannelMap, channelsOut int) ChannelMap {
	post := make(ChannelMap, channelsOut)
	min := len(in)
	if channelsOut < min {
		min = channelsOut
	}
	copy(post, in[:min])

	used := make(map[ChannelPosition]bool, channelsOut)
	for _, p := range post[:min] {
		used[p] = true
	}

	for i := min; i < channelsOut; i++ {
		post[i] = PositionNone
		for _, p := range out {
			if !used[p] {
				post[i] = p
				used[p] = true
				break
			}
		}
	}
	return post
}

// BuildShuffleTable computes shuffle such that
// postMix[shuffle[i]] == out[i] for every output slot i. Slots in out
// that have no matching entry in postMix keep their positional index
// (shuffle[i] == i), which is the identity fallback for "none"/unmatched
// positions.
func BuildShuffleTable(postMix, out ChannelMap) []int {
	shuffle := make([]int, len(out))
	for i, want := range out {
		shuffle[i] = i
		for j, have := range postMix {
			if have == want && have != PositionNone {
				shuffle[i] = j
				break
			}
		}
	}
	return shuffle
}

// PostMixMatchesOut reports whether applying shuffle to postMix
// reproduces out exactly, i.e. whether channel mapping is a no-op.
func PostMixMatchesOut(postMix, out ChannelMap) bool {
	if len(postMix) != len(out) {
		return false
	}
	for i := range out {
		if postMix[i] != out[i] {
			return false
		}
	}
	return true
}

// Remap applies shuffle to a single interleaved frame in place:
// out[i] = frame[shuffle[i]]. It copies the frame into a bounded stack
// scratch first so that permutations containing cycles (e.g. swapping
// channels 0 and 1) are handled correctly.
func Remap(frame []float32, shuffle []int) {
	var scratch [MaxChannels]float32
	n := len(shuffle)
	copy(scratch[:n], frame[:n])
	for i, j := range shuffle {
		frame[i] = scratch[j]
	}
}

// RemapBuffer applies Remap to every frame of a channels-wide interleaved
// buffer holding frameCount frames.
func RemapBuffer(buf []float32, frameCount, channels int, shuffle []int) {
	for f := 0; f < frameCount; f++ {
		Remap(buf[f*channels:(f+1)*channels], shuffle)
	}
}
