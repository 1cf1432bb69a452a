package pcm_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quietfield/pcmio/pkg/pcm"
)

func TestDefaultChannelMap(t *testing.T) {
	require.Equal(t, pcm.ChannelMap{pcm.PositionFC}, pcm.DefaultChannelMap(1))
	require.Equal(t, pcm.ChannelMap{pcm.PositionFL, pcm.PositionFR}, pcm.DefaultChannelMap(2))
	require.Equal(t, pcm.ChannelMap{
		pcm.PositionFL, pcm.PositionFR, pcm.PositionFC,
		pcm.PositionLFE, pcm.PositionBL, pcm.PositionBR,
	}, pcm.DefaultChannelMap(6))

	// Counts with no canonical layout get an all-none map of the right length.
	m := pcm.DefaultChannelMap(7)
	require.Len(t, m, 7)
	for _, p := range m {
		require.Equal(t, pcm.PositionNone, p)
	}
}

func TestChannelMapIsValid(t *testing.T) {
	require.True(t, pcm.DefaultChannelMap(2).IsValid(2))
	require.False(t, pcm.DefaultChannelMap(2).IsValid(3))

	dup := pcm.ChannelMap{pcm.PositionFL, pcm.PositionFL}
	require.False(t, dup.IsValid(2))

	// Repeated "none" positions are not duplicates.
	nones := pcm.ChannelMap{pcm.PositionNone, pcm.PositionNone}
	require.True(t, nones.IsValid(2))
}

func TestRemixSameChannelsIsCopy(t *testing.T) {
	src := []float32{1, 2, 3, 4}
	dst := make([]float32, 4)
	pcm.Remix(dst, src, 2, 2, 2, pcm.DownmixBasic, pcm.UpmixBasic)
	require.Equal(t, src, dst)
}

func TestRemixDownmixBasicTruncates(t *testing.T) {
	// 4 channels -> 2: basic keeps the first N channels, drops the rest.
	src := []float32{1, 2, 3, 4}
	dst := make([]float32, 2)
	pcm.Remix(dst, src, 1, 4, 2, pcm.DownmixBasic, pcm.UpmixBasic)
	require.Equal(t, []float32{1, 2}, dst)
}

func TestRemixDownmixBlendToMonoAverages(t *testing.T) {
	src := []float32{1, 3}
	dst := make([]float32, 1)
	pcm.Remix(dst, src, 1, 2, 1, pcm.DownmixBlend, pcm.UpmixBasic)
	require.InDelta(t, 2.0, dst[0], 1e-6)
}

func TestRemixUpmixBasicZeroFills(t *testing.T) {
	src := []float32{1, 2}
	dst := make([]float32, 4)
	pcm.Remix(dst, src, 1, 2, 4, pcm.DownmixBasic, pcm.UpmixBasic)
	require.Equal(t, []float32{1, 2, 0, 0}, dst)
}

func TestRemixUpmixBlendFromMonoDuplicates(t *testing.T) {
	src := []float32{5}
	dst := make([]float32, 4)
	pcm.Remix(dst, src, 1, 1, 4, pcm.DownmixBasic, pcm.UpmixBlend)
	require.Equal(t, []float32{5, 5, 5, 5}, dst)
}

// TestChannelRemapScenario implements §8 scenario 5 verbatim: a 6-channel
// map_in of [FL,FR,FC,LFE,BL,BR] remapped to map_out
// [FL,FR,BL,BR,FC,LFE] must turn frame [1,2,3,4,5,6] into [1,2,5,6,3,4].
func TestChannelRemapScenario(t *testing.T) {
	in := pcm.DefaultChannelMap(6) // FL,FR,FC,LFE,BL,BR
	out := pcm.ChannelMap{
		pcm.PositionFL, pcm.PositionFR, pcm.PositionBL,
		pcm.PositionBR, pcm.PositionFC, pcm.PositionLFE,
	}

	postMix := pcm.BuildPostMixMap(in, out, 6)
	require.False(t, pcm.PostMixMatchesOut(postMix, out))

	shuffle := pcm.BuildShuffleTable(postMix, out)
	frame := []float32{1, 2, 3, 4, 5, 6}
	pcm.Remap(frame, shuffle)
	require.Equal(t, []float32{1, 2, 5, 6, 3, 4}, frame)
}

func TestRemapBufferAppliesToEveryFrame(t *testing.T) {
	shuffle := []int{1, 0} // swap L/R
	buf := []float32{1, 2, 3, 4}
	pcm.RemapBuffer(buf, 2, 2, shuffle)
	require.Equal(t, []float32{2, 1, 4, 3}, buf)
}

// TestChannelMapPermutationInvolution covers the §8 quantified invariant:
// applying a remap and then its inverse reproduces the original frame.
func TestChannelMapPermutationInvolution(t *testing.T) {
	in := pcm.DefaultChannelMap(6)
	out := pcm.ChannelMap{
		pcm.PositionFL, pcm.PositionFR, pcm.PositionBL,
		pcm.PositionBR, pcm.PositionFC, pcm.PositionLFE,
	}

	forward := pcm.BuildShuffleTable(pcm.BuildPostMixMap(in, out, 6), out)
	backward := pcm.BuildShuffleTable(pcm.BuildPostMixMap(out, in, 6), in)

	original := []float32{1, 2, 3, 4, 5, 6}
	frame := append([]float32{}, original...)
	pcm.Remap(frame, forward)
	pcm.Remap(frame, backward)
	require.Equal(t, original, frame)
}

func TestPostMixMatchesOutNoopWhenIdentical(t *testing.T) {
	m := pcm.DefaultChannelMap(2)
	require.True(t, pcm.PostMixMatchesOut(m, m))
}
