package pcm

// PipelineReader is the upstream callback a Pipeline pulls from. It
// writes up to frameCount interleaved frames (in the pipeline's client
// format) into out and returns the number of frames actually written; a
// return below frameCount signals a shortfall, and 0 signals exhaustion
// for this call.
type PipelineReader func(frameCount int, out []byte) int

// chunkFrames bounds the pipeline's internal scratch: chunk * channels *
// 8 bytes stays close to 4 KiB for the typical channel counts this
// library supports.
const chunkFrames = 128

// PipelineConfig describes both sides of a Pipeline: the client-facing
// format/channel layout/rate, and the endpoint-facing one.
type PipelineConfig struct {
	FormatIn     Format
	ChannelsIn   int
	RateIn       int
	ChannelMapIn ChannelMap

	FormatOut     Format
	ChannelsOut   int
	RateOut       int
	ChannelMapOut ChannelMap

	Upstream PipelineReader
}

// Pipeline composes format conversion, channel remixing, channel
// remapping and sample-rate conversion into a single pull-based reader
// that bridges a client's preferred format to a backend endpoint's
// negotiated format, in either direction.
type Pipeline struct {
	cfg PipelineConfig

	src *SRC

	isSRCRequired     bool
	isChannelMapping  bool
	isPassthrough     bool
	postMixMap        ChannelMap
	shuffle           []int

	scratchIn   []byte
	scratchF32b []float32
}

// NewPipeline builds a Pipeline per the build phase in the DSP pipeline
// spec: attach an SRC if rates differ, compute the post-mix channel map
// and shuffle table if both maps are known, and detect passthrough.
func NewPipeline(cfg PipelineConfig) (*Pipeline, error) {
	p := &Pipeline{cfg: cfg}

	if cfg.RateIn != cfg.RateOut {
		p.isSRCRequired = true
		src, err := NewSRC(SRCConfig{
			FormatIn:  cfg.FormatIn,
			FormatOut: FormatF32,
			Channels:  cfg.ChannelsIn,
			RateIn:    cfg.RateIn,
			RateOut:   cfg.RateOut,
			Upstream:  UpstreamReader(cfg.Upstream),
		})
		if err != nil {
			return nil, err
		}
		p.src = src
	}

	if len(cfg.ChannelMapIn) > 0 && len(cfg.ChannelMapOut) > 0 {
		p.postMixMap = BuildPostMixMap(cfg.ChannelMapIn, cfg.ChannelMapOut, cfg.ChannelsOut)
		p.shuffle = BuildShuffleTable(p.postMixMap, cfg.ChannelMapOut)
		p.isChannelMapping = !PostMixMatchesOut(p.postMixMap, cfg.ChannelMapOut)
	}

	p.isPassthrough = cfg.FormatIn == cfg.FormatOut &&
		cfg.ChannelsIn == cfg.ChannelsOut &&
		cfg.RateIn == cfg.RateOut &&
		!p.isChannelMapping

	maxCh := cfg.ChannelsIn
	if cfg.ChannelsOut > maxCh {
		maxCh = cfg.ChannelsOut
	}
	maxBytesPerSample := 4
	p.scratchIn = make([]byte, chunkFrames*maxCh*maxBytesPerSample)
	p.scratchF32b = make([]float32, chunkFrames*maxCh)

	return p, nil
}

// IsPassthrough reports whether this pipeline performs no conversion at
// all and simply delegates to the upstream callback.
func (p *Pipeline) IsPassthrough() bool { return p.isPassthrough }

// IsSRCRequired reports whether a sample-rate converter is attached.
func (p *Pipeline) IsSRCRequired() bool { return p.isSRCRequired }

// IsChannelMappingRequired reports whether the shuffle table is applied,
// i.e. whether the post-mix map differs from the output map.
func (p *Pipeline) IsChannelMappingRequired() bool { return p.isChannelMapping }

// Read produces up to frameCount output frames (FormatOut, ChannelsOut,
// interleaved) into out, returning the number of frames actually
// produced.
func (p *Pipeline) Read(frameCount int, out []byte) int {
	if p.isPassthrough {
		return p.cfg.Upstream(frameCount, out)
	}

	produced := 0
	outStride := p.cfg.ChannelsOut * p.cfg.FormatOut.BytesPerSample()
	for produced < frameCount {
		remaining := frameCount - produced
		chunk := remaining
		if chunk > chunkFrames {
			chunk = chunkFrames
		}

		var f32Buf []float32
		var got int
		if p.isSRCRequired {
			byteBuf := p.scratchIn[:chunk*p.cfg.ChannelsIn*4]
			got = p.src.Read(chunk, byteBuf)
			if got == 0 {
				break
			}
			f32Buf = p.scratchF32b[:got*p.cfg.ChannelsIn]
			decodeF32(f32Buf, byteBuf[:got*p.cfg.ChannelsIn*4])
		} else {
			inStride := p.cfg.FormatIn.BytesPerSample()
			byteBuf := p.scratchIn[:chunk*p.cfg.ChannelsIn*inStride]
			got = p.cfg.Upstream(chunk, byteBuf)
			if got == 0 {
				break
			}
			f32Buf = p.scratchF32b[:got*p.cfg.ChannelsIn]
			if p.cfg.FormatIn == FormatF32 {
				decodeF32(f32Buf, byteBuf[:got*p.cfg.ChannelsIn*4])
			} else {
				tmp := make([]byte, got*p.cfg.ChannelsIn*4)
				Convert(FormatF32, p.cfg.FormatIn, tmp, byteBuf, got*p.cfg.ChannelsIn)
				decodeF32(f32Buf, tmp)
			}
		}

		if p.cfg.ChannelsIn != p.cfg.ChannelsOut {
			mixed := make([]float32, got*p.cfg.ChannelsOut)
			down := DownmixBlend
			up := UpmixBlend
			Remix(mixed, f32Buf, got, p.cfg.ChannelsIn, p.cfg.ChannelsOut, down, up)
			f32Buf = mixed
		}

		if p.isChannelMapping {
			RemapBuffer(f32Buf, got, p.cfg.ChannelsOut, p.shuffle)
		}

		outBuf := make([]byte, got*p.cfg.ChannelsOut*4)
		encodeF32(outBuf, f32Buf)
		Convert(p.cfg.FormatOut, FormatF32, out[produced*outStride:], outBuf, got*p.cfg.ChannelsOut)

		produced += got
		if got < chunk {
			break
		}
	}
	return produced
}
