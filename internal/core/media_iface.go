package core

// MediaSource exposes the most recent inbound audio payload (G.711
// frames as delivered by the media transport). Readers poll it at their
// own cadence; the source keeps only the latest frame.
type MediaSource interface {
	LatestPayload() ([]byte, bool)
}

// AudioSink plays an inbound media source. Bind is idempotent.
type AudioSink interface {
	Bind(src MediaSource)
	Unbind()
}

// VisualSink receives one amplitude frame per render pass.
type VisualSink interface {
	RenderFrame(levels []byte)
}
