package audio

// Sink is the role of a node that accepts blocks of mono float32 samples.
//
// WriteSamples returns the number of samples accepted. A return value
// smaller than the block length signals backpressure; the caller keeps the
// remainder and retries later. Dropping samples on purpose (a closed
// Valve) is reported as full acceptance, not as backpressure.
type Sink interface {
	// WriteSamples accepts a block of samples and returns how many were taken.
	WriteSamples(samples []float32) (int, error)

	// FlushSamples signals end-of-stream. A buffering sink drains its queue
	// and then propagates the flush downstream.
	FlushSamples()
}

// Source is the role of a node that produces sample blocks and pushes them
// to a registered sink. Registration carries no ownership semantics.
type Source interface {
	// RegisterSink connects the downstream sink. Passing nil detaches it.
	RegisterSink(sink Sink)
}
