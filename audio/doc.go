// Package audio provides the processing-graph primitives for the voice
// terminal's real-time audio signal chain.
//
// Audio flows through a push-based graph of nodes. A node that accepts
// blocks of mono float32 samples fills the Sink role; a node that produces
// them fills the Source role. The package supplies the three generic
// plumbing nodes the call pipeline is assembled from:
//
//   - Fifo: an elastic queue with a prebuffer threshold and a configurable
//     overwrite-on-overflow policy, used to absorb jitter between the
//     remote endpoint and the playback device.
//   - Valve: a binary pass/block gate. Samples presented while closed are
//     accepted and discarded so upstream never stalls.
//   - Splitter: a one-to-many fan-out with per-branch enable flags.
//
// Nodes own their internal buffers only. Sink registrations carry no
// ownership; the pipeline assembly that created the nodes manages their
// lifetime.
package audio
