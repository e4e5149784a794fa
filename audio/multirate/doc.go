// Package multirate implements the sample-rate conversion stages between a
// hardware device's native rate and the pipeline's internal processing
// rate.
//
// Conversion is built from cascaded integer-ratio stages: a Decimator
// low-pass filters and keeps every Nth sample, an Interpolator inserts and
// low-pass filters N output samples per input sample. NewSampleChain
// selects the stage sequence for a supported rate pair (8, 16 and 48 kHz
// tiers) at construction time; the chain is immutable afterwards and an
// unsupported pair is a construction error, never a runtime one.
//
// Each stage owns a sliding history buffer sized to its filter length and
// keeps that state across blocks, so block boundaries introduce no
// artifacts.
package multirate
