// Package call assembles the voice-call audio pipeline: capture and
// playback devices, multirate conversion to the internal processing
// rate, VOX detection, the transmit gate and the full/half duplex
// device arbiter.
//
// The pipeline owns every processing node exclusively; sink
// registrations between nodes carry no ownership, so teardown is a
// plain sequential shutdown in a fixed order. Control inputs (PTT,
// VOX state changes, connection-state changes, duplex switches) arrive
// from whichever goroutine produced them: the capture loop, the
// transport's read loop, hang-timer expiry, or the control surface.
// The pipeline, gate and arbiter serialize them internally, so edge
// actions are applied in decision order. Event callbacks fire outside
// the internal locks and must not call back into the control methods.
package call
