// Package vox implements Voice-Operated Transmission detection.
//
// The detector consumes the transmit-path audio stream, estimates a
// smoothed level per block and drives a three-state activity machine:
// IDLE (no voice, gate closed), ACTIVE (level above threshold) and HANG
// (level dropped below threshold but the release timer has not elapsed).
//
// The level estimate is an average-rectified approximation, not true RMS:
// each block's DC offset is removed independently and the mean absolute
// deviation is mapped to a dB-like scale clamped to [-60, 0]. The cheap
// approximation is deliberate and kept for behavioral parity with the
// original EchoLink client.
package vox
