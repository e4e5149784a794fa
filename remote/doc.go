// Package remote implements the opaque remote audio endpoint the call
// pipeline talks to.
//
// Once a call is established the endpoint behaves as a bidirectional audio
// object: it accepts locally captured sample blocks for transmission
// (audio sink role) and pushes decoded remote audio into a registered
// graph sink (audio source role). Connection lifecycle is exposed as a
// small state machine (DISCONNECTED, CONNECTING, CONNECTED, BYE_RECEIVED)
// driven by connect/accept/disconnect commands and by the peer's packets.
//
// The wire side is deliberately minimal: typed packets over a Transport
// abstraction, with PCM16 or Opus audio payloads (Opus is decode-only,
// via pion/opus) and UTF-8 chat/info text. An optional Noise-XX encrypted
// transport wrapper is provided for links that need confidentiality.
// Full softphone signaling, codec negotiation and jitter concealment are
// out of scope.
package remote
