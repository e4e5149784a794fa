package remote

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// Wire protocol packet types. Every datagram starts with one type byte.
//
// Wire formats:
//
//	connect: [TYPE(1)][CALLSIGN_LEN(1)][CALLSIGN][NAME_LEN(1)][NAME]
//	accept:  [TYPE(1)]
//	bye:     [TYPE(1)]
//	audio:   [TYPE(1)][PAYLOAD] (PCM16 little-endian, or an Opus frame)
//	text:    [TYPE(1)][UTF8 TEXT]
const (
	packetTypeConnect byte = 0x01
	packetTypeAccept  byte = 0x02
	packetTypeBye     byte = 0x03

	packetTypeAudioPCM  byte = 0x10
	packetTypeAudioOpus byte = 0x11

	packetTypeChat byte = 0x20
	packetTypeInfo byte = 0x21
)

// Wire protocol validation errors.
var (
	ErrPacketTooShort = errors.New("packet too short")
	ErrInvalidText    = errors.New("text payload is not valid UTF-8")
)

// ConnectRequest identifies the calling station.
type ConnectRequest struct {
	Callsign string
	Name     string
}

// SerializeConnect encodes a connect request.
func SerializeConnect(req *ConnectRequest) ([]byte, error) {
	if req == nil {
		return nil, errors.New("connect request is nil")
	}
	if len(req.Callsign) > 255 || len(req.Name) > 255 {
		return nil, fmt.Errorf("connect field too long: callsign=%d name=%d",
			len(req.Callsign), len(req.Name))
	}

	data := make([]byte, 0, 3+len(req.Callsign)+len(req.Name))
	data = append(data, packetTypeConnect, byte(len(req.Callsign)))
	data = append(data, req.Callsign...)
	data = append(data, byte(len(req.Name)))
	data = append(data, req.Name...)
	return data, nil
}

// DeserializeConnect decodes a connect request payload (type byte already
// stripped).
func DeserializeConnect(data []byte) (*ConnectRequest, error) {
	if len(data) < 2 {
		return nil, ErrPacketTooShort
	}
	csLen := int(data[0])
	if len(data) < 1+csLen+1 {
		return nil, ErrPacketTooShort
	}
	callsign := string(data[1 : 1+csLen])
	nameLen := int(data[1+csLen])
	if len(data) < 2+csLen+nameLen {
		return nil, ErrPacketTooShort
	}
	name := string(data[2+csLen : 2+csLen+nameLen])

	return &ConnectRequest{Callsign: callsign, Name: name}, nil
}

// SerializeAudioPCM encodes a block of float32 samples as a PCM16
// little-endian audio packet.
func SerializeAudioPCM(samples []float32) []byte {
	data := make([]byte, 1+len(samples)*2)
	data[0] = packetTypeAudioPCM
	for i, s := range samples {
		if s > 1.0 {
			s = 1.0
		} else if s < -1.0 {
			s = -1.0
		}
		v := int16(s * 32767.0)
		data[1+i*2] = byte(v)
		data[2+i*2] = byte(v >> 8)
	}
	return data
}

// DeserializeAudioPCM decodes a PCM16 little-endian payload (type byte
// already stripped) into float32 samples.
func DeserializeAudioPCM(data []byte) ([]float32, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("pcm payload length %d is odd", len(data))
	}
	samples := make([]float32, len(data)/2)
	for i := range samples {
		v := int16(data[i*2]) | int16(data[i*2+1])<<8
		samples[i] = float32(v) / 32768.0
	}
	return samples, nil
}

// SerializeText encodes a chat or info packet.
func SerializeText(packetType byte, text string) ([]byte, error) {
	if !utf8.ValidString(text) {
		return nil, ErrInvalidText
	}
	data := make([]byte, 0, 1+len(text))
	data = append(data, packetType)
	data = append(data, text...)
	return data, nil
}

// DeserializeText decodes a text payload (type byte already stripped).
// Invalid UTF-8 is rejected rather than passed to the UI layer.
func DeserializeText(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", ErrInvalidText
	}
	return string(data), nil
}
