package speech

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Volcengine speech endpoints speak a binary framing over WebSocket:
//
//	byte 0: version(4) | header size in 4-byte words(4)
//	byte 1: message type(4) | flags(4)
//	byte 2: serialization(4) | compression(4)
//	byte 3: reserved
//
// followed by an optional sequence, optional event metadata, a big-endian
// payload size and the payload.

const frameVersion = 0b0001

type MessageType uint8

const (
	FullClientRequest       MessageType = 0b0001
	AudioOnlyRequest        MessageType = 0b0010
	FullServerResponse      MessageType = 0b1001
	AudioOnlyServerResponse MessageType = 0b1011
	ErrorMessage            MessageType = 0b1111
)

type MessageFlags uint8

const (
	NoSequence       MessageFlags = 0b0000
	PositiveSequence MessageFlags = 0b0001
	LastNoSequence   MessageFlags = 0b0010
	NegativeSequence MessageFlags = 0b0011
	WithEvent        MessageFlags = 0b0100

	sequenceMask MessageFlags = 0b0011
)

type Serialization uint8

const (
	RawSerialization  Serialization = 0b0000
	JSONSerialization Serialization = 0b0001
)

type Compression uint8

const (
	NoCompression   Compression = 0b0000
	GzipCompression Compression = 0b0001
)

// FrameEvent is the event code carried when WithEvent is set.
type FrameEvent int32

const (
	EventNone               FrameEvent = 0
	EventStartConnection    FrameEvent = 1
	EventFinishConnection   FrameEvent = 2
	EventConnectionStarted  FrameEvent = 50
	EventConnectionFailed   FrameEvent = 51
	EventConnectionFinished FrameEvent = 52
	EventSessionStarted     FrameEvent = 150
	EventSessionFinished    FrameEvent = 152
	EventSessionFailed      FrameEvent = 153
)

// connection-level events carry a connect id instead of a session id
func (e FrameEvent) connectionScoped() bool {
	switch e {
	case EventStartConnection, EventFinishConnection,
		EventConnectionStarted, EventConnectionFailed, EventConnectionFinished:
		return true
	}
	return false
}

func (e FrameEvent) hasConnectID() bool {
	switch e {
	case EventConnectionStarted, EventConnectionFailed, EventConnectionFinished:
		return true
	}
	return false
}

type Frame struct {
	Type          MessageType
	Flags         MessageFlags
	Serialization Serialization
	Compression   Compression

	Sequence  int32
	Event     FrameEvent
	SessionID string
	ConnectID string
	ErrorCode uint32
	Payload   []byte
}

func (f *Frame) hasSequence() bool {
	s := f.Flags & sequenceMask
	return s == PositiveSequence || s == NegativeSequence
}

// IsLast reports whether the frame closes the stream.
func (f *Frame) IsLast() bool {
	s := f.Flags & sequenceMask
	return s == LastNoSequence || s == NegativeSequence
}

func (f *Frame) hasEvent() bool {
	return f.Flags&WithEvent == WithEvent
}

// EncodeFrame serializes f with a 4-byte header.
func EncodeFrame(f *Frame) []byte {
	buf := make([]byte, 0, 16+len(f.Payload))
	buf = append(buf,
		frameVersion<<4|0b0001,
		byte(f.Type)<<4|byte(f.Flags),
		byte(f.Serialization)<<4|byte(f.Compression),
		0,
	)

	if f.hasSequence() {
		buf = binary.BigEndian.AppendUint32(buf, uint32(f.Sequence))
	}
	if f.hasEvent() {
		buf = binary.BigEndian.AppendUint32(buf, uint32(f.Event))
		if !f.Event.connectionScoped() {
			buf = appendSized(buf, f.SessionID)
		}
		if f.Event.hasConnectID() {
			buf = appendSized(buf, f.ConnectID)
		}
	}
	if f.Type == ErrorMessage {
		buf = binary.BigEndian.AppendUint32(buf, f.ErrorCode)
	}

	buf = binary.BigEndian.AppendUint32(buf, uint32(len(f.Payload)))
	return append(buf, f.Payload...)
}

func appendSized(buf []byte, s string) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

// DecodeFrame parses one frame as produced by EncodeFrame or the server.
func DecodeFrame(data []byte) (*Frame, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("frame too short: %d bytes", len(data))
	}
	if version := data[0] >> 4; version != frameVersion {
		return nil, fmt.Errorf("unsupported frame version %d", version)
	}

	f := &Frame{
		Type:          MessageType(data[1] >> 4),
		Flags:         MessageFlags(data[1] & 0x0F),
		Serialization: Serialization(data[2] >> 4),
		Compression:   Compression(data[2] & 0x0F),
	}

	r := bytes.NewReader(data[4:])
	if extra := int(data[0]&0x0F)*4 - 4; extra > 0 {
		if _, err := r.Seek(int64(extra), io.SeekCurrent); err != nil {
			return nil, fmt.Errorf("skip extended header: %w", err)
		}
	}

	if f.hasSequence() {
		var seq int32
		if err := binary.Read(r, binary.BigEndian, &seq); err != nil {
			return nil, fmt.Errorf("read sequence: %w", err)
		}
		f.Sequence = seq
	}

	if f.hasEvent() {
		var event int32
		if err := binary.Read(r, binary.BigEndian, &event); err != nil {
			return nil, fmt.Errorf("read event: %w", err)
		}
		f.Event = FrameEvent(event)

		var err error
		if !f.Event.connectionScoped() {
			if f.SessionID, err = readSized(r); err != nil {
				return nil, fmt.Errorf("read session id: %w", err)
			}
		}
		if f.Event.hasConnectID() {
			if f.ConnectID, err = readSized(r); err != nil {
				return nil, fmt.Errorf("read connect id: %w", err)
			}
		}
	}

	if f.Type == ErrorMessage {
		if err := binary.Read(r, binary.BigEndian, &f.ErrorCode); err != nil {
			return nil, fmt.Errorf("read error code: %w", err)
		}
	}

	var size uint32
	if err := binary.Read(r, binary.BigEndian, &size); err != nil {
		return nil, fmt.Errorf("read payload size: %w", err)
	}
	if int64(size) > int64(r.Len()) {
		return nil, fmt.Errorf("payload truncated: want %d bytes, have %d", size, r.Len())
	}
	if size > 0 {
		f.Payload = make([]byte, size)
		if _, err := io.ReadFull(r, f.Payload); err != nil {
			return nil, fmt.Errorf("read payload: %w", err)
		}
	}
	return f, nil
}

func readSized(r *bytes.Reader) (string, error) {
	var size uint32
	if err := binary.Read(r, binary.BigEndian, &size); err != nil {
		return "", err
	}
	if int64(size) > int64(r.Len()) {
		return "", io.ErrUnexpectedEOF
	}
	b := make([]byte, size)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

// NewClientRequest wraps a serialized JSON request.
func NewClientRequest(payload []byte, compression Compression) *Frame {
	return &Frame{
		Type:          FullClientRequest,
		Flags:         NoSequence,
		Serialization: JSONSerialization,
		Compression:   compression,
		Payload:       payload,
	}
}

// NewAudioFrame wraps one audio chunk. The last chunk carries a negated
// sequence, or the last-packet flag when unsequenced.
func NewAudioFrame(audio []byte, sequence int32, last bool, compression Compression) *Frame {
	flags := NoSequence
	switch {
	case last && sequence != 0:
		flags = NegativeSequence
		sequence = -sequence
	case last:
		flags = LastNoSequence
	case sequence > 0:
		flags = PositiveSequence
	}
	return &Frame{
		Type:          AudioOnlyRequest,
		Flags:         flags,
		Serialization: RawSerialization,
		Compression:   compression,
		Sequence:      sequence,
		Payload:       audio,
	}
}

// DecodePayload returns the payload with compression removed.
func (f *Frame) DecodePayload() ([]byte, error) {
	return decompress(f.Payload, f.Compression)
}
