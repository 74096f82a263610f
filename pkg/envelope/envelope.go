package envelope

import (
	"errors"
	"fmt"
	"time"

	flatbuffers "github.com/google/flatbuffers/go"
)

// ErrMalformed is returned for buffers that do not hold a StatusEnvelope
var ErrMalformed = errors.New("malformed status envelope")

// Envelope is the decoded form of a StatusEnvelope
type Envelope struct {
	Channel     string
	MessageType string
	Sequence    uint64
	Timestamp   time.Time
	ContentType ContentType
	Payload     []byte
}

// Encode serializes e as a finished StatusEnvelope buffer
func Encode(e Envelope) []byte {
	builder := flatbuffers.NewBuilder(128 + len(e.Payload))

	channelOffset := builder.CreateString(e.Channel)
	typeOffset := builder.CreateString(e.MessageType)
	payloadOffset := builder.CreateByteVector(e.Payload)

	StatusEnvelopeStart(builder)
	StatusEnvelopeAddChannel(builder, channelOffset)
	StatusEnvelopeAddMessageType(builder, typeOffset)
	StatusEnvelopeAddSequence(builder, e.Sequence)
	StatusEnvelopeAddTimestampNs(builder, e.Timestamp.UnixNano())
	StatusEnvelopeAddContentType(builder, e.ContentType)
	StatusEnvelopeAddPayload(builder, payloadOffset)
	builder.Finish(StatusEnvelopeEnd(builder))

	return builder.FinishedBytes()
}

// Decode parses a StatusEnvelope buffer. Truncated or corrupt buffers
// yield ErrMalformed instead of panicking.
func Decode(buf []byte) (env Envelope, err error) {
	if len(buf) < flatbuffers.SizeUOffsetT+flatbuffers.SizeSOffsetT {
		return Envelope{}, fmt.Errorf("%w: %d bytes", ErrMalformed, len(buf))
	}
	defer func() {
		if r := recover(); r != nil {
			env = Envelope{}
			err = fmt.Errorf("%w: %v", ErrMalformed, r)
		}
	}()

	fb := GetRootAsStatusEnvelope(buf, 0)
	payload := fb.PayloadBytes()
	env = Envelope{
		Channel:     string(fb.Channel()),
		MessageType: string(fb.MessageType()),
		Sequence:    fb.Sequence(),
		Timestamp:   time.Unix(0, fb.TimestampNs()),
		ContentType: fb.ContentType(),
		Payload:     append([]byte(nil), payload...),
	}
	if env.Channel == "" {
		return Envelope{}, fmt.Errorf("%w: missing channel", ErrMalformed)
	}
	return env, nil
}
