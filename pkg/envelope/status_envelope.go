// Package envelope holds the FlatBuffers StatusEnvelope table used on the
// ZeroMQ status feed. The accessors follow the layout flatc emits for:
//
//	enum ContentType : ubyte { JSON = 0, TEXT = 1 }
//	table StatusEnvelope {
//	  channel: string;
//	  message_type: string;
//	  sequence: ulong;
//	  timestamp_ns: long;
//	  content_type: ContentType;
//	  payload: [ubyte];
//	}
//	root_type StatusEnvelope;
package envelope

import (
	"strconv"

	flatbuffers "github.com/google/flatbuffers/go"
)

// ContentType describes the payload bytes
type ContentType byte

const (
	ContentTypeJSON ContentType = 0
	ContentTypeTEXT ContentType = 1
)

var EnumNamesContentType = map[ContentType]string{
	ContentTypeJSON: "JSON",
	ContentTypeTEXT: "TEXT",
}

func (v ContentType) String() string {
	if s, ok := EnumNamesContentType[v]; ok {
		return s
	}
	return "ContentType(" + strconv.FormatInt(int64(v), 10) + ")"
}

type StatusEnvelope struct {
	_tab flatbuffers.Table
}

func GetRootAsStatusEnvelope(buf []byte, offset flatbuffers.UOffsetT) *StatusEnvelope {
	n := flatbuffers.GetUOffsetT(buf[offset:])
	x := &StatusEnvelope{}
	x.Init(buf, n+offset)
	return x
}

func (rcv *StatusEnvelope) Init(buf []byte, i flatbuffers.UOffsetT) {
	rcv._tab.Bytes = buf
	rcv._tab.Pos = i
}

func (rcv *StatusEnvelope) Table() flatbuffers.Table {
	return rcv._tab
}

func (rcv *StatusEnvelope) Channel() []byte {
	o := flatbuffers.UOffsetT(rcv._tab.Offset(4))
	if o != 0 {
		return rcv._tab.ByteVector(o + rcv._tab.Pos)
	}
	return nil
}

func (rcv *StatusEnvelope) MessageType() []byte {
	o := flatbuffers.UOffsetT(rcv._tab.Offset(6))
	if o != 0 {
		return rcv._tab.ByteVector(o + rcv._tab.Pos)
	}
	return nil
}

func (rcv *StatusEnvelope) Sequence() uint64 {
	o := flatbuffers.UOffsetT(rcv._tab.Offset(8))
	if o != 0 {
		return rcv._tab.GetUint64(o + rcv._tab.Pos)
	}
	return 0
}

func (rcv *StatusEnvelope) TimestampNs() int64 {
	o := flatbuffers.UOffsetT(rcv._tab.Offset(10))
	if o != 0 {
		return rcv._tab.GetInt64(o + rcv._tab.Pos)
	}
	return 0
}

func (rcv *StatusEnvelope) ContentType() ContentType {
	o := flatbuffers.UOffsetT(rcv._tab.Offset(12))
	if o != 0 {
		return ContentType(rcv._tab.GetByte(o + rcv._tab.Pos))
	}
	return ContentTypeJSON
}

func (rcv *StatusEnvelope) PayloadLength() int {
	o := flatbuffers.UOffsetT(rcv._tab.Offset(14))
	if o != 0 {
		return rcv._tab.VectorLen(o)
	}
	return 0
}

func (rcv *StatusEnvelope) PayloadBytes() []byte {
	o := flatbuffers.UOffsetT(rcv._tab.Offset(14))
	if o != 0 {
		return rcv._tab.ByteVector(o + rcv._tab.Pos)
	}
	return nil
}

func StatusEnvelopeStart(builder *flatbuffers.Builder) {
	builder.StartObject(6)
}

func StatusEnvelopeAddChannel(builder *flatbuffers.Builder, channel flatbuffers.UOffsetT) {
	builder.PrependUOffsetTSlot(0, flatbuffers.UOffsetT(channel), 0)
}

func StatusEnvelopeAddMessageType(builder *flatbuffers.Builder, messageType flatbuffers.UOffsetT) {
	builder.PrependUOffsetTSlot(1, flatbuffers.UOffsetT(messageType), 0)
}

func StatusEnvelopeAddSequence(builder *flatbuffers.Builder, sequence uint64) {
	builder.PrependUint64Slot(2, sequence, 0)
}

func StatusEnvelopeAddTimestampNs(builder *flatbuffers.Builder, timestampNs int64) {
	builder.PrependInt64Slot(3, timestampNs, 0)
}

func StatusEnvelopeAddContentType(builder *flatbuffers.Builder, contentType ContentType) {
	builder.PrependByteSlot(4, byte(contentType), 0)
}

func StatusEnvelopeAddPayload(builder *flatbuffers.Builder, payload flatbuffers.UOffsetT) {
	builder.PrependUOffsetTSlot(5, flatbuffers.UOffsetT(payload), 0)
}

func StatusEnvelopeEnd(builder *flatbuffers.Builder) flatbuffers.UOffsetT {
	return builder.EndObject()
}
