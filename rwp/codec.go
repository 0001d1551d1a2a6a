package rwp

// Codec encodes and decodes frames for wire transport.
type Codec interface {
	// Encode serializes a frame to bytes.
	Encode(f *Frame) ([]byte, error)

	// Decode deserializes bytes into a frame.
	Decode(data []byte) (*Frame, error)

	// Name returns the codec name as used in format negotiation.
	Name() string
}

// Codec names for format negotiation.
const (
	CodecNameJSON    = "json"
	CodecNameMsgpack = "msgpack"
)

// GetCodec returns the codec for the given format name. Unknown or
// empty names fall back to JSON.
func GetCodec(name string) Codec {
	switch name {
	case CodecNameMsgpack:
		return MsgpackCodec{}
	default:
		return JSONCodec{}
	}
}
