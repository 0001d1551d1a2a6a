package rwp

import "github.com/vmihailenco/msgpack/v5"

// MsgpackCodec encodes frames as MessagePack. Clients negotiate it via
// the auth frame's format field; the envelope is msgpack while
// method payloads inside Data remain JSON.
type MsgpackCodec struct{}

func (MsgpackCodec) Encode(f *Frame) ([]byte, error) {
	return msgpack.Marshal(f)
}

func (MsgpackCodec) Decode(data []byte) (*Frame, error) {
	var f Frame
	if err := msgpack.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func (MsgpackCodec) Name() string { return CodecNameMsgpack }
