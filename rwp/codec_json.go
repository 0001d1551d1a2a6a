package rwp

import "encoding/json"

// JSONCodec encodes frames as JSON. This is the default wire format
// and the only format accepted for the initial auth frame.
type JSONCodec struct{}

func (JSONCodec) Encode(f *Frame) ([]byte, error) {
	return json.Marshal(f)
}

func (JSONCodec) Decode(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func (JSONCodec) Name() string { return CodecNameJSON }
