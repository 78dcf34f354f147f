// Package serialization encodes flow documents and checkpoints. A Serializer
// chains a Codec with optional compression and AES-GCM encryption.
package serialization

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"
)

// Codec converts values to and from bytes.
type Codec interface {
	Encode(v interface{}) ([]byte, error)
	Decode(data []byte, v interface{}) error
	Name() string
}

// Codec names accepted by CodecByName.
const (
	CodecJSON    = "json"
	CodecMsgPack = "msgpack"
	CodecYAML    = "yaml"
)

// JSONCodec implements JSON serialization.
type JSONCodec struct {
	// Indent pretty-prints output with two spaces.
	Indent bool
}

func (c *JSONCodec) Encode(v interface{}) ([]byte, error) {
	if c.Indent {
		return json.MarshalIndent(v, "", "  ")
	}
	return json.Marshal(v)
}

func (c *JSONCodec) Decode(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func (c *JSONCodec) Name() string { return CodecJSON }

// MsgPackCodec implements MessagePack serialization. Struct fields use
// their msgpack tags and maps decode as map[string]interface{}.
type MsgPackCodec struct{}

func (c *MsgPackCodec) Encode(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.UseCompactInts(true)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *MsgPackCodec) Decode(data []byte, v interface{}) error {
	return msgpack.Unmarshal(data, v)
}

func (c *MsgPackCodec) Name() string { return CodecMsgPack }

// YAMLCodec implements YAML serialization.
type YAMLCodec struct{}

func (c *YAMLCodec) Encode(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *YAMLCodec) Decode(data []byte, v interface{}) error {
	return yaml.Unmarshal(data, v)
}

func (c *YAMLCodec) Name() string { return CodecYAML }

// NewJSONCodec creates a compact JSON codec.
func NewJSONCodec() Codec { return &JSONCodec{} }

// NewMsgPackCodec creates a MessagePack codec.
func NewMsgPackCodec() Codec { return &MsgPackCodec{} }

// NewYAMLCodec creates a YAML codec.
func NewYAMLCodec() Codec { return &YAMLCodec{} }

// CodecByName returns the codec registered under name. "yml" and "mp" are
// accepted as aliases.
func CodecByName(name string) (Codec, error) {
	switch strings.ToLower(name) {
	case CodecJSON:
		return &JSONCodec{Indent: true}, nil
	case CodecMsgPack, "mp":
		return NewMsgPackCodec(), nil
	case CodecYAML, "yml":
		return NewYAMLCodec(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}
