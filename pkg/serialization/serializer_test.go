package serialization

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowly/flowly/internal/core/graph"
)

func sampleDocument(t *testing.T) *graph.Document {
	t.Helper()
	s := graph.NewStore()
	a, err := s.AddNode(graph.NodeConfig{
		ID: "a", X: 1.5, Y: 2.5,
		Data:        map[string]any{"name": "A", "weight": 0.25},
		Output:      &graph.PortConfig{ID: "out", Limit: 2},
		HTMLContent: "<b>A</b>",
		Theme:       map[string]string{"color": "blue"},
	})
	require.NoError(t, err)
	b, err := s.AddNode(graph.NodeConfig{ID: "b", X: 100, Input: &graph.PortConfig{ID: "in"}})
	require.NoError(t, err)
	_, err = s.AddConnection(a.ID, "a-out", b.ID, "b-in", "<i>edge</i>")
	require.NoError(t, err)
	require.NoError(t, s.SetNodeReadOnly(b.ID, true))
	return s.ToDocument()
}

func TestSerializer_DocumentRoundTrip(t *testing.T) {
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)

	tests := []struct {
		name   string
		config Config
	}{
		{"json", Config{Codec: NewJSONCodec()}},
		{"indented json", Config{Codec: &JSONCodec{Indent: true}}},
		{"msgpack zstd", Config{Codec: NewMsgPackCodec(), Compression: CompressionZstd}},
		{"yaml gzip", Config{Codec: NewYAMLCodec(), Compression: CompressionGzip}},
		{"msgpack encrypted", Config{Codec: NewMsgPackCodec(), Compression: CompressionGzip, EncryptKey: key}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := sampleDocument(t)
			s := NewSerializer(tt.config)

			data, err := s.Serialize(doc)
			require.NoError(t, err)
			assert.NotEmpty(t, data)

			var decoded graph.Document
			require.NoError(t, s.Deserialize(data, &decoded))
			assert.Equal(t, *doc, decoded)

			// a decoded document loads into a store unchanged
			store := graph.NewStore()
			require.NoError(t, store.LoadDocument(&decoded))
			assert.Equal(t, doc, store.ToDocument())
		})
	}
}

func TestJSONCodec_UnboundedLimitIsNull(t *testing.T) {
	data, err := NewJSONCodec().Encode(graph.Port{ID: "in", Name: "In"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"in","name":"In","limit":null}`, string(data))
}

func TestSerializer_CompressionShrinksRepetitiveData(t *testing.T) {
	payload := map[string]string{}
	for i := 0; i < 200; i++ {
		payload[string(rune('a'+i%26))+string(rune('a'+i/26))] = "the same value over and over again"
	}
	plain, err := NewSerializer(Config{Codec: NewJSONCodec()}).Serialize(payload)
	require.NoError(t, err)

	for _, c := range []CompressionType{CompressionGzip, CompressionZstd} {
		packed, err := NewSerializer(Config{Codec: NewJSONCodec(), Compression: c}).Serialize(payload)
		require.NoError(t, err)
		assert.Less(t, len(packed), len(plain), c)
	}
}

func TestSerializer_Encryption(t *testing.T) {
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)

	s := NewSerializer(Config{Codec: NewJSONCodec(), EncryptKey: key})
	first, err := s.Serialize("secret")
	require.NoError(t, err)
	second, err := s.Serialize("secret")
	require.NoError(t, err)
	assert.NotEqual(t, first, second, "every message gets a fresh nonce")
	assert.NotContains(t, string(first), "secret")

	otherKey := make([]byte, 32)
	_, err = rand.Read(otherKey)
	require.NoError(t, err)
	var out string
	err = NewSerializer(Config{Codec: NewJSONCodec(), EncryptKey: otherKey}).Deserialize(first, &out)
	assert.Error(t, err)

	err = s.Deserialize([]byte("short"), &out)
	assert.ErrorIs(t, err, ErrCiphertextShort)

	_, err = NewSerializer(Config{Codec: NewJSONCodec(), EncryptKey: []byte("bad")}).Serialize("x")
	assert.ErrorIs(t, err, ErrInvalidKeyLength)
}

func TestSerializer_ErrorHandling(t *testing.T) {
	t.Run("invalid data for codec", func(t *testing.T) {
		var out graph.Document
		err := NewSerializer(Config{Codec: NewJSONCodec()}).Deserialize([]byte("{not json"), &out)
		assert.ErrorContains(t, err, "codec decoding failed")
	})

	t.Run("invalid compressed data", func(t *testing.T) {
		var out graph.Document
		err := NewSerializer(Config{Codec: NewJSONCodec(), Compression: CompressionGzip}).Deserialize([]byte("plain"), &out)
		assert.ErrorContains(t, err, "decompression failed")
	})

	t.Run("unencodable value", func(t *testing.T) {
		_, err := NewSerializer(Config{Codec: NewJSONCodec()}).Serialize(make(chan int))
		assert.ErrorContains(t, err, "codec encoding failed")
	})
}

func TestDefaultSerializer(t *testing.T) {
	s := DefaultSerializer()
	assert.Equal(t, CodecMsgPack, s.Codec().Name())
	assert.Equal(t, CompressionZstd, s.Compression())

	doc := sampleDocument(t)
	data, err := s.Serialize(doc)
	require.NoError(t, err)
	var decoded graph.Document
	require.NoError(t, s.Deserialize(data, &decoded))
	assert.Equal(t, *doc, decoded)
}

func TestForPath(t *testing.T) {
	tests := []struct {
		path        string
		codec       string
		compression CompressionType
		wantErr     bool
	}{
		{"flow.json", CodecJSON, CompressionNone, false},
		{"dir/Flow.JSON", CodecJSON, CompressionNone, false},
		{"flow.yaml", CodecYAML, CompressionNone, false},
		{"flow.yml.gz", CodecYAML, CompressionGzip, false},
		{"flow.msgpack.zst", CodecMsgPack, CompressionZstd, false},
		{"flow.mp", CodecMsgPack, CompressionNone, false},
		{"flow", "", "", true},
		{"flow.txt", "", "", true},
		{"flow.gz", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			s, err := ForPath(tt.path)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.codec, s.Codec().Name())
			assert.Equal(t, tt.compression, s.Compression())
		})
	}
}

func TestCodecByName(t *testing.T) {
	for _, name := range []string{"json", "JSON", "msgpack", "mp", "yaml", "yml"} {
		c, err := CodecByName(name)
		require.NoError(t, err, name)
		assert.NotNil(t, c)
	}
	_, err := CodecByName("xml")
	assert.ErrorIs(t, err, ErrUnknownCodec)
}
