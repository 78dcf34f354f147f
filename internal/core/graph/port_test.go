package graph

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLimit(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want Limit
	}{
		{"nil", nil, Unbounded},
		{"int", 3, 3},
		{"zero", 0, Unbounded},
		{"negative", -4, Unbounded},
		{"float truncates", 2.9, 2},
		{"small float", 0.5, Unbounded},
		{"nan", math.NaN(), Unbounded},
		{"inf", math.Inf(1), Unbounded},
		{"numeric string", "5", 5},
		{"padded string", " 7 ", 7},
		{"string with suffix", "3px", 3},
		{"string without digits", "many", Unbounded},
		{"empty string", "", Unbounded},
		{"json number", json.Number("4"), 4},
		{"limit", Limit(6), 6},
		{"too large", uint64(math.MaxUint64), Unbounded},
		{"bool", true, Unbounded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLimit(tt.in))
		})
	}
}

func TestLimit_Allows(t *testing.T) {
	assert.True(t, Unbounded.Allows(1_000_000))
	assert.True(t, Limit(2).Allows(1))
	assert.False(t, Limit(2).Allows(2))
	assert.False(t, Limit(1).Allows(1))
}

func TestLimit_JSON(t *testing.T) {
	type holder struct {
		Limit Limit `json:"limit"`
	}

	data, err := json.Marshal(holder{Limit: 3})
	require.NoError(t, err)
	assert.JSONEq(t, `{"limit":3}`, string(data))

	data, err = json.Marshal(holder{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"limit":null}`, string(data))

	for raw, want := range map[string]Limit{
		`{"limit":2}`:     2,
		`{"limit":"8"}`:   8,
		`{"limit":null}`:  Unbounded,
		`{"limit":0}`:     Unbounded,
		`{"limit":"0"}`:   Unbounded,
		`{"limit":-1}`:    Unbounded,
		`{"limit":1.75}`:  1,
		`{"limit":"abc"}`: Unbounded,
		`{}`:              Unbounded,
	} {
		var h holder
		require.NoError(t, json.Unmarshal([]byte(raw), &h), raw)
		assert.Equal(t, want, h.Limit, raw)
	}
}

func TestLimit_ZeroNeverBlocks(t *testing.T) {
	s := NewStore()
	hub, err := s.AddNode(NodeConfig{ID: "hub", Output: &PortConfig{Limit: ParseLimit(0)}})
	require.NoError(t, err)
	require.True(t, hub.Output.Limit.IsUnbounded())

	for _, id := range []string{"x", "y", "z"} {
		linkable(t, s, id, Unbounded)
		_, err := s.AddConnection("hub", "hub-output", id, PortRef(id, DefaultInputID), "")
		require.NoError(t, err)
	}
	assert.Equal(t, 3, s.ConnectionCount())
}

func TestPortRef(t *testing.T) {
	assert.Equal(t, "a-out", PortRef("a", "out"))

	p := &Port{ID: "out"}
	assert.True(t, p.matches("a", "a-out"))
	assert.False(t, p.matches("a", "a-in"))
	assert.False(t, p.matches("b", "a-out"))

	var none *Port
	assert.False(t, none.matches("a", "a-out"))
}
