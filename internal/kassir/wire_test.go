// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package kassir

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIErrorField(t *testing.T) {
	cases := []struct{ raw, want string }{
		{``, ""},
		{`null`, ""},
		{`false`, ""},
		{`""`, ""},
		{`"quota exceeded"`, "quota exceeded"},
		{`{"message":"no city"}`, "no city"},
		{`{"code":7}`, `{"code":7}`},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, apiError(json.RawMessage(tc.raw)), tc.raw)
	}
}

func TestFlexDecoding(t *testing.T) {
	var v struct {
		A flexString `json:"a"`
		B flexString `json:"b"`
		C flexFloat  `json:"c"`
		D flexFloat  `json:"d"`
		E namedValue `json:"e"`
		F namedValue `json:"f"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":42,"b":"x","c":"12.5","d":7,"e":{"venueName":"Hall"},"f":"plain"}`), &v))
	assert.Equal(t, flexString("42"), v.A)
	assert.Equal(t, flexString("x"), v.B)
	assert.InDelta(t, 12.5, float64(v.C), 0)
	assert.InDelta(t, 7, float64(v.D), 0)
	assert.Equal(t, namedValue("Hall"), v.E)
	assert.Equal(t, namedValue("plain"), v.F)

	var bad struct {
		C flexFloat `json:"c"`
	}
	assert.Error(t, json.Unmarshal([]byte(`{"c":"free"}`), &bad))
}

func TestParseStart(t *testing.T) {
	assert.Equal(t, time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC), parseStart("2025-05-01"))
	assert.Equal(t, time.Date(2025, 5, 1, 19, 30, 0, 0, time.UTC), parseStart("2025-05-01T19:30:00Z"))
	assert.True(t, parseStart("soon").IsZero())
	assert.True(t, parseStart("").IsZero())
}
