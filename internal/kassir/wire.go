// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package kassir

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/ManuGH/actionprobe/internal/domain/action"
)

type listRequest struct {
	APIKey string `json:"api_key"`
	CityID string `json:"cid"`
}

type detailRequest struct {
	APIKey   string `json:"api_key"`
	CityID   string `json:"cid"`
	ActionID string `json:"action_id"`
	VenueID  string `json:"venue_id"`
}

type listResponse struct {
	Decode *struct {
		Actions []wireAction `json:"actions"`
	} `json:"decode"`
	Error json.RawMessage `json:"error"`
}

type detailResponse struct {
	Decode *struct {
		Action    json.RawMessage `json:"action"`
		Available bool            `json:"available"`
	} `json:"decode"`
	Error json.RawMessage `json:"error"`
}

// apiError extracts the message of a populated "error" field. null, false,
// 0 and "" all mean "no error".
func apiError(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	switch string(raw) {
	case "", "null", "false", "0", `""`:
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	return string(raw)
}

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// flexFloat accepts a JSON number or a numeric string.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	var s flexString
	if err := s.UnmarshalJSON(b); err != nil {
		return err
	}
	str := strings.TrimSpace(string(s))
	if str == "" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(str, 64)
	if err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

// namedValue flattens {"venueName": ...}, {"genreName": ...} or a bare string.
type namedValue string

func (n *namedValue) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '{' {
		var obj struct {
			VenueName string `json:"venueName"`
			GenreName string `json:"genreName"`
			Name      string `json:"name"`
		}
		if err := json.Unmarshal(b, &obj); err != nil {
			return err
		}
		switch {
		case obj.VenueName != "":
			*n = namedValue(obj.VenueName)
		case obj.GenreName != "":
			*n = namedValue(obj.GenreName)
		default:
			*n = namedValue(obj.Name)
		}
		return nil
	}
	var s flexString
	if err := s.UnmarshalJSON(b); err != nil {
		return err
	}
	*n = namedValue(s)
	return nil
}

type wireAction struct {
	ActionID   flexString            `json:"actionId"`
	ActionName string                `json:"actionName"`
	Venues     map[string]namedValue `json:"venues"`
	CityID     flexString            `json:"cityId"`
	From       string                `json:"from"`
	Time       flexString            `json:"time"`
	Age        flexString            `json:"age"`
	Genres     map[string]namedValue `json:"genres"`
	MinPrice   flexFloat             `json:"minPrice"`
	MaxPrice   flexFloat             `json:"maxPrice"`
}

var startLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05", "2006-01-02"}

func parseStart(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range startLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func flatten(in map[string]namedValue) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = string(v)
	}
	return out
}

// toAction converts the wire shape. Actions without a city echo fall back to
// the requested city.
func (w wireAction) toAction(cityID string) action.Action {
	city := string(w.CityID)
	if city == "" {
		city = cityID
	}
	return action.Action{
		ID:        string(w.ActionID),
		Name:      w.ActionName,
		Venues:    flatten(w.Venues),
		CityID:    city,
		StartTime: parseStart(w.From),
		Time:      string(w.Time),
		Age:       string(w.Age),
		Genres:    flatten(w.Genres),
		MinPrice:  float64(w.MinPrice),
		MaxPrice:  float64(w.MaxPrice),
	}
}
