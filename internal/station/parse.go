package station

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/nativenav/weather-display-system/internal/units"
)

// Backend payload (wind always in m/s):
//
//	{"region":"chamonix","stations":[{"id":"prarion","wind_speed_ms":4.2,
//	  "wind_direction_deg":270,"temperature_c":-3.5,"timestamp":1700000000}]}
type payload struct {
	Region   string            `json:"region"`
	Stations []json.RawMessage `json:"stations"`
}

type entry struct {
	ID            *string  `json:"id"`
	WindSpeed     *float64 `json:"wind_speed_ms"`
	WindDirection *float64 `json:"wind_direction_deg"`
	Temperature   *float64 `json:"temperature_c"`
	Timestamp     *int64   `json:"timestamp"`
}

// Parsed is the outcome of a successful parse. Stations holds at most
// MaxStations readings in payload order, including Missing placeholders.
type Parsed struct {
	Stations    []Reading
	Unparseable int
	Missing     int
	Dropped     int
}

// Failures counts stations that did not yield a usable reading.
func (p Parsed) Failures() int { return p.Unparseable + p.Missing }

// Parse decodes a backend payload. It fails with ErrMalformedPayload when
// the document itself is invalid and with ErrMissingFields when not a single
// station carries usable data.
func Parse(data []byte, temps units.TempRange) (Parsed, error) {
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Parsed{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if len(p.Stations) == 0 {
		return Parsed{}, fmt.Errorf("%w: no stations in payload", ErrMissingFields)
	}

	var out Parsed
	raw := p.Stations
	if len(raw) > MaxStations {
		out.Dropped = len(raw) - MaxStations
		raw = raw[:MaxStations]
	}

	valid := 0
	for _, msg := range raw {
		r, ok := parseEntry(msg, temps)
		switch {
		case !ok:
			out.Unparseable++
			continue
		case r.Missing:
			out.Missing++
		default:
			valid++
		}
		out.Stations = append(out.Stations, r)
	}

	if valid == 0 {
		return Parsed{}, fmt.Errorf("%w: %d unparseable, %d empty", ErrMissingFields, out.Unparseable, out.Missing)
	}
	return out, nil
}

func parseEntry(msg json.RawMessage, temps units.TempRange) (Reading, bool) {
	if bytes.Equal(bytes.TrimSpace(msg), []byte("null")) {
		return Reading{Missing: true}, true
	}

	var e entry
	if err := json.Unmarshal(msg, &e); err != nil {
		return Reading{}, false
	}

	r := Reading{}
	if e.ID != nil {
		r.StationID = *e.ID
	}
	if e.Timestamp != nil && *e.Timestamp > 0 {
		r.Timestamp = *e.Timestamp
	}
	if e.WindSpeed != nil && *e.WindSpeed >= 0 {
		r.WindSpeed = e.WindSpeed
	}
	if e.WindDirection != nil && *e.WindDirection >= 0 && *e.WindDirection <= 360 {
		r.WindDirection = e.WindDirection
	}
	if e.Temperature != nil && temps.Valid(*e.Temperature) {
		r.Temperature = e.Temperature
	}

	sentValues := e.WindSpeed != nil || e.WindDirection != nil || e.Temperature != nil
	if !sentValues && e.Timestamp == nil {
		r.Missing = true
		return r, true
	}
	if r.StationID == "" {
		// Data that cannot be attributed to a station is unusable.
		return Reading{}, false
	}
	return r, true
}
