package station

import (
	"errors"
	"strings"
	"testing"

	"github.com/nativenav/weather-display-system/internal/units"
)

var temps = units.TempRange{Min: -60, Max: 60}

func TestParse_FullPayload(t *testing.T) {
	body := `{"region":"chamonix","stations":[
		{"id":"prarion","wind_speed_ms":4.2,"wind_direction_deg":270,"temperature_c":-3.5,"timestamp":1700000000},
		{"id":"brevent","wind_speed_ms":0,"wind_direction_deg":0,"temperature_c":1,"timestamp":1700000060},
		{"id":"aiguille","wind_speed_ms":12.5,"wind_direction_deg":null,"temperature_c":-12,"timestamp":1700000120}
	]}`

	got, err := Parse([]byte(body), temps)
	if err != nil {
		t.Fatalf("Parse() error = %v, want nil", err)
	}
	if len(got.Stations) != 3 {
		t.Fatalf("len(Stations) = %d, want 3", len(got.Stations))
	}
	if got.Failures() != 0 {
		t.Errorf("Failures() = %d, want 0", got.Failures())
	}
	first := got.Stations[0]
	if first.StationID != "prarion" || *first.WindSpeed != 4.2 || *first.WindDirection != 270 || *first.Temperature != -3.5 {
		t.Errorf("Stations[0] = %+v, want prarion 4.2/270/-3.5", first)
	}
	if got.Stations[2].WindDirection != nil {
		t.Errorf("Stations[2].WindDirection = %v, want nil", *got.Stations[2].WindDirection)
	}
	if got.Stations[1].WindSpeed == nil || *got.Stations[1].WindSpeed != 0 {
		t.Errorf("Stations[1].WindSpeed should be present and zero")
	}
}

func TestParse_TemperatureOutOfRangeIsAbsent(t *testing.T) {
	body := `{"stations":[{"id":"prarion","wind_speed_ms":3,"temperature_c":99.9,"timestamp":1700000000}]}`

	got, err := Parse([]byte(body), temps)
	if err != nil {
		t.Fatalf("Parse() error = %v, want nil", err)
	}
	if got.Stations[0].Temperature != nil {
		t.Errorf("Temperature = %v, want nil (not clamped)", *got.Stations[0].Temperature)
	}
	if got.Stations[0].WindSpeed == nil {
		t.Errorf("WindSpeed = nil, want 3")
	}
}

func TestParse_AllNullStationIsMissing(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "all fields null",
			body: `{"stations":[{"id":"prarion","wind_speed_ms":5,"timestamp":1700000000},
				{"id":null,"wind_speed_ms":null,"wind_direction_deg":null,"temperature_c":null,"timestamp":null}]}`,
		},
		{
			name: "null entry",
			body: `{"stations":[{"id":"prarion","wind_speed_ms":5,"timestamp":1700000000},null]}`,
		},
		{
			name: "known station without data",
			body: `{"stations":[{"id":"prarion","wind_speed_ms":5,"timestamp":1700000000},{"id":"brambles"}]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse([]byte(tt.body), temps)
			if err != nil {
				t.Fatalf("Parse() error = %v, want nil", err)
			}
			if len(got.Stations) != 2 {
				t.Fatalf("len(Stations) = %d, want 2", len(got.Stations))
			}
			if !got.Stations[1].Missing {
				t.Errorf("Stations[1].Missing = false, want true")
			}
			if got.Missing != 1 || got.Unparseable != 0 {
				t.Errorf("Missing=%d Unparseable=%d, want 1 and 0", got.Missing, got.Unparseable)
			}
		})
	}
}

func TestParse_UnparseableStationsCounted(t *testing.T) {
	body := `{"stations":[{"id":"prarion","wind_speed_ms":"fast"},{"wind_speed_ms":4},{"id":"brevent","wind_speed_ms":2,"timestamp":1}]}`

	got, err := Parse([]byte(body), temps)
	if err != nil {
		t.Fatalf("Parse() error = %v, want nil", err)
	}
	if got.Unparseable != 2 {
		t.Errorf("Unparseable = %d, want 2", got.Unparseable)
	}
	if len(got.Stations) != 1 || got.Stations[0].StationID != "brevent" {
		t.Errorf("Stations = %+v, want only brevent", got.Stations)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want error
	}{
		{name: "not json", body: `<html>`, want: ErrMalformedPayload},
		{name: "truncated", body: `{"stations":[{"id":"a"`, want: ErrMalformedPayload},
		{name: "no stations key", body: `{"region":"solent"}`, want: ErrMissingFields},
		{name: "empty stations", body: `{"stations":[]}`, want: ErrMissingFields},
		{name: "all unparseable", body: `{"stations":[{"wind_speed_ms":1},{"id":3}]}`, want: ErrMissingFields},
		{name: "all missing", body: `{"stations":[null,{"id":null}]}`, want: ErrMissingFields},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.body), temps)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Parse() error = %v, want %v", err, tt.want)
			}
			if !IsParseError(err) {
				t.Errorf("IsParseError(%v) = false, want true", err)
			}
		})
	}
}

func TestParse_DropsStationsBeyondMax(t *testing.T) {
	var sb strings.Builder
	sb.WriteString(`{"stations":[`)
	for i := 0; i < 5; i++ {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(`{"id":"s","wind_speed_ms":1,"timestamp":1}`)
	}
	sb.WriteString(`]}`)

	got, err := Parse([]byte(sb.String()), temps)
	if err != nil {
		t.Fatalf("Parse() error = %v, want nil", err)
	}
	if len(got.Stations) != MaxStations {
		t.Errorf("len(Stations) = %d, want %d", len(got.Stations), MaxStations)
	}
	if got.Dropped != 2 {
		t.Errorf("Dropped = %d, want 2", got.Dropped)
	}
}
