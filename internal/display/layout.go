package display

import (
	"fmt"
	"strings"
	"time"

	"github.com/nativenav/weather-display-system/internal/region"
	"github.com/nativenav/weather-display-system/internal/station"
	"github.com/nativenav/weather-display-system/internal/units"
)

const placeholder = "--"

// Block is one station's column on the panel. All values are preformatted
// for the panel's ASCII font.
type Block struct {
	StationID   string
	Wind        string
	Direction   string
	Temperature string
	Observed    string
	Missing     bool
	Highlight   bool
}

// Status feeds the bottom status line.
type Status struct {
	LastUpdate  time.Time
	Connected   bool
	HeapWarning bool
}

// ErrorScreen replaces the station blocks once the device has escalated.
type ErrorScreen struct {
	Title  string
	Detail string
}

type Layout struct {
	Region     string
	Blocks     []Block
	StatusLine string
	Error      *ErrorScreen
}

// Compose lays out up to station.MaxStations readings. Absent stations and
// readings with every field null become visible placeholders so the panel
// never shows a stale value in their place.
func Compose(readings []station.Reading, profile region.Profile, st Status) Layout {
	blocks := make([]Block, 0, station.MaxStations)
	for _, r := range readings {
		if len(blocks) == station.MaxStations {
			break
		}
		blocks = append(blocks, composeBlock(r, profile))
	}
	for len(blocks) < station.MaxStations {
		blocks = append(blocks, missingBlock(""))
	}

	return Layout{
		Region:     strings.ToUpper(profile.Name),
		Blocks:     blocks,
		StatusLine: statusLine(st, profile.Location()),
	}
}

// ErrorLayout is the explicit error state shown instead of stale weather.
func ErrorLayout(profile region.Profile, reason string, failingFor time.Duration, st Status) Layout {
	return Layout{
		Region: strings.ToUpper(profile.Name),
		Error: &ErrorScreen{
			Title:  "NO WEATHER DATA",
			Detail: fmt.Sprintf("%s for %s", reason, failingFor.Round(time.Minute)),
		},
		StatusLine: statusLine(st, profile.Location()),
	}
}

func composeBlock(r station.Reading, profile region.Profile) Block {
	if r.Missing {
		b := missingBlock(r.StationID)
		b.Highlight = r.StationID != "" && r.StationID == profile.DefaultStation
		return b
	}

	b := Block{
		StationID:   r.StationID,
		Wind:        placeholder,
		Direction:   placeholder,
		Temperature: placeholder,
		Observed:    placeholder,
		Highlight:   r.StationID == profile.DefaultStation,
	}
	if v := units.Convert(r.WindSpeed, profile.WindUnit); v != nil {
		b.Wind = fmt.Sprintf("%.1f %s", *v, profile.WindUnit.Label())
	}
	if r.WindDirection != nil {
		b.Direction = fmt.Sprintf("%s %.0f", units.Compass(*r.WindDirection), *r.WindDirection)
	}
	if r.Temperature != nil {
		b.Temperature = fmt.Sprintf("%.1fC", *r.Temperature)
	}
	if t := r.ObservedAt(); !t.IsZero() {
		b.Observed = t.In(profile.Location()).Format("15:04")
	}
	return b
}

func missingBlock(id string) Block {
	if id == "" {
		id = "station"
	}
	return Block{
		StationID:   id,
		Wind:        placeholder,
		Direction:   placeholder,
		Temperature: placeholder,
		Observed:    "no data",
		Missing:     true,
	}
}

// statusLine formats LastUpdate in loc, the same zone as the station times.
func statusLine(st Status, loc *time.Location) string {
	parts := make([]string, 0, 3)
	if st.LastUpdate.IsZero() {
		parts = append(parts, "UPD --:--")
	} else {
		parts = append(parts, "UPD "+st.LastUpdate.In(loc).Format("15:04"))
	}
	if st.Connected {
		parts = append(parts, "WIFI OK")
	} else {
		parts = append(parts, "WIFI --")
	}
	if st.HeapWarning {
		parts = append(parts, "LOW MEM")
	}
	return strings.Join(parts, " | ")
}
