// Package region defines the deployment regions a display can serve and the
// per-region display preferences.
package region

import (
	"fmt"
	"sort"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/nativenav/weather-display-system/internal/units"
)

type Kind string

const (
	Alpine Kind = "alpine"
	Marine Kind = "marine"
)

// Profile bundles the display preferences of one deployment region.
type Profile struct {
	Name           string
	Kind           Kind
	DefaultStation string
	WindUnit       units.Unit
	// TimeZone is the IANA zone every time on the panel is shown in.
	TimeZone string
}

var profiles = map[string]Profile{
	"chamonix": {Name: "chamonix", Kind: Alpine, DefaultStation: "prarion", WindUnit: units.KilometersPerHour, TimeZone: "Europe/Paris"},
	"solent":   {Name: "solent", Kind: Marine, DefaultStation: "brambles", WindUnit: units.Knots, TimeZone: "Europe/London"},
}

// Lookup returns the profile for name. When station is non-empty it replaces
// the region's default station.
func Lookup(name, station string) (Profile, error) {
	p, ok := profiles[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Profile{}, fmt.Errorf("unknown region %q (allowed: %s)", name, strings.Join(Names(), ", "))
	}
	if s := strings.TrimSpace(station); s != "" {
		p.DefaultStation = s
	}
	return p, nil
}

func Names() []string {
	names := make([]string, 0, len(profiles))
	for n := range profiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Path is the backend path segment serving this region's stations.
func (p Profile) Path() string {
	return "/api/v1/weather/" + p.Name
}

// Location resolves TimeZone, falling back to UTC when it is unset or
// unknown.
func (p Profile) Location() *time.Location {
	if p.TimeZone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(p.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}
