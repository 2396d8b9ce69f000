package fixture

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"

	"github.com/tidwall/jsonc"
)

var (
	ErrFixtureNotFound = errors.New("fixture not found")
	ErrPOINotFound     = errors.New("poi not found")
)

// Roster is the set of fixtures patched into the universe, in file order.
type Roster struct {
	path     string
	fixtures []*Fixture
	byID     map[string]*Fixture
}

// ParseRoster reads a fixture list. Comments and trailing commas are allowed.
func ParseRoster(data []byte) (*Roster, error) {
	var fixtures []*Fixture
	if err := json.Unmarshal(jsonc.ToJSON(data), &fixtures); err != nil {
		return nil, fmt.Errorf("fixture: parse: %w", err)
	}
	return NewRoster(fixtures)
}

func NewRoster(fixtures []*Fixture) (*Roster, error) {
	r := &Roster{byID: map[string]*Fixture{}}
	for _, f := range fixtures {
		if f.ID == "" {
			return nil, fmt.Errorf("fixture: %q has no id", f.Name)
		}
		if r.byID[f.ID] != nil {
			return nil, fmt.Errorf("fixture: duplicate id %q", f.ID)
		}
		for name, ch := range f.Channels {
			if ch < 1 || ch > MaxChannel {
				return nil, fmt.Errorf("fixture: %s channel %q out of range: %d", f, name, ch)
			}
		}
		for name, v := range f.Arm {
			if v < 0 || v > 255 {
				return nil, fmt.Errorf("fixture: %s arm %q out of range: %d", f, name, v)
			}
		}
		if f.Channels == nil {
			f.Channels = map[string]int{}
		}
		r.byID[f.ID] = f
		r.fixtures = append(r.fixtures, f)
	}
	return r, nil
}

func LoadRoster(path string) (*Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("fixture: read %s: %w", path, err)
	}
	r, err := ParseRoster(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	r.path = path
	return r, nil
}

func (r *Roster) Path() string {
	return r.path
}

func (r *Roster) Fixtures() []*Fixture {
	if r == nil {
		return nil
	}
	return r.fixtures
}

func (r *Roster) Get(id string) (*Fixture, bool) {
	if r == nil {
		return nil, false
	}
	f, ok := r.byID[id]
	return f, ok
}

// ApplyArm writes every fixture's arm defaults, in roster order.
func (r *Roster) ApplyArm(universe []byte) {
	for _, f := range r.Fixtures() {
		f.ApplyArm(universe)
	}
}

// WithPOITarget returns a copy of the roster in which the fixture points at
// target for a point of interest. r and its fixtures are left untouched.
func (r *Roster) WithPOITarget(fixtureID, poiID string, target PanTilt) (*Roster, error) {
	i := slices.IndexFunc(r.Fixtures(), func(f *Fixture) bool { return f.ID == fixtureID })
	if i < 0 {
		return nil, fmt.Errorf("fixture: %q: %w", fixtureID, ErrFixtureNotFound)
	}
	f := r.fixtures[i].Clone()
	if f.POITargets == nil {
		f.POITargets = map[string]PanTilt{}
	}
	f.POITargets[poiID] = PanTilt{
		Pan:  clampInt(target.Pan, 0, maxU16),
		Tilt: clampInt(target.Tilt, 0, maxU16),
	}

	next := &Roster{path: r.path, fixtures: slices.Clone(r.fixtures), byID: maps.Clone(r.byID)}
	next.fixtures[i] = f
	next.byID[f.ID] = f
	return next, nil
}

// Save writes the roster back to the file it was loaded from.
func (r *Roster) Save() error {
	if r.path == "" {
		return fmt.Errorf("fixture: roster was not loaded from a file")
	}
	return r.SaveAs(r.path)
}

func (r *Roster) SaveAs(path string) error {
	fixtures := r.fixtures
	if fixtures == nil {
		fixtures = []*Fixture{}
	}
	data, err := json.MarshalIndent(fixtures, "", "  ")
	if err != nil {
		return fmt.Errorf("fixture: encode: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("fixture: write %s: %w", path, err)
	}
	return nil
}

// POI is a named spot on stage that fixtures can be aimed at.
type POI struct {
	ID       string             `json:"id"`
	Name     string             `json:"name"`
	Location map[string]float64 `json:"location,omitempty"`
}

type POIList []POI

func LoadPOIs(path string) (POIList, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("fixture: read %s: %w", path, err)
	}
	var pois POIList
	if err := json.Unmarshal(jsonc.ToJSON(data), &pois); err != nil {
		return nil, fmt.Errorf("fixture: parse %s: %w", path, err)
	}
	seen := map[string]bool{}
	for _, p := range pois {
		if p.ID == "" {
			return nil, fmt.Errorf("fixture: %s: poi %q has no id", path, p.Name)
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("fixture: %s: duplicate poi id %q", path, p.ID)
		}
		seen[p.ID] = true
	}
	return pois, nil
}

func (l POIList) Find(id string) (POI, bool) {
	i := slices.IndexFunc(l, func(p POI) bool { return p.ID == id })
	if i < 0 {
		return POI{}, false
	}
	return l[i], true
}
