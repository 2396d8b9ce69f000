// Package show reads what the audio analyzer knows about a song: its
// length, tempo, key and named sections.
package show

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

type Metadata struct {
	Filename string                `json:"filename"`
	Length   float64               `json:"length,omitempty"`
	BPM      float64               `json:"bpm,omitempty"`
	Key      string                `json:"key,omitempty"`
	Parts    map[string][2]float64 `json:"parts,omitempty"`
	Hints    map[string]any        `json:"hints,omitempty"`
	Drums    map[string]any        `json:"drums,omitempty"`
}

type Section struct {
	Name  string  `json:"name"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Sections returns the song's parts ordered by start time.
func (m *Metadata) Sections() []Section {
	if m == nil {
		return nil
	}
	var out []Section
	for name, span := range m.Parts {
		out = append(out, Section{Name: name, Start: span[0], End: span[1]})
	}
	slices.SortFunc(out, func(a, b Section) int {
		if a.Start != b.Start {
			if a.Start < b.Start {
				return -1
			}
			return 1
		}
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

// SectionAt names the part playing at t. When parts overlap the one that
// started last wins.
func (m *Metadata) SectionAt(t float64) string {
	name := ""
	for _, s := range m.Sections() {
		if t >= s.Start && t < s.End {
			name = s.Name
		}
	}
	return name
}

// SongName strips the audio extension from a song filename.
func SongName(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func MetadataPath(dataDir, song string) string {
	return filepath.Join(dataDir, "metadata", SongName(song)+".metadata.json")
}

func LoadMetadata(path string) (*Metadata, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("show: %w", err)
	}
	var m Metadata
	if err := json.Unmarshal(buf, &m); err != nil {
		return nil, fmt.Errorf("show: parse %s: %w", path, err)
	}
	return &m, nil
}

func (m *Metadata) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("show: %w", err)
	}
	buf, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("show: encode: %w", err)
	}
	if err := os.WriteFile(path, append(buf, '\n'), 0o644); err != nil {
		return fmt.Errorf("show: %w", err)
	}
	return nil
}
