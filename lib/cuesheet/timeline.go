package cuesheet

import (
	"fmt"
	"slices"
	"strings"

	"lightshow/lib/fixture"
)

type TimelineBlock struct {
	Entry  int    `json:"entry"`
	Name   string `json:"name,omitempty"`
	Effect string `json:"effect"`
	Start  int    `json:"start"`
	End    int    `json:"end"`
	Lane   int    `json:"lane"`
}

func (b *TimelineBlock) String() string {
	return fmt.Sprintf("%s[%d..%d]:l%d", b.Effect, b.Start, b.End, b.Lane)
}

type TimelineTrack struct {
	FixtureID string           `json:"fixture_id"`
	Name      string           `json:"name"`
	Unknown   bool             `json:"unknown,omitempty"`
	Lanes     int              `json:"lanes"`
	Blocks    []*TimelineBlock `json:"blocks"`
}

type Timeline struct {
	FPS         int              `json:"fps"`
	TotalFrames int              `json:"total_frames"`
	Tracks      []*TimelineTrack `json:"tracks"`
}

// BuildTimeline lays the sheet out as one track per fixture. Entries that
// overlap on a fixture are pushed onto extra lanes of its track.
func BuildTimeline(sheet *Sheet, roster *fixture.Roster, songLength float64, fps int) (Timeline, error) {
	if fps <= 0 {
		return Timeline{}, fmt.Errorf("cuesheet: timeline fps %d", fps)
	}
	tl := Timeline{
		FPS:         fps,
		TotalFrames: TotalFrames(max(songLength, sheet.End()), fps),
	}

	trackIdx := map[string]*TimelineTrack{}
	for _, f := range roster.Fixtures() {
		tt := &TimelineTrack{FixtureID: f.ID, Name: f.Name, Blocks: []*TimelineBlock{}}
		tl.Tracks = append(tl.Tracks, tt)
		trackIdx[f.ID] = tt
	}

	var unknown []*TimelineTrack
	for i, e := range sheet.Entries {
		tt := trackIdx[e.FixtureID]
		if tt == nil {
			tt = &TimelineTrack{FixtureID: e.FixtureID, Name: e.FixtureID, Unknown: true, Blocks: []*TimelineBlock{}}
			trackIdx[e.FixtureID] = tt
			unknown = append(unknown, tt)
		}
		start, end := e.Frames(fps)
		tt.Blocks = append(tt.Blocks, &TimelineBlock{
			Entry:  i,
			Name:   e.Name,
			Effect: e.Effect,
			Start:  start,
			End:    end,
		})
	}
	slices.SortFunc(unknown, func(a, b *TimelineTrack) int { return strings.Compare(a.FixtureID, b.FixtureID) })
	tl.Tracks = append(tl.Tracks, unknown...)

	for _, tt := range tl.Tracks {
		tt.assignLanes()
	}
	return tl, nil
}

// assignLanes puts each block on the first lane whose previous block ended
// before it starts.
func (tt *TimelineTrack) assignLanes() {
	var laneEnd []int
	for _, b := range tt.Blocks {
		lane := slices.IndexFunc(laneEnd, func(end int) bool { return end < b.Start })
		if lane < 0 {
			lane = len(laneEnd)
			laneEnd = append(laneEnd, 0)
		}
		laneEnd[lane] = b.End
		b.Lane = lane
	}
	tt.Lanes = max(1, len(laneEnd))
}
