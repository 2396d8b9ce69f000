package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"lightshow/lib/cuesheet"
	"lightshow/lib/fixture"
	"lightshow/lib/plot"
	"lightshow/lib/show"
)

// canvasplot compiles a song's cue sheet offline and draws the result, so
// a show can be checked without a rig.
func main() {
	dataDir := pflag.String("data-dir", ".", "directory holding songs/, metadata/ and cues/")
	fixturesPath := pflag.String("fixtures", "fixtures.json", "fixture file")
	song := pflag.String("song", "", "song file name")
	fps := pflag.Int("fps", 60, "canvas frame rate")
	out := pflag.StringP("out", "o", "canvas.png", "PNG to write")
	channels := pflag.IntSlice("channels", nil, "channels to draw (default: every channel used)")
	width := pflag.Int("width", 1600, "maximum image width")
	timeline := pflag.Bool("timeline", false, "print the timeline as JSON")
	mock := pflag.Int("mock", 0, "ignore the files and plot a generated sheet with this many cues")
	pflag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	var (
		sheet  *cuesheet.Sheet
		roster *fixture.Roster
		length float64
		err    error
	)
	if *mock > 0 {
		length = 180
		sheet, roster = cuesheet.GenerateMockSheet(16, *mock, length)
	} else {
		if *song == "" {
			fmt.Fprintf(os.Stderr, "Error: --song is required\n")
			os.Exit(1)
		}
		sheet, roster, length, err = load(*dataDir, *fixturesPath, *song)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	for _, problem := range sheet.Lint(roster) {
		fmt.Fprintf(os.Stderr, "warning: %s\n", problem)
	}

	c, err := cuesheet.Render(sheet, roster, length, *fps, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *timeline {
		tl, err := cuesheet.BuildTimeline(sheet, roster, length, *fps)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		writeJSON(os.Stdout, tl)
	}

	labels, tints := plot.Describe(roster)
	f, err := os.Create(*out)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	err = plot.WritePNG(f, c, plot.Options{Channels: *channels, Width: *width, Labels: labels, Tints: tints})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "%s: %d frames at %d fps, %d cues\n", *out, c.TotalFrames(), c.FPS(), len(sheet.Entries))
}

func load(dataDir, fixturesPath, song string) (*cuesheet.Sheet, *fixture.Roster, float64, error) {
	roster, err := fixture.LoadRoster(fixturesPath)
	if err != nil {
		return nil, nil, 0, err
	}
	sheet, err := cuesheet.Load(cuesheet.Path(dataDir, show.SongName(song)))
	if err != nil {
		return nil, nil, 0, err
	}
	meta, err := show.LoadMetadata(show.MetadataPath(dataDir, song))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, nil, 0, err
	}
	length, source := show.ResolveLength(dataDir, song, meta, sheet.End())
	fmt.Fprintf(os.Stderr, "song length %.2fs from %s\n", length, source)
	return sheet, roster, length, nil
}

func writeJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
