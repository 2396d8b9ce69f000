package main

import (
	"context"
	"fmt"
	"image/color"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"lightshow/lib/fixture"
	"lightshow/lib/streamdeck"
)

var palette = []color.RGBA{
	{220, 50, 50, 255},
	{50, 180, 50, 255},
	{50, 100, 220, 255},
	{220, 160, 30, 255},
	{180, 50, 180, 255},
	{50, 180, 180, 255},
}

func dim(c color.RGBA) color.RGBA {
	return color.RGBA{c.R / 4, c.G / 4, c.B / 4, 255}
}

// decktest puts one fixture of the rig on each key. Pressing a key toggles
// it bright, to check the deck before binding previews to it.
func main() {
	fixturesPath := pflag.String("fixtures", "fixtures.json", "fixture file")
	brightness := pflag.Int("brightness", 80, "key brightness percent")
	pflag.Parse()

	roster, err := fixture.LoadRoster(*fixturesPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	dev, err := streamdeck.Open()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer dev.Close()
	fmt.Printf("Connected to: %s (serial: %s)\n", dev.Product(), dev.SerialNumber())
	dev.SetBrightness(*brightness)

	fixtures := roster.Fixtures()
	if len(fixtures) > dev.Keys() {
		fmt.Printf("%d fixtures, showing the first %d\n", len(fixtures), dev.Keys())
		fixtures = fixtures[:dev.Keys()]
	}
	active := make([]bool, len(fixtures))
	draw := func(key int) {
		f := fixtures[key]
		bg := dim(palette[key%len(palette)])
		if active[key] {
			bg = palette[key%len(palette)]
		}
		img := streamdeck.TextImage(dev.KeySize(), bg, color.White, f.Name, string(f.Type), fmt.Sprintf("%d ch", len(f.Channels)))
		if err := dev.SetKeyImage(key, img); err != nil {
			fmt.Fprintf(os.Stderr, "Key %d: %v\n", key, err)
		}
	}
	for key := range fixtures {
		draw(key)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	keys := make(chan streamdeck.KeyEvent, 64)
	go func() {
		if err := dev.ReadKeys(ctx, keys); err != nil && ctx.Err() == nil {
			fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
		}
	}()

	for {
		select {
		case ev := <-keys:
			if !ev.Pressed || ev.Key >= len(fixtures) {
				continue
			}
			active[ev.Key] = !active[ev.Key]
			draw(ev.Key)
			fmt.Printf("%s toggled %v\n", fixtures[ev.Key], active[ev.Key])
		case <-ctx.Done():
			fmt.Println()
			return
		}
	}
}
