package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"gitlab.com/gomidi/midi/v2"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"lightshow/lib/artnet"
	"lightshow/lib/config"
	"lightshow/lib/dmxout"
	"lightshow/lib/enttec"
	"lightshow/lib/httpapi"
	"lightshow/lib/osc"
	"lightshow/lib/playback"
	"lightshow/lib/show"
	"lightshow/lib/streamdeck"
	"lightshow/lib/xtouch"
)

func main() {
	flags := pflag.NewFlagSet("lightshow", pflag.ExitOnError)
	configPath := flags.String("config", "", "YAML config file")
	runAndExit := flags.String("run-and-exit", "", "run this command once the daemon is up, then exit")
	config.AddFlags(flags)
	flags.Parse(os.Args[1:])

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
	if err := cfg.ApplyFlags(flags); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	level, _ := cfg.Level()
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log, strings.Fields(*runAndExit)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger, runAndExit []string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	mgr := playback.New(playback.Options{DataDir: cfg.DataDir, FPS: cfg.FPS, Log: log})
	if err := mgr.LoadFixtures(cfg.Fixtures); err != nil {
		return err
	}
	if cfg.POIs != "" {
		if err := mgr.LoadPOIs(cfg.POIs); err != nil {
			return err
		}
	}
	if cfg.Song != "" {
		waitForAnalysis(ctx, cfg, log)
		if err := mgr.LoadSong(ctx, cfg.Song); err != nil {
			return err
		}
	}

	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()
	if err := startOutputs(ctx, &wg, cfg, mgr, log); err != nil {
		return err
	}

	oscSrv, err := osc.Listen(cfg.OSC.Addr, mgr, log)
	if err != nil {
		return err
	}
	defer oscSrv.Close()
	log.Info("osc listening", "addr", oscSrv.Addr())

	ln, err := net.Listen("tcp", cfg.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("http: %w", err)
	}
	httpSrv := &http.Server{Handler: httpapi.New(mgr, log, staticFS(cfg.DataDir))}
	go httpSrv.Serve(ln)
	defer func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		httpSrv.Shutdown(shutdownCtx)
	}()
	log.Info("http listening", "addr", ln.Addr().String())

	refresh := []func() error{}
	if cfg.XTouch.Port != "" {
		defer midi.CloseDriver()
		if r, err := startXTouch(ctx, cfg, mgr, log); err != nil {
			log.Warn("x-touch unavailable", "error", err)
		} else {
			refresh = append(refresh, r)
		}
	}
	if cfg.StreamDeck.Enabled {
		if r, err := startStreamDeck(ctx, &wg, cfg, mgr, log); err != nil {
			log.Warn("stream deck unavailable", "error", err)
		} else {
			refresh = append(refresh, r)
		}
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		fanOut(ctx, mgr, oscSrv, refresh, log)
	}()

	if len(runAndExit) > 0 {
		cmd := exec.CommandContext(ctx, runAndExit[0], runAndExit[1:]...)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		cmd.Env = append(os.Environ(),
			"LIGHTSHOW_HTTP=http://"+ln.Addr().String(),
			"LIGHTSHOW_OSC="+oscSrv.Addr())
		err := cmd.Run()
		cancel()
		return err
	}

	<-ctx.Done()
	log.Info("shutting down")
	return nil
}

// waitForAnalysis gives a song's analyzer up to the configured timeout to
// write its metadata. The song loads either way.
func waitForAnalysis(ctx context.Context, cfg *config.Config, log *slog.Logger) {
	path := show.MetadataPath(cfg.DataDir, cfg.Song)
	if _, err := os.Stat(path); err == nil || cfg.Analysis.Timeout <= 0 {
		return
	}
	log.Info("waiting for song analysis", "song", cfg.Song, "timeout", cfg.Analysis.Timeout)
	waitCtx, done := context.WithTimeout(ctx, cfg.Analysis.Timeout)
	defer done()
	if _, err := show.WaitForMetadata(waitCtx, path, cfg.Analysis.Interval); err != nil {
		if errors.Is(err, show.ErrAnalysisTimeout) {
			log.Warn("no analysis metadata, loading without it", "error", err)
		}
	}
}

func staticFS(dataDir string) fs.FS {
	dir := filepath.Join(dataDir, "web")
	if st, err := os.Stat(dir); err != nil || !st.IsDir() {
		return nil
	}
	return os.DirFS(dir)
}

func startOutputs(ctx context.Context, wg *sync.WaitGroup, cfg *config.Config, mgr *playback.Manager, log *slog.Logger) error {
	start := func(name string, sink dmxout.Sink, rate int, closer func() error) {
		pump := &dmxout.Pump{
			Source: mgr.OutputUniverse,
			Sinks:  []dmxout.Sink{sink},
			Rate:   rate,
			Log:    log.With("output", name),
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			pump.Run(ctx)
			closer()
		}()
	}

	if cfg.ArtNet.Target != "" {
		sender, err := artnet.NewSender(cfg.ArtNet.Target, cfg.ArtNet.Universe)
		if err != nil {
			return err
		}
		sender.Sync = cfg.ArtNet.Sync
		log.Info("art-net output", "target", sender.Target(), "universe", cfg.ArtNet.Universe)
		start("artnet", sender, cfg.ArtNet.Rate, sender.Close)
	}
	if cfg.Enttec.Port != "" {
		widget, err := enttec.Open(cfg.Enttec.Port)
		if err != nil {
			return err
		}
		log.Info("enttec output", "port", cfg.Enttec.Port)
		start("enttec", widget, cfg.Enttec.Rate, widget.Close)
	}
	return nil
}

func startXTouch(ctx context.Context, cfg *config.Config, mgr *playback.Manager, log *slog.Logger) (func() error, error) {
	in, err := xtouch.FindInPort(cfg.XTouch.Port)
	if err != nil {
		return nil, err
	}
	outPort, err := xtouch.FindOutPort(cfg.XTouch.Port)
	if err != nil {
		return nil, err
	}
	out, err := xtouch.OpenOutput(outPort, xtouch.DeviceIDXTouch)
	if err != nil {
		return nil, err
	}

	b := cfg.XTouch.Buttons
	surface := xtouch.NewSurface(mgr, out, xtouch.Options{
		FaderBank: cfg.XTouch.FaderBank,
		JogStep:   cfg.XTouch.JogStep,
		Buttons: xtouch.Buttons{
			Play:      b.Play,
			Stop:      b.Stop,
			Record:    b.Record,
			BankLeft:  b.BankLeft,
			BankRight: b.BankRight,
		},
	}, log.With("surface", "xtouch"))

	stop, err := midi.ListenTo(in, surface.Listen(ctx))
	if err != nil {
		return nil, fmt.Errorf("xtouch: listen: %w", err)
	}
	context.AfterFunc(ctx, stop)
	log.Info("x-touch connected", "port", in.String())
	if err := surface.Refresh(); err != nil {
		log.Warn("x-touch refresh failed", "error", err)
	}
	return surface.Refresh, nil
}

func startStreamDeck(ctx context.Context, wg *sync.WaitGroup, cfg *config.Config, mgr *playback.Manager, log *slog.Logger) (func() error, error) {
	dev, err := streamdeck.Open()
	if err != nil {
		return nil, err
	}
	if err := dev.SetBrightness(cfg.StreamDeck.Brightness); err != nil {
		dev.Close()
		return nil, err
	}

	var bindings []streamdeck.Binding
	for _, k := range cfg.StreamDeck.Keys {
		bindings = append(bindings, streamdeck.Binding{
			Label:    k.Label,
			Fixture:  k.Fixture,
			Effect:   k.Effect,
			Duration: k.Duration,
			Data:     k.Data,
		})
	}
	deckLog := log.With("surface", "streamdeck")
	panel := streamdeck.NewPanel(dev, mgr, bindings, deckLog)

	keys := make(chan streamdeck.KeyEvent, 64)
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := dev.ReadKeys(ctx, keys); err != nil && ctx.Err() == nil {
			deckLog.Error("stream deck read failed", "error", err)
		}
	}()
	go func() {
		defer wg.Done()
		panel.Run(ctx, keys)
		dev.Close()
	}()

	log.Info("stream deck connected", "product", dev.Product(), "serial", dev.SerialNumber())
	if err := panel.Refresh(); err != nil {
		deckLog.Warn("stream deck refresh failed", "error", err)
	}
	return panel.Refresh, nil
}

// fanOut forwards manager updates to OSC clients and redraws the control
// surfaces when the output may have changed.
func fanOut(ctx context.Context, mgr *playback.Manager, oscSrv *osc.Server, refresh []func() error, log *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case u := <-mgr.Updates():
			oscSrv.SendUpdate(u.Kind)
			if u.Kind != playback.UpdateStatus && u.Kind != playback.UpdateUniverse {
				continue
			}
			for _, r := range refresh {
				if err := r(); err != nil {
					log.Debug("surface refresh failed", "error", err)
				}
			}
		}
	}
}
