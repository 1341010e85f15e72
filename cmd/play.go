// SPDX-License-Identifier: MIT
package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"soukou/internal/analysis"
	"soukou/internal/audio"
	"soukou/internal/config"
	"soukou/internal/decode"
	applog "soukou/internal/log"
	"soukou/internal/metrics"
	"soukou/internal/playback"
	"soukou/internal/record"
	"soukou/internal/transport"
	"soukou/internal/transport/udp"
	"soukou/internal/tui"
)

// playFlags override the configuration when set on the command line.
type playFlags struct {
	play       bool
	device     int
	pickDevice bool
	record     bool
	recordDir  string
	websocket  bool
	wsAddr     string
	udp        bool
	udpAddr    string
	bars       int
	realtime   bool
	meter      bool
	logFrames  bool
}

func newPlayCommand(opts *options) *cobra.Command {
	flags := &playFlags{}

	playCmd := &cobra.Command{
		Use:   "play FILE",
		Short: "Analyse a WAV file as it plays and stream the frames",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags.apply(cmd, opts.cfg)
			if err := opts.cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			return runPlay(cmd, opts.cfg, flags, args[0])
		},
	}

	f := playCmd.Flags()
	f.BoolVarP(&flags.play, "play", "p", false, "Play the audio on an output device")
	f.IntVarP(&flags.device, "device", "d", audio.DefaultDevice, "Output device ID. Use 'devices' to list them")
	f.BoolVar(&flags.pickDevice, "pick-device", false, "Choose the output device interactively")
	f.BoolVarP(&flags.record, "record", "r", false, "Record the decoded mono stream to a WAV file")
	f.StringVarP(&flags.recordDir, "output", "o", "", "Directory for recordings")
	f.BoolVar(&flags.websocket, "ws", false, "Serve frames over WebSocket and metrics over HTTP")
	f.StringVar(&flags.wsAddr, "ws-addr", "", "WebSocket listen address")
	f.BoolVar(&flags.udp, "udp", false, "Send frames as UDP packets")
	f.StringVar(&flags.udpAddr, "udp-addr", "", "UDP target address")
	f.IntVar(&flags.bars, "bars", 0, "Spectrum bars per frame message")
	f.BoolVar(&flags.realtime, "realtime", true, "Pace analysis at playback speed when not playing audio")
	f.BoolVarP(&flags.meter, "tui", "t", false, "Show a live meter in the terminal")
	f.BoolVar(&flags.logFrames, "log-frames", false, "Log every frame at debug level")
	return playCmd
}

// apply copies the flags the user set onto cfg.
func (pf *playFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("play") {
		cfg.Playback.Enabled = pf.play
	}
	if changed("device") {
		cfg.Playback.OutputDevice = pf.device
	}
	if changed("record") {
		cfg.Recording.Enabled = pf.record
	}
	if changed("output") {
		cfg.Recording.OutputDir = pf.recordDir
	}
	if changed("ws") {
		cfg.Transport.WebSocketEnabled = pf.websocket
	}
	if changed("ws-addr") {
		cfg.Transport.WebSocketAddress = pf.wsAddr
	}
	if changed("udp") {
		cfg.Transport.UDPEnabled = pf.udp
	}
	if changed("udp-addr") {
		cfg.Transport.UDPTargetAddress = pf.udpAddr
	}
	if changed("bars") {
		cfg.Transport.Bars = pf.bars
	}
	if changed("realtime") {
		cfg.Analysis.Realtime = pf.realtime
	}
}

// frameSink fans frames out to the transports and remembers the latest one
// for the UDP publisher.
type frameSink struct {
	out      transport.Fanout
	cell     analysis.FrameCell
	bars     int
	finished chan struct{}
	once     sync.Once
}

func newFrameSink(bars int) *frameSink {
	return &frameSink{bars: bars, finished: make(chan struct{})}
}

func (s *frameSink) listener() playback.Listener {
	return playback.Listener{
		OnFrame: func(f analysis.Frame) {
			s.cell.Store(f)
			if err := s.out.Send(transport.NewFrameMessage(f, s.bars)); err != nil {
				applog.Debugf("Play: Frame not sent: %v", err)
			}
		},
		OnFinished: func() {
			if err := s.out.Send(transport.EventMessage{Type: "event", Event: "finished"}); err != nil {
				applog.Debugf("Play: Finished event not sent: %v", err)
			}
			s.once.Do(func() { close(s.finished) })
		},
	}
}

// joinListeners calls every listener in order.
func joinListeners(listeners ...playback.Listener) playback.Listener {
	return playback.Listener{
		OnFrame: func(f analysis.Frame) {
			for _, l := range listeners {
				if l.OnFrame != nil {
					l.OnFrame(f)
				}
			}
		},
		OnFinished: func() {
			for _, l := range listeners {
				if l.OnFinished != nil {
					l.OnFinished()
				}
			}
		},
	}
}

func runPlay(cmd *cobra.Command, cfg *config.Config, flags *playFlags, path string) error {
	ctx := cmd.Context()

	format, err := decode.Probe(path)
	if err != nil {
		return err
	}

	pc, err := cfg.PlaybackConfig()
	if err != nil {
		return err
	}

	m := metrics.New()
	sink := newFrameSink(cfg.Transport.Bars)
	defer func() {
		if err := sink.out.Close(); err != nil {
			applog.Warnf("Play: Failed to close transports: %v", err)
		}
	}()

	if flags.logFrames {
		sink.out = append(sink.out, transport.NewLoggingTransport())
	}
	if cfg.Transport.WebSocketEnabled {
		ws := transport.NewWebSocketTransport(cfg.Transport.WebSocketAddress, m)
		ws.ListenAndServe()
		sink.out = append(sink.out, ws)
	}
	if cfg.Transport.UDPEnabled {
		sender, err := udp.NewUDPSender(cfg.Transport.UDPTargetAddress)
		if err != nil {
			return err
		}
		defer sender.Close()
		publisher, err := udp.NewUDPPublisher(cfg.Transport.UDPSendInterval, sender, &sink.cell, cfg.Transport.Bars)
		if err != nil {
			return err
		}
		publisher.Start()
		defer publisher.Close()
	}

	controllerOpts := []playback.Option{playback.WithMetrics(m)}

	if cfg.Playback.Enabled || flags.pickDevice {
		if err := audio.Initialize(); err != nil {
			return err
		}
		defer audio.Terminate()

		device := cfg.Playback.OutputDevice
		if flags.pickDevice {
			if device, err = tui.PickDevice(); err != nil {
				return err
			}
		}
		// The output stream blocks at playback speed.
		pc.Realtime = false
		controllerOpts = append(controllerOpts, playback.WithOutput(func(info playback.RunInfo) (analysis.Stage, error) {
			return audio.NewPlayer(device, info.Format.SampleRateHz, info.WindowLength, info.Overlap)
		}))
	}

	if cfg.Recording.Enabled {
		rc := cfg.Recording
		if err := os.MkdirAll(rc.OutputDir, 0o755); err != nil {
			return fmt.Errorf("failed to create recording directory: %w", err)
		}
		base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		controllerOpts = append(controllerOpts, playback.WithOutput(func(info playback.RunInfo) (analysis.Stage, error) {
			out := filepath.Join(rc.OutputDir, fmt.Sprintf("%s-%s.wav", base, info.ID[:8]))
			applog.Infof("Play: Recording to %s", out)
			return record.NewRecorder(out, info.Format.SampleRateHz, rc.BitDepth, info.WindowLength, info.Overlap)
		}))
	}

	controllerOpts = append(controllerOpts, playback.WithConfig(pc))
	open := playback.FileOpener(path)

	var c *playback.Controller
	start := func(listener playback.Listener) error {
		var err error
		if c, err = playback.New(open, listener, controllerOpts...); err != nil {
			return err
		}
		return c.Start()
	}

	applog.Infof("Play: %s (%v)", path, format)

	if flags.meter {
		binHz := format.SampleRateHz / float64(pc.WindowLength)
		meter := tui.NewMeter(filepath.Base(path), cfg.Transport.Bars, binHz)
		err := tui.RunMeter(ctx, meter, func(p *tea.Program) error {
			return start(joinListeners(sink.listener(), tui.Listener(p)))
		})
		if c == nil {
			return err
		}
		if stopErr := c.Stop(); err == nil {
			err = stopErr
		}
		if err != nil {
			return err
		}
	} else {
		if err := start(sink.listener()); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			applog.Infof("Play: Interrupted, stopping")
		case <-sink.finished:
		}
		if err := c.Stop(); err != nil {
			return err
		}
	}

	if res, ok := c.LastResult(); ok {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s after %d windows, %d onsets\n", filepath.Base(path), res.Outcome, res.Dispatched, res.Onsets)
	}
	return nil
}
