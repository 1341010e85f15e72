// SPDX-License-Identifier: MIT
package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/spf13/cobra"

	"soukou/internal/audio"
	"soukou/internal/decode"
	"soukou/internal/pitch"
	"soukou/internal/tui"
)

func newAnalyzeCommand(opts *options) *cobra.Command {
	var (
		tone      float64
		duration  float64
		reference bool
		algorithm string
		asJSON    bool
	)

	analyzeCmd := &cobra.Command{
		Use:   "analyze [FILE]",
		Short: "Estimate the average pitch of a WAV file or a synthetic tone",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("algorithm") {
				opts.cfg.Pitch.Algorithm = algorithm
			}
			pc, err := opts.cfg.PitchConfig()
			if err != nil {
				return err
			}

			var result pitch.Analysis
			switch {
			case reference:
				result, err = pitch.AnalyzeReferenceTone()
			case len(args) == 1:
				samples, format, readErr := decode.ReadWAV(args[0])
				if readErr != nil {
					return readErr
				}
				pc.SampleRate = format.SampleRateHz
				result, err = analyzeSamples(pc, samples)
			case tone > 0:
				var a *pitch.Analyzer
				if a, err = pitch.NewAnalyzer(pc); err == nil {
					result, err = a.AnalyzeSyntheticTone(tone, duration)
				}
			default:
				return errors.New("a FILE, --tone or --reference is required")
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}
			fmt.Fprintf(out, "Pitch: %v\n", result)
			return nil
		},
	}

	f := analyzeCmd.Flags()
	f.Float64Var(&tone, "tone", 0, "Analyse a synthetic sine tone of this frequency (Hz)")
	f.Float64Var(&duration, "duration", 1, "Duration of the synthetic tone in seconds")
	f.BoolVar(&reference, "reference", false, "Analyse the 440 Hz reference tone")
	f.StringVarP(&algorithm, "algorithm", "a", "", "Pitch algorithm (yin, mpm)")
	f.BoolVar(&asJSON, "json", false, "Print the result as JSON")
	return analyzeCmd
}

func analyzeSamples(pc pitch.Config, samples []float64) (pitch.Analysis, error) {
	a, err := pitch.NewAnalyzer(pc)
	if err != nil {
		return pitch.Analysis{}, err
	}
	return a.AnalyzePitch(samples)
}

func newInfoCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "info FILE",
		Short: "Show the format of a WAV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := decode.Probe(args[0])
			if err != nil {
				return err
			}

			ac := opts.cfg.Analysis
			frames := int(math.Round(format.Duration.Seconds() * format.FrameRateHz))
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "File:        %s\n", args[0])
			fmt.Fprintf(out, "Encoding:    %s\n", format.Encoding)
			fmt.Fprintf(out, "Sample rate: %.0f Hz\n", format.SampleRateHz)
			fmt.Fprintf(out, "Sample size: %d bit\n", format.SampleSizeBits)
			fmt.Fprintf(out, "Channels:    %d\n", format.Channels)
			fmt.Fprintf(out, "Frame size:  %d bytes\n", format.FrameSizeBytes)
			fmt.Fprintf(out, "Duration:    %v\n", format.Duration)
			fmt.Fprintf(out, "Windows:     %d (length %d, overlap %d)\n",
				decode.WindowCount(frames, ac.WindowLength, ac.Overlap), ac.WindowLength, ac.Overlap)
			return nil
		},
	}
}

func newDevicesCommand(_ *options) *cobra.Command {
	var pick bool

	devicesCmd := &cobra.Command{
		Use:   "devices",
		Short: "List available audio output devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := audio.Initialize(); err != nil {
				return err
			}
			defer audio.Terminate()

			if pick {
				id, err := tui.PickDevice()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d\n", id)
				return nil
			}
			return audio.ListDevices(cmd.OutOrStdout())
		},
	}
	devicesCmd.Flags().BoolVar(&pick, "pick", false, "Choose a device interactively and print its ID")
	return devicesCmd
}
