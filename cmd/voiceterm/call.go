package main

import (
	"github.com/spf13/cobra"

	"github.com/opd-ai/voiceterm/config"
)

// CallCmd creates the call command.
func CallCmd() *cobra.Command {
	var opts sessionOptions

	cmd := &cobra.Command{
		Use:   "call",
		Short: "Place a call to the configured peer",
		Long: `Place a call to the station at network.peer_addr and run the
audio pipeline until either side hangs up.

Examples:
  voiceterm call --audio-in - --audio-out -
  voiceterm call --audio-in mic.pcm --ptt
  voiceterm -c station.yaml call --audio-out received.pcm`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return runSession(cfg, opts, true)
		},
	}

	cmd.Flags().StringVar(&opts.audioIn, "audio-in", "", "capture source: raw PCM16 LE file, or - for stdin")
	cmd.Flags().StringVar(&opts.audioOut, "audio-out", "", "playback destination: raw PCM16 LE file, or - for stdout")
	cmd.Flags().BoolVar(&opts.ptt, "ptt", false, "hold push-to-talk for the whole call")

	return cmd
}
