package main

import (
	"github.com/spf13/cobra"

	"github.com/opd-ai/voiceterm/config"
)

// ListenCmd creates the listen command.
func ListenCmd() *cobra.Command {
	var opts sessionOptions

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Wait for an incoming call and accept it",
		Long: `Bind network.listen_addr, wait for a connect request from the
configured peer and accept it, then run the audio pipeline until either
side hangs up.

Examples:
  voiceterm listen --audio-out -
  voiceterm -c station.yaml listen --audio-in mic.pcm --audio-out spkr.pcm`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return runSession(cfg, opts, false)
		},
	}

	cmd.Flags().StringVar(&opts.audioIn, "audio-in", "", "capture source: raw PCM16 LE file, or - for stdin")
	cmd.Flags().StringVar(&opts.audioOut, "audio-out", "", "playback destination: raw PCM16 LE file, or - for stdout")
	cmd.Flags().BoolVar(&opts.ptt, "ptt", false, "hold push-to-talk for the whole call")

	return cmd
}
