// voiceterm is a two-party voice terminal: it links a local audio device
// pair to a remote station over a UDP packet link, with PTT and VOX
// transmit control.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
)

func main() {
	root := &cobra.Command{
		Use:   "voiceterm",
		Short: "Two-party voice terminal over a UDP packet link",
		Long: `voiceterm links local audio to a remote station over a UDP
packet link. Audio is carried as PCM16 at 8 kHz; transmission is
controlled by push-to-talk or by the voice-operated (VOX) detector.

Raw PCM16 little-endian files or pipes stand in for sound hardware:
point --audio-in at a capture stream and --audio-out at a playback
destination.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				logrus.SetLevel(logrus.DebugLevel)
			} else {
				logrus.SetLevel(logrus.WarnLevel)
			}
		},
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "voiceterm.yaml", "configuration file")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(CallCmd())
	root.AddCommand(ListenCmd())
	root.AddCommand(KeygenCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
