package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/voiceterm/call"
	"github.com/opd-ai/voiceterm/config"
	"github.com/opd-ai/voiceterm/device"
	"github.com/opd-ai/voiceterm/remote"
)

// sessionOptions carries the per-command knobs on top of the config file.
type sessionOptions struct {
	audioIn  string
	audioOut string
	ptt      bool
}

// runSession wires config -> devices -> transport -> link -> pipeline and
// runs until the call ends or the process receives an interrupt.
//
// dial selects the role: true sends the connect request, false waits for
// one and accepts it.
func runSession(cfg *config.Config, opts sessionOptions, dial bool) error {
	transport, err := buildTransport(cfg, dial)
	if err != nil {
		return err
	}
	defer transport.Close()

	link := remote.NewLink(transport, remote.ConnectRequest{
		Callsign: cfg.Identity.Callsign,
		Name:     cfg.Identity.Name,
	})

	capture, playback, closeStreams, err := buildDevices(cfg, opts)
	if err != nil {
		return err
	}
	defer closeStreams()

	pipe, err := call.NewPipeline(call.Params{
		Capture:        capture,
		Playback:       playback,
		Endpoint:       link,
		FullDuplex:     cfg.Audio.FullDuplex,
		VoxEnabled:     cfg.Vox.Enabled,
		VoxThresholdDB: cfg.Vox.ThresholdDB,
		VoxDelay:       time.Duration(cfg.Vox.DelayMs) * time.Millisecond,
	})
	if err != nil {
		return fmt.Errorf("failed to build audio pipeline: %w", err)
	}
	defer pipe.Teardown()

	done := make(chan struct{})
	pipe.OnTransmitActive(func(active bool) {
		if active {
			fmt.Println("* transmitting")
		} else {
			fmt.Println("* receiving")
		}
	})
	pipe.OnReceiveActive(func(active bool) {
		if active {
			fmt.Println("* remote audio started")
		}
	})
	pipe.OnChatMessage(func(text string) { fmt.Printf("<chat> %s\n", text) })
	pipe.OnInfoMessage(func(text string) { fmt.Printf("<info> %s\n", text) })
	pipe.OnError(func(err error) {
		fmt.Fprintf(os.Stderr, "device error: %v\n", err)
	})
	link.OnStateChange(func(state remote.State) {
		fmt.Printf("* connection: %s\n", state)
		if state == remote.StateByeReceived || state == remote.StateDisconnected {
			select {
			case <-done:
			default:
				close(done)
			}
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		if err := capture.Run(ctx); err != nil && ctx.Err() == nil {
			logrus.WithFields(logrus.Fields{
				"function": "runSession",
				"error":    err.Error(),
			}).Error("Capture loop ended")
		}
	}()

	if dial {
		fmt.Printf("calling %s ...\n", cfg.Network.PeerAddr)
		if err := link.Connect(); err != nil {
			return err
		}
	} else {
		fmt.Printf("listening on %s ...\n", cfg.Network.ListenAddr)
		link.OnConnectRequest(func(req remote.ConnectRequest) {
			fmt.Printf("* incoming call from %s (%s)\n", req.Callsign, req.Name)
			if err := link.Accept(); err != nil {
				fmt.Fprintf(os.Stderr, "accept failed: %v\n", err)
			}
		})
	}

	if opts.ptt {
		pipe.SetPTT(true)
	}

	interrupted := make(chan os.Signal, 1)
	signal.Notify(interrupted, os.Interrupt, syscall.SIGTERM)
	select {
	case <-interrupted:
		fmt.Println("\nhanging up")
	case <-done:
	}

	pipe.SetPTT(false)
	return link.Disconnect()
}

// buildTransport creates the UDP transport, wrapped with Noise XX
// encryption when the config asks for it.
func buildTransport(cfg *config.Config, dial bool) (remote.Transport, error) {
	peerAddr := cfg.Network.PeerAddr
	if dial && peerAddr == "" {
		return nil, fmt.Errorf("network.peer_addr is required to place a call")
	}
	if peerAddr == "" {
		// The listener learns the peer on the first inbound datagram in
		// a future revision; for now it must be configured.
		return nil, fmt.Errorf("network.peer_addr is required")
	}

	udp, err := remote.NewUDPTransport(cfg.Network.ListenAddr, peerAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to create UDP transport: %w", err)
	}
	if !cfg.Network.Encrypted {
		return udp, nil
	}

	keys, err := remote.GenerateKeyPair()
	if err != nil {
		udp.Close()
		return nil, err
	}
	nt, err := remote.NewNoiseTransport(udp, keys, dial)
	if err != nil {
		udp.Close()
		return nil, err
	}
	if dial {
		if err := nt.Handshake(); err != nil {
			nt.Close()
			return nil, err
		}
	}
	select {
	case <-nt.HandshakeDone():
	case <-time.After(10 * time.Second):
		nt.Close()
		return nil, fmt.Errorf("noise handshake timed out")
	}
	return nt, nil
}

// buildDevices opens the PCM streams named by the command-line options
// and wraps them as file-backed devices. Empty names mean silence in and
// discard out.
func buildDevices(cfg *config.Config, opts sessionOptions) (*device.File, *device.File, func(), error) {
	var closers []io.Closer

	var in io.Reader
	if opts.audioIn == "-" {
		in = os.Stdin
	} else if opts.audioIn != "" {
		f, err := os.Open(opts.audioIn)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to open audio input: %w", err)
		}
		closers = append(closers, f)
		in = f
	}

	var out io.Writer
	if opts.audioOut == "-" {
		out = os.Stdout
	} else if opts.audioOut != "" {
		f, err := os.Create(opts.audioOut)
		if err != nil {
			for _, c := range closers {
				c.Close()
			}
			return nil, nil, nil, fmt.Errorf("failed to open audio output: %w", err)
		}
		closers = append(closers, f)
		out = f
	}

	rate := cfg.Audio.SampleRate
	blockSize := cfg.Audio.BlockSize
	capture := device.NewFile("capture", rate, blockSize, in, nil)
	playback := device.NewFile("playback", rate, blockSize, nil, out)

	closeAll := func() {
		for _, c := range closers {
			c.Close()
		}
	}
	return capture, playback, closeAll, nil
}
