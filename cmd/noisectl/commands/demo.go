package commands

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/opd-ai/noisemobile"
	"github.com/opd-ai/noisemobile/crypto"
	"github.com/opd-ai/noisemobile/noise"
	"github.com/spf13/cobra"
)

type demoConfig struct {
	pattern  string
	messages int
	window   int
	identity string
}

func demoCmd() *cobra.Command {
	cfg := demoConfig{}
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a loopback handshake and exchange sequenced and batched messages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(cmd.OutOrStdout(), cfg)
		},
	}
	cmd.Flags().StringVar(&cfg.pattern, "pattern", "XX", "handshake pattern (XX, IK, NN)")
	cmd.Flags().IntVarP(&cfg.messages, "messages", "n", 3, "number of messages in each phase")
	cmd.Flags().IntVar(&cfg.window, "window", 64, "replay window size")
	cmd.Flags().StringVar(&cfg.identity, "identity", "", "use a stored identity as the responder key")
	return cmd
}

// demoPair builds the two channels for pattern. IK needs the responder's
// public key up front, so the responder always gets a known static key.
func demoPair(cfg demoConfig) (*noisemobile.Channel, *noisemobile.Channel, error) {
	pattern := noise.Pattern(strings.ToUpper(cfg.pattern))

	base := noisemobile.NewOptions()
	base.Pattern = pattern
	base.WindowSize = cfg.window
	base.Prologue = []byte("noisectl demo")

	var responderKey *crypto.KeyPair
	var err error
	if cfg.identity != "" {
		ks, err := openStore()
		if err != nil {
			return nil, nil, err
		}
		defer ks.Close()
		secret, err := ks.LoadIdentity(cfg.identity)
		if err != nil {
			return nil, nil, err
		}
		responderKey, err = crypto.FromSecretKeyBytes(secret)
		crypto.ZeroBytes(secret)
		if err != nil {
			return nil, nil, err
		}
	} else if pattern != noise.PatternNN {
		if responderKey, err = crypto.GenerateKeyPair(); err != nil {
			return nil, nil, err
		}
	}

	initOpts := *base
	if pattern == noise.PatternIK {
		initOpts.PeerStatic = responderKey.Public[:]
	}
	initiator, err := noisemobile.NewChannel(noisemobile.Initiator, &initOpts)
	if err != nil {
		return nil, nil, err
	}

	respOpts := *base
	var responder *noisemobile.Channel
	if responderKey != nil && pattern != noise.PatternNN {
		responder, err = noisemobile.NewChannelWithKey(noisemobile.Responder, responderKey.Private[:], &respOpts)
		crypto.ZeroBytes(responderKey.Private[:])
	} else {
		responder, err = noisemobile.NewChannel(noisemobile.Responder, &respOpts)
	}
	if err != nil {
		_ = initiator.Close()
		return nil, nil, err
	}
	return initiator, responder, nil
}

func runDemo(w io.Writer, cfg demoConfig) error {
	if cfg.messages < 1 {
		return fmt.Errorf("--messages must be positive")
	}
	initiator, responder, err := demoPair(cfg)
	if err != nil {
		return err
	}
	defer initiator.Close()
	defer responder.Close()

	fmt.Fprintf(w, "Protocol: %s\n", noise.Pattern(strings.ToUpper(cfg.pattern)).ProtocolName())

	sender, receiver := initiator, responder
	for i := 1; !initiator.IsEstablished() || !responder.IsEstablished(); i++ {
		msg, err := sender.WriteHandshakeMessage(nil)
		if err != nil {
			return fmt.Errorf("handshake message %d: %w", i, err)
		}
		if _, err := receiver.ReadHandshakeMessage(msg); err != nil {
			return fmt.Errorf("handshake message %d: %w", i, err)
		}
		fmt.Fprintf(w, "Handshake message %d: %d bytes\n", i, len(msg))
		sender, receiver = receiver, sender
	}

	ih, err := initiator.Session().HandshakeHash()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Handshake hash: %s\n", hex.EncodeToString(ih))

	frames := make([][]byte, 0, cfg.messages)
	for i := 0; i < cfg.messages; i++ {
		frame, err := initiator.EncryptSequenced([]byte(fmt.Sprintf("sequenced message %d", i+1)))
		if err != nil {
			return err
		}
		frames = append(frames, frame)
	}
	// deliver newest first to show out-of-order acceptance
	for i := len(frames) - 1; i >= 0; i-- {
		pt, err := responder.DecryptSequenced(frames[i])
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "Received %q (%d byte frame)\n", pt, len(frames[i]))
	}
	if _, err := responder.DecryptSequenced(frames[0]); err != nil {
		fmt.Fprintf(w, "Replay rejected: %v\n", err)
	} else {
		return fmt.Errorf("replayed frame was accepted")
	}

	for i := 0; i < cfg.messages; i++ {
		if err := responder.QueueEncrypt([]byte(fmt.Sprintf("batched reply %d", i+1))); err != nil {
			return err
		}
	}
	replies, err := responder.FlushEncrypts()
	if err != nil {
		return err
	}
	for _, r := range replies {
		if err := initiator.QueueDecrypt(r); err != nil {
			return err
		}
	}
	plain, err := initiator.FlushDecrypts()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Batch: %d replies decrypted\n", len(plain))

	window, err := responder.SerializeWindow()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Responder window: %s\n", hex.EncodeToString(window))
	return nil
}
