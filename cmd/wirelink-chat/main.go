// Command wirelink-chat is a line-based chat between two peers, sent
// reliably over UDP. It doubles as a manual soak harness: the link
// flags route traffic through the network simulator so delivery can be
// watched under latency, loss, duplication, and corruption.
//
// Terminal A:
//
//	wirelink-chat --listen :9000 --peer 127.0.0.1:9001
//
// Terminal B, behind a lossy simulated link:
//
//	wirelink-chat --listen :9001 --peer 127.0.0.1:9000 --loss 25 --latency 150ms
package main

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/opd-ai/wirelink/netsim"
	"github.com/opd-ai/wirelink/transport"
)

const chatUserType uint16 = 1

func main() {
	var (
		listenAddr string
		peerAddr   string
		latency    time.Duration
		jitter     time.Duration
		loss       float64
		duplicate  float64
		corrupt    float64
		seed       int64
		verbose    bool
	)

	rootCmd := &cobra.Command{
		Use:   "wirelink-chat",
		Short: "Reliable UDP chat demo for the wirelink transport",
		Long: `wirelink-chat exchanges stdin lines with a peer using the
wirelink reliable-messaging transport. Link-condition flags route
outgoing traffic through the deterministic network simulator, so the
ack/resend machinery can be observed under loss and duplication.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if verbose {
				logrus.SetLevel(logrus.DebugLevel)
			}
			return run(listenAddr, peerAddr, netsim.Config{
				Latency:          latency,
				Jitter:           jitter,
				DropPercent:      loss,
				DuplicatePercent: duplicate,
				DuplicateMax:     1,
				CorruptPercent:   corrupt,
				Seed:             seed,
			})
		},
	}

	flags := rootCmd.Flags()
	flags.StringVar(&listenAddr, "listen", ":0", "local UDP listen address")
	flags.StringVar(&peerAddr, "peer", "", "remote peer address (required)")
	flags.DurationVar(&latency, "latency", 0, "simulated one-way latency")
	flags.DurationVar(&jitter, "jitter", 0, "simulated latency jitter")
	flags.Float64Var(&loss, "loss", 0, "simulated packet loss percent")
	flags.Float64Var(&duplicate, "duplicate", 0, "simulated duplication percent")
	flags.Float64Var(&corrupt, "corrupt", 0, "simulated corruption percent")
	flags.Int64Var(&seed, "seed", 1, "simulator random seed")
	flags.BoolVar(&verbose, "verbose", false, "enable debug logging")
	_ = rootCmd.MarkFlagRequired("peer")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func run(listenAddr, peerAddr string, simCfg netsim.Config) error {
	peer, err := net.ResolveUDPAddr("udp", peerAddr)
	if err != nil {
		return fmt.Errorf("resolving peer: %w", err)
	}

	socket, err := transport.NewUDPSocket(listenAddr)
	if err != nil {
		return fmt.Errorf("binding socket: %w", err)
	}

	registry := transport.NewRegistry()
	if err := registry.Register(chatUserType, transport.RawBytesCodec(transport.MaxReliablePayload)); err != nil {
		return err
	}

	simulated := simCfg.Latency > 0 || simCfg.Jitter > 0 || simCfg.DropPercent > 0 ||
		simCfg.DuplicatePercent > 0 || simCfg.CorruptPercent > 0

	var sim *netsim.Simulator
	opts := []transport.Option{}
	if simulated {
		sim = netsim.New(simCfg, socket)
		opts = append(opts, transport.WithInterceptor(func(data []byte, to net.Addr) {
			sim.Intercept(data, to, time.Now())
		}))
	}

	t := transport.New(socket, peer, registry, opts...)
	defer t.Close()

	fmt.Printf("listening on %s, chatting with %s\n", socket.LocalAddr(), peer)
	if simulated {
		fmt.Println("outgoing traffic routed through the network simulator")
	}

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case line, open := <-lines:
			if !open {
				return nil
			}
			if line == "" {
				continue
			}
			if err := t.SendReliable(chatUserType, []byte(line)); err != nil {
				if errors.Is(err, transport.ErrWindowFull) {
					fmt.Println("(send window full, message not queued)")
					continue
				}
				return err
			}

		case <-ticker.C:
			if sim != nil {
				sim.Flush(time.Now())
			}
			if _, err := t.ReceivePacket(); err != nil {
				return err
			}
			for {
				msg, ok := t.ReceiveReliable()
				if !ok {
					break
				}
				fmt.Printf("peer: %s\n", msg.Data)
			}
			// Keepalives carry our acks back so the peer can retire
			// delivered messages.
			if err := t.SendKeepalive(); err != nil {
				return err
			}
		}
	}
}
