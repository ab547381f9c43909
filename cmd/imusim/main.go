// Command imusim sends a synthetic, sealed IMU frame stream at a fixed rate.
// Fault flags inject the failure modes the daemon is expected to reject.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strings"
	"time"

	"ahrsmon/pkg/config"
	"ahrsmon/pkg/integrity"
	"ahrsmon/pkg/protocol"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("imusim", flag.ContinueOnError)
	fs.SetOutput(stderr)

	addr := fs.String("addr", "127.0.0.1:9901", "daemon UDP address")
	rate := fs.Float64("rate", 100, "frames per second")
	kindStr := fs.String("type", "imu6", "payload type (acc|gyr|mag|imu6|imu9|imu10|quat)")
	authKeyPath := fs.String("auth-key", "configs/secrets/auth.key", "authentication key file")
	envelopeKeyPath := fs.String("envelope-key", "", "envelope key file (enables encryption)")
	count := fs.Uint64("count", 0, "stop after N frames (0 = run until interrupted)")

	dupEvery := fs.Uint64("dup-every", 0, "resend the previous datagram every N frames")
	corruptEvery := fs.Uint64("corrupt-every", 0, "flip a payload bit every N frames")
	staleEvery := fs.Uint64("stale-every", 0, "replay an old datagram every N frames")
	staleLag := fs.Int("stale-lag", 32, "age of the replayed datagram in frames")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *rate <= 0 {
		fmt.Fprintln(stderr, "invalid --rate:", *rate)
		return 2
	}
	kind, err := parseKind(*kindStr)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	authKey, err := config.LoadKey(*authKeyPath, integrity.AuthKeySize)
	if err != nil {
		fmt.Fprintln(stderr, "auth key:", err)
		return 1
	}
	var envelopeKey []byte
	if *envelopeKeyPath != "" {
		envelopeKey, err = config.LoadKey(*envelopeKeyPath, integrity.EnvelopeKeySize)
		if err != nil {
			fmt.Fprintln(stderr, "envelope key:", err)
			return 1
		}
	}
	sec, err := integrity.NewSecurityContext(authKey, envelopeKey)
	if err != nil {
		fmt.Fprintln(stderr, "security context:", err)
		return 1
	}

	conn, err := net.Dial("udp", *addr)
	if err != nil {
		fmt.Fprintln(stderr, "dial:", err)
		return 1
	}
	defer conn.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Fprintf(stderr, "imusim -> %s type=%s rate=%gHz encrypted=%v\n",
		*addr, kind, *rate, sec.Encrypted())

	sent, err := stream(ctx, conn, sec, streamConfig{
		kind:         kind,
		rate:         *rate,
		count:        *count,
		dupEvery:     *dupEvery,
		corruptEvery: *corruptEvery,
		staleEvery:   *staleEvery,
		staleLag:     *staleLag,
	})
	if err != nil {
		fmt.Fprintln(stderr, "stream:", err)
		return 1
	}
	fmt.Fprintf(stdout, "sent %d frames\n", sent)
	return 0
}

type streamConfig struct {
	kind         protocol.Type
	rate         float64
	count        uint64
	dupEvery     uint64
	corruptEvery uint64
	staleEvery   uint64
	staleLag     int
}

func stream(ctx context.Context, conn net.Conn, sec *integrity.SecurityContext, cfg streamConfig) (uint64, error) {
	interval := time.Duration(float64(time.Second) / cfg.rate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	tickStep := uint64(1_000_000 / cfg.rate)
	if tickStep == 0 {
		tickStep = 1
	}

	lag := cfg.staleLag
	if lag <= 0 {
		lag = 32
	}
	history := make([][]byte, 0, lag)

	start := time.Now()
	var seq uint32
	var ts uint64
	var sent uint64
	for {
		select {
		case <-ctx.Done():
			return sent, nil
		case <-ticker.C:
		}

		seq++
		ts += tickStep
		t := time.Since(start).Seconds()

		datagram, err := buildDatagram(sec, cfg.kind, seq, ts, t)
		if err != nil {
			return sent, err
		}

		if cfg.corruptEvery > 0 && sent > 0 && sent%cfg.corruptEvery == 0 {
			corrupted := append([]byte(nil), datagram...)
			corrupted[protocol.HeaderSize] ^= 0x04
			datagram = corrupted
		}

		if _, err := conn.Write(datagram); err != nil {
			return sent, err
		}
		sent++

		if cfg.dupEvery > 0 && sent%cfg.dupEvery == 0 {
			if _, err := conn.Write(datagram); err != nil {
				return sent, err
			}
		}
		if cfg.staleEvery > 0 && sent%cfg.staleEvery == 0 && len(history) == lag {
			if _, err := conn.Write(history[0]); err != nil {
				return sent, err
			}
		}

		history = append(history, datagram)
		if len(history) > lag {
			history = history[1:]
		}

		if cfg.count > 0 && sent >= cfg.count {
			return sent, nil
		}
	}
}

func buildDatagram(sec *integrity.SecurityContext, kind protocol.Type, seq uint32, ts uint64, t float64) ([]byte, error) {
	frame := protocol.Frame{
		Header: protocol.Header{
			Version:   protocol.Version,
			Type:      kind,
			Sequence:  seq,
			Timestamp: ts,
		},
		Payload: payloadAt(kind, t),
	}
	wire, err := protocol.Encode(frame)
	if err != nil {
		return nil, err
	}
	if err := sec.Seal(wire); err != nil {
		return nil, err
	}
	if sec.Encrypted() {
		return sec.SealEnvelope(wire)
	}
	return wire, nil
}

func parseKind(s string) (protocol.Type, error) {
	switch strings.ToLower(s) {
	case "acc":
		return protocol.TypeImu3Acc, nil
	case "gyr", "gyro":
		return protocol.TypeImu3Gyr, nil
	case "mag":
		return protocol.TypeImu3Mag, nil
	case "imu6":
		return protocol.TypeImu6, nil
	case "imu9":
		return protocol.TypeImu9, nil
	case "imu10":
		return protocol.TypeImu10, nil
	case "quat":
		return protocol.TypeImuQuat, nil
	}
	return 0, fmt.Errorf("unknown payload type %q", s)
}
