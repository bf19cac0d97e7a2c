// Command fx9600cli is a small demonstration front-end for the
// llrpclient library: connect to a reader and stream tag observations
// to stdout.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/fx9600/llrpclient"
	"github.com/spf13/cobra"
)

var (
	address     string
	antennaList string
	powerDBm    float64
)

var rootCmd = &cobra.Command{
	Use:     "fx9600cli",
	Short:   "FX9600 LLRP client CLI",
	Version: "0.1.0",
}

var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Connect and print tag observations until interrupted",
	RunE:  runStream,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&address, "address", "a", "", "reader address, host:port (default port 5084)")
	rootCmd.PersistentFlags().StringVar(&antennaList, "antennas", "1", "comma-separated antenna port numbers")
	rootCmd.PersistentFlags().Float64Var(&powerDBm, "power", 30.0, "requested transmit power in dBm")
	rootCmd.AddCommand(streamCmd)
}

func parseAntennas(s string) ([]uint16, error) {
	var out []uint16
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.ParseUint(part, 10, 16)
		if err != nil {
			return nil, fmt.Errorf("invalid antenna port %q: %w", part, err)
		}
		out = append(out, uint16(n))
	}
	return out, nil
}

func runStream(cmd *cobra.Command, args []string) error {
	if address == "" {
		return fmt.Errorf("--address is required")
	}
	antennas, err := parseAntennas(antennaList)
	if err != nil {
		return err
	}
	power := make(map[uint16]float32, len(antennas))
	for _, a := range antennas {
		power[a] = float32(powerDBm)
	}

	config := llrpclient.DefaultSessionConfig()
	config.Address = address
	config.Antennas = antennas
	config.PowerDBm = power

	client := llrpclient.NewClient(config)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
		client.Disconnect()
	}()

	if err := client.Connect(ctx); err != nil {
		return err
	}
	defer client.Disconnect()

	for ev := range client.Events() {
		switch ev.Kind {
		case llrpclient.EventConnected:
			fmt.Println("connected")
		case llrpclient.EventReady:
			fmt.Println("rospec running")
		case llrpclient.EventTag:
			fmt.Println(ev.Tag)
		case llrpclient.EventDisconnected:
			fmt.Println("disconnected")
			if ctx.Err() != nil {
				return nil
			}
		case llrpclient.EventError:
			fmt.Fprintf(os.Stderr, "error: %v\n", ev.Err)
		}
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
