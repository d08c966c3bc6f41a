// mbgate — MQTT to Modbus RTU gateway.
//
// Subscribes to a device command topic, relays each tagged command as a
// Modbus RTU transaction over a half-duplex serial line, and publishes
// the slave's reply back to the topic the command arrived on.
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/HadlerHT/Gateway-MQTT-Modbus/pkg/api/rest"
	"github.com/HadlerHT/Gateway-MQTT-Modbus/pkg/bridge"
	"github.com/HadlerHT/Gateway-MQTT-Modbus/pkg/config"
	"github.com/HadlerHT/Gateway-MQTT-Modbus/pkg/journal"
	journalsqlite "github.com/HadlerHT/Gateway-MQTT-Modbus/pkg/journal/sqlite"
	"github.com/HadlerHT/Gateway-MQTT-Modbus/pkg/logger"
	"github.com/HadlerHT/Gateway-MQTT-Modbus/pkg/modbus"
	"github.com/HadlerHT/Gateway-MQTT-Modbus/pkg/seriallink"
	"github.com/HadlerHT/Gateway-MQTT-Modbus/pkg/transport/mqtt"
)

var (
	version   = "1.0.0"
	buildTime = "dev"
	gitCommit = "unknown"
)

var (
	cfgFile    string
	verbose    bool
	jsonOutput bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "mbgate",
		Short: "mbgate - MQTT to Modbus RTU gateway",
		Long: `mbgate bridges a publish/subscribe command channel onto a
half-duplex Modbus RTU serial bus: one inbound message becomes one
serial transaction and one outbound reply.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildTime),
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "log in JSON format")

	rootCmd.AddCommand(
		newStartCmd(),
		newCRCCmd(),
		newTimeoutCmd(),
		newVersionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newStartCmd creates the start command.
func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the gateway",
		Long:  "Start the gateway: open the serial link, connect to the broker and bridge until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart()
		},
	}
}

// runStart wires the components together and runs until SIGINT/SIGTERM.
func runStart() error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if verbose {
		cfg.Logging.Level = "debug"
	}
	if jsonOutput {
		cfg.Logging.Format = "json"
	}

	log := logger.New(cfg.Logging)
	log.Info("starting mbgate", "version", version, "device", cfg.Device)

	// Serial link and the timing profile derived from it.
	link, err := seriallink.Open(cfg.Serial)
	if err != nil {
		return fmt.Errorf("failed to open serial link: %w", err)
	}
	defer link.Close()

	timing := cfg.Serial.Timing()
	log.Info("serial link open",
		"port", cfg.Serial.Port,
		"baudrate", cfg.Serial.BaudRate,
		"inter_symbol_timeout", timing.InterSymbolTimeout)

	engine := modbus.NewEngine(link, modbus.DefaultEngineConfig(timing))

	// Optional transaction journal.
	var store journal.Store
	if cfg.Journal.Enabled {
		s, err := journalsqlite.NewStore(cfg.Journal.Path)
		if err != nil {
			return fmt.Errorf("failed to open journal: %w", err)
		}
		defer s.Close()
		store = s
		log.Info("journal enabled", "path", cfg.Journal.Path)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// MQTT transport.
	client := mqtt.NewClient(cfg.MQTT, log)
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to broker: %w", err)
	}
	defer client.Close()

	// Bridge.
	b := bridge.New(cfg.Modbus, engine, client, store, log)

	// Optional status API.
	if cfg.API.Enabled {
		server := rest.NewServer(b, client, store, log, rest.Config{Port: cfg.API.Port})
		server.Start()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := server.Stop(shutdownCtx); err != nil {
				log.Error("status API shutdown failed", "error", err)
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- b.Run(ctx, client.Inbound())
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("shutting down", "signal", sig.String())
		cancel()
		<-errCh
	case err := <-errCh:
		if err != nil && err != context.Canceled {
			return fmt.Errorf("bridge stopped: %w", err)
		}
	}

	log.Info("mbgate stopped")
	return nil
}

// newCRCCmd creates the crc utility command.
func newCRCCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crc <hex-payload>",
		Short: "Compute the Modbus CRC-16 of a hex payload",
		Long:  "Compute the Modbus CRC-16 of a hex payload and print the complete framed request.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := hex.DecodeString(args[0])
			if err != nil {
				return fmt.Errorf("invalid hex payload: %w", err)
			}

			sum := modbus.CRC16(payload)
			frame := modbus.AppendCRC(payload)

			fmt.Printf("CRC-16: 0x%04X\n", sum)
			fmt.Printf("Frame:  %X\n", frame)
			return nil
		},
	}
}

// newTimeoutCmd creates the timeout utility command.
func newTimeoutCmd() *cobra.Command {
	var dataBits, stopBits int
	var parity bool

	cmd := &cobra.Command{
		Use:   "timeout <bitrate>",
		Short: "Print the inter-symbol timeout for a link configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bitRate, err := strconv.Atoi(args[0])
			if err != nil || bitRate <= 0 {
				return fmt.Errorf("invalid bit-rate %q", args[0])
			}

			d := modbus.InterSymbolTimeout(bitRate, dataBits, parity, stopBits)
			fmt.Printf("Inter-symbol timeout: %v\n", d)
			return nil
		},
	}

	cmd.Flags().IntVar(&dataBits, "databits", 8, "data bits per symbol")
	cmd.Flags().IntVar(&stopBits, "stopbits", 1, "stop bits per symbol")
	cmd.Flags().BoolVar(&parity, "parity", false, "parity bit enabled")

	return cmd
}

// newVersionCmd creates the version command.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("mbgate %s\n", version)
			fmt.Printf("  Commit:  %s\n", gitCommit)
			fmt.Printf("  Built:   %s\n", buildTime)
		},
	}
}
