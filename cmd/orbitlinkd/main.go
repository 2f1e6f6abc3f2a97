// Command orbitlinkd is a demo CLI that wires configuration, logging, and
// the full protocol stack together: it runs a device-side and a cloud-side
// CloudProtocol against each other over a transport.Loopback, then drives
// one publish and one diagnostics round trip, logging the results.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/orbitlink-io/orbitlink-core/cloudproto"
	"github.com/orbitlink-io/orbitlink-core/diag"
	"github.com/orbitlink-io/orbitlink-core/internal/config"
	"github.com/orbitlink-io/orbitlink-core/transport"
	"github.com/orbitlink-io/orbitlink-core/value"
	"github.com/orbitlink-io/orbitlink-core/wire"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "orbitlinkd:", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))
	deviceID := uuid.New()
	logger = logger.With("device_id", deviceID.String())

	if err := run(cfg, logger); err != nil {
		logger.Error("orbitlinkd exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	lb := transport.NewLoopback(32)
	deviceSide := lb.SideA()
	cloudSide := lb.SideB()

	// The device answers diagnostics about itself; the cloud queries it.
	reg := diag.NewRegistry()
	for _, id := range cfg.DiagnosticsIDs {
		id := id
		reg.Register(id, diag.NewUint32Source(func() (uint32, bool) { return uint32(id) * 10, true }))
	}

	device := cloudproto.New()
	if err := device.Init(cloudproto.Config{
		OnSend:      deviceSide.OnSend,
		Port:        cfg.Port,
		Diagnostics: reg,
		Logger:      logger.With("side", "device"),
	}); err != nil {
		return fmt.Errorf("init device: %w", err)
	}

	cloud := cloudproto.New()
	if err := cloud.Init(cloudproto.Config{
		OnSend: cloudSide.OnSend,
		Port:   cfg.Port,
		Logger: logger.With("side", "cloud"),
	}); err != nil {
		return fmt.Errorf("init cloud: %w", err)
	}

	if err := device.Connect(); err != nil {
		return fmt.Errorf("connect device: %w", err)
	}
	if err := cloud.Connect(); err != nil {
		return fmt.Errorf("connect cloud: %w", err)
	}

	if err := cloud.Subscribe(42, func(code int32, v value.Value) {
		logger.Info("cloud received event", "code", code, "value_kind", v.Kind())
	}); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	m := value.NewMap()
	m.Set("count", value.Int(7))
	if err := device.PublishValue(42, value.FromMap(m)); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	drain(deviceSide, cloudSide, device, cloud)

	var diagErr error
	var diagResultCode int32
	var diagResp *wire.DiagnosticsResponse
	if err := cloud.RequestDiagnostics(cfg.DiagnosticsIDs, func(err error, resultCode int32, resp *wire.DiagnosticsResponse) {
		diagErr, diagResultCode, diagResp = err, resultCode, resp
	}); err != nil {
		return fmt.Errorf("send diagnostics request: %w", err)
	}
	drain(deviceSide, cloudSide, device, cloud)

	if diagErr != nil {
		return fmt.Errorf("diagnostics round trip failed: %w", diagErr)
	}
	sourceCount := 0
	if diagResp != nil {
		sourceCount = len(diagResp.Sources)
	}
	logger.Info("diagnostics round trip complete", "result_code", diagResultCode, "sources", sourceCount)

	return nil
}

func drain(deviceSide, cloudSide *transport.Endpoint, device, cloud *cloudproto.CloudProtocol) {
	for i := 0; i < 10; i++ {
		n1, _ := cloudSide.Pump(func(data []byte, port uint8) error { return cloud.Receive(data, port) })
		n2, _ := deviceSide.Pump(func(data []byte, port uint8) error { return device.Receive(data, port) })
		if n1 == 0 && n2 == 0 {
			return
		}
	}
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
