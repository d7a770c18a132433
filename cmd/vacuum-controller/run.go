package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sweeney/vacuum-controller/internal/config"
	"github.com/sweeney/vacuum-controller/internal/gpio"
	"github.com/sweeney/vacuum-controller/internal/metrics"
	"github.com/sweeney/vacuum-controller/internal/mqtt"
	"github.com/sweeney/vacuum-controller/internal/vacuum"
	"github.com/sweeney/vacuum-controller/internal/web"
)

const publishBacklog = 256

func newRunCmd(configPath *string) *cobra.Command {
	var (
		httpAddr string
		broker   string
		enable   bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the controller daemon",
		Long: `Run opens the GPIO lines, connects to MQTT, serves the HTTP status page
and cycles the vacuum system until SIGINT or SIGTERM.

Flags override the matching config file settings.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("http") {
				cfg.HTTPAddr = httpAddr
			}
			if cmd.Flags().Changed("broker") {
				cfg.MQTT.Broker = broker
			}
			if cmd.Flags().Changed("enable") {
				cfg.EnableOnStart = enable
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&httpAddr, "http", "", "HTTP status address (empty to disable)")
	cmd.Flags().StringVar(&broker, "broker", "", "MQTT broker address (empty to disable)")
	cmd.Flags().BoolVar(&enable, "enable", false, "Enable automatic cycling at startup")
	return cmd
}

func run(ctx context.Context, cfg config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	m := metrics.New()

	outputs, closeOutputs, err := openOutputs(cfg, m)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}

	d, err := newDaemon(cfg, outputs, closeOutputs, m, time.Now)
	if err != nil {
		closeOutputs()
		return err
	}

	// Initialize MQTT
	if cfg.MQTT.Broker != "" {
		connectCtx, cancel := context.WithTimeout(ctx, time.Minute)
		pub, err := mqtt.NewRealPublisher(connectCtx, mqtt.Options{
			Broker:             cfg.MQTT.Broker,
			ClientID:           cfg.MQTT.ClientID,
			Topics:             mqtt.NewTopics(cfg.MQTT.TopicPrefix),
			MaxConnectTime:     time.Minute,
			OnCommand:          d.onMQTTCommand,
			OnConnectionChange: d.tracker.SetMQTTConnected,
		})
		cancel()
		if err != nil {
			closeOutputs()
			return err
		}
		d.attach(mqtt.NewAsync(pub, publishBacklog))
	} else {
		log.Printf("mqtt disabled")
	}

	// Start HTTP status server
	if cfg.HTTPAddr != "" {
		srv := web.New(cfg.HTTPAddr, d.tracker, web.ExecutorFunc(d.runCommand), m.Handler())
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", cfg.HTTPAddr)
	}

	t := cfg.Timing()
	log.Printf("started: period=%v lead=%v settle=%v pins=%d/%d/%d broker=%s heartbeat=%v",
		t.CyclePeriod, t.PumpLeadTime, t.ValveCloseSettle,
		cfg.PumpPin, cfg.ValveOpenPin, cfg.ValveClosePin, cfg.MQTT.Broker, cfg.Heartbeat)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	return d.serve(ctx, sigCh)
}

// openOutputs requests the three lines and wraps each in a TimedOutput.
// The returned close function drives every line to the shutdown value and
// releases the chip.
func openOutputs(cfg config.Config, m *metrics.Metrics) (vacuum.Outputs, func() error, error) {
	chip, err := gpio.OpenChip(cfg.GPIOChip)
	if err != nil {
		return vacuum.Outputs{}, nil, err
	}

	pins := []struct {
		ch  vacuum.Channel
		pin int
	}{
		{vacuum.Pump, cfg.PumpPin},
		{vacuum.ValveOpen, cfg.ValveOpenPin},
		{vacuum.ValveClose, cfg.ValveClosePin},
	}

	var opened []*gpio.TimedOutput
	closeAll := func() error {
		var errs []error
		for _, o := range opened {
			errs = append(errs, o.Close())
		}
		errs = append(errs, chip.Close())
		return errors.Join(errs...)
	}

	for _, p := range pins {
		line, err := chip.RequestOutput(p.pin, cfg.StartValue)
		if err != nil {
			closeAll()
			return vacuum.Outputs{}, nil, fmt.Errorf("%s pin %d: %w", p.ch, p.pin, err)
		}
		out := gpio.NewTimedOutput(string(p.ch), line, cfg.ShutdownValue)
		out.OnApply(m.ObserveTransition)
		opened = append(opened, out)
	}

	return vacuum.Outputs{
		Pump:       opened[0],
		ValveOpen:  opened[1],
		ValveClose: opened[2],
	}, closeAll, nil
}
