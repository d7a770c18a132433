package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sweeney/vacuum-controller/internal/command"
	"github.com/sweeney/vacuum-controller/internal/config"
	"github.com/sweeney/vacuum-controller/internal/mqtt"
)

func newCheckConfigCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Validate the config file and print the effective settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			t := cfg.Timing()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "name\t%s\n", cfg.Name)
			fmt.Fprintf(w, "gpio chip\t%s\n", cfg.GPIOChip)
			fmt.Fprintf(w, "pins\tpump=%d valve_open=%d valve_close=%d\n", cfg.PumpPin, cfg.ValveOpenPin, cfg.ValveClosePin)
			fmt.Fprintf(w, "start/shutdown value\t%v/%v\n", cfg.StartValue, cfg.ShutdownValue)
			fmt.Fprintf(w, "cycle period\t%v\n", t.CyclePeriod)
			fmt.Fprintf(w, "pump lead time\t%v\n", t.PumpLeadTime)
			fmt.Fprintf(w, "valve close settle\t%v\n", t.ValveCloseSettle)
			if t.MaxScheduleDuration > 0 {
				fmt.Fprintf(w, "max schedule duration\t%v (resend every %v)\n", t.MaxScheduleDuration, t.ResendInterval())
			}
			fmt.Fprintf(w, "enable on start\t%v\n", cfg.EnableOnStart)
			if cfg.MQTT.Broker != "" {
				fmt.Fprintf(w, "mqtt\t%s prefix=%s\n", cfg.MQTT.Broker, cfg.MQTT.TopicPrefix)
			} else {
				fmt.Fprintf(w, "mqtt\tdisabled\n")
			}
			fmt.Fprintf(w, "http\t%s\n", cfg.HTTPAddr)
			fmt.Fprintf(w, "heartbeat\t%v\n", cfg.Heartbeat)
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "config OK")
			return nil
		},
	}
}

func newCommandsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "commands",
		Short: "List the commands accepted over MQTT and HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			for _, c := range command.List() {
				fmt.Fprintf(w, "%s\t%s\n", c.Name, c.Help)
			}
			return w.Flush()
		},
	}
}

func newSendCmd(configPath *string) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "send COMMAND",
		Short: "Publish a command to a running daemon over MQTT",
		Example: `  vacuum-controller send ENABLE_VACUUM
  vacuum-controller send force_pump_off -c ./vacuum.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, ok := command.Lookup(args[0])
			if !ok {
				return fmt.Errorf("%w: %q (see \"vacuum-controller commands\")", command.ErrUnknownCommand, args[0])
			}
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.MQTT.Broker == "" {
				return fmt.Errorf("mqtt.broker is not configured")
			}

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			topics := mqtt.NewTopics(cfg.MQTT.TopicPrefix)
			if err := mqtt.SendCommand(ctx, cfg.MQTT.Broker, cfg.MQTT.ClientID, topics, c.Name); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent %s to %s\n", c.Name, topics.Command)
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Time to wait for the broker")
	return cmd
}
