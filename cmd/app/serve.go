package app

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	httpctrl "github.com/Agrid-Dev/airtank/internal/controllers/http"
	modbusctrl "github.com/Agrid-Dev/airtank/internal/controllers/modbus"
	mqttctrl "github.com/Agrid-Dev/airtank/internal/controllers/mqtt"
	"github.com/Agrid-Dev/airtank/internal/device"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the tank simulation and expose it through the enabled controllers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := LoadConfig(opts.configPath)
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return Serve(ctx, cfg)
		},
	}
}

// Serve runs the tank and its controllers until ctx is cancelled or one of
// them fails.
func Serve(ctx context.Context, cfg Config) error {
	t, err := cfg.NewTank()
	if err != nil {
		return err
	}
	dev := device.New(cfg.DeviceID, t)
	logger := log.WithField("device_id", dev.ID)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.WithFields(log.Fields{
			"step":     cfg.Simulation.Step,
			"interval": cfg.Simulation.Interval,
		}).Info("tank simulation started")
		return dev.Tank.Run(ctx, cfg.Simulation.Interval, cfg.Simulation.Step)
	})

	c := cfg.Controllers
	if c.HTTP.Enabled {
		srv := httpctrl.New(dev.Tank, c.HTTP.Addr, dev.ID)
		g.Go(func() error {
			logger.WithFields(log.Fields{"controller": "http", "addr": c.HTTP.Addr}).Info("controller started")
			return srv.Run(ctx)
		})
	}
	if c.MQTT.Enabled {
		ctrl, err := mqttctrl.New(dev.Tank, mqttctrl.Config{
			DeviceID:        dev.ID,
			BrokerURL:       c.MQTT.BrokerURL,
			ClientID:        c.MQTT.ClientID,
			BaseTopic:       c.MQTT.BaseTopic,
			QoS:             c.MQTT.QoS,
			RetainSnapshot:  c.MQTT.RetainSnapshot,
			PublishInterval: c.MQTT.PublishInterval,
			Username:        c.MQTT.Username,
			Password:        c.MQTT.Password,
		})
		if err != nil {
			return err
		}
		g.Go(func() error {
			logger.WithFields(log.Fields{"controller": "mqtt", "broker": c.MQTT.BrokerURL}).Info("controller started")
			return ctrl.Run(ctx)
		})
	}
	if c.MODBUS.Enabled {
		ctrl, err := modbusctrl.New(dev.Tank, modbusctrl.Config{
			DeviceID: dev.ID,
			Addr:     c.MODBUS.Addr,
			UnitID:   c.MODBUS.UnitID,
		})
		if err != nil {
			return err
		}
		g.Go(func() error {
			logger.WithFields(log.Fields{"controller": "modbus", "addr": c.MODBUS.Addr}).Info("controller started")
			return ctrl.Run(ctx)
		})
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		logger.Info("shutdown complete")
		return nil
	}
	return err
}
