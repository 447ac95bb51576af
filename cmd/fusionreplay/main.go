// Package main replays a recorded IMU log through the fusion filter.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/knei-knurow/fusion"
	"github.com/knei-knurow/fusion/internal/replay"
)

const (
	flagSettings   = "settings"
	flagInput      = "input"
	flagOutput     = "output"
	flagUnits      = "units"
	flagGravity    = "gravity"
	flagMQTTBroker = "mqtt-broker"
	flagMQTTTopic  = "mqtt-topic"
	flagDebug      = "debug"

	standardGravity = 9.80665
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	var logger *zap.SugaredLogger

	return &cli.App{
		Name:  "fusionreplay",
		Usage: "run a recorded IMU log through the fusion AHRS filter",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagSettings,
				Aliases: []string{"s"},
				Usage:   "load filter settings from YAML `FILE` (defaults are used otherwise)",
			},
			&cli.StringFlag{
				Name:     flagInput,
				Aliases:  []string{"i"},
				Usage:    "read the sensor log from CSV `FILE`",
				Required: true,
			},
			&cli.StringFlag{
				Name:    flagOutput,
				Aliases: []string{"o"},
				Usage:   "write estimates as CSV to `FILE` (- for stdout)",
			},
			&cli.StringFlag{
				Name:  flagUnits,
				Value: string(replay.UnitsDegreesG),
				Usage: fmt.Sprintf("units of the log: %s, %s or %s", replay.UnitsDegreesG, replay.UnitsRadiansG, replay.UnitsSI),
			},
			&cli.Float64Flag{
				Name:  flagGravity,
				Value: standardGravity,
				Usage: "gravity in m/s^2, used with --units si",
			},
			&cli.StringFlag{
				Name:  flagMQTTBroker,
				Usage: "publish estimates to MQTT broker `URL` (e.g. tcp://localhost:1883)",
			},
			&cli.StringFlag{
				Name:  flagMQTTTopic,
				Value: "fusion/estimate",
				Usage: "MQTT topic for estimates",
			},
			&cli.BoolFlag{
				Name:  flagDebug,
				Usage: "enable debug logging",
			},
		},
		Before: func(c *cli.Context) error {
			var zl *zap.Logger
			var err error
			if c.Bool(flagDebug) {
				zl, err = zap.NewDevelopment()
			} else {
				zl, err = zap.NewProduction()
			}
			if err != nil {
				return errors.Wrap(err, "cannot create logger")
			}
			logger = zl.Sugar()
			return nil
		},
		After: func(c *cli.Context) error {
			if logger != nil {
				_ = logger.Sync()
			}
			return nil
		},
		Action: func(c *cli.Context) error {
			return run(c, logger)
		},
	}
}

func run(c *cli.Context, logger *zap.SugaredLogger) (err error) {
	settings := fusion.DefaultSettings()
	if path := c.String(flagSettings); path != "" {
		if settings, err = fusion.LoadSettings(path); err != nil {
			return err
		}
	}

	units, err := replay.ParseUnits(c.String(flagUnits))
	if err != nil {
		return err
	}

	f, err := fusion.New(c.Float64(flagGravity), settings, logger)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()

	in, err := os.Open(c.String(flagInput))
	if err != nil {
		return errors.Wrap(err, "cannot open input log")
	}
	defer func() {
		err = multierr.Combine(err, in.Close())
	}()

	reader, err := replay.NewReader(in)
	if err != nil {
		return errors.Wrapf(err, "input log %s", c.String(flagInput))
	}

	sinks, err := openSinks(c, logger)
	if err != nil {
		return err
	}
	defer func() {
		for _, s := range sinks {
			err = multierr.Combine(err, s.Close())
		}
	}()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt)
	defer stop()

	stats, err := replay.Run(ctx, reader, f, units, logger, sinks...)
	if err != nil {
		return err
	}
	logger.Infow("replay complete",
		"input", c.String(flagInput),
		"samples", stats.Samples,
		"skipped", stats.Skipped,
		"magnetometer", reader.HasMagnetometer())
	return nil
}

func openSinks(c *cli.Context, logger *zap.SugaredLogger) (sinks []replay.Sink, err error) {
	defer func() {
		if err != nil {
			for _, s := range sinks {
				err = multierr.Combine(err, s.Close())
			}
			sinks = nil
		}
	}()

	switch out := c.String(flagOutput); out {
	case "":
	case "-":
		sinks = append(sinks, replay.NewCSVSink(os.Stdout))
	default:
		file, err := os.Create(out)
		if err != nil {
			return sinks, errors.Wrap(err, "cannot create output file")
		}
		sinks = append(sinks, &fileSink{CSVSink: replay.NewCSVSink(file), file: file})
	}

	if broker := c.String(flagMQTTBroker); broker != "" {
		clientID := fmt.Sprintf("fusionreplay-%d", time.Now().Unix())
		client, err := replay.DialMQTT(broker, clientID, 10*time.Second)
		if err != nil {
			return sinks, err
		}
		logger.Debugw("connected to mqtt broker", "broker", broker, "topic", c.String(flagMQTTTopic))
		sinks = append(sinks, replay.NewMQTTSink(client, c.String(flagMQTTTopic), 0))
	}

	return sinks, nil
}

// fileSink is a CSV sink that owns its file.
type fileSink struct {
	*replay.CSVSink
	file *os.File
}

func (s *fileSink) Close() error {
	return multierr.Combine(s.CSVSink.Close(), s.file.Close())
}
