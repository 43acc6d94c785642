// Command traintastic is the world-level daemon: it reads the layout
// configuration, brings up every configured command station interface
// against the object arena in pkgs/world, and exposes a cobra CLI to
// inspect and drive trains, blocks and zones while it runs.
package main

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/keskad/traintastic-go/pkgs/cli"
	"github.com/keskad/traintastic-go/pkgs/config"
	"github.com/keskad/traintastic-go/pkgs/loconet"
	"github.com/keskad/traintastic-go/pkgs/simulator"
	"github.com/keskad/traintastic-go/pkgs/wire"
	"github.com/keskad/traintastic-go/pkgs/world"
	"github.com/keskad/traintastic-go/pkgs/xpressnet"
)

func main() {
	var debug bool
	var scenarioPath string

	w := world.New()
	defer w.Close()

	root := &cobra.Command{
		Use:   "traintastic",
		Short: "Layout daemon: brings up command station interfaces and serves the world CLI",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if debug {
				log.SetLevel(log.DebugLevel)
			}

			cfg, err := config.NewConfig()
			if err != nil {
				return fmt.Errorf("traintastic: cannot load configuration: %w", err)
			}

			if err := bringUpCommandStations(w, cfg); err != nil {
				return err
			}

			if scenarioPath != "" {
				watcher, err := simulator.NewScenarioWatcher(scenarioPath, w)
				if err != nil {
					return fmt.Errorf("traintastic: cannot load scenario: %w", err)
				}
				if err := watcher.Watch(); err != nil {
					return fmt.Errorf("traintastic: cannot watch scenario: %w", err)
				}
			}
			return nil
		},
	}

	root.PersistentFlags().BoolVarP(&debug, "debug", "v", false, "Increase verbosity to the debug level")
	root.PersistentFlags().StringVarP(&scenarioPath, "scenario", "s", "", "Load and hot-reload a simulator scenario YAML file into the world, alongside the configured command stations")
	root.AddCommand(cli.NewWorldCommand(w))

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// bringUpCommandStations constructs one interface per configured command
// station and brings it online. A command station configured with
// Simulation: true is wired to an in-process simulator.Device instead of
// a real transport.
func bringUpCommandStations(w *world.World, cfg *config.Configuration) error {
	for _, cs := range cfg.CommandStations {
		transport, err := buildTransport(cs)
		if err != nil {
			return fmt.Errorf("traintastic: command station %q: %w", cs.Name, err)
		}

		if cs.Simulation {
			dev := simulator.NewDevice(cs.Name, transport.(*wire.PipeTransport))
			if err := dev.Start(); err != nil {
				return fmt.Errorf("traintastic: command station %q: cannot start simulator: %w", cs.Name, err)
			}
		}

		switch cs.Protocol {
		case "loconet":
			iface := world.NewLocoNetInterface(w, cs.Name, transport, loconet.Config{}, cs.Simulation)
			if err := iface.SetOnline(true); err != nil {
				return err
			}
			w.RegisterInterface(iface)
		case "xpressnet":
			iface := world.NewXpressNetInterface(cs.Name, transport, xpressnet.Config{DefaultSpeedSteps: 128})
			if err := iface.SetOnline(true); err != nil {
				return err
			}
			w.RegisterXpressNetInterface(iface)
		default:
			return fmt.Errorf("traintastic: command station %q: unknown protocol %q", cs.Name, cs.Protocol)
		}
	}
	return nil
}

func buildTransport(cs config.CommandStation) (wire.Transport, error) {
	if cs.Simulation {
		return wire.NewPipeTransport(), nil
	}
	switch cs.Transport {
	case "serial":
		return wire.NewSerialTransport(wire.SerialConfig{Device: cs.Device, Baudrate: cs.Baudrate}), nil
	case "tcp":
		return wire.NewTCPTransport(cs.Address), nil
	case "udp":
		return wire.NewUDPTransport(cs.Address), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", cs.Transport)
	}
}
