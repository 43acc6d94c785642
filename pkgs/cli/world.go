package cli

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/keskad/traintastic-go/pkgs/decoder"
	"github.com/keskad/traintastic-go/pkgs/output"
	"github.com/keskad/traintastic-go/pkgs/syntax"
	"github.com/keskad/traintastic-go/pkgs/world"
)

// NewWorldCommand builds the command tree that operates on a running
// layout's object arena: trains, blocks and zones, plus LNCV programming
// sessions against whichever LocoNet interface is running. Unlike the
// teacher's single-locomotive cv/fn/speed commands (which dial a command
// station directly for one ad-hoc action), these commands address the
// daemon's in-memory world by object ID. Output goes through output.Printer,
// the same abstraction app.LocoApp uses, rather than directly to stdout.
func NewWorldCommand(w *world.World) *cobra.Command {
	p := output.ConsolePrinter{}

	command := &cobra.Command{
		Use:   "world",
		Short: "Inspect and control the running layout",
		RunE: func(command *cobra.Command, args []string) error {
			return errors.New("please select a command")
		},
	}

	command.AddCommand(newTrainCommand(w, p))
	command.AddCommand(newBlockCommand(w, p))
	command.AddCommand(newZoneCommand(w, p))
	command.AddCommand(newLNCVCommand(w, p))
	return command
}

func parseUUIDArg(args []string) (uuid.UUID, error) {
	if len(args) < 1 {
		return uuid.UUID{}, errors.New("missing id argument")
	}
	id, err := uuid.Parse(args[0])
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("invalid id %q: %w", args[0], err)
	}
	return id, nil
}

func newTrainCommand(w *world.World, p output.Printer) *cobra.Command {
	command := &cobra.Command{
		Use:   "train",
		Short: "Manage trains",
		RunE: func(command *cobra.Command, args []string) error {
			return errors.New("please select a command")
		},
	}

	command.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List every train in the world",
		RunE: func(command *cobra.Command, args []string) error {
			for id, t := range w.TrainsByID() {
				_, _ = p.Printf("%s  active=%v  direction=%s  blocks=%d\n", id, t.Active(), t.Direction(), t.BlockCount())
			}
			return nil
		},
	})

	command.AddCommand(&cobra.Command{
		Use:   "throttle <id> <speed-mps>",
		Short: "Set a train's target speed in scale meters per second",
		Args:  cobra.ExactArgs(2),
		RunE: func(command *cobra.Command, args []string) error {
			id, err := parseUUIDArg(args)
			if err != nil {
				return err
			}
			t := w.Train(id)
			if t == nil {
				return fmt.Errorf("no such train: %s", id)
			}
			var speed float64
			if _, err := fmt.Sscanf(args[1], "%g", &speed); err != nil {
				return fmt.Errorf("invalid speed %q: %w", args[1], err)
			}
			return t.SetThrottleSpeed(speed)
		},
	})

	command.AddCommand(&cobra.Command{
		Use:   "direction <id> <forward|reverse>",
		Short: "Set a train's running direction",
		Args:  cobra.ExactArgs(2),
		RunE: func(command *cobra.Command, args []string) error {
			id, err := parseUUIDArg(args)
			if err != nil {
				return err
			}
			t := w.Train(id)
			if t == nil {
				return fmt.Errorf("no such train: %s", id)
			}
			switch args[1] {
			case "forward":
				return t.SetDirection(decoder.DirectionForward)
			case "reverse":
				return t.SetDirection(decoder.DirectionReverse)
			default:
				return fmt.Errorf("invalid direction %q: must be 'forward' or 'reverse'", args[1])
			}
		},
	})

	command.AddCommand(&cobra.Command{
		Use:   "estop <id> <true|false>",
		Short: "Latch or release a train's emergency stop",
		Args:  cobra.ExactArgs(2),
		RunE: func(command *cobra.Command, args []string) error {
			id, err := parseUUIDArg(args)
			if err != nil {
				return err
			}
			t := w.Train(id)
			if t == nil {
				return fmt.Errorf("no such train: %s", id)
			}
			t.SetEmergencyStop(args[1] == "true")
			return nil
		},
	})

	return command
}

func newBlockCommand(w *world.World, p output.Printer) *cobra.Command {
	command := &cobra.Command{
		Use:   "block",
		Short: "Manage blocks",
		RunE: func(command *cobra.Command, args []string) error {
			return errors.New("please select a command")
		},
	}

	command.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List every block in the world",
		RunE: func(command *cobra.Command, args []string) error {
			for id, b := range w.BlocksByID() {
				_, _ = p.Printf("%s  name=%s  state=%v  occupants=%d\n", id, b.ID, b.State(), len(b.Trains()))
			}
			return nil
		},
	})

	command.AddCommand(&cobra.Command{
		Use:   "free <id>",
		Short: "Force a block back to the free state",
		Args:  cobra.ExactArgs(1),
		RunE: func(command *cobra.Command, args []string) error {
			id, err := parseUUIDArg(args)
			if err != nil {
				return err
			}
			b := w.Block(id)
			if b == nil {
				return fmt.Errorf("no such block: %s", id)
			}
			return b.SetStateFree()
		},
	})

	return command
}

func newZoneCommand(w *world.World, p output.Printer) *cobra.Command {
	command := &cobra.Command{
		Use:   "zone",
		Short: "Manage zones",
		RunE: func(command *cobra.Command, args []string) error {
			return errors.New("please select a command")
		},
	}

	command.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List every zone in the world",
		RunE: func(command *cobra.Command, args []string) error {
			for id, z := range w.ZonesByID() {
				_, _ = p.Printf("%s  name=%s  mute=%v  noSmoke=%v  speedLimit=%g\n", id, z.ID, z.Mute(), z.NoSmoke(), z.SpeedLimit())
			}
			return nil
		},
	})

	command.AddCommand(&cobra.Command{
		Use:   "mute <id> <true|false>",
		Short: "Set a zone's mute policy",
		Args:  cobra.ExactArgs(2),
		RunE: func(command *cobra.Command, args []string) error {
			id, err := parseUUIDArg(args)
			if err != nil {
				return err
			}
			z := w.Zone(id)
			if z == nil {
				return fmt.Errorf("no such zone: %s", id)
			}
			z.SetMute(args[1] == "true")
			return nil
		},
	})

	return command
}

func newLNCVCommand(w *world.World, p output.Printer) *cobra.Command {
	command := &cobra.Command{
		Use:   "lncv",
		Short: "Run an LNCV programming session against the first online LocoNet interface",
		RunE: func(command *cobra.Command, args []string) error {
			return errors.New("please select a command")
		},
	}

	firstKernel := func() (*world.Interface, error) {
		for _, iface := range w.Interfaces() {
			if iface.Status() == world.StatusOnline {
				return iface, nil
			}
		}
		return nil, errors.New("no LocoNet interface is online")
	}

	command.AddCommand(&cobra.Command{
		Use:   "read <module-id> <module-address> <lncv>",
		Short: "Start an LNCV session and read one value",
		Args:  cobra.ExactArgs(3),
		RunE: func(command *cobra.Command, args []string) error {
			iface, err := firstKernel()
			if err != nil {
				return err
			}
			var moduleID, moduleAddress, lncv uint16
			if _, err := fmt.Sscanf(args[0], "%d", &moduleID); err != nil {
				return fmt.Errorf("invalid module id: %w", err)
			}
			if _, err := fmt.Sscanf(args[1], "%d", &moduleAddress); err != nil {
				return fmt.Errorf("invalid module address: %w", err)
			}
			if _, err := fmt.Sscanf(args[2], "%d", &lncv); err != nil {
				return fmt.Errorf("invalid lncv number: %w", err)
			}

			k := iface.Kernel()
			result := make(chan string, 1)
			k.SetOnLNCVReadResponse(func(ok bool, lncv uint16, value uint16) {
				if ok {
					result <- syntax.FormatCVEntries([]syntax.CVEntry{{Number: lncv, Value: value}}, "")
				} else {
					result <- "no response"
				}
			})
			if err := k.LNCVStart(moduleID, moduleAddress); err != nil {
				return err
			}
			if err := k.LNCVRead(lncv); err != nil {
				return err
			}
			_, _ = p.Printf("%s\n", <-result)
			return nil
		},
	})

	return command
}
