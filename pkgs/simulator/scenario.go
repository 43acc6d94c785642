package simulator

import (
	"fmt"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/keskad/traintastic-go/pkgs/decoder"
	"github.com/keskad/traintastic-go/pkgs/train"
	"github.com/keskad/traintastic-go/pkgs/world"
)

// ScenarioVehicle describes one rail vehicle's decoder binding and speed
// calibration within a scenario file.
type ScenarioVehicle struct {
	Name            string                     `yaml:"name"`
	Protocol        string                     `yaml:"protocol"`
	Address         uint16                     `yaml:"address"`
	LongAddress     bool                       `yaml:"longAddress"`
	Length          float64                    `yaml:"length"`
	Mass            float64                    `yaml:"mass"`
	MaxSpeed        float64                    `yaml:"maxSpeed"`
	InvertDirection bool                       `yaml:"invertDirection"`
	SpeedCurve      []train.SpeedMappingPoint `yaml:"speedCurve"`
}

// ScenarioTrain groups one or more vehicles under a single throttle.
type ScenarioTrain struct {
	Name     string            `yaml:"name"`
	Vehicles []ScenarioVehicle `yaml:"vehicles"`
}

// ScenarioBlock is a named block of track the world should pre-register.
type ScenarioBlock struct {
	Name string `yaml:"name"`
}

// ScenarioZone is a named zone the world should pre-register.
type ScenarioZone struct {
	Name string `yaml:"name"`
}

// Scenario is the document shape of a simulator scenario file: trains,
// vehicles, speed curves and the block/zone layout to populate a world
// with before the simulated bus comes online.
type Scenario struct {
	ScaleRatio float64         `yaml:"scaleRatio"`
	Trains     []ScenarioTrain `yaml:"trains"`
	Blocks     []ScenarioBlock `yaml:"blocks"`
	Zones      []ScenarioZone  `yaml:"zones"`
}

// LoadScenario reads and parses a scenario file from path.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("simulator: cannot read scenario %q: %w", path, err)
	}
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("simulator: cannot parse scenario %q: %w", path, err)
	}
	if s.ScaleRatio == 0 {
		s.ScaleRatio = 1.0 / 87 // H0 default
	}
	return &s, nil
}

// Apply registers every train, vehicle, block and zone the scenario
// describes into w. It never removes objects a previous Apply created;
// ScenarioWatcher relies on this to make repeated reloads additive rather
// than destructive to whatever the running layout already holds.
func (s *Scenario) Apply(w *world.World) error {
	for _, b := range s.Blocks {
		if _, blk := w.NewBlock(b.Name); blk == nil {
			return fmt.Errorf("simulator: cannot create block %q", b.Name)
		}
	}
	for _, z := range s.Zones {
		if _, zone := w.NewZone(z.Name); zone == nil {
			return fmt.Errorf("simulator: cannot create zone %q", z.Name)
		}
	}
	for _, st := range s.Trains {
		_, t := w.NewTrain(s.ScaleRatio)
		if t == nil {
			return fmt.Errorf("simulator: cannot create train %q", st.Name)
		}
		for _, sv := range st.Vehicles {
			dec := decoder.New(nil, protocolOf(sv.Protocol), sv.Address, sv.LongAddress)
			decoderID := w.RegisterDecoder(dec)

			vehicle := &train.RailVehicle{
				Length:          sv.Length,
				Mass:            sv.Mass,
				MaxSpeed:        sv.MaxSpeed,
				InvertDirection: sv.InvertDirection,
				Decoder:         dec,
			}
			if len(sv.SpeedCurve) > 0 {
				curve := &train.SpeedCurve{}
				curve.FromSpeedMapping(sv.SpeedCurve)
				vehicle.SpeedCurve = curve
			}
			t.AddVehicle(vehicle)
			if err := w.AssignVehicle(decoderID, t, vehicle); err != nil {
				return fmt.Errorf("simulator: assigning vehicle %q: %w", sv.Name, err)
			}
		}
	}
	return nil
}

func protocolOf(name string) decoder.Protocol {
	switch name {
	case "motorola":
		return decoder.ProtocolMotorola
	case "mfx":
		return decoder.ProtocolMFX
	case "selectrix":
		return decoder.ProtocolSelectrix
	default:
		return decoder.ProtocolDCC
	}
}

// ScenarioWatcher reloads a scenario file into a world whenever it changes
// on disk, so an operator can tweak vehicle calibration or add a block
// without restarting the simulator.
type ScenarioWatcher struct {
	path string
	w    *world.World
	log  *log.Entry

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewScenarioWatcher loads path once and returns a watcher that will
// re-apply it to w on every subsequent write.
func NewScenarioWatcher(path string, w *world.World) (*ScenarioWatcher, error) {
	scenario, err := LoadScenario(path)
	if err != nil {
		return nil, err
	}
	if err := scenario.Apply(w); err != nil {
		return nil, err
	}

	sw := &ScenarioWatcher{
		path: path,
		w:    w,
		log:  log.WithField("scenario", path),
		done: make(chan struct{}),
	}
	return sw, nil
}

// Watch starts an fsnotify watch on the scenario file and reloads it on
// every write event until Stop is called.
func (sw *ScenarioWatcher) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("simulator: cannot create scenario watcher: %w", err)
	}
	if err := watcher.Add(sw.path); err != nil {
		watcher.Close()
		return fmt.Errorf("simulator: cannot watch %q: %w", sw.path, err)
	}

	sw.mu.Lock()
	sw.watcher = watcher
	sw.mu.Unlock()

	go sw.loop(watcher)
	return nil
}

func (sw *ScenarioWatcher) loop(watcher *fsnotify.Watcher) {
	for {
		select {
		case <-sw.done:
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			scenario, err := LoadScenario(sw.path)
			if err != nil {
				sw.log.WithError(err).Warn("simulator: scenario reload failed, keeping previous state")
				continue
			}
			if err := scenario.Apply(sw.w); err != nil {
				sw.log.WithError(err).Warn("simulator: scenario reload failed while applying, layout partially updated")
				continue
			}
			sw.log.Info("simulator: scenario reloaded")
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			sw.log.WithError(err).Warn("simulator: scenario watcher error")
		}
	}
}

// Stop ends the watch goroutine and releases the fsnotify watcher.
func (sw *ScenarioWatcher) Stop() error {
	close(sw.done)
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.watcher == nil {
		return nil
	}
	return sw.watcher.Close()
}
