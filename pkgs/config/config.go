package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Server struct {
	Address string
	Port    uint16
	Type    string
}

// CommandStation describes one command station connection the daemon
// should bring up: its transport (serial/tcp/udp), protocol family
// (loconet/xpressnet) and whether it should run against the
// simulator instead of real hardware.
type CommandStation struct {
	Name       string
	Protocol   string // "loconet" or "xpressnet"
	Transport  string // "serial", "tcp" or "udp"
	Device     string // serial device path, when Transport == "serial"
	Address    string // host:port, when Transport == "tcp"/"udp"
	Baudrate   int
	Simulation bool
}

// World carries layout-wide defaults applied when a command station or
// scenario does not override them: model scale, sound/smoke unit muting
// and a blanket speed limit.
type World struct {
	ScaleRatio float64
	Mute       bool
	NoSmoke    bool
	SpeedLimit float64
}

type Configuration struct {
	Server Server

	// CurrentLoco describes a contextual configuration of current locomotive
	Loco Loco

	CommandStations []CommandStation
	World           World
}

type Loco struct {
	LocoAddr         uint16
	DecoderType      string
	RailboxSoundSlot uint8
}

// LocoAddr represents locomotive address
type LocoAddr uint16

func NewConfig() (*Configuration, error) {
	config := Configuration{}
	config.Loco = Loco{}

	// application configuration
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigName(".rb")
	v.AddConfigPath("$HOME/")
	v.AddConfigPath(".")
	_ = v.SafeWriteConfig()

	v.SetDefault("server.address", "192.168.0.111")
	v.SetDefault("server.port", 21105)
	v.SetDefault("server.type", "z21")

	v.SetDefault("world.scaleRatio", 1.0/87) // H0
	v.SetDefault("world.mute", false)
	v.SetDefault("world.noSmoke", false)
	v.SetDefault("world.speedLimit", 0.0) // 0 means unlimited

	// contextual locomotive configuration (when current working directory is a locomotive directory that contains loco.json file)
	l := viper.New()
	l.SetConfigType("json")
	l.SetConfigName("loco")
	l.AddConfigPath(".")
	l.ReadInConfig()

	// read both configuration files
	if err := v.ReadInConfig(); err != nil {
		return &Configuration{}, fmt.Errorf("cannot parse config: %s", err.Error())
	}
	if err := v.Unmarshal(&config); err != nil {
		return &config, fmt.Errorf("cannot parse config: %s", err.Error())
	}
	if err := l.ReadInConfig(); err != nil {
		// make loco.json fully optional
		if !strings.Contains(err.Error(), "Not Found") {
			return &Configuration{}, fmt.Errorf("cannot parse config: %s", err.Error())
		}
	}
	if err := l.Unmarshal(&config.Loco); err != nil {
		return &config, fmt.Errorf("cannot parse config: %s", err.Error())
	}

	return &config, nil
}
