package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	kyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/Agrid-Dev/airtank/internal/airthermo"
	"github.com/Agrid-Dev/airtank/internal/ode"
	"github.com/Agrid-Dev/airtank/internal/tank"
)

const envPrefix = "AIRTANK_"

type Config struct {
	DeviceID    string            `koanf:"device_id" yaml:"device_id"`
	Controllers ControllersConfig `koanf:"controllers" yaml:"controllers"`

	Tank       TankConfig       `koanf:"tank" yaml:"tank"`
	Solver     SolverConfig     `koanf:"solver" yaml:"solver"`
	Simulation SimulationConfig `koanf:"simulation" yaml:"simulation"`
}

type ControllersConfig struct {
	HTTP   HTTPConfig   `koanf:"http" yaml:"http"`
	MQTT   MQTTConfig   `koanf:"mqtt" yaml:"mqtt"`
	MODBUS ModbusConfig `koanf:"modbus" yaml:"modbus"`
}

type HTTPConfig struct {
	Enabled bool   `koanf:"enabled" yaml:"enabled"`
	Addr    string `koanf:"addr" yaml:"addr"`
}

type MQTTConfig struct {
	Enabled         bool          `koanf:"enabled" yaml:"enabled"`
	BrokerURL       string        `koanf:"broker_url" yaml:"broker_url"`
	ClientID        string        `koanf:"client_id" yaml:"client_id"`
	BaseTopic       string        `koanf:"base_topic" yaml:"base_topic"`
	QoS             byte          `koanf:"qos" yaml:"qos"`
	RetainSnapshot  bool          `koanf:"retain_snapshot" yaml:"retain_snapshot"`
	PublishInterval time.Duration `koanf:"publish_interval" yaml:"publish_interval"`
	Username        string        `koanf:"username" yaml:"username"`
	Password        string        `koanf:"password" yaml:"password"`
}

type ModbusConfig struct {
	Enabled bool   `koanf:"enabled" yaml:"enabled"`
	Addr    string `koanf:"addr" yaml:"addr"`
	UnitID  byte   `koanf:"unit_id" yaml:"unit_id"`
}

// TankConfig holds the vessel geometry, the fill state and the air model
// constants. Pressures are absolute, in Pa; the fill temperature is in °C.
type TankConfig struct {
	Volume             float64 `koanf:"volume" yaml:"volume"`
	NozzleDiameter     float64 `koanf:"nozzle_diameter" yaml:"nozzle_diameter"`
	AmbientPressure    float64 `koanf:"ambient_pressure" yaml:"ambient_pressure"`
	InitialPressure    float64 `koanf:"initial_pressure" yaml:"initial_pressure"`
	InitialTemperature float64 `koanf:"initial_temperature" yaml:"initial_temperature"`
	ValveOpen          bool    `koanf:"valve_open" yaml:"valve_open"`
	Gamma              float64 `koanf:"gamma" yaml:"gamma"`
	GasConstant        float64 `koanf:"gas_constant" yaml:"gas_constant"`
	FrozenRates        bool    `koanf:"frozen_rates" yaml:"frozen_rates"`
}

type SolverConfig struct {
	Method   string  `koanf:"method" yaml:"method"` // "RK45" | "RK23" | "RK4"
	AbsTol   float64 `koanf:"abs_tol" yaml:"abs_tol"`
	RelTol   float64 `koanf:"rel_tol" yaml:"rel_tol"`
	MaxSteps int     `koanf:"max_steps" yaml:"max_steps"`
}

type SimulationConfig struct {
	Step       time.Duration `koanf:"step" yaml:"step"`
	Interval   time.Duration `koanf:"interval" yaml:"interval"`
	StepBudget int           `koanf:"step_budget" yaml:"step_budget"`
}

func DefaultConfig() Config {
	return Config{
		DeviceID: "default",
		Controllers: ControllersConfig{
			HTTP: HTTPConfig{Enabled: true, Addr: ":8080"},
			MQTT: MQTTConfig{
				BrokerURL:       "tcp://localhost:1883",
				PublishInterval: time.Second,
			},
			MODBUS: ModbusConfig{Addr: ":1502", UnitID: 1},
		},
		Tank: TankConfig{
			Volume:             2e-3,
			NozzleDiameter:     9e-3,
			AmbientPressure:    101325,
			InitialPressure:    500000,
			InitialTemperature: 20,
			Gamma:              airthermo.DefaultGamma,
			GasConstant:        airthermo.DefaultGasConstant,
		},
		Solver: SolverConfig{
			Method:   "RK45",
			AbsTol:   1e-6,
			RelTol:   1e-3,
			MaxSteps: 100000,
		},
		Simulation: SimulationConfig{
			Step:       10 * time.Millisecond,
			Interval:   100 * time.Millisecond,
			StepBudget: 100000,
		},
	}
}

// LoadConfig layers defaults, the optional config file at path and AIRTANK_*
// environment variables, in that order. A missing file is not an error.
func LoadConfig(path string) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(DefaultConfig(), "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if err := loadFile(k, path); err != nil {
			return Config{}, err
		}
	}

	err := k.Load(env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			return envKeyTransform(strings.TrimPrefix(key, envPrefix)), value
		},
	}), nil)
	if err != nil {
		return Config{}, fmt.Errorf("load env: %w", err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	applyDefaults(&cfg)
	return cfg, nil
}

func loadFile(k *koanf.Koanf, path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// Config file missing → use defaults
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	var parser koanf.Parser
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		parser = kyaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return fmt.Errorf("unsupported config extension %q", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.DeviceID) == "" {
		cfg.DeviceID = "default"
	}
	c := &cfg.Controllers
	if !c.HTTP.Enabled && !c.MQTT.Enabled && !c.MODBUS.Enabled {
		c.HTTP.Enabled = true
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.MQTT.PublishInterval == 0 {
		c.MQTT.PublishInterval = 1 * time.Second
	}
	if c.MODBUS.UnitID == 0 {
		c.MODBUS.UnitID = 1
	}
}

// envKeyTransform maps an environment variable name, prefix already removed,
// to a koanf key: CONTROLLERS_HTTP_ADDR → controllers.http.addr,
// TANK_NOZZLE_DIAMETER → tank.nozzle_diameter. Names that match no section
// are lowercased as they are.
func envKeyTransform(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	parts := strings.Split(s, "_")

	switch parts[0] {
	case "controllers":
		if len(parts) < 3 {
			return s
		}
		return parts[0] + "." + parts[1] + "." + strings.Join(parts[2:], "_")
	case "tank", "solver", "simulation":
		if len(parts) < 2 {
			return s
		}
		return parts[0] + "." + strings.Join(parts[1:], "_")
	default:
		return s
	}
}

func (c Config) TankParams() tank.Params {
	return tank.Params{
		Volume:          c.Tank.Volume,
		NozzleDiameter:  c.Tank.NozzleDiameter,
		AmbientPressure: c.Tank.AmbientPressure,
	}
}

func (c Config) InitialConditions() tank.InitialConditions {
	return tank.InitialConditions{
		Pressure:    c.Tank.InitialPressure,
		Temperature: c.Tank.InitialTemperature,
	}
}

func (c Config) ODESolver() (*ode.Solver, error) {
	tab, err := ode.ParseMethod(c.Solver.Method)
	if err != nil {
		return nil, err
	}
	cfg := ode.DefaultConfig()
	cfg.AbsTol = c.Solver.AbsTol
	cfg.RelTol = c.Solver.RelTol
	cfg.MaxSteps = c.Solver.MaxSteps
	return ode.New(tab, cfg)
}

func (c Config) Model() (*airthermo.Model, error) {
	solver, err := c.ODESolver()
	if err != nil {
		return nil, fmt.Errorf("solver: %w", err)
	}
	opts := []airthermo.Option{
		airthermo.WithGamma(c.Tank.Gamma),
		airthermo.WithGasConstant(c.Tank.GasConstant),
		airthermo.WithSolver(solver),
	}
	if c.Tank.FrozenRates {
		opts = append(opts, airthermo.WithFrozenRates())
	}
	return airthermo.New(opts...)
}

// NewTank builds a filled tank from the config, with the valve set as
// configured.
func (c Config) NewTank() (*tank.Tank, error) {
	model, err := c.Model()
	if err != nil {
		return nil, err
	}
	t, err := tank.New(c.TankParams(), c.InitialConditions(), model)
	if err != nil {
		return nil, err
	}
	if c.Tank.ValveOpen {
		t.SetValveOpen(true)
	}
	return t, nil
}
