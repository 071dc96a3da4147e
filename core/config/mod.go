// Package config holds the tunable parameters of the contract engine and
// loads them from a YAML file, falling back to defaults for anything left
// unset.
package config

import (
	"os"
	"time"

	"golang.org/x/xerrors"
	"gopkg.in/yaml.v2"

	"github.com/porwchain/porw/core/gas"
)

// Duration wraps time.Duration so that the YAML form "5s" can be parsed.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw string

	err := unmarshal(&raw)
	if err != nil {
		return err
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return xerrors.Errorf("couldn't parse duration: %v", err)
	}

	*d = Duration(parsed)

	return nil
}

// Engine is the engine configuration.
type Engine struct {
	// Dir is the persistence root. Contracts and events are stored in
	// subdirectories of it.
	Dir string `yaml:"dir"`

	// DeployDivisor divides the gas limit to get the flat deployment charge.
	DeployDivisor uint64 `yaml:"deploy_divisor"`

	// ScriptDeadline bounds the wall-clock time of one scripted call.
	ScriptDeadline Duration `yaml:"script_deadline"`

	// GasCosts overrides entries of the default cost table.
	GasCosts map[string]uint64 `yaml:"gas_costs"`
}

// Default returns the default configuration rooted at the given directory.
func Default(dir string) Engine {
	return Engine{
		Dir:            dir,
		DeployDivisor:  10,
		ScriptDeadline: Duration(5 * time.Second),
	}
}

// Load reads the configuration from the YAML file. Unset fields keep their
// default value.
func Load(path string) (Engine, error) {
	cfg := Default("")

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, xerrors.Errorf("while reading file: %v", err)
	}

	err = yaml.Unmarshal(data, &cfg)
	if err != nil {
		return cfg, xerrors.Errorf("couldn't unmarshal config: %v", err)
	}

	if cfg.DeployDivisor == 0 {
		cfg.DeployDivisor = 10
	}

	if cfg.ScriptDeadline == 0 {
		cfg.ScriptDeadline = Duration(5 * time.Second)
	}

	return cfg, nil
}

// Costs returns the gas cost table: the defaults overlaid with the
// configured overrides.
func (e Engine) Costs() gas.Costs {
	costs := gas.DefaultCosts()

	for op, cost := range e.GasCosts {
		costs[op] = cost
	}

	return costs
}
