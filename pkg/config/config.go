// pkg/config/config.go
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/andrej220/confaudit/pkg/config/configstore"
	"github.com/andrej220/confaudit/pkg/config/filestore"
	ex "github.com/andrej220/confaudit/pkg/executor"
	"github.com/andrej220/confaudit/pkg/plan"
	dm "github.com/andrej220/confaudit/pkg/shared-models"
)

const (
	DefaultAuditWorkers       = 30
	DefaultRemediationWorkers = 20
	MaxWorkers                = 500

	DefaultAuditCommand = "show configuration firewall family inet | display set | no-more"
	DefaultTarget       = "set firewall family inet filter controlplane-filter term snmp_allow_in"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// DefaultRemediationLines are the lines pushed when none are configured.
func DefaultRemediationLines() []string {
	return []string{
		DefaultTarget + " from source-address 10.0.0.0/24",
		DefaultTarget + " from source-address 10.1.0.0/24",
	}
}

type AuditConfig struct {
	Workers  int         `yaml:"workers" json:"workers" validate:"min=1,max=500"`
	Timeouts ex.Timeouts `yaml:"timeouts" json:"timeouts"`
	Command  string      `yaml:"command" json:"command" validate:"required"`
	Target   string      `yaml:"target" json:"target" validate:"required"`
}

type RemediationConfig struct {
	Workers  int         `yaml:"workers" json:"workers" validate:"min=1,max=500"`
	Timeouts ex.Timeouts `yaml:"timeouts" json:"timeouts"`
	Lines    []string    `yaml:"lines" json:"lines" validate:"required,min=1,dive,required"`
	// VerifyCommand is run from configuration mode, so it carries the
	// dialect's operational-mode prefix.
	VerifyCommand string `yaml:"verifyCommand" json:"verifyCommand" validate:"required"`
}

type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers" json:"brokers" validate:"required,min=1,dive,hostname_port"`
	Topic        string        `yaml:"topic" json:"topic" validate:"required"`
	WriteTimeout time.Duration `yaml:"writeTimeout" json:"writeTimeout" validate:"gte=0"`
}

type MongoConfig struct {
	URI      string `yaml:"uri" json:"uri" validate:"required,uri"`
	DBName   string `yaml:"dbName" json:"dbName" validate:"required"`
	CollName string `yaml:"collName" json:"collName" validate:"required"`
}

type SinksConfig struct {
	Kafka *KafkaConfig `yaml:"kafka,omitempty" json:"kafka,omitempty"`
	Mongo *MongoConfig `yaml:"mongo,omitempty" json:"mongo,omitempty"`
}

// RunConfig is the optional YAML file behind --config. Absent keys keep
// their defaults; command-line flags override both.
type RunConfig struct {
	SSH         ex.SSHOptions     `yaml:"ssh" json:"ssh"`
	Dialect     plan.Dialect      `yaml:"dialect" json:"dialect"`
	Audit       AuditConfig       `yaml:"audit" json:"audit"`
	Remediation RemediationConfig `yaml:"remediation" json:"remediation"`
	Sinks       SinksConfig       `yaml:"sinks" json:"sinks"`
}

func Defaults() RunConfig {
	return RunConfig{
		SSH:     ex.DefaultSSHOptions(),
		Dialect: plan.Junos(),
		Audit: AuditConfig{
			Workers:  DefaultAuditWorkers,
			Timeouts: ex.AuditTimeouts(),
			Command:  DefaultAuditCommand,
			Target:   DefaultTarget,
		},
		Remediation: RemediationConfig{
			Workers:       DefaultRemediationWorkers,
			Timeouts:      ex.RemediationTimeouts(),
			Lines:         DefaultRemediationLines(),
			VerifyCommand: "run " + DefaultAuditCommand,
		},
	}
}

// NewStore returns the store backing a configuration file.
func NewStore(path string) configstore.ConfigStore {
	return filestore.New(path)
}

// Load returns the defaults overlaid with the file at path. An empty path
// yields the defaults.
func Load(path string) (RunConfig, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, nil
	}
	if err := NewStore(path).Load(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Workers and Timeouts pick the settings of one run mode.
func (c RunConfig) Workers(mode dm.Mode) int {
	if mode == dm.ModeRemediate {
		return c.Remediation.Workers
	}
	return c.Audit.Workers
}

func (c RunConfig) Timeouts(mode dm.Mode) ex.Timeouts {
	if mode == dm.ModeRemediate {
		return c.Remediation.Timeouts
	}
	return c.Audit.Timeouts
}

func Validate(cfg *RunConfig) error {
	if cfg == nil {
		return fmt.Errorf("%w: configuration is nil", ErrInvalidConfig)
	}
	if err := plan.Validator().Struct(cfg); err != nil {
		return convertValidationError(err)
	}
	return nil
}

func convertValidationError(err error) error {
	var ves validator.ValidationErrors
	if errors.As(err, &ves) && len(ves) > 0 {
		ve := ves[0]
		return fmt.Errorf("%w: %s failed validation for tag '%s'", ErrInvalidConfig, fieldName(ve), ve.Tag())
	}
	return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
}

func fieldName(fe validator.FieldError) string {
	parts := strings.Split(fe.StructNamespace(), ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, p := range parts {
		parts[i] = strings.ToLower(p)
	}
	return strings.Join(parts, ".")
}
