// Package config loads and validates the container balancer's configuration.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the complete configuration for a container balancer process.
type Config struct {
	Node      NodeConfig      `yaml:"node"`
	Consensus ConsensusConfig `yaml:"consensus"`
	Balancer  BalancerConfig  `yaml:"balancer"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// NodeConfig identifies this process within the cluster.
type NodeConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// ConsensusConfig configures the raft-backed SCM context (leader/safe-mode
// source of truth).
type ConsensusConfig struct {
	DataDir          string        `yaml:"data_dir"`
	BindAddr         string        `yaml:"bind_addr"`
	Bootstrap        bool          `yaml:"bootstrap"`
	HeartbeatTimeout time.Duration `yaml:"heartbeat_timeout"`
	ElectionTimeout  time.Duration `yaml:"election_timeout"`
	CommitTimeout    time.Duration `yaml:"commit_timeout"`
	SnapshotInterval time.Duration `yaml:"snapshot_interval"`
}

// BalancerConfig enumerates every row of the control loop's configuration
// table (§6.3), plus nodeReportInterval which C1's triggerRefresh wait needs.
type BalancerConfig struct {
	Threshold                              float64       `yaml:"threshold"`
	Iterations                             int           `yaml:"iterations"`
	MaxDatanodesRatioToInvolvePerIteration float64       `yaml:"max_datanodes_ratio_to_involve_per_iteration"`
	MaxSizeToMovePerIterationBytes         int64         `yaml:"max_size_to_move_per_iteration_bytes"`
	MaxSizeEnteringTargetBytes             int64         `yaml:"max_size_entering_target_bytes"`
	MaxSizeLeavingSourceBytes              int64         `yaml:"max_size_leaving_source_bytes"`
	BalancingInterval                      time.Duration `yaml:"balancing_interval"`
	MoveTimeout                            time.Duration `yaml:"move_timeout"`
	TriggerDUEnable                        bool          `yaml:"trigger_du_enable"`
	NetworkTopologyEnable                  bool          `yaml:"network_topology_enable"`
	NodeReportInterval                     time.Duration `yaml:"node_report_interval"`
	ContainerSizeBytes                     int64         `yaml:"container_size_bytes"`
	IncludeNodes                           []string      `yaml:"include_nodes"`
	ExcludeNodes                           []string      `yaml:"exclude_nodes"`
}

// MetricsConfig configures the /metrics HTTP endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// LoggingConfig configures logrus.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns a configuration with safe, documented defaults.
func DefaultConfig() *Config {
	return &Config{
		Node: NodeConfig{
			Name: "containerbalancer-node",
		},
		Consensus: ConsensusConfig{
			DataDir:          "./data/consensus",
			BindAddr:         "0.0.0.0:7000",
			Bootstrap:        false,
			HeartbeatTimeout: time.Second,
			ElectionTimeout:  time.Second,
			CommitTimeout:    50 * time.Millisecond,
			SnapshotInterval: 120 * time.Second,
		},
		Balancer: BalancerConfig{
			Threshold:                              0.1,
			Iterations:                             -1,
			MaxDatanodesRatioToInvolvePerIteration: 0.2,
			MaxSizeToMovePerIterationBytes:         30 * 1024 * 1024 * 1024, // 30 GB
			MaxSizeEnteringTargetBytes:             26 * 1024 * 1024 * 1024, // 26 GB
			MaxSizeLeavingSourceBytes:              26 * 1024 * 1024 * 1024, // 26 GB
			BalancingInterval:                      70 * time.Minute,
			MoveTimeout:                            65 * time.Minute,
			TriggerDUEnable:                        false,
			NetworkTopologyEnable:                  false,
			NodeReportInterval:                     30 * time.Second,
			ContainerSizeBytes:                     5 * 1024 * 1024 * 1024, // 5 GB
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Listen:  "0.0.0.0:9091",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads configuration from a file (or the standard search locations if
// configFile is empty), overlays environment variables, and validates the
// result.
func Load(configFile string) (*Config, error) {
	cfg := DefaultConfig()

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
		viper.AddConfigPath("/etc/containerbalancer")
	}

	viper.SetEnvPrefix("CONTAINERBALANCER")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration out, matching the teacher's viper-backed
// Config.Save.
func (c *Config) Save(filename string) error {
	viper.Set("config", c)
	return viper.WriteConfigAs(filename)
}
