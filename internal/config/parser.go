package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"mu-scheduler/internal/allocation"
	"mu-scheduler/internal/logging"
	"mu-scheduler/internal/phy"
	"mu-scheduler/internal/scheduler"

	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("invalid config")

const (
	maxAID = 2007
	// largest A-MSDU an HE station may receive
	maxFrameSize = 11454
)

func LoadConfig(filepath string) (*SimulationConfig, error) {
	config, _, err := LoadConfigWithContent(filepath)
	return config, err
}

func LoadConfigWithContent(filepath string) (*SimulationConfig, string, error) {
	logger := logging.GetLogger()

	data, err := os.ReadFile(filepath)
	if err != nil {
		logger.WithField("filepath", filepath).WithError(err).Error("Failed to read config file")
		return nil, "", err
	}

	originalContent := string(data)
	config, err := ParseConfig(originalContent)
	if err != nil {
		logger.WithField("filepath", filepath).WithError(err).Error("Failed to load config file")
		return nil, "", err
	}
	return config, originalContent, nil
}

// ParseConfig expands environment references, decodes and validates a
// configuration document.
func ParseConfig(content string) (*SimulationConfig, error) {
	expanded := expandEnvVars(content)

	var config SimulationConfig
	if err := yaml.Unmarshal([]byte(expanded), &config); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	for keyName, station := range config.Stations {
		station.KeyName = keyName
		config.Stations[keyName] = station
	}
	applyDefaults(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return &config, nil
}

func expandEnvVars(content string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(content, func(match string) string {
		envVar := strings.Trim(match, "${}")
		if value := os.Getenv(envVar); value != "" {
			return value
		}
		return match
	})
}

func applyDefaults(config *SimulationConfig) {
	sim := &config.Simulation
	if sim.Channel.Width == 0 {
		sim.Channel.Width = 20
	}
	if sim.LogLevel == "" {
		sim.LogLevel = "info"
	}
}

func validateConfig(config *SimulationConfig) error {
	sim := config.Simulation
	if sim.Name == "" {
		return fmt.Errorf("simulation name is required")
	}

	if sim.Opportunities <= 0 {
		return fmt.Errorf("opportunities must be greater than 0")
	}

	if _, err := config.ChannelWidth(); err != nil {
		return err
	}

	if sim.Channel.MCS < 0 || sim.Channel.MCS > phy.MaxMCS {
		return fmt.Errorf("channel mcs must be in 0..%d, got %d", phy.MaxMCS, sim.Channel.MCS)
	}

	if sim.Channel.TxopLimit < 0 {
		return fmt.Errorf("txop_limit must not be negative")
	}

	if _, err := config.SchedulerOptions(); err != nil {
		return err
	}

	if len(config.Stations) == 0 {
		return fmt.Errorf("at least one station must be defined")
	}

	// Validate stations
	indices := make(map[int]bool)
	addresses := make(map[string]string)
	for name, station := range config.Stations {
		if station.Index < 1 || station.Index > maxAID {
			return fmt.Errorf("station %s: index must be in 1..%d, got %d", name, maxAID, station.Index)
		}
		if indices[station.Index] {
			return fmt.Errorf("station %s: index %d is already used", name, station.Index)
		}
		indices[station.Index] = true

		addr, err := station.ParsedAddress()
		if err != nil {
			return fmt.Errorf("station %s: %w", name, err)
		}
		if other, dup := addresses[addr.String()]; dup {
			return fmt.Errorf("station %s: address %s is already used by %s", name, addr, other)
		}
		addresses[addr.String()] = name

		if station.MCS != nil && (*station.MCS < 0 || *station.MCS > phy.MaxMCS) {
			return fmt.Errorf("station %s: mcs must be in 0..%d", name, phy.MaxMCS)
		}
		for _, tid := range station.TIDs {
			if tid < 0 || tid > 7 {
				return fmt.Errorf("station %s: tid %d out of range 0..7", name, tid)
			}
		}
		dl := station.Downlink
		if dl.TID < 0 || dl.TID > 7 {
			return fmt.Errorf("station %s: downlink tid %d out of range 0..7", name, dl.TID)
		}
		if dl.FrameSize < 0 || dl.FramesPerOpportunity < 0 || station.Uplink.BytesPerOpportunity < 0 {
			return fmt.Errorf("station %s: traffic must not be negative", name)
		}
		if dl.FrameSize > maxFrameSize {
			return fmt.Errorf("station %s: frame_size %d exceeds %d bytes", name, dl.FrameSize, maxFrameSize)
		}
		if station.LeaveAfter < 0 {
			return fmt.Errorf("station %s: leave_after must not be negative", name)
		}
	}

	return nil
}

// SchedulerOptions converts the scheduler section into validated options.
func (c *SimulationConfig) SchedulerOptions() (scheduler.Options, error) {
	sc := c.Simulation.Scheduler
	opts := scheduler.DefaultOptions()

	if sc.MaxStations != 0 {
		opts.MaxStations = sc.MaxStations
	}
	if sc.EnableTxopSharing != nil {
		opts.EnableTxopSharing = *sc.EnableTxopSharing
	}
	opts.ForceDlOfdma = sc.ForceDlOfdma
	if sc.EnableUlOfdma != nil {
		opts.EnableUlOfdma = *sc.EnableUlOfdma
	}
	if sc.EnableBsrp != nil {
		opts.EnableBsrp = *sc.EnableBsrp
	}
	if sc.UlPsduSize != 0 {
		opts.UlPsduSize = sc.UlPsduSize
	}
	opts.UseCentral26TonesRus = sc.UseCentral26TonesRus
	if sc.MaxCredits != 0 {
		opts.MaxCredits = sc.MaxCredits
	}
	if sc.DlPolicy != "" {
		p, err := allocation.ParsePolicy(sc.DlPolicy)
		if err != nil {
			return opts, fmt.Errorf("dl_policy: %w", err)
		}
		opts.DownlinkPolicy = p
	}
	if sc.UlPolicy != "" {
		p, err := allocation.ParsePolicy(sc.UlPolicy)
		if err != nil {
			return opts, fmt.Errorf("ul_policy: %w", err)
		}
		opts.UplinkPolicy = p
	}
	if sc.DutyCycle != nil {
		opts.DutyCycle = scheduler.DutyCycle{
			Enabled:  sc.DutyCycle.Enabled,
			Downlink: sc.DutyCycle.Downlink,
			Uplink:   sc.DutyCycle.Uplink,
		}
	}
	opts.PollInterval = sc.PollInterval
	if sc.PollResponseSize != 0 {
		opts.PollResponseSize = sc.PollResponseSize
	}

	if err := opts.Validate(); err != nil {
		return opts, err
	}
	return opts, nil
}
