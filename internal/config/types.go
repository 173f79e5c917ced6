package config

import (
	"sort"
	"time"

	"mu-scheduler/internal/wifi"
)

type SimulationConfig struct {
	Simulation SimulationInfo           `yaml:"simulation"`
	Stations   map[string]StationConfig `yaml:",inline"`
}

type SimulationInfo struct {
	Name          string          `yaml:"name"`
	Description   string          `yaml:"description,omitempty"`
	Opportunities int             `yaml:"opportunities"`
	Seed          int64           `yaml:"seed"`
	LogLevel      string          `yaml:"log_level"`
	Channel       ChannelConfig   `yaml:"channel"`
	Scheduler     SchedulerConfig `yaml:"scheduler"`
	Data          DataConfig      `yaml:"data"`
}

type ChannelConfig struct {
	Width int `yaml:"width"`
	MCS   int `yaml:"mcs"`
	// TxopLimit of zero leaves opportunities unlimited.
	TxopLimit time.Duration `yaml:"txop_limit"`
}

// SchedulerConfig mirrors scheduler.Options. Unset fields take the
// scheduler defaults.
type SchedulerConfig struct {
	MaxStations          int              `yaml:"max_stations,omitempty"`
	EnableTxopSharing    *bool            `yaml:"enable_txop_sharing,omitempty"`
	ForceDlOfdma         bool             `yaml:"force_dl_ofdma,omitempty"`
	EnableUlOfdma        *bool            `yaml:"enable_ul_ofdma,omitempty"`
	EnableBsrp           *bool            `yaml:"enable_bsrp,omitempty"`
	UlPsduSize           uint32           `yaml:"ul_psdu_size,omitempty"`
	UseCentral26TonesRus bool             `yaml:"use_central_26_tones_rus,omitempty"`
	MaxCredits           time.Duration    `yaml:"max_credits,omitempty"`
	DlPolicy             string           `yaml:"dl_policy,omitempty"`
	UlPolicy             string           `yaml:"ul_policy,omitempty"`
	DutyCycle            *DutyCycleConfig `yaml:"duty_cycle,omitempty"`
	PollInterval         int              `yaml:"poll_interval,omitempty"`
	PollResponseSize     uint32           `yaml:"poll_response_size,omitempty"`
}

type DutyCycleConfig struct {
	Enabled  bool `yaml:"enabled"`
	Downlink int  `yaml:"downlink"`
	Uplink   int  `yaml:"uplink"`
}

type DataConfig struct {
	DB            DatabaseConfig `yaml:"db"`
	SpoolDir      string         `yaml:"spool_dir,omitempty"`
	MetricsListen string         `yaml:"metrics_listen,omitempty"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host,omitempty"`
	Name     string `yaml:"name,omitempty"`
	User     string `yaml:"user,omitempty"`
	Password string `yaml:"password,omitempty"`
	Org      string `yaml:"org,omitempty"`
}

// Enabled reports whether results should be written to InfluxDB.
func (db DatabaseConfig) Enabled() bool {
	return db.Host != ""
}

type StationConfig struct {
	KeyName  string          `yaml:"-"`
	Index    int             `yaml:"index"`
	Address  string          `yaml:"address,omitempty"`
	HE       *bool           `yaml:"he,omitempty"`
	EHT      bool            `yaml:"eht,omitempty"`
	MCS      *int            `yaml:"mcs,omitempty"`
	TIDs     []int           `yaml:"tids,omitempty"`
	Downlink DownlinkTraffic `yaml:"downlink"`
	Uplink   UplinkTraffic   `yaml:"uplink"`
	// LeaveAfter disassociates the station after that many opportunities.
	LeaveAfter int `yaml:"leave_after,omitempty"`
}

type DownlinkTraffic struct {
	TID                  int     `yaml:"tid"`
	FrameSize            int     `yaml:"frame_size"`
	FramesPerOpportunity float64 `yaml:"frames_per_opportunity"`
}

type UplinkTraffic struct {
	BytesPerOpportunity int `yaml:"bytes_per_opportunity"`
}

func (c *SimulationConfig) ChannelWidth() (wifi.ChannelWidth, error) {
	return wifi.ParseChannelWidth(c.Simulation.Channel.Width)
}

func (c *SimulationConfig) GetStationsSorted() []StationConfig {
	stations := make([]StationConfig, 0, len(c.Stations))
	for _, s := range c.Stations {
		stations = append(stations, s)
	}
	sort.Slice(stations, func(i, j int) bool {
		return stations[i].Index < stations[j].Index
	})
	return stations
}

func (s StationConfig) SupportsHE() bool {
	return s.HE == nil || *s.HE
}

// ParsedAddress returns the configured MAC address, or one derived from the
// AID when none is set.
func (s StationConfig) ParsedAddress() (wifi.Address, error) {
	if s.Address == "" {
		return wifi.AddressForAID(uint16(s.Index)), nil
	}
	return wifi.ParseAddress(s.Address)
}

// GetTIDs returns the TIDs with block ack agreements; all eight by default.
func (s StationConfig) GetTIDs() []uint8 {
	if len(s.TIDs) == 0 {
		out := make([]uint8, wifi.NumTIDs)
		for i := range out {
			out[i] = uint8(i)
		}
		return out
	}
	out := make([]uint8, len(s.TIDs))
	for i, tid := range s.TIDs {
		out[i] = uint8(tid)
	}
	return out
}
