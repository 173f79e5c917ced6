package datahandeling

import (
	"sort"
	"time"

	"mu-scheduler/internal/config"
	"mu-scheduler/internal/dataframe"

	"github.com/influxdata/tdigest"
)

// SimulationMetrics is the processed result of one simulation run.
type SimulationMetrics struct {
	Opportunities int            `json:"opportunities"`
	Formats       map[string]int `json:"formats"`
	// Airtime is the summed PPDU and grant duration of every cycle.
	Airtime         time.Duration                `json:"airtime"`
	Durations       map[string]DurationQuantiles `json:"durations"`
	MeanUtilization float64                      `json:"mean_utilization"`
	Truncations     int                          `json:"truncations"`
	// Fairness is Jain's index over the bytes delivered to each station.
	Fairness float64          `json:"fairness"`
	Stations []StationMetrics `json:"stations"`
}

type DurationQuantiles struct {
	Samples int           `json:"samples"`
	Mean    time.Duration `json:"mean"`
	P50     time.Duration `json:"p50"`
	P90     time.Duration `json:"p90"`
	P99     time.Duration `json:"p99"`
}

type StationMetrics struct {
	AID           uint16   `json:"aid"`
	Name          string   `json:"name,omitempty"`
	DownlinkBytes uint64   `json:"downlink_bytes"`
	UplinkBytes   uint64   `json:"uplink_bytes"`
	Grants        int      `json:"grants"`
	Truncated     int      `json:"truncated"`
	Credits       *float64 `json:"credits,omitempty"`
}

// DataHandler turns a raw trace into simulation metrics.
type DataHandler interface {
	ProcessDataFrames(cfg *config.SimulationConfig, dataframes *dataframe.DataFrames) (*SimulationMetrics, error)
}

type DefaultDataHandler struct{}

func NewDefaultDataHandler() *DefaultDataHandler {
	return &DefaultDataHandler{}
}

func (h *DefaultDataHandler) ProcessDataFrames(cfg *config.SimulationConfig, dataframes *dataframe.DataFrames) (*SimulationMetrics, error) {
	metrics := &SimulationMetrics{
		Formats:   make(map[string]int),
		Durations: make(map[string]DurationQuantiles),
	}

	digests := make(map[string]*tdigest.TDigest)
	sums := make(map[string]time.Duration)
	counts := make(map[string]int)
	var utilization float64
	var multiUser int

	for _, c := range dataframes.GetAllCycles() {
		metrics.Opportunities++
		metrics.Formats[c.Format]++
		metrics.Airtime += c.Duration
		metrics.Truncations += c.Truncated
		if c.UnitsTotal == 0 {
			continue
		}
		multiUser++
		utilization += float64(c.UnitsUsed) / float64(c.UnitsTotal)

		td, ok := digests[c.Format]
		if !ok {
			td = tdigest.NewWithCompression(50)
			digests[c.Format] = td
		}
		td.Add(float64(c.Duration.Microseconds()), 1)
		sums[c.Format] += c.Duration
		counts[c.Format]++
	}
	if multiUser > 0 {
		metrics.MeanUtilization = utilization / float64(multiUser)
	}
	for format, td := range digests {
		n := counts[format]
		metrics.Durations[format] = DurationQuantiles{
			Samples: n,
			Mean:    sums[format] / time.Duration(n),
			P50:     quantile(td, 0.50),
			P90:     quantile(td, 0.90),
			P99:     quantile(td, 0.99),
		}
	}

	// Every configured station counts towards fairness, served or not.
	stations := make(map[uint16]*StationMetrics)
	if cfg != nil {
		for _, s := range cfg.GetStationsSorted() {
			aid := uint16(s.Index)
			stations[aid] = &StationMetrics{AID: aid, Name: s.KeyName}
		}
	}

	for aid, sdf := range dataframes.GetAllStations() {
		sm, ok := stations[aid]
		if !ok {
			sm = &StationMetrics{AID: aid}
			stations[aid] = sm
		}
		steps := sdf.GetAllSteps()
		order := make([]int, 0, len(steps))
		for n := range steps {
			order = append(order, n)
		}
		sort.Ints(order)
		for _, n := range order {
			step := steps[n]
			if step.DownlinkBytes != nil {
				sm.DownlinkBytes += *step.DownlinkBytes
			}
			if step.UplinkBytes != nil {
				sm.UplinkBytes += *step.UplinkBytes
			}
			if step.RU != nil {
				sm.Grants++
			}
			if step.Truncated != nil && *step.Truncated {
				sm.Truncated++
			}
			if step.Credits != nil {
				credits := *step.Credits
				sm.Credits = &credits
			}
		}
	}

	var delivered []float64
	for _, sm := range stations {
		metrics.Stations = append(metrics.Stations, *sm)
		delivered = append(delivered, float64(sm.DownlinkBytes+sm.UplinkBytes))
	}
	sort.Slice(metrics.Stations, func(i, j int) bool {
		return metrics.Stations[i].AID < metrics.Stations[j].AID
	})
	metrics.Fairness = JainIndex(delivered)

	return metrics, nil
}

func quantile(td *tdigest.TDigest, q float64) time.Duration {
	return time.Duration(td.Quantile(q) * float64(time.Microsecond))
}

// JainIndex returns (Σx)² / (n·Σx²): 1 when every value is equal, 1/n when a
// single value holds everything. An all-zero input counts as equal.
func JainIndex(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum, sumSq float64
	for _, v := range values {
		sum += v
		sumSq += v * v
	}
	if sumSq == 0 {
		return 1
	}
	return sum * sum / (float64(len(values)) * sumSq)
}
