package dataframe

import (
	"sort"
	"sync"
	"time"
)

// DataFrames is the trace of a simulation: one cycle step per transmission
// opportunity and one step per station for every opportunity the station
// took part in.
type DataFrames struct {
	cycles   map[int]*CycleStep
	stations map[uint16]*StationDataFrame
	mutex    sync.RWMutex
}

type StationDataFrame struct {
	steps map[int]*StationStep
	mutex sync.RWMutex
}

// CycleStep is the outcome of one opportunity.
type CycleStep struct {
	Opportunity int            `json:"opportunity"`
	Timestamp   time.Time      `json:"timestamp"`
	Format      string         `json:"format"`
	Reason      string         `json:"reason,omitempty"`
	AC          string         `json:"ac"`
	Preamble    string         `json:"preamble,omitempty"`
	Candidates  int            `json:"candidates"`
	Served      int            `json:"served"`
	Truncated   int            `json:"truncated"`
	Duration    time.Duration  `json:"duration"`
	UnitsUsed   int            `json:"units_used"`
	UnitsTotal  int            `json:"units_total"`
	RUClasses   map[string]int `json:"ru_classes,omitempty"`
}

// StationStep holds what happened to one station during one opportunity.
type StationStep struct {
	Timestamp     time.Time `json:"timestamp"`
	RU            *string   `json:"ru,omitempty"`
	DownlinkBytes *uint64   `json:"downlink_bytes,omitempty"`
	UplinkBytes   *uint64   `json:"uplink_bytes,omitempty"`
	BufferStatus  *uint8    `json:"buffer_status,omitempty"`
	Credits       *float64  `json:"credits,omitempty"`
	Truncated     *bool     `json:"truncated,omitempty"`
}

func NewDataFrames() *DataFrames {
	return &DataFrames{
		cycles:   make(map[int]*CycleStep),
		stations: make(map[uint16]*StationDataFrame),
	}
}

func (df *DataFrames) AddCycle(step *CycleStep) {
	df.mutex.Lock()
	defer df.mutex.Unlock()
	df.cycles[step.Opportunity] = step
}

func (df *DataFrames) GetCycle(opportunity int) *CycleStep {
	df.mutex.RLock()
	defer df.mutex.RUnlock()
	return df.cycles[opportunity]
}

// GetAllCycles returns the cycle steps ordered by opportunity.
func (df *DataFrames) GetAllCycles() []*CycleStep {
	df.mutex.RLock()
	defer df.mutex.RUnlock()

	result := make([]*CycleStep, 0, len(df.cycles))
	for _, c := range df.cycles {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Opportunity < result[j].Opportunity
	})
	return result
}

func (df *DataFrames) GetStation(aid uint16) *StationDataFrame {
	df.mutex.RLock()
	defer df.mutex.RUnlock()
	return df.stations[aid]
}

// Station returns the frame of a station, creating it on first use.
func (df *DataFrames) Station(aid uint16) *StationDataFrame {
	df.mutex.Lock()
	defer df.mutex.Unlock()

	sdf, ok := df.stations[aid]
	if !ok {
		sdf = &StationDataFrame{steps: make(map[int]*StationStep)}
		df.stations[aid] = sdf
	}
	return sdf
}

func (df *DataFrames) GetAllStations() map[uint16]*StationDataFrame {
	df.mutex.RLock()
	defer df.mutex.RUnlock()

	result := make(map[uint16]*StationDataFrame)
	for k, v := range df.stations {
		result[k] = v
	}
	return result
}

func (sdf *StationDataFrame) AddStep(opportunity int, step *StationStep) {
	sdf.mutex.Lock()
	defer sdf.mutex.Unlock()
	sdf.steps[opportunity] = step
}

func (sdf *StationDataFrame) AddOrMergeStep(opportunity int, step *StationStep) {
	sdf.mutex.Lock()
	defer sdf.mutex.Unlock()

	existing, exists := sdf.steps[opportunity]
	if !exists {
		sdf.steps[opportunity] = step
		return
	}
	if step.RU != nil {
		existing.RU = step.RU
	}
	if step.DownlinkBytes != nil {
		existing.DownlinkBytes = step.DownlinkBytes
	}
	if step.UplinkBytes != nil {
		existing.UplinkBytes = step.UplinkBytes
	}
	if step.BufferStatus != nil {
		existing.BufferStatus = step.BufferStatus
	}
	if step.Credits != nil {
		existing.Credits = step.Credits
	}
	if step.Truncated != nil {
		existing.Truncated = step.Truncated
	}
	if step.Timestamp.After(existing.Timestamp) {
		existing.Timestamp = step.Timestamp
	}
}

func (sdf *StationDataFrame) GetStep(opportunity int) *StationStep {
	sdf.mutex.RLock()
	defer sdf.mutex.RUnlock()
	return sdf.steps[opportunity]
}

func (sdf *StationDataFrame) GetAllSteps() map[int]*StationStep {
	sdf.mutex.RLock()
	defer sdf.mutex.RUnlock()

	result := make(map[int]*StationStep)
	for k, v := range sdf.steps {
		result[k] = v
	}
	return result
}

func (sdf *StationDataFrame) GetLatestStep() *StationStep {
	sdf.mutex.RLock()
	defer sdf.mutex.RUnlock()

	maxStep := -1
	var latest *StationStep
	for step, data := range sdf.steps {
		if step > maxStep {
			maxStep = step
			latest = data
		}
	}
	return latest
}
