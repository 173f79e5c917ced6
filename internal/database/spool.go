package database

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"mu-scheduler/internal/config"
	"mu-scheduler/internal/dataframe"
	"mu-scheduler/internal/datahandeling"
)

type SpoolArtifact struct {
	Version int `json:"version"`

	CreatedAt time.Time `json:"created_at"`

	RunID          int    `json:"run_id"`
	Name           string `json:"name"`
	ConfigChecksum string `json:"config_checksum"`

	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`

	ConfigContent string `json:"config_content"`

	Metrics  *datahandeling.SimulationMetrics `json:"metrics"`
	Metadata *RunMetadata                     `json:"metadata"`
	Cycles   []*dataframe.CycleStep           `json:"cycles,omitempty"`
}

func DefaultSpoolDir() string {
	if v := strings.TrimSpace(os.Getenv("MU_SCHEDULER_SPOOL_DIR")); v != "" {
		return v
	}
	return "spool"
}

// WriteSpoolArtifact writes a gzip-compressed JSON artifact to disk atomically.
// It returns the final file path.
func WriteSpoolArtifact(dir string, artifact *SpoolArtifact) (string, error) {
	if artifact == nil {
		return "", fmt.Errorf("spool artifact is nil")
	}
	if dir == "" {
		dir = DefaultSpoolDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	checksum := artifact.ConfigChecksum
	if checksum == "" {
		checksum = "nocsum"
	}
	name := fmt.Sprintf(
		"run_%d_%s_%s.json.gz",
		artifact.RunID,
		artifact.CreatedAt.UTC().Format("20060102T150405Z"),
		checksum,
	)
	finalPath := filepath.Join(dir, name)

	tmp, err := os.CreateTemp(dir, name+".tmp.*")
	if err != nil {
		return "", err
	}
	tmpPath := tmp.Name()

	ok := false
	defer func() {
		_ = tmp.Close()
		if !ok {
			_ = os.Remove(tmpPath)
		}
	}()

	gz := gzip.NewWriter(tmp)
	enc := json.NewEncoder(gz)
	enc.SetIndent("", "  ")
	if err := enc.Encode(artifact); err != nil {
		_ = gz.Close()
		return "", err
	}
	if err := gz.Close(); err != nil {
		return "", err
	}
	if err := tmp.Sync(); err != nil {
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", err
	}
	ok = true
	return finalPath, nil
}

// ReadSpoolArtifact loads an artifact written by WriteSpoolArtifact.
func ReadSpoolArtifact(path string) (*SpoolArtifact, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer gz.Close()

	var artifact SpoolArtifact
	if err := json.NewDecoder(gz).Decode(&artifact); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &artifact, nil
}

// BuildSpoolArtifact constructs a spool artifact from the in-memory run results.
func BuildSpoolArtifact(
	runID int,
	cfg *config.SimulationConfig,
	configContent string,
	metrics *datahandeling.SimulationMetrics,
	metadata *RunMetadata,
	dataframes *dataframe.DataFrames,
	startTime, endTime time.Time,
) *SpoolArtifact {
	name := ""
	checksum := ""
	if cfg != nil {
		name = cfg.Simulation.Name
		if cs, err := config.Checksum(cfg); err == nil {
			checksum = cs
		}
	}
	if metadata != nil {
		if checksum == "" {
			checksum = metadata.ConfigChecksum
		}
		if name == "" {
			name = metadata.Name
		}
	}
	var cycles []*dataframe.CycleStep
	if dataframes != nil {
		cycles = dataframes.GetAllCycles()
	}

	return &SpoolArtifact{
		Version:        1,
		CreatedAt:      time.Now(),
		RunID:          runID,
		Name:           name,
		ConfigChecksum: checksum,
		StartTime:      startTime,
		EndTime:        endTime,
		ConfigContent:  configContent,
		Metrics:        metrics,
		Metadata:       metadata,
		Cycles:         cycles,
	}
}
