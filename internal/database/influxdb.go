package database

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"mu-scheduler/internal/config"
	"mu-scheduler/internal/dataframe"
	"mu-scheduler/internal/datahandeling"
	"mu-scheduler/internal/logging"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/sirupsen/logrus"
)

const (
	measurementCycles   = "mu_cycles"
	measurementStations = "mu_stations"
	measurementMeta     = "mu_meta"
)

// RunMetadata describes one simulation run.
type RunMetadata struct {
	RunID          int     `json:"run_id"`
	Name           string  `json:"name"`
	Description    string  `json:"description"`
	ConfigChecksum string  `json:"config_checksum"`
	Started        string  `json:"started"`  // RFC3339 timestamp
	Finished       string  `json:"finished"` // RFC3339 timestamp
	WallSeconds    float64 `json:"wall_seconds"`
	AirtimeSeconds float64 `json:"airtime_seconds"`
	Opportunities  int     `json:"opportunities"`
	Stations       int     `json:"stations"`
	ChannelWidth   int     `json:"channel_width"`
	DlPolicy       string  `json:"dl_policy"`
	UlPolicy       string  `json:"ul_policy"`
	Fairness       float64 `json:"fairness"`
	DriverVersion  string  `json:"driver_version"`
	Hostname       string  `json:"hostname"`
	OSInfo         string  `json:"os_info"`
	ConfigFile     string  `json:"config_file"`
}

type InfluxDBClient struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	queryAPI api.QueryAPI
	bucket   string
	org      string
}

func NewInfluxDBClient(config config.DatabaseConfig) (*InfluxDBClient, error) {
	logger := logging.GetLogger()

	client := influxdb2.NewClient(config.Host, config.Password)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	health, err := client.Health(ctx)
	if err != nil {
		logger.WithField("host", config.Host).WithError(err).Error("Failed to connect to InfluxDB")
		client.Close()
		return nil, err
	}

	if health.Status != "pass" {
		logger.WithFields(logrus.Fields{
			"host":   config.Host,
			"status": health.Status,
		}).Error("InfluxDB health check failed")
		client.Close()
		return nil, fmt.Errorf("influxdb at %s is not healthy: %s", config.Host, health.Status)
	}

	logger.WithFields(logrus.Fields{
		"host":   config.Host,
		"bucket": config.Name,
		"org":    config.Org,
	}).Info("Connected to InfluxDB")

	return &InfluxDBClient{
		client:   client,
		writeAPI: client.WriteAPIBlocking(config.Org, config.Name),
		queryAPI: client.QueryAPI(config.Org),
		bucket:   config.Name,
		org:      config.Org,
	}, nil
}

// GetLastRunID returns the highest run id written in the last 30 days.
func (idb *InfluxDBClient) GetLastRunID(ctx context.Context) (int, error) {
	query := fmt.Sprintf(`
		from(bucket: "%s")
		|> range(start: -30d)
		|> filter(fn: (r) => r._measurement == "%s")
		|> distinct(column: "run_id")
		|> map(fn: (r) => ({_value: int(v: r.run_id)}))
		|> max()
		|> yield(name: "max_run_id")
	`, idb.bucket, measurementMeta)

	result, err := idb.queryAPI.Query(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to query last run ID: %w", err)
	}
	defer result.Close()

	maxID := 0
	for result.Next() {
		if id, ok := result.Record().Value().(int64); ok {
			maxID = int(id)
		}
	}
	if result.Err() != nil {
		return 0, fmt.Errorf("error reading query results: %w", result.Err())
	}
	return maxID, nil
}

func (idb *InfluxDBClient) WriteDataFrames(ctx context.Context, runID int, dataframes *dataframe.DataFrames) error {
	points := append(CyclePoints(runID, dataframes), StationPoints(runID, dataframes)...)
	if len(points) == 0 {
		return nil
	}
	if err := idb.writeAPI.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("failed to write data points: %w", err)
	}
	return nil
}

func (idb *InfluxDBClient) WriteMetadata(ctx context.Context, metadata *RunMetadata) error {
	if err := idb.writeAPI.WritePoint(ctx, MetadataPoint(metadata, time.Now())); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	return nil
}

func (idb *InfluxDBClient) Close() {
	if idb.client != nil {
		idb.client.Close()
	}
}

func runTags(runID int) map[string]string {
	return map[string]string{"run_id": strconv.Itoa(runID)}
}

// CyclePoints builds one point per opportunity.
func CyclePoints(runID int, dataframes *dataframe.DataFrames) []*write.Point {
	var points []*write.Point
	for _, c := range dataframes.GetAllCycles() {
		tags := runTags(runID)
		tags["format"] = c.Format
		tags["ac"] = c.AC

		fields := map[string]interface{}{
			"opportunity": c.Opportunity,
			"candidates":  c.Candidates,
			"served":      c.Served,
			"truncated":   c.Truncated,
			"duration_us": c.Duration.Microseconds(),
			"units_used":  c.UnitsUsed,
			"units_total": c.UnitsTotal,
		}
		if c.Reason != "" {
			fields["reason"] = c.Reason
		}
		for class, n := range c.RUClasses {
			fields["ru_"+class] = n
		}
		points = append(points, influxdb2.NewPoint(measurementCycles, tags, fields, c.Timestamp))
	}
	return points
}

// StationPoints builds one point per station and opportunity it took part in.
func StationPoints(runID int, dataframes *dataframe.DataFrames) []*write.Point {
	var points []*write.Point
	for aid, sdf := range dataframes.GetAllStations() {
		for n, step := range sdf.GetAllSteps() {
			tags := runTags(runID)
			tags["aid"] = strconv.Itoa(int(aid))

			fields := map[string]interface{}{"opportunity": n}
			if step.RU != nil {
				fields["ru"] = *step.RU
			}
			if step.DownlinkBytes != nil {
				fields["downlink_bytes"] = *step.DownlinkBytes
			}
			if step.UplinkBytes != nil {
				fields["uplink_bytes"] = *step.UplinkBytes
			}
			if step.BufferStatus != nil {
				fields["buffer_status"] = *step.BufferStatus
			}
			if step.Credits != nil {
				fields["credits"] = *step.Credits
			}
			if step.Truncated != nil {
				fields["truncated"] = *step.Truncated
			}
			points = append(points, influxdb2.NewPoint(measurementStations, tags, fields, step.Timestamp))
		}
	}
	return points
}

func MetadataPoint(metadata *RunMetadata, ts time.Time) *write.Point {
	return influxdb2.NewPoint(measurementMeta,
		runTags(metadata.RunID),
		map[string]interface{}{
			"name":            metadata.Name,
			"description":     metadata.Description,
			"config_checksum": metadata.ConfigChecksum,
			"started":         metadata.Started,
			"finished":        metadata.Finished,
			"wall_seconds":    metadata.WallSeconds,
			"airtime_seconds": metadata.AirtimeSeconds,
			"opportunities":   metadata.Opportunities,
			"stations":        metadata.Stations,
			"channel_width":   metadata.ChannelWidth,
			"dl_policy":       metadata.DlPolicy,
			"ul_policy":       metadata.UlPolicy,
			"fairness":        metadata.Fairness,
			"driver_version":  metadata.DriverVersion,
			"hostname":        metadata.Hostname,
			"os_info":         metadata.OSInfo,
			"config_file":     metadata.ConfigFile,
		},
		ts)
}

func CollectRunMetadata(runID int, cfg *config.SimulationConfig, configContent string, metrics *datahandeling.SimulationMetrics, startTime, endTime time.Time, driverVersion string) (*RunMetadata, error) {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	checksum, err := config.Checksum(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to checksum config: %w", err)
	}
	opts, err := cfg.SchedulerOptions()
	if err != nil {
		return nil, err
	}

	meta := &RunMetadata{
		RunID:          runID,
		Name:           cfg.Simulation.Name,
		Description:    cfg.Simulation.Description,
		ConfigChecksum: checksum,
		Started:        startTime.Format(time.RFC3339),
		Finished:       endTime.Format(time.RFC3339),
		WallSeconds:    endTime.Sub(startTime).Seconds(),
		Stations:       len(cfg.Stations),
		ChannelWidth:   cfg.Simulation.Channel.Width,
		DlPolicy:       opts.DownlinkPolicy.String(),
		UlPolicy:       opts.UplinkPolicy.String(),
		DriverVersion:  driverVersion,
		Hostname:       hostname,
		OSInfo:         runtime.GOOS + "/" + runtime.GOARCH,
		ConfigFile:     configContent,
	}
	if metrics != nil {
		meta.Opportunities = metrics.Opportunities
		meta.AirtimeSeconds = metrics.Airtime.Seconds()
		meta.Fairness = metrics.Fairness
	}
	return meta, nil
}
