package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mu-scheduler/internal/config"
	"mu-scheduler/internal/database"
	"mu-scheduler/internal/dataframe"
	"mu-scheduler/internal/datahandeling"
	"mu-scheduler/internal/logging"
	"mu-scheduler/internal/metrics"
	"mu-scheduler/internal/phy"
	"mu-scheduler/internal/scheduler"
	"mu-scheduler/internal/sim"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type simulation struct {
	configFile    string
	config        *config.SimulationConfig
	configContent string
	world         *sim.World
	model         *phy.HEModel
	scheduler     *scheduler.Scheduler
	metricsServer *metrics.Server
	dataframes    *dataframe.DataFrames
	dataHandler   datahandeling.DataHandler
	runID         int
	startTime     time.Time
	endTime       time.Time
	interrupted   bool
}

func newRunCmd() *cobra.Command {
	var configFile, metricsListen string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a simulation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulation(configFile, metricsListen)
		},
	}
	cmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to simulation configuration file")
	cmd.Flags().StringVar(&metricsListen, "metrics-listen", "", "Serve Prometheus metrics on this address (overrides the config)")
	cmd.MarkFlagRequired("config")
	return cmd
}

func runSimulation(configFile, metricsListen string) error {
	logger := logging.GetLogger()

	s := &simulation{
		configFile:  configFile,
		dataHandler: datahandeling.NewDefaultDataHandler(),
	}

	var err error
	s.config, s.configContent, err = config.LoadConfigWithContent(configFile)
	if err != nil {
		logger.WithField("config_file", configFile).WithError(err).Error("Failed to load configuration")
		return fmt.Errorf("failed to load config: %w", err)
	}

	// The --log-level flag wins over the configured level
	if logLevel == "" {
		level := s.config.Simulation.LogLevel
		if err := logging.SetLogLevel(level); err != nil {
			logger.WithField("log_level", level).WithError(err).Warn("Invalid log level in config, using INFO")
			logging.SetLogLevel("info")
		} else {
			logging.SetSchedulerLogLevel(level)
			logger.WithField("log_level", level).Debug("Log level set from configuration")
		}
	}

	if metricsListen != "" {
		s.config.Simulation.Data.MetricsListen = metricsListen
	}

	if err := s.setup(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := s.execute(ctx); err != nil {
		return err
	}
	return s.writeResults(context.Background())
}

// setup builds the simulated world, the timing model and the scheduler.
func (s *simulation) setup() error {
	logger := logging.GetLogger()

	width, err := s.config.ChannelWidth()
	if err != nil {
		return err
	}
	opts, err := s.config.SchedulerOptions()
	if err != nil {
		return err
	}

	profiles, err := buildProfiles(s.config)
	if err != nil {
		return err
	}
	s.world, err = sim.NewWorld(width, profiles, s.config.Simulation.Seed)
	if err != nil {
		return fmt.Errorf("failed to create world: %w", err)
	}
	s.model, err = buildTimingModel(s.config)
	if err != nil {
		return err
	}

	s.scheduler, err = scheduler.New(opts, s.world, s.model, logging.GetSchedulerLogger())
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	s.metricsServer = metrics.NewServer(s.config.Simulation.Data.MetricsListen)
	s.scheduler.AddObserver(metrics.NewSchedulerMetrics(s.metricsServer.Registry()))

	logger.WithFields(logrus.Fields{
		"name":          s.config.Simulation.Name,
		"width":         width.String(),
		"stations":      len(profiles),
		"opportunities": s.config.Simulation.Opportunities,
		"dl_policy":     opts.DownlinkPolicy.String(),
		"ul_policy":     opts.UplinkPolicy.String(),
	}).Info("Simulation configured")
	return nil
}

// execute plays the simulation and, when configured, serves metrics until it
// finishes. An interrupt stops the run early but keeps the partial trace.
func (s *simulation) execute(ctx context.Context) error {
	logger := logging.GetLogger()

	runner := sim.NewRunner(s.scheduler, s.world, s.model, sim.RunOptions{
		Opportunities: s.config.Simulation.Opportunities,
		TxopLimit:     s.config.Simulation.Channel.TxopLimit,
		ProgressEvery: progressInterval(s.config.Simulation.Opportunities),
	})

	g, gctx := errgroup.WithContext(ctx)
	serveCtx, stopServing := context.WithCancel(gctx)
	defer stopServing()

	s.startTime = time.Now()
	g.Go(func() error {
		defer stopServing()
		_, err := runner.Run(gctx)
		if errors.Is(err, context.Canceled) {
			s.interrupted = true
			return nil
		}
		return err
	})
	if s.config.Simulation.Data.MetricsListen != "" {
		g.Go(func() error {
			return s.metricsServer.Run(serveCtx)
		})
	}

	err := g.Wait()
	s.endTime = time.Now()
	s.dataframes = runner.DataFrames()
	if err != nil {
		logger.WithError(err).Error("Simulation failed")
		return fmt.Errorf("simulation failed: %w", err)
	}

	fields := logrus.Fields{
		"cycles":  len(s.dataframes.GetAllCycles()),
		"airtime": runner.Elapsed(),
		"wall":    s.endTime.Sub(s.startTime),
	}
	if s.interrupted {
		logger.WithFields(fields).Warn("Simulation interrupted, keeping partial trace")
	} else {
		logger.WithFields(fields).Info("Simulation finished")
	}
	return nil
}

// writeResults summarizes the trace and hands it to the configured sinks.
func (s *simulation) writeResults(ctx context.Context) error {
	logger := logging.GetLogger()

	logger.Info("Processing dataframes through data handler")
	summary, err := s.dataHandler.ProcessDataFrames(s.config, s.dataframes)
	if err != nil {
		logger.WithError(err).Error("Failed to process dataframes")
		return fmt.Errorf("failed to process dataframes: %w", err)
	}
	logSummary(logger, summary)

	var dbClient *database.InfluxDBClient
	if s.config.Simulation.Data.DB.Enabled() {
		dbClient, err = database.NewInfluxDBClient(s.config.Simulation.Data.DB)
		if err != nil {
			logger.WithError(err).Error("Failed to connect to InfluxDB")
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer dbClient.Close()

		lastID, err := dbClient.GetLastRunID(ctx)
		if err != nil {
			logger.WithError(err).Warn("Failed to query last run ID, starting at 1")
		}
		s.runID = lastID + 1
	}

	metadata, err := database.CollectRunMetadata(s.runID, s.config, s.configContent, summary, s.startTime, s.endTime, Version)
	if err != nil {
		logger.WithError(err).Error("Failed to collect metadata")
		return fmt.Errorf("failed to collect metadata: %w", err)
	}

	if dbClient != nil {
		logger.WithField("run_id", s.runID).Info("Writing data to database")
		if err := dbClient.WriteDataFrames(ctx, s.runID, s.dataframes); err != nil {
			logger.WithError(err).Error("Failed to export data")
			return fmt.Errorf("failed to export data: %w", err)
		}
		if err := dbClient.WriteMetadata(ctx, metadata); err != nil {
			logger.WithError(err).Error("Failed to export metadata")
			return fmt.Errorf("failed to export metadata: %w", err)
		}
	}

	artifact := database.BuildSpoolArtifact(s.runID, s.config, s.configContent, summary, metadata, s.dataframes, s.startTime, s.endTime)
	path, err := database.WriteSpoolArtifact(s.config.Simulation.Data.SpoolDir, artifact)
	if err != nil {
		logger.WithError(err).Error("Failed to write spool artifact")
		return fmt.Errorf("failed to write spool artifact: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"run_id":   s.runID,
		"artifact": path,
		"duration": s.endTime.Sub(s.startTime),
	}).Info("Simulation completed")
	return nil
}

func progressInterval(opportunities int) int {
	if opportunities < 10 {
		return 0
	}
	return opportunities / 10
}

// buildProfiles converts the station entries into simulator profiles in
// index order.
func buildProfiles(cfg *config.SimulationConfig) ([]sim.StationProfile, error) {
	stations := cfg.GetStationsSorted()
	profiles := make([]sim.StationProfile, 0, len(stations))
	for _, st := range stations {
		addr, err := st.ParsedAddress()
		if err != nil {
			return nil, fmt.Errorf("station %s: %w", st.KeyName, err)
		}
		profiles = append(profiles, sim.StationProfile{
			AID:                       uint16(st.Index),
			Address:                   addr,
			HE:                        st.SupportsHE(),
			EHT:                       st.EHT,
			TIDs:                      st.GetTIDs(),
			DownlinkTID:               uint8(st.Downlink.TID),
			FrameSize:                 uint32(st.Downlink.FrameSize),
			FramesPerOpportunity:      st.Downlink.FramesPerOpportunity,
			UplinkBytesPerOpportunity: uint64(st.Uplink.BytesPerOpportunity),
			LeaveAfter:                st.LeaveAfter,
		})
	}
	return profiles, nil
}

// buildTimingModel applies the channel MCS and any per-station overrides.
func buildTimingModel(cfg *config.SimulationConfig) (*phy.HEModel, error) {
	model, err := phy.NewHEModel(uint8(cfg.Simulation.Channel.MCS))
	if err != nil {
		return nil, fmt.Errorf("channel mcs: %w", err)
	}
	for _, st := range cfg.GetStationsSorted() {
		if st.MCS == nil {
			continue
		}
		addr, err := st.ParsedAddress()
		if err != nil {
			return nil, fmt.Errorf("station %s: %w", st.KeyName, err)
		}
		if err := model.SetStationMCS(addr, uint8(*st.MCS)); err != nil {
			return nil, fmt.Errorf("station %s: %w", st.KeyName, err)
		}
	}
	return model, nil
}

func logSummary(logger logrus.FieldLogger, summary *datahandeling.SimulationMetrics) {
	fields := logrus.Fields{
		"opportunities":    summary.Opportunities,
		"airtime":          summary.Airtime,
		"mean_utilization": fmt.Sprintf("%.3f", summary.MeanUtilization),
		"truncations":      summary.Truncations,
		"fairness":         fmt.Sprintf("%.3f", summary.Fairness),
	}
	for format, count := range summary.Formats {
		fields["format_"+format] = count
	}
	logger.WithFields(fields).Info("Simulation summary")

	for kind, q := range summary.Durations {
		logger.WithFields(logrus.Fields{
			"kind":    kind,
			"samples": q.Samples,
			"mean":    q.Mean,
			"p50":     q.P50,
			"p90":     q.P90,
			"p99":     q.P99,
		}).Info("Duration quantiles")
	}
	for _, st := range summary.Stations {
		logger.WithFields(logrus.Fields{
			"aid":            st.AID,
			"name":           st.Name,
			"downlink_bytes": st.DownlinkBytes,
			"uplink_bytes":   st.UplinkBytes,
			"grants":         st.Grants,
			"truncated":      st.Truncated,
		}).Debug("Station summary")
	}
}
