// Copyright (c) 2026 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.8.9
//

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gonum.org/v1/gonum/mat"

	"github.com/mkhts/gorloc"
	"github.com/mkhts/gorloc/internal/wifiscan"
)

var (
	version = "dev"
	cfgFile string
	verbose bool
	debug   bool
	format  string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "gorloc",
	Short: "Locate a radio source from ranging and received power readings",
	Long: `gorloc estimates the position of a radio source, and optionally its
transmitted power and path loss exponent, from distance and received
power readings taken at known anchor positions.

Readings are given in a simple text format, one reading per line:

  ranging <coords> <distance> <distance sd>
  rssi    <coords> <level> <level sd>
  dual    <coords> <distance> <distance sd> <level> <level sd>

where <coords> is the anchor position (one column per dimension),
distances are in meters and levels in dBm.`,
	Version: version,
	Example: `  # Estimate from a readings file with plain least squares
  gorloc locate readings.txt

  # Robust estimation against outlier readings
  gorloc locate --estimator ransac readings.txt

  # Generate synthetic readings and estimate in one go
  gorloc simulate --ranging 10 --outliers 2 | gorloc locate --estimator msac`,
}

// locateCmd represents the locate command
var locateCmd = &cobra.Command{
	Use:   "locate [readings-file]",
	Short: "Estimate the source position from a readings file",
	Long: `Read ranging and received power readings from a file (or stdin when
no file is given) and estimate the source position.

By default the transmitted power is estimated alongside the position
and the path loss exponent is held fixed. Use --est-path-loss to
estimate the exponent too, or --est-power=false with --power to treat
the transmitted power as known.

With --estimator mixed the readings are combined in one weighted least
squares estimation. Any other estimator name selects a consensus
search (ransac, msac, lmeds, prosac, promeds) that tolerates outlier
readings; prosac and promeds additionally need one quality score per
reading via --scores. --sequential runs the consensus phases with
independently chosen methods (see --rssi-estimator).`,
	Args: cobra.MaximumNArgs(1),
	RunE: locateRun,
	Example: `  # Plain estimation from a file, 2D
  gorloc locate readings.txt

  # Robust 3D estimation with a fixed seed
  gorloc locate --dims 3 --estimator lmeds --seed 42 readings.txt

  # Known transmitted power, estimate position only
  gorloc locate --est-power=false --power -50 readings.txt

  # PROSAC with per-reading quality scores
  gorloc locate --estimator prosac --scores 0.9,0.8,0.7,0.6,0.5 readings.txt`,
}

// simulateCmd represents the simulate command
var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Generate synthetic readings for a known source",
	Long: `Generate synthetic ranging and received power readings for a source
at a known position, with Gaussian noise and optionally a number of
grossly corrupted outlier readings. Anchors are placed on a circle
(2D) or on staggered elevation rings (3D) around the origin.

The readings are written to stdout in the format locate reads, with
the ground truth recorded in a comment line.`,
	RunE: simulateRun,
	Example: `  # Ten ranging readings around a source at (3, 4)
  gorloc simulate --ranging 10 --pos 3,4

  # Received power only, two outliers
  gorloc simulate --ranging 0 --rssi 8 --outliers 2

  # Pipe straight into a robust estimation
  gorloc simulate --ranging 10 --outliers 2 | gorloc locate --estimator ransac`,
}

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for nearby access points and display their BSSIDs",
	Long: `Scan for nearby access points using the system's wireless interface
via nl80211. The scan identifies candidate sources by BSSID; pair the
identities with externally measured levels to build a readings file.

Note: signal strength values are not available from the scan results,
only the BSSID and SSID of each access point.`,
	RunE: scanRun,
	Example: `  # Scan for access points
  gorloc scan

  # Scan with a longer deadline, JSON output
  gorloc scan --timeout 60s --format json`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/gorloc/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "debug output")

	// Locate command flags
	locateCmd.Flags().StringVarP(&format, "format", "f", "table", "output format (table, json)")
	locateCmd.Flags().Int("dims", 2, "number of position dimensions")
	locateCmd.Flags().String("estimator", "mixed", "estimator (mixed, ransac, msac, lmeds, prosac, promeds)")
	locateCmd.Flags().Bool("sequential", false, "run the consensus phases with per-phase methods")
	locateCmd.Flags().String("rssi-estimator", "", "consensus method for the received power phase (default: same as --estimator)")
	locateCmd.Flags().Bool("est-power", true, "estimate the transmitted power")
	locateCmd.Flags().Bool("est-path-loss", false, "estimate the path loss exponent")
	locateCmd.Flags().String("init-pos", "", "initial position guess, e.g. 1.5,2.0")
	locateCmd.Flags().Float64("power", 0, "transmitted power in dBm (required with --est-power=false)")
	locateCmd.Flags().Float64("power-mw", 0, "transmitted power in mW (alternative to --power)")
	locateCmd.Flags().Float64("path-loss", 2.0, "path loss exponent (initial value when estimated)")
	locateCmd.Flags().Bool("homogeneous", false, "use the homogeneous closed form for the initial position")
	locateCmd.Flags().Float64("ranging-threshold", 0.1, "inlier threshold for distance residuals (m)")
	locateCmd.Flags().Float64("rssi-threshold", 6.0, "inlier threshold for level residuals (dB)")
	locateCmd.Flags().Float64("confidence", 0.99, "consensus confidence for the adaptive iteration bound")
	locateCmd.Flags().Int("max-iterations", 5000, "consensus iteration cap")
	locateCmd.Flags().Int("subset-size", 0, "consensus subset size (0 = minimal for the fit)")
	locateCmd.Flags().Bool("refine", true, "refine the consensus result on its inlier set")
	locateCmd.Flags().Bool("keep-covariance", true, "keep the covariance of the refined result")
	locateCmd.Flags().String("scores", "", "comma separated per-reading quality scores (prosac, promeds)")
	locateCmd.Flags().Int64("seed", 0, "random seed for the consensus search (0 = clock)")

	// Simulate command flags
	simulateCmd.Flags().Int("dims", 2, "number of position dimensions")
	simulateCmd.Flags().String("pos", "3,4", "true source position")
	simulateCmd.Flags().Float64("power", -50.0, "true transmitted power (dBm)")
	simulateCmd.Flags().Float64("path-loss", 2.0, "true path loss exponent")
	simulateCmd.Flags().Int("ranging", 8, "number of ranging readings")
	simulateCmd.Flags().Int("rssi", 0, "number of received power readings")
	simulateCmd.Flags().Int("dual", 0, "number of readings carrying both measurements")
	simulateCmd.Flags().Float64("radius", 10.0, "anchor ring radius (m)")
	simulateCmd.Flags().Float64("ranging-noise", 0.1, "distance noise sigma (m)")
	simulateCmd.Flags().Float64("rssi-noise", 1.0, "level noise sigma (dB)")
	simulateCmd.Flags().Int("outliers", 0, "number of corrupted readings")
	simulateCmd.Flags().Float64("outlier-scale", 4.0, "distance scale applied to corrupted readings")
	simulateCmd.Flags().Int64("seed", 1, "random seed")

	// Scan command flags
	scanCmd.Flags().StringVarP(&format, "format", "f", "table", "output format (table, json)")
	scanCmd.Flags().Duration("timeout", 30*time.Second, "overall scan deadline")

	// Bind flags to viper
	if err := viper.BindPFlag("locate.estimator", locateCmd.Flags().Lookup("estimator")); err != nil {
		panic(fmt.Sprintf("failed to bind locate.estimator flag: %v", err))
	}
	if err := viper.BindPFlag("locate.confidence", locateCmd.Flags().Lookup("confidence")); err != nil {
		panic(fmt.Sprintf("failed to bind locate.confidence flag: %v", err))
	}
	if err := viper.BindPFlag("locate.max_iterations", locateCmd.Flags().Lookup("max-iterations")); err != nil {
		panic(fmt.Sprintf("failed to bind locate.max_iterations flag: %v", err))
	}
	if err := viper.BindPFlag("locate.ranging_threshold", locateCmd.Flags().Lookup("ranging-threshold")); err != nil {
		panic(fmt.Sprintf("failed to bind locate.ranging_threshold flag: %v", err))
	}
	if err := viper.BindPFlag("locate.rssi_threshold", locateCmd.Flags().Lookup("rssi-threshold")); err != nil {
		panic(fmt.Sprintf("failed to bind locate.rssi_threshold flag: %v", err))
	}

	rootCmd.AddCommand(locateCmd)
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(scanCmd)
}

// initConfig reads in config file and ENV variables
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Search config in the XDG config directory and current directory
		configDir := xdg.ConfigHome + "/gorloc"
		viper.AddConfigPath(configDir)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// Environment variables
	viper.SetEnvPrefix("GORLOC")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// If a config file is found, read it in
	if err := viper.ReadInConfig(); err == nil {
		if verbose {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}

func setupLogger() *logrus.Logger {
	logger := logrus.New()

	if debug {
		logger.SetLevel(logrus.TraceLevel)
	} else if verbose {
		logger.SetLevel(logrus.InfoLevel)
	} else {
		logger.SetLevel(logrus.WarnLevel)
	}

	// Use structured logging for JSON output
	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			DisableTimestamp: true,
		})
	}

	return logger
}

// estimator is the configuration and query surface shared by the
// mixed and consensus based estimators
type estimator interface {
	SetReadings([]*gorloc.Reading) error
	SetInitialPosition(gorloc.Point) error
	SetInitialPowerDBm(float64) error
	SetInitialPowerMW(float64) error
	SetInitialPathLoss(float64) error
	SetPowerEstimationEnabled(bool) error
	SetPathLossEstimationEnabled(bool) error
	SetHomogeneousInit(bool) error
	SetListener(gorloc.EstimationListener) error
	IsReady() bool
	Estimate() (*gorloc.Estimate, error)
	RssiFallback() bool
	Position() gorloc.Point
	PowerDBm() *float64
	PowerMW() *float64
	PathLossExponent() *float64
	PositionCovariance() *mat.SymDense
	PowerVariance() *float64
	PathLossVariance() *float64
}

// robustTuner is the extra surface of the consensus based estimators
type robustTuner interface {
	SetRangingThreshold(float64) error
	SetRssiThreshold(float64) error
	SetConfidence(float64) error
	SetMaxIterations(int) error
	SetSubsetSize(int) error
	SetRefineResult(bool) error
	SetKeepCovariance(bool) error
	SetQualityScores([]float64) error
	SetSeed(int64) error
}

// inlierReporter is satisfied by estimators that judge readings
type inlierReporter interface {
	Inliers() *gorloc.InliersData
}

// buildEstimator constructs and configures the estimator selected by
// the locate flags
func buildEstimator(cmd *cobra.Command, dims int) (estimator, error) {
	name := viper.GetString("locate.estimator")
	sequential, _ := cmd.Flags().GetBool("sequential")

	var est estimator
	if strings.EqualFold(name, "mixed") {
		if sequential {
			return nil, fmt.Errorf("--sequential needs a consensus method, not %q", name)
		}
		e, err := gorloc.NewMixedEstimator(dims)
		if err != nil {
			return nil, err
		}
		est = e
	} else {
		method, err := gorloc.ParseMethod(name)
		if err != nil {
			return nil, err
		}
		if sequential {
			e, err := gorloc.NewSequentialEstimator(dims, method)
			if err != nil {
				return nil, err
			}
			if name, _ := cmd.Flags().GetString("rssi-estimator"); name != "" {
				rssiMethod, err := gorloc.ParseMethod(name)
				if err != nil {
					return nil, err
				}
				if err := e.SetRssiRobust(rssiMethod); err != nil {
					return nil, err
				}
			}
			est = e
		} else {
			e, err := gorloc.NewRobustMixedEstimator(dims, method)
			if err != nil {
				return nil, err
			}
			est = e
		}
	}

	if tuner, ok := est.(robustTuner); ok {
		if err := tuner.SetRangingThreshold(viper.GetFloat64("locate.ranging_threshold")); err != nil {
			return nil, err
		}
		if err := tuner.SetRssiThreshold(viper.GetFloat64("locate.rssi_threshold")); err != nil {
			return nil, err
		}
		if err := tuner.SetConfidence(viper.GetFloat64("locate.confidence")); err != nil {
			return nil, err
		}
		if err := tuner.SetMaxIterations(viper.GetInt("locate.max_iterations")); err != nil {
			return nil, err
		}
		if n, _ := cmd.Flags().GetInt("subset-size"); n > 0 {
			if err := tuner.SetSubsetSize(n); err != nil {
				return nil, err
			}
		}
		refine, _ := cmd.Flags().GetBool("refine")
		if err := tuner.SetRefineResult(refine); err != nil {
			return nil, err
		}
		keepCov, _ := cmd.Flags().GetBool("keep-covariance")
		if err := tuner.SetKeepCovariance(keepCov); err != nil {
			return nil, err
		}
		if s, _ := cmd.Flags().GetString("scores"); s != "" {
			scores, err := parseScores(s)
			if err != nil {
				return nil, err
			}
			if err := tuner.SetQualityScores(scores); err != nil {
				return nil, err
			}
		}
		seed, _ := cmd.Flags().GetInt64("seed")
		if err := tuner.SetSeed(seed); err != nil {
			return nil, err
		}
	}

	estPower, _ := cmd.Flags().GetBool("est-power")
	if err := est.SetPowerEstimationEnabled(estPower); err != nil {
		return nil, err
	}
	estPathLoss, _ := cmd.Flags().GetBool("est-path-loss")
	if err := est.SetPathLossEstimationEnabled(estPathLoss); err != nil {
		return nil, err
	}
	if s, _ := cmd.Flags().GetString("init-pos"); s != "" {
		p, err := parsePoint(s, dims)
		if err != nil {
			return nil, err
		}
		if err := est.SetInitialPosition(p); err != nil {
			return nil, err
		}
	}
	if cmd.Flags().Changed("power") {
		dbm, _ := cmd.Flags().GetFloat64("power")
		if err := est.SetInitialPowerDBm(dbm); err != nil {
			return nil, err
		}
	} else if cmd.Flags().Changed("power-mw") {
		mw, _ := cmd.Flags().GetFloat64("power-mw")
		if err := est.SetInitialPowerMW(mw); err != nil {
			return nil, err
		}
	}
	pathLoss, _ := cmd.Flags().GetFloat64("path-loss")
	if err := est.SetInitialPathLoss(pathLoss); err != nil {
		return nil, err
	}
	homogeneous, _ := cmd.Flags().GetBool("homogeneous")
	if err := est.SetHomogeneousInit(homogeneous); err != nil {
		return nil, err
	}

	return est, nil
}

func locateRun(cmd *cobra.Command, args []string) error {
	logger := setupLogger()
	gorloc.SetLogger(logger)

	dims, _ := cmd.Flags().GetInt("dims")
	if !gorloc.ValidDims(dims) {
		return fmt.Errorf("dims must be 2 or 3, got %d", dims)
	}

	in := os.Stdin
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open readings: %v", err)
		}
		defer f.Close()
		in = f
	}
	readings, err := parseReadings(in, dims)
	if err != nil {
		return err
	}
	logger.WithField("readings", len(readings)).Info("readings loaded")

	est, err := buildEstimator(cmd, dims)
	if err != nil {
		return err
	}
	if err := est.SetReadings(readings); err != nil {
		return err
	}
	if verbose || debug {
		if err := est.SetListener(&gorloc.LogListener{Name: "locate"}); err != nil {
			return err
		}
	}

	if !est.IsReady() {
		logger.Warn("estimator reports not ready, estimation will likely fail")
	}
	if _, err := est.Estimate(); err != nil {
		return err
	}

	return printResult(est, len(readings))
}

// locateResult is the JSON shape of one estimation
type locateResult struct {
	Position   []float64 `json:"position"`
	PositionSd []float64 `json:"position_sd,omitempty"`
	PowerDBm   *float64  `json:"power_dbm,omitempty"`
	PowerMW    *float64  `json:"power_mw,omitempty"`
	PowerSd    *float64  `json:"power_sd,omitempty"`
	PathLoss   *float64  `json:"path_loss,omitempty"`
	PathLossSd *float64  `json:"path_loss_sd,omitempty"`
	Fallback   bool      `json:"rssi_fallback"`
	Inliers    *int      `json:"inliers,omitempty"`
	Readings   int       `json:"readings"`
}

// printResult reports the estimate held by the estimator
func printResult(est estimator, nReadings int) error {
	res := locateResult{
		Position: est.Position(),
		PowerDBm: est.PowerDBm(),
		PowerMW:  est.PowerMW(),
		PathLoss: est.PathLossExponent(),
		Fallback: est.RssiFallback(),
		Readings: nReadings,
	}
	if cov := est.PositionCovariance(); cov != nil {
		res.PositionSd = make([]float64, cov.SymmetricDim())
		for i := range res.PositionSd {
			res.PositionSd[i] = math.Sqrt(cov.At(i, i))
		}
	}
	if v := est.PowerVariance(); v != nil {
		sd := math.Sqrt(*v)
		res.PowerSd = &sd
	}
	if v := est.PathLossVariance(); v != nil {
		sd := math.Sqrt(*v)
		res.PathLossSd = &sd
	}
	if rep, ok := est.(inlierReporter); ok {
		if inl := rep.Inliers(); inl != nil {
			n := inl.NumInliers()
			res.Inliers = &n
		}
	}

	if format == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	fmt.Printf("position    : %v\n", gorloc.Point(res.Position))
	if res.PositionSd != nil {
		fmt.Printf("position sd : %v\n", gorloc.Point(res.PositionSd))
	}
	switch {
	case res.PowerDBm == nil:
		fmt.Printf("power       : n/a\n")
	case res.PowerSd != nil:
		fmt.Printf("power       : %.2f dBm (%.4g mW) sd %.2f\n", *res.PowerDBm, *res.PowerMW, *res.PowerSd)
	default:
		fmt.Printf("power       : %.2f dBm (%.4g mW)\n", *res.PowerDBm, *res.PowerMW)
	}
	switch {
	case res.PathLoss == nil:
		fmt.Printf("path loss   : n/a\n")
	case res.PathLossSd != nil:
		fmt.Printf("path loss   : %.3f sd %.3f\n", *res.PathLoss, *res.PathLossSd)
	default:
		fmt.Printf("path loss   : %.3f (fixed)\n", *res.PathLoss)
	}
	fmt.Printf("fallback    : %v\n", res.Fallback)
	if res.Inliers != nil {
		fmt.Printf("inliers     : %d / %d\n", *res.Inliers, res.Readings)
	}
	return nil
}

func simulateRun(cmd *cobra.Command, args []string) error {
	logger := setupLogger()
	gorloc.SetLogger(logger)

	dims, _ := cmd.Flags().GetInt("dims")
	posStr, _ := cmd.Flags().GetString("pos")
	power, _ := cmd.Flags().GetFloat64("power")
	pathLoss, _ := cmd.Flags().GetFloat64("path-loss")
	nRanging, _ := cmd.Flags().GetInt("ranging")
	nRssi, _ := cmd.Flags().GetInt("rssi")
	nDual, _ := cmd.Flags().GetInt("dual")
	radius, _ := cmd.Flags().GetFloat64("radius")
	rangingNoise, _ := cmd.Flags().GetFloat64("ranging-noise")
	rssiNoise, _ := cmd.Flags().GetFloat64("rssi-noise")
	outliers, _ := cmd.Flags().GetInt("outliers")
	outlierScale, _ := cmd.Flags().GetFloat64("outlier-scale")
	seed, _ := cmd.Flags().GetInt64("seed")

	if !gorloc.ValidDims(dims) {
		return fmt.Errorf("dims must be 2 or 3, got %d", dims)
	}
	truth, err := parsePoint(posStr, dims)
	if err != nil {
		return err
	}
	total := nRanging + nRssi + nDual
	if total < 1 {
		return fmt.Errorf("nothing to generate")
	}
	if outliers > total {
		return fmt.Errorf("more outliers than readings")
	}

	rnd := rand.New(rand.NewSource(seed))
	rangingSd := math.Max(rangingNoise, 0.01)
	rssiSd := math.Max(rssiNoise, 0.1)

	w := os.Stdout
	fmt.Fprintf(w, "# generated by gorloc simulate\n")
	fmt.Fprintf(w, "# pos=%v power=%.1f dBm path-loss=%.2f seed=%d outliers=%d\n",
		truth, power, pathLoss, seed, outliers)

	for k := 0; k < total; k++ {
		anchor := ringAnchor(dims, k, total, radius)
		d := anchor.DistanceTo(truth)

		dist := d + rnd.NormFloat64()*rangingNoise
		level := gorloc.PathLossRssi(power, pathLoss, d) + rnd.NormFloat64()*rssiNoise
		if k < outliers {
			// Corrupt as if the signal travelled outlierScale times
			// farther
			dist *= outlierScale
			level -= 10.0 * pathLoss * math.Log10(outlierScale)
		}

		var kind string
		var vals []float64
		switch {
		case k < nRanging:
			kind = "ranging"
			vals = []float64{dist, rangingSd}
		case k < nRanging+nRssi:
			kind = "rssi"
			vals = []float64{level, rssiSd}
		default:
			kind = "dual"
			vals = []float64{dist, rangingSd, level, rssiSd}
		}
		if err := writeReading(w, kind, anchor, vals...); err != nil {
			return err
		}
	}

	logger.WithFields(logrus.Fields{
		"readings": total,
		"outliers": outliers,
	}).Info("readings generated")
	return nil
}

// ringAnchor places the k-th of n anchors on a circle (2D) or on
// staggered elevation rings (3D) of the given radius
func ringAnchor(dims, k, n int, radius float64) gorloc.Point {
	az := 2.0 * math.Pi * float64(k) / float64(n)
	if dims == 2 {
		return gorloc.Point{radius * math.Cos(az), radius * math.Sin(az)}
	}
	elev := float64(k%3-1) * math.Pi / 6.0
	return gorloc.Point{
		radius * math.Cos(elev) * math.Cos(az),
		radius * math.Cos(elev) * math.Sin(az),
		radius * math.Sin(elev),
	}
}

func scanRun(cmd *cobra.Command, args []string) error {
	logger := setupLogger()

	timeout, _ := cmd.Flags().GetDuration("timeout")

	scanner, err := wifiscan.New(logger)
	if err != nil {
		return fmt.Errorf("create scanner: %v", err)
	}
	defer func() {
		if closeErr := scanner.Close(); closeErr != nil {
			logger.WithError(closeErr).Warn("failed to close scanner")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	nets, err := scanner.Networks(ctx)
	if err != nil {
		return err
	}

	if format == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(nets)
	}

	fmt.Printf("%-17s  %-10s  %-28s  %s\n", "BSSID", "FREQ", "SSID", "IF")
	for _, n := range nets {
		fmt.Printf("%-17s  %-10d  %-28s  %s\n", n.BSSID, n.Frequency, n.SSID, n.Interface)
	}
	return nil
}
