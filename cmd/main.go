package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/alitto/pond"
	"github.com/urfave/cli/v2"

	"github.com/quakescan/quakescan"
	"github.com/quakescan/quakescan/search"
)

// buildLUT constructs a travel-time LUT for every station in stationsURI
// against the velocity model at velocityURI, using a fixed-size pond pool
// (one submission per station) so the per-station eikonal solves run
// concurrently, following the same convert_gsf_list worker-pool shape used
// for per-file conversion pipelines.
func buildLUT(cCtx *cli.Context) error {
	log := quakescan.NewLogger(quakescan.DefaultLoggerConfig())

	stations, err := quakescan.ReadStationsJSON(cCtx.String("stations-uri"))
	if err != nil {
		return err
	}

	model, err := quakescan.ReadVelocityModelCSV(cCtx.String("velocity-uri"))
	if err != nil {
		return err
	}

	projection := quakescan.NewUTM(cCtx.Float64("origin-lon"))
	grid := quakescan.Grid3D{
		CellCount:  [3]int{cCtx.Int("nx"), cCtx.Int("ny"), cCtx.Int("nz")},
		CellSize:   [3]float64{cCtx.Float64("dx"), cCtx.Float64("dy"), cCtx.Float64("dz")},
		SortOrder:  quakescan.RowMajor,
		Projection: projection,
	}.WithGeographicCentre(cCtx.Float64("origin-lon"), cCtx.Float64("origin-lat"), cCtx.Float64("origin-elevation"))

	if err := grid.Validate(); err != nil {
		return err
	}

	method := quakescan.MethodHomogeneous
	switch cCtx.String("method") {
	case "fmm2d":
		method = quakescan.MethodFMM2DSweep
	case "fmm3d":
		method = quakescan.MethodFMM3D
	}

	log.Info().Int("stations", len(stations)).Str("method", cCtx.String("method")).Msg("building travel-time LUT")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	n := runtime.NumCPU()
	pool := pond.New(n, 0, pond.MinWorkers(n), pond.Context(ctx))

	ncells := grid.NCells()
	ns := len(stations)
	lut := quakescan.LUT{
		Grid3D:   grid,
		Stations: stations,
		MapsP:    make([]float64, ncells*ns),
		MapsS:    make([]float64, ncells*ns),
	}

	var mu sync.Mutex
	var buildErrs []error

	for i, st := range stations {
		i, st := i, st
		pool.Submit(func() {
			builder := quakescan.TravelTimeBuilder{Grid: grid, Model: model, Method: method, Station: st}
			pTimes, err := builder.Build(quakescan.PhaseP)
			if err != nil {
				mu.Lock()
				buildErrs = append(buildErrs, err)
				mu.Unlock()
				return
			}
			sTimes, err := builder.Build(quakescan.PhaseS)
			if err != nil {
				mu.Lock()
				buildErrs = append(buildErrs, err)
				mu.Unlock()
				return
			}
			for c := 0; c < ncells; c++ {
				lut.MapsP[c*ns+i] = pTimes[c]
				lut.MapsS[c*ns+i] = sTimes[c]
			}
		})
	}
	pool.StopAndWait()

	if len(buildErrs) > 0 {
		return errors.Join(append([]error{quakescan.ErrBuild}, buildErrs...)...)
	}

	if err := lut.Validate(); err != nil {
		return err
	}

	outURI := cCtx.String("out-uri")
	if err := quakescan.WriteLUT(outURI, lut); err != nil {
		return err
	}
	log.Info().Str("out", outURI).Msg("wrote LUT")
	return nil
}

// scan runs the onset/coalescence stage for one waveform window and writes
// the resulting triggered events as JSON.
func scan(cCtx *cli.Context) error {
	log := quakescan.NewLogger(quakescan.DefaultLoggerConfig())

	cfg, err := loadConfigOrDefault(cCtx.String("config-uri"))
	if err != nil {
		return err
	}

	lut, err := quakescan.ReadLUT(cCtx.String("lut-uri"))
	if err != nil {
		return err
	}

	return scanOne(cCtx.Context, cfg, lut, cCtx.String("waveform-uri"), cCtx.String("out-uri"), log)
}

// scanOne is the per-frame scan body shared by the scan and scan-trawl
// commands.
func scanOne(ctx context.Context, cfg quakescan.Config, lut quakescan.LUT, waveformURI, outURI string, log quakescan.Logger) error {
	source, err := quakescan.LoadJSONWaveformSource(waveformURI)
	if err != nil {
		return err
	}

	windowStart := source.Frame.StartTime
	windowEnd := windowStart.Add(time.Duration(float64(source.Frame.NSamples())/source.Frame.SamplingRate) * time.Second)

	frame, err := source.Read(windowStart, windowEnd, cfg.SamplingRate)
	if err != nil {
		return errors.Join(quakescan.ErrIO, err)
	}

	pipeline := quakescan.OnsetPipeline{Config: cfg}
	bundle := pipeline.Run(frame)

	scanner := quakescan.CoalescenceScanner{LUT: lut, Config: cfg}
	prePad, postPad := scanner.RequiredPadding(0, maxLUTTime(lut))
	samples, _, err := scanner.Scan(ctx, bundle, prePad, postPad)
	if err != nil {
		return err
	}
	log.Info().Int("samples", len(samples)).Msg("scan complete")

	// output samples start prePad samples into the frame
	sampleStart := frame.StartTime.Add(time.Duration(float64(prePad) / cfg.SamplingRate * float64(time.Second)))

	trig := quakescan.Trigger{Config: cfg, Grid: lut.Grid3D}
	events, err := trig.Run(samples, sampleStart, cfg.SamplingRate, windowStart, windowEnd)
	if err != nil {
		return err
	}
	log.Info().Int("events", len(events)).Msg("triggered")

	if _, err := quakescan.WriteJSON(outURI, "", events); err != nil {
		return errors.Join(quakescan.ErrIO, err)
	}
	log.Info().Str("out", outURI).Msg("wrote events")
	return nil
}

// scanTrawl batch-scans every waveform frame found under a URI tree, one
// pond task per frame.
func scanTrawl(cCtx *cli.Context) error {
	log := quakescan.NewLogger(quakescan.DefaultLoggerConfig())

	cfg, err := loadConfigOrDefault(cCtx.String("config-uri"))
	if err != nil {
		return err
	}

	lut, err := quakescan.ReadLUT(cCtx.String("lut-uri"))
	if err != nil {
		return err
	}

	frames := search.FindWaveformFrames(cCtx.String("uri"), cCtx.String("tiledb-config-uri"))
	if len(frames) == 0 {
		log.Warn().Str("uri", cCtx.String("uri")).Msg("no waveform frames found")
		return nil
	}

	ctx, stop := signal.NotifyContext(cCtx.Context, os.Interrupt)
	defer stop()

	n := runtime.NumCPU()
	pool := pond.New(n, 0, pond.MinWorkers(n), pond.Context(ctx))

	var mu sync.Mutex
	var failed int
	for _, frameURI := range frames {
		frameURI := frameURI
		pool.Submit(func() {
			outURI := strings.TrimSuffix(frameURI, ".frame.json") + ".events.json"
			if err := scanOne(ctx, cfg, lut, frameURI, outURI, log); err != nil {
				log.Aborted(frameURI, err)
				mu.Lock()
				failed++
				mu.Unlock()
			}
		})
	}
	pool.StopAndWait()

	if failed > 0 {
		return fmt.Errorf("%d of %d frames failed to scan", failed, len(frames))
	}
	log.Info().Int("frames", len(frames)).Msg("scan-trawl complete")
	return nil
}

// jsonlWindowWriter appends one JSON line per scanned window; the detect
// command's streaming sink.
type jsonlWindowWriter struct {
	enc *json.Encoder
}

func (w *jsonlWindowWriter) WriteWindow(windowStart time.Time, samplingRate float64, samples []quakescan.CoalescenceSample) error {
	return w.enc.Encode(map[string]any{
		"window_start":  windowStart,
		"sampling_rate": samplingRate,
		"samples":       samples,
	})
}

// detect runs the continuous detect stage over a time range, streaming each
// window's coalescence time series to a JSON-lines file through the
// backpressure-buffered async writer.
func detect(cCtx *cli.Context) error {
	log := quakescan.NewLogger(quakescan.DefaultLoggerConfig())

	cfg, err := loadConfigOrDefault(cCtx.String("config-uri"))
	if err != nil {
		return err
	}

	lut, err := quakescan.ReadLUT(cCtx.String("lut-uri"))
	if err != nil {
		return err
	}

	source, err := quakescan.LoadJSONWaveformSource(cCtx.String("waveform-uri"))
	if err != nil {
		return err
	}

	start, err := time.Parse(time.RFC3339Nano, cCtx.String("start"))
	if err != nil {
		return errors.Join(quakescan.ErrConfig, fmt.Errorf("start: %w", err))
	}
	end, err := time.Parse(time.RFC3339Nano, cCtx.String("end"))
	if err != nil {
		return errors.Join(quakescan.ErrConfig, fmt.Errorf("end: %w", err))
	}

	out, err := os.Create(cCtx.String("out-uri"))
	if err != nil {
		return errors.Join(quakescan.ErrIO, err)
	}
	defer out.Close()

	sink := &jsonlWindowWriter{enc: json.NewEncoder(out)}
	writer, err := quakescan.NewAsyncCoalescenceWriter(sink, cCtx.String("out-uri")+".spill", 1<<30)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cCtx.Context, os.Interrupt)
	defer stop()

	d := quakescan.Detector{LUT: lut, Config: cfg, Source: source, Writer: writer, Log: log}
	runErr := d.Run(ctx, start, end)
	if err := writer.Close(); runErr == nil {
		runErr = err
	}
	if runErr != nil {
		log.Aborted("", runErr)
		return runErr
	}
	log.Info().Str("out", cCtx.String("out-uri")).Msg("detect complete")
	return nil
}

// locate refines a previously triggered event's hypocentre and phase
// arrivals and writes the located event as JSON.
func locate(cCtx *cli.Context) error {
	log := quakescan.NewLogger(quakescan.DefaultLoggerConfig())

	cfg, err := loadConfigOrDefault(cCtx.String("config-uri"))
	if err != nil {
		return err
	}

	lut, err := quakescan.ReadLUT(cCtx.String("lut-uri"))
	if err != nil {
		return err
	}

	source, err := quakescan.LoadJSONWaveformSource(cCtx.String("waveform-uri"))
	if err != nil {
		return err
	}

	eventID := cCtx.String("event-id")
	originTime, err := time.Parse(time.RFC3339Nano, cCtx.String("origin-time"))
	if err != nil {
		return errors.Join(quakescan.ErrConfig, fmt.Errorf("origin-time: %w", err))
	}
	event := quakescan.Event{
		EventID:      eventID,
		OriginTime:   originTime,
		StationCount: len(lut.Stations),
	}

	pipeline := quakescan.OnsetPipeline{Config: cfg}
	locator := quakescan.Locator{
		LUT:     lut,
		Config:  cfg,
		Scanner: quakescan.CoalescenceScanner{LUT: lut, Config: cfg},
		Picker:  quakescan.Picker{Config: cfg},
	}

	located, ok, err := locator.Locate(cCtx.Context, event, source, pipeline)
	if err != nil {
		log.Aborted(eventID, err)
		return err
	}
	if !ok {
		log.Aborted(eventID, quakescan.ErrFit)
		return nil
	}

	outURI := cCtx.String("out-uri")
	if _, err := quakescan.WriteJSON(outURI, "", located); err != nil {
		return errors.Join(quakescan.ErrIO, err)
	}
	log.Info().Str("out", outURI).Msg("wrote located event")
	return nil
}

// findLUTs lists precomputed LUT blobs under a root URI, the same
// trawl-based discovery shape a convert-trawl command would use.
func findLUTs(cCtx *cli.Context) error {
	items := search.FindLUT(cCtx.String("uri"), cCtx.String("config-uri"))
	for _, item := range items {
		fmt.Println(item)
	}
	return nil
}

func loadConfigOrDefault(path string) (quakescan.Config, error) {
	if path == "" {
		return quakescan.DefaultConfig(), nil
	}
	return quakescan.LoadConfig(path)
}

func maxLUTTime(lut quakescan.LUT) float64 {
	maxT := 0.0
	for _, t := range lut.MapsS {
		if t > maxT {
			maxT = t
		}
	}
	return maxT
}

func main() {
	app := &cli.App{
		Name:  "quakescan",
		Usage: "microseismic event detection and location",
		Commands: []*cli.Command{
			{
				Name:  "build-lut",
				Usage: "build a travel-time lookup table from a velocity model and station list",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "stations-uri", Usage: "URI or pathname to a JSON station list.", Required: true},
					&cli.StringFlag{Name: "velocity-uri", Usage: "URI or pathname to a velocity model CSV.", Required: true},
					&cli.StringFlag{Name: "out-uri", Usage: "URI or pathname for the output LUT blob.", Required: true},
					&cli.StringFlag{Name: "method", Usage: "homogeneous, fmm2d, or fmm3d.", Value: "homogeneous"},
					&cli.IntFlag{Name: "nx", Value: 50},
					&cli.IntFlag{Name: "ny", Value: 50},
					&cli.IntFlag{Name: "nz", Value: 30},
					&cli.Float64Flag{Name: "dx", Value: 500},
					&cli.Float64Flag{Name: "dy", Value: 500},
					&cli.Float64Flag{Name: "dz", Value: 500},
					&cli.Float64Flag{Name: "origin-lon", Required: true},
					&cli.Float64Flag{Name: "origin-lat", Required: true},
					&cli.Float64Flag{Name: "origin-elevation", Value: 0},
				},
				Action: buildLUT,
			},
			{
				Name:  "scan",
				Usage: "run onset detection and coalescence scanning over a waveform window",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "lut-uri", Required: true},
					&cli.StringFlag{Name: "waveform-uri", Required: true},
					&cli.StringFlag{Name: "config-uri"},
					&cli.StringFlag{Name: "out-uri", Required: true},
				},
				Action: scan,
			},
			{
				Name:  "scan-trawl",
				Usage: "recursively scan every waveform frame under a URI",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "lut-uri", Required: true},
					&cli.StringFlag{Name: "uri", Required: true, Usage: "root URI to trawl for *.frame.json"},
					&cli.StringFlag{Name: "config-uri"},
					&cli.StringFlag{Name: "tiledb-config-uri"},
				},
				Action: scanTrawl,
			},
			{
				Name:  "detect",
				Usage: "stream coalescence windows over a continuous time range",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "lut-uri", Required: true},
					&cli.StringFlag{Name: "waveform-uri", Required: true},
					&cli.StringFlag{Name: "config-uri"},
					&cli.StringFlag{Name: "start", Required: true, Usage: "RFC3339Nano timestamp"},
					&cli.StringFlag{Name: "end", Required: true, Usage: "RFC3339Nano timestamp"},
					&cli.StringFlag{Name: "out-uri", Required: true},
				},
				Action: detect,
			},
			{
				Name:  "locate",
				Usage: "refine a triggered event's hypocentre and phase arrivals",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "lut-uri", Required: true},
					&cli.StringFlag{Name: "waveform-uri", Required: true},
					&cli.StringFlag{Name: "config-uri"},
					&cli.StringFlag{Name: "event-id", Required: true},
					&cli.StringFlag{Name: "origin-time", Required: true, Usage: "RFC3339Nano timestamp"},
					&cli.StringFlag{Name: "out-uri", Required: true},
				},
				Action: locate,
			},
			{
				Name:  "find-luts",
				Usage: "recursively list precomputed LUT blobs under a URI",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "uri", Required: true},
					&cli.StringFlag{Name: "config-uri"},
				},
				Action: findLUTs,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		quakescan.NewLogger(quakescan.DefaultLoggerConfig()).Fatal().Err(err).Msg("quakescan failed")
	}
}
