package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	diskaio "github.com/ehrlich-b/go-diskaio"
	"github.com/ehrlich-b/go-diskaio/internal/logging"
	"github.com/ehrlich-b/go-diskaio/internal/slowdisk"
)

var (
	bold   = color.New(color.Bold)
	green  = color.New(color.FgGreen)
	red    = color.New(color.FgRed)
	yellow = color.New(color.FgYellow)
)

type probeMode struct {
	name       string
	op         diskaio.Op
	sequential bool
}

var modes = map[string]probeMode{
	"randread":  {"randread", diskaio.OpRead, false},
	"randwrite": {"randwrite", diskaio.OpWrite, false},
	"seqread":   {"seqread", diskaio.OpRead, true},
	"seqwrite":  {"seqwrite", diskaio.OpWrite, true},
}

func main() {
	var (
		configPath = flag.String("config", "", "YAML configuration file")
		facility   = flag.String("facility", "", "I/O facility: native or uring")
		depth      = flag.Int("depth", 0, "Maximum in-flight operations")
		spanStr    = flag.String("span", "", "Region to probe (e.g., 256M, 1G); defaults to the whole target")
		offsetStr  = flag.String("offset", "0", "Start of the probed region")
		blockStr   = flag.String("bs", "8K", "Block size of each operation")
		threshold  = flag.Int("threshold", 100, "IOPS at or below which the target is reported slow")
		modeList   = flag.String("mode", "randread,seqread", "Comma-separated probes: randread, randwrite, seqread, seqwrite, or all")
		allowWrite = flag.Bool("write", false, "Allow write probes (destroys data in the probed region)")
		direct     = flag.Bool("direct", true, "Open the target with O_DIRECT")
		rateLimit  = flag.Float64("rate", 0, "Cap on operations per second (0 = unlimited)")
		policy     = flag.String("policy", "", "Slow-disk policy while probing: disabled, await or cost")
		metrics    = flag.String("metrics", "", "Serve Prometheus metrics on this address (e.g., :9100)")
		verbose    = flag.Bool("v", false, "Verbose output")
		jsonLogs   = flag.Bool("json", false, "Log as JSON")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] <file-or-device>\n\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	target := flag.Arg(0)

	cfg := diskaio.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = diskaio.LoadConfig(*configPath); err != nil {
			log.Fatalf("Invalid config '%s': %v", *configPath, err)
		}
	}
	cfg.Device = target
	if *facility != "" {
		cfg.Facility = *facility
	}
	if *depth > 0 {
		cfg.Depth = *depth
	}
	if *policy != "" {
		p, err := slowdisk.ParsePolicy(*policy)
		if err != nil {
			log.Fatalf("Invalid policy '%s': %v", *policy, err)
		}
		cfg.SlowDisk.Policy = p
	}
	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *jsonLogs {
		cfg.Log.Format = "json"
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	blockSize, err := parseSize(*blockStr)
	if err != nil {
		log.Fatalf("Invalid block size '%s': %v", *blockStr, err)
	}
	offset, err := parseSize(*offsetStr)
	if err != nil {
		log.Fatalf("Invalid offset '%s': %v", *offsetStr, err)
	}
	selected, err := parseModes(*modeList)
	if err != nil {
		log.Fatal(err)
	}
	needWrite := false
	for _, m := range selected {
		needWrite = needWrite || m.op == diskaio.OpWrite
	}
	if needWrite && !*allowWrite {
		log.Fatalf("Write probes overwrite %s; pass -write to confirm", target)
	}

	// Set up logging
	logConfig := logging.DefaultConfig()
	logConfig.Format = cfg.Log.Format
	if level, ok := logging.ParseLevel(cfg.Log.Level); ok {
		logConfig.Level = level
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	file, err := openTarget(target, needWrite, *direct)
	if err != nil {
		logger.Error("failed to open target", "path", target, "error", err)
		os.Exit(1)
	}
	defer file.Close()

	span := int64(0)
	if *spanStr != "" {
		if span, err = parseSize(*spanStr); err != nil {
			log.Fatalf("Invalid span '%s': %v", *spanStr, err)
		}
	} else {
		size, err := file.Seek(0, io.SeekEnd)
		if err != nil {
			logger.Error("failed to size target", "path", target, "error", err)
			os.Exit(1)
		}
		span = size - offset
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	go dumpStacksOnSignal(logger)

	opts := &diskaio.Options{}
	reg := prometheus.NewRegistry()
	if *metrics != "" {
		opts.Observer = diskaio.NewPrometheusObserver(reg, prometheus.Labels{"device": target})
	}

	host := diskaio.HostFuncs{
		SlowDisk: func(ev diskaio.SlowDiskEvent) error {
			red.Printf("\nslow disk: %s class=%s p=%s streak=%d ratio=%.2f\n",
				ev.Device, ev.Class, ev.Stats.Quantile, ev.Stats.Streak, ev.Stats.Ratio)
			return nil
		},
	}
	engine, err := diskaio.NewEngine(cfg, host, opts)
	if err != nil {
		logger.Error("failed to create engine", "error", err)
		os.Exit(1)
	}
	if err := engine.Start(ctx); err != nil {
		logger.Error("failed to start engine", "facility", cfg.Facility, "error", err)
		os.Exit(1)
	}

	bold.Printf("Probing %s (%s, depth %d, %s blocks over %s)\n\n",
		target, cfg.Facility, cfg.Depth, formatSize(blockSize), formatSize(span))

	g, gctx := errgroup.WithContext(ctx)
	if *metrics != "" {
		srv := &http.Server{
			Addr:              *metrics,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info("serving metrics", "addr", *metrics)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, stop := context.WithTimeout(context.Background(), time.Second)
			defer stop()
			return srv.Shutdown(shutdownCtx)
		})
	}

	// With -metrics the endpoint keeps serving after the probes until interrupted.
	var results []diskaio.ProbeResult
	g.Go(func() error {
		for _, m := range selected {
			bar := progressbar.NewOptions(3**threshold,
				progressbar.OptionSetDescription(m.name),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionShowIts(),
				progressbar.OptionEnableColorCodes(true),
			)
			res, err := diskaio.Probe(gctx, engine, int(file.Fd()), m.op, m.sequential, diskaio.ProbeOptions{
				Threshold: *threshold,
				BlockSize: int(blockSize),
				Offset:    offset,
				Span:      span,
				RateLimit: *rateLimit,
				Progress:  func(done, _ int) { _ = bar.Set(done) },
			})
			_ = bar.Finish()
			fmt.Println()
			if err != nil {
				return fmt.Errorf("%s probe: %w", m.name, err)
			}
			results = append(results, res)
		}
		return nil
	})

	runErr := g.Wait()

	report, shutdownErr := engine.Shutdown(context.Background())
	if shutdownErr != nil {
		logger.Warn("engine shutdown incomplete", "abandoned", report.Abandoned, "error", shutdownErr)
	}

	renderResults(results)
	renderEngine(engine)

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		red.Printf("probe failed: %v\n", runErr)
		os.Exit(1)
	}
	for _, res := range results {
		if res.Slow {
			os.Exit(3)
		}
	}
}

func openTarget(path string, write, direct bool) (*os.File, error) {
	flags := unix.O_RDONLY | unix.O_CLOEXEC
	if write {
		flags = unix.O_RDWR | unix.O_CLOEXEC
	}
	if direct {
		flags |= unix.O_DIRECT
	}
	fd, err := unix.Open(path, flags, 0)
	if err != nil {
		return nil, &os.PathError{Op: "open", Path: path, Err: err}
	}
	return os.NewFile(uintptr(fd), path), nil
}

func parseModes(list string) ([]probeMode, error) {
	if list == "all" {
		list = "randread,seqread,randwrite,seqwrite"
	}
	var out []probeMode
	for _, name := range strings.Split(list, ",") {
		m, ok := modes[strings.TrimSpace(name)]
		if !ok {
			return nil, fmt.Errorf("unknown probe mode %q", name)
		}
		out = append(out, m)
	}
	return out, nil
}

func renderResults(results []diskaio.ProbeResult) {
	if len(results) == 0 {
		return
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Probe", "Ops", "Errors", "IOPS", "Threshold", "P50", "P99", "Mean", "Verdict")
	for _, res := range results {
		name := res.Op.String()
		if res.Sequential {
			name = "seq-" + name
		} else {
			name = "rand-" + name
		}
		verdict := green.Sprint("ok")
		if res.Slow {
			verdict = red.Sprint("SLOW")
		} else if res.Errors > 0 {
			verdict = yellow.Sprint("errors")
		}
		_ = table.Append(
			name,
			strconv.Itoa(res.Ops),
			strconv.Itoa(res.Errors),
			fmt.Sprintf("%.0f", res.IOPS),
			strconv.Itoa(res.Threshold),
			res.P50.String(),
			res.PQ.String(),
			res.Mean.String(),
			verdict,
		)
	}
	_ = table.Render()
}

func renderEngine(engine *diskaio.Engine) {
	st := engine.Stats()
	status := engine.DetectorStatus()
	fmt.Println()
	bold.Println("Engine")
	fmt.Printf("  submitted %d, delivered %d, aborted %d, host failures %d\n",
		st.Submitted, st.Delivered, st.Aborted, st.HostFailures)
	fmt.Printf("  read %s, written %s, sequential %d, random %d\n",
		formatSize(int64(st.BytesRead)), formatSize(int64(st.BytesWritten)), st.Sequential, st.Random)
	health := green.Sprint(status.Health.String())
	if status.Health == slowdisk.Slow {
		health = red.Sprint(status.Health.String())
	}
	fmt.Printf("  policy %s, health %s, evaluations %d\n", status.Policy, health, status.Evaluations)
}

// dumpStacksOnSignal writes every goroutine's stack to stderr on SIGUSR1.
func dumpStacksOnSignal(logger *logging.Logger) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGUSR1)
	for range ch {
		buf := make([]byte, 1024*1024)
		n := runtime.Stack(buf, true)
		fmt.Fprintf(os.Stderr, "\n=== GOROUTINE STACK DUMP ===\n%s\n=== END STACK DUMP ===\n\n", buf[:n])
		logger.Info("stack trace dumped", "bytes", n)
	}
}

// parseSize parses a size string like "64M", "1G", "512K"
func parseSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))

	var multiplier int64 = 1
	numStr := s
	switch {
	case strings.HasSuffix(s, "K"):
		multiplier = 1024
		numStr = strings.TrimSuffix(s, "K")
	case strings.HasSuffix(s, "M"):
		multiplier = 1024 * 1024
		numStr = strings.TrimSuffix(s, "M")
	case strings.HasSuffix(s, "G"):
		multiplier = 1024 * 1024 * 1024
		numStr = strings.TrimSuffix(s, "G")
	}

	num, err := strconv.ParseInt(numStr, 10, 64)
	if err != nil {
		return 0, err
	}
	return num * multiplier, nil
}

// formatSize formats a byte count as a human-readable string
func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}

	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	units := []string{"K", "M", "G", "T"}
	return fmt.Sprintf("%.1f %sB", float64(bytes)/float64(div), units[exp])
}
