package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand" //nolint:gosec // intentional use for reproducible benchmarks
	"net/http"
	_ "net/http/pprof" //nolint:gosec // intentional profiling endpoint
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
	"time"

	"github.com/felixge/fgprof"
	"github.com/spf13/pflag"

	"github.com/meigma/databin"
	"github.com/meigma/databin/manifest"
)

type config struct {
	mode            string
	files           int
	fileSize        int
	dirCount        int
	compressed      float64
	level           int
	pattern         string
	dataURL         string
	dataHTTPLatency time.Duration
	dataHTTPBPS     int64
	blockSize       int64
	fgProfile       string
	duration        time.Duration
	iterations      int
	pprofAddr       string
	cpuProfile      string
	memProfile      string
	traceFile       string
	workers         int
	readRandom      bool
	tempDir         string
	keepTemp        bool
	randomSeed      int64
}

//nolint:unused // sink variables prevent compiler optimizations in profiling
var (
	sinkBytes   []byte
	sinkEntry   *databin.Entry
	sinkArchive *databin.Archive
)

//nolint:gocognit,gocyclo // main function complexity is acceptable for CLI tool
func main() {
	cfg := parseFlags()

	if cfg.pprofAddr != "" {
		go func() {
			log.Printf("pprof listening on %s", cfg.pprofAddr)
			//nolint:gosec // intentional pprof server without timeouts for profiling
			if err := http.ListenAndServe(cfg.pprofAddr, nil); err != nil {
				log.Printf("pprof server error: %v", err)
			}
		}()
	}

	dir, cleanup, err := setupTempDir(cfg)
	if err != nil {
		log.Fatal(err)
	}
	if cleanup != nil {
		defer cleanup() //nolint:errcheck // cleanup errors are non-fatal in profiler
	}

	paths, data, err := makeArchive(cfg)
	if err != nil {
		log.Fatal(err) //nolint:gocritic // exitAfterDefer is intentional - cleanup is best-effort
	}

	var stopFG func() error
	if cfg.fgProfile != "" {
		fgFile, fgErr := os.Create(cfg.fgProfile)
		if fgErr != nil {
			log.Fatal(fgErr)
		}
		stopFG = fgprof.Start(fgFile, fgprof.FormatPprof)
		defer func() {
			if err := stopFG(); err != nil {
				log.Printf("fgprof stop error: %v", err)
			}
			_ = fgFile.Close()
		}()
	}

	if cfg.cpuProfile != "" {
		cpuFile, cpuErr := os.Create(cfg.cpuProfile)
		if cpuErr != nil {
			log.Fatal(cpuErr)
		}
		if cpuErr = pprof.StartCPUProfile(cpuFile); cpuErr != nil {
			log.Fatal(cpuErr)
		}
		defer func() {
			pprof.StopCPUProfile()
			_ = cpuFile.Close()
		}()
	}

	if cfg.traceFile != "" {
		traceFile, traceErr := os.Create(cfg.traceFile)
		if traceErr != nil {
			log.Fatal(traceErr)
		}
		if traceErr = trace.Start(traceFile); traceErr != nil {
			log.Fatal(traceErr)
		}
		defer func() {
			trace.Stop()
			_ = traceFile.Close()
		}()
	}

	stats, err := runProfile(cfg, data, paths, dir)
	if err != nil {
		log.Fatal(err)
	}

	if cfg.memProfile != "" {
		runtime.GC()
		f, err := os.Create(cfg.memProfile)
		if err != nil {
			log.Fatal(err)
		}
		if err := pprof.WriteHeapProfile(f); err != nil {
			log.Fatal(err)
		}
		_ = f.Close()
	}

	fmt.Printf("mode=%s ops=%d bytes=%d elapsed=%s throughput=%.2f MB/s\n",
		cfg.mode,
		stats.ops,
		stats.bytes,
		stats.elapsed,
		float64(stats.bytes)/(1024*1024)/stats.elapsed.Seconds(),
	)
}

type profileStats struct {
	ops     int
	bytes   int64
	elapsed time.Duration
}

//nolint:gocognit,gocyclo,gocritic // complexity is inherent to multi-mode profiler dispatch; hugeParam acceptable for profiler
func runProfile(cfg config, data []byte, paths []string, rootDir string) (profileStats, error) {
	start := time.Now()
	ops := 0
	var byteCount int64

	shouldContinue := func() bool {
		if cfg.iterations > 0 {
			return ops < cfg.iterations
		}
		return time.Since(start) < cfg.duration
	}

	switch cfg.mode {
	case "load":
		for shouldContinue() {
			a, err := databin.LoadBytes(data)
			if err != nil {
				return profileStats{}, err
			}
			sinkArchive = a
			byteCount += int64(len(data))
			ops++
		}

	case "load-http":
		source, cleanup, err := newHTTPSource(cfg, data)
		if err != nil {
			return profileStats{}, err
		}
		if cleanup != nil {
			defer cleanup()
		}
		start = time.Now()
		for shouldContinue() {
			a, err := databin.Load(source)
			if err != nil {
				return profileStats{}, err
			}
			sinkArchive = a
			byteCount += int64(len(data))
			ops++
		}

	case "save":
		a, err := databin.LoadBytes(data, databin.WithCompressionLevel(cfg.level))
		if err != nil {
			return profileStats{}, err
		}
		start = time.Now()
		var buf bytes.Buffer
		for shouldContinue() {
			out, err := a.SaveBytes()
			if err != nil {
				return profileStats{}, err
			}
			buf.Reset()
			buf.Write(out)
			byteCount += int64(len(out))
			ops++
		}
		sinkBytes = buf.Bytes()

	case "lookup":
		a, err := databin.LoadBytes(data)
		if err != nil {
			return profileStats{}, err
		}
		start = time.Now()
		rng := rand.New(rand.NewSource(cfg.randomSeed)) //nolint:gosec // intentional for reproducible benchmarks
		for shouldContinue() {
			path := pickPath(paths, ops, rng, cfg.readRandom)
			e, ok := a.FindByPath(path)
			if !ok {
				return profileStats{}, fmt.Errorf("missing entry for %q", path)
			}
			sinkEntry = e
			byteCount += int64(len(e.RawBytes()))
			ops++
		}

	case "extract":
		a, err := databin.LoadBytes(data)
		if err != nil {
			return profileStats{}, err
		}
		start = time.Now()
		for shouldContinue() {
			destDir := filepath.Join(rootDir, "extract", fmt.Sprintf("iter-%d", ops))
			res, err := manifest.Extract(context.Background(), a, destDir, manifest.WithWorkers(cfg.workers))
			if err != nil {
				return profileStats{}, err
			}
			if err := os.RemoveAll(destDir); err != nil {
				return profileStats{}, err
			}
			byteCount += int64(res.Stats.Bytes) //nolint:gosec // extraction totals fit in int64
			ops++
		}

	default:
		return profileStats{}, fmt.Errorf("unknown mode: %s", cfg.mode)
	}

	return profileStats{
		ops:     ops,
		bytes:   byteCount,
		elapsed: time.Since(start),
	}, nil
}

func parseFlags() config {
	var cfg config
	var dataHTTPBPS string
	pflag.StringVar(&cfg.mode, "mode", "load", "mode: load, load-http, save, lookup, extract")
	pflag.IntVar(&cfg.files, "files", 2048, "number of entries")
	pflag.IntVar(&cfg.fileSize, "file-size", 16<<10, "entry payload size in bytes")
	pflag.IntVar(&cfg.dirCount, "dir-count", 16, "number of level directories")
	pflag.Float64Var(&cfg.compressed, "compressed", 0.5, "fraction of entries stored compressed")
	pflag.IntVar(&cfg.level, "level", 6, "zlib level used by save mode")
	pflag.StringVar(&cfg.pattern, "pattern", "compressible", "pattern: compressible or random")
	pflag.StringVar(&cfg.dataURL, "data-url", "local", "HTTP source URL for load-http (\"local\" serves the generated container)")
	pflag.DurationVar(&cfg.dataHTTPLatency, "data-http-latency", 0, "per-request latency for HTTP data source")
	pflag.StringVar(&dataHTTPBPS, "data-http-bps", "", "bytes/sec throttle for HTTP data source (e.g. 10MBps)")
	pflag.Int64Var(&cfg.blockSize, "block-size", 0, "remote block size in bytes (0 uses the default)")
	pflag.StringVar(&cfg.fgProfile, "fgprofile", "", "write fgprof (wall clock) profile to file")
	pflag.DurationVar(&cfg.duration, "duration", 10*time.Second, "duration to run (ignored if iterations > 0)")
	pflag.IntVar(&cfg.iterations, "iterations", 0, "number of iterations to run")
	pflag.StringVar(&cfg.pprofAddr, "pprof-addr", "", "pprof listen address (e.g. :6060)")
	pflag.StringVar(&cfg.cpuProfile, "cpuprofile", "", "write CPU profile to file")
	pflag.StringVar(&cfg.memProfile, "memprofile", "", "write heap profile to file")
	pflag.StringVar(&cfg.traceFile, "trace", "", "write trace to file")
	pflag.IntVar(&cfg.workers, "workers", 0, "extract workers: <0 serial, 0 auto, >0 fixed")
	pflag.BoolVar(&cfg.readRandom, "read-random", true, "randomize lookup path selection")
	pflag.StringVar(&cfg.tempDir, "temp-dir", "", "directory for extract output")
	pflag.BoolVar(&cfg.keepTemp, "keep-temp", false, "keep temp dir after run")
	pflag.Int64Var(&cfg.randomSeed, "seed", 1, "random seed")
	pflag.Parse()
	if dataHTTPBPS != "" {
		bps, err := parseBytesPerSecond(dataHTTPBPS)
		if err != nil {
			log.Fatalf("data-http-bps: %v", err)
		}
		cfg.dataHTTPBPS = bps
	}
	return cfg
}

func pickPath(paths []string, idx int, rng *rand.Rand, random bool) string {
	if random {
		return paths[rng.Intn(len(paths))]
	}
	return paths[idx%len(paths)]
}

//nolint:gocritic // hugeParam acceptable for config struct in CLI tool
func setupTempDir(cfg config) (string, func() error, error) {
	if cfg.tempDir != "" {
		return cfg.tempDir, nil, os.MkdirAll(cfg.tempDir, 0o755) //nolint:gosec // 0o755 is intentional for profiler temp dirs
	}
	dir, err := os.MkdirTemp("", "databin-profiler-*")
	if err != nil {
		return "", nil, err
	}
	cleanup := func() error {
		if cfg.keepTemp {
			return nil
		}
		return os.RemoveAll(dir)
	}
	return dir, cleanup, nil
}

// makeArchive builds a synthetic container and returns the entry paths
// along with its encoded bytes.
//
//nolint:gocritic // hugeParam acceptable for config struct in CLI tool
func makeArchive(cfg config) ([]string, []byte, error) {
	if cfg.files <= 0 {
		return nil, nil, errors.New("files must be positive")
	}
	dirCount := max(cfg.dirCount, 1)
	rng := rand.New(rand.NewSource(cfg.randomSeed)) //nolint:gosec // intentional use for reproducible benchmarks

	a := databin.New(databin.WithCompressionLevel(cfg.level))
	paths := make([]string, 0, cfg.files)
	for i := range cfg.files {
		path := fmt.Sprintf(`\GameData\Level%02d\file%05d.dat`, i%dirCount, i)

		content := make([]byte, cfg.fileSize)
		switch cfg.pattern {
		case "random":
			if _, err := rng.Read(content); err != nil {
				return nil, nil, err
			}
		default:
			fillByte := byte('a' + (i % 26))
			for j := range content {
				content[j] = fillByte
			}
			if len(content) > 0 {
				content[0] = byte(i)
			}
		}

		compressed := rng.Float64() < cfg.compressed
		if _, err := a.Add(path, content, compressed); err != nil {
			return nil, nil, fmt.Errorf("add %s: %w", path, err)
		}
		paths = append(paths, path)
	}

	data, err := a.SaveBytes()
	if err != nil {
		return nil, nil, err
	}
	return paths, data, nil
}
