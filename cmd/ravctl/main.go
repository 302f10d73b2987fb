package main

import (
	"context"
	"os"
	"os/signal"
	"runtime/pprof"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/lkarlslund/ravana"
	"github.com/spf13/pflag"
)

func main() {
	// endpoint settings
	configfile := pflag.String("config", "", "YAML config file (missing file means defaults)")
	basedir := pflag.String("basedir", ravana.DefaultBaseDir, "Directory holding one socket directory per channel")
	cid := ravana.DefaultCid
	pflag.Var(&cid, "cid", "Channel id, hex or UUID")
	timeout := pflag.Duration("timeout", 0, "Limit for each call, 0 for none")
	compress := pflag.Bool("compress", false, "Compress the stream with s2 (server must do the same)")

	// debugging etc
	loglevel := pflag.String("loglevel", "info", "Log level")
	showstats := pflag.Bool("stats", false, "Show call and byte counters when done")
	cpuprofile := pflag.String("cpuprofile", "", "Write cpu profile to file")

	pflag.Usage = func() {
		os.Stderr.WriteString("Usage: ravctl [flags] <command> [args]\n\nCommands:\n")
		for _, c := range commands {
			os.Stderr.WriteString("  " + c.name + " " + c.usage + "\n")
		}
		os.Stderr.WriteString("\nFlags:\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()

	zll, err := ravana.ParseLevel(strings.ToLower(*loglevel))
	if err != nil {
		ravana.Logger.Fatal().Msgf("Invalid log level: %v", *loglevel)
	}
	ravana.Logger = ravana.Logger.Level(zll)

	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			ravana.Logger.Fatal().Msgf("Can't create profile: %v", err)
		}
		if err = pprof.StartCPUProfile(f); err != nil {
			ravana.Logger.Fatal().Msgf("Can't start profiling: %v", err)
		}
		defer func() {
			pprof.StopCPUProfile()
			f.Close()
		}()
	}

	cfg, err := ravana.LoadConfig(*configfile)
	if err != nil {
		ravana.Logger.Fatal().Msgf("Error loading config: %v", err)
	}
	if pflag.CommandLine.Changed("basedir") {
		cfg.BaseDir = *basedir
	}
	if pflag.CommandLine.Changed("timeout") {
		cfg.Timeout = *timeout
	}
	if *compress {
		cfg.Compression = ravana.CompressionS2
	}

	if pflag.NArg() == 0 {
		pflag.Usage()
		ravana.Logger.Fatal().Msg("Need command argument")
	}

	c, err := ravana.NewClient(cfg)
	if err != nil {
		ravana.Logger.Fatal().Msgf("Invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err = run(ctx, c, cid, pflag.Args(), os.Stdout)
	stop()

	if *showstats {
		s := c.Stats()
		ravana.Logger.Warn().Msgf("Final statistics")
		ravana.Logger.Warn().Msgf("%v calls, %v failed, %v remote errors - wired %v sent %v received, payload %v sent %v received",
			s.Get(ravana.Calls), s.Get(ravana.FailedCalls), s.Get(ravana.RemoteErrors),
			humanize.Bytes(s.Get(ravana.SentOverWire)), humanize.Bytes(s.Get(ravana.ReceivedOverWire)),
			humanize.Bytes(s.Get(ravana.SentBytes)), humanize.Bytes(s.Get(ravana.ReceivedBytes)))
	}

	if err != nil {
		ravana.Logger.Error().Msgf("%s failed: %v (errno %d)", pflag.Arg(0), err, ravana.Errno(err))
		os.Exit(1)
	}
}
