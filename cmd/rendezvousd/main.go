package main

import (
	"context"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/valentindimov/rendezvous/registry"
	"github.com/valentindimov/rendezvous/rendezvous"
)

// VERSION is populated via build flags when packaging official binaries.
var VERSION = "SELFBUILD"

// BuildTime is populated via build flags when packaging official binaries.
var BuildTime = "SELFBUILD"

func main() {
	myApp := cli.NewApp()
	myApp.Name = "rendezvousd"
	myApp.Usage = "UDP NAT rendezvous holepuncher"
	myApp.Version = VERSION
	myApp.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "listen,l",
			Value: ":29977",
			Usage: "address to listen on for rendezvous traffic",
		},
		cli.StringFlag{
			Name:  "log",
			Value: "",
			Usage: "specify a log file to output, default goes to stderr",
		},
		cli.StringFlag{
			Name:  "loglevel",
			Value: "info",
			Usage: "panic, fatal, error, warn, info, debug, or trace",
		},
		cli.IntFlag{
			Name:  "lru-capacity",
			Value: 0,
			Usage: "bound the session registry to this many entries, evicting least-recently-used (0 = unbounded, the default)",
		},
		cli.BoolFlag{
			Name:  "allow-local-interrupt",
			Usage: "accept a loopback LocalInterrupt datagram as a graceful-shutdown trigger, mainly useful for tests",
		},
		cli.BoolFlag{
			Name:  "pprof",
			Usage: "start profiling server on :6060",
		},
		cli.StringFlag{
			Name:  "statslog",
			Value: "",
			Usage: "collect per-operation counters to a CSV file, aware of Go's time format in the filename, like: ./stats-20060102.csv",
		},
		cli.IntFlag{
			Name:  "statsperiod",
			Value: 60,
			Usage: "stats collection period, in seconds",
		},
		cli.StringFlag{
			Name:  "c",
			Value: "",
			Usage: "config from json file, which will override the command from shell",
		},
	}
	myApp.Action = func(c *cli.Context) error {
		config := Config{}
		config.Listen = c.String("listen")
		config.Log = c.String("log")
		config.LogLevel = c.String("loglevel")
		config.LRUCapacity = c.Int("lru-capacity")
		config.AllowLocalHP = c.Bool("allow-local-interrupt")
		config.Pprof = c.Bool("pprof")
		config.StatsLog = c.String("statslog")
		config.StatsPeriod = c.Int("statsperiod")

		if c.String("c") != "" {
			checkError(parseJSONConfig(&config, c.String("c")))
		}

		log := logrus.New()
		level, err := logrus.ParseLevel(config.LogLevel)
		if err != nil {
			color.Yellow("unrecognized loglevel %q, falling back to info", config.LogLevel)
			level = logrus.InfoLevel
		}
		log.SetLevel(level)

		if config.Log != "" {
			f, err := os.OpenFile(config.Log, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
			checkError(err)
			defer f.Close()
			log.SetOutput(f)
		}

		log.WithFields(logrus.Fields{
			"version":   VERSION,
			"buildTime": BuildTime,
			"listen":    config.Listen,
		}).Info("starting rendezvousd")

		if config.Pprof {
			go http.ListenAndServe(":6060", nil)
		}

		var store registry.Store
		if config.LRUCapacity > 0 {
			lru, err := registry.NewLRU(config.LRUCapacity)
			checkError(err)
			store = lru
			log.WithField("capacity", config.LRUCapacity).Info("session registry is LRU-bounded")
		} else {
			store = registry.NewMapStore()
			log.Info("session registry is unbounded")
		}

		counters := &rendezvous.Counters{}
		hp, err := rendezvous.NewHolepuncher(config.Listen, store, rendezvous.WithLogger(log), rendezvous.WithCounters(counters))
		checkError(err)
		defer hp.Close()

		ctx, cancel := context.WithCancel(context.Background())
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sigCh
			log.Info("received shutdown signal")
			cancel()
		}()

		go rendezvous.CSVLogger(ctx, config.StatsLog, time.Duration(config.StatsPeriod)*time.Second, counters, log)

		err = hp.Serve(ctx, 0, config.AllowLocalHP)
		if err != nil && errors.Is(err, context.Canceled) {
			log.Info("shut down cleanly")
			return nil
		}
		return err
	}

	checkError(myApp.Run(os.Args))
}

func checkError(err error) {
	if err != nil {
		logrus.Errorf("%+v", err)
		os.Exit(1)
	}
}
