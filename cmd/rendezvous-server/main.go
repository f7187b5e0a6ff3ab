package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/valentindimov/rendezvous/protocol"
	"github.com/valentindimov/rendezvous/rendezvous"
)

// VERSION is populated via build flags when packaging official binaries.
var VERSION = "SELFBUILD"

func main() {
	myApp := cli.NewApp()
	myApp.Name = "rendezvous-server"
	myApp.Usage = "registers a session with a rendezvous holepuncher and echoes datagrams it receives"
	myApp.Version = VERSION
	myApp.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "holepuncher,H",
			Value: "127.0.0.1:29977",
			Usage: "address of the rendezvous holepuncher",
		},
		cli.StringFlag{
			Name:  "session-id,s",
			Value: "default-session",
			Usage: "session id to register under",
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
		cli.StringFlag{
			Name:  "c",
			Value: "",
			Usage: "config from json file, which will override the command from shell",
		},
	}
	myApp.Action = func(c *cli.Context) error {
		config := Config{}
		config.Holepuncher = c.String("holepuncher")
		config.SessionID = c.String("session-id")
		config.Log = c.String("log")
		config.LogLevel = c.String("loglevel")

		if c.String("c") != "" {
			checkError(parseJSONConfig(&config, c.String("c")))
		}

		if len(config.SessionID) > protocol.MaxSessionIDSize {
			color.Red("session-id is %d bytes, exceeding the %d byte maximum; registration will fail", len(config.SessionID), protocol.MaxSessionIDSize)
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

		hpAddr, err := net.ResolveUDPAddr("udp", config.Holepuncher)
		checkError(err)

		log.WithFields(logrus.Fields{
			"holepuncher": config.Holepuncher,
			"sessionID":   config.SessionID,
		}).Info("registering session")

		srv, err := rendezvous.NewServer(context.Background(), hpAddr, []byte(config.SessionID), rendezvous.WithLogger(log))
		checkError(err)
		defer srv.Close()

		log.Info("session registered, waiting for peers")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		done := make(chan struct{})
		go func() {
			<-sigCh
			close(done)
		}()

		for {
			select {
			case <-done:
				log.Info("shut down cleanly")
				return nil
			default:
			}

			source, data, err := srv.WaitForData(time.Second, false)
			checkError(err)
			if source == nil {
				continue
			}

			log.WithFields(logrus.Fields{"from": source.String(), "bytes": len(data)}).Info("received datagram, echoing")
			if err := srv.SendDatagram(source, data); err != nil {
				log.WithError(err).Warn("failed to echo datagram")
			}
		}
	}

	checkError(myApp.Run(os.Args))
}

func checkError(err error) {
	if err != nil {
		logrus.Errorf("%+v", err)
		os.Exit(1)
	}
}
