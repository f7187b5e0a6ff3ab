package main

import (
	"context"
	"net"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/valentindimov/rendezvous/protocol"
	"github.com/valentindimov/rendezvous/rendezvous"
)

// VERSION is populated via build flags when packaging official binaries.
var VERSION = "SELFBUILD"

func main() {
	myApp := cli.NewApp()
	myApp.Name = "rendezvous-client"
	myApp.Usage = "joins a rendezvous session and exchanges one datagram with its server"
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
			Usage: "session id to join",
		},
		cli.StringFlag{
			Name:  "message,m",
			Value: "hello from rendezvous-client",
			Usage: "payload to send once connected",
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
		config.Message = c.String("message")
		config.Log = c.String("log")
		config.LogLevel = c.String("loglevel")

		if c.String("c") != "" {
			checkError(parseJSONConfig(&config, c.String("c")))
		}

		if len(config.Message) > protocol.MaxDataSize {
			color.Red("message is %d bytes, exceeding the %d byte maximum; it will be rejected before it's sent", len(config.Message), protocol.MaxDataSize)
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
		}).Info("joining session")

		client, err := rendezvous.NewClient(context.Background(), hpAddr, []byte(config.SessionID), rendezvous.WithLogger(log))
		if err != nil {
			if errors.Is(err, rendezvous.ErrSessionNotFound) {
				log.Error("session not found on holepuncher")
			} else if errors.Is(err, rendezvous.ErrHandshakeTimedOut) {
				log.Error("handshake timed out, is the server reachable?")
			}
			checkError(err)
		}
		defer client.Close()

		log.WithField("server", client.Server().String()).Info("connected to peer")

		checkError(client.SendDatagram(client.Server(), []byte(config.Message)))

		source, data, err := client.WaitForData(5*time.Second, false)
		checkError(err)
		if source == nil {
			log.Warn("no reply within timeout")
			return nil
		}

		log.WithFields(logrus.Fields{"from": source.String(), "reply": string(data)}).Info("received reply")
		return nil
	}

	checkError(myApp.Run(os.Args))
}

func checkError(err error) {
	if err != nil {
		logrus.Errorf("%+v", err)
		os.Exit(1)
	}
}
