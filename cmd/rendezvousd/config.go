package main

import (
	"encoding/json"
	"os"
)

// Config for rendezvousd.
type Config struct {
	Listen       string `json:"listen"`
	Log          string `json:"log"`
	LogLevel     string `json:"loglevel"`
	Pprof        bool   `json:"pprof"`
	LRUCapacity  int    `json:"lru-capacity"`
	AllowLocalHP bool   `json:"allow-local-interrupt"`
	StatsLog     string `json:"statslog"`
	StatsPeriod  int    `json:"statsperiod"`
}

func parseJSONConfig(config *Config, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return json.NewDecoder(file).Decode(config)
}
