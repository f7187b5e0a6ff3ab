package main

import (
	"encoding/json"
	"os"
)

// Config for rendezvous-client.
type Config struct {
	Holepuncher string `json:"holepuncher"`
	SessionID   string `json:"session-id"`
	Message     string `json:"message"`
	Log         string `json:"log"`
	LogLevel    string `json:"loglevel"`
}

func parseJSONConfig(config *Config, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return json.NewDecoder(file).Decode(config)
}
