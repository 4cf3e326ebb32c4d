package config

import (
	"encoding/json"
	"log"
	"os"
)

type Configuration struct {
	ApiPort string `json:"api_port"`
	LogPath string `json:"log_path"`

	Database string `json:"database"` // "sqlite3" ou "postgres"
	DbHost   string `json:"db_host"`
	DbPort   string `json:"db_port"`
	DbUser   string `json:"db_user"`
	DbName   string `json:"db_name"`
	DbPass   string `json:"db_pass"`

	Pipeline struct {
		// DailyMessageLimit is the per-user engine call budget per 24h window.
		DailyMessageLimit int64 `json:"daily_message_limit"`
		// Base URLs are overridable for staging and tests.
		VoiceflowBaseURL string `json:"voiceflow_base_url"`
		GraphBaseURL     string `json:"graph_base_url"`
	} `json:"pipeline"`
}

func Get(path string) Configuration {
	b, err := os.ReadFile(path)
	if err != nil {
		log.Fatal(err)
	}
	var c Configuration
	if err := json.Unmarshal(b, &c); err != nil {
		log.Fatal(err)
	}

	// defaults (pra evitar nil/zero chato)
	if c.ApiPort == "" {
		c.ApiPort = "8080"
	}
	if c.LogPath == "" {
		c.LogPath = "logs/server.log"
	}
	if c.Database == "" {
		c.Database = "sqlite3"
	}
	if c.Pipeline.DailyMessageLimit <= 0 {
		c.Pipeline.DailyMessageLimit = 200
	}

	return c
}
