package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the server's keyed settings object. A missing file yields the
// defaults below; a present file is decoded over them, so a partial YAML
// document still produces a fully-populated Config.
type Config struct {
	Port                    int    `yaml:"port"`
	MaxLobbies              int    `yaml:"max_lobbies"`
	MaxPlayersPerLobby      int    `yaml:"max_players_per_lobby"`
	ClientTimeoutSeconds    int    `yaml:"client_timeout_seconds"`
	LobbyIdleTimeoutSeconds int    `yaml:"lobby_idle_timeout_seconds"`
	EnablePersistence       bool   `yaml:"enable_persistence"`
	PersistenceDir          string `yaml:"persistence_dir"`
	AdminAddr               string `yaml:"admin_addr"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Port:                    8756,
		MaxLobbies:              256,
		MaxPlayersPerLobby:      8,
		ClientTimeoutSeconds:    30,
		LobbyIdleTimeoutSeconds: 300,
		EnablePersistence:       true,
		PersistenceDir:          "./lobbies",
		AdminAddr:               ":9756",
	}
}

// Load best-effort-loads a ".env" file (deployment knobs that shouldn't ride
// in the checked-in YAML), then overlays path's YAML contents onto
// Default(). A missing path is not an error; a present-but-invalid file is.
func Load(path string) (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}
	return cfg, nil
}
