package config

import (
	"fmt"
	"os"
	"path"

	"github.com/mitchellh/go-homedir"
	"github.com/mortar-build/mortar/log"
	"gopkg.in/yaml.v2"
)

// Config is the user-level tool configuration, read from
// $XDG_CONFIG_HOME/mortar/config.yaml.
type Config struct {
	// Mirror is the base URL wrap files are fetched from by 'mortar wrap install'.
	Mirror string
	// Jobs overrides the default parallelism of test runs and subproject
	// operations. Zero means one job per core.
	Jobs int
}

var config *Config

const configFileName string = "config.yaml"

func getConfigDir() (string, error) {
	if dir, ok := os.LookupEnv("MORTAR_CONFIG_DIR"); ok {
		return dir, nil
	}

	if xdgConfigHome, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		return path.Join(xdgConfigHome, "mortar"), nil
	}

	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("unable to locate the configuration directory: %s", err)
	}
	return path.Join(home, ".config", "mortar"), nil
}

func loadConfiguration() Config {
	var config Config

	configDir, err := getConfigDir()
	if err != nil {
		log.Debug("Unable to find mortar config directory. Using default configuration.\n")
		return config
	}

	configFilePath := path.Join(configDir, configFileName)
	data, err := os.ReadFile(configFilePath)
	if err != nil {
		log.Debug("No configuration file at '%s'. Using default configuration.\n", configFilePath)
		return config
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		log.Debug("Error reading configuration file at '%s': %s. Using default configuration.\n", configFilePath, err)
		return Config{}
	}

	log.Debug("Loaded configuration from '%s'.\n", configFilePath)
	log.Debug("Running with configuration: %+v\n", config)
	return config
}

// GetConfig returns the tool configuration, loading it on first use.
func GetConfig() Config {
	if config == nil {
		loadedConfig := loadConfiguration()
		config = &loadedConfig
	}

	return *config
}
