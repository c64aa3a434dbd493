package config

import (
	"flag"
	"fmt"
)

// DefaultPath config file used when --config is not given.
const DefaultPath = "config.yaml"

// Get parses command-line flags and loads the config. With --setup the wizard
// runs first and the file it writes is loaded instead.
func Get(wizard func() (string, error)) (Config, error) {
	path := flag.String("config", DefaultPath, "path to yaml config")
	setup := flag.Bool("setup", false, "run the interactive config wizard")
	flag.Parse()

	if *setup {
		if wizard == nil {
			return Config{}, fmt.Errorf("config wizard is not available")
		}
		generated, err := wizard()
		if err != nil {
			return Config{}, err
		}
		*path = generated
	}

	return Load(*path)
}
