package main

import (
	"bytes"
	"os"
	"update-transport/application/http"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// loadConfig reads the client settings from a YAML file. An empty path
// gives the zero configuration.
func loadConfig(path string) (http.ClientConfig, error) {
	var config http.ClientConfig
	if path == "" {
		return config, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return config, errors.Wrap(err, "reading config")
	}

	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return config, errors.Wrapf(err, "parsing config %s", path)
	}
	return config, nil
}
