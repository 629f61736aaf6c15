package config

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/a8m/envsubst"
	"github.com/pkg/errors"
)

// Override changes a config after parsing and before defaults and validation are applied.
type Override func(cfg *Config)

// Read reads a config from the given file, substituting ${VAR} references from the environment.
func Read(filePath string, overrides ...Override) (*Config, error) {
	buf, err := envsubst.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	return FromReader(filePath, bytes.NewReader(buf), overrides...)
}

// FromReader reads a config from the given reader and specifies
// where, if applicable, the file the reader originated from.
func FromReader(originalPath string, r io.Reader, overrides ...Override) (*Config, error) {
	var cfg Config
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, errors.Wrapf(err, "cannot parse config %q", originalPath)
	}
	for _, override := range overrides {
		override(&cfg)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(originalPath); err != nil {
		return nil, err
	}
	return &cfg, nil
}
