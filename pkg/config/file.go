package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/psaab/tcusers/pkg/logging"
)

// File is the YAML configuration file. Empty fields leave the current
// value untouched.
type File struct {
	UserFlows         string `yaml:"userFlows"`
	UnclassifiedFlows string `yaml:"unclassifiedFlows"`
	FlowsPerUser      string `yaml:"flowsPerUser"`
	ClassifyBy        string `yaml:"classifyBy"`
	NoOp              bool   `yaml:"noop"`
	Log               string `yaml:"log"`
	BPFFS             string `yaml:"bpffs"`
	MetricsFile       string `yaml:"metricsFile"`
}

// LoadFile reads and decodes the configuration file at path. Unknown keys
// are rejected.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode config file %s: %w", path, err)
	}
	return &f, nil
}

// Apply copies the values set in f onto c.
func (f *File) Apply(c *Config) error {
	ranges := []struct {
		name string
		text string
		dst  *Range
	}{
		{"userFlows", f.UserFlows, &c.UserFlows},
		{"unclassifiedFlows", f.UnclassifiedFlows, &c.UnclassifiedFlows},
		{"flowsPerUser", f.FlowsPerUser, &c.FlowsPerUserRange},
	}
	for _, r := range ranges {
		if r.text == "" {
			continue
		}
		v, err := ParseRange(r.text)
		if err != nil {
			return fmt.Errorf("%s: %w", r.name, err)
		}
		*r.dst = v
	}

	if f.ClassifyBy != "" {
		cb, err := ParseClassifyBy(f.ClassifyBy)
		if err != nil {
			return fmt.Errorf("classifyBy: %w", err)
		}
		c.ClassifyBy = cb
	}
	if f.Log != "" {
		l, err := logging.ParseLevel(f.Log)
		if err != nil {
			return fmt.Errorf("log: %w", err)
		}
		c.LogLevel = l
	}
	if f.NoOp {
		c.NoOp = true
	}
	if f.BPFFS != "" {
		c.BPFFS = f.BPFFS
	}
	if f.MetricsFile != "" {
		c.MetricsFile = f.MetricsFile
	}
	return nil
}
