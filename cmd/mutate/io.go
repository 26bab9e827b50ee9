package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/goccy/go-yaml"
)

// loadValue reads a JSON or YAML file into a JSON-shaped value: string
// keys, float64 numbers. YAML input is normalized through a JSON round
// trip so both formats yield identical trees. "-" reads stdin.
func loadValue(path string) (any, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	jdata, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("normalize %s: %w", path, err)
	}
	var out any
	if err := json.Unmarshal(jdata, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// loadInto reads a JSON or YAML file and decodes it into v through v's
// JSON unmarshaler.
func loadInto(path string, v any) error {
	raw, err := loadValue(path)
	if err != nil {
		return err
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// writeValue writes v to path as YAML, or JSON when path ends in .json.
// "-" writes JSON to stdout.
func writeValue(path string, v any) error {
	var (
		data []byte
		err  error
	)
	if path == "-" || strings.HasSuffix(path, ".json") {
		data, err = json.MarshalIndent(v, "", "  ")
		data = append(data, '\n')
	} else {
		data, err = yaml.Marshal(v)
	}
	if err != nil {
		return err
	}
	if path == "-" {
		_, err = os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
