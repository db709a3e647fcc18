/*
Copyright 2026 Skylark Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// valueFormatColumn overrides the formatting type for a single column.
type valueFormatColumn struct {
	Type string `yaml:"type"`
}

type valueFormatFamily struct {
	DefaultType string                       `yaml:"default_type"`
	Columns     map[string]valueFormatColumn `yaml:"columns"`
}

// valueFormatSettings is the YAML schema of the -format-file flag: a default
// formatting type plus per-family and per-column overrides.
type valueFormatSettings struct {
	DefaultType string                       `yaml:"default_type"`
	Families    map[string]valueFormatFamily `yaml:"families"`
}

type valueFormatting struct {
	settings valueFormatSettings
}

func newValueFormatting() *valueFormatting {
	return &valueFormatting{settings: valueFormatSettings{DefaultType: "string"}}
}

func (vf *valueFormatting) parse(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&vf.settings); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// typeFor resolves the formatting type for family:qualifier, most specific
// override first.
func (vf *valueFormatting) typeFor(family, qualifier string) string {
	if fam, ok := vf.settings.Families[family]; ok {
		if col, ok := fam.Columns[qualifier]; ok && col.Type != "" {
			return col.Type
		}
		if fam.DefaultType != "" {
			return fam.DefaultType
		}
	}
	if vf.settings.DefaultType != "" {
		return vf.settings.DefaultType
	}
	return "string"
}

// format renders a cell value according to the configured type.
func (vf *valueFormatting) format(column string, value []byte) (string, error) {
	family, qualifier, _ := strings.Cut(column, ":")
	switch typ := strings.ToLower(vf.typeFor(family, qualifier)); typ {
	case "string":
		return fmt.Sprintf("%q", value), nil
	case "hex":
		return hex.EncodeToString(value), nil
	case "int64", "bigendian64":
		if len(value) != 8 {
			return "", fmt.Errorf("column %q: int64 value must be 8 bytes, got %d", column, len(value))
		}
		return fmt.Sprintf("%d", int64(binary.BigEndian.Uint64(value))), nil
	default:
		return "", fmt.Errorf("column %q: unknown format type %q", column, typ)
	}
}
