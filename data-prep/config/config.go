// Licensed to NASA JPL under one or more contributor
// license agreements. See the NOTICE file distributed with
// this work for additional information regarding copyright
// ownership. NASA JPL licenses this file to you under
// the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

// Prep run configuration as read from JSON, with any field overridable from the environment
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/imcdata/imcprep/data-prep/names"
)

// Env var naming the JSON config file
const ConfigFileEnvVar = "IMCPREP_CONFIG_FILE"

// Prefix of env vars overriding individual fields. Nested fields join names with _, for example
// IMCPREP_CONFIG_Sources_Cells_URL
const EnvOverridePrefix = "IMCPREP_CONFIG_"

// TableSource - where to get one table. If the URL names a .zip, Member picks the file inside it
type TableSource struct {
	URL    string
	Member string
}

// Sources - every published input of a prep run
type Sources struct {
	Cells       TableSource
	Images      TableSource
	CellTypes   TableSource
	Donors      TableSource
	Panel       TableSource
	ChannelMass TableSource // Headerless, one metal mass per line in stack order

	ImageArchive string // Zip of *_full_clean.tiff stacks
	MaskArchive  string // Zip of *_full_mask.tiff masks
}

// PrepConfig combines env vars and config JSON values
type PrepConfig struct {
	DatasetName string

	// Downloads and extracted files live in a temp dir under here, removed once loaded
	WorkingDir string

	// Outputs go to OutputBucket/OutputPath/DatasetName, or to local OutputPath/DatasetName if
	// no bucket is set
	OutputBucket string
	OutputPath   string
	AWSRegion    string

	LogLevel string // DEBUG, INFO or ERROR
	LogFile  string // Also log to this file (rotated) if set

	SentryEndpoint  string
	EnvironmentName string

	// Optional extras, skipped if empty
	MongoURI        string
	MongoDatabase   string
	MongoCAFile     string // PEM bundle, for TLS connections only
	SQLitePath      string
	MetricsTextfile string

	ImagePattern string
	MaskPattern  string

	Sources Sources
}

// Defaults for anything the config file leaves empty
const (
	DefaultDatasetName   = "IMMUcan_islets"
	DefaultOutputPath    = "./output"
	DefaultMongoDatabase = "imcprep"
	DefaultLogLevel      = "INFO"
)

func NewConfigFromFile(configFilePath string) (PrepConfig, error) {
	var cfg PrepConfig

	fmt.Printf("Loading config from: %s\n", configFilePath)
	configJson, err := os.ReadFile(configFilePath)
	if err != nil {
		return cfg, fmt.Errorf("could not read config file at %s", configFilePath)
	}
	return buildConfig(configJson)
}

func buildConfig(configJson []byte) (PrepConfig, error) {
	var cfg PrepConfig

	err := json.Unmarshal(configJson, &cfg)
	if err != nil {
		return cfg, fmt.Errorf("failed to parse config: %v", err)
	}

	// Override config with any values explicitly set in env vars (IMCPREP_CONFIG_*)
	// NOTE: For []string slices, pass in a comma-separated string
	err = overrideFromEnv(reflect.ValueOf(&cfg).Elem(), EnvOverridePrefix)
	if err != nil {
		return cfg, err
	}

	applyDefaults(&cfg)
	return cfg, nil
}

func overrideFromEnv(reflection reflect.Value, prefix string) error {
	for i := 0; i < reflection.NumField(); i++ {
		fieldName := reflection.Type().Field(i).Name
		field := reflection.Field(i)
		envName := prefix + fieldName

		if field.Kind() == reflect.Struct {
			if err := overrideFromEnv(field, envName+"_"); err != nil {
				return err
			}
			continue
		}

		val, present := os.LookupEnv(envName)
		if !present {
			continue
		}

		switch field.Kind() {
		case reflect.String:
			field.SetString(val)
		case reflect.Slice:
			if field.Type().Elem().Kind() == reflect.String {
				slicedVal := strings.Split(val, ",")
				field.Set(reflect.ValueOf(slicedVal))
			}
		case reflect.Int, reflect.Int32, reflect.Int64:
			i, err := strconv.Atoi(val)
			if err != nil {
				return fmt.Errorf("could not read %s=%s as an integer", envName, val)
			}
			field.SetInt(int64(i))
		case reflect.Bool:
			b, err := strconv.ParseBool(val)
			if err != nil {
				return fmt.Errorf("could not read %s=%s as a bool", envName, val)
			}
			field.SetBool(b)
		}
	}
	return nil
}

func applyDefaults(cfg *PrepConfig) {
	if len(cfg.DatasetName) <= 0 {
		cfg.DatasetName = DefaultDatasetName
	}
	if len(cfg.OutputPath) <= 0 && len(cfg.OutputBucket) <= 0 {
		cfg.OutputPath = DefaultOutputPath
	}
	if len(cfg.WorkingDir) <= 0 {
		cfg.WorkingDir = os.TempDir()
	}
	if len(cfg.LogLevel) <= 0 {
		cfg.LogLevel = DefaultLogLevel
	}
	if len(cfg.MongoDatabase) <= 0 {
		cfg.MongoDatabase = DefaultMongoDatabase
	}
	if len(cfg.ImagePattern) <= 0 {
		cfg.ImagePattern = names.ImageFilePattern
	}
	if len(cfg.MaskPattern) <= 0 {
		cfg.MaskPattern = names.MaskFilePattern
	}
}

// Init - loads the config file named by IMCPREP_CONFIG_FILE
func Init() (PrepConfig, error) {
	configFilePath := os.Getenv(ConfigFileEnvVar)
	if len(configFilePath) <= 0 {
		return PrepConfig{}, errors.New("no configuration provided, set " + ConfigFileEnvVar)
	}
	return NewConfigFromFile(configFilePath)
}
