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

package config

import (
	"fmt"
	"testing"
)

func Test_InitializeConfigWithFile(t *testing.T) {
	cfg, err := NewConfigFromFile("./example_config.json")
	if err != nil {
		t.Fatalf("Error initializing config: %v", err)
	}
	if cfg.Sources.Images.Member != "image.csv" {
		t.Errorf("cfg.Sources.Images.Member got %q", cfg.Sources.Images.Member)
	}
	if cfg.MaskPattern != "_full_mask.tiff" || cfg.MongoDatabase != DefaultMongoDatabase {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func Test_InitFromEnv(t *testing.T) {
	t.Setenv(ConfigFileEnvVar, "")
	_, err := Init()
	if err == nil || err.Error() != "no configuration provided, set IMCPREP_CONFIG_FILE" {
		t.Errorf("unexpected error: %v", err)
	}

	t.Setenv(ConfigFileEnvVar, "./example_config.json")
	cfg, err := Init()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DatasetName != "IMMUcan_islets" {
		t.Errorf("unexpected dataset name %v", cfg.DatasetName)
	}
}

func Test_OverrideConfigWithEnvVars(t *testing.T) {
	t.Setenv("IMCPREP_CONFIG_OutputBucket", "prepared-data")
	t.Setenv("IMCPREP_CONFIG_Sources_Cells_URL", "file:///data/cells.csv")
	t.Setenv("IMCPREP_CONFIG_Sources_MaskArchive", "/data/masks.zip")

	cfg, err := NewConfigFromFile("./example_config.json")
	if err != nil {
		t.Fatalf("Error initializing config: %v", err)
	}

	got := fmt.Sprintf("%v|%v|%v|%v", cfg.OutputBucket, cfg.Sources.Cells.URL, cfg.Sources.MaskArchive, cfg.Sources.Panel.URL)
	want := "prepared-data|file:///data/cells.csv|/data/masks.zip|https://data.example.org/imc-islets/panel.csv"
	if got != want {
		t.Errorf("got %q; want %q", got, want)
	}
}

func Example_buildConfigDefaults() {
	cfg, err := buildConfig([]byte(`{"OutputBucket": "bucket"}`))
	fmt.Println(err)
	fmt.Printf("%q %q %q %q %q\n", cfg.DatasetName, cfg.OutputPath, cfg.LogLevel, cfg.ImagePattern, cfg.MaskPattern)

	cfg, err = buildConfig([]byte(`{"DatasetName": "mine"}`))
	fmt.Println(err)
	fmt.Printf("%q %q\n", cfg.DatasetName, cfg.OutputPath)

	_, err = buildConfig([]byte(`{"DatasetName": 3}`))
	fmt.Println(err != nil)

	// Output:
	// <nil>
	// "IMMUcan_islets" "" "INFO" "_full_clean.tiff" "_full_mask.tiff"
	// <nil>
	// "mine" "./output"
	// true
}
