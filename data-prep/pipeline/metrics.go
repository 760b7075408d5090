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

package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics - one registry per run, written out as a node exporter textfile when configured
type Metrics struct {
	Registry *prometheus.Registry

	Cells        prometheus.Gauge
	Channels     prometheus.Gauge
	Images       prometheus.Gauge
	Masks        prometheus.Gauge
	DroppedCells *prometheus.CounterVec
	DroppedMasks prometheus.Counter
	StageSeconds *prometheus.GaugeVec
	LastSuccess  prometheus.Gauge
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		Cells: factory.NewGauge(prometheus.GaugeOpts{
			Name: "imcprep_cells",
			Help: "Cells in the prepared dataset.",
		}),
		Channels: factory.NewGauge(prometheus.GaugeOpts{
			Name: "imcprep_channels",
			Help: "Channels in the prepared dataset.",
		}),
		Images: factory.NewGauge(prometheus.GaugeOpts{
			Name: "imcprep_images",
			Help: "Images in the prepared image collection.",
		}),
		Masks: factory.NewGauge(prometheus.GaugeOpts{
			Name: "imcprep_masks",
			Help: "Masks in the prepared mask collection.",
		}),
		DroppedCells: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "imcprep_dropped_cells_total",
			Help: "Cells dropped by each inner join.",
		}, []string{"join"}),
		DroppedMasks: factory.NewCounter(prometheus.CounterOpts{
			Name: "imcprep_dropped_masks_total",
			Help: "Masks dropped for having no matching image.",
		}),
		StageSeconds: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "imcprep_stage_duration_seconds",
			Help: "Duration of each pipeline stage.",
		}, []string{"stage"}),
		LastSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Name: "imcprep_last_success_timestamp_seconds",
			Help: "Completion time of the last successful run.",
		}),
	}
}

// WriteTextfile - writes every metric in the registry in text exposition format
func (m *Metrics) WriteTextfile(filePath string) error {
	return prometheus.WriteToTextfile(filePath, m.Registry)
}
