// Copyright 2026 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package shmring

import (
	"fmt"
	"io"
	"strconv"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"gvisor.dev/shmring/pkg/ring"
)

// Stats describes the state of a ring.
type Stats struct {
	Key int
	ring.Snapshot

	// Attached is the number of processes that have the ring mapped.
	Attached int
}

const keyLabel = "key"

func gauge(name, help, key string, v float64) *dto.MetricFamily {
	labelName := keyLabel
	return &dto.MetricFamily{
		Name: &name,
		Help: &help,
		Type: dto.MetricType_GAUGE.Enum(),
		Metric: []*dto.Metric{{
			Label: []*dto.LabelPair{{Name: &labelName, Value: &key}},
			Gauge: &dto.Gauge{Value: &v},
		}},
	}
}

// WriteStats writes s to w in the Prometheus text exposition format.
func WriteStats(w io.Writer, s Stats) error {
	key := "0x" + strconv.FormatInt(int64(s.Key), 16)
	for _, mf := range []*dto.MetricFamily{
		gauge("shmring_capacity_bytes", "Size of the ring data area.", key, float64(s.Capacity)),
		gauge("shmring_free_bytes", "Bytes that can be written without overwriting unread data.", key, float64(s.Free)),
		gauge("shmring_available_bytes", "Bytes written and not yet read.", key, float64(s.Available)),
		gauge("shmring_head_offset", "Offset of the next byte to read.", key, float64(s.Head)),
		gauge("shmring_tail_offset", "Offset of the next byte to write.", key, float64(s.Tail)),
		gauge("shmring_attached_processes", "Number of processes that have the ring mapped.", key, float64(s.Attached)),
	} {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("writing metric %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

// WriteStatsText writes s to w as human readable lines.
func WriteStatsText(w io.Writer, s Stats) error {
	_, err := fmt.Fprintf(w, "key:        %#x\ncapacity:   %d\nhead:       %d\ntail:       %d\nfree:       %d\navailable:  %d\nattached:   %d\n",
		s.Key, s.Capacity, s.Head, s.Tail, s.Free, s.Available, s.Attached)
	return err
}
