// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestMetrics registers a fresh set of collectors on an isolated registry.
func newTestMetrics(t *testing.T) (*Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewMetrics(reg), reg
}

func TestNewMetrics_IndependentRegistries(t *testing.T) {
	m1, _ := newTestMetrics(t)
	m2, _ := newTestMetrics(t)

	m1.RecordRequest(EndpointAudit, StatusSuccess)

	assert.Equal(t, 1.0, testutil.ToFloat64(m1.RequestsTotal.WithLabelValues("audit", StatusSuccess)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m2.RequestsTotal.WithLabelValues("audit", StatusSuccess)))
}

func TestMetrics_RecordRequest(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordRequest(EndpointDeploy, StatusSuccess)
	m.RecordRequest(EndpointDeploy, StatusSuccess)
	m.RecordRequest(EndpointDeploy, StatusClientError)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("deploy", StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("deploy", StatusClientError)))
}

func TestMetrics_RecordDeployment(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordDeployment("primordial", true, "")
	m.RecordDeployment("primordial", false, "compile")
	m.RecordDeployment("primordial", false, "")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.DeploymentsTotal.WithLabelValues("primordial", StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DeploymentsTotal.WithLabelValues("primordial", "compile")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DeploymentsTotal.WithLabelValues("primordial", StatusError)))
}

func TestMetrics_ObserveStageAndRepair(t *testing.T) {
	m, reg := newTestMetrics(t)

	m.ObserveStage(StageLint, 250*time.Millisecond)
	m.RecordRepair("repair", "repaired")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RepairsTotal.WithLabelValues("repair", "repaired")))

	families, err := reg.Gather()
	require.NoError(t, err)
	var found bool
	for _, f := range families {
		if f.GetName() == "metadag_pipeline_stage_duration_seconds" {
			found = true
			require.Len(t, f.GetMetric(), 1)
			assert.Equal(t, uint64(1), f.GetMetric()[0].GetHistogram().GetSampleCount())
		}
	}
	assert.True(t, found)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordRequest(EndpointAudit, StatusError)
		m.ObserveStage(StageAudit, time.Second)
		m.RecordRepair("audit", "panic")
		m.RecordDeployment("x", false, "timeout")
	})
}
