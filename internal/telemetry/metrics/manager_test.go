package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManager(t *testing.T) {
	m, reg := NewTestManagerAndRegistry()
	require.NotNil(t, m)

	m.CounterUploads.WithLabelValues("page2", "ok").Inc()
	m.CounterUploads.WithLabelValues("page2", "ok").Inc()
	m.CounterLogins.WithLabelValues("invalid_credentials").Inc()
	m.HistogramUploadSize.Observe(2048)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.CounterUploads.WithLabelValues("page2", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CounterLogins.WithLabelValues("invalid_credentials")))

	families, err := reg.Gather()
	require.NoError(t, err)

	var uploadSizeFamily *dto.MetricFamily
	for _, f := range families {
		if f.GetName() == "bulletins_test_server_upload_size_bytes" {
			uploadSizeFamily = f
		}
	}
	require.NotNil(t, uploadSizeFamily)
	require.Len(t, uploadSizeFamily.GetMetric(), 1)
	assert.Equal(t, uint64(1), uploadSizeFamily.GetMetric()[0].GetHistogram().GetSampleCount())
	assert.Equal(t, float64(2048), uploadSizeFamily.GetMetric()[0].GetHistogram().GetSampleSum())
}

func TestSetupPrometheus(t *testing.T) {
	extra := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "extra_counter",
		Help: "extra",
	})
	reg := SetupPrometheus(extra, nil)
	extra.Inc()

	families, err := reg.Gather()
	require.NoError(t, err)

	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["extra_counter"])
	assert.True(t, names["go_goroutines"])
}
