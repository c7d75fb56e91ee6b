package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestNewRegistryRegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	r, err := NewRegistry(reg, "test-router")
	require.NoError(t, err)

	r.BadCRC.Inc()
	r.SlaveLag.WithLabelValues("1001").Set(2.5)

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
}

func TestNewRegistryDuplicateNameFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewRegistry(reg, "router-a")
	require.NoError(t, err)
	_, err = NewRegistry(reg, "router-a")
	require.Error(t, err)
}
