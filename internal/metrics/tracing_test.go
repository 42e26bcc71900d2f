package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitTracingDisabled(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), nil, TracingConfig{})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestClampRatio(t *testing.T) {
	require.Equal(t, 0.0, clampRatio(-1))
	require.Equal(t, 1.0, clampRatio(3))
	require.Equal(t, 0.25, clampRatio(0.25))
}
