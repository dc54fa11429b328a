package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupSkipsUnconfiguredSignals(t *testing.T) {
	tel, err := Setup(context.Background(), "planharvest-test", Config{})
	require.NoError(t, err)
	require.Nil(t, tel.TracerProvider)
	require.Nil(t, tel.MeterProvider)
	require.NoError(t, tel.Shutdown(context.Background()))
}

func TestSetupUnknownProtocol(t *testing.T) {
	_, err := Setup(context.Background(), "planharvest-test", Config{
		Traces: Exporter{Endpoint: "http://localhost:4318", Protocol: "carrier-pigeon"},
	})
	require.ErrorContains(t, err, "carrier-pigeon")
}
