package ports

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestGenerateCorrelationIDProducesParsableUUIDs(t *testing.T) {
	a := GenerateCorrelationID()
	b := GenerateCorrelationID()

	require.NotEqual(t, a, b)
	_, err := uuid.Parse(a)
	require.NoError(t, err)
}

func TestCorrelationIDRoundTripsThroughContext(t *testing.T) {
	require.Empty(t, GetCorrelationID(context.Background()))

	ctx := WithCorrelationID(context.Background(), "abc-123")
	require.Equal(t, "abc-123", GetCorrelationID(ctx))
}
