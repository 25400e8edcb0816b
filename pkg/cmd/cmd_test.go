package cmd_test

import (
	"context"
	"testing"

	"github.com/dukex/mailflow/pkg/cmd"
	"github.com/dukex/mailflow/pkg/persistence/memory"
	"github.com/dukex/mailflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitList(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"a:9092", "b:9092"}, cmd.SplitList(" a:9092, ,b:9092,"))
	assert.Empty(t, cmd.SplitList(""))
}

func TestNewPersistence(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	p, err := cmd.NewPersistence(ctx, testutil.Logger(), "memory://")
	require.NoError(t, err)
	assert.IsType(t, &memory.Persistence{}, p)

	_, err = cmd.NewPersistence(ctx, testutil.Logger(), "mysql://localhost/db")
	require.ErrorIs(t, err, cmd.ErrUnsupportedProvider)
}

func TestNewEventBus(t *testing.T) {
	t.Parallel()

	bus, err := cmd.NewEventBus("gochannel", "", "test", testutil.Logger())
	require.NoError(t, err)
	require.NoError(t, bus.Close())

	_, err = cmd.NewEventBus("rabbitmq", "", "test", testutil.Logger())
	require.ErrorIs(t, err, cmd.ErrUnsupportedProvider)

	_, err = cmd.NewEventBus("kafka", "", "test", testutil.Logger())
	require.Error(t, err)
}

func TestNewRedisClient_Disabled(t *testing.T) {
	t.Parallel()

	client, err := cmd.NewRedisClient(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, client)

	_, err = cmd.NewRedisClient(context.Background(), "::not-a-url")
	require.Error(t, err)
}

func TestNewRegistry(t *testing.T) {
	t.Parallel()

	_, ok := cmd.NewRegistry(testutil.Logger()).HealthCheck()
	assert.True(t, ok)
}
