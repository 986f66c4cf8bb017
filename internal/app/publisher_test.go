package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/keyword-crawler/internal/config"
)

func TestSetupPublisherDisabledWithoutTopic(t *testing.T) {
	t.Parallel()

	a := &App{cfg: config.Config{}, logger: zap.NewNop()}
	pub, err := a.setupPublisher(context.Background())
	require.NoError(t, err)
	assert.Nil(t, pub, "no events are buffered when Pub/Sub is off")
	assert.Nil(t, a.pubsubPublisher)
}
