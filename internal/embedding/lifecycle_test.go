package embedding

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWarmUpCreatesClientOnce(t *testing.T) {
	fake := withFakeEmbedder(t, 4)
	svc := NewService(llmConfigForTest(), 4, nil)
	ctx := context.Background()

	require.NoError(t, svc.WarmUp(ctx))
	require.NoError(t, svc.WarmUp(ctx))
	assert.Len(t, fake.calls, 2, "two warmups, one shared client")
}

func TestCloseRejectsFurtherUse(t *testing.T) {
	withFakeEmbedder(t, 4)
	svc := NewService(llmConfigForTest(), 4, nil)
	ctx := context.Background()

	require.NoError(t, svc.WarmUp(ctx))
	require.NoError(t, svc.Close())

	_, err := svc.EmbedQuery(ctx, "after close")
	require.Error(t, err)
}
