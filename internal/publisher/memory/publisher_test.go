package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublisherStoresMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	id1, err := pub.Publish(context.Background(), "topic-a", map[string]string{"url": "https://example.com"})
	require.NoError(t, err)
	require.Equal(t, "memory-1", id1)
	id2, err := pub.Publish(context.Background(), "topic-b", "payload")
	require.NoError(t, err)
	require.Equal(t, "memory-2", id2)

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "topic-a", msgs[0].Topic)
	require.Equal(t, "topic-b", msgs[1].Topic)

	msgs[0].Topic = "modified"
	require.Equal(t, "topic-a", pub.Messages()[0].Topic, "Messages must return a copy")
}

func TestPublisherFailNext(t *testing.T) {
	t.Parallel()

	pub := New()
	pub.FailWith(context.DeadlineExceeded)
	_, err := pub.Publish(context.Background(), "t", nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Empty(t, pub.Messages())

	_, err = pub.Publish(context.Background(), "t", nil)
	require.NoError(t, err)
}
