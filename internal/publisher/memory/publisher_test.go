package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublisherRecordsMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	id1, err := pub.Publish(context.Background(), "notes", map[string]string{"k": "v"})
	require.NoError(t, err)
	require.Equal(t, "memory-1", id1)
	id2, err := pub.Publish(context.Background(), "other", "payload")
	require.NoError(t, err)
	require.Equal(t, "memory-2", id2)

	require.Len(t, pub.Messages(""), 2)
	notes := pub.Messages("notes")
	require.Len(t, notes, 1)
	require.Equal(t, "memory-1", notes[0].ID)

	notes[0].Topic = "modified"
	require.Equal(t, "notes", pub.Messages("notes")[0].Topic, "Messages should return a copy")
}

func TestPublisherFailWith(t *testing.T) {
	t.Parallel()

	pub := New()
	boom := errors.New("boom")
	pub.FailWith(boom)
	_, err := pub.Publish(context.Background(), "notes", "x")
	require.ErrorIs(t, err, boom)
	require.Empty(t, pub.Messages(""))

	pub.FailWith(nil)
	_, err = pub.Publish(context.Background(), "notes", "x")
	require.NoError(t, err)
}
