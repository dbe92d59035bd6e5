package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/admitkit/deadline-crawler/internal/admissions"
	"github.com/admitkit/deadline-crawler/internal/events"
)

func TestPublisherRecordsEvents(t *testing.T) {
	t.Parallel()

	pub := New()
	err := pub.Publish(context.Background(), events.Event{
		Type:  events.TypeRunStarted,
		RunID: "run-1",
		Kind:  admissions.RunKindCrawl,
	})
	require.NoError(t, err)
	err = pub.Publish(context.Background(), events.Event{
		Type:   events.TypeRunFinished,
		RunID:  "run-1",
		Kind:   admissions.RunKindCrawl,
		Status: admissions.RunStatusCompleted,
	})
	require.NoError(t, err)

	got := pub.Events()
	require.Len(t, got, 2)
	require.Equal(t, events.TypeRunStarted, got[0].Type)
	require.Equal(t, admissions.RunStatusCompleted, got[1].Status)

	got[0].RunID = "mutated"
	require.Equal(t, "run-1", pub.Events()[0].RunID)
}
