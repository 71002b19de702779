package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/wayfinder/internal/log"
	"github.com/felixgeelhaar/wayfinder/internal/task"
	"github.com/felixgeelhaar/wayfinder/internal/tool"
	"github.com/felixgeelhaar/wayfinder/pkg/wayfinder/types"
)

func TestMatchesETag(t *testing.T) {
	tag := etagFor([]byte(`{"id":"a"}`))

	tests := []struct {
		header string
		want   bool
	}{
		{tag, true},
		{"W/" + tag, true},
		{`"other", ` + tag, true},
		{"*", true},
		{`"other"`, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, matchesETag(tt.header, tag), tt.header)
	}
	assert.NotEqual(t, tag, etagFor([]byte(`{"id":"b"}`)))
}

func TestTaskPollingUsesETag(t *testing.T) {
	env := newTestEnv(t)

	first := env.do(t, http.MethodGet, "/task/some-task", nil)
	require.Equal(t, http.StatusOK, first.StatusCode)
	tag := first.Header.Get("ETag")
	require.NotEmpty(t, tag)

	req, err := http.NewRequest(http.MethodGet, env.http.URL+"/task/some-task", nil)
	require.NoError(t, err)
	req.Header.Set("If-None-Match", tag)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotModified, resp.StatusCode)
}

func TestItineraryListETagChangesAfterSave(t *testing.T) {
	env := newTestEnv(t)

	before := env.do(t, http.MethodGet, "/itinerary", nil).Header.Get("ETag")
	env.do(t, http.MethodPost, "/itinerary", types.SaveItineraryRequest{LocalID: "l1", Destination: "Oslo"})
	after := env.do(t, http.MethodGet, "/itinerary", nil).Header.Get("ETag")

	assert.NotEmpty(t, before)
	assert.NotEqual(t, before, after)
}

// inlineDispatcher runs the task before Dispatch returns.
type inlineDispatcher struct{ exec task.Executor }

func (d inlineDispatcher) Dispatch(ctx context.Context, t *task.Task) error {
	return d.exec.Execute(ctx, t.ID)
}

type brokenCreative struct{}

func (brokenCreative) Poster(context.Context, tool.CreativeBrief) (string, error) {
	return "", fmt.Errorf("renderer offline")
}

func (brokenCreative) DayPoster(context.Context, tool.CreativeBrief, int, string) (string, error) {
	return "", fmt.Errorf("renderer offline")
}

func (brokenCreative) Video(context.Context, tool.CreativeBrief, string) (string, error) {
	return "", fmt.Errorf("renderer offline")
}

func TestTerminalTaskPollsAreStable(t *testing.T) {
	tests := []struct {
		name     string
		creative tool.Creative
		want     types.TaskStatus
	}{
		{"completed", tool.PlaceholderCreative{}, types.TaskCompleted},
		{"failed", brokenCreative{}, types.TaskFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			worker := task.NewWorker(env.tasks.Store(), tt.creative, task.WithWorkerLogger(log.Discard()))
			env.tasks.SetDispatcher(inlineDispatcher{exec: worker})

			id, err := env.tasks.Create(context.Background(), tool.CreativeBrief{
				Destination: "Lisbon",
				Summary:     "3 days in Lisbon",
				DayThemes:   []string{"old town", "coast", "food"},
			})
			require.NoError(t, err)

			var first []byte
			var firstTag string
			for i := 0; i < 3; i++ {
				resp := env.do(t, http.MethodGet, "/task/"+id, nil)
				require.Equal(t, http.StatusOK, resp.StatusCode)
				body, err := io.ReadAll(resp.Body)
				resp.Body.Close()
				require.NoError(t, err)

				if i == 0 {
					first, firstTag = body, resp.Header.Get("ETag")
					var view types.TaskView
					require.NoError(t, json.Unmarshal(body, &view))
					assert.Equal(t, tt.want, view.Status)
					continue
				}
				assert.Equal(t, string(first), string(body), "poll %d", i)
				assert.Equal(t, firstTag, resp.Header.Get("ETag"), "poll %d", i)
			}
		})
	}
}
