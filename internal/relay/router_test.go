package relay

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/fieldworkshq/surveysync/internal/store"
	"github.com/fieldworkshq/surveysync/internal/survey"
)

func newTestRouter(t *testing.T) (*Router, *store.StateStore) {
	t.Helper()
	stateStore, err := store.New(store.Config{
		Backend: store.NewMemoryStore(),
		Clock:   func() time.Time { return time.Unix(1700000000, 0) },
	})
	if err != nil {
		t.Fatalf("failed to build state store: %v", err)
	}
	router, err := NewRouter(RouterConfig{Store: stateStore, Hub: NewHub(nil)})
	if err != nil {
		t.Fatalf("failed to build router: %v", err)
	}
	return router, stateStore
}

func dispatchJSON(t *testing.T, router *Router, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("failed to marshal command: %v", err)
	}
	router.Dispatch(raw)
}

func TestDispatchAppliesCommandTable(t *testing.T) {
	router, stateStore := newTestRouter(t)

	dispatchJSON(t, router, map[string]any{
		"type": "add_survey",
		"survey": survey.Survey{
			ID:     "s1",
			Title:  "Loft insulation",
			Status: survey.StatusPending,
		},
	})
	dispatchJSON(t, router, map[string]any{
		"type":     "change_status",
		"surveyId": "s1",
		"status":   "in-progress",
	})
	dispatchJSON(t, router, map[string]any{
		"type": "add_file",
		"file": survey.FileMetadata{ID: "f1", SurveyID: "s1", Name: "report.pdf", Size: 1024},
	})

	snapshot := stateStore.Snapshot()
	if len(snapshot.Surveys) != 1 {
		t.Fatalf("expected 1 survey, got %d", len(snapshot.Surveys))
	}
	if snapshot.Surveys[0].Status != survey.StatusInProgress {
		t.Fatalf("expected status in-progress, got %s", snapshot.Surveys[0].Status)
	}
	if len(snapshot.Files["s1"]) != 1 {
		t.Fatalf("expected 1 file under s1, got %d", len(snapshot.Files["s1"]))
	}

	dispatchJSON(t, router, map[string]any{"type": "delete_file", "surveyId": "s1", "fileId": "f1"})
	dispatchJSON(t, router, map[string]any{"type": "delete_survey", "surveyId": "s1"})

	snapshot = stateStore.Snapshot()
	if len(snapshot.Surveys) != 0 {
		t.Fatalf("expected empty survey collection, got %d", len(snapshot.Surveys))
	}
	if len(snapshot.Files) != 0 {
		t.Fatalf("expected empty file mapping, got %d entries", len(snapshot.Files))
	}
}

func TestDispatchDropsMalformedAndUnknownMessages(t *testing.T) {
	router, stateStore := newTestRouter(t)

	router.Dispatch([]byte("{not json"))
	router.Dispatch([]byte(`{"type":"launch_rocket"}`))
	router.Dispatch([]byte(`{"type":"add_survey"}`))
	router.Dispatch([]byte(`{"type":"change_status","surveyId":"s1","status":"done"}`))

	snapshot := stateStore.Snapshot()
	if len(snapshot.Surveys) != 0 || len(snapshot.Files) != 0 {
		t.Fatalf("dropped messages must not mutate state: %+v", snapshot)
	}
}

func TestMutationsTargetingUnknownIdentifiersAreSilentNoOps(t *testing.T) {
	router, _ := newTestRouter(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, stream, cleanup := router.Subscribe(ctx)
	defer cleanup()

	if _, applied := router.UpdateSurvey(survey.Survey{ID: "ghost"}); applied {
		t.Fatal("update of unknown survey must not apply")
	}
	if _, applied := router.ChangeStatus("ghost", survey.StatusCompleted); applied {
		t.Fatal("status change of unknown survey must not apply")
	}
	if router.DeleteSurvey("ghost") {
		t.Fatal("delete of unknown survey must not apply")
	}
	if router.DeleteFile("ghost", "f1") {
		t.Fatal("delete of unknown file must not apply")
	}

	select {
	case event := <-stream:
		t.Fatalf("no-op mutations must not broadcast, got %+v", event)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDuplicateAddSurveyIsRejectedWithoutBroadcast(t *testing.T) {
	router, stateStore := newTestRouter(t)

	if _, applied := router.AddSurvey(survey.Survey{ID: "s1", Title: "first"}); !applied {
		t.Fatal("first add should apply")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, stream, cleanup := router.Subscribe(ctx)
	defer cleanup()

	if _, applied := router.AddSurvey(survey.Survey{ID: "s1", Title: "second"}); applied {
		t.Fatal("duplicate identifier must be a no-op")
	}

	select {
	case event := <-stream:
		t.Fatalf("duplicate add must not broadcast, got %+v", event)
	case <-time.After(100 * time.Millisecond):
	}

	snapshot := stateStore.Snapshot()
	if len(snapshot.Surveys) != 1 || snapshot.Surveys[0].Title != "first" {
		t.Fatalf("stored survey changed unexpectedly: %+v", snapshot.Surveys)
	}
}

func TestBroadcastPayloadMatchesEffectTable(t *testing.T) {
	router, _ := newTestRouter(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, stream, cleanup := router.Subscribe(ctx)
	defer cleanup()

	record := survey.Survey{ID: "s1", Title: "Heat pump assessment", Status: survey.StatusPending}
	router.AddSurvey(record)

	select {
	case event := <-stream:
		if event.Type != EventSurveyAdded {
			t.Fatalf("expected %s, got %s", EventSurveyAdded, event.Type)
		}
		if event.Survey == nil || event.Survey.ID != "s1" || event.Survey.Title != record.Title {
			t.Fatalf("broadcast payload should be the new survey, got %+v", event.Survey)
		}
		if event.Data != nil {
			t.Fatal("incremental events must not carry a snapshot")
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected survey_added broadcast")
	}

	router.DeleteSurvey("s1")
	select {
	case event := <-stream:
		if event.Type != EventSurveyDeleted || event.SurveyID != "s1" {
			t.Fatalf("expected survey_deleted with identifier, got %+v", event)
		}
		if event.Survey != nil {
			t.Fatal("delete broadcast should carry the identifier only")
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected survey_deleted broadcast")
	}
}

func TestSubscribeSnapshotReflectsStateAtRegistration(t *testing.T) {
	router, _ := newTestRouter(t)
	router.AddSurvey(survey.Survey{ID: "s1", Title: "existing"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	snapshot, stream, cleanup := router.Subscribe(ctx)
	defer cleanup()

	if len(snapshot.Surveys) != 1 || snapshot.Surveys[0].ID != "s1" {
		t.Fatalf("snapshot should contain pre-existing survey: %+v", snapshot.Surveys)
	}

	router.AddSurvey(survey.Survey{ID: "s2", Title: "after subscribe"})
	select {
	case event := <-stream:
		if event.Type != EventSurveyAdded || event.Survey.ID != "s2" {
			t.Fatalf("expected survey_added for s2, got %+v", event)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected broadcast for mutation after subscription")
	}
}
