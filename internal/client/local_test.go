package client

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/fieldworkshq/surveysync/internal/relay"
	"github.com/fieldworkshq/surveysync/internal/store"
	"github.com/fieldworkshq/surveysync/internal/survey"
	"go.uber.org/zap"
)

func readLocalEvent(t *testing.T, transport *LocalTransport) relay.Event {
	t.Helper()
	select {
	case event := <-transport.Events():
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for local event")
		return relay.Event{}
	}
}

func TestLocalTransportEchoesCommandsAsEvents(t *testing.T) {
	transport, err := NewLocalTransport(LocalConfig{})
	if err != nil {
		t.Fatalf("failed to build local transport: %v", err)
	}
	defer transport.Close()

	session := NewSession(nil)
	session.Apply(readLocalEvent(t, transport))

	if err := transport.Submit(relay.Command{
		Type:   relay.CommandAddSurvey,
		Survey: &survey.Survey{ID: "s1", Title: "Storage heater check", Status: survey.StatusPending},
	}); err != nil {
		t.Fatalf("unexpected submit error: %v", err)
	}

	event := readLocalEvent(t, transport)
	if event.Type != relay.EventSurveyAdded {
		t.Fatalf("expected survey_added echo, got %s", event.Type)
	}
	session.Apply(event)

	if got := session.Surveys(); len(got) != 1 || got[0].ID != "s1" {
		t.Fatalf("local mode cache should update from the echoed event, got %+v", got)
	}
}

func TestLocalTransportFirstEventIsInitialSnapshot(t *testing.T) {
	backend, err := store.NewJSONFileStore(filepath.Join(t.TempDir(), "local.json"), zap.NewNop())
	if err != nil {
		t.Fatalf("failed to build backend: %v", err)
	}
	if err := backend.Save(survey.Snapshot{
		Surveys: []survey.Survey{{ID: "persisted", Status: survey.StatusCompleted}},
		Files:   map[string][]survey.FileMetadata{},
	}); err != nil {
		t.Fatalf("failed to seed backend: %v", err)
	}

	transport, err := NewLocalTransport(LocalConfig{Backend: backend})
	if err != nil {
		t.Fatalf("failed to build local transport: %v", err)
	}
	defer transport.Close()

	event := readLocalEvent(t, transport)
	if event.Type != relay.EventInitial {
		t.Fatalf("expected initial event first, got %s", event.Type)
	}
	if event.Data == nil || len(event.Data.Surveys) != 1 || event.Data.Surveys[0].ID != "persisted" {
		t.Fatalf("initial event should carry the persisted state, got %+v", event.Data)
	}
}

func TestLocalTransportPersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "local.json")

	backend, err := store.NewJSONFileStore(path, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to build backend: %v", err)
	}
	transport, err := NewLocalTransport(LocalConfig{Backend: backend})
	if err != nil {
		t.Fatalf("failed to build local transport: %v", err)
	}
	readLocalEvent(t, transport)
	if err := transport.Submit(relay.Command{
		Type:   relay.CommandAddSurvey,
		Survey: &survey.Survey{ID: "s1", Status: survey.StatusPending},
	}); err != nil {
		t.Fatalf("unexpected submit error: %v", err)
	}
	readLocalEvent(t, transport)
	transport.Close()

	reopenedBackend, err := store.NewJSONFileStore(path, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to rebuild backend: %v", err)
	}
	reopened, err := NewLocalTransport(LocalConfig{Backend: reopenedBackend})
	if err != nil {
		t.Fatalf("failed to rebuild local transport: %v", err)
	}
	defer reopened.Close()

	event := readLocalEvent(t, reopened)
	if event.Data == nil || len(event.Data.Surveys) != 1 || event.Data.Surveys[0].ID != "s1" {
		t.Fatalf("state should survive across local instances, got %+v", event.Data)
	}
}
