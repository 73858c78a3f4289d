package runnerstub

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/stackmesh/runboard/internal/domain"
	"github.com/stackmesh/runboard/internal/runnerapi"
	"github.com/stackmesh/runboard/internal/runnerwire"
)

func demoPlan() domain.Plan {
	return domain.Plan{
		Spec: "demo",
		Batches: []domain.PlanBatch{
			{ID: "b1", Name: "Schema", Tasks: []string{"add tables"}},
			{ID: "b2", Name: "API", Tasks: []string{"add endpoints"}, DependsOn: []string{"b1"}},
		},
	}
}

func startStub(t *testing.T, cfg Config) (*httptest.Server, *runnerapi.Client) {
	t.Helper()
	stub := New(cfg)
	srv := httptest.NewServer(stub.Handler())
	t.Cleanup(srv.Close)
	return srv, runnerapi.NewClient(srv.URL)
}

func drainStream(t *testing.T, url string) []runnerwire.Message {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial stream: %v", err)
	}
	defer conn.Close()

	var msgs []runnerwire.Message
	for {
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return msgs
		}
		msgs = append(msgs, runnerwire.Decode(data))
	}
}

func TestServer_PlaysFullScript(t *testing.T) {
	_, client := startStub(t, Config{Plan: demoPlan(), StepInterval: time.Millisecond})

	ctx := context.Background()
	if err := client.StartExecution(ctx, "demo", "run-1", false); err != nil {
		t.Fatal(err)
	}

	msgs := drainStream(t, client.StreamURL("run-1"))
	if len(msgs) == 0 {
		t.Fatal("no messages streamed")
	}

	last := msgs[len(msgs)-1]
	if last.Type != runnerwire.TypeStatus || last.Status != runnerwire.StatusCompleted {
		t.Errorf("last message = %+v, want completed status", last)
	}

	var sawSpawn, sawMerge bool
	for _, m := range msgs {
		if strings.HasPrefix(m.Message, "Spawning batch: Schema") {
			sawSpawn = true
		}
		if strings.HasPrefix(m.Message, "Successfully merged batch 'API'") {
			sawMerge = true
		}
	}
	if !sawSpawn || !sawMerge {
		t.Errorf("script missing narrative lines (spawn=%v merge=%v)", sawSpawn, sawMerge)
	}
}

func TestServer_FailBatchEndsRun(t *testing.T) {
	_, client := startStub(t, Config{Plan: demoPlan(), StepInterval: time.Millisecond, FailBatch: "b1"})

	if err := client.StartExecution(context.Background(), "demo", "run-2", false); err != nil {
		t.Fatal(err)
	}

	msgs := drainStream(t, client.StreamURL("run-2"))
	last := msgs[len(msgs)-1]
	if last.Status != runnerwire.StatusFailed {
		t.Errorf("last status = %q, want failed", last.Status)
	}
	for _, m := range msgs {
		if m.BatchID == "b2" {
			t.Errorf("b2 should never start after b1 fails, saw %+v", m)
		}
	}
}

func TestServer_AbortRequestStopsStream(t *testing.T) {
	_, client := startStub(t, Config{Plan: demoPlan(), StepInterval: 20 * time.Millisecond})

	if err := client.StartExecution(context.Background(), "demo", "run-3", false); err != nil {
		t.Fatal(err)
	}

	conn, _, err := websocket.DefaultDialer.Dial(client.StreamURL("run-3"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(runnerwire.NewAbortRequest()); err != nil {
		t.Fatal(err)
	}

	var last runnerwire.Message
	for {
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		last = runnerwire.Decode(data)
	}
	if last.Status != runnerwire.StatusAborted {
		t.Errorf("last status = %q, want aborted", last.Status)
	}
}

func TestServer_ServesPlan(t *testing.T) {
	_, client := startStub(t, Config{Plan: demoPlan()})

	plan, err := client.FetchPlan(context.Background(), "some-spec")
	if err != nil {
		t.Fatal(err)
	}
	if plan.Spec != "some-spec" {
		t.Errorf("Spec = %q, want some-spec", plan.Spec)
	}
	if len(plan.Batches) != 2 {
		t.Errorf("Batches = %d, want 2", len(plan.Batches))
	}
}

func TestServer_StopExecution(t *testing.T) {
	_, client := startStub(t, Config{Plan: demoPlan(), StepInterval: time.Millisecond})

	ctx := context.Background()
	if err := client.StartExecution(ctx, "demo", "run-4", false); err != nil {
		t.Fatal(err)
	}
	if err := client.StopExecution(ctx, "run-4"); err != nil {
		t.Fatal(err)
	}
	if err := client.StopExecution(ctx, "never-started"); err == nil {
		t.Error("stopping an unknown run should error")
	}
}
