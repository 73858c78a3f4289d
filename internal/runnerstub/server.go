// Package runnerstub is a fake backend runner for demos and end-to-end
// tests. It serves the runner's REST control endpoints and plays back a
// scripted event stream over WebSocket, so the dashboard can be
// exercised without a real job runner.
package runnerstub

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/stackmesh/runboard/internal/domain"
	"github.com/stackmesh/runboard/internal/runnerwire"
)

// Config configures the stub runner
type Config struct {
	// Plan is the plan served for every spec and driven by the script.
	Plan domain.Plan
	// StepInterval is the pause between scripted stream messages.
	StepInterval time.Duration
	// FailBatch, if set, makes the named batch fail instead of complete.
	FailBatch string
	// DropAfter, if > 0, closes the stream connection after that many
	// messages to exercise reconnection. Each new connection resumes
	// the script from the beginning of the remaining messages.
	DropAfter int
}

// Server is the stub runner's HTTP server
type Server struct {
	cfg      Config
	upgrader websocket.Upgrader
	server   *http.Server

	mu   sync.Mutex
	runs map[string]*runState
}

type runState struct {
	spec    string
	dryRun  bool
	next    int // index of next script message to send
	aborted bool
}

// New creates a stub runner
func New(cfg Config) *Server {
	if cfg.StepInterval == 0 {
		cfg.StepInterval = 400 * time.Millisecond
	}
	return &Server{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		runs: make(map[string]*runState),
	}
}

// Handler returns the stub's HTTP handler
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/executions", s.handleStart)
	mux.HandleFunc("/api/executions/", s.handleStop)
	mux.HandleFunc("/api/specs/", s.handlePlan)
	mux.HandleFunc("/api/runs/", s.handleStream)
	return mux
}

// Start starts the stub server on addr and blocks until it exits
func (s *Server) Start(ctx context.Context, addr string) error {
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		s.server.Close()
	}()

	log.Printf("stub runner listening on %s", addr)
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop stops the stub server
func (s *Server) Stop() error {
	if s.server != nil {
		return s.server.Close()
	}
	return nil
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Spec   string `json:"spec"`
		RunID  string `json:"run_id"`
		DryRun bool   `json:"dry_run"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.RunID == "" {
		writeControl(w, false, "run_id is required")
		return
	}

	s.mu.Lock()
	s.runs[req.RunID] = &runState{spec: req.Spec, dryRun: req.DryRun}
	s.mu.Unlock()

	writeControl(w, true, "")
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	runID := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/executions/"), "/stop")

	s.mu.Lock()
	run, ok := s.runs[runID]
	if ok {
		run.aborted = true
	}
	s.mu.Unlock()

	writeControl(w, ok, "")
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	spec := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/specs/"), "/plan")

	plan := s.cfg.Plan
	plan.Spec = spec

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(plan)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	runID := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/runs/"), "/stream")

	s.mu.Lock()
	run, ok := s.runs[runID]
	s.mu.Unlock()
	if !ok {
		http.Error(w, "unknown run", http.StatusNotFound)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("upgrade failed: %v", err)
		return
	}

	go s.playScript(conn, run)
}

// playScript streams the scripted run to the client. It resumes from
// wherever a previous connection left off, so dropped connections pick
// up mid-run after a reconnect.
func (s *Server) playScript(conn *websocket.Conn, run *runState) {
	defer conn.Close()

	abort := make(chan struct{})
	go s.readControl(conn, run, abort)

	script := s.script()
	sent := 0
	for {
		s.mu.Lock()
		if run.aborted {
			s.mu.Unlock()
			s.send(conn, runnerwire.Message{Type: runnerwire.TypeStatus, Status: runnerwire.StatusAborted})
			return
		}
		if run.next >= len(script) {
			s.mu.Unlock()
			return
		}
		msg := script[run.next]
		run.next++
		s.mu.Unlock()

		if err := s.send(conn, msg); err != nil {
			return
		}
		sent++

		if s.cfg.DropAfter > 0 && sent >= s.cfg.DropAfter {
			return
		}

		select {
		case <-abort:
		case <-time.After(s.cfg.StepInterval):
		}
	}
}

// readControl watches the inbound side of the stream for abort requests
func (s *Server) readControl(conn *websocket.Conn, run *runState, abort chan struct{}) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var req runnerwire.AbortRequest
		if err := json.Unmarshal(data, &req); err != nil {
			continue
		}
		if req.Action == "abort" {
			s.mu.Lock()
			run.aborted = true
			s.mu.Unlock()
			select {
			case abort <- struct{}{}:
			default:
			}
		}
	}
}

func (s *Server) send(conn *websocket.Conn, msg runnerwire.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// script builds the full message sequence for one run of the plan
func (s *Server) script() []runnerwire.Message {
	msgs := []runnerwire.Message{
		{Type: runnerwire.TypeStatus, Status: runnerwire.StatusRunning},
	}

	for _, b := range s.cfg.Plan.Batches {
		name := b.Name
		if name == "" {
			name = b.ID
		}

		msgs = append(msgs,
			runnerwire.Message{Type: runnerwire.TypeBatchStatus, BatchID: b.ID, Status: "waiting"},
			runnerwire.Message{Type: runnerwire.TypeLog, Message: fmt.Sprintf("Spawning batch: %s", name)},
			runnerwire.Message{Type: runnerwire.TypeBatchStatus, BatchID: b.ID, Status: "running"},
		)

		for _, task := range b.Tasks {
			msgs = append(msgs, runnerwire.Message{
				Type:    runnerwire.TypeLog,
				BatchID: b.ID,
				Message: "Working on " + task,
			})
		}

		if b.ID == s.cfg.FailBatch {
			msgs = append(msgs,
				runnerwire.Message{
					Type:    runnerwire.TypeBatchStatus,
					BatchID: b.ID,
					Status:  "failed",
					Error:   "task runner exited with code 1",
				},
				runnerwire.Message{Type: runnerwire.TypeStatus, Status: runnerwire.StatusFailed},
			)
			return msgs
		}

		msgs = append(msgs,
			runnerwire.Message{
				Type:    runnerwire.TypeLog,
				Message: fmt.Sprintf("Batch %s completed on branch runner/%s", b.ID, b.ID),
			},
			runnerwire.Message{Type: runnerwire.TypeBatchStatus, BatchID: b.ID, Status: "completed"},
			runnerwire.Message{
				Type:    runnerwire.TypeLog,
				Message: fmt.Sprintf("Successfully merged batch '%s'", name),
			},
		)
	}

	msgs = append(msgs,
		runnerwire.Message{Type: runnerwire.TypeLog, Message: "Mission completed: all batches merged"},
		runnerwire.Message{Type: runnerwire.TypeStatus, Status: runnerwire.StatusCompleted},
	)
	return msgs
}

func writeControl(w http.ResponseWriter, success bool, message string) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": success,
		"message": message,
	})
}
