package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/df07/go-path-guiding/pkg/core"
	"github.com/df07/go-path-guiding/pkg/guiding"
	"github.com/df07/go-path-guiding/pkg/integrator"
	"github.com/df07/go-path-guiding/pkg/renderer"
)

// SSEEvent is a single server-sent event
type SSEEvent struct {
	Type string `json:"type"` // "console", "passComplete", "error", "complete"
	Data string `json:"data"` // JSON-encoded data
}

// PassUpdate summarizes a finished pass for the client
type PassUpdate struct {
	PassNumber      int               `json:"passNumber"`
	TotalPasses     int               `json:"totalPasses"`
	ElapsedMs       int64             `json:"elapsedMs"`
	PassMs          int64             `json:"passMs"`
	Paths           int               `json:"paths"`
	VerticesPerPath float64           `json:"verticesPerPath"`
	MeanRadiance    float64           `json:"meanRadiance"`
	Regions         int               `json:"regions"`
	STreeNodes      int               `json:"sTreeNodes"`
	SampleWeight    guiding.MinMaxAvg `json:"sampleWeight"`
	DTreeNodes      guiding.MinMaxAvg `json:"dTreeNodes"`
	IsLast          bool              `json:"isLast"`
}

// handleTrain runs a guided training session and streams each pass via SSE.
// The handler goroutine is the only writer to w.
func (s *Server) handleTrain(w http.ResponseWriter, r *http.Request) {
	s.setSSEHeaders(w)
	ctx := r.Context()

	req, err := s.parseTrainRequest(r)
	if err != nil {
		s.writeSSEEvent(w, SSEEvent{Type: "error", Data: fmt.Sprintf("Invalid request: %v", err)})
		return
	}

	consoleChan, webLogger := s.setupConsoleLogging()
	trainer := s.setupTrainingPipeline(req, webLogger)

	startTime := time.Now()
	passChan, errChan := trainer.Train(ctx)
	s.handleTrainingEvents(ctx, w, consoleChan, passChan, errChan, req, startTime)
}

// setSSEHeaders sets the required headers for Server-Sent Events
func (s *Server) setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
}

// setupConsoleLogging creates console channel and web logger for a run
func (s *Server) setupConsoleLogging() (chan ConsoleMessage, core.Logger) {
	consoleChan := make(chan ConsoleMessage, 50)
	runID := fmt.Sprintf("train-%d", time.Now().UnixNano())
	return consoleChan, NewWebLogger(runID, consoleChan)
}

// setupTrainingPipeline builds the scene, tree, integrator and trainer for a request
func (s *Server) setupTrainingPipeline(req *TrainRequest, logger core.Logger) *renderer.GuidedTrainer {
	sceneObj := s.createScene(req.Scene)
	tree := guiding.NewSTree(sceneObj.Bounds(), req.Guiding, logger)
	gi := integrator.NewGuidedIntegrator(sceneObj, tree, integrator.DefaultSamplingConfig())
	return renderer.NewGuidedTrainer(gi, req.Training, logger)
}

// handleTrainingEvents forwards console output and pass results until training ends
func (s *Server) handleTrainingEvents(ctx context.Context, w http.ResponseWriter, consoleChan chan ConsoleMessage,
	passChan <-chan renderer.PassResult, errChan <-chan error, req *TrainRequest, startTime time.Time) {

	for passChan != nil || errChan != nil {
		select {
		case msg := <-consoleChan:
			s.writeConsoleMessage(w, msg)

		case result, ok := <-passChan:
			if !ok {
				passChan = nil // Channel closed
				continue
			}
			s.writePassComplete(w, result, req, startTime)

		case err, ok := <-errChan:
			if !ok {
				errChan = nil // Channel closed, training completed successfully
				continue
			}
			if err != nil {
				s.drainConsole(w, consoleChan)
				s.writeSSEEvent(w, SSEEvent{Type: "error", Data: fmt.Sprintf("Training failed: %v", err)})
				return
			}

		case <-ctx.Done():
			// Client disconnected
			return
		}
	}

	s.drainConsole(w, consoleChan)
	s.writeSSEEvent(w, SSEEvent{Type: "complete", Data: "Training completed"})
}

// drainConsole writes any console messages still buffered
func (s *Server) drainConsole(w http.ResponseWriter, consoleChan chan ConsoleMessage) {
	for {
		select {
		case msg := <-consoleChan:
			s.writeConsoleMessage(w, msg)
		default:
			return
		}
	}
}

func (s *Server) writeConsoleMessage(w http.ResponseWriter, msg ConsoleMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("Error marshaling console message: %v", err)
		return
	}
	s.writeSSEEvent(w, SSEEvent{Type: "console", Data: string(data)})
}

// writePassComplete sends the statistics of a finished pass
func (s *Server) writePassComplete(w http.ResponseWriter, result renderer.PassResult, req *TrainRequest, startTime time.Time) {
	stats := result.Stats
	update := PassUpdate{
		PassNumber:      result.PassNumber,
		TotalPasses:     req.MaxPasses,
		ElapsedMs:       time.Since(startTime).Milliseconds(),
		PassMs:          stats.Elapsed.Milliseconds(),
		Paths:           stats.Paths,
		VerticesPerPath: stats.VerticesPerPath(),
		MeanRadiance:    stats.MeanRadiance().Luminance(),
		Regions:         stats.Tree.NumDTrees,
		STreeNodes:      stats.Tree.NumSTreeNodes,
		SampleWeight:    stats.Tree.SampleWeight,
		DTreeNodes:      stats.Tree.DTreeNodes,
		IsLast:          result.IsLast,
	}

	data, err := json.Marshal(update)
	if err != nil {
		log.Printf("Error marshaling pass update: %v", err)
		return
	}
	s.writeSSEEvent(w, SSEEvent{Type: "passComplete", Data: string(data)})
}

// writeSSEEvent writes and flushes one event
func (s *Server) writeSSEEvent(w http.ResponseWriter, event SSEEvent) error {
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, event.Data); err != nil {
		return err
	}
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
	return nil
}
