// Package api serves the arm controller over HTTP/JSON.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/armguard/internal/arm"
	"github.com/banshee-data/armguard/internal/db"
	"github.com/banshee-data/armguard/internal/pose"
	"github.com/banshee-data/armguard/internal/safety"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// maxBodyBytes bounds request bodies; every request is a small JSON object.
const maxBodyBytes = 64 * 1024

type Server struct {
	ctrl *arm.Controller
	db   *db.DB
}

// NewServer returns a server for ctrl. database may be nil, in which case the
// journal endpoints answer 503.
func NewServer(ctrl *arm.Controller, database *db.DB) *Server {
	return &Server{
		ctrl: ctrl,
		db:   database,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/poses", s.listPoses)
	mux.HandleFunc("/api/poses/", s.showPose)
	mux.HandleFunc("/api/sequences", s.listSequences)
	mux.HandleFunc("/api/state", s.showState)
	mux.HandleFunc("/api/move", s.move)
	mux.HandleFunc("/api/home", s.home)
	mux.HandleFunc("/api/sequence", s.runSequence)
	mux.HandleFunc("/api/gripper", s.gripper)
	mux.HandleFunc("/api/estop", s.emergencyStop)
	mux.HandleFunc("/api/stats", s.showStats)
	mux.HandleFunc("/api/stats/reset", s.resetStats)
	mux.HandleFunc("/api/sensors", s.checkSensors)
	mux.HandleFunc("/api/events", s.listSafetyEvents)
	mux.HandleFunc("/api/events/counts", s.countSafetyEvents)
	mux.HandleFunc("/api/moves", s.listMoves)
	mux.HandleFunc("/api/link", s.listLinkLines)
	mux.HandleFunc("/api/reach/chart", s.reachChart)
	return mux
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to write response: %v", err)
	}
}

// requireMethod writes 405 and returns false unless r uses method.
func (s *Server) requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return false
	}
	return true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// controllerErrorStatus maps controller errors onto HTTP status codes.
func controllerErrorStatus(err error) int {
	var terr *arm.TransportError
	switch {
	case errors.Is(err, arm.ErrNotConnected):
		return http.StatusConflict
	case errors.Is(err, safety.ErrUnsafe):
		return http.StatusUnprocessableEntity
	case errors.As(err, &terr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeControllerError(w http.ResponseWriter, err error) {
	s.writeJSONError(w, controllerErrorStatus(err), err.Error())
}

type poseView struct {
	Pose  pose.Pose `json:"pose"`
	Reach float64   `json:"reach"`
}

func (s *Server) viewOf(p pose.Pose) poseView {
	return poseView{Pose: p, Reach: s.ctrl.Validator().CalculateReach(p)}
}

func (s *Server) listPoses(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodGet) {
		return
	}
	all := pose.All()
	views := make([]poseView, len(all))
	for i, p := range all {
		views[i] = s.viewOf(p)
	}
	s.writeJSON(w, http.StatusOK, views)
}

func (s *Server) showPose(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodGet) {
		return
	}
	name := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/poses/"), "/")
	p, err := pose.Get(name)
	if err != nil {
		s.writeJSONError(w, http.StatusNotFound, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, s.viewOf(p))
}

func (s *Server) listSequences(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodGet) {
		return
	}
	out := map[string][]string{}
	for _, name := range pose.SequenceNames() {
		seq, _ := pose.Sequence(name)
		names := make([]string, len(seq))
		for i, p := range seq {
			names[i] = p.Name()
		}
		out[name] = names
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) showState(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodGet) {
		return
	}
	s.writeJSON(w, http.StatusOK, s.ctrl.Status())
}

// parseMoveTarget accepts {"pose": "<catalog name>"} or explicit joints
// {"name": ..., "base": ..., "shoulder": ..., "elbow": ..., "wrist": ..., "gripper": ...}.
func parseMoveTarget(body map[string]any) (pose.Pose, error) {
	if raw, ok := body["pose"]; ok {
		name, ok := raw.(string)
		if !ok {
			return pose.Pose{}, errors.New("pose must be a string")
		}
		return pose.Get(name)
	}
	name, _ := body["name"].(string)
	if name == "" {
		name = "custom"
	}
	return pose.FromMap(name, body)
}

func (s *Server) move(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodPost) {
		return
	}
	var body map[string]any
	if err := decodeBody(w, r, &body); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	target, err := parseMoveTarget(body)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.ctrl.MoveToPose(r.Context(), target); err != nil {
		s.writeControllerError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.ctrl.Status())
}

func (s *Server) home(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodPost) {
		return
	}
	if err := s.ctrl.Home(r.Context()); err != nil {
		s.writeControllerError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.ctrl.Status())
}

type sequenceResult struct {
	Sequence  string `json:"sequence"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
	Error     string `json:"error,omitempty"`
}

func (s *Server) runSequence(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodPost) {
		return
	}
	var body struct {
		Sequence string `json:"sequence"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	seq, err := pose.Sequence(body.Sequence)
	if err != nil {
		s.writeJSONError(w, http.StatusNotFound, err.Error())
		return
	}

	n, err := s.ctrl.RunSequence(r.Context(), seq)
	res := sequenceResult{Sequence: body.Sequence, Completed: n, Total: len(seq)}
	if err != nil {
		res.Error = err.Error()
		s.writeJSON(w, controllerErrorStatus(err), res)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) gripper(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodPost) {
		return
	}
	var body struct {
		Action string `json:"action"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	var err error
	switch body.Action {
	case "open":
		err = s.ctrl.OpenGripper(r.Context())
	case "close":
		err = s.ctrl.CloseGripper(r.Context())
	default:
		s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("unknown gripper action %q: expected open or close", body.Action))
		return
	}
	if err != nil {
		s.writeControllerError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"gripper": body.Action})
}

func (s *Server) emergencyStop(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodPost) {
		return
	}
	if err := s.ctrl.EmergencyStop(); err != nil {
		s.writeControllerError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"stopped": true})
}

func (s *Server) showStats(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodGet) {
		return
	}
	s.writeJSON(w, http.StatusOK, s.ctrl.Stats())
}

func (s *Server) resetStats(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodPost) {
		return
	}
	s.ctrl.ResetStats()
	s.writeJSON(w, http.StatusOK, s.ctrl.Stats())
}

type sensorResult struct {
	Safe   bool   `json:"safe"`
	Reason string `json:"reason,omitempty"`
}

func (s *Server) checkSensors(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodPost) {
		return
	}
	var snap safety.SensorSnapshot
	if err := decodeBody(w, r, &snap); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	ok, err := s.ctrl.Guard(snap)
	res := sensorResult{Safe: ok}
	if err != nil {
		res.Reason = err.Error()
	}
	status := http.StatusOK
	var terr *arm.TransportError
	if errors.As(err, &terr) {
		status = http.StatusBadGateway
	}
	s.writeJSON(w, status, res)
}

func queryLimit(r *http.Request) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return db.DefaultListLimit, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid 'limit' parameter")
	}
	return n, nil
}

// journalQuery validates the request and returns the limit, or false after
// writing an error.
func (s *Server) journalQuery(w http.ResponseWriter, r *http.Request) (int, bool) {
	if !s.requireMethod(w, r, http.MethodGet) {
		return 0, false
	}
	if s.db == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "journal disabled")
		return 0, false
	}
	limit, err := queryLimit(r)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return 0, false
	}
	return limit, true
}

func (s *Server) listSafetyEvents(w http.ResponseWriter, r *http.Request) {
	limit, ok := s.journalQuery(w, r)
	if !ok {
		return
	}
	events, err := s.db.RecentSafetyEvents(r.URL.Query().Get("kind"), limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve events: %v", err))
		return
	}
	s.writeJSON(w, http.StatusOK, events)
}

func (s *Server) countSafetyEvents(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.journalQuery(w, r); !ok {
		return
	}
	counts, err := s.db.EventCounts()
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to count events: %v", err))
		return
	}
	s.writeJSON(w, http.StatusOK, counts)
}

func (s *Server) listMoves(w http.ResponseWriter, r *http.Request) {
	limit, ok := s.journalQuery(w, r)
	if !ok {
		return
	}
	moves, err := s.db.RecentMoves(limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve moves: %v", err))
		return
	}
	s.writeJSON(w, http.StatusOK, moves)
}

func (s *Server) listLinkLines(w http.ResponseWriter, r *http.Request) {
	limit, ok := s.journalQuery(w, r)
	if !ok {
		return
	}
	lines, err := s.db.RecentLinkLines(limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve link log: %v", err))
		return
	}
	s.writeJSON(w, http.StatusOK, lines)
}
