package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/armguard/internal/arm"
	"github.com/banshee-data/armguard/internal/db"
	"github.com/banshee-data/armguard/internal/monitoring"
	"github.com/banshee-data/armguard/internal/pose"
	"github.com/banshee-data/armguard/internal/timeutil"
)

// stubLink records dispatched poses and gripper commands.
type stubLink struct {
	mu      sync.Mutex
	moves   []string
	gripper []string
	halts   int
	moveErr error
}

func (l *stubLink) MoveTo(ctx context.Context, p pose.Pose) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.moveErr != nil {
		return l.moveErr
	}
	l.moves = append(l.moves, p.Name())
	return nil
}

func (l *stubLink) OpenGripper(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.gripper = append(l.gripper, "open")
	return nil
}

func (l *stubLink) CloseGripper(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.gripper = append(l.gripper, "close")
	return nil
}

func (l *stubLink) Halt() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.halts++
	return nil
}

func (l *stubLink) Close() error { return nil }

func (l *stubLink) failMoves(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.moveErr = err
}

type testEnv struct {
	srv  *Server
	ctrl *arm.Controller
	link *stubLink
	db   *db.DB
	mux  *http.ServeMux
}

func newTestEnv(t *testing.T, withDB bool) *testEnv {
	t.Helper()
	prev := monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.SetLogger(prev) })

	env := &testEnv{link: &stubLink{}}
	cfg := arm.Config{Clock: timeutil.NewMockClock(timeutil.RealClock{}.Now())}
	if withDB {
		database, err := db.NewDB(filepath.Join(t.TempDir(), "api_test.db"))
		require.NoError(t, err)
		t.Cleanup(func() { database.Close() })
		env.db = database
		cfg.Recorder = database
	}
	env.ctrl = arm.NewController(func(context.Context) (arm.Link, error) { return env.link, nil }, cfg)
	env.srv = NewServer(env.ctrl, env.db)
	env.mux = env.srv.ServeMux()
	return env
}

func (e *testEnv) connect(t *testing.T) {
	t.Helper()
	require.NoError(t, e.ctrl.Connect(context.Background()))
}

func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	e.mux.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), "body: %s", w.Body.String())
	return v
}

func TestListPoses(t *testing.T) {
	env := newTestEnv(t, false)

	w := env.do(http.MethodGet, "/api/poses", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	views := decode[[]struct {
		Pose  map[string]any `json:"pose"`
		Reach float64        `json:"reach"`
	}](t, w)
	require.Len(t, views, len(pose.Names()))
	assert.Equal(t, "home", views[0].Pose["name"])
	assert.InDelta(t, env.ctrl.Validator().CalculateReach(pose.Home), views[0].Reach, 1e-9)
}

func TestShowPose(t *testing.T) {
	env := newTestEnv(t, false)

	w := env.do(http.MethodGet, "/api/poses/fold_middle", "")
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[map[string]any](t, w)
	assert.Equal(t, "fold_middle", got["pose"].(map[string]any)["name"])

	w = env.do(http.MethodGet, "/api/poses/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "available poses")
}

func TestListSequences(t *testing.T) {
	env := newTestEnv(t, false)

	w := env.do(http.MethodGet, "/api/sequences", "")
	require.Equal(t, http.StatusOK, w.Code)
	seqs := decode[map[string][]string](t, w)
	require.Contains(t, seqs, "towel_fold")
	assert.Len(t, seqs["towel_fold"], 9)
	assert.Len(t, seqs["shirt_fold"], 10)
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t, false)
	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/api/poses"},
		{http.MethodGet, "/api/move"},
		{http.MethodGet, "/api/estop"},
		{http.MethodPut, "/api/stats"},
		{http.MethodGet, "/api/stats/reset"},
		{http.MethodGet, "/api/sensors"},
	} {
		w := env.do(tc.method, tc.path, "")
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code, "%s %s", tc.method, tc.path)
	}
}

func TestState_Disconnected(t *testing.T) {
	env := newTestEnv(t, false)

	w := env.do(http.MethodGet, "/api/state", "")
	require.Equal(t, http.StatusOK, w.Code)
	st := decode[map[string]any](t, w)
	assert.Equal(t, "disconnected", st["state"])
	assert.NotContains(t, st, "pose")
}

func TestMove_NotConnected(t *testing.T) {
	env := newTestEnv(t, false)

	w := env.do(http.MethodPost, "/api/move", `{"pose":"pickup"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), arm.ErrNotConnected.Error())
}

func TestMove_CatalogPose(t *testing.T) {
	env := newTestEnv(t, false)
	env.connect(t)

	w := env.do(http.MethodPost, "/api/move", `{"pose":"pickup"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	st := decode[map[string]any](t, w)
	assert.Equal(t, "connected_at_pose", st["state"])
	assert.Equal(t, "pickup", st["pose"].(map[string]any)["name"])
	assert.Equal(t, []string{"home", "pickup"}, env.link.moves)
}

func TestMove_ExplicitJoints(t *testing.T) {
	env := newTestEnv(t, false)
	env.connect(t)

	w := env.do(http.MethodPost, "/api/move", `{"base":100,"shoulder":80,"elbow":95,"wrist":90,"gripper":30}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	p, ok := env.ctrl.CurrentPose()
	require.True(t, ok)
	assert.Equal(t, "custom", p.Name())
	assert.Equal(t, 100, p.Base())
}

func TestMove_BadRequests(t *testing.T) {
	env := newTestEnv(t, false)
	env.connect(t)

	tests := []struct {
		name string
		body string
	}{
		{"not json", `{"pose":`},
		{"unknown pose", `{"pose":"dance"}`},
		{"pose not string", `{"pose":7}`},
		{"missing joint", `{"base":90,"shoulder":90,"elbow":90,"wrist":90}`},
		{"fractional joint", `{"base":90.5,"shoulder":90,"elbow":90,"wrist":90,"gripper":10}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(http.MethodPost, "/api/move", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
	assert.Equal(t, []string{"home"}, env.link.moves)
}

func TestMove_Unsafe(t *testing.T) {
	env := newTestEnv(t, true)
	env.connect(t)

	w := env.do(http.MethodPost, "/api/move", `{"name":"too_far","base":200,"shoulder":90,"elbow":90,"wrist":90,"gripper":10}`)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "Base angle 200")

	w = env.do(http.MethodPost, "/api/move", `{"name":"tuck","base":90,"shoulder":30,"elbow":10,"wrist":90,"gripper":10}`)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "collision")

	stats := decode[map[string]int](t, env.do(http.MethodGet, "/api/stats", ""))
	assert.Equal(t, 1, stats["collision_count"])
	assert.Equal(t, 1, stats["safety_violation_count"])

	events := decode[[]db.SafetyEvent](t, env.do(http.MethodGet, "/api/events", ""))
	require.Len(t, events, 2)
	kinds := []string{events[0].Kind, events[1].Kind}
	assert.ElementsMatch(t, []string{arm.EventOutOfRange, arm.EventCollision}, kinds)

	filtered := decode[[]db.SafetyEvent](t, env.do(http.MethodGet, "/api/events?kind="+arm.EventCollision, ""))
	require.Len(t, filtered, 1)
	assert.Equal(t, "tuck", filtered[0].Pose)

	counts := decode[map[string]int](t, env.do(http.MethodGet, "/api/events/counts", ""))
	assert.Equal(t, 1, counts[arm.EventCollision])
}

func TestMove_TransportError(t *testing.T) {
	env := newTestEnv(t, false)
	env.connect(t)
	env.link.failMoves(errors.New("cable unplugged"))

	w := env.do(http.MethodPost, "/api/move", `{"pose":"pickup"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "cable unplugged")
}

func TestHome(t *testing.T) {
	env := newTestEnv(t, false)
	env.connect(t)

	require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/api/move", `{"pose":"pickup"}`).Code)
	w := env.do(http.MethodPost, "/api/home", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"home", "pickup", "home"}, env.link.moves)
}

func TestRunSequence(t *testing.T) {
	env := newTestEnv(t, true)
	env.connect(t)

	w := env.do(http.MethodPost, "/api/sequence", `{"sequence":"towel_fold"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[sequenceResult](t, w)
	assert.Equal(t, sequenceResult{Sequence: "towel_fold", Completed: 9, Total: 9}, res)
	assert.Len(t, env.link.moves, 10)

	moves := decode[[]db.Move](t, env.do(http.MethodGet, "/api/moves?limit=3", ""))
	assert.Len(t, moves, 3)
}

func TestRunSequence_Errors(t *testing.T) {
	env := newTestEnv(t, false)

	w := env.do(http.MethodPost, "/api/sequence", `{"sequence":"origami"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodPost, "/api/sequence", `{"sequence":"shirt_fold"}`)
	require.Equal(t, http.StatusConflict, w.Code)
	res := decode[sequenceResult](t, w)
	assert.Equal(t, 0, res.Completed)
	assert.Equal(t, 10, res.Total)
	assert.Contains(t, res.Error, "sequence step 1 (home)")
}

func TestGripper(t *testing.T) {
	env := newTestEnv(t, false)
	env.connect(t)

	assert.Equal(t, http.StatusOK, env.do(http.MethodPost, "/api/gripper", `{"action":"open"}`).Code)
	assert.Equal(t, http.StatusOK, env.do(http.MethodPost, "/api/gripper", `{"action":"close"}`).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/api/gripper", `{"action":"wave"}`).Code)
	assert.Equal(t, []string{"open", "close"}, env.link.gripper)
}

func TestEmergencyStop(t *testing.T) {
	env := newTestEnv(t, false)

	assert.Equal(t, http.StatusConflict, env.do(http.MethodPost, "/api/estop", "").Code)

	env.connect(t)
	w := env.do(http.MethodPost, "/api/estop", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]bool{"stopped": true}, decode[map[string]bool](t, w))
	assert.Equal(t, 1, env.link.halts)
}

func TestStatsReset(t *testing.T) {
	env := newTestEnv(t, false)
	env.connect(t)

	env.do(http.MethodPost, "/api/move", `{"base":200,"shoulder":90,"elbow":90,"wrist":90,"gripper":10}`)
	require.Equal(t, 1, env.ctrl.Stats().SafetyViolationCount)

	w := env.do(http.MethodPost, "/api/stats/reset", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]int{"collision_count": 0, "safety_violation_count": 0}, decode[map[string]int](t, w))
}

func TestSensors(t *testing.T) {
	env := newTestEnv(t, false)
	env.connect(t)

	w := env.do(http.MethodPost, "/api/sensors", `{"distance":20,"force":2,"temperature":30}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, sensorResult{Safe: true}, decode[sensorResult](t, w))
	assert.Equal(t, 0, env.link.halts)

	w = env.do(http.MethodPost, "/api/sensors", `{"force":12.5}`)
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[sensorResult](t, w)
	assert.False(t, res.Safe)
	assert.Contains(t, res.Reason, "force")
	assert.Equal(t, 1, env.link.halts)

	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/api/sensors", `[1]`).Code)
}

func TestJournal_Disabled(t *testing.T) {
	env := newTestEnv(t, false)
	for _, path := range []string{"/api/events", "/api/events/counts", "/api/moves", "/api/link"} {
		assert.Equal(t, http.StatusServiceUnavailable, env.do(http.MethodGet, path, "").Code, path)
	}
}

func TestJournal_LinkLinesAndLimit(t *testing.T) {
	env := newTestEnv(t, true)
	require.NoError(t, env.db.RecordLinkResponse("ok b90"))
	require.NoError(t, env.db.RecordLinkResponse("ok s45"))

	lines := decode[[]db.LinkLine](t, env.do(http.MethodGet, "/api/link?limit=1", ""))
	require.Len(t, lines, 1)
	assert.Equal(t, "ok s45", lines[0].Line)

	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/api/link?limit=0", "").Code)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/api/moves?limit=x", "").Code)
}

func TestReachChart(t *testing.T) {
	env := newTestEnv(t, false)

	w := env.do(http.MethodGet, "/api/reach/chart?step=15", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "End-effector reach")
	assert.Contains(t, w.Body.String(), "collision zone")

	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/api/reach/chart?step=0", "").Code)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/api/reach/chart?step=90", "").Code)
	assert.Equal(t, 0, env.ctrl.Stats().CollisionCount)
}

func TestReachGrid_SplitsCollisionZone(t *testing.T) {
	cfg := newTestEnv(t, false).ctrl.Validator().Config()

	free, blocked, maxReach := reachGrid(cfg, 5)
	// shoulder 15..165 and elbow 0..180 in 5° steps
	assert.Len(t, append(free, blocked...), 31*37)
	// zone covers shoulder 15..40 and elbow 0..30
	assert.Len(t, blocked, 6*7)
	assert.Greater(t, maxReach, 0.0)
}

func TestStatusCodeColor(t *testing.T) {
	assert.Equal(t, colorBoldGreen+"200"+colorReset, statusCodeColor(200))
	assert.Equal(t, colorYellow+"302"+colorReset, statusCodeColor(302))
	assert.Equal(t, colorBoldRed+"500"+colorReset, statusCodeColor(500))
	assert.Equal(t, "100", statusCodeColor(100))
}

func TestLoggingMiddleware_PassesStatus(t *testing.T) {
	h := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusTeapot, w.Code)
}
