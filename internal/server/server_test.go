package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/lucasvieira/soletra/internal/gesture"
	"github.com/lucasvieira/soletra/internal/landmark"
	"github.com/lucasvieira/soletra/internal/ml"
	"github.com/lucasvieira/soletra/internal/recognition"
	"github.com/lucasvieira/soletra/internal/store"
)

func newTestServer(t *testing.T) (*Server, store.Store) {
	t.Helper()

	db, err := store.OpenSQLite(filepath.Join(t.TempDir(), "soletra.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	norm := landmark.Normalizer{}
	cache := gesture.NewCache(db, time.Hour)
	matcher := gesture.NewMatcher(cache, norm, gesture.DefaultRejectThreshold, nil)
	bank := ml.NewBank()
	trainer := ml.NewTrainer(db, bank, norm, ml.DefaultTrainerConfig(), nil)
	svc := recognition.NewService(matcher, bank, trainer, db, norm, recognition.Config{}, nil)

	return New(Config{
		Service: svc,
		Cache:   cache,
		Trainer: trainer,
		Store:   db,
	}), db
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	body := decodeBody[map[string]any](t, rec)
	require.Equal(t, "ok", body["status"])
	require.Contains(t, body, "uptime")
}

func TestGestureLifecycle(t *testing.T) {
	s, _ := newTestServer(t)
	fist := landmark.FistPose().Slice()

	rec := doJSON(t, s, http.MethodPost, "/api/gestures", saveGestureRequest{
		Letter: "A", Landmarks: fist, Quality: 90,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/api/gestures/A", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody[gestureResponse](t, rec)
	require.Equal(t, "A", got.Letter)
	require.Len(t, got.Landmarks, landmark.NumLandmarks)
	require.Equal(t, 90, got.Quality)

	rec = doJSON(t, s, http.MethodGet, "/api/gestures/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[map[string][]gestureResponse](t, rec)
	require.Len(t, list["gestures"], 1)

	rec = doJSON(t, s, http.MethodDelete, "/api/gestures/A", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/api/gestures/A", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSaveGestureRejectsBadInput(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/gestures", saveGestureRequest{
		Letter: "abc", Landmarks: landmark.FistPose().Slice(), Quality: 50,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/api/gestures", saveGestureRequest{
		Letter: "A", Landmarks: make([]landmark.Point, 5), Quality: 50,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/api/gestures", map[string]any{
		"letter": "A", "landmarks": landmark.FistPose().Slice(), "quality": 150,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecognizeRoundtrip(t *testing.T) {
	s, _ := newTestServer(t)
	fist := landmark.FistPose().Slice()

	rec := doJSON(t, s, http.MethodPost, "/api/gestures", saveGestureRequest{
		Letter: "S", Landmarks: fist, Quality: 95,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/api/recognize", recognizeRequest{Landmarks: fist})
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody[recognizeResponse](t, rec)
	require.True(t, resp.Success)
	require.Equal(t, "S", resp.Result.Letter)
	require.Equal(t, recognition.MethodTraditional, resp.Result.Method)
}

func TestRecognizeCollectsByDefault(t *testing.T) {
	s, db := newTestServer(t)
	ctx := context.Background()
	fist := landmark.FistPose().Slice()

	rec := doJSON(t, s, http.MethodPost, "/api/gestures", saveGestureRequest{
		Letter: "S", Landmarks: fist, Quality: 95,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	// No collect_for_ml field at all: collection is on by default.
	rec = doJSON(t, s, http.MethodPost, "/api/recognize", map[string]any{"landmarks": fist})
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, decodeBody[recognizeResponse](t, rec).Success)

	require.Eventually(t, func() bool {
		counts, err := db.CountExamplesByLetter(ctx)
		return err == nil && counts["S"] == 1
	}, 3*time.Second, 20*time.Millisecond)

	// An explicit opt-out leaves the example set alone.
	rec = doJSON(t, s, http.MethodPost, "/api/recognize", map[string]any{
		"landmarks": fist, "collect_for_ml": false,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	time.Sleep(100 * time.Millisecond)
	counts, err := db.CountExamplesByLetter(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, counts["S"])
}

func TestRecognizeEmptyEngine(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/recognize", recognizeRequest{
		Landmarks: landmark.OpenPalmPose().Slice(),
	})
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody[recognizeResponse](t, rec)
	require.False(t, resp.Success)
	require.Equal(t, recognition.MethodNone, resp.Result.Method)
	require.NotEmpty(t, resp.Message)
}

func TestRecognizeRejectsBadLandmarks(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/recognize", recognizeRequest{
		Landmarks: make([]landmark.Point, 10),
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExportImport(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/gestures", saveGestureRequest{
		Letter: "C", Landmarks: landmark.PointPose().Slice(), Quality: 70,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/api/gestures/export", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	exported := decodeBody[map[string]map[string]exportedGesture](t, rec)
	require.Contains(t, exported["gestures"], "C")

	// Import the export into a fresh server.
	s2, _ := newTestServer(t)
	rec = doJSON(t, s2, http.MethodPost, "/api/gestures/import", importGesturesRequest{
		Gestures: exported["gestures"],
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s2, http.MethodGet, "/api/gestures/C", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestSyncInfo(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/gestures", saveGestureRequest{
		Letter: "B", Landmarks: landmark.OpenPalmPose().Slice(), Quality: 80,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/api/sync", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	info := decodeBody[gesture.SyncInfo](t, rec)
	require.Equal(t, 1, info.Total)
	require.Contains(t, info.LettersPresent, "B")
	require.Len(t, info.LettersMissing, 25)
}

func TestInvalidateCache(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/cache/invalidate", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestTrainLetterWithoutExamples(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/train/A", nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/api/train/123", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTrainAllEmpty(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/train", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody[map[string]any](t, rec)
	require.EqualValues(t, 0, body["trained"])
}

func TestModelStats(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/api/models", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody[map[string][]ml.LetterModelStat](t, rec)
	require.Empty(t, body["models"])

	// A correction collects an example, which surfaces in the stats.
	rec = doJSON(t, s, http.MethodPost, "/api/feedback", feedbackRequest{
		PredictedLetter: "A",
		ActualLetter:    "B",
		Confidence:      0.9,
		Landmarks:       landmark.OpenPalmPose().Slice(),
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/api/models", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decodeBody[map[string][]ml.LetterModelStat](t, rec)
	require.Len(t, body["models"], 1)
	require.Equal(t, "B", body["models"][0].Letter)
	require.Equal(t, 1, body["models"][0].Examples)
	require.False(t, body["models"][0].HasModel)
}

func TestFeedback(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/feedback", feedbackRequest{
		PredictedLetter: "A",
		ActualLetter:    "B",
		Confidence:      0.8,
		Landmarks:       landmark.OpenPalmPose().Slice(),
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/api/feedback", feedbackRequest{
		ActualLetter: "BB",
		Landmarks:    landmark.OpenPalmPose().Slice(),
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLetterStats(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/gestures", saveGestureRequest{
		Letter: "D", Landmarks: landmark.PointPose().Slice(), Quality: 60,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody[map[string][]letterStatResponse](t, rec)
	letters := make([]string, 0, len(body["letters"]))
	for _, st := range body["letters"] {
		letters = append(letters, st.Letter)
	}
	require.Contains(t, letters, "D")
}

func TestStreamRecognition(t *testing.T) {
	s, _ := newTestServer(t)
	fist := landmark.FistPose().Slice()

	rec := doJSON(t, s, http.MethodPost, "/api/gestures", saveGestureRequest{
		Letter: "S", Landmarks: fist, Quality: 95,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	srv := httptest.NewServer(s)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/stream"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(streamFrame{Landmarks: fist}))

	var reply recognizeResponse
	require.NoError(t, conn.ReadJSON(&reply))
	require.True(t, reply.Success)
	require.Equal(t, "S", reply.Result.Letter)

	// Malformed frames keep the socket alive and report the problem as a
	// well-formed "none" result.
	require.NoError(t, conn.WriteJSON(streamFrame{Landmarks: fist[:3]}))
	require.NoError(t, conn.ReadJSON(&reply))
	require.False(t, reply.Success)
	require.Equal(t, recognition.MethodNone, reply.Result.Method)
	require.Empty(t, reply.Result.Letter)
	require.NotEmpty(t, reply.Message)
}
