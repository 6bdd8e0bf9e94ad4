package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lucasvieira/soletra/internal/gesture"
	"github.com/lucasvieira/soletra/internal/landmark"
	"github.com/lucasvieira/soletra/internal/ml"
	"github.com/lucasvieira/soletra/internal/recognition"
	"github.com/lucasvieira/soletra/internal/store"
)

type recognizeRequest struct {
	Landmarks    []landmark.Point `json:"landmarks"      validate:"required,len=21"`
	CollectForML *bool            `json:"collect_for_ml"`
}

// collectForML resolves the optional payload flag: collection is on by
// default and clients opt out explicitly.
func collectForML(v *bool) bool {
	return v == nil || *v
}

type recognizeResponse struct {
	Success bool               `json:"success"`
	Result  recognition.Result `json:"result"`
	Message string             `json:"message,omitempty"`
}

func (s *Server) handleRecognize(w http.ResponseWriter, r *http.Request) {
	var req recognizeRequest
	if err := s.decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "landmarks must contain exactly 21 points")
		return
	}

	result, err := s.cfg.Service.Recognize(r.Context(), req.Landmarks, collectForML(req.CollectForML))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := recognizeResponse{Success: result.Letter != "", Result: result}
	if !resp.Success {
		resp.Message = "no gesture recognized"
	}
	writeJSON(w, http.StatusOK, resp)
}

type saveGestureRequest struct {
	Letter    string           `json:"letter"    validate:"required,len=1"`
	Landmarks []landmark.Point `json:"landmarks" validate:"required,len=21"`
	Quality   int              `json:"quality"   validate:"gte=0,lte=100"`
}

type gestureResponse struct {
	Letter    string           `json:"letter"`
	Landmarks []landmark.Point `json:"landmarks"`
	Quality   int              `json:"quality"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

func toGestureResponse(rec gesture.Record) gestureResponse {
	return gestureResponse{
		Letter:    rec.Letter,
		Landmarks: rec.Landmarks.Slice(),
		Quality:   rec.Quality,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
}

func (s *Server) handleSaveGesture(w http.ResponseWriter, r *http.Request) {
	var req saveGestureRequest
	if err := s.decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "letter and 21 landmarks are required")
		return
	}

	if err := s.cfg.Cache.Save(r.Context(), req.Letter, req.Landmarks, req.Quality); err != nil {
		switch {
		case errors.Is(err, gesture.ErrInvalidLetter), errors.Is(err, gesture.ErrInvalidQuality),
			errors.Is(err, landmark.ErrLandmarkCount):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.logger.Error("save gesture failed", "letter", req.Letter, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to save gesture")
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "letter": req.Letter})
}

func (s *Server) handleListGestures(w http.ResponseWriter, r *http.Request) {
	records, err := s.cfg.Cache.All(r.Context())
	if err != nil {
		s.logger.Error("list gestures failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list gestures")
		return
	}

	out := make([]gestureResponse, 0, len(records))
	for letter := 'A'; letter <= 'Z'; letter++ {
		if rec, ok := records[string(letter)]; ok {
			out = append(out, toGestureResponse(rec))
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"gestures": out})
}

func (s *Server) handleGetGesture(w http.ResponseWriter, r *http.Request) {
	letter := chi.URLParam(r, "letter")

	rec, err := s.cfg.Cache.Get(r.Context(), letter)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "gesture not found")
		case errors.Is(err, gesture.ErrInvalidLetter):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.logger.Error("get gesture failed", "letter", letter, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to load gesture")
		}
		return
	}
	writeJSON(w, http.StatusOK, toGestureResponse(rec))
}

func (s *Server) handleDeleteGesture(w http.ResponseWriter, r *http.Request) {
	letter := chi.URLParam(r, "letter")

	if err := s.cfg.Cache.Delete(r.Context(), letter); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "gesture not found")
		case errors.Is(err, gesture.ErrInvalidLetter):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.logger.Error("delete gesture failed", "letter", letter, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to delete gesture")
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

type exportedGesture struct {
	Landmarks []landmark.Point `json:"landmarks" validate:"required,len=21"`
	Quality   int              `json:"quality"   validate:"gte=0,lte=100"`
}

func (s *Server) handleExportGestures(w http.ResponseWriter, r *http.Request) {
	records, err := s.cfg.Cache.All(r.Context())
	if err != nil {
		s.logger.Error("export gestures failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to export gestures")
		return
	}

	out := make(map[string]exportedGesture, len(records))
	for letter, rec := range records {
		out[letter] = exportedGesture{Landmarks: rec.Landmarks.Slice(), Quality: rec.Quality}
	}
	writeJSON(w, http.StatusOK, map[string]any{"gestures": out})
}

type importGesturesRequest struct {
	Gestures map[string]exportedGesture `json:"gestures" validate:"required,dive"`
}

func (s *Server) handleImportGestures(w http.ResponseWriter, r *http.Request) {
	var req importGesturesRequest
	if err := s.decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "gestures map with 21 landmarks per letter is required")
		return
	}

	imported := 0
	for letter, g := range req.Gestures {
		if err := s.cfg.Cache.Save(r.Context(), letter, g.Landmarks, g.Quality); err != nil {
			writeError(w, http.StatusBadRequest, "import failed at letter "+letter+": "+err.Error())
			return
		}
		imported++
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "imported": imported})
}

func (s *Server) handleInvalidateCache(w http.ResponseWriter, r *http.Request) {
	s.cfg.Cache.Invalidate()
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleSyncInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.cfg.Cache.SyncInfo(r.Context())
	if err != nil {
		s.logger.Error("sync info failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to collect sync info")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleTrainLetter(w http.ResponseWriter, r *http.Request) {
	letter := chi.URLParam(r, "letter")
	if err := gesture.ValidateLetter(letter); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	model, err := s.cfg.Trainer.TrainLetter(r.Context(), letter)
	if err != nil {
		if errors.Is(err, ml.ErrInsufficientData) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		s.logger.Error("training failed", "letter", letter, "error", err)
		writeError(w, http.StatusInternalServerError, "training failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"letter":        model.Letter,
		"accuracy":      model.Accuracy,
		"example_count": model.ExampleCount,
	})
}

func (s *Server) handleTrainAll(w http.ResponseWriter, r *http.Request) {
	trained, err := s.cfg.Trainer.TrainAll(r.Context())
	if err != nil {
		s.logger.Error("train all failed", "error", err)
		writeError(w, http.StatusInternalServerError, "training failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "trained": trained})
}

func (s *Server) handleModelStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.cfg.Trainer.ModelStats(r.Context())
	if err != nil {
		s.logger.Error("model stats failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to collect model stats")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": stats})
}

type feedbackRequest struct {
	PredictedLetter string           `json:"predicted_letter"`
	ActualLetter    string           `json:"actual_letter" validate:"required,len=1"`
	Confidence      float64          `json:"confidence"    validate:"gte=0,lte=1"`
	Landmarks       []landmark.Point `json:"landmarks"     validate:"required,len=21"`
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := s.decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "actual_letter and 21 landmarks are required")
		return
	}

	err := s.cfg.Service.AddFeedback(r.Context(), req.PredictedLetter, req.ActualLetter, req.Confidence, req.Landmarks)
	if err != nil {
		switch {
		case errors.Is(err, gesture.ErrInvalidLetter), errors.Is(err, landmark.ErrLandmarkCount):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.logger.Error("feedback failed", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to record feedback")
		}
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true})
}

type letterStatResponse struct {
	Letter           string     `json:"letter"`
	RecognitionCount int64      `json:"recognition_count"`
	LastRecognized   *time.Time `json:"last_recognized,omitempty"`
}

func (s *Server) handleLetterStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.cfg.Store.LetterStats(r.Context())
	if err != nil {
		s.logger.Error("letter stats failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to collect stats")
		return
	}

	out := make([]letterStatResponse, 0, len(stats))
	for _, st := range stats {
		out = append(out, letterStatResponse{
			Letter:           st.Letter,
			RecognitionCount: st.RecognitionCount,
			LastRecognized:   st.LastRecognized,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"letters": out})
}
