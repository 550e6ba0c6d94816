package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"digidiary/internal/domain"
	"digidiary/internal/middleware"
	"digidiary/internal/service"
	"digidiary/pkg/response"

	"github.com/gorilla/mux"
)

type NoteHandler struct {
	service *service.NoteService
}

func NewNoteHandler(service *service.NoteService) *NoteHandler {
	return &NoteHandler{
		service: service,
	}
}

// List serves GET /notes, optionally filtered with ?since=<epoch ms>.
func (h *NoteHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)

	var since *int64
	if raw := r.URL.Query().Get("since"); raw != "" {
		ts, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			response.BadRequest(w, "since must be a timestamp in milliseconds")
			return
		}
		since = &ts
	}

	notes, err := h.service.List(r.Context(), userID, since)
	if err != nil {
		log.Printf("[Notes] list failed for user %s: %v", userID, err)
		response.InternalError(w, "Failed to list notes")
		return
	}

	response.Success(w, notes)
}

func (h *NoteHandler) Create(w http.ResponseWriter, r *http.Request) {
	h.save(w, r, 0, http.StatusCreated)
}

func (h *NoteHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := noteID(w, r)
	if !ok {
		return
	}
	h.save(w, r, id, http.StatusOK)
}

func (h *NoteHandler) save(w http.ResponseWriter, r *http.Request, id int64, status int) {
	var req domain.SaveNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	userID := middleware.GetUserID(r)

	note, err := h.service.Save(r.Context(), userID, middleware.GetDeviceID(r), id, &req)
	if err != nil {
		var verr *service.ValidationError
		if errors.As(err, &verr) {
			response.BadRequest(w, verr.Error())
			return
		}
		log.Printf("[Notes] save failed for user %s: %v", userID, err)
		response.InternalError(w, "Failed to save note")
		return
	}

	response.JSON(w, status, note)
}

func (h *NoteHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := noteID(w, r)
	if !ok {
		return
	}

	userID := middleware.GetUserID(r)

	if err := h.service.Delete(r.Context(), userID, middleware.GetDeviceID(r), id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			response.NotFound(w, "Note not found")
			return
		}
		log.Printf("[Notes] delete of note %d failed for user %s: %v", id, userID, err)
		response.InternalError(w, "Failed to delete note")
		return
	}

	response.Success(w, map[string]string{"message": "Note deleted successfully"})
}

func (h *NoteHandler) ServerTime(w http.ResponseWriter, r *http.Request) {
	response.Success(w, domain.ServerTimeResponse{ServerTime: h.service.ServerTime()})
}

func noteID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(w, "Note ID must be a positive integer")
		return 0, false
	}
	return id, true
}
