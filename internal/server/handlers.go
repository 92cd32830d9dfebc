package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/shoalmedia/shoal/internal/conversion"
	"github.com/shoalmedia/shoal/internal/library/service"
	pkgerrors "github.com/shoalmedia/shoal/pkg/errors"
	"github.com/shoalmedia/shoal/pkg/models"
)

// maxUploadSize caps ingested media files at 4 GiB.
const maxUploadSize = 4 << 30

// Handlers holds the HTTP handler dependencies
type Handlers struct {
	library     *service.LibraryService
	coordinator *conversion.Coordinator
	queue       *conversion.Queue
	logger      *zap.Logger
}

// NewHandlers creates the HTTP handler set
func NewHandlers(
	library *service.LibraryService,
	coordinator *conversion.Coordinator,
	queue *conversion.Queue,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		library:     library,
		coordinator: coordinator,
		queue:       queue,
		logger:      logger.Named("http"),
	}
}

// Router builds the HTTP route table
func (h *Handlers) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", h.HealthCheck).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/tracks", h.IngestTrack).Methods("POST")
	api.HandleFunc("/tracks", h.ListTracks).Methods("GET")
	api.HandleFunc("/tracks/{id}", h.GetTrack).Methods("GET")
	api.HandleFunc("/tracks/{id}", h.UpdateTrack).Methods("PATCH")
	api.HandleFunc("/tracks/{id}", h.DeleteTrack).Methods("DELETE")
	api.HandleFunc("/tracks/{id}/variants", h.ListVariants).Methods("GET")
	api.HandleFunc("/tracks/{id}/convert/{profile}", h.ConvertTrack).Methods("POST")

	api.HandleFunc("/playlists", h.CreatePlaylist).Methods("POST")
	api.HandleFunc("/playlists", h.ListPlaylists).Methods("GET")
	api.HandleFunc("/playlists/{id}", h.GetPlaylist).Methods("GET")
	api.HandleFunc("/playlists/{id}", h.DeletePlaylist).Methods("DELETE")
	api.HandleFunc("/playlists/{id}/entries", h.AddToPlaylist).Methods("POST")

	api.HandleFunc("/tracks/{id}/comments", h.AddComment).Methods("POST")
	api.HandleFunc("/tracks/{id}/comments", h.ListComments).Methods("GET")
	api.HandleFunc("/comments/{id}", h.DeleteComment).Methods("DELETE")

	return r
}

// HealthCheck reports service liveness
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// IngestTrack accepts a multipart upload and registers a new track
func (h *Handlers) IngestTrack(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		h.respondError(w, pkgerrors.BadRequest("invalid multipart form"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.respondError(w, pkgerrors.BadRequest("missing file field"))
		return
	}
	defer file.Close()

	ownerID, err := uuid.Parse(r.FormValue("owner_id"))
	if err != nil {
		h.respondError(w, pkgerrors.BadRequest("invalid owner_id"))
		return
	}

	kind := models.MediaKind(r.FormValue("kind"))
	if kind == "" {
		kind = models.MediaKindAudio
	}
	if kind != models.MediaKindAudio && kind != models.MediaKindVideo {
		h.respondError(w, pkgerrors.BadRequest("invalid kind"))
		return
	}

	format := r.FormValue("format")
	if format == "" {
		format = strings.TrimPrefix(filepath.Ext(header.Filename), ".")
	}

	track := &models.Track{
		OwnerID: ownerID,
		Title:   r.FormValue("title"),
		Artist:  r.FormValue("artist"),
		Album:   r.FormValue("album"),
		Kind:    kind,
		Format:  format,
	}

	if err := h.library.IngestTrack(r.Context(), track, file, header.Size); err != nil {
		h.respondError(w, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, track)
}

// ListTracks returns the tracks owned by a user
func (h *Handlers) ListTracks(w http.ResponseWriter, r *http.Request) {
	ownerID, err := uuid.Parse(r.URL.Query().Get("owner_id"))
	if err != nil {
		h.respondError(w, pkgerrors.BadRequest("invalid owner_id"))
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	tracks, err := h.library.ListTracks(r.Context(), ownerID, limit, offset)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, tracks)
}

// GetTrack returns a single track with its variants
func (h *Handlers) GetTrack(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	track, err := h.library.GetTrack(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, track)
}

// UpdateTrack applies metadata changes to a track
func (h *Handlers) UpdateTrack(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		Title  *string `json:"title"`
		Artist *string `json:"artist"`
		Album  *string `json:"album"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, pkgerrors.BadRequest("invalid request body"))
		return
	}

	track, err := h.library.GetTrack(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}

	if req.Title != nil {
		track.Title = *req.Title
	}
	if req.Artist != nil {
		track.Artist = *req.Artist
	}
	if req.Album != nil {
		track.Album = *req.Album
	}

	if err := h.library.UpdateTrack(r.Context(), track); err != nil {
		h.respondError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, track)
}

// DeleteTrack removes a track and its variants
func (h *Handlers) DeleteTrack(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.library.DeleteTrack(r.Context(), id); err != nil {
		h.respondError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListVariants returns the converted variants of a track
func (h *Handlers) ListVariants(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	track, err := h.library.GetTrack(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, track.Variants)
}

// ConvertTrack converts a track to the named profile. With ?async=true
// the conversion is queued and the handler returns immediately.
func (h *Handlers) ConvertTrack(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	profile := mux.Vars(r)["profile"]

	if r.URL.Query().Get("async") == "true" {
		h.queue.Enqueue(id, profile)
		h.respondJSON(w, http.StatusAccepted, map[string]string{
			"track_id": id.String(),
			"profile":  profile,
			"status":   "queued",
		})
		return
	}

	variant, existed, err := h.coordinator.Convert(r.Context(), id, profile)
	if err != nil {
		h.respondError(w, err)
		return
	}

	status := http.StatusCreated
	if existed {
		status = http.StatusOK
	}
	h.respondJSON(w, status, variant)
}

// CreatePlaylist creates an empty playlist
func (h *Handlers) CreatePlaylist(w http.ResponseWriter, r *http.Request) {
	var playlist models.Playlist
	if err := json.NewDecoder(r.Body).Decode(&playlist); err != nil {
		h.respondError(w, pkgerrors.BadRequest("invalid request body"))
		return
	}

	if err := h.library.CreatePlaylist(r.Context(), &playlist); err != nil {
		h.respondError(w, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, playlist)
}

// ListPlaylists returns the playlists owned by a user
func (h *Handlers) ListPlaylists(w http.ResponseWriter, r *http.Request) {
	ownerID, err := uuid.Parse(r.URL.Query().Get("owner_id"))
	if err != nil {
		h.respondError(w, pkgerrors.BadRequest("invalid owner_id"))
		return
	}

	playlists, err := h.library.ListPlaylists(r.Context(), ownerID)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, playlists)
}

// GetPlaylist returns a playlist with its ordered entries
func (h *Handlers) GetPlaylist(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	playlist, err := h.library.GetPlaylist(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, playlist)
}

// DeletePlaylist removes a playlist and its entries
func (h *Handlers) DeletePlaylist(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.library.DeletePlaylist(r.Context(), id); err != nil {
		h.respondError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// AddToPlaylist appends a track to the end of a playlist
func (h *Handlers) AddToPlaylist(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		TrackID uuid.UUID `json:"track_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, pkgerrors.BadRequest("invalid request body"))
		return
	}

	if err := h.library.AddToPlaylist(r.Context(), id, req.TrackID); err != nil {
		h.respondError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// AddComment attaches a comment to a track
func (h *Handlers) AddComment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	var comment models.Comment
	if err := json.NewDecoder(r.Body).Decode(&comment); err != nil {
		h.respondError(w, pkgerrors.BadRequest("invalid request body"))
		return
	}
	comment.TrackID = id

	if err := h.library.AddComment(r.Context(), &comment); err != nil {
		h.respondError(w, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, comment)
}

// ListComments returns a track's comments
func (h *Handlers) ListComments(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	comments, err := h.library.ListComments(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, comments)
}

// DeleteComment removes a comment
func (h *Handlers) DeleteComment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.library.DeleteComment(r.Context(), id); err != nil {
		h.respondError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		h.respondError(w, pkgerrors.BadRequest("invalid "+name))
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, err error) {
	var exitErr *conversion.ProcessExitError

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, conversion.ErrProfileNotFound),
		errors.Is(err, conversion.ErrTrackNotFound),
		pkgerrors.IsNotFound(err):
		status = http.StatusNotFound
	case pkgerrors.IsBadRequest(err):
		status = http.StatusBadRequest
	case pkgerrors.IsConflict(err):
		status = http.StatusConflict
	case errors.As(err, &exitErr), errors.Is(err, conversion.ErrProcessLaunch):
		status = http.StatusBadGateway
	case pkgerrors.IsUnavailable(err):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.Error(err))
	}

	h.respondJSON(w, status, map[string]string{"error": err.Error()})
}
