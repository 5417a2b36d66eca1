package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"bundle-deployer/internal/database"
	"bundle-deployer/internal/deployer"
	"bundle-deployer/internal/logger"
	"bundle-deployer/internal/models"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

const ndjsonContentType = "application/x-ndjson"

type Handler struct {
	db           *sql.DB
	orchestrator *deployer.Orchestrator
	logger       *logrus.Entry
}

func NewHandler(db *sql.DB, orchestrator *deployer.Orchestrator) *Handler {
	return &Handler{
		db:           db,
		orchestrator: orchestrator,
		logger:       logger.WithModule("handlers"),
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// Deploy runs one deployment and streams its events as they happen. Closing
// the connection stops the deployment.
func (h *Handler) Deploy(w http.ResponseWriter, r *http.Request) {
	var req models.DeploymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if missing := req.Validate(); len(missing) > 0 {
		writeError(w, http.StatusBadRequest, "Missing required fields: "+strings.Join(missing, ", "))
		return
	}

	h.logger.WithFields(logrus.Fields{
		"project":     req.Project,
		"environment": req.Environment,
		"store":       req.Artifact.StoreID,
		"key":         req.Artifact.ObjectKey,
	}).Info("Deployment requested")

	stream := newEventStream(w)
	for event := range h.orchestrator.Deploy(r.Context(), req) {
		if err := stream.send(event); err != nil {
			h.logger.WithError(err).Warn("Failed to stream deployment event")
			break
		}
	}
}

// ListEvents streams every recorded event matching the optional project and
// environment query parameters, oldest first.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	filter := models.ListEventsRequest{
		Project:     r.URL.Query().Get("project"),
		Environment: r.URL.Query().Get("environment"),
	}

	stream := newEventStream(w)
	for event := range h.orchestrator.Events().List(filter) {
		if err := stream.send(event); err != nil {
			h.logger.WithError(err).Warn("Failed to stream deployment event")
			return
		}
	}
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	rec, err := database.GetDeployment(h.db, id)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "Deployment not found")
		return
	}
	if err != nil {
		h.logger.WithError(err).WithField("deployment_id", id).Error("Failed to load deployment")
		writeError(w, http.StatusInternalServerError, "Database error")
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) ListDeployments(w http.ResponseWriter, r *http.Request) {
	records, err := database.ListDeployments(h.db, r.URL.Query().Get("project"), r.URL.Query().Get("environment"))
	if err != nil {
		h.logger.WithError(err).Error("Failed to list deployments")
		writeError(w, http.StatusInternalServerError, "Database error")
		return
	}
	if records == nil {
		records = []models.DeploymentRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

type eventStream struct {
	w       http.ResponseWriter
	enc     *json.Encoder
	flusher http.Flusher
}

func newEventStream(w http.ResponseWriter) *eventStream {
	w.Header().Set("Content-Type", ndjsonContentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	return &eventStream{w: w, enc: json.NewEncoder(w), flusher: flusher}
}

func (s *eventStream) send(event models.DeploymentEvent) error {
	if err := s.enc.Encode(event); err != nil {
		return err
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
