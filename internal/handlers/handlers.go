// Package handlers provides the HTTP surface: uploads, the pairing
// handshake, thumbnail batches and listing, and the WebSocket endpoints.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/cubesync/cube-server/internal/auth"
	"github.com/cubesync/cube-server/internal/hub"
	"github.com/cubesync/cube-server/internal/ingest"
	"github.com/cubesync/cube-server/internal/network"
	"github.com/cubesync/cube-server/internal/storage"
)

var log = logrus.New()

// SetLogger replaces the package-level logger.
func SetLogger(l *logrus.Logger) { log = l }

// Handlers bundles the HTTP handlers and their injected dependencies.
type Handlers struct {
	Ingest    *ingest.Service
	Broker    *auth.Broker
	Hub       *hub.Hub
	UploadDir *storage.UploadDir
	ThumbDir  string
	MaxUpload int64
}

// Routes builds the full route table.
func (h *Handlers) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/upload_raw", CORSWrapper(h.UploadRaw))
	mux.HandleFunc("/generate_code", CORSWrapper(h.GenerateCode))
	mux.HandleFunc("/auth", CORSWrapper(h.Auth))
	mux.HandleFunc("/set-config", CORSWrapper(h.SetConfig))
	mux.HandleFunc("/ping", CORSWrapper(h.Ping))
	mux.HandleFunc("/api/thumbs", CORSWrapper(h.UploadThumbs))
	mux.HandleFunc("/api/thumbs/list", CORSWrapper(h.ListThumbs))
	mux.Handle("/thumbs/", http.StripPrefix("/thumbs/",
		http.FileServer(http.Dir(h.ThumbDir))))
	mux.HandleFunc("/ws", h.Hub.ServeWS)
	mux.HandleFunc("/ws/mobile", h.Hub.ServeMobileWS)
	return mux
}

// UploadRaw receives one raw payload with metadata in headers. Responses
// are plain text; a duplicate is a recognized success outcome, not an
// error.
func (h *Handlers) UploadRaw(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	username := r.Header.Get("X-Username")
	if username == "" {
		username = "default"
	}

	filename := r.Header.Get("X-Filename")
	if filename == "" {
		filename = fmt.Sprintf("%s_upload", uuid.NewString())
	}
	filename = filepath.Base(filename)

	// A malformed timestamp is treated as absent, not rejected.
	var modifiedAt *time.Time
	if raw := r.Header.Get("X-Modified-At"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			utc := t.UTC()
			modifiedAt = &utc
		}
	}

	body := http.MaxBytesReader(w, r.Body, h.MaxUpload)
	data, err := io.ReadAll(body)
	if err != nil {
		http.Error(w, "Error reading file", http.StatusBadRequest)
		return
	}

	result, err := h.Ingest.UploadRaw(r.Context(), data, username, filename, modifiedAt)
	if err != nil {
		log.Errorf("Upload failed: %v", err)
		http.Error(w, "Upload failed", http.StatusInternalServerError)
		return
	}

	if result.Duplicate {
		fmt.Fprint(w, "The file already exists")
		return
	}
	fmt.Fprint(w, "Upload Ended!")
}

// GenerateCode mints a pairing code for a new client.
func (h *Handlers) GenerateCode(w http.ResponseWriter, r *http.Request) {
	log.Infof("Pairing code requested by %s", network.GetClientIP(r))

	resp, err := h.Broker.GenerateCode(r.Context())
	if err != nil {
		log.Errorf("Code generation failed: %v", err)
		WriteJSONError(w, http.StatusInternalServerError, "could not generate code")
		return
	}
	WriteJSONResponse(w, http.StatusOK, resp)
}

type authRequest struct {
	Code     string `json:"code"`
	Username string `json:"username"`
}

type authResponse struct {
	Token string `json:"token"`
}

// Auth exchanges a valid code plus username for a session token.
func (h *Handlers) Auth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req authRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, err := h.Broker.Exchange(r.Context(), req.Code, req.Username)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCode) {
			WriteJSONError(w, http.StatusUnauthorized, "invalid code")
			return
		}
		log.Errorf("Exchange failed: %v", err)
		WriteJSONError(w, http.StatusInternalServerError, "exchange failed")
		return
	}

	WriteJSONResponse(w, http.StatusOK, authResponse{Token: token})
}

// UploadThumbs receives a thumbnail batch.
func (h *Handlers) UploadThumbs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var items []ingest.ThumbItem
	if err := json.NewDecoder(r.Body).Decode(&items); err != nil {
		http.Error(w, "Invalid thumbnail payload", http.StatusBadRequest)
		return
	}

	if err := h.Ingest.IngestThumbs(r.Context(), items); err != nil {
		log.Errorf("Thumbnail batch failed: %v", err)
		http.Error(w, "Failed to process thumbs", http.StatusInternalServerError)
		return
	}

	fmt.Fprint(w, "Thumbs received and processed successfully")
}

// ListThumbs returns the gallery listing.
func (h *Handlers) ListThumbs(w http.ResponseWriter, r *http.Request) {
	photos, err := h.Ingest.ListThumbs(r.Context())
	if err != nil {
		log.Errorf("Listing failed: %v", err)
		WriteJSONError(w, http.StatusInternalServerError, "listing failed")
		return
	}
	WriteJSONResponse(w, http.StatusOK, photos)
}

type configRequest struct {
	UploadDir string `json:"upload_dir"`
}

// SetConfig switches the upload directory at runtime. Without an explicit
// directory the default under the user's home is used.
func (h *Handlers) SetConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req configRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid config payload", http.StatusBadRequest)
		return
	}

	dir := req.UploadDir
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		dir = filepath.Join(home, "Cube", "dcim")
	}

	if err := h.UploadDir.Set(dir); err != nil {
		log.Errorf("Failed to set upload directory: %v", err)
		http.Error(w, "Error creating upload directory", http.StatusInternalServerError)
		return
	}

	fmt.Fprintf(w, "Upload directory: %s", dir)
}

// Ping is the liveness probe.
func (h *Handlers) Ping(w http.ResponseWriter, r *http.Request) {
	fmt.Fprint(w, "pong")
}

// WriteJSONResponse writes a JSON response with the given status code.
func WriteJSONResponse(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Errorf("Failed to encode JSON response: %v", err)
	}
}

// WriteJSONError writes a JSON error response.
func WriteJSONError(w http.ResponseWriter, statusCode int, message string) {
	WriteJSONResponse(w, statusCode, map[string]string{"error": message})
}

// CORSWrapper wraps a handler with permissive CORS headers so the desktop
// and mobile fronts can call from any origin.
func CORSWrapper(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Username, X-Filename, X-Modified-At")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		handler(w, r)
	}
}
