package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/skypro1111/voice-pipeline/internal/audio"
)

const maxUploadBytes = 32 << 20

// transcribeHandler mimics the reference speech-to-text backend: it expects
// a multipart upload in field, validates it as WAV and answers with a
// canned transcript, or an empty one when the audio is silent.
type transcribeHandler struct {
	field  string
	text   string
	delay  time.Duration
	logger *slog.Logger
}

func (h *transcribeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "Method not allowed"})
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "No audio file provided"})
		return
	}

	file, header, err := r.FormFile(h.field)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "No audio file provided"})
		return
	}
	defer file.Close()

	if header.Filename == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Empty filename"})
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	if err := audio.ValidateWAV(data); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	info, err := audio.GetWAVInfo(data)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	h.logger.Info("Transcription request received",
		slog.String("request_id", r.Header.Get("X-Request-ID")),
		slog.String("filename", header.Filename),
		slog.Int("bytes", len(data)),
		slog.Int("sample_rate", int(info.SampleRate)),
		slog.Int("channels", int(info.Channels)),
		slog.Float64("duration_seconds", info.Duration),
	)

	if h.delay > 0 {
		select {
		case <-time.After(h.delay):
		case <-r.Context().Done():
			return
		}
	}

	text := h.text
	if silent(data) {
		text = ""
	}

	writeJSON(w, http.StatusOK, map[string]string{"transcription": text})
}

// silent reports whether every sample in a 16-bit WAV is zero
func silent(data []byte) bool {
	samples, _, err := audio.DecodeWAV(data)
	if err != nil {
		return false
	}
	for _, s := range samples {
		if s != 0 {
			return false
		}
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
