package httpapi

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"

	"github.com/pxh52013145/ragvideo/internal/ingest"
	"github.com/pxh52013145/ragvideo/internal/store"
)

func (s *Server) handleTaskSubmit(w http.ResponseWriter, r *http.Request) {
	var req ingest.Request
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if req.VideoURL == "" {
		writeErr(w, http.StatusBadRequest, "missing video_url")
		return
	}

	taskID, err := s.pool.Submit(req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeOK(w, map[string]any{"task_id": taskID, "status": string(ingest.StatusPending)})
}

func (s *Server) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")

	path := filepath.Join(s.local.TaskDir(taskID), taskID+".status.json")

	data, err := os.ReadFile(path)
	if err != nil {
		// Legacy flat layout fallback.
		data, err = os.ReadFile(filepath.Join(s.local.Root(), taskID+".status.json"))
		if err != nil {
			writeErr(w, http.StatusNotFound, "task not found: "+taskID)
			return
		}
	}

	var status store.TaskStatusFile
	if err := json.Unmarshal(data, &status); err != nil {
		writeErr(w, http.StatusInternalServerError, "corrupt status file")
		return
	}

	writeOK(w, status)
}

func (s *Server) handleTaskCancel(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")

	// Already-terminal tasks keep their recorded outcome; the flag only
	// affects tasks still moving through the pipeline.
	path := filepath.Join(s.local.TaskDir(taskID), taskID+".status.json")
	if data, err := os.ReadFile(path); err == nil {
		var status store.TaskStatusFile
		if json.Unmarshal(data, &status) == nil && ingest.TaskStatus(status.Status).Terminal() {
			writeOK(w, map[string]any{"task_id": taskID, "status": status.Status})
			return
		}
	}

	s.pool.Cancel(taskID)

	writeOK(w, map[string]any{"task_id": taskID, "status": string(ingest.StatusCancelled)})
}

func (s *Server) handleTaskDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.local.DeleteTask(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}

	writeOK(w, nil)
}
