package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"

	"github.com/gorilla/mux"

	"procwatch/monitoring"
)

// Handler bundles the collector dependencies behind the REST surface.
type Handler struct {
	Reader     *monitoring.ProcessReader
	Controller *monitoring.ProcessController
	GPU        *monitoring.GPUStats
	Ports      *monitoring.PortStats
	Tracker    *monitoring.HistoryTracker
}

func NewHandler(reader *monitoring.ProcessReader, controller *monitoring.ProcessController,
	gpu *monitoring.GPUStats, ports *monitoring.PortStats, tracker *monitoring.HistoryTracker) *Handler {
	return &Handler{
		Reader:     reader,
		Controller: controller,
		GPU:        gpu,
		Ports:      ports,
		Tracker:    tracker,
	}
}

// RegisterRoutes wires the API paths into the router.
func RegisterRoutes(r *mux.Router, h *Handler) {
	r.HandleFunc("/api/processes", h.GetProcessesHandler).Methods("GET")
	r.HandleFunc("/api/processes/{pid}/details", h.GetProcessDetailsHandler).Methods("GET")
	r.HandleFunc("/api/processes/{pid}/kill", h.KillProcessHandler).Methods("POST")
	r.HandleFunc("/api/processes/{pid}/renice", h.ReniceProcessHandler).Methods("POST")

	r.HandleFunc("/api/gpu/processes", h.GetGPUProcessesHandler).Methods("GET")
	r.HandleFunc("/api/gpu/stats", h.GetGPUStatsHandler).Methods("GET")

	r.HandleFunc("/api/ports", h.GetPortsHandler).Methods("GET")
	r.HandleFunc("/api/system", h.GetSystemHandler).Methods("GET")
	r.HandleFunc("/api/history", h.GetHistoryHandler).Methods("GET")
}

// GetProcessesHandler returns the current process snapshot. Query flags:
// mine=1 (own processes only), active=1 (CPU above threshold),
// kernel=1 (include kernel threads).
func (h *Handler) GetProcessesHandler(w http.ResponseWriter, r *http.Request) {
	opts := monitoring.ListOptions{
		MyProcessesOnly:   r.URL.Query().Get("mine") == "1",
		ActiveOnly:        r.URL.Query().Get("active") == "1",
		ShowKernelThreads: r.URL.Query().Get("kernel") == "1",
		CurrentUID:        int32(os.Getuid()),
	}

	processes, err := h.Reader.List(opts)
	if err != nil {
		monitoring.LogError("Process snapshot failed", "error", err)
		http.Error(w, "Failed to list processes", http.StatusInternalServerError)
		return
	}
	writeJSON(w, processes)
}

func (h *Handler) GetProcessDetailsHandler(w http.ResponseWriter, r *http.Request) {
	pid, ok := pathPID(w, r)
	if !ok {
		return
	}
	writeJSON(w, h.Reader.ProcessDetails(pid))
}

// KillProcessHandler sends a signal to the process. Body: {"signal":"TERM"};
// an empty body defaults to TERM.
func (h *Handler) KillProcessHandler(w http.ResponseWriter, r *http.Request) {
	pid, ok := pathPID(w, r)
	if !ok {
		return
	}

	var req struct {
		Signal string `json:"signal"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	if err := h.Controller.Kill(pid, req.Signal); err != nil {
		writeProcessError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// ReniceProcessHandler sets the process priority. Body: {"nice": 5}.
func (h *Handler) ReniceProcessHandler(w http.ResponseWriter, r *http.Request) {
	pid, ok := pathPID(w, r)
	if !ok {
		return
	}

	var req struct {
		Nice int `json:"nice"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.Controller.Renice(pid, req.Nice); err != nil {
		writeProcessError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) GetGPUProcessesHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.GPU.Processes())
}

func (h *Handler) GetGPUStatsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.GPU.Totals())
}

func (h *Handler) GetPortsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.Ports.OpenPorts())
}

func (h *Handler) GetSystemHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, monitoring.CollectSystemInfo())
}

func (h *Handler) GetHistoryHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.Tracker.Lifetimes())
}

func pathPID(w http.ResponseWriter, r *http.Request) (int32, bool) {
	pid, err := strconv.ParseInt(mux.Vars(r)["pid"], 10, 32)
	if err != nil || pid <= 0 {
		http.Error(w, "Invalid pid", http.StatusBadRequest)
		return 0, false
	}
	return int32(pid), true
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		monitoring.LogError("Failed to encode response", "error", err)
	}
}

// writeProcessError maps typed process errors to HTTP statuses.
func writeProcessError(w http.ResponseWriter, err error) {
	var procErr *monitoring.ProcessError
	status := http.StatusInternalServerError
	if errors.As(err, &procErr) {
		switch procErr.Code {
		case monitoring.ErrorCodeProcessNotFound:
			status = http.StatusNotFound
		case monitoring.ErrorCodePermissionDenied:
			status = http.StatusForbidden
		case monitoring.ErrorCodeInvalidSignal, monitoring.ErrorCodeInvalidPriority:
			status = http.StatusBadRequest
		}
	}
	http.Error(w, err.Error(), status)
}
