package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"upsbox/internal/appliance"
	"upsbox/internal/device"
)

const maxBodySize = 1 << 20

func (s *Server) handleAPIStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.app.Status())
}

// handleAPISetNet answers with the request body in both outcomes.
func (s *Server) handleAPISetNet(w http.ResponseWriter, r *http.Request) {
	var req appliance.NetworkRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if _, err := s.app.ApplyNetwork(req); err != nil {
		s.logger.Warn("set network rejected", "ip", req.IP, "mask", req.Mask, "gateway", req.Gateway,
			"err", err, "request_id", RequestID(r.Context()))
		s.writeJSON(w, http.StatusBadRequest, req)
		return
	}
	s.writeJSON(w, http.StatusOK, req)
}

type setBrokerRequest struct {
	Host string `json:"host"`
	Port uint16 `json:"port"`
}

func (s *Server) handleAPISetMqttServer(w http.ResponseWriter, r *http.Request) {
	var req setBrokerRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if _, err := s.app.RequestBrokerChange(req.Host, req.Port); err != nil {
		if errors.Is(err, device.ErrInvalidHost) {
			s.writeJSON(w, http.StatusBadRequest, device.ErrInvalidHost.Error())
			return
		}
		s.writeJSON(w, http.StatusBadRequest, appliance.ErrQueueFull.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, "")
}

type setNameRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleAPISetName(w http.ResponseWriter, r *http.Request) {
	var req setNameRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if err := s.app.RequestDeviceName(req.Name); err != nil {
		s.writeJSON(w, http.StatusBadRequest, appliance.ErrQueueFull.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, "")
}

func (s *Server) handleAPIVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

func (s *Server) handleAPIChanges(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		limit = n
	}
	changes, err := s.store.Changes(limit)
	if err != nil {
		s.logger.Error("list changes", "err", err)
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	s.writeJSON(w, http.StatusOK, changes)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("writeJSON encode failed", "err", err)
	}
}
