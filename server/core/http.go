package core

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Handler routes the websocket endpoint, the inspection API and /metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.ServeWS)
	mux.HandleFunc("GET /health", Health())
	mux.HandleFunc("GET /status", Status(s))
	mux.HandleFunc("GET /entities", ListEntities(s))
	mux.HandleFunc("GET /peers", ListPeers(s))
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	return mux
}

type statusResponse struct {
	Status string `json:"status"`
	Name   string `json:"name"`
	Frame  uint32 `json:"frame"`
	Peers  int    `json:"peers"`
}

func Health() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
}

// Status reports the session's name, frame and peer count.
func Status(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, s.logger, statusResponse{
			Status: "ok",
			Name:   s.opts.Net.ServerName,
			Frame:  s.frame.Load(),
			Peers:  s.peers.Count(),
		})
	}
}

// ListEntities reports per-entity sync stats as of the last frame.
func ListEntities(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, s.logger, s.host.Snapshot())
	}
}

func ListPeers(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		peers := s.peers.List()
		sort.Slice(peers, func(i, j int) bool { return peers[i].ID < peers[j].ID })
		writeJSON(w, s.logger, peers)
	}
}

func writeJSON(w http.ResponseWriter, logger *zap.Logger, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("encode error", zap.Error(err))
	}
}
