package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"arenanet/internal/session"
	"arenanet/pkg/core"
)

// RoomInterface 调试接口用到的房间方法，测试里可以替换
type RoomInterface interface {
	Status() Status
	Kick(peer core.PeerID) error
}

// NewDebugRouter 调试路由：健康检查、Prometheus 指标、连接诊断、踢人。
// 不启动任何协程，可以直接交给 httptest
func NewDebugRouter(room RoomInterface, metrics http.Handler, corsOrigins []string) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	if metrics != nil {
		r.Handle("/metrics", metrics)
	}

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, room.Status())
	})
	r.Route("/peers", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, room.Status().Peers)
		})
		r.Get("/{id}", func(w http.ResponseWriter, r *http.Request) {
			id, ok := peerParam(w, r)
			if !ok {
				return
			}
			for _, ps := range room.Status().Peers {
				if ps.Peer == id {
					writeJSON(w, http.StatusOK, ps)
					return
				}
			}
			writeError(w, http.StatusNotFound, "peer not found")
		})
		r.Post("/{id}/kick", func(w http.ResponseWriter, r *http.Request) {
			id, ok := peerParam(w, r)
			if !ok {
				return
			}
			switch err := room.Kick(id); {
			case err == nil:
				writeJSON(w, http.StatusOK, map[string]any{"kicked": id})
			case errors.Is(err, session.ErrUnknownPeer):
				writeError(w, http.StatusNotFound, err.Error())
			default:
				writeError(w, http.StatusServiceUnavailable, err.Error())
			}
		})
	})
	return r
}

func peerParam(w http.ResponseWriter, r *http.Request) (core.PeerID, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 32)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid peer id")
		return 0, false
	}
	return core.PeerID(id), true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
