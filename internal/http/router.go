package httpapi

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Router wraps the standard library mux; no third-party routing needed for
// this surface.
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterAlertRoutes wires the clinician console REST surface.
func (r *Router) RegisterAlertRoutes(h *AlertHandler, fb *FeedbackHandler) {
	r.Handle("/api/v1/alerts/active", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.ListActive(w, req)
	})

	r.Handle("/api/v1/alerts/stats", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.Stats(w, req)
	})

	// /api/v1/alerts/{id}/acknowledge, /api/v1/alerts/{id}/resolve and
	// /api/v1/alerts/{id}/feedback
	r.Handle("/api/v1/alerts/", func(w http.ResponseWriter, req *http.Request) {
		rest := strings.TrimPrefix(req.URL.Path, "/api/v1/alerts/")
		parts := strings.Split(rest, "/")
		if len(parts) != 2 || parts[0] == "" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		switch parts[1] {
		case "acknowledge":
			if req.Method != http.MethodPost {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			h.Acknowledge(w, req, parts[0])
		case "resolve":
			if req.Method != http.MethodPost {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			h.Resolve(w, req, parts[0])
		case "feedback":
			switch req.Method {
			case http.MethodPost:
				fb.Create(w, req, parts[0])
			case http.MethodGet:
				fb.List(w, req, parts[0])
			default:
				w.WriteHeader(http.StatusMethodNotAllowed)
			}
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

// RegisterChatRoutes wires the synchronous moderation entry point.
func (r *Router) RegisterChatRoutes(h *ChatHandler) {
	r.Handle("/api/v1/moderation/score", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.Score(w, req)
	})
}

// RegisterSocketRoutes wires the websocket upgrade endpoints.
func (r *Router) RegisterSocketRoutes(h *SocketHandler) {
	r.Handle("/ws/clinician", h.Clinician)
	r.Handle("/ws/session", h.Session)
}

// RegisterHealthRoute wires the liveness probe.
func (r *Router) RegisterHealthRoute(health func() map[string]string) {
	r.Handle("/healthz", func(w http.ResponseWriter, req *http.Request) {
		body := map[string]string{"status": "ok"}
		if health != nil {
			for k, v := range health() {
				body[k] = v
			}
		}
		writeJSON(w, http.StatusOK, body)
	})
}
