package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hamed0406/reachcheck/internal/diagnose"
	"github.com/hamed0406/reachcheck/internal/firewall"
	apimw "github.com/hamed0406/reachcheck/internal/httpapi/middleware"
	"github.com/hamed0406/reachcheck/internal/report"
)

type Diagnoser interface {
	Run(ctx context.Context) diagnose.Report
}

// LatestSource is satisfied by *scheduler.Rechecker.
type LatestSource interface {
	Latest() (diagnose.Report, bool)
}

type Server struct {
	Logger      *zap.Logger
	Diagnoser   Diagnoser
	Provisioner diagnose.FirewallProvisioner // nil disables the firewall route
	Latest      LatestSource                 // nil disables /api/diagnose/latest
	Gatherer    prometheus.Gatherer          // nil disables /metrics
}

func NewServer(l *zap.Logger, d Diagnoser, p diagnose.FirewallProvisioner) *Server {
	return &Server{Logger: l, Diagnoser: d, Provisioner: p}
}

func (s *Server) Router(keys apimw.Keys, allowedOrigins []string, readRPM, readBurst, writeRPM, writeBurst int) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(s.accessLog)
	if len(allowedOrigins) == 0 {
		r.Use(cors.AllowAll().Handler)
	} else {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: allowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type", "X-API-Key"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if s.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(apimw.RateLimit(readRPM, readBurst))
		r.Use(apimw.RequireAny(keys))
		r.Get("/api/diagnose", s.handleDiagnose)
		r.Get("/api/diagnose/latest", s.handleLatest)
	})
	r.Group(func(r chi.Router) {
		r.Use(apimw.RateLimit(writeRPM, writeBurst))
		r.Use(apimw.RequireAdmin(keys))
		r.Post("/api/firewall/allow", s.handleAllow)
	})
	return r
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.Logger.Info("http_request",
			zap.String("request_id", chimw.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeReport(w http.ResponseWriter, r *http.Request, rep diagnose.Report) {
	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_ = report.Text(w, rep)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = report.JSON(w, rep)
}

func (s *Server) handleDiagnose(w http.ResponseWriter, r *http.Request) {
	rep := s.Diagnoser.Run(r.Context())
	writeReport(w, r, rep)
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	if s.Latest == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "periodic diagnostics disabled"})
		return
	}
	rep, ok := s.Latest.Latest()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no diagnostic has finished yet"})
		return
	}
	writeReport(w, r, rep)
}

type allowPayload struct {
	SourceCIDR string `json:"source_cidr"`
	DestPort   int    `json:"dest_port"`
	Comment    string `json:"comment"`
}

func (s *Server) handleAllow(w http.ResponseWriter, r *http.Request) {
	if s.Provisioner == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "firewall provisioning disabled"})
		return
	}
	var p allowPayload
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&p); err != nil || p.SourceCIDR == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad payload"})
		return
	}

	res, err := s.Provisioner.EnsureAllow(r.Context(), p.SourceCIDR, p.DestPort, p.Comment)
	out := diagnose.ProvisionReport{Result: res}
	status := http.StatusOK
	if err != nil {
		out.Error = err.Error()
		var pe *firewall.ProvisionError
		if errors.As(err, &pe) {
			out.Recoverable = pe.Recoverable()
		}
		switch {
		case errors.Is(err, firewall.ErrInvalidRule):
			status = http.StatusBadRequest
		case errors.Is(err, firewall.ErrPermission):
			status = http.StatusForbidden
		default:
			status = http.StatusBadGateway
		}
	}
	s.Logger.Info("firewall_allow",
		zap.String("source", p.SourceCIDR),
		zap.Int("port", p.DestPort),
		zap.String("outcome", string(res.Outcome)),
		zap.Error(err),
	)
	writeJSON(w, status, out)
}
