// Package dashboard serves the Prediction Tool and Dashboard pages, their JSON
// counterparts, and a WebSocket prediction channel over the loaded artifacts.
//
// Both pages share one sidebar layout. The prediction page evaluates the
// classifier on submit; the dashboard page renders the memoized summary.
package dashboard

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"trader-insights/internal/artifacts"
	"trader-insights/internal/metrics"
	"trader-insights/internal/ml"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Options configures the web server
type Options struct {
	Port int
	// PredictRateLimit caps predictions per second across all clients; 0 disables
	PredictRateLimit float64
}

// Server is the insights web server
type Server struct {
	art       *artifacts.Artifacts
	predictor *ml.Predictor
	summaries *SummaryService
	metrics   *metrics.MetricsWrapper
	limiter   *rate.Limiter // nil when unlimited

	router   *mux.Router
	server   *http.Server
	upgrader websocket.Upgrader

	clients   map[*websocket.Conn]bool
	clientsMu sync.Mutex

	mu        sync.Mutex
	isRunning bool
}

// NewServer wires the routes for art. summaries and m may be nil.
func NewServer(art *artifacts.Artifacts, summaries *SummaryService, m *metrics.MetricsWrapper, opts Options) *Server {
	if m == nil {
		m = metrics.NewWrapper(nil)
	}
	if summaries == nil {
		summaries = NewSummaryService(nil, m)
	}

	s := &Server{
		art:       art,
		predictor: ml.NewPredictor(art.Model, m),
		summaries: summaries,
		metrics:   m,
		upgrader:  websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		clients:   make(map[*websocket.Conn]bool),
	}
	if opts.PredictRateLimit > 0 {
		burst := int(math.Ceil(opts.PredictRateLimit))
		s.limiter = rate.NewLimiter(rate.Limit(opts.PredictRateLimit), burst)
	}

	r := mux.NewRouter()
	r.Use(s.instrument)
	r.Handle("/", http.RedirectHandler("/predict", http.StatusFound)).Methods("GET")
	r.HandleFunc("/predict", s.handlePredictPage).Methods("GET", "POST")
	r.HandleFunc("/dashboard", s.handleDashboardPage).Methods("GET")
	r.HandleFunc("/api/predict", s.handlePredictAPI).Methods("POST")
	r.HandleFunc("/api/dashboard", s.handleDashboardAPI).Methods("GET")
	r.HandleFunc("/ws/predict", s.handleWebSocket).Methods("GET")
	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	// middleware only runs on matched routes
	r.NotFoundHandler = s.instrument(http.NotFoundHandler())
	r.MethodNotAllowedHandler = s.instrument(http.HandlerFunc(methodNotAllowed))
	s.router = r

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s
}

// Handler returns the routed handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves HTTP in the background
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("insights server is already running")
	}

	go func() {
		log.Info().Str("address", s.server.Addr).Msg("Starting insights server")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Insights server failed")
		}
	}()

	s.isRunning = true
	return nil
}

// Stop closes WebSocket clients and shuts the HTTP server down within ctx
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return nil
	}

	// Shutdown does not wait for hijacked connections
	s.clientsMu.Lock()
	for client := range s.clients {
		client.Close()
	}
	s.clients = make(map[*websocket.Conn]bool)
	s.clientsMu.Unlock()

	if err := s.server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to shutdown insights server")
		return err
	}

	s.isRunning = false
	log.Info().Msg("Insights server stopped")
	return nil
}

// allowPrediction reports whether the rate limiter admits one more prediction
func (s *Server) allowPrediction() bool {
	return s.limiter == nil || s.limiter.Allow()
}

func (s *Server) addClient(conn *websocket.Conn) {
	s.clientsMu.Lock()
	s.clients[conn] = true
	s.clientsMu.Unlock()
	s.metrics.WSClients().Add(1)
}

func (s *Server) removeClient(conn *websocket.Conn) {
	s.clientsMu.Lock()
	delete(s.clients, conn)
	s.clientsMu.Unlock()
	s.metrics.WSClients().Add(-1)
}
