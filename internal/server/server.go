package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"route-optimizer/internal/archive"
	"route-optimizer/internal/config"
	"route-optimizer/internal/database"
	"route-optimizer/internal/distance"
	"route-optimizer/internal/events"
	"route-optimizer/internal/geocoding"
	"route-optimizer/internal/graph"
	"route-optimizer/internal/handlers"
	"route-optimizer/internal/matrix"
	"route-optimizer/internal/pathfinding"
	"route-optimizer/internal/routing"
	"route-optimizer/internal/traffic"
)

// Server wraps the HTTP server and all dependencies
type Server struct {
	httpServer *http.Server
	handler    *handlers.Handler
	store      database.DataStore
	publisher  events.Publisher
	listener   net.Listener
	addr       string
}

// New creates and initializes a new server (does not start it)
func New(ctx context.Context, cfg *config.Config) (*Server, error) {
	log.Printf("[SERVER] Initializing data store: backend=%s", cfg.CacheBackend)
	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize data store: %w", err)
	}

	var g *graph.GeoGraph
	var engine *pathfinding.Engine
	if cfg.RoadNetworkPath != "" {
		log.Printf("[SERVER] Loading road network: path=%s", cfg.RoadNetworkPath)
		g, err = graph.LoadFromFile(cfg.RoadNetworkPath)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to load road network: %w", err)
		}
		engine = pathfinding.NewEngine(g)
		log.Printf("[SERVER] Road network loaded: locations=%d", g.Size())
	}

	calc := distance.NewOSRMCalculator(cfg.OSRMBaseURL, cfg.HTTPTimeout, store.DistanceCache())
	builder := matrix.NewBuilder(calc, engine, cfg.FallbackSpeedKmh)
	orchestrator := routing.NewOrchestrator(builder, calc, traffic.New(cfg.TrafficMode, cfg.TrafficSeed, g), routing.Options{
		ExactThreshold: cfg.ExactThreshold,
		Genetic:        cfg.Genetic,
		CompassSectors: cfg.CompassSectors,
	})

	geocoder := geocoding.NewFallback(geocoding.NewNominatimGeocoder(cfg.NominatimBaseURL, cfg.HTTPTimeout), cfg.GeocodeRetries)

	var publisher events.Publisher = events.NoopPublisher{}
	if cfg.KafkaEnabled() {
		log.Printf("[SERVER] Publishing route events: brokers=%s topic=%s", strings.Join(cfg.KafkaBrokers, ","), cfg.KafkaTopic)
		publisher = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	}

	var archiver archive.Archiver = archive.NoopArchiver{}
	if cfg.ArchiveEnabled() {
		s3, err := archive.NewS3Archiver(ctx, cfg.Archive)
		if err != nil {
			log.Printf("[WARN] Route archive disabled: endpoint=%s err=%v", cfg.Archive.Endpoint, err)
		} else {
			archiver = s3
		}
	}

	handler := handlers.New(store, routing.NewSessionManager(orchestrator), engine, geocoder, publisher, archiver)

	router := mux.NewRouter()
	handler.RegisterRoutes(router)

	httpServer := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      loggingMiddleware(corsMiddleware(router)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		handler:    handler,
		store:      store,
		publisher:  publisher,
		addr:       cfg.ServerAddr,
	}, nil
}

// Start starts the server and returns the actual address (useful for random port)
func (s *Server) Start() (string, error) {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return "", fmt.Errorf("failed to listen: %w", err)
	}

	s.listener = listener
	actualAddr := listener.Addr().String()
	log.Printf("[SERVER] Listening on %s", actualAddr)

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[ERROR] Server error: %v", err)
		}
	}()

	return actualAddr, nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return err
	}
	return errors.Join(s.publisher.Close(), s.store.Close())
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		lrw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(lrw, r)

		duration := time.Since(start)
		log.Printf("[HTTP] %s %s %d %v", r.Method, r.URL.Path, lrw.statusCode, duration)
	})
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		// Only local development origins are allowed
		if origin == "" ||
			strings.HasPrefix(origin, "http://localhost:") ||
			strings.HasPrefix(origin, "http://127.0.0.1:") {
			if origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
