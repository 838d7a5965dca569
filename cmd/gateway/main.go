package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	api "github.com/mind-engage/mindengage-quiz/internal/api/http"
	"github.com/mind-engage/mindengage-quiz/internal/attempt"
	auth "github.com/mind-engage/mindengage-quiz/internal/auth/middleware"
	"github.com/mind-engage/mindengage-quiz/internal/config"
	"github.com/mind-engage/mindengage-quiz/internal/db"
	"github.com/mind-engage/mindengage-quiz/internal/events"
	"github.com/mind-engage/mindengage-quiz/internal/grading"
	"github.com/mind-engage/mindengage-quiz/internal/metrics"
	"github.com/mind-engage/mindengage-quiz/internal/quiz"
	"github.com/mind-engage/mindengage-quiz/internal/rbac"
	"github.com/mind-engage/mindengage-quiz/internal/realtime"
	"github.com/mind-engage/mindengage-quiz/internal/storage"
	"github.com/mind-engage/mindengage-quiz/internal/sweeper"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("load .env: %v", err)
	}
	cfg := config.FromEnv()

	// --- DB ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	cancel()
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}
	defer dbh.Close()
	store := quiz.NewSQLStore(dbh)

	// --- Snapshots ---
	var blobs storage.BlobStore
	switch cfg.SnapshotDriver {
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer rdb.Close()
		blobs = storage.NewRedisStore(rdb, "quiz:"+cfg.SiteID, cfg.SnapshotTTL)
	default:
		fs, err := storage.NewFSStore(cfg.SnapshotDir)
		if err != nil {
			log.Fatalf("snapshot store: %v", err)
		}
		blobs = fs
	}
	checkpointer := attempt.NewCheckpointer(blobs)
	cpCtx, stopCheckpoints := context.WithCancel(context.Background())
	cpDone := make(chan struct{})
	go func() {
		checkpointer.Run(cpCtx)
		close(cpDone)
	}()

	// --- Events ---
	eventLog := events.NewEventLog(dbh, cfg.SiteID)
	publishers := events.Fanout{eventLog}
	var broker *events.AMQPPublisher
	if cfg.AMQPURL != "" {
		broker, err = events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			log.Fatalf("amqp: %v", err)
		}
		publishers = append(publishers, broker)
	}

	hub := realtime.NewHub()
	mgr := attempt.NewManager(attempt.ManagerConfig{
		Store:        store,
		Engine:       grading.NewEngine(),
		Checkpointer: checkpointer,
		Events:       publishers,
		Live:         hub,
		Period:       cfg.CountdownPeriod,
		Retry:        attempt.Backoff{Initial: cfg.RetryInitial, Max: cfg.RetryMax},
	})

	rctx, rcancel := context.WithTimeout(context.Background(), 30*time.Second)
	n, err := mgr.Rehydrate(rctx)
	rcancel()
	if err != nil {
		log.Printf("rehydrate: %v", err)
	}
	log.Printf("rehydrated %d live attempts", n)

	sw, err := sweeper.Start(mgr, cfg.SweepSchedule)
	if err != nil {
		log.Fatalf("sweeper: %v", err)
	}

	// --- Auth (local JWT for offline/dev) ---
	authSvc := auth.NewAuthService(cfg.AuthHMACSecret)

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins(),
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Local login (enabled in offline mode by default; can be enabled online via env)
	if cfg.EnableLocalAuth {
		r.Post("/auth/login", auth.LoginHandler(authSvc, auth.LoginConfig{
			AdminUser:     cfg.AdminUser,
			AdminPassHash: cfg.AdminPassHash,
			DevUsers:      cfg.Mode == config.ModeOffline,
		}))
	}

	if cfg.EnableGuestAuth {
		r.Post("/auth/guest", auth.GuestLoginHandler(authSvc, cfg.Mode == config.ModeOnline))
	}

	// Websockets stay open for the whole attempt, so they skip the request timeout.
	ws := realtime.NewHandler(hub, mgr, func(r *http.Request) (string, bool) {
		return auth.SubjectFromContext(r.Context()), rbac.Can(r.Context(), rbac.PermAttemptViewAll)
	}, nil)
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(authSvc))
		pr.Get("/ws/attempts/{attemptID}", ws.Watch)
	})

	// Protected API (JWT → role in context → RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(middleware.Timeout(30 * time.Second))
		pr.Use(auth.JWTMiddleware(authSvc))
		api.Routes(store, mgr)(pr)
		pr.With(rbac.Require(rbac.PermEventsRead)).
			Get("/events", api.EventsHandler(eventLog))
	})

	r.Handle("/metrics", metrics.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := dbh.PingContext(r.Context()); err != nil {
			http.Error(w, "db unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(200)
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		log.Printf("listening on %s (mode=%s, db=%s, snapshots=%s)", cfg.HTTPAddr, cfg.Mode, cfg.DBDriver, cfg.SnapshotDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Printf("shutting down")

	sctx, scancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer scancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	sw.Stop()
	// Live sessions checkpoint on close; the checkpointer flushes once more on exit.
	mgr.Close()
	stopCheckpoints()
	<-cpDone
	hub.Close()
	if broker != nil {
		if err := broker.Close(); err != nil {
			log.Printf("amqp close: %v", err)
		}
	}
}
