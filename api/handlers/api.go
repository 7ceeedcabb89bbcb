package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	gorillahandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/efir-portal/efir-api/api"
	"github.com/efir-portal/efir-api/api/evidence"
	"github.com/efir-portal/efir-api/api/mailer"
	"github.com/efir-portal/efir-api/api/realtime"
	"github.com/efir-portal/efir-api/api/scheduler"
	"github.com/efir-portal/efir-api/cases"
	"github.com/efir-portal/efir-api/config"
	"github.com/efir-portal/efir-api/databases"
	"github.com/efir-portal/efir-api/logging"
	"github.com/efir-portal/efir-api/models"
)

// App stores the router and every collaborator, so they can be reused
type App struct {
	Router *mux.Router
	Config config.Config

	UserDB databases.UserDatabase
	FirDB  databases.FirDatabase
	Redis  *redis.Client

	Sessions  *api.Sessions
	Denylist  api.Denylist
	Limiter   *api.RateLimiter
	Hub       *realtime.Hub
	Socket    *realtime.SocketServer
	Mailer    mailer.Mailer
	Evidence  evidence.Store
	Engine    *cases.Engine
	Scheduler *scheduler.Scheduler

	client   databases.ClientHelper
	dbHelper databases.DatabaseHelper
	cancel   context.CancelFunc
}

// New creates a new mux router and all the routes
func (a *App) New() *mux.Router {
	r := mux.NewRouter()

	auth := api.Authenticator{Sessions: a.Sessions, Users: a.UserDB, Denylist: a.Denylist}.Authenticate
	citizen := api.AuthorizeRoles(models.RoleCitizen)
	staff := api.AuthorizeRoles(models.RoleOfficer, models.RoleAdmin)
	admin := api.AuthorizeRoles(models.RoleAdmin)
	limited := a.Limiter.Middleware

	u := Auth{DB: a.UserDB, Sessions: a.Sessions, Denylist: a.Denylist, Secure: a.Config.Production()}
	f := Fir{Engine: a.Engine, MaxUploadBytes: a.Config.MaxUploadMB << 20}
	ad := Admin{UDB: a.UserDB, FDB: a.FirDB}
	if a.Engine != nil {
		ad.Notify = a.Engine.Notify
	}

	// healthchex
	var pinger api.Pinger
	if a.client != nil {
		pinger = a.client
	}
	r.HandleFunc("/health", api.HealthCheckHandler(pinger)).Methods("GET")

	r.HandleFunc("/auth/register", u.RegisterHandler).Methods("POST")
	r.HandleFunc("/auth/login", u.LoginHandler).Methods("POST")
	r.HandleFunc("/auth/logout", u.LogoutHandler).Methods("POST")
	r.Handle("/auth/me", auth(http.HandlerFunc(u.MeHandler))).Methods("GET")

	firs := r.PathPrefix("/api/firs").Subrouter()
	firs.Handle("/anonymous/create", limited(http.HandlerFunc(f.CreateAnonymousHandler))).Methods("POST")
	firs.Handle("/anonymous/track", limited(http.HandlerFunc(f.TrackHandler))).Methods("POST")
	firs.Handle("/create", auth(citizen(http.HandlerFunc(f.CreateHandler)))).Methods("POST")
	firs.Handle("/my-firs", auth(citizen(http.HandlerFunc(f.MyFirsHandler)))).Methods("GET")
	firs.Handle("/all", auth(staff(http.HandlerFunc(f.AllHandler)))).Methods("GET")
	firs.Handle("/export", auth(staff(http.HandlerFunc(f.ExportHandler)))).Methods("GET")
	firs.Handle("/analytics", auth(staff(http.HandlerFunc(f.AnalyticsHandler)))).Methods("GET")
	firs.Handle("/update/{id}/message", auth(http.HandlerFunc(f.AddMessageHandler))).Methods("POST")
	firs.Handle("/update/{id}/log", auth(staff(http.HandlerFunc(f.AddLogHandler)))).Methods("POST")
	firs.Handle("/update/{id}", auth(staff(http.HandlerFunc(f.UpdateStatusHandler)))).Methods("PUT")
	// must stay after the fixed GET paths above
	firs.Handle("/{id}", auth(http.HandlerFunc(f.GetHandler))).Methods("GET")

	adm := r.PathPrefix("/api/admin").Subrouter()
	adm.Handle("/officers", auth(admin(http.HandlerFunc(ad.OfficersHandler)))).Methods("GET")
	adm.Handle("/approve-officer/{id}", auth(admin(http.HandlerFunc(ad.ApproveOfficerHandler)))).Methods("PUT")
	adm.Handle("/user/{id}", auth(admin(http.HandlerFunc(ad.DeleteUserHandler)))).Methods("DELETE")
	adm.Handle("/stats", auth(admin(http.HandlerFunc(ad.StatsHandler)))).Methods("GET")

	if a.Hub != nil {
		r.Handle("/ws", a.Hub).Methods("GET")
	}
	if a.Socket != nil {
		r.PathPrefix("/socket.io/").Handler(a.Socket)
	}
	if local, ok := a.Evidence.(*evidence.LocalStore); ok {
		r.PathPrefix("/uploads/").Handler(http.StripPrefix("/uploads/", http.FileServer(http.Dir(local.Dir)))).Methods("GET")
	}

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		config.ErrorStatus("Route not found", http.StatusNotFound, w, nil)
	})
	return r
}

// Setup fills every collaborator that was not provided and builds the
// router. UserDB and FirDB must be set.
func (a *App) Setup() error {
	if a.UserDB == nil || a.FirDB == nil {
		return fmt.Errorf("user and fir databases are required")
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	ttl := a.Config.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if a.Sessions == nil {
		a.Sessions = api.NewSessions(a.Config.JWTSecret, ttl)
	}
	if a.Denylist == nil {
		if a.Redis != nil {
			a.Denylist = api.NewRedisDenylist(a.Redis)
		} else {
			a.Denylist = api.NewMemoryDenylist(ctx, ttl)
		}
	}
	if a.Limiter == nil {
		a.Limiter = &api.RateLimiter{
			Client:         a.Redis,
			Limit:          a.Config.RateLimit,
			Window:         a.Config.RateLimitWindow,
			TrustedProxies: a.Config.TrustedProxies,
		}
	}
	if a.Hub == nil {
		a.Hub = realtime.NewHub(a.Config.CORSOrigins)
	}
	if a.Socket == nil {
		a.Socket = realtime.NewSocketServer()
	}
	if a.Mailer == nil {
		a.Mailer = mailer.LogMailer{}
	}
	if a.Evidence == nil {
		local, err := evidence.NewLocalStore(a.Config.UploadDir)
		if err != nil {
			return err
		}
		a.Evidence = local
	}
	if a.Engine == nil {
		a.Engine = cases.New(a.FirDB, a.UserDB, realtime.Fanout{a.Hub, a.Socket}, a.Mailer, a.Evidence, cases.Options{
			Strict:      a.Config.StrictTransitions,
			MaxEvidence: a.Config.MaxEvidenceFiles,
		})
	}

	a.Router = a.New()
	return nil
}

// Initialize is invoked by main to connect with the database, redis and the
// mail and storage providers, then create a router
func (a *App) Initialize() error {
	client, err := databases.NewClient(&a.Config)
	if err != nil {
		// if we fail to create a new database client, then kill the pod
		zap.S().With(err).Error("failed to create new client")
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err = client.Connect(ctx)
	if err != nil {
		// if we fail to connect to the database, then kill the pod
		zap.S().With(err).Error("failed to connect to database")
		return err
	}
	a.client = client
	a.dbHelper = databases.NewDatabase(&a.Config, client)
	zap.S().Info("efir-api has connected to the database")

	a.UserDB = databases.NewUserDatabase(a.dbHelper)
	a.FirDB = databases.NewFirDatabase(a.dbHelper)
	if err := a.UserDB.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("failed to create user indexes: %w", err)
	}
	if err := a.FirDB.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("failed to create fir indexes: %w", err)
	}

	if a.Config.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: a.Config.RedisAddr, Password: a.Config.RedisPassword})
		if err := rdb.Ping(ctx).Err(); err != nil {
			zap.S().Warnw("redis unavailable, falling back to in-process revocation without rate limiting", "error", err)
			_ = rdb.Close()
		} else {
			a.Redis = rdb
			zap.S().Info("efir-api has connected to redis")
		}
	}

	if a.Config.CloudinaryURL != "" {
		cld, err := evidence.NewCloudinaryStore(a.Config.CloudinaryURL, "efir-evidence")
		if err != nil {
			return err
		}
		a.Evidence = cld
	}
	if a.Config.SendGridAPIKey != "" {
		a.Mailer = mailer.NewSendGrid(a.Config.SendGridAPIKey, a.Config.MailFromName, a.Config.MailFromAddress)
	} else {
		zap.S().Warn("SENDGRID_API_KEY is not set, emails will only be logged")
	}

	if err := a.Setup(); err != nil {
		return err
	}

	var locker scheduler.Locker
	if a.Redis != nil {
		locker = scheduler.RedisLocker{Client: a.Redis}
	}
	a.Scheduler = scheduler.NewScheduler(a.Config.DigestSchedule, a.UserDB, a.Engine, a.Mailer, locker, a.Config.StaleAfter)
	if err := a.Scheduler.Start(); err != nil {
		return err
	}
	return nil
}

// Handler wraps the router with CORS, request logging and panic recovery
func (a *App) Handler() http.Handler {
	cors := gorillahandlers.CORS(
		gorillahandlers.AllowedOrigins(a.Config.CORSOrigins),
		gorillahandlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		gorillahandlers.AllowedHeaders([]string{"Content-Type", "Authorization", logging.RequestIDHeader}),
		gorillahandlers.AllowCredentials(),
	)
	return api.Recoverer(logging.RequestLogger(cors(a.Router)))
}

// Close stops the background work and releases every connection
func (a *App) Close() {
	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}
	if a.Engine != nil {
		a.Engine.Wait()
	}
	if a.Hub != nil {
		a.Hub.Close()
	}
	if a.Socket != nil {
		if err := a.Socket.Close(); err != nil {
			zap.S().Warnw("failed to close socket.io server", "error", err)
		}
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.client.Disconnect(ctx); err != nil {
			zap.S().Warnw("failed to disconnect from database", "error", err)
		}
	}
	if a.cancel != nil {
		a.cancel()
	}
}
