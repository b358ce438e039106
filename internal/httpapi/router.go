// Package httpapi exposes rooms, display names, credentials, and the
// WebSocket relay endpoint over HTTP.
package httpapi

import (
	"context"
	"io/fs"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/cory-johannsen/chatrelay/internal/chat"
	"github.com/cory-johannsen/chatrelay/internal/config"
	"github.com/cory-johannsen/chatrelay/internal/identity"
	"github.com/cory-johannsen/chatrelay/internal/observability"
	"github.com/cory-johannsen/chatrelay/internal/relay"
	"github.com/cory-johannsen/chatrelay/internal/storage/postgres"
	"github.com/cory-johannsen/chatrelay/internal/transport/websocket"
)

// AccountStore is the credential store behind the /users routes.
type AccountStore interface {
	Create(ctx context.Context, mail, password string) (postgres.Account, error)
	Exists(ctx context.Context, mail string) (bool, error)
	Verify(ctx context.Context, mail, password string) (postgres.Account, error)
	Delete(ctx context.Context, mail, password string) error
}

// Deps are the collaborators the router dispatches to.
type Deps struct {
	Registry *chat.Registry
	Upgrader *websocket.Upgrader
	Identity identity.Resolver
	// Accounts may be nil, in which case the /users routes answer 503.
	Accounts AccountStore
	Metrics  *observability.Metrics
	Logger   *zap.Logger

	CORS       config.CORSConfig
	TimeWindow config.TimeWindowConfig
	// StaticDir overrides the embedded index page when non-empty.
	StaticDir    string
	RelayOptions []relay.Option
	Now          func() time.Time
}

// exemptPaths bypass the time window gate.
var exemptPaths = map[string]bool{"/healthz": true, "/metrics": true}

type api struct {
	Deps
}

// NewRouter builds the HTTP handler with all routes and middleware installed.
//
// Precondition: d.Registry and d.Upgrader must be non-nil.
// Postcondition: Returns an error only for an unparsable time window.
func NewRouter(d Deps) (http.Handler, error) {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Identity == nil {
		d.Identity = identity.CookieResolver{}
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	a := &api{Deps: d}

	r := mux.NewRouter()
	r.Use(metricsMiddleware(d.Metrics))

	r.HandleFunc("/create_room", a.createRoom).Methods(http.MethodPost)
	r.HandleFunc("/room_ls", a.listRooms).Methods(http.MethodGet)
	r.HandleFunc("/room/{room_id}", a.getRoom).Methods(http.MethodGet)
	r.HandleFunc("/delete_room/{room_id}", a.deleteRoom).Methods(http.MethodDelete)
	r.HandleFunc("/websocket/{room_id}", a.websocket).Methods(http.MethodGet)

	r.HandleFunc("/user_name", a.setUserName).Methods(http.MethodPost)
	r.HandleFunc("/user_name", a.getUserName).Methods(http.MethodGet)
	r.HandleFunc("/user_name", a.clearUserName).Methods(http.MethodDelete)

	r.HandleFunc("/users", a.createAccount).Methods(http.MethodPost)
	r.HandleFunc("/users/exists", a.accountExists).Methods(http.MethodGet)
	r.HandleFunc("/users/verify", a.verifyAccount).Methods(http.MethodPost)
	r.HandleFunc("/users", a.deleteAccount).Methods(http.MethodDelete)

	r.HandleFunc("/healthz", healthz).Methods(http.MethodGet)
	r.Handle("/metrics", metricsHandler(d.Metrics)).Methods(http.MethodGet)

	static, err := staticFS(d.StaticDir)
	if err != nil {
		return nil, err
	}
	files := http.FileServer(http.FS(static))
	r.Handle("/", files).Methods(http.MethodGet, http.MethodHead)
	// Assets are the fallback for unmatched paths, so a known path with the
	// wrong method still gets mux's 405.
	r.NotFoundHandler = assetHandler(files)

	var h http.Handler = r
	if d.TimeWindow.Enabled {
		w, err := NewTimeWindow(d.TimeWindow)
		if err != nil {
			return nil, err
		}
		h = timeWindowMiddleware(w, d.Now, exemptPaths)(h)
	}
	h = cors.New(cors.Options{
		AllowedOrigins:   d.CORS.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: d.CORS.AllowCredentials,
	}).Handler(h)
	h = handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{d.Logger}),
	)(h)
	h = handlers.CustomLoggingHandler(nil, h, accessLogFormatter(d.Logger))
	return h, nil
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func metricsHandler(m *observability.Metrics) http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return m.Handler()
}

// assetHandler serves static files for GET and HEAD and 404s anything else.
func assetHandler(files http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		files.ServeHTTP(w, r)
	})
}

// staticFS returns dir when set, otherwise the embedded assets.
func staticFS(dir string) (fs.FS, error) {
	if dir != "" {
		return os.DirFS(dir), nil
	}
	return fs.Sub(embedded, "static")
}
