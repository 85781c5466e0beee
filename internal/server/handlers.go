package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/katelyatv/internal/models"
	"github.com/desertthunder/katelyatv/internal/shared"
	"github.com/go-chi/chi/v5"
)

// API serves the per-user JSON endpoints on top of a [models.Storage].
type API struct {
	store  models.Storage
	auth   *Authenticator
	logger *log.Logger
}

// NewAPI creates an [API].
func NewAPI(store models.Storage, auth *Authenticator, logger *log.Logger) *API {
	return &API{store: store, auth: auth, logger: logger}
}

// Register mounts every endpoint on r. Login and registration go through limiter; metrics may be nil.
func (a *API) Register(r Router, limiter *RateLimiter, metrics *HTTPMetrics) {
	route := func(method, path string, h http.Handler, mw ...Middleware) {
		for i := len(mw) - 1; i >= 0; i-- {
			h = mw[i](h)
		}
		r.Handle(method, path, Instrument(metrics, path)(h))
	}
	authed := Middleware(func(next http.Handler) http.Handler {
		return a.auth.RequireAuth(a.rejectBanned(next))
	})
	owner := Middleware(a.auth.RequireOwner)
	if limiter == nil {
		limiter = NewRateLimiter(0, 1)
	}
	limited := limiter.Middleware()

	route(http.MethodPost, "/api/login", http.HandlerFunc(a.login), limited)
	route(http.MethodPost, "/api/logout", http.HandlerFunc(a.logout))
	route(http.MethodPost, "/api/register", http.HandlerFunc(a.register), limited)
	route(http.MethodPost, "/api/change-password", http.HandlerFunc(a.changePassword), authed)

	playRecords := keyedStore[models.PlayRecord]{
		field: "record",
		get:   a.store.GetPlayRecord,
		set:   a.store.SetPlayRecord,
		all:   a.store.GetAllPlayRecords,
		del:   a.store.DeletePlayRecord,
		stamp: func(v *models.PlayRecord, now int64) {
			if v.SaveTime == 0 {
				v.SaveTime = now
			}
		},
	}
	favorites := keyedStore[models.Favorite]{
		field: "favorite",
		get:   a.store.GetFavorite,
		set:   a.store.SetFavorite,
		all:   a.store.GetAllFavorites,
		del:   a.store.DeleteFavorite,
		stamp: func(v *models.Favorite, now int64) {
			if v.SaveTime == 0 {
				v.SaveTime = now
			}
		},
	}
	skipConfigs := keyedStore[models.EpisodeSkipConfig]{
		field: "config",
		get:   a.store.GetSkipConfig,
		set:   a.store.SetSkipConfig,
		all:   a.store.GetAllSkipConfigs,
		del:   a.store.DeleteSkipConfig,
		stamp: func(v *models.EpisodeSkipConfig, now int64) {
			v.UpdatedAt = now
		},
	}

	for path, k := range map[string]keyedHandlers{
		"/api/playrecords": playRecords.handlers(a),
		"/api/favorites":   favorites.handlers(a),
		"/api/skipconfigs": skipConfigs.handlers(a),
	} {
		route(http.MethodGet, path, k.get, authed)
		route(http.MethodPost, path, k.post, authed)
		route(http.MethodDelete, path, k.del, authed)
	}

	route(http.MethodGet, "/api/searchhistory", http.HandlerFunc(a.getSearchHistory), authed)
	route(http.MethodPost, "/api/searchhistory", http.HandlerFunc(a.addSearchHistory), authed)
	route(http.MethodDelete, "/api/searchhistory", http.HandlerFunc(a.deleteSearchHistory), authed)

	route(http.MethodGet, "/api/settings", http.HandlerFunc(a.getSettings), authed)
	route(http.MethodPut, "/api/settings", http.HandlerFunc(a.putSettings), authed)
	route(http.MethodPatch, "/api/settings", http.HandlerFunc(a.patchSettings), authed)

	route(http.MethodGet, "/api/admin/users", http.HandlerFunc(a.listUsers), owner)
	route(http.MethodDelete, "/api/admin/users/{username}", http.HandlerFunc(a.deleteUser), owner)
	route(http.MethodGet, "/api/admin/config", http.HandlerFunc(a.getAdminConfig), owner)
	route(http.MethodPut, "/api/admin/config", http.HandlerFunc(a.putAdminConfig), owner)
}

// fail logs a storage error and answers 500 without leaking backend details.
func (a *API) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	a.logger.Error("storage call failed", "op", op, "err", err, "request_id", RequestIDFrom(r.Context()))
	writeError(w, http.StatusInternalServerError, shared.ErrStorageUnavailable.Error())
}

func currentUser(r *http.Request) string {
	claims, _ := ClaimsFrom(r.Context())
	if claims == nil {
		return ""
	}
	return claims.Username()
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type sessionResponse struct {
	OK       bool   `json:"ok"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

func (a *API) startSession(w http.ResponseWriter, username string, status int) {
	token, expires, err := a.auth.Issue(username)
	if err != nil {
		a.logger.Error("failed to issue session", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to issue session")
		return
	}
	a.auth.SetCookie(w, token, expires)
	writeJSON(w, status, sessionResponse{OK: true, Username: username, Role: a.auth.RoleOf(username)})
}

// banned reports whether the admin config marks username as banned.
func (a *API) banned(ctx context.Context, username string) (bool, error) {
	cfg, err := a.store.GetAdminConfig(ctx)
	if err != nil || cfg == nil {
		return false, err
	}
	for _, u := range cfg.UserConfig.Users {
		if u.Username == username {
			return u.Banned, nil
		}
	}
	return false, nil
}

// rejectBanned ends the session of a user banned after logging in. The owner is never checked.
func (a *API) rejectBanned(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, _ := ClaimsFrom(r.Context())
		if claims != nil && !claims.IsOwner() {
			banned, err := a.banned(r.Context(), claims.Username())
			if err != nil {
				a.fail(w, r, "get_admin_config", err)
				return
			}
			if banned {
				a.auth.ClearCookie(w)
				writeError(w, http.StatusForbidden, "account is banned")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	in.Username = strings.TrimSpace(in.Username)
	if in.Username == "" || in.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	if in.Username == a.auth.OwnerName() {
		if !a.auth.CheckOwner(in.Username, in.Password) {
			writeError(w, http.StatusUnauthorized, shared.ErrInvalidCredentials.Error())
			return
		}
		a.startSession(w, in.Username, http.StatusOK)
		return
	}

	ok, err := a.store.VerifyUser(r.Context(), in.Username, in.Password)
	if err != nil {
		a.fail(w, r, "verify_user", err)
		return
	}
	if !ok {
		writeError(w, http.StatusUnauthorized, shared.ErrInvalidCredentials.Error())
		return
	}

	banned, err := a.banned(r.Context(), in.Username)
	if err != nil {
		a.fail(w, r, "get_admin_config", err)
		return
	}
	if banned {
		writeError(w, http.StatusForbidden, "account is banned")
		return
	}

	a.startSession(w, in.Username, http.StatusOK)
}

func (a *API) logout(w http.ResponseWriter, r *http.Request) {
	a.auth.ClearCookie(w)
	writeOK(w)
}

func (a *API) register(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	in.Username = strings.TrimSpace(in.Username)
	if shared.ValidateUsername(in.Username) != nil || in.Password == "" {
		writeError(w, http.StatusBadRequest, "a valid username and a password are required")
		return
	}

	cfg, err := a.store.GetAdminConfig(r.Context())
	if err != nil {
		a.fail(w, r, "get_admin_config", err)
		return
	}
	if !cfg.AllowsRegistration() {
		writeError(w, http.StatusForbidden, shared.ErrRegistrationClosed.Error())
		return
	}

	if in.Username == a.auth.OwnerName() {
		writeError(w, http.StatusConflict, shared.ErrUserExists.Error())
		return
	}
	exists, err := a.store.CheckUserExist(r.Context(), in.Username)
	if err != nil {
		a.fail(w, r, "check_user_exist", err)
		return
	}
	if exists {
		writeError(w, http.StatusConflict, shared.ErrUserExists.Error())
		return
	}

	if err := a.store.RegisterUser(r.Context(), in.Username, in.Password); err != nil {
		a.fail(w, r, "register_user", err)
		return
	}
	a.logger.Info("registered user", "username", in.Username)
	a.startSession(w, in.Username, http.StatusCreated)
}

func (a *API) changePassword(w http.ResponseWriter, r *http.Request) {
	var in struct {
		NewPassword string `json:"new_password"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if in.NewPassword == "" {
		writeError(w, http.StatusBadRequest, "new_password is required")
		return
	}

	username := currentUser(r)
	if username == a.auth.OwnerName() {
		writeError(w, http.StatusForbidden, "the owner password is set through the environment")
		return
	}
	if err := a.store.ChangePassword(r.Context(), username, in.NewPassword); err != nil {
		a.fail(w, r, "change_password", err)
		return
	}
	writeOK(w)
}

// keyedStore adapts one family of keyed per-user records to HTTP.
type keyedStore[T any] struct {
	field string // Request body field holding the record
	get   func(ctx context.Context, username, key string) (*T, error)
	set   func(ctx context.Context, username, key string, v *T) error
	all   func(ctx context.Context, username string) (map[string]*T, error)
	del   func(ctx context.Context, username, key string) error
	stamp func(v *T, now int64)
}

type keyedHandlers struct {
	get, post, del http.Handler
}

func (k keyedStore[T]) handlers(a *API) keyedHandlers {
	return keyedHandlers{
		get: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := currentUser(r)
			if key := r.URL.Query().Get("key"); key != "" {
				v, err := k.get(r.Context(), user, key)
				if err != nil {
					a.fail(w, r, "get_"+k.field, err)
					return
				}
				if v == nil {
					writeError(w, http.StatusNotFound, "not found")
					return
				}
				writeJSON(w, http.StatusOK, v)
				return
			}

			all, err := k.all(r.Context(), user)
			if err != nil {
				a.fail(w, r, "get_all_"+k.field, err)
				return
			}
			if all == nil {
				all = map[string]*T{}
			}
			writeJSON(w, http.StatusOK, all)
		}),

		post: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var body map[string]json.RawMessage
			if err := decodeJSON(w, r, &body); err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}

			var key string
			if err := json.Unmarshal(body["key"], &key); err != nil {
				writeError(w, http.StatusBadRequest, "key is required")
				return
			}
			if _, _, err := models.SplitContentKey(key); err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}

			raw, ok := body[k.field]
			if !ok {
				writeError(w, http.StatusBadRequest, k.field+" is required")
				return
			}
			v := new(T)
			if err := json.Unmarshal(raw, v); err != nil {
				writeError(w, http.StatusBadRequest, "invalid "+k.field+": "+err.Error())
				return
			}
			if k.stamp != nil {
				k.stamp(v, shared.NowMillis())
			}

			if err := k.set(r.Context(), currentUser(r), key, v); err != nil {
				a.fail(w, r, "set_"+k.field, err)
				return
			}
			writeOK(w)
		}),

		del: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := currentUser(r)
			if key := r.URL.Query().Get("key"); key != "" {
				if err := k.del(r.Context(), user, key); err != nil {
					a.fail(w, r, "delete_"+k.field, err)
					return
				}
				writeOK(w)
				return
			}

			all, err := k.all(r.Context(), user)
			if err != nil {
				a.fail(w, r, "get_all_"+k.field, err)
				return
			}
			for key := range all {
				if err := k.del(r.Context(), user, key); err != nil {
					a.fail(w, r, "delete_"+k.field, err)
					return
				}
			}
			writeOK(w)
		}),
	}
}

func (a *API) getSearchHistory(w http.ResponseWriter, r *http.Request) {
	history, err := a.store.GetSearchHistory(r.Context(), currentUser(r))
	if err != nil {
		a.fail(w, r, "get_search_history", err)
		return
	}
	if history == nil {
		history = []string{}
	}
	writeJSON(w, http.StatusOK, history)
}

func (a *API) addSearchHistory(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Keyword string `json:"keyword"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	keyword := strings.TrimSpace(in.Keyword)
	if keyword == "" {
		writeError(w, http.StatusBadRequest, "keyword is required")
		return
	}

	if err := a.store.AddSearchHistory(r.Context(), currentUser(r), keyword); err != nil {
		a.fail(w, r, "add_search_history", err)
		return
	}
	a.getSearchHistory(w, r)
}

func (a *API) deleteSearchHistory(w http.ResponseWriter, r *http.Request) {
	keyword := strings.TrimSpace(r.URL.Query().Get("keyword"))
	if err := a.store.DeleteSearchHistory(r.Context(), currentUser(r), keyword); err != nil {
		a.fail(w, r, "delete_search_history", err)
		return
	}
	writeOK(w)
}

func (a *API) getSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := a.store.GetUserSettings(r.Context(), currentUser(r))
	if err != nil {
		a.fail(w, r, "get_user_settings", err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (a *API) putSettings(w http.ResponseWriter, r *http.Request) {
	// Fields missing from the body keep their defaults.
	settings := models.DefaultUserSettings()
	if err := decodeJSON(w, r, &settings); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.store.SetUserSettings(r.Context(), currentUser(r), settings); err != nil {
		a.fail(w, r, "set_user_settings", err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (a *API) patchSettings(w http.ResponseWriter, r *http.Request) {
	var patch models.PartialSettings
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.store.UpdateUserSettings(r.Context(), currentUser(r), patch); err != nil {
		a.fail(w, r, "update_user_settings", err)
		return
	}
	a.getSettings(w, r)
}

func (a *API) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := a.store.GetAllUsers(r.Context())
	if err != nil {
		a.fail(w, r, "get_all_users", err)
		return
	}
	if users == nil {
		users = []models.UserInfo{}
	}
	writeJSON(w, http.StatusOK, users)
}

func (a *API) deleteUser(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	if username == a.auth.OwnerName() {
		writeError(w, http.StatusBadRequest, "the owner account cannot be deleted")
		return
	}

	exists, err := a.store.CheckUserExist(r.Context(), username)
	if err != nil {
		a.fail(w, r, "check_user_exist", err)
		return
	}
	if !exists {
		writeError(w, http.StatusNotFound, shared.ErrUserNotFound.Error())
		return
	}

	if err := a.store.DeleteUser(r.Context(), username); err != nil {
		a.fail(w, r, "delete_user", err)
		return
	}
	a.logger.Info("deleted user", "username", username, "by", currentUser(r))
	writeOK(w)
}

func (a *API) getAdminConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := a.store.GetAdminConfig(r.Context())
	if err != nil {
		a.fail(w, r, "get_admin_config", err)
		return
	}
	if cfg == nil {
		writeError(w, http.StatusNotFound, "admin config not set")
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (a *API) putAdminConfig(w http.ResponseWriter, r *http.Request) {
	var cfg models.AdminConfig
	if err := decodeJSON(w, r, &cfg); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.store.SetAdminConfig(r.Context(), &cfg); err != nil {
		a.fail(w, r, "set_admin_config", err)
		return
	}
	writeJSON(w, http.StatusOK, &cfg)
}

// healthHandler answers /healthz by pinging the backend when it supports it.
type healthHandler struct {
	store models.Storage
}

func (h healthHandler) Routes() []string { return []string{"/healthz"} }

func (h healthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type pinger interface {
		Ping(ctx context.Context) error
	}

	if p, ok := h.store.(pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, shared.ErrStorageUnavailable) {
				status = http.StatusServiceUnavailable
			}
			writeError(w, status, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
