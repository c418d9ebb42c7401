package admin

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"time"

	"github.com/2beens/bulletinboard/internal/auth"
	"github.com/2beens/bulletinboard/internal/middleware"
	"github.com/2beens/bulletinboard/internal/telemetry/metrics"
	"github.com/2beens/bulletinboard/internal/telemetry/tracing"
	"github.com/2beens/bulletinboard/pkg"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const maxLoginBodySize = 64 * 1024

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type Handler struct {
	verifier       *auth.Verifier
	sessions       *auth.SessionService
	secureCookies  bool
	versionInfo    string
	metricsManager *metrics.Manager
	// ability to inject the clock (tests)
	NowFunc func() time.Time
}

func NewHandler(
	verifier *auth.Verifier,
	sessions *auth.SessionService,
	secureCookies bool,
	versionInfo string,
	metricsManager *metrics.Manager,
) *Handler {
	return &Handler{
		verifier:       verifier,
		sessions:       sessions,
		secureCookies:  secureCookies,
		versionInfo:    versionInfo,
		metricsManager: metricsManager,
		NowFunc:        time.Now,
	}
}

func (handler *Handler) SetupRoutes(
	mainRouter *mux.Router,
	rateLimiter middleware.RequestRateLimiter,
	loginRateLimitPerMin int,
) {
	mainRouter.HandleFunc("/", handler.handleRoot).Methods("GET", "POST", "OPTIONS").Name("root")
	mainRouter.HandleFunc("/version", handler.handleGetVersionInfo).Methods("GET").Name("version")

	// rate limit the login endpoint per client to slow down password guessing
	loginHandler := middleware.RateLimit(rateLimiter, "login", loginRateLimitPerMin, handler.metricsManager)(
		http.HandlerFunc(handler.handleLogin),
	)
	mainRouter.Handle("/login", loginHandler).Methods("POST", "OPTIONS").Name("login")
	mainRouter.HandleFunc("/logout", handler.handleLogout).Methods("POST", "OPTIONS").Name("logout")
	mainRouter.HandleFunc("/session/verify", handler.handleVerifySession).Methods("GET").Name("session-verify")
}

func (handler *Handler) handleRoot(w http.ResponseWriter, _ *http.Request) {
	pkg.WriteTextResponseOK(w, "I'm OK, thanks ;)")
}

func (handler *Handler) handleGetVersionInfo(w http.ResponseWriter, _ *http.Request) {
	pkg.WriteTextResponseOK(w, handler.versionInfo)
}

func (handler *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "adminHandler.login")
	defer span.End()

	if r.Method == http.MethodOptions {
		w.Header().Add("Allow", "POST, OPTIONS")
		w.WriteHeader(http.StatusOK)
		return
	}

	loginReq, err := parseLoginRequest(w, r)
	if err != nil {
		log.Debugf("login, parse request: %s", err)
		handler.countLogin("bad_request")
		span.SetStatus(codes.Error, "bad-request")
		pkg.WriteJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if !handler.sessions.Configured() {
		log.Error("login: session signing secret not configured")
		handler.countLogin("misconfigured")
		span.SetStatus(codes.Error, "misconfigured")
		pkg.WriteJSONError(w, "Server configuration error", http.StatusInternalServerError)
		return
	}

	if err := handler.verifier.Verify(loginReq.Email, loginReq.Password); err != nil {
		if errors.Is(err, auth.ErrServerMisconfigured) {
			log.Error("login: admin identity not configured")
			handler.countLogin("misconfigured")
			span.SetStatus(codes.Error, "misconfigured")
			pkg.WriteJSONError(w, "Server configuration error", http.StatusInternalServerError)
			return
		}
		ip, _ := pkg.ReadUserIP(r)
		log.Warnf("failed login attempt from [%s]", ip)
		handler.countLogin("invalid_credentials")
		span.SetStatus(codes.Error, "invalid-credentials")
		pkg.WriteJSONError(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	token, expiresAt, err := handler.sessions.Issue(loginReq.Email, handler.NowFunc())
	if err != nil {
		log.Errorf("login failed, issue session token: %s", err)
		handler.countLogin("error")
		span.RecordError(err)
		span.SetStatus(codes.Error, "issue-token")
		pkg.WriteJSONError(w, "Login failed", http.StatusInternalServerError)
		return
	}

	span.SetAttributes(attribute.String("session.expires_at", expiresAt.Format(time.RFC3339)))
	http.SetCookie(w, auth.NewSessionCookie(token, handler.sessions.TTL(), handler.secureCookies))
	handler.countLogin("ok")

	log.Info("new admin login success")
	pkg.WriteJSON(w, messageResponse{Message: "Login successful"}, http.StatusOK)
}

// parseLoginRequest accepts a JSON body, or form values for anything else
func parseLoginRequest(w http.ResponseWriter, r *http.Request) (loginRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxLoginBodySize)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var loginReq loginRequest
		if err := json.NewDecoder(r.Body).Decode(&loginReq); err != nil {
			return loginRequest{}, err
		}
		return loginReq, nil
	}

	if err := r.ParseForm(); err != nil {
		return loginRequest{}, err
	}
	return loginRequest{
		Email:    r.PostForm.Get("email"),
		Password: r.PostForm.Get("password"),
	}, nil
}

// handleLogout only clears the cookie; an already issued token stays valid until it expires
func (handler *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "adminHandler.logout")
	defer span.End()

	if r.Method == http.MethodOptions {
		w.Header().Add("Allow", "POST, OPTIONS")
		w.WriteHeader(http.StatusOK)
		return
	}

	http.SetCookie(w, auth.ExpiredSessionCookie(handler.secureCookies))
	log.Debug("admin logout")
	pkg.WriteJSON(w, messageResponse{Message: "Logged out successfully"}, http.StatusOK)
}

func (handler *Handler) handleVerifySession(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "adminHandler.verifySession")
	defer span.End()

	token := auth.TokenFromRequest(r)
	if token == "" {
		span.SetStatus(codes.Error, "missing-token")
		pkg.WriteJSONError(w, "No token provided", http.StatusUnauthorized)
		return
	}

	if _, err := handler.sessions.Validate(token); err != nil {
		log.Tracef("session verify: %s", err)
		span.SetStatus(codes.Error, "invalid-token")
		pkg.WriteJSONError(w, "Invalid token", http.StatusUnauthorized)
		return
	}

	span.SetStatus(codes.Ok, "valid")
	pkg.WriteJSON(w, messageResponse{Message: "Token valid"}, http.StatusOK)
}

func (handler *Handler) countLogin(result string) {
	if handler.metricsManager == nil {
		return
	}
	handler.metricsManager.CounterLogins.With(prometheus.Labels{"result": result}).Inc()
}
