// Package router exposes the HTTP API on top of chi. Handlers decode JSON or
// form payloads, call the credentials verifier, session manager and record
// service, and map error kinds to status codes.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/patric-chuzhbe/beerich/internal/auth"
	"github.com/patric-chuzhbe/beerich/internal/gzippedhttp"
	"github.com/patric-chuzhbe/beerich/internal/logger"
	"github.com/patric-chuzhbe/beerich/internal/models"
	"github.com/patric-chuzhbe/beerich/internal/service"
	"github.com/patric-chuzhbe/beerich/internal/user"
)

type authenticator interface {
	AuthenticateUser(h http.Handler) http.Handler
	RequireUser(h http.Handler) http.Handler
	Issue(identity models.Identity) (*http.Cookie, error)
	Revoke(ctx context.Context, tokenString string) (*http.Cookie, error)
	TokenFromRequest(request *http.Request) string
}

type credentialsVerifier interface {
	Verify(ctx context.Context, email, password string) (*user.User, error)
	Register(ctx context.Context, email, password string) (*user.User, error)
}

type recordService interface {
	CurrentUser(ctx context.Context, identity *models.Identity) (*user.User, error)
	Create(ctx context.Context, identity *models.Identity, recordType models.RecordType, input service.RecordInput) (*models.Record, error)
	List(ctx context.Context, identity *models.Identity, recordType models.RecordType, query string) ([]models.Record, error)
	Get(ctx context.Context, identity *models.Identity, recordType models.RecordType, recordID string) (*models.Record, error)
	Update(ctx context.Context, identity *models.Identity, recordType models.RecordType, recordID string, input service.RecordInput) (*models.Record, error)
	Delete(ctx context.Context, identity *models.Identity, recordType models.RecordType, recordID string) error
	DeleteMany(ctx context.Context, identity *models.Identity, recordType models.RecordType, recordIDs []string) (int64, error)
	Dashboard(ctx context.Context, identity *models.Identity) (service.Dashboard, error)
	Stats(ctx context.Context) (models.InternalStatsResponse, error)
	Ping(ctx context.Context) error
}

type subnetGuard interface {
	TrustedSubnetOnly(h http.Handler) http.Handler
}

// maxBodyBytes bounds every request payload.
const maxBodyBytes = 1 << 20

// RecordKinds maps URL segments to record types.
var RecordKinds = map[string]models.RecordType{
	"expenses": models.RecordTypeExpense,
	"income":   models.RecordTypeInvoice,
}

type Router struct {
	svc         recordService
	credentials credentialsVerifier
	auth        authenticator
}

// New builds the HTTP handler of the application.
func New(
	svc recordService,
	credentials credentialsVerifier,
	theAuth authenticator,
	subnet subnetGuard,
) *chi.Mux {
	myRouter := &Router{
		svc:         svc,
		credentials: credentials,
		auth:        theAuth,
	}

	router := chi.NewRouter()
	router.Use(
		logger.WithLoggingHTTPMiddleware,
		gzippedhttp.UngzipRequest,
		gzippedhttp.GzipResponse,
		theAuth.AuthenticateUser,
	)

	router.Get(`/ping`, myRouter.GetPing)
	router.Post(`/api/user/signup`, myRouter.PostSignup)
	router.Post(`/api/user/login`, myRouter.PostLogin)
	router.Post(`/api/user/logout`, myRouter.PostLogout)
	router.With(subnet.TrustedSubnetOnly).Get(`/api/internal/stats`, myRouter.GetInternalStats)

	router.Group(func(protected chi.Router) {
		protected.Use(theAuth.RequireUser)

		protected.Get(`/api/user`, myRouter.GetUser)
		protected.Get(`/api/dashboard`, myRouter.GetDashboard)

		for kind, recordType := range RecordKinds {
			protected.Route(`/api/`+kind, func(records chi.Router) {
				records.Get(`/`, myRouter.GetRecords(recordType))
				records.Post(`/`, myRouter.PostRecord(recordType))
				records.Delete(`/`, myRouter.DeleteRecords(recordType))
				records.Get(`/{id}`, myRouter.GetRecord(recordType))
				records.Put(`/{id}`, myRouter.PutRecord(recordType))
				records.Delete(`/{id}`, myRouter.DeleteRecord(recordType))
			})
		}
	})

	return router
}

func writeJSON(response http.ResponseWriter, status int, payload any) {
	response.Header().Set("Content-Type", "application/json")
	response.WriteHeader(status)
	if err := json.NewEncoder(response).Encode(payload); err != nil {
		logger.Log.Debugln("Error calling the `json.NewEncoder(response).Encode()`: ", zap.Error(err))
	}
}

// writeError maps err to a status code. Details of unexpected errors stay in the log.
func writeError(response http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := "internal server error"

	switch {
	case errors.Is(err, models.ErrMalformedInput):
		status, message = http.StatusBadRequest, err.Error()
	case errors.Is(err, models.ErrInvalidCredentials):
		status, message = http.StatusUnauthorized, models.ErrInvalidCredentials.Error()
	case errors.Is(err, models.ErrUnauthenticated):
		status, message = http.StatusUnauthorized, models.ErrUnauthenticated.Error()
	case errors.Is(err, models.ErrNotFound):
		status, message = http.StatusNotFound, models.ErrNotFound.Error()
	case errors.Is(err, models.ErrEmailTaken):
		status, message = http.StatusConflict, models.ErrEmailTaken.Error()
	default:
		logger.Log.Errorw("request failed", zap.Error(err))
	}

	writeJSON(response, status, models.ErrorResponse{Error: message})
}

func isForm(request *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(request.Header.Get("Content-Type"))
	if err != nil {
		return false
	}
	return mediaType == "application/x-www-form-urlencoded" || mediaType == "multipart/form-data"
}

// decodePayload fills dst from a JSON body, or from form fields through fromForm.
func decodePayload(response http.ResponseWriter, request *http.Request, dst any, fromForm func(get func(string) string)) error {
	request.Body = http.MaxBytesReader(response, request.Body, maxBodyBytes)

	if isForm(request) {
		if err := request.ParseMultipartForm(maxBodyBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			return fmt.Errorf("%w: %v", models.ErrMalformedInput, err)
		}
		fromForm(request.PostForm.Get)
		return nil
	}

	decoder := json.NewDecoder(request.Body)
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", models.ErrMalformedInput, err)
	}

	return nil
}

func readCredentials(response http.ResponseWriter, request *http.Request) (models.CredentialsRequest, error) {
	var payload models.CredentialsRequest
	err := decodePayload(response, request, &payload, func(get func(string) string) {
		payload.Email = get("email")
		payload.Password = get("password")
	})
	return payload, err
}

func readRecordInput(response http.ResponseWriter, request *http.Request) (service.RecordInput, error) {
	var payload models.RecordRequest
	err := decodePayload(response, request, &payload, func(get func(string) string) {
		payload.Title = get("title")
		payload.Description = get("description")
		payload.Amount = get("amount")
		payload.CurrencyCode = get("currency_code")
	})
	if err != nil {
		return service.RecordInput{}, err
	}

	return service.ParseRecordInput(payload.Title, payload.Description, payload.Amount, payload.CurrencyCode)
}

func identityFrom(request *http.Request) *models.Identity {
	identity, _ := auth.IdentityFromContext(request.Context())
	return identity
}

// startSession sets the session cookie and the Authorization header for usr.
func (myRouter *Router) startSession(response http.ResponseWriter, usr *user.User) error {
	cookie, err := myRouter.auth.Issue(models.Identity{UserID: usr.ID})
	if err != nil {
		return err
	}
	http.SetCookie(response, cookie)
	response.Header().Set("Authorization", "Bearer "+cookie.Value)
	return nil
}

func (myRouter *Router) GetPing(response http.ResponseWriter, request *http.Request) {
	if err := myRouter.svc.Ping(request.Context()); err != nil {
		logger.Log.Debugln("Error calling the `myRouter.svc.Ping()`: ", zap.Error(err))
		response.WriteHeader(http.StatusInternalServerError)
		return
	}
	response.WriteHeader(http.StatusOK)
}

func (myRouter *Router) PostSignup(response http.ResponseWriter, request *http.Request) {
	payload, err := readCredentials(response, request)
	if err != nil {
		writeError(response, err)
		return
	}

	usr, err := myRouter.credentials.Register(request.Context(), payload.Email, payload.Password)
	if err != nil {
		writeError(response, err)
		return
	}

	if err := myRouter.startSession(response, usr); err != nil {
		writeError(response, err)
		return
	}

	writeJSON(response, http.StatusCreated, models.UserResponse{ID: usr.ID, Email: usr.Email})
}

func (myRouter *Router) PostLogin(response http.ResponseWriter, request *http.Request) {
	payload, err := readCredentials(response, request)
	if err != nil {
		writeError(response, err)
		return
	}

	usr, err := myRouter.credentials.Verify(request.Context(), payload.Email, payload.Password)
	if err != nil {
		writeError(response, err)
		return
	}

	if err := myRouter.startSession(response, usr); err != nil {
		writeError(response, err)
		return
	}

	writeJSON(response, http.StatusOK, models.UserResponse{ID: usr.ID, Email: usr.Email})
}

func (myRouter *Router) PostLogout(response http.ResponseWriter, request *http.Request) {
	cookie, err := myRouter.auth.Revoke(request.Context(), myRouter.auth.TokenFromRequest(request))
	http.SetCookie(response, cookie)
	if err != nil {
		writeError(response, err)
		return
	}

	response.WriteHeader(http.StatusNoContent)
}

func (myRouter *Router) GetUser(response http.ResponseWriter, request *http.Request) {
	usr, err := myRouter.svc.CurrentUser(request.Context(), identityFrom(request))
	if err != nil {
		writeError(response, err)
		return
	}

	writeJSON(response, http.StatusOK, models.UserResponse{ID: usr.ID, Email: usr.Email})
}

func (myRouter *Router) GetDashboard(response http.ResponseWriter, request *http.Request) {
	dashboard, err := myRouter.svc.Dashboard(request.Context(), identityFrom(request))
	if err != nil {
		writeError(response, err)
		return
	}

	writeJSON(response, http.StatusOK, models.DashboardResponse{
		LatestExpense: service.ToRecordResponse(dashboard.LatestExpense),
		LatestInvoice: service.ToRecordResponse(dashboard.LatestInvoice),
	})
}

func (myRouter *Router) GetRecords(recordType models.RecordType) http.HandlerFunc {
	return func(response http.ResponseWriter, request *http.Request) {
		records, err := myRouter.svc.List(request.Context(), identityFrom(request), recordType, request.URL.Query().Get("q"))
		if err != nil {
			writeError(response, err)
			return
		}

		result := make([]*models.RecordResponse, 0, len(records))
		for i := range records {
			result = append(result, service.ToRecordResponse(&records[i]))
		}

		writeJSON(response, http.StatusOK, result)
	}
}

func (myRouter *Router) PostRecord(recordType models.RecordType) http.HandlerFunc {
	return func(response http.ResponseWriter, request *http.Request) {
		input, err := readRecordInput(response, request)
		if err != nil {
			writeError(response, err)
			return
		}

		rec, err := myRouter.svc.Create(request.Context(), identityFrom(request), recordType, input)
		if err != nil {
			writeError(response, err)
			return
		}

		writeJSON(response, http.StatusCreated, service.ToRecordResponse(rec))
	}
}

func (myRouter *Router) DeleteRecords(recordType models.RecordType) http.HandlerFunc {
	return func(response http.ResponseWriter, request *http.Request) {
		var recordIDs models.DeleteRecordsRequest
		request.Body = http.MaxBytesReader(response, request.Body, maxBodyBytes)
		if err := json.NewDecoder(request.Body).Decode(&recordIDs); err != nil {
			writeError(response, fmt.Errorf("%w: %v", models.ErrMalformedInput, err))
			return
		}

		deleted, err := myRouter.svc.DeleteMany(request.Context(), identityFrom(request), recordType, recordIDs)
		if err != nil {
			writeError(response, err)
			return
		}

		writeJSON(response, http.StatusOK, models.DeleteRecordsResponse{Deleted: deleted})
	}
}

func (myRouter *Router) GetRecord(recordType models.RecordType) http.HandlerFunc {
	return func(response http.ResponseWriter, request *http.Request) {
		rec, err := myRouter.svc.Get(request.Context(), identityFrom(request), recordType, chi.URLParam(request, "id"))
		if err != nil {
			writeError(response, err)
			return
		}

		writeJSON(response, http.StatusOK, service.ToRecordResponse(rec))
	}
}

func (myRouter *Router) PutRecord(recordType models.RecordType) http.HandlerFunc {
	return func(response http.ResponseWriter, request *http.Request) {
		input, err := readRecordInput(response, request)
		if err != nil {
			writeError(response, err)
			return
		}

		rec, err := myRouter.svc.Update(request.Context(), identityFrom(request), recordType, chi.URLParam(request, "id"), input)
		if err != nil {
			writeError(response, err)
			return
		}

		writeJSON(response, http.StatusOK, service.ToRecordResponse(rec))
	}
}

func (myRouter *Router) DeleteRecord(recordType models.RecordType) http.HandlerFunc {
	return func(response http.ResponseWriter, request *http.Request) {
		if err := myRouter.svc.Delete(request.Context(), identityFrom(request), recordType, chi.URLParam(request, "id")); err != nil {
			writeError(response, err)
			return
		}

		response.WriteHeader(http.StatusNoContent)
	}
}

func (myRouter *Router) GetInternalStats(response http.ResponseWriter, request *http.Request) {
	stats, err := myRouter.svc.Stats(request.Context())
	if err != nil {
		writeError(response, err)
		return
	}

	writeJSON(response, http.StatusOK, stats)
}
