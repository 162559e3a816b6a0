package grpcserver

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/patric-chuzhbe/beerich/internal/auth"
	"github.com/patric-chuzhbe/beerich/internal/grpcserver/interceptor"
	"github.com/patric-chuzhbe/beerich/internal/logger"
	"github.com/patric-chuzhbe/beerich/internal/models"
	"github.com/patric-chuzhbe/beerich/internal/service"
	"github.com/patric-chuzhbe/beerich/internal/user"
)

type credentialsVerifier interface {
	Verify(ctx context.Context, email, password string) (*user.User, error)
}

type sessionManager interface {
	IssueToken(identity models.Identity) (string, time.Time, error)
	RevokeToken(ctx context.Context, tokenString string) error
}

type recordService interface {
	Create(ctx context.Context, identity *models.Identity, recordType models.RecordType, input service.RecordInput) (*models.Record, error)
	List(ctx context.Context, identity *models.Identity, recordType models.RecordType, query string) ([]models.Record, error)
	Get(ctx context.Context, identity *models.Identity, recordType models.RecordType, recordID string) (*models.Record, error)
	Update(ctx context.Context, identity *models.Identity, recordType models.RecordType, recordID string, input service.RecordInput) (*models.Record, error)
	Delete(ctx context.Context, identity *models.Identity, recordType models.RecordType, recordID string) error
}

type BeeRichHandler struct {
	svc         recordService
	credentials credentialsVerifier
	sessions    sessionManager
}

func NewBeeRichHandler(svc recordService, credentials credentialsVerifier, sessions sessionManager) *BeeRichHandler {
	return &BeeRichHandler{
		svc:         svc,
		credentials: credentials,
		sessions:    sessions,
	}
}

// toStatus maps error kinds to gRPC codes. Unexpected errors are logged and
// reported without details.
func toStatus(err error) error {
	switch {
	case errors.Is(err, models.ErrMalformedInput):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, models.ErrInvalidCredentials):
		return status.Error(codes.Unauthenticated, models.ErrInvalidCredentials.Error())
	case errors.Is(err, models.ErrUnauthenticated):
		return status.Error(codes.Unauthenticated, models.ErrUnauthenticated.Error())
	case errors.Is(err, models.ErrNotFound):
		return status.Error(codes.NotFound, models.ErrNotFound.Error())
	case errors.Is(err, models.ErrEmailTaken):
		return status.Error(codes.AlreadyExists, models.ErrEmailTaken.Error())
	default:
		logger.Log.Errorw("gRPC call failed", zap.Error(err))
		return status.Error(codes.Internal, "internal error")
	}
}

func recordType(kind string) (models.RecordType, error) {
	theType := models.RecordType(kind)
	if !theType.Valid() {
		return "", status.Errorf(codes.InvalidArgument, "unknown record kind %q", kind)
	}
	return theType, nil
}

func identityFrom(ctx context.Context) *models.Identity {
	identity, _ := auth.IdentityFromContext(ctx)
	return identity
}

func toRecord(rec *models.Record) *Record {
	return &Record{
		ID:           rec.ID,
		Kind:         string(rec.Type),
		Title:        rec.Title,
		Description:  rec.Description,
		Amount:       service.FormatAmount(rec.Amount),
		CurrencyCode: rec.CurrencyCode,
		CreatedAt:    rec.CreatedAt,
	}
}

func (f RecordFields) input() (service.RecordInput, error) {
	return service.ParseRecordInput(f.Title, f.Description, f.Amount, f.CurrencyCode)
}

// Login verifies the credentials and sends the new session token in the
// "authorization" response header.
func (h *BeeRichHandler) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	usr, err := h.credentials.Verify(ctx, req.Email, req.Password)
	if err != nil {
		return nil, toStatus(err)
	}

	token, expiresAt, err := h.sessions.IssueToken(models.Identity{UserID: usr.ID})
	if err != nil {
		return nil, toStatus(err)
	}

	if err := grpc.SetHeader(ctx, metadata.Pairs(interceptor.AuthorizationKey, token)); err != nil {
		logger.Log.Debugln("Error calling the `grpc.SetHeader()`: ", zap.Error(err))
		return nil, status.Error(codes.Internal, "internal error")
	}

	return &LoginResponse{
		UserID:    usr.ID,
		Email:     usr.Email,
		ExpiresAt: expiresAt,
	}, nil
}

// Logout revokes the session token sent in metadata. A missing or invalid
// token is not an error.
func (h *BeeRichHandler) Logout(ctx context.Context, _ *LogoutRequest) (*LogoutResponse, error) {
	if err := h.sessions.RevokeToken(ctx, interceptor.TokenFromMetadata(ctx)); err != nil {
		return nil, toStatus(err)
	}
	return &LogoutResponse{}, nil
}

func (h *BeeRichHandler) CreateRecord(ctx context.Context, req *CreateRecordRequest) (*Record, error) {
	theType, err := recordType(req.Kind)
	if err != nil {
		return nil, err
	}

	input, err := req.input()
	if err != nil {
		return nil, toStatus(err)
	}

	rec, err := h.svc.Create(ctx, identityFrom(ctx), theType, input)
	if err != nil {
		return nil, toStatus(err)
	}

	return toRecord(rec), nil
}

func (h *BeeRichHandler) ListRecords(ctx context.Context, req *ListRecordsRequest) (*ListRecordsResponse, error) {
	theType, err := recordType(req.Kind)
	if err != nil {
		return nil, err
	}

	records, err := h.svc.List(ctx, identityFrom(ctx), theType, req.Query)
	if err != nil {
		return nil, toStatus(err)
	}

	resp := &ListRecordsResponse{Records: make([]*Record, len(records))}
	for i := range records {
		resp.Records[i] = toRecord(&records[i])
	}

	return resp, nil
}

func (h *BeeRichHandler) GetRecord(ctx context.Context, req *GetRecordRequest) (*Record, error) {
	theType, err := recordType(req.Kind)
	if err != nil {
		return nil, err
	}

	rec, err := h.svc.Get(ctx, identityFrom(ctx), theType, req.ID)
	if err != nil {
		return nil, toStatus(err)
	}

	return toRecord(rec), nil
}

func (h *BeeRichHandler) UpdateRecord(ctx context.Context, req *UpdateRecordRequest) (*Record, error) {
	theType, err := recordType(req.Kind)
	if err != nil {
		return nil, err
	}

	input, err := req.input()
	if err != nil {
		return nil, toStatus(err)
	}

	rec, err := h.svc.Update(ctx, identityFrom(ctx), theType, req.ID, input)
	if err != nil {
		return nil, toStatus(err)
	}

	return toRecord(rec), nil
}

func (h *BeeRichHandler) DeleteRecord(ctx context.Context, req *DeleteRecordRequest) (*DeleteRecordResponse, error) {
	theType, err := recordType(req.Kind)
	if err != nil {
		return nil, err
	}

	if err := h.svc.Delete(ctx, identityFrom(ctx), theType, req.ID); err != nil {
		return nil, toStatus(err)
	}

	return &DeleteRecordResponse{}, nil
}
