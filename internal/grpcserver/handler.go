package grpcserver

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/patric-chuzhbe/userapi/internal/models"
	"github.com/patric-chuzhbe/userapi/internal/user"
)

type usersService interface {
	ListUsers(ctx context.Context) ([]user.User, error)
	GetUser(ctx context.Context, rawID string) (*user.User, error)
}

// UserHandler serves userapi.UserService on top of the users service.
type UserHandler struct {
	svc usersService
}

func NewUserHandler(svc usersService) *UserHandler {
	return &UserHandler{svc: svc}
}

// GetUser resolves the user whose id is carried as a string, exactly as in the HTTP path.
func (h *UserHandler) GetUser(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	usr, err := h.svc.GetUser(ctx, req.GetValue())
	if err != nil {
		return nil, toStatus(err)
	}

	return userToStruct(usr), nil
}

// ListUsers returns up to ten users.
func (h *UserHandler) ListUsers(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	users, err := h.svc.ListUsers(ctx)
	if err != nil {
		return nil, toStatus(err)
	}

	result := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(users))}
	for i := range users {
		result.Values = append(result.Values, structpb.NewStructValue(userToStruct(&users[i])))
	}

	return result, nil
}

func userToStruct(usr *user.User) *structpb.Struct {
	return &structpb.Struct{
		Fields: map[string]*structpb.Value{
			"id":    structpb.NewNumberValue(float64(usr.ID)),
			"name":  structpb.NewStringValue(usr.Name),
			"email": structpb.NewStringValue(usr.Email),
		},
	}
}

// StructToUser converts a GetUser response back into a user.
func StructToUser(s *structpb.Struct) user.User {
	fields := s.GetFields()
	return user.User{
		ID:    int64(fields["id"].GetNumberValue()),
		Name:  fields["name"].GetStringValue(),
		Email: fields["email"].GetStringValue(),
	}
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, models.ErrInvalidUserID):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, models.ErrUserNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, models.ErrStoreUnavailable):
		return status.Error(codes.Unavailable, models.ErrStoreUnavailable.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, "internal error")
	}
}
