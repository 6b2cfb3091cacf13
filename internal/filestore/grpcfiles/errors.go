package grpcfiles

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/roach88/storagepeer/internal/filestore"
)

// toStatus maps filestore errors onto gRPC codes.
func toStatus(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, filestore.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, filestore.ErrInvalidCID):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, filestore.ErrCIDMismatch):
		return status.Error(codes.DataLoss, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// fromStatus maps gRPC codes back onto filestore errors.
func fromStatus(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.NotFound:
		return filestore.ErrNotFound
	case codes.InvalidArgument:
		return filestore.ErrInvalidCID
	case codes.DataLoss:
		return filestore.ErrCIDMismatch
	default:
		return err
	}
}
