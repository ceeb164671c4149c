package grpcserver

import (
	"context"

	"github.com/cockroachdb/errors"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"matchcore/domain/orderbook"
)

// toStatus maps service errors to gRPC codes.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	code := codes.Internal
	switch {
	case errors.Is(err, orderbook.ErrOrderNotFound):
		code = codes.NotFound
	case errors.Is(err, orderbook.ErrInvalidArgument):
		code = codes.InvalidArgument
	case orderbook.IsCapacity(err):
		code = codes.ResourceExhausted
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	}
	return status.Error(code, err.Error())
}
