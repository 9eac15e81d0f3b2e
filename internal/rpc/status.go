package rpc

import (
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/authlyhq/authly-go/authlyerr"
)

// mapRPCError implements the §7 status mapping: Unauthenticated and
// PermissionDenied become authlyerr.ErrUnauthorized, every other gRPC
// status (including a non-gRPC transport failure) becomes
// authlyerr.ErrNetwork.
func mapRPCError(method string, err error) error {
	if err == nil {
		return nil
	}
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Unauthenticated, codes.PermissionDenied:
			return fmt.Errorf("%w: %s: %v", authlyerr.ErrUnauthorized, method, err)
		}
	}
	return fmt.Errorf("%w: %s: %v", authlyerr.ErrNetwork, method, err)
}

// mapGRPCStatus returns the sentinel the circuit breaker classifies on,
// without the method-name/detail wrapping mapRPCError adds, so
// circuitbreaker.ClassifyError's errors.Is checks still match.
func mapGRPCStatus(err error) error {
	if err == nil {
		return nil
	}
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Unauthenticated, codes.PermissionDenied:
			return authlyerr.ErrUnauthorized
		}
	}
	return err
}
