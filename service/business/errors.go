package business

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	ErrorInitializationFail = status.Error(codes.Internal, "Internal configuration is invalid")

	ErrInvalidRequest = status.Error(codes.InvalidArgument, "Invalid request")

	ErrInvalidAmount = status.Error(codes.InvalidArgument, "Amount must be greater than zero")

	ErrInvalidPhone = status.Error(codes.InvalidArgument, "Phone number is not a valid mobile number")

	ErrMemberNotFound = status.Error(codes.NotFound, "Specified member does not exist")

	ErrMemberExists = status.Error(codes.AlreadyExists, "A member with this email or phone already exists")

	ErrLoanNotFound = status.Error(codes.NotFound, "Specified loan does not exist")

	ErrInvalidTransition = status.Error(codes.FailedPrecondition, "Loan can not move to the requested status")

	// Reconciliation outcomes. These are logged and audited, never returned to the gateway.

	ErrMalformedPayload = status.Error(codes.InvalidArgument, "Callback payload is malformed")

	ErrCorrelationFailure = status.Error(codes.NotFound, "Callback could not be matched to a member or loan")

	ErrDuplicateDelivery = status.Error(codes.AlreadyExists, "Callback has already been applied")

	ErrAsyncOutcomeFailure = status.Error(codes.Aborted, "Gateway reported a failed outcome")
)
