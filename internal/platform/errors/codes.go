// Package errors provides structured error handling with i18n support.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Configuration errors
	CodeConfigurationSecretMissing Code = "CONFIGURATION_SECRET_MISSING"

	// Simulation errors
	CodeSimulationInputMissing  Code = "SIMULATION_INPUT_MISSING"
	CodeSimulationCohortInvalid Code = "SIMULATION_COHORT_INVALID"
	CodeSnapshotMalformed       Code = "SNAPSHOT_MALFORMED"

	// Strategy errors
	CodeStrategyNotFound        Code = "STRATEGY_NOT_FOUND"
	CodeStrategyVariableInvalid Code = "STRATEGY_VARIABLE_INVALID"

	// Abuse prevention errors
	CodeRateLimitExceeded Code = "RATE_LIMIT_EXCEEDED"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - caller supplied bad or incomplete input
	case CodeSimulationInputMissing,
		CodeSimulationCohortInvalid,
		CodeSnapshotMalformed,
		CodeStrategyVariableInvalid:
		return codes.InvalidArgument

	// NotFound - resource doesn't exist
	case CodeNotFound,
		CodeStrategyNotFound:
		return codes.NotFound

	// ResourceExhausted - quota rejections, never retried by the server
	case CodeRateLimitExceeded:
		return codes.ResourceExhausted

	// Internal - fail-closed configuration problems
	case CodeConfigurationSecretMissing:
		return codes.Internal

	default:
		return codes.Internal
	}
}
