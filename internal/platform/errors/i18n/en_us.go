package i18n

// Error codes must match the codes defined in internal/platform/errors/codes.go.
// These are duplicated as strings to avoid an import cycle.
const (
	CodeConfigurationSecretMissing = "CONFIGURATION_SECRET_MISSING"
	CodeSimulationInputMissing     = "SIMULATION_INPUT_MISSING"
	CodeSimulationCohortInvalid    = "SIMULATION_COHORT_INVALID"
	CodeSnapshotMalformed          = "SNAPSHOT_MALFORMED"
	CodeStrategyNotFound           = "STRATEGY_NOT_FOUND"
	CodeStrategyVariableInvalid    = "STRATEGY_VARIABLE_INVALID"
	CodeRateLimitExceeded          = "RATE_LIMIT_EXCEEDED"
	CodeNotFound                   = "NOT_FOUND"
)

var enUSMessages = map[Code]string{
	CodeConfigurationSecretMissing: "The scoring service is not configured. Please try again later.",
	CodeSimulationInputMissing:     "A task, the game's task list and a user are required to simulate points.",
	CodeSimulationCohortInvalid:    "Unknown simulation cohort {{.Cohort}}.",
	CodeSnapshotMalformed:          "The submitted point preview could not be read.",
	CodeStrategyNotFound:           "Scoring strategy {{.StrategyID}} does not exist.",
	CodeStrategyVariableInvalid:    "Value {{.Value}} is not valid for strategy variable {{.Name}}.",
	CodeRateLimitExceeded:          "Too many requests for {{.Scope}}: the limit is {{number .Limit}} per {{.Window}}.",
	CodeNotFound:                   "The requested record was not found.",
}
