package errors

// Error codes grouped by component.
const (
	// Provider adapter codes (1000-1099)
	ErrProviderTimeout       = 1000
	ErrProviderRateLimited   = 1001
	ErrProviderServerError   = 1002
	ErrProviderBusy          = 1003
	ErrProviderBadRequest    = 1004
	ErrProviderNoCredential  = 1005
	ErrProviderRejected      = 1006
	ErrProviderEmptyResponse = 1007
	ErrProviderPollTimeout   = 1008
	ErrProviderJobFaulted    = 1009

	// Validation gate codes (1100-1199)
	ErrArtifactMissing     = 1100
	ErrArtifactTooSmall    = 1101
	ErrArtifactUndecodable = 1102
	ErrWrongOrientation    = 1103
	ErrPlaceholderShape    = 1104

	// Scheduler / session codes (1200-1299)
	ErrRoundsExhausted = 1200
	ErrDeadlineReached = 1201
	ErrNoProviders     = 1202

	// Mixer codes (1300-1399)
	ErrMixAllStrategiesFailed = 1300
	ErrMixMissingInput        = 1301
	ErrMixUndersizedOutput    = 1302
	ErrSFXUnknownEffect       = 1303

	// System codes (1400-1499)
	ErrFileCreateFailed = 1400
	ErrDirCreateFailed  = 1401
	ErrToolUnavailable  = 1402
)
