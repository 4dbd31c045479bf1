package commands

import "github.com/doeshing/multiprompt/internal/domain"

// CLI-specific constants
const (
	// DefaultEditorCommand is the default editor command
	DefaultEditorCommand = "vi"

	DefaultHistoryLimit       = domain.DefaultHistoryLimit
	DefaultHistorySearchLimit = domain.DefaultHistorySearchLimit
	DefaultHistoryRetainDays  = domain.DefaultHistoryRetainDays

	// MaxHistoryAnalysisRecords bounds the entries loaded for history stats.
	MaxHistoryAnalysisRecords = 500

	// DefaultTopTargets is how many targets history stats lists.
	DefaultTopTargets = 10

	// previewLength is how much of a prompt list views show.
	previewLength = 60
)

// Error messages
const (
	ErrConfigLoaderUnavailable  = "config loader unavailable"
	ErrDoctorServiceUnavailable = "doctor service unavailable"
	ErrHistoryStoreUnavailable  = "history store unavailable"
	ErrExecutorUnavailable      = "executor unavailable"
	ErrOrchestratorUnavailable  = "orchestrator unavailable"
	ErrKeyRequired              = "--key is required"
	ErrQueryRequired            = "--query required"
	ErrInvalidRetainDays        = "--days must be > 0"
)

// Success messages
const (
	MsgConfigurationValid       = "Configuration valid"
	MsgNoDifferencesFromDefault = "No differences from default configuration."
	MsgNoHistoryRecorded        = "No history recorded yet."
	MsgNextRun                  = "Changes apply on the next run."
)
