package pipeline

import "fmt"

// Stage names a step of the upload pipeline. The string values are stored
// in the journal.
type Stage string

// Pipeline stages, in execution order.
const (
	StageCredential Stage = "credential"
	StageSession    Stage = "session"
	StageLocate     Stage = "locate"
	StageNegotiate  Stage = "negotiate"
	StagePack       Stage = "pack"
	StageTransfer   Stage = "transfer"
	StageRegister   Stage = "register"
)

var stageDescriptions = map[Stage]string{
	StageCredential: "obtaining credential",
	StageSession:    "refreshing session",
	StageLocate:     "locating storage service",
	StageNegotiate:  "negotiating upload slot",
	StagePack:       "packaging document",
	StageTransfer:   "transferring document",
	StageRegister:   "registering document metadata",
}

// Describe returns a short human-readable description of the stage.
func (s Stage) Describe() string {
	if d, ok := stageDescriptions[s]; ok {
		return d
	}

	return string(s)
}

// StageError records which stage of a run failed.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage.Describe(), e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
