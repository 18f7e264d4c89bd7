package transcription

import (
	"context"
)

// State is the lifecycle state of an uploaded audio file on the remote side.
type State string

const (
	StateUploading  State = "UPLOADING"
	StateProcessing State = "PROCESSING"
	StateReady      State = "READY"
	StateFailed     State = "FAILED"
)

// Terminal reports whether the remote side has finished processing.
func (s State) Terminal() bool {
	return s == StateReady || s == StateFailed
}

// Handle is an opaque reference to an uploaded audio file plus its state.
// The orchestrator owns it for the duration of one job.
type Handle struct {
	Name     string
	URI      string
	MIMEType string
	State    State
}

// Remote is the hosted transcription service.
type Remote interface {
	// Upload sends the audio file and returns a handle in UPLOADING,
	// PROCESSING or a terminal state.
	Upload(ctx context.Context, audioPath string, format AudioFormat, displayName string) (Handle, error)
	// GetStatus re-reads the handle's state.
	GetStatus(ctx context.Context, handle Handle) (Handle, error)
	// Generate runs the prompt against a READY handle and returns the text.
	Generate(ctx context.Context, model, prompt string, handle Handle) (string, error)
	// Delete discards the remote file.
	Delete(ctx context.Context, handle Handle) error
}
