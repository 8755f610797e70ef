package domain

import "errors"

// ErrorKind classifies a job or prompt failure for the caller. The
// values are part of the wire contract consumed by the frontend.
type ErrorKind string

const (
	ErrKindGeneration   ErrorKind = "generation_failure"
	ErrKindRefusal      ErrorKind = "policy_refusal"
	ErrKindRelayConfig  ErrorKind = "relay_config_failure"
	ErrKindRelayFailed  ErrorKind = "midjourney_prompt_failed"
	ErrKindRelayTimeout ErrorKind = "midjourney_timeout"
	ErrKindAborted      ErrorKind = "aborted"
)

// Sentinel errors used across the pipeline. Wrap with fmt.Errorf("%w")
// so callers can classify with errors.Is.
var (
	// ErrPolicyRefusal marks a vision-model response that declined to
	// analyze the image. Distinct from a generic generation failure so
	// the caller can present different guidance.
	ErrPolicyRefusal = errors.New("model declined to analyze the image")

	// ErrNoPromptsExtracted marks a model response that violated the
	// PROMPT<n>: output contract (zero prompts parsed).
	ErrNoPromptsExtracted = errors.New("no prompts extracted from model response")

	// ErrRelayTimeout marks a prompt submission that exceeded the
	// per-prompt response timeout. Timeouts usually mean the remote
	// service raised an anti-automation challenge.
	ErrRelayTimeout = errors.New("midjourney response timeout")

	// ErrMissingCredentials marks a relay call started without a user
	// token. Terminal for the whole relay call.
	ErrMissingCredentials = errors.New("no Discord user token provided")
)

// RelayTimeoutGuidance is surfaced with every relay timeout so the
// operator knows how to recover.
const RelayTimeoutGuidance = "Go to Discord and manually run /imagine to pass anti-bot verification, then restart processing"

// KindForError maps an error to its ErrorKind classification.
func KindForError(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrPolicyRefusal):
		return ErrKindRefusal
	case errors.Is(err, ErrNoPromptsExtracted):
		return ErrKindGeneration
	case errors.Is(err, ErrRelayTimeout):
		return ErrKindRelayTimeout
	case errors.Is(err, ErrMissingCredentials):
		return ErrKindRelayConfig
	default:
		return ErrKindGeneration
	}
}
