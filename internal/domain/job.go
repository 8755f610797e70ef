package domain

import "time"

// ClothingPart identifies which part of the outfit a job targets.
type ClothingPart string

const (
	PartTop         ClothingPart = "top"
	PartBottom      ClothingPart = "bottom"
	PartDress       ClothingPart = "dress"
	PartOuterwear   ClothingPart = "outerwear"
	PartShoes       ClothingPart = "shoes"
	PartAccessories ClothingPart = "accessories"
	PartHair        ClothingPart = "hair"
	PartFeatures    ClothingPart = "features"
	PartOther       ClothingPart = "other"
)

// PromptType selects the generation style: full-outfit prompts or
// macro fabric/texture prompts.
type PromptType string

const (
	PromptTypeOutfit  PromptType = "outfit"
	PromptTypeTexture PromptType = "texture"
)

// GenderType is the model gender hint for outfit prompts.
type GenderType string

const (
	GenderMale   GenderType = "male"
	GenderFemale GenderType = "female"
)

// Job is one unit of work in a batch: a reference image plus the
// parameters that steer prompt generation. Jobs are created by the
// caller and never mutated by the pipeline; outcomes are recorded in
// a separate JobResult.
type Job struct {
	ID                 string       `json:"id"`
	ImageBase64        string       `json:"imageBase64"`
	ClothingPart       ClothingPart `json:"clothingPart"`
	CustomClothingPart string       `json:"customClothingPart,omitempty"`
	PromptType         PromptType   `json:"promptType"`
	GenderType         GenderType   `json:"genderType,omitempty"`
	Guidance           string       `json:"guidance,omitempty"`
	FileName           string       `json:"fileName,omitempty"`
}

// EffectivePart returns the clothing part label to use in prompts,
// resolving "other" to the caller-supplied custom label.
func (j *Job) EffectivePart() string {
	if j.ClothingPart == PartOther && j.CustomClothingPart != "" {
		return j.CustomClothingPart
	}
	return string(j.ClothingPart)
}

// RelayResult records the outcome of submitting one prompt to the
// image relay service. Exactly one of MessageID and Error is set.
type RelayResult struct {
	Prompt    string    `json:"prompt"`
	MessageID string    `json:"messageId,omitempty"`
	Error     string    `json:"error,omitempty"`
	ErrorKind ErrorKind `json:"errorType,omitempty"`
}

// JobResult is the immutable outcome of processing one Job.
type JobResult struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`

	// Set on success.
	Prompt            string        `json:"prompt,omitempty"` // raw model response
	MidjourneyPrompts []string      `json:"midjourneyPrompts,omitempty"`
	OutfitNames       []string      `json:"outfitNames,omitempty"`
	MidjourneyResults []RelayResult `json:"midjourneyResults,omitempty"`
	CDNImageURL       string        `json:"cdnImageUrl,omitempty"`
	ArchiveURL        string        `json:"archiveUrl,omitempty"`

	// Set on failure.
	Error     string    `json:"error,omitempty"`
	ErrorKind ErrorKind `json:"errorType,omitempty"`
}

// BatchSummary aggregates the outcome of one batch invocation.
type BatchSummary struct {
	SessionID    string      `json:"sessionId"`
	Results      []JobResult `json:"results"`
	SuccessCount int         `json:"successCount"`
	ErrorCount   int         `json:"errorCount"`
	Aborted      bool        `json:"aborted"`
	AbortedAt    int         `json:"abortedAt,omitempty"` // jobs completed before the abort took effect

	// Bookkeeping for the history store, not part of the wire response.
	RelayEnabled bool      `json:"-"`
	StartedAt    time.Time `json:"-"`
	FinishedAt   time.Time `json:"-"`
}

// DiscordCredentials carries the caller-supplied relay credentials.
// The token is required for any relay work; server and channel fall
// back to the service configuration when empty.
type DiscordCredentials struct {
	Token     string `json:"discordToken,omitempty"`
	ServerID  string `json:"discordServerId,omitempty"`
	ChannelID string `json:"discordChannelId,omitempty"`
}
