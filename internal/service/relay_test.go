package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mirae/stylegen/internal/domain"
	"github.com/mirae/stylegen/internal/session"
)

// fakeDiscord is an httptest-backed stand-in for the Discord REST API.
type fakeDiscord struct {
	mu          sync.Mutex
	server      *httptest.Server
	submitted   []string // prompt values from /interactions, in order
	rejectAuth  bool
	failUpload  bool
	silentBot   bool // bot never echoes any message
	silentFor   map[string]bool
	uploadCalls int
}

func newFakeDiscord(t *testing.T) *fakeDiscord {
	t.Helper()
	f := &fakeDiscord{silentFor: map[string]bool{}}
	mux := http.NewServeMux()

	mux.HandleFunc("/users/@me", func(w http.ResponseWriter, r *http.Request) {
		if f.rejectAuth {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"id": "42", "username": "tester"})
	})

	mux.HandleFunc("/channels/chan-1/messages", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		if r.Method == http.MethodPost {
			f.uploadCalls++
			if f.failUpload {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]interface{}{
				"id":          "upload-msg",
				"attachments": []map[string]string{{"url": "https://cdn.example/ref.jpg"}},
			})
			return
		}

		// GET: echo one bot message per submitted prompt unless muted.
		var messages []map[string]interface{}
		for i, prompt := range f.submitted {
			if f.silentBot || f.silentFor[prompt] {
				continue
			}
			messages = append(messages, map[string]interface{}{
				"id":      "bot-msg-" + string(rune('a'+i)),
				"content": "**" + prompt + "** - queued",
				"author":  map[string]interface{}{"id": midjourneyBotID, "bot": true},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(messages)
	})

	mux.HandleFunc("/interactions", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Data struct {
				Options []struct {
					Value string `json:"value"`
				} `json:"options"`
			} `json:"data"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		if len(body.Data.Options) > 0 {
			f.submitted = append(f.submitted, body.Data.Options[0].Value)
		}
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeDiscord) prompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.submitted))
	copy(out, f.submitted)
	return out
}

func newTestRelay(f *fakeDiscord, abort *session.AbortRegistry) *RelayService {
	return NewRelayService(&RelayConfig{
		APIBase:        f.server.URL,
		ChannelID:      "chan-1",
		ServerID:       "guild-1",
		ConnectTimeout: time.Second,
		PromptTimeout:  300 * time.Millisecond,
		PromptDelay:    time.Millisecond,
		PollInterval:   5 * time.Millisecond,
	}, abort)
}

func testCreds() *domain.DiscordCredentials {
	return &domain.DiscordCredentials{Token: "user-token"}
}

func TestRelayBatch_MissingToken(t *testing.T) {
	f := newFakeDiscord(t)
	relay := newTestRelay(f, session.NewAbortRegistry())

	_, err := relay.RelayBatch(context.Background(), []string{"p1"}, "", &domain.DiscordCredentials{}, nil, "")
	if !errors.Is(err, domain.ErrMissingCredentials) {
		t.Fatalf("error = %v, want ErrMissingCredentials", err)
	}
	_, err = relay.RelayBatch(context.Background(), []string{"p1"}, "", nil, nil, "")
	if !errors.Is(err, domain.ErrMissingCredentials) {
		t.Fatalf("nil creds error = %v, want ErrMissingCredentials", err)
	}
}

func TestRelayBatch_RejectedToken(t *testing.T) {
	f := newFakeDiscord(t)
	f.rejectAuth = true
	relay := newTestRelay(f, session.NewAbortRegistry())

	_, err := relay.RelayBatch(context.Background(), []string{"p1"}, "", testCreds(), nil, "")
	if err == nil {
		t.Fatal("expected connect error for rejected token")
	}
}

func TestRelayBatch_SuccessWithReference(t *testing.T) {
	f := newFakeDiscord(t)
	relay := newTestRelay(f, session.NewAbortRegistry())

	image := base64.StdEncoding.EncodeToString([]byte{0xFF, 0xD8, 0xFF})
	out, err := relay.RelayBatch(context.Background(),
		[]string{"prompt one --ar 2:3", "prompt two --ar 2:3"}, image, testCreds(), nil, "")
	if err != nil {
		t.Fatalf("RelayBatch() error: %v", err)
	}

	if out.CDNImageURL != "https://cdn.example/ref.jpg" {
		t.Errorf("CDNImageURL = %q", out.CDNImageURL)
	}
	if f.uploadCalls != 1 {
		t.Errorf("uploadCalls = %d, want one upload per batch", f.uploadCalls)
	}
	if len(out.Results) != 2 {
		t.Fatalf("got %d results, want 2", len(out.Results))
	}
	for i, res := range out.Results {
		if res.MessageID == "" || res.Error != "" {
			t.Errorf("result %d: MessageID=%q Error=%q, want success", i, res.MessageID, res.Error)
		}
	}

	// The CDN URL must be prepended to every submitted prompt.
	for _, sent := range f.prompts() {
		if !strings.HasPrefix(sent, "https://cdn.example/ref.jpg ") {
			t.Errorf("submitted prompt missing CDN prefix: %q", sent)
		}
	}
}

func TestRelayBatch_UploadFailureIsNonFatal(t *testing.T) {
	f := newFakeDiscord(t)
	f.failUpload = true
	relay := newTestRelay(f, session.NewAbortRegistry())

	image := base64.StdEncoding.EncodeToString([]byte{0x01})
	out, err := relay.RelayBatch(context.Background(), []string{"solo prompt"}, image, testCreds(), nil, "")
	if err != nil {
		t.Fatalf("RelayBatch() error: %v", err)
	}
	if out.CDNImageURL != "" {
		t.Errorf("CDNImageURL = %q, want empty after failed upload", out.CDNImageURL)
	}
	if len(out.Results) != 1 || out.Results[0].MessageID == "" {
		t.Fatalf("prompt should still be relayed without the reference: %+v", out.Results)
	}
	if got := f.prompts()[0]; got != "solo prompt" {
		t.Errorf("submitted prompt = %q, want bare prompt", got)
	}
}

func TestRelayBatch_TimeoutClassifiedAndLoopContinues(t *testing.T) {
	f := newFakeDiscord(t)
	f.silentFor["silent prompt"] = true
	relay := newTestRelay(f, session.NewAbortRegistry())

	var timeoutDetail *domain.ErrorDetail
	onProgress := func(_, _ int, _ string, detail *domain.ErrorDetail) {
		if detail != nil && detail.ErrorType == string(domain.EventMidjourneyTimeout) {
			timeoutDetail = detail
		}
	}

	out, err := relay.RelayBatch(context.Background(),
		[]string{"silent prompt", "answered prompt"}, "", testCreds(), onProgress, "")
	if err != nil {
		t.Fatalf("RelayBatch() error: %v", err)
	}
	if len(out.Results) != 2 {
		t.Fatalf("got %d results, want 2", len(out.Results))
	}

	first := out.Results[0]
	if first.ErrorKind != domain.ErrKindRelayTimeout || first.MessageID != "" {
		t.Errorf("first result = %+v, want timeout classification", first)
	}
	second := out.Results[1]
	if second.MessageID == "" || second.Error != "" {
		t.Errorf("second result = %+v, want success after earlier timeout", second)
	}

	if timeoutDetail == nil {
		t.Fatal("no timeout detail reported through progress callback")
	}
	if timeoutDetail.RecoveryInstructions != domain.RelayTimeoutGuidance {
		t.Errorf("RecoveryInstructions = %q", timeoutDetail.RecoveryInstructions)
	}
	if timeoutDetail.FailedPrompt != "silent prompt" {
		t.Errorf("FailedPrompt = %q", timeoutDetail.FailedPrompt)
	}
}

func TestRelayBatch_AbortBetweenPrompts(t *testing.T) {
	f := newFakeDiscord(t)
	abort := session.NewAbortRegistry()
	relay := newTestRelay(f, abort)

	const sessionID = "sess-abort"
	onProgress := func(_, _ int, status string, _ *domain.ErrorDetail) {
		if strings.Contains(status, "sent successfully") {
			abort.RequestAbort(sessionID)
		}
	}

	out, err := relay.RelayBatch(context.Background(),
		[]string{"first", "second", "third"}, "", testCreds(), onProgress, sessionID)
	if err != nil {
		t.Fatalf("RelayBatch() error: %v", err)
	}
	if !out.Aborted {
		t.Fatal("outcome not marked aborted")
	}
	if len(out.Results) != 1 {
		t.Fatalf("got %d results, want 1 (prompts after the abort are skipped)", len(out.Results))
	}
	if got := len(f.prompts()); got != 1 {
		t.Errorf("submitted %d prompts, want 1", got)
	}
}

func TestRelayBatch_CancellationReturnsPartialOutcome(t *testing.T) {
	f := newFakeDiscord(t)
	relay := newTestRelay(f, session.NewAbortRegistry())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	onProgress := func(_, _ int, status string, _ *domain.ErrorDetail) {
		if strings.Contains(status, "Waiting before next prompt") {
			cancel()
		}
	}

	out, err := relay.RelayBatch(ctx, []string{"first", "second"}, "", testCreds(), onProgress, "")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if out == nil || len(out.Results) != 1 {
		t.Fatalf("outcome = %+v, want the already-submitted prompt kept", out)
	}
	if out.Results[0].MessageID == "" || out.Results[0].Error != "" {
		t.Errorf("first result = %+v, want success", out.Results[0])
	}
	if got := len(f.prompts()); got != 1 {
		t.Errorf("submitted %d prompts, want 1", got)
	}
}

func TestRelayBatch_AbortBeforeFirstPrompt(t *testing.T) {
	f := newFakeDiscord(t)
	abort := session.NewAbortRegistry()
	relay := newTestRelay(f, abort)

	const sessionID = "sess-pre"
	abort.RequestAbort(sessionID)

	out, err := relay.RelayBatch(context.Background(), []string{"never sent"}, "", testCreds(), nil, sessionID)
	if err != nil {
		t.Fatalf("RelayBatch() error: %v", err)
	}
	if !out.Aborted || len(out.Results) != 0 {
		t.Fatalf("outcome = %+v, want immediate abort with no results", out)
	}
	if len(f.prompts()) != 0 {
		t.Error("prompt was submitted despite pre-set abort flag")
	}
}
