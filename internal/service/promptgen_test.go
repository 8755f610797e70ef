package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/mirae/stylegen/internal/domain"
)

func TestParseModelResponse(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		wantPrompts []string
		wantNames   []string
	}{
		{
			name:        "plain contract output",
			content:     "PROMPT1: silk blouse, studio shot --ar 2:3 --s 250\nPROMPT2: street style look --ar 3:2\nNAME1: Silk Dawn / 丝晨\nNAME2: Urban Bloom / 都市花",
			wantPrompts: []string{"silk blouse, studio shot --ar 2:3 --s 250", "street style look --ar 3:2"},
			wantNames:   []string{"Silk Dawn / 丝晨", "Urban Bloom / 都市花"},
		},
		{
			name:        "emission order preserved over label order",
			content:     "PROMPT2: second label first\nPROMPT1: first label second",
			wantPrompts: []string{"second label first", "first label second"},
		},
		{
			name:        "markdown decoration stripped",
			content:     "- **PROMPT1:** \"quoted prompt --ar 1:1\"\n* __NAME1:__ `Velvet Night / 夜绒`",
			wantPrompts: []string{"quoted prompt --ar 1:1"},
			wantNames:   []string{"Velvet Night / 夜绒"},
		},
		{
			name:        "caps at 3 prompts and 10 names",
			content:     "PROMPT1: a\nPROMPT2: b\nPROMPT3: c\nPROMPT4: d\nNAME1: n1\nNAME2: n2\nNAME3: n3\nNAME4: n4\nNAME5: n5\nNAME6: n6\nNAME7: n7\nNAME8: n8\nNAME9: n9\nNAME10: n10\nNAME11: n11",
			wantPrompts: []string{"a", "b", "c"},
			wantNames:   []string{"n1", "n2", "n3", "n4", "n5", "n6", "n7", "n8", "n9", "n10"},
		},
		{
			name:    "chatter without contract lines yields nothing",
			content: "Here are some ideas for your garment:\n1. A nice dress\n2. A cool jacket",
		},
		{
			name:        "empty extracted text skipped",
			content:     "PROMPT1:\nPROMPT2: real prompt",
			wantPrompts: []string{"real prompt"},
		},
		{
			name:        "prefix must start the line",
			content:     "Try this PROMPT1: not matched\nPROMPT1: matched",
			wantPrompts: []string{"matched"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotPrompts, gotNames := ParseModelResponse(tt.content)
			if !reflect.DeepEqual(gotPrompts, tt.wantPrompts) {
				t.Errorf("prompts = %q, want %q", gotPrompts, tt.wantPrompts)
			}
			if !reflect.DeepEqual(gotNames, tt.wantNames) {
				t.Errorf("names = %q, want %q", gotNames, tt.wantNames)
			}
		})
	}
}

func TestDetectMIMEType(t *testing.T) {
	pngHeader := []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0}
	webpHeader := append([]byte("RIFF"), 0, 0, 0, 0, 'W', 'E', 'B', 'P')

	tests := []struct {
		name     string
		data     []byte
		fileName string
		want     string
	}{
		{"jpeg magic bytes", []byte{0xFF, 0xD8, 0xFF, 0xE0}, "photo.png", "image/jpeg"},
		{"png magic bytes", pngHeader, "", "image/png"},
		{"gif magic bytes", []byte("GIF89a...."), "", "image/gif"},
		{"webp riff header", webpHeader, "", "image/webp"},
		{"extension fallback", []byte{0x00, 0x01}, "ref.WEBP", "image/webp"},
		{"jpeg default", []byte{0x00, 0x01}, "mystery.bin", "image/jpeg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := detectMIMEType(tt.data, tt.fileName); got != tt.want {
				t.Errorf("detectMIMEType() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestAlternateMIME(t *testing.T) {
	if got := alternateMIME("image/jpeg"); got != "image/png" {
		t.Errorf("alternateMIME(jpeg) = %s", got)
	}
	if got := alternateMIME("image/png"); got != "image/jpeg" {
		t.Errorf("alternateMIME(png) = %s", got)
	}
	if got := alternateMIME("image/webp"); got != "image/jpeg" {
		t.Errorf("alternateMIME(webp) = %s", got)
	}
}

// testImageBase64 is a JPEG-signature payload; not decodable as a real
// image, which the pipeline tolerates.
func testImageBase64() string {
	return base64.StdEncoding.EncodeToString([]byte{0xFF, 0xD8, 0xFF, 0xE0, 0x01, 0x02, 0x03})
}

// newVisionStub returns a fake chat-completions endpoint that replies
// per model name and records the models it was called with.
func newVisionStub(t *testing.T, respond func(model string) (int, string)) (*httptest.Server, *[]string) {
	t.Helper()
	var calls []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("bad request body: %v", err)
		}
		calls = append(calls, req.Model)

		status, content := respond(req.Model)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			json.NewEncoder(w).Encode(map[string]interface{}{
				"error": map[string]string{"message": content, "type": "server_error"},
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": content}},
			},
		})
	}))
	return srv, &calls
}

func newTestGenService(baseURL string) *PromptGenService {
	return NewPromptGenService(&PromptGenConfig{
		Model:         "primary-vision",
		FallbackModel: "fallback-vision",
		APIKey:        "test-key",
		BaseURL:       baseURL,
	})
}

func TestGenerate_Success(t *testing.T) {
	srv, calls := newVisionStub(t, func(model string) (int, string) {
		return http.StatusOK, "PROMPT1: silk slip dress, studio --ar 2:3 --s 250\nPROMPT2: editorial shot --ar 3:2\nNAME1: Moon Silk / 月丝"
	})
	defer srv.Close()

	svc := newTestGenService(srv.URL)
	got, err := svc.Generate(context.Background(), &GenerateInput{
		ImageBase64: "data:image/jpeg;base64," + testImageBase64(),
		Part:        "dress",
		PromptType:  domain.PromptTypeOutfit,
		Gender:      domain.GenderFemale,
	})
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if len(got.Prompts) != 2 {
		t.Fatalf("got %d prompts, want 2", len(got.Prompts))
	}
	if got.Prompts[0] != "silk slip dress, studio --ar 2:3 --s 250" {
		t.Errorf("unexpected first prompt: %q", got.Prompts[0])
	}
	if len(got.Names) != 1 || got.Names[0] != "Moon Silk / 月丝" {
		t.Errorf("unexpected names: %q", got.Names)
	}
	if len(*calls) != 1 || (*calls)[0] != "primary-vision" {
		t.Errorf("unexpected call sequence: %v", *calls)
	}
}

func TestGenerate_FallbackModelAfterFailure(t *testing.T) {
	srv, calls := newVisionStub(t, func(model string) (int, string) {
		if model == "primary-vision" {
			return http.StatusInternalServerError, "model overloaded"
		}
		return http.StatusOK, "PROMPT1: recovered prompt --ar 1:1"
	})
	defer srv.Close()

	svc := newTestGenService(srv.URL)
	got, err := svc.Generate(context.Background(), &GenerateInput{
		ImageBase64: testImageBase64(),
		Part:        "top",
		PromptType:  domain.PromptTypeTexture,
	})
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if len(got.Prompts) != 1 || got.Prompts[0] != "recovered prompt --ar 1:1" {
		t.Errorf("unexpected prompts: %q", got.Prompts)
	}
	want := []string{"primary-vision", "fallback-vision"}
	if !reflect.DeepEqual(*calls, want) {
		t.Errorf("call sequence = %v, want %v", *calls, want)
	}
}

func TestGenerate_AllAttemptsExhausted(t *testing.T) {
	srv, calls := newVisionStub(t, func(model string) (int, string) {
		return http.StatusBadGateway, "upstream gone"
	})
	defer srv.Close()

	svc := newTestGenService(srv.URL)
	_, err := svc.Generate(context.Background(), &GenerateInput{
		ImageBase64: testImageBase64(),
		Part:        "shoes",
		PromptType:  domain.PromptTypeOutfit,
	})
	if err == nil {
		t.Fatal("Generate() expected error")
	}
	// Primary, fallback, fallback with alternate MIME declaration.
	want := []string{"primary-vision", "fallback-vision", "fallback-vision"}
	if !reflect.DeepEqual(*calls, want) {
		t.Errorf("call sequence = %v, want %v", *calls, want)
	}
}

func TestGenerate_RefusalClassified(t *testing.T) {
	const refusal = "I'm sorry, but I can't analyze this image."
	srv, _ := newVisionStub(t, func(model string) (int, string) {
		return http.StatusOK, refusal
	})
	defer srv.Close()

	svc := newTestGenService(srv.URL)
	got, err := svc.Generate(context.Background(), &GenerateInput{
		ImageBase64: testImageBase64(),
		Part:        "top",
		PromptType:  domain.PromptTypeOutfit,
	})
	if !errors.Is(err, domain.ErrPolicyRefusal) {
		t.Fatalf("error = %v, want ErrPolicyRefusal", err)
	}
	if got == nil || got.RawText != refusal {
		t.Error("raw model text not preserved on refusal")
	}
	if domain.KindForError(err) != domain.ErrKindRefusal {
		t.Errorf("KindForError = %s, want %s", domain.KindForError(err), domain.ErrKindRefusal)
	}
}

func TestGenerate_NoPromptsExtracted(t *testing.T) {
	srv, _ := newVisionStub(t, func(model string) (int, string) {
		return http.StatusOK, "The garment appears to be a cotton shirt with floral embroidery."
	})
	defer srv.Close()

	svc := newTestGenService(srv.URL)
	got, err := svc.Generate(context.Background(), &GenerateInput{
		ImageBase64: testImageBase64(),
		Part:        "top",
		PromptType:  domain.PromptTypeOutfit,
	})
	if !errors.Is(err, domain.ErrNoPromptsExtracted) {
		t.Fatalf("error = %v, want ErrNoPromptsExtracted", err)
	}
	if got == nil || !strings.Contains(got.RawText, "cotton shirt") {
		t.Error("raw model text not preserved when parsing fails")
	}
}

func TestGenerate_TextureModeDropsNames(t *testing.T) {
	srv, _ := newVisionStub(t, func(model string) (int, string) {
		return http.StatusOK, "PROMPT1: macro weave --ar 1:1 --s 50\nNAME1: should be dropped"
	})
	defer srv.Close()

	svc := newTestGenService(srv.URL)
	got, err := svc.Generate(context.Background(), &GenerateInput{
		ImageBase64: testImageBase64(),
		Part:        "bottom",
		PromptType:  domain.PromptTypeTexture,
	})
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if len(got.Names) != 0 {
		t.Errorf("texture mode kept names: %q", got.Names)
	}
}

func TestGenerate_RejectsBadBase64(t *testing.T) {
	svc := newTestGenService("http://127.0.0.1:0")
	_, err := svc.Generate(context.Background(), &GenerateInput{
		ImageBase64: "not base64 at all!!!",
		Part:        "top",
		PromptType:  domain.PromptTypeOutfit,
	})
	if err == nil {
		t.Fatal("expected decode error")
	}
}
