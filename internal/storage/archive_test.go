package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
)

type fakeStore struct {
	putKey         string
	putContentType string
	putData        []byte
	putErr         error
}

func (f *fakeStore) Put(_ context.Context, key string, data []byte, contentType string) error {
	f.putKey = key
	f.putData = data
	f.putContentType = contentType
	return f.putErr
}

func (f *fakeStore) URL(key string) string { return "https://cdn.test/" + key }

func (f *fakeStore) Exists(context.Context, string) (bool, error) { return false, nil }

func (f *fakeStore) Delete(context.Context, string) error { return nil }

func TestArchiveReference(t *testing.T) {
	store := &fakeStore{}
	archiver := NewArchiver(store)

	jpeg := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F'}
	encoded := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpeg)

	url, err := archiver.ArchiveReference(context.Background(), "sess-1", "job-1", encoded, "photo.jpg")
	if err != nil {
		t.Fatalf("ArchiveReference: %v", err)
	}
	if store.putKey != "references/sess-1/job-1.jpg" {
		t.Errorf("key = %q", store.putKey)
	}
	if store.putContentType != "image/jpeg" {
		t.Errorf("contentType = %q", store.putContentType)
	}
	if url != "https://cdn.test/references/sess-1/job-1.jpg" {
		t.Errorf("url = %q", url)
	}
	if len(store.putData) != len(jpeg) {
		t.Errorf("stored %d bytes, want %d", len(store.putData), len(jpeg))
	}
}

func TestArchiveReference_BadPayload(t *testing.T) {
	archiver := NewArchiver(&fakeStore{})
	if _, err := archiver.ArchiveReference(context.Background(), "s", "j", "%%%not-base64%%%", ""); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestArchiveReference_StoreFailure(t *testing.T) {
	store := &fakeStore{putErr: errors.New("bucket gone")}
	archiver := NewArchiver(store)
	encoded := base64.StdEncoding.EncodeToString([]byte{0x01, 0x02})
	if _, err := archiver.ArchiveReference(context.Background(), "s", "j", encoded, "x.png"); err == nil {
		t.Fatal("expected store error")
	}
}

func TestExtensionFor(t *testing.T) {
	tests := []struct {
		contentType string
		fileName    string
		want        string
	}{
		{"image/png", "ignored.jpg", ".png"},
		{"image/webp", "", ".webp"},
		{"application/octet-stream", "ref.GIF", ".gif"},
		{"application/octet-stream", "noext", ".jpg"},
	}
	for _, tt := range tests {
		if got := extensionFor(tt.contentType, tt.fileName); got != tt.want {
			t.Errorf("extensionFor(%q, %q) = %q, want %q", tt.contentType, tt.fileName, got, tt.want)
		}
	}
}
