package filestore

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestObjectKey(t *testing.T) {
	now := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

	key := ObjectKey("mtk7", "worksheet (final).pdf", now)
	if key != "MTK7_20250314_092653_worksheet_final_.pdf" {
		t.Errorf("unexpected key %q", key)
	}
	if strings.ContainsAny(key, " ()") {
		t.Errorf("key contains unsafe characters: %q", key)
	}

	keyKey := AnswerKeyObjectKey("MTK7", "answers.pdf", now)
	if !strings.HasPrefix(keyKey, "key_MTK7_") {
		t.Errorf("answer key object not prefixed: %q", keyKey)
	}
}

func TestObjectKeyEmptyFilename(t *testing.T) {
	now := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	key := ObjectKey("BIO2", "()", now)
	if !strings.HasSuffix(key, "_file") && !strings.Contains(key, "file") {
		t.Errorf("expected fallback filename in key, got %q", key)
	}
}

func TestMemoryStorageUpload(t *testing.T) {
	m := NewMemoryStorage()
	url, err := m.Upload(context.Background(), "MTK7_x.pdf", []byte("data"), "application/pdf")
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if url != m.BaseURL+"/MTK7_x.pdf" {
		t.Errorf("unexpected URL %q", url)
	}
	if string(m.Objects["MTK7_x.pdf"]) != "data" {
		t.Errorf("stored bytes mismatch")
	}

	if _, err := m.Upload(context.Background(), "", []byte("x"), "application/pdf"); err == nil {
		t.Error("expected error for empty key")
	}
}
