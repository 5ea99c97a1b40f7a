package queue

import (
	"testing"
)

func TestDecodeMessageKeepsBengaliName(t *testing.T) {
	payload := []byte(`{"documentId":"doc-1","name":"#রংপুর:বদরগঞ্জ/পুরুষ","uploadedBy":"01712345678","enqueuedAt":"2026-01-30T22:00:00Z","version":1}`)

	got, err := DecodeMessage(payload)
	if err != nil {
		t.Fatalf("decode message: %v", err)
	}
	if got.DocumentID != "doc-1" || got.Name != "#রংপুর:বদরগঞ্জ/পুরুষ" || got.Version != MessageVersion {
		t.Fatalf("unexpected message %+v", got)
	}
}

func TestDecodeMessageRejectsGarbage(t *testing.T) {
	if _, err := DecodeMessage([]byte("{bad-json")); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestEncodeMessageStampsVersion(t *testing.T) {
	body, err := EncodeMessage(Message{DocumentID: "doc-9"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeMessage(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Version != MessageVersion {
		t.Fatalf("expected version %d, got %d", MessageVersion, got.Version)
	}
}

func TestAttributesCarryIDs(t *testing.T) {
	attrs := attributes(Message{DocumentID: "doc-1", RequestID: "req-1"})
	if *attrs["documentId"].StringValue != "doc-1" || *attrs["requestId"].StringValue != "req-1" {
		t.Fatalf("unexpected attributes %+v", attrs)
	}
	if _, ok := attributes(Message{DocumentID: "doc-2"})["requestId"]; ok {
		t.Fatalf("expected no requestId attribute when empty")
	}
}
