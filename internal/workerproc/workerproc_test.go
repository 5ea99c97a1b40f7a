package workerproc

import (
	"context"
	"errors"
	"testing"

	"voterlist-backend/internal/queue"
)

type fakeProcessor struct {
	seen []string
	err  error
}

func (f *fakeProcessor) EnsureScheduled(_ context.Context, id string) error {
	f.seen = append(f.seen, id)
	return f.err
}

func encode(t *testing.T, msg queue.Message) string {
	t.Helper()
	body, err := queue.EncodeMessage(msg)
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}
	return string(body)
}

func TestHandleMessageSchedulesDocument(t *testing.T) {
	proc := &fakeProcessor{}
	msg, err := HandleMessage(context.Background(), proc, encode(t, queue.Message{DocumentID: "d1", RequestID: "req-1", Version: 1}))
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if msg.RequestID != "req-1" || len(proc.seen) != 1 || proc.seen[0] != "d1" {
		t.Fatalf("unexpected processing msg=%+v seen=%v", msg, proc.seen)
	}
}

func TestHandleMessageClassifiesErrors(t *testing.T) {
	tests := []struct {
		name          string
		body          string
		procErr       error
		unrecoverable bool
	}{
		{"empty body", "  ", nil, true},
		{"bad json", "{bad", nil, true},
		{"missing id", encode(t, queue.Message{RequestID: "r"}), nil, true},
		{"future version", encode(t, queue.Message{DocumentID: "d1", Version: queue.MessageVersion + 1}), nil, true},
		{"store failure", encode(t, queue.Message{DocumentID: "d1"}), errors.New("db down"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := HandleMessage(context.Background(), &fakeProcessor{err: tt.procErr}, tt.body)
			if err == nil {
				t.Fatalf("expected error")
			}
			if got := Unrecoverable(err); got != tt.unrecoverable {
				t.Fatalf("Unrecoverable = %v, want %v (err %v)", got, tt.unrecoverable, err)
			}
		})
	}
}

func TestComputeMeta(t *testing.T) {
	if meta := ComputeMeta(""); meta.BodyLen != 0 || meta.BodySHA != "" {
		t.Fatalf("unexpected meta for empty body %+v", meta)
	}
	meta := ComputeMeta("abc")
	if meta.BodyLen != 3 || meta.BodySHA != "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad" {
		t.Fatalf("unexpected meta %+v", meta)
	}
}
