package main

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"voterlist-backend/internal/queue"
)

type fakeSQS struct {
	mu       sync.Mutex
	deleted  []string
	batches  [][]sqstypes.Message
	received int
	cancel   context.CancelFunc
}

func (f *fakeSQS) ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.received < len(f.batches) {
		out := &sqs.ReceiveMessageOutput{Messages: f.batches[f.received]}
		f.received++
		return out, nil
	}
	if f.cancel != nil {
		f.cancel()
	}
	return nil, context.Canceled
}

func (f *fakeSQS) DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, aws.ToString(params.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

type fakeProcessor struct {
	mu   sync.Mutex
	err  error
	seen []string
}

func (f *fakeProcessor) EnsureScheduled(ctx context.Context, documentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, documentID)
	return f.err
}

func testConsumer(client sqsAPI, proc *fakeProcessor) *consumer {
	return &consumer{client: client, queueURL: "queue", proc: proc, concurrency: 2, maxReceives: 5}
}

func message(t *testing.T, id, receipt string, m queue.Message) sqstypes.Message {
	t.Helper()
	body, err := queue.EncodeMessage(m)
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}
	return sqstypes.Message{
		MessageId:     aws.String(id),
		ReceiptHandle: aws.String(receipt),
		Body:          aws.String(string(body)),
		Attributes:    map[string]string{"ApproximateReceiveCount": "1"},
	}
}

func TestWorkerDeletesMessageOnSuccess(t *testing.T) {
	client := &fakeSQS{}
	proc := &fakeProcessor{}
	msg := message(t, "m1", "r1", queue.Message{DocumentID: "doc-1", RequestID: "req-1", Version: queue.MessageVersion})

	testConsumer(client, proc).handle(context.Background(), msg)

	if len(client.deleted) != 1 {
		t.Fatalf("expected delete, got %d", len(client.deleted))
	}
	if len(proc.seen) != 1 || proc.seen[0] != "doc-1" {
		t.Fatalf("expected doc-1 scheduled, got %v", proc.seen)
	}
}

func TestWorkerDoesNotDeleteOnFailure(t *testing.T) {
	client := &fakeSQS{}
	proc := &fakeProcessor{err: errors.New("boom")}
	msg := message(t, "m2", "r2", queue.Message{DocumentID: "doc-2", RequestID: "req-2"})

	testConsumer(client, proc).handle(context.Background(), msg)

	if len(client.deleted) != 0 {
		t.Fatalf("expected no delete, got %d", len(client.deleted))
	}
}

func TestWorkerDeletesOnInvalidJSON(t *testing.T) {
	client := &fakeSQS{}
	proc := &fakeProcessor{}
	msg := sqstypes.Message{
		MessageId:     aws.String("m3"),
		ReceiptHandle: aws.String("r3"),
		Body:          aws.String("{bad-json"),
	}

	testConsumer(client, proc).handle(context.Background(), msg)

	if len(client.deleted) != 1 {
		t.Fatalf("expected delete, got %d", len(client.deleted))
	}
	if len(proc.seen) != 0 {
		t.Fatalf("expected no processing, got %v", proc.seen)
	}
}

func TestConsumeDrainsBatchesUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client := &fakeSQS{
		cancel: cancel,
		batches: [][]sqstypes.Message{{
			message(t, "m1", "r1", queue.Message{DocumentID: "doc-1"}),
			message(t, "m2", "r2", queue.Message{DocumentID: "doc-2"}),
		}},
	}
	proc := &fakeProcessor{}
	var wg sync.WaitGroup

	testConsumer(client, proc).run(ctx, &wg)
	wg.Wait()

	if len(client.deleted) != 2 {
		t.Fatalf("expected 2 deletes, got %d", len(client.deleted))
	}
}

func TestReceiveCount(t *testing.T) {
	if got := receiveCount(sqstypes.Message{}); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
	if got := receiveCount(sqstypes.Message{Attributes: map[string]string{"ApproximateReceiveCount": "3"}}); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
}

func TestWorkerDropsMessageAfterMaxReceives(t *testing.T) {
	client := &fakeSQS{}
	proc := &fakeProcessor{err: errors.New("db down")}
	msg := message(t, "m4", "r4", queue.Message{DocumentID: "doc-4"})
	msg.Attributes["ApproximateReceiveCount"] = "5"

	testConsumer(client, proc).handle(context.Background(), msg)

	if len(client.deleted) != 1 || client.deleted[0] != "r4" {
		t.Fatalf("expected poisoned message to be deleted, got %v", client.deleted)
	}
}
