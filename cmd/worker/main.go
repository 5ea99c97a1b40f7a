package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"voterlist-backend/internal/bootstrap"
	"voterlist-backend/internal/shared/config"
	"voterlist-backend/internal/shared/telemetry"
	"voterlist-backend/internal/workerproc"
)

const (
	sqsRegion                 = "us-east-1"
	defaultVisibilitySeconds  = 60
	defaultWorkerConcurrency  = 4
	defaultMaxReceives        = 5
	defaultShutdownTimeoutSec = 30
)

// The worker runs the extraction scheduler outside the API process. With
// SQS_QUEUE_URL set it also consumes upload notifications and makes sure each
// announced document has a due transition.
func main() {
	cfg := config.Load()
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		log.Fatal("DATABASE_URL is required; file-backed state cannot be shared with the API process")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTimeout := time.Duration(envInt("SHUTDOWN_TIMEOUT_SECONDS", defaultShutdownTimeoutSec)) * time.Second

	app, err := bootstrap.BuildWorker(cfg)
	if err != nil {
		log.Fatalf("bootstrap build: %v", err)
	}
	defer app.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := app.Scheduler.Run(ctx); err != nil {
			log.Printf("scheduler stopped: %v", err)
		}
	}()
	log.Printf("worker scheduler started tick=%s", app.Scheduler.Config().Tick)

	if queueURL := strings.TrimSpace(cfg.SQSQueueURL); queueURL != "" {
		region := cfg.AWSRegion
		if strings.TrimSpace(region) == "" {
			region = sqsRegion
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
		if err != nil {
			log.Fatalf("load aws config: %v", err)
		}
		c := newConsumer(sqs.NewFromConfig(awsCfg), queueURL, app.Scheduler)
		c.run(ctx, &wg)
	}

	<-ctx.Done()
	log.Printf("shutdown requested, waiting up to %s for in-flight work", shutdownTimeout)
	waitDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
	case <-time.After(shutdownTimeout):
		log.Printf("shutdown timeout reached; exiting with in-flight work")
	}
}

type sqsAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// consumer turns upload notifications into EnsureScheduled calls.
type consumer struct {
	client      sqsAPI
	queueURL    string
	proc        workerproc.Processor
	visibility  int
	concurrency int
	// maxReceives bounds redelivery of a message whose processing keeps
	// failing; at the limit it is deleted and logged as dropped.
	maxReceives int
}

func newConsumer(client sqsAPI, queueURL string, proc workerproc.Processor) *consumer {
	return &consumer{
		client:      client,
		queueURL:    queueURL,
		proc:        proc,
		visibility:  envInt("SQS_VISIBILITY_TIMEOUT_SECONDS", defaultVisibilitySeconds),
		concurrency: max(1, envInt("WORKER_CONCURRENCY", defaultWorkerConcurrency)),
		maxReceives: envInt("SQS_MAX_RECEIVES", defaultMaxReceives),
	}
}

// run polls until ctx is cancelled. Handlers are tracked on wg so shutdown
// can wait for them.
func (c *consumer) run(ctx context.Context, wg *sync.WaitGroup) {
	sem := make(chan struct{}, max(1, c.concurrency))
	log.Printf("worker consuming queue=%s concurrency=%d visibility=%ds max_receives=%d",
		c.queueURL, cap(sem), c.visibility, c.maxReceives)

	for ctx.Err() == nil {
		resp, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(c.queueURL),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     20,
			VisibilityTimeout:   int32(c.visibility),
			AttributeNames:      []sqstypes.QueueAttributeName{sqstypes.QueueAttributeName("ApproximateReceiveCount")},
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				return
			}
			log.Printf("receive message: %v", err)
			continue
		}

		for _, msg := range resp.Messages {
			select {
			case <-ctx.Done():
				return
			case sem <- struct{}{}:
			}
			wg.Add(1)
			go func(m sqstypes.Message) {
				defer wg.Done()
				defer func() { <-sem }()
				c.handle(ctx, m)
			}(msg)
		}
	}
}

func (c *consumer) handle(ctx context.Context, msg sqstypes.Message) {
	body := aws.ToString(msg.Body)
	decoded, err := workerproc.HandleMessage(ctx, c.proc, body)
	fields := baseFields(msg, decoded.DocumentID, decoded.RequestID)
	switch {
	case err == nil:
		if c.delete(ctx, msg, fields) {
			telemetry.Info("worker.document.scheduled", fields)
		}
	case workerproc.Unrecoverable(err):
		meta := workerproc.ComputeMeta(body)
		fields["error"] = err.Error()
		fields["body_len"] = meta.BodyLen
		if meta.BodySHA != "" {
			fields["body_sha256"] = meta.BodySHA
		}
		telemetry.Error("worker.document.invalid_message", fields)
		c.delete(ctx, msg, fields)
	case c.maxReceives > 0 && receiveCount(msg) >= c.maxReceives:
		fields["error"] = err.Error()
		telemetry.Error("worker.document.dropped", fields)
		c.delete(ctx, msg, fields)
	default:
		fields["error"] = err.Error()
		telemetry.Error("worker.document.failed", fields)
	}
}

func (c *consumer) delete(ctx context.Context, msg sqstypes.Message, fields map[string]any) bool {
	receipt := aws.ToString(msg.ReceiptHandle)
	if receipt == "" {
		telemetry.Error("worker.document.delete_failed", withError(fields, "missing receipt handle"))
		return false
	}
	if _, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: aws.String(receipt),
	}); err != nil {
		telemetry.Error("worker.document.delete_failed", withError(fields, err.Error()))
		return false
	}
	return true
}

func withError(fields map[string]any, msg string) map[string]any {
	out := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out["delete_error"] = msg
	return out
}

func baseFields(msg sqstypes.Message, documentID, requestID string) map[string]any {
	fields := map[string]any{
		"document_id":    documentID,
		"sqs_message_id": aws.ToString(msg.MessageId),
		"receive_count":  receiveCount(msg),
	}
	if strings.TrimSpace(requestID) != "" {
		fields["request_id"] = requestID
	}
	return fields
}

func receiveCount(msg sqstypes.Message) int {
	n, err := strconv.Atoi(msg.Attributes["ApproximateReceiveCount"])
	if err != nil {
		return 0
	}
	return n
}

func envInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return val
}
