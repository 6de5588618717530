package aws

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// MessageHandler processes one SQS message body. Returning an error leaves the
// message on the queue so it becomes visible again after the visibility timeout.
type MessageHandler func(ctx context.Context, body string) error

// SQSConsumer long-polls a single queue.
type SQSConsumer struct {
	client   *sqs.Client
	queueURL string
}

func NewSQSConsumer(cfg aws.Config, queueURL string) *SQSConsumer {
	return &SQSConsumer{
		client:   sqs.NewFromConfig(cfg),
		queueURL: queueURL,
	}
}

// StartPolling runs until ctx is cancelled.
func (c *SQSConsumer) StartPolling(ctx context.Context, handler MessageHandler) error {
	log.Printf("[SQS] polling queue %s", c.queueURL)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := c.pollOnce(ctx, handler); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			log.Printf("[SQS] poll error: %v", err)
			// back off briefly so a broken queue does not spin
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(2 * time.Second):
			}
		}
	}
}

func (c *SQSConsumer) pollOnce(ctx context.Context, handler MessageHandler) error {
	result, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            &c.queueURL,
		MaxNumberOfMessages: 10,
		WaitTimeSeconds:     20,
		VisibilityTimeout:   60,
	})
	if err != nil {
		return fmt.Errorf("failed to receive messages: %w", err)
	}

	for _, msg := range result.Messages {
		if msg.Body == nil {
			continue
		}
		if err := handler(ctx, *msg.Body); err != nil {
			log.Printf("[SQS] handler failed, message will be redelivered: %v", err)
			continue
		}
		if _, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
			QueueUrl:      &c.queueURL,
			ReceiptHandle: msg.ReceiptHandle,
		}); err != nil {
			log.Printf("[SQS] failed to delete message: %v", err)
		}
	}
	return nil
}
