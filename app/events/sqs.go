package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jdiaz1993/quickcalories/app/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	log "github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v79"
)

// SQSAPI is the subset of the SQS client used here.
type SQSAPI interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// SQSDispatcher publishes events for cmd/webhook-worker.
type SQSDispatcher struct {
	client   SQSAPI
	queueURL string
}

func NewSQSDispatcher(client SQSAPI, queueURL string) *SQSDispatcher {
	return &SQSDispatcher{client: client, queueURL: queueURL}
}

func (d *SQSDispatcher) Dispatch(ctx context.Context, event stripe.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("events: marshal %s: %w", event.ID, err)
	}
	body, err := json.Marshal(models.WebhookMessage{
		EventID:   event.ID,
		EventType: string(event.Type),
		Payload:   payload,
	})
	if err != nil {
		return fmt.Errorf("events: marshal envelope %s: %w", event.ID, err)
	}
	_, err = d.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(d.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("events: send %s: %w", event.ID, err)
	}
	return nil
}

// Consumer long-polls the queue and applies each event. Messages are deleted
// only after a successful apply so SQS redelivers failures.
type Consumer struct {
	client   SQSAPI
	queueURL string
	applier  Applier
	timeout  time.Duration
	observe  Observer
}

func NewConsumer(client SQSAPI, queueURL string, applier Applier, timeout time.Duration, observe Observer) *Consumer {
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Consumer{client: client, queueURL: queueURL, applier: applier, timeout: timeout, observe: observe}
}

// Run polls until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	log.Infof("webhook worker listening on %s", c.queueURL)
	for {
		if ctx.Err() != nil {
			return nil
		}
		n, err := c.PollOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.WithError(err).Warn("sqs receive failed")
			sleep(ctx, 5*time.Second)
			continue
		}
		if n == 0 {
			sleep(ctx, 2*time.Second)
		}
	}
}

// PollOnce receives one batch and returns how many messages it saw.
func (c *Consumer) PollOnce(ctx context.Context) (int, error) {
	recvCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	resp, err := c.client.ReceiveMessage(recvCtx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(c.queueURL),
		MaxNumberOfMessages: 5,
		WaitTimeSeconds:     20,
		VisibilityTimeout:   120,
	})
	cancel()
	if err != nil {
		return 0, err
	}
	for _, m := range resp.Messages {
		c.handle(ctx, m)
	}
	return len(resp.Messages), nil
}

func (c *Consumer) handle(ctx context.Context, m sqstypes.Message) {
	if m.Body == nil {
		c.delete(ctx, m)
		return
	}
	err := c.Apply(ctx, *m.Body)
	if err != nil && !errors.Is(err, ErrUndecodable) {
		// left on the queue, visible again after the visibility timeout
		return
	}
	c.delete(ctx, m)
}

// ErrUndecodable marks a message that will never apply and should be dropped.
var ErrUndecodable = errors.New("events: undecodable message")

// Apply decodes one queue message body and applies the event it carries.
// The Lambda SQS trigger calls it directly with each record body.
func (c *Consumer) Apply(ctx context.Context, body string) error {
	var msg models.WebhookMessage
	var event stripe.Event
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		log.WithError(err).Error("undecodable webhook message, dropping")
		return fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		log.WithFields(log.Fields{"event_id": msg.EventID, "err": err}).Error("undecodable stripe event, dropping")
		return fmt.Errorf("%w: %v", ErrUndecodable, err)
	}

	applyCtx, cancel := context.WithTimeout(ctx, c.timeout)
	err := c.applier.ApplyWebhookEvent(applyCtx, event)
	cancel()
	if c.observe != nil {
		c.observe(msg.EventType, err)
	}
	if err != nil {
		log.WithFields(log.Fields{"event_id": msg.EventID, "type": msg.EventType, "err": err}).Error("stripe event processing failed")
		return err
	}
	return nil
}

func (c *Consumer) delete(ctx context.Context, m sqstypes.Message) {
	if m.ReceiptHandle == nil {
		return
	}
	_, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: m.ReceiptHandle,
	})
	if err != nil {
		log.WithError(err).Warn("failed to delete SQS message")
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
