package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jdiaz1993/quickcalories/app/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"
)

type recordingApplier struct {
	mu   sync.Mutex
	seen []string
	fail map[string]bool
}

func (r *recordingApplier) ApplyWebhookEvent(_ context.Context, ev stripe.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, ev.ID)
	if r.fail[ev.ID] {
		return errors.New("apply failed")
	}
	return nil
}

func (r *recordingApplier) ids() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.seen...)
}

func TestAsyncDispatcherAppliesAll(t *testing.T) {
	applier := &recordingApplier{}
	var mu sync.Mutex
	outcomes := map[string]int{}
	d := NewAsyncDispatcher(applier, 3, 4, time.Second, func(eventType string, err error) {
		mu.Lock()
		outcomes[eventType]++
		mu.Unlock()
	})

	ctx := context.Background()
	for _, id := range []string{"evt_1", "evt_2", "evt_3", "evt_4", "evt_5"} {
		require.NoError(t, d.Dispatch(ctx, stripe.Event{ID: id, Type: "customer.subscription.updated"}))
	}
	require.NoError(t, d.Close(ctx))

	assert.ElementsMatch(t, []string{"evt_1", "evt_2", "evt_3", "evt_4", "evt_5"}, applier.ids())
	assert.Equal(t, 5, outcomes["customer.subscription.updated"])
	assert.ErrorIs(t, d.Dispatch(ctx, stripe.Event{ID: "late"}), ErrClosed)
}

type fakeSQS struct {
	mu      sync.Mutex
	sent    []string
	inbox   []sqstypes.Message
	deleted []string
	recvErr error
}

func (f *fakeSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, aws.ToString(in.MessageBody))
	return &sqs.SendMessageOutput{}, nil
}

func (f *fakeSQS) ReceiveMessage(context.Context, *sqs.ReceiveMessageInput, ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recvErr != nil {
		return nil, f.recvErr
	}
	msgs := f.inbox
	f.inbox = nil
	return &sqs.ReceiveMessageOutput{Messages: msgs}, nil
}

func (f *fakeSQS) DeleteMessage(_ context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, aws.ToString(in.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

func TestSQSRoundTrip(t *testing.T) {
	ctx := context.Background()
	q := &fakeSQS{}
	dispatcher := NewSQSDispatcher(q, "https://sqs.example/queue")

	ev := stripe.Event{
		ID:      "evt_ok",
		Type:    "customer.subscription.deleted",
		Created: 1700000000,
		Data:    &stripe.EventData{Raw: json.RawMessage(`{"id":"sub_1","object":"subscription","status":"canceled"}`)},
	}
	require.NoError(t, dispatcher.Dispatch(ctx, ev))
	require.NoError(t, dispatcher.Dispatch(ctx, stripe.Event{ID: "evt_bad", Type: "customer.subscription.updated"}))
	require.Len(t, q.sent, 2)

	var envelope models.WebhookMessage
	require.NoError(t, json.Unmarshal([]byte(q.sent[0]), &envelope))
	assert.Equal(t, "evt_ok", envelope.EventID)
	assert.Equal(t, "customer.subscription.deleted", envelope.EventType)

	q.inbox = []sqstypes.Message{
		{Body: aws.String(q.sent[0]), ReceiptHandle: aws.String("r-ok")},
		{Body: aws.String(q.sent[1]), ReceiptHandle: aws.String("r-bad")},
		{Body: aws.String("garbage"), ReceiptHandle: aws.String("r-garbage")},
	}
	applier := &recordingApplier{fail: map[string]bool{"evt_bad": true}}
	consumer := NewConsumer(q, "https://sqs.example/queue", applier, time.Second, nil)

	n, err := consumer.PollOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"evt_ok", "evt_bad"}, applier.ids())
	assert.ElementsMatch(t, []string{"r-ok", "r-garbage"}, q.deleted, "failed events stay queued")
}

func TestConsumerRunStopsOnCancel(t *testing.T) {
	q := &fakeSQS{recvErr: errors.New("throttled")}
	consumer := NewConsumer(q, "q", &recordingApplier{}, time.Second, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- consumer.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestConsumerApplyClassifiesFailures(t *testing.T) {
	applier := &recordingApplier{fail: map[string]bool{"evt_bad": true}}
	consumer := NewConsumer(&fakeSQS{}, "q", applier, time.Second, nil)
	ctx := context.Background()

	err := consumer.Apply(ctx, "{not json")
	assert.ErrorIs(t, err, ErrUndecodable)

	body, err := json.Marshal(models.WebhookMessage{EventID: "evt_bad", EventType: "invoice.paid", Payload: json.RawMessage(`{"id":"evt_bad"}`)})
	require.NoError(t, err)
	err = consumer.Apply(ctx, string(body))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUndecodable)
	assert.Equal(t, []string{"evt_bad"}, applier.ids())
}
