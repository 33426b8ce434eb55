package ledger

import (
	"context"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// fakeSQS keeps messages in memory behind the sqsAPI surface.
type fakeSQS struct {
	messages []types.Message
	seq      int
}

func (f *fakeSQS) SendMessage(_ context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.seq++
	f.messages = append(f.messages, types.Message{
		MessageId:     aws.String(fmt.Sprintf("msg-%d", f.seq)),
		Body:          params.MessageBody,
		ReceiptHandle: aws.String(fmt.Sprintf("handle-%d", f.seq)),
	})
	return &sqs.SendMessageOutput{}, nil
}

func (f *fakeSQS) ReceiveMessage(_ context.Context, params *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	n := int(params.MaxNumberOfMessages)
	if n > len(f.messages) {
		n = len(f.messages)
	}
	return &sqs.ReceiveMessageOutput{Messages: f.messages[:n]}, nil
}

func (f *fakeSQS) DeleteMessage(_ context.Context, params *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	for i, msg := range f.messages {
		if aws.ToString(msg.ReceiptHandle) == aws.ToString(params.ReceiptHandle) {
			f.messages = append(f.messages[:i], f.messages[i+1:]...)
			break
		}
	}
	return &sqs.DeleteMessageOutput{}, nil
}

func TestSQSSpoolRoundTrip(t *testing.T) {
	client := &fakeSQS{}
	spool := NewSQSSpool(client, "http://localhost:4566/000000000000/ledger-spool")

	want := sampleRow()
	if err := spool.Enqueue(context.Background(), want); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	rows, err := spool.Dequeue(context.Background(), 10)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("dequeued %d rows, want 1", len(rows))
	}
	got := rows[0].Row
	if got.Reference != want.Reference || got.Action != want.Action || !got.Start.Equal(want.Start) {
		t.Errorf("round trip mismatch: %+v", got)
	}

	if err := spool.Ack(context.Background(), rows[0].Receipt); err != nil {
		t.Fatalf("Ack: %v", err)
	}
	if len(client.messages) != 0 {
		t.Errorf("message not deleted after ack")
	}
}
