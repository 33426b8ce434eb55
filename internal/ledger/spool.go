package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/Anushkasethi/pharmacy-booking/internal/booking"
)

// Spool holds ledger rows that could not reach the primary ledger until the
// reconciler replays them. Rows carry everything needed to rebuild the audit
// record, so a spooled row loses no information.
type Spool interface {
	Enqueue(ctx context.Context, row booking.LedgerRow) error
	Dequeue(ctx context.Context, max int) ([]SpooledRow, error)
	Ack(ctx context.Context, receipt string) error
}

// SpooledRow is one parked ledger row plus the handle needed to ack it.
type SpooledRow struct {
	Row     booking.LedgerRow
	Receipt string
}

// sqsAPI is the slice of the SQS client the spool uses.
type sqsAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// SQSSpool parks rows on an AWS/LocalStack SQS queue.
type SQSSpool struct {
	client   sqsAPI
	queueURL string
}

var _ Spool = (*SQSSpool)(nil)

// NewSQSSpool creates a spool over the provided SQS client.
func NewSQSSpool(client sqsAPI, queueURL string) *SQSSpool {
	if client == nil {
		panic("ledger: SQS client cannot be nil")
	}
	if queueURL == "" {
		panic("ledger: SQS queueURL cannot be empty")
	}
	return &SQSSpool{
		client:   client,
		queueURL: queueURL,
	}
}

func (s *SQSSpool) Enqueue(ctx context.Context, row booking.LedgerRow) error {
	body, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("ledger: marshal spooled row: %w", err)
	}
	_, err = s.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(s.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("ledger: failed to spool row: %w", err)
	}
	return nil
}

func (s *SQSSpool) Dequeue(ctx context.Context, max int) ([]SpooledRow, error) {
	output, err := s.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(s.queueURL),
		MaxNumberOfMessages: int32(max),
		WaitTimeSeconds:     1,
	})
	if err != nil {
		return nil, fmt.Errorf("ledger: failed to receive spooled rows: %w", err)
	}

	rows := make([]SpooledRow, 0, len(output.Messages))
	for _, msg := range output.Messages {
		var row booking.LedgerRow
		if err := json.Unmarshal([]byte(aws.ToString(msg.Body)), &row); err != nil {
			return nil, fmt.Errorf("ledger: unmarshal spooled row: %w", err)
		}
		rows = append(rows, SpooledRow{
			Row:     row,
			Receipt: aws.ToString(msg.ReceiptHandle),
		})
	}
	return rows, nil
}

func (s *SQSSpool) Ack(ctx context.Context, receipt string) error {
	if receipt == "" {
		return nil
	}
	_, err := s.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(s.queueURL),
		ReceiptHandle: aws.String(receipt),
	})
	if err != nil {
		return fmt.Errorf("ledger: failed to ack spooled row: %w", err)
	}
	return nil
}
