package queue

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// MaxDelay is the longest per-message delay SQS accepts.
const MaxDelay = 900 * time.Second

const attrSubjectID = "subject_id"

// SQSConfig describes the continuation queue. Zero durations use the SQS maximums
// for long polling (20s) and a 20 minute visibility timeout, longer than a full pass.
type SQSConfig struct {
	Region     string
	QueueURL   string
	Visibility time.Duration
	WaitTime   time.Duration
	BatchSize  int32
}

// Delivery is one received message.
type Delivery struct {
	ID           string
	Body         string
	Receipt      string
	ReceiveCount int
}

type sqsAPI interface {
	SendMessage(context.Context, *sqs.SendMessageInput, ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(context.Context, *sqs.ReceiveMessageInput, ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(context.Context, *sqs.DeleteMessageInput, ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// SQS sends, receives and acknowledges continuations on one queue.
type SQS struct {
	api        sqsAPI
	url        string
	visibility int32
	wait       int32
	batch      int32
}

// NewSQS loads the default AWS credential chain for cfg.Region.
func NewSQS(ctx context.Context, cfg SQSConfig) (*SQS, error) {
	if strings.TrimSpace(cfg.QueueURL) == "" {
		return nil, errors.New("SQS_QUEUE_URL is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return newSQS(sqs.NewFromConfig(awsCfg), cfg), nil
}

func newSQS(api sqsAPI, cfg SQSConfig) *SQS {
	q := &SQS{
		api:        api,
		url:        strings.TrimSpace(cfg.QueueURL),
		visibility: int32(cfg.Visibility / time.Second),
		wait:       int32(cfg.WaitTime / time.Second),
		batch:      cfg.BatchSize,
	}
	if q.visibility <= 0 {
		q.visibility = 1200
	}
	if q.wait <= 0 || q.wait > 20 {
		q.wait = 20
	}
	if q.batch <= 0 || q.batch > 10 {
		q.batch = 10
	}
	return q
}

// Send enqueues msg to become visible after delay, rounded up to whole seconds.
func (q *SQS) Send(ctx context.Context, msg Message, delay time.Duration) error {
	payload, err := EncodeMessage(msg)
	if err != nil {
		return fmt.Errorf("encode continuation: %w", err)
	}
	_, err = q.api.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:     aws.String(q.url),
		MessageBody:  aws.String(string(payload)),
		DelaySeconds: DelaySeconds(delay),
		MessageAttributes: map[string]types.MessageAttributeValue{
			attrSubjectID: {DataType: aws.String("String"), StringValue: aws.String(msg.SubjectID)},
		},
	})
	if err != nil {
		return fmt.Errorf("sqs send: %w", err)
	}
	return nil
}

// Receive long-polls for up to one batch. An empty batch is not an error.
func (q *SQS) Receive(ctx context.Context) ([]Delivery, error) {
	out, err := q.api.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.url),
		MaxNumberOfMessages: q.batch,
		WaitTimeSeconds:     q.wait,
		VisibilityTimeout:   q.visibility,
		MessageSystemAttributeNames: []types.MessageSystemAttributeName{
			types.MessageSystemAttributeNameApproximateReceiveCount,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sqs receive: %w", err)
	}
	batch := make([]Delivery, 0, len(out.Messages))
	for _, m := range out.Messages {
		count, _ := strconv.Atoi(m.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)])
		batch = append(batch, Delivery{
			ID:           aws.ToString(m.MessageId),
			Body:         aws.ToString(m.Body),
			Receipt:      aws.ToString(m.ReceiptHandle),
			ReceiveCount: count,
		})
	}
	return batch, nil
}

// Ack deletes a delivery so it is not redelivered.
func (q *SQS) Ack(ctx context.Context, d Delivery) error {
	if d.Receipt == "" {
		return fmt.Errorf("sqs ack %s: missing receipt handle", d.ID)
	}
	if _, err := q.api.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.url),
		ReceiptHandle: aws.String(d.Receipt),
	}); err != nil {
		return fmt.Errorf("sqs ack %s: %w", d.ID, err)
	}
	return nil
}

// DelaySeconds converts a delay to the whole seconds SQS accepts, clamped to [0, 900].
func DelaySeconds(delay time.Duration) int32 {
	if delay <= 0 {
		return 0
	}
	return int32(math.Ceil(min(delay, MaxDelay).Seconds()))
}

var _ Client = (*SQS)(nil)
