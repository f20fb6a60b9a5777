// Package sqs binds the worker to an SQS-style queue. Redelivery is
// driven by the broker's visibility timeout: rejected messages get their
// visibility changed to the computed backoff delay, and the broker's
// ApproximateReceiveCount is the authoritative retry counter.
package sqs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	queueworker "github.com/infigaming-com/go-queueworker"
	"github.com/infigaming-com/go-queueworker/internal/backoff"
)

// maxWaitSeconds is the longest long-poll wait SQS accepts.
const maxWaitSeconds = 20

// API is the slice of the SQS client the adapter uses.
type API interface {
	GetQueueUrl(ctx context.Context, in *awssqs.GetQueueUrlInput, opts ...func(*awssqs.Options)) (*awssqs.GetQueueUrlOutput, error)
	ReceiveMessage(ctx context.Context, in *awssqs.ReceiveMessageInput, opts ...func(*awssqs.Options)) (*awssqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *awssqs.DeleteMessageInput, opts ...func(*awssqs.Options)) (*awssqs.DeleteMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, in *awssqs.ChangeMessageVisibilityInput, opts ...func(*awssqs.Options)) (*awssqs.ChangeMessageVisibilityOutput, error)
}

// Config holds the client settings. Either a pre-built Client or a Region
// is required; with a Region the adapter builds its own client, using
// static credentials when provided and the default chain otherwise.
type Config struct {
	Client          API
	Region          string
	Endpoint        string // optional override, e.g. for localstack
	AccessKeyID     string
	SecretAccessKey string
}

// Adapter implements queueworker.Adapter for SQS-style queues. The client
// is safe for concurrent use, so all consumers of a process share it.
type Adapter struct {
	cfg    Config
	queue  queueworker.Queue
	opts   queueworker.Options
	policy backoff.Policy

	mu       sync.Mutex
	client   API
	queueURL string
	stopped  bool
}

// envelope is the outer JSON wrapper SNS-style publishers put around the
// serialized payload.
type envelope struct {
	Message string `json:"Message"`
}

func New(cfg Config) *Adapter {
	return &Adapter{cfg: cfg, client: cfg.Client}
}

func (a *Adapter) Configure(queue queueworker.Queue, opts queueworker.Options) error {
	if a.cfg.Client == nil && a.cfg.Region == "" {
		return errors.New("sqs: client or region required")
	}
	a.queue = queue
	a.opts = opts
	a.policy = backoff.Policy{
		Enabled:  queue.AllowRetryBackoff,
		Delay:    queue.RetryDelay,
		MaxDelay: queue.MaxRetryDelay,
	}
	a.mu.Lock()
	a.stopped = false
	a.queueURL = ""
	a.mu.Unlock()
	return nil
}

func (a *Adapter) PreProcess(ctx context.Context, _ *queueworker.Runtime) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.client != nil {
		return nil
	}
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(a.cfg.Region)}
	if a.cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(a.cfg.AccessKeyID, a.cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return fmt.Errorf("sqs: load aws config: %w", err)
	}
	a.client = awssqs.NewFromConfig(awsCfg, func(o *awssqs.Options) {
		if a.cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(a.cfg.Endpoint)
		}
	})
	return nil
}

func (a *Adapter) FetchAndProcess(ctx context.Context, rt *queueworker.Runtime) (bool, error) {
	a.mu.Lock()
	client, stopped := a.client, a.stopped
	a.mu.Unlock()
	if stopped || client == nil {
		return false, nil
	}

	url, err := a.resolveQueueURL(ctx, client)
	if err != nil {
		return false, err
	}

	out, err := client.ReceiveMessage(ctx, &awssqs.ReceiveMessageInput{
		QueueUrl:            aws.String(url),
		MaxNumberOfMessages: 1,
		WaitTimeSeconds:     waitSeconds(a.opts),
		MessageSystemAttributeNames: []types.MessageSystemAttributeName{
			types.MessageSystemAttributeNameApproximateReceiveCount,
		},
	})
	if err != nil {
		return false, fmt.Errorf("sqs: receive %q: %w", a.queue.Name, err)
	}
	if len(out.Messages) == 0 {
		return false, nil
	}

	m := out.Messages[0]
	var env envelope
	if err := json.Unmarshal([]byte(aws.ToString(m.Body)), &env); err != nil {
		// Left invisible until the current visibility timeout lapses.
		return false, fmt.Errorf("sqs: decode envelope: %w", err)
	}
	raw := []byte(env.Message)
	msg, err := rt.Serializer().Unmarshal(raw)
	if err != nil {
		return false, fmt.Errorf("sqs: decode message: %w", err)
	}
	msg.RetryAttempts = receiveAttempts(m)

	if v := rt.Verifier(); v != nil {
		if err := v.Verify(msg, raw); err != nil {
			rt.ReportError(fmt.Errorf("sqs: verify %q: %w", msg.ID, err), msg)
			return true, a.reject(ctx, rt, client, url, m, msg, false)
		}
	}

	res := rt.Dispatch(ctx, msg)
	switch res.Outcome {
	case queueworker.OutcomeAck, queueworker.OutcomeDuplicate:
		return true, a.delete(ctx, client, url, m, msg)
	default:
		return true, a.reject(ctx, rt, client, url, m, msg, res.Aborted)
	}
}

func (a *Adapter) reject(ctx context.Context, rt *queueworker.Runtime, client API, url string, m types.Message, msg *queueworker.Message, aborted bool) error {
	switch rt.DecideRetry(msg.RetryAttempts) {
	case queueworker.RetryExceeded:
		if err := a.delete(ctx, client, url, m, msg); err != nil {
			return err
		}
		rt.ReportRetryExceeded(ctx, msg)
	case queueworker.RetryForbidden:
		return a.delete(ctx, client, url, m, msg)
	case queueworker.RetrySchedule:
		delay := backoff.Delay(msg.RetryAttempts, a.policy)
		_, err := client.ChangeMessageVisibility(ctx, &awssqs.ChangeMessageVisibilityInput{
			QueueUrl:          aws.String(url),
			ReceiptHandle:     m.ReceiptHandle,
			VisibilityTimeout: backoff.VisibilitySeconds(delay),
		})
		if err != nil {
			return fmt.Errorf("sqs: change visibility %q: %w", msg.ID, err)
		}
		rt.ReportRetry(ctx, msg, aborted)
	}
	return nil
}

func (a *Adapter) delete(ctx context.Context, client API, url string, m types.Message, msg *queueworker.Message) error {
	_, err := client.DeleteMessage(ctx, &awssqs.DeleteMessageInput{
		QueueUrl:      aws.String(url),
		ReceiptHandle: m.ReceiptHandle,
	})
	if err != nil {
		return fmt.Errorf("sqs: delete %q: %w", msg.ID, err)
	}
	return nil
}

func (a *Adapter) resolveQueueURL(ctx context.Context, client API) (string, error) {
	a.mu.Lock()
	url := a.queueURL
	a.mu.Unlock()
	if url != "" {
		return url, nil
	}
	out, err := client.GetQueueUrl(ctx, &awssqs.GetQueueUrlInput{QueueName: aws.String(a.queue.Name)})
	if err != nil {
		return "", fmt.Errorf("sqs: resolve queue url %q: %w", a.queue.Name, err)
	}
	url = aws.ToString(out.QueueUrl)
	a.mu.Lock()
	a.queueURL = url
	a.mu.Unlock()
	return url, nil
}

// receiveAttempts derives the retry count from ApproximateReceiveCount,
// which is 1-indexed on the first delivery.
func receiveAttempts(m types.Message) int {
	raw := m.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)]
	count, err := strconv.Atoi(raw)
	if err != nil || count < 1 {
		return 0
	}
	return count - 1
}

func waitSeconds(opts queueworker.Options) int32 {
	secs := int32(opts.PollWait.Seconds())
	if secs < 0 {
		return 0
	}
	if secs > maxWaitSeconds {
		return maxWaitSeconds
	}
	return secs
}

func (a *Adapter) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped = true
	return nil
}
