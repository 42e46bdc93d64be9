package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bulkmail/internal/domain"
)

type fakeSQS struct {
	inputs []*sqs.SendMessageInput
	err    error
}

func (f *fakeSQS) SendMessage(ctx context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	return &sqs.SendMessageOutput{}, nil
}

func completed() domain.CampaignCompleted {
	return domain.CampaignCompleted{
		RunID:        "run_1",
		CountdownDay: 7,
		LaunchDate:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Total:        5,
		Sent:         2,
		Skipped:      1,
		Failed:       2,
	}
}

func TestPublishStandardQueue(t *testing.T) {
	f := &fakeSQS{}
	p := &Publisher{SQS: f, QueueURL: "http://localhost:4566/000000000000/campaign-events"}

	require.NoError(t, p.PublishCampaignCompleted(context.Background(), completed()))
	require.Len(t, f.inputs, 1)
	in := f.inputs[0]
	assert.Nil(t, in.MessageGroupId)
	assert.Equal(t, TypeCampaignCompleted, *in.MessageAttributes["type"].StringValue)

	var env struct {
		Type string                   `json:"type"`
		Data domain.CampaignCompleted `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(*in.MessageBody), &env))
	assert.Equal(t, TypeCampaignCompleted, env.Type)
	assert.Equal(t, 2, env.Data.Sent)
	assert.Equal(t, "run_1", env.Data.RunID)
}

func TestPublishFIFOQueue(t *testing.T) {
	f := &fakeSQS{}
	p := &Publisher{SQS: f, QueueURL: "http://localhost:4566/000000000000/campaign-events.fifo"}

	require.NoError(t, p.PublishCampaignCompleted(context.Background(), completed()))
	in := f.inputs[0]
	require.NotNil(t, in.MessageGroupId)
	assert.Equal(t, "campaign:2025-01-01", *in.MessageGroupId)
	assert.Equal(t, "run_1", *in.MessageDeduplicationId)
}

func TestPublishError(t *testing.T) {
	p := &Publisher{SQS: &fakeSQS{err: errors.New("queue down")}, QueueURL: "q"}
	assert.EqualError(t, p.PublishCampaignCompleted(context.Background(), completed()), "queue down")
}
