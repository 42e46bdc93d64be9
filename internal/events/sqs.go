// Package events publishes campaign lifecycle events to SQS.
package events

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"bulkmail/internal/domain"
)

const TypeCampaignCompleted = "campaign.completed"

// SendAPI is the part of *sqs.Client the publisher uses.
type SendAPI interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

type Publisher struct {
	SQS      SendAPI
	QueueURL string
}

type envelope struct {
	Type string                   `json:"type"`
	Data domain.CampaignCompleted `json:"data"`
}

func (p *Publisher) PublishCampaignCompleted(ctx context.Context, ev domain.CampaignCompleted) error {
	body, err := json.Marshal(envelope{Type: TypeCampaignCompleted, Data: ev})
	if err != nil {
		return err
	}

	in := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.QueueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"type": {DataType: aws.String("String"), StringValue: aws.String(TypeCampaignCompleted)},
		},
	}
	if strings.HasSuffix(p.QueueURL, ".fifo") {
		// ordered per launch date, deduplicated per run
		in.MessageGroupId = aws.String(groupID(ev))
		in.MessageDeduplicationId = aws.String(ev.RunID)
	}
	_, err = p.SQS.SendMessage(ctx, in)
	return err
}

func groupID(ev domain.CampaignCompleted) string {
	return "campaign:" + ev.LaunchDate.UTC().Format("2006-01-02")
}
