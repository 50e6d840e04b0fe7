package pubsub

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// SNSClient is the subset of the SNS API the publisher uses.
type SNSClient interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type SNSPublisher struct {
	Client SNSClient
	config map[string]string
}

func GetSNSPublisher(config map[string]string) (*SNSPublisher, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(config["region"])}
	if config["access_key"] != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(config["access_key"], config["secret_key"], ""),
		))
	}
	cfg, err := awsconfig.LoadDefaultConfig(context.TODO(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create SNS publisher: %w", err)
	}

	client := sns.NewFromConfig(cfg, func(o *sns.Options) {
		if config["endpoint"] != "" {
			o.BaseEndpoint = aws.String(config["endpoint"])
		}
	})
	return &SNSPublisher{Client: client, config: config}, nil
}

// Publish sends message to the topic ARN. params may set groupId and dedupId for FIFO
// topics and filterKey/filterValue as a message attribute for subscription filters.
func (s *SNSPublisher) Publish(ctx context.Context, topic string, message string, params map[string]any) error {
	publishInput := sns.PublishInput{TopicArn: aws.String(topic), Message: aws.String(message)}

	groupId, _ := params["groupId"].(string)
	dedupId, _ := params["dedupId"].(string)
	filterKey, _ := params["filterKey"].(string)
	filterValue, _ := params["filterValue"].(string)

	if groupId != "" {
		publishInput.MessageGroupId = aws.String(groupId)
	}
	if dedupId != "" {
		publishInput.MessageDeduplicationId = aws.String(dedupId)
	}
	if filterKey != "" && filterValue != "" {
		publishInput.MessageAttributes = map[string]types.MessageAttributeValue{
			filterKey: {DataType: aws.String("String"), StringValue: aws.String(filterValue)},
		}
	}

	if _, err := s.Client.Publish(ctx, &publishInput); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}
