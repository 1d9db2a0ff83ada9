package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/levenlabs/go-lflag"
	"github.com/reservetender/reservetender/pkg/types"
)

// snsAPI is the subset of the SNS client the notifier uses.
type snsAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
	Subscribe(ctx context.Context, params *sns.SubscribeInput, optFns ...func(*sns.Options)) (*sns.SubscribeOutput, error)
	ListSubscriptionsByTopic(ctx context.Context, params *sns.ListSubscriptionsByTopicInput, optFns ...func(*sns.Options)) (*sns.ListSubscriptionsByTopicOutput, error)
}

// SNSNotifier implements Notifier on an AWS SNS topic.
type SNSNotifier struct {
	client   snsAPI
	topicARN string
	region   string
}

// configuredSNS sets up the SNS provider.
// It registers flags for configuration.
func configuredSNS() *SNSNotifier {
	topicARN := lflag.String("sns-topic-arn", "", "ARN of the SNS topic to publish alerts to")
	region := lflag.String("sns-region", "", "AWS region for SNS, defaults to the environment's region")

	n := &SNSNotifier{}

	lflag.Do(func() {
		n.topicARN = *topicARN
		n.region = *region
	})

	return n
}

// Validate checks if the provider is properly configured.
func (n *SNSNotifier) Validate() error {
	if n.topicARN == "" {
		return errors.New("sns-topic-arn is required")
	}
	return nil
}

// Init initializes the SNS client.
// This must be called before using the provider methods.
func (n *SNSNotifier) Init(ctx context.Context) error {
	var opts []func(*awsconfig.LoadOptions) error
	if n.region != "" {
		opts = append(opts, awsconfig.WithRegion(n.region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to load aws config: %w", err)
	}
	n.client = sns.NewFromConfig(cfg)
	return nil
}

// Notify publishes an alert to the topic.
func (n *SNSNotifier) Notify(ctx context.Context, subject, message string) error {
	_, err := n.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.topicARN),
		Subject:  aws.String(subject),
		Message:  aws.String(message),
	})
	if err != nil {
		return &types.UpstreamError{Op: "sns publish", Err: err}
	}
	return nil
}

// Subscribe registers an email endpoint on the topic. SNS sends the
// confirmation mail; until the recipient confirms, the subscription is
// pending and Subscriptions reports its ARN as such.
func (n *SNSNotifier) Subscribe(ctx context.Context, email string) error {
	if email == "" {
		return &types.ValidationError{Field: "email", Msg: "must not be empty"}
	}
	_, err := n.client.Subscribe(ctx, &sns.SubscribeInput{
		TopicArn: aws.String(n.topicARN),
		Protocol: aws.String("email"),
		Endpoint: aws.String(email),
	})
	if err != nil {
		return &types.UpstreamError{Op: "sns subscribe", Err: err}
	}
	return nil
}

// Subscriptions lists the topic's subscriptions, following pagination.
func (n *SNSNotifier) Subscriptions(ctx context.Context) ([]Subscription, error) {
	var subs []Subscription
	var nextToken *string
	for {
		out, err := n.client.ListSubscriptionsByTopic(ctx, &sns.ListSubscriptionsByTopicInput{
			TopicArn:  aws.String(n.topicARN),
			NextToken: nextToken,
		})
		if err != nil {
			return nil, &types.UpstreamError{Op: "sns list subscriptions", Err: err}
		}
		for _, s := range out.Subscriptions {
			subs = append(subs, Subscription{
				Endpoint: aws.ToString(s.Endpoint),
				ARN:      aws.ToString(s.SubscriptionArn),
			})
		}
		if out.NextToken == nil {
			break
		}
		nextToken = out.NextToken
	}
	return subs, nil
}
