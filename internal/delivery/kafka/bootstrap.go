package kafka

import (
	"context"
	"fmt"
	"strings"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/promoplaza/redemption-service/internal/config"
)

// EnsureTopics creates every request, retry, DLQ and reply topic this
// instance needs. Already existing topics are not an error.
func EnsureTopics(ctx context.Context, client *kgo.Client, cfg *config.Config) error {
	adm := kadm.NewClient(client)

	topics := []string{
		TopicRedeemRequest,
		TopicIssueRequest,
		TopicGetRequest,
		TopicRedeemRetry,
		TopicIssueRetry,
		TopicGetRetry,
		TopicRedeemRequest + TopicDLQSuffix,
		TopicIssueRequest + TopicDLQSuffix,
		TopicGetRequest + TopicDLQSuffix,
		fmt.Sprintf("%s%s", TopicReplyPrefix, cfg.KafkaInstanceID),
	}

	for _, topic := range topics {
		p := cfg.KafkaTopicPartitions
		if strings.HasSuffix(topic, TopicRetrySuffix) || strings.HasSuffix(topic, TopicDLQSuffix) {
			p = cfg.KafkaRetryPartitions
		}

		resp, err := adm.CreateTopics(ctx, int32(p), cfg.KafkaReplicationFactor, nil, topic)
		if err != nil {
			return fmt.Errorf("failed to create topic %s: %w", topic, err)
		}
		for _, detail := range resp {
			if detail.Err != nil && !strings.Contains(detail.Err.Error(), "already exists") {
				return fmt.Errorf("failed to create topic %s: %w", detail.Topic, detail.Err)
			}
		}
	}

	return nil
}
