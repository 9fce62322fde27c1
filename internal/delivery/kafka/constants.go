package kafka

import "time"

const (
	TopicRedeemRequest = "redemption.redeem.req"
	TopicIssueRequest  = "redemption.issue.req"
	TopicGetRequest    = "redemption.get.req"
	TopicRedeemRetry   = "redemption.redeem.retry"
	TopicIssueRetry    = "redemption.issue.retry"
	TopicGetRetry      = "redemption.get.retry"
	TopicReplyPrefix   = "redemption.reply."
	TopicRequestSuffix = ".req"
	TopicRetrySuffix   = ".retry"
	TopicDLQSuffix     = ".dlq"

	RequestTimeout = 3 * time.Second

	RetryHeaderNextAt = "x-next-at"
	ErrorHeaderKey    = "x-error"
)
