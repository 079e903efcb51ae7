package rediskey

import "fmt"

const (
	WebhookEventPrefix = "webhook:event"
	SequencePrefix     = "seq"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildWebhookEventKey returns "webhook:event:{eventID}"
func BuildWebhookEventKey(eventID string) string {
	return NamespaceKey(WebhookEventPrefix, eventID)
}

// BuildSequenceKey returns "seq:{prefix}:{period}"
func BuildSequenceKey(prefix, period string) string {
	return NamespaceKey(SequencePrefix, NamespaceKey(prefix, period))
}
