package shopsync

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/pubsub"
	"bitbucket.org/klosetlabs/kloset_backend/config"
	"github.com/gin-gonic/gin"
)

// RunWorker consumes the order-event subscription and executes every
// shopsync.* event. Non-shopsync events are acked and ignored.
func RunWorker(ctx context.Context) error {
	subName := strings.TrimSpace(os.Getenv("SHOPSYNC_SUBSCRIPTION"))
	if subName == "" {
		subName = "shopsync-worker"
	}

	client, err := config.GetClient(ctx)
	if err != nil {
		return err
	}
	sub := client.Subscription(subName)

	return sub.Receive(ctx, func(ctx context.Context, m *pubsub.Message) {
		var msg config.PubSubMessage
		if err := json.Unmarshal(m.Data, &msg); err != nil {
			m.Ack()
			return
		}
		if err := ProcessEvent(ctx, msg); err != nil {
			config.LogError(config.GetLogger(), "shopsync", "RunWorker", "event processing failed", msg.ID, err)
			m.Nack()
			return
		}
		m.Ack()
	})
}

// PubSubPushHandler accepts push-style delivery of the same events. Always
// answers 204 so malformed pushes are not redelivered forever.
func PubSubPushHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !envBoolDefault("ENABLE_SHOPSYNC_PUSH_ENDPOINT", true) {
			c.Status(204)
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(204)
			return
		}

		var envelope PubSubPushEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			c.Status(204)
			return
		}

		var msg config.PubSubMessage
		if err := json.Unmarshal(envelope.Message.Data, &msg); err != nil {
			c.Status(204)
			return
		}

		_ = ProcessEvent(c.Request.Context(), msg)
		c.Status(204)
	}
}

func envBoolDefault(key string, def bool) bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch val {
	case "true", "1", "yes", "y", "on":
		return true
	case "false", "0", "no", "n", "off":
		return false
	default:
		return def
	}
}
