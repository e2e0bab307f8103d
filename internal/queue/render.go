package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/OFFIS-RIT/schemagraph/internal/storage"
	"github.com/OFFIS-RIT/schemagraph/pkg/graph"
	"github.com/OFFIS-RIT/schemagraph/pkg/logger"
	"github.com/OFFIS-RIT/schemagraph/pkg/metadata"
	"github.com/OFFIS-RIT/schemagraph/pkg/render"
	"github.com/OFFIS-RIT/schemagraph/pkg/render/graphviz"
	"github.com/OFFIS-RIT/schemagraph/pkg/schema"

	"github.com/rabbitmq/amqp091-go"
)

// RenderPrefix is the object key prefix for diagrams rendered by the worker.
const RenderPrefix = "renders"

const maxRetries = 10

// ErrInvalidMessage is returned for payloads that can never be processed.
var ErrInvalidMessage = errors.New("invalid render message")

// RenderJobMsg asks the worker to render the schema of one site.
type RenderJobMsg struct {
	ID     string `json:"id"`
	SiteID string `json:"site_id"`
	Token  string `json:"token"`
	Format string `json:"format,omitempty"`
}

// RendererFactory returns a renderer for a format name; empty selects the
// configured default.
type RendererFactory func(format string) (render.GraphRenderer, error)

// RenderDeps is what ProcessRenderMessage needs to run a job.
type RenderDeps struct {
	Client      *graph.GraphClient
	Source      metadata.SchemaSource
	Store       storage.ImageStore
	NewRenderer RendererFactory
}

// RenderKey is the object key a finished job is stored under.
func RenderKey(id, ext string) string {
	return storage.ImageKey(RenderPrefix, id, ext)
}

// ProcessRenderMessage runs the pipeline for one job and uploads the result.
func ProcessRenderMessage(ctx context.Context, deps RenderDeps, msg []byte) error {
	var data RenderJobMsg
	if err := json.Unmarshal(msg, &data); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	if data.ID == "" || data.SiteID == "" || data.Token == "" {
		return fmt.Errorf("%w: id, site_id and token are required", ErrInvalidMessage)
	}

	renderer, err := deps.NewRenderer(data.Format)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}

	logger.Info("[Queue] Rendering schema", "id", data.ID, "site", data.SiteID, "format", renderer.Extension())

	creds := metadata.Credentials{Token: data.Token, SiteID: data.SiteID}
	image, result, err := deps.Client.RenderGraph(ctx, deps.Source, renderer, creds)
	if err != nil {
		return err
	}
	for _, d := range result.Diagnostics {
		logger.Debug("[Queue] Diagnostic", "id", data.ID, "kind", d.Kind, "collection", d.Collection, "message", d.Message)
	}

	key := RenderKey(data.ID, renderer.Extension())
	if err := deps.Store.PutImage(ctx, key, renderer.ContentType(), image); err != nil {
		return err
	}

	logger.Info("[Queue] Stored render", "id", data.ID, "key", key, "bytes", len(image))
	return nil
}

// IsPermanent reports whether retrying err cannot succeed.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrInvalidMessage) ||
		errors.Is(err, schema.ErrSourceUnavailable) ||
		errors.Is(err, schema.ErrDuplicateCollectionName) ||
		errors.Is(err, graphviz.ErrBinaryNotFound)
}

func retryCount(headers amqp091.Table) int {
	switch v := headers["x-retries"].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return 0
}

// HandleProcessingError sends a failed delivery to the retry queue, or to the
// dead-letter queue once it has been retried maxRetries times or the error
// is permanent. The delivery is acked once republished and requeued if
// republishing fails.
func HandleProcessingError(pub Publisher, msg amqp091.Delivery, queueName string, processingErr error) {
	retries := retryCount(msg.Headers)

	if retries >= maxRetries || IsPermanent(processingErr) {
		dlqName := queueName + dlqSuffix
		logger.Info("Sending message to DLQ", "dlq", dlqName, "retries", retries)
		if err := pub.Publish(dlqName, msg.Body, msg.Headers); err != nil {
			logger.Error("Failed to publish to DLQ", "dlq", dlqName, "err", err)
			_ = msg.Nack(false, true)
			return
		}
		_ = msg.Ack(false)
		return
	}

	retryName := queueName + retrySuffix
	headers := amqp091.Table{}
	for k, v := range msg.Headers {
		headers[k] = v
	}
	headers["x-retries"] = int32(retries + 1)

	if err := pub.Publish(retryName, msg.Body, headers); err != nil {
		logger.Error("Failed to publish to retry queue", "retry_queue", retryName, "err", err)
		_ = msg.Nack(false, true)
		return
	}
	_ = msg.Ack(false)
}
