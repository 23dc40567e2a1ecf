package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

// TaskTypeDeliver is the asynq task type for queued notification delivery.
const TaskTypeDeliver = "notification:deliver"

const queueName = "notifications"

type deliverPayload struct {
	Type       Type              `json:"type"`
	Recipient  string            `json:"recipient"`
	TemplateID string            `json:"template_id"`
	Data       map[string]string `json:"data,omitempty"`
}

// NewDeliverTask builds the asynq task for a templated notification.
func NewDeliverTask(typ Type, recipient, templateID string, data map[string]string) (*asynq.Task, error) {
	payload, err := json.Marshal(deliverPayload{
		Type:       typ,
		Recipient:  recipient,
		TemplateID: templateID,
		Data:       data,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal deliver payload: %w", err)
	}
	return asynq.NewTask(TaskTypeDeliver, payload, asynq.Queue(queueName), asynq.MaxRetry(3)), nil
}

// Enqueuer pushes notification tasks onto the queue. A nil Enqueuer, or one
// constructed without a Redis address, silently drops everything, so callers
// never have to guard their notify calls.
type Enqueuer struct {
	client *asynq.Client
	logger zerolog.Logger
}

// NewEnqueuer connects to Redis at addr. An empty addr yields a disabled
// enqueuer.
func NewEnqueuer(addr string, logger zerolog.Logger) *Enqueuer {
	e := &Enqueuer{logger: logger}
	if addr != "" {
		e.client = asynq.NewClient(asynq.RedisClientOpt{Addr: addr})
	}
	return e
}

// Enabled reports whether tasks will actually be queued.
func (e *Enqueuer) Enabled() bool {
	return e != nil && e.client != nil
}

// EnqueueFromTemplate queues a templated notification for async delivery.
// Failures are logged and swallowed; notifying must never fail the request
// that triggered it.
func (e *Enqueuer) EnqueueFromTemplate(ctx context.Context, typ Type, recipient, templateID string, data map[string]string) {
	if !e.Enabled() {
		return
	}

	task, err := NewDeliverTask(typ, recipient, templateID, data)
	if err != nil {
		e.logger.Error().Err(err).Str("template_id", templateID).Msg("failed to build notification task")
		return
	}

	if _, err := e.client.EnqueueContext(ctx, task); err != nil {
		e.logger.Error().Err(err).
			Str("template_id", templateID).
			Str("recipient", recipient).
			Msg("failed to enqueue notification")
	}
}

// Close releases the underlying Redis connection.
func (e *Enqueuer) Close() error {
	if !e.Enabled() {
		return nil
	}
	return e.client.Close()
}

// Worker consumes queued notification tasks and delivers them through a
// Manager. Run blocks until Shutdown is called.
type Worker struct {
	server *asynq.Server
	mgr    *Manager
	logger zerolog.Logger
}

// NewWorker builds a worker bound to Redis at addr.
func NewWorker(addr string, mgr *Manager, logger zerolog.Logger) *Worker {
	server := asynq.NewServer(
		asynq.RedisClientOpt{Addr: addr},
		asynq.Config{
			Concurrency: 5,
			Queues: map[string]int{
				queueName: 5,
			},
		},
	)
	return &Worker{server: server, mgr: mgr, logger: logger}
}

// Run starts consuming tasks. It blocks until the server is shut down.
func (w *Worker) Run() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypeDeliver, w.handleDeliver)
	return w.server.Run(mux)
}

// Shutdown stops the worker gracefully.
func (w *Worker) Shutdown() {
	if w.server != nil {
		w.server.Shutdown()
	}
}

func (w *Worker) handleDeliver(ctx context.Context, task *asynq.Task) error {
	var p deliverPayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		// A payload that does not parse will never parse; retrying is
		// pointless.
		return fmt.Errorf("unmarshal deliver payload: %v: %w", err, asynq.SkipRetry)
	}

	n, err := w.mgr.SendFromTemplate(ctx, p.Type, p.TemplateID, p.Data, p.Recipient)
	if err != nil {
		w.logger.Error().Err(err).
			Str("template_id", p.TemplateID).
			Str("recipient", p.Recipient).
			Msg("notification delivery failed")
		return err
	}

	w.logger.Info().
		Str("notification_id", n.ID).
		Str("template_id", p.TemplateID).
		Str("recipient", p.Recipient).
		Msg("notification delivered from queue")
	return nil
}
