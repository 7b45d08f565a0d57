package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"signoff/internal/activity"
	"signoff/internal/config"
	"signoff/internal/domain"
	"signoff/internal/logging"
)

const (
	defaultWebhookInterval = 2 * time.Second
	defaultWebhookTimeout  = 5 * time.Second
	defaultWebhookBatch    = 100
)

type webhookDispatcher struct {
	activity activity.Log
	hooks    []config.WebhookConfig
	breakers []*gobreaker.CircuitBreaker
	client   *http.Client
	log      logrus.FieldLogger
	mu       sync.Mutex
	cursors  map[int]int64
}

// RunWebhooks posts new activity entries to the configured hooks until ctx
// is cancelled. Deliveries start after the entries present at startup.
func RunWebhooks(ctx context.Context, log activity.Log, hooks []config.WebhookConfig, logger logrus.FieldLogger) {
	d := newWebhookDispatcher(log, hooks, logger)
	if d == nil {
		return
	}
	ticker := time.NewTicker(defaultWebhookInterval)
	defer ticker.Stop()
	for {
		d.dispatchAll(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func newWebhookDispatcher(log activity.Log, hooks []config.WebhookConfig, logger logrus.FieldLogger) *webhookDispatcher {
	if logger == nil {
		logger = logging.Discard()
	}
	var active []config.WebhookConfig
	for _, h := range hooks {
		if h.Active() {
			active = append(active, h)
		}
	}
	if len(active) == 0 {
		return nil
	}
	d := &webhookDispatcher{
		activity: log,
		hooks:    active,
		client:   &http.Client{Timeout: defaultWebhookTimeout},
		log:      logger,
		cursors:  make(map[int]int64),
	}
	for _, h := range active {
		d.breakers = append(d.breakers, gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "webhook " + h.URL,
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures > 3
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.WithFields(logrus.Fields{"breaker": name, "from": from.String(), "to": to.String()}).Warn("webhook circuit breaker state changed")
			},
		}))
	}
	return d
}

func (d *webhookDispatcher) dispatchAll(ctx context.Context) {
	for i := range d.hooks {
		if ctx.Err() != nil {
			return
		}
		d.dispatchWebhook(ctx, i)
	}
}

func (d *webhookDispatcher) dispatchWebhook(ctx context.Context, idx int) {
	hook := d.hooks[idx]
	cursor, err := d.cursorFor(ctx, idx)
	if err != nil {
		d.log.WithError(err).Error("webhook: init cursor failed")
		return
	}
	entries, err := d.activity.After(ctx, cursor, nil, defaultWebhookBatch)
	if err != nil {
		d.log.WithError(err).Error("webhook: fetch activity failed")
		return
	}
	filter := newEventFilter(hook.Events)
	for _, entry := range entries {
		if !filter.match(entry.Action) {
			d.setCursor(idx, entry.Seq)
			continue
		}
		_, err := d.breakers[idx].Execute(func() (interface{}, error) {
			return nil, d.postEvent(ctx, hook, entry)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				d.log.WithField("url", hook.URL).Debug("webhook: delivery skipped, breaker open")
			} else {
				d.log.WithError(err).WithField("url", hook.URL).Warn("webhook: delivery failed")
			}
			return
		}
		d.setCursor(idx, entry.Seq)
	}
}

func (d *webhookDispatcher) cursorFor(ctx context.Context, idx int) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cur, ok := d.cursors[idx]; ok {
		return cur, nil
	}
	cur, err := d.activity.Head(ctx)
	if err != nil {
		return 0, err
	}
	d.cursors[idx] = cur
	return cur, nil
}

func (d *webhookDispatcher) setCursor(idx int, value int64) {
	d.mu.Lock()
	d.cursors[idx] = value
	d.mu.Unlock()
}

type webhookEvent struct {
	Seq       int64  `json:"seq"`
	ID        string `json:"id"`
	Action    string `json:"action"`
	Label     string `json:"label"`
	ProjectID string `json:"project_id"`
	ActorID   string `json:"actor_id"`
	ActorName string `json:"actor_name"`
	Details   string `json:"details,omitempty"`
	Timestamp string `json:"timestamp"`
}

func (d *webhookDispatcher) postEvent(ctx context.Context, hook config.WebhookConfig, entry domain.ActivityEntry) error {
	data, err := json.Marshal(webhookEvent{
		Seq:       entry.Seq,
		ID:        entry.ID,
		Action:    entry.Action,
		Label:     domain.ActionLabel(entry.Action),
		ProjectID: entry.ProjectID,
		ActorID:   entry.ActorID,
		ActorName: entry.ActorName,
		Details:   entry.Details,
		Timestamp: entry.Timestamp,
	})
	if err != nil {
		return err
	}
	client := d.client
	if hook.TimeoutSeconds > 0 {
		if timeout := time.Duration(hook.TimeoutSeconds) * time.Second; timeout != d.client.Timeout {
			client = &http.Client{Timeout: timeout}
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Signoff-Event", entry.Action)
	req.Header.Set("X-Signoff-Delivery", strconv.FormatInt(entry.Seq, 10))
	req.Header.Set("X-Signoff-Project", entry.ProjectID)
	if strings.TrimSpace(hook.Secret) != "" {
		req.Header.Set("X-Signoff-Secret", hook.Secret)
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}
	return nil
}

type eventFilter struct {
	all bool
	set map[string]struct{}
}

func newEventFilter(events []string) eventFilter {
	set := make(map[string]struct{}, len(events))
	for _, evt := range events {
		if key := strings.TrimSpace(evt); key != "" {
			set[key] = struct{}{}
		}
	}
	if len(set) == 0 {
		return eventFilter{all: true}
	}
	return eventFilter{set: set}
}

func (f eventFilter) match(action string) bool {
	if f.all {
		return true
	}
	_, ok := f.set[action]
	return ok
}
