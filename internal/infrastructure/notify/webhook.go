// Package notify publishes submission side events to an external webhook,
// typically a chat bridge. Delivery is best effort behind a circuit breaker
// so a dead endpoint cannot slow down submissions.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cockroachdb/errors"
	"github.com/valyala/bytebufferpool"

	"github.com/rhythmnet/rhythmd/internal/domain/medal"
	"github.com/rhythmnet/rhythmd/internal/platform/logging"
	"github.com/rhythmnet/rhythmd/internal/platform/resilience"
	"github.com/rhythmnet/rhythmd/internal/usecase"
)

const requestTimeout = 5 * time.Second

type event struct {
	Kind    string `json:"kind"`
	UserID  int64  `json:"user_id"`
	Payload any    `json:"payload"`
}

type firstPlacePayload struct {
	UserName     string `json:"user_name"`
	BeatmapHash  string `json:"beatmap_hash"`
	BeatmapTitle string `json:"beatmap_title"`
	Mode         uint8  `json:"mode"`
	TotalScore   int64  `json:"total_score"`
	DethronedID  int64  `json:"dethroned_id,omitempty"`
}

type medalPayload struct {
	MedalIDs []int64  `json:"medal_ids"`
	Names    []string `json:"names"`
}

// Webhook posts JSON events to a single endpoint.
type Webhook struct {
	url     string
	client  *http.Client
	breaker *resilience.CircuitBreaker
	logger  *logging.Logger
}

func NewWebhook(url string, breaker *resilience.CircuitBreaker, logger *logging.Logger) (*Webhook, error) {
	if url == "" {
		return nil, fmt.Errorf("webhook url is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	return &Webhook{
		url:     url,
		client:  &http.Client{Timeout: requestTimeout},
		breaker: breaker,
		logger:  logger,
	}, nil
}

var _ usecase.Notifier = (*Webhook)(nil)

func (w *Webhook) AnnounceFirstPlace(ctx context.Context, fp usecase.FirstPlace) error {
	return w.post(ctx, event{
		Kind:   "first_place",
		UserID: fp.UserID,
		Payload: firstPlacePayload{
			UserName:     fp.UserName,
			BeatmapHash:  fp.BeatmapHash,
			BeatmapTitle: fp.BeatmapTitle,
			Mode:         fp.Mode,
			TotalScore:   fp.TotalScore,
			DethronedID:  fp.DethronedID,
		},
	})
}

func (w *Webhook) AnnounceMedals(ctx context.Context, userID int64, unlocked []medal.Medal) error {
	payload := medalPayload{
		MedalIDs: make([]int64, 0, len(unlocked)),
		Names:    make([]string, 0, len(unlocked)),
	}
	for _, m := range unlocked {
		payload.MedalIDs = append(payload.MedalIDs, m.ID)
		payload.Names = append(payload.Names, m.Name)
	}

	return w.post(ctx, event{Kind: "medals", UserID: userID, Payload: payload})
}

func (w *Webhook) post(ctx context.Context, e event) error {
	if w.breaker != nil && w.breaker.Allow() != nil {
		return errors.Newf("webhook circuit open, dropping %s event", e.Kind)
	}

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	body, err := sonic.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "marshal webhook event")
	}
	_, _ = buf.Write(body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(buf.B))
	if err != nil {
		return errors.Wrap(err, "build webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		w.recordFailure()
		return errors.Wrap(err, "deliver webhook event")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		w.recordFailure()
		return errors.Newf("webhook endpoint returned %d", resp.StatusCode)
	}

	if w.breaker != nil {
		w.breaker.RecordSuccess()
	}
	return nil
}

func (w *Webhook) recordFailure() {
	if w.breaker != nil {
		w.breaker.RecordFailure()
	}
}
