package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"courier/internal/logging"
)

// DecisionGateway reports decisions to the dispatch backend. All sends are
// trailing effects: the local transition is committed before any call here is
// attempted, and the state machine never blocks on the outcome.
type DecisionGateway interface {
	// SendDecline posts the decline decision. Retried in the background with
	// backoff; abandoned once the offer id is superseded.
	SendDecline(offerID, reason string)

	// SendExpire posts the expiry notice. Best effort, sent once.
	SendExpire(offerID string)

	// NotifyAcceptView records the accept-view handoff. Accept needs no
	// backend call; the navigation handoff happens outside the core.
	NotifyAcceptView(offerID string)

	// Abandon cancels any pending retries for the given offer id.
	Abandon(offerID string)
}

const (
	declineMaxAttempts    = 5
	declineInitialBackoff = 2 * time.Second
)

// BackendGateway is the HTTP implementation of DecisionGateway.
type BackendGateway struct {
	baseURL string
	client  *http.Client
	log     logging.Logger

	mu      sync.Mutex
	pending map[string]context.CancelFunc
}

// NewBackendGateway creates a gateway targeting the given dispatch backend.
func NewBackendGateway(baseURL string, timeout time.Duration, log logging.Logger) *BackendGateway {
	return &BackendGateway{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		log:     log,
		pending: make(map[string]context.CancelFunc),
	}
}

var _ DecisionGateway = (*BackendGateway)(nil)

type declineBody struct {
	Reason    string `json:"reason"`
	Permanent bool   `json:"permanent"`
}

// SendDecline posts POST /assignment/{id}/decline with bounded retries.
func (g *BackendGateway) SendDecline(offerID, reason string) {
	ctx, cancel := context.WithCancel(context.Background())

	g.mu.Lock()
	if prev, ok := g.pending[offerID]; ok {
		prev()
	}
	g.pending[offerID] = cancel
	g.mu.Unlock()

	body, _ := json.Marshal(declineBody{Reason: reason, Permanent: true})
	url := fmt.Sprintf("%s/assignment/%s/decline", g.baseURL, offerID)
	// One key across all retry attempts so the backend can collapse them.
	idemKey := uuid.New().String()

	go func() {
		defer func() {
			g.mu.Lock()
			delete(g.pending, offerID)
			g.mu.Unlock()
		}()

		backoff := declineInitialBackoff
		for attempt := 1; attempt <= declineMaxAttempts; attempt++ {
			err := g.post(ctx, url, body, idemKey)
			if err == nil {
				g.log.Info("decline notice delivered",
					logging.String("offer_id", offerID), logging.Int("attempt", attempt))
				return
			}
			if ctx.Err() != nil {
				g.log.Info("decline notice abandoned, offer superseded",
					logging.String("offer_id", offerID))
				return
			}
			g.log.Warn("decline notice failed",
				logging.String("offer_id", offerID),
				logging.Int("attempt", attempt),
				logging.Error(err))

			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		g.log.Error("decline notice dropped after retries", logging.String("offer_id", offerID))
	}()
}

// SendExpire posts POST /assignment/{id}/expire. The local expired state is
// authoritative for the client, so a failed send is only logged.
func (g *BackendGateway) SendExpire(offerID string) {
	url := fmt.Sprintf("%s/assignment/%s/expire", g.baseURL, offerID)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), g.client.Timeout)
		defer cancel()
		if err := g.post(ctx, url, []byte("{}"), uuid.New().String()); err != nil {
			g.log.Warn("expire notice failed", logging.String("offer_id", offerID), logging.Error(err))
			return
		}
		g.log.Info("expire notice delivered", logging.String("offer_id", offerID))
	}()
}

func (g *BackendGateway) NotifyAcceptView(offerID string) {
	g.log.Info("offer accepted, handing off to assignment detail",
		logging.String("offer_id", offerID))
}

// Abandon cancels pending decline retries for the offer id.
func (g *BackendGateway) Abandon(offerID string) {
	g.mu.Lock()
	cancel, ok := g.pending[offerID]
	g.mu.Unlock()
	if ok {
		cancel()
	}
}

func (g *BackendGateway) post(ctx context.Context, url string, body []byte, idemKey string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", idemKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("backend returned %d", resp.StatusCode)
	}
	return nil
}
