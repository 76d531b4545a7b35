package service

import (
	"time"

	"github.com/google/uuid"

	"courier/internal/domain"
	"courier/internal/logging"
)

// AlertType represents the kind of worker-facing alert.
type AlertType string

const (
	AlertOfferReceived  AlertType = "OFFER_RECEIVED"
	AlertOfferExpiring  AlertType = "OFFER_EXPIRING"
	AlertOfferWithdrawn AlertType = "OFFER_WITHDRAWN"
	AlertInformational  AlertType = "INFORMATIONAL"
)

// AlertPort fires worker-facing side effects (sound, vibration, system
// notification). Calls are fire-and-forget: the state machine never waits on
// them and never fails because of them.
type AlertPort interface {
	// OfferAlert starts the offer alert (match sound + critical notification).
	OfferAlert(offer *domain.Offer)

	// StopAlert silences any running alert for the given offer.
	StopAlert(offerID string)

	// ExpiryWarning fires the five-minutes-remaining warning.
	ExpiryWarning(offer *domain.Offer)

	// Withdrawn surfaces a "removed by dispatcher" notice.
	Withdrawn(offerID, reason string)

	// Info shows a non-lifecycle notification.
	Info(title, body string)
}

// Alert is a single alert handed to the device notification subsystem.
type Alert struct {
	ID        string
	Type      AlertType
	OfferID   string
	Title     string
	Message   string
	CreatedAt time.Time
}

// DeviceNotifier is the device-side notification/sound/haptic subsystem. It is
// an external collaborator; the production binary plugs the platform bridge in
// here.
type DeviceNotifier interface {
	Notify(alert Alert)
	Silence(offerID string)
}

// AlertService is the default AlertPort. It forwards to the device notifier
// and logs every trigger; a nil notifier degrades to log-only.
type AlertService struct {
	notifier DeviceNotifier
	log      logging.Logger
}

// NewAlertService creates a new AlertService.
func NewAlertService(notifier DeviceNotifier, log logging.Logger) *AlertService {
	return &AlertService{notifier: notifier, log: log}
}

var _ AlertPort = (*AlertService)(nil)

func (s *AlertService) OfferAlert(offer *domain.Offer) {
	title := "New Order Matched"
	if offer.Kind == domain.OfferKindRoute {
		title = "New Route Matched"
	}
	s.fire(Alert{
		ID:        uuid.New().String(),
		Type:      AlertOfferReceived,
		OfferID:   offer.ID,
		Title:     title,
		Message:   offer.Reference,
		CreatedAt: time.Now(),
	})
}

func (s *AlertService) StopAlert(offerID string) {
	if s.notifier != nil {
		s.notifier.Silence(offerID)
	}
	s.log.Debug("alert silenced", logging.String("offer_id", offerID))
}

func (s *AlertService) ExpiryWarning(offer *domain.Offer) {
	s.fire(Alert{
		ID:        uuid.New().String(),
		Type:      AlertOfferExpiring,
		OfferID:   offer.ID,
		Title:     "Offer Expiring Soon",
		Message:   "Respond within 5 minutes or the offer will expire",
		CreatedAt: time.Now(),
	})
}

func (s *AlertService) Withdrawn(offerID, reason string) {
	if reason == "" {
		reason = "The offer has been removed by the dispatcher"
	}
	s.fire(Alert{
		ID:        uuid.New().String(),
		Type:      AlertOfferWithdrawn,
		OfferID:   offerID,
		Title:     "Offer Removed",
		Message:   reason,
		CreatedAt: time.Now(),
	})
}

func (s *AlertService) Info(title, body string) {
	s.fire(Alert{
		ID:        uuid.New().String(),
		Type:      AlertInformational,
		Title:     title,
		Message:   body,
		CreatedAt: time.Now(),
	})
}

func (s *AlertService) fire(alert Alert) {
	if s.notifier != nil {
		s.notifier.Notify(alert)
	}
	s.log.Info("alert triggered",
		logging.String("alert_id", alert.ID),
		logging.String("type", string(alert.Type)),
		logging.String("offer_id", alert.OfferID),
		logging.String("title", alert.Title),
	)
}
