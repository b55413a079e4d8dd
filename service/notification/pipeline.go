package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nkansahrexford/saferide-server/cmd/models"
	"github.com/nkansahrexford/saferide-server/cmd/utils"
	"github.com/nkansahrexford/saferide-server/service/push"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Dispatcher runs the delivery pipeline for one inbound request:
// resolve recipients, apply preferences, render the payload, push to
// every active device, retire dead tokens, and record one durable
// notification row per recipient whether or not any device existed.
//
// Each dispatch runs to completion independently; the only shared
// state is the backing store.
type Dispatcher struct {
	db       *gorm.DB
	resolver *Resolver
	prefs    *PreferenceFilter
	push     *push.Client
}

func NewDispatcher(db *gorm.DB, pushClient *push.Client) *Dispatcher {
	return &Dispatcher{
		db:       db,
		resolver: NewResolver(db),
		prefs:    NewPreferenceFilter(db),
		push:     pushClient,
	}
}

// Dispatch processes one notification request end to end and returns a
// definitive summary even under partial delivery failure. Errors are
// returned only for configuration problems (unknown type, bad target)
// and for store failures that would make the dispatch unrecorded.
func (d *Dispatcher) Dispatch(ctx context.Context, req models.DispatchRequest) (models.DispatchSummary, error) {
	log := utils.Logger.WithFields(logrus.Fields{
		"dispatch": uuid.NewString(),
		"type":     req.Type,
	})

	// Unknown type is a hard stop before any work happens.
	if _, err := Lookup(req.Type); err != nil {
		return models.DispatchSummary{}, err
	}

	recipients, err := d.resolver.Resolve(req)
	if err != nil {
		return models.DispatchSummary{}, err
	}

	recipients = d.prefs.Filter(recipients, req.Type)
	if len(recipients) == 0 {
		log.Info("No recipients after resolution and preference filtering")
		return models.DispatchSummary{
			Success: true,
			Message: "No recipients to notify",
		}, nil
	}

	payload, err := BuildPayload(req.Type, req.Data)
	if err != nil {
		return models.DispatchSummary{}, err
	}

	tokens, owners, err := d.tokensFor(recipients)
	if err != nil {
		return models.DispatchSummary{}, err
	}

	var tickets []push.Ticket
	if len(tokens) > 0 {
		tickets = d.push.Send(ctx, tokens, payload)
		push.RetireDeadTokens(d.db, tickets)
	}

	summary, err := d.record(recipients, req.Type, payload, tickets, owners)
	if err != nil {
		return summary, err
	}

	log.WithFields(logrus.Fields{
		"recipients": summary.Recipients,
		"devices":    len(tokens),
		"sent":       summary.Sent,
		"failed":     summary.Failed,
	}).Info("Dispatch complete")
	return summary, nil
}

// tokensFor returns the active device tokens for the recipient set in
// a stable order, plus token ownership for ticket attribution. A user
// with no active device simply contributes nothing; the notification
// log still records them.
func (d *Dispatcher) tokensFor(userIDs []string) ([]string, map[string]string, error) {
	var devices []models.Device
	if err := d.db.
		Where("user_id IN ? AND is_active = ?", userIDs, true).
		Order("id").
		Find(&devices).Error; err != nil {
		return nil, nil, fmt.Errorf("error loading device tokens: %w", err)
	}

	tokens := make([]string, 0, len(devices))
	owners := make(map[string]string, len(devices))
	for _, device := range devices {
		tokens = append(tokens, device.Token)
		owners[device.Token] = device.UserID
	}
	return tokens, owners, nil
}

// record writes one notification row per recipient and derives the
// summary. A recipient with at least one accepted token is sent (and,
// with no separate receipt step, considered delivered); one whose
// every token errored is failed; one with no tokens at all gets a row
// with neither timestamp so the notification still shows up in-app.
func (d *Dispatcher) record(recipients []string, notificationType string, payload push.Payload, tickets []push.Ticket, owners map[string]string) (models.DispatchSummary, error) {
	type outcome struct {
		ok      bool
		errored bool
		reason  string
		retries int
	}
	outcomes := make(map[string]*outcome, len(recipients))
	for _, userID := range recipients {
		outcomes[userID] = &outcome{}
	}

	for _, ticket := range tickets {
		userID, known := owners[ticket.Token]
		if !known {
			continue
		}
		o, wanted := outcomes[userID]
		if !wanted {
			continue
		}
		if ticket.OK() {
			o.ok = true
		} else {
			o.errored = true
			if o.reason == "" {
				o.reason = ticket.Message
			}
		}
		if ticket.Retries > o.retries {
			o.retries = ticket.Retries
		}
	}

	dataJSON, _ := json.Marshal(payload.Data)
	now := time.Now()

	summary := models.DispatchSummary{Recipients: len(recipients)}
	var firstErr error
	for _, userID := range recipients {
		o := outcomes[userID]
		row := models.Notification{
			UserID:     userID,
			Type:       notificationType,
			Title:      payload.Title,
			Body:       payload.Body,
			Data:       string(dataJSON),
			Priority:   payload.Priority,
			Read:       false,
			RetryCount: o.retries,
		}
		switch {
		case o.ok:
			row.SentAt = &now
			row.DeliveredAt = &now
			summary.Sent++
		case o.errored:
			row.FailedAt = &now
			row.FailureReason = o.reason
			summary.Failed++
		}

		if err := d.db.Create(&row).Error; err != nil {
			utils.Logger.Errorf("Error recording notification for user %s: %v", userID, err)
			if firstErr == nil {
				firstErr = fmt.Errorf("error recording notification: %w", err)
			}
		}
	}

	if firstErr != nil {
		return summary, firstErr
	}
	summary.Success = true
	summary.Message = fmt.Sprintf("Notification delivered to %d of %d recipients", summary.Sent, summary.Recipients)
	return summary, nil
}
