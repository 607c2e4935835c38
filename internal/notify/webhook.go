// Package notify posts liquidation alerts to an operator webhook.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"papertrade/internal/config"
	"papertrade/internal/models"
)

const EventPositionLiquidated = "position_liquidated"

type Payload struct {
	Project    string `json:"project"`
	Event      string `json:"event"`
	Message    string `json:"message"`
	PositionID string `json:"position_id,omitempty"`
	OwnerID    uint64 `json:"owner_id,omitempty"`
}

// Webhook is a no-op when URL is empty.
type Webhook struct {
	URL     string
	Project string
	client  *resty.Client
	logger  *zap.Logger
}

func NewWebhook(cfg config.NotifyConfig, project string, logger *zap.Logger) *Webhook {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Webhook{
		URL:     strings.TrimSpace(cfg.WebhookURL),
		Project: project,
		client:  resty.New().SetTimeout(timeout).SetHeader("Content-Type", "application/json"),
		logger:  logger,
	}
}

func (w *Webhook) Send(ctx context.Context, payload Payload) error {
	if w == nil || w.URL == "" {
		return nil
	}
	if payload.Project == "" {
		payload.Project = w.Project
	}
	resp, err := w.client.R().SetContext(ctx).SetBody(payload).Post(w.URL)
	if err != nil {
		return errors.Wrap(err, "webhook post")
	}
	if resp.IsError() {
		return errors.Errorf("webhook http status %d", resp.StatusCode())
	}
	return nil
}

// PositionLiquidated sends the liquidation alert for p.
func (w *Webhook) PositionLiquidated(ctx context.Context, p *models.Position) error {
	if w == nil || w.URL == "" || p == nil {
		return nil
	}
	exit := ""
	if p.ExitPrice != nil {
		exit = p.ExitPrice.String()
	}
	msg := fmt.Sprintf("%s %s %s qty=%s entry=%s exit=%s realized_pnl=%s",
		p.Product, p.Symbol, p.Side, p.Quantity, p.EntryPrice, exit, p.RealizedPnL)
	err := w.Send(ctx, Payload{
		Event:      EventPositionLiquidated,
		Message:    msg,
		PositionID: p.ID,
		OwnerID:    p.OwnerID,
	})
	if err != nil {
		w.logger.Warn("liquidation alert failed", zap.String("position_id", p.ID), zap.Error(err))
	}
	return err
}
