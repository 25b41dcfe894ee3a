package panel

import (
	"context"
	"net/http"
	"strconv"
)

// Refresh fetches the user's settings and rebuilds the index.
func (p *Panel) Refresh(ctx context.Context) ([]WebhookView, error) {
	rows, err := p.backend.ListSettings(ctx)
	if err != nil {
		return nil, err
	}
	return BuildIndex(rows), nil
}

// DeleteWebhookSetting deletes one setting by its numeric id, then re-fetches the index.
func (p *Panel) DeleteWebhookSetting(ctx context.Context, settingID uint) ([]WebhookView, Notice, error) {
	return p.deleteAndRefresh(ctx, "webhook setting", strconv.FormatUint(uint64(settingID), 10))
}

// DeleteWebhookByExternalID deletes every setting of the webhook, then re-fetches the index.
func (p *Panel) DeleteWebhookByExternalID(ctx context.Context, webhookID string) ([]WebhookView, Notice, error) {
	if webhookID == "" {
		err := &ValidationError{Field: "webhook id", Reason: "required"}
		return nil, ErrorNotice("Failed to delete webhook", err), err
	}
	return p.deleteAndRefresh(ctx, "webhook", webhookID)
}

// deleteAndRefresh returns the rebuilt index on success, and on failure the index as the backend
// has it after the failed call (nil when even the refresh fails).
func (p *Panel) deleteAndRefresh(ctx context.Context, kind, key string) ([]WebhookView, Notice, error) {
	if err := p.backend.DeleteSetting(ctx, key); err != nil {
		if StatusCode(err) == http.StatusNotFound {
			err = &NotFoundError{Kind: kind, Key: key, Err: err}
		}
		views, _ := p.Refresh(ctx)
		return views, ErrorNotice("Failed to delete webhook", err), err
	}

	views, err := p.Refresh(ctx)
	if err != nil {
		return nil, ErrorNotice("Failed to fetch webhooks", err), err
	}
	return views, infoNotice("Webhook deleted", "Webhook setting has been deleted."), nil
}
