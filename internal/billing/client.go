package billing

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

type Client struct {
	secretKey  string
	apiURL     string
	httpClient *http.Client
}

// NewClient создаёт новый клиент платёжного провайдера.
func NewClient(apiURL, secretKey string) *Client {
	return &Client{
		secretKey:  secretKey,
		apiURL:     apiURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	url := c.apiURL + path
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return nil, err
	}
	auth := base64.StdEncoding.EncodeToString([]byte(c.secretKey + ":"))
	req.Header.Set("Authorization", "Basic "+auth)
	req.Header.Set("Content-Type", "application/json")
	if method == http.MethodPost {
		// Провайдер дедуплицирует повторные POST по этому ключу.
		req.Header.Set("Idempotency-Key", uuid.NewString())
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	const op = "billing.do"
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("%s: unexpected status: %s", op, resp.Status)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// CreateCustomer создаёт покупателя у провайдера.
func (c *Client) CreateCustomer(ctx context.Context, email, userUID string) (*Customer, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/customers", map[string]any{
		"email":    email,
		"metadata": map[string]string{"user_uid": userUID},
	})
	if err != nil {
		return nil, err
	}
	var customer Customer
	if err := c.do(req, &customer); err != nil {
		return nil, err
	}
	return &customer, nil
}

// CreateSubscription создаёт подписку в состоянии incomplete,
// требующую подтверждения платежа.
func (c *Client) CreateSubscription(ctx context.Context, reqParams CreateSubscriptionRequest) (*Subscription, error) {
	reqParams.PaymentBehavior = "default_incomplete"
	req, err := c.newRequest(ctx, http.MethodPost, "/subscriptions", reqParams)
	if err != nil {
		return nil, err
	}
	var sub Subscription
	if err := c.do(req, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

// GetSubscription получает авторитетное состояние подписки у провайдера.
func (c *Client) GetSubscription(ctx context.Context, id string) (*Subscription, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/subscriptions/"+id, nil)
	if err != nil {
		return nil, err
	}
	var sub Subscription
	if err := c.do(req, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

// ChangeSubscriptionPrice меняет тариф действующей подписки с пропорцией.
func (c *Client) ChangeSubscriptionPrice(ctx context.Context, id string, change ChangePriceRequest) (*Subscription, error) {
	change.ProrationBehavior = "create_prorations"
	req, err := c.newRequest(ctx, http.MethodPost, "/subscriptions/"+id, change)
	if err != nil {
		return nil, err
	}
	var sub Subscription
	if err := c.do(req, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

// SetCancelAtPeriodEnd помечает подписку к отмене в конце периода или снимает пометку.
func (c *Client) SetCancelAtPeriodEnd(ctx context.Context, id string, cancel bool) (*Subscription, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/subscriptions/"+id, map[string]any{
		"cancel_at_period_end": cancel,
	})
	if err != nil {
		return nil, err
	}
	var sub Subscription
	if err := c.do(req, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

// CancelSubscription немедленно отменяет подписку.
func (c *Client) CancelSubscription(ctx context.Context, id string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, "/subscriptions/"+id, nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// GetInvoice получает инвойс по ID.
func (c *Client) GetInvoice(ctx context.Context, id string) (*Invoice, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/invoices/"+id, nil)
	if err != nil {
		return nil, err
	}
	var inv Invoice
	if err := c.do(req, &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}
