// Package mccontrol реализует клиент шлюза MC Control — внешнего сервиса,
// исполняющего команды на игровом сервере: вайтлист, группы, ники, kick,
// объявления и произвольные команды. Все вызовы несут общий секрет в заголовке.
package mccontrol

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const secretHeader = "X-Control-Secret"

type Client struct {
	baseURL    string
	secret     string
	httpClient *http.Client
}

// NewClient создаёт новый клиент MC Control.
func NewClient(baseURL, secret string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		secret:     secret,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	const op = "mccontrol.post"
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set(secretHeader, c.secret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: unexpected status: %s", op, resp.Status)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return nil
}

// AddToWhitelist добавляет игрока в вайтлист сервера.
func (c *Client) AddToWhitelist(ctx context.Context, username string) error {
	return c.post(ctx, "/whitelist/add", map[string]string{"username": username}, nil)
}

// RemoveFromWhitelist убирает игрока из вайтлиста сервера.
func (c *Client) RemoveFromWhitelist(ctx context.Context, username string) error {
	return c.post(ctx, "/whitelist/remove", map[string]string{"username": username}, nil)
}

// ListWhitelist возвращает текущий вайтлист сервера.
func (c *Client) ListWhitelist(ctx context.Context) ([]string, error) {
	const op = "mccontrol.ListWhitelist"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/whitelist", nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set(secretHeader, c.secret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: unexpected status: %s", op, resp.Status)
	}
	var result struct {
		Players []string `json:"players"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result.Players, nil
}

// SetGroup назначает игроку группу (права и косметику на сервере).
func (c *Client) SetGroup(ctx context.Context, username, group string) error {
	return c.post(ctx, "/groups/set", map[string]string{
		"username": username,
		"group":    group,
	}, nil)
}

// SetNickname задаёт игроку отображаемый ник.
func (c *Client) SetNickname(ctx context.Context, username, nickname string) error {
	return c.post(ctx, "/nickname", map[string]string{
		"username": username,
		"nickname": nickname,
	}, nil)
}

// Kick выгоняет игрока с сервера с указанной причиной.
func (c *Client) Kick(ctx context.Context, username, reason string) error {
	return c.post(ctx, "/kick", map[string]string{
		"username": username,
		"reason":   reason,
	}, nil)
}

// Announce отправляет объявление всем игрокам.
func (c *Client) Announce(ctx context.Context, message string) error {
	return c.post(ctx, "/announce", map[string]string{"message": message}, nil)
}

// RunCommand исполняет произвольную консольную команду и возвращает её вывод.
func (c *Client) RunCommand(ctx context.Context, command string) (string, error) {
	var result struct {
		Output string `json:"output"`
	}
	if err := c.post(ctx, "/command", map[string]string{"command": command}, &result); err != nil {
		return "", err
	}
	return result.Output, nil
}
