package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/scrim-arena/internal/config"
)

// Escrow debits and credits player balances held by an external economy
// service. Calls are fallible remote operations with no transactional
// linkage to local state; callers decide how to proceed on failure.
type Escrow interface {
	Debit(ctx context.Context, playerID string, amount int64) error
	Credit(ctx context.Context, playerID string, amount int64) error
	GetBalance(ctx context.Context, playerID string) (int64, error)
}

// Client is an HTTP implementation of Escrow against the community economy
// bot API. Amounts move through the player's bank balance.
type Client struct {
	baseURL    string
	guildID    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new economy API client
func NewClient(cfg *config.LedgerConfig, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    cfg.BaseURL,
		guildID:    cfg.GuildID,
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

type balanceResponse struct {
	Cash int64 `json:"cash"`
	Bank int64 `json:"bank"`
}

type adjustRequest struct {
	Cash int64 `json:"cash"`
	Bank int64 `json:"bank"`
}

func (c *Client) userURL(playerID string) string {
	return fmt.Sprintf("%s/guilds/%s/users/%s", c.baseURL, c.guildID, playerID)
}

// GetBalance returns a player's available bank balance.
func (c *Client) GetBalance(ctx context.Context, playerID string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.userURL(playerID), nil)
	if err != nil {
		return 0, fmt.Errorf("building balance request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetching balance: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("fetching balance: status %d: %s", resp.StatusCode, body)
	}

	var out balanceResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decoding balance: %w", err)
	}
	return out.Bank, nil
}

// Debit removes amount from a player's bank balance.
func (c *Client) Debit(ctx context.Context, playerID string, amount int64) error {
	return c.adjust(ctx, playerID, -amount)
}

// Credit adds amount to a player's bank balance.
func (c *Client) Credit(ctx context.Context, playerID string, amount int64) error {
	return c.adjust(ctx, playerID, amount)
}

func (c *Client) adjust(ctx context.Context, playerID string, bankDelta int64) error {
	payload, err := json.Marshal(adjustRequest{Cash: 0, Bank: bankDelta})
	if err != nil {
		return fmt.Errorf("marshaling adjustment: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, c.userURL(playerID), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building adjustment request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("adjusting balance: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("adjusting balance: status %d: %s", resp.StatusCode, body)
	}

	c.logger.Debug("balance adjusted", "player_id", playerID, "delta", bankDelta)
	return nil
}
