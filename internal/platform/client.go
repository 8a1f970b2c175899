package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/scrim-arena/internal/config"
	"github.com/scrim-arena/internal/domain"
)

// Client talks to the chat platform's REST API. It resolves a player's rank
// tier from their role list and grants or revokes the per-mode leader role.
// It satisfies both the rank source and the role platform interfaces.
type Client struct {
	baseURL     string
	guildID     string
	token       string
	tierRoles   map[string]string
	leaderRoles map[int]string
	httpClient  *http.Client
	logger      *slog.Logger
}

// NewClient creates a new chat platform API client
func NewClient(cfg *config.PlatformConfig, logger *slog.Logger) *Client {
	return &Client{
		baseURL:     cfg.BaseURL,
		guildID:     cfg.GuildID,
		token:       cfg.Token,
		tierRoles:   cfg.TierRoles,
		leaderRoles: cfg.LeaderRoles,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		logger:      logger,
	}
}

type member struct {
	Roles []string `json:"roles"`
}

func (c *Client) memberURL(playerID string) string {
	return fmt.Sprintf("%s/guilds/%s/members/%s", c.baseURL, c.guildID, playerID)
}

func (c *Client) roleURL(playerID, roleID string) string {
	return fmt.Sprintf("%s/guilds/%s/members/%s/roles/%s", c.baseURL, c.guildID, playerID, roleID)
}

func (c *Client) getMember(ctx context.Context, playerID string) (*member, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.memberURL(playerID), nil)
	if err != nil {
		return nil, fmt.Errorf("building member request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching member: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fetching member: status %d: %s", resp.StatusCode, body)
	}

	var m member
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return nil, fmt.Errorf("decoding member: %w", err)
	}
	return &m, nil
}

// Tier returns the rank tier name held by the player, or "" when the player
// holds no tier role or has left the community.
func (c *Client) Tier(ctx context.Context, playerID string) (string, error) {
	m, err := c.getMember(ctx, playerID)
	if err != nil {
		return "", err
	}
	if m == nil {
		return "", nil
	}
	for _, roleID := range m.Roles {
		if tier, ok := c.tierRoles[roleID]; ok {
			return tier, nil
		}
	}
	return "", nil
}

// Resolvable reports whether the player is still a member of the community.
func (c *Client) Resolvable(ctx context.Context, playerID string) (bool, error) {
	m, err := c.getMember(ctx, playerID)
	if err != nil {
		return false, err
	}
	return m != nil, nil
}

// Holders returns the players currently holding a mode's leader role. The
// member list is paged through by highest seen ID.
func (c *Client) Holders(ctx context.Context, mode domain.Mode) ([]string, error) {
	roleID, ok := c.leaderRoles[int(mode)]
	if !ok {
		return nil, fmt.Errorf("no leader role configured for mode %s", mode)
	}

	var holders []string
	after := ""
	for {
		url := fmt.Sprintf("%s/guilds/%s/members?limit=1000", c.baseURL, c.guildID)
		if after != "" {
			url += "&after=" + after
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("building members request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Authorization", c.token)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("listing members: %w", err)
		}

		var page []struct {
			User struct {
				ID string `json:"id"`
			} `json:"user"`
			Roles []string `json:"roles"`
		}
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			return nil, fmt.Errorf("listing members: status %d: %s", resp.StatusCode, body)
		}
		if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("decoding members: %w", err)
		}
		resp.Body.Close()

		for _, m := range page {
			for _, r := range m.Roles {
				if r == roleID {
					holders = append(holders, m.User.ID)
					break
				}
			}
			after = m.User.ID
		}
		if len(page) < 1000 {
			return holders, nil
		}
	}
}

// Grant assigns the mode's leader role to the player.
func (c *Client) Grant(ctx context.Context, mode domain.Mode, playerID string) error {
	return c.setRole(ctx, mode, playerID, http.MethodPut)
}

// Revoke removes the mode's leader role from the player.
func (c *Client) Revoke(ctx context.Context, mode domain.Mode, playerID string) error {
	return c.setRole(ctx, mode, playerID, http.MethodDelete)
}

func (c *Client) setRole(ctx context.Context, mode domain.Mode, playerID, method string) error {
	roleID, ok := c.leaderRoles[int(mode)]
	if !ok {
		return fmt.Errorf("no leader role configured for mode %s", mode)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.roleURL(playerID, roleID), nil)
	if err != nil {
		return fmt.Errorf("building role request: %w", err)
	}
	req.Header.Set("Authorization", c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("updating role: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("updating role: status %d: %s", resp.StatusCode, body)
	}

	c.logger.Debug("leader role updated", "method", method, "mode", mode, "player_id", playerID)
	return nil
}
