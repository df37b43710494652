// Package session keeps per-user conversation history in Redis so follow-up
// questions can be resolved against recent turns.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "copilot:history:"
	// MaxTurns bounds stored history; context resolution only ever looks at
	// the most recent few turns anyway.
	MaxTurns   = 20
	historyTTL = 24 * time.Hour
)

var userRe = regexp.MustCompile(`^[a-zA-Z0-9._@-]{1,128}$`)

// Turn is one conversation entry.
type Turn struct {
	Role    string    `json:"role"` // "user" or "assistant"
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

type Store struct {
	client redis.Cmdable
}

func NewStore(client redis.Cmdable) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	return &Store{client: client}, nil
}

func ValidateUser(username string) error {
	if !userRe.MatchString(username) {
		return fmt.Errorf("invalid username")
	}
	return nil
}

// Append records a turn and trims history to the configured bound.
func (s *Store) Append(ctx context.Context, username string, turn Turn) error {
	if err := ValidateUser(username); err != nil {
		return err
	}
	if turn.At.IsZero() {
		turn.At = time.Now().UTC()
	}
	b, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("marshal turn: %w", err)
	}

	key := historyKey(username)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, b)
	pipe.LTrim(ctx, key, -MaxTurns, -1)
	pipe.Expire(ctx, key, historyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}

// Recent returns up to n most recent turns, oldest first. A missing key is
// an empty history, not an error.
func (s *Store) Recent(ctx context.Context, username string, n int) ([]Turn, error) {
	if err := ValidateUser(username); err != nil {
		return nil, err
	}
	if n <= 0 || n > MaxTurns {
		n = MaxTurns
	}

	vals, err := s.client.LRange(ctx, historyKey(username), int64(-n), -1).Result()
	if err == redis.Nil {
		return []Turn{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}

	turns := make([]Turn, 0, len(vals))
	for _, v := range vals {
		var t Turn
		if err := json.Unmarshal([]byte(v), &t); err != nil {
			continue
		}
		turns = append(turns, t)
	}
	return turns, nil
}

// Clear drops a user's history.
func (s *Store) Clear(ctx context.Context, username string) error {
	if err := ValidateUser(username); err != nil {
		return err
	}
	if err := s.client.Del(ctx, historyKey(username)).Err(); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

// Compact renders turns as a prompt-sized transcript. Large SQL or data
// blocks inside assistant replies are elided to keep the gist without the
// token weight.
func Compact(turns []Turn, last int) string {
	if last > 0 && len(turns) > last {
		turns = turns[len(turns)-last:]
	}
	var b strings.Builder
	for _, t := range turns {
		role := "User"
		if t.Role == "assistant" {
			role = "AI"
		}
		content := t.Content
		if strings.Contains(content, "```") || strings.Contains(content, "SELECT") {
			var kept []string
			for _, line := range strings.Split(content, "\n") {
				trimmed := strings.TrimSpace(line)
				if strings.HasPrefix(trimmed, "`") || strings.HasPrefix(trimmed, "{") ||
					strings.HasPrefix(trimmed, "[") || strings.HasPrefix(trimmed, "SELECT") {
					continue
				}
				if trimmed != "" {
					kept = append(kept, trimmed)
				}
				if len(kept) == 2 {
					break
				}
			}
			content = strings.Join(kept, " ") + " [Data/SQL Output]"
		}
		fmt.Fprintf(&b, "[%s]: %s\n", role, content)
	}
	return b.String()
}

func historyKey(username string) string {
	return keyPrefix + username
}
