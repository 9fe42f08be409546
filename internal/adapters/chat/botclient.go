package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/okian/meetstake/internal/domain/model"
	"github.com/okian/meetstake/pkg/logger"
)

// Bot client defaults.
const (
	defaultPollTimeout = 30 * time.Second
	defaultUpdateBuf   = 256
	pollRetryBackoff   = 3 * time.Second
	maxErrorBodyBytes  = 2048
)

// BotOption applies a configuration option to the BotClient.
type BotOption func(*BotClient)

// WithPollTimeout sets the long-poll timeout.
func WithPollTimeout(d time.Duration) BotOption {
	return func(b *BotClient) {
		if d > 0 {
			b.pollTimeout = d
		}
	}
}

// WithBotHTTPClient overrides the underlying HTTP client.
func WithBotHTTPClient(c *http.Client) BotOption {
	return func(b *BotClient) {
		if c != nil {
			b.client = c
		}
	}
}

// BotClient implements Delivery against a bot HTTP API using long polling.
type BotClient struct {
	apiURL      string // base URL including the bot token path segment
	fileURL     string // base URL for raw file downloads
	pollTimeout time.Duration
	client      *http.Client
	logger      logger.Logger
}

// NewBotClient creates a long-polling bot client. apiBase is the API host
// ("https://api.telegram.org"); token is the bot credential.
func NewBotClient(apiBase, token string, opts ...BotOption) *BotClient {
	b := &BotClient{
		apiURL:      apiBase + "/bot" + token,
		fileURL:     apiBase + "/file/bot" + token,
		pollTimeout: defaultPollTimeout,
		logger:      logger.Named("chat"),
	}

	for _, opt := range opts {
		opt(b)
	}

	if b.client == nil {
		// The HTTP timeout must outlast the server-side long-poll hold.
		b.client = &http.Client{Timeout: b.pollTimeout + 10*time.Second}
	}

	return b
}

// Wire structures, trimmed to the fields the service consumes.

type wireUpdate struct {
	UpdateID int64        `json:"update_id"`
	Message  *wireMessage `json:"message"`
	Callback *wireCallback `json:"callback_query"`
}

type wireMessage struct {
	From     *wireUser     `json:"from"`
	Text     string        `json:"text"`
	Location *wireLocation `json:"location"`
	Photo    []wirePhoto   `json:"photo"`
}

type wireCallback struct {
	From *wireUser `json:"from"`
	Data string    `json:"data"`
}

type wireUser struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	Username  string `json:"username"`
}

type wireLocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type wirePhoto struct {
	FileID string `json:"file_id"`
}

type updatesResponse struct {
	OK     bool         `json:"ok"`
	Result []wireUpdate `json:"result"`
}

// Updates long-polls the transport and emits normalized turns.
func (b *BotClient) Updates(ctx context.Context) <-chan Turn {
	out := make(chan Turn, defaultUpdateBuf)

	go func() {
		defer close(out)
		var offset int64

		for {
			if ctx.Err() != nil {
				return
			}

			updates, err := b.getUpdates(ctx, offset)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				b.logger.Warn(ctx, "poll failed; backing off", logger.Error(err))
				select {
				case <-ctx.Done():
					return
				case <-time.After(pollRetryBackoff):
				}
				continue
			}

			for _, u := range updates {
				offset = u.UpdateID + 1
				turn, ok := turnFromUpdate(u)
				if !ok {
					continue
				}
				select {
				case out <- turn:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}

// turnFromUpdate maps a wire update to a Turn. Unsupported update shapes
// are dropped.
func turnFromUpdate(u wireUpdate) (Turn, bool) {
	if u.Callback != nil && u.Callback.From != nil {
		return Turn{
			UserID:    u.Callback.From.ID,
			UserName:  displayName(u.Callback.From),
			Kind:      KindSelection,
			Selection: u.Callback.Data,
		}, true
	}

	m := u.Message
	if m == nil || m.From == nil {
		return Turn{}, false
	}

	t := Turn{
		UserID:   m.From.ID,
		UserName: displayName(m.From),
	}

	switch {
	case m.Location != nil:
		t.Kind = KindLocation
		t.Location = &model.Location{Lat: m.Location.Latitude, Lng: m.Location.Longitude}
	case len(m.Photo) > 0:
		t.Kind = KindPhoto
		// The last size entry is the largest rendition.
		t.PhotoRef = m.Photo[len(m.Photo)-1].FileID
	case m.Text != "":
		if cmd, args, ok := ParseCommand(m.Text); ok {
			t.Kind = KindCommand
			t.Command = cmd
			t.Args = args
		} else {
			t.Kind = KindText
			t.Text = m.Text
		}
	default:
		return Turn{}, false
	}

	return t, true
}

func displayName(u *wireUser) string {
	if u.Username != "" {
		return u.Username
	}
	return u.FirstName
}

func (b *BotClient) getUpdates(ctx context.Context, offset int64) ([]wireUpdate, error) {
	url := b.apiURL + "/getUpdates?timeout=" + strconv.Itoa(int(b.pollTimeout.Seconds()))
	if offset > 0 {
		url += "&offset=" + strconv.FormatInt(offset, 10)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get updates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, fmt.Errorf("get updates: %s: %s", resp.Status, bytes.TrimSpace(body))
	}

	var out updatesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode updates: %w", err)
	}
	if !out.OK {
		return nil, fmt.Errorf("get updates: transport reported not ok")
	}
	return out.Result, nil
}

// SendText delivers a plain text message.
func (b *BotClient) SendText(ctx context.Context, userID int64, text string) error {
	return b.send(ctx, map[string]any{
		"chat_id": userID,
		"text":    text,
	})
}

// SendOptions delivers a prompt with one tappable option per row.
func (b *BotClient) SendOptions(ctx context.Context, userID int64, text string, options []string) error {
	keyboard := make([][]map[string]string, 0, len(options))
	for _, opt := range options {
		keyboard = append(keyboard, []map[string]string{{
			"text":          opt,
			"callback_data": opt,
		}})
	}

	return b.send(ctx, map[string]any{
		"chat_id":      userID,
		"text":         text,
		"reply_markup": map[string]any{"inline_keyboard": keyboard},
	})
}

type fileResponse struct {
	OK     bool `json:"ok"`
	Result struct {
		FilePath string `json:"file_path"`
	} `json:"result"`
}

// FetchFile downloads a file's bytes by its transport file id. Two round
// trips: resolve the file path, then fetch the raw content.
func (b *BotClient) FetchFile(ctx context.Context, fileID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.apiURL+"/getFile?file_id="+fileID, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, fmt.Errorf("get file: %s: %s", resp.Status, bytes.TrimSpace(body))
	}

	var out fileResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode file response: %w", err)
	}
	if !out.OK || out.Result.FilePath == "" {
		return nil, fmt.Errorf("get file: transport reported not ok")
	}

	dreq, err := http.NewRequestWithContext(ctx, http.MethodGet, b.fileURL+"/"+out.Result.FilePath, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	dresp, err := b.client.Do(dreq)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer dresp.Body.Close()

	if dresp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download file: %s", dresp.Status)
	}

	data, err := io.ReadAll(dresp.Body)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return data, nil
}

func (b *BotClient) send(ctx context.Context, payload map[string]any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.apiURL+"/sendMessage", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return fmt.Errorf("send message: %s: %s", resp.Status, bytes.TrimSpace(body))
	}
	return nil
}
