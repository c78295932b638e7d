package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"tradeScope/internal/metrics"
)

const (
	DefaultAPIBase       = "https://api.telegram.org"
	DefaultExplorerTxURL = "https://www.oklink.com/zh-hans/x-layer/tx/"
	DefaultChunkSize     = 3500
	DefaultRate          = 4.0
	defaultQueueSize     = 256
	defaultHTTPTimeout   = 15 * time.Second
	buttonText           = "🔗 View on OKLink"
)

// TelegramConfig configures a TelegramSink.
type TelegramConfig struct {
	Token         string
	ChatID        string
	APIBase       string
	ExplorerTxURL string
	// Rate is the maximum number of sendMessage calls per second.
	Rate       float64
	ChunkSize  int
	QueueSize  int
	HTTPClient *http.Client
}

type message struct {
	text          string
	correlationID string
}

// TelegramSink posts messages to a chat through the Bot API. Messages are
// queued and delivered in order by a single worker started with Run.
type TelegramSink struct {
	cfg     TelegramConfig
	client  *http.Client
	limiter *rate.Limiter
	queue   chan message
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewTelegramSink(cfg TelegramConfig, logger *zap.Logger, m *metrics.Metrics) *TelegramSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.APIBase == "" {
		cfg.APIBase = DefaultAPIBase
	}
	cfg.APIBase = strings.TrimRight(cfg.APIBase, "/")
	if cfg.ExplorerTxURL == "" {
		cfg.ExplorerTxURL = DefaultExplorerTxURL
	}
	if cfg.Rate <= 0 {
		cfg.Rate = DefaultRate
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &TelegramSink{
		cfg:     cfg,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(cfg.Rate), 1),
		queue:   make(chan message, cfg.QueueSize),
		logger:  logger,
		metrics: m,
	}
}

// Send enqueues a message. A full queue drops it.
func (s *TelegramSink) Send(text string, correlationID string) {
	select {
	case s.queue <- message{text: text, correlationID: correlationID}:
	default:
		s.metrics.Notification("dropped")
		s.logger.Warn("telegram queue full, message dropped", zap.String("tx", correlationID))
	}
}

// Run delivers queued messages until ctx is cancelled.
func (s *TelegramSink) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-s.queue:
			s.deliver(ctx, msg)
		}
	}
}

func (s *TelegramSink) deliver(ctx context.Context, msg message) {
	for i, chunk := range SplitChunks(msg.text, s.cfg.ChunkSize) {
		if err := s.limiter.Wait(ctx); err != nil {
			return
		}
		withButton := i == 0 && msg.correlationID != ""
		if err := s.post(ctx, chunk, msg.correlationID, withButton); err != nil {
			s.metrics.Notification("failed")
			s.logger.Warn("telegram send failed", zap.String("tx", msg.correlationID), zap.Int("chunk", i), zap.Error(err))
			continue
		}
		s.metrics.Notification("sent")
	}
}

type sendMessageRequest struct {
	ChatID                string       `json:"chat_id"`
	Text                  string       `json:"text"`
	ParseMode             string       `json:"parse_mode"`
	DisableWebPagePreview bool         `json:"disable_web_page_preview"`
	ReplyMarkup           *replyMarkup `json:"reply_markup,omitempty"`
}

type replyMarkup struct {
	InlineKeyboard [][]inlineButton `json:"inline_keyboard"`
}

type inlineButton struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

func (s *TelegramSink) post(ctx context.Context, text, correlationID string, withButton bool) error {
	body := sendMessageRequest{
		ChatID:                s.cfg.ChatID,
		Text:                  text,
		ParseMode:             "HTML",
		DisableWebPagePreview: true,
	}
	if withButton {
		body.ReplyMarkup = &replyMarkup{
			InlineKeyboard: [][]inlineButton{{{Text: buttonText, URL: s.cfg.ExplorerTxURL + correlationID}}},
		}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.cfg.APIBase, s.cfg.Token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post sendMessage: %s", s.redact(err.Error()))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("sendMessage status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// redact hides the bot token, which is part of the request URL.
func (s *TelegramSink) redact(text string) string {
	if s.cfg.Token == "" {
		return text
	}
	return strings.ReplaceAll(text, s.cfg.Token, "***")
}
