package control

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Client reports published status updates to a subscriber's control server
type Client struct {
	endpointUrl *url.URL
	log         *zap.Logger
	msgCh       chan Published
	stopCh      chan struct{}
	wg          sync.WaitGroup
	client      *http.Client
	dropped     atomic.Uint64
}

// NewClient creates a new control server client
func NewClient(endpoint string, log *zap.Logger) (*Client, error) {
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = fmt.Sprintf("http://%s", endpoint)
	}

	endpointUrl, err := url.Parse(endpoint)
	if err != nil {
		return nil, err
	}

	return &Client{
		endpointUrl: endpointUrl,
		log:         log,
		msgCh:       make(chan Published, 100),
		stopCh:      make(chan struct{}),
		client:      &http.Client{Timeout: 3 * time.Second},
	}, nil
}

// Notify queues a notification without blocking the caller. Notifications
// are dropped while the queue is full.
func (c *Client) Notify(pub Published) {
	select {
	case c.msgCh <- pub:
	default:
		c.dropped.Add(1)
	}
}

func (c *Client) Dropped() uint64 {
	return c.dropped.Load()
}

// Start begins processing notifications and sending them to the control server
func (c *Client) Start() {
	c.wg.Add(1)
	go c.processMessages()
	c.log.Info("Control client started", zap.String("endpoint", c.endpointUrl.String()))
}

// Stop drains queued notifications and stops the client
func (c *Client) Stop() {
	c.log.Info("Stopping control client")
	close(c.stopCh)
	c.wg.Wait()
	c.log.Info("Control client stopped", zap.Uint64("dropped", c.Dropped()))
}

func (c *Client) processMessages() {
	defer c.wg.Done()

	for {
		select {
		case <-c.stopCh:
			for {
				select {
				case pub := <-c.msgCh:
					c.post(pub)
				default:
					return
				}
			}
		case pub := <-c.msgCh:
			c.post(pub)
		}
	}
}

func (c *Client) post(pub Published) {
	if err := c.postPublished(pub); err != nil {
		c.log.Error("failed to post published notification",
			zap.Error(err),
			zap.String("pub_id", pub.PublisherID),
			zap.Uint64("idx", pub.Idx),
		)
		return
	}

	c.log.Debug("posted published notification",
		zap.String("pub_id", pub.PublisherID),
		zap.Uint64("idx", pub.Idx),
	)
}

func (c *Client) postPublished(pub Published) error {
	data, err := json.Marshal(pub)
	if err != nil {
		return fmt.Errorf("failed to marshal published message: %w", err)
	}

	url := fmt.Sprintf("%s/api/published", c.endpointUrl.String())
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return nil
}
