// Package influx provides the InfluxDB client for time-series metrics of
// the vertad services: per-height difficulty, retarget swings, and chain
// tip progression.
package influx

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Client wraps InfluxDB operations for time-series metrics
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	queryAPI api.QueryAPI
	bucket   string
	org      string
}

// Config holds InfluxDB connection configuration
type Config struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// NewClient creates a new InfluxDB client
func NewClient(cfg *Config) (*Client, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	health, err := client.Health(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check InfluxDB health: %w", err)
	}

	if health.Status != "pass" {
		msg := ""
		if health.Message != nil {
			msg = *health.Message
		}
		return nil, fmt.Errorf("InfluxDB health check failed: %s", msg)
	}

	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)
	queryAPI := client.QueryAPI(cfg.Org)

	return &Client{
		client:   client,
		writeAPI: writeAPI,
		queryAPI: queryAPI,
		bucket:   cfg.Bucket,
		org:      cfg.Org,
	}, nil
}

// Close closes the InfluxDB connection
func (c *Client) Close() {
	c.writeAPI.Flush()
	c.client.Close()
}

// Health checks InfluxDB connectivity
func (c *Client) Health(ctx context.Context) error {
	health, err := c.client.Health(ctx)
	if err != nil {
		return fmt.Errorf("failed to check health: %w", err)
	}

	if health.Status != "pass" {
		msg := ""
		if health.Message != nil {
			msg = *health.Message
		}
		return fmt.Errorf("health check failed: %s", msg)
	}

	return nil
}

// Consensus metrics

// WriteTargetMetric writes the computed next target for a height
func (c *Client) WriteTargetMetric(network string, height int64, bits uint32, difficulty float64, isRetarget bool) {
	tags := map[string]string{
		"network":  network,
		"retarget": fmt.Sprintf("%t", isRetarget),
	}

	fields := map[string]interface{}{
		"height":     height,
		"bits":       int64(bits),
		"difficulty": difficulty,
	}

	point := write.NewPoint("next_target", tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WriteRetargetMetric writes a difficulty adjustment event
func (c *Client) WriteRetargetMetric(network string, height int64, oldBits, newBits uint32, actualTimespan, targetTimespan int64) {
	tags := map[string]string{
		"network": network,
	}

	// Swing above 1.0 means blocks came slower than nominal and the
	// difficulty dropped
	swing := float64(actualTimespan) / float64(targetTimespan)

	fields := map[string]interface{}{
		"height":          height,
		"old_bits":        int64(oldBits),
		"new_bits":        int64(newBits),
		"actual_timespan": actualTimespan,
		"target_timespan": targetTimespan,
		"swing":           swing,
	}

	point := write.NewPoint("retarget", tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WriteChainTipMetric writes the best tip the follower has connected
func (c *Client) WriteChainTipMetric(network string, height int64, difficulty float64, blockTime int64) {
	tags := map[string]string{
		"network": network,
	}

	fields := map[string]interface{}{
		"height":     height,
		"difficulty": difficulty,
		"block_time": blockTime,
		"lag_secs":   time.Now().Unix() - blockTime,
	}

	point := write.NewPoint("chain_tip", tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// Flush forces buffered points to be written
func (c *Client) Flush() {
	c.writeAPI.Flush()
}
