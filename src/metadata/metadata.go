// Package metadata fetches the off-chain JSON blobs that agent and bounty
// records point at. The core only stores URIs; everything here is display
// enrichment and must degrade to zero values instead of failing the read
// path.
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/OneOfOne/xxhash"
	"github.com/microcosm-cc/bluemonday"
	"github.com/redis/go-redis/v9"
)

const (
	maxBodySize = 64 << 10
	cacheTTL    = 5 * time.Minute
)

// AgentMetadata is the off-chain agent profile shape.
type AgentMetadata struct {
	Name             string   `json:"name"`
	Description      string   `json:"description"`
	Skills           []string `json:"skills"`
	Endpoint         string   `json:"endpoint,omitempty"`
	MoltbookUsername string   `json:"moltbookUsername,omitempty"`
}

// BountyMetadata is the off-chain bounty description shape.
type BountyMetadata struct {
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Requirements []string `json:"requirements"`
	Skills       []string `json:"skills"`
}

type Client struct {
	http      *http.Client
	rdb       *redis.Client // nil disables caching
	sanitizer *bluemonday.Policy
}

func NewClient(rdb *redis.Client) *Client {
	return &Client{
		http:      &http.Client{Timeout: 5 * time.Second},
		rdb:       rdb,
		sanitizer: bluemonday.StrictPolicy(),
	}
}

// Agent fetches agent metadata. Missing or broken URIs return the zero
// value; display strings are sanitized before use.
func (c *Client) Agent(ctx context.Context, uri string) AgentMetadata {
	var m AgentMetadata
	if !c.fetch(ctx, uri, &m) {
		return AgentMetadata{}
	}
	m.Name = c.sanitizer.Sanitize(m.Name)
	m.Description = c.sanitizer.Sanitize(m.Description)
	for i, s := range m.Skills {
		m.Skills[i] = c.sanitizer.Sanitize(s)
	}
	return m
}

// Bounty fetches bounty metadata with the same degrade-to-empty contract.
func (c *Client) Bounty(ctx context.Context, uri string) BountyMetadata {
	var m BountyMetadata
	if !c.fetch(ctx, uri, &m) {
		return BountyMetadata{}
	}
	m.Title = c.sanitizer.Sanitize(m.Title)
	m.Description = c.sanitizer.Sanitize(m.Description)
	for i, s := range m.Requirements {
		m.Requirements[i] = c.sanitizer.Sanitize(s)
	}
	for i, s := range m.Skills {
		m.Skills[i] = c.sanitizer.Sanitize(s)
	}
	return m
}

func cacheKey(uri string) string {
	return fmt.Sprintf("meta:%x", xxhash.ChecksumString64(uri))
}

func (c *Client) fetch(ctx context.Context, uri string, out interface{}) bool {
	if uri == "" {
		return false
	}
	key := cacheKey(uri)
	if c.rdb != nil {
		if cached, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
			return json.Unmarshal(cached, out) == nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		log.Printf("metadata: fetch %s: %v", uri, err)
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return false
	}
	if err := json.Unmarshal(body, out); err != nil {
		return false
	}
	if c.rdb != nil {
		if err := c.rdb.Set(ctx, key, body, cacheTTL).Err(); err != nil {
			log.Printf("metadata: cache %s: %v", uri, err)
		}
	}
	return true
}
