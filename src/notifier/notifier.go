// Moltwork notifier: announces bounty lifecycle events from the redis stream
// to a Discord channel.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/redis/go-redis/v9"

	"github.com/moltlabs/moltwork/src/data"
)

type BountyEvent struct {
	Event  string
	Bounty string
	Client string
	Agent  string
	Budget uint64
}

type Notifier struct {
	session   *discordgo.Session
	rdb       *redis.Client
	channelID string
}

var eventStyles = map[string]struct {
	Title string
	Color int
}{
	"bounty_created":   {"New bounty posted", 0x2ecc71},
	"bounty_claimed":   {"Bounty claimed", 0x3498db},
	"bounty_delivered": {"Work delivered", 0x9b59b6},
	"bounty_completed": {"Bounty completed", 0xf1c40f},
	"bounty_disputed":  {"Bounty disputed", 0xe74c3c},
	"bounty_cancelled": {"Bounty cancelled", 0x95a5a6},
}

func (n *Notifier) announce(ev BountyEvent) error {
	style, ok := eventStyles[ev.Event]
	if !ok {
		return nil
	}

	fields := []*discordgo.MessageEmbedField{
		{Name: "Bounty", Value: formatAddress(ev.Bounty), Inline: true},
		{Name: "Client", Value: formatAddress(ev.Client), Inline: true},
	}
	if ev.Agent != "" {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name: "Agent", Value: formatAddress(ev.Agent), Inline: true,
		})
	}
	if ev.Budget > 0 {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name: "Budget", Value: fmt.Sprintf("%.2f", float64(ev.Budget)/1_000_000), Inline: true,
		})
	}

	embed := &discordgo.MessageEmbed{
		Title:     style.Title,
		Color:     style.Color,
		Timestamp: time.Now().Format(time.RFC3339),
		Fields:    fields,
		Footer:    &discordgo.MessageEmbedFooter{Text: "Via Moltwork"},
	}
	_, err := n.session.ChannelMessageSendEmbed(n.channelID, embed)
	return err
}

func (n *Notifier) listen(ctx context.Context) {
	lastID := "$"

	for {
		select {
		case <-ctx.Done():
			return
		default:
			streams, err := n.rdb.XRead(ctx, &redis.XReadArgs{
				Streams: []string{data.StreamBounties, lastID},
				Count:   10,
				Block:   5 * time.Second,
			}).Result()
			if err != nil {
				if err != redis.Nil && ctx.Err() == nil {
					log.Printf("read stream: %v", err)
				}
				continue
			}

			for _, stream := range streams {
				for _, msg := range stream.Messages {
					ev := parseEvent(msg.Values)
					if err := n.announce(ev); err != nil {
						log.Printf("announce %s: %v", ev.Event, err)
					}
					lastID = msg.ID
				}
			}
		}
	}
}

func parseEvent(values map[string]interface{}) BountyEvent {
	var ev BountyEvent
	if s, ok := values["event"].(string); ok {
		ev.Event = s
	}
	if s, ok := values["bounty"].(string); ok {
		ev.Bounty = s
	}
	if s, ok := values["client"].(string); ok {
		ev.Client = s
	}
	if s, ok := values["agent"].(string); ok {
		ev.Agent = s
	}
	if s, ok := values["budget"].(string); ok {
		if b, err := strconv.ParseUint(s, 10, 64); err == nil {
			ev.Budget = b
		}
	}
	return ev
}

func formatAddress(addr string) string {
	if len(addr) > 16 {
		return addr[:8] + "..." + addr[len(addr)-8:]
	}
	return addr
}

func main() {
	token := os.Getenv("DISCORD_TOKEN")
	channelID := os.Getenv("DISCORD_CHANNEL_ID")
	if token == "" || channelID == "" {
		log.Fatalf("DISCORD_TOKEN and DISCORD_CHANNEL_ID are required")
	}
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://localhost:6379/0"
	}

	rdb := data.MustRedis(redisURL)

	session, err := discordgo.New("Bot " + token)
	if err != nil {
		log.Fatalf("discord: %v", err)
	}
	if err := session.Open(); err != nil {
		log.Fatalf("discord open: %v", err)
	}
	defer session.Close()

	ctx, cancel := context.WithCancel(context.Background())
	n := &Notifier{session: session, rdb: rdb, channelID: channelID}
	go n.listen(ctx)

	log.Printf("Moltwork notifier running (channel %s)", channelID)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	cancel()
}
