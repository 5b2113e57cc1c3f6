package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/mentorslots/libs/kafkax"
	"github.com/segmentio/kafka-go"
)

const topic = "calendar.busy.synced.v1"

type busyEvent struct {
	ExternalID string    `json:"external_id"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	Title      string    `json:"title,omitempty"`
}

type syncedPayload struct {
	AccountID   string      `json:"account_id"`
	WindowStart time.Time   `json:"window_start"`
	WindowEnd   time.Time   `json:"window_end"`
	SyncedAt    time.Time   `json:"synced_at"`
	Events      []busyEvent `json:"events"`
	Error       string      `json:"error,omitempty"`
}

func main() {
	var (
		brokers  = flag.String("brokers", getenv("KAFKA_BROKERS", "localhost:9092"), "comma separated kafka brokers")
		account  = flag.String("account-id", getenv("ACCOUNT_ID", ""), "calendar account id")
		provider = flag.String("provider", getenv("PROVIDER", "google"), "provider label used in external ids")
		days     = flag.Int("days", 30, "sync window length in days")
		hour     = flag.Int("hour", 9, "UTC hour of the simulated busy block tomorrow")
		failWith = flag.String("error", "", "report a failed sync with this message instead of events")
	)
	flag.Parse()

	if strings.TrimSpace(*account) == "" {
		fatal("ACCOUNT_ID is required")
	}
	if *days <= 0 || *hour < 0 || *hour > 23 {
		fatal("days must be positive and hour must be 0-23")
	}

	now := time.Now().UTC()
	payload := syncedPayload{
		AccountID:   *account,
		WindowStart: now.Truncate(24 * time.Hour),
		WindowEnd:   now.Truncate(24*time.Hour).AddDate(0, 0, *days),
		SyncedAt:    now,
		Events:      []busyEvent{},
		Error:       *failWith,
	}
	if *failWith == "" {
		start := time.Date(now.Year(), now.Month(), now.Day()+1, *hour, 0, 0, 0, time.UTC)
		payload.Events = append(payload.Events, busyEvent{
			ExternalID: fmt.Sprintf("%s-sim-%s-%s", *provider, *account, start.Format("20060102T15")),
			StartTime:  start,
			EndTime:    start.Add(time.Hour),
			Title:      "Busy (simulated)",
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		fatal(err.Error())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	writer := &kafka.Writer{
		Addr:         kafka.TCP(kafkax.SplitBrokers(*brokers)...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
	defer writer.Close()

	eventID := uuid.NewString()
	msg := kafkax.NewMessage(ctx, kafkax.EventMeta{EventID: eventID, EventType: topic}, *account, body)
	if err := writer.WriteMessages(ctx, msg); err != nil {
		fatal(err.Error())
	}
	fmt.Printf("published event_id=%s account_id=%s events=%d\n", eventID, *account, len(payload.Events))
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}
