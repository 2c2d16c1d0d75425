package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"qrattend/internal/batch"
	"qrattend/internal/config"
	"qrattend/internal/ledger"
	"qrattend/internal/notifier"
	"qrattend/internal/queue"
	"qrattend/internal/store"
)

// Worker consumes check-in events and delivers webhook notifications.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "qrattend:checkins")
	}

	records := ledger.NewRepository(db.Client)
	batches := batch.NewRepository(db.Client)
	notify := notifier.New(cfg.WebhookURL, cfg.NotifySkip)

	if cfg.NotifySkip {
		log.Println("notifications disabled (NOTIFY_SKIP=true)")
	}

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for messages...")
	for msg := range messages {
		if msg.Type != "checkin" {
			continue
		}

		id := string(msg.Body)
		log.Printf("processing record %s", id)

		rec, err := records.Get(ctx, id)
		if err != nil || rec == nil {
			log.Printf("fetch record %s failed: %v", id, err)
			continue
		}

		notice := notifier.Notice{
			RecordID:  rec.ID,
			StudentID: rec.StudentID,
			BatchID:   rec.BatchID,
			Day:       rec.Day,
			MarkedAt:  rec.MarkedAt,
		}
		if b, err := batches.Get(ctx, rec.BatchID); err == nil && b != nil {
			notice.BatchName = b.Name
			notice.Institution = b.Institution
		}

		if err := notify.Notify(ctx, notice); err != nil {
			log.Printf("notify failed for %s: %v", id, err)
			continue
		}
		log.Printf("record %s notified", id)

		time.Sleep(10 * time.Millisecond) // Small delay between deliveries
	}

	log.Println("worker stopped")
}
