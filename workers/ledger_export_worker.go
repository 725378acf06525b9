// workers/ledger_export_worker.go
package workers

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"strconv"
	"time"

	"treasure-dig-system/models"
	"treasure-dig-system/utils"

	"gorm.io/gorm"
)

// LedgerExportWorker periodically snapshots the append-only box ledger to
// CSV and uploads it to R2 for offline audit. Read-only against the ledger.
type LedgerExportWorker struct {
	DB       *gorm.DB
	Interval time.Duration
}

func NewLedgerExportWorker(db *gorm.DB, interval time.Duration) *LedgerExportWorker {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &LedgerExportWorker{DB: db, Interval: interval}
}

func (w *LedgerExportWorker) Start(ctx context.Context) {
	log.Println("🔁 Starting Ledger Export Worker (box_ledger_entries → R2)…")
	go w.run(ctx)
}

func (w *LedgerExportWorker) run(ctx context.Context) {
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.exportOnce(); err != nil {
				log.Printf("❌ Ledger export failed: %v", err)
			}
		case <-ctx.Done():
			log.Println("⏹️ Ledger Export Worker stopped")
			return
		}
	}
}

func (w *LedgerExportWorker) exportOnce() error {
	var entries []models.BoxLedgerEntry
	if err := w.DB.Order("created_at ASC, id ASC").Find(&entries).Error; err != nil {
		return fmt.Errorf("failed to load ledger entries: %w", err)
	}

	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	_ = cw.Write([]string{"id", "box_id", "kind", "amount", "dig_id", "user_id", "price_usd", "created_at"})
	for _, e := range entries {
		digID := ""
		if e.DigID != nil {
			digID = *e.DigID
		}
		price := ""
		if e.PriceUSD != nil {
			price = strconv.FormatFloat(*e.PriceUSD, 'f', -1, 64)
		}
		_ = cw.Write([]string{
			e.ID,
			e.BoxID,
			string(e.Kind),
			strconv.FormatFloat(e.Amount, 'f', -1, 64),
			digID,
			e.UserID,
			price,
			e.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to encode ledger CSV: %w", err)
	}

	key := fmt.Sprintf("ledger-exports/%s.csv", time.Now().UTC().Format("2006-01-02T15-04-05"))
	url, err := utils.UploadBytesToR2(buf.Bytes(), key, "text/csv")
	if err != nil {
		return err
	}

	log.Printf("✅ Exported %d ledger entries to %s", len(entries), url)
	return nil
}
