package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"

	"lotledger/internal/core/id"
	"lotledger/internal/domain/posting"
	"lotledger/pkg/logger"
)

// CompressionAlgo specifies the compression algorithm used for a payload.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

// AuditEntry is a stored transition event.
type AuditEntry struct {
	ID                id.ID           `db:"id"`
	DocumentID        id.ID           `db:"document_id"`
	DocumentType      string          `db:"document_type"`
	Action            string          `db:"action"`
	ActorID           string          `db:"actor_id"`
	Success           bool            `db:"success"`
	Error             string          `db:"error"`
	Payload           json.RawMessage `db:"payload"`
	PayloadCompressed []byte          `db:"payload_compressed"`
	CompressionAlgo   CompressionAlgo `db:"compression_algo"`
	OccurredAt        time.Time       `db:"occurred_at"`
}

// Compile-time check that AuditLog implements posting.AuditSink.
var _ posting.AuditSink = (*AuditLog)(nil)

// AuditLog persists posting audit events. Record never blocks the posting
// path: the insert runs on its own goroutine with a detached context, and a
// failed insert is logged, not propagated.
type AuditLog struct {
	txm               *TxManager
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int
	writeTimeout      time.Duration
}

// NewAuditLog creates an audit log writing to sys_audit.
func NewAuditLog(txm *TxManager) (*AuditLog, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	return &AuditLog{
		txm:               txm,
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: 10 * 1024,
		writeTimeout:      5 * time.Second,
	}, nil
}

// Record implements posting.AuditSink.
func (l *AuditLog) Record(ctx context.Context, event posting.AuditEvent) {
	entry := l.toEntry(event)

	go func() {
		writeCtx, cancel := context.WithTimeout(context.Background(), l.writeTimeout)
		defer cancel()

		if err := l.insert(writeCtx, entry); err != nil {
			logger.Error(ctx, "audit write failed",
				"document_id", entry.DocumentID,
				"action", entry.Action,
				"error", err,
			)
		}
	}()
}

func (l *AuditLog) toEntry(event posting.AuditEvent) AuditEntry {
	entry := AuditEntry{
		ID:              id.New(),
		DocumentID:      event.DocumentID,
		DocumentType:    event.DocumentType,
		Action:          event.Action,
		ActorID:         event.ActorID,
		Success:         event.Success,
		Error:           event.Error,
		CompressionAlgo: CompressionNone,
		OccurredAt:      event.OccurredAt,
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		// The event is plain data; marshalling cannot realistically fail,
		// but an audit row without payload beats no row at all.
		return entry
	}

	if len(payload) > l.compressThreshold {
		entry.PayloadCompressed = l.encoder.EncodeAll(payload, nil)
		entry.CompressionAlgo = CompressionZstd
	} else {
		entry.Payload = payload
	}

	return entry
}

func (l *AuditLog) insert(ctx context.Context, entry AuditEntry) error {
	sql := `
		INSERT INTO sys_audit (
			id, document_id, document_type, action, actor_id,
			success, error, payload, payload_compressed, compression_algo,
			occurred_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := l.txm.GetQuerier(ctx).Exec(ctx, sql,
		entry.ID, entry.DocumentID, entry.DocumentType, entry.Action, entry.ActorID,
		entry.Success, entry.Error,
		entry.Payload, entry.PayloadCompressed, entry.CompressionAlgo,
		entry.OccurredAt,
	)
	return err
}

// GetByDocument returns the transition trail for one document, newest first.
// Compressed payloads are inflated before return.
func (l *AuditLog) GetByDocument(ctx context.Context, documentID id.ID, limit int) ([]AuditEntry, error) {
	sql := `
		SELECT id, document_id, document_type, action, actor_id,
			   success, error, payload, payload_compressed, compression_algo,
			   occurred_at
		FROM sys_audit
		WHERE document_id = $1
		ORDER BY occurred_at DESC
		LIMIT $2
	`

	rows, err := l.txm.GetQuerier(ctx).Query(ctx, sql, documentID, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit trail: %w", err)
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var e AuditEntry
		err := rows.Scan(
			&e.ID, &e.DocumentID, &e.DocumentType, &e.Action, &e.ActorID,
			&e.Success, &e.Error, &e.Payload, &e.PayloadCompressed, &e.CompressionAlgo,
			&e.OccurredAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}

		if e.CompressionAlgo == CompressionZstd && len(e.PayloadCompressed) > 0 {
			payload, err := l.decoder.DecodeAll(e.PayloadCompressed, nil)
			if err != nil {
				return nil, fmt.Errorf("decompress payload: %w", err)
			}
			e.Payload = payload
			e.PayloadCompressed = nil
		}

		entries = append(entries, e)
	}

	return entries, rows.Err()
}
