package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/klauspost/compress/zstd"

	"tindahan/internal/core/id"
	"tindahan/internal/domain/audit"
)

type compressionAlgo string

const (
	compressionNone compressionAlgo = "none"
	compressionZstd compressionAlgo = "zstd"
)

// AuditRecorder persists audit entries, zstd-compressing payloads past
// a threshold. Remit postings carry full recap and receipt snapshots,
// which compress well.
type AuditRecorder struct {
	txManager *TxManager
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder

	compressThreshold int
}

var _ audit.Recorder = (*AuditRecorder)(nil)

// NewAuditRecorder creates the audit recorder.
func NewAuditRecorder(txManager *TxManager) (*AuditRecorder, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &AuditRecorder{
		txManager:         txManager,
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: 4 * 1024,
	}, nil
}

// Record inserts one entry inside the caller's transaction.
func (r *AuditRecorder) Record(ctx context.Context, e *audit.Entry) error {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	algo := compressionNone
	var compressed []byte
	if len(payload) > r.compressThreshold {
		compressed = r.encoder.EncodeAll(payload, nil)
		payload = nil
		algo = compressionZstd
	}

	sql := `
		INSERT INTO audit_log (
			id, action, entity, entity_id, user_id,
			payload, payload_compressed, compression_algo, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = r.txManager.GetQuerier(ctx).Exec(ctx, sql,
		e.ID, e.Action, e.Entity, e.EntityID, e.UserID,
		payload, compressed, algo, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// List returns the entries for one entity, newest first, with payloads
// decompressed.
func (r *AuditRecorder) List(ctx context.Context, entity string, entityID id.ID) ([]*audit.Entry, error) {
	q := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar).
		Select("id", "action", "entity", "entity_id", "user_id",
			"payload", "payload_compressed", "compression_algo", "created_at").
		From("audit_log").
		Where(squirrel.Eq{"entity": entity, "entity_id": entityID}).
		OrderBy("created_at DESC")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build audit query: %w", err)
	}

	rows, err := r.txManager.GetQuerier(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var out []*audit.Entry
	for rows.Next() {
		var (
			e          audit.Entry
			payload    []byte
			compressed []byte
			algo       compressionAlgo
		)
		if err := rows.Scan(&e.ID, &e.Action, &e.Entity, &e.EntityID, &e.UserID,
			&payload, &compressed, &algo, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}

		if algo == compressionZstd && len(compressed) > 0 {
			payload, err = r.decoder.DecodeAll(compressed, nil)
			if err != nil {
				return nil, fmt.Errorf("decompress audit payload: %w", err)
			}
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &e.Payload); err != nil {
				return nil, fmt.Errorf("unmarshal audit payload: %w", err)
			}
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
