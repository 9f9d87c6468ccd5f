package ledger

import (
	"context"
	"fmt"
	"time"

	"pitchcam/internal/api"
)

// Offload records one verified and confirmed transfer.
type Offload struct {
	Node        string
	SessionID   string
	CameraID    string
	File        string
	Checksum    string
	Bytes       int64
	ConfirmedAt time.Time
}

// API converts the row to its wire form.
func (o Offload) API() api.Offload {
	return api.Offload{
		Node:        o.Node,
		SessionID:   o.SessionID,
		CameraID:    o.CameraID,
		File:        o.File,
		Checksum:    o.Checksum,
		Bytes:       o.Bytes,
		ConfirmedAt: o.ConfirmedAt.Format(time.RFC3339),
	}
}

// RecordOffload stores a confirmed offload. A repeat confirmation for the
// same session and camera refreshes the row.
func (s *Store) RecordOffload(ctx context.Context, o Offload) error {
	err := s.exec(ctx, `INSERT INTO offloads (node, session_id, camera_id, file, checksum, bytes, confirmed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, camera_id) DO UPDATE SET node = excluded.node, file = excluded.file,
			checksum = excluded.checksum, bytes = excluded.bytes, confirmed_at = excluded.confirmed_at`,
		o.Node, o.SessionID, o.CameraID, o.File, o.Checksum, o.Bytes, s.stamp())
	if err != nil {
		return fmt.Errorf("record offload: %w", err)
	}
	return nil
}

// RecentOffloads returns up to limit offloads, newest first. A non-positive
// limit defaults to 50.
func (s *Store) RecentOffloads(ctx context.Context, limit int) ([]Offload, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT node, session_id, camera_id, file, checksum, bytes, confirmed_at
		FROM offloads ORDER BY confirmed_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list offloads: %w", err)
	}
	defer rows.Close()

	var out []Offload
	for rows.Next() {
		var (
			o         Offload
			confirmed string
		)
		if err := rows.Scan(&o.Node, &o.SessionID, &o.CameraID, &o.File, &o.Checksum, &o.Bytes, &confirmed); err != nil {
			return nil, fmt.Errorf("scan offload: %w", err)
		}
		o.ConfirmedAt = parseTime(confirmed)
		out = append(out, o)
	}
	return out, rows.Err()
}
