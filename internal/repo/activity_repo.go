package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/infolock/server/internal/model"
)

type activityRepo struct {
	db *sql.DB
}

// NewActivityRepo creates an ActivityRepo backed by the activity_log table
func NewActivityRepo(db *sql.DB) ActivityRepo {
	return &activityRepo{db: db}
}

// Record appends an entry. Location and device are stored as JSONB.
func (r *activityRepo) Record(ctx context.Context, entry model.ActivityEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}

	var location any
	if entry.Location != nil {
		b, err := json.Marshal(entry.Location)
		if err != nil {
			return fmt.Errorf("marshal location: %w", err)
		}
		location = string(b)
	}
	device, err := json.Marshal(entry.Device)
	if err != nil {
		return fmt.Errorf("marshal device: %w", err)
	}

	var ownerKind sql.NullString
	var ownerID uuid.NullUUID
	if entry.Principal != nil {
		ownerKind = sql.NullString{String: string(entry.Principal.Kind), Valid: true}
		ownerID = uuid.NullUUID{UUID: entry.Principal.ID, Valid: true}
	}

	query := `
		INSERT INTO activity_log (id, owner_kind, owner_id, email, action, ip_address, user_agent, location, device, success, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = r.db.ExecContext(ctx, query,
		entry.ID,
		ownerKind,
		ownerID,
		entry.Email,
		string(entry.Action),
		entry.IPAddress,
		entry.UserAgent,
		location,
		string(device),
		entry.Success,
		entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to record activity: %w", err)
	}
	return nil
}
