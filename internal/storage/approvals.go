package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrApprovalNotFound is returned when an approval id is unknown or already resolved.
var ErrApprovalNotFound = errors.New("approval not found")

// Approval statuses.
const (
	ApprovalPending  = "pending"
	ApprovalApproved = "approved"
	ApprovalRejected = "rejected"
)

// Approval is a destructive action waiting for an operator decision.
type Approval struct {
	ID          string    `json:"id"`
	Tool        string    `json:"tool"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ApprovalStore persists approvals so a separate process can resolve them.
type ApprovalStore struct {
	db *DB
}

// NewApprovalStore creates a new ApprovalStore.
func NewApprovalStore(db *DB) *ApprovalStore {
	return &ApprovalStore{db: db}
}

// Create records a pending approval and returns it.
func (s *ApprovalStore) Create(tool, description string) (*Approval, error) {
	a := &Approval{
		ID:          uuid.New().String(),
		Tool:        tool,
		Description: description,
		Status:      ApprovalPending,
		CreatedAt:   time.Now(),
	}
	_, err := s.db.conn.Exec(
		`INSERT INTO approvals (id, tool, description, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.Tool, a.Description, a.Status, a.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert approval: %w", err)
	}
	return a, nil
}

// Status returns the current status of an approval.
func (s *ApprovalStore) Status(id string) (string, error) {
	var status string
	err := s.db.conn.QueryRow(`SELECT status FROM approvals WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrApprovalNotFound, id)
	}
	return status, err
}

// Resolve approves or rejects a pending approval.
func (s *ApprovalStore) Resolve(id string, approved bool) error {
	status := ApprovalRejected
	if approved {
		status = ApprovalApproved
	}
	r, err := s.db.conn.Exec(
		`UPDATE approvals SET status = ? WHERE id = ? AND status = ?`, status, id, ApprovalPending,
	)
	if err != nil {
		return err
	}
	if n, _ := r.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrApprovalNotFound, id)
	}
	return nil
}

// Pending lists unresolved approvals, oldest first.
func (s *ApprovalStore) Pending() ([]Approval, error) {
	rows, err := s.db.conn.Query(
		`SELECT id, tool, description, status, created_at FROM approvals WHERE status = ? ORDER BY created_at`,
		ApprovalPending,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Approval
	for rows.Next() {
		var a Approval
		if err := rows.Scan(&a.ID, &a.Tool, &a.Description, &a.Status, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Delete removes an approval whatever its status.
func (s *ApprovalStore) Delete(id string) error {
	_, err := s.db.conn.Exec(`DELETE FROM approvals WHERE id = ?`, id)
	return err
}
