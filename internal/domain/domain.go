package domain

import "time"

// Category is a project type (Projekttype) such as "Separering" or
// "Åben Land". The closure-rule variant that applies to a case is
// determined by the name of its category.
type Category struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// Project groups cases under a category.
type Project struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	CategoryID string    `json:"category_id"`
	Folder     string    `json:"folder,omitempty"`
	Closed     bool      `json:"closed"`
	CreatedAt  time.Time `json:"created_at"`
}

// Case is one enforcement/permitting case (Sagsbehandling).
//
// FinishedReported and Closed carry the legacy integer-coded statuses
// straight from storage: nil means the column was never set, and both
// -1 and 1 occur as "closed" codes depending on the category's
// convention. Interpretation of these fields lives in the classify
// package; nothing else in the system should branch on the raw values.
type Case struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	CreatedAt time.Time `json:"created_at"`

	FinishedReported   *int       `json:"finished_reported,omitempty"`
	FinishedReportedAt *time.Time `json:"finished_reported_at,omitempty"`
	Closed             *int       `json:"closed,omitempty"`
	ClosedAt           *time.Time `json:"closed_at,omitempty"`

	// ClosedWithoutReport mirrors the AfslutUdenFærdigmelding column:
	// set when a case was closed without ever being finish-reported.
	ClosedWithoutReport *int `json:"closed_without_report,omitempty"`

	// HasOrder is a boolean-as-string legacy field ("Ja" when an
	// enforcement order has been issued).
	HasOrder      string     `json:"has_order,omitempty"`
	OrderIssuedAt *time.Time `json:"order_issued_at,omitempty"`
	OrderDeadline *time.Time `json:"order_deadline,omitempty"`

	Note           string `json:"note,omitempty"`
	Address        string `json:"address,omitempty"`
	PostalCode     *int   `json:"postal_code,omitempty"`
	ParcelNumber   string `json:"parcel_number,omitempty"`
	PropertyNumber *int   `json:"property_number,omitempty"`
	CaseWorker     string `json:"case_worker,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`

	// CategoryName is populated on reads that join through the
	// project, so the classifier can pick the category's rule variant.
	CategoryName string `json:"category_name,omitempty"`
	ProjectName  string `json:"project_name,omitempty"`
}

// CaseEvent is one entry in a case's event log (Hændelse).
type CaseEvent struct {
	ID      int64     `json:"id"`
	CaseID  string    `json:"case_id"`
	TS      time.Time `json:"ts"`
	Type    string    `json:"type"`
	Note    string    `json:"note,omitempty"`
	ActorID string    `json:"actor_id,omitempty"`
}

// User is an API user loaded from configuration.
type User struct {
	Username string `json:"username"`
	Name     string `json:"name,omitempty"`
	Role     string `json:"role,omitempty"`
}
