package report

import "time"

// User is an operator sending reports. ID is the sender identity of the chat
// front-end.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	IsAdmin   bool      `json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
}

// WorkReport is one accepted report message, or the part of it under one date
type WorkReport struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Date      string    `json:"date"` // YYYY-MM-DD
	Cars      []Car     `json:"cars"`
	CreatedAt time.Time `json:"created_at"`
}

// Car is a priced vehicle line of a report
type Car struct {
	Plate       string  `json:"plate"`
	Description string  `json:"description"`
	Area        float64 `json:"area"`       // m²
	Cost        int     `json:"cost"`       // materials, rubles
	LaborCost   float64 `json:"labor_cost"` // rubles
	Date        string  `json:"date"`       // date marker in effect for this car
}

// Photo is a stored attachment linked to a report
type Photo struct {
	ID          string    `json:"id"`
	ReportID    string    `json:"report_id"`
	UserID      string    `json:"user_id"`
	Date        string    `json:"date"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	CreatedAt   time.Time `json:"created_at"`
}
