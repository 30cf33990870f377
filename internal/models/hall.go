package models

// Hall is an exam hall assigned to an exam together with its desk layout.
type Hall struct {
	ID           string `db:"id" json:"id"`
	Name         string `db:"name" json:"name"`
	Rows         int    `db:"rows" json:"rows"`
	Columns      int    `db:"columns" json:"columns"`
	TotalSeats   int    `db:"total_seats" json:"total_seats"`
	SeatsPerDesk int    `db:"seats_per_desk" json:"seats_per_desk"`
}

// Seat is a physical seat inside a hall. Row and column numbers are 1-based.
type Seat struct {
	ID         string `db:"id" json:"id"`
	HallID     string `db:"hall_id" json:"hall_id"`
	SeatNumber string `db:"seat_number" json:"seat_number"`
	RowNumber  int    `db:"row_number" json:"row_number"`
	ColNumber  int    `db:"col_number" json:"col_number"`
	IsUsable   bool   `db:"is_usable" json:"is_usable"`
}

// HallSeats pairs a hall with its usable seats.
type HallSeats struct {
	Hall  Hall
	Seats []Seat
}
