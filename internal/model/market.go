package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID      int             `json:"id"`
	Email   string          `json:"email"`
	Balance decimal.Decimal `json:"balance"`
}

type Item struct {
	ID   int             `json:"id"`
	Name string          `json:"name"`
	Cost decimal.Decimal `json:"cost"`
}

// UserItem links a user to an item they bought. At most one row exists
// per (user, item) pair.
type UserItem struct {
	UserID      int       `json:"user_id"`
	ItemID      int       `json:"item_id"`
	PurchasedAt time.Time `json:"purchased_at"`
}

// TodayPurchase is a row of the today's-purchases report.
type TodayPurchase struct {
	UserID      int       `json:"user_id"`
	UserEmail   string    `json:"user_email"`
	ItemID      int       `json:"item_id"`
	ItemName    string    `json:"item_name"`
	PurchasedAt time.Time `json:"purchased_at"`
}

// DailyItemCount is the number of purchases of one item on one calendar day.
type DailyItemCount struct {
	Year     int
	ItemID   int
	ItemName string
	Day      time.Time
	Count    int
}

// PopularItem is a row of the top-popular-items report: the highest number
// of purchases of the item on any single day of the year.
type PopularItem struct {
	Year                int    `json:"year"`
	ItemID              int    `json:"item_id"`
	ItemName            string `json:"item_name"`
	PeakDailyPopularity int    `json:"peak_daily_popularity"`
}
