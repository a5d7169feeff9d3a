package models

import "time"

// Goal is a user's daily nutrition target.
type Goal struct {
	UserID    string    `json:"-"`
	Calories  int       `json:"calories" binding:"gte=0,lte=20000"`
	ProteinG  int       `json:"protein_g" binding:"gte=0,lte=2000"`
	CarbsG    int       `json:"carbs_g" binding:"gte=0,lte=2000"`
	FatG      int       `json:"fat_g" binding:"gte=0,lte=2000"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DayGroup is one local calendar day of history, newest first.
type DayGroup struct {
	Date    string           `json:"date"` // YYYY-MM-DD
	Totals  Macros           `json:"totals"`
	Entries []EstimateRecord `json:"entries"`
}

// DaySummary compares a day's totals with the user's goal.
type DaySummary struct {
	Date      string  `json:"date"`
	Totals    Macros  `json:"totals"`
	Goal      *Goal   `json:"goal"`
	Remaining *Macros `json:"remaining"`
	Count     int     `json:"count"`
}
