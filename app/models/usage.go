package models

// UsageStatus summarizes the free-tier bucket for a device.
type UsageStatus struct {
	Limit     int  `json:"limit"`
	Used      int  `json:"used"`
	Remaining *int `json:"remaining"`
	IsPro     bool `json:"isPro"`
}
