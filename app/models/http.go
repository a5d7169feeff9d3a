package models

// Model received from Open Food Facts
type OFFProduct struct {
	ProductName   string         `json:"product_name"`
	ProductNameEN string         `json:"product_name_en"`
	Brands        string         `json:"brands"`
	Nutriments    map[string]any `json:"nutriments"` // values are numbers or numeric strings
}

type OFFResponse struct {
	Status  int         `json:"status"`
	Product *OFFProduct `json:"product"`
}

// Subscriber payload received from RevenueCat
type RCEntitlement struct {
	ExpiresDate *string `json:"expires_date"`
}

type RCSubscriber struct {
	Entitlements map[string]RCEntitlement `json:"entitlements"`
}

type RCResponse struct {
	Subscriber *RCSubscriber `json:"subscriber"`
	Value      *RCResponse   `json:"value"` // some proxies wrap the payload
}
