package budget

import "time"

// Collection status values as reported by the server.
const (
	StatusActive        = "active"
	StatusSaved         = "saved"
	StatusPendingDelete = "pending_delete"
)

// Line item status values.
const (
	ItemToBuy    = "to_buy"
	ItemInPantry = "in_pantry"
	ItemBought   = "bought"
)

// Collection is a grocery list or a food order. TotalSpent is computed
// server-side from the current line items and is never recalculated locally,
// so concurrent collaborator edits cannot drift the displayed total.
type Collection struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Vendor        string    `json:"vendor,omitempty"`
	Budget        float64   `json:"budget,omitempty"`
	TotalSpent    float64   `json:"total_spent"`
	Status        string    `json:"status"`
	Collaborators []string  `json:"collaborators,omitempty"`
	CreatedAt     time.Time `json:"created_at"`

	// Items is populated only by the single-collection detail endpoint;
	// listings leave it empty.
	Items []LineItem `json:"items,omitempty"`
}

// LineItem belongs to exactly one collection and is removed with it.
type LineItem struct {
	ID           string  `json:"id"`
	CollectionID string  `json:"collection_id"`
	Name         string  `json:"name"`
	Quantity     int     `json:"quantity"`
	UnitPrice    float64 `json:"price"`
	Status       string  `json:"status,omitempty"`
	Store        string  `json:"store,omitempty"`
}

// Suggestion is a proposed line item awaiting approval.
type Suggestion struct {
	ID           string  `json:"id"`
	CollectionID string  `json:"collection_id"`
	Name         string  `json:"name"`
	Quantity     int     `json:"quantity"`
	UnitPrice    float64 `json:"price"`
	Status       string  `json:"status"` // pending | approved
}

// Ingredient is one entry of a meal plan, in plan order.
type Ingredient struct {
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"price"`
}

// MealPlan is independent of collections; the server can derive a new
// collection from its ingredients.
type MealPlan struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Budget      float64      `json:"budget,omitempty"`
	Ingredients []Ingredient `json:"ingredients"`
	CreatedAt   time.Time    `json:"created_at,omitempty"`
}

// PricePoint is one historical purchase of an item.
type PricePoint struct {
	Price float64   `json:"price"`
	Store string    `json:"store"`
	Date  time.Time `json:"date"`
}

// PriceHistory is the server's price report for a single item name.
type PriceHistory struct {
	Prices       []PricePoint `json:"prices"`
	AveragePrice float64      `json:"average_price"`
}

// PredictiveSuggestion is a server-computed shopping hint based on
// purchase frequency.
type PredictiveSuggestion struct {
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"price"`
}

// PendingDeleteStatus is the poll payload during a grace-period deletion.
// RemainingSeconds is authoritative; clients must not run their own clock.
type PendingDeleteStatus struct {
	Pending          bool `json:"pending"`
	RemainingSeconds int  `json:"remaining_seconds"`
}
