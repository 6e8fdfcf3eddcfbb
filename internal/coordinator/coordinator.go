package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"pantry-sync/internal/api"
	"pantry-sync/internal/budget"
	"pantry-sync/internal/cache"
)

// Coordinator turns user intents into exactly one network mutation each,
// refreshes exactly the snapshot keys the mutation could have changed, and
// notifies the collaborators that depend on the result. It also owns the
// session's current collection selection; nothing in the engine lives in
// package-level state.
type Coordinator struct {
	client   api.Client
	store    *cache.Store
	debounce *Debouncer
	notifier Notifier

	onFinancialSummaryChanged FinancialSummaryHook

	mu                  sync.Mutex
	currentCollectionID string
}

// NewCoordinator wires the mutation coordinator. The financial hook may be
// nil when no summary view exists.
func NewCoordinator(client api.Client, store *cache.Store, notifier Notifier, hook FinancialSummaryHook, debounceWindow time.Duration) *Coordinator {
	return &Coordinator{
		client:                    client,
		store:                     store,
		debounce:                  NewDebouncer(debounceWindow),
		notifier:                  notifier,
		onFinancialSummaryChanged: hook,
	}
}

// SetCurrentCollection records which collection the session is working in.
func (c *Coordinator) SetCurrentCollection(collectionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentCollectionID = collectionID
}

// CurrentCollection returns the session's selected collection, or "".
func (c *Coordinator) CurrentCollection() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentCollectionID
}

// --- Mutations ---

// CreateCollection creates a new list or order. Vendor and budget are the
// secondary label variants; either may be zero.
func (c *Coordinator) CreateCollection(ctx context.Context, name, vendor string, budgetAmount float64) error {
	if strings.TrimSpace(name) == "" {
		return c.rejectValidation(&ValidationError{Field: "name", Reason: "is required"})
	}
	if budgetAmount < 0 {
		return c.rejectValidation(&ValidationError{Field: "budget", Reason: "must not be negative"})
	}
	if !c.debounce.Allow("create_collection:" + name + ":" + vendor) {
		return nil
	}

	body := map[string]any{"name": name}
	if vendor != "" {
		body["vendor"] = vendor
	}
	if budgetAmount > 0 {
		body["budget"] = budgetAmount
	}
	if _, err := c.client.Send(ctx, http.MethodPost, "/collections", body); err != nil {
		return c.reportFailure("create list", err)
	}

	c.notifier.Notify("List created successfully", SeveritySuccess)
	c.refreshCollections(ctx)
	c.signalFinancialSummary()
	return nil
}

// EditCollection renames a collection and/or changes its budget.
func (c *Coordinator) EditCollection(ctx context.Context, collectionID, name string, budgetAmount float64) error {
	if strings.TrimSpace(name) == "" {
		return c.rejectValidation(&ValidationError{Field: "name", Reason: "is required"})
	}
	if budgetAmount < 0 {
		return c.rejectValidation(&ValidationError{Field: "budget", Reason: "must not be negative"})
	}
	if !c.debounce.Allow("edit_collection:" + collectionID) {
		return nil
	}

	body := map[string]any{"name": name, "budget": budgetAmount}
	if _, err := c.client.Send(ctx, http.MethodPut, "/collections/"+collectionID+"/edit", body); err != nil {
		return c.reportFailure("edit list", err)
	}

	c.notifier.Notify("List updated successfully", SeveritySuccess)
	c.refreshCollections(ctx)
	c.signalFinancialSummary()
	return nil
}

// SaveCollection archives an active collection (status active -> saved).
func (c *Coordinator) SaveCollection(ctx context.Context, collectionID string) error {
	if !c.debounce.Allow("save_collection:" + collectionID) {
		return nil
	}

	if _, err := c.client.Send(ctx, http.MethodPut, "/collections/"+collectionID+"/save", nil); err != nil {
		return c.reportFailure("save list", err)
	}

	c.notifier.Notify("List saved successfully", SeveritySuccess)
	c.refreshCollections(ctx)
	return nil
}

// ShareCollection grants a collaborator access by email.
func (c *Coordinator) ShareCollection(ctx context.Context, collectionID, email string) error {
	if !strings.Contains(email, "@") {
		return c.rejectValidation(&ValidationError{Field: "email", Reason: "must be a valid address"})
	}
	if !c.debounce.Allow("share_collection:" + collectionID + ":" + email) {
		return nil
	}

	body := map[string]any{"email": email}
	if _, err := c.client.Send(ctx, http.MethodPost, "/collections/"+collectionID+"/share", body); err != nil {
		return c.reportFailure("share list", err)
	}

	c.notifier.Notify("List shared successfully", SeveritySuccess)
	c.refreshCollections(ctx)
	return nil
}

// AddItem appends a line item to a collection. An empty status defaults to
// to_buy server-side.
func (c *Coordinator) AddItem(ctx context.Context, collectionID string, item budget.LineItem) error {
	if vErr := validateItemFields(item.Name, item.Quantity, item.UnitPrice); vErr != nil {
		return c.rejectValidation(vErr)
	}
	if vErr := validateItemStatus(item.Status); vErr != nil {
		return c.rejectValidation(vErr)
	}
	if !c.debounce.Allow("add_item:" + collectionID + ":" + item.Name) {
		return nil
	}

	body := map[string]any{
		"name":     item.Name,
		"quantity": item.Quantity,
		"price":    item.UnitPrice,
	}
	if item.Status != "" {
		body["status"] = item.Status
	}
	if item.Store != "" {
		body["store"] = item.Store
	}
	if _, err := c.client.Send(ctx, http.MethodPost, "/collections/"+collectionID+"/items", body); err != nil {
		return c.reportFailure("add item", err)
	}

	c.notifier.Notify("Item added successfully", SeveritySuccess)
	c.refreshItems(ctx, collectionID)
	c.signalFinancialSummary()
	return nil
}

// UpdateItem changes a single field of an existing line item.
func (c *Coordinator) UpdateItem(ctx context.Context, collectionID, itemID, field string, value any) error {
	normalized, vErr := validateItemUpdate(field, value)
	if vErr != nil {
		return c.rejectValidation(vErr)
	}
	if !c.debounce.Allow("update_item:" + itemID + ":" + field) {
		return nil
	}

	body := map[string]any{"item_id": itemID, field: normalized}
	if _, err := c.client.Send(ctx, http.MethodPut, "/collections/"+collectionID+"/items", body); err != nil {
		return c.reportFailure("update item", err)
	}

	c.notifier.Notify("Item updated successfully", SeveritySuccess)
	c.refreshItems(ctx, collectionID)
	c.signalFinancialSummary()
	return nil
}

// Suggest proposes a line item for a collection.
func (c *Coordinator) Suggest(ctx context.Context, collectionID, name string, quantity int, price float64) error {
	if vErr := validateItemFields(name, quantity, price); vErr != nil {
		return c.rejectValidation(vErr)
	}
	if !c.debounce.Allow("suggest:" + collectionID + ":" + name) {
		return nil
	}

	body := map[string]any{"name": name, "quantity": quantity, "price": price}
	if _, err := c.client.Send(ctx, http.MethodPost, "/collections/"+collectionID+"/suggestions", body); err != nil {
		return c.reportFailure("add suggestion", err)
	}

	c.notifier.Notify("Suggestion added successfully", SeveritySuccess)
	c.refreshSuggestions(ctx, collectionID)
	return nil
}

// ApproveSuggestion promotes a pending suggestion into a real line item.
// Approval adds a spend line, so the financial hook fires.
func (c *Coordinator) ApproveSuggestion(ctx context.Context, collectionID, suggestionID string) error {
	if !c.debounce.Allow("approve:" + suggestionID) {
		return nil
	}

	path := "/collections/" + collectionID + "/suggestions/" + suggestionID + "/approve"
	if _, err := c.client.Send(ctx, http.MethodPost, path, nil); err != nil {
		return c.reportFailure("approve suggestion", err)
	}

	c.notifier.Notify("Suggestion approved", SeveritySuccess)
	c.refreshSuggestions(ctx, collectionID)
	c.refreshItems(ctx, collectionID)
	c.signalFinancialSummary()
	return nil
}

// CreateMealPlan stores a meal plan. When deriveCollection is set the server
// also creates a collection pre-filled with the plan's ingredients.
func (c *Coordinator) CreateMealPlan(ctx context.Context, plan budget.MealPlan, deriveCollection bool) error {
	if strings.TrimSpace(plan.Name) == "" {
		return c.rejectValidation(&ValidationError{Field: "name", Reason: "is required"})
	}
	if len(plan.Ingredients) == 0 {
		return c.rejectValidation(&ValidationError{Field: "ingredients", Reason: "must not be empty"})
	}
	for _, ing := range plan.Ingredients {
		if vErr := validateItemFields(ing.Name, ing.Quantity, ing.UnitPrice); vErr != nil {
			return c.rejectValidation(vErr)
		}
	}
	if !c.debounce.Allow("create_meal_plan:" + plan.Name) {
		return nil
	}

	body := map[string]any{
		"name":               plan.Name,
		"ingredients":        plan.Ingredients,
		"auto_generate_list": deriveCollection,
	}
	if plan.Budget > 0 {
		body["budget"] = plan.Budget
	}
	if _, err := c.client.Send(ctx, http.MethodPost, "/meal_plans", body); err != nil {
		return c.reportFailure("create meal plan", err)
	}

	c.notifier.Notify("Meal plan created", SeveritySuccess)
	c.refreshKeys(ctx, refresh{path: "/meal_plans", key: budget.KeyMealPlans})
	if deriveCollection {
		c.refreshCollections(ctx)
		c.signalFinancialSummary()
	}
	return nil
}

// ErrExportAlreadyRequested reports an export repeat inside the suppression
// window. Callers must not treat it as an empty document.
var ErrExportAlreadyRequested = errors.New("an export for this collection was just requested")

// ExportCollection fetches the collection's export document as raw bytes.
// A repeat inside the debounce window makes no network call.
func (c *Coordinator) ExportCollection(ctx context.Context, collectionID string) ([]byte, error) {
	if !c.debounce.Allow("export:" + collectionID) {
		return nil, ErrExportAlreadyRequested
	}

	blob, err := c.client.SendBinary(ctx, http.MethodGet, "/collections/"+collectionID+"/export")
	if err != nil {
		return nil, c.reportFailure("export list", err)
	}
	c.notifier.Notify("Export ready", SeveritySuccess)
	return blob, nil
}

// --- Reads ---

// Collections lists collections filtered by status, falling back to the
// last snapshot when the fetch fails.
func (c *Coordinator) Collections(ctx context.Context, status string) ([]budget.Collection, error) {
	payload, err := c.readThrough(ctx, "/collections?status="+status, budget.CollectionsKey(status))
	if payload == nil {
		return nil, err
	}
	var collections []budget.Collection
	if err := json.Unmarshal(payload, &collections); err != nil {
		return nil, fmt.Errorf("failed to decode collections: %w", err)
	}
	return collections, nil
}

// CollectionDetails fetches a single collection's full view, items included,
// with snapshot fallback.
func (c *Coordinator) CollectionDetails(ctx context.Context, collectionID string) (*budget.Collection, error) {
	payload, err := c.readThrough(ctx, "/collections/"+collectionID, budget.CollectionKey(collectionID))
	if payload == nil {
		return nil, err
	}
	var collection budget.Collection
	if err := json.Unmarshal(payload, &collection); err != nil {
		return nil, fmt.Errorf("failed to decode collection details: %w", err)
	}
	return &collection, nil
}

// Items lists a collection's line items with snapshot fallback.
func (c *Coordinator) Items(ctx context.Context, collectionID string) ([]budget.LineItem, error) {
	payload, err := c.readThrough(ctx, "/collections/"+collectionID+"/items", budget.ItemsKey(collectionID))
	if payload == nil {
		return nil, err
	}
	var items []budget.LineItem
	if err := json.Unmarshal(payload, &items); err != nil {
		return nil, fmt.Errorf("failed to decode items: %w", err)
	}
	return items, nil
}

// Suggestions lists a collection's pending suggestions with snapshot fallback.
func (c *Coordinator) Suggestions(ctx context.Context, collectionID string) ([]budget.Suggestion, error) {
	payload, err := c.readThrough(ctx, "/collections/"+collectionID+"/suggestions", budget.SuggestionsKey(collectionID))
	if payload == nil {
		return nil, err
	}
	var suggestions []budget.Suggestion
	if err := json.Unmarshal(payload, &suggestions); err != nil {
		return nil, fmt.Errorf("failed to decode suggestions: %w", err)
	}
	return suggestions, nil
}

// MealPlans lists the user's meal plans with snapshot fallback.
func (c *Coordinator) MealPlans(ctx context.Context) ([]budget.MealPlan, error) {
	payload, err := c.readThrough(ctx, "/meal_plans", budget.KeyMealPlans)
	if payload == nil {
		return nil, err
	}
	var plans []budget.MealPlan
	if err := json.Unmarshal(payload, &plans); err != nil {
		return nil, fmt.Errorf("failed to decode meal plans: %w", err)
	}
	return plans, nil
}

// PredictiveSuggestions lists server-computed shopping hints with snapshot
// fallback.
func (c *Coordinator) PredictiveSuggestions(ctx context.Context) ([]budget.PredictiveSuggestion, error) {
	payload, err := c.readThrough(ctx, "/predictive_suggestions", budget.KeyPredictiveSuggestions)
	if payload == nil {
		return nil, err
	}
	var hints []budget.PredictiveSuggestion
	if err := json.Unmarshal(payload, &hints); err != nil {
		return nil, fmt.Errorf("failed to decode predictive suggestions: %w", err)
	}
	return hints, nil
}

// PriceHistory fetches the purchase history for an item name. Always live,
// never cached.
func (c *Coordinator) PriceHistory(ctx context.Context, itemName string) (*budget.PriceHistory, error) {
	raw, err := c.client.Send(ctx, http.MethodGet, "/price_history/"+url.PathEscape(itemName), nil)
	if err != nil {
		return nil, c.reportFailure("load price history", err)
	}
	var history budget.PriceHistory
	if err := json.Unmarshal(raw, &history); err != nil {
		return nil, fmt.Errorf("failed to decode price history: %w", err)
	}
	return &history, nil
}

// --- Deletion lifecycle (invoked by the deletion watcher) ---

// DeletionProgress relays the server's authoritative remaining time.
func (c *Coordinator) DeletionProgress(collectionID string, remainingSeconds int) {
	c.notifier.Notify(fmt.Sprintf("Deleting in %d seconds", remainingSeconds), SeverityInfo)
}

// DeletionCommitted purges the deleted collection from the mirror, clears
// the selection if it pointed at it, and refreshes the dependent views.
func (c *Coordinator) DeletionCommitted(collectionID string) {
	ctx := context.Background()

	if err := c.store.PurgeCollection(ctx, collectionID); err != nil {
		log.Printf("Warning: failed to purge deleted collection %s: %v", collectionID, err)
	}
	// Drop the listing snapshots too: a failed refresh must not resurrect
	// the deleted collection from stale data.
	for _, key := range []string{budget.KeyCollectionsActive, budget.KeyCollectionsSaved} {
		if err := c.store.Invalidate(ctx, key); err != nil {
			log.Printf("Warning: failed to invalidate %s: %v", key, err)
		}
	}

	c.mu.Lock()
	if c.currentCollectionID == collectionID {
		c.currentCollectionID = ""
	}
	c.mu.Unlock()

	c.notifier.Notify("List deleted", SeveritySuccess)
	c.refreshCollections(ctx)
	c.signalFinancialSummary()
}

// DeletionCancelled leaves the collection cached with its prior status.
func (c *Coordinator) DeletionCancelled(collectionID string) {
	c.notifier.Notify("Deletion cancelled", SeverityInfo)
	c.refreshCollections(context.Background())
}

// DeletionFailed is the fail-safe path: the server's last confirmed state
// stands and nothing is purged.
func (c *Coordinator) DeletionFailed(collectionID string, err error) {
	_ = c.reportFailure("check deletion status", err)
}

// --- internals ---

// readThrough fetches path and snapshots the result under key. On transport
// failure it serves the last snapshot instead; the error is returned only
// when there is no snapshot to fall back to.
func (c *Coordinator) readThrough(ctx context.Context, path, key string) ([]byte, error) {
	raw, err := c.client.Send(ctx, http.MethodGet, path, nil)
	if err == nil {
		if putErr := c.store.Put(ctx, key, raw); putErr != nil {
			log.Printf("Warning: failed to snapshot %s: %v", key, putErr)
		}
		return raw, nil
	}

	if api.IsInsufficientAuthority(err) {
		c.notifier.Notify("Insufficient credits for this action", SeverityDanger)
	} else {
		c.notifier.Notify("Live data unavailable, showing last saved copy", SeverityWarning)
	}

	snap, getErr := c.store.Get(ctx, key)
	if getErr != nil {
		log.Printf("Warning: failed to read snapshot %s: %v", key, getErr)
		return nil, err
	}
	if snap != nil {
		return snap.Payload, nil
	}
	return nil, err
}

type refresh struct {
	path string
	key  string
}

// refreshKeys refetches the given snapshots after a successful mutation.
// A refresh failure keeps the previous snapshot and warns once.
func (c *Coordinator) refreshKeys(ctx context.Context, refreshes ...refresh) {
	warned := false
	for _, r := range refreshes {
		raw, err := c.client.Send(ctx, http.MethodGet, r.path, nil)
		if err != nil {
			log.Printf("Warning: failed to refresh %s: %v", r.key, err)
			if !warned {
				c.notifier.Notify("Live data unavailable, showing last saved copy", SeverityWarning)
				warned = true
			}
			continue
		}
		if err := c.store.Put(ctx, r.key, raw); err != nil {
			log.Printf("Warning: failed to snapshot %s: %v", r.key, err)
		}
	}
}

func (c *Coordinator) refreshCollections(ctx context.Context) {
	c.refreshKeys(ctx,
		refresh{path: "/collections?status=" + budget.StatusActive, key: budget.KeyCollectionsActive},
		refresh{path: "/collections?status=" + budget.StatusSaved, key: budget.KeyCollectionsSaved},
	)
}

func (c *Coordinator) refreshItems(ctx context.Context, collectionID string) {
	c.refreshKeys(ctx, refresh{
		path: "/collections/" + collectionID + "/items",
		key:  budget.ItemsKey(collectionID),
	})
}

func (c *Coordinator) refreshSuggestions(ctx context.Context, collectionID string) {
	c.refreshKeys(ctx, refresh{
		path: "/collections/" + collectionID + "/suggestions",
		key:  budget.SuggestionsKey(collectionID),
	})
}

func (c *Coordinator) rejectValidation(vErr *ValidationError) error {
	c.notifier.Notify("Please provide "+vErr.Field+": "+vErr.Reason, SeverityWarning)
	return vErr
}

// reportFailure surfaces a transport failure. Authority errors get their own
// message; no cache mutation happens on any failure path.
func (c *Coordinator) reportFailure(action string, err error) error {
	if api.IsInsufficientAuthority(err) {
		c.notifier.Notify("Insufficient credits for this action", SeverityDanger)
	} else {
		log.Printf("Failed to %s: %v", action, err)
		c.notifier.Notify("An error occurred, please try again", SeverityDanger)
	}
	return err
}

func (c *Coordinator) signalFinancialSummary() {
	if c.onFinancialSummaryChanged != nil {
		c.onFinancialSummaryChanged()
	}
}
