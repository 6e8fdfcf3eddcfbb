package budget

// Mirror cache keys. Per-collection data is keyed by collection ID so that
// invalidation after a mutation touches only the collection it changed.
const (
	KeyCollectionsActive     = "collections:active"
	KeyCollectionsSaved      = "collections:saved"
	KeyMealPlans             = "meal_plans"
	KeyPredictiveSuggestions = "predictive_suggestions"
)

// CollectionsKey returns the snapshot key for a collection listing filtered
// by status.
func CollectionsKey(status string) string {
	if status == StatusSaved {
		return KeyCollectionsSaved
	}
	return KeyCollectionsActive
}

// CollectionKey returns the snapshot key for a single collection's details.
func CollectionKey(collectionID string) string {
	return "collection:" + collectionID
}

// ItemsKey returns the snapshot key for a collection's line items.
func ItemsKey(collectionID string) string {
	return "items:" + collectionID
}

// SuggestionsKey returns the snapshot key for a collection's suggestions.
func SuggestionsKey(collectionID string) string {
	return "suggestions:" + collectionID
}
