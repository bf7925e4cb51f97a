package expense

// Class is the single expense classification used by every aggregator.
// Re-implementing these checks elsewhere is how totals historically
// drifted apart; call Classify instead.
type Class string

const (
	ClassSystem          Class = "SYSTEM"
	ClassEmployeeDues    Class = "EMPLOYEE_DUES"
	ClassPurchaseRelated Class = "PURCHASE_RELATED"
	ClassGeneral         Class = "GENERAL"
	// ClassExcluded covers records that fall into no bucket, e.g. a
	// pending or rejected ordinary expense.
	ClassExcluded Class = "EXCLUDED"
)

// Classify buckets an expense. Precedence: system > employee dues >
// purchase related > general. General requires the status to be absent or
// approved.
func Classify(e Expense) Class {
	if e.Type == TypeSystem {
		return ClassSystem
	}
	if matchesCategory(e, CategoryEmployeeDues) {
		return ClassEmployeeDues
	}
	if matchesCategory(e, CategoryPurchase) {
		return ClassPurchaseRelated
	}
	if e.Status == "" || e.Status == StatusApproved {
		return ClassGeneral
	}
	return ClassExcluded
}

func matchesCategory(e Expense, marker string) bool {
	if e.Category == marker {
		return true
	}
	if e.Meta == nil {
		return false
	}
	nested, _ := e.Meta["category"].(string)
	return nested == marker
}
