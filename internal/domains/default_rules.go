package domains

import (
	"time"

	"github.com/google/uuid"

	"github.com/fintuitive/fintuitive/internal/model"
)

// builtinRule is the declarative form of a shipped default rule.
type builtinRule struct {
	payload    model.RulePayload
	key        string
	confidence float64
	priority   int
}

var builtinRules = map[string][]builtinRule{
	ModuleCategory: {
		{key: "starbucks", payload: model.CategoryPayload{Merchant: "starbucks", Category: "Dining"}, confidence: 0.85, priority: 5},
		{key: "mcdonald", payload: model.CategoryPayload{Merchant: "mcdonald", Category: "Dining"}, confidence: 0.85, priority: 5},
		{key: "uber eats", payload: model.CategoryPayload{Merchant: "uber eats", Category: "Dining"}, confidence: 0.8, priority: 5},
		{key: "whole foods", payload: model.CategoryPayload{Merchant: "whole foods", Category: "Groceries"}, confidence: 0.9, priority: 5},
		{key: "safeway", payload: model.CategoryPayload{Merchant: "safeway", Category: "Groceries"}, confidence: 0.9, priority: 5},
		{key: "trader joe", payload: model.CategoryPayload{Merchant: "trader joe", Category: "Groceries"}, confidence: 0.9, priority: 5},
		{key: "shell", payload: model.CategoryPayload{Merchant: "shell", Category: "Transportation"}, confidence: 0.8, priority: 5},
		{key: "chevron", payload: model.CategoryPayload{Merchant: "chevron", Category: "Transportation"}, confidence: 0.8, priority: 5},
		{key: "uber", payload: model.CategoryPayload{Merchant: "uber", Category: "Transportation"}, confidence: 0.7, priority: 4},
		{key: "netflix", payload: model.CategoryPayload{Merchant: "netflix", Category: "Entertainment"}, confidence: 0.95, priority: 5},
		{key: "spotify", payload: model.CategoryPayload{Merchant: "spotify", Category: "Entertainment"}, confidence: 0.95, priority: 5},
		{key: "amazon", payload: model.CategoryPayload{Merchant: "amazon", Category: "Shopping"}, confidence: 0.7, priority: 4},
		{key: "target", payload: model.CategoryPayload{Merchant: "target", Category: "Shopping"}, confidence: 0.75, priority: 4},
		{key: "walgreens", payload: model.CategoryPayload{Merchant: "walgreens", Category: "Health"}, confidence: 0.8, priority: 5},
		{key: "cvs", payload: model.CategoryPayload{Merchant: "cvs", Category: "Health"}, confidence: 0.8, priority: 5},
		{key: "comcast", payload: model.CategoryPayload{Merchant: "comcast", Category: "Utilities"}, confidence: 0.9, priority: 5},
		{key: "verizon", payload: model.CategoryPayload{Merchant: "verizon", Category: "Utilities"}, confidence: 0.9, priority: 5},
	},
	ModuleIntent: {
		{key: "balance", payload: model.KeywordPayload{Keywords: []string{"balance"}, Answer: "check_balance"}, confidence: 0.85, priority: 5},
		{key: "spend+much", payload: model.KeywordPayload{Keywords: []string{"spend", "much"}, Answer: "spending_summary"}, confidence: 0.8, priority: 5},
		{key: "budget", payload: model.KeywordPayload{Keywords: []string{"budget"}, Answer: "budget_status"}, confidence: 0.8, priority: 5},
		{key: "save+goal", payload: model.KeywordPayload{Keywords: []string{"save", "goal"}, Answer: "savings_goal"}, confidence: 0.8, priority: 5},
		{key: "bill+due", payload: model.KeywordPayload{Keywords: []string{"bill", "due"}, Answer: "upcoming_bills"}, confidence: 0.85, priority: 5},
		{key: "transfer", payload: model.KeywordPayload{Keywords: []string{"transfer"}, Answer: "transfer_money"}, confidence: 0.8, priority: 5},
	},
	ModuleHabit: {
		{key: "weekday-morning", payload: model.TimeWindowPayload{Answer: "review_spending", StartHour: 7, EndHour: 9}, confidence: 0.6, priority: 3},
		{key: "weekday-evening", payload: model.TimeWindowPayload{Answer: "log_expenses", StartHour: 19, EndHour: 22}, confidence: 0.6, priority: 3},
	},
}

// BuiltinRules returns the shipped default rule set for a module. These seed
// cold-start users when no community set is available; modules without
// shipped defaults return nil.
func BuiltinRules(moduleID string) []model.Rule {
	defs := builtinRules[moduleID]
	if len(defs) == 0 {
		return nil
	}

	now := time.Now()
	rules := make([]model.Rule, 0, len(defs))
	for _, def := range defs {
		rules = append(rules, model.Rule{
			ID:         uuid.NewString(),
			ModuleID:   moduleID,
			Key:        def.key,
			Source:     model.RuleSourceSystemDefault,
			Payload:    def.payload,
			Confidence: def.confidence,
			Priority:   def.priority,
			CreatedAt:  now,
		})
	}
	return rules
}
