// Domain tools exposed to the model.
//
// This file implements the two side-effecting operations the orchestrator
// lets the model request: registering a transaction and querying aggregated
// transactions. Tool failures are returned as results, not errors, so the
// model can compose an apologetic reply instead of crashing the loop.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
	"gorm.io/gorm"

	"github.com/finchat/go-finance-bot/internal/domain"
	"github.com/finchat/go-finance-bot/internal/fx"
	"github.com/finchat/go-finance-bot/internal/repo"
)

const (
	toolRegisterTransaction = "register_transaction"
	toolQueryTransactions   = "query_transactions"

	queryModeSummary = "summary"
	queryModeDetail  = "detail"

	detailListLimit = 20
)

var toolExecutions = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "bot_tool_executions_total",
		Help: "Total number of domain tool executions by tool and status.",
	},
	[]string{"tool", "status"},
)

func init() {
	prometheus.MustRegister(toolExecutions)
}

// toolSchemas declares the JSON schemas the model sees. The argument names
// here are the contract; Execute parses exactly these.
func toolSchemas() []anthropic.ToolUnionParam {
	register := anthropic.ToolParam{
		Name:        toolRegisterTransaction,
		Description: anthropic.String("Register a new expense for the user. Call this once per expense the user reports."),
		InputSchema: anthropic.ToolInputSchemaParam{
			Properties: map[string]any{
				"amount": map[string]any{
					"type":        "number",
					"description": "Expense amount in the original currency, must be positive.",
				},
				"currency": map[string]any{
					"type":        "string",
					"description": "ISO 4217 code of the original currency. Omit to use the user's home currency.",
				},
				"category_hint": map[string]any{
					"type":        "string",
					"description": "Free-text category guess, e.g. 'food' or 'transport'.",
				},
				"description": map[string]any{
					"type":        "string",
					"description": "Short merchant or purchase description.",
				},
			},
			Required: []string{"amount", "description"},
		},
	}

	query := anthropic.ToolParam{
		Name:        toolQueryTransactions,
		Description: anthropic.String("Query the user's registered expenses over a date range, either aggregated by category or as individual transactions."),
		InputSchema: anthropic.ToolInputSchemaParam{
			Properties: map[string]any{
				"date_from": map[string]any{
					"type":        "string",
					"description": "Start date, inclusive, format YYYY-MM-DD (UTC).",
				},
				"date_to": map[string]any{
					"type":        "string",
					"description": "End date, inclusive, format YYYY-MM-DD (UTC).",
				},
				"mode": map[string]any{
					"type":        "string",
					"description": "'summary' groups totals by category; 'detail' lists individual transactions of one category.",
					"enum":        []string{queryModeSummary, queryModeDetail},
				},
				"category_filter": map[string]any{
					"type":        "string",
					"description": "Category name to drill into. Required when mode is 'detail'.",
				},
			},
			Required: []string{"date_from", "date_to", "mode"},
		},
	}

	return []anthropic.ToolUnionParam{
		{OfTool: &register},
		{OfTool: &query},
	}
}

// ToolResult is the outcome of a single tool execution. Message is fed back
// to the model verbatim; Action becomes the stored action_result.
type ToolResult struct {
	Success bool
	Message string
	Action  string
}

// Tools executes the domain tools against the data layer.
type Tools struct {
	DB *gorm.DB
}

// Execute dispatches one tool invocation. Unknown tool names and malformed
// arguments degrade to failed results the model can react to.
func (t *Tools) Execute(ctx context.Context, profile *domain.Profile, name string, input json.RawMessage, rawText string) ToolResult {
	var res ToolResult
	switch name {
	case toolRegisterTransaction:
		res = t.registerTransaction(ctx, profile, input, rawText)
	case toolQueryTransactions:
		res = t.queryTransactions(ctx, profile, input)
	default:
		res = failed(fmt.Sprintf("unknown tool: %s", name))
	}

	status := "ok"
	if !res.Success {
		status = "failed"
	}
	toolExecutions.WithLabelValues(name, status).Inc()
	return res
}

func failed(msg string) ToolResult {
	return ToolResult{Success: false, Message: msg, Action: domain.ActionFailed}
}

type registerArgs struct {
	Amount       float64 `json:"amount"`
	Currency     string  `json:"currency"`
	CategoryHint string  `json:"category_hint"`
	Description  string  `json:"description"`
}

func (t *Tools) registerTransaction(ctx context.Context, profile *domain.Profile, input json.RawMessage, rawText string) ToolResult {
	var args registerArgs
	if err := json.Unmarshal(input, &args); err != nil {
		return failed("invalid register_transaction arguments: " + err.Error())
	}
	if args.Amount <= 0 {
		return failed("amount must be positive")
	}
	currency := strings.ToUpper(strings.TrimSpace(args.Currency))
	if currency == "" {
		currency = profile.HomeCurrency
	}
	desc := strings.TrimSpace(args.Description)
	if desc == "" {
		desc = "Expense"
	}

	snap, err := repo.CurrentSnapshot(ctx, t.DB)
	if err != nil {
		return failed("exchange rates are unavailable right now; the expense was not saved")
	}

	amountHome, err := fx.Convert(args.Amount, currency, profile.HomeCurrency, snap.BaseCurrency, snap.Rates)
	if err != nil {
		if errors.Is(err, fx.ErrRateUnavailable) {
			return failed(fmt.Sprintf("currency %s is not supported; the expense was not saved", currency))
		}
		return failed("could not convert the amount; the expense was not saved")
	}
	amountUSD, err := fx.Convert(args.Amount, currency, "USD", snap.BaseCurrency, snap.Rates)
	if err != nil {
		return failed(fmt.Sprintf("currency %s is not supported; the expense was not saved", currency))
	}

	var categoryID *string
	categoryName := domain.OtherCategoryName
	if cat, err := repo.ResolveCategory(ctx, t.DB, args.CategoryHint); err == nil {
		categoryID = &cat.ID
		categoryName = cat.Name
	}

	txn := &domain.Transaction{
		ProfileID:   profile.ID,
		Amount:      args.Amount,
		Currency:    currency,
		AmountHome:  amountHome,
		AmountUSD:   amountUSD,
		CategoryID:  categoryID,
		Description: desc,
		RawText:     rawText,
		Confirmed:   true,
	}
	if err := repo.CreateTransaction(ctx, t.DB, txn); err != nil {
		return failed("could not save the expense, please try again")
	}

	msg := fmt.Sprintf("Registered %s: %s %s in %s.", desc, fmtAmount(args.Amount), currency, categoryName)
	if !strings.EqualFold(currency, profile.HomeCurrency) {
		msg += fmt.Sprintf(" That is %s %s.", fmtAmount(amountHome), profile.HomeCurrency)
	}
	return ToolResult{Success: true, Message: msg, Action: domain.ActionRegistered}
}

type queryArgs struct {
	DateFrom       string `json:"date_from"`
	DateTo         string `json:"date_to"`
	Mode           string `json:"mode"`
	CategoryFilter string `json:"category_filter"`
}

func (t *Tools) queryTransactions(ctx context.Context, profile *domain.Profile, input json.RawMessage) ToolResult {
	var args queryArgs
	if err := json.Unmarshal(input, &args); err != nil {
		return failed("invalid query_transactions arguments: " + err.Error())
	}

	from, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(args.DateFrom), time.UTC)
	if err != nil {
		return failed("date_from must be formatted YYYY-MM-DD")
	}
	toDay, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(args.DateTo), time.UTC)
	if err != nil {
		return failed("date_to must be formatted YYYY-MM-DD")
	}
	// Inclusive UTC day boundaries: [from 00:00, to+1d 00:00).
	toExcl := toDay.AddDate(0, 0, 1)
	if !toExcl.After(from) {
		return failed("date_to must not be before date_from")
	}

	switch strings.ToLower(strings.TrimSpace(args.Mode)) {
	case queryModeSummary:
		return t.querySummary(ctx, profile, from, toExcl, args)
	case queryModeDetail:
		return t.queryDetail(ctx, profile, from, toExcl, args)
	default:
		return failed("mode must be 'summary' or 'detail'")
	}
}

func (t *Tools) querySummary(ctx context.Context, profile *domain.Profile, from, toExcl time.Time, args queryArgs) ToolResult {
	rows, err := repo.SummarizeByCategory(ctx, t.DB, profile.ID, from, toExcl)
	if err != nil {
		return failed("could not query transactions, please try again")
	}
	if len(rows) == 0 {
		return ToolResult{
			Success: true,
			Message: fmt.Sprintf("No transactions between %s and %s.", args.DateFrom, args.DateTo),
			Action:  domain.ActionQueried,
		}
	}

	var grand float64
	for _, r := range rows {
		grand += r.Total
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Spending %s to %s, total %s %s:\n", args.DateFrom, args.DateTo, fmtAmount(grand), profile.HomeCurrency)
	for _, r := range rows {
		pct := 0.0
		if grand > 0 {
			pct = r.Total / grand * 100
		}
		fmt.Fprintf(&b, "%s: %s %s (%.1f%%, %d transactions)\n",
			r.CategoryName, fmtAmount(r.Total), profile.HomeCurrency, pct, r.Count)
	}
	fmt.Fprintf(&b, "Top category: %s. Ask for details on a category to see individual transactions.", rows[0].CategoryName)

	return ToolResult{Success: true, Message: b.String(), Action: domain.ActionQueried}
}

func (t *Tools) queryDetail(ctx context.Context, profile *domain.Profile, from, toExcl time.Time, args queryArgs) ToolResult {
	cat, err := repo.FindCategoryByHint(ctx, t.DB, args.CategoryFilter)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return failed(fmt.Sprintf("category not found: %s", strings.TrimSpace(args.CategoryFilter)))
		}
		return failed("could not query transactions, please try again")
	}

	txns, err := repo.ListTransactions(ctx, t.DB, profile.ID, cat.ID, from, toExcl, detailListLimit)
	if err != nil {
		return failed("could not query transactions, please try again")
	}
	if len(txns) == 0 {
		return ToolResult{
			Success: true,
			Message: fmt.Sprintf("No %s transactions between %s and %s.", cat.Name, args.DateFrom, args.DateTo),
			Action:  domain.ActionQueried,
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s transactions %s to %s:\n", cat.Name, args.DateFrom, args.DateTo)
	for _, txn := range txns {
		fmt.Fprintf(&b, "%s %s: %s %s\n",
			txn.CreatedAt.UTC().Format("2006-01-02"), txn.Description, fmtAmount(txn.AmountHome), profile.HomeCurrency)
	}

	return ToolResult{Success: true, Message: strings.TrimRight(b.String(), "\n"), Action: domain.ActionQueried}
}

// amountPrinter renders monetary values with locale-aware grouping.
var amountPrinter = message.NewPrinter(language.English)

func fmtAmount(v float64) string {
	return amountPrinter.Sprint(number.Decimal(v,
		number.MinFractionDigits(2),
		number.MaxFractionDigits(2),
	))
}
