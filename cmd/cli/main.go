package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/iho/cardledger/internal/adapter/http/dto"
	"github.com/iho/cardledger/internal/domain"
)

var (
	baseURL string
	token   string
	timeout time.Duration

	stdout io.Writer = os.Stdout
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "cardledger-cli",
		Short:         "CardLedger CLI tool",
		Long:          `A command line interface for interacting with the CardLedger API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&baseURL, "url", envOr("CARDLEDGER_URL", "http://localhost:8080"), "Base URL of the CardLedger API")
	rootCmd.PersistentFlags().StringVar(&token, "token", os.Getenv("CARDLEDGER_TOKEN"), "Bearer token")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "Request timeout")

	rootCmd.AddCommand(cardsCmd(), purchasesCmd(), invoicesCmd(), paymentsCmd(), scheduleCmd(), migrateCmd())

	return rootCmd
}

func client() *apiClient {
	return newAPIClient(baseURL, token, timeout)
}

func cardsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "cards", Short: "Credit card operations"}

	var req dto.CreateCreditCardRequest
	var limit string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a credit card",
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := decimal.NewFromString(limit)
			if err != nil {
				return fmt.Errorf("invalid --limit: %w", err)
			}
			req.CreditLimit = amount

			var card dto.CreditCardResponse
			if err := client().do(cmd.Context(), http.MethodPost, "/api/v1/credit-cards", req, &card, nil); err != nil {
				return err
			}
			printJSON(card)
			return nil
		},
	}
	create.Flags().StringVar(&req.Name, "name", "", "Card name")
	create.Flags().StringVar(&limit, "limit", "", "Credit limit")
	create.Flags().IntVar(&req.ClosingDay, "closing-day", 0, "Day of month the invoice closes")
	create.Flags().IntVar(&req.DueDay, "due-day", 0, "Day of month the invoice is due")
	create.Flags().BoolVar(&req.AllowsPartialPayment, "partial-payments", false, "Allow partial payments")
	_ = create.MarkFlagRequired("name")
	_ = create.MarkFlagRequired("limit")

	get := &cobra.Command{
		Use:   "get <card-id>",
		Short: "Show a credit card",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return getAndPrint(cmd.Context(), "/api/v1/credit-cards/"+url.PathEscape(args[0]), &dto.CreditCardResponse{})
		},
	}

	var pageLimit, offset int
	list := &cobra.Command{
		Use:   "list",
		Short: "List credit cards",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			q.Set("limit", strconv.Itoa(pageLimit))
			q.Set("offset", strconv.Itoa(offset))

			var cards []*dto.CreditCardResponse
			if err := client().do(cmd.Context(), http.MethodGet, "/api/v1/credit-cards?"+q.Encode(), nil, &cards, nil); err != nil {
				return err
			}
			printCards(cards)
			return nil
		},
	}
	list.Flags().IntVar(&pageLimit, "page-size", 20, "Page size")
	list.Flags().IntVar(&offset, "offset", 0, "Offset")

	available := &cobra.Command{
		Use:   "limit <card-id>",
		Short: "Show a card's available limit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return getAndPrint(cmd.Context(), "/api/v1/credit-cards/"+url.PathEscape(args[0])+"/available-limit", &dto.AvailableLimitResponse{})
		},
	}

	cmd.AddCommand(create, get, list, available)
	return cmd
}

func purchasesCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "purchases", Short: "Purchase operations"}

	var req dto.RegisterPurchaseRequest
	var amount string
	create := &cobra.Command{
		Use:   "create",
		Short: "Register a purchase",
		RunE: func(cmd *cobra.Command, args []string) error {
			total, err := decimal.NewFromString(amount)
			if err != nil {
				return fmt.Errorf("invalid --amount: %w", err)
			}
			req.TotalAmount = total

			var purchase dto.PurchaseResponse
			if err := client().do(cmd.Context(), http.MethodPost, "/api/v1/purchases", req, &purchase, nil); err != nil {
				return err
			}
			printJSON(purchase)
			return nil
		},
	}
	create.Flags().StringVar(&req.CreditCardID, "card", "", "Credit card ID")
	create.Flags().StringVar(&req.Description, "description", "", "Description")
	create.Flags().StringVar(&amount, "amount", "", "Total amount")
	create.Flags().IntVar(&req.InstallmentCount, "installments", 1, "Number of installments")
	_ = create.MarkFlagRequired("card")
	_ = create.MarkFlagRequired("amount")

	get := &cobra.Command{
		Use:   "get <purchase-id>",
		Short: "Show a purchase with its installments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return getAndPrint(cmd.Context(), "/api/v1/purchases/"+url.PathEscape(args[0]), &dto.PurchaseResponse{})
		},
	}

	del := &cobra.Command{
		Use:   "delete <purchase-id>",
		Short: "Delete a purchase and its installments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client().do(cmd.Context(), http.MethodDelete, "/api/v1/purchases/"+url.PathEscape(args[0]), nil, nil, nil); err != nil {
				return err
			}
			fmt.Fprintln(stdout, "deleted")
			return nil
		},
	}

	cmd.AddCommand(create, get, del)
	return cmd
}

func invoicesCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "invoices", Short: "Invoice operations"}

	get := &cobra.Command{
		Use:   "get <invoice-id>",
		Short: "Show an invoice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return getAndPrint(cmd.Context(), "/api/v1/invoices/"+url.PathEscape(args[0]), &dto.InvoiceResponse{})
		},
	}

	balance := &cobra.Command{
		Use:   "balance <invoice-id>",
		Short: "Show an invoice's balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return getAndPrint(cmd.Context(), "/api/v1/invoices/"+url.PathEscape(args[0])+"/balance", &dto.InvoiceBalanceResponse{})
		},
	}

	closeCmd := &cobra.Command{
		Use:   "close <invoice-id>",
		Short: "Close an invoice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result dto.CloseInvoiceResponse
			if err := client().do(cmd.Context(), http.MethodPost, "/api/v1/invoices/"+url.PathEscape(args[0])+"/close", nil, &result, nil); err != nil {
				return err
			}
			printJSON(result)
			return nil
		},
	}

	var asOf string
	var batch int
	closeDue := &cobra.Command{
		Use:   "close-due",
		Short: "Close every invoice whose closing date has passed",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := dto.CloseDueRequest{Limit: batch}
			if asOf != "" {
				t, err := time.Parse("2006-01-02", asOf)
				if err != nil {
					return fmt.Errorf("invalid --as-of: %w", err)
				}
				req.AsOf = &t
			}

			var result dto.CloseDueResponse
			if err := client().do(cmd.Context(), http.MethodPost, "/api/v1/invoices/close-due", req, &result, nil); err != nil {
				return err
			}
			printJSON(result)
			return nil
		},
	}
	closeDue.Flags().StringVar(&asOf, "as-of", "", "Close invoices due on or before this date (YYYY-MM-DD)")
	closeDue.Flags().IntVar(&batch, "limit", 0, "Maximum invoices to inspect")

	var unpaid bool
	pay := &cobra.Command{
		Use:   "pay <invoice-id>",
		Short: "Mark an invoice as paid",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inv, err := client().updateInvoice(cmd.Context(), url.PathEscape(args[0]), "/paid", dto.SetPaidRequest{Paid: !unpaid})
			if err != nil {
				return err
			}
			printJSON(inv)
			return nil
		},
	}
	pay.Flags().BoolVar(&unpaid, "undo", false, "Clear the paid flag instead")

	cmd.AddCommand(get, balance, closeCmd, closeDue, pay)
	return cmd
}

func paymentsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "payments", Short: "Partial payment operations"}

	var amount, description string
	register := &cobra.Command{
		Use:   "register <invoice-id>",
		Short: "Register a partial payment against an invoice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := decimal.NewFromString(amount)
			if err != nil {
				return fmt.Errorf("invalid --amount: %w", err)
			}

			req := dto.RegisterPartialPaymentRequest{Amount: decimal.NewNullDecimal(value)}
			if description != "" {
				req.Description = &description
			}

			var result dto.RegisterPartialPaymentResponse
			path := "/api/v1/invoices/" + url.PathEscape(args[0]) + "/partial-payments"
			if err := client().do(cmd.Context(), http.MethodPost, path, req, &result, nil); err != nil {
				return err
			}
			printJSON(result)
			return nil
		},
	}
	register.Flags().StringVar(&amount, "amount", "", "Payment amount")
	register.Flags().StringVar(&description, "description", "", "Description")
	_ = register.MarkFlagRequired("amount")

	del := &cobra.Command{
		Use:   "delete <payment-id>",
		Short: "Delete a partial payment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client().do(cmd.Context(), http.MethodDelete, "/api/v1/partial-payments/"+url.PathEscape(args[0]), nil, nil, nil); err != nil {
				return err
			}
			fmt.Fprintln(stdout, "deleted")
			return nil
		},
	}

	cmd.AddCommand(register, del)
	return cmd
}

// scheduleCmd prints an installment plan without contacting the server.
func scheduleCmd() *cobra.Command {
	var (
		amount     string
		count      int
		closingDay int
		dueDay     int
		purchased  string
	)

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Print the installment schedule for a purchase",
		RunE: func(cmd *cobra.Command, args []string) error {
			total, err := decimal.NewFromString(amount)
			if err != nil {
				return fmt.Errorf("invalid --amount: %w", err)
			}

			at := time.Now().UTC()
			if purchased != "" {
				if at, err = time.Parse("2006-01-02", purchased); err != nil {
					return fmt.Errorf("invalid --date: %w", err)
				}
			}

			card := &domain.CreditCard{ClosingDay: closingDay, DueDay: dueDay}
			plan, err := domain.PlanInstallments(card, total, count, at)
			if err != nil {
				return err
			}

			printSchedule(plan)
			return nil
		},
	}
	cmd.Flags().StringVar(&amount, "amount", "", "Total amount")
	cmd.Flags().IntVar(&count, "installments", 1, "Number of installments")
	cmd.Flags().IntVar(&closingDay, "closing-day", 0, "Card closing day")
	cmd.Flags().IntVar(&dueDay, "due-day", 0, "Card due day")
	cmd.Flags().StringVar(&purchased, "date", "", "Purchase date (YYYY-MM-DD), defaults to today")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("closing-day")
	_ = cmd.MarkFlagRequired("due-day")

	return cmd
}

func getAndPrint(ctx context.Context, path string, out any) error {
	if err := client().do(ctx, http.MethodGet, path, nil, out, nil); err != nil {
		return err
	}
	printJSON(out)
	return nil
}

func printJSON(v any) {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func printCards(cards []*dto.CreditCardResponse) {
	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tLIMIT\tCLOSING\tDUE")
	for _, c := range cards {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\n", c.ID, truncate(c.Name, 24), c.CreditLimit.StringFixed(2), c.ClosingDay, c.DueDay)
	}
	_ = w.Flush()
}

func printSchedule(plan []domain.PlannedInstallment) {
	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tAMOUNT\tDUE\tINVOICE")
	for _, p := range plan {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", p.Number, p.Amount.StringFixed(2), p.DueDate.Format("2006-01-02"), domain.FormatReferenceMonth(p.ReferenceMonth))
	}
	_ = w.Flush()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
