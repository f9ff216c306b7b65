package server

import (
	"time"

	autoscalingdomain "github.com/hostlify/hostlify/internal/autoscaling/domain"
	hostingdomain "github.com/hostlify/hostlify/internal/hosting/domain"
	plandomain "github.com/hostlify/hostlify/internal/plan/domain"
	walletdomain "github.com/hostlify/hostlify/internal/wallet/domain"
)

// View structs mirror the JSON the web client reads. Money fields are
// PLN floats here and nowhere else.

type walletView struct {
	ID       string  `json:"id"`
	Balance  float64 `json:"balance"`
	Currency string  `json:"currency"`
}

func newWalletView(w *walletdomain.Wallet) walletView {
	return walletView{
		ID:       w.ID.String(),
		Balance:  groszToPLN(w.Balance),
		Currency: w.Currency,
	}
}

type transactionView struct {
	ID           string    `json:"id"`
	Amount       float64   `json:"amount"`
	Source       string    `json:"source"`
	BalanceAfter float64   `json:"balance_after"`
	Reference    string    `json:"reference"`
	CreatedAt    time.Time `json:"created_at"`
}

func newTransactionViews(txns []walletdomain.Transaction) []transactionView {
	views := make([]transactionView, 0, len(txns))
	for _, txn := range txns {
		views = append(views, transactionView{
			ID:           txn.ID.String(),
			Amount:       groszToPLN(txn.Amount),
			Source:       string(txn.Source),
			BalanceAfter: groszToPLN(txn.BalanceAfter),
			Reference:    txn.Reference,
			CreatedAt:    txn.CreatedAt,
		})
	}
	return views
}

type planView struct {
	ID           string  `json:"id"`
	Code         string  `json:"code"`
	Name         string  `json:"name"`
	RAM          int64   `json:"ram"`
	CPU          int64   `json:"cpu"`
	Storage      int64   `json:"storage"`
	Bandwidth    int64   `json:"bandwidth"`
	MaxRAM       int64   `json:"max_ram"`
	MaxCPU       int64   `json:"max_cpu"`
	PriceMonthly float64 `json:"price_monthly"`
	PriceYearly  float64 `json:"price_yearly"`
}

func newPlanView(p plandomain.HostingPlan) planView {
	return planView{
		ID:           p.ID.String(),
		Code:         p.Code,
		Name:         p.Name,
		RAM:          p.RAM,
		CPU:          p.CPU,
		Storage:      p.Storage,
		Bandwidth:    p.Bandwidth,
		MaxRAM:       p.MaxRAM,
		MaxCPU:       p.MaxCPU,
		PriceMonthly: groszToPLN(p.PriceMonthly),
		PriceYearly:  groszToPLN(p.PriceYearly),
	}
}

type accountView struct {
	CurrentRAM       int64      `json:"current_ram"`
	CurrentCPU       int64      `json:"current_cpu"`
	CurrentStorage   int64      `json:"current_storage"`
	CurrentBandwidth int64      `json:"current_bandwidth"`
	LastScaledUpAt   *time.Time `json:"last_scaled_up_at"`
	LastScaledDownAt *time.Time `json:"last_scaled_down_at"`
}

type serviceView struct {
	ID                   string      `json:"id"`
	Domain               string      `json:"domain"`
	Status               string      `json:"status"`
	StartDate            *time.Time  `json:"start_date"`
	EndDate              *time.Time  `json:"end_date"`
	IsAutoscalingEnabled bool        `json:"is_autoscaling_enabled"`
	IsAutoRenew          bool        `json:"is_auto_renew"`
	PaymentMethod        string      `json:"payment_method"`
	HostingPlan          planView    `json:"hosting_plan"`
	HostingAccount       accountView `json:"hosting_account"`
}

func newServiceView(details *hostingdomain.ServiceDetails) serviceView {
	return serviceView{
		ID:                   details.Service.ID.String(),
		Domain:               details.Service.Domain,
		Status:               string(details.Service.Status),
		StartDate:            details.Service.StartDate,
		EndDate:              details.Service.EndDate,
		IsAutoscalingEnabled: details.Service.IsAutoscalingEnabled,
		IsAutoRenew:          details.Service.IsAutoRenew,
		PaymentMethod:        string(details.Service.PaymentMethod),
		HostingPlan:          newPlanView(details.Plan),
		HostingAccount: accountView{
			CurrentRAM:       details.Account.CurrentRAM,
			CurrentCPU:       details.Account.CurrentCPU,
			CurrentStorage:   details.Account.CurrentStorage,
			CurrentBandwidth: details.Account.CurrentBandwidth,
			LastScaledUpAt:   details.Account.LastScaledUpAt,
			LastScaledDownAt: details.Account.LastScaledDownAt,
		},
	}
}

type scalingLogView struct {
	ID            string     `json:"id"`
	PreviousRAM   int64      `json:"previous_ram"`
	NewRAM        int64      `json:"new_ram"`
	ScaledRAM     int64      `json:"scaled_ram"`
	PreviousCPU   int64      `json:"previous_cpu"`
	NewCPU        int64      `json:"new_cpu"`
	ScaledCPU     int64      `json:"scaled_cpu"`
	Cost          float64    `json:"cost"`
	PaymentStatus string     `json:"payment_status"`
	AppliedAt     *time.Time `json:"applied_at"`
	CreatedAt     time.Time  `json:"created_at"`
}

func newScalingLogViews(logs []autoscalingdomain.ScalingLog) []scalingLogView {
	views := make([]scalingLogView, 0, len(logs))
	for _, log := range logs {
		views = append(views, scalingLogView{
			ID:            log.ID.String(),
			PreviousRAM:   log.PreviousRAM,
			NewRAM:        log.NewRAM,
			ScaledRAM:     log.ScaledRAM,
			PreviousCPU:   log.PreviousCPU,
			NewCPU:        log.NewCPU,
			ScaledCPU:     log.ScaledCPU,
			Cost:          groszToPLN(log.Cost),
			PaymentStatus: string(log.PaymentStatus),
			AppliedAt:     log.AppliedAt,
			CreatedAt:     log.CreatedAt,
		})
	}
	return views
}
