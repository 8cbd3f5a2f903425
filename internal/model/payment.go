package model

import "time"

// Bill providers accepted by the tenant bill-pay form.
var BillProviders = []string{"Cable Bahamas", "Aliv", "BTC", "BPL"}

type Payment struct {
	ID           int64     `json:"id"`
	PayerAccount string    `json:"payer_account"`
	PayerRole    string    `json:"payer_role"`
	PaymentType  string    `json:"payment_type"`
	Provider     string    `json:"provider"`
	Amount       int64     `json:"amount"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

var PaymentStatuses = []string{"submitted", "paid", "failed"}
