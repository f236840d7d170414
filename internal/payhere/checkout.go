package payhere

import "github.com/shopspring/decimal"

// MerchantConfig holds the merchant credentials and callback URLs.
type MerchantConfig struct {
	MerchantID string
	AppID      string
	AppSecret  string
	Currency   string
	ReturnURL  string
	CancelURL  string
	NotifyURL  string
	Sandbox    bool
}

func (c MerchantConfig) CheckoutURL() string {
	if c.Sandbox {
		return "https://sandbox.payhere.lk/pay/checkout"
	}
	return "https://www.payhere.lk/pay/checkout"
}

// Checkout is what the client needs to redirect a customer to the gateway.
type Checkout struct {
	Action            string `json:"action"`
	MerchantID        string `json:"merchant_id"`
	OrderID           string `json:"order_id"`
	Amount            string `json:"amount"`
	Currency          string `json:"currency"`
	AppID             string `json:"app_id"`
	Hash              string `json:"hash"`
	ReturnURL         string `json:"return_url,omitempty"`
	CancelURL         string `json:"cancel_url,omitempty"`
	NotifyURL         string `json:"notify_url,omitempty"`
	Items             string `json:"items,omitempty"`
	PaymentID         string `json:"payment_id"`
	InstallmentNumber int    `json:"installment_number"`
}

// NewCheckout signs a checkout for gatewayOrderID and amount.
func NewCheckout(cfg MerchantConfig, gatewayOrderID string, amount decimal.Decimal, items string) Checkout {
	amountStr := FormatAmount(amount)
	return Checkout{
		Action:     cfg.CheckoutURL(),
		MerchantID: cfg.MerchantID,
		OrderID:    gatewayOrderID,
		Amount:     amountStr,
		Currency:   cfg.Currency,
		AppID:      cfg.AppID,
		Hash:       GenerateInitiationHash(cfg.MerchantID, gatewayOrderID, amountStr, cfg.Currency, cfg.AppID, cfg.AppSecret),
		ReturnURL:  cfg.ReturnURL,
		CancelURL:  cfg.CancelURL,
		NotifyURL:  cfg.NotifyURL,
		Items:      items,
	}
}
