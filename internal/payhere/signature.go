// Package payhere implements the PayHere gateway signatures. Outbound checkout requests carry an
// HMAC-SHA256 hash, inbound server-to-server notifications carry an MD5 signature; both algorithms
// are fixed by the gateway protocol.
package payhere

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"strings"

	"github.com/shopspring/decimal"
)

// Notification field names posted by the gateway.
const (
	FieldMerchantID = "merchant_id"
	FieldOrderID    = "order_id"
	FieldPaymentID  = "payment_id"
	FieldAmount     = "payhere_amount"
	FieldCurrency   = "payhere_currency"
	FieldStatusCode = "status_code"
	FieldSignature  = "md5sig"
)

// Gateway status codes.
const (
	StatusSuccess    = "2"
	StatusPending    = "0"
	StatusCancelled  = "-1"
	StatusFailed     = "-2"
	StatusChargeback = "-3"
)

var signedFields = []string{
	FieldMerchantID,
	FieldOrderID,
	FieldPaymentID,
	FieldAmount,
	FieldCurrency,
	FieldStatusCode,
}

// GenerateInitiationHash returns base64(HMAC-SHA256(appSecret, merchantID|orderID|amount|currency|appID)).
func GenerateInitiationHash(merchantID, orderID, amount, currency, appID, appSecret string) string {
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write([]byte(strings.Join([]string{merchantID, orderID, amount, currency, appID}, "|")))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// NotificationSignature is the MD5 hex digest the gateway is expected to send for fields.
func NotificationSignature(fields map[string]string, appSecret string) string {
	var b strings.Builder
	for _, name := range signedFields {
		b.WriteString(fields[name])
	}
	b.WriteString(appSecret)
	sum := md5.Sum([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// VerifyNotification reports whether fields carry a valid md5sig. Missing fields, malformed hex
// and mismatches all yield false.
func VerifyNotification(fields map[string]string, appSecret string) bool {
	if fields == nil || appSecret == "" {
		return false
	}
	for _, name := range signedFields {
		if strings.TrimSpace(fields[name]) == "" {
			return false
		}
	}
	got, err := hex.DecodeString(strings.TrimSpace(fields[FieldSignature]))
	if err != nil || len(got) != md5.Size {
		return false
	}
	want, _ := hex.DecodeString(NotificationSignature(fields, appSecret))
	return subtle.ConstantTimeCompare(got, want) == 1
}

// FormatAmount renders an amount the way the gateway expects it: two decimals, no grouping.
func FormatAmount(amount decimal.Decimal) string {
	return amount.StringFixed(2)
}
