package server

import (
	"encoding/base64"
	"fmt"
	"net/url"

	"github.com/skip2/go-qrcode"

	"github.com/payce-finance/payce/service/intent"
)

// paymentDetails is the wallet-app payment surface attached to Solana
// invoices: a Solana Pay URL plus a scannable QR code.
type paymentDetails struct {
	PaymentURL string
	QRCodeData string
}

// solanaPaymentDetails builds the Solana Pay URL and QR code for an
// invoice. Returns nil when no mint is configured for the currency.
func solanaPaymentDetails(in *intent.Intent, mints map[string]string) *paymentDetails {
	mint, ok := mints[in.Currency.Key()]
	if !ok {
		return nil
	}

	paymentURL := buildSolanaPayURL(in.RecipientAddress, in.AmountDisplay, mint, in.Reason)

	// QR code is optional; the URL alone is enough to pay.
	qrCodeData, err := generateQRCode(paymentURL)
	if err != nil {
		qrCodeData = ""
	}

	return &paymentDetails{
		PaymentURL: paymentURL,
		QRCodeData: qrCodeData,
	}
}

// buildSolanaPayURL creates a Solana Pay-compatible URL for payment.
// Format: solana:{recipient}?amount={amount}&spl-token={mint}&memo={memo}&label={label}&message={message}
func buildSolanaPayURL(recipient, amount, tokenMint, memo string) string {
	params := url.Values{}
	params.Set("amount", amount)
	params.Set("spl-token", tokenMint)
	if memo != "" {
		params.Set("memo", memo)
	}
	params.Set("label", "Payce")
	params.Set("message", "Invoice payment")

	return fmt.Sprintf("solana:%s?%s", recipient, params.Encode())
}

// generateQRCode renders a payment URL as a base64-encoded 256x256 PNG.
func generateQRCode(data string) (string, error) {
	qr, err := qrcode.New(data, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("failed to create QR code: %w", err)
	}

	png, err := qr.PNG(256)
	if err != nil {
		return "", fmt.Errorf("failed to encode QR code as PNG: %w", err)
	}

	return base64.StdEncoding.EncodeToString(png), nil
}
