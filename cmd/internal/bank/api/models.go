package bankapi

import "encoding/json"

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerResponse struct {
	CustomerID string `json:"customer_id"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token      string `json:"token"`
	CustomerID string `json:"customer_id"`
	Name       string `json:"name"`
}

type balanceResponse struct {
	CustomerID string  `json:"customer_id"`
	Name       string  `json:"name"`
	Email      string  `json:"email"`
	Balance    float64 `json:"balance"`
}

// Amount decodes as json.Number so both numeric and quoted-numeric bodies
// parse; validation happens in the ledger engine.
type sendRequest struct {
	RecipientID string      `json:"recipient_id"`
	Amount      json.Number `json:"amount"`
}

type sendResponse struct {
	NewBalance float64 `json:"new_balance"`
}

type logoutResponse struct {
	OK bool `json:"ok"`
}
