// AngelaMos | 2026
// dto.go

package gateway

import (
	"time"

	"github.com/carterperez-dev/templates/imagegate/internal/account"
	"github.com/carterperez-dev/templates/imagegate/internal/usage"
)

type CredentialsRequest struct {
	Username string `json:"username" validate:"required,max=100"`
	Password string `json:"password" validate:"required,max=128"`
}

type FeatureRequest struct {
	Query string `json:"query" validate:"required,max=200"`
}

type AccountResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Paid      bool      `json:"paid"`
	CreatedAt time.Time `json:"created_at"`
}

type TokenResponse struct {
	AccessToken string          `json:"access_token"`
	TokenType   string          `json:"token_type"`
	ExpiresIn   int             `json:"expires_in"`
	ExpiresAt   time.Time       `json:"expires_at"`
	Account     AccountResponse `json:"account"`
}

type RecordResponse struct {
	ID          int64     `json:"id"`
	Query       string    `json:"query"`
	ArtifactRef string    `json:"artifact_ref"`
	CreatedAt   time.Time `json:"created_at"`
}

type UsageResponse struct {
	Count     int  `json:"count"`
	Quota     int  `json:"quota"`
	Paid      bool `json:"paid"`
	Remaining int  `json:"remaining"`
}

type FeatureResponse struct {
	Record RecordResponse `json:"record"`
	Usage  UsageResponse  `json:"usage"`
}

type HistoryResponse struct {
	Records []RecordResponse `json:"records"`
}

type CheckoutResponse struct {
	Reference   string `json:"reference"`
	RedirectURL string `json:"redirect_url"`
}

type UpgradeResponse struct {
	Paid             bool `json:"paid"`
	AlreadyConfirmed bool `json:"already_confirmed"`
}

type CancelResponse struct {
	Canceled bool `json:"canceled"`
	Paid     bool `json:"paid"`
}

func ToAccountResponse(a *account.Account) AccountResponse {
	return AccountResponse{
		ID:        a.ID,
		Username:  a.Username,
		Paid:      a.Paid,
		CreatedAt: a.CreatedAt,
	}
}

func ToRecordResponse(r usage.Record) RecordResponse {
	return RecordResponse{
		ID:          r.ID,
		Query:       r.Query,
		ArtifactRef: r.ArtifactRef,
		CreatedAt:   r.CreatedAt,
	}
}
