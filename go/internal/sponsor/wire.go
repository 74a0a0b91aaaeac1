package sponsor

// SponsorRequest asks the sponsor to pay for an intent. IntentKindBytes is the
// base64 encoding of tx.Intent.KindBytes.
type SponsorRequest struct {
	IntentKindBytes string `json:"intentKindBytes"`
	SenderAddress   string `json:"senderAddress"`
}

// SponsorResponse carries either a grant or an error message.
type SponsorResponse struct {
	FinalizedBytes   string `json:"finalizedBytes,omitempty"`
	SponsorSignature string `json:"sponsorSignature,omitempty"`
	SponsorAddress   string `json:"sponsorAddress,omitempty"`
	Error            string `json:"error,omitempty"`
}

// HealthResponse is returned by GET /sponsor.
type HealthResponse struct {
	Status         string `json:"status"`
	Operational    bool   `json:"operational"`
	SponsorAddress string `json:"sponsorAddress"`
	Balance        uint64 `json:"balance,string"`
}

const requestIDHeader = "X-Request-ID"
