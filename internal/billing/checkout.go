package billing

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/wolfman30/funcionariopro/pkg/logging"
)

// CheckoutParams describes a plan purchase.
type CheckoutParams struct {
	CheckoutID uuid.UUID
	SessionID  string
	Plan       Plan
}

// CheckoutResponse is the link the visitor follows to pay.
type CheckoutResponse struct {
	URL        string
	ProviderID string
}

// CheckoutProvider creates payment links.
type CheckoutProvider interface {
	CreatePaymentLink(ctx context.Context, params CheckoutParams) (*CheckoutResponse, error)
}

// FakeCheckoutService links to the built-in demo payment page, where the
// visitor completes the purchase without a real processor.
//
// Only wire it when ALLOW_FAKE_PAYMENTS is set.
type FakeCheckoutService struct {
	publicBaseURL string
	logger        *logging.Logger
}

func NewFakeCheckoutService(publicBaseURL string, logger *logging.Logger) *FakeCheckoutService {
	if logger == nil {
		logger = logging.Default()
	}
	return &FakeCheckoutService{
		publicBaseURL: strings.TrimRight(strings.TrimSpace(publicBaseURL), "/"),
		logger:        logger,
	}
}

func (s *FakeCheckoutService) CreatePaymentLink(_ context.Context, params CheckoutParams) (*CheckoutResponse, error) {
	if params.CheckoutID == uuid.Nil {
		return nil, fmt.Errorf("billing: fake checkout requires checkout id")
	}
	if s.publicBaseURL == "" {
		return nil, fmt.Errorf("billing: fake checkout requires PUBLIC_BASE_URL")
	}
	if !isValidBaseURL(s.publicBaseURL) {
		return nil, fmt.Errorf("billing: fake checkout PUBLIC_BASE_URL must be an absolute http(s) URL")
	}
	s.logger.Debug("fake checkout link created", "checkout_id", params.CheckoutID, "plan", params.Plan.ID)
	return &CheckoutResponse{
		URL:        fmt.Sprintf("%s/payments/fake/%s", s.publicBaseURL, params.CheckoutID),
		ProviderID: "fake:" + params.CheckoutID.String(),
	}, nil
}

func isValidBaseURL(value string) bool {
	parsed, err := url.Parse(value)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return false
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
		return true
	default:
		return false
	}
}
