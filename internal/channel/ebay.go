package channel

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	apperrors "github.com/resaleops/autopilot/internal/errors"
	"github.com/resaleops/autopilot/internal/models"
)

// EbayAdapter maps listing operations onto the marketplace's REST inventory
// APIs and, where only the legacy trading API supports the operation (ending,
// relisting, best offers), onto XML calls.
type EbayAdapter struct {
	client *Client
	logger *zap.Logger
}

func NewEbayAdapter(client *Client, logger *zap.Logger) *EbayAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EbayAdapter{client: client, logger: logger.Named("channel.ebay")}
}

type offerPayload struct {
	SKU            string         `json:"sku"`
	MarketplaceID  string         `json:"marketplaceId"`
	Format         string         `json:"format"`
	AvailableQty   int            `json:"availableQuantity"`
	PricingSummary map[string]any `json:"pricingSummary"`
}

type offerReply struct {
	OfferID   string `json:"offerId"`
	ListingID string `json:"listingId"`
	Status    string `json:"status"`
}

// legacyReply matches any trading-API response root; only Ack and ItemID are
// inspected.
type legacyReply struct {
	Ack    string `xml:"Ack"`
	ItemID string `xml:"ItemID"`
}

func priceValue(p decimal.Decimal) map[string]any {
	return map[string]any{"price": map[string]string{"value": p.StringFixed(2), "currency": "USD"}}
}

func (a *EbayAdapter) Publish(ctx context.Context, userID string, item *models.Item, listing *models.Listing) (*AdapterResult, error) {
	payload := offerPayload{
		SKU:            item.ID,
		MarketplaceID:  a.client.cfg.MarketplaceID,
		Format:         "FIXED_PRICE",
		AvailableQty:   listing.Quantity,
		PricingSummary: priceValue(listing.Price),
	}
	resp, err := a.client.Execute(ctx, userID, Operation{
		Method:   http.MethodPost,
		Path:     "/sell/inventory/v1/offer",
		Body:     payload,
		Mutating: true,
	})
	if err != nil {
		return nil, fmt.Errorf("publish listing for item %s: %w", item.ID, err)
	}
	var reply offerReply
	if err := json.Unmarshal(resp.Body, &reply); err != nil {
		return nil, apperrors.NewChannelError("decoding publish reply: "+err.Error(), "decode", resp.StatusCode, false)
	}
	externalID := reply.ListingID
	if externalID == "" {
		externalID = reply.OfferID
	}
	return &AdapterResult{
		ExternalID: externalID,
		Price:      listing.Price,
		Status:     models.ListingActive,
		Raw:        models.JSONMap{"offer_id": reply.OfferID, "listing_id": reply.ListingID},
	}, nil
}

func (a *EbayAdapter) UpdatePrice(ctx context.Context, userID string, listing *models.Listing, newPrice decimal.Decimal) (*AdapterResult, error) {
	if listing.ExternalID == nil {
		return nil, &apperrors.ErrValidation{Field: "external_id", Message: "listing was never published"}
	}
	payload := map[string]any{"pricingSummary": priceValue(newPrice)}
	// The update endpoint replies 204 with no body; success is the status code.
	_, err := a.client.Execute(ctx, userID, Operation{
		Method:   http.MethodPut,
		Path:     "/sell/inventory/v1/offer/" + *listing.ExternalID,
		Body:     payload,
		Mutating: true,
	})
	if err != nil {
		return nil, fmt.Errorf("updating price on listing %s: %w", listing.ID, err)
	}
	return &AdapterResult{ExternalID: *listing.ExternalID, Price: newPrice, Status: listing.Status}, nil
}

func (a *EbayAdapter) Delist(ctx context.Context, userID string, listing *models.Listing) (*AdapterResult, error) {
	if listing.ExternalID == nil {
		return nil, &apperrors.ErrValidation{Field: "external_id", Message: "listing was never published"}
	}
	body := fmt.Sprintf(`<?xml version="1.0" encoding="utf-8"?><EndFixedPriceItemRequest xmlns="urn:ebay:apis:eBLBaseComponents"><ItemID>%s</ItemID><EndingReason>NotAvailable</EndingReason></EndFixedPriceItemRequest>`, *listing.ExternalID)
	resp, err := a.client.Execute(ctx, userID, Operation{
		Method:    http.MethodPost,
		Body:      body,
		Mutating:  true,
		LegacyXML: true,
		CallName:  "EndFixedPriceItem",
	})
	if err != nil {
		return nil, fmt.Errorf("delisting %s: %w", listing.ID, err)
	}
	if err := checkAck(resp.Body); err != nil {
		return nil, err
	}
	return &AdapterResult{ExternalID: *listing.ExternalID, Price: listing.Price, Status: models.ListingDelisted}, nil
}

func (a *EbayAdapter) Relist(ctx context.Context, userID string, listing *models.Listing) (*AdapterResult, error) {
	if listing.ExternalID == nil {
		return nil, &apperrors.ErrValidation{Field: "external_id", Message: "listing was never published"}
	}
	body := fmt.Sprintf(`<?xml version="1.0" encoding="utf-8"?><RelistFixedPriceItemRequest xmlns="urn:ebay:apis:eBLBaseComponents"><Item><ItemID>%s</ItemID></Item></RelistFixedPriceItemRequest>`, *listing.ExternalID)
	resp, err := a.client.Execute(ctx, userID, Operation{
		Method:    http.MethodPost,
		Body:      body,
		Mutating:  true,
		LegacyXML: true,
		CallName:  "RelistFixedPriceItem",
	})
	if err != nil {
		return nil, fmt.Errorf("relisting %s: %w", listing.ID, err)
	}
	var reply legacyReply
	if err := xml.Unmarshal(resp.Body, &reply); err != nil {
		return nil, apperrors.NewChannelError("decoding relist reply: "+err.Error(), "decode", resp.StatusCode, false)
	}
	if reply.Ack != "Success" && reply.Ack != "Warning" {
		return nil, apperrors.NewChannelError("relist not acknowledged", reply.Ack, resp.StatusCode, false)
	}
	externalID := reply.ItemID
	if externalID == "" {
		externalID = *listing.ExternalID
	}
	return &AdapterResult{ExternalID: externalID, Price: listing.Price, Status: models.ListingActive}, nil
}

func (a *EbayAdapter) SyncStatus(ctx context.Context, userID string, listing *models.Listing) (*AdapterResult, error) {
	if listing.ExternalID == nil {
		return nil, &apperrors.ErrValidation{Field: "external_id", Message: "listing was never published"}
	}
	resp, err := a.client.Execute(ctx, userID, Operation{
		Method: http.MethodGet,
		Path:   "/sell/inventory/v1/offer/" + *listing.ExternalID,
	})
	if err != nil {
		return nil, fmt.Errorf("syncing %s: %w", listing.ID, err)
	}
	var reply offerReply
	if err := json.Unmarshal(resp.Body, &reply); err != nil {
		return nil, apperrors.NewChannelError("decoding sync reply: "+err.Error(), "decode", resp.StatusCode, false)
	}
	status := models.ListingActive
	if reply.Status == "ENDED" || reply.Status == "UNPUBLISHED" {
		status = models.ListingEnded
	}
	return &AdapterResult{ExternalID: *listing.ExternalID, Price: listing.Price, Status: status, Raw: models.JSONMap{"status": reply.Status}}, nil
}

func (a *EbayAdapter) RespondToOffer(ctx context.Context, userID string, listing *models.Listing, offer OfferResponse) (*AdapterResult, error) {
	if listing.ExternalID == nil {
		return nil, &apperrors.ErrValidation{Field: "external_id", Message: "listing was never published"}
	}
	var action string
	counter := ""
	switch {
	case offer.Accept:
		action = "Accept"
	case offer.Decline:
		action = "Decline"
	case offer.CounterAmount != nil:
		action = "Counter"
		counter = fmt.Sprintf("<CounterOfferPrice currencyID=\"USD\">%s</CounterOfferPrice><CounterOfferQuantity>1</CounterOfferQuantity>", offer.CounterAmount.StringFixed(2))
	default:
		return nil, &apperrors.ErrValidation{Field: "offer_response", Message: "no action set"}
	}
	body := fmt.Sprintf(`<?xml version="1.0" encoding="utf-8"?><RespondToBestOfferRequest xmlns="urn:ebay:apis:eBLBaseComponents"><ItemID>%s</ItemID><BestOfferID>%s</BestOfferID><Action>%s</Action>%s</RespondToBestOfferRequest>`,
		*listing.ExternalID, offer.OfferID, action, counter)
	resp, err := a.client.Execute(ctx, userID, Operation{
		Method:    http.MethodPost,
		Body:      body,
		Mutating:  true,
		LegacyXML: true,
		CallName:  "RespondToBestOffer",
	})
	if err != nil {
		return nil, fmt.Errorf("responding to offer %s: %w", offer.OfferID, err)
	}
	if err := checkAck(resp.Body); err != nil {
		return nil, err
	}
	return &AdapterResult{ExternalID: *listing.ExternalID, Price: listing.Price, Status: listing.Status, Raw: models.JSONMap{"action": action}}, nil
}

func checkAck(body []byte) error {
	var reply legacyReply
	if err := xml.Unmarshal(body, &reply); err != nil {
		return apperrors.NewChannelError("decoding legacy reply: "+err.Error(), "decode", http.StatusOK, false)
	}
	if reply.Ack != "Success" && reply.Ack != "Warning" {
		return apperrors.NewChannelError("call not acknowledged", reply.Ack, http.StatusOK, false)
	}
	return nil
}

var _ Adapter = (*EbayAdapter)(nil)
