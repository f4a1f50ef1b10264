package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/angelmondragon/orderdesk-backend/api/middleware"
	"github.com/angelmondragon/orderdesk-backend/api/responses"
	"github.com/angelmondragon/orderdesk-backend/api/validators"
	"github.com/angelmondragon/orderdesk-backend/internal/orders"
	pkgerrors "github.com/angelmondragon/orderdesk-backend/pkg/errors"
	"github.com/angelmondragon/orderdesk-backend/pkg/logger"
)

// basketLinesRequest carries "items" as a JSON list, or as a string holding
// one.
type basketLinesRequest struct {
	Items validators.EmbeddedJSON `json:"items"`
}

// decodeLines returns the raw entries of "items". Entries are read one by one
// later so a single bad line does not sink the batch.
func decodeLines(r *http.Request) ([]json.RawMessage, error) {
	var body basketLinesRequest
	if err := validators.DecodeJSONBody(r, &body); err != nil {
		return nil, err
	}
	if len(body.Items) == 0 {
		return nil, errItemsRequired()
	}
	var entries []json.RawMessage
	if err := body.Items.Decode(&entries); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid items").WithDetails(map[string]string{"items": "must be a list of objects"})
	}
	if len(entries) == 0 {
		return nil, errItemsRequired()
	}
	return entries, nil
}

func errItemsRequired() error {
	return pkgerrors.New(pkgerrors.CodeValidation, "items are required").WithDetails(map[string]string{"items": "is required"})
}

func BasketGet(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		basket, err := svc.GetBasket(r.Context(), middleware.CallerFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, responses.Fields{"basket": basket})
	}
}

// BasketAdd adds lines to the caller's basket. Rejected lines are reported
// next to the created count; the request still succeeds.
func BasketAdd(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := decodeLines(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.AddItems(r.Context(), middleware.CallerFromContext(r.Context()), orders.DecodeItemLines(entries))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		fields := responses.Fields{"Created": result.Created}
		if len(result.Errors) > 0 {
			fields["Rejected"] = result.Errors
		}
		responses.WriteSuccess(w, fields)
	}
}

// BasketUpdate applies the readable lines and skips the rest; a batch with
// no readable line updates nothing.
func BasketUpdate(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := decodeLines(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		lines := orders.DecodeQuantityLines(entries)
		if len(lines) == 0 {
			responses.WriteSuccess(w, responses.Fields{"Updated": 0})
			return
		}
		updated, err := svc.UpdateItems(r.Context(), middleware.CallerFromContext(r.Context()), lines)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, responses.Fields{"Updated": updated})
	}
}

func BasketDelete(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := itemsArgument(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		deleted, err := svc.RemoveItems(r.Context(), middleware.CallerFromContext(r.Context()), raw)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, responses.Fields{"Deleted": deleted})
	}
}
